package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct {
	addr string
}

func (s *fakeSigner) Address() string            { return s.addr }
func (s *fakeSigner) Sign(payload []byte) []byte { return []byte("sig") }

// fakeLedger is an in-memory domain.LedgerClient for engine tests.
type fakeLedger struct {
	mu        sync.Mutex
	position  uint64
	decimals  int
	gas       map[string]*big.Int
	tokenBal  map[string]*big.Int
	recent    map[string][]domain.TxRef
	details   map[string]*domain.TransactionDetail
	accounts  map[string][]string
	transfers []domain.TransferRequest

	transferErr  error
	detailErrors map[string]error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		position:     1000,
		decimals:     6,
		gas:          make(map[string]*big.Int),
		tokenBal:     make(map[string]*big.Int),
		recent:       make(map[string][]domain.TxRef),
		details:      make(map[string]*domain.TransactionDetail),
		accounts:     make(map[string][]string),
		detailErrors: make(map[string]error),
	}
}

func (l *fakeLedger) GetBalance(_ context.Context, address string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.gas[address]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(1_000_000_000), nil
}

func (l *fakeLedger) GetTokenAccountBalance(_ context.Context, account string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.tokenBal[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (l *fakeLedger) ListRecentTransactions(_ context.Context, address string, limit int) ([]domain.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	refs := l.recent[address]
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return append([]domain.TxRef(nil), refs...), nil
}

func (l *fakeLedger) GetTransactionDetail(_ context.Context, ref domain.TxRef) (*domain.TransactionDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.detailErrors[ref.ID]; err != nil {
		return nil, err
	}
	d, ok := l.details[ref.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (l *fakeLedger) TransferToken(_ context.Context, req domain.TransferRequest) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transferErr != nil {
		return "", l.transferErr
	}
	l.transfers = append(l.transfers, req)
	return fmt.Sprintf("tx-%d", len(l.transfers)), nil
}

func (l *fakeLedger) GetLedgerPosition(context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position, nil
}

func (l *fakeLedger) ListTokenAccounts(_ context.Context, owner, mint string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.accounts[owner]...), nil
}

func (l *fakeLedger) GetTokenDecimals(context.Context, string) (int, error) {
	return l.decimals, nil
}

func (l *fakeLedger) sentTransfers() []domain.TransferRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TransferRequest(nil), l.transfers...)
}

func (l *fakeLedger) addDeposit(account string, detail *domain.TransactionDetail) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recent[account] = append([]domain.TxRef{{ID: detail.ID, Position: detail.Position}}, l.recent[account]...)
	l.details[detail.ID] = detail
}

var _ domain.LedgerClient = (*fakeLedger)(nil)

// fakeWagerStore records audit calls.
type fakeWagerStore struct {
	mu       sync.Mutex
	created  []string
	statuses []domain.SessionStatus
	winners  []string
}

func (s *fakeWagerStore) RecordCreated(_ context.Context, rec *domain.WagerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec.ID)
	return nil
}

func (s *fakeWagerStore) UpdateStatus(_ context.Context, _ string, status domain.SessionStatus, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeWagerStore) UpdateFunding(context.Context, string, bool, bool) error { return nil }

func (s *fakeWagerStore) SetWinner(_ context.Context, _, winner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.winners = append(s.winners, winner)
	return nil
}

func (s *fakeWagerStore) ListTerminalBefore(context.Context, time.Time, int) ([]domain.WagerRecord, error) {
	return nil, nil
}
func (s *fakeWagerStore) DeleteByIDs(context.Context, []string) error { return nil }

var _ domain.WagerStore = (*fakeWagerStore)(nil)

// fakeAnnouncer collects channel messages.
type fakeAnnouncer struct {
	mu       sync.Mutex
	messages []string
}

func (a *fakeAnnouncer) Announce(_, message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
}

// fakeMatch hands back a controllable result channel.
type fakeMatch struct {
	mu      sync.Mutex
	results chan domain.MatchResult
	started int
	err     error
}

func newFakeMatch() *fakeMatch {
	return &fakeMatch{results: make(chan domain.MatchResult, 1)}
}

func (m *fakeMatch) StartMatch(string, domain.Party, domain.Party) (<-chan domain.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.started++
	return m.results, nil
}

func (m *fakeMatch) startCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// fakeRoster serves a fixed export.
type fakeRoster struct {
	export *domain.RosterExport
	err    error
}

func (r *fakeRoster) FetchExport(context.Context) (*domain.RosterExport, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.export, nil
}

func (r *fakeRoster) PostUpdates(context.Context, []domain.RosterUpdate) error { return nil }

// fakeStateStore keeps the baseline in memory.
type fakeStateStore struct {
	mu sync.Mutex
	st *domain.DistributionState
}

func (s *fakeStateStore) Load() (*domain.DistributionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return &domain.DistributionState{LastFeeBalanceBase: new(big.Int)}, nil
	}
	return &domain.DistributionState{
		LastFeeBalanceBase: new(big.Int).Set(s.st.LastFeeBalanceBase),
		LastRunTimestamp:   s.st.LastRunTimestamp,
	}, nil
}

func (s *fakeStateStore) Save(st *domain.DistributionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = &domain.DistributionState{
		LastFeeBalanceBase: new(big.Int).Set(st.LastFeeBalanceBase),
		LastRunTimestamp:   st.LastRunTimestamp,
	}
	return nil
}

func (s *fakeStateStore) baseline() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.st == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.st.LastFeeBalanceBase)
}

// fakeRunLock always grants.
type fakeRunLock struct {
	held bool
}

func (l *fakeRunLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}
