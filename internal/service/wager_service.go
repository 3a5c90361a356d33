package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// EscrowTable is one custodial escrow keypair. Tables rotate round-robin
// across sessions; a table whose gas balance drops below the configured
// minimum is paused until an operator tops it up.
type EscrowTable struct {
	Signer domain.TransferSigner

	mu     sync.Mutex
	paused bool
}

// Paused reports whether the table is withheld from new sessions.
func (t *EscrowTable) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *EscrowTable) setPaused(v bool) {
	t.mu.Lock()
	t.paused = v
	t.mu.Unlock()
}

// WagerParams is the tuning surface of the WagerService, populated from
// configuration.
type WagerParams struct {
	MinTokens     int64
	MaxTokens     int64
	FeeBps        int64
	AcceptWindow  time.Duration
	FundWindow    time.Duration
	PollInterval  time.Duration
	SigFetchLimit int
	MinGasBalance int64 // base units of the native asset
}

// WagerService is the public face of the escrow engine: it validates wager
// proposals, assigns escrow tables, and owns the session registry.
type WagerService struct {
	params    WagerParams
	tables    []*EscrowTable
	roster    domain.RosterSource
	ledger    domain.LedgerClient
	registry  *Registry
	settler   *SettlementEngine
	announcer domain.Announcer
	store     domain.WagerStore
	logger    *slog.Logger

	mu        sync.Mutex
	match     domain.MatchController
	nextTable int
}

// NewWagerService wires the escrow engine. The match controller starts as a
// stub that fails every handoff (refunding both sides); the front-end attaches
// the real controller via SetMatchController before serving traffic.
func NewWagerService(
	params WagerParams,
	tables []*EscrowTable,
	roster domain.RosterSource,
	ledger domain.LedgerClient,
	registry *Registry,
	settler *SettlementEngine,
	announcer domain.Announcer,
	store domain.WagerStore,
	logger *slog.Logger,
) *WagerService {
	return &WagerService{
		params:    params,
		tables:    tables,
		roster:    roster,
		ledger:    ledger,
		registry:  registry,
		settler:   settler,
		announcer: announcer,
		store:     store,
		logger:    logger.With(slog.String("component", "wager")),
		match:     unavailableMatch{},
	}
}

// SetMatchController attaches the game engine. Affects sessions created after
// the call.
func (w *WagerService) SetMatchController(mc domain.MatchController) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if mc != nil {
		w.match = mc
	}
}

// Registry exposes the live-session table, mainly for the front-end and tests.
func (w *WagerService) Registry() *Registry { return w.registry }

// CreateWager validates a proposal and opens a pending_accept session. Both
// identities must be on the roster with linked wallets and must not be in any
// live session.
func (w *WagerService) CreateWager(ctx context.Context, channelRef, initiator, opponent string, amountTokens int64) (*Session, error) {
	if initiator == opponent {
		return nil, errors.New("wager: cannot wager against yourself")
	}
	if amountTokens < w.params.MinTokens || amountTokens > w.params.MaxTokens {
		return nil, fmt.Errorf("wager: amount %d outside allowed range [%d, %d]",
			amountTokens, w.params.MinTokens, w.params.MaxTokens)
	}

	export, err := w.roster.FetchExport(ctx)
	if err != nil {
		return nil, fmt.Errorf("wager: fetch roster: %w", err)
	}
	walletA := export.WalletFor(initiator)
	walletB := export.WalletFor(opponent)
	if walletA == "" || walletB == "" {
		return nil, domain.ErrRosterMiss
	}

	decimals, err := w.ledger.GetTokenDecimals(ctx, export.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("wager: resolve token decimals: %w", err)
	}

	table, err := w.pickTable(ctx)
	if err != nil {
		return nil, err
	}

	custodial, err := w.ledger.ListTokenAccounts(ctx, table.Signer.Address(), export.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("wager: resolve custodial accounts: %w", err)
	}
	custodial = append(custodial, table.Signer.Address())

	w.mu.Lock()
	match := w.match
	w.mu.Unlock()

	s := newSession(SessionParams{
		ID:         uuid.NewString(),
		ChannelRef: channelRef,
		PartyA:     domain.Party{Identity: initiator, Wallet: walletA},
		PartyB:     domain.Party{Identity: opponent, Wallet: walletB},
		Terms: domain.WagerTerms{
			Mint:         export.TokenMint,
			Decimals:     decimals,
			AmountTokens: amountTokens,
			FeeBps:       w.params.FeeBps,
		},
		Escrow:            table.Signer,
		CustodialAccounts: custodial,
		AcceptWindow:      w.params.AcceptWindow,
		FundWindow:        w.params.FundWindow,
		PollInterval:      w.params.PollInterval,
		SigFetchLimit:     w.params.SigFetchLimit,
		Registry:          w.registry,
		Settler:           w.settler,
		Ledger:            w.ledger,
		Match:             match,
		Announcer:         w.announcer,
		Store:             w.store,
		Logger:            w.logger,
	})
	if err := w.registry.reserve(s, initiator, opponent); err != nil {
		s.stopTimers()
		return nil, err
	}

	if err := w.store.RecordCreated(ctx, s.Record()); err != nil {
		w.logger.Warn("audit insert failed", slog.String("error", err.Error()))
	}
	if w.announcer != nil {
		w.announcer.Announce(channelRef, fmt.Sprintf(
			"<@%s> challenges <@%s> to a %d token wager. Accept within %s.",
			initiator, opponent, amountTokens, w.params.AcceptWindow))
	}
	w.logger.Info("wager created",
		slog.String("session", s.ID()),
		slog.String("initiator", initiator),
		slog.String("opponent", opponent),
		slog.Int64("amount_tokens", amountTokens),
	)
	return s, nil
}

// pickTable returns the next unpaused escrow table in rotation, checking its
// gas balance. A table below the minimum is paused and skipped; it is
// re-checked (and unpaused if topped up) on later rotations.
func (w *WagerService) pickTable(ctx context.Context) (*EscrowTable, error) {
	if len(w.tables) == 0 {
		return nil, errors.New("wager: no escrow tables configured")
	}

	for range w.tables {
		w.mu.Lock()
		table := w.tables[w.nextTable%len(w.tables)]
		w.nextTable++
		w.mu.Unlock()

		gas, err := w.ledger.GetBalance(ctx, table.Signer.Address())
		if err != nil {
			w.logger.Warn("gas balance check failed",
				slog.String("table", table.Signer.Address()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if gas.IsInt64() && gas.Int64() < w.params.MinGasBalance {
			if !table.Paused() {
				w.logger.Warn("escrow table paused on low gas",
					slog.String("table", table.Signer.Address()),
					slog.Int64("gas_base", gas.Int64()),
				)
			}
			table.setPaused(true)
			continue
		}
		table.setPaused(false)
		return table, nil
	}
	return nil, domain.ErrTablePaused
}

// Accept forwards an invite acceptance to the session.
func (w *WagerService) Accept(ctx context.Context, sessionID, identity string) error {
	s := w.registry.Get(sessionID)
	if s == nil {
		return domain.ErrNotFound
	}
	return s.Accept(ctx, identity)
}

// Decline forwards an invite decline to the session.
func (w *WagerService) Decline(sessionID, identity string) error {
	s := w.registry.Get(sessionID)
	if s == nil {
		return domain.ErrNotFound
	}
	return s.Decline(identity)
}

// ForceEnd administratively ends a session, refunding funded sides.
func (w *WagerService) ForceEnd(sessionID, detail string) error {
	s := w.registry.Get(sessionID)
	if s == nil {
		return domain.ErrNotFound
	}
	return s.ForceEnd(detail)
}

// NotifyAccountActivity wakes the poll loop of every live session. Fired by
// the websocket account feed on any escrow account notification.
func (w *WagerService) NotifyAccountActivity(account string) {
	for _, s := range w.registry.All() {
		s.Wake()
	}
}

// unavailableMatch fails every handoff, which sends both stakes back.
type unavailableMatch struct{}

func (unavailableMatch) StartMatch(string, domain.Party, domain.Party) (<-chan domain.MatchResult, error) {
	return nil, errors.New("match controller not attached")
}
