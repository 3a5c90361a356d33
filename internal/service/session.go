package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// settleTimeout bounds the ledger work of a terminal transition triggered by a
// timer or match callback, which has no caller context.
const settleTimeout = 60 * time.Second

// SessionParams carries everything a new session needs. Built by the
// WagerService after validation; sessions never re-validate.
type SessionParams struct {
	ID                string
	ChannelRef        string
	PartyA            domain.Party
	PartyB            domain.Party
	Terms             domain.WagerTerms
	Escrow            domain.TransferSigner
	CustodialAccounts []string

	AcceptWindow  time.Duration
	FundWindow    time.Duration
	PollInterval  time.Duration
	SigFetchLimit int

	Registry  *Registry
	Settler   *SettlementEngine
	Ledger    domain.LedgerClient
	Match     domain.MatchController
	Announcer domain.Announcer
	Store     domain.WagerStore
	Logger    *slog.Logger
}

// Session is one live wager: two parties, an escrow table, and a state
// machine driven by timers, the funding poll loop, and the match result.
//
// All mutable state sits behind mu. Ledger calls never happen under the lock;
// every path snapshots what it needs, unlocks, then talks to the ledger.
type Session struct {
	id                string
	channelRef        string
	partyA            domain.Party
	partyB            domain.Party
	terms             domain.WagerTerms
	escrow            domain.TransferSigner
	custodialAccounts []string

	fundWindow    time.Duration
	pollInterval  time.Duration
	sigFetchLimit int

	registry  *Registry
	settler   *SettlementEngine
	ledger    domain.LedgerClient
	match     domain.MatchController
	announcer domain.Announcer
	store     domain.WagerStore
	logger    *slog.Logger

	mu          sync.Mutex
	status      domain.SessionStatus
	fundedA     bool
	fundedB     bool
	baseline    uint64
	processed   map[string]bool
	acceptTimer *time.Timer
	fundTimer   *time.Timer
	pollCancel  context.CancelFunc
	done        bool

	wake chan struct{}

	createdAt      time.Time
	acceptedAt     *time.Time
	settledAt      *time.Time
	winnerIdentity string
	detail         string
}

// newSession builds a session in pending_accept and arms the invite timer.
// The caller (WagerService) has already reserved both identities.
func newSession(p SessionParams) *Session {
	s := &Session{
		id:                p.ID,
		channelRef:        p.ChannelRef,
		partyA:            p.PartyA,
		partyB:            p.PartyB,
		terms:             p.Terms,
		escrow:            p.Escrow,
		custodialAccounts: p.CustodialAccounts,
		fundWindow:        p.FundWindow,
		pollInterval:      p.PollInterval,
		sigFetchLimit:     p.SigFetchLimit,
		registry:          p.Registry,
		settler:           p.Settler,
		ledger:            p.Ledger,
		match:             p.Match,
		announcer:         p.Announcer,
		store:             p.Store,
		logger: p.Logger.With(
			slog.String("component", "session"),
			slog.String("session", p.ID),
		),
		status:    domain.StatusPendingAccept,
		processed: make(map[string]bool),
		wake:      make(chan struct{}, 1),
		createdAt: time.Now().UTC(),
	}
	s.acceptTimer = time.AfterFunc(p.AcceptWindow, func() {
		s.finish(domain.StatusExpired, "invite not accepted in time", false, "")
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// ChannelRef returns the front-end channel reference.
func (s *Session) ChannelRef() string { return s.channelRef }

// Parties returns both sides of the wager.
func (s *Session) Parties() (domain.Party, domain.Party) { return s.partyA, s.partyB }

// Status returns the current lifecycle status.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Record returns the persisted view of the session.
func (s *Session) Record() *domain.WagerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.WagerRecord{
		ID:             s.id,
		ChannelRef:     s.channelRef,
		PartyA:         s.partyA,
		PartyB:         s.partyB,
		AmountTokens:   s.terms.AmountTokens,
		FeeBps:         s.terms.FeeBps,
		Status:         s.status,
		FundedA:        s.fundedA,
		FundedB:        s.fundedB,
		WinnerIdentity: s.winnerIdentity,
		Detail:         s.detail,
		CreatedAt:      s.createdAt,
		AcceptedAt:     s.acceptedAt,
		SettledAt:      s.settledAt,
	}
}

// Accept moves the session from pending_accept to funding: captures the
// ledger-position baseline, swaps the invite timer for the funding timer, and
// starts the deposit poll loop. Only the invited party may accept.
func (s *Session) Accept(ctx context.Context, identity string) error {
	if identity != s.partyB.Identity {
		return domain.ErrNotInvited
	}

	// Baseline first. Deposits positioned before this moment can never count,
	// so a stale transfer from an earlier wager cannot fund this one.
	baseline, err := s.ledger.GetLedgerPosition(ctx)
	if err != nil {
		return fmt.Errorf("session: read ledger position: %w", err)
	}

	s.mu.Lock()
	if s.done || s.status != domain.StatusPendingAccept {
		s.mu.Unlock()
		return domain.ErrSessionTerminal
	}
	s.status = domain.StatusFunding
	now := time.Now().UTC()
	s.acceptedAt = &now
	s.baseline = baseline
	if s.acceptTimer != nil {
		s.acceptTimer.Stop()
		s.acceptTimer = nil
	}
	s.fundTimer = time.AfterFunc(s.fundWindow, func() {
		s.finish(domain.StatusExpired, "funding window elapsed", true, "")
	})
	pollCtx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	s.mu.Unlock()

	go s.pollLoop(pollCtx)

	if err := s.store.UpdateStatus(ctx, s.id, domain.StatusFunding, "accepted"); err != nil {
		s.logger.Warn("audit update failed", slog.String("error", err.Error()))
	}
	s.announce(fmt.Sprintf("Wager accepted. Both players send exactly %s tokens to the escrow wallet `%s` within %s.",
		domain.FormatBaseUnits(s.terms.AmountBase(), s.terms.Decimals), s.escrow.Address(), s.fundWindow))
	s.logger.Info("session accepted", slog.Uint64("baseline", baseline))
	return nil
}

// Decline terminates a pending invite. Only the invited party may decline.
func (s *Session) Decline(identity string) error {
	if identity != s.partyB.Identity {
		return domain.ErrNotInvited
	}
	s.finish(domain.StatusDeclined, "invite declined", false, "")
	return nil
}

// Wake nudges the poll loop to run immediately. Called by the websocket
// account feed; purely a latency hint, the ticker alone is sufficient.
func (s *Session) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pollLoop scans for deposits until both sides fund or the session ends.
func (s *Session) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.wake:
		}
		s.pollOnce(ctx)
	}
}

// pollOnce runs one deposit scan across every custodial account alias.
func (s *Session) pollOnce(ctx context.Context) {
	s.mu.Lock()
	if s.done || s.status != domain.StatusFunding {
		s.mu.Unlock()
		return
	}
	exp := domain.DepositExpectation{
		CustodialAccounts: s.custodialAccounts,
		Mint:              s.terms.Mint,
		PartyAWallet:      s.partyA.Wallet,
		PartyBWallet:      s.partyB.Wallet,
		ExpectedAmount:    s.terms.AmountBase(),
		BaselinePosition:  s.baseline,
	}
	s.mu.Unlock()

	for _, account := range s.custodialAccounts {
		refs, err := s.ledger.ListRecentTransactions(ctx, account, s.sigFetchLimit)
		if err != nil {
			s.logger.Warn("transaction listing failed",
				slog.String("account", account),
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, ref := range refs {
			s.mu.Lock()
			seen := s.processed[ref.ID]
			s.mu.Unlock()
			if seen {
				continue
			}

			detail, err := s.ledger.GetTransactionDetail(ctx, ref)
			if err != nil {
				// Not marked processed; the next tick retries the fetch.
				s.logger.Warn("transaction detail fetch failed",
					slog.String("tx", ref.ID),
					slog.String("error", err.Error()),
				)
				continue
			}

			s.mu.Lock()
			s.processed[ref.ID] = true
			s.mu.Unlock()

			res := DetectDeposit(detail, exp)
			if !res.Detected || res.Payer == domain.PayerNone {
				continue
			}
			s.markFunded(ctx, res.Payer, ref.ID)
		}
	}

	s.mu.Lock()
	both := s.fundedA && s.fundedB && !s.done && s.status == domain.StatusFunding
	s.mu.Unlock()
	if both {
		s.transitionToActive()
	}
}

// markFunded records one side's deposit. Re-detection of an already funded
// side is a no-op; the funding event fires at most once per party.
func (s *Session) markFunded(ctx context.Context, payer domain.Payer, txID string) {
	s.mu.Lock()
	if s.done || s.status != domain.StatusFunding {
		s.mu.Unlock()
		return
	}
	var party domain.Party
	switch payer {
	case domain.PayerA:
		if s.fundedA {
			s.mu.Unlock()
			return
		}
		s.fundedA = true
		party = s.partyA
	case domain.PayerB:
		if s.fundedB {
			s.mu.Unlock()
			return
		}
		s.fundedB = true
		party = s.partyB
	default:
		s.mu.Unlock()
		return
	}
	fundedA, fundedB := s.fundedA, s.fundedB
	s.mu.Unlock()

	if err := s.store.UpdateFunding(ctx, s.id, fundedA, fundedB); err != nil {
		s.logger.Warn("audit update failed", slog.String("error", err.Error()))
	}
	s.announce(fmt.Sprintf("Deposit received from <@%s> (tx `%s`).", party.Identity, txID))
	s.logger.Info("deposit detected",
		slog.String("identity", party.Identity),
		slog.String("tx", txID),
	)
}

// transitionToActive hands the fully funded session to the match controller.
// The busy-locks are released first so the controller can claim the players;
// if the handoff fails the locks are re-acquired and both sides are refunded.
// The session never returns to funding.
func (s *Session) transitionToActive() {
	s.mu.Lock()
	if s.done || s.status != domain.StatusFunding {
		s.mu.Unlock()
		return
	}
	s.status = domain.StatusActiveMatch
	if s.fundTimer != nil {
		s.fundTimer.Stop()
		s.fundTimer = nil
	}
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := s.store.UpdateStatus(ctx, s.id, domain.StatusActiveMatch, "both sides funded"); err != nil {
		s.logger.Warn("audit update failed", slog.String("error", err.Error()))
	}

	s.registry.releaseIdentities(s.partyA.Identity, s.partyB.Identity)
	results, err := s.match.StartMatch(s.channelRef, s.partyA, s.partyB)
	if err != nil {
		s.logger.Error("match handoff failed", slog.String("error", err.Error()))
		if !s.registry.reacquireIdentities(s, s.partyA.Identity, s.partyB.Identity) {
			s.logger.Warn("identities claimed elsewhere during failed handoff")
		}
		s.finish(domain.StatusExpired, "match could not be started", true, "")
		return
	}

	s.announce("Both deposits confirmed. The match is starting!")
	s.logger.Info("match started")

	go func() {
		res, ok := <-results
		if !ok {
			s.finish(domain.StatusExpired, "match ended without a result", true, "")
			return
		}
		s.onMatchResult(res)
	}()
}

// onMatchResult settles the session from the match controller's single-fire
// outcome.
func (s *Session) onMatchResult(res domain.MatchResult) {
	switch {
	case res.EndedByAdmin:
		s.finish(domain.StatusSettled, "ended by admin", true, "")
	case res.WinnerIdentity == "":
		s.finish(domain.StatusSettled, "tie", true, "")
	case res.WinnerIdentity == s.partyA.Identity:
		s.finish(domain.StatusSettled, "won by "+s.partyA.Identity, false, s.partyA.Identity)
	case res.WinnerIdentity == s.partyB.Identity:
		s.finish(domain.StatusSettled, "won by "+s.partyB.Identity, false, s.partyB.Identity)
	default:
		// Winner is not a participant; funds go back where they came from.
		s.logger.Error("match winner is not a session party",
			slog.String("winner", res.WinnerIdentity))
		s.finish(domain.StatusSettled, "unrecognized winner, stakes refunded", true, "")
	}
}

// ForceEnd terminates the session administratively: it settles with refunds
// for every funded side.
func (s *Session) ForceEnd(detail string) error {
	s.mu.Lock()
	terminal := s.done
	s.mu.Unlock()
	if terminal {
		return domain.ErrSessionTerminal
	}
	if detail == "" {
		detail = "force ended"
	}
	s.finish(domain.StatusSettled, detail, true, "")
	return nil
}

// stopTimers cancels every timer and the poll loop without settling. Used by
// Shutdown; finish calls it too.
func (s *Session) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acceptTimer != nil {
		s.acceptTimer.Stop()
		s.acceptTimer = nil
	}
	if s.fundTimer != nil {
		s.fundTimer.Stop()
		s.fundTimer = nil
	}
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
}

// finish performs the one terminal transition a session ever makes. The done
// flag makes it idempotent: timer expiry, match result, and admin end can race
// and exactly one wins. Transfers happen at most once.
//
// refund=true returns each funded side's stake; winnerIdentity non-empty pays
// the winner from the pot. Both never hold at once.
func (s *Session) finish(status domain.SessionStatus, detail string, refund bool, winnerIdentity string) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.status = status
	s.detail = detail
	s.winnerIdentity = winnerIdentity
	now := time.Now().UTC()
	s.settledAt = &now
	funds := &escrowFunds{
		escrow:  s.escrow,
		terms:   s.terms,
		partyA:  s.partyA,
		partyB:  s.partyB,
		fundedA: s.fundedA,
		fundedB: s.fundedB,
	}
	s.mu.Unlock()

	s.stopTimers()

	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	switch {
	case winnerIdentity != "":
		wallet := s.partyA.Wallet
		if winnerIdentity == s.partyB.Identity {
			wallet = s.partyB.Wallet
		}
		if err := s.settler.PayWinner(ctx, funds, wallet); err != nil {
			s.logger.Error("settlement failed", slog.String("error", err.Error()))
		} else {
			s.announce(fmt.Sprintf("<@%s> wins %s tokens!", winnerIdentity,
				domain.FormatBaseUnits(s.terms.WinnerPayoutBase(), s.terms.Decimals)))
		}
		if err := s.store.SetWinner(ctx, s.id, winnerIdentity); err != nil {
			s.logger.Warn("audit update failed", slog.String("error", err.Error()))
		}
	case refund && (funds.fundedA || funds.fundedB):
		if err := s.settler.RefundBoth(ctx, funds); err != nil {
			s.logger.Error("refund failed", slog.String("error", err.Error()))
		} else {
			s.announce("Wager ended: " + detail + ". Deposits have been refunded.")
		}
	default:
		s.announce("Wager ended: " + detail + ".")
	}

	if err := s.store.UpdateStatus(ctx, s.id, status, detail); err != nil {
		s.logger.Warn("audit update failed", slog.String("error", err.Error()))
	}

	s.registry.remove(s)
	s.logger.Info("session finished",
		slog.String("status", string(status)),
		slog.String("detail", detail),
	)
}

// announce sends a front-end message, swallowing a nil announcer.
func (s *Session) announce(message string) {
	if s.announcer != nil {
		s.announcer.Announce(s.channelRef, message)
	}
}
