package domain

import (
	"context"
	"time"
)

// WagerStore records wager lifecycle transitions for audit. Store failures
// never block settlement; callers log and continue.
type WagerStore interface {
	RecordCreated(ctx context.Context, rec *WagerRecord) error
	UpdateStatus(ctx context.Context, id string, status SessionStatus, detail string) error
	UpdateFunding(ctx context.Context, id string, fundedA, fundedB bool) error
	SetWinner(ctx context.Context, id, winnerIdentity string) error
	// ListTerminalBefore returns terminal wagers settled before cutoff, oldest
	// first, for archival.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]WagerRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// DistributionStore records distribution run history.
type DistributionStore interface {
	RecordRun(ctx context.Context, run *DistributionRun, transfers []TransferOutcome) error
	ListRunsBefore(ctx context.Context, cutoff time.Time, limit int) ([]DistributionRun, error)
	DeleteRunsByIDs(ctx context.Context, ids []string) error
}

// StateStore persists the distributor baseline. Load returns a zero baseline
// when no state has been written yet.
type StateStore interface {
	Load() (*DistributionState, error)
	Save(st *DistributionState) error
}

// RunLock is a process-external mutual exclusion guard. Acquire returns an
// unlock function on success and ErrLockHeld when another holder owns the key.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// ExportCache is a short-TTL cache of the roster export, shared across the
// distributor and wager flows to avoid hammering the export endpoint.
type ExportCache interface {
	Get(ctx context.Context) (*RosterExport, error)
	Set(ctx context.Context, exp *RosterExport) error
}
