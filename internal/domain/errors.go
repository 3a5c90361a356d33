package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrLockHeld        = errors.New("lock already held")
	ErrParticipantBusy = errors.New("participant already in an active wager")
	ErrSessionTerminal = errors.New("session already terminal")
	ErrNotInvited      = errors.New("only the invited party may respond")
	ErrPoolExceeded    = errors.New("allocations exceed pool")
	ErrMintUnset       = errors.New("token mint not configured in roster export")
	ErrRosterMiss      = errors.New("wallet not found on roster")
	ErrTablePaused     = errors.New("escrow table paused")
)
