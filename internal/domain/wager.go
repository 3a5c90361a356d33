// Package domain defines the core types and interfaces for the wager escrow
// settlement engine and the pro-rata fee distributor. Implementations of the
// external collaborators (ledger, roster, match controller) live under
// internal/platform; the engine itself lives under internal/service.
package domain

import (
	"math/big"
	"time"
)

// SessionStatus is the lifecycle state of one wager session.
type SessionStatus string

const (
	StatusPendingAccept SessionStatus = "pending_accept"
	StatusFunding       SessionStatus = "funding"
	StatusActiveMatch   SessionStatus = "active_match"
	StatusSettled       SessionStatus = "settled"
	StatusExpired       SessionStatus = "expired"
	StatusDeclined      SessionStatus = "declined"
)

// Terminal reports whether the status is an end state. Terminal sessions hold
// no funds, own no timers, and are removed from the registry.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusSettled, StatusExpired, StatusDeclined:
		return true
	}
	return false
}

// Party is one side of a wager: a chat identity and its linked wallet from the
// roster export.
type Party struct {
	Identity string
	Wallet   string
}

// WagerTerms captures the economic parameters of a session. Amounts are whole
// tokens on the way in; all settlement math happens in base units.
type WagerTerms struct {
	Mint         string
	Decimals     int
	AmountTokens int64 // per side, whole tokens
	FeeBps       int64
}

// AmountBase returns one side's stake in base units.
func (t WagerTerms) AmountBase() *big.Int {
	return WholeTokensToBase(t.AmountTokens, t.Decimals)
}

// PotBase returns the total pot (both sides) in base units.
func (t WagerTerms) PotBase() *big.Int {
	return new(big.Int).Mul(t.AmountBase(), big.NewInt(2))
}

// FeeBase returns floor(pot * feeBps / 10000) in base units.
func (t WagerTerms) FeeBase() *big.Int {
	fee := new(big.Int).Mul(t.PotBase(), big.NewInt(t.FeeBps))
	return fee.Quo(fee, big.NewInt(10000))
}

// WinnerPayoutBase returns pot minus fee in base units.
func (t WagerTerms) WinnerPayoutBase() *big.Int {
	return new(big.Int).Sub(t.PotBase(), t.FeeBase())
}

// WagerRecord is the persisted view of a session, written to the audit store
// on every lifecycle transition.
type WagerRecord struct {
	ID             string
	ChannelRef     string
	PartyA         Party
	PartyB         Party
	AmountTokens   int64
	FeeBps         int64
	Status         SessionStatus
	FundedA        bool
	FundedB        bool
	WinnerIdentity string
	Detail         string
	CreatedAt      time.Time
	AcceptedAt     *time.Time
	SettledAt      *time.Time
}

// MatchResult is the single outcome message delivered by the match controller
// once per match. An empty WinnerIdentity means a tie.
type MatchResult struct {
	WinnerIdentity string
	EndedByAdmin   bool
}

// MatchController is the external game engine. StartMatch hands both parties
// to the engine and returns a single-fire channel that will deliver exactly
// one MatchResult.
type MatchController interface {
	StartMatch(channelRef string, a, b Party) (<-chan MatchResult, error)
}

// Announcer renders session state transitions to the session's front-end
// channel. Implementations must never block settlement; errors are swallowed
// by the caller.
type Announcer interface {
	Announce(channelRef, message string)
}
