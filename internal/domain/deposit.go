package domain

import "math/big"

// TxRef identifies one historical ledger transaction together with its ledger
// position (slot). Position ordering is what the funding baseline check uses.
type TxRef struct {
	ID       string
	Position uint64
}

// TokenBalanceDelta is one token-account balance entry from a transaction's
// pre/post metadata. Owner is the account's owner wallet before the
// transaction executed.
type TokenBalanceDelta struct {
	Account string
	Owner   string
	Mint    string
	Pre     *big.Int
	Post    *big.Int
}

// Delta returns post minus pre.
func (d TokenBalanceDelta) Delta() *big.Int {
	return new(big.Int).Sub(d.Post, d.Pre)
}

// TransactionDetail is the full detail of one historical transaction as
// returned by the ledger.
type TransactionDetail struct {
	ID            string
	Position      uint64
	Succeeded     bool
	MemoPresent   bool
	BalanceDeltas []TokenBalanceDelta
	Signers       []string
}

// Payer identifies which party a deposit is attributed to.
type Payer int

const (
	PayerNone Payer = iota
	PayerA
	PayerB
)

// DepositExpectation describes what a valid funding deposit for one session
// looks like.
type DepositExpectation struct {
	// CustodialAccounts are the token accounts that alias the escrow owner
	// for the expected mint (token-account-standard variants).
	CustodialAccounts []string
	Mint              string
	PartyAWallet      string
	PartyBWallet      string
	ExpectedAmount    *big.Int // base units, exact
	// BaselinePosition is the ledger position captured at acceptance.
	// Transactions before it are ignored entirely.
	BaselinePosition uint64
}

// DepositResult is the detector's verdict. Detected with PayerNone means the
// deposit matched the expected amount but could not be attributed to either
// party; it must not mark anyone funded.
type DepositResult struct {
	Detected bool
	Payer    Payer
}
