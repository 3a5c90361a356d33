package domain

import (
	"context"
	"math/big"
)

// TransferSigner signs a transfer intent on behalf of a custodial owner.
type TransferSigner interface {
	// Address returns the base58 owner address the signature authorizes.
	Address() string
	// Sign returns the signature over the canonical intent payload.
	Sign(payload []byte) []byte
}

// TransferRequest is a signed token transfer between wallet owners. The
// gateway resolves token accounts for both sides.
type TransferRequest struct {
	FromWallet string
	ToWallet   string
	Mint       string
	Amount     *big.Int // base units
	Signer     TransferSigner
}

// LedgerClient is the consumed value-transfer ledger interface. All methods
// are suspension points; everything else in the engine is synchronous.
type LedgerClient interface {
	// GetBalance returns the native (gas) balance of an address in base units.
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	// GetTokenAccountBalance returns a token account's balance in base units.
	GetTokenAccountBalance(ctx context.Context, account string) (*big.Int, error)
	// ListRecentTransactions returns the most recent transaction references
	// touching an address, newest first.
	ListRecentTransactions(ctx context.Context, address string, limit int) ([]TxRef, error)
	// GetTransactionDetail fetches full detail for one transaction.
	GetTransactionDetail(ctx context.Context, ref TxRef) (*TransactionDetail, error)
	// TransferToken submits a signed token transfer and returns the
	// transaction id.
	TransferToken(ctx context.Context, req TransferRequest) (string, error)
	// GetLedgerPosition returns the current ledger position (slot).
	GetLedgerPosition(ctx context.Context) (uint64, error)
	// ListTokenAccounts resolves every token account of the given mint owned
	// by owner, including standard-variant aliases.
	ListTokenAccounts(ctx context.Context, owner, mint string) ([]string, error)
	// GetTokenDecimals returns the authoritative decimal precision of a mint.
	GetTokenDecimals(ctx context.Context, mint string) (int, error)
}

// RosterRow is one participant row from the roster export. Balance is a
// decimal token string as exported; conversion to base units is exact.
type RosterRow struct {
	Identity string
	Wallet   string
	Balance  string
}

// RosterExport is the periodic participant export.
type RosterExport struct {
	TokenMint string
	Roster    []RosterRow
}

// WalletFor returns the wallet linked to an identity, or "" when the identity
// is not on the roster.
func (e *RosterExport) WalletFor(identity string) string {
	for _, row := range e.Roster {
		if row.Identity == identity && row.Wallet != "" {
			return row.Wallet
		}
	}
	return ""
}

// RosterUpdate is one write-back row posted to the roster source. Used by the
// identity-sync collaborator, not by the settlement core.
type RosterUpdate struct {
	Wallet    string `json:"wallet"`
	Locked    string `json:"locked"`
	Total     string `json:"total"`
	ManagerOK bool   `json:"managerTotalOk"`
}

// RosterSource is the consumed roster/export feed.
type RosterSource interface {
	FetchExport(ctx context.Context) (*RosterExport, error)
	PostUpdates(ctx context.Context, updates []RosterUpdate) error
}
