// Package ledger implements the domain.LedgerClient interface against the
// custody gateway's JSON-RPC 2.0 endpoint, plus a websocket account feed used
// to wake funding pollers ahead of their next tick.
package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// Client is a JSON-RPC 2.0 client for the custody gateway.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a ledger Client for the given RPC endpoint.
func NewClient(rpcURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		rpcURL: strings.TrimRight(rpcURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// rpcRequest is the standard JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcError is the JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcResponse is the standard JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC round trip and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("ledger: encode %s request: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger: build %s request: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("ledger: %s: %w", method, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("ledger: read %s response: %w", method, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("ledger: %s: status %d: %s", method, httpResp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var resp rpcResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("ledger: decode %s response: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("ledger: %s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("ledger: decode %s result: %w", method, err)
		}
	}
	return nil
}

// parseAmount decodes a string-encoded base-unit amount.
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("ledger: invalid amount %q", s)
	}
	return n, nil
}

// GetBalance returns the native balance of an address in base units.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	if err := c.call(ctx, "getBalance", []any{address}, &result); err != nil {
		return nil, err
	}
	return parseAmount(result.Amount)
}

// GetTokenAccountBalance returns a token account's balance in base units.
func (c *Client) GetTokenAccountBalance(ctx context.Context, account string) (*big.Int, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	if err := c.call(ctx, "getTokenAccountBalance", []any{account}, &result); err != nil {
		return nil, err
	}
	return parseAmount(result.Amount)
}

// ListRecentTransactions returns recent transaction references for an address,
// newest first.
func (c *Client) ListRecentTransactions(ctx context.Context, address string, limit int) ([]domain.TxRef, error) {
	var result []struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
	}
	params := []any{address, map[string]any{"limit": limit}}
	if err := c.call(ctx, "listRecentTransactions", params, &result); err != nil {
		return nil, err
	}

	refs := make([]domain.TxRef, 0, len(result))
	for _, r := range result {
		if r.Signature == "" {
			continue
		}
		refs = append(refs, domain.TxRef{ID: r.Signature, Position: r.Slot})
	}
	return refs, nil
}

// txDetailJSON is the wire form of a transaction detail.
type txDetailJSON struct {
	Signature   string   `json:"signature"`
	Slot        uint64   `json:"slot"`
	Success     bool     `json:"success"`
	MemoPresent bool     `json:"memoPresent"`
	Signers     []string `json:"signers"`
	Balances    []struct {
		Account string `json:"account"`
		Owner   string `json:"owner"`
		Mint    string `json:"mint"`
		Pre     string `json:"pre"`
		Post    string `json:"post"`
	} `json:"balanceDeltas"`
}

// GetTransactionDetail fetches full detail for one transaction.
func (c *Client) GetTransactionDetail(ctx context.Context, ref domain.TxRef) (*domain.TransactionDetail, error) {
	var result txDetailJSON
	if err := c.call(ctx, "getTransactionDetail", []any{ref.ID}, &result); err != nil {
		return nil, err
	}

	detail := &domain.TransactionDetail{
		ID:          result.Signature,
		Position:    result.Slot,
		Succeeded:   result.Success,
		MemoPresent: result.MemoPresent,
		Signers:     result.Signers,
	}
	if detail.ID == "" {
		detail.ID = ref.ID
	}
	if detail.Position == 0 {
		detail.Position = ref.Position
	}

	for _, b := range result.Balances {
		pre, err := parseAmount(b.Pre)
		if err != nil {
			return nil, err
		}
		post, err := parseAmount(b.Post)
		if err != nil {
			return nil, err
		}
		detail.BalanceDeltas = append(detail.BalanceDeltas, domain.TokenBalanceDelta{
			Account: b.Account,
			Owner:   b.Owner,
			Mint:    b.Mint,
			Pre:     pre,
			Post:    post,
		})
	}
	return detail, nil
}

// TransferToken submits a signed transfer intent and returns the transaction
// id. The signature covers the canonical payload `from|to|mint|amount|nonce`
// so the gateway can verify the custodial owner authorized it.
func (c *Client) TransferToken(ctx context.Context, req domain.TransferRequest) (string, error) {
	if req.Signer == nil {
		return "", fmt.Errorf("ledger: transfer from %s: no signer", req.FromWallet)
	}
	if req.Signer.Address() != req.FromWallet {
		return "", fmt.Errorf("ledger: signer %s does not control %s", req.Signer.Address(), req.FromWallet)
	}

	nonce := time.Now().UnixNano()
	payload := fmt.Sprintf("%s|%s|%s|%s|%d", req.FromWallet, req.ToWallet, req.Mint, req.Amount.String(), nonce)
	sig := req.Signer.Sign([]byte(payload))

	params := map[string]any{
		"from":      req.FromWallet,
		"to":        req.ToWallet,
		"mint":      req.Mint,
		"amount":    req.Amount.String(),
		"nonce":     nonce,
		"signature": base64.StdEncoding.EncodeToString(sig),
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := c.call(ctx, "transferToken", params, &result); err != nil {
		return "", err
	}
	if result.Signature == "" {
		return "", fmt.Errorf("ledger: transfer to %s: empty transaction id", req.ToWallet)
	}
	return result.Signature, nil
}

// GetLedgerPosition returns the current ledger position (slot).
func (c *Client) GetLedgerPosition(ctx context.Context) (uint64, error) {
	var result struct {
		Slot uint64 `json:"slot"`
	}
	if err := c.call(ctx, "getLedgerPosition", nil, &result); err != nil {
		return 0, err
	}
	return result.Slot, nil
}

// ListTokenAccounts resolves every token account of the given mint owned by
// owner, including standard-variant aliases.
func (c *Client) ListTokenAccounts(ctx context.Context, owner, mint string) ([]string, error) {
	var result struct {
		Accounts []string `json:"accounts"`
	}
	if err := c.call(ctx, "listTokenAccounts", []any{owner, mint}, &result); err != nil {
		return nil, err
	}
	return result.Accounts, nil
}

// GetTokenDecimals returns the authoritative decimal precision of a mint.
func (c *Client) GetTokenDecimals(ctx context.Context, mint string) (int, error) {
	var result struct {
		Decimals int `json:"decimals"`
	}
	if err := c.call(ctx, "getTokenDecimals", []any{mint}, &result); err != nil {
		return 0, err
	}
	if result.Decimals < 0 || result.Decimals > 18 {
		return 0, fmt.Errorf("ledger: implausible decimals %d for mint %s", result.Decimals, mint)
	}
	return result.Decimals, nil
}

// Compile-time interface check.
var _ domain.LedgerClient = (*Client)(nil)
