// Package roster implements the domain.RosterSource interface against the
// spreadsheet export endpoint: a GET returning the participant roster and
// token configuration, and a shared-secret POST for write-backs.
package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// Client fetches the roster export over HTTP.
type Client struct {
	exportURL    string
	sharedSecret string
	httpClient   *http.Client
}

// NewClient creates a roster Client for the given export endpoint.
func NewClient(exportURL, sharedSecret string) *Client {
	return &Client{
		exportURL:    exportURL,
		sharedSecret: sharedSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// exportJSON is the wire form of the roster export.
type exportJSON struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Config struct {
		TokenMint string `json:"tokenMint"`
	} `json:"config"`
	Roster []struct {
		DiscordID string          `json:"discordId"`
		Wallet    string          `json:"wallet"`
		Balance   json.RawMessage `json:"balance"`
	} `json:"roster"`
}

// FetchExport retrieves and decodes the roster export. A placeholder token
// mint is rejected so a half-configured sheet can never drive distribution.
func (c *Client) FetchExport(ctx context.Context) (*domain.RosterExport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.exportURL, nil)
	if err != nil {
		return nil, fmt.Errorf("roster: build export request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster: fetch export: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("roster: export fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("roster: read export: %w", err)
	}

	var raw exportJSON
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("roster: decode export: %w", err)
	}
	if !raw.OK {
		msg := raw.Error
		if msg == "" {
			msg = "unknown"
		}
		return nil, fmt.Errorf("roster: export error: %s", msg)
	}

	mint := strings.TrimSpace(raw.Config.TokenMint)
	if mint == "" || strings.Contains(mint, "YOUR_TOKEN_MINT") {
		return nil, domain.ErrMintUnset
	}

	exp := &domain.RosterExport{TokenMint: mint}
	for _, row := range raw.Roster {
		id := strings.TrimSpace(row.DiscordID)
		wallet := strings.TrimSpace(row.Wallet)
		if id == "" && wallet == "" {
			continue
		}
		exp.Roster = append(exp.Roster, domain.RosterRow{
			Identity: id,
			Wallet:   wallet,
			Balance:  decodeBalance(row.Balance),
		})
	}
	return exp, nil
}

// decodeBalance accepts the export's balance cell as either a JSON number or
// a string and normalizes it to a decimal string. Malformed cells become "0";
// exact base-unit conversion happens downstream.
func decodeBalance(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "0"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "0"
		}
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return "0"
}

// postJSON is the write-back envelope.
type postJSON struct {
	Secret  string                `json:"secret"`
	Updates []domain.RosterUpdate `json:"updates"`
}

// PostUpdates posts write-back rows to the export endpoint. Used by the
// identity-sync collaborator, not the settlement core.
func (c *Client) PostUpdates(ctx context.Context, updates []domain.RosterUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	body, err := json.Marshal(postJSON{Secret: c.sharedSecret, Updates: updates})
	if err != nil {
		return fmt.Errorf("roster: encode updates: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.exportURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("roster: build post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("roster: post updates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("roster: post updates failed: status %d", resp.StatusCode)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("roster: decode post response: %w", err)
	}
	if !result.OK {
		return fmt.Errorf("roster: post updates rejected: %s", result.Error)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RosterSource = (*Client)(nil)
