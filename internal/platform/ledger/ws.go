package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// AccountFeed subscribes to account notifications over the gateway websocket
// and invokes the handler whenever one of the watched accounts changes. The
// funding poll loop uses it as a hint to tick early; correctness never depends
// on it (the poll loop alone satisfies deposit detection).
type AccountFeed struct {
	wsURL    string
	accounts []string
	onNotify func(account string)
	logger   *slog.Logger
}

// NewAccountFeed creates a feed watching the given accounts.
func NewAccountFeed(wsURL string, accounts []string, onNotify func(account string), logger *slog.Logger) *AccountFeed {
	return &AccountFeed{
		wsURL:    wsURL,
		accounts: accounts,
		onNotify: onNotify,
		logger:   logger.With(slog.String("component", "account_feed")),
	}
}

// SetHandler attaches the notification handler. Must be called before Run.
func (f *AccountFeed) SetHandler(onNotify func(account string)) {
	f.onNotify = onNotify
}

// Run connects, subscribes to every watched account, and dispatches
// notifications until ctx is cancelled. Reconnects with backoff on disconnect.
func (f *AccountFeed) Run(ctx context.Context) error {
	if f.wsURL == "" || len(f.accounts) == 0 {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("account feed disconnected, reconnecting",
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// subscribeMsg is the subscription request envelope.
type subscribeMsg struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
}

// notifyMsg is the account-notification envelope.
type notifyMsg struct {
	Method string `json:"method"`
	Params struct {
		Account string `json:"account"`
	} `json:"params"`
}

func (f *AccountFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("ledger: ws dial: %w", err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for _, acct := range f.accounts {
		sub := subscribeMsg{Method: "accountSubscribe", Params: []string{acct}}
		if err := conn.WriteJSON(sub); err != nil {
			return fmt.Errorf("ledger: ws subscribe %s: %w", acct, err)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("ledger: ws read: %w", err)
		}

		var msg notifyMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			f.logger.Debug("skipping malformed ws message")
			continue
		}
		if msg.Method != "accountNotification" || msg.Params.Account == "" {
			continue
		}
		if f.onNotify != nil {
			f.onNotify(msg.Params.Account)
		}
	}
}
