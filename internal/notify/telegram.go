package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// telegramAPI is the Bot API base URL.
const telegramAPI = "https://api.telegram.org"

// TelegramSender delivers operator alerts to a Telegram chat through a bot.
type TelegramSender struct {
	botToken string
	chat     string
	client   *http.Client
}

// NewTelegramSender creates a sender posting to the given chat id.
func NewTelegramSender(botToken, chat string) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		chat:     chat,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one message via the sendMessage endpoint. A non-empty title
// becomes a bold first line.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	text := message
	if title != "" {
		text = fmt.Sprintf("*%s*\n%s", title, message)
	}

	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chat,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("telegram: encode message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: post message: %w", err)
	}
	defer resp.Body.Close()

	// The Bot API wraps every outcome in an {ok, description} envelope.
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&result); err != nil {
		return fmt.Errorf("telegram: decode response (status %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return fmt.Errorf("telegram: message rejected: %s", result.Description)
	}
	return nil
}

// Name identifies this sender in logs.
func (t *TelegramSender) Name() string {
	return "telegram"
}
