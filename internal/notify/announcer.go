package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// announceTimeout bounds one announcement delivery.
const announceTimeout = 10 * time.Second

// WebhookAnnouncer implements domain.Announcer by posting session messages to
// a Discord webhook per channel reference. Announcements are fire-and-forget;
// delivery failures are logged and never reach the settlement path.
type WebhookAnnouncer struct {
	senders  map[string]*DiscordSender // channelRef -> webhook
	fallback *DiscordSender
	logger   *slog.Logger
}

// NewWebhookAnnouncer maps channel references to webhook URLs. fallbackURL
// (optional) receives messages for unmapped channels.
func NewWebhookAnnouncer(webhooks map[string]string, fallbackURL string, logger *slog.Logger) *WebhookAnnouncer {
	a := &WebhookAnnouncer{
		senders: make(map[string]*DiscordSender, len(webhooks)),
		logger:  logger.With(slog.String("component", "announcer")),
	}
	for ref, url := range webhooks {
		if url != "" {
			a.senders[ref] = NewDiscordSender(url)
		}
	}
	if fallbackURL != "" {
		a.fallback = NewDiscordSender(fallbackURL)
	}
	return a
}

// Announce posts one message to the channel's webhook.
func (a *WebhookAnnouncer) Announce(channelRef, message string) {
	sender := a.senders[channelRef]
	if sender == nil {
		sender = a.fallback
	}
	if sender == nil {
		a.logger.Debug("no webhook for channel", slog.String("channel", channelRef))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()
	if err := sender.Send(ctx, "", message); err != nil {
		a.logger.Warn("announcement failed",
			slog.String("channel", channelRef),
			slog.String("error", err.Error()),
		)
	}
}

var _ domain.Announcer = (*WebhookAnnouncer)(nil)
