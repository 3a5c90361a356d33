package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/valkzuh/wagerbot/internal/blob/s3"
	"github.com/valkzuh/wagerbot/internal/cache/redis"
	"github.com/valkzuh/wagerbot/internal/config"
	"github.com/valkzuh/wagerbot/internal/crypto"
	"github.com/valkzuh/wagerbot/internal/domain"
	"github.com/valkzuh/wagerbot/internal/notify"
	"github.com/valkzuh/wagerbot/internal/platform/ledger"
	"github.com/valkzuh/wagerbot/internal/platform/roster"
	"github.com/valkzuh/wagerbot/internal/service"
	"github.com/valkzuh/wagerbot/internal/store/file"
	"github.com/valkzuh/wagerbot/internal/store/postgres"
)

// Dependencies bundles every concrete collaborator the application modes need.
// Constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger domain.LedgerClient
	Roster domain.RosterSource

	WagerStore        domain.WagerStore
	DistributionStore domain.DistributionStore
	StateStore        domain.StateStore
	RunLock           domain.RunLock

	EscrowTables []*service.EscrowTable
	ChannelRefs  []string
	Treasury     *crypto.Keypair

	BlobWriter  *s3blob.Writer
	AccountFeed *ledger.AccountFeed

	Notifier  *notify.Notifier
	Announcer domain.Announcer
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Ledger gateway ---
	deps.Ledger = ledger.NewClient(cfg.Ledger.RPCURL, cfg.Ledger.Timeout.Duration)

	// --- Redis (run lock + roster export cache) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })
	deps.RunLock = redis.NewRunLock(redisClient)

	// --- Roster source behind the shared export cache ---
	rosterClient := roster.NewClient(cfg.Roster.ExportURL, cfg.Roster.SharedSecret)
	exportCache := redis.NewExportCache(redisClient, cfg.Roster.CacheTTL.Duration)
	deps.Roster = service.NewCachedRoster(rosterClient, exportCache, logger)

	// --- PostgreSQL (audit and history) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.WagerStore = postgres.NewWagerStore(pool)
		deps.DistributionStore = postgres.NewDistributionStore(pool)
	} else {
		deps.WagerStore = noopWagerStore{}
	}

	// --- Distributor baseline ---
	deps.StateStore = file.NewStateStore(cfg.Fees.StatePath)

	// --- Escrow keys ---
	announceWebhooks := make(map[string]string, len(cfg.Escrow.Tables))
	for i, t := range cfg.Escrow.Tables {
		kp, err := crypto.LoadKeypair(crypto.KeySource{
			SecretJSON:       t.SecretJSON,
			SecretB58:        t.SecretB58,
			EncryptedKeyPath: t.EncryptedKeyPath,
			KeyPassword:      t.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: escrow table %d (%s): %w", i, t.Name, err)
		}
		deps.EscrowTables = append(deps.EscrowTables, &service.EscrowTable{Signer: kp})
		deps.ChannelRefs = append(deps.ChannelRefs, t.ChannelRef)
		if t.AnnounceWebhook != "" {
			announceWebhooks[t.ChannelRef] = t.AnnounceWebhook
		}
	}

	// --- Treasury key for fee distribution ---
	if cfg.Fees.Enabled && hasTreasuryKey(cfg) {
		kp, err := crypto.LoadKeypair(crypto.KeySource{
			SecretJSON:       cfg.Fees.TreasurySecretJSON,
			SecretB58:        cfg.Fees.TreasurySecretB58,
			EncryptedKeyPath: cfg.Fees.TreasuryKeyPath,
			KeyPassword:      cfg.Fees.TreasuryPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
		}
		deps.Treasury = kp
	}

	// --- Websocket account feed (optional latency hint) ---
	if cfg.Ledger.WSURL != "" && len(deps.EscrowTables) > 0 {
		addrs := make([]string, len(deps.EscrowTables))
		for i, t := range deps.EscrowTables {
			addrs[i] = t.Signer.Address()
		}
		deps.AccountFeed = ledger.NewAccountFeed(cfg.Ledger.WSURL, addrs, nil, logger)
	}

	// --- S3 archive storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Operator notifications and channel announcer ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Announcer = notify.NewWebhookAnnouncer(announceWebhooks, cfg.Notify.AnnounceFallbackURL, logger)

	return deps, cleanup, nil
}

func hasTreasuryKey(cfg *config.Config) bool {
	return cfg.Fees.TreasurySecretJSON != "" || cfg.Fees.TreasurySecretB58 != "" || cfg.Fees.TreasuryKeyPath != ""
}

// noopWagerStore satisfies domain.WagerStore when the audit database is
// disabled. Lifecycle transitions are still logged.
type noopWagerStore struct{}

func (noopWagerStore) RecordCreated(context.Context, *domain.WagerRecord) error { return nil }
func (noopWagerStore) UpdateStatus(context.Context, string, domain.SessionStatus, string) error {
	return nil
}
func (noopWagerStore) UpdateFunding(context.Context, string, bool, bool) error { return nil }
func (noopWagerStore) SetWinner(context.Context, string, string) error         { return nil }
func (noopWagerStore) ListTerminalBefore(context.Context, time.Time, int) ([]domain.WagerRecord, error) {
	return nil, nil
}
func (noopWagerStore) DeleteByIDs(context.Context, []string) error { return nil }
