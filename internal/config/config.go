// Package config defines the top-level configuration for the wager bot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WAGERBOT_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Roster   RosterConfig   `toml:"roster"`
	Escrow   EscrowConfig   `toml:"escrow"`
	Wager    WagerConfig    `toml:"wager"`
	Fees     FeesConfig     `toml:"fees"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig holds the custody-gateway RPC endpoints.
type LedgerConfig struct {
	RPCURL  string   `toml:"rpc_url"`
	WSURL   string   `toml:"ws_url"` // empty disables the account feed
	Timeout duration `toml:"timeout"`
}

// RosterConfig holds the roster export endpoint parameters.
type RosterConfig struct {
	ExportURL    string   `toml:"export_url"`
	SharedSecret string   `toml:"shared_secret"`
	CacheTTL     duration `toml:"cache_ttl"`
}

// EscrowTableConfig describes one escrow table: its channel and the custodial
// key that owns its funds. Exactly one of the key sources must be set.
type EscrowTableConfig struct {
	Name             string `toml:"name"`
	ChannelRef       string `toml:"channel_ref"`
	SecretJSON       string `toml:"secret_json"`
	SecretB58        string `toml:"secret_b58"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// AnnounceWebhook receives player-facing messages for this table's
	// channel.
	AnnounceWebhook string `toml:"announce_webhook"`
}

// EscrowConfig holds the escrow tables.
type EscrowConfig struct {
	Tables []EscrowTableConfig `toml:"tables"`
}

// WagerConfig holds wager session parameters.
type WagerConfig struct {
	MinTokens     int64    `toml:"min_tokens"`
	MaxTokens     int64    `toml:"max_tokens"`
	FeeBps        int64    `toml:"fee_bps"`
	FeeWallet     string   `toml:"fee_wallet"`
	AcceptWindow  duration `toml:"accept_window"`
	FundWindow    duration `toml:"fund_window"`
	PollInterval  duration `toml:"poll_interval"`
	SigFetchLimit int      `toml:"sig_fetch_limit"`
	// MinGasBalance pauses a table for new wagers when the escrow's native
	// balance (base units) drops below it.
	MinGasBalance int64 `toml:"min_gas_balance"`
}

// FeesConfig holds fee distribution parameters.
type FeesConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	MinPoolTokens int64    `toml:"min_pool_tokens"`
	// PoolShareNum/PoolShareDen set the distributable fraction of newly
	// accrued fees; the rest is retained.
	PoolShareNum int64 `toml:"pool_share_num"`
	PoolShareDen int64 `toml:"pool_share_den"`
	// CarryRemainder keeps the baseline untouched when the pool is below
	// MinPoolTokens so dust accumulates into the next run. The default
	// (false) advances the baseline and discards the dust; this is a product
	// policy choice, not a bug.
	CarryRemainder bool   `toml:"carry_remainder"`
	Concurrency    int    `toml:"concurrency"`
	StatePath      string `toml:"state_path"`
	// Treasury key must control the fee wallet.
	TreasurySecretJSON string `toml:"treasury_secret_json"`
	TreasurySecretB58  string `toml:"treasury_secret_b58"`
	TreasuryKeyPath    string `toml:"treasury_key_path"`
	TreasuryPassword   string `toml:"treasury_key_password"`
}

// PostgresConfig holds audit store connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds archive storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
}

// NotifyConfig holds operator alert channel credentials.
type NotifyConfig struct {
	TelegramToken     string `toml:"telegram_token"`
	TelegramChatID    string `toml:"telegram_chat_id"`
	DiscordWebhookURL string `toml:"discord_webhook_url"`
	// AnnounceFallbackURL receives player-facing messages for channels
	// without a table-level announce_webhook.
	AnnounceFallbackURL string   `toml:"announce_fallback_url"`
	Events              []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			Timeout: duration{30 * time.Second},
		},
		Roster: RosterConfig{
			CacheTTL: duration{30 * time.Second},
		},
		Wager: WagerConfig{
			MinTokens:     100,
			MaxTokens:     1_000_000,
			FeeBps:        100,
			AcceptWindow:  duration{2 * time.Minute},
			FundWindow:    duration{5 * time.Minute},
			PollInterval:  duration{3 * time.Second},
			SigFetchLimit: 25,
			MinGasBalance: 50_000_000,
		},
		Fees: FeesConfig{
			Enabled:       true,
			Interval:      duration{time.Hour},
			MinPoolTokens: 1,
			PoolShareNum:  2,
			PoolShareDen:  3,
			Concurrency:   6,
			StatePath:     "airdrop-state.json",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "wagerbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "wagerbot-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Notify: NotifyConfig{
			Events: []string{"wager_settled", "wager_refunded", "transfer_failed", "airdrop_completed", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"wager":   true,
	"airdrop": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: wager, airdrop, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if strings.TrimSpace(c.Ledger.RPCURL) == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if strings.TrimSpace(c.Roster.ExportURL) == "" {
		errs = append(errs, "roster: export_url must not be empty")
	}

	needsWager := mode == "wager" || mode == "full"
	if needsWager {
		if len(c.Escrow.Tables) == 0 {
			errs = append(errs, "escrow: at least one table must be configured for mode "+c.Mode)
		}
		for i, t := range c.Escrow.Tables {
			if t.ChannelRef == "" {
				errs = append(errs, fmt.Sprintf("escrow: tables[%d]: channel_ref must not be empty", i))
			}
			if t.SecretJSON == "" && t.SecretB58 == "" && t.EncryptedKeyPath == "" {
				errs = append(errs, fmt.Sprintf("escrow: tables[%d]: one of secret_json, secret_b58, encrypted_key_path must be set", i))
			}
			if t.EncryptedKeyPath != "" && t.KeyPassword == "" {
				errs = append(errs, fmt.Sprintf("escrow: tables[%d]: key_password is required when encrypted_key_path is set", i))
			}
		}
		if c.Wager.MinTokens <= 0 || c.Wager.MaxTokens < c.Wager.MinTokens {
			errs = append(errs, "wager: min_tokens must be > 0 and max_tokens >= min_tokens")
		}
		if c.Wager.FeeBps < 0 || c.Wager.FeeBps >= 10000 {
			errs = append(errs, fmt.Sprintf("wager: fee_bps must be 0-9999, got %d", c.Wager.FeeBps))
		}
		if c.Wager.FeeWallet == "" {
			errs = append(errs, "wager: fee_wallet must not be empty")
		}
		if c.Wager.PollInterval.Duration <= 0 {
			errs = append(errs, "wager: poll_interval must be > 0")
		}
		if c.Wager.FundWindow.Duration <= 0 || c.Wager.AcceptWindow.Duration <= 0 {
			errs = append(errs, "wager: accept_window and fund_window must be > 0")
		}
	}

	needsFees := c.Fees.Enabled && (mode == "airdrop" || mode == "full")
	if needsFees {
		if c.Wager.FeeWallet == "" {
			errs = append(errs, "fees: wager.fee_wallet must be set for distribution")
		}
		if c.Fees.Interval.Duration <= 0 {
			errs = append(errs, "fees: interval must be > 0")
		}
		if c.Fees.PoolShareNum <= 0 || c.Fees.PoolShareDen <= 0 || c.Fees.PoolShareNum > c.Fees.PoolShareDen {
			errs = append(errs, fmt.Sprintf("fees: pool share %d/%d must be a fraction in (0, 1]", c.Fees.PoolShareNum, c.Fees.PoolShareDen))
		}
		if c.Fees.Concurrency < 1 || c.Fees.Concurrency > 20 {
			errs = append(errs, fmt.Sprintf("fees: concurrency must be 1-20, got %d", c.Fees.Concurrency))
		}
		if c.Fees.StatePath == "" {
			errs = append(errs, "fees: state_path must not be empty")
		}
		if c.Fees.TreasurySecretJSON == "" && c.Fees.TreasurySecretB58 == "" && c.Fees.TreasuryKeyPath == "" {
			errs = append(errs, "fees: one of treasury_secret_json, treasury_secret_b58, treasury_key_path must be set")
		}
	}

	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be 0..pool_max_conns")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
