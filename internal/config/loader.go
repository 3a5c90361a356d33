package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WAGERBOT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WAGERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
// Escrow table secrets are overridable per index: WAGERBOT_ESCROW_<N>_SECRET_B58.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "WAGERBOT_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.WSURL, "WAGERBOT_LEDGER_WS_URL")
	setDuration(&cfg.Ledger.Timeout, "WAGERBOT_LEDGER_TIMEOUT")

	// ── Roster ──
	setStr(&cfg.Roster.ExportURL, "WAGERBOT_ROSTER_EXPORT_URL")
	setStr(&cfg.Roster.SharedSecret, "WAGERBOT_ROSTER_SHARED_SECRET")
	setDuration(&cfg.Roster.CacheTTL, "WAGERBOT_ROSTER_CACHE_TTL")

	// ── Escrow table secrets ──
	for i := range cfg.Escrow.Tables {
		n := strconv.Itoa(i + 1)
		setStr(&cfg.Escrow.Tables[i].SecretJSON, "WAGERBOT_ESCROW_"+n+"_SECRET_JSON")
		setStr(&cfg.Escrow.Tables[i].SecretB58, "WAGERBOT_ESCROW_"+n+"_SECRET_B58")
		setStr(&cfg.Escrow.Tables[i].KeyPassword, "WAGERBOT_ESCROW_"+n+"_KEY_PASSWORD")
	}

	// ── Wager ──
	setInt64(&cfg.Wager.MinTokens, "WAGERBOT_WAGER_MIN_TOKENS")
	setInt64(&cfg.Wager.MaxTokens, "WAGERBOT_WAGER_MAX_TOKENS")
	setInt64(&cfg.Wager.FeeBps, "WAGERBOT_WAGER_FEE_BPS")
	setStr(&cfg.Wager.FeeWallet, "WAGERBOT_WAGER_FEE_WALLET")
	setDuration(&cfg.Wager.AcceptWindow, "WAGERBOT_WAGER_ACCEPT_WINDOW")
	setDuration(&cfg.Wager.FundWindow, "WAGERBOT_WAGER_FUND_WINDOW")
	setDuration(&cfg.Wager.PollInterval, "WAGERBOT_WAGER_POLL_INTERVAL")
	setInt64(&cfg.Wager.MinGasBalance, "WAGERBOT_WAGER_MIN_GAS_BALANCE")

	// ── Fees ──
	setBool(&cfg.Fees.Enabled, "WAGERBOT_FEES_ENABLED")
	setDuration(&cfg.Fees.Interval, "WAGERBOT_FEES_INTERVAL")
	setInt64(&cfg.Fees.MinPoolTokens, "WAGERBOT_FEES_MIN_POOL_TOKENS")
	setInt64(&cfg.Fees.PoolShareNum, "WAGERBOT_FEES_POOL_SHARE_NUM")
	setInt64(&cfg.Fees.PoolShareDen, "WAGERBOT_FEES_POOL_SHARE_DEN")
	setBool(&cfg.Fees.CarryRemainder, "WAGERBOT_FEES_CARRY_REMAINDER")
	setInt(&cfg.Fees.Concurrency, "WAGERBOT_FEES_CONCURRENCY")
	setStr(&cfg.Fees.StatePath, "WAGERBOT_FEES_STATE_PATH")
	setStr(&cfg.Fees.TreasurySecretJSON, "WAGERBOT_FEES_TREASURY_SECRET_JSON")
	setStr(&cfg.Fees.TreasurySecretB58, "WAGERBOT_FEES_TREASURY_SECRET_B58")
	setStr(&cfg.Fees.TreasuryKeyPath, "WAGERBOT_FEES_TREASURY_KEY_PATH")
	setStr(&cfg.Fees.TreasuryPassword, "WAGERBOT_FEES_TREASURY_KEY_PASSWORD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "WAGERBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "WAGERBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "WAGERBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WAGERBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WAGERBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WAGERBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WAGERBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WAGERBOT_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WAGERBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WAGERBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WAGERBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WAGERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WAGERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WAGERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WAGERBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WAGERBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WAGERBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "WAGERBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "WAGERBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WAGERBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "WAGERBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WAGERBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WAGERBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WAGERBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WAGERBOT_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "WAGERBOT_S3_RETENTION_DAYS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WAGERBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WAGERBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WAGERBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WAGERBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WAGERBOT_MODE")
	setStr(&cfg.LogLevel, "WAGERBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
