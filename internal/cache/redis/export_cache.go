package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/valkzuh/wagerbot/internal/domain"
)

const exportKey = "roster:export"

// ExportCache implements domain.ExportCache using a single JSON-serialized
// Redis key with a short TTL. A cache miss returns (nil, nil); callers fall
// through to the roster endpoint.
type ExportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewExportCache creates an ExportCache backed by the given Client.
func NewExportCache(c *Client, ttl time.Duration) *ExportCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ExportCache{rdb: c.Underlying(), ttl: ttl}
}

// Get retrieves the cached export, or nil when the key has expired.
func (ec *ExportCache) Get(ctx context.Context) (*domain.RosterExport, error) {
	data, err := ec.rdb.Get(ctx, exportKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: get roster export: %w", err)
	}

	var export domain.RosterExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, fmt.Errorf("redis: unmarshal roster export: %w", err)
	}
	return &export, nil
}

// Set stores the export with the configured TTL.
func (ec *ExportCache) Set(ctx context.Context, export *domain.RosterExport) error {
	data, err := json.Marshal(export)
	if err != nil {
		return fmt.Errorf("redis: marshal roster export: %w", err)
	}
	if err := ec.rdb.Set(ctx, exportKey, data, ec.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set roster export: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ExportCache = (*ExportCache)(nil)
