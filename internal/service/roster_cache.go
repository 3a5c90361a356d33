package service

import (
	"context"
	"log/slog"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// CachedRoster fronts a RosterSource with a shared short-TTL export cache so
// the wager and distribution flows do not hammer the export endpoint. Cache
// failures degrade to direct fetches; writes are best-effort.
type CachedRoster struct {
	source domain.RosterSource
	cache  domain.ExportCache
	logger *slog.Logger
}

// NewCachedRoster wraps source with cache.
func NewCachedRoster(source domain.RosterSource, cache domain.ExportCache, logger *slog.Logger) *CachedRoster {
	return &CachedRoster{
		source: source,
		cache:  cache,
		logger: logger.With(slog.String("component", "roster_cache")),
	}
}

// FetchExport returns the cached export when fresh, otherwise fetches and
// repopulates the cache.
func (c *CachedRoster) FetchExport(ctx context.Context) (*domain.RosterExport, error) {
	if cached, err := c.cache.Get(ctx); err != nil {
		c.logger.Warn("export cache read failed", slog.String("error", err.Error()))
	} else if cached != nil {
		return cached, nil
	}

	export, err := c.source.FetchExport(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, export); err != nil {
		c.logger.Warn("export cache write failed", slog.String("error", err.Error()))
	}
	return export, nil
}

// PostUpdates passes write-backs straight through; updates are never cached.
func (c *CachedRoster) PostUpdates(ctx context.Context, updates []domain.RosterUpdate) error {
	return c.source.PostUpdates(ctx, updates)
}

var _ domain.RosterSource = (*CachedRoster)(nil)
