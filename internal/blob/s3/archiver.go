package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// archiveBatch bounds how many rows one archival pass moves.
const archiveBatch = 500

// Archiver moves terminal wagers and old distribution runs out of the primary
// store into JSONL objects on S3, then prunes the archived rows. A row is only
// deleted after its archive object has been uploaded.
type Archiver struct {
	writer    *Writer
	wagers    domain.WagerStore
	runs      domain.DistributionStore
	retention time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver that retires records older than retention.
// Either store may be nil to skip that record family.
func NewArchiver(writer *Writer, wagers domain.WagerStore, runs domain.DistributionStore, retention time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		wagers:    wagers,
		runs:      runs,
		retention: retention,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run executes ArchiveOnce on the given interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.ArchiveOnce(ctx); err != nil {
				a.logger.Error("archival pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ArchiveOnce archives one batch of each record family past retention.
func (a *Archiver) ArchiveOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-a.retention)

	if a.wagers != nil {
		n, err := a.archiveWagers(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			a.logger.Info("archived wagers", slog.Int("count", n))
		}
	}
	if a.runs != nil {
		n, err := a.archiveRuns(ctx, cutoff)
		if err != nil {
			return err
		}
		if n > 0 {
			a.logger.Info("archived distribution runs", slog.Int("count", n))
		}
	}
	return nil
}

func (a *Archiver) archiveWagers(ctx context.Context, cutoff time.Time) (int, error) {
	recs, err := a.wagers.ListTerminalBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list terminal wagers: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal wager archive: %w", err)
	}
	path := archivePath("wagers", time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload wager archive: %w", err)
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if err := a.wagers.DeleteByIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("s3blob: prune archived wagers: %w", err)
	}
	return len(recs), nil
}

func (a *Archiver) archiveRuns(ctx context.Context, cutoff time.Time) (int, error) {
	runs, err := a.runs.ListRunsBefore(ctx, cutoff, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list old runs: %w", err)
	}
	if len(runs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(runs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: marshal run archive: %w", err)
	}
	path := archivePath("distribution_runs", time.Now().UTC())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload run archive: %w", err)
	}

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	if err := a.runs.DeleteRunsByIDs(ctx, ids); err != nil {
		return 0, fmt.Errorf("s3blob: prune archived runs: %w", err)
	}
	return len(runs), nil
}

// archivePath builds the S3 key for an archive object, partitioned by
// year-month with a unique timestamp suffix so repeated passes in one month
// never overwrite each other.
//
//	archive/wagers/2026-08/20260830T120000Z.jsonl
func archivePath(kind string, now time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, now.Format("2006-01"), now.Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
