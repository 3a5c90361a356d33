package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// DistributionStore implements domain.DistributionStore using PostgreSQL.
// Base-unit amounts travel as decimal strings into NUMERIC columns so
// arbitrary-precision values survive the round trip.
type DistributionStore struct {
	pool *pgxpool.Pool
}

// NewDistributionStore creates a new DistributionStore backed by the given
// connection pool.
func NewDistributionStore(pool *pgxpool.Pool) *DistributionStore {
	return &DistributionStore{pool: pool}
}

// RecordRun inserts a run summary and its per-recipient transfer outcomes in
// one transaction.
func (s *DistributionStore) RecordRun(ctx context.Context, run *domain.DistributionRun, transfers []domain.TransferOutcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin run insert: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO distribution_runs (
			id, observed_balance, delta, pool,
			recipients, sent_ok, sent_fail, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID,
		run.ObservedBalance.String(), run.Delta.String(), run.Pool.String(),
		run.Recipients, run.SentOK, run.SentFail, run.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert run %s: %w", run.ID, err)
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO distribution_transfers (run_id, wallet, amount, tx_id, error)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, wallet) DO NOTHING`
	for _, t := range transfers {
		batch.Queue(query, run.ID, t.Wallet, t.Amount.String(), t.TxID, t.Err)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range transfers {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("postgres: insert transfer %d of run %s: %w", i, run.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close transfer batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit run insert: %w", err)
	}
	return nil
}

// ListRunsBefore returns runs executed before cutoff, oldest first, for
// archival.
func (s *DistributionStore) ListRunsBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.DistributionRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, observed_balance::text, delta::text, pool::text,
			recipients, sent_ok, sent_fail, executed_at
		FROM distribution_runs
		WHERE executed_at < $1
		ORDER BY executed_at ASC
		LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.DistributionRun
	for rows.Next() {
		var r domain.DistributionRun
		var observed, delta, pool string
		if err := rows.Scan(
			&r.ID, &observed, &delta, &pool,
			&r.Recipients, &r.SentOK, &r.SentFail, &r.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		r.ObservedBalance, _ = new(big.Int).SetString(observed, 10)
		r.Delta, _ = new(big.Int).SetString(delta, 10)
		r.Pool, _ = new(big.Int).SetString(pool, 10)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan runs: %w", err)
	}
	return runs, nil
}

// DeleteRunsByIDs removes run rows (and their transfers via cascade) after
// archival.
func (s *DistributionStore) DeleteRunsByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM distribution_runs WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete runs: %w", err)
	}
	return nil
}

var _ domain.DistributionStore = (*DistributionStore)(nil)
