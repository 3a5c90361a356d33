package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/valkzuh/wagerbot/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

const wagerSelectCols = `id, channel_ref, party_a_identity, party_a_wallet,
	party_b_identity, party_b_wallet, amount_tokens, fee_bps, status,
	funded_a, funded_b, winner_identity, detail, created_at, accepted_at, settled_at`

func scanWagerRows(rows pgx.Rows) ([]domain.WagerRecord, error) {
	var recs []domain.WagerRecord
	for rows.Next() {
		var r domain.WagerRecord
		var status string
		if err := rows.Scan(
			&r.ID, &r.ChannelRef,
			&r.PartyA.Identity, &r.PartyA.Wallet,
			&r.PartyB.Identity, &r.PartyB.Wallet,
			&r.AmountTokens, &r.FeeBps, &status,
			&r.FundedA, &r.FundedB, &r.WinnerIdentity, &r.Detail,
			&r.CreatedAt, &r.AcceptedAt, &r.SettledAt,
		); err != nil {
			return nil, err
		}
		r.Status = domain.SessionStatus(status)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// RecordCreated inserts the initial audit row for a new session.
func (s *WagerStore) RecordCreated(ctx context.Context, rec *domain.WagerRecord) error {
	const query = `
		INSERT INTO wagers (
			id, channel_ref, party_a_identity, party_a_wallet,
			party_b_identity, party_b_wallet, amount_tokens, fee_bps,
			status, funded_a, funded_b, winner_identity, detail,
			created_at, accepted_at, settled_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.ChannelRef,
		rec.PartyA.Identity, rec.PartyA.Wallet,
		rec.PartyB.Identity, rec.PartyB.Wallet,
		rec.AmountTokens, rec.FeeBps,
		string(rec.Status), rec.FundedA, rec.FundedB,
		rec.WinnerIdentity, rec.Detail,
		rec.CreatedAt, rec.AcceptedAt, rec.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert wager %s: %w", rec.ID, err)
	}
	return nil
}

// UpdateStatus records a lifecycle transition. Terminal statuses also stamp
// settled_at; the funding transition stamps accepted_at.
func (s *WagerStore) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus, detail string) error {
	const query = `
		UPDATE wagers SET
			status = $2,
			detail = $3,
			accepted_at = CASE WHEN $2 = 'funding' THEN NOW() ELSE accepted_at END,
			settled_at = CASE WHEN $2 IN ('settled', 'expired', 'declined') THEN NOW() ELSE settled_at END
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), detail)
	if err != nil {
		return fmt.Errorf("postgres: update wager %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update wager %s status: %w", id, domain.ErrNotFound)
	}
	return nil
}

// UpdateFunding records the per-side funding flags.
func (s *WagerStore) UpdateFunding(ctx context.Context, id string, fundedA, fundedB bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wagers SET funded_a = $2, funded_b = $3 WHERE id = $1`,
		id, fundedA, fundedB,
	)
	if err != nil {
		return fmt.Errorf("postgres: update wager %s funding: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update wager %s funding: %w", id, domain.ErrNotFound)
	}
	return nil
}

// SetWinner records the settled winner.
func (s *WagerStore) SetWinner(ctx context.Context, id, winnerIdentity string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE wagers SET winner_identity = $2 WHERE id = $1`,
		id, winnerIdentity,
	)
	if err != nil {
		return fmt.Errorf("postgres: set wager %s winner: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: set wager %s winner: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListTerminalBefore returns terminal wagers settled before cutoff, oldest
// first, for archival.
func (s *WagerStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.WagerRecord, error) {
	query := `SELECT ` + wagerSelectCols + `
		FROM wagers
		WHERE status IN ('settled', 'expired', 'declined') AND settled_at < $1
		ORDER BY settled_at ASC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal wagers: %w", err)
	}
	defer rows.Close()

	recs, err := scanWagerRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal wagers: %w", err)
	}
	return recs, nil
}

// DeleteByIDs removes wager rows after archival.
func (s *WagerStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM wagers WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("postgres: delete wagers: %w", err)
	}
	return nil
}

var _ domain.WagerStore = (*WagerStore)(nil)
