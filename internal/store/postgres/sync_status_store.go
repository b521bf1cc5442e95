package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperscope/fillsync/internal/domain"
)

// SyncStatusStore implements domain.SyncStatusStore using PostgreSQL. The
// cursor row is read and written by "most recent by id", matching the
// migration that seeds exactly one row.
type SyncStatusStore struct {
	pool *pgxpool.Pool
}

// NewSyncStatusStore creates a SyncStatusStore backed by the given pool.
func NewSyncStatusStore(pool *pgxpool.Pool) *SyncStatusStore {
	return &SyncStatusStore{pool: pool}
}

// Get returns the cursor record, or domain.ErrNotFound when the table is
// empty.
func (s *SyncStatusStore) Get(ctx context.Context) (domain.SyncStatus, error) {
	const query = `
		SELECT id, last_synced_date, last_sync_started_at,
			last_sync_completed_at, last_sync_status, error_message, updated_at
		FROM sync_status
		ORDER BY id DESC
		LIMIT 1`

	var st domain.SyncStatus
	err := s.pool.QueryRow(ctx, query).Scan(
		&st.ID, &st.LastSyncedDate, &st.LastSyncStartedAt,
		&st.LastSyncCompletedAt, &st.LastSyncStatus, &st.ErrorMessage, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SyncStatus{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.SyncStatus{}, fmt.Errorf("postgres: get sync status: %w", err)
	}
	return st, nil
}

// Update applies a partial update to the cursor record; nil fields are left
// unchanged via COALESCE. An error_message update replaces the stored value
// even when other fields stay put.
func (s *SyncStatusStore) Update(ctx context.Context, upd domain.SyncStatusUpdate) error {
	const query = `
		UPDATE sync_status SET
			last_synced_date = COALESCE($1, last_synced_date),
			last_sync_started_at = COALESCE($2, last_sync_started_at),
			last_sync_completed_at = COALESCE($3, last_sync_completed_at),
			last_sync_status = COALESCE($4, last_sync_status),
			error_message = CASE WHEN $5::text IS NULL THEN error_message ELSE $5 END,
			updated_at = NOW()
		WHERE id = (SELECT id FROM sync_status ORDER BY id DESC LIMIT 1)`

	if _, err := s.pool.Exec(ctx, query,
		upd.LastSyncedDate, upd.LastSyncStartedAt, upd.LastSyncCompletedAt,
		upd.LastSyncStatus, upd.ErrorMessage,
	); err != nil {
		return fmt.Errorf("postgres: update sync status: %w", err)
	}
	return nil
}

// RecordDateError upserts a ledger entry for the date.
func (s *SyncStatusStore) RecordDateError(ctx context.Context, dateStr, msg string) error {
	const query = `
		INSERT INTO sync_date_errors (date_str, error_message)
		VALUES ($1::date, $2)
		ON CONFLICT (date_str) DO UPDATE
		SET error_message = EXCLUDED.error_message, recorded_at = NOW()`

	if _, err := s.pool.Exec(ctx, query, dateStr, msg); err != nil {
		return fmt.Errorf("postgres: record date error for %s: %w", dateStr, err)
	}
	return nil
}

// ClearDateError removes the ledger entry for the date, if any.
func (s *SyncStatusStore) ClearDateError(ctx context.Context, dateStr string) error {
	if _, err := s.pool.Exec(ctx,
		"DELETE FROM sync_date_errors WHERE date_str = $1::date", dateStr,
	); err != nil {
		return fmt.Errorf("postgres: clear date error for %s: %w", dateStr, err)
	}
	return nil
}

// ListDateErrors returns ledger entries ascending by date, up to limit
// (limit <= 0 means all).
func (s *SyncStatusStore) ListDateErrors(ctx context.Context, limit int) ([]domain.DateError, error) {
	query := `
		SELECT to_char(date_str, 'YYYY-MM-DD'), error_message, recorded_at
		FROM sync_date_errors
		ORDER BY date_str`
	var args []any
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $1"
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list date errors: %w", err)
	}
	defer rows.Close()

	var out []domain.DateError
	for rows.Next() {
		var e domain.DateError
		if err := rows.Scan(&e.DateStr, &e.ErrorMessage, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan date error: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Verify interface compliance at compile time.
var _ domain.SyncStatusStore = (*SyncStatusStore)(nil)
