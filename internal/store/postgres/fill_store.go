package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hyperscope/fillsync/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given connection pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// UpsertBatch inserts fills using a pgx Batch. Rows that collide on the
// dedup key (transaction_time, user_address, coin, side, px, sz,
// sequence_number) are silently skipped via ON CONFLICT DO NOTHING, which is
// what makes file replays idempotent. Returns the number of rows handled,
// ignored conflicts included.
func (s *FillStore) UpsertBatch(ctx context.Context, fills []domain.Fill) (int, error) {
	if len(fills) == 0 {
		return 0, nil
	}

	const query = `
		INSERT INTO fills (
			transaction_time, date_str, user_address, coin, side,
			px, sz, crossed, is_trigger,
			special_trade_type, tif, counterparty,
			closed_pnl, twap_id, builder_fee,
			original_data_hash, sequence_number, raw_data
		) VALUES (
			$1, $2::date, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12,
			$13, $14, $15,
			$16, $17, $18
		) ON CONFLICT (transaction_time, user_address, coin, side, px, sz, sequence_number)
		DO NOTHING`

	batch := &pgx.Batch{}
	for _, f := range fills {
		batch.Queue(query,
			f.TransactionTime, f.DateStr, f.UserAddress, f.Coin, f.Side,
			f.Px, f.Sz, f.Crossed, f.IsTrigger,
			f.SpecialTradeType, f.Tif, f.Counterparty,
			f.ClosedPnl, f.TwapID, f.BuilderFee,
			f.OriginalDataHash, f.SequenceNumber, f.RawData,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range fills {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("postgres: insert fill batch item %d: %w", i, err)
		}
	}
	return len(fills), nil
}

// CountByDate returns the number of stored fills for one date.
func (s *FillStore) CountByDate(ctx context.Context, dateStr string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM fills WHERE date_str = $1::date", dateStr,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count fills for %s: %w", dateStr, err)
	}
	return n, nil
}

// windowClause appends optional from/to date bounds to a WHERE clause.
// Empty bounds are open-ended.
func windowClause(query string, fromDate, toDate string, args []any) (string, []any) {
	if fromDate != "" {
		args = append(args, fromDate)
		query += fmt.Sprintf(" AND date_str >= $%d::date", len(args))
	}
	if toDate != "" {
		args = append(args, toDate)
		query += fmt.Sprintf(" AND date_str <= $%d::date", len(args))
	}
	return query, args
}

// DailyVolume returns per-day notional volume in the window, ascending by
// date. volume_usd is a stored generated column (px * sz).
func (s *FillStore) DailyVolume(ctx context.Context, fromDate, toDate string) ([]domain.DailyVolume, error) {
	query := `
		SELECT to_char(date_str, 'YYYY-MM-DD'), SUM(volume_usd)
		FROM fills
		WHERE TRUE`
	query, args := windowClause(query, fromDate, toDate, nil)
	query += " GROUP BY date_str ORDER BY date_str"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: daily volume: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyVolume
	for rows.Next() {
		var v domain.DailyVolume
		if err := rows.Scan(&v.DateStr, &v.VolumeUSD); err != nil {
			return nil, fmt.Errorf("postgres: scan daily volume: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UserDailyVolume returns per-wallet per-day notional volume in the window,
// ascending by date then wallet.
func (s *FillStore) UserDailyVolume(ctx context.Context, fromDate, toDate string) ([]domain.UserDailyVolume, error) {
	query := `
		SELECT user_address, to_char(date_str, 'YYYY-MM-DD'), SUM(volume_usd)
		FROM fills
		WHERE TRUE`
	query, args := windowClause(query, fromDate, toDate, nil)
	query += " GROUP BY user_address, date_str ORDER BY date_str, user_address"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: user daily volume: %w", err)
	}
	defer rows.Close()

	var out []domain.UserDailyVolume
	for rows.Next() {
		var v domain.UserDailyVolume
		if err := rows.Scan(&v.UserAddress, &v.DateStr, &v.VolumeUSD); err != nil {
			return nil, fmt.Errorf("postgres: scan user daily volume: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// TopWallets returns the limit highest-volume wallets in the window, ranked
// from 1. Ties break on wallet address for a stable ordering.
func (s *FillStore) TopWallets(ctx context.Context, fromDate, toDate string, limit int) ([]domain.WalletVolume, error) {
	query := `
		SELECT user_address, SUM(volume_usd) AS total_volume,
			ROW_NUMBER() OVER (ORDER BY SUM(volume_usd) DESC, user_address) AS rank
		FROM fills
		WHERE TRUE`
	query, args := windowClause(query, fromDate, toDate, nil)
	query += " GROUP BY user_address ORDER BY total_volume DESC, user_address"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: top wallets: %w", err)
	}
	defer rows.Close()

	var out []domain.WalletVolume
	for rows.Next() {
		var w domain.WalletVolume
		if err := rows.Scan(&w.UserAddress, &w.TotalVolume, &w.Rank); err != nil {
			return nil, fmt.Errorf("postgres: scan top wallets: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// WalletStats returns one wallet's total volume and rank among all wallets
// in the window. A wallet with no fills gets zero volume and rank 0.
func (s *FillStore) WalletStats(ctx context.Context, wallet, fromDate, toDate string) (domain.WalletVolume, error) {
	query := `
		WITH ranked AS (
			SELECT user_address, SUM(volume_usd) AS total_volume,
				ROW_NUMBER() OVER (ORDER BY SUM(volume_usd) DESC, user_address) AS rank
			FROM fills
			WHERE TRUE`
	query, args := windowClause(query, fromDate, toDate, nil)
	args = append(args, wallet)
	query += fmt.Sprintf(`
			GROUP BY user_address
		)
		SELECT user_address, total_volume, rank FROM ranked WHERE user_address = $%d`, len(args))

	var w domain.WalletVolume
	err := s.pool.QueryRow(ctx, query, args...).Scan(&w.UserAddress, &w.TotalVolume, &w.Rank)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WalletVolume{UserAddress: wallet}, nil
	}
	if err != nil {
		return domain.WalletVolume{}, fmt.Errorf("postgres: wallet stats for %s: %w", wallet, err)
	}
	return w, nil
}

// TotalStats aggregates the window across all wallets.
func (s *FillStore) TotalStats(ctx context.Context, fromDate, toDate string) (domain.TotalStats, error) {
	query := `
		SELECT COALESCE(SUM(volume_usd), 0), COUNT(*),
			COUNT(DISTINCT user_address), COUNT(DISTINCT date_str)
		FROM fills
		WHERE TRUE`
	query, args := windowClause(query, fromDate, toDate, nil)

	var st domain.TotalStats
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&st.TotalVolume, &st.TotalTrades, &st.UniqueWallets, &st.TradingDays,
	)
	if err != nil {
		return domain.TotalStats{}, fmt.Errorf("postgres: total stats: %w", err)
	}
	return st, nil
}

// Verify interface compliance at compile time.
var _ domain.FillStore = (*FillStore)(nil)
