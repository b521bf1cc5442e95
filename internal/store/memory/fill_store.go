// Package memory provides in-memory store implementations used by tests and
// local development. They mirror the Postgres stores' semantics, including
// conflict-key deduplication.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// FillStore is an in-memory implementation of domain.FillStore.
type FillStore struct {
	mu    sync.RWMutex
	fills []domain.Fill
	seen  map[string]struct{} // conflict-key set
	seq   int64
}

// NewFillStore creates an empty in-memory fill store.
func NewFillStore() *FillStore {
	return &FillStore{seen: make(map[string]struct{})}
}

// conflictKey matches the Postgres unique index on
// (transaction_time, user_address, coin, side, px, sz, sequence_number).
func conflictKey(f domain.Fill) string {
	return fmt.Sprintf("%d|%s|%s|%s|%v|%v|%d",
		f.TransactionTime.UnixNano(), f.UserAddress, f.Coin, f.Side, f.Px, f.Sz, f.SequenceNumber)
}

// UpsertBatch inserts fills, silently ignoring conflict-key duplicates. The
// returned count is the number of rows handled, including ignored ones.
func (s *FillStore) UpsertBatch(_ context.Context, fills []domain.Fill) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range fills {
		key := conflictKey(f)
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.seq++
		f.ID = s.seq
		if f.CreatedAt.IsZero() {
			f.CreatedAt = time.Now().UTC()
		}
		s.fills = append(s.fills, f)
	}
	return len(fills), nil
}

// CountByDate returns the number of stored fills for one date.
func (s *FillStore) CountByDate(_ context.Context, dateStr string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, f := range s.fills {
		if f.DateStr == dateStr {
			n++
		}
	}
	return n, nil
}

// All returns a copy of every stored fill, in insertion order. Test helper.
func (s *FillStore) All() []domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Fill, len(s.fills))
	copy(out, s.fills)
	return out
}

func inWindow(dateStr, fromDate, toDate string) bool {
	if fromDate != "" && dateStr < fromDate {
		return false
	}
	if toDate != "" && dateStr > toDate {
		return false
	}
	return true
}

// DailyVolume aggregates notional volume per date, ascending by date.
func (s *FillStore) DailyVolume(_ context.Context, fromDate, toDate string) ([]domain.DailyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDate := make(map[string]float64)
	for _, f := range s.fills {
		if inWindow(f.DateStr, fromDate, toDate) {
			byDate[f.DateStr] += f.Px * f.Sz
		}
	}

	out := make([]domain.DailyVolume, 0, len(byDate))
	for date, vol := range byDate {
		out = append(out, domain.DailyVolume{DateStr: date, VolumeUSD: vol})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateStr < out[j].DateStr })
	return out, nil
}

// UserDailyVolume aggregates notional volume per wallet per date, ascending
// by date then wallet.
func (s *FillStore) UserDailyVolume(_ context.Context, fromDate, toDate string) ([]domain.UserDailyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ wallet, date string }
	byKey := make(map[key]float64)
	for _, f := range s.fills {
		if inWindow(f.DateStr, fromDate, toDate) {
			byKey[key{f.UserAddress, f.DateStr}] += f.Px * f.Sz
		}
	}

	out := make([]domain.UserDailyVolume, 0, len(byKey))
	for k, vol := range byKey {
		out = append(out, domain.UserDailyVolume{UserAddress: k.wallet, DateStr: k.date, VolumeUSD: vol})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DateStr != out[j].DateStr {
			return out[i].DateStr < out[j].DateStr
		}
		return out[i].UserAddress < out[j].UserAddress
	})
	return out, nil
}

// TopWallets returns the limit highest-volume wallets in the window, ranked
// from 1.
func (s *FillStore) TopWallets(_ context.Context, fromDate, toDate string, limit int) ([]domain.WalletVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byWallet := make(map[string]float64)
	for _, f := range s.fills {
		if inWindow(f.DateStr, fromDate, toDate) {
			byWallet[f.UserAddress] += f.Px * f.Sz
		}
	}

	out := make([]domain.WalletVolume, 0, len(byWallet))
	for wallet, vol := range byWallet {
		out = append(out, domain.WalletVolume{UserAddress: wallet, TotalVolume: vol})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalVolume != out[j].TotalVolume {
			return out[i].TotalVolume > out[j].TotalVolume
		}
		return out[i].UserAddress < out[j].UserAddress
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// WalletStats returns one wallet's total volume and rank in the window.
// A wallet with no fills gets zero volume and rank 0.
func (s *FillStore) WalletStats(ctx context.Context, wallet, fromDate, toDate string) (domain.WalletVolume, error) {
	ranked, err := s.TopWallets(ctx, fromDate, toDate, 0)
	if err != nil {
		return domain.WalletVolume{}, err
	}
	for _, w := range ranked {
		if w.UserAddress == wallet {
			return w, nil
		}
	}
	return domain.WalletVolume{UserAddress: wallet}, nil
}

// TotalStats aggregates the window across all wallets.
func (s *FillStore) TotalStats(_ context.Context, fromDate, toDate string) (domain.TotalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats domain.TotalStats
	wallets := make(map[string]struct{})
	days := make(map[string]struct{})
	for _, f := range s.fills {
		if !inWindow(f.DateStr, fromDate, toDate) {
			continue
		}
		stats.TotalVolume += f.Px * f.Sz
		stats.TotalTrades++
		wallets[f.UserAddress] = struct{}{}
		days[f.DateStr] = struct{}{}
	}
	stats.UniqueWallets = int64(len(wallets))
	stats.TradingDays = int64(len(days))
	return stats, nil
}

// Verify interface compliance at compile time.
var _ domain.FillStore = (*FillStore)(nil)
