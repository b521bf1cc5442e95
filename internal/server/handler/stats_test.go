package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscope/fillsync/internal/analytics"
	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/store/memory"
)

func newStatsHandler(t *testing.T) (*StatsHandler, *memory.FillStore) {
	t.Helper()
	store := memory.NewFillStore()
	return NewStatsHandler(store, analytics.NewAggregator(store, 10), testLogger()), store
}

func seed(t *testing.T, store *memory.FillStore, wallet, dateStr string, px float64) {
	t.Helper()
	ts, err := time.Parse("2006-01-02", dateStr)
	require.NoError(t, err)
	_, err = store.UpsertBatch(context.Background(), []domain.Fill{{
		TransactionTime:  ts,
		DateStr:          dateStr,
		UserAddress:      wallet,
		Coin:             "BTC",
		Side:             domain.SideBid,
		Px:               px,
		Sz:               1,
		OriginalDataHash: wallet + dateStr,
		SequenceNumber:   1,
	}})
	require.NoError(t, err)
}

func TestStats(t *testing.T) {
	h, store := newStatsHandler(t)
	seed(t, store, "0xaaa", "2025-12-01", 1000)
	seed(t, store, "0xbbb", "2025-12-01", 500)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/stats?from=2025-12-01&to=2025-12-01", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Totals     domain.TotalStats     `json:"totals"`
		TopWallets []domain.WalletVolume `json:"topWallets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1500.0, resp.Totals.TotalVolume)
	assert.Equal(t, int64(2), resp.Totals.UniqueWallets)
	require.Len(t, resp.TopWallets, 2)
	assert.Equal(t, "0xaaa", resp.TopWallets[0].UserAddress)
	assert.Equal(t, 1, resp.TopWallets[0].Rank)
}

func TestStats_WalletParam(t *testing.T) {
	h, store := newStatsHandler(t)
	seed(t, store, "0xaaa", "2025-12-01", 1000)
	seed(t, store, "0xbbb", "2025-12-01", 500)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet,
		"/api/stats?from=2025-12-01&to=2025-12-01&wallet=0xBBB", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Wallet domain.WalletVolume `json:"wallet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "0xbbb", resp.Wallet.UserAddress, "wallet lookup is case-insensitive")
	assert.Equal(t, 2, resp.Wallet.Rank)
}

func TestStats_InvalidWindow(t *testing.T) {
	h, _ := newStatsHandler(t)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/stats?from=2025-12-02&to=2025-12-01", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestData(t *testing.T) {
	h, store := newStatsHandler(t)
	seed(t, store, "0xaaa", "2025-12-01", 1000)
	seed(t, store, "0xaaa", "2025-12-02", 400)

	rec := httptest.NewRecorder()
	h.Data(rec, httptest.NewRequest(http.MethodGet, "/api/data?from=2025-12-01&to=2025-12-02", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp analytics.VolumeData
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 2)
	assert.Equal(t, []string{"0xaaa"}, resp.TopWallets)
	assert.Equal(t, 1000.0, resp.Points[0].Wallets["top1"])
	assert.Equal(t, 400.0, resp.Points[1].Wallets["top1"])
}
