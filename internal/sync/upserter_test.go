package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscope/fillsync/internal/config"
	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeFills(n int) []domain.Fill {
	base := time.Date(2025, 11, 30, 12, 0, 0, 0, time.UTC)
	fills := make([]domain.Fill, n)
	for i := range fills {
		fills[i] = domain.Fill{
			TransactionTime:  base.Add(time.Duration(i) * time.Second),
			DateStr:          "2025-11-30",
			UserAddress:      fmt.Sprintf("0xwallet%04d", i),
			Coin:             "BTC",
			Side:             domain.SideBid,
			Px:               91000,
			Sz:               1,
			OriginalDataHash: fmt.Sprintf("hash-%04d", i),
			SequenceNumber:   1,
		}
	}
	return fills
}

func TestUpsert_SplitsIntoBatches(t *testing.T) {
	store := memory.NewFillStore()
	u := NewUpserter(store, 10, config.DedupeOccurrences, testLogger())

	n, err := u.Upsert(context.Background(), makeFills(25))
	require.NoError(t, err)
	assert.Equal(t, 25, n)
	assert.Len(t, store.All(), 25)
}

func TestUpsert_Empty(t *testing.T) {
	u := NewUpserter(memory.NewFillStore(), 10, config.DedupeOccurrences, testLogger())

	n, err := u.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_ReplayIsIdempotent(t *testing.T) {
	store := memory.NewFillStore()
	u := NewUpserter(store, 10, config.DedupeOccurrences, testLogger())
	fills := makeFills(15)

	_, err := u.Upsert(context.Background(), fills)
	require.NoError(t, err)
	_, err = u.Upsert(context.Background(), fills)
	require.NoError(t, err)

	assert.Len(t, store.All(), 15, "replaying a file must not duplicate rows")
}

func TestUpsert_OccurrencesModeKeepsRepeatedRows(t *testing.T) {
	store := memory.NewFillStore()
	u := NewUpserter(store, 10, config.DedupeOccurrences, testLogger())

	fills := makeFills(1)
	dup := fills[0]
	dup.SequenceNumber = 2
	fills = append(fills, dup)

	n, err := u.Upsert(context.Background(), fills)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.All(), 2, "distinct sequence numbers are distinct rows")
}

func TestUpsert_CollapseModeDropsRepeatedRows(t *testing.T) {
	store := memory.NewFillStore()
	u := NewUpserter(store, 10, config.DedupeCollapse, testLogger())

	fills := makeFills(1)
	dup := fills[0]
	dup.SequenceNumber = 2
	fills = append(fills, dup)

	n, err := u.Upsert(context.Background(), fills)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.All(), 1)
}

type failingFillStore struct {
	*memory.FillStore
	failAfter int
	calls     int
}

func (s *failingFillStore) UpsertBatch(ctx context.Context, fills []domain.Fill) (int, error) {
	s.calls++
	if s.calls > s.failAfter {
		return 0, errors.New("connection reset")
	}
	return s.FillStore.UpsertBatch(ctx, fills)
}

func TestUpsert_StopsOnBatchFailure(t *testing.T) {
	store := &failingFillStore{FillStore: memory.NewFillStore(), failAfter: 1}
	u := NewUpserter(store, 10, config.DedupeOccurrences, testLogger())

	n, err := u.Upsert(context.Background(), makeFills(25))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpsert)
	assert.Contains(t, err.Error(), "batch 2/3")
	assert.Equal(t, 10, n, "rows committed before the failure are reported")
	assert.Equal(t, 2, store.calls, "no batches attempted after a failure")
}
