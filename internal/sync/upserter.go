package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hyperscope/fillsync/internal/config"
	"github.com/hyperscope/fillsync/internal/domain"
)

// Upserter writes parsed fills to storage in fixed-size sequential batches.
// Batches are applied one at a time to keep backpressure on the database
// bounded and to make error attribution unambiguous: a failure identifies
// exactly which batch, hence roughly which row range, failed.
type Upserter struct {
	store     domain.FillStore
	batchSize int
	collapse  bool
	logger    *slog.Logger
}

// NewUpserter creates an Upserter. dedupeMode is one of
// config.DedupeOccurrences (store every repeated occurrence) or
// config.DedupeCollapse (drop rows with a sequence number above 1).
func NewUpserter(store domain.FillStore, batchSize int, dedupeMode string, logger *slog.Logger) *Upserter {
	return &Upserter{
		store:     store,
		batchSize: batchSize,
		collapse:  dedupeMode == config.DedupeCollapse,
		logger:    logger.With(slog.String("component", "upserter")),
	}
}

// Upsert writes fills in batches with insert-or-ignore-on-conflict
// semantics and returns the number of rows handled. On a batch failure it
// stops and returns an error wrapping domain.ErrUpsert; batches committed
// before the failure stay committed, so callers must not assume the date was
// fully ingested. Zero-length input is a no-op returning 0.
func (u *Upserter) Upsert(ctx context.Context, fills []domain.Fill) (int, error) {
	if u.collapse {
		fills = firstOccurrences(fills)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	totalBatches := (len(fills) + u.batchSize - 1) / u.batchSize
	total := 0

	for i := 0; i < len(fills); i += u.batchSize {
		end := min(i+u.batchSize, len(fills))
		batchNum := i/u.batchSize + 1

		n, err := u.store.UpsertBatch(ctx, fills[i:end])
		if err != nil {
			return total, fmt.Errorf("%w: batch %d/%d (rows %d-%d): %v",
				domain.ErrUpsert, batchNum, totalBatches, i, end-1, err)
		}
		total += n

		u.logger.DebugContext(ctx, "upserted batch",
			slog.Int("batch", batchNum),
			slog.Int("total_batches", totalBatches),
			slog.Int("rows", end-i),
		)
	}

	return total, nil
}

// firstOccurrences filters out repeated rows, keeping only sequence number 1
// of each hash group. Used by collapse mode; it undercounts volume when the
// feed legitimately reports the same trade twice.
func firstOccurrences(fills []domain.Fill) []domain.Fill {
	out := make([]domain.Fill, 0, len(fills))
	for _, f := range fills {
		if f.SequenceNumber <= 1 {
			out = append(out, f)
		}
	}
	return out
}
