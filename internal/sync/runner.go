// Package sync implements the incremental synchronization pipeline: date
// range planning, per-date fetch/parse/upsert, and durable cursor tracking.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/feed"
	"github.com/hyperscope/fillsync/internal/notify"
)

// lockKey names the distributed lock that keeps orchestrator runs
// single-flight. Two overlapping triggers would otherwise read the same
// cursor and double-fetch the same date range.
const lockKey = "fills-sync"

// Feed fetches one day's decompressed CSV snapshot. The bool result is false
// when the feed has no data for that date.
type Feed interface {
	FetchDay(ctx context.Context, date string) (csvText string, found bool, err error)
}

// Parser turns CSV text into fills. Matches feed.ParseFills.
type Parser func(csvText, dateStr string) ([]domain.Fill, feed.ParseStats, error)

// Notifier delivers operator alerts. Satisfied by notify.Notifier.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunnerOptions bundles the runner's dependencies. Blob and Notifier are
// optional; BuilderAddress is only used for archive paths.
type RunnerOptions struct {
	Feed           Feed
	Parse          Parser
	Upserter       *Upserter
	Status         domain.SyncStatusStore
	Lock           domain.LockManager
	Blob           domain.BlobWriter
	Notifier       Notifier
	BuilderAddress string
	LockTTL        time.Duration
	MaxSeqWarn     int
	Logger         *slog.Logger

	// Now overrides the clock; nil means time.Now. Tests pin it.
	Now func() time.Time
}

// Runner is the sync orchestrator: a single-run state machine
// Idle -> Running -> {Success, Failed}. Dates are processed sequentially in
// ascending order; per-date failures are recorded and skipped, and only
// errors outside the per-date loop fail the run.
type Runner struct {
	feed       Feed
	parse      Parser
	upserter   *Upserter
	status     domain.SyncStatusStore
	lock       domain.LockManager
	blob       domain.BlobWriter
	notifier   Notifier
	builder    string
	lockTTL    time.Duration
	maxSeqWarn int
	logger     *slog.Logger
	now        func() time.Time
}

// NewRunner creates a Runner from the given options.
func NewRunner(opts RunnerOptions) *Runner {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	maxSeqWarn := opts.MaxSeqWarn
	if maxSeqWarn <= 0 {
		maxSeqWarn = 10
	}
	return &Runner{
		feed:       opts.Feed,
		parse:      opts.Parse,
		upserter:   opts.Upserter,
		status:     opts.Status,
		lock:       opts.Lock,
		blob:       opts.Blob,
		notifier:   opts.Notifier,
		builder:    opts.BuilderAddress,
		lockTTL:    lockTTL,
		maxSeqWarn: maxSeqWarn,
		logger:     opts.Logger.With(slog.String("component", "sync")),
		now:        now,
	}
}

// Run executes one full sync: read the cursor, plan the date range, process
// each date, and advance the cursor exactly once at the end. A run that hits
// per-date errors still reports Success=true with a populated Errors list;
// callers must inspect Errors, not just Success, to detect degraded runs.
//
// Returns domain.ErrLockHeld without touching any state when another run is
// in flight.
func (r *Runner) Run(ctx context.Context) (domain.SyncResult, error) {
	result := domain.SyncResult{Errors: []string{}}

	unlock, err := r.lock.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return result, domain.ErrLockHeld
		}
		return result, fmt.Errorf("sync: acquire lock: %w", err)
	}
	defer unlock()

	started := r.now().UTC()
	r.logger.InfoContext(ctx, "sync starting", slog.Time("started_at", started))

	// Mark the run as running before any network activity so a crash
	// mid-run is externally observable.
	running := domain.SyncStatusRunning
	if err := r.status.Update(ctx, domain.SyncStatusUpdate{
		LastSyncStartedAt: &started,
		LastSyncStatus:    &running,
	}); err != nil {
		return result, r.fail(ctx, &result, fmt.Errorf("sync: mark running: %w", err))
	}

	status, err := r.status.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			err = fmt.Errorf("%w: sync_status cursor row is not provisioned", domain.ErrConfiguration)
		}
		return result, r.fail(ctx, &result, err)
	}

	rng := ComputeRange(status.LastSyncedDate, r.now())
	result.TotalDates = len(rng.Dates)
	result.StartDate = rng.StartDate
	result.EndDate = rng.EndDate

	if len(rng.Dates) == 0 {
		r.logger.InfoContext(ctx, "sync already caught up",
			slog.String("last_synced", status.LastSyncedDate.Format(dateLayout)),
		)
		if err := r.complete(ctx, nil, nil); err != nil {
			return result, r.fail(ctx, &result, err)
		}
		result.Success = true
		return result, nil
	}

	r.logger.InfoContext(ctx, "sync range planned",
		slog.Int("dates", len(rng.Dates)),
		slog.String("start", rng.StartDate),
		slog.String("end", rng.EndDate),
	)

	for _, date := range rng.Dates {
		inserted, processed, dateErr := r.processDate(ctx, date)
		if dateErr != nil {
			msg := fmt.Sprintf("%s: %v", date, dateErr)
			result.Errors = append(result.Errors, msg)
			r.logger.ErrorContext(ctx, "date failed",
				slog.String("date", date),
				slog.String("error", dateErr.Error()),
			)
			if err := r.status.RecordDateError(ctx, date, dateErr.Error()); err != nil {
				r.logger.WarnContext(ctx, "recording date error failed",
					slog.String("date", date),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if !processed {
			// 404: valid empty day, skipped without error.
			continue
		}
		result.ProcessedDates++
		result.TotalFills += inserted
		if err := r.status.ClearDateError(ctx, date); err != nil {
			r.logger.WarnContext(ctx, "clearing date error failed",
				slog.String("date", date),
				slog.String("error", err.Error()),
			)
		}
	}

	// The cursor advances past every attempted date, including failed ones;
	// the date-error ledger is what keeps failed dates retryable.
	end, err := time.Parse(dateLayout, rng.EndDate)
	if err != nil {
		return result, r.fail(ctx, &result, fmt.Errorf("sync: parse end date: %w", err))
	}
	if err := r.complete(ctx, &end, result.Errors); err != nil {
		return result, r.fail(ctx, &result, err)
	}
	result.Success = true

	r.logger.InfoContext(ctx, "sync complete",
		slog.Int("total_dates", result.TotalDates),
		slog.Int("processed_dates", result.ProcessedDates),
		slog.Int("total_fills", result.TotalFills),
		slog.Int("errors", len(result.Errors)),
	)

	if len(result.Errors) > 0 && r.notifier != nil {
		_ = r.notifier.Notify(ctx, notify.EventSyncPartial, "Sync completed with errors",
			fmt.Sprintf("%d/%d dates failed: %s",
				len(result.Errors), result.TotalDates, strings.Join(result.Errors, "; ")))
	}

	return result, nil
}

// ResyncDate re-ingests a single date outside the cursor flow. It exists for
// dates the cursor has already advanced past: per-date failures are never
// retried automatically. The date-error ledger entry is cleared on success.
func (r *Runner) ResyncDate(ctx context.Context, date string) (int, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return 0, fmt.Errorf("sync: invalid date %q: %w", date, err)
	}

	unlock, err := r.lock.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return 0, domain.ErrLockHeld
		}
		return 0, fmt.Errorf("sync: acquire lock: %w", err)
	}
	defer unlock()

	inserted, processed, err := r.processDate(ctx, date)
	if err != nil {
		if recErr := r.status.RecordDateError(ctx, date, err.Error()); recErr != nil {
			r.logger.WarnContext(ctx, "recording date error failed",
				slog.String("date", date),
				slog.String("error", recErr.Error()),
			)
		}
		return 0, err
	}
	if !processed {
		r.logger.InfoContext(ctx, "resync: no data for date", slog.String("date", date))
	}
	if err := r.status.ClearDateError(ctx, date); err != nil {
		r.logger.WarnContext(ctx, "clearing date error failed",
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
	}
	return inserted, nil
}

// processDate runs fetch -> parse -> upsert for one date. processed is false
// when the feed had no data (404). Archive failures are logged, not
// propagated: losing a cold copy must not fail ingestion.
func (r *Runner) processDate(ctx context.Context, date string) (inserted int, processed bool, err error) {
	start := r.now()

	csvText, found, err := r.feed.FetchDay(ctx, date)
	if err != nil {
		return 0, false, err
	}
	if !found {
		r.logger.InfoContext(ctx, "date skipped, no data",
			slog.String("date", date),
			slog.Duration("elapsed", r.now().Sub(start)),
		)
		return 0, false, nil
	}

	if r.blob != nil {
		path := fmt.Sprintf("raw/%s/%s.csv", r.builder, date)
		if archErr := r.blob.Put(ctx, path, strings.NewReader(csvText), "text/csv"); archErr != nil {
			r.logger.WarnContext(ctx, "raw snapshot archive failed",
				slog.String("path", path),
				slog.String("error", archErr.Error()),
			)
		}
	}

	fills, stats, err := r.parse(csvText, date)
	if err != nil {
		return 0, false, err
	}
	if stats.MaxSequence > r.maxSeqWarn {
		r.logger.WarnContext(ctx, "anomalous duplicate rate in snapshot",
			slog.String("date", date),
			slog.Int("max_sequence", stats.MaxSequence),
			slog.Int("duplicate_rows", stats.DuplicateRows),
		)
	}

	inserted, err = r.upserter.Upsert(ctx, fills)
	if err != nil {
		return inserted, true, err
	}

	r.logger.InfoContext(ctx, "date ingested",
		slog.String("date", date),
		slog.Int("rows", stats.Rows),
		slog.Int("duplicate_rows", stats.DuplicateRows),
		slog.Int("inserted", inserted),
		slog.Duration("elapsed", r.now().Sub(start)),
	)
	return inserted, true, nil
}

// complete records the Success transition. lastSynced is nil when the cursor
// should not move (empty range); dateErrors are concatenated into the status
// row for operator visibility.
func (r *Runner) complete(ctx context.Context, lastSynced *time.Time, dateErrors []string) error {
	completed := r.now().UTC()
	success := domain.SyncStatusSuccess

	upd := domain.SyncStatusUpdate{
		LastSyncCompletedAt: &completed,
		LastSyncStatus:      &success,
	}
	if lastSynced != nil {
		upd.LastSyncedDate = lastSynced
	}
	if len(dateErrors) > 0 {
		msg := strings.Join(dateErrors, "; ")
		upd.ErrorMessage = &msg
	}
	if err := r.status.Update(ctx, upd); err != nil {
		return fmt.Errorf("sync: record completion: %w", err)
	}
	return nil
}

// fail records the Failed transition: cursor unchanged, error persisted. Any
// error on the status write itself is logged and swallowed so the original
// failure is what propagates.
func (r *Runner) fail(ctx context.Context, result *domain.SyncResult, cause error) error {
	result.Errors = append(result.Errors, cause.Error())

	completed := r.now().UTC()
	failed := domain.SyncStatusFailed
	msg := cause.Error()
	if err := r.status.Update(ctx, domain.SyncStatusUpdate{
		LastSyncCompletedAt: &completed,
		LastSyncStatus:      &failed,
		ErrorMessage:        &msg,
	}); err != nil {
		r.logger.ErrorContext(ctx, "recording failure status failed",
			slog.String("error", err.Error()),
		)
	}

	if r.notifier != nil {
		_ = r.notifier.Notify(ctx, notify.EventSyncFailed, "Sync failed", cause.Error())
	}
	return cause
}
