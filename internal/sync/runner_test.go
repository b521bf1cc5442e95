package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscope/fillsync/internal/config"
	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/feed"
	"github.com/hyperscope/fillsync/internal/store/memory"
)

// fakeFeed serves canned CSV per date. Dates absent from both maps behave
// like upstream 404s.
type fakeFeed struct {
	mu      sync.Mutex
	csvs    map[string]string
	errs    map[string]error
	fetched []string
}

func (f *fakeFeed) FetchDay(_ context.Context, date string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fetched = append(f.fetched, date)
	if err, ok := f.errs[date]; ok {
		return "", false, err
	}
	if csv, ok := f.csvs[date]; ok {
		return csv, true, nil
	}
	return "", false, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// dayCSV builds a snapshot whose row timestamps fall inside the given date,
// as real feed files do. Rows from different dates must differ on the
// natural key, otherwise the upsert path would collapse them.
func dayCSV(dateStr string, rows int) string {
	base := date(dateStr).UnixMilli()
	out := "time,user,coin,side,px,sz,crossed,isTrigger\n"
	for i := 0; i < rows; i++ {
		out += fmt.Sprintf("%d,0xwallet%02d,BTC,Bid,91000,1,true,false\n", base+int64(i)*1000, i)
	}
	return out
}

type runnerFixture struct {
	runner   *Runner
	feed     *fakeFeed
	fills    *memory.FillStore
	status   *memory.SyncStatusStore
	notifier *fakeNotifier
}

func newRunnerFixture(t *testing.T, lastSynced, now string) *runnerFixture {
	t.Helper()

	f := &fakeFeed{csvs: map[string]string{}, errs: map[string]error{}}
	fills := memory.NewFillStore()
	status := memory.NewSyncStatusStore()
	if lastSynced != "" {
		status.Seed(date(lastSynced))
	}
	notifier := &fakeNotifier{}

	clock := date(now).Add(12 * time.Hour)
	runner := NewRunner(RunnerOptions{
		Feed:           f,
		Parse:          feed.ParseFills,
		Upserter:       NewUpserter(fills, 100, config.DedupeOccurrences, testLogger()),
		Status:         status,
		Lock:           memory.NewLockManager(),
		Notifier:       notifier,
		BuilderAddress: "0xbuilder",
		LockTTL:        time.Minute,
		MaxSeqWarn:     10,
		Logger:         testLogger(),
		Now:            func() time.Time { return clock },
	})

	return &runnerFixture{runner: runner, feed: f, fills: fills, status: status, notifier: notifier}
}

func TestRun_HappyPath(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")
	fx.feed.csvs["2025-11-30"] = dayCSV("2025-11-30", 3)
	fx.feed.csvs["2025-12-01"] = dayCSV("2025-12-01", 2)
	fx.feed.csvs["2025-12-02"] = dayCSV("2025-12-02", 5)

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalDates)
	assert.Equal(t, 3, result.ProcessedDates)
	assert.Equal(t, 10, result.TotalFills)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "2025-11-30", result.StartDate)
	assert.Equal(t, "2025-12-02", result.EndDate)

	status, err := fx.status.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, status.LastSyncStatus)
	assert.Equal(t, "2025-12-02", status.LastSyncedDate.Format("2006-01-02"))
	require.NotNil(t, status.LastSyncCompletedAt)

	assert.Len(t, fx.fills.All(), 10)
	assert.Empty(t, fx.notifier.events)
}

func TestRun_PartialFailureIsolatesDates(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")
	fx.feed.csvs["2025-11-30"] = dayCSV("2025-11-30", 3)
	fx.feed.errs["2025-12-01"] = &domain.FetchError{URL: "u", StatusCode: 500}
	fx.feed.csvs["2025-12-02"] = dayCSV("2025-12-02", 5)

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	// One date failing is a degraded run, not a failed one.
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalDates)
	assert.Equal(t, 2, result.ProcessedDates)
	assert.Equal(t, 8, result.TotalFills)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "2025-12-01")

	// Dates after the failure were still attempted.
	assert.Contains(t, fx.feed.fetched, "2025-12-02")

	// Cursor advances past the failed date; the ledger records it.
	status, err := fx.status.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, status.LastSyncStatus)
	assert.Equal(t, "2025-12-02", status.LastSyncedDate.Format("2006-01-02"))
	require.NotNil(t, status.ErrorMessage)

	ledger, err := fx.status.ListDateErrors(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "2025-12-01", ledger[0].DateStr)

	assert.Equal(t, []string{"sync_partial"}, fx.notifier.events)
}

func TestRun_MissingSnapshotIsNotAnError(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")
	fx.feed.csvs["2025-11-30"] = dayCSV("2025-11-30", 2)
	// 2025-12-01 and 2025-12-02 404.

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalDates)
	assert.Equal(t, 1, result.ProcessedDates)
	assert.Empty(t, result.Errors)

	status, err := fx.status.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-12-02", status.LastSyncedDate.Format("2006-01-02"),
		"cursor advances over empty dates")
}

func TestRun_CaughtUp(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-02", "2025-12-03")

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Zero(t, result.TotalDates)
	assert.Empty(t, fx.feed.fetched)

	status, err := fx.status.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.SyncStatusSuccess, status.LastSyncStatus)
	assert.Equal(t, "2025-12-02", status.LastSyncedDate.Format("2006-01-02"),
		"an empty range must not move the cursor")
}

func TestRun_ReplayIsIdempotent(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")
	fx.feed.csvs["2025-11-30"] = dayCSV("2025-11-30", 4)
	fx.feed.csvs["2025-12-01"] = dayCSV("2025-12-01", 4)
	fx.feed.csvs["2025-12-02"] = dayCSV("2025-12-02", 4)

	_, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	// Rewind the cursor and run again over the same files.
	fx.status.Seed(date("2025-11-29"))
	_, err = fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, fx.fills.All(), 12, "replay must not create duplicates")
}

func TestRun_IdenticalRowsAcrossDatesCollapse(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")

	// The same row republished in two consecutive snapshots shares the
	// natural key, so the second copy is ignored on upsert.
	row := "1764460800000,0xwallet01,BTC,Bid,91000,1,true,false\n"
	header := "time,user,coin,side,px,sz,crossed,isTrigger\n"
	fx.feed.csvs["2025-11-30"] = header + row
	fx.feed.csvs["2025-12-01"] = header + row

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalFills, "both rows are handled")
	assert.Len(t, fx.fills.All(), 1, "only one copy is stored")
}

func TestRun_DuplicateFeedRowsAreKept(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-01", "2025-12-03")
	row := "1764460800000,0xwallet01,BTC,Bid,91000,1,true,false\n"
	fx.feed.csvs["2025-12-02"] = "time,user,coin,side,px,sz,crossed,isTrigger\n" + row + row

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalFills)
	stored := fx.fills.All()
	require.Len(t, stored, 2)
	assert.Equal(t, stored[0].OriginalDataHash, stored[1].OriginalDataHash)
	assert.NotEqual(t, stored[0].SequenceNumber, stored[1].SequenceNumber)
}

func TestRun_MissingCursorIsFatal(t *testing.T) {
	fx := newRunnerFixture(t, "", "2025-12-03") // unseeded status store

	_, err := fx.runner.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, []string{"sync_failed"}, fx.notifier.events)
}

func TestRun_LockHeld(t *testing.T) {
	fx := newRunnerFixture(t, "2025-11-29", "2025-12-03")

	locks := memory.NewLockManager()
	unlock, err := locks.Acquire(context.Background(), lockKey, time.Minute)
	require.NoError(t, err)
	defer unlock()

	fx.runner.lock = locks
	_, err = fx.runner.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// No status transition happened.
	status, getErr := fx.status.Get(context.Background())
	require.NoError(t, getErr)
	assert.Equal(t, domain.SyncStatusSuccess, status.LastSyncStatus)
}

func TestRun_ParseFailureRecordedPerDate(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-01", "2025-12-03")
	fx.feed.csvs["2025-12-02"] = "time,user,coin,side,px,sz,crossed,isTrigger\nbadtime,0xw,BTC,Bid,1,1,true,false\n"

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "2025-12-02")

	ledger, err := fx.status.ListDateErrors(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
}

func TestResyncDate_RecoversFailedDate(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-01", "2025-12-03")
	fx.feed.errs["2025-12-02"] = errors.New("upstream hiccup")

	result, err := fx.runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)

	// Upstream recovers; the operator resyncs the single date.
	delete(fx.feed.errs, "2025-12-02")
	fx.feed.csvs["2025-12-02"] = dayCSV("2025-12-02", 3)

	n, err := fx.runner.ResyncDate(context.Background(), "2025-12-02")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ledger, err := fx.status.ListDateErrors(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, ledger, "successful resync clears the ledger entry")

	count, err := fx.fills.CountByDate(context.Background(), "2025-12-02")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestResyncDate_InvalidDate(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-01", "2025-12-03")

	_, err := fx.runner.ResyncDate(context.Background(), "12/02/2025")
	require.Error(t, err)
}

func TestResyncDate_FailureRecorded(t *testing.T) {
	fx := newRunnerFixture(t, "2025-12-01", "2025-12-03")
	fx.feed.errs["2025-11-15"] = errors.New("still broken")

	_, err := fx.runner.ResyncDate(context.Background(), "2025-11-15")
	require.Error(t, err)

	ledger, lerr := fx.status.ListDateErrors(context.Background(), 0)
	require.NoError(t, lerr)
	require.Len(t, ledger, 1)
	assert.Equal(t, "2025-11-15", ledger[0].DateStr)
}
