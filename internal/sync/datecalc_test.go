package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestComputeRange_MultiDayGap(t *testing.T) {
	// Cursor at Nov 29, clock at Dec 3: fetch Nov 30 through Dec 2.
	r := ComputeRange(date("2025-11-29"), date("2025-12-03").Add(10*time.Hour))

	assert.Equal(t, "2025-11-30", r.StartDate)
	assert.Equal(t, "2025-12-02", r.EndDate)
	assert.Equal(t, []string{"2025-11-30", "2025-12-01", "2025-12-02"}, r.Dates)
}

func TestComputeRange_CaughtUp(t *testing.T) {
	// Cursor already at yesterday: nothing to fetch.
	r := ComputeRange(date("2025-12-02"), date("2025-12-03").Add(23*time.Hour))

	assert.Empty(t, r.Dates)
}

func TestComputeRange_OneDayBehind(t *testing.T) {
	r := ComputeRange(date("2025-12-01"), date("2025-12-03"))

	require.Len(t, r.Dates, 1)
	assert.Equal(t, "2025-12-02", r.Dates[0])
	assert.Equal(t, r.StartDate, r.EndDate)
}

func TestComputeRange_NeverIncludesToday(t *testing.T) {
	now := time.Date(2025, 12, 3, 23, 59, 59, 0, time.UTC)
	r := ComputeRange(date("2025-11-01"), now)

	assert.Equal(t, "2025-12-02", r.EndDate)
	assert.NotContains(t, r.Dates, "2025-12-03")
}

func TestComputeRange_MonthBoundary(t *testing.T) {
	r := ComputeRange(date("2025-01-30"), date("2025-02-02"))

	assert.Equal(t, []string{"2025-01-31", "2025-02-01"}, r.Dates)
}

func TestComputeRange_UsesUTCCalendarDay(t *testing.T) {
	// 01:00 on Dec 3 in UTC+10 is still Dec 2 in UTC, so yesterday is Dec 1.
	zone := time.FixedZone("UTC+10", 10*3600)
	now := time.Date(2025, 12, 3, 1, 0, 0, 0, zone)

	r := ComputeRange(date("2025-11-30"), now)
	assert.Equal(t, "2025-12-01", r.EndDate)
}

func TestYesterdayUTC(t *testing.T) {
	now := time.Date(2025, 12, 3, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, "2025-12-02", YesterdayUTC(now))
}
