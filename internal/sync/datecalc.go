package sync

import "time"

// dateLayout is the canonical YYYY-MM-DD form used for partition keys and
// range boundaries throughout the pipeline.
const dateLayout = "2006-01-02"

// Range is the contiguous list of UTC calendar dates a sync run still needs
// to fetch. Dates is empty when the sync is already caught up; StartDate and
// EndDate are still populated for reporting.
type Range struct {
	StartDate string
	EndDate   string
	Dates     []string
}

// ComputeRange returns the dates from lastSynced+1 day through yesterday
// (UTC), inclusive. Data for "today" is never fetched: the feed's current
// day is incomplete. Pure function of its inputs; now is passed in so runs
// and tests share one clock reading.
func ComputeRange(lastSynced, now time.Time) Range {
	yesterday := midnightUTC(now).AddDate(0, 0, -1)
	start := midnightUTC(lastSynced).AddDate(0, 0, 1)

	r := Range{
		StartDate: start.Format(dateLayout),
		EndDate:   yesterday.Format(dateLayout),
	}

	for d := start; !d.After(yesterday); d = d.AddDate(0, 0, 1) {
		r.Dates = append(r.Dates, d.Format(dateLayout))
	}
	return r
}

// YesterdayUTC returns yesterday's UTC date in YYYY-MM-DD form.
func YesterdayUTC(now time.Time) string {
	return midnightUTC(now).AddDate(0, 0, -1).Format(dateLayout)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
