package domain

import "time"

// Fill side values as emitted by the upstream feed.
const (
	SideBid = "Bid"
	SideAsk = "Ask"
)

// Fill is one normalized trade execution record ingested from the builder
// fills feed. Fills are created during parsing of one day's CSV and are
// immutable afterwards: the upsert path never updates or deletes them.
type Fill struct {
	ID              int64
	TransactionTime time.Time
	DateStr         string // partition key, UTC, YYYY-MM-DD
	UserAddress     string // lower-cased hex
	Coin            string
	Side            string // "Bid" or "Ask"
	Px              float64
	Sz              float64
	Crossed         bool
	IsTrigger       bool

	// Optional feed columns; nil when the source field was empty.
	SpecialTradeType *string
	Tif              *string
	Counterparty     *string // lower-cased hex
	ClosedPnl        *float64
	TwapID           *int64
	BuilderFee       *float64

	// OriginalDataHash is a deterministic SHA-256 over the raw row's content
	// with field names sorted, so it is stable under column reordering.
	// Rows with identical economic content in the same file hash identically.
	OriginalDataHash string

	// SequenceNumber is a 1-based rank among rows sharing OriginalDataHash
	// within one file, assigned in file order. The feed occasionally
	// re-emits byte-identical rows; each occurrence is kept as its own
	// record rather than collapsed.
	SequenceNumber int

	// RawData preserves the original CSV row (column name -> raw value).
	RawData map[string]string

	CreatedAt time.Time
}

// Sync status values stored on the cursor record.
const (
	SyncStatusRunning = "running"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncStatus is the singleton sync cursor. LastSyncedDate is the last UTC
// calendar date whose data has been fully attempted; the next run starts at
// the following day. The cursor only moves forward.
type SyncStatus struct {
	ID                  int64
	LastSyncedDate      time.Time
	LastSyncStartedAt   time.Time
	LastSyncCompletedAt *time.Time
	LastSyncStatus      string
	ErrorMessage        *string
	UpdatedAt           time.Time
}

// SyncStatusUpdate is a partial update of the cursor record. Nil fields are
// left unchanged.
type SyncStatusUpdate struct {
	LastSyncedDate      *time.Time
	LastSyncStartedAt   *time.Time
	LastSyncCompletedAt *time.Time
	LastSyncStatus      *string
	ErrorMessage        *string
}

// DateError is one entry of the dates-with-errors ledger. A date that failed
// inside a run is still covered by the advanced cursor, so the ledger is the
// only durable record that it needs a manual resync.
type DateError struct {
	DateStr      string
	ErrorMessage string
	RecordedAt   time.Time
}

// SyncResult summarizes one orchestrator run for the caller. Success true
// with a non-empty Errors list means a partial-failure run: every date was
// attempted but some individually failed.
type SyncResult struct {
	Success        bool     `json:"success"`
	TotalDates     int      `json:"totalDates"`
	ProcessedDates int      `json:"processedDates"`
	TotalFills     int      `json:"totalFills"`
	Errors         []string `json:"errors"`
	StartDate      string   `json:"startDate,omitempty"`
	EndDate        string   `json:"endDate,omitempty"`
}

// DailyVolume is the per-day notional volume aggregate.
type DailyVolume struct {
	DateStr   string  `json:"dateStr"`
	VolumeUSD float64 `json:"volumeUsd"`
}

// UserDailyVolume is the per-wallet per-day notional volume aggregate.
type UserDailyVolume struct {
	UserAddress string  `json:"userAddress"`
	DateStr     string  `json:"dateStr"`
	VolumeUSD   float64 `json:"volumeUsd"`
}

// WalletVolume is a ranked wallet with its total notional volume over a
// query window.
type WalletVolume struct {
	UserAddress string  `json:"userAddress"`
	TotalVolume float64 `json:"totalVolume"`
	Rank        int     `json:"rank"`
}

// TotalStats aggregates a query window across all wallets.
type TotalStats struct {
	TotalVolume   float64 `json:"totalVolume"`
	TotalTrades   int64   `json:"totalTrades"`
	UniqueWallets int64   `json:"uniqueWallets"`
	TradingDays   int64   `json:"tradingDays"`
}
