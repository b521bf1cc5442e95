package domain

import (
	"context"
	"io"
	"time"
)

// FillStore persists fills and serves the dashboard's aggregate reads.
// UpsertBatch writes one batch with insert-or-ignore-on-conflict semantics
// and returns the number of rows handled; replaying the same batch must not
// create duplicates.
type FillStore interface {
	UpsertBatch(ctx context.Context, fills []Fill) (int, error)
	CountByDate(ctx context.Context, dateStr string) (int64, error)

	DailyVolume(ctx context.Context, fromDate, toDate string) ([]DailyVolume, error)
	UserDailyVolume(ctx context.Context, fromDate, toDate string) ([]UserDailyVolume, error)
	TopWallets(ctx context.Context, fromDate, toDate string, limit int) ([]WalletVolume, error)
	WalletStats(ctx context.Context, wallet, fromDate, toDate string) (WalletVolume, error)
	TotalStats(ctx context.Context, fromDate, toDate string) (TotalStats, error)
}

// SyncStatusStore persists the singleton cursor record and the
// dates-with-errors ledger. Get returns ErrNotFound when the cursor row has
// not been provisioned.
type SyncStatusStore interface {
	Get(ctx context.Context) (SyncStatus, error)
	Update(ctx context.Context, upd SyncStatusUpdate) error

	RecordDateError(ctx context.Context, dateStr, msg string) error
	ClearDateError(ctx context.Context, dateStr string) error
	ListDateErrors(ctx context.Context, limit int) ([]DateError, error)
}

// LockManager provides distributed mutual exclusion. Acquire returns
// ErrLockHeld when another holder owns the key; the returned unlock function
// is safe to call more than once.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
