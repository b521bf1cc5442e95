package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// SyncStatusStore is an in-memory implementation of domain.SyncStatusStore.
// The zero value has no cursor row; call Seed to provision one the way the
// schema migration does.
type SyncStatusStore struct {
	mu     sync.RWMutex
	status *domain.SyncStatus
	errors map[string]domain.DateError // keyed by date_str
}

// NewSyncStatusStore creates an empty in-memory status store.
func NewSyncStatusStore() *SyncStatusStore {
	return &SyncStatusStore{errors: make(map[string]domain.DateError)}
}

// Seed provisions the singleton cursor row with the given last synced date.
func (s *SyncStatusStore) Seed(lastSyncedDate time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = &domain.SyncStatus{
		ID:             1,
		LastSyncedDate: lastSyncedDate,
		LastSyncStatus: domain.SyncStatusSuccess,
		UpdatedAt:      time.Now().UTC(),
	}
}

// Get returns the cursor record, or ErrNotFound when unprovisioned.
func (s *SyncStatusStore) Get(_ context.Context) (domain.SyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.status == nil {
		return domain.SyncStatus{}, domain.ErrNotFound
	}
	return *s.status, nil
}

// Update applies a partial update; nil fields are left unchanged. Updating an
// unprovisioned store is a no-op so status writes on a fatal path cannot mask
// the original failure.
func (s *SyncStatusStore) Update(_ context.Context, upd domain.SyncStatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == nil {
		return nil
	}
	if upd.LastSyncedDate != nil {
		s.status.LastSyncedDate = *upd.LastSyncedDate
	}
	if upd.LastSyncStartedAt != nil {
		s.status.LastSyncStartedAt = *upd.LastSyncStartedAt
	}
	if upd.LastSyncCompletedAt != nil {
		s.status.LastSyncCompletedAt = upd.LastSyncCompletedAt
	}
	if upd.LastSyncStatus != nil {
		s.status.LastSyncStatus = *upd.LastSyncStatus
	}
	if upd.ErrorMessage != nil {
		s.status.ErrorMessage = upd.ErrorMessage
	}
	s.status.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordDateError upserts a ledger entry for the date.
func (s *SyncStatusStore) RecordDateError(_ context.Context, dateStr, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.errors[dateStr] = domain.DateError{
		DateStr:      dateStr,
		ErrorMessage: msg,
		RecordedAt:   time.Now().UTC(),
	}
	return nil
}

// ClearDateError removes the ledger entry for the date, if any.
func (s *SyncStatusStore) ClearDateError(_ context.Context, dateStr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.errors, dateStr)
	return nil
}

// ListDateErrors returns ledger entries ascending by date, up to limit.
func (s *SyncStatusStore) ListDateErrors(_ context.Context, limit int) ([]domain.DateError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DateError, 0, len(s.errors))
	for _, e := range s.errors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateStr < out[j].DateStr })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Verify interface compliance at compile time.
var _ domain.SyncStatusStore = (*SyncStatusStore)(nil)
