package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperscope/fillsync/internal/domain"
	"github.com/hyperscope/fillsync/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSyncer struct {
	result    domain.SyncResult
	runErr    error
	resyncN   int
	resyncErr error
	lastDate  string
}

func (s *stubSyncer) Run(context.Context) (domain.SyncResult, error) {
	return s.result, s.runErr
}

func (s *stubSyncer) ResyncDate(_ context.Context, date string) (int, error) {
	s.lastDate = date
	return s.resyncN, s.resyncErr
}

func TestSyncStatus(t *testing.T) {
	status := memory.NewSyncStatusStore()
	status.Seed(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	h := NewSyncHandler(&stubSyncer{}, status, testLogger())

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp syncStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2025-12-01", resp.LastSyncedDate)
	assert.Equal(t, domain.SyncStatusSuccess, resp.LastSyncStatus)
}

func TestSyncStatus_NotProvisioned(t *testing.T) {
	h := NewSyncHandler(&stubSyncer{}, memory.NewSyncStatusStore(), testLogger())

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncErrors(t *testing.T) {
	status := memory.NewSyncStatusStore()
	require.NoError(t, status.RecordDateError(context.Background(), "2025-12-01", "boom"))
	h := NewSyncHandler(&stubSyncer{}, status, testLogger())

	rec := httptest.NewRecorder()
	h.Errors(rec, httptest.NewRequest(http.MethodGet, "/api/sync/errors", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2025-12-01")
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestSyncTrigger_ReturnsResult(t *testing.T) {
	syncer := &stubSyncer{result: domain.SyncResult{
		Success: true, TotalDates: 2, ProcessedDates: 2, TotalFills: 10, Errors: []string{},
	}}
	h := NewSyncHandler(syncer, memory.NewSyncStatusStore(), testLogger())

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.SyncResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 10, result.TotalFills)
}

func TestSyncTrigger_Conflict(t *testing.T) {
	h := NewSyncHandler(&stubSyncer{runErr: domain.ErrLockHeld}, memory.NewSyncStatusStore(), testLogger())

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/trigger", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSyncTrigger_Async(t *testing.T) {
	triggered := false
	h := NewSyncHandler(&stubSyncer{}, memory.NewSyncStatusStore(), testLogger()).
		WithTrigger(func() { triggered = true })

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/trigger?async=true", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, triggered)
}

func TestSyncResync(t *testing.T) {
	syncer := &stubSyncer{resyncN: 7}
	h := NewSyncHandler(syncer, memory.NewSyncStatusStore(), testLogger())

	rec := httptest.NewRecorder()
	h.Resync(rec, httptest.NewRequest(http.MethodPost, "/api/sync/resync?date=2025-12-01", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-12-01", syncer.lastDate)
	assert.Contains(t, rec.Body.String(), `"fills":7`)
}

func TestSyncResync_BadRequests(t *testing.T) {
	h := NewSyncHandler(&stubSyncer{}, memory.NewSyncStatusStore(), testLogger())

	for _, target := range []string{"/api/sync/resync", "/api/sync/resync?date=01-12-2025"} {
		rec := httptest.NewRecorder()
		h.Resync(rec, httptest.NewRequest(http.MethodPost, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestSyncResync_Failure(t *testing.T) {
	h := NewSyncHandler(&stubSyncer{resyncErr: errors.New("feed down")}, memory.NewSyncStatusStore(), testLogger())

	rec := httptest.NewRecorder()
	h.Resync(rec, httptest.NewRequest(http.MethodPost, "/api/sync/resync?date=2025-12-01", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
