package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperscope/fillsync/internal/domain"
)

// Syncer runs sync operations. Satisfied by *sync.Runner.
type Syncer interface {
	Run(ctx context.Context) (domain.SyncResult, error)
	ResyncDate(ctx context.Context, date string) (int, error)
}

// SyncHandler serves the sync status, trigger, and resync endpoints.
type SyncHandler struct {
	syncer  Syncer
	status  domain.SyncStatusStore
	trigger func() // non-nil in full mode: enqueues an async scheduler run
	logger  *slog.Logger
}

// NewSyncHandler creates a SyncHandler over the given runner and status
// store.
func NewSyncHandler(syncer Syncer, status domain.SyncStatusStore, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		syncer: syncer,
		status: status,
		logger: logger.With(slog.String("handler", "sync")),
	}
}

// WithTrigger sets the scheduler's trigger function, enabling async=true on
// the trigger endpoint.
func (h *SyncHandler) WithTrigger(trigger func()) *SyncHandler {
	h.trigger = trigger
	return h
}

// syncStatusResponse is the JSON shape of the cursor record.
type syncStatusResponse struct {
	LastSyncedDate      string  `json:"lastSyncedDate"`
	LastSyncStartedAt   string  `json:"lastSyncStartedAt"`
	LastSyncCompletedAt *string `json:"lastSyncCompletedAt"`
	LastSyncStatus      string  `json:"lastSyncStatus"`
	ErrorMessage        *string `json:"errorMessage"`
	UpdatedAt           string  `json:"updatedAt"`
}

// Status returns the sync cursor record.
// GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.status.Get(r.Context())
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "sync status not provisioned")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get sync status failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load sync status")
		return
	}

	resp := syncStatusResponse{
		LastSyncedDate:    st.LastSyncedDate.Format(dateLayout),
		LastSyncStartedAt: st.LastSyncStartedAt.UTC().Format(time.RFC3339),
		LastSyncStatus:    st.LastSyncStatus,
		ErrorMessage:      st.ErrorMessage,
		UpdatedAt:         st.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if st.LastSyncCompletedAt != nil {
		s := st.LastSyncCompletedAt.UTC().Format(time.RFC3339)
		resp.LastSyncCompletedAt = &s
	}
	writeJSON(w, http.StatusOK, resp)
}

// Errors returns the dates-with-errors ledger.
// GET /api/sync/errors
func (h *SyncHandler) Errors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.status.ListDateErrors(r.Context(), 100)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list date errors failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load date errors")
		return
	}

	type entry struct {
		Date       string `json:"date"`
		Error      string `json:"error"`
		RecordedAt string `json:"recordedAt"`
	}
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, entry{
			Date:       e.DateStr,
			Error:      e.ErrorMessage,
			RecordedAt: e.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": out})
}

// Trigger runs one sync and returns its result. With async=true and a
// configured scheduler it enqueues a run instead and returns 202. A run
// already holding the lock yields 409.
// POST /api/sync/trigger
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("async") == "true" && h.trigger != nil {
		h.trigger()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	h.logger.InfoContext(r.Context(), "sync triggered via api")
	result, err := h.syncer.Run(r.Context())
	if errors.Is(err, domain.ErrLockHeld) {
		writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "triggered sync failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Resync re-ingests one date identified by the date query parameter.
// POST /api/sync/resync?date=YYYY-MM-DD
func (h *SyncHandler) Resync(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date query parameter is required")
		return
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	h.logger.InfoContext(r.Context(), "resync requested", slog.String("date", date))
	n, err := h.syncer.ResyncDate(r.Context(), date)
	if errors.Is(err, domain.ErrLockHeld) {
		writeError(w, http.StatusConflict, "a sync run is already in progress")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "resync failed",
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": date, "fills": n})
}
