package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hyperscope/fillsync/internal/analytics"
	"github.com/hyperscope/fillsync/internal/domain"
)

// StatsHandler serves the aggregate read endpoints.
type StatsHandler struct {
	store      domain.FillStore
	aggregator *analytics.Aggregator
	logger     *slog.Logger
}

// NewStatsHandler creates a StatsHandler over the given store and
// aggregator.
func NewStatsHandler(store domain.FillStore, aggregator *analytics.Aggregator, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		store:      store,
		aggregator: aggregator,
		logger:     logger.With(slog.String("handler", "stats")),
	}
}

// Stats returns window totals, the top wallet ranking, and optionally one
// wallet's own stats.
// GET /api/stats?from=YYYY-MM-DD&to=YYYY-MM-DD[&wallet=0x...][&limit=N]
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	fromDate, toDate, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	totals, err := h.store.TotalStats(r.Context(), fromDate, toDate)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "total stats failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	topWallets, err := h.store.TopWallets(r.Context(), fromDate, toDate, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "top wallets failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	resp := map[string]any{
		"from":       fromDate,
		"to":         toDate,
		"totals":     totals,
		"topWallets": topWallets,
	}

	if wallet := strings.ToLower(r.URL.Query().Get("wallet")); wallet != "" {
		stats, err := h.store.WalletStats(r.Context(), wallet, fromDate, toDate)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "wallet stats failed",
				slog.String("wallet", wallet),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to load stats")
			return
		}
		resp["wallet"] = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Data returns the chart aggregation: daily volume split into top wallets,
// an optional custom wallet, and others.
// GET /api/data?from=YYYY-MM-DD&to=YYYY-MM-DD[&wallet=0x...]
func (h *StatsHandler) Data(w http.ResponseWriter, r *http.Request) {
	fromDate, toDate, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.aggregator.VolumeByWallet(r.Context(), fromDate, toDate, r.URL.Query().Get("wallet"))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "volume aggregation failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to aggregate volume data")
		return
	}
	writeJSON(w, http.StatusOK, data)
}
