// Package handler contains the HTTP handlers for the sync and stats API.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const dateLayout = "2006-01-02"

// defaultWindowDays is the query window applied when from/to are omitted.
const defaultWindowDays = 30

// writeJSON marshals v as JSON with the given status code. If marshaling
// fails it falls back to a plain 500 body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseWindow extracts the from/to date window from the query string.
// Missing bounds default to the last defaultWindowDays ending yesterday UTC,
// matching the sync pipeline's view that today is always incomplete.
func parseWindow(r *http.Request) (fromDate, toDate string, err error) {
	q := r.URL.Query()
	fromDate = q.Get("from")
	toDate = q.Get("to")

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if toDate == "" {
		toDate = yesterday.Format(dateLayout)
	}
	if fromDate == "" {
		fromDate = yesterday.AddDate(0, 0, -(defaultWindowDays - 1)).Format(dateLayout)
	}

	from, err := time.Parse(dateLayout, fromDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid from date %q", fromDate)
	}
	to, err := time.Parse(dateLayout, toDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid to date %q", toDate)
	}
	if from.After(to) {
		return "", "", fmt.Errorf("from date %s is after to date %s", fromDate, toDate)
	}
	return fromDate, toDate, nil
}
