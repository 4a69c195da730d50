package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type handlers struct {
	db         Pinger
	backfiller Backfiller
	logger     *slog.Logger
}

// handleHealthz is pure liveness; it answers as long as the process runs.
func (h *handlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz additionally requires a reachable metadata store.
func (h *handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		writeError(w, r, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

type backfillRequest struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`
}

type backfillResponse struct {
	Documents int `json:"documents"`
}

// handleBackfill triggers a synthetic discovery cycle for a date range.
// The request is synchronous; it returns once every discovered document
// has been processed.
func (h *handlers) handleBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, r, http.StatusBadRequest, "to must not precede from")
		return
	}

	n, err := h.backfiller.Backfill(r.Context(), from, to)
	if err != nil {
		h.logger.Error("backfill failed", "error", err,
			"request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusBadGateway, "backfill failed")
		return
	}
	writeJSON(w, r, http.StatusOK, backfillResponse{Documents: n})
}

// writeJSON writes a JSON response with the standard envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data":       data,
		"request_id": RequestIDFromContext(r.Context()),
		"timestamp":  time.Now().UTC(),
	})
}

// writeError writes a JSON error response with the standard envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":      message,
		"request_id": RequestIDFromContext(r.Context()),
		"timestamp":  time.Now().UTC(),
	})
}

// decodeJSON decodes a JSON request body into the target struct.
func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
