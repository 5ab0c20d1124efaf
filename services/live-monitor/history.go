package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"thermowatch/internal/apiclient"
	"thermowatch/internal/model"
)

// HistorySource stahuje historii ze sensor-api (apiclient.Client).
type HistorySource interface {
	ListReadings(ctx context.Context, page, pageSize int, asOf int64) (model.ReadingPage, error)
	ListThresholds(ctx context.Context) ([]model.Threshold, error)
}

// HistoryHandler zpřístupní historii vedle živé hodnoty, aby dashboard
// nemusel mluvit se dvěma službami. Data se jen přeposílají.
type HistoryHandler struct {
	source HistorySource
	logger *slog.Logger
}

func NewHistoryHandler(source HistorySource, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{source: source, logger: logger}
}

func (h *HistoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /history", h.handleReadings)
	mux.HandleFunc("GET /thresholds", h.handleThresholds)
}

// GET /history?page=&limit=&as_of=
func (h *HistoryHandler) handleReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, ok1 := positiveInt(q.Get("page"), 1)
	limit, ok2 := positiveInt(q.Get("limit"), model.DefaultPageSize)
	var asOf int64
	var err error
	if raw := q.Get("as_of"); raw != "" {
		asOf, err = strconv.ParseInt(raw, 10, 64)
	}
	if !ok1 || !ok2 || err != nil || asOf < 0 {
		writeProxyJSON(w, http.StatusBadRequest, map[string]string{"error": "page, limit and as_of must be positive integers"})
		return
	}

	out, err := h.source.ListReadings(r.Context(), page, limit, asOf)
	if err != nil {
		h.writeUpstreamError(w, "readings", err)
		return
	}
	writeProxyJSON(w, http.StatusOK, out)
}

// GET /thresholds
func (h *HistoryHandler) handleThresholds(w http.ResponseWriter, r *http.Request) {
	out, err := h.source.ListThresholds(r.Context())
	if err != nil {
		h.writeUpstreamError(w, "thresholds", err)
		return
	}
	writeProxyJSON(w, http.StatusOK, out)
}

// Chybu z API předáme se stejným statusem, síťovou chybu jako 502.
func (h *HistoryHandler) writeUpstreamError(w http.ResponseWriter, what string, err error) {
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = http.StatusText(se.Status)
		}
		writeProxyJSON(w, se.Status, map[string]string{"error": msg})
		return
	}
	h.logger.Warn("Nepodařilo se načíst data z API", "what", what, "error", err)
	writeProxyJSON(w, http.StatusBadGateway, map[string]string{"error": "sensor api unavailable"})
}

func positiveInt(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil && n >= 1
}

func writeProxyJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
