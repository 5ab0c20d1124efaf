package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"thermowatch/internal/auth"
	"thermowatch/internal/model"
)

// Rozhraní služeb, které handler používá. Implementují je balíčky
// ingest, history a threshold.
type (
	Ingestor interface {
		Record(ctx context.Context, value float64) (model.Reading, error)
		Clear(ctx context.Context) (int64, error)
	}
	History interface {
		List(ctx context.Context, q model.PageQuery) (model.ReadingPage, error)
		Latest(ctx context.Context) (*model.Reading, error)
	}
	Thresholds interface {
		Append(ctx context.Context, value float64, note *string, actor model.Actor) (model.Threshold, error)
		List(ctx context.Context) ([]model.Threshold, error)
		Current(ctx context.Context) (*model.Threshold, error)
	}
	Authorizer interface {
		Authorize(ctx context.Context, token string) (model.Actor, error)
	}
)

const maxBodyBytes = 1 << 20

// APIHandler sdružuje metody pro obsluhu HTTP požadavků.
type APIHandler struct {
	ingest     Ingestor
	history    History
	thresholds Thresholds
	auth       Authorizer
	logger     *slog.Logger
}

func NewAPIHandler(ingest Ingestor, history History, thresholds Thresholds, authz Authorizer, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		ingest:     ingest,
		history:    history,
		thresholds: thresholds,
		auth:       authz,
		logger:     logger,
	}
}

// RegisterRoutes mapuje URL cesty na handlery (Go 1.22+ router s metodami).
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/readings", h.handleListReadings)
	mux.HandleFunc("POST /api/readings", h.handleRecordReading)
	mux.HandleFunc("GET /api/readings/latest", h.handleLatestReading)
	mux.HandleFunc("DELETE /api/readings", h.handleClearReadings)

	mux.HandleFunc("GET /api/thresholds", h.handleListThresholds)
	mux.HandleFunc("GET /api/thresholds/latest", h.handleCurrentThreshold)
	// Jediný endpoint vyžadující token.
	mux.HandleFunc("POST /api/thresholds", h.handleAppendThreshold)
}

type readingRequest struct {
	Value *float64 `json:"value"`
}

type thresholdRequest struct {
	Value *float64 `json:"value"`
	Note  *string  `json:"note"`
}

type clearResponse struct {
	Deleted int64 `json:"deleted"`
}

// handleListReadings: GET /api/readings?page=1&limit=10[&as_of=123]
func (h *APIHandler) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q, err := parsePageQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	page, err := h.history.List(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleRecordReading: POST /api/readings {"value": 24.5}
// Autentizace zařízení je mimo tuto službu.
func (h *APIHandler) handleRecordReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Value == nil {
		h.writeError(w, model.InvalidValue("field \"value\" is required"))
		return
	}

	reading, err := h.ingest.Record(r.Context(), *req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reading)
}

func (h *APIHandler) handleLatestReading(w http.ResponseWriter, r *http.Request) {
	reading, err := h.history.Latest(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

// handleClearReadings: DELETE /api/readings (nevratné)
func (h *APIHandler) handleClearReadings(w http.ResponseWriter, r *http.Request) {
	n, err := h.ingest.Clear(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{Deleted: n})
}

func (h *APIHandler) handleListThresholds(w http.ResponseWriter, r *http.Request) {
	list, err := h.thresholds.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleCurrentThreshold vrací aktuální limit, nebo null.
func (h *APIHandler) handleCurrentThreshold(w http.ResponseWriter, r *http.Request) {
	t, err := h.thresholds.Current(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleAppendThreshold: POST /api/thresholds {"value": 30, "note": "léto"}
// s hlavičkou Authorization: Bearer <TOKEN>.
func (h *APIHandler) handleAppendThreshold(w http.ResponseWriter, r *http.Request) {
	actor, err := h.auth.Authorize(r.Context(), auth.BearerToken(r))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req thresholdRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Value == nil {
		h.writeError(w, model.InvalidValue("field \"value\" is required"))
		return
	}
	if req.Note != nil && strings.TrimSpace(*req.Note) == "" {
		req.Note = nil
	}

	t, err := h.thresholds.Append(r.Context(), *req.Value, req.Note, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func parsePageQuery(r *http.Request) (model.PageQuery, error) {
	values := r.URL.Query()
	q := model.PageQuery{Page: model.DefaultPage, PageSize: model.DefaultPageSize}

	var err error
	if q.Page, err = intParam(values.Get("page"), model.DefaultPage); err != nil {
		return q, model.InvalidValue("page: %v", err)
	}
	// "limit" používá původní klient, "pageSize" je alias.
	size := values.Get("limit")
	if size == "" {
		size = values.Get("pageSize")
	}
	if q.PageSize, err = intParam(size, model.DefaultPageSize); err != nil {
		return q, model.InvalidValue("limit: %v", err)
	}
	if q.Page < 1 || q.PageSize < 1 {
		return q, model.InvalidValue("page and limit must be >= 1")
	}

	if asOf := values.Get("as_of"); asOf != "" {
		if q.AsOf, err = strconv.ParseInt(asOf, 10, 64); err != nil || q.AsOf < 0 {
			return q, model.InvalidValue("as_of must be a non-negative integer")
		}
	}
	return q.Normalize(), nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// decodeBody čte JSON s limitem velikosti. Nečíselná hodnota (např. "abc")
// skončí jako ErrInvalidValue, ne jako chyba serveru.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.InvalidValue("invalid JSON body: %v", err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError převede taxonomii chyb na HTTP status.
func (h *APIHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidValue):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	case errors.Is(err, model.ErrQueryTimeout):
		h.logger.Warn("Dotaz vypršel", "error", err)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "query timed out, retry later"})
	default:
		h.logger.Error("Chyba při obsluze požadavku", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CorsMiddleware povolí volání API z frontendu běžícího na jiné doméně/portu.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Preflight: odpovíme OK a končíme.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
