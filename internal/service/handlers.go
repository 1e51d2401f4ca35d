package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/budgetme/prediction-api/internal/auth"
	"github.com/budgetme/prediction-api/internal/forecast"
	"github.com/budgetme/prediction-api/internal/store"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Handlers exposes the prediction service over JSON HTTP.
type Handlers struct {
	svc       *PredictionService
	log       *logrus.Logger
	storeName string
	started   time.Time
}

func NewHandlers(svc *PredictionService, log *logrus.Logger, storeName string) *Handlers {
	return &Handlers{svc: svc, log: log, storeName: storeName, started: time.Now()}
}

type generateRequest struct {
	Transactions []forecast.TransactionRecord `json:"transaction_data"`
	Timeframe    forecast.Horizon             `json:"timeframe"`
}

type usageSnapshot struct {
	UsageCount int       `json:"usage_count"`
	MaxUsage   int       `json:"max_usage"`
	ResetDate  time.Time `json:"reset_date"`
}

type generateResponse struct {
	Prediction *forecast.Result `json:"prediction"`
	FromCache  bool             `json:"from_cache"`
	Usage      *usageSnapshot   `json:"usage,omitempty"`
}

// Generate handles POST /api/v1/predictions/generate.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated", nil)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body is not valid JSON", nil)
		return
	}

	result, fromCache, err := h.svc.Generate(r.Context(), claims.UID, req.Transactions, req.Timeframe)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := generateResponse{Prediction: result, FromCache: fromCache}
	if summary, err := h.svc.Usage(r.Context(), claims.UID); err == nil {
		resp.Usage = &usageSnapshot{
			UsageCount: summary.Used,
			MaxUsage:   summary.Limit,
			ResetDate:  summary.ResetAt,
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Usage handles GET /api/v1/predictions/usage.
func (h *Handlers) Usage(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated", nil)
		return
	}
	summary, err := h.svc.Usage(r.Context(), claims.UID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// Validate handles POST /api/v1/predictions/validate. It never consumes
// quota; callers use it to pre-check whether their history is deep
// enough for the primary model.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.GetUserClaims(r.Context()); !ok {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated", nil)
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "request body is not valid JSON", nil)
		return
	}
	summary, err := h.svc.Validate(req.Transactions, req.Timeframe)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

// InvalidateCache handles DELETE /api/v1/predictions/cache.
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.GetUserClaims(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "user not authenticated", nil)
		return
	}
	deleted, err := h.svc.InvalidateCache(r.Context(), claims.UID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

// Health handles GET /health. It is unauthenticated and always answers 200;
// the body reports per-component availability.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	cacheOK := true
	if _, err := h.svc.cache.Get(r.Context(), "health-probe"); err != nil && !errors.Is(err, store.ErrNotFound) {
		cacheOK = false
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"version":          Version,
		"store":            h.storeName,
		"engine_available": h.svc.primary != nil,
		"cache_available":  cacheOK,
		"uptime_seconds":   int(time.Since(h.started).Seconds()),
	})
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// writeServiceError maps structured forecast errors onto HTTP statuses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	pe, ok := forecast.AsError(err)
	if !ok {
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		h.writeError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}

	switch pe.Code {
	case forecast.ErrValidation:
		h.writeError(w, http.StatusBadRequest, string(pe.Code), pe.Message, nil)
	case forecast.ErrInsufficientData:
		h.writeError(w, http.StatusBadRequest, string(pe.Code), pe.Message, map[string]interface{}{
			"required_points":  pe.RequiredPoints,
			"available_points": pe.AvailablePoints,
		})
	case forecast.ErrQuotaExceeded:
		h.writeError(w, http.StatusTooManyRequests, string(pe.Code), pe.Message, map[string]interface{}{
			"current_usage": pe.CurrentUsage,
			"max_usage":     pe.MaxUsage,
			"reset_at":      pe.ResetAt.Format(time.RFC3339),
		})
	case forecast.ErrCacheUnavailable, forecast.ErrStoreUnavailable:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("backing store unavailable")
		h.writeError(w, http.StatusServiceUnavailable, string(pe.Code), pe.Message, nil)
	default:
		h.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		h.writeError(w, http.StatusInternalServerError, string(pe.Code), pe.Message, nil)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	h.writeJSON(w, status, map[string]errorBody{"error": {Code: code, Message: message, Details: details}})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.WithError(err).Warn("failed to encode response")
	}
}
