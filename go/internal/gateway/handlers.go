package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mcdev12/auctionhouse/go/internal/auction"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Engine is the auction surface the gateway serves
type Engine interface {
	ListItems() []models.AuctionItem
	GetItem(id string) (models.AuctionItem, error)
	ServerTime() time.Time
	Countdown() models.CountdownState
	PlaceBid(ctx context.Context, req models.BidRequest) (models.BidResult, error)
	ResetAll(ctx context.Context) []models.AuctionItem
	ExtendItem(ctx context.Context, itemID string, d time.Duration) (models.AuctionItem, error)
}

// HealthCheck reports whether one dependency is usable
type HealthCheck func() bool

// Handler contains HTTP request handlers
type Handler struct {
	engine Engine

	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(engine Engine) *Handler {
	return &Handler{engine: engine, checks: make(map[string]HealthCheck)}
}

// AddHealthCheck makes /health report name and degrade when check fails
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// bidBody is the POST /api/items/{id}/bid request body
type bidBody struct {
	BidAmount float64 `json:"bidAmount"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
}

// extendBody is the POST /api/admin/items/{id}/extend request body. Duration
// uses Go duration syntax, e.g. "90s" or "5m".
type extendBody struct {
	Duration string `json:"duration"`
}

// RegisterRoutes adds the REST routes to router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/items", h.ListItems).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}", h.GetItem).Methods(http.MethodGet)
	api.HandleFunc("/items/{id}/bid", h.PlaceBid).Methods(http.MethodPost)
	api.HandleFunc("/time", h.ServerTime).Methods(http.MethodGet)
	api.HandleFunc("/countdown", h.Countdown).Methods(http.MethodGet)
	api.HandleFunc("/admin/reset", h.ResetAll).Methods(http.MethodPost)
	api.HandleFunc("/admin/items/{id}/extend", h.ExtendItem).Methods(http.MethodPost)
}

// HealthCheck returns service health status. Any failing dependency turns
// the response into a 503.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	deps := make(map[string]string)

	h.mu.RLock()
	for name, check := range h.checks {
		if check() {
			deps[name] = "up"
			continue
		}
		deps[name] = "down"
		status, code = "degraded", http.StatusServiceUnavailable
	}
	h.mu.RUnlock()

	respondJSON(w, code, map[string]interface{}{
		"status":       status,
		"service":      "auctionhouse",
		"time":         h.engine.ServerTime().UTC().Format(time.RFC3339),
		"dependencies": deps,
	})
}

// ListItems handles GET /api/items
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.ListItems())
}

// GetItem handles GET /api/items/{id}
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	item, err := h.engine.GetItem(itemID)
	if errors.Is(err, auction.ErrItemNotFound) {
		respondError(w, http.StatusNotFound, models.BidErrorItemNotFound, "Item not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("item_id", itemID).Msg("failed to get item")
		respondError(w, http.StatusInternalServerError, models.BidErrorInternal, "Failed to retrieve item")
		return
	}

	respondJSON(w, http.StatusOK, item)
}

// ServerTime handles GET /api/time
func (h *Handler) ServerTime(w http.ResponseWriter, r *http.Request) {
	now := h.engine.ServerTime()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"serverTime": now,
		"timestamp":  now.UnixMilli(),
	})
}

// Countdown handles GET /api/countdown
func (h *Handler) Countdown(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.Countdown())
}

// PlaceBid handles POST /api/items/{id}/bid
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	var body bidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "", "Invalid request body")
		return
	}

	res, err := h.engine.PlaceBid(r.Context(), models.BidRequest{
		ItemID:    itemID,
		BidAmount: body.BidAmount,
		UserID:    body.UserID,
		Username:  body.Username,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidBidRequest) {
			respondError(w, http.StatusBadRequest, "", err.Error())
			return
		}
		// The caller went away; the bid is still evaluated in order.
		log.Warn().Err(err).Str("item_id", itemID).Msg("bid caller cancelled before result")
		respondError(w, http.StatusServiceUnavailable, "", "Request cancelled")
		return
	}

	respondJSON(w, bidStatus(res), res)
}

// ResetAll handles POST /api/admin/reset
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	items := h.engine.ResetAll(r.Context())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"items":   items,
	})
}

// ExtendItem handles POST /api/admin/items/{id}/extend
func (h *Handler) ExtendItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]

	var body extendBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "", "Invalid request body")
		return
	}
	d, err := time.ParseDuration(body.Duration)
	if err != nil || d <= 0 {
		respondError(w, http.StatusBadRequest, "", "duration must be a positive Go duration")
		return
	}

	item, err := h.engine.ExtendItem(r.Context(), itemID, d)
	switch {
	case errors.Is(err, auction.ErrItemNotFound):
		respondError(w, http.StatusNotFound, models.BidErrorItemNotFound, "Item not found")
		return
	case errors.Is(err, auction.ErrInvalidExtension):
		respondError(w, http.StatusBadRequest, "", err.Error())
		return
	case err != nil:
		log.Error().Err(err).Str("item_id", itemID).Msg("failed to extend item")
		respondError(w, http.StatusInternalServerError, models.BidErrorInternal, "Failed to extend item")
		return
	}

	respondJSON(w, http.StatusOK, item)
}

// bidStatus maps a bid outcome to an HTTP status. Business rejections are
// ordinary results.
func bidStatus(res models.BidResult) int {
	switch res.Error {
	case models.BidErrorInternal:
		return http.StatusInternalServerError
	case models.BidErrorQueueFull:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

// respondError sends an error response in the bid result shape
func respondError(w http.ResponseWriter, statusCode int, code models.BidError, message string) {
	respondJSON(w, statusCode, models.BidResult{
		Success: false,
		Message: message,
		Error:   code,
	})
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
