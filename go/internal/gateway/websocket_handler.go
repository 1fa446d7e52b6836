package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests and client commands
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	engine            Engine
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(cm *ConnectionManager, engine Engine) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		engine:            engine,
	}
}

// HandleConnection upgrades GET /ws. Connections without a user_id may watch
// but cannot bid.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")

	if err := h.connectionManager.UpgradeConnection(w, r, userID, h.handleMessage); err != nil {
		// The upgrader has already written the HTTP error.
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to upgrade WebSocket connection")
	}
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.connectionManager.Stats())
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", h.HandleConnection)
	router.HandleFunc("/ws/stats", h.HandleConnectionStats).Methods(http.MethodGet)
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, conn *Connection, msg ClientMessage) *ServerMessage {
	switch msg.Type {
	case MessageTypePing:
		return &ServerMessage{Type: MessageTypePong, RequestID: msg.RequestID, Data: h.engine.ServerTime()}

	case MessageTypePlaceBid:
		var data PlaceBidData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return newErrorMessage(msg.RequestID, "invalid place_bid payload")
		}

		res, err := h.engine.PlaceBid(ctx, models.BidRequest{
			ItemID:    data.ItemID,
			BidAmount: data.BidAmount,
			UserID:    conn.UserID,
			Username:  data.Username,
		})
		if err != nil {
			if errors.Is(err, models.ErrInvalidBidRequest) {
				return newErrorMessage(msg.RequestID, err.Error())
			}
			log.Error().Err(err).Str("connection_id", conn.ID).Msg("bid submission failed")
			return newErrorMessage(msg.RequestID, "bid could not be processed")
		}
		return &ServerMessage{Type: MessageTypeBidResult, RequestID: msg.RequestID, Data: res}

	default:
		log.Debug().
			Str("connection_id", conn.ID).
			Str("message_type", msg.Type).
			Msg("unknown client message type")
		return newErrorMessage(msg.RequestID, "unknown message type")
	}
}
