package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// EventType represents the type of auction event
type EventType string

const (
	EventTypeItemUpdated      EventType = "item_updated"
	EventTypeOutbid           EventType = "outbid"
	EventTypeAuctionEnded     EventType = "auction_ended"
	EventTypeRestartCountdown EventType = "restart_countdown"
	EventTypeItemsReset       EventType = "items_reset"
)

// Reset reasons carried by ItemsResetPayload
const (
	ResetReasonCoordinated = "coordinated"
	ResetReasonManual      = "manual"
)

// Envelope is the wire structure for every event leaving the engine
type Envelope struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`

	// ExcludeUserID, when set, suppresses delivery to that user's connections.
	ExcludeUserID string `json:"-"`
}

// ItemUpdatedPayload is broadcast to everyone after an accepted bid
type ItemUpdatedPayload struct {
	Item models.AuctionItem `json:"item"`
}

// OutbidPayload is broadcast to everyone except the new leader
type OutbidPayload struct {
	ItemID           string  `json:"itemId"`
	NewBid           float64 `json:"newBid"`
	PreviousBid      float64 `json:"previousBid"`
	Username         string  `json:"username"`
	BidderID         string  `json:"bidderId"`
	PreviousBidderID string  `json:"previousBidderId,omitempty"`
}

// AuctionEndedPayload is emitted once per item per active period
type AuctionEndedPayload struct {
	ItemID  string    `json:"itemId"`
	EndedAt time.Time `json:"endedAt"`
}

// RestartCountdownPayload is emitted on every coordinator tick
type RestartCountdownPayload struct {
	models.CountdownState
}

// ItemsResetPayload carries the full batch of freshly reset items
type ItemsResetPayload struct {
	Items  []models.AuctionItem `json:"items"`
	Reason string               `json:"reason"`
}

// NewEnvelope marshals payload into a new envelope stamped at ts
func NewEnvelope(eventType EventType, ts time.Time, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: ts,
		Data:      data,
	}, nil
}

// ParsePayload decodes an envelope's data into the payload struct for its type
func ParsePayload(env Envelope) (interface{}, error) {
	switch env.Type {
	case EventTypeItemUpdated:
		var payload ItemUpdatedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeOutbid:
		var payload OutbidPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeAuctionEnded:
		var payload AuctionEndedPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRestartCountdown:
		var payload RestartCountdownPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeItemsReset:
		var payload ItemsResetPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("unknown event type: %s", env.Type)
	}
}
