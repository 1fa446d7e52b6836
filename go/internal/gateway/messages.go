package gateway

import (
	"encoding/json"
)

// Client message types
const (
	MessageTypePlaceBid = "place_bid"
	MessageTypePing     = "ping"
)

// Server reply types; engine events are sent as raw envelopes
const (
	MessageTypeBidResult = "bid_result"
	MessageTypePong      = "pong"
	MessageTypeError     = "error"
)

// ClientMessage is a command sent by a WebSocket client
type ClientMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PlaceBidData is the payload of a place_bid message. The bidder is the
// connection's user.
type PlaceBidData struct {
	ItemID    string  `json:"itemId"`
	BidAmount float64 `json:"bidAmount"`
	Username  string  `json:"username"`
}

// ServerMessage is a direct reply to one client
type ServerMessage struct {
	Type      string      `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ErrorData describes a request the server could not act on
type ErrorData struct {
	Message string `json:"message"`
}

func newErrorMessage(requestID, message string) *ServerMessage {
	return &ServerMessage{
		Type:      MessageTypeError,
		RequestID: requestID,
		Data:      ErrorData{Message: message},
	}
}
