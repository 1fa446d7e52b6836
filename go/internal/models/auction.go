package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidBidRequest is returned when a bid request is malformed.
var ErrInvalidBidRequest = errors.New("invalid bid request")

// AuctionItem is a single timed lot. CurrentBidder is a weak reference to a user id
// and is nil until the first accepted bid.
type AuctionItem struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	ImageURL          string    `json:"imageUrl"`
	StartingPrice     float64   `json:"startingPrice"`
	CurrentBid        float64   `json:"currentBid"`
	CurrentBidder     *string   `json:"currentBidder"`
	CurrentBidderName *string   `json:"currentBidderName,omitempty"`
	AuctionEndTime    time.Time `json:"auctionEndTime"`
}

// Clone returns a snapshot that shares no memory with the receiver.
func (i AuctionItem) Clone() AuctionItem {
	c := i
	if i.CurrentBidder != nil {
		bidder := *i.CurrentBidder
		c.CurrentBidder = &bidder
	}
	if i.CurrentBidderName != nil {
		name := *i.CurrentBidderName
		c.CurrentBidderName = &name
	}
	return c
}

// IsEnded reports whether the auction has expired at now.
func (i AuctionItem) IsEnded(now time.Time) bool {
	return !now.Before(i.AuctionEndTime)
}

// BidRequest is an inbound bid submission.
type BidRequest struct {
	ItemID    string  `json:"itemId"`
	BidAmount float64 `json:"bidAmount"`
	UserID    string  `json:"userId"`
	Username  string  `json:"username"`
}

// Validate rejects requests that must never reach the serializer.
func (r BidRequest) Validate() error {
	if strings.TrimSpace(r.ItemID) == "" {
		return fmt.Errorf("%w: item id is required", ErrInvalidBidRequest)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidBidRequest)
	}
	if math.IsNaN(r.BidAmount) || math.IsInf(r.BidAmount, 0) || r.BidAmount <= 0 {
		return fmt.Errorf("%w: bid amount must be a positive number", ErrInvalidBidRequest)
	}
	return nil
}

// BidError classifies a rejected bid.
type BidError string

const (
	BidErrorItemNotFound         BidError = "ITEM_NOT_FOUND"
	BidErrorAuctionEnded         BidError = "AUCTION_ENDED"
	BidErrorBidTooLow            BidError = "BID_TOO_LOW"
	BidErrorAlreadyHighestBidder BidError = "ALREADY_HIGHEST_BIDDER"
	BidErrorQueueFull            BidError = "QUEUE_FULL"
	BidErrorInternal             BidError = "INTERNAL_ERROR"
)

// BidResult is the outcome of one serialized bid evaluation. Item is a snapshot
// and is only set on success.
type BidResult struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   BidError     `json:"error,omitempty"`
	Item    *AuctionItem `json:"item,omitempty"`

	// Leader displaced by this bid, used to address the outbid notification.
	PreviousBidder *string `json:"-"`
	PreviousBid    float64 `json:"-"`
}

// Rejected builds a failed BidResult.
func Rejected(code BidError, message string) BidResult {
	return BidResult{Success: false, Message: message, Error: code}
}

// CountdownState is the global restart barrier as seen by clients.
type CountdownState struct {
	AllEnded    bool       `json:"allEnded"`
	AllEndedAt  *time.Time `json:"allEndedAt,omitempty"`
	RestartAt   *time.Time `json:"restartAt,omitempty"`
	RemainingMs int64      `json:"remainingMs"`
	ServerTime  time.Time  `json:"serverTime"`
}
