package auction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// DefaultMinIncrement is the minimum raise over the current bid
const DefaultMinIncrement = 10.0

// ResultObserver is invoked inside an item's chain after each evaluation, before
// the next queued bid for that item may start.
type ResultObserver func(ctx context.Context, req models.BidRequest, res models.BidResult)

// chain is the queue state of one item. tail is closed when the most recently
// queued unit of work finishes.
type chain struct {
	tail  chan struct{}
	depth int
}

// Serializer evaluates bids strictly in arrival order per item. Each submission
// waits on the previous unit queued for the same item and then becomes the new
// tail; items never wait on each other.
type Serializer struct {
	registry      *Registry
	clock         Clock
	minIncrement  float64
	maxQueueDepth int
	observer      ResultObserver

	mu     sync.Mutex
	chains map[string]*chain

	// beforeEvaluate runs at the head of the chain; nil in production.
	beforeEvaluate func(req models.BidRequest)
}

// NewSerializer creates a serializer over registry. maxQueueDepth <= 0 means the
// per-item queue is unbounded.
func NewSerializer(registry *Registry, clock Clock, minIncrement float64, maxQueueDepth int, observer ResultObserver) *Serializer {
	if minIncrement <= 0 {
		minIncrement = DefaultMinIncrement
	}
	return &Serializer{
		registry:      registry,
		clock:         clock,
		minIncrement:  minIncrement,
		maxQueueDepth: maxQueueDepth,
		observer:      observer,
		chains:        make(map[string]*chain),
	}
}

// Submit queues req behind any bids already queued for the same item and waits
// for its evaluation. If ctx ends first Submit returns ctx.Err(), but the queued
// bid is not withdrawn: it is still evaluated in turn.
func (s *Serializer) Submit(ctx context.Context, req models.BidRequest) (models.BidResult, error) {
	s.mu.Lock()
	c, ok := s.chains[req.ItemID]
	if !ok {
		c = &chain{}
		s.chains[req.ItemID] = c
	}
	if s.maxQueueDepth > 0 && c.depth >= s.maxQueueDepth {
		depth := c.depth
		s.mu.Unlock()
		log.Warn().
			Str("item_id", req.ItemID).
			Str("user_id", req.UserID).
			Int("queue_depth", depth).
			Msg("bid queue full, rejecting bid")
		return models.Rejected(models.BidErrorQueueFull, "Too many bids are pending for this item, please retry"), nil
	}
	prev := c.tail
	done := make(chan struct{})
	c.tail = done
	c.depth++
	s.mu.Unlock()

	resultCh := make(chan models.BidResult, 1)
	evalCtx := context.WithoutCancel(ctx)

	go func() {
		if prev != nil {
			<-prev
		}
		res := s.evaluate(req)
		if s.observer != nil {
			s.notify(evalCtx, req, res)
		}
		close(done)
		s.release(req.ItemID, done)
		resultCh <- res
	}()

	select {
	case res := <-resultCh:
		return res, nil
	case <-ctx.Done():
		log.Warn().
			Err(ctx.Err()).
			Str("item_id", req.ItemID).
			Str("user_id", req.UserID).
			Msg("caller stopped waiting for queued bid; it will still be evaluated")
		return models.BidResult{}, ctx.Err()
	}
}

// Pending returns the number of bids queued or running for an item
func (s *Serializer) Pending(itemID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chains[itemID]; ok {
		return c.depth
	}
	return 0
}

// release drops the chain entry once its last unit has finished
func (s *Serializer) release(itemID string, done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chains[itemID]
	if !ok {
		return
	}
	c.depth--
	if c.tail == done {
		delete(s.chains, itemID)
	}
}

// evaluate applies the bid rules; a panic is converted to INTERNAL_ERROR so the
// chain always resolves.
func (s *Serializer) evaluate(req models.BidRequest) (res models.BidResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("item_id", req.ItemID).
				Str("user_id", req.UserID).
				Float64("bid_amount", req.BidAmount).
				Interface("panic", r).
				Msg("bid evaluation failed")
			res = models.Rejected(models.BidErrorInternal, "Internal error while processing bid")
		}
	}()

	if s.beforeEvaluate != nil {
		s.beforeEvaluate(req)
	}

	now := s.clock.Now()
	found := s.registry.apply(req.ItemID, func(item *models.AuctionItem) {
		res = s.judge(item, req, now)
	})
	if !found {
		return models.Rejected(models.BidErrorItemNotFound, "Auction item not found")
	}

	if res.Success {
		log.Info().
			Str("item_id", req.ItemID).
			Str("user_id", req.UserID).
			Float64("bid_amount", req.BidAmount).
			Msg("bid accepted")
	} else {
		log.Debug().
			Str("item_id", req.ItemID).
			Str("user_id", req.UserID).
			Float64("bid_amount", req.BidAmount).
			Str("reason", string(res.Error)).
			Msg("bid rejected")
	}
	return res
}

// judge runs the rules in order against the live item and mutates it only when
// every rule passes.
func (s *Serializer) judge(item *models.AuctionItem, req models.BidRequest, now time.Time) models.BidResult {
	if item.IsEnded(now) {
		return models.Rejected(models.BidErrorAuctionEnded, "Auction has ended")
	}

	minimum := item.CurrentBid + s.minIncrement
	if req.BidAmount < minimum {
		return models.Rejected(models.BidErrorBidTooLow,
			fmt.Sprintf("Bid must be at least %.2f", minimum))
	}

	if item.CurrentBidder != nil && *item.CurrentBidder == req.UserID {
		return models.Rejected(models.BidErrorAlreadyHighestBidder, "You are already the highest bidder")
	}

	previous := item.Clone()

	bidder := req.UserID
	name := req.Username
	item.CurrentBid = req.BidAmount
	item.CurrentBidder = &bidder
	item.CurrentBidderName = &name

	snapshot := item.Clone()
	return models.BidResult{
		Success:        true,
		Message:        "Bid placed successfully",
		Item:           &snapshot,
		PreviousBidder: previous.CurrentBidder,
		PreviousBid:    previous.CurrentBid,
	}
}

// notify hands the result to the observer; observer panics stay inside the chain.
func (s *Serializer) notify(ctx context.Context, req models.BidRequest, res models.BidResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("item_id", req.ItemID).
				Interface("panic", r).
				Msg("bid result observer failed")
		}
	}()
	s.observer(ctx, req, res)
}
