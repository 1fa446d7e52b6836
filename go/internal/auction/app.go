package auction

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Config holds the engine's tunables
type Config struct {
	TickInterval  time.Duration
	RestartDelay  time.Duration
	DurationMin   time.Duration
	DurationMax   time.Duration
	MinIncrement  float64
	MaxQueueDepth int

	// Rand drives auction durations; nil means a randomly seeded source.
	Rand *rand.Rand
}

// DefaultConfig returns the reference lifecycle settings
func DefaultConfig() Config {
	return Config{
		TickInterval:  DefaultTickInterval,
		RestartDelay:  DefaultRestartDelay,
		DurationMin:   3 * time.Minute,
		DurationMax:   8 * time.Minute,
		MinIncrement:  DefaultMinIncrement,
		MaxQueueDepth: 0,
	}
}

// App is the engine surface consumed by transport: pure reads, serialized bid
// submission and the operator reset.
type App struct {
	registry    *Registry
	serializer  *Serializer
	coordinator *Coordinator
	publisher   events.Publisher
	clock       Clock
}

// NewApp builds the registry, serializer and coordinator over items
func NewApp(cfg Config, publisher events.Publisher, clock Clock, items []models.AuctionItem) (*App, error) {
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	if cfg.DurationMin <= 0 || cfg.DurationMax <= 0 {
		return nil, fmt.Errorf("auction durations must be positive (min %s, max %s)", cfg.DurationMin, cfg.DurationMax)
	}

	endTimes := newEndTimeSource(cfg.Rand, cfg.DurationMin, cfg.DurationMax)
	registry, err := NewRegistry(items, endTimes.after(clock.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	a := &App{
		registry:  registry,
		publisher: publisher,
		clock:     clock,
	}
	a.serializer = NewSerializer(registry, clock, cfg.MinIncrement, cfg.MaxQueueDepth, a.onBidResult)
	a.coordinator = NewCoordinator(registry, clock, publisher, endTimes, cfg.TickInterval, cfg.RestartDelay)

	log.Info().
		Int("items", registry.Len()).
		Float64("min_increment", a.serializer.minIncrement).
		Msg("auction engine initialized")
	return a, nil
}

// Run drives the lifecycle coordinator until ctx is cancelled
func (a *App) Run(ctx context.Context) {
	a.coordinator.Run(ctx)
}

// ListItems returns snapshots of every item
func (a *App) ListItems() []models.AuctionItem {
	return a.registry.GetAll()
}

// GetItem returns a snapshot of one item or ErrItemNotFound
func (a *App) GetItem(id string) (models.AuctionItem, error) {
	return a.registry.GetByID(id)
}

// ServerTime is the authoritative clock clients should sync against
func (a *App) ServerTime() time.Time {
	return a.clock.Now()
}

// Countdown returns the global restart barrier state
func (a *App) Countdown() models.CountdownState {
	return a.coordinator.Countdown()
}

// PlaceBid validates req and evaluates it in its item's chain. Validation
// failures are returned as errors wrapping models.ErrInvalidBidRequest; business
// rejections come back as an unsuccessful BidResult.
func (a *App) PlaceBid(ctx context.Context, req models.BidRequest) (models.BidResult, error) {
	if err := req.Validate(); err != nil {
		return models.BidResult{}, err
	}
	return a.serializer.Submit(ctx, req)
}

// ResetAll is the operator escape hatch: every item restarts now, regardless
// of the countdown.
func (a *App) ResetAll(ctx context.Context) []models.AuctionItem {
	return a.coordinator.ResetAll(ctx)
}

// ExtendItem pushes one item's end time to now+d
func (a *App) ExtendItem(ctx context.Context, itemID string, d time.Duration) (models.AuctionItem, error) {
	return a.coordinator.ExtendItem(ctx, itemID, d)
}

// onBidResult runs inside the item's chain, so events for one item leave in
// the order the bids were accepted.
func (a *App) onBidResult(ctx context.Context, req models.BidRequest, res models.BidResult) {
	if !res.Success || res.Item == nil {
		return
	}
	now := a.clock.Now()

	updated, err := events.NewEnvelope(events.EventTypeItemUpdated, now, events.ItemUpdatedPayload{Item: *res.Item})
	if err != nil {
		log.Error().Err(err).Str("item_id", req.ItemID).Msg("failed to build item update event")
		return
	}
	if err := a.publisher.Publish(ctx, updated); err != nil {
		log.Warn().Err(err).Str("item_id", req.ItemID).Msg("item update not fully delivered")
	}

	payload := events.OutbidPayload{
		ItemID:      req.ItemID,
		NewBid:      req.BidAmount,
		PreviousBid: res.PreviousBid,
		Username:    req.Username,
		BidderID:    req.UserID,
	}
	if res.PreviousBidder != nil {
		payload.PreviousBidderID = *res.PreviousBidder
	}
	outbid, err := events.NewEnvelope(events.EventTypeOutbid, now, payload)
	if err != nil {
		log.Error().Err(err).Str("item_id", req.ItemID).Msg("failed to build outbid event")
		return
	}
	outbid.ExcludeUserID = req.UserID
	if err := a.publisher.Publish(ctx, outbid); err != nil {
		log.Warn().Err(err).Str("item_id", req.ItemID).Msg("outbid notification not fully delivered")
	}
}
