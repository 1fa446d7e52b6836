package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ErrInvalidExtension is returned for a non-positive extension
var ErrInvalidExtension = errors.New("extension must be positive")

const (
	// DefaultTickInterval is how often the coordinator inspects the registry
	DefaultTickInterval = time.Second
	// DefaultRestartDelay is the countdown between "all items ended" and the reset
	DefaultRestartDelay = 30 * time.Second
)

// Coordinator drives the server-authoritative lifecycle: it announces expired
// items, tracks the moment every item became expired at once, runs the restart
// countdown and resets all items together when it reaches zero.
type Coordinator struct {
	registry     *Registry
	clock        Clock
	publisher    events.Publisher
	endTimes     *endTimeSource
	tickInterval time.Duration
	restartDelay time.Duration

	mu         sync.Mutex
	allEndedAt *time.Time
	notified   map[string]bool

	// inspect checks one item at tick time; replaced in tests.
	inspect func(item models.AuctionItem, now time.Time) (ended bool, err error)
	// afterSnapshot runs inside tick right after the registry is read. Nil outside tests.
	afterSnapshot func()
}

// Clock is the subset of clockwork.Clock the engine uses.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// NewCoordinator creates a lifecycle coordinator over registry
func NewCoordinator(registry *Registry, clock Clock, publisher events.Publisher, endTimes *endTimeSource, tickInterval, restartDelay time.Duration) *Coordinator {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	if restartDelay < 0 {
		restartDelay = DefaultRestartDelay
	}
	if publisher == nil {
		publisher = events.NoOpPublisher{}
	}
	return &Coordinator{
		registry:     registry,
		clock:        clock,
		publisher:    publisher,
		endTimes:     endTimes,
		tickInterval: tickInterval,
		restartDelay: restartDelay,
		notified:     make(map[string]bool),
		inspect:      inspectItem,
	}
}

// Run ticks until ctx is cancelled. The first tick happens immediately.
func (c *Coordinator) Run(ctx context.Context) {
	log.Info().
		Dur("tick_interval", c.tickInterval).
		Dur("restart_delay", c.restartDelay).
		Int("items", c.registry.Len()).
		Msg("lifecycle coordinator started")

	ticker := c.clock.NewTicker(c.tickInterval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("lifecycle coordinator shutting down")
			return
		case <-ticker.Chan():
			c.Tick(ctx)
		}
	}
}

// Tick performs one inspection pass. It never panics.
func (c *Coordinator) Tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("lifecycle tick failed")
		}
	}()

	c.publish(ctx, c.tick())
}

// tick reads the clock, snapshots the registry and evaluates it as one
// critical section, so a reset or extension cannot land mid-pass.
func (c *Coordinator) tick() []events.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	items := c.registry.GetAll()
	if c.afterSnapshot != nil {
		c.afterSnapshot()
	}

	var out []events.Envelope
	allEnded := len(items) > 0
	for _, item := range items {
		ended, err := c.safeInspect(item, now)
		if err != nil {
			log.Error().Err(err).Str("item_id", item.ID).Msg("skipping item during lifecycle tick")
			allEnded = false
			continue
		}
		if !ended {
			allEnded = false
			continue
		}
		if c.notified[item.ID] {
			continue
		}
		c.notified[item.ID] = true
		log.Info().
			Str("item_id", item.ID).
			Time("ended_at", item.AuctionEndTime).
			Float64("final_bid", item.CurrentBid).
			Msg("auction ended")
		out = c.appendEnvelope(out, events.EventTypeAuctionEnded, now, events.AuctionEndedPayload{
			ItemID:  item.ID,
			EndedAt: item.AuctionEndTime,
		})
	}

	switch {
	case !allEnded:
		if c.allEndedAt != nil {
			log.Info().Msg("an auction is active again, cancelling restart countdown")
		}
		c.allEndedAt = nil
	case c.allEndedAt == nil:
		t := now
		c.allEndedAt = &t
		log.Info().Time("all_ended_at", t).Dur("restart_delay", c.restartDelay).Msg("all auctions ended, restart countdown started")
	}

	state, remaining := c.countdownLocked(now)
	out = c.appendEnvelope(out, events.EventTypeRestartCountdown, now, events.RestartCountdownPayload{CountdownState: state})

	if state.AllEnded && remaining <= 0 {
		reset := c.resetLocked(now)
		log.Info().Int("items", len(reset)).Msg("coordinated reset of all auctions")
		out = c.appendEnvelope(out, events.EventTypeItemsReset, now, events.ItemsResetPayload{
			Items:  reset,
			Reason: events.ResetReasonCoordinated,
		})
	}
	return out
}

// Countdown returns the current global barrier state
func (c *Coordinator) Countdown() models.CountdownState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, _ := c.countdownLocked(c.clock.Now())
	return state
}

// ResetAll immediately resets every item, bypassing the barrier and countdown.
func (c *Coordinator) ResetAll(ctx context.Context) []models.AuctionItem {
	c.mu.Lock()
	now := c.clock.Now()
	reset := c.resetLocked(now)
	c.mu.Unlock()

	log.Info().Int("items", len(reset)).Msg("manual reset of all auctions")
	c.publish(ctx, c.appendEnvelope(nil, events.EventTypeItemsReset, now, events.ItemsResetPayload{
		Items:  reset,
		Reason: events.ResetReasonManual,
	}))
	return reset
}

// ExtendItem moves one item's end time to now+d. An extended item is announced
// again when it next expires.
func (c *Coordinator) ExtendItem(ctx context.Context, itemID string, d time.Duration) (models.AuctionItem, error) {
	if d <= 0 {
		return models.AuctionItem{}, fmt.Errorf("%w: got %s", ErrInvalidExtension, d)
	}

	c.mu.Lock()
	now := c.clock.Now()
	item, err := c.registry.setEndTime(itemID, now.Add(d))
	if err == nil {
		delete(c.notified, itemID)
	}
	c.mu.Unlock()
	if err != nil {
		return models.AuctionItem{}, err
	}

	log.Info().Str("item_id", itemID).Time("auction_end_time", item.AuctionEndTime).Msg("auction extended")
	c.publish(ctx, c.appendEnvelope(nil, events.EventTypeItemUpdated, now, events.ItemUpdatedPayload{Item: item}))
	return item, nil
}

// resetLocked must be called with c.mu held
func (c *Coordinator) resetLocked(now time.Time) []models.AuctionItem {
	reset := c.registry.resetAll(c.endTimes.after(now))
	c.allEndedAt = nil
	c.notified = make(map[string]bool)
	return reset
}

// countdownLocked must be called with c.mu held
func (c *Coordinator) countdownLocked(now time.Time) (models.CountdownState, time.Duration) {
	state := models.CountdownState{ServerTime: now}
	if c.allEndedAt == nil {
		return state, c.restartDelay
	}

	endedAt := *c.allEndedAt
	restartAt := endedAt.Add(c.restartDelay)
	remaining := restartAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}

	state.AllEnded = true
	state.AllEndedAt = &endedAt
	state.RestartAt = &restartAt
	state.RemainingMs = remaining.Milliseconds()
	return state, remaining
}

func (c *Coordinator) safeInspect(item models.AuctionItem, now time.Time) (ended bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("inspect panicked: %v", r)
		}
	}()
	return c.inspect(item, now)
}

func (c *Coordinator) appendEnvelope(out []events.Envelope, eventType events.EventType, now time.Time, payload interface{}) []events.Envelope {
	env, err := events.NewEnvelope(eventType, now, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build lifecycle event")
		return out
	}
	return append(out, env)
}

func (c *Coordinator) publish(ctx context.Context, envs []events.Envelope) {
	for _, env := range envs {
		if err := c.publisher.Publish(ctx, env); err != nil {
			log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("lifecycle event not fully delivered")
		}
	}
}

// inspectItem reports whether item has expired at now
func inspectItem(item models.AuctionItem, now time.Time) (bool, error) {
	if item.AuctionEndTime.IsZero() {
		return false, fmt.Errorf("item %s has no end time", item.ID)
	}
	return item.IsEnded(now), nil
}
