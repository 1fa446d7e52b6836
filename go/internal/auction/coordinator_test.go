package auction

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

type coordinatorFixture struct {
	registry    *Registry
	coordinator *Coordinator
	clock       *clockwork.FakeClock
	pub         *recordingPublisher
}

// newCoordinatorFixture builds one item per end offset.
func newCoordinatorFixture(t *testing.T, offsets ...time.Duration) *coordinatorFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testStart)

	ends := make([]time.Time, len(offsets))
	for i, off := range offsets {
		ends[i] = testStart.Add(off)
	}
	r, err := NewRegistry(testItems(len(offsets)), endTimesAt(ends...))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	pub := &recordingPublisher{}
	source := newEndTimeSource(rand.New(rand.NewPCG(1, 2)), 3*time.Minute, 8*time.Minute)
	c := NewCoordinator(r, clock, pub, source, time.Second, DefaultRestartDelay)
	return &coordinatorFixture{registry: r, coordinator: c, clock: clock, pub: pub}
}

func decodeCountdown(t *testing.T, env events.Envelope) models.CountdownState {
	t.Helper()
	var p events.RestartCountdownPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("unmarshal countdown: %v", err)
	}
	return p.CountdownState
}

func TestCoordinator_AnnouncesEachExpiryOnce(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, 2*time.Minute)
	ctx := context.Background()

	f.coordinator.Tick(ctx)
	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 0 {
		t.Fatalf("ended events before expiry = %d, want 0", got)
	}

	f.clock.Advance(61 * time.Second)
	f.coordinator.Tick(ctx)
	f.coordinator.Tick(ctx)

	ended := f.pub.ofType(events.EventTypeAuctionEnded)
	if len(ended) != 1 {
		t.Fatalf("ended events = %d, want 1", len(ended))
	}
	var p events.AuctionEndedPayload
	if err := json.Unmarshal(ended[0].Data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.ItemID != "1" {
		t.Errorf("ended item = %q, want %q", p.ItemID, "1")
	}

	if got := len(f.pub.ofType(events.EventTypeRestartCountdown)); got != 3 {
		t.Errorf("countdown events = %d, want one per tick (3)", got)
	}
	if state := f.coordinator.Countdown(); state.AllEnded {
		t.Error("AllEnded = true while item 2 is still active")
	}
}

func TestCoordinator_CoordinatedReset(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, 2*time.Minute, 90*time.Second)
	ctx := context.Background()

	bidder := "alice"
	f.registry.apply("2", func(item *models.AuctionItem) {
		item.CurrentBid = 400
		item.CurrentBidder = &bidder
	})

	f.clock.Advance(2 * time.Minute)
	f.coordinator.Tick(ctx)

	allEndedAt := f.clock.Now()
	state := f.coordinator.Countdown()
	if !state.AllEnded {
		t.Fatal("AllEnded = false after every item expired")
	}
	if !state.AllEndedAt.Equal(allEndedAt) {
		t.Errorf("AllEndedAt = %v, want %v", state.AllEndedAt, allEndedAt)
	}
	if state.RemainingMs != 30_000 {
		t.Errorf("RemainingMs = %d, want 30000", state.RemainingMs)
	}

	f.clock.Advance(10 * time.Second)
	f.coordinator.Tick(ctx)
	if got := f.coordinator.Countdown().RemainingMs; got != 20_000 {
		t.Errorf("RemainingMs = %d, want 20000", got)
	}
	if got := len(f.pub.ofType(events.EventTypeItemsReset)); got != 0 {
		t.Fatalf("reset fired early: %d events", got)
	}

	f.clock.Advance(20 * time.Second)
	f.coordinator.Tick(ctx)

	resets := f.pub.ofType(events.EventTypeItemsReset)
	if len(resets) != 1 {
		t.Fatalf("reset events = %d, want 1", len(resets))
	}
	var p events.ItemsResetPayload
	if err := json.Unmarshal(resets[0].Data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Reason != events.ResetReasonCoordinated {
		t.Errorf("reason = %q, want %q", p.Reason, events.ResetReasonCoordinated)
	}
	if len(p.Items) != 3 {
		t.Errorf("reset items = %d, want 3", len(p.Items))
	}

	now := f.clock.Now()
	for _, item := range f.registry.GetAll() {
		if item.CurrentBid != item.StartingPrice {
			t.Errorf("item %s CurrentBid = %v, want %v", item.ID, item.CurrentBid, item.StartingPrice)
		}
		if item.CurrentBidder != nil {
			t.Errorf("item %s CurrentBidder = %q, want nil", item.ID, *item.CurrentBidder)
		}
		if !item.AuctionEndTime.After(now) {
			t.Errorf("item %s AuctionEndTime = %v, want after %v", item.ID, item.AuctionEndTime, now)
		}
		if d := item.AuctionEndTime.Sub(now); d < 3*time.Minute || d > 8*time.Minute {
			t.Errorf("item %s duration = %v, want within [3m, 8m]", item.ID, d)
		}
	}

	if state := f.coordinator.Countdown(); state.AllEnded || state.AllEndedAt != nil {
		t.Errorf("barrier not cleared after reset: %+v", state)
	}
}

func TestCoordinator_ExtendedItemHoldsBarrier(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, time.Minute, time.Minute)
	ctx := context.Background()

	if _, err := f.coordinator.ExtendItem(ctx, "3", 5*time.Minute); err != nil {
		t.Fatalf("ExtendItem failed: %v", err)
	}

	f.clock.Advance(2 * time.Minute)
	f.coordinator.Tick(ctx)
	f.clock.Advance(time.Minute)
	f.coordinator.Tick(ctx)

	if state := f.coordinator.Countdown(); state.AllEnded {
		t.Fatalf("countdown started while item 3 is active: %+v", state)
	}
	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 2 {
		t.Errorf("ended events = %d, want 2", got)
	}

	f.clock.Advance(2 * time.Minute)
	f.coordinator.Tick(ctx)

	state := f.coordinator.Countdown()
	if !state.AllEnded {
		t.Fatal("AllEnded = false after the extended item expired")
	}
	if !state.AllEndedAt.Equal(f.clock.Now()) {
		t.Errorf("AllEndedAt = %v, want %v", state.AllEndedAt, f.clock.Now())
	}
}

func TestCoordinator_ActiveItemCancelsCountdown(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, time.Minute)
	ctx := context.Background()

	f.clock.Advance(time.Minute)
	f.coordinator.Tick(ctx)
	if !f.coordinator.Countdown().AllEnded {
		t.Fatal("countdown did not start")
	}

	f.clock.Advance(10 * time.Second)
	if _, err := f.coordinator.ExtendItem(ctx, "1", time.Minute); err != nil {
		t.Fatalf("ExtendItem failed: %v", err)
	}
	f.coordinator.Tick(ctx)

	if state := f.coordinator.Countdown(); state.AllEnded || state.AllEndedAt != nil {
		t.Errorf("countdown still running: %+v", state)
	}

	// The extended item is announced again when it expires.
	f.pub.reset()
	f.clock.Advance(time.Minute)
	f.coordinator.Tick(ctx)
	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 1 {
		t.Errorf("ended events after re-expiry = %d, want 1", got)
	}
}

func TestCoordinator_ManualResetBypassesBarrier(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, 10*time.Minute)
	ctx := context.Background()

	bidder := "bob"
	f.registry.apply("1", func(item *models.AuctionItem) {
		item.CurrentBid = 250
		item.CurrentBidder = &bidder
	})
	f.clock.Advance(2 * time.Minute)
	f.coordinator.Tick(ctx)

	reset := f.coordinator.ResetAll(ctx)
	if len(reset) != 2 {
		t.Fatalf("len(reset) = %d, want 2", len(reset))
	}
	for _, item := range reset {
		if item.CurrentBid != item.StartingPrice || item.CurrentBidder != nil {
			t.Errorf("item %s not reset: %+v", item.ID, item)
		}
		if !item.AuctionEndTime.After(f.clock.Now()) {
			t.Errorf("item %s AuctionEndTime = %v, want in the future", item.ID, item.AuctionEndTime)
		}
	}

	resets := f.pub.ofType(events.EventTypeItemsReset)
	if len(resets) != 1 {
		t.Fatalf("reset events = %d, want 1", len(resets))
	}
	var p events.ItemsResetPayload
	if err := json.Unmarshal(resets[0].Data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Reason != events.ResetReasonManual {
		t.Errorf("reason = %q, want %q", p.Reason, events.ResetReasonManual)
	}
}

func TestCoordinator_ResetDuringTickWaitsForPass(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, time.Minute)
	ctx := context.Background()
	f.clock.Advance(2 * time.Minute)

	resetDone := make(chan struct{})
	f.coordinator.afterSnapshot = func() {
		f.coordinator.afterSnapshot = nil
		go func() {
			f.coordinator.ResetAll(ctx)
			close(resetDone)
		}()
		select {
		case <-resetDone:
			t.Error("ResetAll completed while a tick was evaluating its snapshot")
		case <-time.After(50 * time.Millisecond):
		}
	}
	f.coordinator.Tick(ctx)

	select {
	case <-resetDone:
	case <-time.After(2 * time.Second):
		t.Fatal("ResetAll did not finish after the tick")
	}

	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 2 {
		t.Errorf("ended events = %d, want 2 from the pre-reset round", got)
	}
	if state := f.coordinator.Countdown(); state.AllEnded || state.AllEndedAt != nil {
		t.Errorf("barrier survived the reset: %+v", state)
	}

	// The fresh round is neither pre-announced nor swallowed.
	f.pub.reset()
	f.coordinator.Tick(ctx)
	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 0 {
		t.Fatalf("ended events for fresh items = %d, want 0", got)
	}
	f.clock.Advance(9 * time.Minute)
	f.coordinator.Tick(ctx)
	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 2 {
		t.Errorf("ended events after fresh round expired = %d, want 2", got)
	}
}

func TestCoordinator_IsolatesItemFaults(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute, time.Minute)
	ctx := context.Background()

	f.coordinator.inspect = func(item models.AuctionItem, now time.Time) (bool, error) {
		if item.ID == "2" {
			panic("corrupt item")
		}
		return inspectItem(item, now)
	}

	f.clock.Advance(2 * time.Minute)
	f.coordinator.Tick(ctx)

	if got := len(f.pub.ofType(events.EventTypeAuctionEnded)); got != 1 {
		t.Errorf("ended events = %d, want 1", got)
	}
	countdowns := f.pub.ofType(events.EventTypeRestartCountdown)
	if len(countdowns) != 1 {
		t.Fatalf("countdown events = %d, want 1", len(countdowns))
	}
	if state := decodeCountdown(t, countdowns[0]); state.AllEnded {
		t.Error("AllEnded = true although item 2 could not be inspected")
	}
}

func TestCoordinator_ExtendUnknownItem(t *testing.T) {
	f := newCoordinatorFixture(t, time.Minute)
	if _, err := f.coordinator.ExtendItem(context.Background(), "nope", time.Minute); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
	if _, err := f.coordinator.ExtendItem(context.Background(), "1", 0); !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("err = %v, want ErrInvalidExtension", err)
	}
}

func TestCoordinator_RunTicksOnClock(t *testing.T) {
	f := newCoordinatorFixture(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		f.coordinator.Run(ctx)
		close(done)
	}()

	waitFor(t, "first tick", func() bool {
		return len(f.pub.ofType(events.EventTypeRestartCountdown)) == 1
	})

	blockCtx, blockCancel := context.WithTimeout(ctx, 2*time.Second)
	defer blockCancel()
	if err := f.clock.BlockUntilContext(blockCtx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	f.clock.Advance(time.Second)
	waitFor(t, "second tick", func() bool {
		return len(f.pub.ofType(events.EventTypeRestartCountdown)) == 2
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
