package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/auction/events"
	"github.com/mcdev12/auctionhouse/go/internal/models"
)

var testStart = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// recordingPublisher keeps every published envelope.
type recordingPublisher struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) ofType(t events.EventType) []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Envelope
	for _, env := range p.envs {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = nil
}

func testItems(n int) []models.AuctionItem {
	items := make([]models.AuctionItem, 0, n)
	ids := []string{"1", "2", "3", "4", "5", "6"}
	for i := 0; i < n; i++ {
		items = append(items, models.AuctionItem{
			ID:            ids[i],
			Title:         "Item " + ids[i],
			StartingPrice: 100,
		})
	}
	return items
}

// endTimesAt yields the given end times in order, repeating the last one.
func endTimesAt(times ...time.Time) func() time.Time {
	var mu sync.Mutex
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
