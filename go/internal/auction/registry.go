package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
)

// ErrItemNotFound is returned when no item has the requested id
var ErrItemNotFound = errors.New("auction item not found")

// Registry is the in-memory catalog of auction items and the single source of
// truth for price, bidder and end time. Readers only ever receive snapshots;
// mutation is reserved to the serializer and the coordinator in this package.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*models.AuctionItem
	order []string
}

// NewRegistry creates a registry seeded with items. Each item starts at its
// starting price with no bidder and an end time assigned by endTime.
func NewRegistry(items []models.AuctionItem, endTime func() time.Time) (*Registry, error) {
	r := &Registry{
		items: make(map[string]*models.AuctionItem, len(items)),
		order: make([]string, 0, len(items)),
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("auction item with title %q has no id", it.Title)
		}
		if _, dup := r.items[it.ID]; dup {
			return nil, fmt.Errorf("duplicate auction item id %q", it.ID)
		}
		if it.StartingPrice <= 0 {
			return nil, fmt.Errorf("auction item %q: starting price must be positive", it.ID)
		}
		item := it.Clone()
		item.CurrentBid = item.StartingPrice
		item.CurrentBidder = nil
		item.CurrentBidderName = nil
		item.AuctionEndTime = endTime()
		r.items[item.ID] = &item
		r.order = append(r.order, item.ID)
	}
	return r, nil
}

// GetAll returns snapshots of every item in catalog order
func (r *Registry) GetAll() []models.AuctionItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.AuctionItem, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Clone())
	}
	return out
}

// GetByID returns a snapshot of one item
func (r *Registry) GetByID(id string) (models.AuctionItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return models.AuctionItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return item.Clone(), nil
}

// Len returns the number of items in the catalog
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// apply runs fn against the live item under the write lock. fn must not retain
// the pointer. ok is false when the item does not exist.
func (r *Registry) apply(id string, fn func(item *models.AuctionItem)) (ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, exists := r.items[id]
	if !exists {
		return false
	}
	fn(item)
	return true
}

// resetAll puts every item back to its starting price with a fresh end time and
// returns snapshots of the reset items.
func (r *Registry) resetAll(endTime func() time.Time) []models.AuctionItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.AuctionItem, 0, len(r.order))
	for _, id := range r.order {
		item := r.items[id]
		item.CurrentBid = item.StartingPrice
		item.CurrentBidder = nil
		item.CurrentBidderName = nil
		item.AuctionEndTime = endTime()
		out = append(out, item.Clone())
	}
	return out
}

// setEndTime moves one item's end time
func (r *Registry) setEndTime(id string, t time.Time) (models.AuctionItem, error) {
	var snapshot models.AuctionItem
	ok := r.apply(id, func(item *models.AuctionItem) {
		item.AuctionEndTime = t
		snapshot = item.Clone()
	})
	if !ok {
		return models.AuctionItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return snapshot, nil
}
