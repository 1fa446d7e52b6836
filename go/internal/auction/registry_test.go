package auction

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mcdev12/auctionhouse/go/internal/models"
)

func TestNewRegistry_SeedsFreshItems(t *testing.T) {
	end := testStart.Add(5 * time.Minute)
	seed := testItems(3)
	bidder := "stale"
	seed[0].CurrentBid = 999
	seed[0].CurrentBidder = &bidder

	r, err := NewRegistry(seed, endTimesAt(end))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	items := r.GetAll()
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	for i, item := range items {
		if item.ID != seed[i].ID {
			t.Errorf("items[%d].ID = %q, want %q", i, item.ID, seed[i].ID)
		}
		if item.CurrentBid != item.StartingPrice {
			t.Errorf("items[%d].CurrentBid = %v, want %v", i, item.CurrentBid, item.StartingPrice)
		}
		if item.CurrentBidder != nil {
			t.Errorf("items[%d].CurrentBidder = %q, want nil", i, *item.CurrentBidder)
		}
		if !item.AuctionEndTime.Equal(end) {
			t.Errorf("items[%d].AuctionEndTime = %v, want %v", i, item.AuctionEndTime, end)
		}
	}
}

func TestNewRegistry_RejectsInvalidCatalog(t *testing.T) {
	end := endTimesAt(testStart)

	tests := []struct {
		name  string
		items []models.AuctionItem
	}{
		{"missing id", []models.AuctionItem{{Title: "x", StartingPrice: 10}}},
		{"duplicate id", []models.AuctionItem{{ID: "a", StartingPrice: 10}, {ID: "a", StartingPrice: 20}}},
		{"zero starting price", []models.AuctionItem{{ID: "a"}}},
		{"negative starting price", []models.AuctionItem{{ID: "a", StartingPrice: -5}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.items, end); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRegistry_GetAllIsIdempotent(t *testing.T) {
	r, err := NewRegistry(testItems(4), endTimesAt(testStart.Add(time.Minute)))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	first := r.GetAll()
	second := r.GetAll()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("GetAll returned different snapshots:\n%v\n%v", first, second)
	}
}

func TestRegistry_SnapshotsAreIndependent(t *testing.T) {
	r, err := NewRegistry(testItems(1), endTimesAt(testStart.Add(time.Minute)))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	bidder := "alice"
	r.apply("1", func(item *models.AuctionItem) {
		item.CurrentBid = 150
		item.CurrentBidder = &bidder
	})

	snap, err := r.GetByID("1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	*snap.CurrentBidder = "mallory"
	snap.CurrentBid = 1

	again, _ := r.GetByID("1")
	if again.CurrentBid != 150 {
		t.Errorf("CurrentBid = %v, want 150", again.CurrentBid)
	}
	if got := *again.CurrentBidder; got != "alice" {
		t.Errorf("CurrentBidder = %q, want %q", got, "alice")
	}
}

func TestRegistry_GetByIDNotFound(t *testing.T) {
	r, err := NewRegistry(testItems(1), endTimesAt(testStart))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	_, err = r.GetByID("missing")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("err = %v, want ErrItemNotFound", err)
	}
}

func TestRegistry_ResetAll(t *testing.T) {
	r, err := NewRegistry(testItems(2), endTimesAt(testStart))
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	bidder := "bob"
	r.apply("2", func(item *models.AuctionItem) {
		item.CurrentBid = 300
		item.CurrentBidder = &bidder
	})

	fresh := testStart.Add(4 * time.Minute)
	reset := r.resetAll(endTimesAt(fresh))
	if len(reset) != 2 {
		t.Fatalf("len(reset) = %d, want 2", len(reset))
	}
	for _, item := range r.GetAll() {
		if item.CurrentBid != item.StartingPrice || item.CurrentBidder != nil {
			t.Errorf("item %s not reset: bid %v bidder %v", item.ID, item.CurrentBid, item.CurrentBidder)
		}
		if !item.AuctionEndTime.Equal(fresh) {
			t.Errorf("item %s AuctionEndTime = %v, want %v", item.ID, item.AuctionEndTime, fresh)
		}
	}
}
