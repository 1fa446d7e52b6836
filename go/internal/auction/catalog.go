package auction

import "github.com/mcdev12/auctionhouse/go/internal/models"

// DefaultCatalog is the item set used when the config file declares none.
func DefaultCatalog() []models.AuctionItem {
	return []models.AuctionItem{
		{
			ID:            "1",
			Title:         "Vintage Rolex Submariner",
			Description:   "1968 reference 5513 with matte dial, serviced last year.",
			ImageURL:      "https://images.unsplash.com/photo-1523170335258-f5ed11844a49",
			StartingPrice: 100,
		},
		{
			ID:            "2",
			Title:         "Signed Michael Jordan Jersey",
			Description:   "1996 Chicago Bulls home jersey with certificate of authenticity.",
			ImageURL:      "https://images.unsplash.com/photo-1546519638-68e109498ffc",
			StartingPrice: 250,
		},
		{
			ID:            "3",
			Title:         "Leica M6 Film Camera",
			Description:   "Black chrome body with Summicron 35mm f/2 lens.",
			ImageURL:      "https://images.unsplash.com/photo-1516035069371-29a1b244cc32",
			StartingPrice: 150,
		},
		{
			ID:            "4",
			Title:         "First Edition Dune",
			Description:   "Chilton Books 1965 hardcover, first printing, original dust jacket.",
			ImageURL:      "https://images.unsplash.com/photo-1544947950-fa07a98d237f",
			StartingPrice: 500,
		},
	}
}
