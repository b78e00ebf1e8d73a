package ranking

import (
	"sort"

	"github.com/xtrntr/carauction/internal/models"
)

// Book keeps the bids of one auction ranked by amount, highest first
type Book struct {
	Bids []models.Bid
}

// NewBook creates a book from existing bids
func NewBook(bids ...models.Bid) *Book {
	b := &Book{Bids: append([]models.Bid{}, bids...)}
	Sort(b.Bids)
	return b
}

// Add inserts a bid keeping amount-time priority
func (b *Book) Add(bid models.Bid) {
	b.Bids = append(b.Bids, bid)
	Sort(b.Bids)
}

// Top returns at most n leading bids
func (b *Book) Top(n int) []models.Bid {
	if n > len(b.Bids) {
		n = len(b.Bids)
	}
	return append([]models.Bid{}, b.Bids[:n]...)
}

// Len returns the number of bids in the book
func (b *Book) Len() int {
	return len(b.Bids)
}

// Sort orders bids by amount descending; equal amounts keep the earliest bid first
func Sort(bids []models.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount.Equal(bids[j].Amount) {
			return bids[i].CreatedAt.Before(bids[j].CreatedAt)
		}
		return bids[i].Amount.GreaterThan(bids[j].Amount)
	})
}

// Highest returns the leading bid of an unsorted slice, nil when empty
func Highest(bids []models.Bid) *models.Bid {
	var best *models.Bid
	for i := range bids {
		b := &bids[i]
		if best == nil || b.Amount.GreaterThan(best.Amount) ||
			(b.Amount.Equal(best.Amount) && b.CreatedAt.Before(best.CreatedAt)) {
			best = b
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// DistinctBidders returns each bidder once, in slice order, skipping exclude
func DistinctBidders(bids []models.Bid, exclude string) []string {
	seen := make(map[string]bool, len(bids))
	var out []string
	for _, b := range bids {
		if b.UserID == exclude || seen[b.UserID] {
			continue
		}
		seen[b.UserID] = true
		out = append(out, b.UserID)
	}
	return out
}

// HasBid reports whether userID placed any of the bids
func HasBid(bids []models.Bid, userID string) bool {
	for _, b := range bids {
		if b.UserID == userID {
			return true
		}
	}
	return false
}
