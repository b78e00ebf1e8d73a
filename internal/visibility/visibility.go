// Package visibility decides which bids, identities and aggregates of an auction a viewer may see.
package visibility

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/ranking"
)

// Placeholder identity of other bidders in ANONYMOUS auctions
const (
	MaskedBidderID   = "other"
	MaskedBidderName = "Anonymous"
)

// View is the projection of one auction returned to a viewer.
// BidCount shadows the count of the embedded auction so it can be withheld.
type View struct {
	models.Auction
	BidCount         *int             `json:"bidCount"`
	Bids             []models.Bid     `json:"bids"`
	HighestBidAmount *decimal.Decimal `json:"highestBidAmount"`
	UserIsHighest    *bool            `json:"userIsHighest"`
	Participated     bool             `json:"participated"`
}

// Project builds the view of auction a and its bids for viewer
func Project(a models.Auction, bids []models.Bid, viewer models.Caller) View {
	participated := ranking.HasBid(bids, viewer.ID)
	highest := ranking.Highest(bids)

	if viewer.IsAdmin() {
		v := newView(a, bids, participated)
		v.setHighest(highest, viewer.ID, participated)
		return v
	}

	a = redactSettings(a)
	ended := a.Status == models.StatusEnded

	if ended && !participated {
		a.WinnerID = nil
		a.FinalPrice = decimal.NullDecimal{}
		v := newView(a, []models.Bid{}, false)
		v.BidCount = bidCount(a)
		return v
	}

	v := newView(a, bids, participated)
	v.BidCount = bidCount(a)
	if ended {
		v.setHighest(highest, viewer.ID, participated)
		return v
	}

	switch a.Type {
	case models.TypeSealed:
		v.Bids = own(bids, viewer.ID)
	case models.TypeIndicator:
		v.Bids = own(bids, viewer.ID)
		v.setHighest(highest, viewer.ID, participated)
	case models.TypeAnonymous:
		v.Bids = masked(bids, viewer.ID)
		v.setHighest(highest, viewer.ID, participated)
	default:
		v.setHighest(highest, viewer.ID, participated)
	}
	return v
}

// Summarize projects an auction for a list where bids are not loaded.
// participated reports whether the viewer bid on it.
func Summarize(a models.Auction, viewer models.Caller, participated bool) models.Auction {
	if viewer.IsAdmin() {
		return a
	}
	a = redactSettings(a)
	if !a.ShowBidCount {
		a.BidCount = 0
	}
	if a.Status == models.StatusEnded && !participated {
		a.WinnerID = nil
		a.FinalPrice = decimal.NullDecimal{}
	}
	return a
}

func newView(a models.Auction, bids []models.Bid, participated bool) View {
	count := a.BidCount
	return View{
		Auction:      a,
		BidCount:     &count,
		Bids:         bids,
		Participated: participated,
	}
}

func (v *View) setHighest(highest *models.Bid, viewerID string, participated bool) {
	if highest == nil {
		return
	}
	amount := highest.Amount
	v.HighestBidAmount = &amount
	if participated {
		isHighest := highest.UserID == viewerID
		v.UserIsHighest = &isHighest
	}
}

// redactSettings hides what the auction settings keep from buyers
func redactSettings(a models.Auction) models.Auction {
	if !a.ShowReservePrice {
		a.ReservePrice = decimal.NullDecimal{}
	}
	return a
}

func bidCount(a models.Auction) *int {
	if !a.ShowBidCount {
		return nil
	}
	count := a.BidCount
	return &count
}

func own(bids []models.Bid, viewerID string) []models.Bid {
	out := []models.Bid{}
	for _, b := range bids {
		if b.UserID == viewerID {
			out = append(out, b)
		}
	}
	return out
}

func masked(bids []models.Bid, viewerID string) []models.Bid {
	out := make([]models.Bid, len(bids))
	for i, b := range bids {
		if b.UserID != viewerID {
			b.UserID = MaskedBidderID
			b.UserName = MaskedBidderName
		}
		out[i] = b
	}
	return out
}
