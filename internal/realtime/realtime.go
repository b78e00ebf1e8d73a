// Package realtime pushes live auction events to subscribed clients.
package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
)

// Event names sent to clients
const (
	EventNewBid         = "new-bid"
	EventBidPlaced      = "bid-placed"
	EventBidIndicator   = "bid-indicator"
	EventNotification   = "notification"
	EventAuctionStarted = "auction-started"
	EventAuctionEnded   = "auction-ended"
	EventAuctionStatus  = "auction-status"
)

const (
	auctionPrefix = "auction-"
	userPrefix    = "private-user-"
	privatePrefix = "private-"
)

// Publisher sends one event on one channel
type Publisher interface {
	Publish(ctx context.Context, channel, event string, payload any) error
}

// AuctionChannel is the public channel of an auction
func AuctionChannel(auctionID string) string {
	return auctionPrefix + auctionID
}

// UserChannel is the private channel of a user
func UserChannel(userID string) string {
	return userPrefix + userID
}

// Authorize decides whether caller may subscribe to channel. Public auction channels
// are open to every authenticated caller; a private user channel only to its owner.
func Authorize(channel string, caller models.Caller) error {
	switch {
	case strings.HasPrefix(channel, userPrefix):
		if caller.ID == "" || strings.TrimPrefix(channel, userPrefix) != caller.ID {
			return fmt.Errorf("%w: channel %s", auctionerrors.ErrForbidden, channel)
		}
		return nil
	case strings.HasPrefix(channel, privatePrefix):
		return fmt.Errorf("%w: unknown private channel %s", auctionerrors.ErrForbidden, channel)
	case strings.HasPrefix(channel, auctionPrefix) && len(channel) > len(auctionPrefix):
		return nil
	default:
		return fmt.Errorf("%w: unknown channel %q", auctionerrors.ErrInvalidInput, channel)
	}
}

// AuctionEnded announces the outcome of an auction on its public channel
type AuctionEnded struct {
	AuctionID  string               `json:"auctionId"`
	Status     models.AuctionStatus `json:"status"`
	WinnerID   *string              `json:"winnerId"`
	FinalPrice *decimal.Decimal     `json:"finalPrice"`
	BuyNow     bool                 `json:"buyNow,omitempty"`
}

// Ended builds the auction-ended payload of a committed auction
func Ended(a *models.Auction, buyNow bool) AuctionEnded {
	p := AuctionEnded{AuctionID: a.ID, Status: a.Status, WinnerID: a.WinnerID, BuyNow: buyNow}
	if a.FinalPrice.Valid {
		price := a.FinalPrice.Decimal
		p.FinalPrice = &price
	}
	return p
}

// AuctionStarted announces that bidding opened
type AuctionStarted struct {
	AuctionID string               `json:"auctionId"`
	Status    models.AuctionStatus `json:"status"`
	StartTime time.Time            `json:"startTime"`
	EndTime   time.Time            `json:"endTime"`
}

// AuctionStatusChanged announces any other status change
type AuctionStatusChanged struct {
	AuctionID string               `json:"auctionId"`
	Status    models.AuctionStatus `json:"status"`
}
