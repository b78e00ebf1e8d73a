package bidding

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/notify"
	"github.com/xtrntr/carauction/internal/realtime"
)

// BidPlaced acknowledges a bid on the bidder's private channel
type BidPlaced struct {
	AuctionID string          `json:"auctionId"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewBid announces a bid on the auction's public channel
type NewBid struct {
	AuctionID  string          `json:"auctionId"`
	HighestBid decimal.Decimal `json:"highestBid"`
	BidCount   *int            `json:"bidCount,omitempty"`
	BidderID   string          `json:"bidderId,omitempty"`
	BidderName string          `json:"bidderName,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// BidIndicator tells one bidder whether they lead
type BidIndicator struct {
	AuctionID  string           `json:"auctionId"`
	IsHighest  bool             `json:"isHighest"`
	HighestBid *decimal.Decimal `json:"highestBid,omitempty"`
	BidCount   *int             `json:"bidCount,omitempty"`
}

// events returns the realtime events of an accepted bid by auction type
func events(res placed) (public *NewBid, private []notify.Event) {
	a, bid := res.auction, res.bid
	own := realtime.UserChannel(bid.UserID)

	var count *int
	if a.ShowBidCount {
		c := res.bidCount
		count = &c
	}

	private = append(private, notify.Event{
		Channel: own,
		Event:   realtime.EventBidPlaced,
		Payload: BidPlaced{AuctionID: a.ID, Amount: bid.Amount, Timestamp: bid.CreatedAt},
	})

	switch a.Type {
	case models.TypeOpen:
		public = &NewBid{
			AuctionID:  a.ID,
			HighestBid: bid.Amount,
			BidCount:   count,
			BidderID:   bid.UserID,
			BidderName: bid.UserName,
			Timestamp:  bid.CreatedAt,
		}
	case models.TypeAnonymous:
		public = &NewBid{AuctionID: a.ID, HighestBid: bid.Amount, BidCount: count, Timestamp: bid.CreatedAt}
		private = append(private, notify.Event{
			Channel: own,
			Event:   realtime.EventBidIndicator,
			Payload: BidIndicator{AuctionID: a.ID, IsHighest: true},
		})
	case models.TypeIndicator:
		var highest *decimal.Decimal
		leader := ""
		if res.highest != nil {
			amount := res.highest.Amount
			highest, leader = &amount, res.highest.UserID
		}
		for _, userID := range res.bidders {
			private = append(private, notify.Event{
				Channel: realtime.UserChannel(userID),
				Event:   realtime.EventBidIndicator,
				Payload: BidIndicator{AuctionID: a.ID, IsHighest: userID == leader, HighestBid: highest, BidCount: count},
			})
		}
	}
	return public, private
}

func (e *Engine) afterBid(ctx context.Context, res placed) {
	a, bid := res.auction, res.bid
	logger := e.logger.WithFields(logrus.Fields{
		"auction_id": a.ID,
		"user_id":    bid.UserID,
	})

	public, private := events(res)
	if public != nil {
		e.notifier.Broadcast(ctx, realtime.AuctionChannel(a.ID), realtime.EventNewBid, *public)
	}
	e.notifier.Send(ctx, private)

	if res.previous != nil && res.previous.UserID != bid.UserID {
		err := e.notifier.NotifyMany(ctx, []models.Notification{{
			UserID:  res.previous.UserID,
			Type:    models.NotificationOutbid,
			Title:   "You have been outbid",
			Message: fmt.Sprintf("Someone placed a higher bid on %s", a.VehicleName),
			Data:    map[string]any{"auctionId": a.ID, "amount": bid.Amount.StringFixed(2)},
		}})
		if err != nil {
			logger.WithError(err).Warn("Failed to notify outbid user")
		}
	}

	admins, err := e.store.ActiveUsers(ctx, models.RoleAdmin)
	if err != nil {
		logger.WithError(err).Warn("Failed to load admins")
		return
	}
	message := fmt.Sprintf("%s bid %s %s on %s", bid.UserName, bid.Amount.StringFixed(2), a.Currency, a.VehicleName)
	notifications := make([]models.Notification, 0, len(admins))
	for _, admin := range admins {
		notifications = append(notifications, models.Notification{
			UserID:  admin.ID,
			Type:    models.NotificationNewBid,
			Title:   "New bid",
			Message: message,
			Data:    map[string]any{"auctionId": a.ID, "amount": bid.Amount.StringFixed(2)},
		})
	}
	if err := e.notifier.NotifyMany(ctx, notifications); err != nil {
		logger.WithError(err).Warn("Failed to notify admins")
	}
}

func (e *Engine) afterBuyNow(ctx context.Context, a *models.Auction, buyerID string, others []string) {
	e.notifier.Broadcast(ctx, realtime.AuctionChannel(a.ID), realtime.EventAuctionEnded, realtime.Ended(a, true))

	data := map[string]any{"auctionId": a.ID}
	notifications := []models.Notification{{
		UserID:  buyerID,
		Type:    models.NotificationBuyNow,
		Title:   "Purchased",
		Message: fmt.Sprintf("You bought %s for %s %s", a.VehicleName, a.FinalPrice.Decimal.StringFixed(2), a.Currency),
		Data:    data,
	}}
	for _, userID := range others {
		notifications = append(notifications, models.Notification{
			UserID:  userID,
			Type:    models.NotificationAuctionEnd,
			Title:   "Auction ended",
			Message: fmt.Sprintf("The auction for %s ended with a buy now purchase", a.VehicleName),
			Data:    data,
		})
	}

	if err := e.notifier.NotifyMany(ctx, notifications); err != nil {
		e.logger.WithError(err).WithField("auction_id", a.ID).Warn("Failed to notify buy now participants")
	}
}
