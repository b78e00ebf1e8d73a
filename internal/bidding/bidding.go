// Package bidding accepts bids and buy-now purchases. Every acceptance runs in one
// serializable store transaction; broadcasts and notifications follow the commit and
// never undo it.
package bidding

import (
	"context"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/notify"
	"github.com/xtrntr/carauction/internal/store"
)

// Notifier delivers the side effects of an accepted bid
type Notifier interface {
	NotifyMany(ctx context.Context, notifications []models.Notification) error
	Broadcast(ctx context.Context, channel, event string, payload any)
	Send(ctx context.Context, events []notify.Event)
}

// Receipt is returned for an accepted bid
type Receipt struct {
	BidID     string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Engine struct {
	store    store.Store
	notifier Notifier
	auditor  audit.Recorder
	clock    clock.Clock
	logger   logrus.FieldLogger
}

func NewEngine(st store.Store, notifier Notifier, auditor audit.Recorder, clk clock.Clock, logger logrus.FieldLogger) *Engine {
	return &Engine{
		store:    st,
		notifier: notifier,
		auditor:  auditor,
		clock:    clk,
		logger:   logger,
	}
}

// placed is what the acceptance transaction hands to the side effects
type placed struct {
	auction  *models.Auction
	bid      *models.Bid
	bidCount int

	// previous leader, non-SEALED only
	previous *models.Bid

	// INDICATOR only
	bidders []string
	highest *models.Bid
}

// bidder loads the caller and checks it may bid
func (e *Engine) bidder(ctx context.Context, caller models.Caller) (*models.User, error) {
	if caller.ID == "" {
		return nil, auctionerrors.ErrUnauthorized
	}
	if caller.Role != models.RoleBuyer {
		return nil, fmt.Errorf("%w: only buyers can bid", auctionerrors.ErrForbidden)
	}
	user, err := e.store.GetUser(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	if !user.CanBid() {
		return nil, fmt.Errorf("%w: account is %s", auctionerrors.ErrForbidden, user.Status)
	}
	return user, nil
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", auctionerrors.ErrInvalidInput)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount has more than two decimal places", auctionerrors.ErrInvalidInput)
	}
	return nil
}

// checkLive verifies the auction accepts bids at now
func checkLive(a *models.Auction, now time.Time) error {
	if a.Status != models.StatusLive {
		return fmt.Errorf("%w: auction is %s", auctionerrors.ErrAuctionNotActive, a.Status)
	}
	if now.After(a.EndTime) {
		return fmt.Errorf("%w: auction ended at %s", auctionerrors.ErrAuctionExpired, a.EndTime.Format(time.RFC3339))
	}
	return nil
}

// PlaceBid validates and commits one bid
func (e *Engine) PlaceBid(ctx context.Context, caller models.Caller, auctionID string, amount decimal.Decimal) (*Receipt, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	user, err := e.bidder(ctx, caller)
	if err != nil {
		return nil, err
	}

	var res placed
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		res = placed{}

		a, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if err := checkLive(a, now); err != nil {
			return err
		}
		if a.StartingPrice.Valid && amount.LessThan(a.StartingPrice.Decimal) {
			return fmt.Errorf("%w: minimum bid is %s %s", auctionerrors.ErrBelowMinimum, a.StartingPrice.Decimal.StringFixed(2), a.Currency)
		}

		top, err := tx.TopBids(ctx, auctionID, 1)
		if err != nil {
			return err
		}
		if a.Type != models.TypeSealed && len(top) > 0 {
			if !amount.GreaterThan(top[0].Amount) {
				return fmt.Errorf("%w: current highest is %s %s", auctionerrors.ErrMustExceedCurrent, top[0].Amount.StringFixed(2), a.Currency)
			}
			res.previous = &top[0]
		}

		bid, err := tx.InsertBid(ctx, models.Bid{
			AuctionID: auctionID,
			UserID:    user.ID,
			Amount:    amount,
			CreatedAt: now,
		})
		if err != nil {
			return err
		}
		if res.bidCount, err = tx.CountBids(ctx, auctionID); err != nil {
			return err
		}

		if a.Type == models.TypeIndicator {
			if res.bidders, err = tx.DistinctBidders(ctx, auctionID); err != nil {
				return err
			}
			highest, err := tx.TopBids(ctx, auctionID, 1)
			if err != nil {
				return err
			}
			if len(highest) > 0 {
				res.highest = &highest[0]
			}
		}

		res.auction, res.bid = a, bid
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bidding.Engine.PlaceBid: %w", err)
	}

	res.bid.UserName = user.Name
	e.afterBid(ctx, res)

	e.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionBidPlaced,
		UserID:   user.ID,
		TargetID: auctionID,
		Metadata: map[string]any{"amount": amount.StringFixed(2)},
	})

	return &Receipt{BidID: res.bid.ID, Amount: res.bid.Amount, CreatedAt: res.bid.CreatedAt}, nil
}

// BuyNow buys the auction at its buy-now price and ends it in the same transaction
func (e *Engine) BuyNow(ctx context.Context, caller models.Caller, auctionID string) (*models.Auction, error) {
	user, err := e.bidder(ctx, caller)
	if err != nil {
		return nil, err
	}

	var (
		ended  *models.Auction
		others []string
	)
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		now := e.clock.Now()
		if err := checkLive(a, now); err != nil {
			return err
		}
		if !a.BuyNowEnabled || !a.BuyNowPrice.Valid {
			return fmt.Errorf("%w: buy now is not available for this auction", auctionerrors.ErrInvalidInput)
		}
		price := a.BuyNowPrice.Decimal

		if a.Type != models.TypeSealed {
			top, err := tx.TopBids(ctx, auctionID, 1)
			if err != nil {
				return err
			}
			if len(top) > 0 && !price.GreaterThan(top[0].Amount) {
				return fmt.Errorf("%w: current highest is %s %s", auctionerrors.ErrMustExceedCurrent, top[0].Amount.StringFixed(2), a.Currency)
			}
		}

		if _, err := tx.InsertBid(ctx, models.Bid{
			AuctionID: auctionID,
			UserID:    user.ID,
			Amount:    price,
			IsBuyNow:  true,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		winner := user.ID
		ended, err = tx.TransitionAuction(ctx, auctionID, models.StatusLive, store.StatusChange{
			To:         models.StatusEnded,
			SetOutcome: true,
			WinnerID:   &winner,
			FinalPrice: a.BuyNowPrice,
		})
		if err != nil {
			return err
		}

		bidders, err := tx.DistinctBidders(ctx, auctionID)
		if err != nil {
			return err
		}
		others = others[:0]
		for _, id := range bidders {
			if id != user.ID {
				others = append(others, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bidding.Engine.BuyNow: %w", err)
	}

	e.afterBuyNow(ctx, ended, user.ID, others)

	e.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionBuyNow,
		UserID:   user.ID,
		TargetID: auctionID,
		Metadata: map[string]any{"amount": ended.FinalPrice.Decimal.StringFixed(2)},
	})

	return ended, nil
}
