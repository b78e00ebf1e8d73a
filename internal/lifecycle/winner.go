package lifecycle

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/realtime"
	"github.com/xtrntr/carauction/internal/store"
)

// Outcome is the result of winner determination
type Outcome struct {
	WinnerID   *string
	FinalPrice decimal.NullDecimal
}

// Determine picks the winner from the highest bid. With a reserve price the highest
// bid wins only when it is at least the reserve.
func Determine(highest *models.Bid, reserve decimal.NullDecimal) Outcome {
	if highest == nil {
		return Outcome{}
	}
	if reserve.Valid && highest.Amount.LessThan(reserve.Decimal) {
		return Outcome{}
	}
	winner := highest.UserID
	return Outcome{WinnerID: &winner, FinalPrice: decimal.NewNullDecimal(highest.Amount)}
}

// end determines the winner of a LIVE auction and commits ENDED in one transaction,
// then fans out the result. Losing a race to another end reports ErrConflict.
func (m *Machine) end(ctx context.Context, auctionID string) (*models.Auction, error) {
	var (
		ended   *models.Auction
		bidders []string
	)
	err := m.store.InTx(ctx, func(tx store.Tx) error {
		a, err := tx.GetAuction(ctx, auctionID)
		if err != nil {
			return err
		}
		if a.Status != models.StatusLive {
			return fmt.Errorf("%w: auction %s is %s", auctionerrors.ErrConflict, a.ID, a.Status)
		}

		top, err := tx.TopBids(ctx, auctionID, 1)
		if err != nil {
			return err
		}
		var highest *models.Bid
		if len(top) > 0 {
			highest = &top[0]
		}
		outcome := Determine(highest, a.ReservePrice)

		ended, err = tx.TransitionAuction(ctx, auctionID, models.StatusLive, store.StatusChange{
			To:         models.StatusEnded,
			SetOutcome: true,
			WinnerID:   outcome.WinnerID,
			FinalPrice: outcome.FinalPrice,
		})
		if err != nil {
			return err
		}

		bidders, err = tx.DistinctBidders(ctx, auctionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.afterEnd(ctx, ended, bidders)
	return ended, nil
}

func (m *Machine) afterEnd(ctx context.Context, a *models.Auction, bidders []string) {
	logger := m.logger.WithField("auction_id", a.ID)
	m.notifier.Broadcast(ctx, realtime.AuctionChannel(a.ID), realtime.EventAuctionEnded, realtime.Ended(a, false))

	data := map[string]any{"auctionId": a.ID}
	winner := ""
	if a.HasWinner() {
		winner = *a.WinnerID
		err := m.notifier.NotifyMany(ctx, []models.Notification{{
			UserID:  winner,
			Type:    models.NotificationAuctionWon,
			Title:   "You won the auction",
			Message: fmt.Sprintf("You won %s for %s %s", a.VehicleName, a.FinalPrice.Decimal.StringFixed(2), a.Currency),
			Data:    data,
		}})
		if err != nil {
			logger.WithError(err).WithField("user_id", winner).Error("Failed to notify winner")
		}
	}

	var lost []models.Notification
	for _, userID := range bidders {
		if userID == winner {
			continue
		}
		lost = append(lost, models.Notification{
			UserID:  userID,
			Type:    models.NotificationAuctionLost,
			Title:   "Auction ended",
			Message: fmt.Sprintf("The auction for %s ended without your bid winning", a.VehicleName),
			Data:    data,
		})
	}
	if err := m.notifier.NotifyMany(ctx, lost); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{"losers": len(lost)}).Error("Failed to notify losing bidders")
	}
}
