package catalog

import (
	"context"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"code.cloudfoundry.org/workpool"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/memstore"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	st    *memstore.Store
	sink  *audit.Sink
	svc   *Service
	admin models.Caller
	buyer models.Caller
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clk := fakeclock.NewFakeClock(now)
	st := memstore.New(clk)
	pool, err := workpool.NewWorkPool(2)
	require.NoError(t, err)
	t.Cleanup(pool.Stop)
	sink := audit.NewSink(st, pool, logger)

	h := &harness{st: st, sink: sink, svc: New(st, sink, clk, logger)}
	h.admin = h.user(t, models.RoleAdmin)
	h.buyer = h.user(t, models.RoleBuyer)
	return h
}

func (h *harness) user(t *testing.T, role models.Role) models.Caller {
	t.Helper()
	u, err := h.st.CreateUser(context.Background(), models.User{
		Email:  gofakeit.Email(),
		Name:   gofakeit.Name(),
		Role:   role,
		Status: models.UserActive,
	})
	require.NoError(t, err)
	return models.Caller{ID: u.ID, Role: u.Role}
}

func (h *harness) vehicle(t *testing.T) *models.Vehicle {
	t.Helper()
	v, err := h.svc.CreateVehicle(context.Background(), h.admin, VehicleInput{
		Name: gofakeit.CarMaker() + " " + gofakeit.CarModel(),
		Specifications: models.Specifications{
			Year: gofakeit.IntRange(2005, 2024),
			Fuel: gofakeit.CarFuelType(),
		},
	})
	require.NoError(t, err)
	return v
}

func validInput(vehicleID string) AuctionInput {
	return AuctionInput{
		VehicleID:     vehicleID,
		Type:          models.TypeOpen,
		Currency:      "EUR",
		StartTime:     now.Add(time.Hour),
		EndTime:       now.Add(25 * time.Hour),
		StartingPrice: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
		BuyNowEnabled: true,
		BuyNowPrice:   decimal.NewNullDecimal(decimal.NewFromInt(5000)),
	}
}

func TestCreateAuction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	v := h.vehicle(t)

	a, err := h.svc.CreateAuction(ctx, h.admin, validInput(v.ID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, a.Status)
	assert.True(t, a.ShowBidCount, "bid count is shown unless disabled")
	assert.Equal(t, h.admin.ID, a.CreatedByID)

	_, err = h.svc.CreateAuction(ctx, h.admin, validInput(v.ID))
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput, "one auction per vehicle")

	_, err = h.svc.CreateAuction(ctx, h.buyer, validInput(h.vehicle(t).ID))
	assert.ErrorIs(t, err, auctionerrors.ErrForbidden)

	h.sink.Wait()
	var actions []string
	for _, e := range h.st.AuditEntries() {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionAuctionCreated)
	assert.Contains(t, actions, audit.ActionVehicleCreated)
}

func TestCreateAuction_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *AuctionInput)
	}{
		{"end before start", func(in *AuctionInput) { in.EndTime = in.StartTime.Add(-time.Minute) }},
		{"end equals start", func(in *AuctionInput) { in.EndTime = in.StartTime }},
		{"start in the past", func(in *AuctionInput) { in.StartTime = now.Add(-time.Minute) }},
		{"unknown type", func(in *AuctionInput) { in.Type = "DUTCH" }},
		{"unknown currency", func(in *AuctionInput) { in.Currency = "USD" }},
		{"negative starting price", func(in *AuctionInput) {
			in.StartingPrice = decimal.NewNullDecimal(decimal.NewFromInt(-1))
		}},
		{"fractional cents", func(in *AuctionInput) {
			in.ReservePrice = decimal.NewNullDecimal(decimal.RequireFromString("10.001"))
		}},
		{"buy now below starting price", func(in *AuctionInput) {
			in.BuyNowPrice = decimal.NewNullDecimal(decimal.NewFromInt(999))
		}},
		{"buy now without price", func(in *AuctionInput) { in.BuyNowPrice = decimal.NullDecimal{} }},
		{"missing vehicle", func(in *AuctionInput) { in.VehicleID = "" }},
	}

	h := newHarness(t)
	v := h.vehicle(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput(v.ID)
			tt.mutate(&in)
			_, err := h.svc.CreateAuction(context.Background(), h.admin, in)
			assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)
		})
	}
}

func TestUpdateAuction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, err := h.svc.CreateAuction(ctx, h.admin, validInput(h.vehicle(t).ID))
	require.NoError(t, err)

	sealed := models.TypeSealed
	updated, err := h.svc.UpdateAuction(ctx, h.admin, a.ID, AuctionPatch{Type: &sealed})
	require.NoError(t, err)
	assert.Equal(t, models.TypeSealed, updated.Type)
	assert.Equal(t, a.EndTime, updated.EndTime)

	early := a.StartTime.Add(-2 * time.Hour)
	_, err = h.svc.UpdateAuction(ctx, h.admin, a.ID, AuctionPatch{EndTime: &early})
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput, "merged end must follow the stored start")

	h.st.Seed(models.Auction{ID: "live", Status: models.StatusLive, Type: models.TypeOpen, Currency: "EUR"})
	_, err = h.svc.UpdateAuction(ctx, h.admin, "live", AuctionPatch{Type: &sealed})
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)
}

func TestDeleteVehicle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	free := h.vehicle(t)
	auctioned := h.vehicle(t)
	_, err := h.svc.CreateAuction(ctx, h.admin, validInput(auctioned.ID))
	require.NoError(t, err)

	require.NoError(t, h.svc.DeleteVehicle(ctx, h.admin, free.ID))
	_, err = h.svc.GetVehicle(ctx, h.admin, free.ID)
	assert.ErrorIs(t, err, auctionerrors.ErrNotFound)

	err = h.svc.DeleteVehicle(ctx, h.admin, auctioned.ID)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)

	err = h.svc.DeleteVehicle(ctx, h.buyer, auctioned.ID)
	assert.ErrorIs(t, err, auctionerrors.ErrForbidden)
}

func TestCreateVehicle_RequiresName(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateVehicle(context.Background(), h.admin, VehicleInput{Name: "   "})
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)
}

func TestListAuctions_BuyerScope(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	winner := "someone"

	seed := func(status models.AuctionStatus) *models.Auction {
		a := models.Auction{
			VehicleID:    h.vehicle(t).ID,
			Status:       status,
			Type:         models.TypeOpen,
			Currency:     "EUR",
			ReservePrice: decimal.NewNullDecimal(decimal.NewFromInt(100)),
			CreatedAt:    now,
		}
		if status == models.StatusEnded {
			a.WinnerID = &winner
			a.FinalPrice = decimal.NewNullDecimal(decimal.NewFromInt(500))
		}
		return h.st.Seed(a)
	}
	seed(models.StatusDraft)
	live := seed(models.StatusLive)
	endedOwn := seed(models.StatusEnded)
	endedOther := seed(models.StatusEnded)
	seed(models.StatusCancelled)

	_, err := h.st.InsertBid(ctx, models.Bid{AuctionID: endedOwn.ID, UserID: h.buyer.ID, Amount: decimal.NewFromInt(200)})
	require.NoError(t, err)

	all, err := h.svc.ListAuctions(ctx, h.admin, nil, store.NewPage(1, 0))
	require.NoError(t, err)
	assert.Len(t, all, 5)

	got, err := h.svc.ListAuctions(ctx, h.buyer, nil, store.NewPage(1, 0))
	require.NoError(t, err)
	byID := map[string]models.Auction{}
	for _, a := range got {
		byID[a.ID] = a
		assert.False(t, a.ReservePrice.Valid, "reserve hidden from buyers")
	}
	assert.Len(t, byID, 3)
	assert.Contains(t, byID, live.ID)
	require.NotNil(t, byID[endedOwn.ID].WinnerID)
	assert.Nil(t, byID[endedOther.ID].WinnerID)
	assert.False(t, byID[endedOther.ID].FinalPrice.Valid)

	drafts, err := h.svc.ListAuctions(ctx, h.buyer, []models.AuctionStatus{models.StatusDraft}, store.NewPage(1, 0))
	require.NoError(t, err)
	assert.Empty(t, drafts)

	_, err = h.svc.ListAuctions(ctx, h.buyer, []models.AuctionStatus{"PAUSED"}, store.NewPage(1, 0))
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidInput)

	_, err = h.svc.ListAuctions(ctx, models.Caller{}, nil, store.NewPage(1, 0))
	assert.ErrorIs(t, err, auctionerrors.ErrUnauthorized)
}

func TestGetAuction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	other := h.user(t, models.RoleBuyer)

	a := h.st.Seed(models.Auction{
		VehicleID: h.vehicle(t).ID,
		Status:    models.StatusLive,
		Type:      models.TypeSealed,
		Currency:  "EUR",
	})
	for _, bid := range []struct {
		user   string
		amount int64
	}{{h.buyer.ID, 100}, {other.ID, 300}} {
		_, err := h.st.InsertBid(ctx, models.Bid{AuctionID: a.ID, UserID: bid.user, Amount: decimal.NewFromInt(bid.amount)})
		require.NoError(t, err)
	}

	view, err := h.svc.GetAuction(ctx, h.buyer, a.ID)
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, h.buyer.ID, view.Bids[0].UserID)
	assert.Nil(t, view.HighestBidAmount)

	view, err = h.svc.GetAuction(ctx, h.admin, a.ID)
	require.NoError(t, err)
	assert.Len(t, view.Bids, 2)

	draft := h.st.Seed(models.Auction{VehicleID: h.vehicle(t).ID, Status: models.StatusDraft, Type: models.TypeOpen})
	_, err = h.svc.GetAuction(ctx, h.buyer, draft.ID)
	assert.ErrorIs(t, err, auctionerrors.ErrNotFound)
}

func TestMyBidsAndWon(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.st.Seed(models.Auction{
		VehicleID:  h.vehicle(t).ID,
		Status:     models.StatusEnded,
		Type:       models.TypeOpen,
		WinnerID:   &h.buyer.ID,
		FinalPrice: decimal.NewNullDecimal(decimal.NewFromInt(700)),
	})
	_, err := h.st.InsertBid(ctx, models.Bid{AuctionID: a.ID, UserID: h.buyer.ID, Amount: decimal.NewFromInt(700)})
	require.NoError(t, err)

	bids, err := h.svc.MyBids(ctx, h.buyer, store.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, models.StatusEnded, bids[0].AuctionStatus)

	won, err := h.svc.WonAuctions(ctx, h.buyer, store.NewPage(1, 10))
	require.NoError(t, err)
	require.Len(t, won, 1)
	assert.Equal(t, a.ID, won[0].ID)
}

func TestNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.st.CreateNotifications(ctx, []models.Notification{
		{UserID: h.buyer.ID, Type: models.NotificationOutbid, Title: "Outbid"},
		{UserID: h.buyer.ID, Type: models.NotificationAuctionLost, Title: "Lost"},
		{UserID: h.admin.ID, Type: models.NotificationNewBid, Title: "New bid"},
	}))

	list, err := h.svc.Notifications(ctx, h.buyer)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, h.svc.MarkRead(ctx, h.buyer, list[0].ID))
	err = h.svc.MarkRead(ctx, h.admin, list[1].ID)
	assert.ErrorIs(t, err, auctionerrors.ErrNotFound, "cannot mark another user's notification")

	require.NoError(t, h.svc.MarkRead(ctx, h.buyer, ""))
	list, err = h.svc.Notifications(ctx, h.buyer)
	require.NoError(t, err)
	for _, n := range list {
		assert.True(t, n.Read)
	}
}
