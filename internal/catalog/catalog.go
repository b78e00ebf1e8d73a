// Package catalog serves the administrative writes and the viewer scoped reads around the
// bidding engine: vehicles, auction setup, listings, a buyer's bids and their notifications.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xtrntr/carauction/internal/audit"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
	"github.com/xtrntr/carauction/internal/visibility"
)

const notificationLimit = 50

// Store is the persistence the catalog reads and writes
type Store interface {
	store.Catalog
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
}

type Service struct {
	store   Store
	auditor audit.Recorder
	clock   clock.Clock
	logger  logrus.FieldLogger
}

func New(st Store, auditor audit.Recorder, clk clock.Clock, logger logrus.FieldLogger) *Service {
	return &Service{
		store:   st,
		auditor: auditor,
		clock:   clk,
		logger:  logger,
	}
}

func requireAdmin(caller models.Caller) error {
	if !caller.IsAdmin() {
		return fmt.Errorf("%w: administrator role required", auctionerrors.ErrForbidden)
	}
	return nil
}

func requireUser(caller models.Caller) error {
	if caller.ID == "" {
		return auctionerrors.ErrUnauthorized
	}
	return nil
}

// VehicleInput is the editable part of a vehicle
type VehicleInput struct {
	Name           string                `json:"name"`
	Description    string                `json:"description"`
	Specifications models.Specifications `json:"specifications"`
	Images         []string              `json:"images"`
}

func (in VehicleInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: vehicle name is required", auctionerrors.ErrInvalidInput)
	}
	return nil
}

func (in VehicleInput) vehicle() models.Vehicle {
	images := in.Images
	if images == nil {
		images = []string{}
	}
	return models.Vehicle{
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		Specifications: in.Specifications,
		Images:         images,
	}
}

func (s *Service) ListVehicles(ctx context.Context, caller models.Caller, limit int) ([]models.Vehicle, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ListVehicles(ctx, store.NewPage(1, limit).Limit)
}

func (s *Service) GetVehicle(ctx context.Context, caller models.Caller, id string) (*models.Vehicle, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.GetVehicle(ctx, id)
}

func (s *Service) CreateVehicle(ctx context.Context, caller models.Caller, in VehicleInput) (*models.Vehicle, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	v := in.vehicle()
	v.CreatedByID = caller.ID
	created, err := s.store.CreateVehicle(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.CreateVehicle: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionVehicleCreated,
		UserID:   caller.ID,
		TargetID: created.ID,
		Metadata: map[string]any{"name": created.Name},
	})
	return created, nil
}

func (s *Service) UpdateVehicle(ctx context.Context, caller models.Caller, id string, in VehicleInput) (*models.Vehicle, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	v := in.vehicle()
	v.ID = id
	return s.store.UpdateVehicle(ctx, v)
}

// DeleteVehicle removes a vehicle that was never put up for auction
func (s *Service) DeleteVehicle(ctx context.Context, caller models.Caller, id string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if err := s.store.DeleteVehicle(ctx, id); err != nil {
		return fmt.Errorf("catalog.Service.DeleteVehicle: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEntry{Action: audit.ActionVehicleDeleted, UserID: caller.ID, TargetID: id})
	return nil
}

// AuctionInput describes a new auction
type AuctionInput struct {
	VehicleID        string              `json:"vehicleId"`
	Type             models.AuctionType  `json:"auctionType"`
	Currency         string              `json:"currency"`
	StartTime        time.Time           `json:"startTime"`
	EndTime          time.Time           `json:"endTime"`
	StartingPrice    decimal.NullDecimal `json:"startingPrice"`
	ReservePrice     decimal.NullDecimal `json:"reservePrice"`
	ShowReservePrice bool                `json:"showReservePrice"`
	ShowBidCount     *bool               `json:"showBidCount"`
	BuyNowEnabled    bool                `json:"buyNowEnabled"`
	BuyNowPrice      decimal.NullDecimal `json:"buyNowPrice"`
}

// AuctionPatch changes the given fields of a DRAFT auction
type AuctionPatch struct {
	Type             *models.AuctionType  `json:"auctionType"`
	Currency         *string              `json:"currency"`
	StartTime        *time.Time           `json:"startTime"`
	EndTime          *time.Time           `json:"endTime"`
	StartingPrice    *decimal.NullDecimal `json:"startingPrice"`
	ReservePrice     *decimal.NullDecimal `json:"reservePrice"`
	ShowReservePrice *bool                `json:"showReservePrice"`
	ShowBidCount     *bool                `json:"showBidCount"`
	BuyNowEnabled    *bool                `json:"buyNowEnabled"`
	BuyNowPrice      *decimal.NullDecimal `json:"buyNowPrice"`
}

func (p AuctionPatch) apply(a models.Auction) models.Auction {
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.Currency != nil {
		a.Currency = *p.Currency
	}
	if p.StartTime != nil {
		a.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		a.EndTime = *p.EndTime
	}
	if p.StartingPrice != nil {
		a.StartingPrice = *p.StartingPrice
	}
	if p.ReservePrice != nil {
		a.ReservePrice = *p.ReservePrice
	}
	if p.ShowReservePrice != nil {
		a.ShowReservePrice = *p.ShowReservePrice
	}
	if p.ShowBidCount != nil {
		a.ShowBidCount = *p.ShowBidCount
	}
	if p.BuyNowEnabled != nil {
		a.BuyNowEnabled = *p.BuyNowEnabled
	}
	if p.BuyNowPrice != nil {
		a.BuyNowPrice = *p.BuyNowPrice
	}
	return a
}

func validPrice(name string, p decimal.NullDecimal) error {
	if !p.Valid {
		return nil
	}
	if !p.Decimal.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", auctionerrors.ErrInvalidInput, name)
	}
	if !p.Decimal.Equal(p.Decimal.Round(2)) {
		return fmt.Errorf("%w: %s has more than two decimals", auctionerrors.ErrInvalidInput, name)
	}
	return nil
}

// validateAuction checks the settings of an auction that has not started yet
func validateAuction(a models.Auction, now time.Time) error {
	if !models.ValidAuctionType(a.Type) {
		return fmt.Errorf("%w: unknown auction type %q", auctionerrors.ErrInvalidInput, a.Type)
	}
	if !models.ValidCurrency(a.Currency) {
		return fmt.Errorf("%w: currency must be one of %s", auctionerrors.ErrInvalidInput, strings.Join(models.Currencies, ", "))
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("%w: start and end time are required", auctionerrors.ErrInvalidInput)
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", auctionerrors.ErrInvalidInput)
	}
	if !a.StartTime.After(now) {
		return fmt.Errorf("%w: start time must be in the future", auctionerrors.ErrInvalidInput)
	}
	for name, p := range map[string]decimal.NullDecimal{
		"starting price": a.StartingPrice,
		"reserve price":  a.ReservePrice,
		"buy now price":  a.BuyNowPrice,
	} {
		if err := validPrice(name, p); err != nil {
			return err
		}
	}
	if a.BuyNowEnabled && !a.BuyNowPrice.Valid {
		return fmt.Errorf("%w: buy now requires a price", auctionerrors.ErrInvalidInput)
	}
	if a.BuyNowEnabled && a.StartingPrice.Valid && a.BuyNowPrice.Decimal.LessThan(a.StartingPrice.Decimal) {
		return fmt.Errorf("%w: buy now price must be at least the starting price", auctionerrors.ErrInvalidInput)
	}
	return nil
}

// CreateAuction registers a DRAFT auction for a vehicle without one
func (s *Service) CreateAuction(ctx context.Context, caller models.Caller, in AuctionInput) (*models.Auction, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if in.VehicleID == "" {
		return nil, fmt.Errorf("%w: vehicle is required", auctionerrors.ErrInvalidInput)
	}

	showBidCount := true
	if in.ShowBidCount != nil {
		showBidCount = *in.ShowBidCount
	}
	a := models.Auction{
		VehicleID:        in.VehicleID,
		CreatedByID:      caller.ID,
		Status:           models.StatusDraft,
		Type:             in.Type,
		Currency:         in.Currency,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		StartingPrice:    in.StartingPrice,
		ReservePrice:     in.ReservePrice,
		ShowReservePrice: in.ShowReservePrice,
		ShowBidCount:     showBidCount,
		BuyNowEnabled:    in.BuyNowEnabled,
		BuyNowPrice:      in.BuyNowPrice,
	}
	if err := validateAuction(a, s.clock.Now()); err != nil {
		return nil, err
	}

	created, err := s.store.CreateAuction(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.CreateAuction: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEntry{
		Action:   audit.ActionAuctionCreated,
		UserID:   caller.ID,
		TargetID: created.ID,
		Metadata: map[string]any{"vehicleId": created.VehicleID, "auctionType": created.Type},
	})
	s.logger.WithFields(logrus.Fields{
		"auction_id": created.ID,
		"vehicle_id": created.VehicleID,
		"start_time": created.StartTime,
	}).Info("Auction created")
	return created, nil
}

// UpdateAuction merges patch into a DRAFT auction and validates the result
func (s *Service) UpdateAuction(ctx context.Context, caller models.Caller, id string, patch AuctionPatch) (*models.Auction, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	cur, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.UpdateAuction: %w", err)
	}
	if cur.Status != models.StatusDraft {
		return nil, fmt.Errorf("%w: only %s auctions can be edited", auctionerrors.ErrInvalidInput, models.StatusDraft)
	}

	merged := patch.apply(*cur)
	if err := validateAuction(merged, s.clock.Now()); err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateDraftAuction(ctx, merged)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.UpdateAuction: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEntry{Action: audit.ActionAuctionUpdated, UserID: caller.ID, TargetID: id})
	return updated, nil
}

// buyerStatuses are the statuses a buyer may list
var buyerStatuses = []models.AuctionStatus{models.StatusLive, models.StatusEnded}

func visibleTo(caller models.Caller, status models.AuctionStatus) bool {
	if caller.IsAdmin() {
		return true
	}
	for _, s := range buyerStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ListAuctions lists auctions newest first. Buyers only see LIVE and ENDED auctions
// and the outcome of ended auctions they bid on.
func (s *Service) ListAuctions(ctx context.Context, caller models.Caller, statuses []models.AuctionStatus, page store.Page) ([]models.Auction, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !models.ValidAuctionStatus(st) {
			return nil, fmt.Errorf("%w: unknown status %q", auctionerrors.ErrInvalidInput, st)
		}
	}

	filter := store.AuctionFilter{Statuses: statuses, Page: page}
	if !caller.IsAdmin() {
		filter.Statuses = nil
		for _, st := range statuses {
			if visibleTo(caller, st) {
				filter.Statuses = append(filter.Statuses, st)
			}
		}
		if len(statuses) == 0 {
			filter.Statuses = buyerStatuses
		} else if len(filter.Statuses) == 0 {
			return []models.Auction{}, nil
		}
	}

	auctions, err := s.store.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.ListAuctions: %w", err)
	}
	if caller.IsAdmin() {
		return auctions, nil
	}

	var ended []string
	for _, a := range auctions {
		if a.Status == models.StatusEnded {
			ended = append(ended, a.ID)
		}
	}
	bidOn := map[string]bool{}
	if len(ended) > 0 {
		if bidOn, err = s.store.AuctionsBidOn(ctx, caller.ID, ended); err != nil {
			return nil, fmt.Errorf("catalog.Service.ListAuctions: %w", err)
		}
	}

	out := make([]models.Auction, len(auctions))
	for i, a := range auctions {
		out[i] = visibility.Summarize(a, caller, bidOn[a.ID])
	}
	return out, nil
}

// GetAuction returns the auction with its bids projected for the caller
func (s *Service) GetAuction(ctx context.Context, caller models.Caller, id string) (*visibility.View, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}

	a, err := s.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.GetAuction: %w", err)
	}
	if !visibleTo(caller, a.Status) {
		return nil, fmt.Errorf("%w: auction %s", auctionerrors.ErrNotFound, id)
	}

	bids, err := s.store.ListBids(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog.Service.GetAuction: %w", err)
	}

	view := visibility.Project(*a, bids, caller)
	return &view, nil
}

// MyBids lists the caller's bids, newest first
func (s *Service) MyBids(ctx context.Context, caller models.Caller, page store.Page) ([]models.Bid, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.store.BidsByUser(ctx, caller.ID, page)
}

// WonAuctions lists the auctions the caller won
func (s *Service) WonAuctions(ctx context.Context, caller models.Caller, page store.Page) ([]models.Auction, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.store.WonAuctions(ctx, caller.ID, page)
}

// Notifications returns the caller's latest notifications
func (s *Service) Notifications(ctx context.Context, caller models.Caller) ([]models.Notification, error) {
	if err := requireUser(caller); err != nil {
		return nil, err
	}
	return s.store.ListNotifications(ctx, caller.ID, notificationLimit)
}

// MarkRead marks one notification read, or all of them when id is empty
func (s *Service) MarkRead(ctx context.Context, caller models.Caller, id string) error {
	if err := requireUser(caller); err != nil {
		return err
	}
	if id == "" {
		return s.store.MarkAllNotificationsRead(ctx, caller.ID)
	}
	return s.store.MarkNotificationRead(ctx, caller.ID, id)
}
