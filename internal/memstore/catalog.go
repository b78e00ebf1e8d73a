package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/store"
)

func (s *Store) CreateUser(ctx context.Context, user models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.users {
		if normalizeEmail(u.Email) == normalizeEmail(user.Email) {
			return nil, fmt.Errorf("%w: email %s is already registered", auctionerrors.ErrInvalidInput, user.Email)
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.Role == "" {
		user.Role = models.RoleBuyer
	}
	if user.Status == "" {
		user.Status = models.UserPending
	}
	user.CreatedAt = s.clock.Now()
	s.st.users[user.ID] = user
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.st.users {
		if normalizeEmail(u.Email) == normalizeEmail(email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", auctionerrors.ErrNotFound, email)
}

// vehicle attaches the auction reference to a stored vehicle
func (s *Store) vehicle(v models.Vehicle) *models.Vehicle {
	for _, a := range s.st.auctions {
		if a.VehicleID == v.ID {
			id, status := a.ID, a.Status
			v.AuctionID, v.AuctionStatus = &id, &status
			break
		}
	}
	if v.Images == nil {
		v.Images = []string{}
	}
	return &v
}

func (s *Store) CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[v.CreatedByID]; !ok {
		return nil, fmt.Errorf("%w: user %s", auctionerrors.ErrNotFound, v.CreatedByID)
	}
	v.ID = uuid.NewString()
	v.CreatedAt = s.clock.Now()
	v.AuctionID, v.AuctionStatus = nil, nil
	s.st.vehicles[v.ID] = v
	return s.vehicle(v), nil
}

func (s *Store) UpdateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.st.vehicles[v.ID]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, v.ID)
	}
	cur.Name = v.Name
	cur.Description = v.Description
	cur.Specifications = v.Specifications
	cur.Images = v.Images
	s.st.vehicles[v.ID] = cur
	return s.vehicle(cur), nil
}

func (s *Store) DeleteVehicle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.st.vehicles[id]
	if !ok {
		return fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, id)
	}
	if s.vehicle(v).AuctionID != nil {
		return fmt.Errorf("%w: vehicle %s has an auction", auctionerrors.ErrInvalidInput, id)
	}
	delete(s.st.vehicles, id)
	return nil
}

func (s *Store) GetVehicle(ctx context.Context, id string) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.st.vehicles[id]
	if !ok {
		return nil, fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, id)
	}
	return s.vehicle(v), nil
}

func (s *Store) ListVehicles(ctx context.Context, limit int) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Vehicle, 0, len(s.st.vehicles))
	for _, v := range s.st.vehicles {
		out = append(out, *s.vehicle(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateAuction(ctx context.Context, a models.Auction) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.vehicles[a.VehicleID]; !ok {
		return nil, fmt.Errorf("%w: vehicle %s", auctionerrors.ErrNotFound, a.VehicleID)
	}
	for _, other := range s.st.auctions {
		if other.VehicleID == a.VehicleID {
			return nil, fmt.Errorf("%w: vehicle %s already has an auction", auctionerrors.ErrInvalidInput, a.VehicleID)
		}
	}

	now := s.clock.Now()
	a.ID = uuid.NewString()
	a.CreatedAt, a.UpdatedAt = now, now
	a.WinnerID = nil
	a.FinalPrice.Valid = false
	s.st.auctions[a.ID] = a
	return s.view().decorate(a), nil
}

func (s *Store) UpdateDraftAuction(ctx context.Context, a models.Auction) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.st.auctions[a.ID]
	if !ok || cur.Status != models.StatusDraft {
		return nil, fmt.Errorf("%w: auction %s is no longer %s", auctionerrors.ErrConflict, a.ID, models.StatusDraft)
	}
	cur.Type = a.Type
	cur.Currency = a.Currency
	cur.StartTime, cur.EndTime = a.StartTime, a.EndTime
	cur.StartingPrice, cur.ReservePrice = a.StartingPrice, a.ReservePrice
	cur.ShowReservePrice, cur.ShowBidCount = a.ShowReservePrice, a.ShowBidCount
	cur.BuyNowEnabled, cur.BuyNowPrice = a.BuyNowEnabled, a.BuyNowPrice
	cur.UpdatedAt = s.clock.Now()
	s.st.auctions[a.ID] = cur
	return s.view().decorate(cur), nil
}

// Seed stores an auction as is, bypassing the DRAFT lifecycle entry point
func (s *Store) Seed(a models.Auction) *models.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	s.st.auctions[a.ID] = a
	return s.view().decorate(a)
}

func (s *Store) ListAuctions(ctx context.Context, filter store.AuctionFilter) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[models.AuctionStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		wanted[st] = true
	}

	v := s.view()
	var out []models.Auction
	for _, a := range s.st.auctions {
		if len(wanted) > 0 && !wanted[a.Status] {
			continue
		}
		out = append(out, *v.decorate(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, filter.Page), nil
}

func paginate[T any](items []T, page store.Page) []T {
	offset := page.Offset()
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}

func (s *Store) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view()
	b := v.book(auctionID)
	return v.withNames(b.Top(b.Len())), nil
}

func (s *Store) AuctionsBidOn(ctx context.Context, userID string, auctionIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]bool)
	for _, id := range auctionIDs {
		b, ok := s.st.books[id]
		if !ok {
			continue
		}
		for _, bid := range b.Bids {
			if bid.UserID == userID {
				out[id] = true
				break
			}
		}
	}
	return out, nil
}

func (s *Store) BidsByUser(ctx context.Context, userID string, page store.Page) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Bid
	for auctionID, b := range s.st.books {
		a := s.st.auctions[auctionID]
		for _, bid := range b.Bids {
			if bid.UserID != userID {
				continue
			}
			bid.VehicleName = s.st.vehicles[a.VehicleID].Name
			bid.AuctionStatus = a.Status
			out = append(out, bid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (s *Store) WonAuctions(ctx context.Context, userID string, page store.Page) ([]models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view()
	var out []models.Auction
	for _, a := range s.st.auctions {
		if a.WinnerID == nil || *a.WinnerID != userID {
			continue
		}
		if a.Status != models.StatusEnded && a.Status != models.StatusArchived {
			continue
		}
		out = append(out, *v.decorate(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.After(out[j].EndTime) })
	return paginate(out, page), nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].UserID != userID {
			continue
		}
		out = append(out, s.notifications[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("%w: notification %s", auctionerrors.ErrNotFound, id)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.notifications {
		if s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
		}
	}
	return nil
}

func (s *Store) AppendAudit(ctx context.Context, entry models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, entry)
	return nil
}
