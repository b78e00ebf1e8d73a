// Package memstore is an in-process implementation of the store contracts.
// Transactions run one at a time against a copy of the state that replaces the
// live state only when the transaction function succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/xtrntr/carauction/internal/auctionerrors"
	"github.com/xtrntr/carauction/internal/models"
	"github.com/xtrntr/carauction/internal/ranking"
	"github.com/xtrntr/carauction/internal/store"
)

type state struct {
	users    map[string]models.User
	vehicles map[string]models.Vehicle
	auctions map[string]models.Auction
	books    map[string]*ranking.Book
}

func newState() *state {
	return &state{
		users:    make(map[string]models.User),
		vehicles: make(map[string]models.Vehicle),
		auctions: make(map[string]models.Auction),
		books:    make(map[string]*ranking.Book),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range s.auctions {
		c.auctions[k] = v
	}
	for k, b := range s.books {
		c.books[k] = &ranking.Book{Bids: append([]models.Bid{}, b.Bids...)}
	}
	return c
}

// Store keeps users, vehicles, auctions, bids and notifications in memory
type Store struct {
	mu            sync.Mutex
	clock         clock.Clock
	st            *state
	notifications []models.Notification
	audit         []models.AuditEntry
}

var (
	_ store.Store   = (*Store)(nil)
	_ store.Catalog = (*Store)(nil)
)

func New(clk clock.Clock) *Store {
	return &Store{clock: clk, st: newState()}
}

// view implements store.Tx over one state snapshot. The caller holds the store lock.
type view struct {
	st  *state
	now func() time.Time
}

func (s *Store) view() view {
	return view{st: s.st, now: s.clock.Now}
}

// InTx runs fn against a copy of the state and publishes the copy on success
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", auctionerrors.ErrUnavailable, err)
	}

	draft := s.st.clone()
	if err := fn(view{st: draft, now: s.clock.Now}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (v view) decorate(a models.Auction) *models.Auction {
	if veh, ok := v.st.vehicles[a.VehicleID]; ok {
		a.VehicleName = veh.Name
	}
	if b, ok := v.st.books[a.ID]; ok {
		a.BidCount = b.Len()
	}
	return &a
}

func (v view) withNames(bids []models.Bid) []models.Bid {
	for i := range bids {
		bids[i].UserName = v.st.users[bids[i].UserID].Name
	}
	return bids
}

func (v view) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	a, ok := v.st.auctions[id]
	if !ok {
		return nil, fmt.Errorf("%w: auction %s", auctionerrors.ErrNotFound, id)
	}
	return v.decorate(a), nil
}

func (v view) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, ok := v.st.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", auctionerrors.ErrNotFound, id)
	}
	return &u, nil
}

func (v view) book(auctionID string) *ranking.Book {
	if b, ok := v.st.books[auctionID]; ok {
		return b
	}
	return ranking.NewBook()
}

func (v view) TopBids(ctx context.Context, auctionID string, n int) ([]models.Bid, error) {
	return v.withNames(v.book(auctionID).Top(n)), nil
}

func (v view) CountBids(ctx context.Context, auctionID string) (int, error) {
	return v.book(auctionID).Len(), nil
}

func (v view) DistinctBidders(ctx context.Context, auctionID string) ([]string, error) {
	bids := append([]models.Bid{}, v.book(auctionID).Bids...)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].CreatedAt.Before(bids[j].CreatedAt) })
	return ranking.DistinctBidders(bids, ""), nil
}

func (v view) InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error) {
	if _, ok := v.st.auctions[bid.AuctionID]; !ok {
		return nil, fmt.Errorf("%w: auction %s", auctionerrors.ErrNotFound, bid.AuctionID)
	}
	if _, ok := v.st.users[bid.UserID]; !ok {
		return nil, fmt.Errorf("%w: user %s", auctionerrors.ErrNotFound, bid.UserID)
	}
	if !bid.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", auctionerrors.ErrInvalidInput)
	}

	bid.ID = uuid.NewString()
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = v.now()
	}
	bid.UserName = ""

	b, ok := v.st.books[bid.AuctionID]
	if !ok {
		b = ranking.NewBook()
		v.st.books[bid.AuctionID] = b
	}
	b.Add(bid)
	return &bid, nil
}

func (v view) TransitionAuction(ctx context.Context, id string, from models.AuctionStatus, change store.StatusChange) (*models.Auction, error) {
	a, ok := v.st.auctions[id]
	if !ok || a.Status != from {
		return nil, fmt.Errorf("%w: auction %s is no longer %s", auctionerrors.ErrConflict, id, from)
	}

	a.Status = change.To
	if change.SetOutcome {
		a.WinnerID = change.WinnerID
		a.FinalPrice = change.FinalPrice
	}
	a.UpdatedAt = v.now()
	v.st.auctions[id] = a
	return v.decorate(a), nil
}

func (s *Store) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetAuction(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().GetUser(ctx, id)
}

func (s *Store) TopBids(ctx context.Context, auctionID string, n int) ([]models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().TopBids(ctx, auctionID, n)
}

func (s *Store) CountBids(ctx context.Context, auctionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CountBids(ctx, auctionID)
}

func (s *Store) DistinctBidders(ctx context.Context, auctionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().DistinctBidders(ctx, auctionID)
}

func (s *Store) InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertBid(ctx, bid)
}

func (s *Store) TransitionAuction(ctx context.Context, id string, from models.AuctionStatus, change store.StatusChange) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().TransitionAuction(ctx, id, from, change)
}

// AuctionsDue lists DRAFT auctions past their start or LIVE auctions past their end
func (s *Store) AuctionsDue(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error) {
	var dueAt func(a models.Auction) time.Time
	switch status {
	case models.StatusDraft:
		dueAt = func(a models.Auction) time.Time { return a.StartTime }
	case models.StatusLive:
		dueAt = func(a models.Auction) time.Time { return a.EndTime }
	default:
		return nil, fmt.Errorf("%w: no time based transition from %s", auctionerrors.ErrInvalidInput, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.view()
	var out []models.Auction
	for _, a := range s.st.auctions {
		if a.Status == status && !dueAt(a).After(now) {
			out = append(out, *v.decorate(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return dueAt(out[i]).Before(dueAt(out[j])) })
	return out, nil
}

func (s *Store) ActiveUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.User
	for _, u := range s.st.users {
		if u.Role == role && u.Status == models.UserActive {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateNotifications(ctx context.Context, notifications []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for _, n := range notifications {
		n.ID = uuid.NewString()
		n.CreatedAt = now
		s.notifications = append(s.notifications, n)
	}
	return nil
}

// Notifications returns every stored notification in creation order
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification{}, s.notifications...)
}

// AuditEntries returns every stored audit record
func (s *Store) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AuditEntry{}, s.audit...)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
