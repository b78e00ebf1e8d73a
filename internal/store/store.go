// Package store declares the persistence contract of the marketplace. internal/db implements it
// on PostgreSQL and internal/memstore keeps everything in process memory.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/carauction/internal/models"
)

// StatusChange is the write applied by a guarded auction update
type StatusChange struct {
	To models.AuctionStatus

	// Outcome fields are written only when SetOutcome is true
	SetOutcome bool
	WinnerID   *string
	FinalPrice decimal.NullDecimal
}

// Tx is the set of reads and writes available inside a serializable transaction.
// Every method reports a missing row with auctionerrors.ErrNotFound.
type Tx interface {
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	GetUser(ctx context.Context, id string) (*models.User, error)

	// TopBids returns at most n bids ranked by amount descending, earliest first on ties
	TopBids(ctx context.Context, auctionID string, n int) ([]models.Bid, error)
	CountBids(ctx context.Context, auctionID string) (int, error)
	// DistinctBidders returns every user that bid on the auction once
	DistinctBidders(ctx context.Context, auctionID string) ([]string, error)
	InsertBid(ctx context.Context, bid models.Bid) (*models.Bid, error)

	// TransitionAuction applies change only if the stored status still equals from.
	// Zero affected rows is reported as auctionerrors.ErrConflict.
	TransitionAuction(ctx context.Context, id string, from models.AuctionStatus, change StatusChange) (*models.Auction, error)
}

// Store is the engine facing persistence contract
type Store interface {
	Tx

	// InTx runs fn in one serializable transaction, committing only if fn returns nil
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// AuctionsDue lists DRAFT auctions whose start time passed or LIVE auctions whose end time passed
	AuctionsDue(ctx context.Context, status models.AuctionStatus, now time.Time) ([]models.Auction, error)
	ActiveUsers(ctx context.Context, role models.Role) ([]models.User, error)
	CreateNotifications(ctx context.Context, notifications []models.Notification) error
}

// Page bounds a list query
type Page struct {
	Page  int
	Limit int
}

// Default and maximum page sizes of list queries
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// NewPage clamps a requested page to valid bounds. A non-positive limit selects DefaultLimit.
func NewPage(page, limit int) Page {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Page{Page: page, Limit: limit}
}

// Offset returns the number of rows skipped by the page
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// AuctionFilter narrows an auction listing
type AuctionFilter struct {
	Statuses []models.AuctionStatus
	Page
}

// Catalog is the read side and the administrative writes around the engine
type Catalog interface {
	CreateUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, v models.Vehicle) (*models.Vehicle, error)
	DeleteVehicle(ctx context.Context, id string) error
	GetVehicle(ctx context.Context, id string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, limit int) ([]models.Vehicle, error)

	// CreateAuction reports a vehicle that already has an auction with auctionerrors.ErrInvalidInput
	CreateAuction(ctx context.Context, a models.Auction) (*models.Auction, error)
	// UpdateDraftAuction rewrites the editable fields only while the auction is still DRAFT
	UpdateDraftAuction(ctx context.Context, a models.Auction) (*models.Auction, error)
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]models.Auction, error)
	// ListBids returns the bids of an auction with bidder names, highest first
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
	// AuctionsBidOn returns the subset of auctionIDs userID placed a bid on
	AuctionsBidOn(ctx context.Context, userID string, auctionIDs []string) (map[string]bool, error)
	BidsByUser(ctx context.Context, userID string, page Page) ([]models.Bid, error)
	WonAuctions(ctx context.Context, userID string, page Page) ([]models.Auction, error)

	ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error

	AppendAudit(ctx context.Context, entry models.AuditEntry) error
}
