package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role is the role of a registered user
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleBuyer Role = "BUYER"
)

// UserStatus is the account state of a user
type UserStatus string

const (
	UserActive      UserStatus = "ACTIVE"
	UserPending     UserStatus = "PENDING"
	UserDeactivated UserStatus = "DEACTIVATED"
)

// User represents a registered user
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// CanBid reports whether the user is an active buyer
func (u *User) CanBid() bool {
	return u.Role == RoleBuyer && u.Status == UserActive
}

// Caller identifies who invokes an operation
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Specifications holds free-form technical data of a vehicle
type Specifications struct {
	Year         int    `json:"year,omitempty"`
	Mileage      string `json:"mileage,omitempty"`
	Fuel         string `json:"fuel,omitempty"`
	Transmission string `json:"transmission,omitempty"`
	Engine       string `json:"engine,omitempty"`
	Power        string `json:"power,omitempty"`
	Color        string `json:"color,omitempty"`
}

// Vehicle is the item offered in an auction
type Vehicle struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Specifications Specifications `json:"specifications"`
	Images         []string       `json:"images"`
	CreatedByID    string         `json:"createdById"`
	CreatedAt      time.Time      `json:"createdAt"`

	// Populated by reads only
	AuctionID     *string        `json:"auctionId,omitempty"`
	AuctionStatus *AuctionStatus `json:"auctionStatus,omitempty"`
}

// Auction represents a vehicle offered for sale over a time window
type Auction struct {
	ID               string              `json:"id"`
	VehicleID        string              `json:"vehicleId"`
	CreatedByID      string              `json:"createdById"`
	Status           AuctionStatus       `json:"status"`
	Type             AuctionType         `json:"auctionType"`
	Currency         string              `json:"currency"` // label only
	StartTime        time.Time           `json:"startTime"`
	EndTime          time.Time           `json:"endTime"`
	StartingPrice    decimal.NullDecimal `json:"startingPrice"`
	ReservePrice     decimal.NullDecimal `json:"reservePrice"`
	ShowReservePrice bool                `json:"showReservePrice"`
	ShowBidCount     bool                `json:"showBidCount"`
	BuyNowEnabled    bool                `json:"buyNowEnabled"`
	BuyNowPrice      decimal.NullDecimal `json:"buyNowPrice"`
	WinnerID         *string             `json:"winnerId"`
	FinalPrice       decimal.NullDecimal `json:"finalPrice"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`

	// Populated by reads only
	VehicleName string `json:"vehicleName,omitempty"`
	BidCount    int    `json:"bidCount"`
}

// HasWinner reports whether a winner and final price were recorded
func (a *Auction) HasWinner() bool {
	return a.WinnerID != nil && a.FinalPrice.Valid
}

// Bid is an immutable monetary offer against an auction
type Bid struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auctionId"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	IsBuyNow  bool            `json:"isBuyNow"`
	CreatedAt time.Time       `json:"createdAt"`

	// Populated by reads only
	UserName      string        `json:"userName,omitempty"`
	VehicleName   string        `json:"vehicleName,omitempty"`
	AuctionStatus AuctionStatus `json:"auctionStatus,omitempty"`
}

// NotificationType names the event a notification reports
type NotificationType string

const (
	NotificationOutbid       NotificationType = "OUTBID"
	NotificationAuctionWon   NotificationType = "AUCTION_WON"
	NotificationAuctionLost  NotificationType = "AUCTION_LOST"
	NotificationAuctionEnd   NotificationType = "AUCTION_END"
	NotificationBuyNow       NotificationType = "BUY_NOW"
	NotificationAuctionStart NotificationType = "AUCTION_START"
	NotificationNewBid       NotificationType = "NEW_BID"
)

// Notification is a one-way record of an event targeted at a user
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// AuditEntry is one append-only audit record
type AuditEntry struct {
	Action   string         `json:"action"`
	UserID   string         `json:"userId,omitempty"`
	TargetID string         `json:"targetId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	IP       string         `json:"ip,omitempty"`
}
