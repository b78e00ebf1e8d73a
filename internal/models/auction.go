package models

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusDraft     AuctionStatus = "DRAFT"
	StatusLive      AuctionStatus = "LIVE"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
	StatusArchived  AuctionStatus = "ARCHIVED"
)

// AllStatuses lists every auction status in lifecycle order
var AllStatuses = []AuctionStatus{StatusDraft, StatusLive, StatusEnded, StatusCancelled, StatusArchived}

func ValidAuctionStatus(s AuctionStatus) bool {
	switch s {
	case StatusDraft, StatusLive, StatusEnded, StatusCancelled, StatusArchived:
		return true
	default:
		return false
	}
}

// AuctionType governs bid ordering and visibility
type AuctionType string

const (
	TypeSealed    AuctionType = "SEALED"
	TypeOpen      AuctionType = "OPEN"
	TypeIndicator AuctionType = "INDICATOR"
	TypeAnonymous AuctionType = "ANONYMOUS"
)

func ValidAuctionType(t AuctionType) bool {
	switch t {
	case TypeSealed, TypeOpen, TypeIndicator, TypeAnonymous:
		return true
	default:
		return false
	}
}

// Currencies accepted as auction labels
var Currencies = []string{"RSD", "EUR"}

func ValidCurrency(c string) bool {
	for _, v := range Currencies {
		if v == c {
			return true
		}
	}
	return false
}
