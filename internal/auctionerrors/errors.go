// Package auctionerrors holds the error categories every marketplace operation reports.
// Callers wrap a category with context using fmt.Errorf("%w: ...") and classify with errors.Is.
package auctionerrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAuctionNotActive  = errors.New("auction is not active")
	ErrAuctionExpired    = errors.New("auction has expired")
	ErrBelowMinimum      = errors.New("bid is below the starting price")
	ErrMustExceedCurrent = errors.New("bid must exceed the current highest bid")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("auction status changed concurrently")
	ErrUnavailable       = errors.New("service unavailable")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrNotFound, "not_found"},
	{ErrInvalidInput, "invalid_input"},
	{ErrAuctionNotActive, "auction_not_active"},
	{ErrAuctionExpired, "auction_expired"},
	{ErrBelowMinimum, "below_minimum"},
	{ErrMustExceedCurrent, "must_exceed_current"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrConflict, "conflict"},
	{ErrUnavailable, "unavailable"},
}

// Code returns the stable machine-checkable category of err, or "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
