package auction

import "errors"

// Errors returned by bidding operations. Validation errors carry the reason
// the caller must see; ErrConflict is the only retryable failure.
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNotActive       = errors.New("auction is not active")
	ErrInvalidAmount   = errors.New("bid amount is not a positive minor-unit value")
	ErrBidTooLow       = errors.New("bid is below the current price plus minimum increment")
	ErrConflict        = errors.New("bid lost too many concurrent commits; resubmission may succeed")
	ErrInvariant       = errors.New("auction invariant violated")
)

// RejectReason names why a bid attempt was turned away. The values are part
// of the external contract and of the ledger's audit records.
type RejectReason string

const (
	ReasonNone          RejectReason = ""
	ReasonNotActive     RejectReason = "AuctionNotActive"
	ReasonInvalidAmount RejectReason = "InvalidAmount"
	ReasonBidTooLow     RejectReason = "BidTooLow"
	ReasonConflict      RejectReason = "ConcurrencyConflict"
)

// Err maps a reason to its sentinel error, or nil for ReasonNone.
func (r RejectReason) Err() error {
	switch r {
	case ReasonNotActive:
		return ErrNotActive
	case ReasonInvalidAmount:
		return ErrInvalidAmount
	case ReasonBidTooLow:
		return ErrBidTooLow
	case ReasonConflict:
		return ErrConflict
	}
	return nil
}
