package auction

import "github.com/tradefloor/auctioneer/internal/money"

// Decision is the outcome of validating one bid against one consistent
// auction state.
type Decision struct {
	Accepted bool
	Reason   RejectReason
	// MinimumBid is the floor the bid was held against; populated on
	// BidTooLow rejections so callers can surface it.
	MinimumBid money.Amount
	// BuyNow is set when the accepted amount meets the buy-now price and
	// the auction must close immediately in the bidder's favour.
	BuyNow bool
}

// Validate decides whether a bid is acceptable against the given state.
// Rules are evaluated in a fixed order: lifecycle, amount well-formedness,
// then the price floor. The function is pure; it is re-run at commit time
// because the state it first saw may be stale by then.
func Validate(a *Auction, amount money.Amount) Decision {
	if !a.Status.Biddable() {
		return Decision{Reason: ReasonNotActive}
	}
	if amount <= 0 {
		return Decision{Reason: ReasonInvalidAmount}
	}
	if floor := a.Increments.MinimumBid(a.CurrentBid); amount < floor {
		return Decision{Reason: ReasonBidTooLow, MinimumBid: floor}
	}
	d := Decision{Accepted: true}
	if a.BuyNowPrice > 0 && amount >= a.BuyNowPrice {
		d.BuyNow = true
	}
	return d
}
