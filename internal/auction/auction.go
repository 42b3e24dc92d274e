package auction

import (
	"time"

	"github.com/tradefloor/auctioneer/internal/money"
)

// Auction is the canonical auction record. Instances are immutable once
// published to the registry: every mutation produces a new copy with
// Version incremented exactly once, installed via compare-and-swap. Readers
// therefore always observe a consistent state.
type Auction struct {
	ID       string
	ItemRef  string // opaque reference into the catalog service
	SellerID string

	StartingBid  money.Amount
	ReservePrice money.Amount // 0 = no reserve
	BuyNowPrice  money.Amount // 0 = no buy-now
	Increments   IncrementPolicy

	// CurrentBid equals the amount of the highest accepted bid, or
	// StartingBid while none exist.
	CurrentBid money.Amount
	LeaderID   string
	BidCount   int

	StartTime time.Time
	EndTime   time.Time // only ever grows; frozen once Status is terminal
	Status    Status

	ExtensionCount int
	Version        int64
}

// clone returns a copy ready for mutation. The caller must bump Version
// exactly once before publishing the copy.
func (a *Auction) clone() *Auction {
	c := *a
	return &c
}

// HasReserve reports whether a reserve price is set.
func (a *Auction) HasReserve() bool { return a.ReservePrice > 0 }

// ReserveMet reports whether the current price satisfies the reserve.
// Auctions without a reserve always meet it.
func (a *Auction) ReserveMet() bool {
	return !a.HasReserve() || (a.BidCount > 0 && a.CurrentBid >= a.ReservePrice)
}

// Winner returns the winning bidder at closure, or "" when the auction
// closed without one (no accepted bids, or reserve not met).
func (a *Auction) Winner() string {
	if a.Status != StatusClosed || a.BidCount == 0 || !a.ReserveMet() {
		return ""
	}
	return a.LeaderID
}

// Snapshot is the read-only view served to external consumers.
type Snapshot struct {
	ID             string       `json:"id"`
	ItemRef        string       `json:"item_ref"`
	Status         Status       `json:"status"`
	CurrentBid     money.Amount `json:"current_bid"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	BidCount       int          `json:"bid_count"`
	ExtensionCount int          `json:"extension_count"`
	WinnerID       string       `json:"winner_id,omitempty"`
	Version        int64        `json:"version"`
}

// snapshot builds the external view of a.
func (a *Auction) snapshot() *Snapshot {
	return &Snapshot{
		ID:             a.ID,
		ItemRef:        a.ItemRef,
		Status:         a.Status,
		CurrentBid:     a.CurrentBid,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		BidCount:       a.BidCount,
		ExtensionCount: a.ExtensionCount,
		WinnerID:       a.Winner(),
		Version:        a.Version,
	}
}
