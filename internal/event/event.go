package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated   Type = "auction.created"
	BidAccepted      Type = "auction.bid_accepted"
	BidRejected      Type = "auction.bid_rejected"
	AuctionExtended  Type = "auction.extended"
	AuctionOutbid    Type = "auction.outbid"
	AuctionClosed    Type = "auction.closed"
	AuctionCancelled Type = "auction.cancelled"
)

// Event represents a single domain event. Events are facts emitted after a
// commit; downstream consumers (notifications, audit) must never feed them
// back into the bidding path.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int64           `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	ItemRef     string    `json:"item_ref"`
	SellerID    string    `json:"seller_id"`
	StartingBid int64     `json:"starting_bid"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// BidAcceptedData is the payload for BidAccepted events.
type BidAcceptedData struct {
	BidID    string `json:"bid_id"`
	BidderID string `json:"bidder_id"`
	Amount   int64  `json:"amount"`
	BidCount int    `json:"bid_count"`
}

// BidRejectedData is the payload for BidRejected events.
type BidRejectedData struct {
	BidID    string `json:"bid_id"`
	BidderID string `json:"bidder_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

// AuctionExtendedData is the payload for AuctionExtended events.
type AuctionExtendedData struct {
	EndTime        time.Time `json:"end_time"`
	ExtensionCount int       `json:"extension_count"`
}

// AuctionOutbidData is the payload for AuctionOutbid events, addressed to the
// bidder who just lost the lead.
type AuctionOutbidData struct {
	OutbidBidderID string `json:"outbid_bidder_id"`
	NewAmount      int64  `json:"new_amount"`
}

// AuctionClosedData is the payload for AuctionClosed events. WinnerID is
// empty when the auction closed without a winner (no accepted bids, or the
// reserve price was not met).
type AuctionClosedData struct {
	WinnerID   string `json:"winner_id,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	ReserveMet bool   `json:"reserve_met"`
}

// AuctionCancelledData is the payload for AuctionCancelled events.
type AuctionCancelledData struct {
	Actor string `json:"actor"`
}
