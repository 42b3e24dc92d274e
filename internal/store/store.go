package store

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict is returned by AuctionRepository.UpdateState when the
// stored row already carries an equal or newer version.
var ErrVersionConflict = errors.New("auction version conflict")

// Auction is the persisted auction record. Amounts are minor units; a zero
// ReservePrice or BuyNowPrice means the field is unset.
type Auction struct {
	ID             string     `db:"id"`
	ItemRef        string     `db:"item_ref"`
	SellerID       string     `db:"seller_id"`
	StartingBid    int64      `db:"starting_bid"`
	ReservePrice   int64      `db:"reserve_price"`
	BuyNowPrice    int64      `db:"buy_now_price"`
	CurrentBid     int64      `db:"current_bid"`
	LeaderID       *string    `db:"leader_id"`
	BidCount       int        `db:"bid_count"`
	StartTime      time.Time  `db:"start_time"`
	EndTime        time.Time  `db:"end_time"`
	Status         string     `db:"status"`
	ExtensionCount int        `db:"extension_count"`
	Version        int64      `db:"version"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	ClosedAt       *time.Time `db:"closed_at"`
}

// Bid is one persisted ledger entry. Rejected attempts are stored alongside
// accepted ones; rows are never updated.
type Bid struct {
	ID        string    `db:"id"`
	AuctionID string    `db:"auction_id"`
	BidderID  string    `db:"bidder_id"`
	Amount    int64     `db:"amount"`
	PlacedAt  time.Time `db:"placed_at"`
	Accepted  bool      `db:"accepted"`
	Reason    string    `db:"reason"`
}

// AuctionRepository defines auction persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	GetByID(ctx context.Context, id string) (*Auction, error)
	// UpdateState writes the mutable columns guarded by the version counter:
	// the row is only written when its stored version is older than a.Version,
	// so persistence fan-out arriving out of order can never roll state back.
	// A stale write returns ErrVersionConflict.
	UpdateState(ctx context.Context, a *Auction) error
	// ListLive returns auctions that have not reached a terminal status.
	ListLive(ctx context.Context) ([]Auction, error)
}

// BidRepository defines ledger persistence operations.
type BidRepository interface {
	Append(ctx context.Context, b *Bid) error
	ListByAuction(ctx context.Context, auctionID string) ([]Bid, error)
}
