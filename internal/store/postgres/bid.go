package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tradefloor/auctioneer/internal/store"
)

// BidRepo implements store.BidRepository with sqlx. Bid rows are an
// append-only audit trail; there are no update paths.
type BidRepo struct {
	db *sqlx.DB
}

// NewBidRepo returns a new BidRepo.
func NewBidRepo(db *sqlx.DB) *BidRepo {
	return &BidRepo{db: db}
}

func (r *BidRepo) Append(ctx context.Context, b *store.Bid) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO bids (id, auction_id, bidder_id, amount, placed_at, accepted, reason)
		 VALUES (:id, :auction_id, :bidder_id, :amount, :placed_at, :accepted, :reason)`, b)
	if err != nil {
		return fmt.Errorf("appending bid: %w", err)
	}
	return nil
}

func (r *BidRepo) ListByAuction(ctx context.Context, auctionID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY placed_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}
