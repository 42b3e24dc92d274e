package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db  *sqlx.DB
	clk clock.Clock
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB, clk clock.Clock) *AuctionRepo {
	return &AuctionRepo{db: db, clk: clk}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	a.CreatedAt = r.clk.Now().UTC()
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO auctions (id, item_ref, seller_id, starting_bid, reserve_price, buy_now_price,
		                       current_bid, leader_id, bid_count, start_time, end_time, status,
		                       extension_count, version, created_at, updated_at, closed_at)
		 VALUES (:id, :item_ref, :seller_id, :starting_bid, :reserve_price, :buy_now_price,
		         :current_bid, :leader_id, :bid_count, :start_time, :end_time, :status,
		         :extension_count, :version, :created_at, :updated_at, :closed_at)`, a)
	if err != nil {
		return fmt.Errorf("creating auction: %w", err)
	}
	return nil
}

func (r *AuctionRepo) GetByID(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

// UpdateState writes the bidding columns guarded by the version counter.
// The row only moves forward: a write carrying a version the row has
// already reached returns store.ErrVersionConflict.
func (r *AuctionRepo) UpdateState(ctx context.Context, a *store.Auction) error {
	result, err := r.db.NamedExecContext(ctx,
		`UPDATE auctions
		 SET current_bid = :current_bid, leader_id = :leader_id, bid_count = :bid_count,
		     end_time = :end_time, status = :status, extension_count = :extension_count,
		     version = :version, updated_at = :updated_at, closed_at = :closed_at
		 WHERE id = :id AND version < :version`, a)
	if err != nil {
		return fmt.Errorf("updating auction state: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		var exists bool
		err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM auctions WHERE id = $1)`, a.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking auction %s: %w", a.ID, err)
		}
		if exists {
			return store.ErrVersionConflict
		}
		return fmt.Errorf("auction %s not found", a.ID)
	}
	return nil
}

func (r *AuctionRepo) ListLive(ctx context.Context) ([]store.Auction, error) {
	var auctions []store.Auction
	err := r.db.SelectContext(ctx, &auctions,
		`SELECT * FROM auctions WHERE status NOT IN ('closed', 'cancelled') ORDER BY end_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing live auctions: %w", err)
	}
	return auctions, nil
}
