package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/store"
	"github.com/tradefloor/auctioneer/internal/store/postgres"
)

func TestBidRepo_AppendAndList(t *testing.T) {
	db := newTestDB(t)
	auctionRepo := postgres.NewAuctionRepo(db, clock.Real{})
	bidRepo := postgres.NewBidRepo(db)
	ctx := context.Background()

	a := newAuctionRow("painting")
	if err := auctionRepo.Create(ctx, a); err != nil {
		t.Fatalf("Create auction: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Microsecond)
	bids := []store.Bid{
		{ID: uuid.NewString(), AuctionID: a.ID, BidderID: "b1", Amount: 5500, PlacedAt: base, Accepted: true},
		{ID: uuid.NewString(), AuctionID: a.ID, BidderID: "b2", Amount: 5300, PlacedAt: base.Add(time.Second), Accepted: false, Reason: "BidTooLow"},
		{ID: uuid.NewString(), AuctionID: a.ID, BidderID: "b2", Amount: 6000, PlacedAt: base.Add(2 * time.Second), Accepted: true},
	}
	for i := range bids {
		if err := bidRepo.Append(ctx, &bids[i]); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	got, err := bidRepo.ListByAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListByAuction: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListByAuction returned %d, want 3", len(got))
	}
	// Rejected attempts survive alongside accepted ones, in placement order.
	if got[0].BidderID != "b1" || got[2].Amount != 6000 {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[1].Accepted || got[1].Reason != "BidTooLow" {
		t.Errorf("rejected bid = %+v, want accepted=false reason=BidTooLow", got[1])
	}
}

func TestBidRepo_ListByAuction_Empty(t *testing.T) {
	db := newTestDB(t)
	bidRepo := postgres.NewBidRepo(db)

	got, err := bidRepo.ListByAuction(context.Background(), uuid.NewString())
	if err != nil {
		t.Fatalf("ListByAuction: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("ListByAuction returned %d, want 0", len(got))
	}
}
