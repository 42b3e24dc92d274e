package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradefloor/auctioneer/internal/event"
	"github.com/tradefloor/auctioneer/internal/store/postgres"
)

func testEvent(aggregateID string, t event.Type, version int64) event.Event {
	return event.Event{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		Type:        t,
		Data:        json.RawMessage(`{"bidder_id":"b1","amount":5500}`),
		Version:     version,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	aggregateID := uuid.NewString()
	if err := es.Append(ctx,
		testEvent(aggregateID, event.AuctionCreated, 1),
		testEvent(aggregateID, event.BidAccepted, 2),
		testEvent(aggregateID, event.AuctionClosed, 3),
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := es.Load(ctx, aggregateID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Load returned %d, want 3", len(got))
	}
	for i, e := range got {
		if e.Version != int64(i+1) {
			t.Errorf("event %d: Version = %d, want %d", i, e.Version, i+1)
		}
	}
	if got[1].Type != event.BidAccepted {
		t.Errorf("Type = %q, want %q", got[1].Type, event.BidAccepted)
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	a, b := uuid.NewString(), uuid.NewString()
	if err := es.Append(ctx,
		testEvent(a, event.BidAccepted, 1),
		testEvent(b, event.BidAccepted, 1),
		testEvent(a, event.AuctionClosed, 2),
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := es.LoadByType(ctx, event.BidAccepted)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("LoadByType returned %d, want 2", len(got))
	}
}

func TestEventStore_Append_Empty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)

	if err := es.Append(context.Background()); err != nil {
		t.Fatalf("Append with no events: %v", err)
	}
}
