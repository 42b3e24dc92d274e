package auction_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tradefloor/auctioneer/internal/auction"
	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/event"
	"github.com/tradefloor/auctioneer/internal/money"
	"github.com/tradefloor/auctioneer/internal/store"
	"github.com/tradefloor/auctioneer/internal/store/memory"
)

type env struct {
	clk   *clock.Manual
	repos *store.Repositories
	bus   *event.Bus
	mgr   *auction.Manager
}

func newEnv(t *testing.T, cd auction.Countdown) *env {
	t.Helper()
	clk := clock.NewManual(testBase)
	repos := memory.NewRepositories(clk)
	bus := event.NewBus()
	mgr := auction.NewManager(
		auction.Params{
			Countdown:         cd,
			CommitRetries:     3,
			DefaultDuration:   time.Hour,
			DefaultIncrements: auction.IncrementPolicy{Flat: 5},
		},
		repos, bus,
		slog.New(slog.DiscardHandler),
		tracenoop.NewTracerProvider(),
		metricnoop.NewMeterProvider(),
		clk,
	)
	return &env{clk: clk, repos: repos, bus: bus, mgr: mgr}
}

func defaultCountdown() auction.Countdown {
	return auction.Countdown{Window: 120 * time.Second, MaxExtensions: 10}
}

func (e *env) create(t *testing.T, p auction.CreateParams) *auction.Snapshot {
	t.Helper()
	snap, err := e.mgr.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return snap
}

func TestManager_Create(t *testing.T) {
	e := newEnv(t, defaultCountdown())

	snap := e.create(t, auction.CreateParams{
		ItemRef:     "item-1",
		SellerID:    "seller-1",
		StartingBid: 115,
	})

	if snap.Status != auction.StatusActive {
		t.Errorf("new auction status = %s, want active", snap.Status)
	}
	if snap.CurrentBid != 115 {
		t.Errorf("current bid = %d, want starting bid 115", snap.CurrentBid)
	}
	if !snap.EndTime.Equal(testBase.Add(time.Hour)) {
		t.Errorf("end time = %v, want start + default duration", snap.EndTime)
	}

	row, err := e.repos.Auctions.GetByID(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("auction row not persisted: %v", err)
	}
	if row.Status != "active" {
		t.Errorf("persisted status = %q, want active", row.Status)
	}
}

func TestManager_Create_Validation(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()

	if _, err := e.mgr.Create(ctx, auction.CreateParams{StartingBid: 0}); !errors.Is(err, auction.ErrInvalidAmount) {
		t.Errorf("zero starting bid error = %v, want ErrInvalidAmount", err)
	}
	if _, err := e.mgr.Create(ctx, auction.CreateParams{StartingBid: 100, BuyNowPrice: 50}); !errors.Is(err, auction.ErrInvalidAmount) {
		t.Errorf("buy-now below starting bid error = %v, want ErrInvalidAmount", err)
	}
}

func TestManager_SubmitBid(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "item-1", SellerID: "s1", StartingBid: 115})

	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 120)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if !res.Accepted {
		t.Fatalf("bid rejected: %s", res.Reason)
	}
	if res.CurrentBid != 120 {
		t.Errorf("current bid = %d, want 120", res.CurrentBid)
	}

	// Below the new floor of 125.
	res, err = e.mgr.SubmitBid(ctx, snap.ID, "bob", 122)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if res.Accepted || res.Reason != auction.ReasonBidTooLow {
		t.Errorf("got accepted=%v reason=%q, want BidTooLow rejection", res.Accepted, res.Reason)
	}
	if res.MinimumBid != 125 {
		t.Errorf("reported floor = %d, want 125", res.MinimumBid)
	}

	history, err := e.mgr.History(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("ledger has %d entries, want 2 (accepted and rejected)", len(history))
	}
	if !history[0].Accepted || history[1].Accepted {
		t.Error("ledger outcomes do not match submissions")
	}
}

func TestManager_SubmitBid_UnknownAuction(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	_, err := e.mgr.SubmitBid(context.Background(), "nope", "alice", 100)
	if !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("error = %v, want ErrAuctionNotFound", err)
	}
}

func TestManager_SubmitBid_AfterEnd(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	e.clk.Set(snap.EndTime.Add(time.Second))

	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 500)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if res.Accepted || res.Reason != auction.ReasonNotActive {
		t.Errorf("got accepted=%v reason=%q, want AuctionNotActive", res.Accepted, res.Reason)
	}
	if res.Status != auction.StatusClosed {
		t.Errorf("status = %s, want closed (lazy closure on submit)", res.Status)
	}
}

func TestManager_AntiSnipeExtension(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})
	end := snap.EndTime

	// Accepted bid 60s before end with a 120s window gains exactly 60s.
	e.clk.Set(end.Add(-60 * time.Second))
	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 200)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if !res.Accepted {
		t.Fatalf("bid rejected: %s", res.Reason)
	}
	if want := end.Add(60 * time.Second); !res.EndTime.Equal(want) {
		t.Errorf("end time = %v, want %v", res.EndTime, want)
	}
	if res.Status != auction.StatusEndingSoon {
		t.Errorf("status = %s, want ending_soon", res.Status)
	}

	got, err := e.mgr.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExtensionCount != 1 {
		t.Errorf("extension count = %d, want 1", got.ExtensionCount)
	}
}

func TestManager_ExtensionCap(t *testing.T) {
	e := newEnv(t, auction.Countdown{Window: 120 * time.Second, MaxExtensions: 1})
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})
	end := snap.EndTime

	e.clk.Set(end.Add(-60 * time.Second))
	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 200)
	if err != nil || !res.Accepted {
		t.Fatalf("first bid: accepted=%v err=%v", res != nil && res.Accepted, err)
	}
	extendedEnd := res.EndTime

	// Cap reached: a later accepted bid no longer moves the end time.
	e.clk.Set(extendedEnd.Add(-30 * time.Second))
	res, err = e.mgr.SubmitBid(ctx, snap.ID, "bob", 300)
	if err != nil || !res.Accepted {
		t.Fatalf("second bid: accepted=%v err=%v", res != nil && res.Accepted, err)
	}
	if !res.EndTime.Equal(extendedEnd) {
		t.Errorf("end time moved to %v after cap, want %v", res.EndTime, extendedEnd)
	}

	got, _ := e.mgr.Snapshot(ctx, snap.ID)
	if got.ExtensionCount != 1 {
		t.Errorf("extension count = %d, want 1", got.ExtensionCount)
	}
}

func TestManager_BuyNowClosesImmediately(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{
		ItemRef:     "i",
		SellerID:    "s",
		StartingBid: 300,
		BuyNowPrice: 500,
	})

	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 500)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if !res.Accepted {
		t.Fatalf("buy-now bid rejected: %s", res.Reason)
	}
	if res.Status != auction.StatusClosed {
		t.Errorf("status = %s, want closed in the same operation", res.Status)
	}

	got, err := e.mgr.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.WinnerID != "alice" {
		t.Errorf("winner = %q, want alice", got.WinnerID)
	}

	// The auction is finished; later bids hit the temporal floor.
	res, err = e.mgr.SubmitBid(ctx, snap.ID, "bob", 600)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Reason != auction.ReasonNotActive {
		t.Errorf("post-close bid: accepted=%v reason=%q, want AuctionNotActive", res.Accepted, res.Reason)
	}
}

func TestManager_ReserveNotMet(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{
		ItemRef:      "i",
		SellerID:     "s",
		StartingBid:  100,
		ReservePrice: 1000,
	})

	res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 200)
	if err != nil || !res.Accepted {
		t.Fatalf("bid: accepted=%v err=%v", res != nil && res.Accepted, err)
	}

	e.clk.Set(snap.EndTime.Add(time.Second))
	got, err := e.mgr.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != auction.StatusClosed {
		t.Fatalf("status = %s, want closed", got.Status)
	}
	if got.WinnerID != "" {
		t.Errorf("winner = %q, want none (reserve not met)", got.WinnerID)
	}
}

func TestManager_Cancel(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	res, err := e.mgr.Cancel(ctx, snap.ID, "admin")
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if !res.OK {
		t.Fatalf("Cancel() not ok: %s", res.Reason)
	}

	// Idempotent: the second call reports a deterministic reason, no error.
	res, err = e.mgr.Cancel(ctx, snap.ID, "admin")
	if err != nil {
		t.Fatalf("second Cancel() error = %v", err)
	}
	if res.OK || res.Reason == "" {
		t.Errorf("second Cancel() = %+v, want ok=false with reason", res)
	}

	if _, err := e.mgr.Cancel(ctx, "nope", "admin"); !errors.Is(err, auction.ErrAuctionNotFound) {
		t.Errorf("Cancel(unknown) error = %v, want ErrAuctionNotFound", err)
	}
}

func TestManager_CancelClosedAuction(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	e.clk.Set(snap.EndTime.Add(time.Second))
	if _, err := e.mgr.Snapshot(ctx, snap.ID); err != nil {
		t.Fatal(err)
	}

	res, err := e.mgr.Cancel(ctx, snap.ID, "admin")
	if err != nil {
		t.Fatalf("Cancel() on closed auction error = %v", err)
	}
	if res.OK {
		t.Error("cancelling a closed auction succeeded")
	}
	if res.Reason != "auction is already closed" {
		t.Errorf("reason = %q, want deterministic closed reason", res.Reason)
	}
}

func TestManager_Snapshot_LazyClosure(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	sub := e.bus.Subscribe(16)

	e.clk.Set(snap.EndTime.Add(time.Minute))
	got, err := e.mgr.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != auction.StatusClosed {
		t.Errorf("status = %s, want closed without a sweep", got.Status)
	}

	var sawClosed bool
	for done := false; !done; {
		select {
		case ev := <-sub:
			if ev.Type == event.AuctionClosed {
				sawClosed = true
			}
		default:
			done = true
		}
	}
	if !sawClosed {
		t.Error("expected an auction.closed event on the bus")
	}
}

func TestManager_SweepOnce(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()

	first := e.create(t, auction.CreateParams{ItemRef: "i1", SellerID: "s", StartingBid: 100})
	e.create(t, auction.CreateParams{ItemRef: "i2", SellerID: "s", StartingBid: 100, Duration: 2 * time.Hour})

	e.clk.Set(first.EndTime.Add(time.Second))
	if n := e.mgr.SweepOnce(ctx); n != 1 {
		t.Errorf("first sweep closed %d auctions, want 1", n)
	}
	// Idempotent: a second sweep finds nothing new to close.
	if n := e.mgr.SweepOnce(ctx); n != 0 {
		t.Errorf("second sweep closed %d auctions, want 0", n)
	}
}

func TestManager_OutbidEvent(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	sub := e.bus.Subscribe(16)

	if res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 110); err != nil || !res.Accepted {
		t.Fatalf("first bid: err=%v", err)
	}
	if res, err := e.mgr.SubmitBid(ctx, snap.ID, "bob", 120); err != nil || !res.Accepted {
		t.Fatalf("second bid: err=%v", err)
	}

	var outbid int
	for done := false; !done; {
		select {
		case ev := <-sub:
			if ev.Type == event.AuctionOutbid {
				outbid++
			}
		default:
			done = true
		}
	}
	if outbid != 1 {
		t.Errorf("got %d outbid events, want 1 (alice outbid by bob)", outbid)
	}
}

func TestManager_ConcurrentArbitration(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 115})

	// Deterministic ordering first: once 125 is committed, 120 is too low.
	if res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 125); err != nil || !res.Accepted {
		t.Fatalf("bid of 125: err=%v", err)
	}
	res, err := e.mgr.SubmitBid(ctx, snap.ID, "bob", 120)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted || res.Reason != auction.ReasonBidTooLow {
		t.Errorf("bid of 120 after 125: accepted=%v reason=%q, want BidTooLow", res.Accepted, res.Reason)
	}

	got, _ := e.mgr.Snapshot(ctx, snap.ID)
	if got.CurrentBid != 125 {
		t.Errorf("current bid = %d, want 125", got.CurrentBid)
	}
}

func TestManager_ConcurrentBids_MonotonicAndConsistent(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "i", SellerID: "s", StartingBid: 100})

	const bidders = 60
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := money.FromMinor(int64(105 + rand.IntN(500)))
			bidder := fmt.Sprintf("bidder-%d", i)
			// Conflicts exhaust the retry budget under this much
			// contention; that is a legal, retryable outcome.
			_, _ = e.mgr.SubmitBid(ctx, snap.ID, bidder, amount)
		}(i)
	}
	wg.Wait()

	history, err := e.mgr.History(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != bidders {
		t.Fatalf("ledger has %d entries, want one per submission (%d)", len(history), bidders)
	}

	var accepted []money.Amount
	for _, entry := range history {
		if entry.Accepted {
			accepted = append(accepted, entry.Amount)
		}
	}
	if len(accepted) == 0 {
		t.Fatal("expected at least one accepted bid")
	}
	// Monotonic price: accepted amounts strictly increase in commit order.
	max := accepted[0]
	for i := 1; i < len(accepted); i++ {
		if accepted[i] <= accepted[i-1] {
			t.Fatalf("accepted amounts not strictly increasing: %v", accepted)
		}
		if accepted[i] > max {
			max = accepted[i]
		}
	}

	got, _ := e.mgr.Snapshot(ctx, snap.ID)
	if got.CurrentBid != max {
		t.Errorf("current bid = %d, want max accepted %d", got.CurrentBid, max)
	}
	if got.BidCount != len(accepted) {
		t.Errorf("bid count = %d, want %d", got.BidCount, len(accepted))
	}
}

func TestManager_Recover(t *testing.T) {
	e := newEnv(t, defaultCountdown())
	ctx := context.Background()
	snap := e.create(t, auction.CreateParams{ItemRef: "item-1", SellerID: "s", StartingBid: 100})
	if res, err := e.mgr.SubmitBid(ctx, snap.ID, "alice", 150); err != nil || !res.Accepted {
		t.Fatalf("bid: err=%v", err)
	}

	// A fresh manager over the same repositories simulates a restart.
	restarted := auction.NewManager(
		auction.Params{
			Countdown:         defaultCountdown(),
			CommitRetries:     3,
			DefaultDuration:   time.Hour,
			DefaultIncrements: auction.IncrementPolicy{Flat: 5},
		},
		e.repos, event.NewBus(),
		slog.New(slog.DiscardHandler),
		tracenoop.NewTracerProvider(),
		metricnoop.NewMeterProvider(),
		e.clk,
	)

	n, err := restarted.Recover(ctx)
	if err != nil {
		t.Fatalf("Recover() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d auctions, want 1", n)
	}

	got, err := restarted.Snapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.CurrentBid != 150 || got.BidCount != 1 {
		t.Errorf("recovered state: bid=%d count=%d, want 150/1", got.CurrentBid, got.BidCount)
	}

	history, err := restarted.History(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("recovered ledger has %d entries, want 1", len(history))
	}

	// Bidding continues against the recovered state.
	res, err := restarted.SubmitBid(ctx, snap.ID, "bob", 200)
	if err != nil || !res.Accepted {
		t.Fatalf("post-recovery bid: accepted=%v err=%v", res != nil && res.Accepted, err)
	}
}
