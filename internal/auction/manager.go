package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/event"
	"github.com/tradefloor/auctioneer/internal/money"
	"github.com/tradefloor/auctioneer/internal/store"
)

const instrumentationName = "github.com/tradefloor/auctioneer/internal/auction"

// Params configures a Manager.
type Params struct {
	Countdown Countdown
	// CommitRetries bounds the read-validate-swap loop per bid.
	CommitRetries int
	// DefaultDuration applies when CreateParams carries no duration.
	DefaultDuration time.Duration
	// DefaultIncrements applies when CreateParams carries no policy.
	DefaultIncrements IncrementPolicy
}

// Manager owns the bidding entry points. All auction state flows through
// the registry's compare-and-swap; persistence and the event stream are
// fan-out after commit and never part of the atomic unit.
type Manager struct {
	registry  *Registry
	countdown Countdown
	retries   int

	defaultDuration   time.Duration
	defaultIncrements IncrementPolicy

	auctions store.AuctionRepository
	bids     store.BidRepository
	events   event.Store
	bus      *event.Bus

	logger     *slog.Logger
	tracer     trace.Tracer
	clock      clock.Clock
	bidCounter metric.Int64Counter
}

// NewManager creates a Manager wired to the given repositories and bus.
func NewManager(p Params, repos *store.Repositories, bus *event.Bus, logger *slog.Logger, tp trace.TracerProvider, mp metric.MeterProvider, clk clock.Clock) *Manager {
	if p.CommitRetries < 1 {
		p.CommitRetries = 1
	}
	counter, _ := mp.Meter(instrumentationName).Int64Counter("auctioneer.bids",
		metric.WithDescription("bid submissions by outcome"),
	)
	return &Manager{
		registry:          NewRegistry(),
		countdown:         p.Countdown,
		retries:           p.CommitRetries,
		defaultDuration:   p.DefaultDuration,
		defaultIncrements: p.DefaultIncrements,
		auctions:          repos.Auctions,
		bids:              repos.Bids,
		events:            repos.Events,
		bus:               bus,
		logger:            logger,
		tracer:            tp.Tracer(instrumentationName),
		clock:             clk,
		bidCounter:        counter,
	}
}

// CreateParams describes a new auction.
type CreateParams struct {
	ItemRef      string
	SellerID     string
	StartingBid  money.Amount
	ReservePrice money.Amount
	BuyNowPrice  money.Amount
	Increments   *IncrementPolicy
	StartTime    time.Time // zero = start now
	Duration     time.Duration
}

// Create registers a new auction. It starts scheduled and becomes active
// once the wall clock passes its start time.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Snapshot, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Create",
		trace.WithAttributes(
			attribute.String("item_ref", p.ItemRef),
			attribute.String("seller_id", p.SellerID),
		),
	)
	defer span.End()

	if p.StartingBid <= 0 {
		return nil, fmt.Errorf("starting bid %d: %w", p.StartingBid, ErrInvalidAmount)
	}
	if p.BuyNowPrice > 0 && p.BuyNowPrice <= p.StartingBid {
		return nil, fmt.Errorf("buy-now price must exceed starting bid: %w", ErrInvalidAmount)
	}

	now := m.clock.Now().UTC()
	start := p.StartTime
	if start.IsZero() {
		start = now
	}
	duration := p.Duration
	if duration <= 0 {
		duration = m.defaultDuration
	}
	increments := m.defaultIncrements
	if p.Increments != nil {
		increments = *p.Increments
	}

	a := &Auction{
		ID:           uuid.NewString(),
		ItemRef:      p.ItemRef,
		SellerID:     p.SellerID,
		StartingBid:  p.StartingBid,
		ReservePrice: p.ReservePrice,
		BuyNowPrice:  p.BuyNowPrice,
		Increments:   increments,
		CurrentBid:   p.StartingBid,
		StartTime:    start,
		EndTime:      start.Add(duration),
		Status:       StatusScheduled,
		Version:      1,
	}
	if adv, changed := m.countdown.Advance(a, now); changed {
		a = adv
	}
	m.registry.Put(a)

	if err := m.auctions.Create(ctx, stateToRow(a, now)); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist auction",
			slog.String("auction_id", a.ID), slog.Any("error", err))
	}
	data, _ := json.Marshal(event.AuctionCreatedData{
		ItemRef:     a.ItemRef,
		SellerID:    a.SellerID,
		StartingBid: a.StartingBid.Minor(),
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
	})
	m.emit(ctx, a, event.AuctionCreated, data)

	m.logger.InfoContext(ctx, "auction created",
		slog.String("auction_id", a.ID),
		slog.String("item_ref", a.ItemRef),
		slog.String("starting_bid", a.StartingBid.String()),
	)
	return a.snapshot(), nil
}

// BidResult is the response to one bid submission.
type BidResult struct {
	Accepted   bool
	BidID      string
	Reason     RejectReason
	CurrentBid money.Amount
	MinimumBid money.Amount
	EndTime    time.Time
	Status     Status
}

// SubmitBid validates and commits one bid. Validation rejections come back
// in the result with a nil error; the error return is reserved for unknown
// auctions, exhausted commit retries and internal invariant breaches.
func (m *Manager) SubmitBid(ctx context.Context, auctionID, bidderID string, amount money.Amount) (*BidResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.SubmitBid",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("bidder_id", bidderID),
			attribute.Int64("amount", amount.Minor()),
		),
	)
	defer span.End()

	ledger, err := m.registry.Ledger(auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
	}

	for attempt := 0; attempt < m.retries; attempt++ {
		cur, err := m.registry.Load(auctionID)
		if err != nil {
			return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
		}
		now := m.clock.Now().UTC()

		// Apply due time transitions first so the bid is judged against
		// the auction's real lifecycle state, not a stale one.
		if adv, changed := m.countdown.Advance(cur, now); changed {
			if !m.registry.CompareAndSwap(auctionID, cur, adv) {
				continue
			}
			m.afterTransition(ctx, cur, adv, now)
			cur = adv
		}

		decision := Validate(cur, amount)
		if !decision.Accepted {
			entry := newEntry(cur.ID, bidderID, amount, now, false, decision.Reason)
			ledger.Append(entry)
			m.persistBid(ctx, entry)
			m.bidCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(decision.Reason))))
			data, _ := json.Marshal(event.BidRejectedData{
				BidID:    entry.ID,
				BidderID: bidderID,
				Amount:   amount.Minor(),
				Reason:   string(decision.Reason),
			})
			m.emit(ctx, cur, event.BidRejected, data)
			return &BidResult{
				Accepted:   false,
				BidID:      entry.ID,
				Reason:     decision.Reason,
				CurrentBid: cur.CurrentBid,
				MinimumBid: decision.MinimumBid,
				EndTime:    cur.EndTime,
				Status:     cur.Status,
			}, nil
		}

		next := cur.clone()
		next.CurrentBid = amount
		next.LeaderID = bidderID
		next.BidCount = cur.BidCount + 1
		next.Version = cur.Version + 1

		extended := false
		if decision.BuyNow {
			// Close in the bidder's favour; end time freezes where it is.
			next.Status = StatusClosed
		} else {
			if endTime, ok := m.countdown.Extend(cur, now); ok {
				next.EndTime = endTime
				next.ExtensionCount = cur.ExtensionCount + 1
				extended = true
			}
			if next.Status == StatusActive && next.EndTime.Sub(now) <= m.countdown.Window {
				next.Status = StatusEndingSoon
			}
		}

		// A committed price that fails to climb would mask a lost bid;
		// abort loudly rather than publish it.
		if next.CurrentBid <= cur.CurrentBid || next.EndTime.Before(cur.EndTime) {
			m.logger.ErrorContext(ctx, "refusing inconsistent bid commit",
				slog.String("auction_id", auctionID),
				slog.Int64("current_bid", cur.CurrentBid.Minor()),
				slog.Int64("next_bid", next.CurrentBid.Minor()),
				slog.Time("current_end", cur.EndTime),
				slog.Time("next_end", next.EndTime),
				slog.Int64("version", cur.Version),
			)
			return nil, fmt.Errorf("auction %s: %w", auctionID, ErrInvariant)
		}

		// CommitBid swaps the state and appends the ledger entry as one
		// atomic step, keeping the accepted history in commit order.
		entry := newEntry(cur.ID, bidderID, amount, now, true, ReasonNone)
		if !m.registry.CommitBid(auctionID, cur, next, entry) {
			continue
		}

		m.persistBid(ctx, entry)
		m.fanOutAccepted(ctx, cur, next, entry, extended, now)
		m.bidCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "accepted")))

		m.logger.InfoContext(ctx, "bid accepted",
			slog.String("auction_id", auctionID),
			slog.String("bidder_id", bidderID),
			slog.String("amount", amount.String()),
			slog.Bool("extended", extended),
			slog.Bool("buy_now", decision.BuyNow),
		)
		return &BidResult{
			Accepted:   true,
			BidID:      entry.ID,
			CurrentBid: next.CurrentBid,
			EndTime:    next.EndTime,
			Status:     next.Status,
		}, nil
	}

	now := m.clock.Now().UTC()
	cur, loadErr := m.registry.Load(auctionID)
	if loadErr != nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
	}
	entry := newEntry(cur.ID, bidderID, amount, now, false, ReasonConflict)
	ledger.Append(entry)
	m.persistBid(ctx, entry)
	m.bidCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(ReasonConflict))))
	m.logger.WarnContext(ctx, "bid exhausted commit retries",
		slog.String("auction_id", auctionID),
		slog.String("bidder_id", bidderID),
		slog.Int("attempts", m.retries),
	)
	return &BidResult{
		Accepted:   false,
		BidID:      entry.ID,
		Reason:     ReasonConflict,
		CurrentBid: cur.CurrentBid,
		EndTime:    cur.EndTime,
		Status:     cur.Status,
	}, ErrConflict
}

// Snapshot returns the read-only view of an auction, lazily applying any
// due time transition so a consumer never sees an expired auction as live.
func (m *Manager) Snapshot(ctx context.Context, auctionID string) (*Snapshot, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Snapshot",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	a, err := m.advance(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return a.snapshot(), nil
}

// History returns the full bid ledger of an auction in append order.
func (m *Manager) History(ctx context.Context, auctionID string) ([]Entry, error) {
	_, span := m.tracer.Start(ctx, "Manager.History",
		trace.WithAttributes(attribute.String("auction_id", auctionID)),
	)
	defer span.End()

	ledger, err := m.registry.Ledger(auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
	}
	return ledger.Entries(), nil
}

// CancelResult reports the outcome of a cancellation request.
type CancelResult struct {
	OK     bool
	Reason string
}

// Cancel moves an auction to cancelled. The call is idempotent: repeating
// it, or cancelling a closed auction, yields ok=false with a deterministic
// reason instead of an error.
func (m *Manager) Cancel(ctx context.Context, auctionID, actor string) (*CancelResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Cancel",
		trace.WithAttributes(
			attribute.String("auction_id", auctionID),
			attribute.String("actor", actor),
		),
	)
	defer span.End()

	for attempt := 0; attempt < m.retries; attempt++ {
		cur, err := m.registry.Load(auctionID)
		if err != nil {
			return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
		}
		switch cur.Status {
		case StatusCancelled:
			return &CancelResult{OK: false, Reason: "auction is already cancelled"}, nil
		case StatusClosed:
			return &CancelResult{OK: false, Reason: "auction is already closed"}, nil
		}

		next := cur.clone()
		next.Status = StatusCancelled
		next.Version = cur.Version + 1
		if !m.registry.CompareAndSwap(auctionID, cur, next) {
			continue
		}

		now := m.clock.Now().UTC()
		m.persistState(ctx, next, now)
		data, _ := json.Marshal(event.AuctionCancelledData{Actor: actor})
		m.emit(ctx, next, event.AuctionCancelled, data)
		m.logger.InfoContext(ctx, "auction cancelled",
			slog.String("auction_id", auctionID),
			slog.String("actor", actor),
		)
		return &CancelResult{OK: true}, nil
	}
	return nil, fmt.Errorf("cancelling auction %s: %w", auctionID, ErrConflict)
}

// SweepOnce evaluates time transitions for every registered auction and
// returns how many were closed. Closing an already-closed auction is a
// no-op, so overlapping sweeps are harmless.
func (m *Manager) SweepOnce(ctx context.Context) int {
	ctx, span := m.tracer.Start(ctx, "Manager.SweepOnce")
	defer span.End()

	closed := 0
	for _, a := range m.registry.List() {
		if a.Status.Terminal() {
			continue
		}
		next, err := m.advance(ctx, a.ID)
		if err != nil {
			continue
		}
		if next.Status == StatusClosed {
			closed++
		}
	}
	return closed
}

// RunSweeper drives SweepOnce at the given cadence until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.logger.InfoContext(ctx, "closure sweep started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("closure sweep stopped")
			return
		case <-ticker.C:
			if n := m.SweepOnce(ctx); n > 0 {
				m.logger.InfoContext(ctx, "sweep closed auctions", slog.Int("count", n))
			}
		}
	}
}

// Recover reloads live auctions and their ledgers from the store into the
// registry. Used at startup and on leadership acquisition.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Recover")
	defer span.End()

	rows, err := m.auctions.ListLive(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing live auctions: %w", err)
	}

	recovered := 0
	for i := range rows {
		a := rowToState(&rows[i])
		// Increment tables are configuration, not row state.
		a.Increments = m.defaultIncrements
		m.registry.Put(a)
		recovered++

		ledger, _ := m.registry.Ledger(a.ID)
		bids, bidErr := m.bids.ListByAuction(ctx, a.ID)
		if bidErr != nil {
			m.logger.WarnContext(ctx, "failed to reload bid ledger",
				slog.String("auction_id", a.ID), slog.Any("error", bidErr))
			continue
		}
		for _, b := range bids {
			ledger.Append(Entry{
				ID:        b.ID,
				AuctionID: b.AuctionID,
				BidderID:  b.BidderID,
				Amount:    money.FromMinor(b.Amount),
				PlacedAt:  b.PlacedAt,
				Accepted:  b.Accepted,
				Reason:    RejectReason(b.Reason),
			})
		}
		m.logger.InfoContext(ctx, "recovered auction",
			slog.String("auction_id", a.ID),
			slog.String("status", string(a.Status)),
			slog.Int("bids", len(bids)),
		)
	}

	m.logger.InfoContext(ctx, "auction recovery complete", slog.Int("recovered", recovered))
	return recovered, nil
}

// advance applies due time transitions through the CAS path.
func (m *Manager) advance(ctx context.Context, auctionID string) (*Auction, error) {
	for attempt := 0; attempt < m.retries; attempt++ {
		cur, err := m.registry.Load(auctionID)
		if err != nil {
			return nil, fmt.Errorf("auction %s: %w", auctionID, ErrAuctionNotFound)
		}
		now := m.clock.Now().UTC()
		next, changed := m.countdown.Advance(cur, now)
		if !changed {
			return cur, nil
		}
		if m.registry.CompareAndSwap(auctionID, cur, next) {
			m.afterTransition(ctx, cur, next, now)
			return next, nil
		}
	}
	// Contended beyond the budget; serve the freshest state we can read.
	return m.registry.Load(auctionID)
}

func newEntry(auctionID, bidderID string, amount money.Amount, at time.Time, accepted bool, reason RejectReason) Entry {
	return Entry{
		ID:        uuid.NewString(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		PlacedAt:  at,
		Accepted:  accepted,
		Reason:    reason,
	}
}

// persistBid mirrors a ledger entry into the store. The ledger write is
// part of the bid outcome; the repository write is fan-out.
func (m *Manager) persistBid(ctx context.Context, entry Entry) {
	if err := m.bids.Append(ctx, &store.Bid{
		ID:        entry.ID,
		AuctionID: entry.AuctionID,
		BidderID:  entry.BidderID,
		Amount:    entry.Amount.Minor(),
		PlacedAt:  entry.PlacedAt,
		Accepted:  entry.Accepted,
		Reason:    string(entry.Reason),
	}); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist bid",
			slog.String("auction_id", entry.AuctionID),
			slog.String("bid_id", entry.ID),
			slog.Any("error", err),
		)
	}
}

// fanOutAccepted persists the committed state and publishes the facts an
// accepted bid produces.
func (m *Manager) fanOutAccepted(ctx context.Context, prev, next *Auction, entry Entry, extended bool, now time.Time) {
	m.persistState(ctx, next, now)

	data, _ := json.Marshal(event.BidAcceptedData{
		BidID:    entry.ID,
		BidderID: entry.BidderID,
		Amount:   entry.Amount.Minor(),
		BidCount: next.BidCount,
	})
	m.emit(ctx, next, event.BidAccepted, data)

	if prev.LeaderID != "" && prev.LeaderID != next.LeaderID {
		data, _ := json.Marshal(event.AuctionOutbidData{
			OutbidBidderID: prev.LeaderID,
			NewAmount:      next.CurrentBid.Minor(),
		})
		m.emit(ctx, next, event.AuctionOutbid, data)
	}
	if extended {
		data, _ := json.Marshal(event.AuctionExtendedData{
			EndTime:        next.EndTime,
			ExtensionCount: next.ExtensionCount,
		})
		m.emit(ctx, next, event.AuctionExtended, data)
	}
	if next.Status == StatusClosed {
		m.emitClosed(ctx, next)
	}
}

// afterTransition handles fan-out for a committed time transition.
func (m *Manager) afterTransition(ctx context.Context, prev, next *Auction, now time.Time) {
	m.persistState(ctx, next, now)
	if next.Status == StatusClosed && prev.Status != StatusClosed {
		m.emitClosed(ctx, next)
		m.logger.InfoContext(ctx, "auction closed",
			slog.String("auction_id", next.ID),
			slog.String("winner_id", next.Winner()),
			slog.String("final_bid", next.CurrentBid.String()),
			slog.Int("extensions", next.ExtensionCount),
		)
	}
}

func (m *Manager) emitClosed(ctx context.Context, a *Auction) {
	closedData := event.AuctionClosedData{ReserveMet: a.ReserveMet()}
	if winner := a.Winner(); winner != "" {
		closedData.WinnerID = winner
		closedData.Amount = a.CurrentBid.Minor()
	}
	data, _ := json.Marshal(closedData)
	m.emit(ctx, a, event.AuctionClosed, data)
}

// persistState mirrors committed registry state into the store. Failures
// are logged, never surfaced: the registry remains authoritative.
func (m *Manager) persistState(ctx context.Context, a *Auction, now time.Time) {
	if err := m.auctions.UpdateState(ctx, stateToRow(a, now)); err != nil {
		m.logger.ErrorContext(ctx, "failed to persist auction state",
			slog.String("auction_id", a.ID),
			slog.Int64("version", a.Version),
			slog.Any("error", err),
		)
	}
}

// emit appends an event to the store and publishes it on the bus.
func (m *Manager) emit(ctx context.Context, a *Auction, t event.Type, data json.RawMessage) {
	e := event.Event{
		ID:          uuid.NewString(),
		AggregateID: a.ID,
		Type:        t,
		Data:        data,
		Version:     a.Version,
		CreatedAt:   m.clock.Now().UTC(),
	}
	if err := m.events.Append(ctx, e); err != nil {
		m.logger.ErrorContext(ctx, "failed to append event",
			slog.String("aggregate_id", a.ID),
			slog.String("type", string(t)),
			slog.Any("error", err),
		)
	}
	m.bus.Publish(e)
}

func stateToRow(a *Auction, now time.Time) *store.Auction {
	row := &store.Auction{
		ID:             a.ID,
		ItemRef:        a.ItemRef,
		SellerID:       a.SellerID,
		StartingBid:    a.StartingBid.Minor(),
		ReservePrice:   a.ReservePrice.Minor(),
		BuyNowPrice:    a.BuyNowPrice.Minor(),
		CurrentBid:     a.CurrentBid.Minor(),
		BidCount:       a.BidCount,
		StartTime:      a.StartTime,
		EndTime:        a.EndTime,
		Status:         string(a.Status),
		ExtensionCount: a.ExtensionCount,
		Version:        a.Version,
		UpdatedAt:      now,
	}
	if a.LeaderID != "" {
		leader := a.LeaderID
		row.LeaderID = &leader
	}
	if a.Status.Terminal() {
		closedAt := now
		row.ClosedAt = &closedAt
	}
	return row
}

func rowToState(row *store.Auction) *Auction {
	a := &Auction{
		ID:             row.ID,
		ItemRef:        row.ItemRef,
		SellerID:       row.SellerID,
		StartingBid:    money.FromMinor(row.StartingBid),
		ReservePrice:   money.FromMinor(row.ReservePrice),
		BuyNowPrice:    money.FromMinor(row.BuyNowPrice),
		CurrentBid:     money.FromMinor(row.CurrentBid),
		BidCount:       row.BidCount,
		StartTime:      row.StartTime,
		EndTime:        row.EndTime,
		Status:         Status(row.Status),
		ExtensionCount: row.ExtensionCount,
		Version:        row.Version,
	}
	if row.LeaderID != nil {
		a.LeaderID = *row.LeaderID
	}
	return a
}
