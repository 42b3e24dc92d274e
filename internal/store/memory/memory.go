// Package memory provides an in-process store.Driver. It backs local
// development and tests; durability starts at the postgres driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tradefloor/auctioneer/internal/clock"
	"github.com/tradefloor/auctioneer/internal/config"
	"github.com/tradefloor/auctioneer/internal/event"
	"github.com/tradefloor/auctioneer/internal/store"
)

func init() {
	store.Register("memory", open)
}

func open(_ context.Context, _ config.DatabaseConfig, clk clock.Clock) (*store.Repositories, error) {
	return NewRepositories(clk), nil
}

// NewRepositories returns a fresh in-memory repository set.
func NewRepositories(clk clock.Clock) *store.Repositories {
	return &store.Repositories{
		Auctions: &auctionRepo{rows: make(map[string]store.Auction)},
		Bids:     &bidRepo{},
		Events:   &eventStore{clock: clk},
		Closer:   closerFunc(func() error { return nil }),
		Ping:     func(context.Context) error { return nil },
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

type auctionRepo struct {
	mu   sync.RWMutex
	rows map[string]store.Auction
}

func (r *auctionRepo) Create(_ context.Context, a *store.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; ok {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	r.rows[a.ID] = *a
	return nil
}

func (r *auctionRepo) GetByID(_ context.Context, id string) (*store.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, fmt.Errorf("auction %s not found", id)
	}
	return &row, nil
}

func (r *auctionRepo) UpdateState(_ context.Context, a *store.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[a.ID]
	if !ok {
		return fmt.Errorf("auction %s not found", a.ID)
	}
	if row.Version >= a.Version {
		return fmt.Errorf("auction %s at version %d, write carries %d: %w",
			a.ID, row.Version, a.Version, store.ErrVersionConflict)
	}
	r.rows[a.ID] = *a
	return nil
}

func (r *auctionRepo) ListLive(_ context.Context) ([]store.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Auction
	for _, row := range r.rows {
		if row.Status == "closed" || row.Status == "cancelled" {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type bidRepo struct {
	mu   sync.RWMutex
	rows []store.Bid
}

func (r *bidRepo) Append(_ context.Context, b *store.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *b)
	return nil
}

func (r *bidRepo) ListByAuction(_ context.Context, auctionID string) ([]store.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Bid
	for _, b := range r.rows {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	return out, nil
}

type eventStore struct {
	mu    sync.RWMutex
	rows  []event.Event
	clock clock.Clock
}

func (s *eventStore) Append(_ context.Context, events ...event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = s.clock.Now().UTC()
		}
		s.rows = append(s.rows, e)
	}
	return nil
}

func (s *eventStore) Load(_ context.Context, aggregateID string) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Event
	for _, e := range s.rows {
		if e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (s *eventStore) LoadByType(_ context.Context, eventType event.Type) ([]event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []event.Event
	for _, e := range s.rows {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out, nil
}
