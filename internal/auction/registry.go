package auction

import (
	"sync"
	"sync/atomic"
)

// record pairs an auction's live state with its ledger. The state pointer
// is the auction's single synchronization point: a pointer match implies
// the version is unchanged since the read. Swaps serialize through the
// record mutex so that an accepted bid's ledger append lands in commit
// order; reads stay lock-free on the atomic pointer.
type record struct {
	mu     sync.Mutex
	state  atomic.Pointer[Auction]
	ledger Ledger
}

// swap installs next if the record still holds old.
func (rec *record) swap(old, next *Auction) bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state.Load() != old {
		return false
	}
	rec.state.Store(next)
	return true
}

// Registry is the in-memory arena of auction records, keyed by auction ID.
// It owns the canonical state; external consumers only ever receive
// immutable snapshots.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*record)}
}

// Put inserts or replaces an auction record. Used at creation and during
// recovery; live mutation goes through CompareAndSwap or CommitBid.
func (r *Registry) Put(a *Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[a.ID]
	if !ok {
		rec = &record{}
		r.records[a.ID] = rec
	}
	rec.state.Store(a)
}

// Load returns the current state of an auction.
func (r *Registry) Load(id string) (*Auction, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	return rec.state.Load(), nil
}

// CompareAndSwap installs next if and only if the record still holds old.
// It reports whether the swap happened.
func (r *Registry) CompareAndSwap(id string, old, next *Auction) bool {
	rec, err := r.record(id)
	if err != nil {
		return false
	}
	return rec.swap(old, next)
}

// CommitBid installs next under the same condition as CompareAndSwap and,
// when the swap succeeds, appends the accepted entry to the ledger within
// the same critical section. Ledger order therefore equals commit order,
// which is what makes the accepted history strictly increasing.
func (r *Registry) CommitBid(id string, old, next *Auction, entry Entry) bool {
	rec, err := r.record(id)
	if err != nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.state.Load() != old {
		return false
	}
	rec.state.Store(next)
	rec.ledger.Append(entry)
	return true
}

// Ledger returns the bid ledger of an auction.
func (r *Registry) Ledger(id string) (*Ledger, error) {
	rec, err := r.record(id)
	if err != nil {
		return nil, err
	}
	return &rec.ledger, nil
}

// List returns the current state of every registered auction.
func (r *Registry) List() []*Auction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Auction, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.state.Load())
	}
	return out
}

func (r *Registry) record(id string) (*record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, ErrAuctionNotFound
	}
	return rec, nil
}
