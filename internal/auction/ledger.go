package auction

import (
	"sync"
	"time"

	"github.com/tradefloor/auctioneer/internal/money"
)

// Entry records one bid attempt, accepted or rejected. Entries are
// immutable once appended; a rejected bid is never retried in place.
type Entry struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    money.Amount
	PlacedAt  time.Time
	Accepted  bool
	Reason    RejectReason // empty when accepted
}

// Ledger is the append-only record of every bid attempt on one auction.
// It is the audit trail; the authoritative current price lives on the
// auction record itself.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
}

// Append records an attempt.
func (l *Ledger) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Entries returns a copy of all attempts in append order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Accepted returns only the accepted attempts in commit order.
func (l *Ledger) Accepted() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.Accepted {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the total number of recorded attempts.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
