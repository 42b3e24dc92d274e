package auction

import "time"

// Countdown is the sole authority over auction end times: it decides when
// an accepted bid extends the clock and when an auction closes. Nothing
// else writes Status or EndTime.
type Countdown struct {
	// Window is the anti-snipe window: a bid accepted with less than
	// Window remaining pushes the end time out to commit time + Window.
	Window time.Duration
	// MaxExtensions caps how often one auction may be extended.
	MaxExtensions int
}

// Advance applies every time-driven transition that is due at now and
// returns the resulting state. The returned state is a new copy with
// Version bumped once when changed is true; the caller must install it via
// compare-and-swap so that closure serializes with concurrent bids.
func (c Countdown) Advance(a *Auction, now time.Time) (next *Auction, changed bool) {
	if a.Status.Terminal() {
		return a, false
	}

	status := a.Status
	if status == StatusScheduled && !now.Before(a.StartTime) {
		status = StatusActive
	}
	if status == StatusActive && a.EndTime.Sub(now) <= c.Window {
		status = StatusEndingSoon
	}
	if status.Biddable() && !now.Before(a.EndTime) {
		status = StatusClosed
	}

	if status == a.Status {
		return a, false
	}
	next = a.clone()
	next.Status = status
	next.Version = a.Version + 1
	return next, true
}

// Extend reports the extended end time for a bid committed at the given
// instant, or ok=false when no extension applies: the commit fell outside
// the window, the extension cap is reached, or the auction would not gain
// time. End times never move backwards.
func (c Countdown) Extend(a *Auction, at time.Time) (endTime time.Time, ok bool) {
	if c.Window <= 0 || a.ExtensionCount >= c.MaxExtensions {
		return time.Time{}, false
	}
	if at.Before(a.EndTime.Add(-c.Window)) {
		return time.Time{}, false
	}
	extended := at.Add(c.Window)
	if !extended.After(a.EndTime) {
		return time.Time{}, false
	}
	return extended, true
}
