package auction

// Status is the lifecycle state of an auction. Transitions are
// unidirectional along scheduled → active → ending_soon → closed, with
// cancelled reachable from any non-closed state.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusActive     Status = "active"
	StatusEndingSoon Status = "ending_soon"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

// Biddable reports whether bids may be validated in this state.
func (s Status) Biddable() bool {
	return s == StatusActive || s == StatusEndingSoon
}

// Terminal reports whether the state admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

// rank orders the forward lifecycle. Cancelled sits outside the order.
func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 0
	case StatusActive:
		return 1
	case StatusEndingSoon:
		return 2
	case StatusClosed:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	return next.rank() > s.rank()
}
