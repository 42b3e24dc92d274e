package auction

import "github.com/tradefloor/auctioneer/internal/money"

// Tier is one row of a tiered increment table: prices up to and including
// Ceiling require a raise of at least Step.
type Tier struct {
	Ceiling money.Amount
	Step    money.Amount
}

// IncrementPolicy maps a current price to the minimum raise for the next
// bid. Tiers are consulted in order; prices above every ceiling fall back
// to Flat. A zero policy degrades to a one-minor-unit raise so the strict
// price monotonicity of accepted bids never depends on configuration.
type IncrementPolicy struct {
	Flat  money.Amount
	Tiers []Tier
}

// Increment returns the minimum raise over current.
func (p IncrementPolicy) Increment(current money.Amount) money.Amount {
	for _, t := range p.Tiers {
		if current <= t.Ceiling {
			return t.Step
		}
	}
	if p.Flat > 0 {
		return p.Flat
	}
	return 1
}

// MinimumBid returns the lowest acceptable next bid over current.
func (p IncrementPolicy) MinimumBid(current money.Amount) money.Amount {
	return current + p.Increment(current)
}
