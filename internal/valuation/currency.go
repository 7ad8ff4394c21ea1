package valuation

import "github.com/tally-app/tally/internal/models"

// Convert converts amount from one currency to another using the as-of rate
// for date. Identity when the currencies match. The rate map is pre-fetched
// for a single target currency, so rates.Lookup(from, date) yields the
// from→to rate directly; ok is false when no rate exists for that date.
func Convert(amount float64, from, to string, rates models.RateMap, date string) (float64, bool) {
	if from == to {
		return amount, true
	}
	rate, ok := rates.Lookup(from, date)
	if !ok || rate == 0 {
		return 0, false
	}
	return amount * rate, true
}
