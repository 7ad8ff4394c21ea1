package interfaces

import (
	"context"

	"github.com/tally-app/tally/internal/models"
)

// PriceProvider resolves as-of market prices for symbol- or domain-linked
// positions. Implementations own their caching and staleness policy.
type PriceProvider interface {
	// GetPrice returns the price effective on or before date for one
	// market identifier. ok is false when no price is resolvable.
	GetPrice(ctx context.Context, marketID, date string) (float64, bool, error)

	// GetPrices batch-resolves prices for the cross product of ids and
	// dates, keyed by models.PriceKey. Missing prices are absent from the
	// map, not zero.
	GetPrices(ctx context.Context, marketIDs []string, dates []string) (models.PriceMap, error)
}

// FXProvider resolves as-of exchange rates into a target currency.
type FXProvider interface {
	// GetRate returns the (currency → target) rate for date.
	GetRate(ctx context.Context, currency, target, date string) (float64, bool, error)

	// GetRates batch-resolves rates into target, keyed by models.RateKey.
	GetRates(ctx context.Context, target string, requests []models.RateRequest) (models.RateMap, error)
}
