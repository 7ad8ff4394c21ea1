package models

// PriceMap holds as-of market prices keyed by PriceKey(marketID, date).
type PriceMap map[string]float64

// PriceKey builds the lookup key for a (market identifier, date) pair.
func PriceKey(marketID, date string) string {
	return marketID + "|" + date
}

// Lookup returns the price for (marketID, date), with ok = false when the
// provider had no price for that date.
func (m PriceMap) Lookup(marketID, date string) (float64, bool) {
	p, ok := m[PriceKey(marketID, date)]
	return p, ok
}

// RateMap holds FX rates keyed by RateKey(currency, date). A rate converts
// one unit of the keyed currency into the requesting side's base currency.
type RateMap map[string]float64

// RateKey builds the lookup key for a (currency, date) pair.
func RateKey(currency, date string) string {
	return currency + "|" + date
}

// Lookup returns the rate for (currency, date), with ok = false when the
// provider had no rate for that date.
func (m RateMap) Lookup(currency, date string) (float64, bool) {
	r, ok := m[RateKey(currency, date)]
	return r, ok
}

// RateRequest names one (currency, date) pair for a batched FX fetch.
type RateRequest struct {
	Currency string `json:"currency"`
	Date     string `json:"date"`
}
