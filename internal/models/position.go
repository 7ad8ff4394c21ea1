// Package models defines data structures for Tally
package models

import "time"

// PositionType classifies a position as an asset or a liability.
type PositionType string

const (
	PositionTypeAsset     PositionType = "asset"
	PositionTypeLiability PositionType = "liability"
)

// ValidPositionType returns true if t is a valid position type.
func ValidPositionType(t PositionType) bool {
	return t == PositionTypeAsset || t == PositionTypeLiability
}

// PricingSource identifies where a position's unit prices come from.
type PricingSource string

const (
	PricingSourceSymbol PricingSource = "symbol" // listed security, priced via market data
	PricingSourceDomain PricingSource = "domain" // domain/other-source identifier
	PricingSourceManual PricingSource = "manual" // priced from ledger events only
)

// Position represents a tracked asset or liability owned by one user.
// At most one of Symbol and Domain is set; neither means the position is
// priced manually from its own ledger.
type Position struct {
	ID       string       `json:"id"`
	UserID   string       `json:"user_id"`
	Name     string       `json:"name"`
	Type     PositionType `json:"type"`
	Currency string       `json:"currency"`
	Category string       `json:"category,omitempty"`

	Symbol string `json:"symbol,omitempty"`
	Domain string `json:"domain,omitempty"`

	// AnnualYieldPct is an optional user-supplied income yield used by the
	// projected income aggregator (e.g. 4.2 for 4.2% p.a.).
	AnnualYieldPct *float64 `json:"annual_yield_pct,omitempty"`

	// CapitalGainsTaxRate is an optional rate applied when estimating
	// after-tax proceeds (e.g. 0.325). Nil means not configured.
	CapitalGainsTaxRate *float64 `json:"capital_gains_tax_rate,omitempty"`

	Archived   bool       `json:"archived"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// PricingSource returns how this position's unit values are resolved.
func (p *Position) PricingSource() PricingSource {
	switch {
	case p.Symbol != "":
		return PricingSourceSymbol
	case p.Domain != "":
		return PricingSourceDomain
	default:
		return PricingSourceManual
	}
}

// MarketID returns the identifier used against the price provider, or ""
// for manually priced positions.
func (p *Position) MarketID() string {
	if p.Symbol != "" {
		return p.Symbol
	}
	return p.Domain
}

// IsMarketLinked returns true if the position has a market data linkage.
func (p *Position) IsMarketLinked() bool {
	return p.Symbol != "" || p.Domain != ""
}
