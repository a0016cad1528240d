package market

import (
	"fmt"
	"math"
)

// Params is the static configuration of the single simulated market.
type Params struct {
	Symbol string

	// InitialPrice seeds the reference price before the first trade.
	InitialPrice float64

	// PriceDecimals is the number of decimal places submitted prices are
	// rounded to. Prices compare exactly, so rounding avoids float ties
	// that only differ in the last bits.
	PriceDecimals int32

	// MinPrice floors strategy quotes.
	MinPrice float64
}

// DefaultParams mirrors the reference simulation: price 100, cents.
var DefaultParams = Params{
	Symbol:        "SIM-USD",
	InitialPrice:  100.0,
	PriceDecimals: 2,
	MinPrice:      1.0,
}

// Validate checks market parameter sanity
func (p Params) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if math.IsNaN(p.InitialPrice) || math.IsInf(p.InitialPrice, 0) || p.InitialPrice <= 0 {
		return fmt.Errorf("initial price must be positive, got %v", p.InitialPrice)
	}
	if p.PriceDecimals < 0 || p.PriceDecimals > 8 {
		return fmt.Errorf("price decimals must be within [0, 8], got %d", p.PriceDecimals)
	}
	if p.MinPrice <= 0 {
		return fmt.Errorf("min price must be positive, got %v", p.MinPrice)
	}
	return nil
}
