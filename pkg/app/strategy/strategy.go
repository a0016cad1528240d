// Package strategy turns price history into candidate orders.
package strategy

import (
	"math"
	"math/rand"

	"github.com/uhyunpark/cdasim/pkg/app/core/market"
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// View is the minimal market surface a strategy reads.
type View interface {
	BestBidAsk() orderbook.Quote
	CurrentPrice() float64
	RoundPrice(p float64) float64
	Params() market.Params
}

// Strategy proposes at most one order per trader per step. The shared rng
// keeps a seeded run reproducible.
type Strategy interface {
	Name() string
	ParticipationRate() float64
	GenerateOrder(rng *rand.Rand, owner orderbook.TraderID, view View, step int64, history []float64) (orderbook.Order, bool)
}

// midPrice is the quote midpoint, or the reference price when a side is empty.
func midPrice(view View) float64 {
	if mid, ok := view.BestBidAsk().Mid(); ok {
		return mid
	}
	return view.CurrentPrice()
}

// limit floors p at the market minimum and rounds it to the market decimals.
func limit(view View, p float64) float64 {
	return view.RoundPrice(math.Max(view.Params().MinPrice, p))
}

func quantity(rng *rand.Rand, qmax int64) int64 {
	if qmax <= 1 {
		return 1
	}
	return 1 + rng.Int63n(qmax)
}

func order(side orderbook.Side, owner orderbook.TraderID, price float64, qty, step int64) orderbook.Order {
	return orderbook.Order{Side: side, Owner: owner, Price: price, Qty: qty, Timestamp: step}
}
