package sim

import (
	"fmt"
	"math/rand"

	"github.com/uhyunpark/cdasim/pkg/app/core/account"
	"github.com/uhyunpark/cdasim/pkg/app/core/market"
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
	"github.com/uhyunpark/cdasim/pkg/app/strategy"
)

// Decision is what an agent did in one step.
type Decision int8

const (
	Idle         Decision = iota // participation draw failed
	NoSignal                     // strategy produced nothing
	Unaffordable                 // pre-trade check failed
	Submitted
)

func (d Decision) String() string {
	switch d {
	case Idle:
		return "idle"
	case NoSignal:
		return "no_signal"
	case Unaffordable:
		return "unaffordable"
	case Submitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// Agent pairs a registered trader with the strategy that drives it.
type Agent struct {
	Trader   *account.Trader
	Strategy strategy.Strategy
}

// DecideAction draws participation, asks the strategy for an order and
// submits it if the trader can pay for a buy or deliver a sell.
func (a *Agent) DecideAction(rng *rand.Rand, mkt *market.Market, step int64, history []float64) (Decision, error) {
	if rng.Float64() > a.Strategy.ParticipationRate() {
		return Idle, nil
	}

	o, ok := a.Strategy.GenerateOrder(rng, a.Trader.ID(), mkt, step, history)
	if !ok {
		return NoSignal, nil
	}

	switch {
	case o.Side == orderbook.Buy && !a.Trader.CanBuy(o.Price, o.Qty):
		return Unaffordable, nil
	case o.Side == orderbook.Sell && !a.Trader.CanSell(o.Qty):
		return Unaffordable, nil
	}

	if err := mkt.AddOrder(o); err != nil {
		return NoSignal, fmt.Errorf("trader %d (%s): %w", a.Trader.ID(), a.Strategy.Name(), err)
	}
	return Submitted, nil
}
