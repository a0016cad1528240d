package strategy

import (
	"math"
	"math/rand"

	"github.com/markcheno/go-talib"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Momentum follows the price change over Lookback steps: it buys above the
// mid after a rise of at least Theta and sells below it after a fall.
type Momentum struct {
	Lookback      int
	Theta         float64
	Kappa         float64
	MaxQty        int64
	Participation float64
}

func NewMomentum() *Momentum {
	return &Momentum{Lookback: 10, Theta: 1.0, Kappa: 0.5, MaxQty: 4, Participation: 0.25}
}

func (s *Momentum) Name() string               { return "MomentumStrategy" }
func (s *Momentum) ParticipationRate() float64 { return s.Participation }

func (s *Momentum) GenerateOrder(rng *rand.Rand, owner orderbook.TraderID, view View, step int64, history []float64) (orderbook.Order, bool) {
	if s.Lookback < 1 || len(history) <= s.Lookback {
		return orderbook.Order{}, false
	}

	tail := history[len(history)-s.Lookback-1:]
	mom := talib.Mom(tail, s.Lookback)
	m := mom[len(mom)-1]
	if math.Abs(m) < s.Theta {
		return orderbook.Order{}, false
	}

	mid := midPrice(view)
	side, price := orderbook.Sell, mid-s.Kappa
	if m > 0 {
		side, price = orderbook.Buy, mid+s.Kappa
	}

	return order(side, owner, limit(view, price), quantity(rng, s.MaxQty), step), true
}
