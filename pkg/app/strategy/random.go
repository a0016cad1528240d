package strategy

import (
	"math/rand"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Random quotes a fair-coin side uniformly within Delta of the mid.
type Random struct {
	Delta         float64
	MaxQty        int64
	Participation float64
}

func NewRandom() *Random {
	return &Random{Delta: 2.0, MaxQty: 5, Participation: 0.30}
}

func (s *Random) Name() string               { return "RandomStrategy" }
func (s *Random) ParticipationRate() float64 { return s.Participation }

func (s *Random) GenerateOrder(rng *rand.Rand, owner orderbook.TraderID, view View, step int64, _ []float64) (orderbook.Order, bool) {
	mid := midPrice(view)

	side := orderbook.Sell
	if rng.Float64() < 0.5 {
		side = orderbook.Buy
	}
	offset := (rng.Float64()*2 - 1) * s.Delta
	price := limit(view, mid+offset)

	return order(side, owner, price, quantity(rng, s.MaxQty), step), true
}
