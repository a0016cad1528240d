package strategy

import (
	"math"
	"math/rand"

	"github.com/markcheno/go-talib"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// MeanReversion leans against deviations from the Window-step simple moving
// average larger than Theta.
type MeanReversion struct {
	Window        int
	Theta         float64
	Kappa         float64
	MaxQty        int64
	Participation float64
}

func NewMeanReversion() *MeanReversion {
	return &MeanReversion{Window: 20, Theta: 1.0, Kappa: 0.5, MaxQty: 4, Participation: 0.25}
}

func (s *MeanReversion) Name() string               { return "MeanReversionStrategy" }
func (s *MeanReversion) ParticipationRate() float64 { return s.Participation }

func (s *MeanReversion) GenerateOrder(rng *rand.Rand, owner orderbook.TraderID, view View, step int64, history []float64) (orderbook.Order, bool) {
	if s.Window < 1 || len(history) < s.Window {
		return orderbook.Order{}, false
	}

	tail := history[len(history)-s.Window:]
	sma := talib.Sma(tail, s.Window)
	d := history[len(history)-1] - sma[len(sma)-1]
	if math.Abs(d) < s.Theta {
		return orderbook.Order{}, false
	}

	mid := midPrice(view)
	side, price := orderbook.Buy, mid+s.Kappa
	if d > 0 {
		side, price = orderbook.Sell, mid-s.Kappa
	}

	return order(side, owner, limit(view, price), quantity(rng, s.MaxQty), step), true
}
