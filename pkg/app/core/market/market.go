package market

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Summary reports one ExecuteTrades call.
type Summary struct {
	Volume         int64    `json:"volume"`
	LastTradePrice *float64 `json:"lastTradePrice"` // nil when nothing traded
	DroppedQty     int64    `json:"droppedQty"`

	Trades []orderbook.Trade `json:"-"`
}

// Market owns the order book and the reference price. The price only moves
// when a call to ExecuteTrades produced at least one trade.
type Market struct {
	mu sync.RWMutex

	params       Params
	book         *orderbook.OrderBook
	currentPrice float64

	Logger *zap.SugaredLogger
}

// NewMarket creates a market around book, validating params.
// A nil book gets a default one.
func NewMarket(params Params, book *orderbook.OrderBook) (*Market, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}
	if book == nil {
		book = orderbook.NewOrderBook()
	}
	return &Market{
		params:       params,
		book:         book,
		currentPrice: params.InitialPrice,
		Logger:       zap.NewNop().Sugar(),
	}, nil
}

func (m *Market) Params() Params               { return m.params }
func (m *Market) Book() *orderbook.OrderBook   { return m.book }
func (m *Market) BestBidAsk() orderbook.Quote { return m.book.BestBidAsk() }

// AddOrder submits to the book.
func (m *Market) AddOrder(o orderbook.Order) error {
	return m.book.AddOrder(o)
}

// CurrentPrice returns the last clearing price, or the initial price before
// any trade.
func (m *Market) CurrentPrice() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentPrice
}

// RoundPrice rounds p to the market's price decimals.
func (m *Market) RoundPrice(p float64) float64 {
	return decimal.NewFromFloat(p).Round(m.params.PriceDecimals).InexactFloat64()
}

// ExecuteTrades matches the book against reg and settles every trade in
// match order. Buyer pays price×qty and receives qty; seller the reverse.
func (m *Market) ExecuteTrades(reg orderbook.Registry) Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := m.book.MatchOrders(reg)

	sum := Summary{Trades: res.Trades, DroppedQty: res.DroppedQty}
	locker, _ := reg.(sync.Locker)

	var last float64
	for _, tr := range res.Trades {
		settle(locker, tr)
		sum.Volume += tr.Qty
		last = tr.Price
	}

	if len(res.Trades) > 0 {
		m.currentPrice = last
		sum.LastTradePrice = &last
	}

	if res.DroppedQty > 0 || res.Requeued > 0 {
		// the book already warned once per cross
		m.Logger.Debugw("unsettled_crosses",
			"symbol", m.params.Symbol,
			"dropped_qty", res.DroppedQty,
			"requeued_orders", res.Requeued)
	}
	m.Logger.Debugw("trades_executed",
		"symbol", m.params.Symbol,
		"trades", len(res.Trades),
		"volume", sum.Volume,
		"price", m.currentPrice)

	return sum
}

type fillRecorder interface {
	RecordFill(qty int64)
}

// settle applies the four balance updates of one trade as a unit.
func settle(locker sync.Locker, tr orderbook.Trade) {
	if locker != nil {
		locker.Lock()
		defer locker.Unlock()
	}

	notional := tr.Notional()

	tr.Buyer.SetCapital(tr.Buyer.Capital() - notional)
	tr.Buyer.SetInventory(tr.Buyer.Inventory() + tr.Qty)

	tr.Seller.SetCapital(tr.Seller.Capital() + notional)
	tr.Seller.SetInventory(tr.Seller.Inventory() - tr.Qty)

	if r, ok := tr.Buyer.(fillRecorder); ok {
		r.RecordFill(tr.Qty)
	}
	if r, ok := tr.Seller.(fillRecorder); ok {
		r.RecordFill(tr.Qty)
	}
}
