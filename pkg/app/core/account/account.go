package account

import (
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Trader is a registry entry: cash and units of the single asset.
// Fields are only mutated by settlement, which holds the Manager lock.
type Trader struct {
	id        orderbook.TraderID
	capital   float64
	inventory int64

	// Cumulative statistics
	TradeCount int64
	Volume     int64
}

// Spec describes a trader to register.
type Spec struct {
	ID        orderbook.TraderID `json:"id"`
	Capital   float64            `json:"capital"`
	Inventory int64              `json:"inventory"`
}

// Snapshot is a point-in-time copy of a trader.
type Snapshot struct {
	ID         orderbook.TraderID `json:"id"`
	Capital    float64            `json:"capital"`
	Inventory  int64              `json:"inventory"`
	TradeCount int64              `json:"tradeCount"`
	Volume     int64              `json:"volume"`
}

func NewTrader(spec Spec) *Trader {
	return &Trader{id: spec.ID, capital: spec.Capital, inventory: spec.Inventory}
}

func (t *Trader) ID() orderbook.TraderID { return t.id }
func (t *Trader) Capital() float64       { return t.capital }
func (t *Trader) SetCapital(c float64)   { t.capital = c }
func (t *Trader) Inventory() int64       { return t.inventory }
func (t *Trader) SetInventory(n int64)   { t.inventory = n }

// RecordFill bumps the cumulative statistics
func (t *Trader) RecordFill(qty int64) {
	t.TradeCount++
	t.Volume += qty
}

// CanBuy reports whether price×qty is covered by capital.
func (t *Trader) CanBuy(price float64, qty int64) bool {
	return price*float64(qty) <= t.capital
}

// CanSell reports whether qty is covered by inventory (no short selling).
func (t *Trader) CanSell(qty int64) bool {
	return qty <= t.inventory
}

func (t *Trader) snapshot() Snapshot {
	return Snapshot{
		ID:         t.id,
		Capital:    t.capital,
		Inventory:  t.inventory,
		TradeCount: t.TradeCount,
		Volume:     t.Volume,
	}
}

var _ orderbook.Trader = (*Trader)(nil)
