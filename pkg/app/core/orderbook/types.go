package orderbook

import (
	"errors"
	"fmt"
	"math"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// TraderID identifies the owner of an order in the trader registry.
type TraderID int64

// ErrInvalidOrder is returned for orders with a non-positive price or quantity.
var ErrInvalidOrder = errors.New("invalid order")

// Order is an immutable request to trade. A partial fill never mutates the
// filled order; the remainder is a new Order with the same side, owner, price and
// timestamp.
type Order struct {
	Side      Side
	Owner     TraderID
	Price     float64 // limit price, rounded by the caller
	Qty       int64
	Timestamp int64 // submission step
}

// NewOrder builds a validated order.
func NewOrder(side Side, owner TraderID, price float64, qty int64, timestamp int64) (Order, error) {
	o := Order{Side: side, Owner: owner, Price: price, Qty: qty, Timestamp: timestamp}
	if err := o.Validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// Validate checks the structural contract of an order.
func (o Order) Validate() error {
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("%w: unknown side %d", ErrInvalidOrder, o.Side)
	}
	if math.IsNaN(o.Price) || math.IsInf(o.Price, 0) || o.Price <= 0 {
		return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidOrder, o.Price)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOrder, o.Qty)
	}
	return nil
}

// withQty returns a copy carrying a different quantity.
func (o Order) withQty(qty int64) Order {
	o.Qty = qty
	return o
}

// Trader is the capability settlement needs from a registry entry.
type Trader interface {
	ID() TraderID
	Capital() float64
	SetCapital(float64)
	Inventory() int64
	SetInventory(int64)
}

// Registry resolves order owners to traders. Implementations that also
// satisfy sync.Locker are held while a trade settles.
type Registry interface {
	Lookup(id TraderID) (Trader, bool)
}

// Trade is a matched pair at the ask's limit price.
type Trade struct {
	BuyerID  TraderID
	SellerID TraderID
	Price    float64
	Qty      int64

	Buyer  Trader `json:"-"`
	Seller Trader `json:"-"`
}

// Notional is price times quantity.
func (t Trade) Notional() float64 {
	return t.Price * float64(t.Qty)
}

// Quote is the top of book. A nil side is empty.
type Quote struct {
	Bid *float64 `json:"bid"`
	Ask *float64 `json:"ask"`
}

// Spread returns ask minus bid when both sides are present.
func (q Quote) Spread() (float64, bool) {
	if q.Bid == nil || q.Ask == nil {
		return 0, false
	}
	return *q.Ask - *q.Bid, true
}

// Mid returns the midpoint when both sides are present.
func (q Quote) Mid() (float64, bool) {
	if q.Bid == nil || q.Ask == nil {
		return 0, false
	}
	return (*q.Bid + *q.Ask) / 2, true
}

type PriceLevel struct {
	Price float64
	Qty   int64 // total qty at this price level
	Count int   // resting orders at this price level
}

// MissPolicy decides what happens to a crossed pair when either owner is
// missing from the registry.
type MissPolicy int8

const (
	// DropMatched discards both orders, remainders included. Nothing is
	// emitted and nothing is reinserted.
	DropMatched MissPolicy = iota
	// RequeueUnmatched sets the order of each unknown owner aside untouched
	// and puts it back once the match pass ends. A registered counterparty
	// returns to the book at once and keeps matching in the same pass.
	RequeueUnmatched
)

func (p MissPolicy) String() string {
	switch p {
	case DropMatched:
		return "drop"
	case RequeueUnmatched:
		return "requeue"
	default:
		return "unknown"
	}
}

// ParseMissPolicy accepts "drop" or "requeue".
func ParseMissPolicy(s string) (MissPolicy, error) {
	switch s {
	case "drop", "":
		return DropMatched, nil
	case "requeue":
		return RequeueUnmatched, nil
	default:
		return DropMatched, fmt.Errorf("unknown miss policy %q", s)
	}
}

// MatchResult is the outcome of one match pass.
type MatchResult struct {
	Trades     []Trade
	DroppedQty int64 // matched quantity discarded under DropMatched
	Requeued   int   // unknown-owner orders set aside under RequeueUnmatched
}
