package orderbook

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// Options tune the behaviors left open by the matching rule.
type Options struct {
	// RenumberRemainders gives a partial-fill remainder a fresh sequence
	// number instead of the one of the order it came from. A fresh number
	// can let a later arrival with the same price and timestamp overtake it.
	RenumberRemainders bool

	// MissPolicy applies when either owner of a crossed pair is unregistered.
	MissPolicy MissPolicy

	Logger *zap.SugaredLogger
}

// OrderBook holds resting bids and asks under price-time priority.
// All mutations go through one mutex, so a match pass never observes a
// half-submitted order.
type OrderBook struct {
	mu sync.Mutex

	bids *bidQueue
	asks *askQueue

	// seq is shared by both sides and only grows
	seq uint64

	opts Options
	log  *zap.SugaredLogger
}

func NewOrderBook() *OrderBook {
	return NewOrderBookWithOptions(Options{})
}

func NewOrderBookWithOptions(opts Options) *OrderBook {
	bids := &bidQueue{}
	asks := &askQueue{}
	heap.Init(bids)
	heap.Init(asks)

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &OrderBook{
		bids: bids,
		asks: asks,
		opts: opts,
		log:  log,
	}
}

// AddOrder validates the order and rests it on its side with the next
// sequence number.
func (ob *OrderBook) AddOrder(o Order) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("add order: %w", err)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.seq++
	ob.push(entry{order: o, seq: ob.seq})
	return nil
}

func (ob *OrderBook) push(e entry) {
	if e.order.Side == Buy {
		heap.Push(ob.bids, e)
	} else {
		heap.Push(ob.asks, e)
	}
}

// BestBidAsk returns the top price on each side.
func (ob *OrderBook) BestBidAsk() Quote {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.quoteLocked()
}

func (ob *OrderBook) quoteLocked() Quote {
	var q Quote
	if ob.bids.Len() > 0 {
		p := (*ob.bids)[0].order.Price
		q.Bid = &p
	}
	if ob.asks.Len() > 0 {
		p := (*ob.asks)[0].order.Price
		q.Ask = &p
	}
	return q
}

// MatchOrders crosses the book until the best bid is below the best ask or a
// side is empty. Every trade clears at the ask's limit price. Owners are
// resolved against reg; a nil registry resolves nobody.
//
// Each iteration removes at least one resting order from the pass, by a
// fill or by setting it aside, so the loop is bounded by the number of
// resting orders.
func (ob *OrderBook) MatchOrders(reg Registry) MatchResult {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	var (
		res      MatchResult
		setAside []entry
	)

	for ob.bids.Len() > 0 && ob.asks.Len() > 0 {
		if (*ob.bids)[0].order.Price < (*ob.asks)[0].order.Price {
			break
		}

		bid := heap.Pop(ob.bids).(entry)
		ask := heap.Pop(ob.asks).(entry)

		qty := min(bid.order.Qty, ask.order.Qty)
		price := ask.order.Price

		buyer, okBuyer := lookup(reg, bid.order.Owner)
		seller, okSeller := lookup(reg, ask.order.Owner)
		if !okBuyer || !okSeller {
			switch ob.opts.MissPolicy {
			case RequeueUnmatched:
				// only unknown owners sit out the pass; a registered leg
				// goes back with its sequence and can still cross
				if okBuyer {
					ob.push(bid)
				} else {
					setAside = append(setAside, bid)
					res.Requeued++
				}
				if okSeller {
					ob.push(ask)
				} else {
					setAside = append(setAside, ask)
					res.Requeued++
				}
			default:
				res.DroppedQty += qty
			}
			ob.log.Warnw("trade_unregistered_counterparty",
				"buyer", bid.order.Owner,
				"buyer_known", okBuyer,
				"seller", ask.order.Owner,
				"seller_known", okSeller,
				"price", price,
				"qty", qty,
				"policy", ob.opts.MissPolicy.String())
			continue
		}

		res.Trades = append(res.Trades, Trade{
			BuyerID:  bid.order.Owner,
			SellerID: ask.order.Owner,
			Price:    price,
			Qty:      qty,
			Buyer:    buyer,
			Seller:   seller,
		})

		if bid.order.Qty > qty {
			ob.requeueRemainder(bid, bid.order.Qty-qty)
		}
		if ask.order.Qty > qty {
			ob.requeueRemainder(ask, ask.order.Qty-qty)
		}
	}

	for _, e := range setAside {
		ob.push(e)
	}

	return res
}

func (ob *OrderBook) requeueRemainder(e entry, remaining int64) {
	rest := entry{order: e.order.withQty(remaining), seq: e.seq}
	if ob.opts.RenumberRemainders {
		ob.seq++
		rest.seq = ob.seq
	}
	ob.push(rest)
}

func lookup(reg Registry, id TraderID) (Trader, bool) {
	if reg == nil {
		return nil, false
	}
	t, ok := reg.Lookup(id)
	if !ok || t == nil {
		return nil, false
	}
	return t, true
}

// Len returns the number of resting orders on each side.
func (ob *OrderBook) Len() (bids, asks int) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.bids.Len(), ob.asks.Len()
}

// Orders returns the resting orders of one side in priority order.
func (ob *OrderBook) Orders(side Side) []Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	entries := ob.sortedLocked(side)
	out := make([]Order, len(entries))
	for i, e := range entries {
		out[i] = e.order
	}
	return out
}

func (ob *OrderBook) sortedLocked(side Side) []entry {
	if side == Buy {
		q := make(bidQueue, len(*ob.bids))
		copy(q, *ob.bids)
		sort.Sort(q)
		return q
	}
	q := make(askQueue, len(*ob.asks))
	copy(q, *ob.asks)
	sort.Sort(q)
	return q
}

// BidLevels returns bid price levels sorted high to low (best bid first).
func (ob *OrderBook) BidLevels() []PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return levels(ob.sortedLocked(Buy))
}

// AskLevels returns ask price levels sorted low to high (best ask first).
func (ob *OrderBook) AskLevels() []PriceLevel {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return levels(ob.sortedLocked(Sell))
}

// levels aggregates entries that are already in priority order.
func levels(entries []entry) []PriceLevel {
	var out []PriceLevel
	for _, e := range entries {
		n := len(out)
		if n > 0 && out[n-1].Price == e.order.Price {
			out[n-1].Qty += e.order.Qty
			out[n-1].Count++
			continue
		}
		out = append(out, PriceLevel{Price: e.order.Price, Qty: e.order.Qty, Count: 1})
	}
	return out
}

// StateHash digests every resting order in priority order, bids first.
// Two books built from the same submissions hash equal.
func (ob *OrderBook) StateHash() [32]byte {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	h := sha3.New256()
	var buf [8]byte
	write := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	for _, side := range []Side{Buy, Sell} {
		entries := ob.sortedLocked(side)
		write(uint64(len(entries)))
		for _, e := range entries {
			write(uint64(int64(e.order.Owner)))
			write(math.Float64bits(e.order.Price))
			write(uint64(e.order.Qty))
			write(uint64(e.order.Timestamp))
		}
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
