package orderbook

import (
	"testing"
)

func prefill(b *testing.B, ob *OrderBook, levels int) {
	b.Helper()
	for i := 0; i < levels; i++ {
		if err := ob.AddOrder(Order{Side: Buy, Owner: 1, Price: float64(1000 - i), Qty: 100, Timestamp: 0}); err != nil {
			b.Fatal(err)
		}
		if err := ob.AddOrder(Order{Side: Sell, Owner: 2, Price: float64(1100 + i), Qty: 100, Timestamp: 0}); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAddOrder measures insertion into a book with 100 levels per side
func BenchmarkAddOrder(b *testing.B) {
	ob := NewOrderBook()
	prefill(b, ob, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Buy
		price := float64(900 + i%100)
		if i%2 == 0 {
			side, price = Sell, float64(1101+i%100)
		}
		ob.AddOrder(Order{Side: side, Owner: 3, Price: price, Qty: 10, Timestamp: int64(i)})
	}
}

// BenchmarkBestBidAsk measures the top-of-book peek
func BenchmarkBestBidAsk(b *testing.B) {
	ob := NewOrderBook()
	prefill(b, ob, 1000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ob.BestBidAsk()
	}
}

// BenchmarkMatchOrders measures one crossing pair per iteration
func BenchmarkMatchOrders(b *testing.B) {
	ob := NewOrderBook()
	prefill(b, ob, 100)
	reg := newRegistry(1, 2, 3, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ob.AddOrder(Order{Side: Buy, Owner: 3, Price: 1050, Qty: 10, Timestamp: int64(i)})
		ob.AddOrder(Order{Side: Sell, Owner: 4, Price: 1050, Qty: 10, Timestamp: int64(i)})
		ob.MatchOrders(reg)
	}
}
