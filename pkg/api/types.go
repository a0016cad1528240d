package api

import (
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
	"github.com/uhyunpark/cdasim/pkg/app/sim"
)

// ==============================
// REST Response Types
// ==============================

// MarketInfo is the live state of the simulated market
type MarketInfo struct {
	Symbol        string   `json:"symbol"`
	RunID         string   `json:"runId"`
	Step          int64    `json:"step"`    // last completed step
	MaxTime       int      `json:"maxTime"` // steps in the run
	PriceDecimals int32    `json:"priceDecimals"`
	Price         float64  `json:"price"` // last clearing price
	Bid           *float64 `json:"bid"`
	Ask           *float64 `json:"ask"`
	Spread        *float64 `json:"spread"`
	Mid           *float64 `json:"mid"`
}

// OrderbookSnapshot represents current orderbook state
type OrderbookSnapshot struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"` // Sorted high to low
	Asks      []PriceLevel `json:"asks"` // Sorted low to high
	Step      int64        `json:"step"`
	Timestamp int64        `json:"timestamp"` // Unix milliseconds
}

// PriceLevel aggregates the resting orders at one price
type PriceLevel struct {
	Price  float64 `json:"price"`
	Size   int64   `json:"size"`
	Orders int     `json:"orders"`
}

// TraderInfo is a registry entry plus the strategy driving it
type TraderInfo struct {
	ID         orderbook.TraderID `json:"id"`
	Strategy   string             `json:"strategy"`
	Capital    float64            `json:"capital"`
	Inventory  int64              `json:"inventory"`
	TradeCount int64              `json:"tradeCount"`
	Volume     int64              `json:"volume"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// Channels a client can subscribe to
const (
	ChannelSteps     = "steps"
	ChannelOrderbook = "orderbook"
)

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["steps", "orderbook"]
}

// StepUpdate is broadcast after every step
type StepUpdate struct {
	Type  string  `json:"type"` // "step"
	RunID string  `json:"runId"`
	Row   sim.Row `json:"row"`
}

// OrderbookUpdate is broadcast after every step
type OrderbookUpdate struct {
	Type      string       `json:"type"` // "orderbook"
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
	Step      int64        `json:"step"`
}

func toLevels(levels []orderbook.PriceLevel, depth int) []PriceLevel {
	if depth > 0 && len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]PriceLevel, len(levels))
	for i, l := range levels {
		out[i] = PriceLevel{Price: l.Price, Size: l.Qty, Orders: l.Count}
	}
	return out
}
