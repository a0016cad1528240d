package storage

import (
	"fmt"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Key schema:
//
//	run:<runID>                  → RunMeta (JSON)
//	step:<runID>:<step>          → sim.Row (json)
//	trader:<runID>:<traderID>    → account.Snapshot (JSON)
//
// Numeric parts are zero-padded to 20 digits so prefix scans return them in
// ascending order.
const (
	prefixRun    = "run:"
	prefixStep   = "step:"
	prefixTrader = "trader:"
)

func runKey(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixRun, runID))
}

func stepKey(runID string, step int64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixStep, runID, step))
}

func stepPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixStep, runID))
}

func traderKey(runID string, id orderbook.TraderID) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrader, runID, id))
}

func traderPrefix(runID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrader, runID))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
