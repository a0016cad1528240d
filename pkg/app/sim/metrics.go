package sim

import (
	"math"

	"github.com/markcheno/go-talib"
)

// LogReturns returns ln(p[i]/p[i-1]) for consecutive prices.
func LogReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out[i-1] = math.Log(prices[i] / prices[i-1])
	}
	return out
}

// RollingVolatility is the sample standard deviation of each full window of
// returns, oldest window first. Fewer returns than window yields nothing.
//
// talib reports zero for any window whose variance is below 1e-14. Those
// windows are recomputed directly, so very quiet markets still show a
// nonzero deviation.
func RollingVolatility(returns []float64, window int) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}

	// talib computes the population deviation
	std := talib.StdDev(returns, window, 1.0)
	scale := math.Sqrt(float64(window) / float64(window-1))

	out := make([]float64, 0, len(returns)-window+1)
	for i, v := range std[window-1:] {
		if v == 0 {
			out = append(out, sampleStdDev(returns[i:i+window]))
			continue
		}
		out = append(out, v*scale)
	}
	return out
}

func sampleStdDev(xs []float64) float64 {
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// JumpRate is the share of returns whose magnitude exceeds tau.
func JumpRate(returns []float64, tau float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var jumps int
	for _, r := range returns {
		if math.Abs(r) > tau {
			jumps++
		}
	}
	return float64(jumps) / float64(len(returns))
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
