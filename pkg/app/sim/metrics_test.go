package sim

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestLogReturns(t *testing.T) {
	if got := LogReturns([]float64{100}); got != nil {
		t.Fatalf("single price should give no returns, got %v", got)
	}

	got := LogReturns([]float64{100, 110, 99})
	want := []float64{math.Log(1.1), math.Log(0.9)}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("r[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRollingVolatility(t *testing.T) {
	tests := []struct {
		name    string
		returns []float64
		window  int
		want    []float64
	}{
		{"shorter than window", []float64{0.1, 0.2}, 3, nil},
		{"alternating", []float64{1, -1, 1, -1}, 2, []float64{math.Sqrt2, math.Sqrt2, math.Sqrt2}},
		{"constant", []float64{0.5, 0.5, 0.5}, 3, []float64{0}},
		{"sample std", []float64{1, 2, 3, 4}, 4, []float64{math.Sqrt(5.0 / 3.0)}},
		{"tiny returns", []float64{1e-8, -1e-8, 1e-8, -1e-8}, 4, []float64{2e-8 / math.Sqrt(3)}},
		{"tiny then large", []float64{1e-8, -1e-8, 1e-8, 1}, 3, []float64{2e-8 / math.Sqrt(3), math.Sqrt(1.0 / 3.0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RollingVolatility(tt.returns, tt.window)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if math.Abs(got[i]-tt.want[i]) > 1e-6*math.Abs(tt.want[i])+1e-12 {
					t.Errorf("vol[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestJumpRate(t *testing.T) {
	if got := JumpRate(nil, 0.02); got != 0 {
		t.Fatalf("empty returns: got %v", got)
	}
	got := JumpRate([]float64{0.01, -0.03, 0.02, 0.05}, 0.02)
	if got != 0.5 {
		t.Fatalf("jump rate = %v, want 0.5", got)
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.csv")

	bid, ask, spread, last := 99.5, 100.25, 0.75, 100.0
	rows := []Row{
		{Time: 1, Price: 100},
		{Time: 2, Price: 100, Bid: &bid, Ask: &ask, Spread: &spread, Volume: 3, LastTradePrice: &last},
	}
	if err := WriteCSV(path, rows); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	want := [][]string{
		{"time", "price", "bid", "ask", "spread", "volume", "last_trade_price"},
		{"1", "100", "", "", "", "0", ""},
		{"2", "100", "99.5", "100.25", "0.75", "3", "100"},
	}
	if len(records) != len(want) {
		t.Fatalf("got %d records, want %d", len(records), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if records[i][j] != want[i][j] {
				t.Errorf("record[%d][%d] = %q, want %q", i, j, records[i][j], want[i][j])
			}
		}
	}
}
