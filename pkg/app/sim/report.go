package sim

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var csvHeader = []string{"time", "price", "bid", "ask", "spread", "volume", "last_trade_price"}

// WriteCSV writes one line per step. Absent values are empty cells.
func WriteCSV(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(r.Time, 10),
			formatFloat(r.Price),
			formatOptional(r.Bid),
			formatOptional(r.Ask),
			formatOptional(r.Spread),
			strconv.FormatInt(r.Volume, 10),
			formatOptional(r.LastTradePrice),
		}
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("failed to write row %d: %w", r.Time, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to flush report: %w", err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
