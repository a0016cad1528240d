package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/cdasim/pkg/app/core/account"
	"github.com/uhyunpark/cdasim/pkg/app/sim"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunMeta describes one simulation run.
type RunMeta struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Seed       int64     `json:"seed"`
	MaxTime    int       `json:"maxTime"`
	NumTraders int       `json:"numTraders"`
	MissPolicy string    `json:"missPolicy"`
	StartedAt  time.Time `json:"startedAt"`

	// Filled in when the run ends
	Steps          int       `json:"steps"`
	FinalPrice     float64   `json:"finalPrice"`
	JumpRate       float64   `json:"jumpRate"`
	MeanRollingVol *float64  `json:"meanRollingVol,omitempty"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// NewRunMeta describes the run c is about to execute.
func NewRunMeta(c *sim.Controller, startedAt time.Time) RunMeta {
	cfg := c.Config()
	return RunMeta{
		ID:         c.RunID(),
		Symbol:     cfg.Market.Symbol,
		Seed:       cfg.Simulation.Seed,
		MaxTime:    cfg.Simulation.MaxTime,
		NumTraders: cfg.Simulation.NumTraders,
		MissPolicy: cfg.Market.MissPolicy,
		StartedAt:  startedAt,
	}
}

// Finish copies the run summary into the metadata.
func (m *RunMeta) Finish(res sim.Result, at time.Time) {
	m.Steps = res.Steps
	m.FinalPrice = res.FinalPrice
	m.JumpRate = res.JumpRate
	if res.HasRollingVol {
		v := res.MeanRollingVol
		m.MeanRollingVol = &v
	}
	m.FinishedAt = at
}

// RunStore records run output in Pebble. It holds reporting data only;
// a market is never rebuilt from it.
type RunStore struct {
	db *pebble.DB
}

func NewRunStore(path string) (*RunStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return &RunStore{db: db}, nil
}
func (s *RunStore) Close() error { return s.db.Close() }

// SaveRun writes or replaces the run's metadata.
func (s *RunStore) SaveRun(meta RunMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := s.db.Set(runKey(meta.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LoadRun returns ErrRunNotFound if the run was never saved.
func (s *RunStore) LoadRun(runID string) (RunMeta, error) {
	data, closer, err := s.db.Get(runKey(runID))
	if errors.Is(err, pebble.ErrNotFound) {
		return RunMeta{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunMeta{}, fmt.Errorf("failed to get run: %w", err)
	}
	defer closer.Close()

	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return RunMeta{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return meta, nil
}

// ListRuns returns every saved run, oldest first.
func (s *RunStore) ListRuns() ([]RunMeta, error) {
	prefix := []byte(prefixRun)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var runs []RunMeta
	for iter.First(); iter.Valid(); iter.Next() {
		var meta RunMeta
		if err := json.Unmarshal(iter.Value(), &meta); err != nil {
			continue // Skip invalid entries
		}
		runs = append(runs, meta)
	}
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs, nil
}

// SaveStep implements sim.Sink. Rows are written without fsync; SaveRun at
// the end of the run syncs the WAL.
func (s *RunStore) SaveStep(runID string, row sim.Row) error {
	data, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to encode step: %w", err)
	}
	if err := s.db.Set(stepKey(runID, row.Time), data, pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save step: %w", err)
	}
	return nil
}

// LoadSteps returns the run's rows in step order.
func (s *RunStore) LoadSteps(runID string) ([]sim.Row, error) {
	prefix := stepPrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var rows []sim.Row
	for iter.First(); iter.Valid(); iter.Next() {
		var row sim.Row
		if err := json.Unmarshal(iter.Value(), &row); err != nil {
			return nil, fmt.Errorf("failed to decode step %q: %w", iter.Key(), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveTraders writes the snapshots in one batch.
func (s *RunStore) SaveTraders(runID string, traders []account.Snapshot) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, t := range traders {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal trader %d: %w", t.ID, err)
		}
		if err := b.Set(traderKey(runID, t.ID), data, nil); err != nil {
			return fmt.Errorf("failed to stage trader %d: %w", t.ID, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to save traders: %w", err)
	}
	return nil
}

// LoadTraders returns the run's trader snapshots sorted by id.
func (s *RunStore) LoadTraders(runID string) ([]account.Snapshot, error) {
	prefix := traderPrefix(runID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var traders []account.Snapshot
	for iter.First(); iter.Valid(); iter.Next() {
		var t account.Snapshot
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trader: %w", err)
		}
		traders = append(traders, t)
	}
	sort.Slice(traders, func(i, j int) bool { return traders[i].ID < traders[j].ID })
	return traders, nil
}

var _ sim.Sink = (*RunStore)(nil)
