package account

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

// Manager is the trader registry injected into matching and settlement.
// It is safe for concurrent readers while a run settles trades.
type Manager struct {
	mu      sync.RWMutex
	traders map[orderbook.TraderID]*Trader
}

func NewManager() *Manager {
	return &Manager{
		traders: make(map[orderbook.TraderID]*Trader),
	}
}

// RegisterTraders adds traders to the registry.
// Returns error on a duplicate id, in which case nothing is registered.
func (m *Manager) RegisterTraders(specs []Spec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[orderbook.TraderID]struct{}, len(specs))
	for _, s := range specs {
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("duplicate trader id %d in registration", s.ID)
		}
		if _, exists := m.traders[s.ID]; exists {
			return fmt.Errorf("trader %d already registered", s.ID)
		}
		if s.Inventory < 0 {
			return fmt.Errorf("trader %d: inventory cannot be negative: %d", s.ID, s.Inventory)
		}
		seen[s.ID] = struct{}{}
	}

	for _, s := range specs {
		m.traders[s.ID] = NewTrader(s)
	}
	return nil
}

// Lookup implements orderbook.Registry.
func (m *Manager) Lookup(id orderbook.TraderID) (orderbook.Trader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traders[id]
	if !ok {
		return nil, false
	}
	return t, true
}

// Get returns the concrete trader record, or nil if unregistered.
func (m *Manager) Get(id orderbook.TraderID) *Trader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.traders[id]
}

// Lock and Unlock bracket one trade's settlement (sync.Locker).
func (m *Manager) Lock()   { m.mu.Lock() }
func (m *Manager) Unlock() { m.mu.Unlock() }

// Snapshot returns copies of all traders sorted by id.
func (m *Manager) Snapshot() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Snapshot, 0, len(m.traders))
	for _, t := range m.traders {
		out = append(out, t.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SnapshotOf returns a copy of one trader.
func (m *Manager) SnapshotOf(id orderbook.TraderID) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traders[id]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// Totals sums capital and inventory across the registry. Settlement leaves
// both unchanged.
func (m *Manager) Totals() (capital float64, inventory int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.traders {
		capital += t.capital
		inventory += t.inventory
	}
	return capital, inventory
}

// Count returns the number of registered traders
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.traders)
}

var _ orderbook.Registry = (*Manager)(nil)
