package account

import (
	"testing"

	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
)

func TestRegisterTraders(t *testing.T) {
	am := NewManager()

	err := am.RegisterTraders([]Spec{
		{ID: 2, Capital: 500, Inventory: 3},
		{ID: 1, Capital: 1000, Inventory: 7},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if am.Count() != 2 {
		t.Fatalf("count = %d, want 2", am.Count())
	}

	tr, ok := am.Lookup(1)
	if !ok {
		t.Fatalf("trader 1 not found")
	}
	if tr.ID() != 1 || tr.Capital() != 1000 || tr.Inventory() != 7 {
		t.Fatalf("unexpected trader %d capital=%v inventory=%d", tr.ID(), tr.Capital(), tr.Inventory())
	}

	if _, ok := am.Lookup(99); ok {
		t.Fatalf("unregistered id resolved")
	}
	if am.Get(99) != nil {
		t.Fatalf("Get should return nil for an unregistered id")
	}

	snaps := am.Snapshot()
	if len(snaps) != 2 || snaps[0].ID != 1 || snaps[1].ID != 2 {
		t.Fatalf("snapshot not sorted by id: %+v", snaps)
	}
}

func TestRegisterTradersRejects(t *testing.T) {
	tests := []struct {
		name  string
		first []Spec
		specs []Spec
	}{
		{"duplicate in batch", nil, []Spec{{ID: 1}, {ID: 1}}},
		{"already registered", []Spec{{ID: 1}}, []Spec{{ID: 2}, {ID: 1}}},
		{"negative inventory", nil, []Spec{{ID: 1, Inventory: -1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewManager()
			if err := am.RegisterTraders(tt.first); err != nil {
				t.Fatalf("setup: %v", err)
			}
			before := am.Count()
			if err := am.RegisterTraders(tt.specs); err == nil {
				t.Fatalf("expected error")
			}
			if am.Count() != before {
				t.Fatalf("failed registration must not add traders: %d -> %d", before, am.Count())
			}
		})
	}
}

func TestTotalsAndAffordability(t *testing.T) {
	am := NewManager()
	if err := am.RegisterTraders([]Spec{
		{ID: 1, Capital: 100, Inventory: 2},
		{ID: 2, Capital: 50.5, Inventory: 5},
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	capital, inventory := am.Totals()
	if capital != 150.5 || inventory != 7 {
		t.Fatalf("totals = %v, %d; want 150.5, 7", capital, inventory)
	}

	tr := am.Get(1)
	if !tr.CanBuy(50, 2) || tr.CanBuy(50.01, 2) {
		t.Errorf("CanBuy boundary wrong for capital %v", tr.Capital())
	}
	if !tr.CanSell(2) || tr.CanSell(3) {
		t.Errorf("CanSell boundary wrong for inventory %d", tr.Inventory())
	}
}

func TestManagerIsLockerRegistry(t *testing.T) {
	var reg orderbook.Registry = NewManager()
	if _, ok := reg.(interface {
		Lock()
		Unlock()
	}); !ok {
		t.Fatalf("manager must expose Lock/Unlock for settlement")
	}
}
