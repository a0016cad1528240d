package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uhyunpark/cdasim/params"
	"github.com/uhyunpark/cdasim/pkg/app/core/account"
	"github.com/uhyunpark/cdasim/pkg/app/sim"
	"github.com/uhyunpark/cdasim/pkg/storage"
	"github.com/uhyunpark/cdasim/pkg/util"
)

func newController(t *testing.T, steps int) *sim.Controller {
	t.Helper()
	cfg := params.Default()
	cfg.Simulation.MaxTime = steps
	cfg.Simulation.NumTraders = 6
	c, err := sim.NewController(cfg, nil)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Clock = util.InstantClock{}
	return c
}

func get(t *testing.T, h http.Handler, path string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s: decode: %v (body %s)", path, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	s := NewServer(newController(t, 1), nil, nil)
	var body map[string]string
	if code := get(t, s.Handler(), "/health", &body); code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: %d %v", code, body)
	}
}

func TestMarketBeforeAndAfterRun(t *testing.T) {
	c := newController(t, 30)
	s := NewServer(c, nil, nil)

	var before MarketInfo
	if code := get(t, s.Handler(), "/api/v1/market", &before); code != http.StatusOK {
		t.Fatalf("market: %d", code)
	}
	if before.Step != 0 || before.Price != 100 || before.Bid != nil || before.Ask != nil || before.Spread != nil {
		t.Fatalf("unexpected initial market: %+v", before)
	}
	if before.Symbol != "SIM-USD" || before.RunID != c.RunID() || before.MaxTime != 30 {
		t.Fatalf("unexpected identity: %+v", before)
	}

	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var after MarketInfo
	get(t, s.Handler(), "/api/v1/market", &after)
	if after.Step != 30 || after.Price != res.FinalPrice {
		t.Fatalf("market after run: %+v, final price %v", after, res.FinalPrice)
	}
	if (after.Spread != nil) != (after.Bid != nil && after.Ask != nil) {
		t.Fatalf("spread inconsistent with quote: %+v", after)
	}
}

func TestOrderbookLevels(t *testing.T) {
	c := newController(t, 40)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := NewServer(c, nil, nil)

	var snap OrderbookSnapshot
	if code := get(t, s.Handler(), "/api/v1/orderbook", &snap); code != http.StatusOK {
		t.Fatalf("orderbook: %d", code)
	}
	for i := 1; i < len(snap.Bids); i++ {
		if snap.Bids[i].Price >= snap.Bids[i-1].Price {
			t.Fatalf("bids not descending: %+v", snap.Bids)
		}
	}
	for i := 1; i < len(snap.Asks); i++ {
		if snap.Asks[i].Price <= snap.Asks[i-1].Price {
			t.Fatalf("asks not ascending: %+v", snap.Asks)
		}
	}

	var top OrderbookSnapshot
	get(t, s.Handler(), "/api/v1/orderbook?depth=1", &top)
	if len(top.Bids) > 1 || len(top.Asks) > 1 {
		t.Fatalf("depth ignored: %+v", top)
	}

	if code := get(t, s.Handler(), "/api/v1/orderbook?depth=x", nil); code != http.StatusBadRequest {
		t.Fatalf("bad depth: %d", code)
	}
}

func TestStepsFrom(t *testing.T) {
	c := newController(t, 12)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := NewServer(c, nil, nil)

	var all []sim.Row
	get(t, s.Handler(), "/api/v1/steps", &all)
	if len(all) != 12 {
		t.Fatalf("got %d rows, want 12", len(all))
	}

	var tail []sim.Row
	get(t, s.Handler(), "/api/v1/steps?from=10", &tail)
	if len(tail) != 3 || tail[0].Time != 10 {
		t.Fatalf("tail: %+v", tail)
	}

	if code := get(t, s.Handler(), "/api/v1/steps?from=abc", nil); code != http.StatusBadRequest {
		t.Fatalf("bad from: %d", code)
	}
}

func TestTraders(t *testing.T) {
	c := newController(t, 1)
	s := NewServer(c, nil, nil)

	var traders []TraderInfo
	get(t, s.Handler(), "/api/v1/traders", &traders)
	if len(traders) != 6 {
		t.Fatalf("got %d traders", len(traders))
	}
	for i, tr := range traders {
		if int(tr.ID) != i || tr.Strategy == "" {
			t.Fatalf("trader %d: %+v", i, tr)
		}
	}

	var one TraderInfo
	if code := get(t, s.Handler(), "/api/v1/traders/3", &one); code != http.StatusOK || one.ID != 3 {
		t.Fatalf("trader 3: %d %+v", code, one)
	}
	if code := get(t, s.Handler(), "/api/v1/traders/99", nil); code != http.StatusNotFound {
		t.Fatalf("missing trader: %d", code)
	}
	if code := get(t, s.Handler(), "/api/v1/traders/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("bad id: %d", code)
	}
}

func TestReadOnly(t *testing.T) {
	s := NewServer(newController(t, 1), &fakeRuns{}, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/orderbook"},
		{http.MethodPost, "/api/v1/market"},
		{http.MethodPost, "/api/v1/steps"},
		{http.MethodPost, "/api/v1/traders"},
		{http.MethodDelete, "/api/v1/traders/1"},
		{http.MethodPut, "/api/v1/runs"},
		{http.MethodPost, "/api/v1/runs/a/steps"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, strings.NewReader("{}")))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: %d, want 405", tt.method, tt.path, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown route: %d, want 404", rec.Code)
	}
}

type fakeRuns struct {
	runs []storage.RunMeta
	rows map[string][]sim.Row
	err  error
}

func (f *fakeRuns) ListRuns() ([]storage.RunMeta, error) { return f.runs, f.err }
func (f *fakeRuns) LoadSteps(id string) ([]sim.Row, error) {
	return f.rows[id], f.err
}
func (f *fakeRuns) LoadTraders(string) ([]account.Snapshot, error) { return nil, f.err }

func TestStoredRuns(t *testing.T) {
	c := newController(t, 1)

	disabled := NewServer(c, nil, nil)
	if code := get(t, disabled.Handler(), "/api/v1/runs", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("disabled store: %d", code)
	}

	runs := &fakeRuns{
		runs: []storage.RunMeta{{ID: "a"}, {ID: "b"}},
		rows: map[string][]sim.Row{"a": {{Time: 1}, {Time: 2}, {Time: 3}}},
	}
	s := NewServer(c, runs, nil)

	var list []storage.RunMeta
	get(t, s.Handler(), "/api/v1/runs", &list)
	if len(list) != 2 {
		t.Fatalf("runs: %+v", list)
	}

	var rows []sim.Row
	get(t, s.Handler(), "/api/v1/runs/a/steps?from=2", &rows)
	if len(rows) != 2 || rows[0].Time != 2 {
		t.Fatalf("rows: %+v", rows)
	}

	var traders []account.Snapshot
	if code := get(t, s.Handler(), "/api/v1/runs/a/traders", &traders); code != http.StatusOK || len(traders) != 0 {
		t.Fatalf("traders: %d %+v", code, traders)
	}

	runs.err = errors.New("closed")
	if code := get(t, s.Handler(), "/api/v1/runs", nil); code != http.StatusInternalServerError {
		t.Fatalf("store error: %d", code)
	}
}

func TestWebSocketStepStream(t *testing.T) {
	c := newController(t, 5)
	s := NewServer(c, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{ChannelSteps}}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.subscribers(ChannelSteps) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.OnStep = s.Publish
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for want := int64(1); want <= 5; want++ {
		var msg StepUpdate
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read step %d: %v", want, err)
		}
		if msg.Type != "step" || msg.Row.Time != want || msg.RunID != c.RunID() {
			t.Fatalf("unexpected message: %+v", msg)
		}
	}
}
