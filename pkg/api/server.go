package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/cdasim/pkg/app/core/account"
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
	"github.com/uhyunpark/cdasim/pkg/app/sim"
	"github.com/uhyunpark/cdasim/pkg/storage"
)

// RunReader serves finished runs from the run store
type RunReader interface {
	ListRuns() ([]storage.RunMeta, error)
	LoadSteps(runID string) ([]sim.Row, error)
	LoadTraders(runID string) ([]account.Snapshot, error)
}

// Server exposes a read-only view of a running simulation over REST and
// WebSocket. There is no order entry.
type Server struct {
	ctrl       *sim.Controller
	runs       RunReader
	strategies map[orderbook.TraderID]string

	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

// NewServer creates a new API server. runs may be nil when no run store is
// configured.
func NewServer(ctrl *sim.Controller, runs RunReader, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	strategies := make(map[orderbook.TraderID]string, len(ctrl.Agents()))
	for _, a := range ctrl.Agents() {
		strategies[a.Trader.ID()] = a.Strategy.Name()
	}

	s := &Server{
		ctrl:       ctrl,
		runs:       runs,
		strategies: strategies,
		router:     mux.NewRouter(),
		hub:        NewHub(logger),
		log:        logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes. Registered on the root router so a method mismatch
	// answers 405; a mux subrouter answers 404.
	const v1 = "/api/v1"

	// Live run
	s.router.HandleFunc(v1+"/market", s.handleGetMarket).Methods("GET")
	s.router.HandleFunc(v1+"/orderbook", s.handleGetOrderbook).Methods("GET")
	s.router.HandleFunc(v1+"/steps", s.handleGetSteps).Methods("GET")
	s.router.HandleFunc(v1+"/traders", s.handleGetTraders).Methods("GET")
	s.router.HandleFunc(v1+"/traders/{id}", s.handleGetTrader).Methods("GET")

	// Stored runs
	s.router.HandleFunc(v1+"/runs", s.handleGetRuns).Methods("GET")
	s.router.HandleFunc(v1+"/runs/{id}/steps", s.handleGetRunSteps).Methods("GET")
	s.router.HandleFunc(v1+"/runs/{id}/traders", s.handleGetRunTraders).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is done
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("api_shutdown_failed", "err", err)
		}
	}()

	s.log.Infow("api_server_starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	mkt := s.ctrl.Market()
	p := mkt.Params()
	q := mkt.BestBidAsk()

	response := MarketInfo{
		Symbol:        p.Symbol,
		RunID:         s.ctrl.RunID(),
		Step:          s.ctrl.Step(),
		MaxTime:       s.ctrl.Config().Simulation.MaxTime,
		PriceDecimals: p.PriceDecimals,
		Price:         mkt.CurrentPrice(),
		Bid:           q.Bid,
		Ask:           q.Ask,
	}
	if spread, ok := q.Spread(); ok {
		response.Spread = &spread
	}
	if mid, ok := q.Mid(); ok {
		response.Mid = &mid
	}

	respondJSON(w, response)
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", 0)
	if err != nil || depth < 0 {
		respondError(w, http.StatusBadRequest, "invalid depth", r.URL.Query().Get("depth"))
		return
	}

	respondJSON(w, s.orderbookSnapshot(int(depth)))
}

func (s *Server) orderbookSnapshot(depth int) OrderbookSnapshot {
	book := s.ctrl.Market().Book()
	return OrderbookSnapshot{
		Symbol:    s.ctrl.Market().Params().Symbol,
		Bids:      toLevels(book.BidLevels(), depth),
		Asks:      toLevels(book.AskLevels(), depth),
		Step:      s.ctrl.Step(),
		Timestamp: time.Now().UnixMilli(),
	}
}

func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt(r, "from", 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from", r.URL.Query().Get("from"))
		return
	}

	respondJSON(w, rowsFrom(s.ctrl.Rows(), from))
}

func (s *Server) handleGetTraders(w http.ResponseWriter, r *http.Request) {
	snaps := s.ctrl.Accounts().Snapshot()
	response := make([]TraderInfo, len(snaps))
	for i, snap := range snaps {
		response[i] = s.traderInfo(snap)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trader id", vars["id"])
		return
	}

	snap, ok := s.ctrl.Accounts().SnapshotOf(orderbook.TraderID(id))
	if !ok {
		respondError(w, http.StatusNotFound, "trader not found", vars["id"])
		return
	}
	respondJSON(w, s.traderInfo(snap))
}

func (s *Server) traderInfo(snap account.Snapshot) TraderInfo {
	return TraderInfo{
		ID:         snap.ID,
		Strategy:   s.strategies[snap.ID],
		Capital:    snap.Capital,
		Inventory:  snap.Inventory,
		TradeCount: snap.TradeCount,
		Volume:     snap.Volume,
	}
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run store disabled", "")
		return
	}
	runs, err := s.runs.ListRuns()
	if err != nil {
		s.log.Errorw("list_runs_failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list runs", err.Error())
		return
	}
	if runs == nil {
		runs = []storage.RunMeta{}
	}
	respondJSON(w, runs)
}

func (s *Server) handleGetRunSteps(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run store disabled", "")
		return
	}
	from, err := queryInt(r, "from", 1)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid from", r.URL.Query().Get("from"))
		return
	}

	runID := mux.Vars(r)["id"]
	rows, err := s.runs.LoadSteps(runID)
	if err != nil {
		s.log.Errorw("load_steps_failed", "run_id", runID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load steps", err.Error())
		return
	}
	respondJSON(w, rowsFrom(rows, from))
}

func (s *Server) handleGetRunTraders(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		respondError(w, http.StatusServiceUnavailable, "run store disabled", "")
		return
	}

	runID := mux.Vars(r)["id"]
	traders, err := s.runs.LoadTraders(runID)
	if err != nil {
		s.log.Errorw("load_traders_failed", "run_id", runID, "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load traders", err.Error())
		return
	}
	if traders == nil {
		traders = []account.Snapshot{}
	}
	respondJSON(w, traders)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called after each step)
// ==============================

// Publish broadcasts the step row and the book that resulted from it
func (s *Server) Publish(row sim.Row) {
	s.BroadcastStep(row)
	s.BroadcastOrderbook(row.Time)
}

// BroadcastStep sends a completed row to "steps" subscribers
func (s *Server) BroadcastStep(row sim.Row) {
	s.hub.BroadcastToChannel(ChannelSteps, StepUpdate{
		Type:  "step",
		RunID: s.ctrl.RunID(),
		Row:   row,
	})
}

// BroadcastOrderbook sends the current levels to "orderbook" subscribers
func (s *Server) BroadcastOrderbook(step int64) {
	snap := s.orderbookSnapshot(0)
	s.hub.BroadcastToChannel(ChannelOrderbook, OrderbookUpdate{
		Type:      "orderbook",
		Symbol:    snap.Symbol,
		Bids:      snap.Bids,
		Asks:      snap.Asks,
		Timestamp: snap.Timestamp,
		Step:      step,
	})
}

// ==============================
// Helper Functions
// ==============================

func rowsFrom(rows []sim.Row, from int64) []sim.Row {
	out := make([]sim.Row, 0, len(rows))
	for _, row := range rows {
		if row.Time >= from {
			out = append(out, row)
		}
	}
	return out
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
