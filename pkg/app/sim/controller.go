package sim

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/cdasim/params"
	"github.com/uhyunpark/cdasim/pkg/app/core/account"
	"github.com/uhyunpark/cdasim/pkg/app/core/market"
	"github.com/uhyunpark/cdasim/pkg/app/core/orderbook"
	"github.com/uhyunpark/cdasim/pkg/app/strategy"
	"github.com/uhyunpark/cdasim/pkg/util"
)

const (
	startingCapital  = 10_000.0
	minStartingStock = 5
	maxStartingStock = 20
)

// Row is the per-step record written to the report and the run store.
type Row struct {
	Time           int64    `json:"time"`
	Price          float64  `json:"price"`
	Bid            *float64 `json:"bid"`
	Ask            *float64 `json:"ask"`
	Spread         *float64 `json:"spread"`
	Volume         int64    `json:"volume"`
	LastTradePrice *float64 `json:"lastTradePrice"`
	StateHash      string   `json:"stateHash"`
}

// Sink receives every row as soon as its step completes.
type Sink interface {
	SaveStep(runID string, row Row) error
}

// Result summarizes a finished (or interrupted) run.
type Result struct {
	RunID      string
	Steps      int
	Rows       []Row
	Prices     []float64 // initial price followed by one price per step
	FinalPrice float64
	Submitted  int64

	JumpRate       float64
	MeanRollingVol float64
	HasRollingVol  bool // false when the run is shorter than the window

	Traders []account.Snapshot
}

// Controller drives one seeded run of the market.
type Controller struct {
	cfg      params.Config
	runID    string
	rng      *rand.Rand
	market   *market.Market
	accounts *account.Manager
	agents   []*Agent

	mu      sync.RWMutex
	rows    []Row
	history []float64
	step    int64

	Logger *zap.SugaredLogger
	Clock  util.Clock
	Sink   Sink
	OnStep func(Row)
}

// NewController builds the market, registers traders and assigns strategies.
// All randomness, including starting inventories, comes from cfg's seed.
func NewController(cfg params.Config, logger *zap.SugaredLogger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	policy, err := orderbook.ParseMissPolicy(cfg.Market.MissPolicy)
	if err != nil {
		return nil, err
	}
	book := orderbook.NewOrderBookWithOptions(orderbook.Options{
		RenumberRemainders: cfg.Market.RenumberRemainders,
		MissPolicy:         policy,
		Logger:             logger,
	})

	mkt, err := market.NewMarket(market.Params{
		Symbol:        cfg.Market.Symbol,
		InitialPrice:  cfg.Simulation.InitialPrice,
		PriceDecimals: cfg.Market.PriceDecimals,
		MinPrice:      cfg.Market.MinPrice,
	}, book)
	if err != nil {
		return nil, err
	}
	mkt.Logger = logger

	c := &Controller{
		cfg:      cfg,
		runID:    uuid.NewString(),
		rng:      rand.New(rand.NewSource(cfg.Simulation.Seed)),
		market:   mkt,
		accounts: account.NewManager(),
		history:  []float64{mkt.CurrentPrice()},
		Logger:   logger,
		Clock:    util.RealClock{},
	}
	if err := c.createTraders(cfg.Simulation.NumTraders); err != nil {
		return nil, err
	}
	return c, nil
}

// strategyPool splits n traders roughly into thirds: random, momentum,
// mean reversion. Every group has at least one slot.
func strategyPool(n int) []strategy.Strategy {
	third := max(1, n/3)
	rest := max(1, n-2*third)

	pool := make([]strategy.Strategy, 0, 2*third+rest)
	random := strategy.NewRandom()
	momentum := strategy.NewMomentum()
	meanRev := strategy.NewMeanReversion()
	for i := 0; i < third; i++ {
		pool = append(pool, random)
	}
	for i := 0; i < third; i++ {
		pool = append(pool, momentum)
	}
	for i := 0; i < rest; i++ {
		pool = append(pool, meanRev)
	}
	return pool
}

func (c *Controller) createTraders(n int) error {
	pool := strategyPool(n)
	specs := make([]account.Spec, n)
	for i := range specs {
		specs[i] = account.Spec{
			ID:        orderbook.TraderID(i),
			Capital:   startingCapital,
			Inventory: int64(minStartingStock + c.rng.Intn(maxStartingStock-minStartingStock+1)),
		}
	}
	if err := c.accounts.RegisterTraders(specs); err != nil {
		return fmt.Errorf("failed to register traders: %w", err)
	}

	c.agents = make([]*Agent, n)
	for i, s := range specs {
		c.agents[i] = &Agent{
			Trader:   c.accounts.Get(s.ID),
			Strategy: pool[i%len(pool)],
		}
	}
	return nil
}

func (c *Controller) RunID() string              { return c.runID }
func (c *Controller) Config() params.Config      { return c.cfg }
func (c *Controller) Market() *market.Market     { return c.market }
func (c *Controller) Accounts() *account.Manager { return c.accounts }
func (c *Controller) Agents() []*Agent           { return c.agents }

// Step returns the last completed step, 0 before the run starts.
func (c *Controller) Step() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.step
}

// Rows returns a copy of the rows recorded so far.
func (c *Controller) Rows() []Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Row, len(c.rows))
	copy(out, c.rows)
	return out
}

// Run executes steps 1..MaxTime. Cancelling ctx stops the run between steps;
// the result then covers the completed steps and the error is ctx.Err().
func (c *Controller) Run(ctx context.Context) (Result, error) {
	s := c.cfg.Simulation
	c.Logger.Infow("run_started",
		"run_id", c.runID,
		"symbol", c.cfg.Market.Symbol,
		"steps", s.MaxTime,
		"traders", len(c.agents),
		"seed", s.Seed,
		"miss_policy", c.cfg.Market.MissPolicy)

	var submitted int64
	var runErr error

	for t := int64(1); t <= int64(s.MaxTime); t++ {
		if err := c.wait(ctx, t); err != nil {
			runErr = err
			break
		}

		n, err := c.runStep(t)
		submitted += n
		if err != nil {
			runErr = err
			break
		}
	}

	res := c.result(submitted)
	if runErr != nil {
		c.Logger.Warnw("run_stopped", "run_id", c.runID, "steps", res.Steps, "err", runErr)
		return res, runErr
	}

	c.Logger.Infow("run_finished",
		"run_id", c.runID,
		"steps", res.Steps,
		"final_price", res.FinalPrice,
		"submitted", res.Submitted,
		"jump_rate", res.JumpRate)
	return res, nil
}

func (c *Controller) wait(ctx context.Context, t int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.cfg.Simulation.StepInterval <= 0 || t == 1 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.Clock.After(c.cfg.Simulation.StepInterval):
		return nil
	}
}

func (c *Controller) runStep(t int64) (int64, error) {
	c.mu.RLock()
	history := c.history
	c.mu.RUnlock()

	var submitted int64
	for _, a := range c.agents {
		d, err := a.DecideAction(c.rng, c.market, t, history)
		if err != nil {
			return submitted, fmt.Errorf("step %d: %w", t, err)
		}
		if d == Submitted {
			submitted++
		}
	}

	sum := c.market.ExecuteTrades(c.accounts)
	row := c.record(t, sum)

	c.Logger.Debugw("step_completed",
		"step", t,
		"submitted", submitted,
		"volume", row.Volume,
		"price", row.Price)

	if c.Sink != nil {
		if err := c.Sink.SaveStep(c.runID, row); err != nil {
			return submitted, fmt.Errorf("step %d: %w", t, err)
		}
	}
	if c.OnStep != nil {
		c.OnStep(row)
	}
	return submitted, nil
}

func (c *Controller) record(t int64, sum market.Summary) Row {
	q := c.market.BestBidAsk()
	hash := c.market.Book().StateHash()

	row := Row{
		Time:           t,
		Price:          c.market.CurrentPrice(),
		Bid:            q.Bid,
		Ask:            q.Ask,
		Volume:         sum.Volume,
		LastTradePrice: sum.LastTradePrice,
		StateHash:      hex.EncodeToString(hash[:]),
	}
	if spread, ok := q.Spread(); ok {
		row.Spread = &spread
	}

	c.mu.Lock()
	c.history = append(c.history, row.Price)
	c.rows = append(c.rows, row)
	c.step = t
	c.mu.Unlock()
	return row
}

func (c *Controller) result(submitted int64) Result {
	c.mu.RLock()
	rows := make([]Row, len(c.rows))
	copy(rows, c.rows)
	prices := make([]float64, len(c.history))
	copy(prices, c.history)
	c.mu.RUnlock()

	returns := LogReturns(prices)
	vol := RollingVolatility(returns, c.cfg.Simulation.VolWindow)

	return Result{
		RunID:          c.runID,
		Steps:          len(rows),
		Rows:           rows,
		Prices:         prices,
		FinalPrice:     prices[len(prices)-1],
		Submitted:      submitted,
		JumpRate:       JumpRate(returns, c.cfg.Simulation.JumpTau),
		MeanRollingVol: mean(vol),
		HasRollingVol:  len(vol) > 0,
		Traders:        c.accounts.Snapshot(),
	}
}
