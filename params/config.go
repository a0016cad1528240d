package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Simulation struct {
	MaxTime      int     // number of steps
	Seed         int64   // seeds every random draw of a run
	InitialPrice float64 // reference price before the first trade
	NumTraders   int
	VolWindow    int     // rolling volatility window, in log returns
	JumpTau      float64 // jump threshold on |log return|
	OutputCSV    string

	// StepInterval paces steps in wall-clock time so a run can be watched
	// through the API. Zero runs as fast as possible.
	StepInterval time.Duration
}

type Market struct {
	Symbol        string
	PriceDecimals int32
	MinPrice      float64

	RenumberRemainders bool
	MissPolicy         string // "drop" or "requeue"
}

type Node struct {
	StorePath string // pebble run store, empty disables it
	APIAddr   string // empty disables the API server
	LogFile   string
	Verbose   bool
}

type Config struct {
	Simulation Simulation
	Market     Market
	Node       Node
}

func Default() Config {
	return Config{
		Simulation: Simulation{
			MaxTime:      500,
			Seed:         42,
			InitialPrice: 100.0,
			NumTraders:   30,
			VolWindow:    50,
			JumpTau:      0.02,
			OutputCSV:    "data/metrics.csv",
		},
		Market: Market{
			Symbol:        "SIM-USD",
			PriceDecimals: 2,
			MinPrice:      1.0,
			MissPolicy:    "drop",
		},
		Node: Node{
			LogFile: "data/sim.log",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	var err error
	set := func(key string, apply func(string) error) {
		if err != nil {
			return
		}
		if v := os.Getenv(key); v != "" {
			if e := apply(v); e != nil {
				err = fmt.Errorf("%s=%q: %w", key, v, e)
			}
		}
	}

	set("SIM_MAX_TIME", intInto(&cfg.Simulation.MaxTime))
	set("SIM_SEED", func(v string) (e error) {
		cfg.Simulation.Seed, e = strconv.ParseInt(v, 10, 64)
		return e
	})
	set("SIM_INITIAL_PRICE", floatInto(&cfg.Simulation.InitialPrice))
	set("SIM_NUM_TRADERS", intInto(&cfg.Simulation.NumTraders))
	set("SIM_VOL_WINDOW", intInto(&cfg.Simulation.VolWindow))
	set("SIM_JUMP_TAU", floatInto(&cfg.Simulation.JumpTau))
	set("SIM_OUTPUT_CSV", func(v string) error {
		cfg.Simulation.OutputCSV = v
		return nil
	})
	set("SIM_STEP_INTERVAL_MS", func(v string) error {
		ms, e := strconv.Atoi(v)
		cfg.Simulation.StepInterval = time.Duration(ms) * time.Millisecond
		return e
	})

	set("SIM_SYMBOL", func(v string) error {
		cfg.Market.Symbol = v
		return nil
	})
	set("SIM_PRICE_DECIMALS", func(v string) error {
		n, e := strconv.ParseInt(v, 10, 32)
		cfg.Market.PriceDecimals = int32(n)
		return e
	})
	set("SIM_RENUMBER_REMAINDERS", boolInto(&cfg.Market.RenumberRemainders))
	set("SIM_MISS_POLICY", func(v string) error {
		cfg.Market.MissPolicy = v
		return nil
	})

	set("SIM_STORE_PATH", func(v string) error {
		cfg.Node.StorePath = v
		return nil
	})
	set("API_ADDR", func(v string) error {
		cfg.Node.APIAddr = v
		return nil
	})
	set("LOG_FILE", func(v string) error {
		cfg.Node.LogFile = v
		return nil
	})
	set("VERBOSE", boolInto(&cfg.Node.Verbose))

	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks ranges that would make a run meaningless.
func (c Config) Validate() error {
	s := c.Simulation
	if s.MaxTime <= 0 {
		return fmt.Errorf("max time must be positive, got %d", s.MaxTime)
	}
	if s.NumTraders <= 0 {
		return fmt.Errorf("num traders must be positive, got %d", s.NumTraders)
	}
	if s.InitialPrice <= 0 {
		return fmt.Errorf("initial price must be positive, got %v", s.InitialPrice)
	}
	if s.VolWindow < 2 {
		return fmt.Errorf("vol window must be at least 2, got %d", s.VolWindow)
	}
	if s.JumpTau <= 0 {
		return fmt.Errorf("jump tau must be positive, got %v", s.JumpTau)
	}
	if s.StepInterval < 0 {
		return fmt.Errorf("step interval cannot be negative")
	}
	switch c.Market.MissPolicy {
	case "drop", "requeue":
	default:
		return fmt.Errorf("miss policy must be drop or requeue, got %q", c.Market.MissPolicy)
	}
	return nil
}

func intInto(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func floatInto(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

func boolInto(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst = b
		return nil
	}
}
