package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/cdasim/params"
	"github.com/uhyunpark/cdasim/pkg/api"
	"github.com/uhyunpark/cdasim/pkg/app/sim"
	"github.com/uhyunpark/cdasim/pkg/storage"
	"github.com/uhyunpark/cdasim/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.Verbose)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "verbose", cfg.Node.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Errorw("sim_failed", "err", err)
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg params.Config, sugar *zap.SugaredLogger) error {
	ctrl, err := sim.NewController(cfg, sugar)
	if err != nil {
		return err
	}

	// ---- Run store (optional) ----
	var store *storage.RunStore
	var runs api.RunReader
	var meta storage.RunMeta
	if cfg.Node.StorePath != "" {
		store, err = storage.NewRunStore(cfg.Node.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()

		meta = storage.NewRunMeta(ctrl, time.Now())
		if err := store.SaveRun(meta); err != nil {
			return err
		}
		ctrl.Sink = store
		runs = store
		sugar.Infow("run_store_opened", "path", cfg.Node.StorePath, "run_id", ctrl.RunID())
	}

	// ---- API Server (optional) ----
	if cfg.Node.APIAddr != "" {
		apiServer := api.NewServer(ctrl, runs, sugar)
		ctrl.OnStep = apiServer.Publish

		go func() {
			if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
				sugar.Errorw("api_server_failed", "err", err)
			}
		}()
	}

	res, runErr := ctrl.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	summary := []interface{}{
		"run_id", res.RunID,
		"steps", res.Steps,
		"final_price", res.FinalPrice,
		"jump_tau", cfg.Simulation.JumpTau,
		"jump_rate", res.JumpRate,
	}
	if res.HasRollingVol {
		summary = append(summary, "vol_window", cfg.Simulation.VolWindow, "mean_rolling_vol", res.MeanRollingVol)
	}
	sugar.Infow("run_summary", summary...)

	if cfg.Simulation.OutputCSV != "" {
		if err := sim.WriteCSV(cfg.Simulation.OutputCSV, res.Rows); err != nil {
			return err
		}
		sugar.Infow("metrics_saved", "path", cfg.Simulation.OutputCSV, "rows", len(res.Rows))
	}

	if store != nil {
		meta.Finish(res, time.Now())
		if err := store.SaveRun(meta); err != nil {
			return err
		}
		if err := store.SaveTraders(res.RunID, res.Traders); err != nil {
			return err
		}
	}

	// Keep serving the finished run until interrupted
	if cfg.Node.APIAddr != "" && runErr == nil {
		sugar.Infow("run_complete_serving", "addr", cfg.Node.APIAddr)
		<-ctx.Done()
	}
	return nil
}
