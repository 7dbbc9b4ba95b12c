package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"thermoctl/internal/api"
	"thermoctl/pkg/chamber"
	"thermoctl/pkg/chamber/atmoweb"
	"thermoctl/pkg/chamber/mock"
	"thermoctl/pkg/config"
	"thermoctl/pkg/control"
	"thermoctl/pkg/estimator"
	"thermoctl/pkg/history"
	"thermoctl/pkg/logging"
	"thermoctl/pkg/probe"
)

const version = "1.2.0"

var (
	configPath = flag.String("config", "configs/thermoctl.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	useMock    = flag.Bool("mock", false, "Use the in-process mock chamber instead of a real device")
	timeScale  = flag.Float64("time-scale", 100, "Mock chamber time acceleration (with -mock)")
)

func main() {
	// .env can carry THERMOCTL_DEVICE_URL for pointing a run at the simulator
	_ = godotenv.Load()
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background(), *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("thermoctl started", "version", version, "target", cfg.Target(),
		"set_index", cfg.Device.CurrentSetIndex, "model", cfg.EtaModel.Model)

	client := newChamberClient(cfg)
	defer client.Close()

	store, err := history.Open(cfg.Logging.HistoryDB)
	if err != nil {
		slog.Warn("history store unavailable, continuing without it", "error", err)
		store = nil
	} else {
		defer store.Close()
	}

	probes := []probe.Probe{
		probe.DeviceCheck(client),
		probe.RunLogDirCheck(cfg.Logging.RunLogDir),
		probe.HistoryDBCheck(cfg.Logging.HistoryDB),
	}
	if err := probe.AnalyzeResults(probe.Run(ctx, probes)); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	source, err := newSource(cfg)
	if err != nil {
		return err
	}

	live := api.NewLiveHandler()
	defer live.Close()

	loop := control.New(cfg, cfgPath, client, source, store, live)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	runErrors := make(chan error, 1)
	go func() {
		if err := loop.EnsureManualMode(ctx); err != nil {
			runErrors <- err
			return
		}
		res, err := loop.RunSetpoint(ctx)
		if err != nil {
			runErrors <- err
			return
		}
		slog.Info("run complete", "mode", res.Mode, "final_tau_s", fmt.Sprintf("%.1f", res.FinalTau),
			"samples", res.Samples, "duration", res.Duration.Round(time.Second))
		runErrors <- nil
	}()

	if !cfg.Server.Enabled {
		select {
		case err := <-runErrors:
			return err
		case <-quit:
			slog.Info("Interrupted, shutting down")
			cancel()
			return <-runErrors
		}
	}

	var histH *api.HistoryHandler
	if store != nil {
		histH = api.NewHistoryHandler(store)
	}
	srv := api.NewServer(cfg.Server.Address,
		api.NewStatusHandler(loop),
		histH,
		api.NewRunlogHandler(cfg.Logging.RunLogDir),
		live,
		func() { quit <- syscall.SIGTERM },
	)
	return runServerLifecycle(ctx, srv, quit, runErrors, cancel)
}

// newChamberClient picks the device transport from flags and config.
func newChamberClient(cfg *config.Config) chamber.Client {
	if *useMock {
		slog.Info("using mock chamber", "time_scale", *timeScale)
		return mock.New(mock.Config{
			StartTemp: 22.0,
			TimeScale: *timeScale,
		})
	}
	return atmoweb.New(cfg.Device.BaseURL, atmoweb.Options{
		Timeout:    time.Duration(cfg.Device.Timeout),
		Retries:    cfg.Device.Retries,
		RetryDelay: time.Duration(cfg.Device.RetryDelay),
	})
}

// newSource builds the configured ETA estimator.
func newSource(cfg *config.Config) (estimator.Source, error) {
	if cfg.EtaModel.Model == "exp" {
		slog.Info("ETA model: fixed exponential fit")
		return estimator.NewExpEstimator(cfg.Device.Tolerance), nil
	}

	params := estimator.DefaultParams()
	params.WindowSize = cfg.EtaModel.WindowSize
	params.OutlierThreshold = cfg.EtaModel.OutlierZ
	params.Tolerance = cfg.Device.Tolerance
	if len(cfg.EtaModel.PInit) == 3 {
		copy(params.PInit[:], cfg.EtaModel.PInit)
	}
	if len(cfg.EtaModel.QProcess) == 3 {
		copy(params.QProcess[:], cfg.EtaModel.QProcess)
	}
	if cfg.EtaModel.RMeasurement > 0 {
		params.RMeasurement = cfg.EtaModel.RMeasurement
	}

	est, err := estimator.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build estimator: %w", err)
	}
	slog.Info("ETA model: extended Kalman filter", "window", params.WindowSize)
	return est, nil
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal, runErrors chan error, cancel context.CancelFunc) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()

	var runErr error
	select {
	case <-quit:
		slog.Info("Shutting down server...")
		cancel()
	case runErr = <-runErrors:
		if runErr != nil {
			slog.Error("run failed", "error", runErr)
		}
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return runErr
}
