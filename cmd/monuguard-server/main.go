package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"monuguard/internal/auth"
	"monuguard/internal/config"
	"monuguard/internal/database"
	"monuguard/internal/detection"
	"monuguard/internal/logger"
	"monuguard/internal/metrics"
	"monuguard/internal/pipeline"
	"monuguard/internal/server"
	"monuguard/internal/services"
	"monuguard/internal/telegram"
	"monuguard/internal/video"
	"monuguard/internal/video/capture"
	"monuguard/internal/ws"
)

func main() {
	// Define command line flags. Flags override the environment.
	var (
		envF      = flag.String("env", "", "Env file to load (default .env when present)")
		addrF     = flag.String("addr", "", "HTTP listen address (overrides MONUGUARD_HTTP_ADDR)")
		logLevelF = flag.String("log-level", "", "Log level: debug, info, warn, error, silent")
		dbgF      = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	var envFiles []string
	if *envF != "" {
		envFiles = append(envFiles, *envF)
	}
	cfg, err := config.Load(envFiles...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addrF != "" {
		cfg.HTTPAddr = *addrF
	}
	if *logLevelF != "" {
		cfg.LogLevel = *logLevelF
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, os.Stderr)

	db, err := database.New(cfg.DBPath)
	if err != nil {
		logger.Error("Server", "Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Error("Server", "Failed to migrate database: %v", err)
		os.Exit(1)
	}

	authenticator, err := auth.NewAuthenticator(auth.Settings{
		Enabled:   cfg.AuthEnabled,
		Username:  cfg.AuthUsername,
		Password:  cfg.AuthPassword,
		JWTSecret: cfg.JWTSecret,
		JWTExpiry: cfg.JWTExpiry,
	})
	if err != nil {
		logger.Error("Server", "Failed to set up authentication: %v", err)
		os.Exit(2)
	}

	// Progress events fan out to metrics and websocket clients.
	bus := pipeline.NewEventBus()
	defer bus.Close()
	m := metrics.New()
	hub := ws.NewAnalysisHub()
	bus.Subscribe(m)
	bus.Subscribe(hub)
	if cfg.TelegramEnabled {
		notifier := telegram.NewNotifier(cfg.TelegramConfig())
		defer notifier.Close()
		bus.Subscribe(notifier)
		logger.Info("Server", "Forwarding alerts to Telegram chat %s", cfg.TelegramChatID)
	}

	newDetector := func(model string) (pipeline.Detector, error) {
		dc := cfg.DetectorConfig()
		dc.Model = model
		return detection.New(dc)
	}

	// Long-lived detector used only for readiness checks.
	probe, err := detection.New(cfg.DetectorConfig())
	if err != nil {
		logger.Error("Server", "Failed to create detector: %v", err)
		os.Exit(2)
	}
	defer probe.Close()
	var checker detection.HealthChecker
	if hc, ok := probe.(detection.HealthChecker); ok {
		checker = hc
	}

	// Initialize the services.
	var (
		videoSvc  *services.VideoImplementation
		authSvc   *services.AuthImplementation
		healthSvc *services.HealthImplementation
	)
	{
		videoSvc, err = services.NewVideoService(db, video.NewOpener(capture.Open, cfg.SequenceFPS), newDetector, bus, services.VideoServiceConfig{
			UploadDir:       cfg.UploadDir,
			MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
			AnalysisTimeout: cfg.AnalysisTimeout,
			DefaultModel:    cfg.Model,
			Defaults:        cfg.Options(),
		})
		if err != nil {
			logger.Error("Server", "Failed to create video service: %v", err)
			os.Exit(1)
		}
		videoSvc.SetUploadCounter(m)
		authSvc = services.NewAuthService(authenticator)
		healthSvc = services.NewHealthService(db, checker)
	}

	logger.Info("Server", "Detector: %s at %s (model %s)", cfg.DetectorKind, cfg.Endpoint(), cfg.Model)
	if authenticator.IsEnabled() {
		logger.Info("Server", "Authentication enabled for user %q", cfg.AuthUsername)
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	// Setup interrupt handler. This optional step configures the process so
	// that SIGINT and SIGTERM signals cause the services to stop gracefully.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	svcs := server.Services{
		Videos:   videoSvc,
		Auth:     authSvc,
		Health:   healthSvc,
		Metrics:  m.Handler(),
		Progress: ws.NewHandler(hub),
	}
	handleHTTPServer(ctx, cfg.HTTPAddr, svcs, authenticator, int64(cfg.MaxUploadMB)<<20, &wg, errc, *dbgF)

	// Wait for signal.
	logger.Info("Server", "exiting (%v)", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()

	wg.Wait()
	logger.Info("Server", "exited")
}
