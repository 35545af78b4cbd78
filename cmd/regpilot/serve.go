package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/regpilot/pkg/api"
	"github.com/entrhq/regpilot/pkg/auth"
	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/entrhq/regpilot/pkg/browser"
	"github.com/entrhq/regpilot/pkg/config"
	"github.com/entrhq/regpilot/pkg/license"
	"github.com/entrhq/regpilot/pkg/logging"
	"github.com/entrhq/regpilot/pkg/types"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveStore     string
	serveBrowser   string
	serveDebug     bool
	serveLogStdout bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the automation HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		var overrides config.Overrides
		if cmd.Flags().Changed("addr") {
			overrides.Addr = &serveAddr
		}
		if cmd.Flags().Changed("store") {
			driver := config.StoreDriver(serveStore)
			overrides.StoreDriver = &driver
		}
		if cmd.Flags().Changed("browser") {
			mode := config.BrowserMode(serveBrowser)
			overrides.BrowserMode = &mode
		}
		if cmd.Flags().Changed("debug") {
			overrides.Debug = &serveDebug
		}

		cfg, err := loadConfig(overrides)
		if err != nil {
			return err
		}
		if serveLogStdout {
			cfg.Logging.Stdout = true
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveStore, "store", "", "Store driver: memory, sqlite or mongo")
	serveCmd.Flags().StringVar(&serveBrowser, "browser", "", "Browser mode: playwright or simulated")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug mode")
	serveCmd.Flags().BoolVar(&serveLogStdout, "log-stdout", false, "Write logs to stdout instead of ~/.regpilot/logs")
}

func newLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	var logger *logging.Logger
	if cfg.Stdout {
		logger = logging.New("regpilot", os.Stdout)
	} else {
		var err error
		logger, err = logging.NewLogger("regpilot")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	return logger, nil
}

// eventLogger writes orchestrator events to the log.
func eventLogger(logger *logging.Logger) automation.EventEmitter {
	return func(e *types.SessionEvent) {
		switch e.Type {
		case types.EventTypeOTPRequest, types.EventTypeSessionEnded:
			logger.Infof("%s", e)
		default:
			logger.Debugf("%s", e)
		}
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Close()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("opening %s store", cfg.Store.Driver)
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warnf("failed to close store: %v", err)
		}
	}()

	if cfg.Store.SeedFile != "" {
		n, err := license.Seed(ctx, store, cfg.Store.SeedFile)
		if err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		logger.Infof("seeded %d business profiles from %s", n, cfg.Store.SeedFile)
	}

	jwtManager, err := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL.Std())
	if err != nil {
		return err
	}

	manager, err := browser.NewManager(cfg.Browser, logger.Component("browser"))
	if err != nil {
		return err
	}

	orch, err := automation.New(automation.Options{
		Store:     store,
		NewDriver: manager.NewDriver,
		Config:    cfg.Automation,
		Logger:    logger.Component("automation"),
		OnEvent:   eventLogger(logger.Component("events")),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewRouter(api.Deps{
			Orchestrator:   orch,
			JWT:            jwtManager,
			Store:          store,
			Logger:         logger.Component("http"),
			AllowedOrigins: cfg.Server.AllowedOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("regpilot %s listening on %s (browser=%s, store=%s)", version, cfg.Server.Addr, cfg.Browser.Mode, cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Infof("shutting down")
	case serveErr = <-errCh:
		logger.Errorf("server stopped: %v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace.Std())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("orchestrator shutdown: %v", err)
	}
	if err := manager.Shutdown(); err != nil {
		logger.Warnf("browser shutdown: %v", err)
	}
	return serveErr
}
