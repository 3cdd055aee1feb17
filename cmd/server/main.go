/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the calendar engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Build the zap logger
  3. Open the store (memory, SQLite or Postgres)
  4. Load allocation templates
  5. Create API handler, router and rollover scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -env     Path of the .env file (default: .env)
  -port    HTTP server port (overrides PORT)
  -driver  memory | sqlite | postgres (overrides DB_DRIVER)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/calendar.db"

  # Run against Postgres
  DATABASE_URL=postgres://localhost/calendar ./server -driver=postgres

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - api/scheduler.go: Allocation rollover
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/slot-calendar/api"
	"github.com/warp/slot-calendar/config"
	"github.com/warp/slot-calendar/factory"
	"github.com/warp/slot-calendar/store/memory"
	"github.com/warp/slot-calendar/store/postgres"
	"github.com/warp/slot-calendar/store/sqlite"
)

func main() {
	// Flags
	envFile := flag.String("env", ".env", "Path of the .env file")
	port := flag.Int("port", 0, "HTTP server port (overrides PORT)")
	driver := flag.String("driver", "", "Store driver: memory, sqlite or postgres (overrides DB_DRIVER)")
	dbPath := flag.String("db", "", "SQLite database path (overrides DB_PATH)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *driver != "" {
		cfg.DBDriver = *driver
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting",
		zap.String("env", cfg.Environment),
		zap.String("driver", cfg.DBDriver),
		zap.Bool("env_file", cfg.EnvFileLoaded))

	// Initialize store
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeStore()

	templates, err := factory.NewAllocationFactory().LoadTemplates(cfg.AllocationTemplate)
	if err != nil {
		return err
	}

	// Initialize handler
	handler := api.NewHandler(store, api.Options{
		Templates: templates,
		Logger:    logger,
	})
	router := api.NewRouter(handler, cfg.CORSOrigins...)

	scheduler := api.NewRolloverScheduler(handler.Leave, logger)
	scheduler.Schedule = cfg.RolloverSchedule
	scheduler.Enabled = cfg.RolloverEnabled
	if err := scheduler.Start(); err != nil {
		return err
	}
	defer scheduler.Stop()

	// The websocket stream keeps connections open, so there is no write
	// timeout; handlers finish quickly on their own.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	handler.Bus.Close()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(cfg *config.Config) (api.Store, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return memory.New(), func() {}, nil
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		store, pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		store, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
}
