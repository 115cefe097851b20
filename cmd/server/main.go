/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the woodland officer review service. Builds the
  shared dependency graph once and hands it to the selected command.

COMMANDS:
  serve     Run the HTTP API (default)
  seed      Load plan fixtures into the database
  import    Import proposed felling and restocking into the confirmed copy

CONFIGURATION:
  Environment variables (DATABASE_PATH, PORT, BIND_IP, DEBUG,
  ALLOWED_ORIGINS, NOTIFY_FROM, AUDIT_SOURCE), optionally overlaid by the
  YAML file given with --config.

EXAMPLES:
  # Run with file database
  DATABASE_PATH=./data/review.db ./server serve

  # Seed fixtures, then import every application
  ./server seed ./testdata/plans
  ./server import --all --user 3b0c...

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forestry/woodland-review/audit"
	"github.com/forestry/woodland-review/config"
	"github.com/forestry/woodland-review/logger"
	"github.com/forestry/woodland-review/notify"
	"github.com/forestry/woodland-review/review"
	"github.com/forestry/woodland-review/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Woodland officer review of confirmed felling and restocking",
	Long: `Runs the confirmed felling and restocking reconciliation service.

Without a subcommand the HTTP API is started.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file overlaid on the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// services is the wired dependency graph shared by every command.
type services struct {
	cfg     *config.Config
	log     *slog.Logger
	store   *sqlite.Store
	audit   *audit.FanOut
	tracker *review.Tracker
	engine  *review.Engine
}

func newServices() (*services, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.WithDebug(cfg.Debug)

	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sink := audit.NewFanOut(store, audit.NewLogSink(logger.Component("audit")))
	deps := review.Deps{
		Store:    store,
		Proposed: store,
		Apps:     store,
		Audit:    sink,
		Notifier: notify.NewLogSender(logger.Component("notify"), cfg.NotifyFrom),
		Users:    store,
		Logger:   logger.Component("review"),
		Source:   cfg.AuditSource,
	}
	tracker := review.NewTracker(deps)

	return &services{
		cfg:     cfg,
		log:     log,
		store:   store,
		audit:   sink,
		tracker: tracker,
		engine:  review.NewEngine(deps, tracker),
	}, nil
}

func (s *services) Close() error {
	return s.store.Close()
}
