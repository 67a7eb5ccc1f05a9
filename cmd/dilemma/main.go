// Command dilemma walks through ethics cases in the terminal against the
// embedded SQLite store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harshitk-cp/dilemma/internal/bootstrap"
	"github.com/Harshitk-cp/dilemma/internal/cases"
	"github.com/Harshitk-cp/dilemma/internal/config"
	"github.com/Harshitk-cp/dilemma/internal/service"
	"github.com/Harshitk-cp/dilemma/internal/store/local"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	casesDir string
	dbPath   string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:           "dilemma",
	Short:         "Explore professional-ethics cases one decision at a time",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(func() { _ = config.Load() })

	rootCmd.PersistentFlags().StringVar(&casesDir, "cases", "", "directory of YAML case files (default $CASES_DIR or ./cases)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $SQLITE_PATH or ./dilemma.db)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(casesCmd, playCmd, analysisCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// engine bundles what the interactive commands need.
type engine struct {
	svc    *service.ExplorationService
	store  *local.SessionStore
	logger *zap.Logger
}

func (e *engine) Close() {
	_ = e.store.Close()
	_ = e.logger.Sync()
}

func resolvedCasesDir() string {
	if casesDir != "" {
		return casesDir
	}
	return config.CasesDir()
}

func openEngine() (*engine, error) {
	logger, err := bootstrap.NewLogger(logLevel)
	if err != nil {
		return nil, err
	}

	provider, err := cases.NewProvider(resolvedCasesDir(), logger)
	if err != nil {
		return nil, err
	}

	path := dbPath
	if path == "" {
		path = config.SQLitePath()
	}
	st, err := local.NewSessionStore(path)
	if err != nil {
		return nil, err
	}

	timeout := config.GenerationTimeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	svc := service.NewExplorationService(st, provider, bootstrap.NewLLMClient(logger), timeout, logger)
	return &engine{svc: svc, store: st, logger: logger}, nil
}
