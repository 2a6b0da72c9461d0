// Package main is the CLI entry point for sbhd, the storage ballast
// helper daemon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/focusd/sbh/internal/config"
	"github.com/focusd/sbh/internal/daemon"
	"github.com/focusd/sbh/internal/publisher"
	"github.com/focusd/sbh/internal/supervisor"
)

var (
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

// Exit codes per spec.md §7: 0 success, 1 transient failure or pressure
// unresolved, 2 configuration/usage error, 3 supervisor gave up respawning
// (raised directly by internal/daemon, not through here).
const (
	exitOK          = 0
	exitTransient   = 1
	exitConfigUsage = 2
)

// configError marks an error as a configuration/usage failure so main can
// map it to exit code 2 instead of the default transient-failure code.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, &configError{err}
	}
	return cfg, nil
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}

	var ce *configError
	if errors.As(err, &ce) {
		os.Exit(exitConfigUsage)
	}
	os.Exit(exitTransient)
}

var rootCmd = &cobra.Command{
	Use:   "sbhd",
	Short: "Storage ballast helper daemon",
	Long: `sbhd defends a host against disk exhaustion: it samples free space,
forecasts time-to-full, releases pre-allocated ballast files under
pressure, and runs a safety-gated scanner/deleter over scratch
directories when ballast alone isn't enough.`,
	Version: Version,
}

var (
	configPath string
	jsonOutput bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	RunE:  runRun,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last published state snapshot",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Path to sbhd.toml (defaults built in if omitted)")
	statusCmd.Flags().StringVar(&configPath, "config", "", "Path to sbhd.toml (defaults built in if omitted)")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := createLogger(cfg.Paths.DataDir)
	defer logger.Sync()

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("construct daemon: %w", err)
	}
	daemon.Version = Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := supervisor.WatchSignals(logger, supervisor.SignalHandlers{
		Shutdown:  cancel,
		ForceScan: d.ForceScan,
		Reload: func() {
			reloaded, err := config.Load(configPath)
			if err != nil {
				logger.Error("reload failed, keeping previous config", zap.Error(err))
				return
			}
			if err := d.Reload(reloaded); err != nil {
				logger.Error("reload rejected", zap.Error(err))
			}
		},
	})
	defer stop()

	return d.Run(ctx)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	statePath := cfg.Paths.StateFile
	data, err := os.ReadFile(statePath)
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	stale, _ := publisher.IsStale(statePath, timeNow())
	if stale {
		fmt.Println("warning: state file is stale, sbhd may not be running")
	}

	var pretty map[string]any
	if err := json.Unmarshal(data, &pretty); err != nil {
		return fmt.Errorf("parse state file: %w", err)
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

func timeNow() (t time.Time) { return time.Now() }

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n", Version, Commit, BuildTime)
		return
	}
	fmt.Printf("sbhd version %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}

// createLogger mirrors the teacher's production logger setup: file-backed
// output with ISO8601 timestamps, falling back to zap.NewProduction if the
// log files can't be opened (e.g. data dir not yet writable).
func createLogger(dataDir string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{dataDir + "/sbhd.log", "stderr"}
	cfg.ErrorOutputPaths = []string{dataDir + "/sbhd.error.log", "stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

// init ignores SIGPIPE so a write to a closed pipe (e.g. `sbhd status | head`)
// returns an error instead of killing the process.
func init() {
	signal.Ignore(syscall.SIGPIPE)
}
