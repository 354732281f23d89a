// Package main is the CLI entry point for stridegate.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/stridegate/stridegate/internal/api"
	"github.com/stridegate/stridegate/internal/config"
	"github.com/stridegate/stridegate/internal/daemon"
	"github.com/stridegate/stridegate/internal/detector"
	"github.com/stridegate/stridegate/internal/domain"
	"github.com/stridegate/stridegate/internal/engine"
	"github.com/stridegate/stridegate/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "stridegate",
	Short: "Activity-gated website blocker",
	Long: `stridegate gates distracting websites behind your daily activity goal.
Until you hit your step count or gym time, navigations to blocked sites
are suppressed in the attached browsing context.

Blocking is containment, not a security boundary: a determined user can
always open a new tab. The point is the speed bump.`,
	Version: Version,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the tracker daemon and status API",
	Long: `Starts the tracker daemon in the foreground: it feeds GPS samples into
the gym session detector, reconciles progress with the policy engine every
few minutes, and serves the localhost status API for UI surfaces.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current goal progress and gate state",
	RunE:  runStatus,
}

var stepsCmd = &cobra.Command{
	Use:   "steps <count>",
	Short: "Record today's step count (manual entry)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSteps,
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Ask whether a URL would be blocked right now",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Print the persisted blocking settings",
	RunE:  runSettings,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "Path to config file")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stepsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(versionCmd)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "stridegate.yaml"
	}
	return filepath.Join(home, ".stridegate", "config.yaml")
}

// openStore builds the configured slot store: plain JSON files by default,
// SQLCipher when encrypted_store is set.
func openStore(cfg config.Config) (domain.SlotStore, error) {
	if !cfg.EncryptedStore {
		return infra.NewFileSlotStore(cfg.DataDir)
	}
	key, err := infra.NewFileKeyProvider(cfg.DataDir).EnsureKey()
	if err != nil {
		return nil, fmt.Errorf("failed to obtain store key: %w", err)
	}
	return infra.NewEncryptedSlotStore(cfg.DataDir, key)
}

func buildEngine(cfg config.Config, store domain.SlotStore, logger *zap.Logger) *engine.Engine {
	return engine.New(store, logger,
		engine.WithStrictLockEnforcement(cfg.EnforceStrictLock),
		engine.WithActivitySource(infra.NewStepSlotSource(store)))
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.DataDir)
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eng := buildEngine(cfg, store, logger)
	det := detector.New(cfg.Geofence, store, logger)

	var location domain.LocationProvider
	if cfg.SampleFile != "" {
		location = infra.NewReplaySource(cfg.SampleFile, cfg.SampleInterval.Std(), cfg.LoopSamples)
	}

	trackerCfg := daemon.DefaultTrackerConfig()
	trackerCfg.ReconcileInterval = cfg.ReconcileInterval.Std()
	trackerCfg.ProcessCheckInterval = cfg.ProcessCheckInterval.Std()
	trackerCfg.BrowserPattern = cfg.BrowserPattern

	tracker := daemon.NewTracker(trackerCfg, eng, det, location, infra.NewProcessWatch(), nil, logger)

	server := api.New(eng, infra.NewFavoritesStore(store), infra.NewStepSlotSource(store), logger)

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	go func() {
		if err := server.Start(cfg.APIAddr); err != nil {
			logger.Error("api server failed", zap.Error(err))
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Printf("stridegate running (api %s, data %s)\n", cfg.APIAddr, cfg.DataDir)
	err = tracker.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := loadEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	st := eng.Status()

	fmt.Println("\n=== stridegate Status ===")
	fmt.Printf("Blocking enabled: %v\n", st.Enabled)
	fmt.Printf("Gate: %s\n", gateWord(st.IsBlocked))
	fmt.Printf("Reason: %s\n", st.Reason)
	fmt.Printf("Tracking mode: %s\n", st.TrackingMode)
	fmt.Printf("Steps: %d / %d\n", st.CurrentSteps, st.DailyStepGoal)
	fmt.Printf("Gym minutes: %.0f / %.0f\n", st.CurrentGymMinutes, st.GymGoalMinutes)
	if st.StrictMode {
		fmt.Printf("Strict mode: locked for another %s\n", st.StrictLockRemaining.Round(time.Hour))
	}
	fmt.Println("=========================")
	return nil
}

func gateWord(blocked bool) string {
	if blocked {
		return "CLOSED (sites blocked)"
	}
	return "OPEN"
}

func runSteps(cmd *cobra.Command, args []string) error {
	var steps int
	if _, err := fmt.Sscanf(args[0], "%d", &steps); err != nil || steps < 0 {
		return fmt.Errorf("invalid step count: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	src := infra.NewStepSlotSource(store)
	if err := src.RecordSteps(steps); err != nil {
		return fmt.Errorf("failed to record steps: %w", err)
	}
	fmt.Printf("Recorded %d steps for today. The daemon picks it up on its next reconcile.\n", steps)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := loadEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	// Progress isn't live here, so reconcile from the slots first.
	eng.Reconcile()

	if eng.ShouldBlock(args[0]) {
		fmt.Printf("%s -> BLOCKED\n", args[0])
	} else {
		fmt.Printf("%s -> allowed\n", args[0])
	}
	return nil
}

func runSettings(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := loadEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := json.MarshalIndent(eng.Settings(), "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// loadEngine builds a short-lived engine for one-shot CLI commands.
func loadEngine() (*engine.Engine, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	logger := zap.NewNop()
	eng := buildEngine(cfg, store, logger)
	return eng, func() { _ = store.Close() }, nil
}

func createLogger(dataDir string) *zap.Logger {
	logCfg := zap.NewProductionConfig()
	logCfg.OutputPaths = []string{filepath.Join(dataDir, "stridegate.log"), "stdout"}
	logCfg.ErrorOutputPaths = []string{filepath.Join(dataDir, "stridegate.error.log"), "stderr"}
	logCfg.EncoderConfig.TimeKey = "time"
	logCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logCfg.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n", Version, Commit, BuildTime)
		return
	}
	fmt.Printf("stridegate %s (commit %s, built %s)\n", Version, Commit, BuildTime)
}
