// Package main is the CLI entry point for focusmon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/synapse-app/focusmon/internal/config"
	"github.com/synapse-app/focusmon/internal/forward"
	"github.com/synapse-app/focusmon/internal/inspector"
	"github.com/synapse-app/focusmon/internal/monitor"
	"github.com/synapse-app/focusmon/internal/rules"
	"github.com/synapse-app/focusmon/internal/storage"
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
	Use:   "focusmon",
	Short: "Focus session tracker - records work time and flags distracting apps",
	Long: `focusmon watches which application holds input focus, classifies it
against your whitelist and blacklist, and records focus sessions and
per-app usage locally. Blacklisted apps in focus trigger a notification;
nothing is ever killed automatically.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring daemon in the foreground",
	Long: `Starts the monitoring loop: polls the focused window, classifies it,
and persists sessions and usage events. Edits made to the rules file by
other focusmon invocations are picked up live. Stop with Ctrl-C; the
open session is finalized and flushed before exit.`,
	RunE: runRun,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show today's focus statistics",
	RunE:  runStats,
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List running applications",
	Long:  `Lists running applications as (display name, process identifier) pairs, for building rule lists.`,
	RunE:  runApps,
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the current app rules",
	RunE:  runRulesShow,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Replace the whitelist and blacklist",
	Long: `Replaces both rule lists atomically. A running daemon reloads the new
rules within a tick; already-recorded events are never reclassified.`,
	RunE: runRulesSet,
}

var snoozeCmd = &cobra.Command{
	Use:   "snooze <process> <duration>",
	Short: "Suppress block notifications for a process",
	Long: `Suspends blacklist enforcement for the process for the given duration,
e.g. 'focusmon snooze chrome.exe 30m'. Snoozing again extends the
expiry, never shortens it.`,
	Args: cobra.ExactArgs(2),
	RunE: runSnooze,
}

var killCmd = &cobra.Command{
	Use:   "kill <process>",
	Short: "Terminate every process matching the identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

var (
	configPath   string
	setWhitelist []string
	setBlacklist []string
	jsonOutput   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to config file")
	rulesSetCmd.Flags().StringSliceVar(&setWhitelist, "whitelist", nil, "Comma-separated work process identifiers")
	rulesSetCmd.Flags().StringSliceVar(&setBlacklist, "blacklist", nil, "Comma-separated distracting process identifiers")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rulesCmd.AddCommand(rulesSetCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(appsCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(snoozeCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := createLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	keyHex, err := storageKey(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.Path, keyHex, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ruleStore := rules.NewStore(cfg.Rules.Path, logger)
	watcher, err := rules.NewWatcher(ruleStore, logger)
	if err != nil {
		return fmt.Errorf("watch rules file: %w", err)
	}
	defer watcher.Close()

	insp := inspector.New(logger)

	monCfg := monitor.Config{
		PollInterval:         cfg.PollInterval(),
		IdleTimeout:          cfg.IdleTimeout(),
		FailureWarnThreshold: cfg.Monitor.FailureWarnThreshold,
		SummaryInterval:      cfg.SummaryInterval(),
		NotificationBuffer:   cfg.Monitor.NotificationBuffer,
	}
	svc := monitor.NewService(monCfg, insp, ruleStore, store, logger)

	if err := svc.StartMonitoring(); err != nil {
		return fmt.Errorf("start monitoring: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Sync.Enabled {
		creds, err := forward.CredentialsFromEnv()
		if err != nil {
			return fmt.Errorf("sync enabled but %w", err)
		}
		fwd := forward.New(creds, logger)
		runner := forward.NewRunner(store, fwd, cfg.SyncInterval(), time.Now(), logger)
		go runner.Run(ctx)
	}

	go func() {
		for notice := range svc.Notifications() {
			fmt.Printf("[%s] blocked app in focus: %s\n",
				notice.At.Format("15:04:05"), inspector.DisplayName(notice.ProcessName))
		}
	}()

	fmt.Println("focusmon is running. Press Ctrl-C to stop.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("received shutdown signal")
	cancel()
	if err := svc.StopMonitoring(); err != nil {
		return fmt.Errorf("stop monitoring: %w", err)
	}
	fmt.Println("focusmon stopped.")
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := zap.NewNop()

	keyHex, err := storageKey(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(cfg.Storage.Path, keyHex, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	summary, err := store.AggregateToday(cmd.Context())
	if err != nil {
		return fmt.Errorf("aggregate stats: %w", err)
	}

	fmt.Println("\n=== Today ===")
	fmt.Printf("Focus time:     %s\n", (time.Duration(summary.TotalWorkSeconds) * time.Second).String())
	fmt.Printf("Focus sessions: %d\n", summary.SessionCount)
	fmt.Printf("Distractions:   %d\n", summary.TotalDistractions)
	fmt.Println("=============")
	return nil
}

func runApps(cmd *cobra.Command, args []string) error {
	insp := inspector.New(zap.NewNop())
	apps, err := insp.ListProcesses(cmd.Context())
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	fmt.Println("\n=== Running Applications ===")
	for _, app := range apps {
		fmt.Printf("  %-30s %s\n", app.DisplayName, app.ProcessName)
	}
	fmt.Printf("\n%d applications\n", len(apps))
	return nil
}

func runRulesShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ruleStore := rules.NewStore(cfg.Rules.Path, zap.NewNop())
	set := ruleStore.Rules()

	fmt.Println("\n=== App Rules ===")
	fmt.Println("Whitelist (work):")
	for _, name := range set.Whitelist {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Println("Blacklist (distraction):")
	for _, name := range set.Blacklist {
		fmt.Printf("  - %s\n", name)
	}
	if len(set.Snoozes) > 0 {
		fmt.Println("Active snoozes:")
		now := time.Now()
		for name, until := range set.Snoozes {
			if until.After(now) {
				fmt.Printf("  - %s (%s left)\n", name, until.Sub(now).Round(time.Second))
			}
		}
	}
	fmt.Println("=================")
	return nil
}

func runRulesSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ruleStore := rules.NewStore(cfg.Rules.Path, zap.NewNop())
	if err := ruleStore.Replace(setWhitelist, setBlacklist); err != nil {
		return fmt.Errorf("update rules: %w", err)
	}

	fmt.Printf("Rules updated: %d work apps, %d blocked apps\n",
		len(setWhitelist), len(setBlacklist))
	return nil
}

func runSnooze(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	d, err := time.ParseDuration(args[1])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", args[1], err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ruleStore := rules.NewStore(cfg.Rules.Path, zap.NewNop())
	if err := ruleStore.Snooze(name, d); err != nil {
		return fmt.Errorf("snooze %q: %w", name, err)
	}

	fmt.Printf("%s snoozed for %s\n", name, d)
	return nil
}

func runKill(cmd *cobra.Command, args []string) error {
	insp := inspector.New(zap.NewNop())
	if err := insp.Terminate(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("kill %q: %w", args[0], err)
	}
	fmt.Printf("Terminated %s\n", args[0])
	return nil
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("focusmon %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}

// storageKey resolves the database encryption key: an inline key wins,
// then the key file, otherwise encryption is off.
func storageKey(cfg config.Config) (string, error) {
	if cfg.Storage.KeyHex != "" {
		return cfg.Storage.KeyHex, nil
	}
	if cfg.Storage.KeyFile == "" {
		return "", nil
	}
	keyHex, err := storage.NewKeyFile(cfg.Storage.KeyFile).Ensure()
	if err != nil {
		return "", fmt.Errorf("storage key: %w", err)
	}
	return keyHex, nil
}

func createLogger(cfg config.LoggingConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Path != "" {
		zapCfg.OutputPaths = []string{cfg.Path}
		zapCfg.ErrorOutputPaths = []string{cfg.Path}
	}
	if lvl, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	zapCfg.EncoderConfig.TimeKey = "time"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}
