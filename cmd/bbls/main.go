package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jward/bbls"
	"github.com/jward/bbls/internal/config"
)

var (
	flagDB      string
	flagFormat  string
	flagConfig  string
	flagVerbose bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "bbls",
	Short:         "BitBake project scanner and symbol index",
	Long:          "bbls scans a BitBake build environment for layers, recipes, appends and classes, and indexes their declarations into a SQLite database for queries.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: .bbls/index.db next to bbls.toml)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to bbls.toml (default: searched upward from the current directory)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log scanner activity to stderr")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(queryCmd)
}

var flagForce bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the BitBake project and export the index",
	Long:  "Runs bitbake-layers and bitbake-getvar in the configured build environment, then writes the project snapshot and every declaration it names to the SQLite database.",
	Args:  cobra.NoArgs,
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and export from scratch")
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dbPath := resolveDBPath(configRoot(cfg))

	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dbDir, err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	engine, err := bbls.New(cfg, bbls.WithLogger(newLogger()))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	scanStart := time.Now()
	if err := engine.Rescan(ctx); err != nil {
		if errors.Is(err, bbls.ErrNoDriver) {
			return fmt.Errorf("scanning: %w (check [bitbake] in %s)", err, configName(cfg))
		}
		return fmt.Errorf("scanning: %w", err)
	}
	snap := engine.Snapshot()
	if len(snap.Layers) == 0 {
		return fmt.Errorf("scanning: no layers found in %s", cfg.BitBake.WorkingDirectory)
	}
	scanDuration := time.Since(scanStart)

	exportStart := time.Now()
	stats, err := engine.Export(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("exporting: %w", err)
	}
	exportDuration := time.Since(exportStart)

	bold := color.New(color.Bold)
	fmt.Fprintf(os.Stderr, "%s %d layers, %d recipes, %d classes in %s (scan: %s, export: %s)\n",
		bold.Sprint("Scanned"),
		len(snap.Layers), len(snap.Recipes), len(snap.Classes),
		time.Since(start).Round(time.Millisecond),
		scanDuration.Round(time.Millisecond),
		exportDuration.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Files: %d (indexed %d, unchanged %d, missing %d, removed %d)\n",
		stats.Files, stats.Indexed, stats.Skipped, stats.Missing, stats.Removed)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)
	return nil
}

// loadConfig reads --config, or the nearest bbls.toml above the current
// directory, or the defaults.
func loadConfig() (*config.Config, error) {
	if flagConfig != "" {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	cfg, err := config.Discover(cwd)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Path == "" {
		cfg.BitBake.WorkingDirectory = cwd
	}
	return cfg, nil
}

// configRoot returns the directory holding the configuration file, or the
// working directory when running on defaults.
func configRoot(cfg *config.Config) string {
	if cfg.Path != "" {
		return filepath.Dir(cfg.Path)
	}
	return cfg.BitBake.WorkingDirectory
}

func configName(cfg *config.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return config.FileName
}

// resolveDBPath returns the database path from the --db flag or the default.
func resolveDBPath(root string) string {
	if flagDB != "" {
		if filepath.IsAbs(flagDB) {
			return flagDB
		}
		return filepath.Join(root, flagDB)
	}
	return filepath.Join(root, ".bbls", "index.db")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
