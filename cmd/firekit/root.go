package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aretw0/firekit"
	"github.com/aretw0/firekit/internal/platform"
	"github.com/aretw0/firekit/pkg/core"
)

var (
	verbose    bool
	adapter    string
	dataPath   string
	format     string
	readOnly   bool
	versioning bool
	projectID  string
)

var rootCmd = &cobra.Command{
	Use:   "firekit",
	Short: "Typed document store toolkit",
	Long: `firekit reads and writes documents in any supported store
(memory, fs, sqlite, firestore). Settings come from firekit.toml,
FIREKIT_* environment variables and flags, in increasing priority.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	},
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&adapter, "adapter", "", "Store adapter: memory, fs, sqlite or firestore")
	flags.StringVar(&dataPath, "path", "", "Data directory (fs) or database file (sqlite)")
	flags.StringVar(&format, "format", "", "File format for new fs documents: json or yaml")
	flags.BoolVar(&readOnly, "read-only", false, "Open the fs store read-only")
	flags.BoolVar(&versioning, "versioning", false, "Commit every fs write to git")
	flags.StringVar(&projectID, "project", "", "Firestore project id")
}

// loadConfig merges firekit.toml, the environment and the flags that were set.
func loadConfig(cmd *cobra.Command) (*platform.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := platform.LocateConfig(wd)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter = adapter
	}
	if flags.Changed("path") {
		cfg.Path = dataPath
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("read-only") {
		cfg.ReadOnly = readOnly
	}
	if flags.Changed("versioning") {
		cfg.Versioning = versioning
	}
	if flags.Changed("project") {
		cfg.Firestore.ProjectID = projectID
	}
	return cfg, nil
}

// openStore opens the configured store. The caller closes it with closeStore.
func openStore(ctx context.Context, cmd *cobra.Command, extra ...firekit.Option) (core.Store, *platform.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	opts := append(cfg.Options(), firekit.WithLogger(slog.Default()))
	opts = append(opts, extra...)
	store, err := firekit.Open(ctx, cfg.DataPath(), opts...)
	if err != nil {
		return nil, nil, err
	}
	slog.Debug("store opened", "adapter", cfg.Adapter, "path", cfg.DataPath())
	return store, cfg, nil
}

func closeStore(store core.Store) {
	if c, ok := store.(core.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("closing store failed", "error", err)
		}
	}
}
