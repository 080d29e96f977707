package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"telos/internal/agent"
	"telos/internal/bridge"
	"telos/internal/config"
	"telos/internal/fixtures"
	"telos/internal/orchestrator"
	"telos/internal/server"
	"telos/internal/state"
	"telos/internal/store"
	"telos/internal/types"
)

var (
	verbose bool
	rootDir string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "telos",
	Short: "telos - intent-processing daemon",
	Long: `telos watches an intent inbox, reasons over each intent with a ReAct
agent, and archives the outcome into journals, standard procedures and
layered memory. All durable state is plain files under <root>/data.

Point it at a root with --root or TELOS_ROOT; run "telos bootstrap" first
to seed a fresh root.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the daemon: beat loop, inbox watcher and HTTP API",
	RunE:  runServe,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed a telos root with configuration and a sample intent",
	Long: `Writes working configuration (stub LLM provider) and one sample
intake record into the root directory. Files that already exist are never
overwritten.`,
	RunE: runBootstrap,
}

var beatCmd = &cobra.Command{
	Use:   "beat",
	Short: "Run a single beat cycle and exit",
	Long: `Loads configuration, runs one ingest and drain pass over the data
directory, and exits. Useful for cron-style scheduling without the daemon.`,
	RunE: runBeat,
}

func resolveRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	if env := os.Getenv("TELOS_ROOT"); env != "" {
		return env, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolving working directory: %w", err)
	}
	return cwd, nil
}

func buildApp(cmd *cobra.Command) (*state.AppContext, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromRoot(root)
	if err != nil {
		return nil, fmt.Errorf("loading configuration (run \"telos bootstrap\" for a fresh root): %w", err)
	}
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening data directory: %w", err)
	}
	rt, err := agent.NewRuntimeFromConfig(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("building llm runtime: %w", err)
	}
	logger.Info("telos root loaded",
		zap.String("root", root),
		zap.String("provider", cfg.LLM.Provider))
	return state.New(cfg, st, rt), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(app, logger)

	watcher, err := orchestrator.NewInboxWatcher(orch, app.Config().DataDir, logger)
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}

	srv := server.New(app, orch, logger)

	var tgBridge *bridge.TelegramBridge
	if tg := app.Config().Telegram; tg != nil {
		tgBridge = bridge.NewTelegramBridge(app, orch, *tg, logger)
		orch.SetOutcomeNotifier(func(ctx context.Context, intent types.Intent, finalAnswer string) error {
			return tgBridge.NotifyOutcome(ctx, fmt.Sprintf("%s\n%s", intent.Summary, finalAnswer))
		})
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return orch.Run(ctx) })
	group.Go(func() error { return watcher.Run(ctx) })
	group.Go(func() error { return srv.Run(ctx) })
	if tgBridge != nil {
		group.Go(func() error { return tgBridge.Run(ctx) })
	}

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("telos stopped")
	return nil
}

func runBeat(cmd *cobra.Command, args []string) error {
	app, err := buildApp(cmd)
	if err != nil {
		return err
	}
	orch := orchestrator.New(app, logger)
	return orch.RunOnce(cmd.Context())
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	written, err := fixtures.Install(root)
	if err != nil {
		return fmt.Errorf("seeding root: %w", err)
	}
	if _, err := store.Open(filepath.Join(root, "data")); err != nil {
		return fmt.Errorf("preparing data layout: %w", err)
	}
	if len(written) == 0 {
		fmt.Println("Root already seeded, nothing written.")
		return nil
	}
	for _, path := range written {
		fmt.Printf("wrote %s\n", path)
	}
	fmt.Println("Seeded. Start the daemon with: telos serve")
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "telos root directory (default: TELOS_ROOT or the working directory)")
	rootCmd.AddCommand(serveCmd, beatCmd, bootstrapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
