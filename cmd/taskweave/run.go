package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskweave/taskweave/internal/bus"
	"github.com/taskweave/taskweave/internal/config"
	"github.com/taskweave/taskweave/internal/engine"
	"github.com/taskweave/taskweave/internal/state"
)

// notificationRetention bounds how long archived notifications are kept.
const notificationRetention = 30 * 24 * time.Hour

var (
	runConfigPath string
	runVerbose    bool
	runNoPersist  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the coordination engine",
	Long: `Start the coordination engine with the configured agent roster.

The engine runs until interrupted. While running it sweeps idle
connections and stale file locks, routes notifications, and archives
terminal handoffs, resolved conflicts, and persistent notifications to
the project database.

The agent roster is hot-reloaded when the project config file changes.`,
	RunE: runEngine,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to config file (overrides discovery)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print bus events to stdout")
	runCmd.Flags().BoolVar(&runNoPersist, "no-persist", false, "Disable the audit database")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(cfg.Agents) == 0 {
		return fmt.Errorf("no agents configured; add an agents section to %s", config.GetUserConfigPath())
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	logger := engine.NewDebugLoggerForProject(cwd)
	defer logger.Close()

	var store *state.DB
	if !runNoPersist {
		store, err = state.OpenProject(cwd)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrate audit database: %w", err)
		}
		if purged, err := store.PurgeOldNotifications(notificationRetention); err != nil {
			logger.Log("purge archived notifications: %v", err)
		} else if purged > 0 {
			logger.Log("purged %d archived notifications", purged)
		}
	}

	executor, err := createExecutor(cfg)
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		Config:    cfg,
		Executor:  executor,
		Deliverer: stdoutDeliverer(runVerbose),
		Store:     store,
		Logger:    logger,
	})
	if err := eng.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	// Hot-reload the roster when the project config changes.
	if projectCfg := config.GetProjectConfigPath(); projectCfg != "" {
		watcher, err := config.WatchRoster(projectCfg, func(agents []config.AgentConfig) {
			if err := eng.ApplyRoster(agents); err != nil {
				logger.Log("roster reload failed: %v", err)
			}
		})
		if err != nil {
			logger.Log("roster watch unavailable: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	fmt.Printf("%s engine running with %d agents (ctrl-c to stop)\n",
		color.GreenString("✓"), eng.Registry().Count())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	fmt.Println("\nshutting down")
	return nil
}

// loadConfig loads from the explicit --config path or the usual
// discovery chain.
func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}

// stdoutDeliverer prints delivered events when verbose, otherwise
// discards them. History and counters work either way.
func stdoutDeliverer(verbose bool) bus.Deliverer {
	return bus.DelivererFunc(func(connectionID string, ev bus.Event) error {
		if verbose {
			fmt.Printf("[%s] %s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.AgentRole, ev.Message)
		}
		return nil
	})
}
