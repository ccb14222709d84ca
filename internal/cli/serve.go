package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/quiver/internal/config"
	"github.com/harun/quiver/internal/observability"
	"github.com/harun/quiver/internal/tracing"
	"github.com/harun/quiver/pkg/gateway"
	"github.com/harun/quiver/pkg/toolmanager"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Quiver service",
	Long: `Run the Quiver service in the foreground: the progress gateway and
metrics endpoint, scheduled MCP tool rediscovery, and config hot reload.
Runs until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()
	zl := log.Zerolog()

	if err := tracing.InitOpenTelemetry("quiver", cfg.Tracing.DebugExport); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	if err := observability.InitAuditLogger(cfg.Audit.Path); err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer observability.GetAuditLogger().Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var rtMu sync.Mutex
	rt, err := buildRuntime(ctx, cfg, log, toolmanager.Overrides{})
	if err != nil {
		return err
	}
	defer func() {
		rtMu.Lock()
		rt.Close()
		rtMu.Unlock()
	}()

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw, err = gateway.NewServer(gateway.Config{
			Host:         cfg.Gateway.Host,
			Port:         cfg.Gateway.Port,
			SharedSecret: cfg.Gateway.SharedSecret,
		}, log.Zerolog())
		if err != nil {
			return err
		}
		if err := gw.Start(); err != nil {
			return err
		}
		defer gw.Stop()
		rt.manager.SetProgressReporter(gw.Hub())
		rt.subManager.SetProgressReporter(gw.Hub())
	}

	// Hot reload swaps the whole runtime. Dispatches already in flight
	// finish on the manager they started with.
	watcher, err := config.NewWatcher(config.NewLoader(cfgFile), log.Component("config"), func(next *config.Config) {
		rtMu.Lock()
		defer rtMu.Unlock()
		fresh, err := buildRuntime(ctx, next, log, toolmanager.Overrides{})
		if err != nil {
			zl.Warn().Err(err).Msg("Reloaded config produced no runtime; keeping previous")
			return
		}
		if gw != nil {
			fresh.manager.SetProgressReporter(gw.Hub())
			fresh.subManager.SetProgressReporter(gw.Hub())
		}
		old := rt
		rt = fresh
		old.Close()
	})
	if err != nil {
		zl.Warn().Err(err).Msg("Config watcher unavailable; hot reload disabled")
	} else {
		defer watcher.Stop()
	}

	zl.Info().
		Str("version", version).
		Bool("gateway", cfg.Gateway.Enabled).
		Int("tools", len(rt.manager.Tools())).
		Msg("Quiver is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		zl.Info().Str("signal", sig.String()).Msg("Shutting down")
	case <-ctx.Done():
	}
	return nil
}
