package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanchriswhite/navbar-watcher/internal/api"
	"github.com/bryanchriswhite/navbar-watcher/internal/autohide"
	"github.com/bryanchriswhite/navbar-watcher/internal/bar"
	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/bryanchriswhite/navbar-watcher/internal/overlay"
	"github.com/bryanchriswhite/navbar-watcher/internal/window"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the compositor and show or hide the bar",
	Long: `Detect the running compositor, take a snapshot of its workspaces and
follow its event stream, showing the bar while the focused workspace has
windows and hiding it otherwise.

This is also what runs when navbar-watcher is invoked without a command.
The watcher exits when the compositor closes its event stream.`,
	Example: `  # Run with the detected compositor
  navbar-watcher watch

  # Force the sway backend with debug logging
  navbar-watcher watch --compositor sway --log-level debug

  # Expose status on a local port
  navbar-watcher watch --status-addr 127.0.0.1:7878`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// openBackend selects and constructs the compositor backend
func openBackend(cfg *config.Config) (window.Backend, error) {
	family, err := window.ParseFamily(cfg.Compositor, os.Getenv)
	if err != nil {
		return nil, err
	}
	backend, err := window.New(family, window.Options{QueryTimeout: cfg.QueryTimeout})
	if err != nil {
		return nil, err
	}
	logger.Get().Info().Str("backend", backend.Name()).Msg("Compositor backend selected")
	return backend, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctrl, err := bar.NewController(cfg.Bar, bar.NewOS())
	if err != nil {
		return err
	}

	probes := make([]overlay.Probe, 0, len(cfg.Overlays.Names)+1)
	for _, name := range cfg.Overlays.Names {
		probes = append(probes, overlay.NewLayerProbe(backend, name))
	}
	if cfg.Overlays.DBus.Enabled {
		dbusProbe := overlay.NewDBusProbe(cfg.Overlays.DBus)
		defer dbusProbe.Close()
		probes = append(probes, dbusProbe)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []autohide.Option{
		autohide.WithOverlays(overlay.NewWatcher(cfg.Overlays.PollInterval, probes...)),
	}

	if cfg.StatusAddr != "" {
		hub := api.NewHub()
		server := api.NewServer(hub, configMgr)
		if err := server.Start(cfg.StatusAddr); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
		opts = append(opts, autohide.WithPublisher(hub))
	}

	go func() {
		err := configMgr.Watch(ctx, func(c *config.Config) {
			if _, ok := flagOverride("log_level"); !ok {
				logger.SetLevel(c.LogLevel)
			}
		})
		if err != nil {
			logger.WithComponent("config").Warn().Err(err).Msg("Config reload disabled")
		}
	}()

	loop := autohide.New(window.NewManager(backend), ctrl, cfg.Bar.Name, opts...)
	err = loop.Run(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Get().Info().Msg("Shutting down")
	}
	return err
}
