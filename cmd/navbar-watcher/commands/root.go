package commands

import (
	"fmt"
	"os"

	"github.com/bryanchriswhite/navbar-watcher/internal/api"
	"github.com/bryanchriswhite/navbar-watcher/internal/config"
	"github.com/bryanchriswhite/navbar-watcher/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "navbar-watcher",
		Short: "navbar-watcher - Show the status bar only when windows are open",
		Long: `navbar-watcher follows your compositor's event stream and keeps the
status bar visible only while the focused workspace has windows on it.

The bar is started if it is not running and toggled with a signal
(SIGUSR1 for waybar) otherwise. An open notification center keeps the
bar hidden until it closes.

Supported compositors: Hyprland, sway/i3, niri and EWMH window managers on X11.`,
		Version:       api.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatch,
	}
)

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/navbar-watcher/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human readable log output")
	rootCmd.PersistentFlags().String("compositor", "", "compositor backend (auto, hyprland, sway, niri, x11)")
	rootCmd.PersistentFlags().String("status-addr", "", "serve status over HTTP on this address, e.g. 127.0.0.1:7878")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.BindPFlag("compositor", rootCmd.PersistentFlags().Lookup("compositor"))
	viper.BindPFlag("status_addr", rootCmd.PersistentFlags().Lookup("status-addr"))
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// flagOverride returns a flag value bound to key when it was given
func flagOverride(key string) (string, bool) {
	if !viper.IsSet(key) {
		return "", false
	}
	v := viper.GetString(key)
	return v, v != ""
}

// loadConfig opens the config file, applies flag overrides and initializes
// the logger from the result
func loadConfig() (*config.Manager, *config.Config, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	if v, ok := flagOverride("log_level"); ok {
		configMgr.SetLogLevel(v)
	}
	if v, ok := flagOverride("compositor"); ok {
		configMgr.SetCompositor(v)
	}
	if v, ok := flagOverride("status_addr"); ok {
		configMgr.SetStatusAddr(v)
	}

	cfg := configMgr.Get()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pretty := cfg.LogPretty || viper.GetBool("log_pretty")
	logger.Init(cfg.LogLevel, pretty)

	logger.WithComponent("config").Debug().
		Str("path", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Str("compositor", cfg.Compositor).
		Msg("Configuration loaded")
	return configMgr, cfg, nil
}
