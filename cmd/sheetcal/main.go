package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sheetcal/internal/config"
	appLog "sheetcal/internal/log"
)

var version = "0.1.0-dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		appLog.Error("sheetcal failed", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sheetcal",
		Short:         "Turn schedule spreadsheets into calendar events",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "/etc/sheetcal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides config")

	root.AddCommand(
		newDetectCommand(opts),
		newPreviewCommand(opts),
		newSyncCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// loadConfig reads the config file and applies the log level.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", o.configPath)
		return nil, err
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(level))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"utc_offset", cfg.UTCOffset,
		"backend", cfg.Calendar.Backend,
		"strategy", cfg.Calendar.Strategy,
		"sources", len(cfg.Sources),
	)
	return cfg, nil
}
