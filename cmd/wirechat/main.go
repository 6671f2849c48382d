package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/config"
	"github.com/vovakirdan/wirechat-client/internal/log"
)

// Version information set at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "wirechat",
		Short:         "Terminal client for wirechat servers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error, off")

	rootCmd.AddCommand(
		chatCmd(opts),
		probeCmd(opts),
		echoCmd(opts),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		stop()
		os.Exit(1)
	}
}

// load resolves configuration and applies flag overrides.
// Precedence: defaults < config file < env vars < flags.
func (o *rootOptions) load(overrides config.Config) (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info", nil)

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	cfg.UpdateFrom(overrides)
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger := log.New(cfg.LogLevel, nil)
	logger.Debug().Str("config_path", path).Msg("config loaded")
	return cfg, logger, nil
}
