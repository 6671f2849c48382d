package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-client/internal/app"
	"github.com/vovakirdan/wirechat-client/internal/config"
)

func connectFlags(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&cfg.URL, "url", "", "server websocket url")
	cmd.Flags().DurationVar(&cfg.ConnectTimeout, "timeout", 0, "connect timeout")
	cmd.Flags().BoolVar(&cfg.IgnoreConnectError, "ignore-connect-error", false, "continue when the connect fails or times out")
}

func chatCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat interactively",
		Long: `Join a room and chat interactively.

Every input line is sent to the room. Commands:
  /status       show connection state
  /history [n]  show stored messages of the room
  /members      show users known to be in the room
  /quit         leave and exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(overrides)
			if err != nil {
				return err
			}
			if cfg.User == "" {
				return errors.New("user is required: set --user, user in config, or WIRECHAT_USER")
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			return a.RunChat(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}

	connectFlags(cmd, &overrides)
	cmd.Flags().StringVar(&overrides.User, "user", "", "user name")
	cmd.Flags().StringVar(&overrides.Room, "room", "", "room to join")
	cmd.Flags().StringVar(&overrides.Token, "token", "", "access token sent with hello")
	cmd.Flags().StringVar(&overrides.HistoryPath, "history", "", "sqlite history file")
	cmd.Flags().StringVar(&overrides.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	return cmd
}

func probeCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Connect once and report the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(overrides)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			_, err = a.Probe(cmd.Context(), cmd.OutOrStdout())
			return err
		},
	}

	connectFlags(cmd, &overrides)
	return cmd
}

func echoCmd(opts *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Serve a local websocket echo endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(overrides)
			if err != nil {
				return err
			}
			return app.RunEcho(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&overrides.EchoAddr, "addr", "", "listen address")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}
