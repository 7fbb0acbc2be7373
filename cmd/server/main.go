package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pubsubcore/internal/app"
	"github.com/vovakirdan/pubsubcore/internal/config"
	pslog "github.com/vovakirdan/pubsubcore/internal/log"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type serverFlags struct {
	configPath string
	overrides  config.Config
}

func newRootCmd() *cobra.Command {
	var flags serverFlags

	cmd := &cobra.Command{
		Use:           "pubsubcore",
		Short:         "Room-based publish/subscribe server over WebSocket and TCP",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "path to config file (default ./config.yaml)")
	f.StringVar(&flags.overrides.Addr, "addr", "", "HTTP listen address")
	f.StringVar(&flags.overrides.TCPAddr, "tcp-addr", "", "raw TCP listen address")
	f.StringVar(&flags.overrides.StaticDir, "static-dir", "", "directory served for unmatched GET requests")
	f.StringVar(&flags.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.DurationVar(&flags.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}

func run(parent context.Context, flags serverFlags) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootLog := pslog.New(flags.overrides.LogLevel)
	cfg, path, err := config.Load(bootLog, flags.configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(flags.overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := pslog.New(cfg.LogLevel)
	logger.Info().
		Str("config", path).
		Str("addr", cfg.Addr).
		Str("tcp_addr", cfg.TCPAddr).
		Msg("starting pubsubcore")

	if err := app.New(cfg, logger).Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
