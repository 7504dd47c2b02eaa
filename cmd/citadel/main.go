package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"citadel/internal/app"
	"citadel/internal/config"
	"citadel/internal/log"
	"citadel/internal/store"
)

// runtime holds what every subcommand needs once flags are parsed.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

func (r *runtime) app() *app.App {
	return app.New(r.cfg, r.logger, r.store)
}

func (r *runtime) close() {
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("close database failed", zap.Error(err))
		}
	}
	if r.logger != nil {
		_ = r.logger.Sync()
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt := &runtime{}
	err := newRootCmd(rt).ExecuteContext(ctx)
	rt.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(rt *runtime) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "citadel",
		Short:         "Track a Uniswap v3 LP position and a Hyperliquid account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := log.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt.cfg, rt.logger = cfg, logger

			db, err := store.NewSQLite(cfg.Database)
			if err != nil {
				logger.Error("init database failed", zap.Error(err))
				return err
			}
			rt.store = db
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), rt)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file, defaults to configs/config.yaml")

	root.AddCommand(
		newServeCmd(rt),
		newSnapshotCmd(rt),
		newHistoryCmd(rt),
	)
	return root
}
