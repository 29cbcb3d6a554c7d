package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/dropfeed/scheduler"
	"github.com/rushteam/dropfeed/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addrFlag string
	var schedulerFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the refresh scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := ctx.openApp(runCtx)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg
			if addrFlag != "" {
				cfg.Server.Addr = addrFlag
			}
			if cmd.Flags().Changed("scheduler") {
				cfg.Scheduler.Enabled = schedulerFlag
			}

			srv := server.New(a.engine, a.reader,
				server.WithLogger(a.logger),
				server.WithRefreshRateLimit(cfg.Server.RefreshRateLimit, cfg.Server.RefreshRateWindow),
				server.WithHealthCheck(func(ctx context.Context) error {
					return a.sql.DB().PingContext(ctx)
				}),
			)

			g, gctx := errgroup.WithContext(runCtx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, cfg.Server.Addr, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
			})
			if cfg.Scheduler.Enabled {
				sched := &scheduler.Scheduler{
					Runner:   a.engine,
					Interval: cfg.Scheduler.Interval,
					Force:    cfg.Scheduler.Force,
					Logger:   a.logger,
				}
				g.Go(func() error {
					if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&addrFlag, "addr", "", "Listen address (overrides server.addr)")
	cmd.Flags().BoolVar(&schedulerFlag, "scheduler", false, "Enable the interval scheduler (overrides scheduler.enabled)")
	return cmd
}
