package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"carshare/internal/app/commands"
	bookingapp "carshare/internal/app/handlers/booking"
	"carshare/internal/infra/config"
	ginserver "carshare/internal/infra/http/gin"
	"carshare/internal/infra/obs"
	"carshare/internal/infra/scheduler"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "carshare",
		Short:         "Peer-to-peer vehicle rental backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.AddCommand(
		&cobra.Command{Use: "serve", Short: "Run the HTTP API and background workers", RunE: runServe},
		&cobra.Command{Use: "remind", Short: "Send return reminders once and exit", RunE: runRemind},
		newMigrateCodesCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger, Metrics: app.metrics}, obs.HealthHandlers{
		Ready:   app.ready,
		Timeout: 2 * time.Second,
	}, app.httpHandlers())

	jobs := scheduler.New(logger, 10*time.Minute)
	if err := jobs.Add("return_reminders", cfg.ReminderSchedule, app.sendReminders); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range app.runners {
		r := r
		g.Go(func() error {
			logger.Info("background runner starting", "runner", r.name)
			if err := r.run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", r.name, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		jobs.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return jobs.Stop(stopCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", cfg.Storage, "version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.Info("HTTP server stopped")
	return err
}

func runRemind(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()
	if err := app.sendReminders(ctx); err != nil {
		return err
	}
	return app.drainOutbox(ctx)
}

func newMigrateCodesCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "migrate-codes",
		Short: "Assign reservation codes to bookings stored without one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := obs.NewLogger(cfg.Env, cfg.LogLevel)
			app, err := buildApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.close()
			res, err := commands.Dispatch[bookingapp.BackfillCodesCommand, bookingapp.BackfillResult](ctx, app.commands, bookingapp.BackfillCodesCommand{Limit: limit})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "assigned %d reservation codes\n", res.Assigned)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum bookings to update (0 uses the default batch)")
	return cmd
}
