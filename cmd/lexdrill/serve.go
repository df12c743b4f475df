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
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/cron"
	"github.com/kailas-cloud/lexdrill/internal/queue"
	chiTransport "github.com/kailas-cloud/lexdrill/internal/transport/chi"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and periodic jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		sched := newScheduler(a, withWorker)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		workerDone := make(chan struct{})
		if withWorker {
			w, err := newWorker(a)
			if err != nil {
				return err
			}
			go func() {
				defer close(workerDone)
				w.Run(ctx)
			}()
		} else {
			close(workerDone)
		}

		r := chiTransport.NewServer(chiTransport.Deps{
			Selector:  a.selector,
			Drills:    a.drills,
			Sessions:  a.sessions,
			Inventory: a.inventory,
			Catalog:   a.catalog,
			Health:    a.health,
		}, logger.Named("http")).Router(cfg.Auth.APIKeys)

		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		srv := &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  secs(cfg.HTTP.ReadTimeoutSec),
			WriteTimeout: secs(cfg.HTTP.WriteTimeoutSec),
		}

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("Starting HTTP server", zap.String("addr", addr), zap.Bool("worker", withWorker))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		select {
		case <-ctx.Done():
			logger.Info("Received shutdown signal")
		case err := <-serveErr:
			if err != nil {
				stop()
				<-workerDone
				return fmt.Errorf("http server: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), secs(cfg.HTTP.ShutdownSec))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
		<-workerDone

		logger.Info("Server stopped gracefully")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "worker", false, "Also process replenishment jobs in this process")
}

// newScheduler wires the periodic jobs. Delayed-job promotion only runs where jobs are processed.
func newScheduler(a *app, promote bool) *cron.Scheduler {
	var promoter cron.Promoter
	if promote {
		promoter = a.queue
	}
	host, _ := os.Hostname()
	return cron.New(a.sessions, a.inventory, promoter, a.store, cron.Config{
		KeyPrefix:      cfg.Storage.KeyPrefix,
		SettleInterval: secs(cfg.Session.SettleIntervalSec),
		SettleIdle:     secs(cfg.Session.IdleSec),
		SweepInterval:  secs(cfg.Inventory.SweepIntervalSec),
		Owner:          host,
	}, logger.Named("cron"))
}

func newWorker(a *app) (*queue.Worker, error) {
	h, err := a.replenisher(logger)
	if err != nil {
		return nil, err
	}
	w := queue.NewWorker(a.queue, cfg.Queue.Workers, time.Duration(cfg.Queue.PollMs)*time.Millisecond, logger.Named("worker"))
	h.Register(w)
	return w, nil
}
