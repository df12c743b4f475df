package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/lexdrill/internal/cron"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process replenishment jobs",
	Long:  "worker generates drills for queued replenishment jobs and promotes delayed retries. It serves no HTTP traffic.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := newWorker(a)
		if err != nil {
			return err
		}

		sched := cron.New(nil, nil, a.queue, nil, cron.Config{KeyPrefix: cfg.Storage.KeyPrefix}, logger.Named("cron"))
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		logger.Info("Starting worker",
			zap.String("queue", cfg.Queue.Name),
			zap.Int("concurrency", cfg.Queue.Workers),
		)
		w.Run(ctx)
		logger.Info("Worker stopped")
		return nil
	},
}
