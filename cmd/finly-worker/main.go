package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"finly/internal/amqp"
	"finly/internal/cli"
	applog "finly/internal/log"
	"finly/internal/worker"
)

func main() {
	logger, cfg := cli.Bootstrap(applog.ComponentWorker)

	logger.Info("Starting finly-worker")

	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	balanceWorker := worker.NewBalanceWorker(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch up on events missed while the worker was down.
	if err := balanceWorker.RecalculateAll(ctx); err != nil {
		logger.Error("Startup balance recalculation failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return amqpClient.ConsumeCardEvents(gctx, func(msg *amqp.CardEventMessage) error {
			return balanceWorker.HandleCardEvent(gctx, msg)
		})
	})

	// Periodic full recalculation backs up the event stream: a lost message
	// only delays a balance update until the next tick.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.RecalcInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := balanceWorker.RecalculateAll(gctx); err != nil {
					logger.Error("Periodic balance recalculation failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
