package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finly/internal/amqp"
	"finly/internal/cli"
	"finly/internal/export"
	gsheet "finly/internal/export/google"
	memexport "finly/internal/export/memory"
	apphttp "finly/internal/http"
	applog "finly/internal/log"
	"finly/internal/services"
)

func main() {
	logger, cfg := cli.Bootstrap(applog.ComponentApp)

	repo := cli.OpenRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	// The API stays up without the broker: publishing is best-effort and the
	// worker's periodic recalculation covers missed events.
	var publisher services.EventPublisher
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, card events will not be published", "error", err)
	} else {
		publisher = amqpClient
		defer amqpClient.Close()
	}

	var exporter export.LedgerWriter
	var ledger export.LedgerReader
	switch cfg.LedgerExport {
	case "sheets":
		sheetsClient, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		exporter = sheetsClient
		ledger = sheetsClient
		logger.Info("Ledger export enabled", "target", "sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	case "memory":
		mem := memexport.New()
		exporter = mem
		ledger = mem
		logger.Info("Ledger export enabled", "target", "memory")
	default:
		logger.Info("Ledger export disabled")
	}

	purchaseService := services.NewPurchaseService(repo, publisher, exporter)
	debtService := services.NewDebtService(repo)
	overviewService := services.NewOverviewService(repo)

	srv := apphttp.NewServer(":"+cfg.Port, repo, purchaseService, debtService, overviewService, ledger)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting finly server", "port", cfg.Port, "db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
