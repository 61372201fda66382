package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"financas/internal/cache"
	"financas/internal/cli"
	applog "financas/internal/log"
	"financas/internal/sheets"
	gsheet "financas/internal/sheets/google"
	"financas/internal/sheets/memory"
	"financas/internal/worker"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(applog.ComponentWorker)
	ctx := context.Background()

	logger.InfoContext(ctx, "Starting financas-worker")

	res := cli.OpenBackend(ctx, cfg)

	caches := cache.NewManager()
	var exporter sheets.ReportExporter
	if cfg.ExportEnabled() {
		client, err := gsheet.NewFromEnv(ctx, cfg.GoogleSpreadsheetID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		caches.Register(client)
		caches.StartCleanup(10 * time.Minute)
		exporter = client
		logger.InfoContext(ctx, "Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		exporter = memory.New()
		logger.InfoContext(ctx, "Google Sheets disabled, no GOOGLE_SPREADSHEET_ID provided; reports kept in memory")
	}

	exports := worker.NewExportWorker(res.Store, exporter, cfg.ExportTimeout)

	scheduler, err := exports.Schedule(ctx, cfg.ExportSchedule)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to schedule export", "error", err)
		os.Exit(1)
	}

	ctx, stop, done := cli.GracefulShutdown(30*time.Second, func(shutdownCtx context.Context) {
		select {
		case <-scheduler.Stop().Done():
		case <-shutdownCtx.Done():
		}
		caches.Stop()
		if err := res.Cleanup(); err != nil {
			logger.ErrorContext(shutdownCtx, "Backend cleanup error", "error", err)
		}
	})

	// catch up with changes made while the worker was down
	if err := exports.Export(ctx, "startup"); err != nil {
		logger.ErrorContext(ctx, "Startup export failed", "error", err)
	}
	scheduler.Start()

	g, gctx := errgroup.WithContext(ctx)
	if res.Events != nil {
		g.Go(func() error {
			err := res.Events.ConsumeSnapshotSaved(gctx, exports.HandleSnapshotSaved)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.InfoContext(ctx, "AMQP disabled, exporting on schedule only", "schedule", cfg.ExportSchedule)
	}
	g.Go(func() error {
		<-gctx.Done()
		stop()
		return nil
	})

	err = g.Wait()
	cli.WaitForShutdown(ctx, done)
	if err != nil {
		logger.ErrorContext(ctx, "Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.InfoContext(ctx, "Worker shutdown complete")
}
