package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"financas/internal/amqp"
	applog "financas/internal/log"
	"financas/internal/report"
	"financas/internal/sheets"
	"financas/internal/storage"
)

// SnapshotLoader reads the persisted state.
type SnapshotLoader interface {
	Load(ctx context.Context) storage.Snapshot
}

// ExportWorker rebuilds the report from storage and hands it to an
// exporter. Concurrent triggers share one export.
type ExportWorker struct {
	store    SnapshotLoader
	exporter sheets.ReportExporter
	now      func() time.Time
	timeout  time.Duration
	group    singleflight.Group
}

func NewExportWorker(store SnapshotLoader, exporter sheets.ReportExporter, timeout time.Duration) *ExportWorker {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &ExportWorker{
		store:    store,
		exporter: exporter,
		now:      time.Now,
		timeout:  timeout,
	}
}

// Export runs one export, or waits for the one already running. The shared
// export outlives the caller that started it; export applies its own timeout.
func (w *ExportWorker) Export(ctx context.Context, trigger string) error {
	_, err, shared := w.group.Do("export", func() (any, error) {
		return nil, w.export(context.WithoutCancel(ctx), trigger)
	})
	if shared {
		slog.DebugContext(ctx, "Export shared with a running one",
			applog.FieldComponent, applog.ComponentExport,
			applog.FieldTrigger, trigger)
	}
	return err
}

func (w *ExportWorker) export(ctx context.Context, trigger string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	snap := w.store.Load(ctx)
	rep := report.Build(snap.Data, w.now())
	if err := w.exporter.Export(ctx, rep); err != nil {
		return fmt.Errorf("export report: %w", err)
	}

	slog.InfoContext(ctx, "Report exported",
		applog.FieldComponent, applog.ComponentExport,
		applog.FieldTrigger, trigger,
		"pending", len(rep.PendingInstallments),
		"duration", time.Since(start))
	return nil
}

// HandleSnapshotSaved is the AMQP handler. A failed export is returned so
// the message is requeued.
func (w *ExportWorker) HandleSnapshotSaved(ctx context.Context, msg *amqp.SnapshotSavedMessage) error {
	return w.Export(ctx, "event:"+msg.Operation)
}

// Schedule registers a periodic export on a new cron scheduler. The caller
// starts and stops it.
func (w *ExportWorker) Schedule(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := w.Export(ctx, "schedule"); err != nil {
			slog.ErrorContext(ctx, "Scheduled export failed",
				applog.FieldComponent, applog.ComponentExport,
				applog.FieldError, err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid export schedule %q: %w", spec, err)
	}
	return c, nil
}
