package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/report"
	"financas/internal/sheets"
	"financas/internal/sheets/memory"
	"financas/internal/storage"
)

type blockingExporter struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingExporter) Export(ctx context.Context, _ report.Report) error {
	b.calls.Add(1)
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type failingExporter struct{}

func (failingExporter) Export(context.Context, report.Report) error { return errors.New("quota exceeded") }

func seededStore(t *testing.T) *storage.SnapshotStore {
	t.Helper()
	store := storage.NewSnapshotStore(storage.NewMemoryKV())
	data := core.EmptyFinancialData()
	p, err := core.NewPurchase("p1", core.PurchaseInput{
		PurchaseDate: core.NewDate(2024, 1, 20), Store: "Loja", Item: "300", TotalInstallments: 3,
	})
	require.NoError(t, err)
	data.Cards = []core.Card{{ID: "c1", Name: "Visa", DueDate: 5, Purchases: []core.Purchase{p}}}
	require.NoError(t, store.SaveData(context.Background(), data))
	return store
}

func TestExportWorker_HandleSnapshotSaved(t *testing.T) {
	exp := memory.New()
	w := NewExportWorker(seededStore(t), exp, time.Second)

	err := w.HandleSnapshotSaved(context.Background(), amqp.NewSnapshotSavedMessage("add_purchase"))
	require.NoError(t, err)

	assert.Equal(t, 1, exp.Exports())
	pending, ok := exp.Table(sheets.PendingTab)
	require.True(t, ok)
	assert.Len(t, pending.Rows, 3)
}

func TestExportWorker_FailurePropagates(t *testing.T) {
	w := NewExportWorker(seededStore(t), failingExporter{}, time.Second)

	err := w.HandleSnapshotSaved(context.Background(), amqp.NewSnapshotSavedMessage("add_card"))
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestExportWorker_ConcurrentTriggersShareExport(t *testing.T) {
	exp := &blockingExporter{release: make(chan struct{}), started: make(chan struct{})}
	w := NewExportWorker(seededStore(t), exp, 5*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs[0] = w.Export(context.Background(), "first")
	}()
	<-exp.started

	for i := 1; i < len(errs); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = w.Export(context.Background(), "burst")
		}(i)
	}
	// let the burst join the running export
	time.Sleep(50 * time.Millisecond)
	close(exp.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), exp.calls.Load())
}

func TestExportWorker_Schedule(t *testing.T) {
	w := NewExportWorker(seededStore(t), memory.New(), time.Second)

	c, err := w.Schedule(context.Background(), "@every 1h")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = w.Schedule(context.Background(), "not a schedule")
	assert.Error(t, err)
}

func TestExportWorker_SharedExportSurvivesFirstCallerCancel(t *testing.T) {
	exp := &blockingExporter{release: make(chan struct{}), started: make(chan struct{})}
	w := NewExportWorker(seededStore(t), exp, 5*time.Second)

	eventCtx, cancelEvent := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- w.Export(eventCtx, "event:add_card") }()
	<-exp.started

	scheduled := make(chan error, 1)
	go func() { scheduled <- w.Export(context.Background(), "schedule") }()
	// let the scheduled run join before the event context ends
	time.Sleep(50 * time.Millisecond)
	cancelEvent()
	time.Sleep(20 * time.Millisecond)
	close(exp.release)

	assert.NoError(t, <-firstErr)
	assert.NoError(t, <-scheduled)
	assert.Equal(t, int32(1), exp.calls.Load())
}
