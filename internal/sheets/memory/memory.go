package memory

import (
	"context"
	"sync"

	"financas/internal/report"
	"financas/internal/sheets"
)

// Exporter keeps the last exported tables in memory. Used when no
// spreadsheet is configured and in tests.
type Exporter struct {
	mu     sync.Mutex
	tables map[string]sheets.Table
	count  int
}

var _ sheets.ReportExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{tables: make(map[string]sheets.Table)}
}

func (e *Exporter) Export(_ context.Context, rep report.Report) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, t := range sheets.Tables(rep) {
		e.tables[t.Name] = t
	}
	e.count++
	return nil
}

// Table returns the last exported table with the given name.
func (e *Exporter) Table(name string) (sheets.Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[name]
	return t, ok
}

// Exports counts completed exports.
func (e *Exporter) Exports() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
