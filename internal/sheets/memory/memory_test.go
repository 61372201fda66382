package memory

import (
	"context"
	"testing"

	"financas/internal/core"
	"financas/internal/report"
	"financas/internal/sheets"
)

func TestExporter_KeepsLastExport(t *testing.T) {
	e := New()
	ctx := context.Background()

	first := report.Report{FutureProjections: []report.Projection{{Period: "2024-04", Amount: core.Money{Cents: 100}}}}
	if err := e.Export(ctx, first); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if err := e.Export(ctx, report.Report{}); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	if e.Exports() != 2 {
		t.Errorf("Exports() = %d, want 2", e.Exports())
	}
	tbl, ok := e.Table(sheets.ProjectionsTab)
	if !ok {
		t.Fatal("projections table missing")
	}
	if len(tbl.Rows) != 0 {
		t.Errorf("projections rows = %d, want 0 after empty export", len(tbl.Rows))
	}
	if _, ok := e.Table("nope"); ok {
		t.Error("unknown table should not exist")
	}
}
