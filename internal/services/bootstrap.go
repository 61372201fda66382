package services

import (
	"context"
	"log/slog"

	applog "financas/internal/log"
	"financas/internal/storage"
)

// SnapshotRepository loads and saves the ledger state.
type SnapshotRepository interface {
	SnapshotStore
	Load(ctx context.Context) storage.Snapshot
}

// Bootstrap loads the persisted state and runs the month rollover once
// before the ledger serves anything. A failed rollover is logged and the
// loaded data is used unchanged.
func Bootstrap(ctx context.Context, repo SnapshotRepository, opts ...LedgerOption) *Ledger {
	l := NewLedger(repo.Load(ctx), repo, opts...)

	res, err := l.Rollover(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Month rollover failed, continuing with loaded data",
			applog.FieldComponent, applog.ComponentRollover,
			applog.FieldError, err)
		return l
	}
	if res.ChangesMade {
		slog.InfoContext(ctx, "Month rollover applied at startup",
			applog.FieldComponent, applog.ComponentRollover,
			applog.FieldAccrued, res.Accrued,
			applog.FieldMarker, res.LastProcessedMonth)
	}
	return l
}
