// financas-rollover applies the month rollover to the stored snapshot and
// exits. It is meant for hosts that run it from cron instead of starting
// the API server.
package main

import (
	"context"
	"os"

	"financas/internal/cli"
	applog "financas/internal/log"
	"financas/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(applog.ComponentRollover)
	ctx := context.Background()

	res := cli.OpenBackend(ctx, cfg)

	var opts []services.LedgerOption
	if res.Events != nil {
		opts = append(opts, services.WithPublisher(res.Events))
	}
	ledger := services.NewLedger(res.Store.Load(ctx), res.Store, opts...)

	result, err := ledger.Rollover(ctx)
	if cerr := res.Cleanup(); cerr != nil {
		logger.WarnContext(ctx, "Backend cleanup error", "error", cerr)
	}
	if err != nil {
		logger.ErrorContext(ctx, "Month rollover failed", applog.FieldError, err)
		os.Exit(1)
	}

	if !result.ChangesMade {
		logger.InfoContext(ctx, "Nothing to accrue",
			applog.FieldMarker, result.LastProcessedMonth)
		return
	}
	logger.InfoContext(ctx, "Month rollover applied",
		applog.FieldAccrued, result.Accrued,
		applog.FieldMarker, result.LastProcessedMonth)
}
