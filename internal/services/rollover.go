package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/core"
	applog "financas/internal/log"
)

// RolloverResult is the outcome of one rollover pass.
type RolloverResult struct {
	Data               core.FinancialData
	LastProcessedMonth string
	ChangesMade        bool
	// Accrued counts the installments flipped to paid.
	Accrued int
}

// ProcessMonthRollover marks as paid every card installment whose due date
// has passed, at most once per calendar month.
//
// lastProcessedMonth is the day key of the first day of the last month in
// which accrual changed something. When it is not older than the current
// month the call is a no-op. Fixed expenses are never accrued. The input
// snapshot is not modified; a changed snapshot is returned in the result
// together with the new marker.
func ProcessMonthRollover(ctx context.Context, data core.FinancialData, lastProcessedMonth string, today time.Time) (RolloverResult, error) {
	currentMonth := core.MonthKey(today)
	unchanged := RolloverResult{Data: data, LastProcessedMonth: lastProcessedMonth}

	if lastProcessedMonth >= currentMonth {
		slog.DebugContext(ctx, "Rollover already processed this month",
			applog.FieldComponent, applog.ComponentRollover,
			applog.FieldMarker, lastProcessedMonth,
			"current_month", currentMonth)
		return unchanged, nil
	}

	updated := data.Clone()
	accrued := 0

	for ci := range updated.Cards {
		card := &updated.Cards[ci]
		for pi := range card.Purchases {
			purchase := &card.Purchases[pi]
			if purchase.FullyPaid() {
				continue
			}
			if !accrualOpen(card.DueDate, today) {
				continue
			}

			for ii := range purchase.Installments {
				if purchase.PaidInstallmentsCount >= purchase.TotalInstallments {
					break
				}
				overdue, err := installmentOverdue(purchase.Installments[ii], card.DueDate, today)
				if err != nil {
					return unchanged, fmt.Errorf("card %s purchase %s: %w", card.ID, purchase.ID, err)
				}
				if !overdue {
					continue
				}
				purchase.Installments[ii].Paid = true
				purchase.PaidInstallmentsCount++
				accrued++

				slog.DebugContext(ctx, "Installment accrued",
					applog.FieldComponent, applog.ComponentRollover,
					applog.FieldCardID, card.ID,
					applog.FieldPurchaseID, purchase.ID,
					applog.FieldPeriod, purchase.Installments[ii].MonthYear,
					"amount_cents", purchase.Installments[ii].Amount.Cents)
			}
		}
	}

	if accrued == 0 {
		slog.InfoContext(ctx, "Rollover found nothing to accrue",
			applog.FieldComponent, applog.ComponentRollover,
			applog.FieldMarker, lastProcessedMonth,
			"current_month", currentMonth)
		return unchanged, nil
	}

	slog.InfoContext(ctx, "Month rollover processed",
		applog.FieldComponent, applog.ComponentRollover,
		applog.FieldAccrued, accrued,
		"previous_marker", lastProcessedMonth,
		applog.FieldMarker, currentMonth)

	return RolloverResult{
		Data:               updated,
		LastProcessedMonth: currentMonth,
		ChangesMade:        true,
		Accrued:            accrued,
	}, nil
}
