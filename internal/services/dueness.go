package services

import (
	"time"

	"financas/internal/core"
)

// previousDueDate returns the card's due day in the month before today, at
// midnight in today's location. Due days past the end of that month roll
// into the following month.
func previousDueDate(dueDay int, today time.Time) time.Time {
	return time.Date(today.Year(), today.Month()-1, dueDay, 0, 0, 0, 0, today.Location())
}

// accrualOpen reports whether automatic accrual may run for a card today:
// the card's due date in the previous month must already be behind us.
func accrualOpen(dueDay int, today time.Time) bool {
	return today.After(previousDueDate(dueDay, today))
}

// installmentOverdue reports whether an unpaid installment's due date (its
// period combined with the card's due day) lies strictly before today.
func installmentOverdue(inst core.Installment, dueDay int, today time.Time) (bool, error) {
	if inst.Paid {
		return false, nil
	}
	due, err := inst.MonthYear.DueDate(dueDay, today.Location())
	if err != nil {
		return false, err
	}
	return due.Before(today), nil
}
