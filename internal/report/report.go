// Package report derives dashboard totals and reports from a snapshot.
//
// Every function is a pure computation over the snapshot it receives and a
// reference date; nothing is cached between calls.
package report

import (
	"cmp"
	"slices"
	"time"

	"financas/internal/core"
)

// Entry types of the payment history.
const (
	EntryFixedExpense    = "fixed_expense"
	EntryCardInstallment = "card_installment"
)

// Totals is the dashboard summary for the month containing the reference date.
type Totals struct {
	Period                          core.Period `json:"period"`
	TotalIncome                     core.Money  `json:"totalIncome"`
	TotalPaidExpenses               core.Money  `json:"totalPaidExpenses"`
	Balance                         core.Money  `json:"balance"`
	ToPayThisMonth                  core.Money  `json:"toPayThisMonth"`
	TotalPaidThisMonth              core.Money  `json:"totalPaidThisMonth"`
	TotalPaidFixedExpensesThisMonth core.Money  `json:"totalPaidFixedExpensesThisMonth"`
	TotalPaidCardExpensesThisMonth  core.Money  `json:"totalPaidCardExpensesThisMonth"`
}

// PendingInstallment is an unpaid installment, past or future.
type PendingInstallment struct {
	CardID       string      `json:"cardId"`
	CardName     string      `json:"cardName"`
	PurchaseID   string      `json:"purchaseId"`
	PurchaseItem string      `json:"purchaseItem"`
	Store        string      `json:"store"`
	MonthYear    core.Period `json:"monthYear"`
	Amount       core.Money  `json:"amount"`
	// PurchaseDate and PurchaseTotal describe the whole purchase.
	PurchaseDate  core.Date  `json:"purchaseDate"`
	PurchaseTotal core.Money `json:"purchaseTotal"`
}

// HistoryEntry is one recorded payment: a fixed expense month or a paid installment.
type HistoryEntry struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Period      core.Period `json:"period"`
	Amount      core.Money  `json:"amount"`
}

// Projection is the installment amount scheduled for one period, paid or not.
type Projection struct {
	Period core.Period `json:"period"`
	Amount core.Money  `json:"amount"`
}

// Report bundles every view the dashboard and the full report need.
type Report struct {
	GeneratedAt         time.Time            `json:"generatedAt"`
	Totals              Totals               `json:"totals"`
	PendingInstallments []PendingInstallment `json:"pendingInstallments"`
	PaymentHistory      []HistoryEntry       `json:"paymentHistory"`
	FutureProjections   []Projection         `json:"futureProjections"`
}

// Build computes all views for the reference date.
func Build(data core.FinancialData, ref time.Time) Report {
	return Report{
		GeneratedAt:         ref,
		Totals:              CalculateTotals(data, ref),
		PendingInstallments: PendingInstallments(data),
		PaymentHistory:      PaymentHistory(data),
		FutureProjections:   FutureProjections(data),
	}
}

// CalculateTotals computes the dashboard totals. Income and paid expenses
// are all-time sums; the "this month" figures use the period of ref.
func CalculateTotals(data core.FinancialData, ref time.Time) Totals {
	current := core.PeriodOf(ref)
	t := Totals{Period: current}

	for _, in := range data.Income {
		t.TotalIncome = t.TotalIncome.Add(in.Amount)
	}

	var paidAllTime core.Money
	for _, e := range data.FixedExpenses {
		paidAllTime = paidAllTime.Add(e.Amount.Times(len(e.PaidMonths)))
		if e.IsPaid(current) {
			t.TotalPaidFixedExpensesThisMonth = t.TotalPaidFixedExpensesThisMonth.Add(e.Amount)
		} else {
			t.ToPayThisMonth = t.ToPayThisMonth.Add(e.Amount)
		}
	}

	eachInstallment(data, func(_ core.Card, _ core.Purchase, inst core.Installment) {
		if inst.Paid {
			paidAllTime = paidAllTime.Add(inst.Amount)
		}
		if inst.MonthYear != current {
			return
		}
		if inst.Paid {
			t.TotalPaidCardExpensesThisMonth = t.TotalPaidCardExpensesThisMonth.Add(inst.Amount)
		} else {
			t.ToPayThisMonth = t.ToPayThisMonth.Add(inst.Amount)
		}
	})

	t.TotalPaidThisMonth = t.TotalPaidFixedExpensesThisMonth.Add(t.TotalPaidCardExpensesThisMonth)
	t.TotalPaidExpenses = paidAllTime
	t.Balance = t.TotalIncome.Sub(paidAllTime)
	return t
}

// PendingInstallments lists every unpaid installment in ascending period order.
func PendingInstallments(data core.FinancialData) []PendingInstallment {
	out := []PendingInstallment{}
	eachInstallment(data, func(c core.Card, p core.Purchase, inst core.Installment) {
		if inst.Paid {
			return
		}
		out = append(out, PendingInstallment{
			CardID:       c.ID,
			CardName:     c.Name,
			PurchaseID:   p.ID,
			PurchaseItem: p.Item,
			Store:        p.Store,
			MonthYear:    inst.MonthYear,
			Amount:       inst.Amount,

			PurchaseDate:  p.PurchaseDate,
			PurchaseTotal: p.Total(),
		})
	})
	slices.SortStableFunc(out, func(a, b PendingInstallment) int {
		return cmp.Compare(a.MonthYear, b.MonthYear)
	})
	return out
}

// PaymentHistory flattens paid fixed-expense months and paid installments,
// most recent period first. Entries of the same period keep no particular order.
func PaymentHistory(data core.FinancialData) []HistoryEntry {
	out := []HistoryEntry{}
	for _, e := range data.FixedExpenses {
		for _, m := range e.PaidMonths {
			out = append(out, HistoryEntry{
				Type:        EntryFixedExpense,
				Description: e.Description,
				Period:      m,
				Amount:      e.Amount,
			})
		}
	}
	eachInstallment(data, func(c core.Card, p core.Purchase, inst core.Installment) {
		if !inst.Paid {
			return
		}
		out = append(out, HistoryEntry{
			Type:        EntryCardInstallment,
			Description: c.Name + " - " + p.Item,
			Period:      inst.MonthYear,
			Amount:      inst.Amount,
		})
	})
	slices.SortStableFunc(out, func(a, b HistoryEntry) int {
		return cmp.Compare(b.Period, a.Period)
	})
	return out
}

// FutureProjections sums installment amounts per period across all cards,
// regardless of paid status, in ascending period order.
func FutureProjections(data core.FinancialData) []Projection {
	byPeriod := make(map[core.Period]core.Money)
	eachInstallment(data, func(_ core.Card, _ core.Purchase, inst core.Installment) {
		byPeriod[inst.MonthYear] = byPeriod[inst.MonthYear].Add(inst.Amount)
	})

	out := make([]Projection, 0, len(byPeriod))
	for p, amount := range byPeriod {
		out = append(out, Projection{Period: p, Amount: amount})
	}
	slices.SortFunc(out, func(a, b Projection) int {
		return cmp.Compare(a.Period, b.Period)
	})
	return out
}

func eachInstallment(data core.FinancialData, fn func(core.Card, core.Purchase, core.Installment)) {
	for _, c := range data.Cards {
		for _, p := range c.Purchases {
			for _, inst := range p.Installments {
				fn(c, p, inst)
			}
		}
	}
}
