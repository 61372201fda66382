package sheets

import (
	"context"

	"financas/internal/core"
	"financas/internal/report"
)

// ReportExporter publishes a report outside the application.
type ReportExporter interface {
	Export(ctx context.Context, rep report.Report) error
}

// Tab names of an exported report.
const (
	SummaryTab     = "Resumo"
	PendingTab     = "Parcelas Pendentes"
	HistoryTab     = "Histórico de Pagamentos"
	ProjectionsTab = "Projeções"
)

// Table is one tab worth of rows. Cells are strings or numbers so that
// spreadsheets can interpret them.
type Table struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Values returns the header followed by the rows.
func (t Table) Values() [][]any {
	out := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	out = append(out, header)
	return append(out, t.Rows...)
}

// Tables lays out a report as spreadsheet tabs.
func Tables(rep report.Report) []Table {
	tot := rep.Totals
	summary := Table{
		Name:   SummaryTab,
		Header: []string{"Indicador", "Valor"},
		Rows: [][]any{
			{"Mês", core.FormatPeriod(tot.Period)},
			{"Renda total", amount(tot.TotalIncome)},
			{"Despesas pagas", amount(tot.TotalPaidExpenses)},
			{"Saldo", amount(tot.Balance)},
			{"A pagar neste mês", amount(tot.ToPayThisMonth)},
			{"Pago neste mês", amount(tot.TotalPaidThisMonth)},
			{"Despesas fixas pagas", amount(tot.TotalPaidFixedExpensesThisMonth)},
			{"Cartões pagos", amount(tot.TotalPaidCardExpensesThisMonth)},
			{"Gerado em", rep.GeneratedAt.Format("02/01/2006 15:04")},
		},
	}

	pending := Table{
		Name:   PendingTab,
		Header: []string{"Mês", "Cartão", "Loja", "Item", "Valor", "Parcela", "Data da compra", "Total da compra"},
	}
	for _, p := range rep.PendingInstallments {
		pending.Rows = append(pending.Rows, []any{
			string(p.MonthYear),
			p.CardName,
			p.Store,
			core.DescribeItem(p.PurchaseItem),
			amount(p.Amount),
			core.FormatBRL(p.Amount),
			core.FormatDate(p.PurchaseDate),
			amount(p.PurchaseTotal),
		})
	}

	history := Table{Name: HistoryTab, Header: []string{"Mês", "Tipo", "Descrição", "Valor"}}
	for _, h := range rep.PaymentHistory {
		history.Rows = append(history.Rows, []any{string(h.Period), entryLabel(h.Type), h.Description, amount(h.Amount)})
	}

	projections := Table{Name: ProjectionsTab, Header: []string{"Mês", "Valor"}}
	for _, p := range rep.FutureProjections {
		projections.Rows = append(projections.Rows, []any{string(p.Period), amount(p.Amount)})
	}

	return []Table{summary, pending, history, projections}
}

func amount(m core.Money) float64 {
	return m.Decimal().InexactFloat64()
}

func entryLabel(t string) string {
	switch t {
	case report.EntryFixedExpense:
		return "Despesa fixa"
	case report.EntryCardInstallment:
		return "Parcela de cartão"
	default:
		return t
	}
}
