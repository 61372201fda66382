package advisor

import "financas/internal/core"

// Projection is the subset of the snapshot shared with the text generation
// service. It carries no identifiers, dates or paid state.
type Projection struct {
	Income              []Entry            `json:"income"`
	FixedExpenses       []Entry            `json:"fixedExpenses"`
	CreditCardPurchases []PurchaseSnapshot `json:"creditCardPurchases"`
}

type Entry struct {
	Description string     `json:"description"`
	Amount      core.Money `json:"amount"`
}

type PurchaseSnapshot struct {
	Card              string     `json:"card"`
	Item              string     `json:"item"`
	Store             string     `json:"store"`
	TotalInstallments int        `json:"totalInstallments"`
	InstallmentValue  core.Money `json:"installmentValue"`
}

// Project builds the sanitized projection of data.
func Project(data core.FinancialData) Projection {
	p := Projection{
		Income:              make([]Entry, 0, len(data.Income)),
		FixedExpenses:       make([]Entry, 0, len(data.FixedExpenses)),
		CreditCardPurchases: []PurchaseSnapshot{},
	}
	for _, in := range data.Income {
		p.Income = append(p.Income, Entry{Description: in.Description, Amount: in.Amount})
	}
	for _, e := range data.FixedExpenses {
		p.FixedExpenses = append(p.FixedExpenses, Entry{Description: e.Description, Amount: e.Amount})
	}
	for _, c := range data.Cards {
		for _, pur := range c.Purchases {
			p.CreditCardPurchases = append(p.CreditCardPurchases, PurchaseSnapshot{
				Card:              c.Name,
				Item:              pur.Item,
				Store:             pur.Store,
				TotalInstallments: pur.TotalInstallments,
				InstallmentValue:  pur.InstallmentAmount(),
			})
		}
	}
	return p
}
