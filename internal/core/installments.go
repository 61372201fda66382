package core

// GenerateInstallments builds the monthly schedule of a purchase. The i-th
// installment (0 based) falls i+1 calendar months after the purchase date and
// every installment starts unpaid.
func GenerateInstallments(in PurchaseInput) ([]Installment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	total, err := ParseItemTotal(in.Item)
	if err != nil {
		return nil, err
	}
	shares, err := SplitEvenly(total, in.TotalInstallments)
	if err != nil {
		return nil, err
	}

	installments := make([]Installment, in.TotalInstallments)
	for i := range installments {
		installments[i] = Installment{
			MonthYear: PeriodOf(AddMonths(in.PurchaseDate.Time, i+1)),
			Amount:    shares[i],
			Paid:      false,
		}
	}
	return installments, nil
}

// NewPurchase validates the input and creates a purchase with a fresh schedule.
func NewPurchase(id string, in PurchaseInput) (Purchase, error) {
	installments, err := GenerateInstallments(in)
	if err != nil {
		return Purchase{}, err
	}
	p := Purchase{
		ID:                id,
		PurchaseDate:      in.PurchaseDate,
		Store:             in.Store,
		Item:              in.Item,
		TotalInstallments: in.TotalInstallments,
		Installments:      installments,
	}
	p.Recount()
	return p, nil
}

// Regenerate rebuilds the purchase from edited input. Installments whose
// period was already paid in the previous schedule stay paid; the paid
// counter is recomputed from the resulting flags.
func (p Purchase) Regenerate(in PurchaseInput) (Purchase, error) {
	installments, err := GenerateInstallments(in)
	if err != nil {
		return Purchase{}, err
	}
	paid := make(map[Period]bool, len(p.Installments))
	for _, inst := range p.Installments {
		if inst.Paid {
			paid[inst.MonthYear] = true
		}
	}
	for i := range installments {
		installments[i].Paid = paid[installments[i].MonthYear]
	}

	out := Purchase{
		ID:                p.ID,
		PurchaseDate:      in.PurchaseDate,
		Store:             in.Store,
		Item:              in.Item,
		TotalInstallments: in.TotalInstallments,
		Installments:      installments,
	}
	out.Recount()
	return out, nil
}

// ToggleInstallment flips the paid flag of every installment scheduled in
// period and refreshes the counter. It reports whether any installment matched.
func (p Purchase) ToggleInstallment(period Period) (Purchase, bool) {
	out := p.clone()
	matched := false
	for i := range out.Installments {
		if out.Installments[i].MonthYear == period {
			out.Installments[i].Paid = !out.Installments[i].Paid
			matched = true
		}
	}
	out.Recount()
	return out, matched
}
