package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"financas/internal/core"
	applog "financas/internal/log"
	"financas/internal/report"
	"financas/internal/storage"
)

var ErrNotFound = errors.New("not found")

// Operation names carried by SnapshotSaved events.
const (
	OpAddIncome          = "add_income"
	OpUpdateIncome       = "update_income"
	OpDeleteIncome       = "delete_income"
	OpAddFixedExpense    = "add_fixed_expense"
	OpUpdateFixedExpense = "update_fixed_expense"
	OpDeleteFixedExpense = "delete_fixed_expense"
	OpToggleFixedExpense = "toggle_fixed_expense"
	OpAddCard            = "add_card"
	OpUpdateCard         = "update_card"
	OpDeleteCard         = "delete_card"
	OpAddPurchase        = "add_purchase"
	OpUpdatePurchase     = "update_purchase"
	OpDeletePurchase     = "delete_purchase"
	OpToggleInstallment  = "toggle_installment"
	OpRollover           = "rollover"
)

// SnapshotStore persists the ledger state.
type SnapshotStore interface {
	SaveData(ctx context.Context, data core.FinancialData) error
	Save(ctx context.Context, snap storage.Snapshot) error
}

// EventPublisher is notified after every persisted change.
type EventPublisher interface {
	PublishSnapshotSaved(ctx context.Context, operation string) error
}

// Ledger owns the current financial snapshot. Readers get copies; every
// mutation builds a new snapshot from a clone, persists it and only then
// replaces the current one, so a failed write leaves the state untouched.
type Ledger struct {
	mu     sync.RWMutex
	data   core.FinancialData
	marker string

	store     SnapshotStore
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
}

type LedgerOption func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

func WithIDGenerator(newID func() string) LedgerOption {
	return func(l *Ledger) { l.newID = newID }
}

// WithPublisher enables SnapshotSaved events.
func WithPublisher(p EventPublisher) LedgerOption {
	return func(l *Ledger) { l.publisher = p }
}

func NewLedger(snap storage.Snapshot, store SnapshotStore, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		data:   snap.Data.Normalize(),
		marker: snap.LastProcessedMonth,
		store:  store,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Snapshot returns a copy of the current data.
func (l *Ledger) Snapshot() core.FinancialData {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.data.Clone()
}

// LastProcessedMonth returns the rollover marker.
func (l *Ledger) LastProcessedMonth() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.marker
}

// Report aggregates the current data relative to now.
func (l *Ledger) Report() report.Report {
	return report.Build(l.Snapshot(), l.now())
}

// Now is the ledger's clock.
func (l *Ledger) Now() time.Time {
	return l.now()
}

// Rollover runs the month rollover against the current data and persists
// the result together with the new marker when anything changed.
func (l *Ledger) Rollover(ctx context.Context) (RolloverResult, error) {
	l.mu.Lock()
	res, err := ProcessMonthRollover(ctx, l.data, l.marker, l.now())
	if err != nil || !res.ChangesMade {
		l.mu.Unlock()
		return res, err
	}
	snap := storage.Snapshot{Data: res.Data, LastProcessedMonth: res.LastProcessedMonth}
	if err := l.store.Save(ctx, snap); err != nil {
		l.mu.Unlock()
		return res, fmt.Errorf("save rollover: %w", err)
	}
	l.data = res.Data
	l.marker = res.LastProcessedMonth
	l.mu.Unlock()

	l.publish(ctx, OpRollover)
	return res, nil
}

// mutate applies fn to a clone of the current data and commits the result.
func (l *Ledger) mutate(ctx context.Context, op string, fn func(*core.FinancialData) error) error {
	l.mu.Lock()
	next := l.data.Clone()
	if err := fn(&next); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.store.SaveData(ctx, next); err != nil {
		l.mu.Unlock()
		slog.ErrorContext(ctx, "Failed to persist snapshot",
			applog.FieldComponent, applog.ComponentStorage,
			applog.FieldOperation, op,
			applog.FieldError, err)
		return fmt.Errorf("save snapshot: %w", err)
	}
	l.data = next
	l.mu.Unlock()

	slog.DebugContext(ctx, "Snapshot updated",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldOperation, op)
	l.publish(ctx, op)
	return nil
}

func (l *Ledger) publish(ctx context.Context, op string) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.PublishSnapshotSaved(ctx, op); err != nil {
		// the change is already persisted
		slog.WarnContext(ctx, "Failed to publish snapshot event",
			applog.FieldComponent, applog.ComponentAMQP,
			applog.FieldOperation, op,
			applog.FieldError, err)
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

func (l *Ledger) AddIncome(ctx context.Context, in core.IncomeInput) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	inc := core.Income{ID: l.newID(), Date: in.Date, Description: in.Description, Amount: in.Amount}
	err := l.mutate(ctx, OpAddIncome, func(d *core.FinancialData) error {
		d.Income = append(d.Income, inc)
		return nil
	})
	return inc, err
}

func (l *Ledger) UpdateIncome(ctx context.Context, id string, in core.IncomeInput) (core.Income, error) {
	if err := in.Validate(); err != nil {
		return core.Income{}, err
	}
	inc := core.Income{ID: id, Date: in.Date, Description: in.Description, Amount: in.Amount}
	err := l.mutate(ctx, OpUpdateIncome, func(d *core.FinancialData) error {
		i := d.FindIncome(id)
		if i < 0 {
			return notFound("income", id)
		}
		d.Income[i] = inc
		return nil
	})
	return inc, err
}

func (l *Ledger) DeleteIncome(ctx context.Context, id string) error {
	return l.mutate(ctx, OpDeleteIncome, func(d *core.FinancialData) error {
		i := d.FindIncome(id)
		if i < 0 {
			return notFound("income", id)
		}
		d.Income = append(d.Income[:i], d.Income[i+1:]...)
		return nil
	})
}

func (l *Ledger) AddFixedExpense(ctx context.Context, in core.FixedExpenseInput) (core.FixedExpense, error) {
	if err := in.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	e := core.FixedExpense{
		ID:          l.newID(),
		Description: in.Description,
		Amount:      in.Amount,
		DueDate:     in.DueDate,
		PaidMonths:  []core.Period{},
	}
	err := l.mutate(ctx, OpAddFixedExpense, func(d *core.FinancialData) error {
		d.FixedExpenses = append(d.FixedExpenses, e)
		return nil
	})
	return e, err
}

// UpdateFixedExpense replaces the editable fields and keeps the paid months.
func (l *Ledger) UpdateFixedExpense(ctx context.Context, id string, in core.FixedExpenseInput) (core.FixedExpense, error) {
	if err := in.Validate(); err != nil {
		return core.FixedExpense{}, err
	}
	var out core.FixedExpense
	err := l.mutate(ctx, OpUpdateFixedExpense, func(d *core.FinancialData) error {
		i := d.FindFixedExpense(id)
		if i < 0 {
			return notFound("fixed expense", id)
		}
		e := &d.FixedExpenses[i]
		e.Description = in.Description
		e.Amount = in.Amount
		e.DueDate = in.DueDate
		out = *e
		return nil
	})
	return out, err
}

func (l *Ledger) DeleteFixedExpense(ctx context.Context, id string) error {
	return l.mutate(ctx, OpDeleteFixedExpense, func(d *core.FinancialData) error {
		i := d.FindFixedExpense(id)
		if i < 0 {
			return notFound("fixed expense", id)
		}
		d.FixedExpenses = append(d.FixedExpenses[:i], d.FixedExpenses[i+1:]...)
		return nil
	})
}

// ToggleFixedExpensePaid flips the paid state of the current month.
func (l *Ledger) ToggleFixedExpensePaid(ctx context.Context, id string) (core.FixedExpense, error) {
	period := core.PeriodOf(l.now())
	var out core.FixedExpense
	err := l.mutate(ctx, OpToggleFixedExpense, func(d *core.FinancialData) error {
		i := d.FindFixedExpense(id)
		if i < 0 {
			return notFound("fixed expense", id)
		}
		d.FixedExpenses[i] = d.FixedExpenses[i].TogglePaid(period)
		out = d.FixedExpenses[i]
		return nil
	})
	return out, err
}

func (l *Ledger) AddCard(ctx context.Context, in core.CardInput) (core.Card, error) {
	if err := in.Validate(); err != nil {
		return core.Card{}, err
	}
	c := core.Card{ID: l.newID(), Name: in.Name, DueDate: in.DueDate, Purchases: []core.Purchase{}}
	err := l.mutate(ctx, OpAddCard, func(d *core.FinancialData) error {
		d.Cards = append(d.Cards, c)
		return nil
	})
	return c, err
}

// UpdateCard renames the card or moves its due day. Purchases are kept.
func (l *Ledger) UpdateCard(ctx context.Context, id string, in core.CardInput) (core.Card, error) {
	if err := in.Validate(); err != nil {
		return core.Card{}, err
	}
	var out core.Card
	err := l.mutate(ctx, OpUpdateCard, func(d *core.FinancialData) error {
		i := d.FindCard(id)
		if i < 0 {
			return notFound("card", id)
		}
		d.Cards[i].Name = in.Name
		d.Cards[i].DueDate = in.DueDate
		out = d.Cards[i]
		return nil
	})
	return out, err
}

// DeleteCard removes the card together with its purchases.
func (l *Ledger) DeleteCard(ctx context.Context, id string) error {
	return l.mutate(ctx, OpDeleteCard, func(d *core.FinancialData) error {
		i := d.FindCard(id)
		if i < 0 {
			return notFound("card", id)
		}
		d.Cards = append(d.Cards[:i], d.Cards[i+1:]...)
		return nil
	})
}

func (l *Ledger) AddPurchase(ctx context.Context, cardID string, in core.PurchaseInput) (core.Purchase, error) {
	p, err := core.NewPurchase(l.newID(), in)
	if err != nil {
		return core.Purchase{}, err
	}
	err = l.mutate(ctx, OpAddPurchase, func(d *core.FinancialData) error {
		ci := d.FindCard(cardID)
		if ci < 0 {
			return notFound("card", cardID)
		}
		d.Cards[ci].Purchases = append(d.Cards[ci].Purchases, p)
		return nil
	})
	return p, err
}

// UpdatePurchase regenerates the installment schedule from the edited
// input. Periods already paid stay paid.
func (l *Ledger) UpdatePurchase(ctx context.Context, cardID, purchaseID string, in core.PurchaseInput) (core.Purchase, error) {
	if err := in.Validate(); err != nil {
		return core.Purchase{}, err
	}
	var out core.Purchase
	err := l.mutate(ctx, OpUpdatePurchase, func(d *core.FinancialData) error {
		ci, pi, err := findPurchase(d, cardID, purchaseID)
		if err != nil {
			return err
		}
		updated, err := d.Cards[ci].Purchases[pi].Regenerate(in)
		if err != nil {
			return err
		}
		d.Cards[ci].Purchases[pi] = updated
		out = updated
		return nil
	})
	return out, err
}

func (l *Ledger) DeletePurchase(ctx context.Context, cardID, purchaseID string) error {
	return l.mutate(ctx, OpDeletePurchase, func(d *core.FinancialData) error {
		ci, pi, err := findPurchase(d, cardID, purchaseID)
		if err != nil {
			return err
		}
		card := &d.Cards[ci]
		card.Purchases = append(card.Purchases[:pi], card.Purchases[pi+1:]...)
		return nil
	})
}

// ToggleInstallmentPaid flips the installment of the given period.
func (l *Ledger) ToggleInstallmentPaid(ctx context.Context, cardID, purchaseID string, period core.Period) (core.Purchase, error) {
	if _, err := core.ParsePeriod(string(period)); err != nil {
		return core.Purchase{}, err
	}
	var out core.Purchase
	err := l.mutate(ctx, OpToggleInstallment, func(d *core.FinancialData) error {
		ci, pi, err := findPurchase(d, cardID, purchaseID)
		if err != nil {
			return err
		}
		updated, ok := d.Cards[ci].Purchases[pi].ToggleInstallment(period)
		if !ok {
			return notFound("installment", string(period))
		}
		d.Cards[ci].Purchases[pi] = updated
		out = updated
		return nil
	})
	return out, err
}

func findPurchase(d *core.FinancialData, cardID, purchaseID string) (int, int, error) {
	ci := d.FindCard(cardID)
	if ci < 0 {
		return 0, 0, notFound("card", cardID)
	}
	pi := d.Cards[ci].FindPurchase(purchaseID)
	if pi < 0 {
		return 0, 0, notFound("purchase", purchaseID)
	}
	return ci, pi, nil
}
