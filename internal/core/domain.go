package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	Date struct {
		time.Time
	}

	Income struct {
		ID          string `json:"id"`
		Date        Date   `json:"date"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
	}

	FixedExpense struct {
		ID          string   `json:"id"`
		Description string   `json:"description"`
		Amount      Money    `json:"amount"`
		DueDate     int      `json:"dueDate"` // day of month
		PaidMonths  []Period `json:"paidMonths"`
	}

	// Installment is one monthly fraction of a card purchase. It is owned by
	// its Purchase and never stored on its own.
	Installment struct {
		MonthYear Period `json:"monthYear"`
		Amount    Money  `json:"amount"`
		Paid      bool   `json:"paid"`
	}

	Purchase struct {
		ID                    string        `json:"id"`
		PurchaseDate          Date          `json:"purchaseDate"`
		Store                 string        `json:"store"`
		Item                  string        `json:"item"` // comma separated sub-amounts
		TotalInstallments     int           `json:"totalInstallments"`
		PaidInstallmentsCount int           `json:"paidInstallmentsCount"`
		Installments          []Installment `json:"installments"`
	}

	Card struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		DueDate   int        `json:"dueDate"` // day of month
		Purchases []Purchase `json:"purchases"`
	}

	// FinancialData is the whole persisted snapshot. Mutations never change a
	// snapshot in place; they work on a Clone and replace it.
	FinancialData struct {
		Income        []Income       `json:"income"`
		FixedExpenses []FixedExpense `json:"fixedExpenses"`
		Cards         []Card         `json:"cards"`
	}
)

// Mutation inputs: the user supplied fields of each entity. Identifiers,
// paid state and installment schedules are assigned by the engine.
type (
	IncomeInput struct {
		Date        Date   `json:"date"`
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
	}

	FixedExpenseInput struct {
		Description string `json:"description"`
		Amount      Money  `json:"amount"`
		DueDate     int    `json:"dueDate"`
	}

	CardInput struct {
		Name    string `json:"name"`
		DueDate int    `json:"dueDate"`
	}

	PurchaseInput struct {
		PurchaseDate      Date   `json:"purchaseDate"`
		Store             string `json:"store"`
		Item              string `json:"item"`
		TotalInstallments int    `json:"totalInstallments"`
	}
)

const (
	maxDescriptionLength = 200
	// MaxInstallments bounds a purchase schedule to 30 years.
	MaxInstallments = 360
	maxPeriodYear   = 9999
)

var (
	ErrInvalidDay          = errors.New("invalid day")
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidDate         = errors.New("invalid date")
	ErrInvalidPeriod       = errors.New("invalid period")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidDueDay       = errors.New("due day must be between 1 and 31")
	ErrInvalidInstallments = errors.New("invalid installment count")
	ErrTooManyInstallments = fmt.Errorf("%w: at most %d installments", ErrInvalidInstallments, MaxInstallments)
	// ErrInstallmentTooSmall is returned when a share would round down to zero cents.
	ErrInstallmentTooSmall = fmt.Errorf("%w: installment amount below one cent", ErrInvalidInstallments)
	ErrEmptyDescription    = errors.New("empty description")
	ErrEmptyName           = errors.New("empty name")
	ErrEmptyItem           = errors.New("empty item")
	ErrDescriptionTooLong  = fmt.Errorf("description too long (max %d characters)", maxDescriptionLength)
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD day key.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DayLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String returns the YYYY-MM-DD day key.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return DayKey(d.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func validateDescription(s string) error {
	if len(strings.TrimSpace(s)) == 0 {
		return ErrEmptyDescription
	}
	if len(s) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return nil
}

func validateDueDay(day int) error {
	if day < 1 || day > 31 {
		return ErrInvalidDueDay
	}
	return nil
}

func (in IncomeInput) Validate() error {
	if err := in.Date.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	return in.Amount.Validate()
}

func (in FixedExpenseInput) Validate() error {
	if err := validateDescription(in.Description); err != nil {
		return err
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	return validateDueDay(in.DueDate)
}

func (in CardInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyName
	}
	if len(in.Name) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return validateDueDay(in.DueDate)
}

// Validate rejects purchases that could not produce a consistent schedule:
// a missing date, an installment count outside 1..MaxInstallments, an
// unparsable item, a share below one cent or a schedule that leaves the
// four digit years.
func (in PurchaseInput) Validate() error {
	if err := in.PurchaseDate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if in.TotalInstallments < 1 {
		return fmt.Errorf("%w: must be at least 1", ErrInvalidInstallments)
	}
	if in.TotalInstallments > MaxInstallments {
		return ErrTooManyInstallments
	}
	if len(in.Store) > maxDescriptionLength {
		return ErrDescriptionTooLong
	}
	total, err := ParseItemTotal(in.Item)
	if err != nil {
		return err
	}
	if total.Cents < int64(in.TotalInstallments) {
		return ErrInstallmentTooSmall
	}
	if last := AddMonths(in.PurchaseDate.Time, in.TotalInstallments); last.Year() > maxPeriodYear {
		return fmt.Errorf("%w: schedule ends after year %d", ErrInvalidDate, maxPeriodYear)
	}
	return nil
}

// IsPaid reports whether the expense was paid for the given period.
func (e FixedExpense) IsPaid(p Period) bool {
	for _, m := range e.PaidMonths {
		if m == p {
			return true
		}
	}
	return false
}

// TogglePaid flips the paid state of period p. The returned expense shares
// nothing with the receiver.
func (e FixedExpense) TogglePaid(p Period) FixedExpense {
	out := e
	out.PaidMonths = make([]Period, 0, len(e.PaidMonths)+1)
	found := false
	for _, m := range e.PaidMonths {
		if m == p {
			found = true
			continue
		}
		out.PaidMonths = append(out.PaidMonths, m)
	}
	if !found {
		out.PaidMonths = append(out.PaidMonths, p)
	}
	return out
}

// PaidCount counts installments flagged as paid.
func (p Purchase) PaidCount() int {
	n := 0
	for _, inst := range p.Installments {
		if inst.Paid {
			n++
		}
	}
	return n
}

// Recount refreshes PaidInstallmentsCount from the installment flags. Every
// code path that flips a paid flag calls it before the purchase is stored.
func (p *Purchase) Recount() {
	p.PaidInstallmentsCount = p.PaidCount()
}

// FullyPaid reports whether every installment has been paid.
func (p Purchase) FullyPaid() bool {
	return p.PaidInstallmentsCount >= p.TotalInstallments
}

// Total is the sum of the scheduled installment amounts.
func (p Purchase) Total() Money {
	var total Money
	for _, inst := range p.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}

// InstallmentAmount returns the amount of a single installment, or zero when
// the schedule is empty.
func (p Purchase) InstallmentAmount() Money {
	if len(p.Installments) == 0 {
		return Money{}
	}
	return p.Installments[0].Amount
}

func (p Purchase) clone() Purchase {
	out := p
	out.Installments = append(make([]Installment, 0, len(p.Installments)), p.Installments...)
	return out
}

func (c Card) clone() Card {
	out := c
	out.Purchases = make([]Purchase, len(c.Purchases))
	for i, p := range c.Purchases {
		out.Purchases[i] = p.clone()
	}
	return out
}

// FindPurchase returns the index of the purchase with the given id, or -1.
func (c Card) FindPurchase(id string) int {
	for i, p := range c.Purchases {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// EmptyFinancialData returns a snapshot with no entries and non-nil slices.
func EmptyFinancialData() FinancialData {
	return FinancialData{
		Income:        []Income{},
		FixedExpenses: []FixedExpense{},
		Cards:         []Card{},
	}
}

// Clone returns a deep copy of the snapshot.
func (d FinancialData) Clone() FinancialData {
	out := FinancialData{
		Income:        append(make([]Income, 0, len(d.Income)), d.Income...),
		FixedExpenses: make([]FixedExpense, len(d.FixedExpenses)),
		Cards:         make([]Card, len(d.Cards)),
	}
	for i, e := range d.FixedExpenses {
		e.PaidMonths = append(make([]Period, 0, len(e.PaidMonths)), e.PaidMonths...)
		out.FixedExpenses[i] = e
	}
	for i, c := range d.Cards {
		out.Cards[i] = c.clone()
	}
	return out
}

// Normalize repairs derived state of a snapshot read from storage: nil
// slices become empty, duplicate paid months are dropped and every paid
// counter is recomputed from its installment flags.
func (d FinancialData) Normalize() FinancialData {
	out := d.Clone()
	for i := range out.FixedExpenses {
		seen := make(map[Period]struct{}, len(out.FixedExpenses[i].PaidMonths))
		months := make([]Period, 0, len(out.FixedExpenses[i].PaidMonths))
		for _, m := range out.FixedExpenses[i].PaidMonths {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			months = append(months, m)
		}
		out.FixedExpenses[i].PaidMonths = months
	}
	for ci := range out.Cards {
		for pi := range out.Cards[ci].Purchases {
			out.Cards[ci].Purchases[pi].Recount()
		}
	}
	return out
}

// FindIncome returns the index of the income with the given id, or -1.
func (d FinancialData) FindIncome(id string) int {
	for i, in := range d.Income {
		if in.ID == id {
			return i
		}
	}
	return -1
}

// FindFixedExpense returns the index of the fixed expense with the given id, or -1.
func (d FinancialData) FindFixedExpense(id string) int {
	for i, e := range d.FixedExpenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// FindCard returns the index of the card with the given id, or -1.
func (d FinancialData) FindCard(id string) int {
	for i, c := range d.Cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}
