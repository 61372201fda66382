package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInstallments(t *testing.T) {
	installments, err := GenerateInstallments(PurchaseInput{
		PurchaseDate:      NewDate(2024, 1, 15),
		Store:             "Loja",
		Item:              "100,50",
		TotalInstallments: 3,
	})
	require.NoError(t, err)
	require.Len(t, installments, 3)

	var periods []Period
	for _, inst := range installments {
		assert.Equal(t, int64(5000), inst.Amount.Cents)
		assert.False(t, inst.Paid)
		periods = append(periods, inst.MonthYear)
	}
	assert.Equal(t, []Period{"2024-02", "2024-03", "2024-04"}, periods)
}

func TestGenerateInstallmentsConsecutiveMonths(t *testing.T) {
	installments, err := GenerateInstallments(PurchaseInput{
		PurchaseDate:      NewDate(2024, 11, 10),
		Item:              "1200",
		TotalInstallments: 12,
	})
	require.NoError(t, err)
	require.Len(t, installments, 12)

	first := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	for i, inst := range installments {
		assert.Equal(t, PeriodOf(first.AddDate(0, i, 0)), inst.MonthYear)
	}
}

func TestGenerateInstallmentsRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		in      PurchaseInput
		wantErr error
	}{
		{"zero installments", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "100", TotalInstallments: 0}, ErrInvalidInstallments},
		{"unparsable item", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "x", TotalInstallments: 2}, ErrInvalidAmount},
		{"empty sub-amount", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "100,", TotalInstallments: 2}, ErrInvalidAmount},
		{"huge installment count", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "100", TotalInstallments: 5_000_000}, ErrTooManyInstallments},
		{"more installments than cents", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "1", TotalInstallments: 101}, ErrInstallmentTooSmall},
		{"schedule past year 9999", PurchaseInput{PurchaseDate: NewDate(9999, 1, 15), Item: "100", TotalInstallments: 12}, ErrInvalidDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			installments, err := GenerateInstallments(tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, installments)
		})
	}
}

func TestGenerateInstallmentsAtCapKeepsValidPeriods(t *testing.T) {
	installments, err := GenerateInstallments(PurchaseInput{
		PurchaseDate: NewDate(2024, 1, 15), Item: "3600", TotalInstallments: MaxInstallments,
	})
	require.NoError(t, err)
	require.Len(t, installments, MaxInstallments)

	last := installments[len(installments)-1]
	assert.Equal(t, Period("2054-01"), last.MonthYear)
	_, err = ParsePeriod(string(last.MonthYear))
	assert.NoError(t, err)
	assert.Equal(t, int64(1000), installments[0].Amount.Cents)
}

func TestNewPurchase(t *testing.T) {
	p, err := NewPurchase("p1", PurchaseInput{
		PurchaseDate:      NewDate(2024, 1, 15),
		Store:             "Loja",
		Item:              "100",
		TotalInstallments: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, 0, p.PaidInstallmentsCount)
	assert.Equal(t, int64(10000), p.Total().Cents)
	assert.Equal(t, int64(3333), p.InstallmentAmount().Cents)
	assert.Equal(t, int64(3334), p.Installments[2].Amount.Cents)
}

func TestRegenerateKeepsPaidPeriods(t *testing.T) {
	p, err := NewPurchase("p1", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "300", TotalInstallments: 3})
	require.NoError(t, err)
	p, _ = p.ToggleInstallment("2024-02")
	p, _ = p.ToggleInstallment("2024-03")
	require.Equal(t, 2, p.PaidInstallmentsCount)

	// Moving the purchase one month later shifts the schedule: only
	// 2024-03 still exists in the new schedule.
	edited, err := p.Regenerate(PurchaseInput{PurchaseDate: NewDate(2024, 2, 15), Item: "600", TotalInstallments: 4})
	require.NoError(t, err)

	assert.Equal(t, "p1", edited.ID)
	assert.Equal(t, 4, edited.TotalInstallments)
	assert.Equal(t, 1, edited.PaidInstallmentsCount)
	assert.Equal(t, edited.PaidCount(), edited.PaidInstallmentsCount)
	assert.True(t, edited.Installments[0].Paid)
	assert.Equal(t, Period("2024-03"), edited.Installments[0].MonthYear)
	assert.Equal(t, int64(15000), edited.Installments[0].Amount.Cents)
}

func TestToggleInstallment(t *testing.T) {
	p, err := NewPurchase("p1", PurchaseInput{PurchaseDate: NewDate(2024, 1, 15), Item: "300", TotalInstallments: 3})
	require.NoError(t, err)

	toggled, ok := p.ToggleInstallment("2024-03")
	require.True(t, ok)
	assert.Equal(t, 1, toggled.PaidInstallmentsCount)
	assert.True(t, toggled.Installments[1].Paid)
	assert.False(t, p.Installments[1].Paid, "original purchase must not change")

	back, ok := toggled.ToggleInstallment("2024-03")
	require.True(t, ok)
	assert.Equal(t, 0, back.PaidInstallmentsCount)

	_, ok = p.ToggleInstallment("2030-01")
	assert.False(t, ok)
}
