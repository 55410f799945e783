package finance

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lojafacil/backend/internal/domain"
)

func tx(id string, date string, typ domain.TransactionType, value string) domain.FinancialTransaction {
	d, _ := time.Parse("2006-01-02", date)
	return domain.FinancialTransaction{ID: id, Date: d, Type: typ, Description: "lançamento " + id, Value: decimal.RequireFromString(value)}
}

func TestSummarizeTotalsAndMonths(t *testing.T) {
	s := Summarize([]domain.FinancialTransaction{
		tx("1", "2024-02-10", domain.TransactionInflow, "1500.00"),
		tx("2", "2024-01-05", domain.TransactionFixedExpense, "800.00"),
		tx("3", "2024-02-28", domain.TransactionVariableExpense, "120.35"),
		tx("4", "2024-01-20", domain.TransactionInflow, "300.10"),
		tx("5", "2024-02-01", domain.TransactionOutflow, "50"),
	})

	assert.Equal(t, "1800.10", s.Inflow.StringFixed(2))
	assert.Equal(t, "970.35", s.Outflow.StringFixed(2))
	assert.Equal(t, "829.75", s.Balance.StringFixed(2))
	assert.Equal(t, "800.00", s.ByType[domain.TransactionFixedExpense].StringFixed(2))

	require.Len(t, s.Months, 2)
	assert.Equal(t, "2024-01", s.Months[0].Month)
	assert.Equal(t, "-499.90", s.Months[0].Balance.StringFixed(2))
	assert.Equal(t, "2024-02", s.Months[1].Month)
	assert.Equal(t, "1329.65", s.Months[1].Balance.StringFixed(2))
}

func TestSummarizeEmptyLedger(t *testing.T) {
	s := Summarize(nil)
	assert.True(t, s.Balance.IsZero())
	assert.Empty(t, s.Months)
}

func TestValidateRejectsBadFields(t *testing.T) {
	good := tx("1", "2024-02-10", domain.TransactionInflow, "10")
	require.NoError(t, Validate(good))

	bad := []domain.FinancialTransaction{
		func() domain.FinancialTransaction { t := good; t.Type = "Transferência"; return t }(),
		func() domain.FinancialTransaction { t := good; t.Value = decimal.Zero; return t }(),
		func() domain.FinancialTransaction { t := good; t.Date = time.Time{}; return t }(),
		func() domain.FinancialTransaction { t := good; t.Description = " "; return t }(),
	}
	for i, b := range bad {
		if err := Validate(b); !errors.Is(err, ErrInvalidTransaction) {
			t.Fatalf("case %d: expected ErrInvalidTransaction, got %v", i, err)
		}
	}
}
