// Package finance aggregates the financial ledger for display: totals by
// direction and type, and monthly buckets.
package finance

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"lojafacil/backend/internal/domain"
)

var ErrInvalidTransaction = errors.New("invalid financial transaction")

type Bucket struct {
	Month   string          `json:"month"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Balance decimal.Decimal `json:"balance"`
}

type Summary struct {
	Inflow  decimal.Decimal                            `json:"inflow"`
	Outflow decimal.Decimal                            `json:"outflow"`
	Balance decimal.Decimal                            `json:"balance"`
	ByType  map[domain.TransactionType]decimal.Decimal `json:"byType"`
	Months  []Bucket                                   `json:"months"`
}

// Validate checks the per-field rules of a ledger entry.
func Validate(tx domain.FinancialTransaction) error {
	switch {
	case !tx.Type.Valid():
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, tx.Type)
	case !tx.Value.IsPositive():
		return fmt.Errorf("%w: value must be positive", ErrInvalidTransaction)
	case tx.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidTransaction)
	case strings.TrimSpace(tx.Description) == "":
		return fmt.Errorf("%w: description is required", ErrInvalidTransaction)
	}
	return nil
}

// Summarize totals txs. Months are keyed YYYY-MM in UTC and sorted oldest
// first.
func Summarize(txs []domain.FinancialTransaction) Summary {
	s := Summary{
		Inflow:  decimal.Zero,
		Outflow: decimal.Zero,
		ByType:  make(map[domain.TransactionType]decimal.Decimal, 4),
	}
	months := make(map[string]*Bucket)

	for _, tx := range txs {
		key := tx.Date.UTC().Format("2006-01")
		b, ok := months[key]
		if !ok {
			b = &Bucket{Month: key, Inflow: decimal.Zero, Outflow: decimal.Zero}
			months[key] = b
		}

		if tx.Type.IsInflow() {
			s.Inflow = s.Inflow.Add(tx.Value)
			b.Inflow = b.Inflow.Add(tx.Value)
		} else {
			s.Outflow = s.Outflow.Add(tx.Value)
			b.Outflow = b.Outflow.Add(tx.Value)
		}
		s.ByType[tx.Type] = s.ByType[tx.Type].Add(tx.Value)
	}

	s.Balance = s.Inflow.Sub(s.Outflow)
	s.Months = make([]Bucket, 0, len(months))
	for _, b := range months {
		b.Balance = b.Inflow.Sub(b.Outflow)
		s.Months = append(s.Months, *b)
	}
	sort.Slice(s.Months, func(i, j int) bool { return s.Months[i].Month < s.Months[j].Month })
	return s
}
