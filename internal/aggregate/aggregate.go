// Package aggregate computes per-category, per-month financial summaries
// from fully classified transactions. Output is deterministic: identical
// input always yields identical summaries in identical order.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jemadeira/extrato/internal/domain"
)

// Report is the structured summary handed to external renderers.
type Report struct {
	Summaries []domain.CategorySummary
	Periods   []domain.PeriodSummary

	TotalCredits decimal.Decimal
	TotalDebits  decimal.Decimal
	Net          decimal.Decimal
}

// Transactions aggregates a classified batch. Every transaction must carry a
// category by now; a missing category or an unclassified source is an
// upstream contract violation and fails with *domain.AggregationError.
func Transactions(txs []domain.Transaction) (*Report, error) {
	type key struct {
		period   string
		category string
	}

	groups := make(map[key]*domain.CategorySummary)
	periods := make(map[string]*domain.PeriodSummary)

	report := &Report{
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
		Net:          decimal.Zero,
	}

	for _, tx := range txs {
		if !tx.Classified() {
			return nil, &domain.AggregationError{TransactionID: tx.ID, Reason: "transaction reached aggregation without a category"}
		}
		if tx.Source == "" {
			return nil, &domain.AggregationError{TransactionID: tx.ID, Reason: "transaction has no classification source"}
		}
		if !tx.Date.IsValid() {
			return nil, &domain.AggregationError{TransactionID: tx.ID, Reason: "transaction has no valid date"}
		}

		k := key{period: tx.Period(), category: tx.Category}
		g, ok := groups[k]
		if !ok {
			g = &domain.CategorySummary{
				Period:   k.period,
				Category: k.category,
				Credits:  decimal.Zero,
				Debits:   decimal.Zero,
				Net:      decimal.Zero,
			}
			groups[k] = g
		}

		p, ok := periods[k.period]
		if !ok {
			p = &domain.PeriodSummary{
				Period:  k.period,
				Credits: decimal.Zero,
				Debits:  decimal.Zero,
				Net:     decimal.Zero,
			}
			periods[k.period] = p
		}

		if tx.Amount.Sign() >= 0 {
			g.Credits = g.Credits.Add(tx.Amount)
			p.Credits = p.Credits.Add(tx.Amount)
			report.TotalCredits = report.TotalCredits.Add(tx.Amount)
		} else {
			abs := tx.Amount.Abs()
			g.Debits = g.Debits.Add(abs)
			p.Debits = p.Debits.Add(abs)
			report.TotalDebits = report.TotalDebits.Add(abs)
		}
		g.Net = g.Credits.Sub(g.Debits)
		p.Net = p.Credits.Sub(p.Debits)

		g.Count++
		if tx.Source == domain.SourceFallback {
			g.FallbackCount++
		}
	}

	report.Net = report.TotalCredits.Sub(report.TotalDebits)

	// Deterministic ordering: period ascending, then category.
	report.Summaries = make([]domain.CategorySummary, 0, len(groups))
	for _, g := range groups {
		report.Summaries = append(report.Summaries, *g)
	}
	sort.Slice(report.Summaries, func(i, j int) bool {
		a, b := report.Summaries[i], report.Summaries[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Category < b.Category
	})

	report.Periods = make([]domain.PeriodSummary, 0, len(periods))
	for _, p := range periods {
		report.Periods = append(report.Periods, *p)
	}
	sort.Slice(report.Periods, func(i, j int) bool {
		return report.Periods[i].Period < report.Periods[j].Period
	})

	return report, nil
}
