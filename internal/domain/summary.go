package domain

import "github.com/shopspring/decimal"

// CategorySummary holds the aggregated totals for one category within one
// monthly period. Summaries are derived data: recomputed each run, never
// mutated once produced.
type CategorySummary struct {
	Period   string // "YYYY-MM"
	Category string

	Credits decimal.Decimal // sum of positive amounts
	Debits  decimal.Decimal // sum of absolute values of negative amounts
	Net     decimal.Decimal // Credits - Debits

	Count         int
	FallbackCount int // transactions whose category came from the fallback path
}

// PeriodSummary rolls a whole month up across categories.
type PeriodSummary struct {
	Period  string
	Credits decimal.Decimal
	Debits  decimal.Decimal
	Net     decimal.Decimal
}
