package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Bank identifies a supported source-bank statement variant.
type Bank string

const (
	BankBrasil Bank = "bb"
	BankItau   Bank = "itau"
)

// Valid reports whether b is one of the supported variants.
func (b Bank) Valid() bool {
	switch b {
	case BankBrasil, BankItau:
		return true
	}
	return false
}

// Direction is the semantic direction of a transaction.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// ClassificationSource records how a transaction received its category.
type ClassificationSource string

const (
	// SourceRule means a configured keyword rule matched before any model call.
	SourceRule ClassificationSource = "rule"
	// SourceAI means the external reasoning service assigned the category.
	SourceAI ClassificationSource = "ai"
	// SourceFallback means classification could not produce a valid label and
	// the fallback category was applied.
	SourceFallback ClassificationSource = "fallback"
)

// RawRecord holds one transaction as extracted from a source file, before any
// normalization. Fields carries the bank-specific key/value pairs verbatim;
// the normalizer decides what they mean.
type RawRecord struct {
	Bank       Bank
	SourceFile string
	Line       int
	Fields     map[string]string
}

// Field returns the named raw field, or "" when absent.
func (r RawRecord) Field(key string) string {
	return r.Fields[key]
}

// Transaction is the canonical transaction entity produced by the normalizer.
// The classifier adapter is the only component allowed to mutate it, and only
// the Category/Source/Confidence fields; after classification it is read-only.
type Transaction struct {
	ID          string
	Date        civil.Date
	Amount      decimal.Decimal // positive = credit, negative = debit
	Description string
	Bank        Bank
	RawCategory string // optional hint from the source file (TRNTYPE etc.)

	Category   string // empty until classified
	Source     ClassificationSource
	Confidence float64
}

// Direction derives the semantic direction from the amount sign.
func (t Transaction) Direction() Direction {
	if t.Amount.Sign() >= 0 {
		return DirectionCredit
	}
	return DirectionDebit
}

// Classified reports whether the transaction has received a category.
func (t Transaction) Classified() bool {
	return t.Category != ""
}

// Period returns the month the transaction belongs to, as "YYYY-MM".
func (t Transaction) Period() string {
	return t.Date.String()[:7]
}
