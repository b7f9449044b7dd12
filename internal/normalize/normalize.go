// Package normalize turns bank-specific RawRecords into canonical
// Transactions: ISO calendar dates, one signed-decimal amount convention and
// cleaned description text, regardless of which bank produced the file.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jemadeira/extrato/internal/domain"
)

// Result carries the outcome of normalizing one batch of raw records.
// Normalization has partial-failure semantics: a bad record lands in Errors
// and the rest of the batch proceeds.
type Result struct {
	Transactions []domain.Transaction
	Errors       []*domain.NormalizationError
	// BalanceDropped counts opening/closing balance records ("SALDO" lines)
	// removed on purpose; they are bookkeeping artifacts, not transactions.
	BalanceDropped int
}

// Records normalizes a batch in input order. Transaction ids reuse the bank's
// FITID when present so that re-processing the same statement produces the
// same ids; records without one get a fresh UUID.
func Records(records []domain.RawRecord) Result {
	var res Result
	seen := make(map[string]bool, len(records))

	for _, rec := range records {
		if isBalanceRecord(rec) {
			res.BalanceDropped++
			continue
		}

		tx, nerr := one(rec)
		if nerr != nil {
			res.Errors = append(res.Errors, nerr)
			continue
		}

		// FITIDs are only unique per bank feed; a collision inside one batch
		// means a duplicated record, and the id invariant wins.
		if seen[tx.ID] {
			tx.ID = uuid.NewString()
		}
		seen[tx.ID] = true

		res.Transactions = append(res.Transactions, tx)
	}
	return res
}

func one(rec domain.RawRecord) (domain.Transaction, *domain.NormalizationError) {
	date, err := parseDate(rec.Field("DTPOSTED"))
	if err != nil {
		return domain.Transaction{}, &domain.NormalizationError{Record: rec, Field: "DTPOSTED", Reason: err.Error()}
	}

	amount, err := parseAmount(rec)
	if err != nil {
		return domain.Transaction{}, &domain.NormalizationError{Record: rec, Field: "TRNAMT", Reason: err.Error()}
	}

	desc := CleanDescription(rec.Field("MEMO"))
	if desc == "" {
		desc = CleanDescription(rec.Field("NAME"))
	}
	if desc == "" {
		return domain.Transaction{}, &domain.NormalizationError{Record: rec, Field: "MEMO", Reason: "missing description"}
	}

	id := strings.TrimSpace(rec.Field("FITID"))
	if id == "" {
		id = uuid.NewString()
	}

	return domain.Transaction{
		ID:          id,
		Date:        date,
		Amount:      amount,
		Description: desc,
		Bank:        rec.Bank,
		RawCategory: rec.Field("TRNTYPE"),
	}, nil
}

// parseAmount resolves the signed-decimal amount using the bank-specific
// convention. Direction is never guessed from description text: Banco do
// Brasil declares it in TRNTYPE, Itaú in the sign of TRNAMT.
func parseAmount(rec domain.RawRecord) (decimal.Decimal, error) {
	raw := strings.TrimSpace(rec.Field("TRNAMT"))
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("missing amount")
	}

	value, err := ParseDecimal(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}

	switch rec.Bank {
	case domain.BankBrasil:
		switch rec.Field("TRNTYPE") {
		case "CREDIT", "DEP":
			return value.Abs(), nil
		case "DEBIT":
			return value.Abs().Neg(), nil
		default:
			// XFER/OTHER carry no direction of their own; the signed amount
			// is the documented tie-break for this variant.
			return value, nil
		}
	case domain.BankItau:
		return value, nil
	default:
		return decimal.Decimal{}, fmt.Errorf("unknown bank variant %q", rec.Bank)
	}
}

// ParseDecimal accepts both dot-decimal ("-1234.56") and Brazilian
// comma-decimal ("-1.234,56") representations.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		// "1.234,56": dots are thousand separators, comma is the point.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

var dateLayouts = []string{"20060102150405", "20060102", "02/01/2006"}

// parseDate handles the DTPOSTED shapes seen across variants: bare dates,
// date-times, and date-times with a "[-3:BRT]" timezone suffix.
func parseDate(raw string) (civil.Date, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return civil.Date{}, fmt.Errorf("missing date")
	}
	if i := strings.Index(s, "["); i >= 0 {
		s = s[:i]
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := civil.DateOf(t)
			if !d.IsValid() {
				return civil.Date{}, fmt.Errorf("invalid calendar date %q", raw)
			}
			return d, nil
		}
	}
	return civil.Date{}, fmt.Errorf("unparseable date %q", raw)
}

// mojibake holds the UTF-8-decoded-as-Latin-1 sequences that show up in
// statements exported with the wrong charset declaration. Each pattern is a
// two-rune sequence; a bare Ã is valid text (SÃO, CARTÃO), never an artifact
// on its own, and must pass through untouched.
var mojibake = strings.NewReplacer(
	"Ã£", "ã", "Ã¡", "á", "Ã¢", "â", "Ã©", "é", "Ãª", "ê",
	"Ã­", "í", "Ã³", "ó", "Ãµ", "õ", "Ã´", "ô", "Ãº", "ú",
	"Ã§", "ç", "Ã‡", "Ç", "Ã‰", "É", "Ã•", "Õ", "Ã", "Á",
)

// CleanDescription trims, collapses whitespace and repairs common encoding
// artifacts in description text.
func CleanDescription(s string) string {
	s = mojibake.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// isBalanceRecord detects opening/closing balance lines, which Banco do
// Brasil emits as pseudo-transactions with "SALDO" in the memo.
func isBalanceRecord(rec domain.RawRecord) bool {
	memo := strings.ToUpper(rec.Field("MEMO"))
	return strings.Contains(memo, "SALDO ANTERIOR") ||
		strings.Contains(memo, "S A L D O") ||
		strings.HasPrefix(memo, "SALDO")
}
