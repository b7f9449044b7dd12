package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

func TestTransaction_Direction(t *testing.T) {
	credit := Transaction{Amount: decimal.RequireFromString("10.00")}
	if credit.Direction() != DirectionCredit {
		t.Errorf("positive amount: Direction() = %q, want credit", credit.Direction())
	}

	debit := Transaction{Amount: decimal.RequireFromString("-10.00")}
	if debit.Direction() != DirectionDebit {
		t.Errorf("negative amount: Direction() = %q, want debit", debit.Direction())
	}

	zero := Transaction{Amount: decimal.Zero}
	if zero.Direction() != DirectionCredit {
		t.Errorf("zero amount: Direction() = %q, want credit", zero.Direction())
	}
}

func TestTransaction_Period(t *testing.T) {
	tx := Transaction{Date: civil.Date{Year: 2024, Month: 3, Day: 31}}
	if got := tx.Period(); got != "2024-03" {
		t.Errorf("Period() = %q, want 2024-03", got)
	}
}

func TestBank_Valid(t *testing.T) {
	for _, bank := range []Bank{BankBrasil, BankItau} {
		if !bank.Valid() {
			t.Errorf("%q must be valid", bank)
		}
	}
	for _, bank := range []Bank{"", "nubank", "BB"} {
		if bank.Valid() {
			t.Errorf("%q must be invalid", bank)
		}
	}
}

func TestIsTransient(t *testing.T) {
	direct := &ClassificationTransientError{Err: fmt.Errorf("timeout")}
	if !IsTransient(direct) {
		t.Error("direct transient error not recognized")
	}
	if !IsTransient(fmt.Errorf("batch 2: %w", direct)) {
		t.Error("wrapped transient error not recognized")
	}
	if IsTransient(&ClassificationProtocolError{TransactionID: "t1", Reason: "bad label"}) {
		t.Error("protocol errors are not transient")
	}
	if IsTransient(context.Canceled) {
		t.Error("cancellation is not transient")
	}
	if IsTransient(nil) {
		t.Error("nil is not transient")
	}
}

func TestClassificationTransientError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	err := &ClassificationTransientError{Err: inner}
	if !errors.Is(err, inner) {
		t.Error("Unwrap must expose the inner error")
	}
}
