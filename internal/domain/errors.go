package domain

import (
	"errors"
	"fmt"
)

// FormatError means a source file does not match the structural grammar
// expected for its declared bank variant. Fatal for that file only; sibling
// files in the same upload continue.
type FormatError struct {
	Bank   Bank
	File   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error: %s (%s): %s", e.File, e.Bank, e.Reason)
}

// EmptyInputError means a file parsed cleanly but contained zero transactions.
type EmptyInputError struct {
	File string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("empty input: no transactions found in %s", e.File)
}

// NormalizationError marks a single raw record that could not be normalized.
// It is recoverable: the record is skipped and reported, the batch continues.
type NormalizationError struct {
	Record RawRecord
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization error: %s line %d, field %q: %s",
		e.Record.SourceFile, e.Record.Line, e.Field, e.Reason)
}

// ClassificationTransientError wraps a failure that is worth retrying:
// timeouts, transport errors, unparseable model output.
type ClassificationTransientError struct {
	Err error
}

func (e *ClassificationTransientError) Error() string {
	return fmt.Sprintf("transient classification error: %v", e.Err)
}

func (e *ClassificationTransientError) Unwrap() error { return e.Err }

// ClassificationProtocolError means the reasoning service answered, but the
// answer violates the response contract (missing id, label outside the
// vocabulary, duplicate label). It triggers the fallback path, never aborts.
type ClassificationProtocolError struct {
	TransactionID string
	Reason        string
}

func (e *ClassificationProtocolError) Error() string {
	return fmt.Sprintf("classification protocol error: transaction %s: %s", e.TransactionID, e.Reason)
}

// AggregationError indicates structurally invalid input reaching the
// aggregator. This is an upstream contract violation, not a user error, and
// aborts the run.
type AggregationError struct {
	TransactionID string
	Reason        string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregation error: transaction %s: %s", e.TransactionID, e.Reason)
}

// IsTransient reports whether err is (or wraps) a retryable classification
// failure.
func IsTransient(err error) bool {
	var te *ClassificationTransientError
	return errors.As(err, &te)
}
