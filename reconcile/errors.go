/*
errors.go - Centralized error types for the reconciliation engine

PURPOSE:
  All sentinel errors in one place. A certificate-level failure is
  recoverable: the batch runner skips the file, records a diagnostic,
  and continues. A ledger write failure is fatal to the run and must
  reach the caller.

USAGE:
  if errors.Is(err, reconcile.ErrMissingDataSheet) { ... }
*/
package reconcile

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingDataSheet is returned when a workbook has no CORTE sheet.
	// The certificate is skipped; the batch continues.
	ErrMissingDataSheet = errors.New("data sheet CORTE not found")

	// ErrMissingPriceColumn is returned when no header contains
	// VALOR UNITARIO. Treated as a malformed certificate.
	ErrMissingPriceColumn = errors.New("unit price column not found")

	// ErrUnreadableWorkbook is returned when a file cannot be opened as
	// a spreadsheet at all.
	ErrUnreadableWorkbook = errors.New("workbook unreadable")

	// ErrInvalidPeriod is returned when a folder name yields no
	// (year, month).
	ErrInvalidPeriod = errors.New("period name has no year or month")

	// ErrLedgerWrite is returned when persisting a period's results
	// fails. Fatal to the run: losing a period silently is worse than
	// aborting.
	ErrLedgerWrite = errors.New("ledger write failed")
)

// CertificateError wraps a per-file parse failure with its source file.
type CertificateError struct {
	File string
	Err  error
}

func (e *CertificateError) Error() string {
	return fmt.Sprintf("certificate %s: %v", e.File, e.Err)
}

func (e *CertificateError) Unwrap() error { return e.Err }

// IsCertificateFailure reports whether an error is recoverable at the
// batch level (skip the file, keep going).
func IsCertificateFailure(err error) bool {
	return errors.Is(err, ErrMissingDataSheet) ||
		errors.Is(err, ErrMissingPriceColumn) ||
		errors.Is(err, ErrUnreadableWorkbook)
}
