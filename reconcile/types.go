/*
Package reconcile provides the core acta reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms for checking unit
  prices declared in monthly contractor payment certificates (actas)
  against an authoritative reference price list: text/unit normalization,
  activity classification, reference-price resolution, deviation
  detection with adjustment computation, and aggregation into contractor
  and category summaries.

KEY CONCEPTS IN THIS FILE (types.go):
  - LineItem: one billed row parsed out of a certificate
  - Certificate: a fully parsed acta (contractor + line items)
  - Record: a flagged deviation with its corrected (adjusted) value
  - CategoryTotals: per-certificate quantity accumulators by work family
  - ContractorSummary: derived per-contractor rollup of flagged records

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for every price and quantity, never raw
     floats in ledger arithmetic
  2. Purity: the engine computes records and annotation directives; all
     file and database side effects live in certificate/, batch/ and
     store/
  3. Snapshot resolvers: reference prices are captured once at resolver
     construction and immutable for the duration of a run

SEE ALSO:
  - normalize.go: text/unit canonicalization
  - classify.go:  work-family classification
  - resolver.go:  exact and keyword reference lookups
  - engine.go:    per-certificate review
  - aggregate.go: contractor/category/global rollups
*/
package reconcile

import (
	"github.com/shopspring/decimal"
)

// Mode selects the reference lookup strategy for a run.
type Mode string

const (
	// ModeExact matches on (normalized description, normalized unit)
	// against the reference price database.
	ModeExact Mode = "exact"

	// ModeKeyword matches critical activities by normalized-keyword
	// containment, ignoring units.
	ModeKeyword Mode = "keyword"
)

// =============================================================================
// LINE ITEM - One billed row of a certificate
// =============================================================================

// LineItem is a single billed row. Immutable once produced by the
// certificate parser; rows with labor markers, unparsable prices or
// zero/invalid quantities are never emitted as LineItems.
type LineItem struct {
	Row             int    // 1-based sheet row, for annotation directives
	Code            string // item code, may repeat across periods
	Description     string // raw description as billed
	DescriptionNorm string // NormalizeText(Description)
	Unit            string // raw unit label
	UnitNorm        string // NormalizeUnit(Unit)

	DeclaredPrice decimal.Decimal
	Quantity      decimal.Decimal

	SourceFile string
}

// Certificate is one parsed acta.
type Certificate struct {
	SourceFile  string
	Sheet       string // resolved data sheet name (CORTE variant)
	Contractor  string
	PriceColumn string // resolved VALOR UNITARIO column letter
	Items       []LineItem
}

// =============================================================================
// RECORD - A flagged price deviation
// =============================================================================

// Record is created only when |declared - reference| exceeds the
// tolerance. AdjustedValue is always reference price times quantity: the
// corrective payable amount, never the declared one.
type Record struct {
	ID         string
	Year       int
	Month      string
	SourceFile string
	Contractor string

	ItemCode    string
	Description string
	Unit        string

	DeclaredPrice  decimal.Decimal
	ReferencePrice decimal.Decimal
	Quantity       decimal.Decimal
	AdjustedValue  decimal.Decimal

	Mode Mode
}

// Deviation returns declared minus reference. Positive means overpaid.
func (r Record) Deviation() decimal.Decimal {
	return r.DeclaredPrice.Sub(r.ReferencePrice)
}

// Overpaid reports whether the declared price exceeds the reference.
func (r Record) Overpaid() bool {
	return r.Deviation().IsPositive()
}

// =============================================================================
// CATEGORY TOTALS - Per-certificate quantity accumulators
// =============================================================================

// CategoryTotals accumulates billed quantities per work family for one
// certificate, independent of price matching. Created once per
// certificate, merged additively across a batch.
type CategoryTotals struct {
	Year       int
	Month      string
	SourceFile string
	Contractor string

	Excavation      decimal.Decimal
	Backfill        decimal.Decimal
	ConcreteMR      decimal.Decimal
	ConcreteStamped decimal.Decimal

	Mode Mode
}

// Add accumulates a quantity into the matching category bucket.
func (t *CategoryTotals) Add(c Category, qty decimal.Decimal) {
	switch c {
	case CategoryExcavation:
		t.Excavation = t.Excavation.Add(qty)
	case CategoryBackfill:
		t.Backfill = t.Backfill.Add(qty)
	case CategoryConcreteMR:
		t.ConcreteMR = t.ConcreteMR.Add(qty)
	case CategoryConcreteStamped:
		t.ConcreteStamped = t.ConcreteStamped.Add(qty)
	}
}

// Get returns the accumulator for a category.
func (t *CategoryTotals) Get(c Category) decimal.Decimal {
	switch c {
	case CategoryExcavation:
		return t.Excavation
	case CategoryBackfill:
		return t.Backfill
	case CategoryConcreteMR:
		return t.ConcreteMR
	case CategoryConcreteStamped:
		return t.ConcreteStamped
	}
	return decimal.Zero
}

// =============================================================================
// CONTRACTOR SUMMARY - Derived rollup, never persisted independently
// =============================================================================

// ContractorSummary is recomputed by grouping Records; it is not stored.
type ContractorSummary struct {
	Contractor    string
	FlaggedItems  int
	AdjustedTotal decimal.Decimal
}
