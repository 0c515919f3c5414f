/*
engine.go - Per-certificate reconciliation

PURPOSE:
  The Engine walks every line item of a parsed certificate, classifies
  it, resolves a reference price, and flags deviations. It is pure: the
  output is data (records, totals, annotation directives, quantity
  tables) and the document-writing side effects happen elsewhere.

LINE ITEM STATES:
  PARSED -> CLASSIFIED (category or none)
         -> REFERENCE_LOOKUP -> NO_REFERENCE      (dropped)
                             -> WITHIN_TOLERANCE  (no record)
                             -> FLAGGED           (record + annotation)
  Labor rows never reach the engine; the parser excludes them.

DEVIATION RULE:
  diff = declared - reference. Flag iff |diff| > 1 (absolute currency
  units, fixed). |diff| == 1 exactly is within tolerance. The sign of
  diff picks the annotation color: overpaid red, underpaid blue.

ADJUSTED VALUE:
  adjusted = reference price x declared quantity. Always computed on the
  reference price; this is the system's corrective output.

CATEGORY TOTALS:
  Updated for every classified item with a valid non-zero quantity,
  regardless of whether a reference exists or the price deviates.
*/
package reconcile

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tolerance is the fixed absolute deviation allowed before flagging.
var Tolerance = decimal.NewFromInt(1)

// Annotation colors applied to the declared-price cell of flagged rows.
// Rendering signal only, not part of the data contract.
const (
	ColorOverpaid  = "FF0000" // declared above reference
	ColorUnderpaid = "0000FF" // declared below reference
)

// Annotation is a (row, color) directive for the artifact writer.
type Annotation struct {
	Row   int
	Color string
}

// QuantityEntry is one classified row of the appended quantity sheet.
type QuantityEntry struct {
	Item        string
	Description string
	Unit        string
	Quantity    decimal.Decimal
}

// CertificateResult is everything the engine derives from one acta.
type CertificateResult struct {
	Records     []Record
	Totals      CategoryTotals
	Annotations []Annotation

	// Quantities backs the CUADRO_CANTIDADES sheet: classified rows per
	// family, in certificate order.
	Quantities map[Category][]QuantityEntry
}

// Engine reconciles parsed certificates against one resolver snapshot.
type Engine struct {
	Resolver Resolver
}

// NewEngine creates an engine bound to a resolver snapshot.
func NewEngine(resolver Resolver) *Engine {
	return &Engine{Resolver: resolver}
}

// Review runs the per-line-item state machine over one certificate.
func (e *Engine) Review(cert Certificate, year int, month string) CertificateResult {
	result := CertificateResult{
		Totals: CategoryTotals{
			Year:       year,
			Month:      month,
			SourceFile: cert.SourceFile,
			Contractor: cert.Contractor,
			Mode:       e.Resolver.Mode(),
		},
		Quantities: make(map[Category][]QuantityEntry),
	}

	for _, item := range cert.Items {
		// CLASSIFIED: quantities aggregate whether or not the price is
		// reconcilable.
		if cat, ok := Classify(item.DescriptionNorm); ok {
			result.Totals.Add(cat, item.Quantity)
			result.Quantities[cat] = append(result.Quantities[cat], QuantityEntry{
				Item:        item.Code,
				Description: item.Description,
				Unit:        item.UnitNorm,
				Quantity:    item.Quantity,
			})
		}

		// REFERENCE_LOOKUP
		reference, ok := e.Resolver.Lookup(item.DescriptionNorm, item.UnitNorm)
		if !ok {
			continue // NO_REFERENCE: not reconcilable, not an error
		}

		diff := item.DeclaredPrice.Sub(reference)
		if diff.Abs().LessThanOrEqual(Tolerance) {
			continue // WITHIN_TOLERANCE
		}

		// FLAGGED
		color := ColorOverpaid
		if diff.IsNegative() {
			color = ColorUnderpaid
		}
		result.Annotations = append(result.Annotations, Annotation{Row: item.Row, Color: color})

		result.Records = append(result.Records, Record{
			ID:             uuid.NewString(),
			Year:           year,
			Month:          month,
			SourceFile:     cert.SourceFile,
			Contractor:     cert.Contractor,
			ItemCode:       item.Code,
			Description:    item.Description,
			Unit:           item.UnitNorm,
			DeclaredPrice:  item.DeclaredPrice,
			ReferencePrice: reference,
			Quantity:       item.Quantity,
			AdjustedValue:  reference.Mul(item.Quantity),
			Mode:           e.Resolver.Mode(),
		})
	}

	return result
}
