/*
Package certificate reads and writes acta workbooks.

PURPOSE:
  The parser turns one .xlsx payment certificate into a
  reconcile.Certificate: it locates the CORTE data sheet, resolves the
  unit price column from the two-row header band, extracts billed line
  items, and filters out labor rows that are never price-checked.

WORKBOOK LAYOUT (fixed by the certificate template):
  - data sheet:   named CORTE (any casing, trailing spaces tolerated)
  - contractor:   cell C6, falling back to D6, else "SIN NOMBRE"
  - header band:  rows 8 and 9, concatenated per column
  - data rows:    row 10 downward
  - item / description / unit: resolved by header name (ÍTEM,
    DESCRIPCIÓN, UN), falling back to columns A, B and D when the band
    does not carry the name
  - quantity:     column I (fixed by template, not by header)
  - unit price:   the first column whose header contains VALOR UNITARIO

  All cell reads go through the calculated-value view, so formula cells
  yield their cached results, not formula text.

SEE ALSO:
  - artifact.go: annotated copy + quantity sheet writer
*/
package certificate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/acta-engine/reconcile"
)

// =============================================================================
// TEMPLATE CONSTANTS
// =============================================================================

const (
	dataSheetName = "CORTE"

	headerRowA   = 7 // 0-based index of sheet row 8
	headerRowB   = 8 // 0-based index of sheet row 9
	firstDataRow = 9 // 0-based index of sheet row 10

	// header names matched against the normalized rows 8+9 band
	headerItem        = "item"
	headerDescription = "descripcion"
	headerUnit        = "un"
	headerPrice       = "valor unitario"

	// positional fallbacks for an incomplete header band
	fallbackItemCol = 0 // A
	fallbackDescCol = 1 // B
	fallbackUnitCol = 3 // D

	colQuantity = 8 // I

	contractorRow  = 5 // sheet row 6
	contractorColA = 2 // C
	contractorColB = 3 // D

	fallbackContractor = "SIN NOMBRE"
)

// laborDescMarkers exclude personnel rows by description. Substring
// match on the uppercased raw description.
var laborDescMarkers = []string{"MANO DE OBRA", "PEA"}

// laborItemMarker excludes crew codes by item code.
const laborItemMarker = "MR45"

// =============================================================================
// PARSING
// =============================================================================

// Parse reads one certificate workbook at path. sourceFile is the base
// name recorded on every emitted line item. Parse failures wrap one of
// the reconcile sentinel errors so the batch runner can skip the file.
func Parse(path, sourceFile string) (reconcile.Certificate, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return reconcile.Certificate{}, &reconcile.CertificateError{
			File: sourceFile,
			Err:  fmt.Errorf("%w: %v", reconcile.ErrUnreadableWorkbook, err),
		}
	}
	defer f.Close()

	sheet, ok := findDataSheet(f)
	if !ok {
		return reconcile.Certificate{}, &reconcile.CertificateError{
			File: sourceFile,
			Err:  reconcile.ErrMissingDataSheet,
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return reconcile.Certificate{}, &reconcile.CertificateError{
			File: sourceFile,
			Err:  fmt.Errorf("%w: %v", reconcile.ErrUnreadableWorkbook, err),
		}
	}

	headers := headerNames(rows)

	priceCol, ok := findPriceColumn(headers)
	if !ok {
		return reconcile.Certificate{}, &reconcile.CertificateError{
			File: sourceFile,
			Err:  reconcile.ErrMissingPriceColumn,
		}
	}
	priceColName, _ := excelize.ColumnNumberToName(priceCol + 1)

	itemCol := findColumn(headers, headerItem, fallbackItemCol)
	descCol := findColumn(headers, headerDescription, fallbackDescCol)
	unitCol := findColumn(headers, headerUnit, fallbackUnitCol)

	cert := reconcile.Certificate{
		SourceFile:  sourceFile,
		Sheet:       sheet,
		Contractor:  contractorName(rows),
		PriceColumn: priceColName,
	}

	for i := firstDataRow; i < len(rows); i++ {
		code := strings.TrimSpace(cellAt(rows, i, itemCol))
		desc := strings.TrimSpace(cellAt(rows, i, descCol))
		if code == "" || desc == "" {
			continue
		}
		if isLaborRow(code, desc) {
			continue
		}

		price, ok := parsePrice(cellAt(rows, i, priceCol))
		if !ok {
			continue
		}
		qty, ok := parseQuantity(cellAt(rows, i, colQuantity))
		if !ok {
			continue
		}

		unit := strings.TrimSpace(cellAt(rows, i, unitCol))
		cert.Items = append(cert.Items, reconcile.LineItem{
			Row:             i + 1,
			Code:            code,
			Description:     desc,
			DescriptionNorm: reconcile.NormalizeText(desc),
			Unit:            unit,
			UnitNorm:        reconcile.NormalizeUnit(unit),
			DeclaredPrice:   price,
			Quantity:        qty,
			SourceFile:      sourceFile,
		})
	}

	return cert, nil
}

// findDataSheet locates the CORTE sheet, tolerating casing and
// surrounding whitespace in the tab name.
func findDataSheet(f *excelize.File) (string, bool) {
	for _, name := range f.GetSheetList() {
		if strings.EqualFold(strings.TrimSpace(name), dataSheetName) {
			return name, true
		}
	}
	return "", false
}

// headerNames concatenates the two header rows per column and
// normalizes each name. Columns without a header yield "".
func headerNames(rows [][]string) []string {
	width := 0
	if len(rows) > headerRowA {
		width = len(rows[headerRowA])
	}
	if len(rows) > headerRowB && len(rows[headerRowB]) > width {
		width = len(rows[headerRowB])
	}

	names := make([]string, width)
	for col := 0; col < width; col++ {
		header := cellAt(rows, headerRowA, col) + " " + cellAt(rows, headerRowB, col)
		names[col] = reconcile.NormalizeText(header)
	}
	return names
}

// findColumn resolves a named column from the header band, falling back
// to the template position when the band does not carry the name.
func findColumn(headers []string, name string, fallback int) int {
	for col, header := range headers {
		if header == name {
			return col
		}
	}
	return fallback
}

// findPriceColumn locates the unit price column: an exact VALOR
// UNITARIO header wins, otherwise the first header containing it (some
// templates title it VALOR UNITARIO PRESENTE). There is no positional
// fallback; without the header the certificate cannot be reviewed.
func findPriceColumn(headers []string) (int, bool) {
	for col, header := range headers {
		if header == headerPrice {
			return col, true
		}
	}
	for col, header := range headers {
		if strings.Contains(header, headerPrice) {
			return col, true
		}
	}
	return 0, false
}

// contractorName reads C6, falls back to D6, then to the placeholder.
func contractorName(rows [][]string) string {
	if name := strings.TrimSpace(cellAt(rows, contractorRow, contractorColA)); name != "" {
		return name
	}
	if name := strings.TrimSpace(cellAt(rows, contractorRow, contractorColB)); name != "" {
		return name
	}
	return fallbackContractor
}

// isLaborRow reports whether a row bills personnel rather than work
// items. Labor rows carry freely negotiated rates and are never
// reconciled.
func isLaborRow(code, desc string) bool {
	descUpper := strings.ToUpper(desc)
	for _, marker := range laborDescMarkers {
		if strings.Contains(descUpper, marker) {
			return true
		}
	}
	return strings.Contains(strings.ToUpper(code), laborItemMarker)
}

// parsePrice strips currency formatting ($ signs, thousands commas)
// and parses the remainder. Rows without a parsable price are skipped.
func parsePrice(raw string) (decimal.Decimal, bool) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	if clean == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parseQuantity parses column I. Zero and unparsable quantities both
// drop the row: a zero-quantity item bills nothing.
func parseQuantity(raw string) (decimal.Decimal, bool) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if clean == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(clean)
	if err != nil || d.IsZero() {
		return decimal.Decimal{}, false
	}
	return d, true
}

// cellAt is a bounds-safe read of the ragged matrix GetRows returns.
func cellAt(rows [][]string, row, col int) string {
	if row >= len(rows) || col >= len(rows[row]) {
		return ""
	}
	return rows[row][col]
}
