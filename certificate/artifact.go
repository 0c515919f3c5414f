/*
artifact.go - Annotated certificate copies

PURPOSE:
  Applies the engine's annotation directives to a copy of the original
  workbook and appends the CUADRO_CANTIDADES sheet, then saves the copy
  as <name>_verificado.xlsx. The original file is never modified.

ANNOTATIONS:
  Each directive colors the font of the unit price cell on the flagged
  row: red for declared-above-reference, blue for declared-below.

CUADRO_CANTIDADES:
  One column per work family, headers in B1..E1, bare quantities from
  row 2 downward in certificate order, and a TOTAL row with SUM
  formulas under the longest column. Recreated from scratch on every
  run so re-processing a period stays idempotent.
*/
package certificate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/warp/acta-engine/reconcile"
)

const quantitySheetName = "CUADRO_CANTIDADES"

// VerifiedSuffix marks annotated output copies.
const VerifiedSuffix = "_verificado"

// VerifiedName derives the annotated copy's file name from the source
// file name.
func VerifiedName(sourceFile string) string {
	ext := filepath.Ext(sourceFile)
	return strings.TrimSuffix(sourceFile, ext) + VerifiedSuffix + ext
}

// WriteAnnotated copies the workbook at path into outDir with the
// engine's annotations applied and the quantity sheet rebuilt. It
// returns the written file path.
func WriteAnnotated(path, outDir string, cert reconcile.Certificate, result reconcile.CertificateResult) (string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return "", &reconcile.CertificateError{
			File: cert.SourceFile,
			Err:  fmt.Errorf("%w: %v", reconcile.ErrUnreadableWorkbook, err),
		}
	}
	defer f.Close()

	if err := applyAnnotations(f, cert, result.Annotations); err != nil {
		return "", fmt.Errorf("annotate %s: %w", cert.SourceFile, err)
	}
	if err := writeQuantitySheet(f, result.Quantities); err != nil {
		return "", fmt.Errorf("quantity sheet %s: %w", cert.SourceFile, err)
	}

	out := filepath.Join(outDir, VerifiedName(cert.SourceFile))
	if err := f.SaveAs(out); err != nil {
		return "", fmt.Errorf("save %s: %w", out, err)
	}
	return out, nil
}

// applyAnnotations colors the unit price cell font on each flagged row.
func applyAnnotations(f *excelize.File, cert reconcile.Certificate, annotations []reconcile.Annotation) error {
	styles := make(map[string]int, 2)

	for _, a := range annotations {
		styleID, ok := styles[a.Color]
		if !ok {
			var err error
			styleID, err = f.NewStyle(&excelize.Style{
				Font: &excelize.Font{Color: a.Color},
			})
			if err != nil {
				return err
			}
			styles[a.Color] = styleID
		}

		cell := fmt.Sprintf("%s%d", cert.PriceColumn, a.Row)
		if err := f.SetCellStyle(cert.Sheet, cell, cell, styleID); err != nil {
			return err
		}
	}
	return nil
}

// writeQuantitySheet recreates CUADRO_CANTIDADES from the per-family
// quantity tables.
func writeQuantitySheet(f *excelize.File, quantities map[reconcile.Category][]reconcile.QuantityEntry) error {
	if idx, _ := f.GetSheetIndex(quantitySheetName); idx >= 0 {
		if err := f.DeleteSheet(quantitySheetName); err != nil {
			return err
		}
	}
	if _, err := f.NewSheet(quantitySheetName); err != nil {
		return err
	}

	// headers in B..E, one column per family in fixed order
	longest := 0
	for i, cat := range reconcile.Categories {
		col, _ := excelize.ColumnNumberToName(i + 2)
		if err := f.SetCellValue(quantitySheetName, col+"1", cat.Label()); err != nil {
			return err
		}

		entries := quantities[cat]
		if len(entries) > longest {
			longest = len(entries)
		}
		for j, entry := range entries {
			cell := fmt.Sprintf("%s%d", col, j+2)
			qty, _ := entry.Quantity.Float64()
			if err := f.SetCellValue(quantitySheetName, cell, qty); err != nil {
				return err
			}
		}
	}

	// TOTAL row under the longest column
	totalRow := 2 + longest
	if err := f.SetCellValue(quantitySheetName, fmt.Sprintf("A%d", totalRow), "TOTAL"); err != nil {
		return err
	}
	for i := range reconcile.Categories {
		col, _ := excelize.ColumnNumberToName(i + 2)
		cell := fmt.Sprintf("%s%d", col, totalRow)
		if longest == 0 {
			if err := f.SetCellValue(quantitySheetName, cell, 0); err != nil {
				return err
			}
			continue
		}
		formula := fmt.Sprintf("SUM(%s2:%s%d)", col, col, totalRow-1)
		if err := f.SetCellFormula(quantitySheetName, cell, formula); err != nil {
			return err
		}
	}
	return nil
}
