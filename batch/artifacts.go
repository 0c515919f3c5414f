/*
artifacts.go - Summary workbook layout

PURPOSE:
  Renders the per-period and global summary workbooks from ledger data.
  Both are regenerated from scratch on every run; the ledger is the
  source of truth, the workbooks are views.

PERIOD WORKBOOK (resumen_<period>.xlsx):
  RESUMEN     per-contractor flagged count and adjusted-value sum
  REGISTRO    every flagged record of the period
  CANTIDADES  per-contractor quantity totals by work family

GLOBAL WORKBOOK (resumen_global.xlsx):
  RESUMEN     (year, month, contractor) rollup over the whole ledger
  REGISTRO    every flagged record ever stored
*/
package batch

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/warp/acta-engine/reconcile"
)

var registryHeader = []any{
	"Año", "Mes", "Archivo", "Contratista", "Ítem", "Descripción", "Un",
	"Valor unitario original", "Valor pactado", "Cantidad presenta",
	"Valor ajustado", "Modo",
}

func writePeriodSummary(path string, records []reconcile.Record, totals []reconcile.CategoryTotals) error {
	f := excelize.NewFile()
	defer f.Close()

	// RESUMEN
	if err := renameFirstSheet(f, "RESUMEN"); err != nil {
		return err
	}
	if err := f.SetSheetRow("RESUMEN", "A1", &[]any{
		"Contratista", "Items_con_error", "Suma_valor_ajustado",
	}); err != nil {
		return err
	}
	for i, s := range reconcile.SummarizeByContractor(records) {
		row := []any{s.Contractor, s.FlaggedItems, s.AdjustedTotal.InexactFloat64()}
		if err := f.SetSheetRow("RESUMEN", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	// REGISTRO
	if err := writeRegistry(f, records); err != nil {
		return err
	}

	// CANTIDADES
	if _, err := f.NewSheet("CANTIDADES"); err != nil {
		return err
	}
	header := []any{"Contratista"}
	for _, cat := range reconcile.Categories {
		header = append(header, cat.Label())
	}
	if err := f.SetSheetRow("CANTIDADES", "A1", &header); err != nil {
		return err
	}
	for i, s := range reconcile.SummarizeCategories(totals) {
		row := []any{s.Contractor}
		for _, cat := range reconcile.Categories {
			row = append(row, s.Get(cat).InexactFloat64())
		}
		if err := f.SetSheetRow("CANTIDADES", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func writeGlobalSummary(path string, records []reconcile.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	// RESUMEN
	if err := renameFirstSheet(f, "RESUMEN"); err != nil {
		return err
	}
	if err := f.SetSheetRow("RESUMEN", "A1", &[]any{
		"Año", "Mes", "Contratista", "Items_con_error", "Suma_valor_ajustado",
	}); err != nil {
		return err
	}
	for i, s := range reconcile.SummarizeGlobal(records) {
		row := []any{s.Year, s.Month, s.Contractor, s.FlaggedItems, s.AdjustedTotal.InexactFloat64()}
		if err := f.SetSheetRow("RESUMEN", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}

	// REGISTRO
	if err := writeRegistry(f, records); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// writeRegistry appends the REGISTRO sheet with one row per flagged
// record.
func writeRegistry(f *excelize.File, records []reconcile.Record) error {
	if _, err := f.NewSheet("REGISTRO"); err != nil {
		return err
	}
	if err := f.SetSheetRow("REGISTRO", "A1", &registryHeader); err != nil {
		return err
	}
	for i, r := range records {
		row := []any{
			r.Year, r.Month, r.SourceFile, r.Contractor, r.ItemCode,
			r.Description, r.Unit,
			r.DeclaredPrice.InexactFloat64(),
			r.ReferencePrice.InexactFloat64(),
			r.Quantity.InexactFloat64(),
			r.AdjustedValue.InexactFloat64(),
			string(r.Mode),
		}
		if err := f.SetSheetRow("REGISTRO", fmt.Sprintf("A%d", i+2), &row); err != nil {
			return err
		}
	}
	return nil
}

// renameFirstSheet renames the default sheet excelize creates.
func renameFirstSheet(f *excelize.File, name string) error {
	return f.SetSheetName(f.GetSheetName(0), name)
}
