package batch_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/acta-engine/batch"
	"github.com/warp/acta-engine/reconcile"
	"github.com/warp/acta-engine/store/sqlite"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// writeActa drops a minimal certificate fixture into dir.
func writeActa(t *testing.T, dir, name, contractor string, rows [][5]any) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("CORTE")
	require.NoError(t, err)
	require.NoError(t, f.DeleteSheet("Sheet1"))

	require.NoError(t, f.SetCellValue("CORTE", "C6", contractor))
	require.NoError(t, f.SetCellValue("CORTE", "A8", "ÍTEM"))
	require.NoError(t, f.SetCellValue("CORTE", "B8", "DESCRIPCIÓN"))
	require.NoError(t, f.SetCellValue("CORTE", "D8", "UN"))
	require.NoError(t, f.SetCellValue("CORTE", "F8", "VALOR UNITARIO"))
	require.NoError(t, f.SetCellValue("CORTE", "I8", "CANTIDAD"))

	for i, r := range rows {
		n := 10 + i
		for j, col := range []string{"A", "B", "D", "F", "I"} {
			require.NoError(t, f.SetCellValue("CORTE", fmt.Sprintf("%s%d", col, n), r[j]))
		}
	}

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, f.SaveAs(filepath.Join(dir, name)))
}

func newRunner(t *testing.T, baseRoot string) (*batch.Runner, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.UpsertReferencePrice(ctx, "EXCAVACIÓN MECÁNICA", dec(1000), "M3"))
	require.NoError(t, store.UpsertReferencePrice(ctx, "RELLENO TIPO B", dec(800), "M3"))

	snapshot, err := store.ExactSnapshot(ctx)
	require.NoError(t, err)

	return &batch.Runner{
		Store:    store,
		Resolver: reconcile.NewExactResolver(snapshot),
		Paths:    batch.Paths{BaseRoot: baseRoot, Project: "via-norte"},
		Log:      zerolog.Nop(),
	}, store
}

func TestRunPeriod(t *testing.T) {
	baseRoot := t.TempDir()
	paths := batch.Paths{BaseRoot: baseRoot, Project: "via-norte"}
	actasDir := paths.Certificates("julio2025")

	writeActa(t, actasDir, "acta_01.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 10}, // overpaid by 500
		{"1.2", "RELLENO TIPO B", "M3", 800, 5},        // exact match
	})
	writeActa(t, actasDir, "acta_02.xlsx", "ZETA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 900, 4}, // underpaid by 100
	})
	// a non-certificate file that must be ignored
	require.NoError(t, os.WriteFile(filepath.Join(actasDir, "notas.txt"), []byte("x"), 0o644))

	runner, store := newRunner(t, baseRoot)
	ctx := context.Background()

	report, err := runner.RunPeriod(ctx, "julio2025")
	require.NoError(t, err)

	assert.Equal(t, reconcile.Period{Year: 2025, Month: "julio"}, report.Period)
	assert.Equal(t, 2, report.CertificatesFound)
	assert.Equal(t, 2, report.CertificatesProcessed)
	assert.Equal(t, 2, report.FlaggedRecords)
	assert.Empty(t, report.Failures)

	// ledger holds both flagged records
	records, err := store.RecordsByPeriod(ctx, 2025, "julio")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ANDINA SAS", records[0].Contractor)
	assert.True(t, records[0].AdjustedValue.Equal(dec(10000)))

	// annotated copies and summaries landed in the conventional places
	assert.FileExists(t, filepath.Join(paths.Outputs("julio2025"), "acta_01_verificado.xlsx"))
	assert.FileExists(t, filepath.Join(paths.Outputs("julio2025"), "acta_02_verificado.xlsx"))
	assert.FileExists(t, filepath.Join(paths.Summary("julio2025"), "resumen_julio2025.xlsx"))
	assert.FileExists(t, filepath.Join(paths.SummaryRoot(), "resumen_global.xlsx"))

	// period summary content
	f, err := excelize.OpenFile(filepath.Join(paths.Summary("julio2025"), "resumen_julio2025.xlsx"))
	require.NoError(t, err)
	defer f.Close()
	assert.ElementsMatch(t, []string{"RESUMEN", "REGISTRO", "CANTIDADES"}, f.GetSheetList())
	contractor, err := f.GetCellValue("RESUMEN", "A2")
	require.NoError(t, err)
	assert.Equal(t, "ANDINA SAS", contractor)
}

func TestRunPeriod_Idempotent(t *testing.T) {
	baseRoot := t.TempDir()
	paths := batch.Paths{BaseRoot: baseRoot, Project: "via-norte"}
	writeActa(t, paths.Certificates("julio2025"), "acta_01.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 10},
	})

	runner, store := newRunner(t, baseRoot)
	ctx := context.Background()

	_, err := runner.RunPeriod(ctx, "julio2025")
	require.NoError(t, err)
	_, err = runner.RunPeriod(ctx, "julio2025")
	require.NoError(t, err)

	records, err := store.RecordsByPeriod(ctx, 2025, "julio")
	require.NoError(t, err)
	assert.Len(t, records, 1, "re-running a period must replace, not append")
}

func TestRunPeriod_SkipsMalformedCertificates(t *testing.T) {
	baseRoot := t.TempDir()
	paths := batch.Paths{BaseRoot: baseRoot, Project: "via-norte"}
	actasDir := paths.Certificates("julio2025")

	writeActa(t, actasDir, "acta_ok.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 10},
	})
	// an .xlsx that is not a workbook at all
	require.NoError(t, os.MkdirAll(actasDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(actasDir, "roto.xlsx"), []byte("not a zip"), 0o644))

	runner, _ := newRunner(t, baseRoot)
	report, err := runner.RunPeriod(context.Background(), "julio2025")
	require.NoError(t, err)

	assert.Equal(t, 2, report.CertificatesFound)
	assert.Equal(t, 1, report.CertificatesProcessed)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0], "roto.xlsx")
}

func TestRunPeriod_InvalidFolderName(t *testing.T) {
	runner, _ := newRunner(t, t.TempDir())
	_, err := runner.RunPeriod(context.Background(), "backup")
	assert.ErrorIs(t, err, reconcile.ErrInvalidPeriod)
}

func TestRunAll_ProcessesPeriodsInCalendarOrder(t *testing.T) {
	baseRoot := t.TempDir()
	paths := batch.Paths{BaseRoot: baseRoot, Project: "via-norte"}

	writeActa(t, paths.Certificates("agosto2025"), "acta.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 1},
	})
	writeActa(t, paths.Certificates("junio2025"), "acta.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 2},
	})
	writeActa(t, paths.Certificates("diciembre2024"), "acta.xlsx", "ANDINA SAS", [][5]any{
		{"1.1", "EXCAVACIÓN MECÁNICA", "M3", 1500, 3},
	})
	// not a period folder: ignored
	require.NoError(t, os.MkdirAll(filepath.Join(paths.Root(), "actas", "plantillas"), 0o755))

	runner, store := newRunner(t, baseRoot)
	reports, err := runner.RunAll(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 3)
	assert.Equal(t, reconcile.Period{Year: 2024, Month: "diciembre"}, reports[0].Period)
	assert.Equal(t, reconcile.Period{Year: 2025, Month: "junio"}, reports[1].Period)
	assert.Equal(t, reconcile.Period{Year: 2025, Month: "agosto"}, reports[2].Period)

	all, err := store.AllRecords(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
