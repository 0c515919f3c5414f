/*
Package batch drives whole-period and whole-project reconciliation runs.

PURPOSE:
  The Runner owns the directory conventions and the per-period loop:
  list certificates, parse, review, write annotated copies, replace the
  period's ledger slice, and regenerate the period and global summary
  workbooks.

DIRECTORY LAYOUT (under <base_root>/<project>/control_actas/):
  actas/<period>/    input certificates, one folder per (year, month)
  salidas/<period>/  annotated _verificado copies
  datos/             reserved for exports
  resumen/<period>/  resumen_<period>.xlsx
  resumen/           resumen_global.xlsx

FAILURE POLICY:
  A malformed certificate is a diagnostic, not a run failure: it is
  skipped and reported. A ledger write failure aborts the run.

SEE ALSO:
  - certificate/parser.go: per-file parsing
  - artifacts.go:          summary workbook layout
*/
package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/warp/acta-engine/certificate"
	"github.com/warp/acta-engine/reconcile"
	"github.com/warp/acta-engine/store/sqlite"
)

// =============================================================================
// PATHS - directory conventions
// =============================================================================

// Paths resolves the control_actas directory tree for one project.
type Paths struct {
	BaseRoot string
	Project  string
}

// Root is <base_root>/<project>/control_actas.
func (p Paths) Root() string {
	return filepath.Join(p.BaseRoot, p.Project, "control_actas")
}

// Certificates is the input folder for one period.
func (p Paths) Certificates(period string) string {
	return filepath.Join(p.Root(), "actas", period)
}

// Outputs is the annotated-copy folder for one period.
func (p Paths) Outputs(period string) string {
	return filepath.Join(p.Root(), "salidas", period)
}

// Data is the shared export folder.
func (p Paths) Data() string {
	return filepath.Join(p.Root(), "datos")
}

// SummaryRoot holds the global summary workbook.
func (p Paths) SummaryRoot() string {
	return filepath.Join(p.Root(), "resumen")
}

// Summary is the per-period summary folder.
func (p Paths) Summary(period string) string {
	return filepath.Join(p.Root(), "resumen", period)
}

// EnsurePeriod creates the full tree for one period.
func (p Paths) EnsurePeriod(period string) error {
	for _, dir := range []string{
		p.Certificates(period),
		p.Outputs(period),
		p.Data(),
		p.SummaryRoot(),
		p.Summary(period),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes reconciliation runs against one store and resolver
// snapshot.
type Runner struct {
	Store    *sqlite.Store
	Resolver reconcile.Resolver
	Paths    Paths
	Log      zerolog.Logger
}

// RunReport summarizes one period run.
type RunReport struct {
	Period                reconcile.Period
	CertificatesFound     int
	CertificatesProcessed int
	FlaggedRecords        int

	// Failures lists skipped certificates as "<file>: <reason>".
	Failures []string
}

// RunPeriod processes one period folder end to end: every certificate
// reviewed, the ledger slice replaced, and both summary workbooks
// regenerated. Malformed certificates are skipped and reported in the
// returned RunReport.
func (r *Runner) RunPeriod(ctx context.Context, folderName string) (RunReport, error) {
	period, err := reconcile.ParsePeriodName(folderName)
	if err != nil {
		return RunReport{}, err
	}
	report := RunReport{Period: period}

	if err := r.Paths.EnsurePeriod(folderName); err != nil {
		return report, err
	}

	files, err := listCertificates(r.Paths.Certificates(folderName))
	if err != nil {
		return report, err
	}
	report.CertificatesFound = len(files)

	r.Log.Info().
		Int("year", period.Year).
		Str("month", period.Month).
		Int("certificates", len(files)).
		Str("mode", string(r.Resolver.Mode())).
		Msg("period run started")

	engine := reconcile.NewEngine(r.Resolver)
	var (
		records []reconcile.Record
		totals  []reconcile.CategoryTotals
	)

	for _, name := range files {
		path := filepath.Join(r.Paths.Certificates(folderName), name)

		cert, err := certificate.Parse(path, name)
		if err != nil {
			if !reconcile.IsCertificateFailure(err) {
				return report, err
			}
			r.Log.Warn().Str("file", name).Err(err).Msg("certificate skipped")
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		result := engine.Review(cert, period.Year, period.Month)

		out, err := certificate.WriteAnnotated(path, r.Paths.Outputs(folderName), cert, result)
		if err != nil {
			r.Log.Warn().Str("file", name).Err(err).Msg("annotated copy failed, certificate skipped")
			report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		records = append(records, result.Records...)
		totals = append(totals, result.Totals)
		report.CertificatesProcessed++

		r.Log.Debug().
			Str("file", name).
			Str("contractor", cert.Contractor).
			Int("items", len(cert.Items)).
			Int("flagged", len(result.Records)).
			Str("output", out).
			Msg("certificate reviewed")
	}

	if err := r.Store.ReplacePeriod(ctx, period, records, totals); err != nil {
		return report, err
	}
	report.FlaggedRecords = len(records)

	if err := r.writeSummaries(ctx, folderName, period, records, totals); err != nil {
		return report, err
	}

	r.Log.Info().
		Int("processed", report.CertificatesProcessed).
		Int("flagged", report.FlaggedRecords).
		Int("failures", len(report.Failures)).
		Msg("period run finished")

	return report, nil
}

// RunAll processes every period folder under actas/, oldest first.
// Folders whose names yield no (year, month) are skipped with a
// warning.
func (r *Runner) RunAll(ctx context.Context) ([]RunReport, error) {
	actasDir := filepath.Join(r.Paths.Root(), "actas")
	entries, err := os.ReadDir(actasDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", actasDir, err)
	}

	type folder struct {
		name   string
		period reconcile.Period
	}
	var folders []folder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		period, err := reconcile.ParsePeriodName(e.Name())
		if err != nil {
			r.Log.Warn().Str("folder", e.Name()).Msg("not a period folder, skipped")
			continue
		}
		folders = append(folders, folder{name: e.Name(), period: period})
	}

	sort.Slice(folders, func(i, j int) bool {
		if folders[i].period.Year != folders[j].period.Year {
			return folders[i].period.Year < folders[j].period.Year
		}
		return reconcile.MonthNumber(folders[i].period.Month) <
			reconcile.MonthNumber(folders[j].period.Month)
	})

	reports := make([]RunReport, 0, len(folders))
	for _, f := range folders {
		report, err := r.RunPeriod(ctx, f.name)
		if err != nil {
			return reports, fmt.Errorf("period %s: %w", f.name, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// writeSummaries regenerates the period workbook and the global
// workbook from the ledger.
func (r *Runner) writeSummaries(ctx context.Context, folderName string, period reconcile.Period, records []reconcile.Record, totals []reconcile.CategoryTotals) error {
	periodPath := filepath.Join(r.Paths.Summary(folderName),
		fmt.Sprintf("resumen_%s.xlsx", folderName))
	if err := writePeriodSummary(periodPath, records, totals); err != nil {
		return err
	}

	all, err := r.Store.AllRecords(ctx)
	if err != nil {
		return err
	}
	globalPath := filepath.Join(r.Paths.SummaryRoot(), "resumen_global.xlsx")
	return writeGlobalSummary(globalPath, all)
}

// listCertificates returns the .xlsx files of a period folder, sorted,
// excluding spreadsheet lock files.
func listCertificates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "~$") {
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".xlsx") {
			files = append(files, name)
		}
	}
	sort.Strings(files)
	return files, nil
}
