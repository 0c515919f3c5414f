package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/acta-engine/api"
	"github.com/warp/acta-engine/config"
	"github.com/warp/acta-engine/reconcile"
	"github.com/warp/acta-engine/store/sqlite"
)

// testServer wires a router against an in-memory store and a temp
// project tree.
func testServer(t *testing.T) (*httptest.Server, *sqlite.Store, config.Config) {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Config{
		Paths:  config.PathsConfig{BaseRoot: t.TempDir(), Project: "via-norte"},
		Review: config.ReviewConfig{Mode: string(reconcile.ModeExact)},
	}

	handler := api.NewHandler(store, cfg, zerolog.Nop())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)

	return srv, store, cfg
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestPriceAdministration(t *testing.T) {
	srv, _, _ := testServer(t)

	// PUT creates
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/prices", map[string]string{
		"activity": "EXCAVACIÓN MECÁNICA",
		"price":    "1000",
		"unit":     "M3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// PUT updates
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/prices", map[string]string{
		"activity": "EXCAVACIÓN MECÁNICA",
		"price":    "1100",
		"unit":     "M3",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// GET reflects the latest value
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/prices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	prices := decodeBody[[]map[string]any](t, resp)
	require.Len(t, prices, 1)
	assert.Equal(t, "1100", prices[0]["price"])

	// audit trail, newest first
	activity := url.PathEscape("EXCAVACIÓN MECÁNICA")
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/prices/"+activity+"/log", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	log := decodeBody[[]map[string]any](t, resp)
	require.Len(t, log, 2)
	assert.Equal(t, "1100", log[0]["new_price"])

	// DELETE removes, second DELETE is a 404
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/prices/"+activity, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/prices/"+activity, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpsertPrice_Validation(t *testing.T) {
	srv, _, _ := testServer(t)

	cases := []map[string]string{
		{"activity": "", "price": "100", "unit": "M3"},
		{"activity": "X", "price": "not-a-number", "unit": "M3"},
		{"activity": "X", "price": "-5", "unit": "M3"},
	}
	for _, body := range cases {
		resp := doJSON(t, http.MethodPut, srv.URL+"/api/prices", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%v", body)
	}
}

func seedLedger(t *testing.T, store *sqlite.Store) {
	t.Helper()

	record := func(month, contractor string, adjusted int64) reconcile.Record {
		return reconcile.Record{
			ID: uuid.NewString(), Year: 2025, Month: month,
			SourceFile: "acta.xlsx", Contractor: contractor,
			ItemCode: "1.1", Description: "EXCAVACION", Unit: "M3",
			DeclaredPrice:  decimal.NewFromInt(1500),
			ReferencePrice: decimal.NewFromInt(1000),
			Quantity:       decimal.NewFromInt(1),
			AdjustedValue:  decimal.NewFromInt(adjusted),
			Mode:           reconcile.ModeExact,
		}
	}
	totals := []reconcile.CategoryTotals{{
		Year: 2025, Month: "julio", SourceFile: "acta.xlsx",
		Contractor: "ANDINA SAS",
		Excavation: decimal.NewFromInt(7), Backfill: decimal.Zero,
		ConcreteMR: decimal.Zero, ConcreteStamped: decimal.Zero,
		Mode: reconcile.ModeExact,
	}}

	ctx := context.Background()
	require.NoError(t, store.ReplacePeriod(ctx,
		reconcile.Period{Year: 2025, Month: "julio"},
		[]reconcile.Record{record("julio", "ANDINA SAS", 1000), record("julio", "ZETA SAS", 500)},
		totals))
	require.NoError(t, store.ReplacePeriod(ctx,
		reconcile.Period{Year: 2025, Month: "junio"},
		[]reconcile.Record{record("junio", "ANDINA SAS", 200)}, nil))
}

func TestListRecords(t *testing.T) {
	srv, store, _ := testServer(t)
	seedLedger(t, store)

	// unfiltered returns the whole ledger
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/records", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	all := decodeBody[[]map[string]any](t, resp)
	assert.Len(t, all, 3)

	// period filter
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/records?year=2025&month=julio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	july := decodeBody[[]map[string]any](t, resp)
	assert.Len(t, july, 2)

	// half a filter is a client error
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/records?year=2025", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPeriodSummary(t *testing.T) {
	srv, store, _ := testServer(t)
	seedLedger(t, store)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/summary/period?year=2025&month=julio", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	type summary struct {
		Year        int `json:"year"`
		Contractors []struct {
			Contractor    string `json:"contractor"`
			FlaggedItems  int    `json:"flagged_items"`
			AdjustedTotal string `json:"adjusted_total"`
		} `json:"contractors"`
		Categories []struct {
			Contractor string `json:"contractor"`
			Excavation string `json:"excavation"`
		} `json:"categories"`
	}
	got := decodeBody[summary](t, resp)

	require.Len(t, got.Contractors, 2)
	assert.Equal(t, "ANDINA SAS", got.Contractors[0].Contractor)
	assert.Equal(t, "1000", got.Contractors[0].AdjustedTotal)
	require.Len(t, got.Categories, 1)
	assert.Equal(t, "7", got.Categories[0].Excavation)

	// missing filter
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/summary/period", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGlobalSummary(t *testing.T) {
	srv, store, _ := testServer(t)
	seedLedger(t, store)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/summary/global", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	rows := decodeBody[[]map[string]any](t, resp)
	require.Len(t, rows, 3)
	// calendar order: junio before julio
	assert.Equal(t, "junio", rows[0]["month"])
	assert.Equal(t, "julio", rows[1]["month"])
}

func TestRunPeriodEndpoint(t *testing.T) {
	srv, store, cfg := testServer(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertReferencePrice(ctx, "EXCAVACIÓN MECÁNICA", decimal.NewFromInt(1000), "M3"))

	actasDir := filepath.Join(cfg.Paths.BaseRoot, cfg.Paths.Project, "control_actas", "actas", "julio2025")
	writeFixtureActa(t, actasDir, "acta_01.xlsx")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/runs/period", map[string]string{"folder": "julio2025"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	report := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 2025, report["year"])
	assert.Equal(t, "julio", report["month"])
	assert.EqualValues(t, 1, report["certificates_processed"])
	assert.EqualValues(t, 1, report["flagged_records"])

	records, err := store.RecordsByPeriod(ctx, 2025, "julio")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRunPeriodEndpoint_BadFolder(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/runs/period", map[string]string{"folder": "backup"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/runs/period", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// writeFixtureActa drops one overpaid-item certificate into dir.
func writeFixtureActa(t *testing.T, dir, name string) {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	_, err := f.NewSheet("CORTE")
	require.NoError(t, err)
	require.NoError(t, f.DeleteSheet("Sheet1"))

	require.NoError(t, f.SetCellValue("CORTE", "C6", "ANDINA SAS"))
	require.NoError(t, f.SetCellValue("CORTE", "A8", "ÍTEM"))
	require.NoError(t, f.SetCellValue("CORTE", "B8", "DESCRIPCIÓN"))
	require.NoError(t, f.SetCellValue("CORTE", "D8", "UN"))
	require.NoError(t, f.SetCellValue("CORTE", "F8", "VALOR UNITARIO"))
	require.NoError(t, f.SetCellValue("CORTE", "I8", "CANTIDAD"))

	for col, val := range map[string]any{
		"A10": "1.1", "B10": "EXCAVACIÓN MECÁNICA", "D10": "M3",
		"F10": 1500, "I10": 10,
	} {
		require.NoError(t, f.SetCellValue("CORTE", col, val))
	}

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, f.SaveAs(filepath.Join(dir, name)))
}
