/*
handlers.go - HTTP API handlers for the acta reconciliation service

PURPOSE:
  Exposes reconciliation runs, the ledger, and reference price
  administration via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the batch runner and store.

ENDPOINTS:
  Runs:
    POST   /api/runs/period            Process one period folder
    POST   /api/runs/all               Process every period folder

  Ledger:
    GET    /api/records                Flagged records (optional ?year=&month=)
    GET    /api/summary/period         Per-contractor + per-family summary
    GET    /api/summary/global         Whole-ledger rollup

  Reference prices:
    GET    /api/prices                 List the price table
    PUT    /api/prices                 Upsert one activity
    DELETE /api/prices/{activity}      Remove one activity
    GET    /api/prices/{activity}/log  Audit trail

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, unparsable period names
  - 404: Resource not found
  - 500: Internal errors (ledger writes, filesystem)

RESOLVER SNAPSHOTS:
  Each run builds a fresh resolver from the configured mode: exact mode
  snapshots the price table, keyword mode uses the configured critical
  activity table. Price edits between runs take effect on the next run.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - batch/runner.go: The run loop itself
*/
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/acta-engine/batch"
	"github.com/warp/acta-engine/config"
	"github.com/warp/acta-engine/reconcile"
	"github.com/warp/acta-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Config config.Config
	Log    zerolog.Logger
}

// NewHandler creates a new handler with the given store and config.
func NewHandler(store *sqlite.Store, cfg config.Config, log zerolog.Logger) *Handler {
	return &Handler{Store: store, Config: cfg, Log: log}
}

// newRunner builds a batch runner with a fresh resolver snapshot.
func (h *Handler) newRunner(r *http.Request) (*batch.Runner, error) {
	var resolver reconcile.Resolver
	switch h.Config.Mode() {
	case reconcile.ModeKeyword:
		resolver = reconcile.NewKeywordResolver(h.Config.Review.CriticalActivities)
	default:
		snapshot, err := h.Store.ExactSnapshot(r.Context())
		if err != nil {
			return nil, err
		}
		resolver = reconcile.NewExactResolver(snapshot)
	}

	return &batch.Runner{
		Store:    h.Store,
		Resolver: resolver,
		Paths: batch.Paths{
			BaseRoot: h.Config.Paths.BaseRoot,
			Project:  h.Config.Paths.Project,
		},
		Log: h.Log,
	}, nil
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// RunPeriod processes one period folder.
// POST /api/runs/period
func (h *Handler) RunPeriod(w http.ResponseWriter, r *http.Request) {
	var req RunPeriodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Folder) == "" {
		writeError(w, http.StatusBadRequest, "folder is required", nil)
		return
	}

	runner, err := h.newRunner(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load reference prices", err)
		return
	}

	report, err := runner.RunPeriod(r.Context(), req.Folder)
	if err != nil {
		if errors.Is(err, reconcile.ErrInvalidPeriod) {
			writeError(w, http.StatusBadRequest, "Folder name has no year or month", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Period run failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRunReportDTO(report))
}

// RunAll processes every period folder, oldest first.
// POST /api/runs/all
func (h *Handler) RunAll(w http.ResponseWriter, r *http.Request) {
	runner, err := h.newRunner(r)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load reference prices", err)
		return
	}

	reports, err := runner.RunAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Batch run failed", err)
		return
	}

	dtos := make([]RunReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toRunReportDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListRecords returns flagged records, optionally filtered to one
// period via ?year=&month=.
// GET /api/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	year, month, filtered, err := periodQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period filter", err)
		return
	}

	var records []reconcile.Record
	if filtered {
		records, err = h.Store.RecordsByPeriod(r.Context(), year, month)
	} else {
		records, err = h.Store.AllRecords(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list records", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTOs(records))
}

// PeriodSummary returns one period's contractor and category rollups.
// GET /api/summary/period?year=&month=
func (h *Handler) PeriodSummary(w http.ResponseWriter, r *http.Request) {
	year, month, filtered, err := periodQuery(r)
	if err != nil || !filtered {
		writeError(w, http.StatusBadRequest, "year and month are required", err)
		return
	}

	records, err := h.Store.RecordsByPeriod(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load records", err)
		return
	}
	totals, err := h.Store.TotalsByPeriod(r.Context(), year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load category totals", err)
		return
	}

	resp := PeriodSummaryDTO{
		Year:        year,
		Month:       month,
		Contractors: []ContractorSummaryDTO{},
		Categories:  []CategorySummaryDTO{},
	}
	for _, s := range reconcile.SummarizeByContractor(records) {
		resp.Contractors = append(resp.Contractors, ContractorSummaryDTO{
			Contractor:    s.Contractor,
			FlaggedItems:  s.FlaggedItems,
			AdjustedTotal: s.AdjustedTotal.String(),
		})
	}
	for _, s := range reconcile.SummarizeCategories(totals) {
		resp.Categories = append(resp.Categories, CategorySummaryDTO{
			Contractor:      s.Contractor,
			Excavation:      s.Excavation.String(),
			Backfill:        s.Backfill.String(),
			ConcreteMR:      s.ConcreteMR.String(),
			ConcreteStamped: s.ConcreteStamped.String(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GlobalSummary returns the whole-ledger rollup.
// GET /api/summary/global
func (h *Handler) GlobalSummary(w http.ResponseWriter, r *http.Request) {
	records, err := h.Store.AllRecords(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load records", err)
		return
	}

	rows := reconcile.SummarizeGlobal(records)
	dtos := make([]GlobalSummaryRowDTO, len(rows))
	for i, s := range rows {
		dtos[i] = GlobalSummaryRowDTO{
			Year:          s.Year,
			Month:         s.Month,
			Contractor:    s.Contractor,
			FlaggedItems:  s.FlaggedItems,
			AdjustedTotal: s.AdjustedTotal.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REFERENCE PRICE HANDLERS
// =============================================================================

// ListPrices returns the full reference price table.
// GET /api/prices
func (h *Handler) ListPrices(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListReferencePrices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list prices", err)
		return
	}
	writeJSON(w, http.StatusOK, toPriceDTOs(entries))
}

// UpsertPrice creates or updates one reference price.
// PUT /api/prices
func (h *Handler) UpsertPrice(w http.ResponseWriter, r *http.Request) {
	var req UpsertPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Activity) == "" {
		writeError(w, http.StatusBadRequest, "activity is required", nil)
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "price must be a decimal string", err)
		return
	}
	if price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price cannot be negative", nil)
		return
	}

	if err := h.Store.UpsertReferencePrice(r.Context(), req.Activity, price, req.Unit); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save price", err)
		return
	}

	writeJSON(w, http.StatusOK, ReferencePriceDTO{
		Activity: req.Activity,
		Price:    price.String(),
		Unit:     req.Unit,
	})
}

// DeletePrice removes one activity from the price table.
// DELETE /api/prices/{activity}
func (h *Handler) DeletePrice(w http.ResponseWriter, r *http.Request) {
	activity := chi.URLParam(r, "activity")

	if err := h.Store.DeleteReferencePrice(r.Context(), activity); err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "Activity not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete price", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PriceLog returns the audit trail for one activity, newest first.
// GET /api/prices/{activity}/log
func (h *Handler) PriceLog(w http.ResponseWriter, r *http.Request) {
	activity := chi.URLParam(r, "activity")

	changes, err := h.Store.PriceLog(r.Context(), activity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load price log", err)
		return
	}

	dtos := make([]PriceChangeDTO, len(changes))
	for i, c := range changes {
		dtos[i] = PriceChangeDTO{
			Activity:  c.Activity,
			OldPrice:  c.OldPrice,
			NewPrice:  c.NewPrice,
			ChangedAt: c.ChangedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

// periodQuery parses the optional ?year=&month= pair. Both must be
// present together.
func periodQuery(r *http.Request) (int, string, bool, error) {
	yearStr := r.URL.Query().Get("year")
	month := strings.ToLower(r.URL.Query().Get("month"))
	if yearStr == "" && month == "" {
		return 0, "", false, nil
	}
	if yearStr == "" || month == "" {
		return 0, "", false, errors.New("year and month must be given together")
	}

	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return 0, "", false, errors.New("year must be an integer")
	}
	if reconcile.MonthNumber(month) == 0 {
		return 0, "", false, errors.New("month must be a Spanish month name")
	}
	return year, month, true, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
