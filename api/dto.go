/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.
  Monetary values cross the wire as decimal strings, never floats.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/acta-engine/batch"
	"github.com/warp/acta-engine/reconcile"
	"github.com/warp/acta-engine/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RunPeriodRequest names the period folder to process.
type RunPeriodRequest struct {
	Folder string `json:"folder"`
}

// RunReportDTO summarizes one period run.
type RunReportDTO struct {
	Year                  int      `json:"year"`
	Month                 string   `json:"month"`
	CertificatesFound     int      `json:"certificates_found"`
	CertificatesProcessed int      `json:"certificates_processed"`
	FlaggedRecords        int      `json:"flagged_records"`
	Failures              []string `json:"failures,omitempty"`
}

// RecordDTO is one flagged deviation.
type RecordDTO struct {
	ID             string `json:"id"`
	Year           int    `json:"year"`
	Month          string `json:"month"`
	SourceFile     string `json:"source_file"`
	Contractor     string `json:"contractor"`
	ItemCode       string `json:"item_code"`
	Description    string `json:"description"`
	Unit           string `json:"unit"`
	DeclaredPrice  string `json:"declared_price"`
	ReferencePrice string `json:"reference_price"`
	Quantity       string `json:"quantity"`
	AdjustedValue  string `json:"adjusted_value"`
	Mode           string `json:"mode"`
}

// ContractorSummaryDTO is one RESUMEN line.
type ContractorSummaryDTO struct {
	Contractor    string `json:"contractor"`
	FlaggedItems  int    `json:"flagged_items"`
	AdjustedTotal string `json:"adjusted_total"`
}

// CategorySummaryDTO is one CANTIDADES line.
type CategorySummaryDTO struct {
	Contractor      string `json:"contractor"`
	Excavation      string `json:"excavation"`
	Backfill        string `json:"backfill"`
	ConcreteMR      string `json:"concrete_mr"`
	ConcreteStamped string `json:"concrete_stamped"`
}

// PeriodSummaryDTO bundles both per-period views.
type PeriodSummaryDTO struct {
	Year        int                    `json:"year"`
	Month       string                 `json:"month"`
	Contractors []ContractorSummaryDTO `json:"contractors"`
	Categories  []CategorySummaryDTO   `json:"categories"`
}

// GlobalSummaryRowDTO is one (year, month, contractor) rollup line.
type GlobalSummaryRowDTO struct {
	Year          int    `json:"year"`
	Month         string `json:"month"`
	Contractor    string `json:"contractor"`
	FlaggedItems  int    `json:"flagged_items"`
	AdjustedTotal string `json:"adjusted_total"`
}

// ReferencePriceDTO is one price list row.
type ReferencePriceDTO struct {
	Activity  string `json:"activity"`
	Price     string `json:"price"`
	Unit      string `json:"unit"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// UpsertPriceRequest creates or updates one reference price.
type UpsertPriceRequest struct {
	Activity string `json:"activity"`
	Price    string `json:"price"`
	Unit     string `json:"unit"`
}

// PriceChangeDTO is one audit log row.
type PriceChangeDTO struct {
	Activity  string `json:"activity"`
	OldPrice  string `json:"old_price,omitempty"`
	NewPrice  string `json:"new_price"`
	ChangedAt string `json:"changed_at"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toRunReportDTO(r batch.RunReport) RunReportDTO {
	return RunReportDTO{
		Year:                  r.Period.Year,
		Month:                 r.Period.Month,
		CertificatesFound:     r.CertificatesFound,
		CertificatesProcessed: r.CertificatesProcessed,
		FlaggedRecords:        r.FlaggedRecords,
		Failures:              r.Failures,
	}
}

func toRecordDTOs(records []reconcile.Record) []RecordDTO {
	dtos := make([]RecordDTO, len(records))
	for i, r := range records {
		dtos[i] = RecordDTO{
			ID:             r.ID,
			Year:           r.Year,
			Month:          r.Month,
			SourceFile:     r.SourceFile,
			Contractor:     r.Contractor,
			ItemCode:       r.ItemCode,
			Description:    r.Description,
			Unit:           r.Unit,
			DeclaredPrice:  r.DeclaredPrice.String(),
			ReferencePrice: r.ReferencePrice.String(),
			Quantity:       r.Quantity.String(),
			AdjustedValue:  r.AdjustedValue.String(),
			Mode:           string(r.Mode),
		}
	}
	return dtos
}

func toPriceDTOs(entries []sqlite.ReferenceEntry) []ReferencePriceDTO {
	dtos := make([]ReferencePriceDTO, len(entries))
	for i, e := range entries {
		dtos[i] = ReferencePriceDTO{
			Activity:  e.Activity,
			Price:     e.Price.String(),
			Unit:      e.Unit,
			UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
