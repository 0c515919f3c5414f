/*
aggregate.go - Batch-level rollups

PURPOSE:
  Folds flagged records and per-certificate category totals into the
  summaries the period and global artifacts are built from:

  - SummarizeByContractor: flagged count + adjusted-value sum per
    contractor for one period.
  - SummarizeCategories:   the four quantity families summed per
    contractor across a period's certificates.
  - SummarizeGlobal:       (year, month, contractor) rollup over the
    whole ledger.

  Summaries are always derived; nothing here is persisted.
*/
package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SummarizeByContractor groups flagged records by contractor, sorted by
// contractor name.
func SummarizeByContractor(records []Record) []ContractorSummary {
	byName := make(map[string]*ContractorSummary)
	for _, r := range records {
		s, ok := byName[r.Contractor]
		if !ok {
			s = &ContractorSummary{Contractor: r.Contractor}
			byName[r.Contractor] = s
		}
		s.FlaggedItems++
		s.AdjustedTotal = s.AdjustedTotal.Add(r.AdjustedValue)
	}

	out := make([]ContractorSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contractor < out[j].Contractor })
	return out
}

// CategorySummary is the per-contractor sum of the four quantity
// families over a period.
type CategorySummary struct {
	Contractor      string
	Excavation      decimal.Decimal
	Backfill        decimal.Decimal
	ConcreteMR      decimal.Decimal
	ConcreteStamped decimal.Decimal
}

// Get returns the accumulator for a category.
func (s *CategorySummary) Get(c Category) decimal.Decimal {
	switch c {
	case CategoryExcavation:
		return s.Excavation
	case CategoryBackfill:
		return s.Backfill
	case CategoryConcreteMR:
		return s.ConcreteMR
	case CategoryConcreteStamped:
		return s.ConcreteStamped
	}
	return decimal.Zero
}

// SummarizeCategories merges per-certificate totals additively per
// contractor, sorted by contractor name.
func SummarizeCategories(totals []CategoryTotals) []CategorySummary {
	byName := make(map[string]*CategorySummary)
	for _, t := range totals {
		s, ok := byName[t.Contractor]
		if !ok {
			s = &CategorySummary{Contractor: t.Contractor}
			byName[t.Contractor] = s
		}
		s.Excavation = s.Excavation.Add(t.Excavation)
		s.Backfill = s.Backfill.Add(t.Backfill)
		s.ConcreteMR = s.ConcreteMR.Add(t.ConcreteMR)
		s.ConcreteStamped = s.ConcreteStamped.Add(t.ConcreteStamped)
	}

	out := make([]CategorySummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contractor < out[j].Contractor })
	return out
}

// GlobalSummaryRow is one (year, month, contractor) rollup line.
type GlobalSummaryRow struct {
	Year          int
	Month         string
	Contractor    string
	FlaggedItems  int
	AdjustedTotal decimal.Decimal
}

// SummarizeGlobal groups records across periods, sorted by year, month
// (calendar order), contractor.
func SummarizeGlobal(records []Record) []GlobalSummaryRow {
	type key struct {
		year       int
		month      string
		contractor string
	}

	byKey := make(map[key]*GlobalSummaryRow)
	for _, r := range records {
		k := key{r.Year, r.Month, r.Contractor}
		s, ok := byKey[k]
		if !ok {
			s = &GlobalSummaryRow{Year: r.Year, Month: r.Month, Contractor: r.Contractor}
			byKey[k] = s
		}
		s.FlaggedItems++
		s.AdjustedTotal = s.AdjustedTotal.Add(r.AdjustedValue)
	}

	out := make([]GlobalSummaryRow, 0, len(byKey))
	for _, s := range byKey {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		mi, mj := MonthNumber(out[i].Month), MonthNumber(out[j].Month)
		if mi != mj {
			return mi < mj
		}
		return out[i].Contractor < out[j].Contractor
	})
	return out
}
