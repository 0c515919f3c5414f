package reconcile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/acta-engine/reconcile"
)

func record(year int, month, contractor string, adjusted float64) reconcile.Record {
	return reconcile.Record{
		Year:          year,
		Month:         month,
		Contractor:    contractor,
		AdjustedValue: price(adjusted),
	}
}

func TestSummarizeByContractor(t *testing.T) {
	records := []reconcile.Record{
		record(2025, "julio", "ZETA SAS", 100),
		record(2025, "julio", "ANDINA SAS", 250),
		record(2025, "julio", "ZETA SAS", 50),
	}

	out := reconcile.SummarizeByContractor(records)

	require.Len(t, out, 2)
	// sorted by contractor name
	assert.Equal(t, "ANDINA SAS", out[0].Contractor)
	assert.Equal(t, 1, out[0].FlaggedItems)
	assert.True(t, out[0].AdjustedTotal.Equal(price(250)))
	assert.Equal(t, "ZETA SAS", out[1].Contractor)
	assert.Equal(t, 2, out[1].FlaggedItems)
	assert.True(t, out[1].AdjustedTotal.Equal(price(150)))
}

func TestSummarizeByContractor_Empty(t *testing.T) {
	assert.Empty(t, reconcile.SummarizeByContractor(nil))
}

func TestSummarizeCategories(t *testing.T) {
	totals := []reconcile.CategoryTotals{
		{Contractor: "ANDINA SAS", Excavation: price(10), Backfill: price(5)},
		{Contractor: "ANDINA SAS", Excavation: price(3), ConcreteMR: price(2)},
		{Contractor: "ZETA SAS", ConcreteStamped: price(7)},
	}

	out := reconcile.SummarizeCategories(totals)

	require.Len(t, out, 2)
	assert.Equal(t, "ANDINA SAS", out[0].Contractor)
	assert.True(t, out[0].Excavation.Equal(price(13)))
	assert.True(t, out[0].Backfill.Equal(price(5)))
	assert.True(t, out[0].ConcreteMR.Equal(price(2)))
	assert.True(t, out[0].ConcreteStamped.IsZero())
	assert.True(t, out[1].ConcreteStamped.Equal(price(7)))
}

func TestSummarizeGlobal_CalendarOrder(t *testing.T) {
	records := []reconcile.Record{
		record(2025, "enero", "ANDINA SAS", 10),
		record(2024, "diciembre", "ANDINA SAS", 20),
		record(2024, "marzo", "ZETA SAS", 30),
		record(2024, "marzo", "ZETA SAS", 5),
		record(2024, "marzo", "ANDINA SAS", 1),
	}

	out := reconcile.SummarizeGlobal(records)

	require.Len(t, out, 4)
	// year asc, then calendar month asc, then contractor asc
	assert.Equal(t, 2024, out[0].Year)
	assert.Equal(t, "marzo", out[0].Month)
	assert.Equal(t, "ANDINA SAS", out[0].Contractor)
	assert.Equal(t, 1, out[0].FlaggedItems)
	assert.True(t, out[0].AdjustedTotal.Equal(price(1)))
	assert.Equal(t, "ZETA SAS", out[1].Contractor)
	assert.Equal(t, 2, out[1].FlaggedItems)
	assert.True(t, out[1].AdjustedTotal.Equal(price(35)))
	assert.Equal(t, "diciembre", out[2].Month)
	assert.Equal(t, 2025, out[3].Year)
}
