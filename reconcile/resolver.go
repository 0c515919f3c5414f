/*
resolver.go - Reference price resolution strategies

PURPOSE:
  Given a normalized description (and, in exact mode, a normalized unit),
  return the authoritative unit price a contractor should have charged.
  Two interchangeable strategies implement one Resolver capability,
  selected once at runner construction instead of threading a mode flag
  through every call.

STRATEGIES:
  ExactResolver:   direct lookup keyed by (description, unit). An item
                   without a unit is never a reference candidate. No
                   fallback, no fuzzy matching.
  KeywordResolver: a short hand-maintained table of critical activities,
                   matched by substring containment regardless of unit.
                   Among all matching keywords, the longest wins; the
                   scan runs over a list sorted by length descending with
                   an early exit on the first containment, which makes
                   the tie-break auditable in isolation.

A missing reference is never an error: the caller drops the item from
the flagged stream (it may still contribute to category totals).

SNAPSHOT SEMANTICS:
  Both resolvers copy their tables at construction. Administrative edits
  to the price store never affect a run in flight.
*/
package reconcile

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Resolver looks up the reference unit price for a normalized
// description and unit. The boolean is false when no reference exists.
type Resolver interface {
	Lookup(descriptionNorm, unitNorm string) (decimal.Decimal, bool)
	Mode() Mode
}

// RefKey identifies an exact-mode reference entry.
type RefKey struct {
	Description string // NormalizeText of the reference activity
	Unit        string // NormalizeUnit of the reference unit
}

// =============================================================================
// EXACT RESOLVER
// =============================================================================

// ExactResolver matches on (normalized description, normalized unit).
type ExactResolver struct {
	prices map[RefKey]decimal.Decimal
}

// NewExactResolver snapshots the given reference table. Entries with an
// empty description or unit are dropped: a reference requires both.
func NewExactResolver(prices map[RefKey]decimal.Decimal) *ExactResolver {
	snapshot := make(map[RefKey]decimal.Decimal, len(prices))
	for k, v := range prices {
		if k.Description == "" || k.Unit == "" {
			continue
		}
		snapshot[k] = v
	}
	return &ExactResolver{prices: snapshot}
}

func (r *ExactResolver) Mode() Mode { return ModeExact }

func (r *ExactResolver) Lookup(descriptionNorm, unitNorm string) (decimal.Decimal, bool) {
	if unitNorm == "" {
		return decimal.Decimal{}, false
	}
	price, ok := r.prices[RefKey{Description: descriptionNorm, Unit: unitNorm}]
	return price, ok
}

// Size returns the number of usable reference entries.
func (r *ExactResolver) Size() int { return len(r.prices) }

// =============================================================================
// KEYWORD RESOLVER
// =============================================================================

type keywordPrice struct {
	keyword string
	price   decimal.Decimal
}

// KeywordResolver matches critical activities by substring containment.
type KeywordResolver struct {
	// sorted by keyword length descending, then lexicographically, so
	// the first containment hit is the longest (most specific) match
	keywords []keywordPrice
}

// NewKeywordResolver normalizes and snapshots a keyword -> price table.
// Keywords that normalize to the empty string are dropped.
func NewKeywordResolver(table map[string]float64) *KeywordResolver {
	keywords := make([]keywordPrice, 0, len(table))
	for k, v := range table {
		kn := NormalizeText(k)
		if kn == "" {
			continue
		}
		keywords = append(keywords, keywordPrice{keyword: kn, price: decimal.NewFromFloat(v)})
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i].keyword) != len(keywords[j].keyword) {
			return len(keywords[i].keyword) > len(keywords[j].keyword)
		}
		return keywords[i].keyword < keywords[j].keyword
	})
	return &KeywordResolver{keywords: keywords}
}

func (r *KeywordResolver) Mode() Mode { return ModeKeyword }

// Lookup ignores the unit: critical activities match by wording alone.
func (r *KeywordResolver) Lookup(descriptionNorm, _ string) (decimal.Decimal, bool) {
	for _, kp := range r.keywords {
		if strings.Contains(descriptionNorm, kp.keyword) {
			return kp.price, true
		}
	}
	return decimal.Decimal{}, false
}

// Size returns the number of usable keywords.
func (r *KeywordResolver) Size() int { return len(r.keywords) }
