/*
classify.go - Work-family classification by keyword

PURPOSE:
  Assigns a line item to one of four quantity families from its
  normalized description. Classification runs before and independently of
  reference-price resolution, so quantities aggregate even for items
  whose price is not in the reference set.

PRIORITY:
  Rules are evaluated in a fixed order and the first match wins:
    1. substring "estamp"        -> CONCRETE_STAMPED
    2. whole word "mr"           -> CONCRETE_MR
    3. substring "excav"         -> EXCAVATION
    4. substring "rellen"        -> BACKFILL
  "mr" requires word boundaries so that codes like "mra" inside other
  tokens are not captured.
*/
package reconcile

import (
	"regexp"
	"strings"
)

// Category is a fixed work family tracked by aggregate quantity.
type Category string

const (
	CategoryExcavation      Category = "EXCAVATION"
	CategoryBackfill        Category = "BACKFILL"
	CategoryConcreteMR      Category = "CONCRETE_MR"
	CategoryConcreteStamped Category = "CONCRETE_STAMPED"
)

// Categories lists all families in their output-column order.
var Categories = []Category{
	CategoryExcavation,
	CategoryBackfill,
	CategoryConcreteMR,
	CategoryConcreteStamped,
}

// Label returns the Spanish column header used in output artifacts.
func (c Category) Label() string {
	switch c {
	case CategoryExcavation:
		return "Excavaciones"
	case CategoryBackfill:
		return "Rellenos"
	case CategoryConcreteMR:
		return "Concreto MR"
	case CategoryConcreteStamped:
		return "Concreto estampado"
	}
	return string(c)
}

var mrWord = regexp.MustCompile(`\bmr\b`)

// Classify assigns a normalized description to a category. The second
// return value is false when no rule matches; such items are excluded
// from category aggregation but may still be price-checked.
func Classify(descNorm string) (Category, bool) {
	switch {
	case strings.Contains(descNorm, "estamp"):
		return CategoryConcreteStamped, true
	case mrWord.MatchString(descNorm):
		return CategoryConcreteMR, true
	case strings.Contains(descNorm, "excav"):
		return CategoryExcavation, true
	case strings.Contains(descNorm, "rellen"):
		return CategoryBackfill, true
	}
	return "", false
}
