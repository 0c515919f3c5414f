/*
normalize.go - Text and unit canonicalization

PURPOSE:
  Declared descriptions arrive with inconsistent case, accents,
  punctuation and spacing ("Excavación  Mecánica." vs "EXCAVACION
  MECANICA"). Reference lookup keys must be stable, so both sides are
  canonicalized through the same functions before comparison.

CONTRACTS:
  NormalizeText: lower-case, NFD-decompose and drop combining marks,
  replace anything outside [a-z0-9 ] with a space, collapse whitespace,
  trim. Idempotent; empty input stays empty; never fails.

  NormalizeUnit: upper-case, fold cubic/square-meter glyph variants to
  M3/M2, strip internal whitespace, then map the synonym table
  (UND/UNID/UNIDAD/U -> UN, ML/M.L -> M). Unmapped tokens pass through
  unchanged. Deterministic and total.

KNOWN LIMITATION:
  Exact-mode matching is only as good as this normalization: a single
  character difference that survives it means no reference match.
*/
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes diacritics: decompose, drop combining marks, recompose.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var unitSynonyms = map[string]string{
	"UND":    "UN",
	"UNID":   "UN",
	"UNIDAD": "UN",
	"U":      "UN",
	"ML":     "M",
	"M.L":    "M",
}

var meterGlyphs = strings.NewReplacer(
	"M³", "M3",
	"M^3", "M3",
	"M²", "M2",
	"M^2", "M2",
)

// NormalizeText canonicalizes a free-text description for comparison.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	lower := strings.ToLower(s)
	if stripped, _, err := transform.String(stripMarks, lower); err == nil {
		lower = stripped
	}

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeUnit canonicalizes a unit label.
func NormalizeUnit(u string) string {
	s := strings.ToUpper(strings.TrimSpace(u))
	s = meterGlyphs.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	if mapped, ok := unitSynonyms[s]; ok {
		return mapped
	}
	return s
}
