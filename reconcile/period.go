/*
period.go - Processing periods and Spanish month parsing

PURPOSE:
  A period is one (year, month) folder of certificates, named like
  "julio2025" or "actas_jul2024". The month key stored in the ledger is
  the canonical full Spanish name, so "julio2025" and "actas_jul2025"
  resolve to the same ledger slice regardless of folder naming.
*/
package reconcile

import (
	"fmt"
	"strings"
)

// Period identifies one processing batch in the ledger.
type Period struct {
	Year  int
	Month string // canonical full Spanish month name, e.g. "julio"
}

func (p Period) String() string {
	return fmt.Sprintf("%s%d", p.Month, p.Year)
}

// monthNumbers maps Spanish month tokens (full and abbreviated) to their
// calendar number. Iteration order for matching is fixed by monthTokens.
var monthNumbers = map[string]int{
	"enero": 1, "ene": 1,
	"febrero": 2, "feb": 2,
	"marzo": 3, "mar": 3,
	"abril": 4, "abr": 4,
	"mayo": 5, "may": 5,
	"junio": 6, "jun": 6,
	"julio": 7, "jul": 7,
	"agosto": 8, "ago": 8,
	"septiembre": 9, "setiembre": 9, "sep": 9,
	"octubre": 10, "oct": 10,
	"noviembre": 11, "nov": 11,
	"diciembre": 12, "dic": 12,
}

// monthTokens lists full names before abbreviations; every match
// canonicalizes through monthNames, so the order only fixes which token
// is reported for ambiguous names.
var monthTokens = []string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "setiembre", "octubre",
	"noviembre", "diciembre",
	"ene", "feb", "mar", "abr", "may", "jun",
	"jul", "ago", "sep", "oct", "nov", "dic",
}

// monthNames gives the canonical full name per calendar number.
var monthNames = [13]string{
	"", "enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// MonthNumber returns the calendar number for a month token, or 0 for an
// unknown token.
func MonthNumber(month string) int {
	return monthNumbers[strings.ToLower(month)]
}

// ParsePeriodName extracts (year, month) from a period folder name. The
// year is the first 4-digit run; the month is the first known Spanish
// token contained in the name, canonicalized to the full name so
// abbreviated and variant spellings key the same ledger slice.
func ParsePeriodName(name string) (Period, error) {
	lower := strings.ToLower(name)

	year := 0
	digits := 0
	for i := 0; i < len(lower); i++ {
		if lower[i] >= '0' && lower[i] <= '9' {
			digits++
			if digits == 4 {
				year = int(lower[i-3]-'0')*1000 + int(lower[i-2]-'0')*100 +
					int(lower[i-1]-'0')*10 + int(lower[i]-'0')
				break
			}
		} else {
			digits = 0
		}
	}

	month := ""
	for _, token := range monthTokens {
		if strings.Contains(lower, token) {
			month = monthNames[monthNumbers[token]]
			break
		}
	}

	if year == 0 || month == "" {
		return Period{}, fmt.Errorf("period %q: %w", name, ErrInvalidPeriod)
	}
	return Period{Year: year, Month: month}, nil
}
