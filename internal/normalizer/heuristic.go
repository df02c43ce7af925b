package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
)

// DefaultCategory is assigned when no category-like column exists.
const DefaultCategory = "Uncategorized"

// Column-label synonym sets for the heuristic mapper. Matching is a
// case-insensitive substring test; the first matching column in header order
// wins for each field.
var (
	dateSynonyms        = []string{"date", "spending", "when"}
	categorySynonyms    = []string{"category", "type", "class"}
	descriptionSynonyms = []string{"description", "details", "memo", "note"}
	amountSynonyms      = []string{"amount", "rm", "cost", "price", "value"}
)

// HeuristicMap converts every raw row to a canonical candidate by
// pattern-matching column labels. It always emits exactly one candidate per
// input row; unmappable fields get defaults rather than failing.
func HeuristicMap(sheet *extractor.Sheet, year string) []domain.Expense {
	dateCol := matchColumn(sheet.Columns, dateSynonyms)
	categoryCol := matchColumn(sheet.Columns, categorySynonyms)
	descriptionCol := matchColumn(sheet.Columns, descriptionSynonyms)
	amountCol := matchColumn(sheet.Columns, amountSynonyms)

	result := make([]domain.Expense, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		e := domain.Expense{
			Date:     normalizeDate(row[dateCol], year),
			Category: DefaultCategory,
		}
		if categoryCol != "" && strings.TrimSpace(row[categoryCol]) != "" {
			e.Category = strings.TrimSpace(row[categoryCol])
		}
		if descriptionCol != "" {
			e.Description = strings.TrimSpace(row[descriptionCol])
		}
		if amountCol != "" {
			e.Amount = parseAmount(row[amountCol])
		}
		result = append(result, e)
	}
	return result
}

// matchColumn returns the first column whose lowercased label contains any
// of the synonyms, or "" when none match.
func matchColumn(columns []string, synonyms []string) string {
	for _, col := range columns {
		lower := strings.ToLower(col)
		for _, syn := range synonyms {
			if strings.Contains(lower, syn) {
				return col
			}
		}
	}
	return ""
}

// Date layouts the heuristic understands. Layouts without a year component
// parse to year 0 and get the caller-supplied year substituted.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"Jan 2",
	"2 Jan",
	"January 2",
	"2 January",
	"01/02",
	"01-02",
}

// normalizeDate parses a raw date string into YYYY-MM-DD, substituting year
// when the source has no year component. Unparseable input falls back to
// January 1st of the target year so the row still survives validation.
func normalizeDate(raw, year string) string {
	raw = strings.TrimSpace(raw)
	fallback := fmt.Sprintf("%s-01-01", year)
	if raw == "" {
		return fallback
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		y := t.Year()
		if y == 0 {
			parsed, err := strconv.Atoi(year)
			if err != nil {
				return fallback
			}
			y = parsed
		}
		return fmt.Sprintf("%04d-%02d-%02d", y, t.Month(), t.Day())
	}

	return fallback
}

// parseAmount leniently coerces a cell to a float: currency symbols and
// thousands separators are stripped, the sign is preserved. Unparseable
// input yields 0.
func parseAmount(raw string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)

	if cleaned == "" {
		return 0
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}
