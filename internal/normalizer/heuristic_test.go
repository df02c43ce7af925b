package normalizer

import (
	"testing"

	"github.com/ovolkov/expenseflow/internal/extractor"
)

func TestHeuristicMap_SynonymColumns(t *testing.T) {
	sheet := &extractor.Sheet{
		Columns: []string{"Spending", "Details", "RM"},
		Rows: []extractor.RawRow{
			{"Spending": "Jan 5", "Details": "Office supplies", "RM": "120.50"},
		},
	}

	got := HeuristicMap(sheet, "2023")
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}

	e := got[0]
	if e.Date != "2023-01-05" {
		t.Errorf("Date = %q, want 2023-01-05", e.Date)
	}
	if e.Category != "Uncategorized" {
		t.Errorf("Category = %q, want Uncategorized", e.Category)
	}
	if e.Description != "Office supplies" {
		t.Errorf("Description = %q, want Office supplies", e.Description)
	}
	if e.Amount != 120.50 {
		t.Errorf("Amount = %v, want 120.50", e.Amount)
	}
}

func TestHeuristicMap_NeverDropsRows(t *testing.T) {
	sheet := &extractor.Sheet{
		Columns: []string{"Mystery", "Stuff"},
		Rows: []extractor.RawRow{
			{"Mystery": "???", "Stuff": "???"},
			{"Mystery": "", "Stuff": ""},
			{"Mystery": "abc", "Stuff": "xyz"},
		},
	}

	got := HeuristicMap(sheet, "2024")
	if len(got) != len(sheet.Rows) {
		t.Fatalf("got %d candidates, want %d (one per input row)", len(got), len(sheet.Rows))
	}
	for i, e := range got {
		if e.Date != "2024-01-01" {
			t.Errorf("row %d: Date = %q, want fallback 2024-01-01", i, e.Date)
		}
		if e.Category != "Uncategorized" {
			t.Errorf("row %d: Category = %q, want default", i, e.Category)
		}
		if e.Description != "" {
			t.Errorf("row %d: Description = %q, want empty default", i, e.Description)
		}
		if e.Amount != 0 {
			t.Errorf("row %d: Amount = %v, want 0", i, e.Amount)
		}
	}
}

func TestHeuristicMap_FirstMatchingColumnWins(t *testing.T) {
	sheet := &extractor.Sheet{
		Columns: []string{"Expense Type", "Item Category", "Total Cost", "Amount Paid"},
		Rows: []extractor.RawRow{
			{"Expense Type": "Travel", "Item Category": "Misc", "Total Cost": "50", "Amount Paid": "60"},
		},
	}

	got := HeuristicMap(sheet, "2022")
	if got[0].Category != "Travel" {
		t.Errorf("Category = %q, want Travel (first matching column)", got[0].Category)
	}
	// "Total Cost" contains "cost", which precedes "Amount Paid" in header order.
	if got[0].Amount != 50 {
		t.Errorf("Amount = %v, want 50 (first matching column)", got[0].Amount)
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		raw  string
		year string
		want string
	}{
		{"Jan 5", "2023", "2023-01-05"},
		{"5 Jan", "2023", "2023-01-05"},
		{"2023-04-17", "2023", "2023-04-17"},
		{"2021-04-17", "2023", "2021-04-17"}, // explicit year wins over hint
		{"17/04/2023", "2023", "2023-04-17"},
		{"January 5", "2020", "2020-01-05"},
		{"03/15", "2023", "2023-03-15"},
		{"", "2023", "2023-01-01"},
		{"not a date", "2023", "2023-01-01"},
	}

	for _, tt := range tests {
		if got := normalizeDate(tt.raw, tt.year); got != tt.want {
			t.Errorf("normalizeDate(%q, %q) = %q, want %q", tt.raw, tt.year, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"120.50", 120.50},
		{"RM 120.50", 120.50},
		{"$1,234.56", 1234.56},
		{"-45.20", -45.20},
		{"", 0},
		{"n/a", 0},
	}

	for _, tt := range tests {
		if got := parseAmount(tt.raw); got != tt.want {
			t.Errorf("parseAmount(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}
