package normalizer

import (
	"math"
	"testing"

	"github.com/ovolkov/expenseflow/internal/domain"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		candidate    domain.Expense
		wantAccepted bool
	}{
		{
			name:         "valid record",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "Office", Description: "supplies", Amount: 120.5},
			wantAccepted: true,
		},
		{
			name:         "empty description allowed",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "Office", Amount: 10},
			wantAccepted: true,
		},
		{
			name:         "negative amount allowed",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "Refund", Amount: -42.10},
			wantAccepted: true,
		},
		{
			name:         "unparseable date",
			candidate:    domain.Expense{Date: "not-a-date", Category: "X", Description: "Y", Amount: 10},
			wantAccepted: false,
		},
		{
			name:         "impossible calendar date",
			candidate:    domain.Expense{Date: "2023-02-30", Category: "X", Amount: 10},
			wantAccepted: false,
		},
		{
			name:         "NaN amount",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "X", Amount: math.NaN()},
			wantAccepted: false,
		},
		{
			name:         "infinite amount",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "X", Amount: math.Inf(1)},
			wantAccepted: false,
		},
		{
			name:         "blank category",
			candidate:    domain.Expense{Date: "2023-01-05", Category: "   ", Amount: 10},
			wantAccepted: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, rejected := Validate([]domain.Expense{tt.candidate})
			if tt.wantAccepted && (len(accepted) != 1 || rejected != 0) {
				t.Errorf("accepted=%d rejected=%d, want candidate accepted", len(accepted), rejected)
			}
			if !tt.wantAccepted && (len(accepted) != 0 || rejected != 1) {
				t.Errorf("accepted=%d rejected=%d, want candidate rejected", len(accepted), rejected)
			}
		})
	}
}

func TestValidate_StableOrderAndCounts(t *testing.T) {
	candidates := []domain.Expense{
		{Date: "2023-01-01", Category: "A", Amount: 1},
		{Date: "bad", Category: "B", Amount: 2},
		{Date: "2023-01-03", Category: "C", Amount: 3},
		{Date: "2023-01-04", Category: "", Amount: 4},
		{Date: "2023-01-05", Category: "E", Amount: 5},
	}

	accepted, rejected := Validate(candidates)
	if rejected != 2 {
		t.Errorf("rejected = %d, want 2", rejected)
	}
	want := []string{"A", "C", "E"}
	if len(accepted) != len(want) {
		t.Fatalf("accepted %d records, want %d", len(accepted), len(want))
	}
	for i, cat := range want {
		if accepted[i].Category != cat {
			t.Errorf("accepted[%d].Category = %q, want %q (stable order)", i, accepted[i].Category, cat)
		}
	}
}
