package normalizer

import (
	"math"
	"strings"
	"time"

	"github.com/ovolkov/expenseflow/internal/domain"
)

// Validate partitions candidates into accepted records and a rejected count.
// Checks run in order and short-circuit per candidate: date must be a real
// YYYY-MM-DD calendar date, amount must be finite, category must be
// non-blank. Description may be empty. The accepted subset keeps input
// order; a failing candidate never aborts the batch.
func Validate(candidates []domain.Expense) (accepted []domain.Expense, rejected int) {
	accepted = make([]domain.Expense, 0, len(candidates))
	for _, c := range candidates {
		if _, err := time.Parse(domain.DateLayout, c.Date); err != nil {
			rejected++
			continue
		}
		if math.IsNaN(c.Amount) || math.IsInf(c.Amount, 0) {
			rejected++
			continue
		}
		if strings.TrimSpace(c.Category) == "" {
			rejected++
			continue
		}
		accepted = append(accepted, c)
	}
	return accepted, rejected
}
