// Package normalizer turns heterogeneous spreadsheet rows into canonical
// expense records. It consults a mapping oracle when one is configured and
// falls back to a deterministic heuristic mapper that never fails.
package normalizer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/extractor"
)

// Normalizer maps raw sheets to canonical candidates. A nil oracle means
// heuristic-only operation, which is how deployments without an API key run.
type Normalizer struct {
	oracle Oracle
	log    zerolog.Logger
}

// New creates a Normalizer. oracle may be nil.
func New(oracle Oracle, log zerolog.Logger) *Normalizer {
	return &Normalizer{oracle: oracle, log: log}
}

// Normalize produces one candidate batch for the sheet. The oracle path may
// drop rows (callers treat count mismatches as partial success); the
// heuristic path emits exactly one candidate per row.
func (n *Normalizer) Normalize(ctx context.Context, sheet *extractor.Sheet, year string) []domain.Expense {
	if len(sheet.Rows) == 0 {
		return nil
	}

	if n.oracle != nil {
		candidates, err := n.oracle.MapRows(ctx, sheet.Columns, sheet.Rows, year)
		switch {
		case err != nil:
			n.log.Warn().Err(err).Msg("Mapping oracle failed, falling back to heuristic mapper")
		case !saneCandidateCount(len(candidates), len(sheet.Rows)):
			n.log.Warn().
				Int("input_rows", len(sheet.Rows)).
				Int("oracle_rows", len(candidates)).
				Msg("Oracle row count diverges from input, falling back to heuristic mapper")
		default:
			return candidates
		}
	}

	return HeuristicMap(sheet, year)
}

// saneCandidateCount rejects oracle output that is empty or wildly larger
// than the input batch. Moderate drops are allowed: the oracle may discard
// malformed rows.
func saneCandidateCount(got, input int) bool {
	return got > 0 && got <= 2*input
}
