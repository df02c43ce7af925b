// Package store defines the capability contract every expense backend must
// satisfy. The embedded SQLite backend and the Firestore backend are
// observably equivalent through this interface; selection happens once at
// process start (see internal/backend).
package store

import (
	"context"
	"errors"

	"github.com/ovolkov/expenseflow/internal/domain"
)

// MaxQueryLimit is the hard ceiling on records returned by ExpensesByYear.
const MaxQueryLimit = 1000

// ErrUnavailable is the single condition surfaced for any backend
// connectivity or write failure. Internal detail stays in the logs; the
// abstraction performs no retries of its own.
var ErrUnavailable = errors.New("expense store unavailable")

// Store is implemented by both backends.
//
// Year partitions are keyed by the caller-supplied 4-digit year string, not
// by the year inside each record's date. Writes are at-least-once: a retried
// SaveExpenses after a partial failure may duplicate records. Within one
// batch records are written in input order; concurrent batches against the
// same partition may interleave and concurrent save/delete on one partition
// is last-writer-wins (callers needing exclusivity serialize per year).
type Store interface {
	// SaveExpenses stamps source_file and imported_at on each record and
	// writes the batch under the year partition, returning the count written.
	SaveExpenses(ctx context.Context, year string, expenses []domain.Expense, sourceFile string) (int, error)

	// ExpensesByYear returns up to limit records written under the partition.
	// limit is clamped to MaxQueryLimit; non-positive means MaxQueryLimit.
	// Ordering follows the backend's native order (insertion order on SQLite)
	// and is not guaranteed identical between backends.
	ExpensesByYear(ctx context.Context, year string, limit int) ([]domain.Expense, error)

	// Years lists every year partition holding at least one record,
	// most recent first.
	Years(ctx context.Context) ([]string, error)

	// YearStatistics aggregates count, signed amount total and per-category
	// breakdown for one partition.
	YearStatistics(ctx context.Context, year string) (domain.YearStats, error)

	// DeleteByYear removes every record in the partition and returns the
	// count removed; an absent partition yields 0, not an error.
	DeleteByYear(ctx context.Context, year string) (int, error)

	// Search returns records matching every provided filter (ANDed); date
	// and amount ranges are inclusive on both ends.
	Search(ctx context.Context, filter domain.SearchFilter) ([]domain.Expense, error)

	// Close releases backend resources.
	Close() error
}

// ClampLimit normalizes a caller-supplied limit to (0, MaxQueryLimit].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
