// Package sqlite is the embedded expense backend for local development.
// Records live in a single expenses table partitioned by the year column.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/store"
)

// Repository implements store.Store on an embedded SQLite database.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository opens (creating if needed) the database at dbPath and runs
// pending migrations.
func NewRepository(dbPath string, log zerolog.Logger) (*Repository, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, log: log}, nil
}

// Close implements store.Store.
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveExpenses implements store.Store. The batch is written in one
// transaction, so on SQLite a batch is all-or-nothing.
func (r *Repository) SaveExpenses(ctx context.Context, year string, expenses []domain.Expense, sourceFile string) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to begin save transaction")
		return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expenses (year, date, category, description, amount, source_file, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to prepare expense insert")
		return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
	}
	defer stmt.Close()

	importedAt := time.Now().UTC().Format(time.RFC3339)
	for _, e := range expenses {
		if _, err := stmt.ExecContext(ctx,
			year, e.Date, e.Category, e.Description, e.Amount, sourceFile, importedAt); err != nil {
			r.log.Error().Err(err).Str("year", year).Msg("Failed to insert expense")
			return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to commit expense batch")
		return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
	}

	r.log.Info().Str("year", year).Int("count", len(expenses)).Str("source_file", sourceFile).
		Msg("Expense batch saved to SQLite")
	return len(expenses), nil
}

// ExpensesByYear implements store.Store. Rows come back in insertion order.
func (r *Repository) ExpensesByYear(ctx context.Context, year string, limit int) ([]domain.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, date, category, description, amount, source_file, imported_at
		FROM expenses
		WHERE year = ?
		ORDER BY id
		LIMIT ?
	`, year, store.ClampLimit(limit))
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to query expenses")
		return nil, fmt.Errorf("ExpensesByYear: %w", store.ErrUnavailable)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

// Years implements store.Store.
func (r *Repository) Years(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT year FROM expenses ORDER BY year DESC`)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to list years")
		return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
	}
	defer rows.Close()

	var years []string
	for rows.Next() {
		var y string
		if err := rows.Scan(&y); err != nil {
			return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
		}
		years = append(years, y)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
	}
	return years, nil
}

// YearStatistics implements store.Store using SQL aggregation.
func (r *Repository) YearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	stats := domain.YearStats{
		Year:        year,
		PerCategory: make(map[string]domain.CategoryStats),
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE year = ?
	`, year).Scan(&stats.TotalCount, &stats.TotalAmount)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to aggregate year totals")
		return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COUNT(*), COALESCE(SUM(amount), 0)
		FROM expenses
		WHERE year = ?
		GROUP BY category
	`, year)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to aggregate categories")
		return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var cs domain.CategoryStats
		if err := rows.Scan(&category, &cs.Count, &cs.Total); err != nil {
			return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
		}
		stats.PerCategory[category] = cs
	}
	if err := rows.Err(); err != nil {
		return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
	}

	return stats, nil
}

// DeleteByYear implements store.Store.
func (r *Repository) DeleteByYear(ctx context.Context, year string) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE year = ?`, year)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to delete year partition")
		return 0, fmt.Errorf("DeleteByYear: %w", store.ErrUnavailable)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByYear: %w", store.ErrUnavailable)
	}

	r.log.Info().Str("year", year).Int64("deleted", deleted).Msg("Year partition deleted")
	return int(deleted), nil
}

// Search implements store.Store with a dynamically built WHERE clause.
func (r *Repository) Search(ctx context.Context, f domain.SearchFilter) ([]domain.Expense, error) {
	query := `
		SELECT id, date, category, description, amount, source_file, imported_at
		FROM expenses
		WHERE 1=1
	`
	var args []interface{}

	if f.Year != "" {
		query += " AND year = ?"
		args = append(args, f.Year)
	}
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.DateFrom != "" {
		query += " AND date >= ?"
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += " AND date <= ?"
		args = append(args, f.DateTo)
	}
	if f.MinAmount != nil {
		query += " AND amount >= ?"
		args = append(args, *f.MinAmount)
	}
	if f.MaxAmount != nil {
		query += " AND amount <= ?"
		args = append(args, *f.MaxAmount)
	}

	query += " ORDER BY date DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.log.Error().Err(err).Msg("Failed to search expenses")
		return nil, fmt.Errorf("Search: %w", store.ErrUnavailable)
	}
	defer rows.Close()

	return scanExpenses(rows)
}

func scanExpenses(rows *sql.Rows) ([]domain.Expense, error) {
	var expenses []domain.Expense
	for rows.Next() {
		var e domain.Expense
		var id int64
		if err := rows.Scan(&id, &e.Date, &e.Category, &e.Description, &e.Amount, &e.SourceFile, &e.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan expense row: %w", store.ErrUnavailable)
		}
		e.ID = fmt.Sprintf("%d", id)
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expense rows: %w", store.ErrUnavailable)
	}
	return expenses, nil
}

var _ store.Store = (*Repository)(nil)
