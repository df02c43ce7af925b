// Package firestoredb is the managed document backend for production.
// Each year partition is a subcollection: {collection}/{year}/records.
package firestoredb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/ovolkov/expenseflow/internal/domain"
	"github.com/ovolkov/expenseflow/internal/store"
)

const recordsSubcollection = "records"

// deleteBatchSize bounds one round of partition deletion.
const deleteBatchSize = 500

// Repository implements store.Store on Cloud Firestore.
type Repository struct {
	client     *firestore.Client
	collection string
	log        zerolog.Logger
}

// NewRepository connects to the given Firestore database. Application
// Default Credentials are assumed.
func NewRepository(ctx context.Context, projectID, databaseID, collection string, log zerolog.Logger) (*Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: create firestore client: %w", err)
	}
	return &Repository{client: client, collection: collection, log: log}, nil
}

// Close implements store.Store.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) records(year string) *firestore.CollectionRef {
	return r.client.Collection(r.collection).Doc(year).Collection(recordsSubcollection)
}

// SaveExpenses implements store.Store using a BulkWriter. Writes are
// at-least-once; a partially failed batch can leave duplicates on retry.
func (r *Repository) SaveExpenses(ctx context.Context, year string, expenses []domain.Expense, sourceFile string) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}

	importedAt := time.Now().UTC().Format(time.RFC3339)
	records := r.records(year)

	bw := r.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(expenses))
	for _, e := range expenses {
		doc := map[string]interface{}{
			"year":        year,
			"date":        e.Date,
			"category":    e.Category,
			"description": e.Description,
			"amount":      e.Amount,
			"source_file": sourceFile,
			"imported_at": importedAt,
		}
		job, err := bw.Create(records.NewDoc(), doc)
		if err != nil {
			bw.End()
			r.log.Error().Err(err).Str("year", year).Msg("Failed to enqueue expense write")
			return 0, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	written := 0
	var lastErr error
	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			lastErr = err
			continue
		}
		written++
	}
	if lastErr != nil {
		r.log.Error().Err(lastErr).Str("year", year).
			Int("written", written).Int("batch", len(expenses)).
			Msg("Expense batch partially failed")
		return written, fmt.Errorf("SaveExpenses: %w", store.ErrUnavailable)
	}

	r.log.Info().Str("year", year).Int("count", written).Str("source_file", sourceFile).
		Msg("Expense batch saved to Firestore")
	return written, nil
}

// ExpensesByYear implements store.Store. Ordering follows Firestore's
// native document order, which differs from SQLite's insertion order.
func (r *Repository) ExpensesByYear(ctx context.Context, year string, limit int) ([]domain.Expense, error) {
	iter := r.records(year).Limit(store.ClampLimit(limit)).Documents(ctx)
	defer iter.Stop()

	expenses, err := collectExpenses(iter)
	if err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to stream year partition")
		return nil, fmt.Errorf("ExpensesByYear: %w", store.ErrUnavailable)
	}
	return expenses, nil
}

// Years implements store.Store. Partition parents are plain document refs;
// each candidate is probed with a single-record query so that emptied
// partitions are not reported.
func (r *Repository) Years(ctx context.Context) ([]string, error) {
	refs := r.client.Collection(r.collection).DocumentRefs(ctx)

	var years []string
	for {
		ref, err := refs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			r.log.Error().Err(err).Msg("Failed to enumerate year partitions")
			return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
		}

		probe := ref.Collection(recordsSubcollection).Limit(1).Documents(ctx)
		_, err = probe.Next()
		probe.Stop()
		if err == iterator.Done {
			continue
		}
		if err != nil {
			r.log.Error().Err(err).Str("year", ref.ID).Msg("Failed to probe year partition")
			return nil, fmt.Errorf("Years: %w", store.ErrUnavailable)
		}
		years = append(years, ref.ID)
	}

	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	return years, nil
}

// YearStatistics implements store.Store with a full partition scan;
// Firestore has no server-side aggregation over arbitrary fields.
func (r *Repository) YearStatistics(ctx context.Context, year string) (domain.YearStats, error) {
	iter := r.records(year).Documents(ctx)
	defer iter.Stop()

	stats := domain.YearStats{
		Year:        year,
		PerCategory: make(map[string]domain.CategoryStats),
	}

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			r.log.Error().Err(err).Str("year", year).Msg("Failed to scan year partition")
			return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
		}

		var e domain.Expense
		if err := doc.DataTo(&e); err != nil {
			return domain.YearStats{}, fmt.Errorf("YearStatistics: %w", store.ErrUnavailable)
		}

		stats.TotalCount++
		stats.TotalAmount += e.Amount

		cs := stats.PerCategory[e.Category]
		cs.Count++
		cs.Total += e.Amount
		stats.PerCategory[e.Category] = cs
	}

	return stats, nil
}

// DeleteByYear implements store.Store, removing records in bounded rounds
// and finally the partition parent document.
func (r *Repository) DeleteByYear(ctx context.Context, year string) (int, error) {
	records := r.records(year)
	deleted := 0

	for {
		iter := records.Limit(deleteBatchSize).Documents(ctx)
		refs := make([]*firestore.DocumentRef, 0, deleteBatchSize)
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				r.log.Error().Err(err).Str("year", year).Msg("Failed to list records for deletion")
				return deleted, fmt.Errorf("DeleteByYear: %w", store.ErrUnavailable)
			}
			refs = append(refs, doc.Ref)
		}
		iter.Stop()

		if len(refs) == 0 {
			break
		}

		bw := r.client.BulkWriter(ctx)
		for _, ref := range refs {
			if _, err := bw.Delete(ref); err != nil {
				bw.End()
				return deleted, fmt.Errorf("DeleteByYear: %w", store.ErrUnavailable)
			}
		}
		bw.Flush()
		bw.End()
		deleted += len(refs)
	}

	if _, err := r.client.Collection(r.collection).Doc(year).Delete(ctx); err != nil {
		r.log.Error().Err(err).Str("year", year).Msg("Failed to delete partition parent")
		return deleted, fmt.Errorf("DeleteByYear: %w", store.ErrUnavailable)
	}

	r.log.Info().Str("year", year).Int("deleted", deleted).Msg("Year partition deleted")
	return deleted, nil
}

// Search implements store.Store. Filters are applied in memory after
// streaming the relevant partitions, mirroring the flexibility of the
// SQLite variant without composite Firestore indexes.
func (r *Repository) Search(ctx context.Context, f domain.SearchFilter) ([]domain.Expense, error) {
	var years []string
	if f.Year != "" {
		years = []string{f.Year}
	} else {
		all, err := r.Years(ctx)
		if err != nil {
			return nil, err
		}
		years = all
	}

	var results []domain.Expense
	for _, year := range years {
		iter := r.records(year).Documents(ctx)
		expenses, err := collectExpenses(iter)
		iter.Stop()
		if err != nil {
			r.log.Error().Err(err).Str("year", year).Msg("Failed to stream partition for search")
			return nil, fmt.Errorf("Search: %w", store.ErrUnavailable)
		}

		for _, e := range expenses {
			if matchesFilter(e, f) {
				results = append(results, e)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Date > results[j].Date
	})
	return results, nil
}

func matchesFilter(e domain.Expense, f domain.SearchFilter) bool {
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	if f.DateFrom != "" && e.Date < f.DateFrom {
		return false
	}
	if f.DateTo != "" && e.Date > f.DateTo {
		return false
	}
	if f.MinAmount != nil && e.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
		return false
	}
	return true
}

func collectExpenses(iter *firestore.DocumentIterator) ([]domain.Expense, error) {
	var expenses []domain.Expense
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return expenses, nil
		}
		if err != nil {
			return nil, err
		}

		var e domain.Expense
		if err := doc.DataTo(&e); err != nil {
			return nil, err
		}
		e.ID = doc.Ref.ID
		expenses = append(expenses, e)
	}
}

var _ store.Store = (*Repository)(nil)
