// Package backend selects and constructs the expense store once at process
// start. Components downstream receive the store.Store capability; nothing
// re-reads the backend choice at call time.
package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ovolkov/expenseflow/internal/config"
	"github.com/ovolkov/expenseflow/internal/store"
	"github.com/ovolkov/expenseflow/internal/store/firestoredb"
	"github.com/ovolkov/expenseflow/internal/store/sqlite"
)

// New builds the store named by cfg.StorageBackend. The caller owns the
// returned store and must Close it on shutdown.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendSQLite:
		repo, err := sqlite.NewRepository(cfg.SQLiteDBPath, log)
		if err != nil {
			return nil, fmt.Errorf("backend: initialize sqlite store: %w", err)
		}
		log.Info().Str("db_path", cfg.SQLiteDBPath).Msg("Using SQLite expense store")
		return repo, nil

	case config.BackendFirestore:
		repo, err := firestoredb.NewRepository(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabase, cfg.FirestoreCollection, log)
		if err != nil {
			return nil, fmt.Errorf("backend: initialize firestore store: %w", err)
		}
		log.Info().
			Str("project", cfg.FirestoreProjectID).
			Str("collection", cfg.FirestoreCollection).
			Msg("Using Firestore expense store")
		return repo, nil

	default:
		return nil, fmt.Errorf("backend: unsupported storage backend %q", cfg.StorageBackend)
	}
}
