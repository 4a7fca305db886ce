// Package postgres implements C1 JobRepository against PostgreSQL via pgx.
package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Store is the JobRepository implementation. All updates use an id-only
// WHERE clause (no version/compare-and-swap column in the predicate); the
// last writer wins, and version is bumped on each update without being
// checked.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool. Use NewStoreWithConfig to also
// open the pool and run migrations.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
