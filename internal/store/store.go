package store

import "context"

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	PgxPool
	Ping(ctx context.Context) error
}

// Store is the optional PostgreSQL submission ledger.
type Store struct {
	pool DB

	Submissions SubmissionRepository
}

// New wires the repositories to pool.
func New(pool DB) *Store {
	return &Store{
		pool:        pool,
		Submissions: &submissionRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil {
		return ErrDisabled
	}
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}
