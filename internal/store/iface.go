package store

import "context"

// Store is the persistence interface for the run history.
// Implementations: the SQLite store in this package (default) and
// *postgres.Store.
type Store interface {
	RecordRun(ctx context.Context, run RunRecord) (int64, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	Close() error
}
