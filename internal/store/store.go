// Package store persists the run history. The default backend is SQLite at
// home/protected/db.sqlite; a PostgreSQL backend lives in the postgres
// subpackage.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteStore is the SQLite implementation of Store.
type sqliteStore struct {
	DB *sql.DB
}

// Open opens the default SQLite store at home/protected/db.sqlite and runs
// pending migrations.
func Open(home string) (Store, error) {
	dbPath := filepath.Join(home, "protected", "db.sqlite")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &sqliteStore{DB: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	applied := make(map[int]bool)
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err == nil {
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var v int
			if err := rows.Scan(&v); err != nil {
				break
			}
			applied[v] = true
		}
	}

	type mig struct {
		version int
		name    string
		sql     string
	}
	var migs []mig
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(strings.TrimSuffix(f.Name(), ".sql"), "_", 2)[0])
		if err != nil {
			continue
		}
		if applied[v] {
			continue
		}
		body, _ := migrationsFS.ReadFile("migrations/" + f.Name())
		migs = append(migs, mig{v, f.Name(), string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })

	for _, m := range migs {
		if _, err := s.DB.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
		if _, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO schema_migrations (version) VALUES (?)`, m.version); err != nil {
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *sqliteStore) RecordRun(ctx context.Context, run RunRecord) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO runs (runner, spec_dir, start_time, end_time, elapsed_ms, exit_code, tests_total, tests_passed, tests_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Runner, run.SpecDir,
		run.StartTime.UTC().Format(time.RFC3339Nano), run.EndTime.UTC().Format(time.RFC3339Nano),
		run.ElapsedMs, run.ExitCode, run.TestsTotal, run.TestsPassed, run.TestsFailed)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT run_id, runner, spec_dir, start_time, end_time, elapsed_ms, exit_code, tests_total, tests_passed, tests_failed, created_at
		FROM runs ORDER BY run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var start, end, created string
		if err := rows.Scan(&r.RunID, &r.Runner, &r.SpecDir, &start, &end, &r.ElapsedMs, &r.ExitCode, &r.TestsTotal, &r.TestsPassed, &r.TestsFailed, &created); err != nil {
			return nil, err
		}
		r.StartTime, _ = time.Parse(time.RFC3339Nano, start)
		r.EndTime, _ = time.Parse(time.RFC3339Nano, end)
		r.CreatedAt, _ = time.Parse("2006-01-02 15:04:05", created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
