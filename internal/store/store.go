/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"

	// Postgres driver registered as "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrClosed is returned by operations on a store that has been closed.
	ErrClosed = errors.New("store is closed")
	// ErrSchemaTooNew is returned by Open when the database was stamped by a newer schema.
	ErrSchemaTooNew = errors.New("database schema is newer than this build supports")
)

// Options selects the storage engine. For sqlite DSN is a file path; for postgres a connection URL.
type Options struct {
	Driver string
	DSN    string
	Logger *slog.Logger
}

// Store is an open handle on the library database. It is meant for a single caller;
// the sqlite pool is pinned to one connection.
type Store struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
	path    string
	log     *slog.Logger
	closed  bool
}

// Open connects to the database, ensures the schema exists and returns the store.
// Calling Open on an already populated database is safe.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := strings.ToLower(strings.TrimSpace(opts.Driver))
	if driver == "" {
		driver = DriverSQLite
	}
	base := opts.Logger
	if base == nil {
		base = applog.WithComponent("store")
	}
	l := applog.WithOperation(base, "open").With(slog.String("driver", driver))
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("store dsn is required")
	}

	var (
		db      *sqlx.DB
		dialect goqu.DialectWrapper
		path    string
		err     error
	)
	switch driver {
	case DriverSQLite:
		path = opts.DSN
		db, err = openSQLite(path)
		dialect = goqu.Dialect("sqlite3")
	case DriverPostgres:
		db, err = openPostgres(opts.DSN)
		dialect = goqu.Dialect("postgres")
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		path:    path,
		log:     base.With(slog.String("driver", driver)),
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("store ready", slog.String("path", path))
	return s, nil
}

func openSQLite(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return sqlx.NewDb(db, "sqlite3"), nil
}

// sqliteDSN renders path as a file: URI. Pragmas are applied by the driver on every new connection.
// The path is percent-encoded so '?', '#' and '%' in file names stay part of the name.
func sqliteDSN(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   (&url.URL{Path: filepath.ToSlash(path)}).EscapedPath(),
		RawQuery: "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
	}
	return u.String()
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	return db, nil
}

// Path returns the sqlite database file, or "" for server engines.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close releases the database handle. It is safe to call more than once.
func (s *Store) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		s.log.Error("close failed", slog.Any("err", err))
		return fmt.Errorf("close store: %w", err)
	}
	s.log.Debug("store closed")
	return nil
}

// inTx runs fn inside one transaction. A storage error or a rejection rolls everything back;
// only an accepted operation is committed.
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) (domain.Reason, error)) (domain.Reason, error) {
	if s.closed {
		return domain.ReasonNone, ErrClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.ReasonNone, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	reason, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return domain.ReasonNone, err
	}
	if reason != domain.ReasonNone {
		_ = tx.Rollback()
		return reason, nil
	}
	if err := tx.Commit(); err != nil {
		return domain.ReasonNone, fmt.Errorf("commit: %w", err)
	}
	return domain.ReasonNone, nil
}

// exec renders a goqu statement and executes it, returning the number of affected rows.
func exec(ctx context.Context, tx *sqlx.Tx, stmt interface {
	ToSQL() (string, []interface{}, error)
}) (int64, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build statement: %w", err)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// exists reports whether the dataset yields at least one row.
func exists(ctx context.Context, q sqlx.QueryerContext, ds *goqu.SelectDataset) (bool, error) {
	query, args, err := ds.Select(goqu.L("1")).Limit(1).ToSQL()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	var one int
	err = sqlx.GetContext(ctx, q, &one, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}
