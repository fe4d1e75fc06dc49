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
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/domain"
	"librarydesk/internal/version"
)

const (
	// schemaVersion stamps the layout below. There are no migrations; a newer stamp is refused.
	schemaVersion = 1

	tableBooks      = "books"
	tableMembers    = "members"
	tableLoans      = "loans"
	tableSchemaInfo = "schema_info"

	colTitle     = "title"
	colTotal     = "total_copies"
	colAvailable = "available_copies"
	colMemberID  = "member_id"
	colName      = "name"
)

// ddl is valid for both sqlite and postgres.
var ddl = []string{
	`CREATE TABLE IF NOT EXISTS books (
		title            TEXT    PRIMARY KEY,
		total_copies     INTEGER NOT NULL DEFAULT 0,
		available_copies INTEGER NOT NULL DEFAULT 0,
		CHECK (total_copies >= 0),
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	);`,
	`CREATE TABLE IF NOT EXISTS members (
		member_id TEXT PRIMARY KEY,
		name      TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS loans (
		member_id TEXT NOT NULL REFERENCES members(member_id),
		title     TEXT NOT NULL REFERENCES books(title),
		PRIMARY KEY (member_id, title)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_loans_title ON loans(title);`,
	`CREATE TABLE IF NOT EXISTS schema_info (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL,
		app            TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL
	);`,
}

// ensureSchema creates the tables if absent and stamps schema_info, in one transaction.
func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
		for _, q := range ddl {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				return domain.ReasonNone, fmt.Errorf("ensure schema: %w", err)
			}
		}
		return domain.ReasonNone, s.stampSchema(ctx, tx)
	})
	return err
}

// stampSchema seeds or refreshes the single schema_info row.
func (s *Store) stampSchema(ctx context.Context, tx *sqlx.Tx) error {
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()

	query, args, err := s.dialect.From(tableSchemaInfo).Prepared(true).
		Select("schema_version").Where(goqu.C("id").Eq(1)).ToSQL()
	if err != nil {
		return fmt.Errorf("build schema query: %w", err)
	}
	var cur int
	err = tx.GetContext(ctx, &cur, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err := exec(ctx, tx, s.dialect.Insert(tableSchemaInfo).Prepared(true).Rows(goqu.Record{
			"id": 1, "schema_version": schemaVersion, "app": appv, "created_at": now, "updated_at": now,
		}))
		if err != nil {
			return fmt.Errorf("insert schema_info: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema_info: %w", err)
	case cur > schemaVersion:
		return fmt.Errorf("%w: found %d, supported %d", ErrSchemaTooNew, cur, schemaVersion)
	default:
		_, err := exec(ctx, tx, s.dialect.Update(tableSchemaInfo).Prepared(true).
			Set(goqu.Record{"app": appv, "updated_at": now}).Where(goqu.C("id").Eq(1)))
		if err != nil {
			return fmt.Errorf("update schema_info: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the schema stamp recorded in the database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	query, args, err := s.dialect.From(tableSchemaInfo).Prepared(true).
		Select("schema_version").Where(goqu.C("id").Eq(1)).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build schema query: %w", err)
	}
	var v int
	if err := s.db.GetContext(ctx, &v, query, args...); err != nil {
		return 0, fmt.Errorf("read schema_info: %w", err)
	}
	return v, nil
}
