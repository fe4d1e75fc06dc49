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

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

// AddBook adds copies of a title. An existing title has both counters raised by copies;
// a new title is inserted with total and available set to copies.
//
// copies is not validated here: zero is accepted, and a negative value is only stopped by the
// table constraints (reported as a storage error) when it would push a counter below zero.
func (s *Store) AddBook(ctx context.Context, title string, copies int) (domain.Outcome, error) {
	l := applog.WithOperation(s.log, "add_book").With(slog.String("title", title), slog.Int("copies", copies))
	var out domain.Outcome
	_, err := s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
		_, found, err := s.getBook(ctx, tx, title)
		if err != nil {
			return domain.ReasonNone, err
		}
		if found {
			_, err = exec(ctx, tx, s.dialect.Update(tableBooks).Prepared(true).
				Set(goqu.Record{
					colTotal:     goqu.L(colTotal+" + ?", copies),
					colAvailable: goqu.L(colAvailable+" + ?", copies),
				}).
				Where(goqu.C(colTitle).Eq(title)))
		} else {
			_, err = exec(ctx, tx, s.dialect.Insert(tableBooks).Prepared(true).
				Rows(goqu.Record{colTitle: title, colTotal: copies, colAvailable: copies}))
			out.Created = true
		}
		if err != nil {
			return domain.ReasonNone, err
		}
		b, _, err := s.getBook(ctx, tx, title)
		if err != nil {
			return domain.ReasonNone, err
		}
		out.Book = &b
		return domain.ReasonNone, nil
	})
	if err != nil {
		l.ErrorContext(ctx, "add book failed", slog.Any("err", err))
		return domain.Outcome{}, fmt.Errorf("add book %q: %w", title, err)
	}
	l.InfoContext(ctx, "book added", slog.Bool("created", out.Created),
		slog.Int("total", out.Book.TotalCopies), slog.Int("available", out.Book.AvailableCopies))
	return out, nil
}

// GetBook looks a title up by exact match.
func (s *Store) GetBook(ctx context.Context, title string) (domain.Book, bool, error) {
	if s.closed {
		return domain.Book{}, false, ErrClosed
	}
	b, found, err := s.getBook(ctx, s.db, title)
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("get book %q: %w", title, err)
	}
	return b, found, nil
}

// ListBooks returns every title with its counters, in storage order.
func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	if s.closed {
		return nil, ErrClosed
	}
	query, args, err := s.dialect.From(tableBooks).Select(colTitle, colTotal, colAvailable).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list books: %w", err)
	}
	books := []domain.Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (s *Store) getBook(ctx context.Context, q sqlx.QueryerContext, title string) (domain.Book, bool, error) {
	query, args, err := s.dialect.From(tableBooks).Prepared(true).
		Select(colTitle, colTotal, colAvailable).
		Where(goqu.C(colTitle).Eq(title)).ToSQL()
	if err != nil {
		return domain.Book{}, false, fmt.Errorf("build book query: %w", err)
	}
	var b domain.Book
	err = sqlx.GetContext(ctx, q, &b, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Book{}, false, nil
	case err != nil:
		return domain.Book{}, false, err
	}
	return b, true, nil
}
