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
	"errors"
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

// BorrowBook lends one copy of title to a member. The checks run in this order and the first
// failing one is returned: member registered, book known, a copy available, not already held.
// On success the loan row and the decrement of available_copies are committed together.
func (s *Store) BorrowBook(ctx context.Context, memberID, title string) (domain.Outcome, error) {
	l := applog.WithOperation(s.log, "borrow_book").With(slog.String("member_id", memberID), slog.String("title", title))
	var book domain.Book
	reason, err := s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
		found, err := s.memberExists(ctx, tx, memberID)
		if err != nil {
			return domain.ReasonNone, err
		}
		if !found {
			return domain.ReasonMemberNotRegistered, nil
		}
		book, found, err = s.getBook(ctx, tx, title)
		if err != nil {
			return domain.ReasonNone, err
		}
		if !found {
			return domain.ReasonBookNotFound, nil
		}
		if book.AvailableCopies <= 0 {
			return domain.ReasonUnavailable, nil
		}
		held, err := s.loanExists(ctx, tx, memberID, title)
		if err != nil {
			return domain.ReasonNone, err
		}
		if held {
			return domain.ReasonAlreadyBorrowed, nil
		}

		// Conditional decrement: stays correct even if another writer took the last copy.
		n, err := exec(ctx, tx, s.dialect.Update(tableBooks).Prepared(true).
			Set(goqu.Record{colAvailable: goqu.L(colAvailable + " - 1")}).
			Where(goqu.C(colTitle).Eq(title), goqu.C(colAvailable).Gt(0)))
		if err != nil {
			return domain.ReasonNone, err
		}
		if n == 0 {
			return domain.ReasonUnavailable, nil
		}
		if _, err := exec(ctx, tx, s.dialect.Insert(tableLoans).Prepared(true).
			Rows(goqu.Record{colMemberID: memberID, colTitle: title})); err != nil {
			return domain.ReasonNone, err
		}
		book.AvailableCopies--
		return domain.ReasonNone, nil
	})
	if err != nil {
		l.ErrorContext(ctx, "borrow failed", slog.Any("err", err))
		return domain.Outcome{}, fmt.Errorf("borrow %q for %q: %w", title, memberID, err)
	}
	if reason != domain.ReasonNone {
		l.InfoContext(ctx, "borrow rejected", slog.String("reason", string(reason)))
		return domain.Rejected(reason), nil
	}
	l.InfoContext(ctx, "book issued", slog.Int("available", book.AvailableCopies), slog.Int("total", book.TotalCopies))
	return domain.Outcome{Book: &book}, nil
}

// ReturnBook ends the member's loan of title and puts the copy back.
// A loan that does not exist is reported as ReasonNotBorrowed.
func (s *Store) ReturnBook(ctx context.Context, memberID, title string) (domain.Outcome, error) {
	l := applog.WithOperation(s.log, "return_book").With(slog.String("member_id", memberID), slog.String("title", title))
	var book domain.Book
	reason, err := s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
		n, err := exec(ctx, tx, s.dialect.Delete(tableLoans).Prepared(true).
			Where(goqu.Ex{colMemberID: memberID, colTitle: title}))
		if err != nil {
			return domain.ReasonNone, err
		}
		if n == 0 {
			return domain.ReasonNotBorrowed, nil
		}
		n, err = exec(ctx, tx, s.dialect.Update(tableBooks).Prepared(true).
			Set(goqu.Record{colAvailable: goqu.L(colAvailable + " + 1")}).
			Where(goqu.C(colTitle).Eq(title)))
		if err != nil {
			return domain.ReasonNone, err
		}
		if n != 1 {
			return domain.ReasonNone, errors.New("loan references a missing book")
		}
		var found bool
		book, found, err = s.getBook(ctx, tx, title)
		if err != nil {
			return domain.ReasonNone, err
		}
		if !found {
			return domain.ReasonNone, errors.New("book vanished during return")
		}
		return domain.ReasonNone, nil
	})
	if err != nil {
		l.ErrorContext(ctx, "return failed", slog.Any("err", err))
		return domain.Outcome{}, fmt.Errorf("return %q for %q: %w", title, memberID, err)
	}
	if reason != domain.ReasonNone {
		l.InfoContext(ctx, "return rejected", slog.String("reason", string(reason)))
		return domain.Rejected(reason), nil
	}
	l.InfoContext(ctx, "book returned", slog.Int("available", book.AvailableCopies), slog.Int("total", book.TotalCopies))
	return domain.Outcome{Book: &book}, nil
}

// ListActiveLoans returns the member name and title of every loan.
// Loans are inner-joined with members, so a loan without its member row is never listed.
func (s *Store) ListActiveLoans(ctx context.Context) ([]domain.ActiveLoan, error) {
	if s.closed {
		return nil, ErrClosed
	}
	query, args, err := s.dialect.From(goqu.T(tableLoans).As("l")).
		Join(goqu.T(tableMembers).As("m"), goqu.On(goqu.I("l.member_id").Eq(goqu.I("m.member_id")))).
		Select(goqu.I("m.name").As("member_name"), goqu.I("l.title").As("title")).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list loans: %w", err)
	}
	loans := []domain.ActiveLoan{}
	if err := s.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (s *Store) loanExists(ctx context.Context, q sqlx.QueryerContext, memberID, title string) (bool, error) {
	return exists(ctx, q, s.dialect.From(tableLoans).Prepared(true).
		Where(goqu.Ex{colMemberID: memberID, colTitle: title}))
}
