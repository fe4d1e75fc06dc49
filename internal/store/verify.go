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
	"fmt"
	"log/slog"

	"github.com/doug-martin/goqu/v9"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

// CountMismatch is a book whose counters disagree with its range or with the loans held against it.
type CountMismatch struct {
	Title           string `db:"title" json:"title"`
	TotalCopies     int    `db:"total_copies" json:"total_copies"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`
	Loans           int    `db:"loans" json:"loans"`
}

// Report lists every consistency violation found by Verify.
type Report struct {
	Mismatches []CountMismatch `json:"mismatches"`
	// Orphans are loans whose member or book row is missing.
	Orphans []domain.Loan `json:"orphans"`
}

// OK reports whether no violation was found.
func (r Report) OK() bool { return len(r.Mismatches) == 0 && len(r.Orphans) == 0 }

// Verify checks the stored data: every book must satisfy 0 <= available <= total and
// available = total - loans, and every loan must reference an existing member and book.
// Duplicate loans are ruled out by the primary key and not checked here.
func (s *Store) Verify(ctx context.Context) (Report, error) {
	if s.closed {
		return Report{}, ErrClosed
	}
	l := applog.WithOperation(s.log, "verify")
	var rep Report

	query, args, err := s.dialect.From(goqu.T(tableBooks).As("b")).
		LeftJoin(goqu.T(tableLoans).As("l"), goqu.On(goqu.I("l.title").Eq(goqu.I("b.title")))).
		Select(
			goqu.I("b.title").As("title"),
			goqu.I("b.total_copies").As("total_copies"),
			goqu.I("b.available_copies").As("available_copies"),
			goqu.COUNT(goqu.I("l.member_id")).As("loans"),
		).
		GroupBy(goqu.I("b.title"), goqu.I("b.total_copies"), goqu.I("b.available_copies")).
		ToSQL()
	if err != nil {
		return Report{}, fmt.Errorf("build count query: %w", err)
	}
	var counts []CountMismatch
	if err := s.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return Report{}, fmt.Errorf("verify counts: %w", err)
	}
	for _, c := range counts {
		if c.AvailableCopies < 0 || c.AvailableCopies > c.TotalCopies || c.AvailableCopies != c.TotalCopies-c.Loans {
			rep.Mismatches = append(rep.Mismatches, c)
		}
	}

	query, args, err = s.dialect.From(goqu.T(tableLoans).As("l")).
		LeftJoin(goqu.T(tableMembers).As("m"), goqu.On(goqu.I("m.member_id").Eq(goqu.I("l.member_id")))).
		LeftJoin(goqu.T(tableBooks).As("b"), goqu.On(goqu.I("b.title").Eq(goqu.I("l.title")))).
		Select(goqu.I("l.member_id").As("member_id"), goqu.I("l.title").As("title")).
		Where(goqu.Or(goqu.I("m.member_id").IsNull(), goqu.I("b.title").IsNull())).
		ToSQL()
	if err != nil {
		return Report{}, fmt.Errorf("build orphan query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &rep.Orphans, query, args...); err != nil {
		return Report{}, fmt.Errorf("verify loans: %w", err)
	}

	if rep.OK() {
		l.DebugContext(ctx, "store consistent", slog.Int("books", len(counts)))
	} else {
		l.WarnContext(ctx, "store inconsistent", slog.Int("mismatches", len(rep.Mismatches)), slog.Int("orphans", len(rep.Orphans)))
	}
	return rep, nil
}
