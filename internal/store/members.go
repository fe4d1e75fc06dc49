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
	"github.com/jmoiron/sqlx"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

// RegisterMember inserts a member. A known id is reported as ReasonMemberExists and the stored name is kept.
func (s *Store) RegisterMember(ctx context.Context, memberID, name string) (domain.Outcome, error) {
	l := applog.WithOperation(s.log, "register_member").With(slog.String("member_id", memberID))
	reason, err := s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
		found, err := s.memberExists(ctx, tx, memberID)
		if err != nil {
			return domain.ReasonNone, err
		}
		if found {
			return domain.ReasonMemberExists, nil
		}
		_, err = exec(ctx, tx, s.dialect.Insert(tableMembers).Prepared(true).
			Rows(goqu.Record{colMemberID: memberID, colName: name}))
		return domain.ReasonNone, err
	})
	if err != nil {
		l.ErrorContext(ctx, "register member failed", slog.Any("err", err))
		return domain.Outcome{}, fmt.Errorf("register member %q: %w", memberID, err)
	}
	if reason != domain.ReasonNone {
		l.InfoContext(ctx, "register rejected", slog.String("reason", string(reason)))
		return domain.Rejected(reason), nil
	}
	l.InfoContext(ctx, "member registered")
	return domain.Outcome{}, nil
}

// ListMembers returns every registered member, in storage order.
func (s *Store) ListMembers(ctx context.Context) ([]domain.Member, error) {
	if s.closed {
		return nil, ErrClosed
	}
	query, args, err := s.dialect.From(tableMembers).Select(colMemberID, colName).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build list members: %w", err)
	}
	members := []domain.Member{}
	if err := s.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *Store) memberExists(ctx context.Context, q sqlx.QueryerContext, memberID string) (bool, error) {
	return exists(ctx, q, s.dialect.From(tableMembers).Prepared(true).Where(goqu.C(colMemberID).Eq(memberID)))
}
