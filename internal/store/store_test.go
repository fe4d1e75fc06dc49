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
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")
	s, err := Open(testCtx(t), Options{Driver: DriverSQLite, DSN: path, Logger: applog.Discard()})
	require.NoError(t, err, "open store")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// state is a comparable snapshot of all three tables.
type state struct {
	Books   []domain.Book
	Members []domain.Member
	Loans   []domain.Loan
}

func snapshot(t *testing.T, s *Store) state {
	t.Helper()
	ctx := testCtx(t)
	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	members, err := s.ListMembers(ctx)
	require.NoError(t, err)
	loans := []domain.Loan{}
	require.NoError(t, s.db.SelectContext(ctx, &loans, `SELECT member_id, title FROM loans`))

	sort.Slice(books, func(i, j int) bool { return books[i].Title < books[j].Title })
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].MemberID != loans[j].MemberID {
			return loans[i].MemberID < loans[j].MemberID
		}
		return loans[i].Title < loans[j].Title
	})
	return state{Books: books, Members: members, Loans: loans}
}

func mustBook(t *testing.T, s *Store, title string) domain.Book {
	t.Helper()
	b, found, err := s.GetBook(testCtx(t), title)
	require.NoError(t, err)
	require.True(t, found, "book %q missing", title)
	return b
}

// mustOK asserts an accepted outcome: mustOK(t)(s.AddBook(ctx, "Dune", 2)).
func mustOK(t *testing.T) func(domain.Outcome, error) domain.Outcome {
	return func(o domain.Outcome, err error) domain.Outcome {
		t.Helper()
		require.NoError(t, err)
		require.True(t, o.OK(), "unexpected rejection: %q", o.Reason)
		return o
	}
}

func TestOpenIsIdempotentOnPopulatedStore(t *testing.T) {
	ctx := testCtx(t)
	path := filepath.Join(t.TempDir(), "nested", "library.db")

	s, err := Open(ctx, Options{DSN: path, Logger: applog.Discard()})
	require.NoError(t, err)
	mustOK(t)(s.AddBook(ctx, "Dune", 2))
	mustOK(t)(s.RegisterMember(ctx, "M1", "Alice"))
	mustOK(t)(s.BorrowBook(ctx, "M1", "Dune"))
	require.NoError(t, s.Close())

	s2, err := Open(ctx, Options{DSN: path, Logger: applog.Discard()})
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, domain.Book{Title: "Dune", TotalCopies: 2, AvailableCopies: 1}, mustBook(t, s2, "Dune"))
	loans, err := s2.ListActiveLoans(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.ActiveLoan{{MemberName: "Alice", Title: "Dune"}}, loans)

	v, err := s2.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

func TestOpenRefusesNewerSchema(t *testing.T) {
	ctx := testCtx(t)
	path := filepath.Join(t.TempDir(), "library.db")
	s, err := Open(ctx, Options{DSN: path, Logger: applog.Discard()})
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `UPDATE schema_info SET schema_version = 99 WHERE id = 1`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Options{DSN: path, Logger: applog.Discard()})
	require.ErrorIs(t, err, ErrSchemaTooNew)
}

func TestOpenRejectsUnknownDriverAndEmptyDSN(t *testing.T) {
	ctx := testCtx(t)
	_, err := Open(ctx, Options{Driver: "oracle", DSN: "x", Logger: applog.Discard()})
	assert.Error(t, err)
	_, err = Open(ctx, Options{Driver: DriverSQLite, DSN: "  ", Logger: applog.Discard()})
	assert.Error(t, err)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close must be a no-op")

	_, err := s.AddBook(ctx, "Dune", 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.BorrowBook(ctx, "M1", "Dune")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.ListBooks(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.GetBook(ctx, "Dune")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestAddBookCreatesThenAccumulates(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	mustOK(t)(s.RegisterMember(ctx, "M1", "Alice"))

	o := mustOK(t)(s.AddBook(ctx, "Dune", 2))
	assert.True(t, o.Created)
	assert.Equal(t, &domain.Book{Title: "Dune", TotalCopies: 2, AvailableCopies: 2}, o.Book)

	mustOK(t)(s.BorrowBook(ctx, "M1", "Dune"))
	before := snapshot(t, s)

	o = mustOK(t)(s.AddBook(ctx, "Dune", 3))
	assert.False(t, o.Created)
	assert.Equal(t, &domain.Book{Title: "Dune", TotalCopies: 5, AvailableCopies: 4}, o.Book)

	after := snapshot(t, s)
	assert.Equal(t, before.Members, after.Members, "re-adding must not touch members")
	assert.Equal(t, before.Loans, after.Loans, "re-adding must not touch loans")
}

func TestAddBookZeroCopiesIsAccepted(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	o := mustOK(t)(s.AddBook(ctx, "Solaris", 0))
	assert.Equal(t, &domain.Book{Title: "Solaris", TotalCopies: 0, AvailableCopies: 0}, o.Book)

	o, err := s.BorrowBook(ctx, "M1", "Solaris")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMemberNotRegistered, o.Reason)
}

func TestAddBookNegativeBeyondStockRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	mustOK(t)(s.AddBook(ctx, "Dune", 2))
	before := snapshot(t, s)

	_, err := s.AddBook(ctx, "Dune", -3)
	require.Error(t, err, "table constraints must stop counters going negative")
	_, err = s.AddBook(ctx, "Ubik", -1)
	require.Error(t, err)

	assert.Equal(t, before, snapshot(t, s))
}

func TestAddBookNegativeWithinStockIsLenient(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	mustOK(t)(s.AddBook(ctx, "Dune", 3))
	o := mustOK(t)(s.AddBook(ctx, "Dune", -1))
	assert.Equal(t, &domain.Book{Title: "Dune", TotalCopies: 2, AvailableCopies: 2}, o.Book)
}

func TestRegisterMemberTwiceKeepsOriginalName(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	mustOK(t)(s.RegisterMember(ctx, "M1", "Alice"))

	o, err := s.RegisterMember(ctx, "M1", "Mallory")
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonMemberExists, o.Reason)
	assert.ErrorIs(t, o.Err(), domain.ErrMemberExists)

	members, err := s.ListMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Member{{ID: "M1", Name: "Alice"}}, members)
}

func TestListsOnEmptyStoreAreEmptyNotNil(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)
	books, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
	loans, err := s.ListActiveLoans(ctx)
	require.NoError(t, err)
	assert.NotNil(t, loans)
	assert.Empty(t, loans)
}

func TestGetBookUnknownTitle(t *testing.T) {
	s := openTestStore(t)
	_, found, err := s.GetBook(testCtx(t), "Nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSqliteDSNEscapesPath(t *testing.T) {
	assert.Equal(t,
		"file:/data/shelf%231%3F/library.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		sqliteDSN("/data/shelf#1?/library.db"))
	assert.Equal(t,
		"file:library.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)",
		sqliteDSN("library.db"))
}

func TestOpenPathWithReservedCharacters(t *testing.T) {
	ctx := testCtx(t)
	path := filepath.Join(t.TempDir(), "shelf#1?", "100% library.db")
	s, err := Open(ctx, Options{DSN: path, Logger: applog.Discard()})
	require.NoError(t, err)
	defer s.Close()
	mustOK(t)(s.AddBook(ctx, "Dune", 1))

	_, err = os.Stat(path)
	require.NoError(t, err, "database must be created at the literal path")

	var fk int
	require.NoError(t, s.db.GetContext(ctx, &fk, `PRAGMA foreign_keys`))
	assert.Equal(t, 1, fk, "pragmas must still apply")
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	s := openTestStore(t)
	ctx := testCtx(t)

	require.PanicsWithValue(t, "boom", func() {
		_, _ = s.inTx(ctx, func(tx *sqlx.Tx) (domain.Reason, error) {
			_, err := tx.ExecContext(ctx, `INSERT INTO members(member_id, name) VALUES('M1', 'Alice')`)
			require.NoError(t, err)
			panic("boom")
		})
	})

	assert.Empty(t, snapshot(t, s).Members)
	// The single pooled connection must be free again.
	mustOK(t)(s.RegisterMember(ctx, "M1", "Alice"))
}
