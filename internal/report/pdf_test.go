/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
	"librarydesk/internal/store"
)

func TestWriteInventoryPDF_CreatesFile(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := store.Open(ctx, store.Options{DSN: filepath.Join(root, "library.db"), Logger: applog.Discard()})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.AddBook(ctx, "Dune", 2)
	require.NoError(t, err)
	_, err = s.RegisterMember(ctx, "M1", "Alice")
	require.NoError(t, err)
	_, err = s.BorrowBook(ctx, "M1", "Dune")
	require.NoError(t, err)

	out := filepath.Join(root, "reports", "inventory.pdf")
	require.NoError(t, WriteInventoryPDF(ctx, s, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")), "output is not a PDF")
	assert.Greater(t, len(data), 500)
}

func TestWriteInventoryPDF_EmptyLibrary(t *testing.T) {
	out := filepath.Join(t.TempDir(), "empty.pdf")
	require.NoError(t, WriteInventoryPDF(context.Background(), stubSource{}, out))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestWriteInventoryPDF_SourceError(t *testing.T) {
	out := filepath.Join(t.TempDir(), "broken.pdf")
	boom := errors.New("boom")
	err := WriteInventoryPDF(context.Background(), stubSource{err: boom}, out)
	require.ErrorIs(t, err, boom)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no file may be written on error")
}

type stubSource struct{ err error }

func (s stubSource) ListBooks(context.Context) ([]domain.Book, error) { return nil, s.err }
func (s stubSource) ListMembers(context.Context) ([]domain.Member, error) {
	return nil, s.err
}
func (s stubSource) ListActiveLoans(context.Context) ([]domain.ActiveLoan, error) {
	return nil, s.err
}
