/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package inventory loads a library inventory document (books, members and open loans)
// into a store through the regular store operations.
package inventory

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	gojsonschema "github.com/xeipuuv/gojsonschema"

	"librarydesk/internal/domain"
	applog "librarydesk/internal/log"
)

//go:embed schema.json
var schemaJSON []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Target is the subset of store operations the import needs. *store.Store satisfies it.
type Target interface {
	AddBook(ctx context.Context, title string, copies int) (domain.Outcome, error)
	RegisterMember(ctx context.Context, memberID, name string) (domain.Outcome, error)
	BorrowBook(ctx context.Context, memberID, title string) (domain.Outcome, error)
}

// Document is the on-disk inventory format.
type Document struct {
	Books   []BookEntry   `json:"books,omitempty"`
	Members []MemberEntry `json:"members,omitempty"`
	Loans   []domain.Loan `json:"loans,omitempty"`
}

type BookEntry struct {
	Title  string `json:"title"`
	Copies int    `json:"copies"`
}

// MemberEntry may omit ID; one is generated on import.
type MemberEntry struct {
	ID   string `json:"member_id,omitempty"`
	Name string `json:"name"`
}

// Rejection records an entry the store refused for a business rule.
type Rejection struct {
	Kind     string        `json:"kind"`
	MemberID string        `json:"member_id,omitempty"`
	Title    string        `json:"title,omitempty"`
	Reason   domain.Reason `json:"reason"`
}

// Summary reports what an import changed.
type Summary struct {
	BooksCreated int             `json:"books_created"`
	BooksAdded   int             `json:"books_added"`
	Members      int             `json:"members_registered"`
	Loans        int             `json:"loans_issued"`
	Generated    []domain.Member `json:"generated_ids,omitempty"`
	Rejected     []Rejection     `json:"rejected,omitempty"`
}

// ValidationError lists the schema violations of a rejected document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "inventory does not match schema: " + strings.Join(e.Problems, "; ")
}

// Decode validates raw against the embedded schema and parses it.
func Decode(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("read inventory: %w", err)
	}
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaJSON), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Document{}, fmt.Errorf("validate inventory: %w", err)
	}
	if !result.Valid() {
		ve := &ValidationError{}
		for _, e := range result.Errors() {
			ve.Problems = append(ve.Problems, e.String())
		}
		return Document{}, ve
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode inventory: %w", err)
	}
	return doc, nil
}

// Import decodes r and applies it to t in the order books, members, loans.
// Each entry is its own store operation. Rejections are collected in the summary;
// the first storage error stops the import and is returned with the partial summary.
func Import(ctx context.Context, t Target, r io.Reader) (Summary, error) {
	l := applog.WithOperation(applog.WithComponent("inventory"), "import")
	doc, err := Decode(r)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			l.WarnContext(ctx, "inventory rejected", slog.Int("problems", len(ve.Problems)))
		}
		return Summary{}, err
	}
	return Apply(ctx, t, doc)
}

// Apply writes an already decoded document.
func Apply(ctx context.Context, t Target, doc Document) (Summary, error) {
	l := applog.WithOperation(applog.WithComponent("inventory"), "apply")
	var sum Summary

	for _, b := range doc.Books {
		o, err := t.AddBook(ctx, b.Title, b.Copies)
		if err != nil {
			return sum, err
		}
		if o.Created {
			sum.BooksCreated++
		} else {
			sum.BooksAdded++
		}
	}

	for _, m := range doc.Members {
		id := m.ID
		if id == "" {
			id = uuid.NewString()
			sum.Generated = append(sum.Generated, domain.Member{ID: id, Name: m.Name})
		}
		o, err := t.RegisterMember(ctx, id, m.Name)
		if err != nil {
			return sum, err
		}
		if !o.OK() {
			sum.Rejected = append(sum.Rejected, Rejection{Kind: "member", MemberID: id, Reason: o.Reason})
			continue
		}
		sum.Members++
	}

	for _, ln := range doc.Loans {
		o, err := t.BorrowBook(ctx, ln.MemberID, ln.Title)
		if err != nil {
			return sum, err
		}
		if !o.OK() {
			sum.Rejected = append(sum.Rejected, Rejection{Kind: "loan", MemberID: ln.MemberID, Title: ln.Title, Reason: o.Reason})
			continue
		}
		sum.Loans++
	}

	l.InfoContext(ctx, "inventory applied",
		slog.Int("books_created", sum.BooksCreated),
		slog.Int("books_added", sum.BooksAdded),
		slog.Int("members", sum.Members),
		slog.Int("loans", sum.Loans),
		slog.Int("rejected", len(sum.Rejected)))
	return sum, nil
}
