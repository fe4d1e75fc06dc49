/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"librarydesk/internal/config"
	"librarydesk/internal/domain"
	"librarydesk/internal/inventory"
	"librarydesk/internal/report"
	"librarydesk/internal/store"
)

// app carries what every command needs for one invocation.
type app struct {
	ctx     context.Context
	cfg     config.AppConfig
	secret  string
	st      *store.Store
	timeout time.Duration
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	json    bool
	log     *slog.Logger
}

func (a *app) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.ctx, a.timeout)
}

func (a *app) printf(format string, args ...any) { _, _ = fmt.Fprintf(a.out, format, args...) }

func (a *app) fail(err error) int {
	a.log.ErrorContext(a.ctx, "command failed", slog.Any("err", err))
	_, _ = fmt.Fprintln(a.errOut, "Error:", err)
	return exitFailure
}

func (a *app) encode(v any) int {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return a.fail(err)
	}
	return exitOK
}

// reject prints the desk message for a refused operation.
func (a *app) reject(r domain.Reason, title string) int {
	switch r {
	case domain.ReasonMemberExists:
		a.printf("Member already exists!\n")
	case domain.ReasonMemberNotRegistered:
		a.printf("Member not registered.\n")
	case domain.ReasonBookNotFound:
		a.printf("Book not found.\n")
	case domain.ReasonUnavailable:
		a.printf("'%s' is currently unavailable.\n", title)
	case domain.ReasonAlreadyBorrowed:
		a.printf("Book already borrowed by this member.\n")
	case domain.ReasonNotBorrowed:
		a.printf("This book was not borrowed by the member.\n")
	default:
		a.printf("Refused: %s\n", r)
	}
	return exitRejected
}

func parseCopies(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, errors.New("copies must be a positive whole number")
	}
	return n, nil
}

func (a *app) addBook(args []string) int {
	copies, err := parseCopies(args[1])
	if err != nil {
		_, _ = fmt.Fprintln(a.errOut, "Error:", err)
		return exitUsage
	}
	return a.doAddBook(args[0], copies)
}

func (a *app) doAddBook(title string, copies int) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	o, err := a.st.AddBook(ctx, title, copies)
	if err != nil {
		return a.fail(err)
	}
	a.printf("%d copy/copies of '%s' added.\n", copies, title)
	a.printf("Available: %d/%d\n", o.Book.AvailableCopies, o.Book.TotalCopies)
	return exitOK
}

func (a *app) register(args []string) int {
	return a.doRegister(args[0], strings.Join(args[1:], " "))
}

func (a *app) doRegister(memberID, name string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	o, err := a.st.RegisterMember(ctx, memberID, name)
	if err != nil {
		return a.fail(err)
	}
	if !o.OK() {
		return a.reject(o.Reason, "")
	}
	a.printf("Member '%s' registered successfully.\n", name)
	return exitOK
}

func (a *app) borrow(args []string) int { return a.doBorrow(args[0], args[1]) }

func (a *app) doBorrow(memberID, title string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	o, err := a.st.BorrowBook(ctx, memberID, title)
	if err != nil {
		return a.fail(err)
	}
	if !o.OK() {
		return a.reject(o.Reason, title)
	}
	a.printf("'%s' issued to Member ID %s.\n", title, memberID)
	a.printf("Available: %d/%d\n", o.Book.AvailableCopies, o.Book.TotalCopies)
	return exitOK
}

func (a *app) giveBack(args []string) int { return a.doReturn(args[0], args[1]) }

func (a *app) doReturn(memberID, title string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	o, err := a.st.ReturnBook(ctx, memberID, title)
	if err != nil {
		return a.fail(err)
	}
	if !o.OK() {
		return a.reject(o.Reason, title)
	}
	a.printf("'%s' returned by Member ID %s.\n", title, memberID)
	a.printf("Available: %d/%d\n", o.Book.AvailableCopies, o.Book.TotalCopies)
	return exitOK
}

func (a *app) listBooks(_ []string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	books, err := a.st.ListBooks(ctx)
	if err != nil {
		return a.fail(err)
	}
	if a.json {
		return a.encode(books)
	}
	a.printf("Available Books:\n")
	for _, b := range books {
		a.printf("%s (Available: %d/%d)\n", b.Title, b.AvailableCopies, b.TotalCopies)
	}
	return exitOK
}

func (a *app) listMembers(_ []string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	members, err := a.st.ListMembers(ctx)
	if err != nil {
		return a.fail(err)
	}
	if a.json {
		return a.encode(members)
	}
	a.printf("Registered Members:\n")
	for _, m := range members {
		a.printf("%s (ID: %s)\n", m.Name, m.ID)
	}
	return exitOK
}

func (a *app) listLoans(_ []string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	loans, err := a.st.ListActiveLoans(ctx)
	if err != nil {
		return a.fail(err)
	}
	if a.json {
		return a.encode(loans)
	}
	a.printf("Borrowed Books:\n")
	for _, l := range loans {
		a.printf("%s borrowed '%s'\n", l.MemberName, l.Title)
	}
	return exitOK
}

func (a *app) importInventory(args []string) int {
	f, err := os.Open(args[0])
	if err != nil {
		return a.fail(err)
	}
	defer func() { _ = f.Close() }()

	ctx, cancel := a.opCtx()
	defer cancel()
	sum, err := inventory.Import(ctx, a.st, f)
	var ve *inventory.ValidationError
	switch {
	case errors.As(err, &ve):
		_, _ = fmt.Fprintf(a.errOut, "Inventory %s rejected:\n", args[0])
		for _, p := range ve.Problems {
			_, _ = fmt.Fprintf(a.errOut, "  - %s\n", p)
		}
		return exitUsage
	case err != nil:
		return a.fail(err)
	}
	if a.json {
		return a.encode(sum)
	}
	a.printf("Imported %d new title(s), restocked %d, registered %d member(s), issued %d loan(s).\n",
		sum.BooksCreated, sum.BooksAdded, sum.Members, sum.Loans)
	for _, m := range sum.Generated {
		a.printf("Generated Member ID %s for '%s'.\n", m.ID, m.Name)
	}
	for _, r := range sum.Rejected {
		if r.Title != "" {
			a.printf("Skipped %s %s/'%s': %s\n", r.Kind, r.MemberID, r.Title, r.Reason)
		} else {
			a.printf("Skipped %s %s: %s\n", r.Kind, r.MemberID, r.Reason)
		}
	}
	return exitOK
}

func (a *app) writeReport(args []string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	if err := report.WriteInventoryPDF(ctx, a.st, args[0]); err != nil {
		return a.fail(err)
	}
	a.printf("Report written to %s\n", args[0])
	return exitOK
}

func (a *app) check(_ []string) int {
	ctx, cancel := a.opCtx()
	defer cancel()
	rep, err := a.st.Verify(ctx)
	if err != nil {
		return a.fail(err)
	}
	code := exitOK
	if !rep.OK() {
		code = exitFailure
	}
	if a.json {
		if c := a.encode(rep); c != exitOK {
			return c
		}
		return code
	}
	if rep.OK() {
		a.printf("Store is consistent.\n")
		return code
	}
	for _, m := range rep.Mismatches {
		a.printf("Count mismatch: '%s' total=%d available=%d loans=%d\n", m.Title, m.TotalCopies, m.AvailableCopies, m.Loans)
	}
	for _, o := range rep.Orphans {
		a.printf("Orphan loan: Member ID %s holds '%s'\n", o.MemberID, o.Title)
	}
	return code
}

func (a *app) configCmd(args []string) int {
	path, err := config.ConfigPath()
	if err != nil {
		return a.fail(err)
	}
	switch args[0] {
	case "show":
		data, err := yaml.Marshal(a.cfg)
		if err != nil {
			return a.fail(err)
		}
		a.printf("# %s\n%s", path, data)
		for _, key := range []string{"store.driver", "store.path", "store.dsn", "store.timeout_ms", "logging.level", "logging.format", "logging.source", "logging.file"} {
			if env, ok := config.EnvOverrideFor(key); ok {
				a.printf("# %s overridden by %s\n", key, env)
			}
		}
		return exitOK
	case "save":
		if err := config.Save(a.cfg, ""); err != nil {
			return a.fail(err)
		}
		a.printf("Configuration written to %s\n", path)
		return exitOK
	case "password":
		if len(args) > 1 && args[1] == "--clear" {
			if err := config.ClearSecret(); err != nil {
				return a.fail(err)
			}
			a.printf("Password removed from the OS keyring.\n")
			return exitOK
		}
		sc := bufio.NewScanner(a.in)
		if !sc.Scan() || strings.TrimSpace(sc.Text()) == "" {
			_, _ = fmt.Fprintln(a.errOut, "Error: expected the password on stdin")
			return exitUsage
		}
		if err := config.Save(a.cfg, strings.TrimSpace(sc.Text())); err != nil {
			return a.fail(err)
		}
		a.printf("Password stored in the OS keyring.\n")
		return exitOK
	default:
		_, _ = fmt.Fprintf(a.errOut, "Unknown config action %q (want show, save or password)\n", args[0])
		return exitUsage
	}
}
