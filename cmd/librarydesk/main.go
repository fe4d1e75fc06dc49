/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"librarydesk/internal/config"
	"librarydesk/internal/crash"
	applog "librarydesk/internal/log"
	"librarydesk/internal/store"
	"librarydesk/internal/version"
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1 // storage error or failed consistency check
	exitUsage    = 2
	exitRejected = 3 // a library rule refused the operation
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type command struct {
	name  string
	args  string
	help  string
	nargs int
	// store is set when the command needs an open library store.
	store bool
	run   func(a *app, args []string) int
}

var commands = []command{
	{name: "add-book", args: "<title> <copies>", help: "Add copies of a title (creates it if new)", nargs: 2, store: true, run: (*app).addBook},
	{name: "register", args: "<member-id> <name>", help: "Register a member", nargs: 2, store: true, run: (*app).register},
	{name: "borrow", args: "<member-id> <title>", help: "Lend one copy of a title to a member", nargs: 2, store: true, run: (*app).borrow},
	{name: "return", args: "<member-id> <title>", help: "Take back a member's copy of a title", nargs: 2, store: true, run: (*app).giveBack},
	{name: "books", args: "[--json]", help: "List titles with available/total copies", store: true, run: (*app).listBooks},
	{name: "members", args: "[--json]", help: "List registered members", store: true, run: (*app).listMembers},
	{name: "loans", args: "[--json]", help: "List active loans", store: true, run: (*app).listLoans},
	{name: "import", args: "<file.json> [--json]", help: "Load books, members and loans from an inventory file", nargs: 1, store: true, run: (*app).importInventory},
	{name: "report", args: "<out.pdf>", help: "Write a PDF inventory report", nargs: 1, store: true, run: (*app).writeReport},
	{name: "check", args: "[--json]", help: "Verify copy counters against loans", store: true, run: (*app).check},
	{name: "menu", help: "Interactive menu", store: true, run: (*app).menu},
	{name: "config", args: "show|save|password [--clear]", help: "Show or persist configuration; password reads the postgres password from stdin or --clear removes it", nargs: 1, run: (*app).configCmd},
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "LibraryDesk - lending library desk")
	_, _ = fmt.Fprintf(w, "Version: %s\n", version.String())
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Usage:")
	_, _ = fmt.Fprintf(w, "  %-36s %s\n", "librarydesk version|-v|--version", "Show version")
	for _, c := range commands {
		_, _ = fmt.Fprintf(w, "  %-36s %s\n", strings.TrimSpace("librarydesk "+c.name+" "+c.args), c.help)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// splitFlags removes --json from args and reports whether it was present.
func splitFlags(args []string) (bool, []string) {
	asJSON := false
	rest := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--json" {
			asJSON = true
			continue
		}
		rest = append(rest, a)
	}
	return asJSON, rest
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return exitUsage
	}
	switch args[0] {
	case "version", "--version", "-v":
		_, _ = fmt.Fprintln(stdout, "LibraryDesk")
		_, _ = fmt.Fprintln(stdout, version.String())
		return exitOK
	case "help", "--help", "-h":
		usage(stdout)
		return exitOK
	}
	cmd, ok := lookup(args[0])
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Unknown command %q\n", args[0])
		usage(stderr)
		return exitUsage
	}
	asJSON, rest := splitFlags(args[1:])
	if len(rest) < cmd.nargs {
		_, _ = fmt.Fprintf(stderr, "%s requires %s\n", cmd.name, cmd.args)
		usage(stderr)
		return exitUsage
	}

	cfg, secret, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return exitFailure
	}
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	defer func() { _ = applog.Close() }()

	ctx := applog.WithSession(context.Background(), uuid.NewString())
	l := applog.WithComponent("cli")
	l.DebugContext(ctx, "start", slog.String("cmd", cmd.name), slog.Int("args", len(rest)))

	a := &app{
		ctx:     ctx,
		cfg:     cfg,
		secret:  secret,
		timeout: cfg.Store.Timeout(),
		in:      stdin,
		out:     stdout,
		errOut:  stderr,
		json:    asJSON,
		log:     l,
	}
	if !cmd.store {
		return cmd.run(a, rest)
	}

	dsn, err := cfg.Store.ConnString(secret)
	if err != nil {
		return a.fail(err)
	}
	openCtx, cancel := context.WithTimeout(ctx, a.timeout)
	st, err := store.Open(openCtx, store.Options{Driver: cfg.Store.Driver, DSN: dsn, Logger: applog.WithComponent("store")})
	cancel()
	if err != nil {
		return a.fail(err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.ErrorContext(ctx, "close store", slog.Any("err", err))
		}
	}()
	defer crash.Recover(st)

	a.st = st
	start := time.Now()
	code := cmd.run(a, rest)
	l.DebugContext(ctx, "done", slog.String("cmd", cmd.name), slog.Int("exit", code), slog.Duration("took", time.Since(start)))
	return code
}
