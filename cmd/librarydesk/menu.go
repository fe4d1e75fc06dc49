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
	"strings"
)

var menuItems = []string{
	"1. Add Book",
	"2. Register Member",
	"3. Borrow Book",
	"4. Return Book",
	"5. View Available Books",
	"6. View Members",
	"7. View Borrowed Books",
	"8. Exit",
}

// menu runs the interactive desk loop on stdin until Exit or end of input.
// Refusals and storage errors are printed and the loop continues.
func (a *app) menu(_ []string) int {
	sc := bufio.NewScanner(a.in)
	ask := func(prompt string) (string, bool) {
		a.printf("%s", prompt)
		if !sc.Scan() {
			return "", false
		}
		return strings.TrimSpace(sc.Text()), true
	}
	askPair := func(first, second string) (string, string, bool) {
		x, ok := ask(first)
		if !ok {
			return "", "", false
		}
		y, ok := ask(second)
		return x, y, ok
	}

	for {
		a.printf("====== Library Management ======\n")
		for _, item := range menuItems {
			a.printf("%s\n", item)
		}
		choice, ok := ask("Enter your choice (1-8): ")
		if !ok {
			return exitOK
		}
		switch choice {
		case "1":
			title, n, ok := askPair("Enter book title: ", "Enter number of copies: ")
			if !ok {
				return exitOK
			}
			copies, err := parseCopies(n)
			if err != nil {
				a.printf("Invalid input: %v\n", err)
				break
			}
			a.doAddBook(title, copies)
		case "2":
			id, name, ok := askPair("Enter member ID: ", "Enter member name: ")
			if !ok {
				return exitOK
			}
			a.doRegister(id, name)
		case "3":
			id, title, ok := askPair("Enter member ID: ", "Enter book title to borrow: ")
			if !ok {
				return exitOK
			}
			a.doBorrow(id, title)
		case "4":
			id, title, ok := askPair("Enter member ID: ", "Enter book title to return: ")
			if !ok {
				return exitOK
			}
			a.doReturn(id, title)
		case "5":
			a.listBooks(nil)
		case "6":
			a.listMembers(nil)
		case "7":
			a.listLoans(nil)
		case "8":
			a.printf("Exiting system. Goodbye!\n")
			return exitOK
		default:
			a.printf("Invalid choice. Try again!\n")
		}
		a.printf("\n")
	}
}
