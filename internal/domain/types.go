/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany..
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of the lending library: books, members and loans.
// The struct tags serve both the sqlx row mapping (db) and the JSON listings (json).

// Book is a title held by the library. AvailableCopies never exceeds TotalCopies.
type Book struct {
	Title           string `db:"title" json:"title"`
	TotalCopies     int    `db:"total_copies" json:"total_copies"`
	AvailableCopies int    `db:"available_copies" json:"available_copies"`
}

// OnLoan returns the number of copies currently lent out.
func (b Book) OnLoan() int { return b.TotalCopies - b.AvailableCopies }

// Member is a registered library member. Members are never updated or deleted.
type Member struct {
	ID   string `db:"member_id" json:"member_id"`
	Name string `db:"name" json:"name"`
}

// Loan records that a member currently holds one copy of a title.
type Loan struct {
	MemberID string `db:"member_id" json:"member_id"`
	Title    string `db:"title" json:"title"`
}

// ActiveLoan is the listing view of a loan joined with the member's name.
type ActiveLoan struct {
	MemberName string `db:"member_name" json:"member_name"`
	Title      string `db:"title" json:"title"`
}
