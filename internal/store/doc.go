/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package store implements the library inventory persistence layer.
// It owns the books, members and loans tables and runs every mutation as a single transaction
// whose check phase and write phase share the same database transaction.
// Business-rule rejections are returned as domain.Outcome values; errors are reserved for storage failures.
// SQLite (modernc, CGO-free) is the default engine; PostgreSQL via pgx is supported with the same schema.
package store
