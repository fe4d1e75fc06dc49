/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "errors"

// Reason names why a store operation was rejected. The empty Reason means success.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMemberExists        Reason = "member already exists"
	ReasonMemberNotRegistered Reason = "member not registered"
	ReasonBookNotFound        Reason = "book not found"
	ReasonUnavailable         Reason = "unavailable"
	ReasonAlreadyBorrowed     Reason = "already borrowed"
	ReasonNotBorrowed         Reason = "not borrowed"
)

// Sentinel errors matching each rejection reason, for use with errors.Is.
var (
	ErrMemberExists        = errors.New(string(ReasonMemberExists))
	ErrMemberNotRegistered = errors.New(string(ReasonMemberNotRegistered))
	ErrBookNotFound        = errors.New(string(ReasonBookNotFound))
	ErrUnavailable         = errors.New(string(ReasonUnavailable))
	ErrAlreadyBorrowed     = errors.New(string(ReasonAlreadyBorrowed))
	ErrNotBorrowed         = errors.New(string(ReasonNotBorrowed))
)

// Outcome is the structured result of a mutating store operation.
// Business-rule rejections are reported through Reason and never through an error.
type Outcome struct {
	Reason Reason
	// Book is the post-operation state of the affected title, when one exists.
	Book *Book
	// Created is set by AddBook when the title was inserted rather than topped up.
	Created bool
}

// Rejected builds an Outcome carrying a rejection reason.
func Rejected(r Reason) Outcome { return Outcome{Reason: r} }

// OK reports whether the operation was applied.
func (o Outcome) OK() bool { return o.Reason == ReasonNone }

// Err returns the sentinel error for the rejection reason, or nil on success.
func (o Outcome) Err() error {
	switch o.Reason {
	case ReasonNone:
		return nil
	case ReasonMemberExists:
		return ErrMemberExists
	case ReasonMemberNotRegistered:
		return ErrMemberNotRegistered
	case ReasonBookNotFound:
		return ErrBookNotFound
	case ReasonUnavailable:
		return ErrUnavailable
	case ReasonAlreadyBorrowed:
		return ErrAlreadyBorrowed
	case ReasonNotBorrowed:
		return ErrNotBorrowed
	default:
		return errors.New(string(o.Reason))
	}
}
