// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package store implements the durable Position Store abstraction behind two
// interchangeable backends: a document-shaped backend (Redis, standing in
// for the source's MongoDB collection — see SPEC_FULL.md's Domain Stack) and
// a relational backend (Postgres over database/sql).
package store

import (
	"context"
	"errors"
)

// Field names of the position record, shared by both backends.
const (
	ForwardOffsetField        = "forward_offset"
	BackwardOffsetField       = "backward_offset"
	ServerIDField             = "server_id"
	LatestDateModifiedField   = "latest_date_modified"
	EarliestDateModifiedField = "earliest_date_modified"
	LockDateModifiedField     = "lock_date_modified"
)

// Record is the feed position snapshot for one crawler process-name.
type Record struct {
	ForwardOffset        string
	BackwardOffset       string
	LatestDateModified   string
	EarliestDateModified string
	ServerID             string
	LockDateModified     bool
	// Exists is false when the backend has no record at all (distinct from
	// a record with only one of the two offset fields present).
	Exists bool
}

// HasBothOffsets is the "resume precondition" from the spec: both cursor
// fields must be present, or the record counts as "no checkpoint".
func (r *Record) HasBothOffsets() bool {
	return r != nil && r.Exists && r.ForwardOffset != "" && r.BackwardOffset != ""
}

// Patch is a sparse set of fields to write. Only present keys are touched;
// an empty-string value for a *_offset/server_id key still counts as present
// (set), per Save's upsert semantics. Use Drop to clear fields.
type Patch struct {
	ForwardOffset      *string
	BackwardOffset     *string
	LatestDateModified *string
	EarliestDateModified *string
	ServerID           *string
}

func strp(s string) *string { return &s }

// StrField is a convenience constructor used by the position writer.
func StrField(s string) *string { return strp(s) }

// ErrNotSupported is returned by Lock/Unlock on backends that do not carry
// the optional date-modified-lock latch (the relational backend).
var ErrNotSupported = errors.New("store: operation not supported by this backend")

// Store is the common Position Store interface satisfied by both backends.
type Store interface {
	// Get returns the current record, or a zero Record with Exists=false if
	// none has ever been saved.
	Get(ctx context.Context) (*Record, error)
	// Save upserts the given patch; fields not set in patch are preserved.
	Save(ctx context.Context, patch Patch) error
	// Drop clears exactly the three cursor/session fields (document
	// backend) or deletes the row entirely (relational backend).
	Drop(ctx context.Context) error
	// Lock sets the lock_date_modified latch. Returns ErrNotSupported on the
	// relational backend.
	Lock(ctx context.Context) error
	// Unlock clears the lock_date_modified latch. Returns ErrNotSupported on
	// the relational backend.
	Unlock(ctx context.Context) error
	// Close tears down backend connections.
	Close() error
}
