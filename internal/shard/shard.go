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

// Package shard answers one question for a fleet of crawler instances that
// each watch a different resource: "does this instance own this resource
// right now?" It is off by default — a single-process deployment never
// consults it — and only matters once an operator runs more than one
// process sharing the same fleet member list.
//
// Ownership is computed with rendezvous (highest random weight) hashing
// rather than a fixed modulo assignment, so adding or removing a fleet
// member only reshuffles the resources anchored to that one member instead
// of the whole fleet — the same property go-redis's ring client relies on
// this package for when it spreads keys across Redis shards.
package shard

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	rendezvous "github.com/dgryski/go-rendezvous"
)

// Set is an immutable view of a fleet's membership, used to decide which
// member owns a given resource key.
type Set struct {
	members []string
	r       *rendezvous.Rendezvous
}

func hash(s string) uint64 { return xxhash.Sum64String(s) }

// New builds a Set over the given fleet member names (typically hostnames
// or pod names). Order is irrelevant; ownership depends only on the set's
// membership, not on iteration order.
func New(members []string) *Set {
	sorted := append([]string(nil), members...)
	sort.Strings(sorted)
	return &Set{members: sorted, r: rendezvous.New(sorted, hash)}
}

// Owner returns which fleet member owns key.
func (s *Set) Owner(key string) string {
	if len(s.members) == 0 {
		return ""
	}
	if len(s.members) == 1 {
		return s.members[0]
	}
	return s.r.Lookup(key)
}

// Owns reports whether self owns key under this Set's membership. A self
// not present in the fleet never owns anything.
func (s *Set) Owns(self, key string) bool {
	return s.Owner(key) == self
}

// Members returns the sorted fleet membership.
func (s *Set) Members() []string {
	return append([]string(nil), s.members...)
}
