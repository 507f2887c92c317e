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

package crawler

import (
	"context"
	"sync"
	"time"

	"feedcrawler/internal/store"
)

// fakeClock is a deterministic, instant Clock: Sleep never blocks the test
// but records every requested duration so assertions can inspect the
// backoff policy actually exercised.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// fakeStore is an in-memory store.Store, standing in for either backend in
// tests that only care about the Position Writer / Crawler Loop contract.
type fakeStore struct {
	mu       sync.Mutex
	rec      store.Record
	saveErrs int // number of times Save should fail before succeeding
	drops    int
	locks    int
	unlocks  int
}

func (s *fakeStore) Get(ctx context.Context) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.rec
	return &rec, nil
}

func (s *fakeStore) Save(ctx context.Context, patch store.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErrs > 0 {
		s.saveErrs--
		return errFakeBackend
	}
	if patch.ForwardOffset != nil {
		s.rec.ForwardOffset = *patch.ForwardOffset
	}
	if patch.BackwardOffset != nil {
		s.rec.BackwardOffset = *patch.BackwardOffset
	}
	if patch.LatestDateModified != nil {
		s.rec.LatestDateModified = *patch.LatestDateModified
	}
	if patch.EarliestDateModified != nil {
		s.rec.EarliestDateModified = *patch.EarliestDateModified
	}
	if patch.ServerID != nil {
		s.rec.ServerID = *patch.ServerID
	}
	s.rec.Exists = true
	return nil
}

func (s *fakeStore) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops++
	s.rec.ForwardOffset = ""
	s.rec.BackwardOffset = ""
	s.rec.ServerID = ""
	return nil
}

func (s *fakeStore) Lock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks++
	s.rec.LockDateModified = true
	return nil
}

func (s *fakeStore) Unlock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unlocks++
	s.rec.LockDateModified = false
	return nil
}

func (s *fakeStore) Close() error { return nil }

type fakeBackendError struct{}

func (fakeBackendError) Error() string { return "fake backend error" }

var errFakeBackend error = fakeBackendError{}
