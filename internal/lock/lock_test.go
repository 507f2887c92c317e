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

package lock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSignaler struct {
	fired atomic.Bool
}

func (f *fakeSignaler) SelfTerm() { f.fired.Store(true) }

func newTestLock(t *testing.T, expire, update, acquireWait time.Duration) (*Lock, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := New(client, "crawler:changes:lock", expire, update, acquireWait)
	return l, client, srv
}

func TestLockAcquireThenRelease(t *testing.T) {
	l, client, _ := newTestLock(t, time.Minute, time.Minute, 5*time.Millisecond)
	ctx := context.Background()

	if !l.Acquire(ctx, func() bool { return true }) {
		t.Fatalf("expected Acquire to succeed against an empty lock key")
	}
	if val, err := client.Get(ctx, "crawler:changes:lock").Result(); err != nil || val != l.instanceID {
		t.Fatalf("expected the lock record to hold this instance's id, got %q err=%v", val, err)
	}
	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := client.Get(ctx, "crawler:changes:lock").Result(); err != redis.Nil {
		t.Fatalf("expected the lock key to be gone after Release, got err=%v", err)
	}
}

func TestLockAcquireBlocksWhileHeldByAnother(t *testing.T) {
	l, client, _ := newTestLock(t, time.Minute, time.Minute, 5*time.Millisecond)
	ctx := context.Background()
	if err := client.Set(ctx, "crawler:changes:lock", "someone-else", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if l.Acquire(ctx, limitedShouldRun(2)) {
		t.Fatalf("expected Acquire to fail while another instance holds the lock")
	}
}

func TestLockUpdateRenewsOwnLock(t *testing.T) {
	l, client, _ := newTestLock(t, time.Minute, 5*time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()
	if !l.Acquire(ctx, func() bool { return true }) {
		t.Fatalf("expected Acquire to succeed")
	}

	updateCtx, cancel := context.WithTimeout(ctx, 40*time.Millisecond)
	defer cancel()
	err := l.Update(updateCtx, func() bool { return true })
	if err != nil && err != context.DeadlineExceeded {
		t.Fatalf("unexpected error from Update: %v", err)
	}
	if val, err := client.Get(ctx, "crawler:changes:lock").Result(); err != nil || val != l.instanceID {
		t.Fatalf("expected lock to still be owned by this instance after renewal, got %q err=%v", val, err)
	}
}

func TestLockUpdateSelfTerminatesOnLostOwnership(t *testing.T) {
	l, client, _ := newTestLock(t, time.Minute, 5*time.Millisecond, 5*time.Millisecond)
	ctx := context.Background()
	if !l.Acquire(ctx, func() bool { return true }) {
		t.Fatalf("expected Acquire to succeed")
	}
	sig := &fakeSignaler{}
	l.signaler = sig

	// Simulate another instance stealing the lock out from under us.
	if err := client.Set(ctx, "crawler:changes:lock", "another-instance", time.Minute).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := l.Update(ctx, func() bool { return true })
	if err != ErrLost {
		t.Fatalf("expected ErrLost, got %v", err)
	}
	if !sig.fired.Load() {
		t.Fatalf("expected SelfTerm to be called once ownership is lost")
	}
}

func TestRunLockedDisabledSkipsAcquisition(t *testing.T) {
	called := false
	err := RunLocked(context.Background(), nil, false, func() bool { return true }, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected getApp to run directly when locking is disabled")
	}
}

func TestRunLockedAcquiresRunsAndReleases(t *testing.T) {
	l, client, _ := newTestLock(t, time.Minute, time.Minute, 5*time.Millisecond)
	ctx := context.Background()

	err := RunLocked(ctx, l, true, func() bool { return true }, func(ctx context.Context) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := client.Get(ctx, "crawler:changes:lock").Result(); err != redis.Nil {
		t.Fatalf("expected the lock to be released once getApp returns, got err=%v", err)
	}
}

// limitedShouldRun returns true exactly n times, then false forever.
func limitedShouldRun(n int) func() bool {
	var calls int32
	return func() bool {
		return atomic.AddInt32(&calls, 1) <= int32(n)
	}
}
