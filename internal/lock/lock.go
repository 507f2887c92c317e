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

// Package lock implements the single-writer distributed mutex: a TTL record
// plus heartbeat, backed by Redis (the same client family as the document
// Position Store backend — see SPEC_FULL.md's Domain Stack). It reuses the
// teacher's idempotent Lua-script pattern (persistence/redis.go) for the
// compare-and-renew / compare-and-delete operations.
package lock

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"feedcrawler/internal/logctx"
	"feedcrawler/internal/metrics"
)

// renewScript renews expireAt only if the caller still owns the lock,
// returning 1 on success, 0 if another instance now holds it.
const renewScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('PSETEX', KEYS[1], ARGV[2], ARGV[1])
  return 1
else
  return 0
end
`

// releaseScript deletes the lock only if the caller still owns it.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
else
  return 0
end
`

// ErrLost is returned internally (and logged) when the heartbeat discovers
// another process now holds the lock.
var ErrLost = errors.New("lock: ownership lost to another process")

// Signaler abstracts process self-signalling for tests; production code
// uses OSSignaler.
type Signaler interface {
	SelfTerm()
}

// OSSignaler sends SIGTERM to the current process, matching the spec's
// "the component MUST terminate the whole process (send SIGTERM to self)".
type OSSignaler struct{}

func (OSSignaler) SelfTerm() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
}

// Lock is a process-wide singleton TTL mutex keyed by ProcessName.
type Lock struct {
	client      *redis.Client
	processName string
	instanceID  string
	expireTime  time.Duration
	updateTime  time.Duration
	acquireWait time.Duration
	signaler    Signaler
}

// New mints a random instance ID and returns an unheld Lock.
func New(client *redis.Client, processName string, expireTime, updateTime, acquireWait time.Duration) *Lock {
	return &Lock{
		client:      client,
		processName: processName,
		instanceID:  uuid.NewString(),
		expireTime:  expireTime,
		updateTime:  updateTime,
		acquireWait: acquireWait,
		signaler:    OSSignaler{},
	}
}

// Acquire loops until it wins the lock (true), or shouldRun turns false or
// ctx is cancelled (false).
func (l *Lock) Acquire(ctx context.Context, shouldRun func() bool) bool {
	for shouldRun() {
		ok, err := l.client.SetNX(ctx, l.processName, l.instanceID, l.expireTime).Result()
		if err != nil {
			logctx.Warn(ctx, "MONGODB_EXC", "lock acquire error: "+err.Error())
		} else if ok {
			logctx.Info(ctx, "START_CRAWLING", "lock "+l.processName+" acquired by "+l.instanceID)
			return true
		}
		t := time.NewTimer(l.acquireWait)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return false
		}
		t.Stop()
	}
	return false
}

// Update runs the heartbeat forever at UpdateTime cadence. On losing
// ownership it self-SIGTERMs the process exactly once and returns ErrLost.
func (l *Lock) Update(ctx context.Context, shouldRun func() bool) error {
	t := time.NewTimer(l.updateTime)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if !shouldRun() {
			return nil
		}
		res, err := l.client.Eval(ctx, renewScript, []string{l.processName}, l.instanceID, int(l.expireTime.Milliseconds())).Int64()
		if err != nil {
			logctx.Warn(ctx, "MONGODB_EXC", "lock update error: "+err.Error())
		} else if res == 0 {
			logctx.Critical(ctx, "HANDLE_STOP_SIG", "another process acquired the lock; self-terminating")
			metrics.ObserveLockLost()
			l.signaler.SelfTerm()
			return ErrLost
		}
		t.Reset(l.updateTime)
	}
}

// Release deletes the lock record iff this instance still owns it.
func (l *Lock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{l.processName}, l.instanceID).Err()
}

// RunLocked holds the lock for the duration of getApp, starting the
// heartbeat as a background task, mirroring Lock.run_locked.
func RunLocked(ctx context.Context, l *Lock, enabled bool, shouldRun func() bool, getApp func(context.Context) error) error {
	if !enabled {
		return getApp(ctx)
	}
	if !l.Acquire(ctx, shouldRun) {
		return nil
	}
	updateCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = l.Update(updateCtx, shouldRun) }()

	err := getApp(ctx)
	if relErr := l.Release(ctx); relErr != nil {
		logctx.Warn(ctx, "MONGODB_EXC", "lock release error: "+relErr.Error())
	}
	return err
}
