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

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// dropScript atomically removes exactly the three cursor/session fields,
// preserving *_date_modified and lock_date_modified — the document-backend
// drop semantics from the spec. A Lua script keeps the "clear these, keep
// those" decision server-side in one round trip, the same shape as the
// teacher's idempotent commit scripts.
const dropScript = `
redis.call('HDEL', KEYS[1], ARGV[1], ARGV[2], ARGV[3])
return 1
`

// RedisStore is the document-shaped Position Store backend: one Redis hash
// per state key, fields named after the record's cursor/date-modified/lock
// keys. It plays the role the source gives to a MongoDB collection: a
// schemaless, upsert-by-field, URL-reachable keyed record store.
type RedisStore struct {
	client   *redis.Client
	stateKey string
	retry    time.Duration
}

// NewRedisStore wires a RedisStore against an already-constructed client.
// retryInterval is DB_ERROR_INTERVAL: backend errors are retried forever at
// this cadence, matching the spec's "a slow store blocks the crawler rather
// than drops data".
func NewRedisStore(client *redis.Client, stateKey string, retryInterval time.Duration) *RedisStore {
	return &RedisStore{client: client, stateKey: stateKey, retry: retryInterval}
}

func (s *RedisStore) sleep(ctx context.Context) {
	t := time.NewTimer(s.retry)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Get returns the current record, retrying forever on backend error.
func (s *RedisStore) Get(ctx context.Context) (*Record, error) {
	for {
		vals, err := s.client.HGetAll(ctx, s.stateKey).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.sleep(ctx)
			continue
		}
		if len(vals) == 0 {
			return &Record{Exists: false}, nil
		}
		rec := &Record{Exists: true}
		rec.ForwardOffset = vals[ForwardOffsetField]
		rec.BackwardOffset = vals[BackwardOffsetField]
		rec.ServerID = vals[ServerIDField]
		rec.LatestDateModified = vals[LatestDateModifiedField]
		rec.EarliestDateModified = vals[EarliestDateModifiedField]
		rec.LockDateModified = vals[LockDateModifiedField] == "1"
		return rec, nil
	}
}

// Save upserts the patch's present fields, retrying forever on backend error.
func (s *RedisStore) Save(ctx context.Context, patch Patch) error {
	fields := map[string]any{}
	if patch.ForwardOffset != nil {
		fields[ForwardOffsetField] = *patch.ForwardOffset
	}
	if patch.BackwardOffset != nil {
		fields[BackwardOffsetField] = *patch.BackwardOffset
	}
	if patch.ServerID != nil {
		fields[ServerIDField] = *patch.ServerID
	}
	if patch.LatestDateModified != nil {
		fields[LatestDateModifiedField] = *patch.LatestDateModified
	}
	if patch.EarliestDateModified != nil {
		fields[EarliestDateModifiedField] = *patch.EarliestDateModified
	}
	if len(fields) == 0 {
		return nil
	}
	for {
		err := s.client.HSet(ctx, s.stateKey, fields).Err()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sleep(ctx)
	}
}

// Drop clears exactly the three cursor/session fields.
func (s *RedisStore) Drop(ctx context.Context) error {
	for {
		err := s.client.Eval(ctx, dropScript, []string{s.stateKey},
			ForwardOffsetField, BackwardOffsetField, ServerIDField).Err()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sleep(ctx)
	}
}

// Lock sets the lock_date_modified latch.
func (s *RedisStore) Lock(ctx context.Context) error {
	return s.setLatch(ctx, true)
}

// Unlock clears the lock_date_modified latch.
func (s *RedisStore) Unlock(ctx context.Context) error {
	return s.setLatch(ctx, false)
}

func (s *RedisStore) setLatch(ctx context.Context, v bool) error {
	val := "0"
	if v {
		val = "1"
	}
	for {
		err := s.client.HSet(ctx, s.stateKey, LockDateModifiedField, val).Err()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sleep(ctx)
	}
}

// Close tears down the underlying Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
