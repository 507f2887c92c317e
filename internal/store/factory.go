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
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the subset of environment-driven settings the factory
// needs to pick and build a backend. See SPEC_FULL.md §6 for the full
// environment variable surface; this mirrors the "backend selection" rule
// in spec.md §4.7.
type Config struct {
	DocstoreURL      string
	DocstoreStateKey string

	PostgresDSN     string
	PostgresHost    string
	PostgresTable   string
	PostgresStateID string

	DBErrorInterval time.Duration
}

// New selects a backend by the spec's precedence: document store first (if
// a URL is configured), else relational (if a host is configured), else the
// process refuses to start.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch {
	case cfg.DocstoreURL != "":
		opts, err := redis.ParseURL(cfg.DocstoreURL)
		if err != nil {
			return nil, fmt.Errorf("store: parse docstore url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("store: connect docstore: %w", err)
		}
		return NewRedisStore(client, cfg.DocstoreStateKey, cfg.DBErrorInterval), nil
	case cfg.PostgresHost != "":
		return NewPostgresStore(ctx, cfg.PostgresDSN, cfg.PostgresTable, cfg.PostgresStateID, cfg.DBErrorInterval)
	default:
		return nil, errors.New("store: no backend configured (set DOCSTORE_URL or POSTGRES_HOST)")
	}
}
