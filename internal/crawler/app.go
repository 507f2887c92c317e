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
	"fmt"

	"github.com/redis/go-redis/v9"

	"feedcrawler/internal/lock"
	"feedcrawler/internal/store"
)

// options carries the optional Run parameters that mirror the original
// source's run_app/main keyword arguments (init_task, additional_headers,
// json_loads).
type options struct {
	initTask          func(ctx context.Context) error
	additionalHeaders map[string]string
	decoder           Decoder
}

// Option configures Run. See WithInitTask, WithAdditionalHeaders and
// WithDecoder.
type Option func(*options)

// WithInitTask runs f once before the supervisor starts, mirroring the
// original source's optional `init_task` coroutine.
func WithInitTask(f func(ctx context.Context) error) Option {
	return func(o *options) { o.initTask = f }
}

// WithAdditionalHeaders merges extra headers into every feed request,
// mirroring the original source's `additional_headers` parameter.
func WithAdditionalHeaders(h map[string]string) Option {
	return func(o *options) { o.additionalHeaders = h }
}

// WithDecoder overrides the JSON decoder used for feed pages by the
// FeedClient that Run builds, mirroring the original source's `json_loads`
// parameter. Defaults to DefaultDecoder (goccy/go-json) when not given. Run
// builds no ResourceFetcher, so this option does not reach resource fetches;
// a ResourceFetcher takes its own Decoder field.
func WithDecoder(d Decoder) Option {
	return func(o *options) { o.decoder = d }
}

// Run is the library entry point (the original source's main.run_app): it
// builds the Position Store, HTTP Feed Client and Bidirectional Supervisor
// from cfg, wraps them in the Distributed Lock if enabled, and runs until
// shouldRun turns false or ctx is cancelled. cmd/crawler is a thin wrapper
// around this call that adds flags, metrics/admin HTTP servers and OS signal
// handling; any other Go program can call Run directly to embed the crawler.
func Run(ctx context.Context, cfg *Config, handler DataHandler, shouldRun func() bool, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.initTask != nil {
		if err := o.initTask(ctx); err != nil {
			return fmt.Errorf("crawler: init task: %w", err)
		}
	}

	storeCfg := store.Config{
		DocstoreURL:      cfg.DocstoreURL,
		DocstoreStateKey: cfg.DocstoreStateKey,
		PostgresDSN: fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
			cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB, cfg.PostgresUser, cfg.PostgresPassword),
		PostgresHost:    cfg.PostgresHost,
		PostgresTable:   cfg.PostgresTable,
		PostgresStateID: cfg.PostgresStateID,
		DBErrorInterval: cfg.DBErrorInterval,
	}
	posStore, err := store.New(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("crawler: position store init: %w", err)
	}
	defer posStore.Close()

	client, err := NewFeedClient(cfg.FeedURL(), cfg.UserAgent, cfg.Token, o.additionalHeaders, 0)
	if err != nil {
		return fmt.Errorf("crawler: feed client init: %w", err)
	}
	if o.decoder != nil {
		client.Decoder = o.decoder
	}

	writer := &PositionWriter{
		Store:         posStore,
		SkipStatuses:  cfg.SkipStatusSet(),
		RetryInterval: cfg.DBErrorInterval,
	}

	supervisor := &Supervisor{
		Store:   posStore,
		Client:  client,
		Handler: handler,
		Writer:  writer,
		Clock:   RealClock(),
		Intervals: Intervals{
			ConnectionError: cfg.ConnectionErrorInterval,
			TooManyRequests: cfg.TooManyRequestsInterval,
			FeedStep:        cfg.FeedStepInterval,
			NoItems:         cfg.NoItemsInterval,
			DBError:         cfg.DBErrorInterval,
			LockAcquire:     cfg.LockAcquireSeconds,
			LockUpdate:      cfg.LockUpdateSeconds,
		},
		BaseParams:              DefaultFeedParams(cfg.Limit, cfg.OptFields, cfg.Mode),
		InitialForwardOffset:    cfg.ForwardOffset,
		InitialBackwardOffset:   cfg.BackwardOffset,
		DateModifiedLockEnabled: cfg.DateModifiedLockEnabled,
		DateModifiedMargin:      cfg.DateModifiedMargin,
		Cooldown: CooldownConfig{
			Enabled:   cfg.ForwardCooldownEnabled,
			Threshold: cfg.ForwardCooldownSeconds,
			Sleep:     cfg.SleepForwardSeconds,
		},
	}

	getApp := func(ctx context.Context) error {
		return supervisor.Run(ctx, shouldRun)
	}

	if !cfg.LockEnabled {
		return lock.RunLocked(ctx, nil, false, shouldRun, getApp)
	}

	redisOpts, err := redis.ParseURL(cfg.DocstoreURL)
	if err != nil {
		return fmt.Errorf("crawler: lock: parse docstore url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()
	l := lock.New(redisClient, cfg.LockProcessName, cfg.LockExpireSeconds, cfg.LockUpdateSeconds, cfg.LockAcquireSeconds)
	return lock.RunLocked(ctx, l, true, shouldRun, getApp)
}
