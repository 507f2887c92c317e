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
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the full environment-driven configuration surface (§6): feed
// connection parameters, backoff intervals, the Position Store backend
// selection, Distributed Lock settings and the optional date-modified-lock
// and forward-cooldown features.
type Config struct {
	FeedHost    string `koanf:"feed.host"`
	FeedVersion string `koanf:"feed.version"`
	Resource    string `koanf:"feed.resource"`
	Limit       int    `koanf:"feed.limit"`
	Mode        string `koanf:"feed.mode"`
	OptFields   string `koanf:"feed.opt_fields"`
	Token       string `koanf:"feed.token"`
	UserAgent   string `koanf:"feed.user_agent"`

	FeedStepInterval        time.Duration `koanf:"interval.feed_step"`
	TooManyRequestsInterval time.Duration `koanf:"interval.too_many_requests"`
	ConnectionErrorInterval time.Duration `koanf:"interval.connection_error"`
	NoItemsInterval         time.Duration `koanf:"interval.no_items"`
	DBErrorInterval         time.Duration `koanf:"interval.db_error"`
	GetErrorRetries         int           `koanf:"interval.get_error_retries"`

	DocstoreURL      string `koanf:"docstore.url"`
	DocstoreDatabase string `koanf:"docstore.database"`
	DocstoreStateKey string `koanf:"docstore.state_key"`

	PostgresHost     string `koanf:"postgres.host"`
	PostgresPort     int    `koanf:"postgres.port"`
	PostgresDB       string `koanf:"postgres.db"`
	PostgresUser     string `koanf:"postgres.user"`
	PostgresPassword string `koanf:"postgres.password"`
	PostgresTable    string `koanf:"postgres.table"`
	PostgresStateID  string `koanf:"postgres.state_id"`

	LockEnabled        bool          `koanf:"lock.enabled"`
	LockCollection     string        `koanf:"lock.collection"`
	LockProcessName    string        `koanf:"lock.process_name"`
	LockExpireSeconds  time.Duration `koanf:"lock.expire_seconds"`
	LockUpdateSeconds  time.Duration `koanf:"lock.update_seconds"`
	LockAcquireSeconds time.Duration `koanf:"lock.acquire_seconds"`

	ForwardOffset  string `koanf:"offset.forward"`
	BackwardOffset string `koanf:"offset.backward"`

	DateModifiedLockEnabled bool          `koanf:"date_modified_lock.enabled"`
	SkipStatuses            []string      `koanf:"date_modified_lock.skip_statuses"`
	DateModifiedMargin      time.Duration `koanf:"date_modified_lock.margin_seconds"`

	ForwardCooldownEnabled bool          `koanf:"forward_cooldown.enabled"`
	ForwardCooldownSeconds time.Duration `koanf:"forward_cooldown.seconds"`
	SleepForwardSeconds    time.Duration `koanf:"forward_cooldown.sleep_seconds"`

	// ShardEnabled gates the optional multi-instance ownership check
	// (internal/shard): off by default, so a single-process deployment never
	// consults it.
	ShardEnabled bool     `koanf:"shard.enabled"`
	ShardMembers []string `koanf:"shard.members"`
	ShardSelf    string   `koanf:"shard.self"`

	// FetchFullDocuments turns on the per-item Resource Fetcher: the changes
	// feed only carries id/dateModified/status, so a handler that needs the
	// full document issues one GET per item.
	FetchFullDocuments bool `koanf:"feed.fetch_full_documents"`
}

func defaultConfig() *Config {
	return &Config{
		FeedVersion: "2.5",
		Limit:       100,
		Mode:        "",
		UserAgent:   "feedcrawler/1.0",

		FeedStepInterval:        0,
		TooManyRequestsInterval: 10 * time.Second,
		ConnectionErrorInterval: 5 * time.Second,
		NoItemsInterval:         15 * time.Second,
		DBErrorInterval:         5 * time.Second,
		GetErrorRetries:         5,

		DocstoreStateKey: "feed_crawler_position",
		PostgresTable:    "crawler_state",
		PostgresStateID:  "feed_crawler_position",

		LockCollection:     "crawler_locks",
		LockProcessName:    "feed-crawler",
		LockExpireSeconds:  60 * time.Second,
		LockUpdateSeconds:  30 * time.Second,
		LockAcquireSeconds: 10 * time.Second,

		DateModifiedMargin: 60 * time.Second,

		ForwardCooldownSeconds: 0,
		SleepForwardSeconds:    5 * time.Second,
	}
}

// envMappings maps literal environment variable names onto koanf config
// paths, the same explicit-dictionary style used throughout the rest of the
// pack's env-driven config loaders.
var envMappings = map[string]string{
	"FEED_HOST":       "feed.host",
	"FEED_VERSION":    "feed.version",
	"FEED_RESOURCE":   "feed.resource",
	"FEED_LIMIT":      "feed.limit",
	"FEED_MODE":       "feed.mode",
	"FEED_OPT_FIELDS": "feed.opt_fields",
	"FEED_TOKEN":      "feed.token",
	"FEED_USER_AGENT": "feed.user_agent",

	"FEED_STEP_INTERVAL":         "interval.feed_step",
	"TOO_MANY_REQUESTS_INTERVAL": "interval.too_many_requests",
	"CONNECTION_ERROR_INTERVAL":  "interval.connection_error",
	"NO_ITEMS_INTERVAL":          "interval.no_items",
	"DB_ERROR_INTERVAL":          "interval.db_error",
	"GET_ERROR_RETRIES":          "interval.get_error_retries",

	"DOCSTORE_URL":       "docstore.url",
	"DOCSTORE_DATABASE":  "docstore.database",
	"DOCSTORE_STATE_KEY": "docstore.state_key",

	"POSTGRES_HOST":     "postgres.host",
	"POSTGRES_PORT":     "postgres.port",
	"POSTGRES_DB":       "postgres.db",
	"POSTGRES_USER":     "postgres.user",
	"POSTGRES_PASSWORD": "postgres.password",
	"POSTGRES_TABLE":    "postgres.table",
	"POSTGRES_STATE_ID": "postgres.state_id",

	"LOCK_ENABLED":         "lock.enabled",
	"LOCK_COLLECTION":      "lock.collection",
	"LOCK_PROCESS_NAME":    "lock.process_name",
	"LOCK_EXPIRE_SECONDS":  "lock.expire_seconds",
	"LOCK_UPDATE_SECONDS":  "lock.update_seconds",
	"LOCK_ACQUIRE_SECONDS": "lock.acquire_seconds",

	"FORWARD_OFFSET":  "offset.forward",
	"BACKWARD_OFFSET": "offset.backward",

	"DATE_MODIFIED_LOCK_ENABLED":   "date_modified_lock.enabled",
	"DATE_MODIFIED_SKIP_STATUSES":  "date_modified_lock.skip_statuses",
	"DATE_MODIFIED_MARGIN_SECONDS": "date_modified_lock.margin_seconds",

	"FORWARD_CHANGES_COOLDOWN_ENABLED": "forward_cooldown.enabled",
	"FORWARD_CHANGES_COOLDOWN_SECONDS": "forward_cooldown.seconds",
	"SLEEP_FORWARD_CHANGES_SECONDS":    "forward_cooldown.sleep_seconds",

	"SHARD_ENABLED": "shard.enabled",
	"SHARD_MEMBERS": "shard.members",
	"SHARD_SELF":    "shard.self",

	"FETCH_FULL_DOCUMENTS": "feed.fetch_full_documents",
}

func envTransform(key string) string {
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

// LoadConfig layers built-in defaults under environment variables (the only
// external source per spec §6 — there is deliberately no config file here,
// since the original source is itself environment-var driven end to end).
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("crawler: load config defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("crawler: load environment config: %w", err)
	}
	if raw, ok := k.Get("date_modified_lock.skip_statuses").(string); ok && raw != "" {
		parts := strings.Split(raw, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set("date_modified_lock.skip_statuses", trimmed); err != nil {
			return nil, fmt.Errorf("crawler: set skip statuses: %w", err)
		}
	}
	if raw, ok := k.Get("shard.members").(string); ok && raw != "" {
		parts := strings.Split(raw, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set("shard.members", trimmed); err != nil {
			return nil, fmt.Errorf("crawler: set shard members: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("crawler: unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Resource) == "" {
		return nil, fmt.Errorf("crawler: FEED_RESOURCE is required")
	}
	return cfg, nil
}

// SkipStatusSet renders Config.SkipStatuses as the set shape DerivedDateModified expects.
func (c *Config) SkipStatusSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.SkipStatuses))
	for _, s := range c.SkipStatuses {
		set[s] = struct{}{}
	}
	return set
}

// FeedURL composes the base feed URL from host, version and resource.
func (c *Config) FeedURL() string {
	return fmt.Sprintf("%s/api/%s/%s", strings.TrimRight(c.FeedHost, "/"), c.FeedVersion, c.Resource)
}
