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

// Package main is a thin wrapper around internal/crawler.Run: it loads
// configuration, builds a demonstration DataHandler, optionally checks
// fleet-shard ownership, serves metrics/admin HTTP endpoints, and drains on
// SIGINT/SIGTERM. Everything that actually wires the Position Store,
// Distributed Lock and HTTP Feed Client together lives in
// internal/crawler.Run, which any other Go program can call directly to
// embed the crawler as a library.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"feedcrawler/internal/crawler"
	"feedcrawler/internal/logctx"
	"feedcrawler/internal/metrics"
	"feedcrawler/internal/shard"
)

// loggingHandler is the demonstration DataHandler: it logs each page's item
// count and the last item's id and dateModified, standing in for the spec's "opaque
// asynchronous callback" business logic. When Fetcher is set it also pulls
// each item's full document, mirroring the original source's two-step
// "changes feed gives ids, detail fetch gives documents" flow.
type loggingHandler struct {
	Fetcher  *crawler.ResourceFetcher
	Resource string
}

func (h loggingHandler) Handle(ctx context.Context, client *crawler.FeedClient, items []crawler.Item) error {
	if len(items) == 0 {
		return nil
	}
	if h.Fetcher != nil {
		for _, item := range items {
			if _, err := h.Fetcher.Fetch(ctx, h.Resource, item.ID); err != nil {
				return err
			}
		}
	}
	logctx.Info(ctx, "FEED_REQUEST", fmt.Sprintf("handled %d items, last id=%s dateModified=%s",
		len(items), items[len(items)-1].ID, items[len(items)-1].DateModified))
	return nil
}

func main() {
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	adminAddr := flag.String("admin_addr", "", "If non-empty, expose a liveness endpoint on this address (e.g., :8090)")
	flag.Parse()

	cfg, err := crawler.LoadConfig()
	if err != nil {
		logctx.Base.Error().Err(err).Msg("config load failed")
		os.Exit(1)
	}

	if cfg.ShardEnabled {
		set := shard.New(cfg.ShardMembers)
		if !set.Owns(cfg.ShardSelf, cfg.LockProcessName) {
			logctx.Base.Info().
				Str("shard_self", cfg.ShardSelf).
				Str("shard_owner", set.Owner(cfg.LockProcessName)).
				Msg("this instance does not own the configured resource under the current fleet membership; exiting")
			os.Exit(0)
		}
	}

	metrics.Enable(*metricsAddr != "")
	if *metricsAddr != "" {
		metrics.Serve(*metricsAddr)
	}

	var running atomic.Bool
	running.Store(true)
	shouldRun := func() bool { return running.Load() }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := loggingHandler{Resource: cfg.Resource}
	if cfg.FetchFullDocuments {
		handler.Fetcher = &crawler.ResourceFetcher{
			HTTP:                    &http.Client{},
			Clock:                   crawler.RealClock(),
			BaseURL:                 strings.TrimRight(fmt.Sprintf("%s/api/%s", cfg.FeedHost, cfg.FeedVersion), "/"),
			UserAgent:               cfg.UserAgent,
			Token:                   cfg.Token,
			TooManyRequestsInterval: cfg.TooManyRequestsInterval,
			ConnectionErrorInterval: cfg.ConnectionErrorInterval,
			GetErrorRetries:         cfg.GetErrorRetries,
		}
	}

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- crawler.Run(ctx, cfg, handler, shouldRun)
	}()

	if *adminAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() { _ = http.ListenAndServe(*adminAddr, logctx.AccessLog(mux)) }()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logctx.Info(ctx, "CRAWLER_STOPPED", "signal received, draining")
		running.Store(false)
		cancel()
		<-runErrCh
		os.Exit(0)
	case err := <-runErrCh:
		if err != nil {
			logctx.Base.Error().Err(err).Msg("crawler exited with error")
			os.Exit(1)
		}
		os.Exit(0)
	}
}
