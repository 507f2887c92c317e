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

// Package metrics provides opt-in, low-overhead Prometheus telemetry for the
// crawler: feed request outcomes, page/item throughput and lock lifecycle
// events. Safe to call from hot paths — when disabled every Observe*
// function is a no-op, matching the original telemetry module's design.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var enabled atomic.Bool

var (
	feedRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcrawler_feed_requests_total",
		Help: "Total feed requests by direction and result classification",
	}, []string{"direction", "result"})

	itemsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcrawler_items_processed_total",
		Help: "Total items handed to the data handler, by direction",
	}, []string{"direction"})

	positionSavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feedcrawler_position_saves_total",
		Help: "Total position store save attempts, by direction and outcome",
	}, []string{"direction", "outcome"})

	offsetInvalidationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedcrawler_offset_invalidations_total",
		Help: "Total forward-offset invalidations (HTTP 404) triggering a re-bootstrap",
	})

	backwardStoppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedcrawler_backward_stopped_total",
		Help: "Total times the backward crawler reached the end of history or the date-modified barrier",
	})

	lockLostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feedcrawler_lock_lost_total",
		Help: "Total times the distributed lock heartbeat detected ownership loss",
	})

	lastSuccessfulPage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "feedcrawler_last_successful_page_timestamp_seconds",
		Help: "Unix timestamp of the last successfully processed page, by direction",
	}, []string{"direction"})
)

func init() {
	prometheus.MustRegister(
		feedRequestsTotal, itemsProcessedTotal, positionSavesTotal,
		offsetInvalidationsTotal, backwardStoppedTotal, lockLostTotal, lastSuccessfulPage,
	)
}

// Enable turns telemetry on or off. Safe to call multiple times.
func Enable(on bool) { enabled.Store(on) }

// Enabled reports whether telemetry is active.
func Enabled() bool { return enabled.Load() }

// Serve starts a dedicated /metrics HTTP server on addr in the background.
// Use this when the crawler does not already expose an admin mux; otherwise
// register promhttp.Handler() on the existing mux instead.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = server.ListenAndServe() }()
}

// ObserveFeedRequest records one classified feed request.
func ObserveFeedRequest(direction, result string) {
	if !enabled.Load() {
		return
	}
	feedRequestsTotal.WithLabelValues(direction, result).Inc()
}

// ObservePage records a successfully handled non-empty page.
func ObservePage(direction string, itemCount int) {
	if !enabled.Load() {
		return
	}
	itemsProcessedTotal.WithLabelValues(direction).Add(float64(itemCount))
	lastSuccessfulPage.WithLabelValues(direction).SetToCurrentTime()
}

// ObservePositionSave records a position store save attempt's outcome
// ("ok" or "error").
func ObservePositionSave(direction, outcome string) {
	if !enabled.Load() {
		return
	}
	positionSavesTotal.WithLabelValues(direction, outcome).Inc()
}

// ObserveOffsetInvalidation records a forward-offset invalidation.
func ObserveOffsetInvalidation() {
	if !enabled.Load() {
		return
	}
	offsetInvalidationsTotal.Inc()
}

// ObserveBackwardStopped records the backward crawler terminating.
func ObserveBackwardStopped() {
	if !enabled.Load() {
		return
	}
	backwardStoppedTotal.Inc()
}

// ObserveLockLost records the lock heartbeat detecting ownership loss.
func ObserveLockLost() {
	if !enabled.Load() {
		return
	}
	lockLostTotal.Inc()
}
