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
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

// limitedShouldRun returns true exactly n times, then false forever.
func limitedShouldRun(n int) func() bool {
	var calls int32
	return func() bool {
		return atomic.AddInt32(&calls, 1) <= int32(n)
	}
}

type recordingHandler struct {
	calls [][]Item
}

func (h *recordingHandler) Handle(ctx context.Context, client *FeedClient, items []Item) error {
	h.calls = append(h.calls, items)
	return nil
}

func TestLoopForwardAdvancesOffsetAndSleeps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","dateModified":"2025-01-01T00:00:00Z"}],"next_page":{"offset":"200.0"},"prev_page":{"offset":"1.0"}}`))
	})
	st := &fakeStore{}
	handler := &recordingHandler{}
	clock := newFakeClock(time.Unix(2000, 0))
	loop := &Loop{
		Client: client, Handler: handler, Store: st,
		Writer:    &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:     clock,
		Intervals: DefaultIntervals(),
		Params:    FeedParams{Feed: "changes", Limit: 100},
	}

	if err := loop.Run(context.Background(), "100.0", limitedShouldRun(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(handler.calls) != 1 || len(handler.calls[0]) != 1 {
		t.Fatalf("expected handler invoked once with one item, got %+v", handler.calls)
	}
	rec, _ := st.Get(context.Background())
	if rec.ForwardOffset != "200.0" {
		t.Fatalf("expected forward offset advanced to next_page.offset, got %q", rec.ForwardOffset)
	}
	foundNoItems, foundFeedStep := false, false
	for _, d := range clock.sleeps {
		if d == DefaultIntervals().NoItems {
			foundNoItems = true
		}
		if d == DefaultIntervals().FeedStep {
			foundFeedStep = true
		}
	}
	if !foundNoItems || !foundFeedStep {
		t.Fatalf("expected both NoItems and FeedStep sleeps for a short page, got %v", clock.sleeps)
	}
}

func TestLoopOffsetInvalidDropsPositionAndEngagesLatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	st := &fakeStore{}
	loop := &Loop{
		Client: client, Handler: &recordingHandler{}, Store: st,
		Writer:                  &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:                   newFakeClock(time.Unix(2000, 0)),
		Intervals:               DefaultIntervals(),
		Params:                  FeedParams{Feed: "changes", Limit: 100},
		DateModifiedLockEnabled: true,
	}

	if err := loop.Run(context.Background(), "stale-offset", func() bool { return true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.drops != 1 {
		t.Fatalf("expected Drop to be called exactly once, got %d", st.drops)
	}
	if st.locks != 1 {
		t.Fatalf("expected the date-modified latch to be engaged, got %d locks", st.locks)
	}
}

func TestLoopTransientNetSleepsConnectionError(t *testing.T) {
	client, err := NewFeedClient("http://127.0.0.1:1", "test", "", nil, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewFeedClient: %v", err)
	}
	st := &fakeStore{}
	clock := newFakeClock(time.Unix(2000, 0))
	loop := &Loop{
		Client: client, Handler: &recordingHandler{}, Store: st,
		Writer:    &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:     clock,
		Intervals: DefaultIntervals(),
		Params:    FeedParams{Feed: "changes", Limit: 100},
	}

	if err := loop.Run(context.Background(), "off", limitedShouldRun(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != DefaultIntervals().ConnectionError {
		t.Fatalf("expected a single ConnectionError sleep, got %v", clock.sleeps)
	}
}

func TestLoopBackwardStopsOnEmptyPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[],"next_page":{"offset":"1"},"prev_page":{"offset":"1"}}`))
	})
	st := &fakeStore{}
	loop := &Loop{
		Client: client, Handler: &recordingHandler{}, Store: st,
		Writer:    &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:     newFakeClock(time.Unix(2000, 0)),
		Intervals: DefaultIntervals(),
		Params:    FeedParams{Feed: "changes", Limit: 100, Descending: "1"},
	}

	if err := loop.Run(context.Background(), "off", func() bool { return true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoopBackwardStopsAtDateModifiedBarrier(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","dateModified":"2024-01-01T00:00:00Z"}],"next_page":{"offset":"1"},"prev_page":{"offset":"0.5"}}`))
	})
	st := &fakeStore{}
	st.rec.LatestDateModified = "2025-06-01T00:00:00Z"
	loop := &Loop{
		Client: client, Handler: &recordingHandler{}, Store: st,
		Writer:                  &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:                   newFakeClock(time.Unix(2000, 0)),
		Intervals:               DefaultIntervals(),
		Params:                  FeedParams{Feed: "changes", Limit: 100, Descending: "1"},
		DateModifiedLockEnabled: true,
		DateModifiedMargin:      24 * time.Hour,
	}

	if err := loop.Run(context.Background(), "off", func() bool { return true }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.unlocks != 1 {
		t.Fatalf("expected the date-modified latch to be cleared on barrier crossing, got %d unlocks", st.unlocks)
	}
}

func TestLoopForwardCooldownSleepsWithoutFetching(t *testing.T) {
	fetched := false
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fetched = true
		w.WriteHeader(http.StatusInternalServerError)
	})
	st := &fakeStore{}
	now := time.Unix(10_000, 0)
	clock := newFakeClock(now)
	freshOffset := "9970" // 30s old, below a 1h threshold
	loop := &Loop{
		Client: client, Handler: &recordingHandler{}, Store: st,
		Writer:    &PositionWriter{Store: st, RetryInterval: time.Millisecond},
		Clock:     clock,
		Intervals: DefaultIntervals(),
		Params:    FeedParams{Feed: "changes", Limit: 100},
		Cooldown:  CooldownConfig{Enabled: true, Threshold: time.Hour, Sleep: 5 * time.Second},
	}

	if err := loop.Run(context.Background(), freshOffset, limitedShouldRun(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched {
		t.Fatalf("expected the feed to never be queried while inside the cooldown window")
	}
	if len(clock.sleeps) == 0 || clock.sleeps[0] != 5*time.Second {
		t.Fatalf("expected a cooldown sleep, got %v", clock.sleeps)
	}
}
