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
	"testing"
	"time"
)

func TestSupervisorResolveOffsetsResumesFromStore(t *testing.T) {
	client, err := NewFeedClient("http://example.invalid", "test", "", nil, 0)
	if err != nil {
		t.Fatalf("NewFeedClient: %v", err)
	}
	st := &fakeStore{}
	st.rec.Exists = true
	st.rec.ForwardOffset = "100.0"
	st.rec.BackwardOffset = "50.0"
	st.rec.ServerID = "srv-7"

	sup := &Supervisor{Store: st, Client: client, Clock: newFakeClock(time.Unix(0, 0)), Intervals: DefaultIntervals()}
	fwd, bwd, err := sup.resolveOffsets(context.Background(), func() bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fwd != "100.0" || bwd != "50.0" {
		t.Fatalf("expected to resume saved offsets, got fwd=%q bwd=%q", fwd, bwd)
	}
	if got := client.ServerID(); got != "srv-7" {
		t.Fatalf("expected the saved server_id to be replanted into the cookie jar, got %q", got)
	}
}

func TestSupervisorResolveOffsetsPrefersOperatorBootstrapOverInitFeed(t *testing.T) {
	client, err := NewFeedClient("http://127.0.0.1:1", "test", "", nil, time.Millisecond)
	if err != nil {
		t.Fatalf("NewFeedClient: %v", err)
	}
	st := &fakeStore{}
	sup := &Supervisor{
		Store: st, Client: client, Clock: newFakeClock(time.Unix(0, 0)), Intervals: DefaultIntervals(),
		InitialForwardOffset: "10.0", InitialBackwardOffset: "5.0",
	}
	fwd, bwd, err := sup.resolveOffsets(context.Background(), func() bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fwd != "10.0" || bwd != "5.0" {
		t.Fatalf("expected operator-configured bootstrap offsets, got fwd=%q bwd=%q", fwd, bwd)
	}
}

func TestSupervisorInitFeedDerivesBackwardFromPrevForwardFromNext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("descending"); got != "1" {
			t.Errorf("expected the head probe to request descending=1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","dateModified":"2025-01-01T00:00:00Z"}],"next_page":{"offset":"777.0"},"prev_page":{"offset":"111.0"}}`))
	})
	st := &fakeStore{}
	handler := &recordingHandler{}
	sup := &Supervisor{
		Store: st, Client: client, Handler: handler,
		Clock: newFakeClock(time.Unix(0, 0)), Intervals: DefaultIntervals(),
	}
	fwd, bwd, err := sup.resolveOffsets(context.Background(), func() bool { return true })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fwd != "777.0" {
		t.Fatalf("expected forward offset to be the probe's next_page.offset, got %q", fwd)
	}
	if bwd != "111.0" {
		t.Fatalf("expected backward offset to be the probe's prev_page.offset, got %q", bwd)
	}
	if len(handler.calls) != 1 {
		t.Fatalf("expected the bootstrap page to be handed to the handler, got %d calls", len(handler.calls))
	}
}
