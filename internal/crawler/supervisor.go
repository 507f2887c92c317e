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
	"time"

	"golang.org/x/sync/errgroup"

	"feedcrawler/internal/logctx"
	"feedcrawler/internal/store"
)

// Supervisor is the Bidirectional Supervisor (§4.4): it loads or bootstraps
// initial offsets, then runs a forward and a backward Crawler Loop
// concurrently, restarting the whole cycle when both return (which, for the
// forward loop, only happens on cursor invalidation).
type Supervisor struct {
	Store   store.Store
	Client  *FeedClient
	Handler DataHandler
	Writer  *PositionWriter
	Clock   Clock

	Intervals  Intervals
	BaseParams FeedParams // Feed, Limit, OptFields, Mode; Descending/Offset overridden per loop

	// InitialForwardOffset/InitialBackwardOffset are the operator-supplied
	// bootstrap offsets (FORWARD_OFFSET/BACKWARD_OFFSET); both must be set
	// for them to take precedence over Init Feed.
	InitialForwardOffset  string
	InitialBackwardOffset string

	Cooldown CooldownConfig

	DateModifiedLockEnabled bool
	DateModifiedMargin      time.Duration
}

// Run executes the supervisor cycle until shouldRun turns false, offset
// resolution fails (store, handler or context error), or a loop returns a
// non-nil error.
func (s *Supervisor) Run(ctx context.Context, shouldRun func() bool) error {
	for shouldRun() {
		forwardOffset, backwardOffset, err := s.resolveOffsets(ctx, shouldRun)
		if err != nil {
			return err
		}

		forwardParams := s.BaseParams
		forwardParams.Descending = ""
		backwardParams := s.BaseParams
		backwardParams.Descending = "1"

		forwardLoop := &Loop{
			Client: s.Client, Handler: s.Handler, Store: s.Store, Writer: s.Writer, Clock: s.Clock,
			Intervals: s.Intervals, Params: forwardParams, Cooldown: s.Cooldown,
			DateModifiedLockEnabled: s.DateModifiedLockEnabled, DateModifiedMargin: s.DateModifiedMargin,
		}
		backwardLoop := &Loop{
			Client: s.Client, Handler: s.Handler, Store: s.Store, Writer: s.Writer, Clock: s.Clock,
			Intervals: s.Intervals, Params: backwardParams,
			DateModifiedLockEnabled: s.DateModifiedLockEnabled, DateModifiedMargin: s.DateModifiedMargin,
			ExplicitInitialOffset: s.InitialBackwardOffset != "",
		}

		logctx.Info(ctx, "CRAWLER_STARTED", "forward and backward crawlers starting")
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return forwardLoop.Run(gctx, forwardOffset, shouldRun) })
		g.Go(func() error { return backwardLoop.Run(gctx, backwardOffset, shouldRun) })
		if err := g.Wait(); err != nil {
			return err
		}
		logctx.Info(ctx, "CRAWLER_STOPPED", "forward and backward crawlers returned; re-bootstrapping")
	}
	return nil
}

// resolveOffsets implements §4.4 steps 1-4: resume from a saved position,
// else use operator-supplied bootstrap offsets, else call Init Feed.
func (s *Supervisor) resolveOffsets(ctx context.Context, shouldRun func() bool) (forward, backward string, err error) {
	rec, err := s.Store.Get(ctx)
	if err != nil {
		return "", "", err
	}
	if rec.HasBothOffsets() {
		if rec.ServerID != "" {
			s.Client.PlantServerID(rec.ServerID)
		}
		logctx.Info(ctx, "LOAD_CRAWLER_POSITION", "resuming from saved position")
		return rec.ForwardOffset, rec.BackwardOffset, nil
	}
	if s.InitialForwardOffset != "" && s.InitialBackwardOffset != "" {
		return s.InitialForwardOffset, s.InitialBackwardOffset, nil
	}
	return s.initFeed(ctx, shouldRun)
}

// initFeed probes the descending=1 head of the feed (no offset), invokes the
// handler on its data to cover the bootstrap page, and derives the initial
// forward/backward offsets. It retries indefinitely on anything but a
// decoded Page, at FEED_STEP_INTERVAL, and never persists a position.
func (s *Supervisor) initFeed(ctx context.Context, shouldRun func() bool) (forward, backward string, err error) {
	params := s.BaseParams
	params.Descending = "1"
	params.Offset = ""
	for shouldRun() {
		result := s.Client.Get(ctx, params)
		if result.Kind == ResultPage {
			if len(result.Page.Data) > 0 {
				if err := s.Handler.Handle(ctx, s.Client, result.Page.Data); err != nil {
					return "", "", err
				}
			}
			return result.Page.NextOffset, result.Page.PrevOffset, nil
		}
		logctx.Warn(ctx, "FEED_ERROR", "feed initialization retrying")
		s.Clock.Sleep(ctx, s.Intervals.FeedStep)
	}
	return "", "", ctx.Err()
}
