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
	"time"

	"feedcrawler/internal/logctx"
	"feedcrawler/internal/metrics"
	"feedcrawler/internal/store"
)

func directionLabel(backward bool) string {
	if backward {
		return "backward"
	}
	return "forward"
}

func resultLabel(kind ResultKind) string {
	switch kind {
	case ResultPage:
		return "page"
	case ResultTransientNet:
		return "transient_net"
	case ResultTooManyRequests:
		return "too_many_requests"
	case ResultPreconditionFailed:
		return "precondition_failed"
	case ResultOffsetInvalid:
		return "offset_invalid"
	default:
		return "unexpected"
	}
}

// CooldownConfig is the optional forward offset-age cooldown (§4.3 step 1).
// Enabled=false disables the cooldown check entirely.
type CooldownConfig struct {
	Enabled   bool
	Threshold time.Duration
	Sleep     time.Duration
}

// Loop is one direction's Crawler Loop state machine. A Loop value is built
// fresh per invocation of the Bidirectional Supervisor and run to
// completion; it does not survive across supervisor iterations.
type Loop struct {
	Client  *FeedClient
	Handler DataHandler
	Store   store.Store
	Writer  *PositionWriter
	Clock   Clock

	Intervals Intervals
	Params    FeedParams // Descending fixed for the lifetime of the loop

	Cooldown CooldownConfig // forward only; ignored for backward

	DateModifiedLockEnabled bool
	DateModifiedMargin      time.Duration

	// ExplicitInitialOffset is set (backward only) when the operator
	// configured BACKWARD_OFFSET explicitly, so the first empty page still
	// records a position before the loop terminates.
	ExplicitInitialOffset bool
}

// Run executes the state machine described in spec §4.3/§4.6 starting at
// offset, until shouldRun turns false or the loop terminates per its own
// rules (OffsetInvalid for forward, empty page or date-modified barrier for
// backward). It returns nil on any expected termination; only a handler,
// position-store Drop or context error is propagated.
func (l *Loop) Run(ctx context.Context, offset string, shouldRun func() bool) error {
	backward := l.Params.IsBackward()
	firstIteration := true

	for shouldRun() {
		if !backward && l.Cooldown.Enabled {
			age, ok := OffsetAge(offset, l.Clock.Now())
			if !ok {
				logctx.Critical(ctx, "INVALID_OFFSET", "forward offset age unparseable: "+offset)
			} else if age < l.Cooldown.Threshold {
				l.Clock.Sleep(ctx, l.Cooldown.Sleep)
				continue
			}
		}

		params := l.Params
		params.Offset = offset
		result := l.Client.Get(ctx, params)
		metrics.ObserveFeedRequest(directionLabel(backward), resultLabel(result.Kind))

		switch result.Kind {
		case ResultTransientNet:
			logctx.Error(ctx, "HTTP_EXCEPTION", "feed request failed", result.Err)
			l.Clock.Sleep(ctx, l.Intervals.ConnectionError)
			continue

		case ResultTooManyRequests:
			logctx.Warn(ctx, "TOO_MANY_REQUESTS", "feed rate-limited")
			l.Clock.Sleep(ctx, l.Intervals.TooManyRequests)
			l.Clock.Sleep(ctx, l.Intervals.FeedStep)
			continue

		case ResultPreconditionFailed:
			logctx.Warn(ctx, "PRECONDITION_FAILED", "feed precondition failed, retrying as-is")
			l.Clock.Sleep(ctx, l.Intervals.FeedStep)
			continue

		case ResultOffsetInvalid:
			logctx.Warn(ctx, "OFFSET_INVALID", "feed offset invalid: "+offset)
			metrics.ObserveOffsetInvalidation()
			if err := l.Store.Drop(ctx); err != nil {
				return err
			}
			logctx.Info(ctx, "CRAWLER_DROP_FEED_POSITION", "position dropped after offset invalidation")
			if l.DateModifiedLockEnabled {
				if err := l.Store.Lock(ctx); err != nil && err != store.ErrNotSupported {
					logctx.Warn(ctx, "MONGODB_EXC", "lock_date_modified set failed: "+err.Error())
				} else if err == nil {
					logctx.Info(ctx, "CRAWLER_LOCK_DATE_MODIFIED", "lock_date_modified latch engaged")
				}
			}
			return nil

		case ResultUnexpected:
			logctx.Error(ctx, "FEED_UNEXPECTED_ERROR", fmt.Sprintf("unexpected status %d", result.Status), nil)
			l.Clock.Sleep(ctx, l.Intervals.FeedStep)
			continue

		case ResultPage:
			page := result.Page
			nextCursor := page.NextOffset
			if backward {
				nextCursor = page.PrevOffset
			}

			if len(page.Data) > 0 {
				if err := l.Handler.Handle(ctx, l.Client, page.Data); err != nil {
					return err
				}
				if err := l.Writer.Write(ctx, l.Params.Descending, page.Data, nextCursor, l.Client.ServerID()); err != nil {
					metrics.ObservePositionSave(directionLabel(backward), "error")
					return err
				}
				metrics.ObservePositionSave(directionLabel(backward), "ok")
				metrics.ObservePage(directionLabel(backward), len(page.Data))
			}

			if backward {
				if len(page.Data) == 0 {
					if l.ExplicitInitialOffset && firstIteration {
						if err := l.Writer.Write(ctx, l.Params.Descending, nil, nextCursor, l.Client.ServerID()); err != nil {
							return err
						}
					}
					logctx.Info(ctx, "BACK_CRAWLER_STOP", "backward crawler drained history")
					metrics.ObserveBackwardStopped()
					return nil
				}
				if stop, err := l.dateModifiedBarrierHit(ctx, page); err != nil {
					return err
				} else if stop {
					logctx.Info(ctx, "CRAWLER_DATE_MODIFIED_REACHED", "backward crawler reached date-modified barrier")
					metrics.ObserveBackwardStopped()
					return nil
				}
			}

			offset = nextCursor
			firstIteration = false

			if len(page.Data) < l.Params.Limit {
				l.Clock.Sleep(ctx, l.Intervals.NoItems)
			}
			l.Clock.Sleep(ctx, l.Intervals.FeedStep)
		}
	}
	return nil
}

// dateModifiedBarrierHit implements the backward stop predicate's
// date-modified clause (§4.6): if the persisted latest_date_modified (the
// forward loop's high-water mark) exists and this page's derived date is
// strictly below it minus the margin, the barrier has been crossed and the
// lock_date_modified latch is cleared before stopping.
func (l *Loop) dateModifiedBarrierHit(ctx context.Context, page *Page) (bool, error) {
	if !l.DateModifiedLockEnabled {
		return false, nil
	}
	rec, err := l.Store.Get(ctx)
	if err != nil || rec.LatestDateModified == "" {
		return false, nil
	}
	latest, err := time.Parse(time.RFC3339, rec.LatestDateModified)
	if err != nil {
		return false, nil
	}
	derived, ok := DerivedDateModified(page.Data, l.Writer.SkipStatuses)
	if !ok {
		return false, nil
	}
	derivedTime, err := time.Parse(time.RFC3339, derived)
	if err != nil {
		return false, nil
	}
	if derivedTime.Before(latest.Add(-l.DateModifiedMargin)) {
		if err := l.Store.Unlock(ctx); err != nil && err != store.ErrNotSupported {
			logctx.Warn(ctx, "MONGODB_EXC", "lock_date_modified clear failed: "+err.Error())
		} else if err == nil {
			logctx.Info(ctx, "CRAWLER_UNLOCK_DATE_MODIFIED", "lock_date_modified latch cleared")
		}
		return true, nil
	}
	return false, nil
}
