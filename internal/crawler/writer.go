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

	"feedcrawler/internal/logctx"
	"feedcrawler/internal/store"
)

// PositionWriter composes and saves the position patch after a non-empty
// page, respecting the lock_date_modified latch.
type PositionWriter struct {
	Store         store.Store
	SkipStatuses  map[string]struct{}
	RetryInterval time.Duration
}

// Write builds the patch for one direction's page and saves it, retrying
// forever on backend error at RetryInterval (DB_ERROR_INTERVAL). The
// lock_date_modified latch is read fresh from the backend immediately before
// composing the patch, since the forward loop may have just set it and the
// backward stop predicate may have just cleared it.
func (w *PositionWriter) Write(ctx context.Context, descending string, items []Item, nextOffset string, serverID string) error {
	dateModifiedLocked := false
	if rec, err := w.Store.Get(ctx); err == nil {
		dateModifiedLocked = rec.LockDateModified
	}

	patch := store.Patch{}
	if GetOffsetKey(descending) == "backward_offset" {
		patch.BackwardOffset = store.StrField(nextOffset)
	} else {
		patch.ForwardOffset = store.StrField(nextOffset)
	}

	if !dateModifiedLocked {
		if dm, ok := DerivedDateModified(items, w.SkipStatuses); ok {
			if GetDateModifiedKey(descending) == "earliest_date_modified" {
				patch.EarliestDateModified = store.StrField(dm)
			} else {
				patch.LatestDateModified = store.StrField(dm)
			}
		}
	}

	if serverID != "" {
		patch.ServerID = store.StrField(serverID)
	}

	for {
		err := w.Store.Save(ctx, patch)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logctx.Warn(ctx, "MONGODB_EXC", "position save error: "+err.Error())
		t := time.NewTimer(w.RetryInterval)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		t.Stop()
	}
}
