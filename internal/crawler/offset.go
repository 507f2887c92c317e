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
	"strconv"
	"strings"
	"time"
)

// OffsetAge parses the UNIX-timestamp prefix of an offset string (either a
// bare float like "1731103209.0000000001" or a composite
// "timestamp.seq.shard.hash") and returns the elapsed time since it, relative
// to now. ok is false when the prefix cannot be parsed as a timestamp.
func OffsetAge(offset string, now time.Time) (age time.Duration, ok bool) {
	// Plain numeric offset, optionally with a decimal (fractional-second) suffix.
	if ts, err := strconv.ParseFloat(offset, 64); err == nil {
		sec := int64(ts)
		nsec := int64((ts - float64(sec)) * 1e9)
		return now.Sub(time.Unix(sec, nsec)), true
	}
	// Composite "timestamp.seq.shard.hash": only the leading component is a
	// timestamp, the rest are opaque ordering fields.
	head := offset
	if idx := strings.IndexByte(offset, '.'); idx >= 0 {
		head = offset[:idx]
	}
	sec, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, false
	}
	return now.Sub(time.Unix(sec, 0)), true
}

// GetOffsetKey maps a direction to its position-record cursor field name.
func GetOffsetKey(descending string) string {
	if descending != "" {
		return "backward_offset"
	}
	return "forward_offset"
}

// GetDateModifiedKey maps a direction to its position-record date-modified
// field name.
func GetDateModifiedKey(descending string) string {
	if descending != "" {
		return "earliest_date_modified"
	}
	return "latest_date_modified"
}

// DerivedDateModified scans items from last to first and returns the first
// item's DateModified whose Status is not in skipStatuses. If none qualify it
// returns ("", false).
func DerivedDateModified(items []Item, skipStatuses map[string]struct{}) (string, bool) {
	for i := len(items) - 1; i >= 0; i-- {
		if _, skip := skipStatuses[items[i].Status]; skip {
			continue
		}
		return items[i].DateModified, true
	}
	return "", false
}
