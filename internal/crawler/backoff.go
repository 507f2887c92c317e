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

import "time"

// Intervals holds the fixed (not exponential) backoff durations the crawler
// sleeps between iterations, keyed by the response classification that
// triggered the wait.
type Intervals struct {
	ConnectionError  time.Duration // transport/decode errors
	TooManyRequests  time.Duration // HTTP 429
	FeedStep         time.Duration // between successful pages, and after 412/unexpected
	NoItems          time.Duration // page returned fewer than Limit items
	DBError          time.Duration // position-store/lock backend errors
	LockAcquire      time.Duration // lock acquisition conflict
	LockUpdate       time.Duration // lock heartbeat cadence
	ForwardCooldown  time.Duration // forward offset-age cooldown threshold
	SleepOnCooldown  time.Duration // sleep while inside the cooldown window
}

// DefaultIntervals mirrors the source's settings.py defaults.
func DefaultIntervals() Intervals {
	return Intervals{
		ConnectionError: 5 * time.Second,
		TooManyRequests: 10 * time.Second,
		FeedStep:        0,
		NoItems:         15 * time.Second,
		DBError:         5 * time.Second,
		LockAcquire:     10 * time.Second,
		LockUpdate:      30 * time.Second,
	}
}
