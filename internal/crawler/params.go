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

// Package crawler implements the bidirectional changes-feed crawler: the
// HTTP feed client, the retry/backoff policy, the per-direction crawler
// loop and the supervisor that bootstraps and restarts it.
package crawler

import "fmt"

// FeedParams is the typed replacement for the source's dynamically built
// **kwargs query parameters. Descending is the literal wire value ("" or
// "1"), not a bool, because the server distinguishes "" from absent.
type FeedParams struct {
	Feed       string
	Descending string
	Offset     string
	Limit      int
	OptFields  string
	Mode       string
}

// DefaultFeedParams returns the base parameter set; callers override Offset
// and Descending per direction.
func DefaultFeedParams(limit int, optFields, mode string) FeedParams {
	return FeedParams{
		Feed:      "changes",
		Limit:     limit,
		OptFields: optFields,
		Mode:      mode,
	}
}

// Values renders the params as a query string map, mirroring the source's
// get_feed_params().
func (p FeedParams) Values() map[string]string {
	return map[string]string{
		"feed":       p.Feed,
		"descending": p.Descending,
		"offset":     p.Offset,
		"limit":      fmt.Sprintf("%d", p.Limit),
		"opt_fields": p.OptFields,
		"mode":       p.Mode,
	}
}

// IsBackward reports whether these params describe the backward (descending)
// direction.
func (p FeedParams) IsBackward() bool {
	return p.Descending != ""
}
