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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"feedcrawler/internal/logctx"
)

// ResourceFetcher is the per-entity "fetch by id" retry wrapper
// (process_resource in the original source): a straightforward GET with
// bounded retries, covered only as a contract per the spec's scope.
type ResourceFetcher struct {
	HTTP      *http.Client
	Clock     Clock
	BaseURL   string
	UserAgent string
	Token     string
	Decoder   Decoder

	TooManyRequestsInterval time.Duration
	ConnectionErrorInterval time.Duration
	GetErrorRetries         int
}

// decode unmarshals with the configured Decoder, falling back to
// DefaultDecoder when none was set.
func (f *ResourceFetcher) decode(data []byte, v any) error {
	if f.Decoder == nil {
		return DefaultDecoder(data, v)
	}
	return f.Decoder(data, v)
}

// resourceEnvelope is the {"data": {...}} wire shape of a 200 response.
type resourceEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Fetch issues GET {BaseURL}/{resource}/{id}. A 200 returns the raw `data`
// payload. A 429 retries indefinitely at TooManyRequestsInterval (the feed
// head never stops retrying on rate limiting). A 404 is not retried and
// returns (nil, nil) at once. Any other non-200, or a transport error,
// retries up to GetErrorRetries times at
// ConnectionErrorInterval, then surrenders returning (nil, nil) — "no
// throw", just a logged failure resolving as "no data".
func (f *ResourceFetcher) Fetch(ctx context.Context, resource, id string) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/%s/%s", f.BaseURL, resource, id)
	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		data, status, err := f.fetchOnce(ctx, url)
		if err == nil && status == http.StatusOK {
			return data, nil
		}
		if status == http.StatusTooManyRequests {
			logctx.Warn(ctx, "TOO_MANY_REQUESTS", "resource fetch rate-limited: "+url)
			if !f.sleep(ctx, f.TooManyRequestsInterval) {
				return nil, ctx.Err()
			}
			continue
		}
		if status == http.StatusNotFound {
			logctx.Warn(ctx, "INVALID_OFFSET", "resource not found: "+url)
			return nil, nil
		}
		attempts++
		if attempts > f.GetErrorRetries {
			logctx.Error(ctx, "HTTP_EXCEPTION", "resource fetch exhausted retries: "+url, err)
			return nil, nil
		}
		if !f.sleep(ctx, f.ConnectionErrorInterval) {
			return nil, ctx.Err()
		}
	}
}

func (f *ResourceFetcher) fetchOnce(ctx context.Context, url string) (json.RawMessage, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", f.UserAgent)
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}
	resp, err := f.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var env resourceEnvelope
	if err := f.decode(body, &env); err != nil {
		return nil, resp.StatusCode, err
	}
	return env.Data, resp.StatusCode, nil
}

func (f *ResourceFetcher) sleep(ctx context.Context, d time.Duration) bool {
	if f.Clock != nil {
		f.Clock.Sleep(ctx, d)
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
