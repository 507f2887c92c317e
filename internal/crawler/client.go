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
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	gojson "github.com/goccy/go-json"
)

// ServerIDCookieName is the sticky-routing cookie the upstream load balancer
// sets; the crawler mirrors it into the position record and replants it into
// the cookie jar on resume.
const ServerIDCookieName = "SERVER_ID"

// Decoder unmarshals one JSON response body, mirroring the original source's
// injectable `json_loads` parameter (see main.py's `main(..., json_loads=json.loads)`).
type Decoder func(data []byte, v any) error

// DefaultDecoder is goccy/go-json, a drop-in encoding/json replacement used
// as the default wherever a faster decoder isn't explicitly configured.
func DefaultDecoder(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// FeedClient issues paginated GET requests against one feed URL and classifies
// the response. It owns the cookie jar shared by the forward and backward
// loops, matching the single aiohttp.ClientSession of the source.
type FeedClient struct {
	HTTP      *http.Client
	FeedURL   string
	UserAgent string
	Token     string
	Headers   map[string]string
	Decoder   Decoder
}

// NewFeedClient builds a client with its own cookie jar. Two FeedClient
// values pointed at different URLs that need to share stickiness must share
// the same *http.Client.
func NewFeedClient(feedURL, userAgent, token string, headers map[string]string, timeout time.Duration) (*FeedClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &FeedClient{
		HTTP: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		FeedURL:   feedURL,
		UserAgent: userAgent,
		Token:     token,
		Headers:   headers,
		Decoder:   DefaultDecoder,
	}, nil
}

// decode unmarshals with the configured Decoder, falling back to
// DefaultDecoder for a zero-value FeedClient built by hand (e.g. in tests).
func (c *FeedClient) decode(data []byte, v any) error {
	if c.Decoder == nil {
		return DefaultDecoder(data, v)
	}
	return c.Decoder(data, v)
}

func (c *FeedClient) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}
}

// ServerID reads the current sticky cookie out of the shared jar, mirroring
// get_session_server_id.
func (c *FeedClient) ServerID() string {
	if c.HTTP.Jar == nil {
		return ""
	}
	u, err := url.Parse(c.FeedURL)
	if err != nil {
		return ""
	}
	for _, ck := range c.HTTP.Jar.Cookies(u) {
		if ck.Name == ServerIDCookieName {
			return ck.Value
		}
	}
	return ""
}

// PlantServerID injects a persisted server_id into the cookie jar so the
// resumed session is sticky to the same backend, mirroring the source's
// `session.cookie_jar.update_cookies` call on resume.
func (c *FeedClient) PlantServerID(serverID string) {
	if serverID == "" || c.HTTP.Jar == nil {
		return
	}
	u, err := url.Parse(c.FeedURL)
	if err != nil {
		return
	}
	c.HTTP.Jar.SetCookies(u, []*http.Cookie{{Name: ServerIDCookieName, Value: serverID}})
}

// Get issues one GET request with the given params and classifies the
// response into a FeedResult, always closing the body (it is read only for
// 200 and unexpected statuses).
func (c *FeedClient) Get(ctx context.Context, params FeedParams) FeedResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.FeedURL, nil)
	if err != nil {
		return FeedResult{Kind: ResultTransientNet, Err: err}
	}
	q := req.URL.Query()
	for k, v := range params.Values() {
		q.Set(k, v)
	}
	req.URL.RawQuery = q.Encode()
	c.applyHeaders(req)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return FeedResult{Kind: ResultTransientNet, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return FeedResult{Kind: ResultTransientNet, Err: err}
		}
		var wire struct {
			Data     []Item `json:"data"`
			NextPage struct {
				Offset json.Number `json:"offset"`
			} `json:"next_page"`
			PrevPage struct {
				Offset json.Number `json:"offset"`
			} `json:"prev_page"`
		}
		if err := c.decode(body, &wire); err != nil {
			return FeedResult{Kind: ResultTransientNet, Err: err}
		}
		return FeedResult{
			Kind: ResultPage,
			Page: &Page{
				Data:       wire.Data,
				NextOffset: wire.NextPage.Offset.String(),
				PrevOffset: wire.PrevPage.Offset.String(),
			},
		}
	case http.StatusTooManyRequests:
		return FeedResult{Kind: ResultTooManyRequests, Status: resp.StatusCode}
	case http.StatusPreconditionFailed:
		return FeedResult{Kind: ResultPreconditionFailed, Status: resp.StatusCode}
	case http.StatusNotFound:
		return FeedResult{Kind: ResultOffsetInvalid, Status: resp.StatusCode}
	default:
		body, _ := io.ReadAll(resp.Body)
		return FeedResult{Kind: ResultUnexpected, Status: resp.StatusCode, Body: string(body)}
	}
}
