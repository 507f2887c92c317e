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

// Package logctx carries a structured zerolog.Logger through a
// context.Context, the idiomatic Go replacement for the original source's
// ContextVar-based log_context mechanism (see SPEC_FULL.md's Supplemented
// Features).
package logctx

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// Base is the process-wide root logger. Configure it once at startup.
var Base = zerolog.New(os.Stderr).With().Timestamp().Logger()

// With returns a context carrying logger enriched with the given fields,
// mirroring update_log_context/log_context in the original source.
func With(ctx context.Context, fields map[string]string) context.Context {
	l := From(ctx).With()
	for k, v := range fields {
		l = l.Str(k, v)
	}
	return context.WithValue(ctx, ctxKey{}, l.Logger())
}

// From extracts the contextual logger, falling back to Base.
func From(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return Base
}

// MessageID-tagged convenience helpers, matching the MESSAGE_ID labels named
// throughout spec.md §7.
func Info(ctx context.Context, messageID, msg string) {
	From(ctx).Info().Str("message_id", messageID).Msg(msg)
}

func Warn(ctx context.Context, messageID, msg string) {
	From(ctx).Warn().Str("message_id", messageID).Msg(msg)
}

func Error(ctx context.Context, messageID, msg string, err error) {
	ev := From(ctx).Error().Str("message_id", messageID)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

func Critical(ctx context.Context, messageID, msg string) {
	From(ctx).Error().Str("message_id", messageID).Bool("critical", true).Msg(msg)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// AccessLog wraps next with request logging, the zerolog replacement for the
// original source's aiohttp AccessLogger (remote addr, method, path, status,
// duration per request).
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		remote := r.Header.Get("X-Forwarded-For")
		if remote == "" {
			remote = r.RemoteAddr
		}
		Base.Info().
			Str("remote", remote).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("access")
	})
}
