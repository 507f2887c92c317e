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

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres schema (reference):
//
// CREATE TABLE IF NOT EXISTS crawler_state (
//   id TEXT PRIMARY KEY,
//   forward_offset TEXT,
//   backward_offset TEXT,
//   server_id TEXT,
//   latest_date_modified TEXT,
//   earliest_date_modified TEXT
// );

// PostgresStore is the relational Position Store backend. It keeps a single
// persistent connection (pool size 1), matching the spec's "the backend
// opens a single persistent connection; on connection closed it reconnects
// and retries".
type PostgresStore struct {
	dsn     string
	table   string
	stateID string
	retry   time.Duration

	db *sql.DB
}

// NewPostgresStore opens the single persistent connection and returns the
// backend, or an error if the initial connection cannot be established.
func NewPostgresStore(ctx context.Context, dsn, table, stateID string, retryInterval time.Duration) (*PostgresStore, error) {
	s := &PostgresStore{dsn: dsn, table: table, stateID: stateID, retry: retryInterval}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) connect(ctx context.Context) error {
	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}
	s.db = db
	return nil
}

// isConnClosed reports whether err looks like a dropped-connection error
// that warrants a reconnect, rather than an application error (bad SQL,
// constraint violation, etc).
func isConnClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "closed") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") || strings.Contains(msg, "EOF")
}

// withRetry runs op against the current connection, reconnecting and
// retrying forever (at DB_ERROR_INTERVAL) on connection-closed errors.
// Application errors are returned immediately.
func (s *PostgresStore) withRetry(ctx context.Context, op func(*sql.DB) error) error {
	for {
		err := op(s.db)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnClosed(err) {
			return err
		}
		t := time.NewTimer(s.retry)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
		t.Stop()
		if cerr := s.connect(ctx); cerr != nil {
			continue
		}
	}
}

// Get returns the current record, or Exists=false if no row exists.
func (s *PostgresStore) Get(ctx context.Context) (*Record, error) {
	var rec Record
	err := s.withRetry(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, fmt.Sprintf(
			`SELECT forward_offset, backward_offset, server_id, latest_date_modified, earliest_date_modified
			   FROM %s WHERE id = $1`, s.table), s.stateID)
		var fwd, bwd, sid, latest, earliest sql.NullString
		if err := row.Scan(&fwd, &bwd, &sid, &latest, &earliest); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				rec = Record{Exists: false}
				return nil
			}
			return err
		}
		rec = Record{
			Exists:                true,
			ForwardOffset:         fwd.String,
			BackwardOffset:        bwd.String,
			ServerID:              sid.String,
			LatestDateModified:    latest.String,
			EarliestDateModified:  earliest.String,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save performs UPDATE then INSERT-if-zero-rows inside one transaction.
func (s *PostgresStore) Save(ctx context.Context, patch Patch) error {
	cols := map[string]string{}
	if patch.ForwardOffset != nil {
		cols["forward_offset"] = *patch.ForwardOffset
	}
	if patch.BackwardOffset != nil {
		cols["backward_offset"] = *patch.BackwardOffset
	}
	if patch.ServerID != nil {
		cols["server_id"] = *patch.ServerID
	}
	if patch.LatestDateModified != nil {
		cols["latest_date_modified"] = *patch.LatestDateModified
	}
	if patch.EarliestDateModified != nil {
		cols["earliest_date_modified"] = *patch.EarliestDateModified
	}
	if len(cols) == 0 {
		return nil
	}

	return s.withRetry(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		setParts := make([]string, 0, len(cols))
		args := make([]any, 0, len(cols)+1)
		i := 1
		for col, val := range cols {
			setParts = append(setParts, fmt.Sprintf("%s = $%d", col, i))
			args = append(args, val)
			i++
		}
		args = append(args, s.stateID)
		updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", s.table, strings.Join(setParts, ", "), i)
		res, err := tx.ExecContext(ctx, updateSQL, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			insCols := []string{"id"}
			insPlaceholders := []string{"$1"}
			insArgs := []any{s.stateID}
			j := 2
			for col, val := range cols {
				insCols = append(insCols, col)
				insPlaceholders = append(insPlaceholders, fmt.Sprintf("$%d", j))
				insArgs = append(insArgs, val)
				j++
			}
			insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.table,
				strings.Join(insCols, ", "), strings.Join(insPlaceholders, ", "))
			if _, err := tx.ExecContext(ctx, insertSQL, insArgs...); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// Drop deletes the row entirely, per the relational backend's spec.
func (s *PostgresStore) Drop(ctx context.Context) error {
	return s.withRetry(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table), s.stateID)
		return err
	})
}

// Lock is not supported by the relational backend.
func (s *PostgresStore) Lock(ctx context.Context) error { return ErrNotSupported }

// Unlock is not supported by the relational backend.
func (s *PostgresStore) Unlock(ctx context.Context) error { return ErrNotSupported }

// Close tears down the persistent connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
