// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package qos

import (
	"context"
	"database/sql"
	"time"

	"grimm.is/flowshape/internal/errors"
)

// Store persists policies for the rule-management collaborator.
type Store interface {
	List(ctx context.Context) ([]Policy, error)
	Upsert(ctx context.Context, p Policy) error
	Delete(ctx context.Context, protocol string) (bool, error)
}

// SQLiteStore keeps policies in the qos_rules_history table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the schema on db if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to init qos rule schema")
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS qos_rules_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		protocol TEXT NOT NULL,
		last_applied INTEGER NOT NULL, -- Unix nanoseconds
		priority INTEGER NOT NULL,
		bandwidth_limit INTEGER,
		effectiveness REAL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_qos_rules_protocol ON qos_rules_history(protocol);
	`
	_, err := s.db.Exec(schema)
	return err
}

// List returns the newest row of every protocol, highest priority first.
func (s *SQLiteStore) List(ctx context.Context) ([]Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT protocol, priority, bandwidth_limit, last_applied
		FROM qos_rules_history h
		WHERE id = (SELECT MAX(id) FROM qos_rules_history WHERE protocol = h.protocol)
		ORDER BY priority DESC, protocol ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to list qos rules")
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var (
			p       Policy
			limit   sql.NullInt64
			applied int64
		)
		if err := rows.Scan(&p.Protocol, &p.Priority, &limit, &applied); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to scan qos rule")
		}
		if limit.Valid {
			p.BandwidthLimit = Limit(limit.Int64)
		}
		p.LastApplied = time.Unix(0, applied)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Upsert updates the newest row for the protocol, inserting one if none exists.
func (s *SQLiteStore) Upsert(ctx context.Context, p Policy) error {
	applied := p.LastApplied
	if applied.IsZero() {
		applied = time.Now()
	}
	var limit sql.NullInt64
	if p.BandwidthLimit != nil {
		limit = sql.NullInt64{Int64: *p.BandwidthLimit, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to begin qos rule upsert")
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE qos_rules_history
		SET priority = ?, bandwidth_limit = ?, last_applied = ?
		WHERE id = (SELECT MAX(id) FROM qos_rules_history WHERE protocol = ?)
	`, p.Priority, limit, applied.UnixNano(), p.Protocol)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.KindInternal, "failed to update qos rule")
	}

	if n, _ := res.RowsAffected(); n == 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO qos_rules_history (protocol, last_applied, priority, bandwidth_limit, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, p.Protocol, applied.UnixNano(), p.Priority, limit, time.Now().UnixNano())
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.KindInternal, "failed to insert qos rule")
		}
	}
	return tx.Commit()
}

// Delete removes every row for protocol. It reports whether anything was removed.
func (s *SQLiteStore) Delete(ctx context.Context, protocol string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM qos_rules_history WHERE protocol = ?`, protocol)
	if err != nil {
		return false, errors.Wrap(err, errors.KindInternal, "failed to delete qos rule")
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
