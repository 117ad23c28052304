// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package analytics keeps a time-bucketed history of shaped traffic per
// protocol and source in SQLite.
package analytics

import (
	"context"
	"database/sql"
	"time"

	"grimm.is/flowshape/internal/errors"
)

// Summary is the traffic of one (bucket, protocol, source) triple.
type Summary struct {
	BucketTime time.Time `json:"bucket_time"`
	Protocol   string    `json:"protocol"`
	Source     string    `json:"src"`
	Bytes      int64     `json:"bytes"`
	Packets    int64     `json:"packets"`
	Throttled  int64     `json:"throttled"`
}

// BandwidthPoint is the byte total of one bucket.
type BandwidthPoint struct {
	Time  time.Time `json:"time"`
	Bytes int64     `json:"bytes"`
}

// Store persists summaries to the traffic_summaries table.
type Store struct {
	db *sql.DB
}

// NewStore creates the schema on db if needed.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "failed to init analytics schema")
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS traffic_summaries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bucket_time INTEGER NOT NULL, -- Unix timestamp
		proto TEXT NOT NULL,
		src TEXT NOT NULL,
		bytes INTEGER DEFAULT 0,
		packets INTEGER DEFAULT 0,
		throttled INTEGER DEFAULT 0,
		UNIQUE(bucket_time, proto, src)
	);
	CREATE INDEX IF NOT EXISTS idx_traffic_summaries_time ON traffic_summaries(bucket_time);
	CREATE INDEX IF NOT EXISTS idx_traffic_summaries_src ON traffic_summaries(src);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordSummaries adds a batch of summaries, merging into existing buckets.
func (s *Store) RecordSummaries(ctx context.Context, summaries []Summary) error {
	if len(summaries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.KindUnavailable, "failed to begin analytics flush")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO traffic_summaries (bucket_time, proto, src, bytes, packets, throttled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(bucket_time, proto, src) DO UPDATE SET
			bytes = bytes + excluded.bytes,
			packets = packets + excluded.packets,
			throttled = throttled + excluded.throttled
	`)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.KindInternal, "failed to prepare analytics upsert")
	}
	defer stmt.Close()

	for _, sum := range summaries {
		_, err := stmt.ExecContext(ctx,
			sum.BucketTime.Unix(),
			sum.Protocol,
			sum.Source,
			sum.Bytes,
			sum.Packets,
			sum.Throttled,
		)
		if err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.KindInternal, "failed to record summary")
		}
	}

	return tx.Commit()
}

// GetBandwidthUsage returns bytes per bucket in [from, to], optionally for
// one protocol.
func (s *Store) GetBandwidthUsage(ctx context.Context, protocol string, from, to time.Time) ([]BandwidthPoint, error) {
	query := `
		SELECT bucket_time, SUM(bytes)
		FROM traffic_summaries
		WHERE bucket_time >= ? AND bucket_time <= ?
	`
	args := []any{from.Unix(), to.Unix()}

	if protocol != "" {
		query += " AND proto = ?"
		args = append(args, protocol)
	}

	query += " GROUP BY bucket_time ORDER BY bucket_time ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to query bandwidth usage")
	}
	defer rows.Close()

	result := []BandwidthPoint{}
	for rows.Next() {
		var ts, b int64
		if err := rows.Scan(&ts, &b); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to scan bandwidth usage")
		}
		result = append(result, BandwidthPoint{Time: time.Unix(ts, 0), Bytes: b})
	}
	return result, rows.Err()
}

// GetTopTalkers returns the top sources by byte count in [from, to].
func (s *Store) GetTopTalkers(ctx context.Context, from, to time.Time, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT src, SUM(bytes), SUM(packets), SUM(throttled)
		FROM traffic_summaries
		WHERE bucket_time >= ? AND bucket_time <= ?
		GROUP BY src
		ORDER BY SUM(bytes) DESC, src ASC
		LIMIT ?
	`, from.Unix(), to.Unix(), limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to query top talkers")
	}
	defer rows.Close()

	result := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Source, &sum.Bytes, &sum.Packets, &sum.Throttled); err != nil {
			return nil, errors.Wrap(err, errors.KindInternal, "failed to scan top talker")
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

// Cleanup removes buckets older than before.
func (s *Store) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM traffic_summaries WHERE bucket_time < ?", before.Unix())
	if err != nil {
		return 0, errors.Wrap(err, errors.KindInternal, "failed to clean up analytics")
	}
	return result.RowsAffected()
}
