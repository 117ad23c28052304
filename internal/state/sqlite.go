// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package state opens the SQLite database shared by the rule history and
// traffic analytics stores.
package state

import (
	"database/sql"
	"strings"

	"grimm.is/flowshape/internal/errors"

	_ "modernc.org/sqlite"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// Open opens (or creates) the database at path. The pool is pinned to a
// single connection: SQLite serializes writers anyway and an in-memory
// database exists only on the connection that created it.
func Open(path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New(errors.KindValidation, "database path is empty")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, errors.KindUnavailable, "failed to open database")
	}
	return db, nil
}

func dsn(path string) string {
	if path == MemoryPath {
		return path
	}
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
