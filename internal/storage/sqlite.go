package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// NewSQLiteJobStore opens (creating if needed) a SQLite job store, for
// single-process deployments.
func NewSQLiteJobStore(path string, logger *logrus.Logger) (*JobStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if path != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}
	if path == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode = WAL")
	}

	store := &JobStore{db: db, logger: logger}
	if err := initSQLiteSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func initSQLiteSchema(db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS job_details (
		job_id TEXT PRIMARY KEY,
		parent_job_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		user_id TEXT NOT NULL DEFAULT '',
		op_chain TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		start_time DATETIME NOT NULL,
		end_time DATETIME,
		repeat_initial_delay_ms INTEGER,
		repeat_period_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_job_details_user ON job_details(user_id);
	CREATE INDEX IF NOT EXISTS idx_job_details_parent ON job_details(parent_job_id);
	`
	_, err := db.Exec(schema)
	return err
}
