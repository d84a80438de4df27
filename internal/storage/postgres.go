package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// NewPostgresJobStore connects to PostgreSQL and creates the job table if
// missing, for job tracking shared between processes.
func NewPostgresJobStore(ctx context.Context, dsn string, logger *logrus.Logger) (*JobStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS job_details (
			job_id TEXT PRIMARY KEY,
			parent_job_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			op_chain TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			start_time TIMESTAMPTZ NOT NULL,
			end_time TIMESTAMPTZ,
			repeat_initial_delay_ms BIGINT,
			repeat_period_ms BIGINT
		);
		CREATE INDEX IF NOT EXISTS idx_job_details_user ON job_details(user_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.WithField("driver", "pgx").Info("Connected job store to PostgreSQL")
	return &JobStore{db: db, logger: logger}, nil
}
