// Package storage keeps job details in SQL databases through sqlx.
package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/sirupsen/logrus"
)

// JobStore is a cache.Cache of job details over one SQL table.
type JobStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

var _ cache.Cache[jobs.JobDetail] = (*JobStore)(nil)

type jobRow struct {
	JobID        string        `db:"job_id"`
	ParentJobID  string        `db:"parent_job_id"`
	Status       string        `db:"status"`
	UserID       string        `db:"user_id"`
	OpChain      string        `db:"op_chain"`
	Description  string        `db:"description"`
	StartTime    time.Time     `db:"start_time"`
	EndTime      sql.NullTime  `db:"end_time"`
	InitialDelay sql.NullInt64 `db:"repeat_initial_delay_ms"`
	Period       sql.NullInt64 `db:"repeat_period_ms"`
}

func toRow(d jobs.JobDetail) jobRow {
	r := jobRow{
		JobID:       d.JobID,
		ParentJobID: d.ParentJobID,
		Status:      string(d.Status),
		UserID:      d.User,
		OpChain:     d.Chain,
		Description: d.Description,
		StartTime:   d.StartTime.UTC(),
	}
	if d.EndTime != nil {
		r.EndTime = sql.NullTime{Time: d.EndTime.UTC(), Valid: true}
	}
	if d.Repeat != nil {
		r.InitialDelay = sql.NullInt64{Int64: d.Repeat.InitialDelay.Milliseconds(), Valid: true}
		r.Period = sql.NullInt64{Int64: d.Repeat.Period.Milliseconds(), Valid: true}
	}
	return r
}

func (r jobRow) detail() jobs.JobDetail {
	d := jobs.JobDetail{
		JobID:       r.JobID,
		ParentJobID: r.ParentJobID,
		Status:      jobs.Status(r.Status),
		User:        r.UserID,
		Chain:       r.OpChain,
		Description: r.Description,
		StartTime:   r.StartTime.UTC(),
	}
	if r.EndTime.Valid {
		end := r.EndTime.Time.UTC()
		d.EndTime = &end
	}
	if r.Period.Valid {
		d.Repeat = &jobs.Repeat{
			InitialDelay: time.Duration(r.InitialDelay.Int64) * time.Millisecond,
			Period:       time.Duration(r.Period.Int64) * time.Millisecond,
		}
	}
	return d
}

const jobColumns = `job_id, parent_job_id, status, user_id, op_chain, description,
	start_time, end_time, repeat_initial_delay_ms, repeat_period_ms`

const insertJob = `INSERT INTO job_details (` + jobColumns + `)
	VALUES (:job_id, :parent_job_id, :status, :user_id, :op_chain, :description,
		:start_time, :end_time, :repeat_initial_delay_ms, :repeat_period_ms)`

// Close closes the database connection
func (s *JobStore) Close() error {
	return s.db.Close()
}

func (s *JobStore) Add(ctx context.Context, key string, d jobs.JobDetail, overwrite bool) error {
	d.JobID = key
	query := insertJob + ` ON CONFLICT (job_id) DO NOTHING`
	if overwrite {
		query = insertJob + ` ON CONFLICT (job_id) DO UPDATE SET
			parent_job_id = excluded.parent_job_id,
			status = excluded.status,
			user_id = excluded.user_id,
			op_chain = excluded.op_chain,
			description = excluded.description,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			repeat_initial_delay_ms = excluded.repeat_initial_delay_ms,
			repeat_period_ms = excluded.repeat_period_ms`
	}
	res, err := s.db.NamedExecContext(ctx, query, toRow(d))
	if err != nil {
		return errors.CacheError(err, "add", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.CacheError(err, "add", key)
	}
	if n == 0 {
		return cache.AlreadyExists(key)
	}
	s.logger.WithFields(logrus.Fields{"job_id": key, "status": d.Status}).Debug("Saved job detail")
	return nil
}

func (s *JobStore) Get(ctx context.Context, key string) (jobs.JobDetail, error) {
	var row jobRow
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM job_details WHERE job_id = ?`)
	if err := s.db.GetContext(ctx, &row, query, key); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return jobs.JobDetail{}, cache.NotFound(key)
		}
		return jobs.JobDetail{}, errors.CacheError(err, "get", key)
	}
	return row.detail(), nil
}

func (s *JobStore) GetAll(ctx context.Context) ([]jobs.JobDetail, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+jobColumns+` FROM job_details ORDER BY job_id`); err != nil {
		return nil, errors.CacheError(err, "get all", "")
	}
	out := make([]jobs.JobDetail, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.detail())
	}
	return out, nil
}

func (s *JobStore) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM job_details WHERE job_id = ?`), key); err != nil {
		return errors.CacheError(err, "remove", key)
	}
	return nil
}
