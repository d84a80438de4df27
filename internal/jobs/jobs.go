// Package jobs records the lifecycle of asynchronously executed operation
// chains.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/sirupsen/logrus"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusRunning         Status = "RUNNING"
	StatusFinished        Status = "FINISHED"
	StatusFailed          Status = "FAILED"
	StatusScheduledParent Status = "SCHEDULED_PARENT"
	StatusCancelled       Status = "CANCELLED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// Repeat schedules a chain to run periodically.
type Repeat struct {
	InitialDelay time.Duration `json:"initialDelay"`
	Period       time.Duration `json:"repeatPeriod"`
}

// JobDetail describes one job run, or the parent record of a repeating job.
type JobDetail struct {
	JobID       string     `json:"jobId"`
	ParentJobID string     `json:"parentJobId,omitempty"`
	Status      Status     `json:"status"`
	User        string     `json:"userId,omitempty"`
	Chain       string     `json:"opChain,omitempty"`
	Description string     `json:"description,omitempty"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Repeat      *Repeat    `json:"repeat,omitempty"`
}

// NewJobID returns a fresh job id.
func NewJobID() string {
	return uuid.NewString()
}

// Tracker stores job details in a cache. Details are never deleted.
type Tracker struct {
	cache  cache.Cache[JobDetail]
	logger *logrus.Logger
	now    func() time.Time
}

// NewTracker returns a tracker over c.
func NewTracker(c cache.Cache[JobDetail], logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tracker{cache: c, logger: logger, now: time.Now}
}

// Start records a new RUNNING job.
func (t *Tracker) Start(ctx context.Context, d JobDetail) (JobDetail, error) {
	if d.JobID == "" {
		d.JobID = NewJobID()
	}
	if d.Status == "" {
		d.Status = StatusRunning
	}
	if d.StartTime.IsZero() {
		d.StartTime = t.now()
	}
	if err := t.cache.Add(ctx, d.JobID, d, false); err != nil {
		return d, err
	}
	t.logger.WithFields(logrus.Fields{
		"job_id": d.JobID,
		"status": d.Status,
		"user":   d.User,
	}).Debug("Job started")
	return d, nil
}

// Finish moves a job to a terminal status.
func (t *Tracker) Finish(ctx context.Context, jobID string, status Status, description string) (JobDetail, error) {
	if !status.Terminal() {
		return JobDetail{}, errors.ValidationErrorf("status %s is not terminal", status).WithContext("job_id", jobID)
	}
	return t.update(ctx, jobID, func(d *JobDetail) error {
		if d.Status.Terminal() {
			return errors.ValidationErrorf("job %s is already %s", jobID, d.Status).WithContext("job_id", jobID)
		}
		end := t.now()
		d.Status = status
		d.EndTime = &end
		if description != "" {
			d.Description = description
		}
		return nil
	})
}

// Cancel marks a scheduled parent job as cancelled so no further runs are
// started.
func (t *Tracker) Cancel(ctx context.Context, jobID string) (JobDetail, error) {
	return t.update(ctx, jobID, func(d *JobDetail) error {
		if d.Status != StatusScheduledParent {
			return errors.ValidationErrorf("job %s is %s, only scheduled jobs can be cancelled", jobID, d.Status).
				WithContext("job_id", jobID)
		}
		end := t.now()
		d.Status = StatusCancelled
		d.EndTime = &end
		return nil
	})
}

func (t *Tracker) update(ctx context.Context, jobID string, fn func(*JobDetail) error) (JobDetail, error) {
	d, err := t.Get(ctx, jobID)
	if err != nil {
		return d, err
	}
	if err := fn(&d); err != nil {
		return d, err
	}
	if err := t.cache.Add(ctx, jobID, d, true); err != nil {
		return d, err
	}
	t.logger.WithFields(logrus.Fields{"job_id": jobID, "status": d.Status}).Debug("Job updated")
	return d, nil
}

// Get returns one job.
func (t *Tracker) Get(ctx context.Context, jobID string) (JobDetail, error) {
	return t.cache.Get(ctx, jobID)
}

// GetAll returns every job, or only user's jobs when user is not empty.
func (t *Tracker) GetAll(ctx context.Context, user string) ([]JobDetail, error) {
	all, err := t.cache.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if user == "" {
		return all, nil
	}
	out := all[:0:0]
	for _, d := range all {
		if d.User == user {
			out = append(out, d)
		}
	}
	return out, nil
}
