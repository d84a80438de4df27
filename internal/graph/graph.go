// Package graph assembles a schema, a store or federation, hooks and
// caches into a Graph that executes operation chains synchronously or as
// tracked jobs.
package graph

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
)

// Graph executes operations against one store or federation.
type Graph struct {
	id          string
	description string
	schema      func() *schema.Schema
	executor    *engine.Executor
	tracker     *jobs.Tracker
	logger      *logrus.Logger

	// jobSlots bounds concurrently running jobs; nil means unbounded.
	jobSlots chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	closeOnce sync.Once
	closers   []io.Closer
}

// GraphID returns the graph id.
func (g *Graph) GraphID() string { return g.id }

// Description returns the graph description.
func (g *Graph) Description() string { return g.description }

// Schema returns the current schema. For a federation it reflects the
// delegates currently federated.
func (g *Graph) Schema() *schema.Schema { return g.schema() }

// Registry returns the handler registry, for registering extra handlers.
func (g *Graph) Registry() *engine.Registry { return g.executor.Registry() }

// Execute runs chain for user.
func (g *Graph) Execute(ctx context.Context, chain *operation.Chain, user engine.User) (any, error) {
	return g.Run(ctx, chain, engine.NewRequest(user))
}

// ExecuteOperation runs a single operation for user.
func (g *Graph) ExecuteOperation(ctx context.Context, op operation.Operation, user engine.User) (any, error) {
	return g.Run(ctx, op, engine.NewRequest(user))
}

// Run executes op with an existing request, so callers can inspect the
// request's recorded failures afterwards. Graph satisfies
// federated.Delegate through Run.
func (g *Graph) Run(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
	if err := g.ctx.Err(); err != nil {
		return nil, errors.ValidationErrorf("graph %s is closed", g.id).WithContext("graph_id", g.id)
	}
	return g.executor.Execute(ctx, op, req)
}

// ExecuteJob starts op in the background and returns its RUNNING job
// detail. The job outlives ctx; it ends with the graph.
func (g *Graph) ExecuteJob(ctx context.Context, op operation.Operation, user engine.User) (jobs.JobDetail, error) {
	if err := g.canRunJobs(op); err != nil {
		return jobs.JobDetail{}, err
	}
	d, err := g.tracker.Start(ctx, g.newJob(op, user, ""))
	if err != nil {
		return d, err
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runJob(d, op, user)
	}()
	return d, nil
}

// ScheduleJob records a SCHEDULED_PARENT job and runs op after
// repeat.InitialDelay and then every repeat.Period, each run as a child
// job, until the parent is cancelled with CancelScheduledJob or the graph
// is closed. Runs never overlap.
func (g *Graph) ScheduleJob(ctx context.Context, op operation.Operation, user engine.User, repeat jobs.Repeat) (jobs.JobDetail, error) {
	if err := g.canRunJobs(op); err != nil {
		return jobs.JobDetail{}, err
	}
	if repeat.Period <= 0 || repeat.InitialDelay < 0 {
		return jobs.JobDetail{}, errors.ValidationErrorf("repeat period must be positive and initial delay not negative").
			WithContext("period", repeat.Period)
	}
	parent := g.newJob(op, user, "")
	parent.Status = jobs.StatusScheduledParent
	parent.Repeat = &repeat
	parent, err := g.tracker.Start(ctx, parent)
	if err != nil {
		return parent, err
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.schedule(parent, op, user)
	}()
	return parent, nil
}

func (g *Graph) canRunJobs(op operation.Operation) error {
	if op == nil {
		return errors.ValidationErrorf("no operation to execute")
	}
	if g.tracker == nil {
		return errors.ConfigErrorf("graph %s does not track jobs", g.id).WithContext("graph_id", g.id)
	}
	if err := g.ctx.Err(); err != nil {
		return errors.ValidationErrorf("graph %s is closed", g.id).WithContext("graph_id", g.id)
	}
	return nil
}

func (g *Graph) newJob(op operation.Operation, user engine.User, parentID string) jobs.JobDetail {
	d := jobs.JobDetail{JobID: jobs.NewJobID(), ParentJobID: parentID, User: user.ID}
	if data, err := operation.Encode(op); err == nil {
		d.Chain = string(data)
	} else {
		g.logger.WithError(err).WithField("operation", op.Class()).Debug("Job chain not encodable")
	}
	return d
}

func (g *Graph) schedule(parent jobs.JobDetail, op operation.Operation, user engine.User) {
	log := g.logger.WithField("job_id", parent.JobID)
	timer := time.NewTimer(parent.Repeat.InitialDelay)
	defer timer.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-timer.C:
		}
		current, err := g.tracker.Get(g.ctx, parent.JobID)
		if err != nil {
			log.WithError(err).Warn("Scheduled job lookup failed, stopping schedule")
			return
		}
		if current.Status != jobs.StatusScheduledParent {
			log.WithField("status", current.Status).Info("Scheduled job stopped")
			return
		}
		child, err := g.tracker.Start(g.ctx, g.newJob(op, user, parent.JobID))
		if err != nil {
			log.WithError(err).Warn("Failed to record scheduled run")
		} else {
			g.runJob(child, op, user)
		}
		timer.Reset(parent.Repeat.Period)
	}
}

func (g *Graph) runJob(d jobs.JobDetail, op operation.Operation, user engine.User) {
	if g.jobSlots != nil {
		select {
		case g.jobSlots <- struct{}{}:
			defer func() { <-g.jobSlots }()
		case <-g.ctx.Done():
			g.finishJob(d.JobID, jobs.StatusFailed, "graph closed before the job started")
			return
		}
	}

	start := time.Now()
	_, err := g.executor.Execute(g.ctx, op, &engine.Request{User: user, JobID: d.JobID})
	fields := logrus.Fields{"job_id": d.JobID, "duration": time.Since(start)}
	if err != nil {
		g.logger.WithFields(fields).WithError(err).Warn("Job failed")
		g.finishJob(d.JobID, jobs.StatusFailed, err.Error())
		return
	}
	g.logger.WithFields(fields).Debug("Job finished")
	g.finishJob(d.JobID, jobs.StatusFinished, "")
}

func (g *Graph) finishJob(jobID string, status jobs.Status, description string) {
	// The graph context may already be cancelled; the record must still land.
	if _, err := g.tracker.Finish(context.Background(), jobID, status, description); err != nil {
		g.logger.WithError(err).WithField("job_id", jobID).Error("Failed to record job outcome")
	}
}

// Close stops scheduled jobs, cancels running ones, waits for them and
// releases the store and caches.
func (g *Graph) Close() error {
	var first error
	g.closeOnce.Do(func() {
		g.cancel()
		g.wg.Wait()
		for i := len(g.closers) - 1; i >= 0; i-- {
			if err := g.closers[i].Close(); err != nil && first == nil {
				first = err
			}
		}
		g.logger.WithField("graph_id", g.id).Debug("Graph closed")
	})
	return first
}
