package handler

import (
	"context"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/sirupsen/logrus"
)

func registerJobs(reg *engine.Registry, tracker *jobs.Tracker) {
	reg.RegisterFunc("GetJobDetails", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		id := op.(*operation.GetJobDetails).JobID
		if id == "" {
			id = req.JobID
		}
		d, err := tracker.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkOwner("job", id, d.User, req.User); err != nil {
			return nil, err
		}
		return []jobs.JobDetail{d}, nil
	})
	reg.RegisterFunc("GetAllJobDetails", func(ctx context.Context, _ operation.Operation, req *engine.Request) (any, error) {
		return tracker.GetAll(ctx, req.User.ID)
	})
	reg.RegisterFunc("CancelScheduledJob", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		id := op.(*operation.CancelScheduledJob).JobID
		d, err := tracker.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := checkOwner("job", id, d.User, req.User); err != nil {
			return nil, err
		}
		_, err = tracker.Cancel(ctx, id)
		return nil, err
	})
}

// checkOwner rejects access to a cached definition or job by anyone but its
// creator. Entries without a creator are open.
func checkOwner(kind, name, creator string, user engine.User) error {
	if creator == "" || creator == user.ID {
		return nil
	}
	return errors.ValidationErrorf("user %s may not modify %s %s created by %s", user.ID, kind, name, creator).
		WithContext("name", name)
}

func registerNamedViews(reg *engine.Registry, c cache.Cache[view.NamedViewDetail], logger *logrus.Logger) {
	reg.RegisterFunc("AddNamedView", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		o := op.(*operation.AddNamedView)
		d, err := o.Detail(req.User.ID)
		if err != nil {
			return nil, err
		}
		for _, ref := range d.MergedNamedViews {
			if _, err := c.Get(ctx, ref); errors.Is(err, cache.ErrNotFound) {
				return nil, errors.NamedViewNotFound(ref)
			} else if err != nil {
				return nil, err
			}
		}
		if o.Overwrite {
			if existing, err := c.Get(ctx, d.Name); err == nil {
				if err := checkOwner("named view", d.Name, existing.Creator, req.User); err != nil {
					return nil, err
				}
			}
		}
		if err := c.Add(ctx, d.Name, d, o.Overwrite); err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"named_view": d.Name, "user": req.User.ID}).Info("Named view added")
		return nil, nil
	})
	reg.RegisterFunc("GetAllNamedViews", func(ctx context.Context, _ operation.Operation, _ *engine.Request) (any, error) {
		return c.GetAll(ctx)
	})
	reg.RegisterFunc("DeleteNamedView", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		name := op.(*operation.DeleteNamedView).Name
		existing, err := c.Get(ctx, name)
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := checkOwner("named view", name, existing.Creator, req.User); err != nil {
			return nil, err
		}
		return nil, c.Remove(ctx, name)
	})
}

func registerNamedOperations(reg *engine.Registry, c cache.Cache[operation.NamedOperationDetail], logger *logrus.Logger) {
	reg.RegisterFunc("AddNamedOperation", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		o := op.(*operation.AddNamedOperation)
		d, err := o.Detail(req.User.ID)
		if err != nil {
			return nil, err
		}
		if len(d.Parameters) == 0 {
			chain, err := d.Instantiate(nil)
			if err != nil {
				return nil, err
			}
			if err := chain.Validate(); err != nil {
				return nil, err
			}
		}
		if o.Overwrite {
			if existing, err := c.Get(ctx, d.Name); err == nil {
				if err := checkOwner("named operation", d.Name, existing.Creator, req.User); err != nil {
					return nil, err
				}
			}
		}
		if err := c.Add(ctx, d.Name, d, o.Overwrite); err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"named_operation": d.Name, "user": req.User.ID}).Info("Named operation added")
		return nil, nil
	})
	reg.RegisterFunc("GetAllNamedOperations", func(ctx context.Context, _ operation.Operation, _ *engine.Request) (any, error) {
		return c.GetAll(ctx)
	})
	reg.RegisterFunc("DeleteNamedOperation", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		name := op.(*operation.DeleteNamedOperation).Name
		existing, err := c.Get(ctx, name)
		if errors.Is(err, cache.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if err := checkOwner("named operation", name, existing.Creator, req.User); err != nil {
			return nil, err
		}
		return nil, c.Remove(ctx, name)
	})
	reg.RegisterFunc("NamedOperation", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		chain, err := Expand(ctx, c, op.(*operation.NamedOperation))
		if err != nil {
			return nil, err
		}
		if err := req.Executor().Validate(chain); err != nil {
			return nil, err
		}
		return req.Executor().RunChain(ctx, chain, req)
	})
}

// Expand instantiates the chain stored for a NamedOperation and gives it the
// operation's input.
func Expand(ctx context.Context, c cache.Cache[operation.NamedOperationDetail], op *operation.NamedOperation) (*operation.Chain, error) {
	d, err := c.Get(ctx, op.Name)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, errors.ValidationErrorf("named operation %s does not exist", op.Name).WithContext("named_operation", op.Name)
	}
	if err != nil {
		return nil, err
	}
	chain, err := d.Instantiate(op.Parameters)
	if err != nil {
		return nil, err
	}
	if in := op.GetInput(); in != nil && len(chain.Ops) > 0 {
		if first, ok := chain.Ops[0].(operation.Input); ok {
			if err := operation.BindInput(first, in); err != nil {
				return nil, err
			}
		}
	}
	return chain, nil
}
