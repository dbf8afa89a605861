// Package runner executes a task graph for one logical run: tasks start once
// every upstream succeeded, independent tasks run concurrently, and failed
// tasks are retried according to a Policy.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"

	"github.com/vmanchik/sparkify-pipeline/internal/dag"
	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// ErrUpstreamFailed marks a run that stopped because a dependency failed.
var ErrUpstreamFailed = errors.New("upstream task failed")

type Policy struct {
	// Retries is the number of re-invocations after the first failure.
	Retries              int
	Delay                time.Duration
	MaxParallel          int
	RetryQualityFailures bool
}

func DefaultPolicy() Policy {
	return PolicyFrom(models.DefaultRetryPolicy(), 4)
}

func PolicyFrom(r models.RetryPolicy, maxParallel int) Policy {
	return Policy{
		Retries:              r.Retries,
		Delay:                r.Delay,
		MaxParallel:          maxParallel,
		RetryQualityFailures: r.RetryQualityFailures,
	}
}

type TaskResult struct {
	Task       string
	Status     Status
	Attempts   int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

type RunResult struct {
	RunID       string
	LogicalDate time.Time
	Status      Status
	// Tasks is in topological order.
	Tasks      []TaskResult
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *RunResult) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Task == name {
			return t, true
		}
	}
	return TaskResult{}, false
}

func (r *RunResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

type Runner struct {
	env    etl.Env
	policy Policy
	log    *log.Helper
	sleep  func(ctx context.Context, d time.Duration) error
}

func New(env etl.Env, policy Policy) *Runner {
	if policy.MaxParallel <= 0 {
		policy.MaxParallel = 1
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	return &Runner{
		env:    env,
		policy: policy,
		log:    log.NewHelper(log.With(logger.Logger(), "component", "runner")),
		sleep:  sleepContext,
	}
}

type taskState struct {
	done   chan struct{}
	result TaskResult
}

// Run executes g to completion. Tasks downstream of a failure are never
// invoked and stay pending. The returned error is the first failure in
// topological order, or the context error if the run was cancelled.
func (r *Runner) Run(ctx context.Context, g *dag.Graph) (*RunResult, error) {
	run := g.Run()
	order := g.TopologicalOrder()
	res := &RunResult{RunID: run.ID, LogicalDate: run.LogicalDate, StartedAt: time.Now().UTC()}
	r.log.Infof("run %s started for partition %s (%d tasks)", run.ID, run.LogicalDate.Format(time.RFC3339), len(order))

	states := make(map[string]*taskState, len(order))
	for _, name := range order {
		states[name] = &taskState{done: make(chan struct{}), result: TaskResult{Task: name, Status: StatusPending}}
	}

	var eg errgroup.Group
	eg.SetLimit(r.policy.MaxParallel)
	// Launching in topological order guarantees every upstream already holds
	// or has released a slot, so waiting inside a slot cannot deadlock.
	for _, name := range order {
		task, _ := g.Task(name)
		st := states[name]
		eg.Go(func() error {
			defer close(st.done)
			if !r.awaitUpstream(ctx, task, states) {
				return nil
			}
			st.result = r.execute(ctx, run, task)
			return nil
		})
	}
	_ = eg.Wait()

	res.FinishedAt = time.Now().UTC()
	res.Status = StatusSucceeded
	for _, name := range order {
		tr := states[name].result
		res.Tasks = append(res.Tasks, tr)
		if tr.Status != StatusSucceeded {
			res.Status = StatusFailed
		}
		if tr.Status == StatusFailed && res.Err == nil {
			res.Err = fmt.Errorf("task %s: %w", tr.Task, tr.Err)
		}
	}
	if res.Err == nil && res.Status == StatusFailed {
		if err := ctx.Err(); err != nil {
			res.Err = err
		} else {
			res.Err = ErrUpstreamFailed
		}
	}

	if res.Err != nil {
		r.log.Errorf("run %s failed after %s: %v", run.ID, res.Duration(), res.Err)
	} else {
		r.log.Infof("run %s succeeded in %s", run.ID, res.Duration())
	}
	return res, res.Err
}

func (r *Runner) awaitUpstream(ctx context.Context, task dag.Task, states map[string]*taskState) bool {
	for _, up := range task.Upstream {
		st := states[up]
		select {
		case <-st.done:
		case <-ctx.Done():
			return false
		}
		if st.result.Status != StatusSucceeded {
			r.log.Warnf("task %s not started: upstream %s is %s", task.Name, up, st.result.Status)
			return false
		}
	}
	return ctx.Err() == nil
}

func (r *Runner) execute(ctx context.Context, run etl.Run, task dag.Task) TaskResult {
	machine := newTaskFSM(run.ID, task.Name, r.log)
	tr := TaskResult{Task: task.Name, Status: StatusPending, StartedAt: time.Now().UTC()}

	for {
		tr.Attempts++
		tr.Status = transition(ctx, machine, eventStart)
		err := r.invoke(ctx, run, task)
		if err == nil {
			tr.Status = transition(ctx, machine, eventSucceed)
			tr.Err = nil
			break
		}

		tr.Status = transition(ctx, machine, eventFail)
		tr.Err = err
		r.observe(ctx, etl.Event{RunID: run.ID, Task: task.Name, Stage: etl.StageFailed, Table: task.Table, Attempt: tr.Attempts, Err: err})

		if tr.Attempts > r.policy.Retries || !perrors.Retryable(err, r.policy.RetryQualityFailures) {
			break
		}
		r.observe(ctx, etl.Event{RunID: run.ID, Task: task.Name, Stage: etl.StageRetrying, Table: task.Table, Attempt: tr.Attempts + 1})
		if r.sleep(ctx, r.policy.Delay) != nil {
			break
		}
	}

	tr.FinishedAt = time.Now().UTC()
	return tr
}

func (r *Runner) invoke(ctx context.Context, run etl.Run, task dag.Task) (err error) {
	if task.Operator == nil {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", task.Name, p)
		}
	}()
	return task.Operator.Execute(ctx, r.env, run)
}

func (r *Runner) observe(ctx context.Context, e etl.Event) {
	e.Time = time.Now().UTC()
	if r.env.Observer != nil {
		r.env.Observer.Observe(ctx, e)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
