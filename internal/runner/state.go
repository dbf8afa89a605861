package runner

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/looplab/fsm"
)

// Status is the lifecycle state of one task within a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const (
	eventStart   = "start"
	eventSucceed = "succeed"
	eventFail    = "fail"
)

// newTaskFSM tracks one task. A failed task may start again; a succeeded one
// is terminal for the run.
func newTaskFSM(runID, task string, logh *log.Helper) *fsm.FSM {
	return fsm.NewFSM(
		string(StatusPending),
		fsm.Events{
			{Name: eventStart, Src: []string{string(StatusPending), string(StatusFailed)}, Dst: string(StatusRunning)},
			{Name: eventSucceed, Src: []string{string(StatusRunning)}, Dst: string(StatusSucceeded)},
			{Name: eventFail, Src: []string{string(StatusRunning)}, Dst: string(StatusFailed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logh.Debugf("run %s task %s: %s -> %s", runID, task, e.Src, e.Dst)
			},
		},
	)
}

func transition(ctx context.Context, f *fsm.FSM, event string) Status {
	// Transitions are driven only by the owning goroutine in a valid order.
	_ = f.Event(ctx, event)
	return Status(f.Current())
}
