package etl

import (
	"context"
	"time"

	"github.com/vmanchik/sparkify-pipeline/pkg/logger"
)

// Stage is a lifecycle point at which an event is emitted.
type Stage string

const (
	StageStarted       Stage = "started"
	StageCleared       Stage = "cleared"
	StageCopied        Stage = "copied"
	StageLoaded        Stage = "loaded"
	StageQualityPassed Stage = "quality_passed"
	StageSucceeded     Stage = "succeeded"
	StageFailed        Stage = "failed"
	StageRetrying      Stage = "retrying"
)

// Event is a structured observability record.
type Event struct {
	RunID    string
	Task     string
	Stage    Stage
	Table    string
	Location string
	Rows     int64
	Attempt  int
	Err      error
	Time     time.Time
}

type Observer interface {
	Observe(ctx context.Context, e Event)
}

type ObserverFunc func(ctx context.Context, e Event)

func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// Observers fans an event out to every member.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, e)
		}
	}
}

// Discard drops every event.
var Discard Observer = ObserverFunc(func(context.Context, Event) {})

// LogObserver writes events through the process logger.
type LogObserver struct{}

func (LogObserver) Observe(_ context.Context, e Event) {
	kv := []interface{}{"run_id", e.RunID, "task", e.Task, "stage", string(e.Stage)}
	if e.Table != "" {
		kv = append(kv, "table", e.Table)
	}
	if e.Location != "" {
		kv = append(kv, "location", e.Location)
	}
	if e.Stage == StageQualityPassed {
		kv = append(kv, "rows", e.Rows)
	}
	if e.Attempt > 0 {
		kv = append(kv, "attempt", e.Attempt)
	}
	if e.Err != nil {
		kv = append(kv, "error", e.Err.Error())
		logger.EventError("task event", kv...)
		return
	}
	logger.Event("task event", kv...)
}

func emit(ctx context.Context, env Env, run Run, task string, stage Stage, table string) {
	emitEvent(ctx, env, Event{RunID: run.ID, Task: task, Stage: stage, Table: table})
}

func emitEvent(ctx context.Context, env Env, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	env.observer().Observe(ctx, e)
}
