package etl

import (
	"context"
	"time"

	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/credentials"
)

// Run identifies the logical run a task executes for.
type Run struct {
	ID          string
	LogicalDate time.Time
}

// Env carries the collaborators an operator needs at execute time. It is
// passed in per execution so a built graph stays purely descriptive.
type Env struct {
	Warehouse   warehouse.Connector
	Credentials credentials.Provider
	Dialect     warehouse.Dialect
	Observer    Observer
}

// Operator is the execute contract of a task. Execute must be safe to re-run
// for the same Run.
type Operator interface {
	Execute(ctx context.Context, env Env, run Run) error
	// Statements previews the SQL Execute would issue, credentials masked.
	Statements(dialect warehouse.Dialect, run Run) []string
}

func (e Env) observer() Observer {
	if e.Observer == nil {
		return Discard
	}
	return e.Observer
}
