package etl

import (
	"context"
	"strings"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

type LoadKind string

const (
	FactLoad      LoadKind = "fact"
	DimensionLoad LoadKind = "dimension"
)

// LoadOperator populates a fact or dimension table from a transform query
// over staged data. Re-running is only idempotent with Replace set; in
// accumulate mode the query itself must skip rows already present.
type LoadOperator struct {
	kind LoadKind
	spec models.LoadSpec
}

func NewFactLoader(spec models.LoadSpec) (*LoadOperator, error) {
	return newLoadOperator(FactLoad, spec)
}

func NewDimensionLoader(spec models.LoadSpec) (*LoadOperator, error) {
	return newLoadOperator(DimensionLoad, spec)
}

func newLoadOperator(kind LoadKind, spec models.LoadSpec) (*LoadOperator, error) {
	if err := validateIdentifier(spec.Task, string(kind)+" table", spec.Table); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.SQL) == "" {
		return nil, perrors.NewConfigurationError(spec.Task, "transform SQL for %s is empty", spec.Table)
	}
	return &LoadOperator{kind: kind, spec: spec}, nil
}

func (o *LoadOperator) Kind() LoadKind        { return o.kind }
func (o *LoadOperator) Spec() models.LoadSpec { return o.spec }

func (o *LoadOperator) insertStatement() string {
	return "INSERT INTO " + o.spec.Table + " " + strings.TrimSpace(o.spec.SQL)
}

func (o *LoadOperator) Statements(dialect warehouse.Dialect, _ Run) []string {
	var out []string
	if o.spec.Replace {
		out = append(out, dialect.Truncate(o.spec.Table))
	}
	return append(out, o.insertStatement())
}

func (o *LoadOperator) Execute(ctx context.Context, env Env, run Run) error {
	task, table := o.spec.Task, o.spec.Table
	emit(ctx, env, run, task, StageStarted, table)

	gw, err := env.Warehouse.Acquire(ctx)
	if err != nil {
		return err
	}
	defer gw.Close()

	if o.spec.Replace {
		if err := gw.Execute(ctx, env.Dialect.Truncate(table)); err != nil {
			return err
		}
		emit(ctx, env, run, task, StageCleared, table)
	}

	if err := gw.Execute(ctx, o.insertStatement()); err != nil {
		return err
	}
	emit(ctx, env, run, task, StageLoaded, table)

	emit(ctx, env, run, task, StageSucceeded, table)
	return nil
}
