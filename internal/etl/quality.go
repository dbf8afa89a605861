package etl

import (
	"context"
	"fmt"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
	"github.com/vmanchik/sparkify-pipeline/pkg/utils"
)

// QualityResult is the row count observed for one passing table.
type QualityResult struct {
	Table string
	Rows  int64
}

// QualityOperator verifies each listed table holds at least one row. It stops
// at the first failing table.
type QualityOperator struct {
	spec models.QualitySpec
}

func NewQualityOperator(spec models.QualitySpec) (*QualityOperator, error) {
	if len(spec.Tables) == 0 {
		return nil, perrors.NewConfigurationError(spec.Task, "no tables to check")
	}
	for _, table := range spec.Tables {
		if err := validateIdentifier(spec.Task, "checked table", table); err != nil {
			return nil, err
		}
	}
	spec.Tables = append([]string(nil), spec.Tables...)
	return &QualityOperator{spec: spec}, nil
}

func (o *QualityOperator) Spec() models.QualitySpec { return o.spec }

func countQuery(table string) string {
	return "SELECT COUNT(*) FROM " + table
}

func (o *QualityOperator) Statements(_ warehouse.Dialect, _ Run) []string {
	out := make([]string, 0, len(o.spec.Tables))
	for _, table := range o.spec.Tables {
		out = append(out, countQuery(table))
	}
	return out
}

func (o *QualityOperator) Execute(ctx context.Context, env Env, run Run) error {
	_, err := o.Check(ctx, env, run)
	return err
}

// Check runs the row-count checks and returns the results of the tables that
// passed. On failure the error names the first failing table.
func (o *QualityOperator) Check(ctx context.Context, env Env, run Run) ([]QualityResult, error) {
	emit(ctx, env, run, o.spec.Task, StageStarted, "")

	gw, err := env.Warehouse.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	results := make([]QualityResult, 0, len(o.spec.Tables))
	for _, table := range o.spec.Tables {
		n, err := checkTable(ctx, gw, table)
		if err != nil {
			return results, err
		}
		results = append(results, QualityResult{Table: table, Rows: n})
		emitEvent(ctx, env, Event{RunID: run.ID, Task: o.spec.Task, Stage: StageQualityPassed, Table: table, Rows: n})
	}

	emit(ctx, env, run, o.spec.Task, StageSucceeded, "")
	return results, nil
}

func checkTable(ctx context.Context, gw warehouse.Gateway, table string) (int64, error) {
	query := countQuery(table)
	rows, err := gw.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	if len(rows) < 1 || len(rows[0]) < 1 {
		return 0, &perrors.QualityCheckError{Table: table, Query: query, Reason: "returned no results"}
	}
	n, err := utils.ConvertToInt64(rows[0][0])
	if err != nil {
		return 0, &perrors.QualityCheckError{Table: table, Query: query, Reason: fmt.Sprintf("returned a non-numeric count (%v)", err)}
	}
	if n < 1 {
		return 0, &perrors.QualityCheckError{Table: table, Query: query, Reason: "contained 0 rows"}
	}
	return n, nil
}
