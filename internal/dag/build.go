package dag

import (
	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/etl"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

const (
	BeginTask = "Begin_execution"
	StopTask  = "Stop_execution"
)

// Build produces the task graph of def for one logical run:
//
//	Begin_execution >> [staging...] >> fact >> [dimensions...] >> quality >> Stop_execution
//
// Dimensions read the staging tables, not the fact table, so the fact >>
// dimension edge only serialises the warehouse load; running them after the
// extracts would be just as correct.
func Build(def models.PipelineDefinition, run etl.Run) (*Graph, error) {
	def = def.Clone()

	if _, err := warehouse.ParseDialect(def.Dialect); err != nil {
		return nil, perrors.NewConfigurationError(def.Name, "%v", err)
	}
	if len(def.Staging) == 0 {
		return nil, perrors.NewConfigurationError(def.Name, "no staging sources defined")
	}

	tasks := []Task{{Name: BeginTask, Kind: KindBarrier, Operator: etl.Barrier{Task: BeginTask}}}

	staging := make([]string, 0, len(def.Staging))
	for _, spec := range def.Staging {
		op, err := etl.NewStageOperator(spec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, Task{Name: spec.Task, Kind: KindExtract, Upstream: []string{BeginTask}, Table: spec.Table, Operator: op})
		staging = append(staging, spec.Task)
	}

	fact, err := etl.NewFactLoader(def.Fact)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, Task{Name: def.Fact.Task, Kind: KindLoadFact, Upstream: staging, Table: def.Fact.Table, Operator: fact})

	dimensions := make([]string, 0, len(def.Dimensions))
	for _, spec := range def.Dimensions {
		op, err := etl.NewDimensionLoader(spec)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, Task{Name: spec.Task, Kind: KindLoadDimension, Upstream: []string{def.Fact.Task}, Table: spec.Table, Operator: op})
		dimensions = append(dimensions, spec.Task)
	}

	quality, err := etl.NewQualityOperator(def.Quality)
	if err != nil {
		return nil, err
	}
	qualityUpstream := dimensions
	if len(qualityUpstream) == 0 {
		qualityUpstream = []string{def.Fact.Task}
	}
	tasks = append(tasks,
		Task{Name: def.Quality.Task, Kind: KindQualityCheck, Upstream: qualityUpstream, Checks: def.Quality.Tables, Operator: quality},
		Task{Name: StopTask, Kind: KindBarrier, Upstream: []string{def.Quality.Task}, Operator: etl.Barrier{Task: StopTask}},
	)

	return NewGraph(run, tasks...)
}
