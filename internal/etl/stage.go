package etl

import (
	"context"
	"fmt"
	"strings"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/credentials"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

// StageOperator copies one partition of JSON records from object storage
// into a staging table, replacing whatever the table held before.
type StageOperator struct {
	spec models.StagingSpec
}

func NewStageOperator(spec models.StagingSpec) (*StageOperator, error) {
	if err := validateIdentifier(spec.Task, "staging table", spec.Table); err != nil {
		return nil, err
	}
	if models.BucketName(spec.Bucket) == "" {
		return nil, perrors.NewConfigurationError(spec.Task, "source bucket is empty")
	}
	if err := ValidateKeyPattern(spec.KeyPattern); err != nil {
		return nil, perrors.NewConfigurationError(spec.Task, "%v", err)
	}
	if spec.Region == "" {
		spec.Region = models.DefaultRegion
	}
	if spec.JSONPath == "" {
		spec.JSONPath = models.AutoJSONPath
	}
	return &StageOperator{spec: spec}, nil
}

func (o *StageOperator) Spec() models.StagingSpec { return o.spec }

// Location resolves the source prefix for a run.
func (o *StageOperator) Location(run Run) string {
	key := strings.Trim(RenderKey(o.spec.KeyPattern, run.LogicalDate), "/")
	location := "s3://" + models.BucketName(o.spec.Bucket)
	if key != "" {
		location += "/" + key
	}
	return location
}

func (o *StageOperator) clearStatement() string {
	return "DELETE FROM " + o.spec.Table
}

func (o *StageOperator) copyStatement(location string, creds credentials.Credentials) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COPY %s FROM %s", o.spec.Table, warehouse.QuoteLiteral(location))
	fmt.Fprintf(&b, " ACCESS_KEY_ID %s SECRET_ACCESS_KEY %s",
		warehouse.QuoteLiteral(creds.AccessKeyID), warehouse.QuoteLiteral(creds.SecretAccessKey))
	if creds.SessionToken != "" {
		fmt.Fprintf(&b, " SESSION_TOKEN %s", warehouse.QuoteLiteral(creds.SessionToken))
	}
	fmt.Fprintf(&b, " REGION %s JSON %s", warehouse.QuoteLiteral(o.spec.Region), warehouse.QuoteLiteral(o.spec.JSONPath))
	return b.String()
}

func (o *StageOperator) Statements(_ warehouse.Dialect, run Run) []string {
	masked := credentials.Credentials{AccessKeyID: "***", SecretAccessKey: "***"}
	return []string{o.clearStatement(), o.copyStatement(o.Location(run), masked)}
}

// Execute clears the staging table and copies the run's partition into it.
// A failed copy leaves the table empty or partial; the next attempt clears
// it again, so no cleanup is attempted here.
func (o *StageOperator) Execute(ctx context.Context, env Env, run Run) error {
	task, table := o.spec.Task, o.spec.Table
	emit(ctx, env, run, task, StageStarted, table)

	creds, err := env.Credentials.Resolve(ctx, o.spec.CredentialsID)
	if err != nil {
		return fmt.Errorf("stage %s: %w", table, err)
	}

	gw, err := env.Warehouse.Acquire(ctx)
	if err != nil {
		return err
	}
	defer gw.Close()

	if err := gw.Execute(ctx, o.clearStatement()); err != nil {
		return err
	}
	emit(ctx, env, run, task, StageCleared, table)

	location := o.Location(run)
	if err := gw.Execute(ctx, o.copyStatement(location, creds)); err != nil {
		return err
	}
	emitEvent(ctx, env, Event{RunID: run.ID, Task: task, Stage: StageCopied, Table: table, Location: location})

	emit(ctx, env, run, task, StageSucceeded, table)
	return nil
}

func validateIdentifier(task, what, name string) error {
	if strings.TrimSpace(name) == "" {
		return perrors.NewConfigurationError(task, "%s name is empty", what)
	}
	if !warehouse.ValidIdentifier(name) {
		return perrors.NewConfigurationError(task, "%s name %q is not a valid identifier", what, name)
	}
	return nil
}
