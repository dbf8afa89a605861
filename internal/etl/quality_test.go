package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

func qualityOp(t *testing.T, tables ...string) *QualityOperator {
	t.Helper()
	op, err := NewQualityOperator(models.QualitySpec{Task: "Run_data_quality_checks", Tables: tables})
	require.NoError(t, err)
	return op
}

func TestQualityGateFailsOnEmptyTable(t *testing.T) {
	env, db := sqliteEnv(t)
	mustExec(t, db,
		"CREATE TABLE songplays (id INTEGER)",
		"CREATE TABLE users (id INTEGER)",
		"INSERT INTO songplays VALUES (1),(2),(3),(4),(5),(6),(7),(8),(9),(10)",
	)

	results, err := qualityOp(t, "songplays", "users").Check(context.Background(), env, testRun)

	var qerr *perrors.QualityCheckError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, "users", qerr.Table)
	assert.Equal(t, "SELECT COUNT(*) FROM users", qerr.Query)
	assert.Contains(t, err.Error(), "users contained 0 rows")
	assert.Equal(t, []QualityResult{{Table: "songplays", Rows: 10}}, results)
}

func TestQualityGatePassesNonEmptyTables(t *testing.T) {
	w := newFakeWarehouse()
	w.tables["songplays"] = []string{"a"}
	w.tables["users"] = []string{"a", "b"}
	rec := &recorder{}

	results, err := qualityOp(t, "songplays", "users").Check(context.Background(), fakeEnv(w, rec), testRun)
	require.NoError(t, err)
	assert.Equal(t, []QualityResult{{"songplays", 1}, {"users", 2}}, results)

	var passed []Event
	for _, e := range rec.events {
		if e.Stage == StageQualityPassed {
			passed = append(passed, e)
		}
	}
	require.Len(t, passed, 2)
	assert.Equal(t, "users", passed[1].Table)
	assert.Equal(t, int64(2), passed[1].Rows)
	assert.Equal(t, StageSucceeded, rec.stages("Run_data_quality_checks")[3])
}

func TestQualityGateStopsAtFirstFailure(t *testing.T) {
	w := newFakeWarehouse()
	w.tables["artists"] = []string{"x"}

	err := qualityOp(t, "songs", "artists").Execute(context.Background(), fakeEnv(w, nil), testRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "songs contained 0 rows")
	assert.Equal(t, []string{"SELECT COUNT(*) FROM songs"}, w.executed())
}

func TestQualityGateResultShapes(t *testing.T) {
	cases := []struct {
		name   string
		rows   []warehouse.Row
		reason string
	}{
		{"no rows", nil, "returned no results"},
		{"no columns", []warehouse.Row{{}}, "returned no results"},
		{"zero", []warehouse.Row{{int64(0)}}, "contained 0 rows"},
		{"negative", []warehouse.Row{{int32(-1)}}, "contained 0 rows"},
		{"null", []warehouse.Row{{nil}}, "non-numeric count"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newFakeWarehouse()
			w.results["time"] = tc.rows

			err := qualityOp(t, "time").Execute(context.Background(), fakeEnv(w, nil), testRun)
			require.True(t, perrors.IsQuality(err), "got %v", err)
			assert.Contains(t, err.Error(), tc.reason)
			assert.Contains(t, err.Error(), "time")
		})
	}

	w := newFakeWarehouse()
	w.results["time"] = []warehouse.Row{{"12"}}
	assert.NoError(t, qualityOp(t, "time").Execute(context.Background(), fakeEnv(w, nil), testRun))
}

func TestQualityGateSurfacesQueryFailure(t *testing.T) {
	w := newFakeWarehouse()
	backend := errors.New(`relation "songs" does not exist`)
	w.failOn("SELECT COUNT(*) FROM songs", backend)

	err := qualityOp(t, "songs").Execute(context.Background(), fakeEnv(w, nil), testRun)
	assert.True(t, perrors.IsExecution(err))
	assert.False(t, perrors.IsQuality(err))
	assert.ErrorIs(t, err, backend)
}

func TestNewQualityOperatorValidation(t *testing.T) {
	_, err := NewQualityOperator(models.QualitySpec{Task: "q"})
	assert.True(t, perrors.IsConfiguration(err))

	_, err = NewQualityOperator(models.QualitySpec{Task: "q", Tables: []string{"users", ""}})
	assert.True(t, perrors.IsConfiguration(err))

	tables := []string{"users"}
	op, err := NewQualityOperator(models.QualitySpec{Task: "q", Tables: tables})
	require.NoError(t, err)
	tables[0] = "mutated"
	assert.Equal(t, []string{"SELECT COUNT(*) FROM users"}, op.Statements(warehouse.Redshift, testRun))
}
