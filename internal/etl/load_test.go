package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/models"
)

const usersFromStaging = "SELECT DISTINCT user_id, first_name FROM staging_events WHERE page = 'NextSong'"

func TestDimensionLoaderReplaceIsIdempotent(t *testing.T) {
	env, db := sqliteEnv(t)
	mustExec(t, db,
		"CREATE TABLE staging_events (user_id INTEGER, first_name TEXT, page TEXT)",
		"INSERT INTO staging_events VALUES (1, 'Ada', 'NextSong'), (2, 'Grace', 'NextSong'), (2, 'Grace', 'NextSong'), (3, 'Edsger', 'Home')",
		"CREATE TABLE users (user_id INTEGER, first_name TEXT)",
	)
	op, err := NewDimensionLoader(models.LoadSpec{Task: "Load_user_dim_table", Table: "users", SQL: usersFromStaging, Replace: true})
	require.NoError(t, err)

	require.NoError(t, op.Execute(context.Background(), env, testRun))
	once := countRows(t, db, "users")
	require.NoError(t, op.Execute(context.Background(), env, testRun))

	assert.Equal(t, 2, once)
	assert.Equal(t, once, countRows(t, db, "users"))
}

func TestDimensionLoaderReplacesUnrelatedRows(t *testing.T) {
	env, db := sqliteEnv(t)
	mustExec(t, db,
		"CREATE TABLE staging_events (user_id INTEGER, first_name TEXT, page TEXT)",
		"INSERT INTO staging_events VALUES (7, 'Barbara', 'NextSong'), (8, 'Ken', 'NextSong')",
		"CREATE TABLE users (user_id INTEGER, first_name TEXT)",
	)
	values := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		values = append(values, fmt.Sprintf("(%d, 'old-%d')", 1000+i, i))
	}
	mustExec(t, db, "INSERT INTO users VALUES "+strings.Join(values, ", "))
	require.Equal(t, 100, countRows(t, db, "users"))

	op, err := NewDimensionLoader(models.LoadSpec{Task: "Load_user_dim_table", Table: "users", SQL: usersFromStaging, Replace: true})
	require.NoError(t, err)
	require.NoError(t, op.Execute(context.Background(), env, testRun))

	rows, err := db.Query("SELECT user_id FROM users ORDER BY user_id")
	require.NoError(t, err)
	defer rows.Close()
	var ids []int
	for rows.Next() {
		var id int
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	assert.Equal(t, []int{7, 8}, ids)
}

func TestFactLoaderAccumulates(t *testing.T) {
	env, db := sqliteEnv(t)
	mustExec(t, db,
		"CREATE TABLE staging_events (user_id INTEGER, first_name TEXT, page TEXT)",
		"INSERT INTO staging_events VALUES (1, 'Ada', 'NextSong')",
		"CREATE TABLE songplays (user_id INTEGER, first_name TEXT)",
	)
	op, err := NewFactLoader(models.LoadSpec{Task: "Load_songplays_fact_table", Table: "songplays", SQL: usersFromStaging})
	require.NoError(t, err)

	require.NoError(t, op.Execute(context.Background(), env, testRun))
	require.NoError(t, op.Execute(context.Background(), env, testRun))

	// Without Replace the loader appends; deduplication is up to the query.
	assert.Equal(t, 2, countRows(t, db, "songplays"))
}

func TestLoaderEventsAndStatements(t *testing.T) {
	w := newFakeWarehouse()
	rec := &recorder{}
	op, err := NewDimensionLoader(models.LoadSpec{Task: "Load_song_dim_table", Table: "songs", SQL: "\n  SELECT 1\n", Replace: true})
	require.NoError(t, err)

	require.NoError(t, op.Execute(context.Background(), fakeEnv(w, rec), testRun))

	assert.Equal(t, []string{"TRUNCATE TABLE songs", "INSERT INTO songs SELECT 1"}, w.executed())
	assert.Equal(t, []Stage{StageStarted, StageCleared, StageLoaded, StageSucceeded}, rec.stages("Load_song_dim_table"))
	assert.Equal(t, w.executed(), op.Statements(warehouse.Redshift, testRun))
	assert.Equal(t, []string{"DELETE FROM songs", "INSERT INTO songs SELECT 1"}, op.Statements(warehouse.SQLite, testRun))
}

func TestLoaderWithoutReplaceSkipsClear(t *testing.T) {
	w := newFakeWarehouse()
	op, err := NewFactLoader(models.LoadSpec{Task: "f", Table: "songplays", SQL: "SELECT 1"})
	require.NoError(t, err)

	require.NoError(t, op.Execute(context.Background(), fakeEnv(w, nil), testRun))
	assert.Equal(t, []string{"INSERT INTO songplays SELECT 1"}, w.executed())
	assert.Equal(t, FactLoad, op.Kind())
}

func TestLoaderSurfacesInsertFailure(t *testing.T) {
	w := newFakeWarehouse()
	backend := errors.New("permission denied for relation songs")
	w.failOn("INSERT INTO songs", backend)
	op, err := NewDimensionLoader(models.LoadSpec{Task: "d", Table: "songs", SQL: "SELECT 1", Replace: true})
	require.NoError(t, err)

	err = op.Execute(context.Background(), fakeEnv(w, nil), testRun)
	assert.ErrorIs(t, err, backend)
	assert.Contains(t, err.Error(), "INSERT INTO songs")
	assert.Zero(t, w.open)
}

func TestNewLoaderValidation(t *testing.T) {
	_, err := NewFactLoader(models.LoadSpec{Task: "f", Table: "songplays", SQL: "   "})
	assert.True(t, perrors.IsConfiguration(err))

	_, err = NewDimensionLoader(models.LoadSpec{Task: "d", Table: "", SQL: "SELECT 1"})
	assert.True(t, perrors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "dimension table name is empty")
}
