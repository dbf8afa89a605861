package etl

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
	"github.com/vmanchik/sparkify-pipeline/internal/warehouse"
	"github.com/vmanchik/sparkify-pipeline/pkg/credentials"
)

// fakeWarehouse models tables as lists of records and understands the few
// statement shapes the operators issue.
type fakeWarehouse struct {
	mu         sync.Mutex
	tables     map[string][]string
	sources    map[string][]string
	results    map[string][]warehouse.Row
	failures   map[string]error
	statements []string
	open       int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		tables:   map[string][]string{},
		sources:  map[string][]string{},
		results:  map[string][]warehouse.Row{},
		failures: map[string]error{},
	}
}

var copyPattern = regexp.MustCompile(`^COPY (\S+) FROM '([^']*)'`)

func (w *fakeWarehouse) Acquire(context.Context) (warehouse.Gateway, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open++
	return &fakeGateway{w: w}, nil
}

func (w *fakeWarehouse) failOn(prefix string, err error) {
	w.failures[prefix] = err
}

func (w *fakeWarehouse) executed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.statements...)
}

type fakeGateway struct {
	w *fakeWarehouse
}

func (g *fakeGateway) check(statement string) error {
	g.w.statements = append(g.w.statements, statement)
	for prefix, err := range g.w.failures {
		if strings.HasPrefix(statement, prefix) {
			return &perrors.ExecutionError{Statement: warehouse.Redact(statement), Err: err}
		}
	}
	return nil
}

func (g *fakeGateway) Execute(_ context.Context, statement string) error {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	if err := g.check(statement); err != nil {
		return err
	}
	switch {
	case strings.HasPrefix(statement, "DELETE FROM "):
		g.w.tables[strings.TrimPrefix(statement, "DELETE FROM ")] = nil
	case strings.HasPrefix(statement, "TRUNCATE TABLE "):
		g.w.tables[strings.TrimPrefix(statement, "TRUNCATE TABLE ")] = nil
	case strings.HasPrefix(statement, "COPY "):
		m := copyPattern.FindStringSubmatch(statement)
		g.w.tables[m[1]] = append(g.w.tables[m[1]], g.w.sources[m[2]]...)
	}
	return nil
}

func (g *fakeGateway) Query(_ context.Context, statement string) ([]warehouse.Row, error) {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	if err := g.check(statement); err != nil {
		return nil, err
	}
	table := strings.TrimPrefix(statement, "SELECT COUNT(*) FROM ")
	if rows, ok := g.w.results[table]; ok {
		return rows, nil
	}
	return []warehouse.Row{{int64(len(g.w.tables[table]))}}, nil
}

func (g *fakeGateway) Close() error {
	g.w.mu.Lock()
	defer g.w.mu.Unlock()
	g.w.open--
	return nil
}

// recorder captures emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages(task string) []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Stage
	for _, e := range r.events {
		if e.Task == task {
			out = append(out, e.Stage)
		}
	}
	return out
}

var testCreds = credentials.Static{
	"aws_credentials": {AccessKeyID: "AKIATEST", SecretAccessKey: "s3cr3t"},
}

func fakeEnv(w *fakeWarehouse, obs Observer) Env {
	return Env{Warehouse: w, Credentials: testCreds, Dialect: warehouse.Redshift, Observer: obs}
}

func sqliteEnv(t *testing.T) (Env, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return Env{Warehouse: warehouse.NewDBConnector(db), Credentials: testCreds, Dialect: warehouse.SQLite}, db
}

func mustExec(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, s := range statements {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
