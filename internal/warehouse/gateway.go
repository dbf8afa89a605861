// Package warehouse is a thin pass-through to the SQL warehouse. It runs
// exactly the statement it is given and surfaces backend errors as
// ExecutionError; it holds no pipeline logic and never retries.
package warehouse

import (
	"context"
	"database/sql"

	perrors "github.com/vmanchik/sparkify-pipeline/internal/errors"
)

// Row is one result row with positional access.
type Row []interface{}

type Gateway interface {
	Execute(ctx context.Context, statement string) error
	Query(ctx context.Context, statement string) ([]Row, error)
	Close() error
}

// Connector hands out a gateway per task execution.
type Connector interface {
	Acquire(ctx context.Context) (Gateway, error)
}

// DBConnector borrows dedicated connections from a database/sql pool.
type DBConnector struct {
	DB *sql.DB
}

func NewDBConnector(db *sql.DB) *DBConnector {
	return &DBConnector{DB: db}
}

func (c *DBConnector) Acquire(ctx context.Context) (Gateway, error) {
	conn, err := c.DB.Conn(ctx)
	if err != nil {
		return nil, &perrors.ExecutionError{Statement: "acquire connection", Err: err}
	}
	return &SQLGateway{conn: conn}, nil
}

// SQLGateway runs statements on a single *sql.Conn.
type SQLGateway struct {
	conn *sql.Conn
}

func (g *SQLGateway) Execute(ctx context.Context, statement string) error {
	if _, err := g.conn.ExecContext(ctx, statement); err != nil {
		return &perrors.ExecutionError{Statement: Redact(statement), Err: err}
	}
	return nil
}

func (g *SQLGateway) Query(ctx context.Context, statement string) ([]Row, error) {
	rows, err := g.conn.QueryContext(ctx, statement)
	if err != nil {
		return nil, &perrors.ExecutionError{Statement: Redact(statement), Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &perrors.ExecutionError{Statement: Redact(statement), Err: err}
	}

	var results []Row
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, &perrors.ExecutionError{Statement: Redact(statement), Err: err}
		}

		row := make(Row, len(cols))
		for i, val := range columns {
			if b, ok := val.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = val
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &perrors.ExecutionError{Statement: Redact(statement), Err: err}
	}
	return results, nil
}

func (g *SQLGateway) Close() error {
	return g.conn.Close()
}
