// Package pgx stores the property graph in PostgreSQL: one row per vertex
// and per edge, with properties held as JSONB.
package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
	BeginTx(ctx context.Context, txOptions pgxv5.TxOptions) (pgxv5.Tx, error)
}

// GraphEngine implements graph.Engine on a pgx connection or pool.
type GraphEngine struct {
	conn      pgxIConn
	batchSize int
	closeFn   func()
}

type GraphEngineOption func(*GraphEngine)

// WithBatchSize limits how many rows a dump reads per round trip.
func WithBatchSize(n int) GraphEngineOption {
	return func(e *GraphEngine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithCloser registers a function run by Close, typically pool.Close.
func WithCloser(fn func()) GraphEngineOption {
	return func(e *GraphEngine) {
		e.closeFn = fn
	}
}

// NewGraphEngine creates a GraphEngine using an existing connection.
func NewGraphEngine(conn pgxIConn, opts ...GraphEngineOption) *GraphEngine {
	e := &GraphEngine{
		conn:      conn,
		batchSize: 5000,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

func (e *GraphEngine) Begin(ctx context.Context) (graph.Tx, error) {
	tx, err := e.conn.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &graphTx{tx: tx}, nil
}

func (e *GraphEngine) Close() {
	if e.closeFn != nil {
		e.closeFn()
	}
}

// dumpTxOptions pins the vertex and edge scans of a dump to one snapshot,
// so every edge in the dump has both endpoints in it.
var dumpTxOptions = pgxv5.TxOptions{
	IsoLevel:   pgxv5.RepeatableRead,
	AccessMode: pgxv5.ReadOnly,
}

// Dump reads every vertex and edge as of a single point in time.
func (e *GraphEngine) Dump(ctx context.Context) ([]*graph.Vertex, []*graph.Edge, error) {
	tx, err := e.conn.BeginTx(ctx, dumpTxOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("begin dump: %w", err)
	}
	defer tx.Rollback(ctx)

	vertices, err := pagedVertices(ctx, tx, e.batchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("dump vertices: %w", err)
	}
	edges, err := pagedEdges(ctx, tx, e.batchSize)
	if err != nil {
		return nil, nil, fmt.Errorf("dump edges: %w", err)
	}
	return vertices, edges, nil
}

type querier interface {
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
}

func pagedVertices(ctx context.Context, q querier, batch int) ([]*graph.Vertex, error) {
	var out []*graph.Vertex
	var after int64
	for {
		rows, err := q.Query(ctx, dumpVerticesSQL, after, batch)
		if err != nil {
			return nil, err
		}
		n := 0
		for rows.Next() {
			var seq int64
			v, err := scanVertex(rows, &seq)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, v)
			after = seq
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if n < batch {
			return out, nil
		}
	}
}

func pagedEdges(ctx context.Context, q querier, batch int) ([]*graph.Edge, error) {
	var out []*graph.Edge
	var after int64
	for {
		rows, err := q.Query(ctx, dumpEdgesSQL, after, batch)
		if err != nil {
			return nil, err
		}
		n := 0
		for rows.Next() {
			var seq int64
			e, err := scanEdge(rows, &seq)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, e)
			after = seq
			n++
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		if n < batch {
			return out, nil
		}
	}
}

const dumpVerticesSQL = `
SELECT id, node_type, properties, seq
FROM graph_vertices
WHERE seq > $1
ORDER BY seq
LIMIT $2;
`

const dumpEdgesSQL = `
SELECT id, label, out_id, in_id, properties, seq
FROM graph_edges
WHERE seq > $1
ORDER BY seq
LIMIT $2;
`
