package pgx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"

	pgxv5 "github.com/jackc/pgx/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type graphTx struct {
	tx     pgxv5.Tx
	closed bool
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVertex(row scanner, seq *int64) (*graph.Vertex, error) {
	var v graph.Vertex
	var props map[string]any
	if err := row.Scan(&v.ID, &v.NodeType, &props, seq); err != nil {
		return nil, err
	}
	v.Properties = graph.Properties(props)
	if v.Properties == nil {
		v.Properties = graph.Properties{}
	}
	return &v, nil
}

func scanEdge(row scanner, seq *int64) (*graph.Edge, error) {
	var e graph.Edge
	var props map[string]any
	if err := row.Scan(&e.ID, &e.Label, &e.OutID, &e.InID, &props, seq); err != nil {
		return nil, err
	}
	e.Properties = graph.Properties(props)
	if e.Properties == nil {
		e.Properties = graph.Properties{}
	}
	return &e, nil
}

func (t *graphTx) check() error {
	if t.closed {
		return graph.ErrTxClosed
	}
	return nil
}

func (t *graphTx) AddVertex(ctx context.Context, nodeType string, props graph.Properties) (*graph.Vertex, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if nodeType == "" {
		return nil, fmt.Errorf("vertex requires a node type")
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	p := sanitize(props)
	p[graph.NodeTypeKey] = nodeType
	if _, err := t.tx.Exec(ctx, insertVertexSQL, id, nodeType, map[string]any(p)); err != nil {
		return nil, err
	}
	return &graph.Vertex{ID: id, NodeType: nodeType, Properties: p}, nil
}

func (t *graphTx) Vertex(ctx context.Context, id string) (*graph.Vertex, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var seq int64
	v, err := scanVertex(t.tx.QueryRow(ctx, getVertexSQL, id), &seq)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", graph.ErrVertexNotFound, id)
	}
	return v, err
}

func (t *graphTx) Vertices(ctx context.Context, filter graph.VertexFilter) ([]*graph.Vertex, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	sql, args, err := buildVertexQuery(filter)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*graph.Vertex
	for rows.Next() {
		var seq int64
		v, err := scanVertex(rows, &seq)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func buildVertexQuery(filter graph.VertexFilter) (string, []any, error) {
	var where []string
	var args []any
	if len(filter.NodeTypes) > 0 {
		args = append(args, filter.NodeTypes)
		where = append(where, fmt.Sprintf("node_type = ANY($%d)", len(args)))
	}
	if filter.HasProperty != "" {
		args = append(args, filter.HasProperty)
		where = append(where, fmt.Sprintf("jsonb_exists(properties, $%d)", len(args)))
	}
	if len(filter.Properties) > 0 {
		b, err := json.Marshal(filter.Properties)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(b))
		where = append(where, fmt.Sprintf("properties @> $%d::jsonb", len(args)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, node_type, properties, seq FROM graph_vertices")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY seq")
	return sb.String(), args, nil
}

// cleanText strips what jsonb rejects in a string: NUL bytes, which show up
// in hostnames copied from device output, and invalid UTF-8.
func cleanText(s string) string {
	if s == "" || (utf8.ValidString(s) && !strings.ContainsRune(s, 0)) {
		return s
	}
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}

func sanitize(props graph.Properties) graph.Properties {
	p := props.Clone()
	for k, v := range p {
		if s, ok := v.(string); ok {
			p[k] = cleanText(s)
		}
	}
	return p
}

func jsonValue(value any) (string, error) {
	if s, ok := value.(string); ok {
		value = cleanText(s)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (t *graphTx) SetProperty(ctx context.Context, vertexID, key string, value any) error {
	if err := t.check(); err != nil {
		return err
	}
	if key == graph.NodeTypeKey {
		return fmt.Errorf("node type of vertex %s is immutable", vertexID)
	}
	val, err := jsonValue(value)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, setVertexPropertySQL, vertexID, key, val)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", graph.ErrVertexNotFound, vertexID)
	}
	return nil
}

func (t *graphTx) RemoveProperty(ctx context.Context, vertexID, key string) error {
	if err := t.check(); err != nil {
		return err
	}
	if key == graph.NodeTypeKey {
		return fmt.Errorf("node type of vertex %s is immutable", vertexID)
	}
	tag, err := t.tx.Exec(ctx, removeVertexPropertySQL, vertexID, key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", graph.ErrVertexNotFound, vertexID)
	}
	return nil
}

func (t *graphTx) RemoveVertex(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, deleteVertexSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", graph.ErrVertexNotFound, id)
	}
	return nil
}

func (t *graphTx) AddEdge(ctx context.Context, label, outID, inID string, props graph.Properties) (*graph.Edge, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}
	p := sanitize(props)
	if _, err := t.tx.Exec(ctx, insertEdgeSQL, id, label, outID, inID, map[string]any(p)); err != nil {
		return nil, err
	}
	return &graph.Edge{ID: id, Label: label, OutID: outID, InID: inID, Properties: p}, nil
}

func (t *graphTx) Edge(ctx context.Context, id string) (*graph.Edge, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	var seq int64
	e, err := scanEdge(t.tx.QueryRow(ctx, getEdgeSQL, id), &seq)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, id)
	}
	return e, err
}

func (t *graphTx) Edges(ctx context.Context, filter graph.EdgeFilter) ([]*graph.Edge, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	sql, args := buildEdgeQuery(filter)
	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*graph.Edge
	for rows.Next() {
		var seq int64
		e, err := scanEdge(rows, &seq)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildEdgeQuery(filter graph.EdgeFilter) (string, []any) {
	var where []string
	var args []any
	if len(filter.Labels) > 0 {
		args = append(args, filter.Labels)
		where = append(where, fmt.Sprintf("label = ANY($%d)", len(args)))
	}
	if filter.VertexID != "" {
		args = append(args, filter.VertexID)
		n := len(args)
		switch filter.Dir {
		case graph.Out:
			where = append(where, fmt.Sprintf("out_id = $%d", n))
		case graph.In:
			where = append(where, fmt.Sprintf("in_id = $%d", n))
		default:
			where = append(where, fmt.Sprintf("(out_id = $%d OR in_id = $%d)", n, n))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT id, label, out_id, in_id, properties, seq FROM graph_edges")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY seq")
	return sb.String(), args
}

func (t *graphTx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(); err != nil {
		return err
	}
	val, err := jsonValue(value)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, setEdgePropertySQL, edgeID, key, val)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, edgeID)
	}
	return nil
}

func (t *graphTx) RemoveEdge(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, deleteEdgeSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", graph.ErrEdgeNotFound, id)
	}
	return nil
}

func (t *graphTx) Clear(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, clearGraphSQL)
	return err
}

var indexNameSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

func propertyIndexName(key string) string {
	name := indexNameSanitizer.ReplaceAllString(strings.ToLower(key), "_")
	return "graph_vertices_prop_" + name
}

// EnsurePropertyIndex creates an expression index on properties->>key.
func (t *graphTx) EnsurePropertyIndex(ctx context.Context, key string) (bool, error) {
	if err := t.check(); err != nil {
		return false, err
	}
	name := propertyIndexName(key)
	var exists bool
	if err := t.tx.QueryRow(ctx, indexExistsSQL, name).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	literal := strings.ReplaceAll(key, "'", "''")
	ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON graph_vertices ((properties->>'%s'))`,
		pgxv5.Identifier{name}.Sanitize(), literal)
	if _, err := t.tx.Exec(ctx, ddl); err != nil {
		return false, err
	}
	return true, nil
}

func (t *graphTx) Commit(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	t.closed = true
	return t.tx.Commit(ctx)
}

func (t *graphTx) Rollback(ctx context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgxv5.ErrTxClosed) {
		return nil
	}
	return err
}

const insertVertexSQL = `
INSERT INTO graph_vertices (id, node_type, properties)
VALUES ($1, $2, $3);
`

const getVertexSQL = `
SELECT id, node_type, properties, seq
FROM graph_vertices
WHERE id = $1;
`

const setVertexPropertySQL = `
UPDATE graph_vertices
SET properties = properties || jsonb_build_object($2::text, $3::jsonb)
WHERE id = $1;
`

const removeVertexPropertySQL = `
UPDATE graph_vertices
SET properties = properties - $2::text
WHERE id = $1;
`

const deleteVertexSQL = `
DELETE FROM graph_vertices
WHERE id = $1;
`

const insertEdgeSQL = `
INSERT INTO graph_edges (id, label, out_id, in_id, properties)
VALUES ($1, $2, $3, $4, $5);
`

const getEdgeSQL = `
SELECT id, label, out_id, in_id, properties, seq
FROM graph_edges
WHERE id = $1;
`

const setEdgePropertySQL = `
UPDATE graph_edges
SET properties = properties || jsonb_build_object($2::text, $3::jsonb)
WHERE id = $1;
`

const deleteEdgeSQL = `
DELETE FROM graph_edges
WHERE id = $1;
`

const clearGraphSQL = `
TRUNCATE graph_edges, graph_vertices;
`

const indexExistsSQL = `
SELECT EXISTS (
    SELECT 1 FROM pg_indexes
    WHERE tablename = 'graph_vertices' AND indexname = $1
);
`
