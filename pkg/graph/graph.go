// Package graph defines the property graph the migration tooling operates on
// and the transactional handle every mutation goes through.
package graph

import (
	"context"
	"errors"
	"maps"
	"reflect"
	"slices"
)

// NodeTypeKey is the vertex property holding the node-type tag.
const NodeTypeKey = "aai-node-type"

// Canonical edge property keys written from edge rules.
const (
	ContainsOtherV = "contains-other-v"
	DeleteOtherV   = "delete-other-v"
	SvcInfra       = "SVC-INFRA"
	PreventDelete  = "prevent-delete"
	Description    = "description"
)

// Direction values used by the containment and cascade edge properties.
const (
	DirectionIn   = "IN"
	DirectionOut  = "OUT"
	DirectionNone = "NONE"
)

var (
	ErrVertexNotFound = errors.New("vertex not found")
	ErrEdgeNotFound   = errors.New("edge not found")
	ErrTxClosed       = errors.New("transaction already closed")
)

// Properties is an open map of scalar values (string, bool, numbers).
type Properties map[string]any

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	return maps.Clone(p)
}

// String returns the value of key when it is a string.
func (p Properties) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// SameValue reports whether two property values are equal. Numbers compare
// by value across Go types, since stores hand them back as int64 or float64
// whatever type they were written with.
func SameValue(a, b any) bool {
	x, aNum := number(a)
	y, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && x == y
	}
	return reflect.DeepEqual(a, b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Vertex is a node of the property graph. Its node type is fixed at creation.
type Vertex struct {
	ID         string
	NodeType   string
	Properties Properties
}

// Has reports whether the vertex carries the property.
func (v *Vertex) Has(key string) bool {
	_, ok := v.Properties[key]
	return ok
}

// Value returns the property value or nil.
func (v *Vertex) Value(key string) any {
	return v.Properties[key]
}

// Edge is a directed, labeled relationship from Out to In.
type Edge struct {
	ID         string
	Label      string
	OutID      string
	InID       string
	Properties Properties
}

// Other returns the id of the vertex at the opposite end of vertexID.
func (e *Edge) Other(vertexID string) string {
	if e.OutID == vertexID {
		return e.InID
	}
	return e.OutID
}

// Direction selects which edges of a vertex a traversal follows.
type Direction int

const (
	Out Direction = iota
	In
	Both
)

// VertexFilter narrows a vertex scan. Empty fields match everything.
type VertexFilter struct {
	NodeTypes   []string
	HasProperty string
	Properties  Properties
}

// Match reports whether v passes the filter.
func (f VertexFilter) Match(v *Vertex) bool {
	if len(f.NodeTypes) > 0 && !slices.Contains(f.NodeTypes, v.NodeType) {
		return false
	}
	if f.HasProperty != "" && !v.Has(f.HasProperty) {
		return false
	}
	for k, want := range f.Properties {
		got, ok := v.Properties[k]
		if !ok || !SameValue(got, want) {
			return false
		}
	}
	return true
}

// EdgeFilter narrows an edge scan. Empty fields match everything.
type EdgeFilter struct {
	Labels   []string
	VertexID string
	Dir      Direction
}

// Match reports whether e passes the filter.
func (f EdgeFilter) Match(e *Edge) bool {
	if len(f.Labels) > 0 && !slices.Contains(f.Labels, e.Label) {
		return false
	}
	if f.VertexID == "" {
		return true
	}
	switch f.Dir {
	case Out:
		return e.OutID == f.VertexID
	case In:
		return e.InID == f.VertexID
	default:
		return e.OutID == f.VertexID || e.InID == f.VertexID
	}
}

// Engine opens transactions against a graph store.
type Engine interface {
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is one unit of work. Reads observe the transaction's own writes.
// After Commit or Rollback every call returns ErrTxClosed, except Rollback
// which is a no-op so it can always be deferred.
type Tx interface {
	AddVertex(ctx context.Context, nodeType string, props Properties) (*Vertex, error)
	Vertex(ctx context.Context, id string) (*Vertex, error)
	Vertices(ctx context.Context, filter VertexFilter) ([]*Vertex, error)
	SetProperty(ctx context.Context, vertexID, key string, value any) error
	RemoveProperty(ctx context.Context, vertexID, key string) error
	RemoveVertex(ctx context.Context, id string) error

	AddEdge(ctx context.Context, label, outID, inID string, props Properties) (*Edge, error)
	Edge(ctx context.Context, id string) (*Edge, error)
	Edges(ctx context.Context, filter EdgeFilter) ([]*Edge, error)
	SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error
	RemoveEdge(ctx context.Context, id string) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Indexer is implemented by transactions whose store can index a vertex
// property key. Creating an existing index is a no-op.
type Indexer interface {
	EnsurePropertyIndex(ctx context.Context, key string) (created bool, err error)
}

// Neighbors returns the vertices adjacent to v over edges matching label
// (any label when empty) in the given direction.
func Neighbors(ctx context.Context, tx Tx, v *Vertex, dir Direction, label string) ([]*Vertex, error) {
	filter := EdgeFilter{VertexID: v.ID, Dir: dir}
	if label != "" {
		filter.Labels = []string{label}
	}
	edges, err := tx.Edges(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*Vertex, 0, len(edges))
	for _, e := range edges {
		n, err := tx.Vertex(ctx, e.Other(v.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// NeighborsOfType is Neighbors restricted to one node type.
func NeighborsOfType(ctx context.Context, tx Tx, v *Vertex, dir Direction, nodeType string) ([]*Vertex, error) {
	all, err := Neighbors(ctx, tx, v, dir, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, n := range all {
		if n.NodeType == nodeType {
			out = append(out, n)
		}
	}
	return out, nil
}

// Endpoints loads both vertices of an edge.
func Endpoints(ctx context.Context, tx Tx, e *Edge) (out, in *Vertex, err error) {
	out, err = tx.Vertex(ctx, e.OutID)
	if err != nil {
		return nil, nil, err
	}
	in, err = tx.Vertex(ctx, e.InID)
	if err != nil {
		return nil, nil, err
	}
	return out, in, nil
}

// Clearer is implemented by transactions that can drop the whole graph in
// one statement.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Clear removes every vertex and edge visible to tx.
func Clear(ctx context.Context, tx Tx) error {
	if c, ok := tx.(Clearer); ok {
		return c.Clear(ctx)
	}
	vertices, err := tx.Vertices(ctx, VertexFilter{})
	if err != nil {
		return err
	}
	for _, v := range vertices {
		if err := tx.RemoveVertex(ctx, v.ID); err != nil {
			return err
		}
	}
	return nil
}
