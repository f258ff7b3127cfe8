package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ErrConflict is returned by Commit when another transaction committed
// after this one began.
var ErrConflict = errors.New("graph changed since transaction began")

type memVertex struct {
	seq uint64
	v   Vertex
}

type memEdge struct {
	seq uint64
	e   Edge
}

type memState struct {
	vertices map[string]*memVertex
	edges    map[string]*memEdge
	indexes  map[string]struct{}
	seq      uint64
}

func (s *memState) clone() *memState {
	c := &memState{
		vertices: make(map[string]*memVertex, len(s.vertices)),
		edges:    make(map[string]*memEdge, len(s.edges)),
		indexes:  make(map[string]struct{}, len(s.indexes)),
		seq:      s.seq,
	}
	for id, mv := range s.vertices {
		v := mv.v
		v.Properties = v.Properties.Clone()
		c.vertices[id] = &memVertex{seq: mv.seq, v: v}
	}
	for id, me := range s.edges {
		e := me.e
		e.Properties = e.Properties.Clone()
		c.edges[id] = &memEdge{seq: me.seq, e: e}
	}
	for k := range s.indexes {
		c.indexes[k] = struct{}{}
	}
	return c
}

// MemoryEngine is an in-process graph with snapshot transactions. Each
// transaction works on a private copy which replaces the committed graph
// on Commit. Used for tests and for runs against a loaded snapshot.
type MemoryEngine struct {
	mu      sync.Mutex
	state   *memState
	version uint64
}

// NewMemoryEngine returns an empty in-memory graph.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		state: &memState{
			vertices: map[string]*memVertex{},
			edges:    map[string]*memEdge{},
			indexes:  map[string]struct{}{},
		},
	}
}

func (m *MemoryEngine) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memTx{engine: m, state: m.state.clone(), base: m.version}, nil
}

func (m *MemoryEngine) Close() {}

// Indexed reports whether a property index was created for key.
func (m *MemoryEngine) Indexed(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.indexes[key]
	return ok
}

type memTx struct {
	engine *MemoryEngine
	state  *memState
	base   uint64
	closed bool
}

func (t *memTx) check(ctx context.Context) error {
	if t.closed {
		return ErrTxClosed
	}
	return ctx.Err()
}

func (t *memTx) nextSeq() uint64 {
	t.state.seq++
	return t.state.seq
}

func newID() (string, error) {
	return gonanoid.New()
}

func (t *memTx) AddVertex(ctx context.Context, nodeType string, props Properties) (*Vertex, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	if nodeType == "" {
		return nil, fmt.Errorf("vertex requires a node type")
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	p := props.Clone()
	p[NodeTypeKey] = nodeType
	mv := &memVertex{seq: t.nextSeq(), v: Vertex{ID: id, NodeType: nodeType, Properties: p}}
	t.state.vertices[id] = mv
	return copyVertex(&mv.v), nil
}

func copyVertex(v *Vertex) *Vertex {
	c := *v
	c.Properties = v.Properties.Clone()
	return &c
}

func copyEdge(e *Edge) *Edge {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

func (t *memTx) Vertex(ctx context.Context, id string) (*Vertex, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	mv, ok := t.state.vertices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	return copyVertex(&mv.v), nil
}

func (t *memTx) Vertices(ctx context.Context, filter VertexFilter) ([]*Vertex, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	matched := make([]*memVertex, 0)
	for _, mv := range t.state.vertices {
		if filter.Match(&mv.v) {
			matched = append(matched, mv)
		}
	}
	slices.SortFunc(matched, func(a, b *memVertex) int { return compareSeq(a.seq, b.seq) })
	out := make([]*Vertex, 0, len(matched))
	for _, mv := range matched {
		out = append(out, copyVertex(&mv.v))
	}
	return out, nil
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (t *memTx) SetProperty(ctx context.Context, vertexID, key string, value any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	mv, ok := t.state.vertices[vertexID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	if key == NodeTypeKey {
		return fmt.Errorf("node type of vertex %s is immutable", vertexID)
	}
	mv.v.Properties[key] = value
	return nil
}

func (t *memTx) RemoveProperty(ctx context.Context, vertexID, key string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	mv, ok := t.state.vertices[vertexID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, vertexID)
	}
	if key == NodeTypeKey {
		return fmt.Errorf("node type of vertex %s is immutable", vertexID)
	}
	delete(mv.v.Properties, key)
	return nil
}

func (t *memTx) RemoveVertex(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.vertices[id]; !ok {
		return fmt.Errorf("%w: %s", ErrVertexNotFound, id)
	}
	for eid, me := range t.state.edges {
		if me.e.OutID == id || me.e.InID == id {
			delete(t.state.edges, eid)
		}
	}
	delete(t.state.vertices, id)
	return nil
}

func (t *memTx) AddEdge(ctx context.Context, label, outID, inID string, props Properties) (*Edge, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	if _, ok := t.state.vertices[outID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, outID)
	}
	if _, ok := t.state.vertices[inID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrVertexNotFound, inID)
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	me := &memEdge{seq: t.nextSeq(), e: Edge{ID: id, Label: label, OutID: outID, InID: inID, Properties: props.Clone()}}
	t.state.edges[id] = me
	return copyEdge(&me.e), nil
}

func (t *memTx) Edge(ctx context.Context, id string) (*Edge, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	me, ok := t.state.edges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	return copyEdge(&me.e), nil
}

func (t *memTx) Edges(ctx context.Context, filter EdgeFilter) ([]*Edge, error) {
	if err := t.check(ctx); err != nil {
		return nil, err
	}
	matched := make([]*memEdge, 0)
	for _, me := range t.state.edges {
		if filter.Match(&me.e) {
			matched = append(matched, me)
		}
	}
	slices.SortFunc(matched, func(a, b *memEdge) int { return compareSeq(a.seq, b.seq) })
	out := make([]*Edge, 0, len(matched))
	for _, me := range matched {
		out = append(out, copyEdge(&me.e))
	}
	return out, nil
}

func (t *memTx) SetEdgeProperty(ctx context.Context, edgeID, key string, value any) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	me, ok := t.state.edges[edgeID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
	}
	me.e.Properties[key] = value
	return nil
}

func (t *memTx) RemoveEdge(ctx context.Context, id string) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	if _, ok := t.state.edges[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEdgeNotFound, id)
	}
	delete(t.state.edges, id)
	return nil
}

func (t *memTx) EnsurePropertyIndex(ctx context.Context, key string) (bool, error) {
	if err := t.check(ctx); err != nil {
		return false, err
	}
	if _, ok := t.state.indexes[key]; ok {
		return false, nil
	}
	t.state.indexes[key] = struct{}{}
	return true, nil
}

func (t *memTx) Commit(ctx context.Context) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.closed = true

	t.engine.mu.Lock()
	defer t.engine.mu.Unlock()
	if t.engine.version != t.base {
		return ErrConflict
	}
	t.engine.state = t.state
	t.engine.version++
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	t.closed = true
	t.state = nil
	return nil
}

func (t *memTx) Clear(ctx context.Context) error {
	if err := t.check(ctx); err != nil {
		return err
	}
	t.state.vertices = map[string]*memVertex{}
	t.state.edges = map[string]*memEdge{}
	return nil
}
