package migration

import (
	"context"
	"encoding/json"
	"time"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// Standard vertex bookkeeping properties.
const (
	CreatedTSKey            = "aai-created-ts"
	LastModTSKey            = "aai-last-mod-ts"
	SourceOfTruthKey        = "source-of-truth"
	LastModSourceOfTruthKey = "last-mod-source-of-truth"
)

// Session is the view a unit gets of its own transaction. Everything a unit
// writes goes through the session's Tx and is committed or rolled back by the
// orchestrator as a whole.
type Session struct {
	tx      graph.Tx
	applier *edgerules.Applier
	notify  *NotificationHelper
	source  string
	runID   string
	now     func() time.Time
}

type SessionOption func(*Session)

// WithSource sets the source of truth written by TouchVertex.
func WithSource(source string) SessionOption {
	return func(s *Session) {
		s.source = source
	}
}

// WithRunID sets the transaction id carried by queued notifications.
func WithRunID(id string) SessionOption {
	return func(s *Session) {
		s.runID = id
	}
}

// WithClock replaces time.Now for bookkeeping timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

// NewSession wraps tx for one unit.
func NewSession(tx graph.Tx, applier *edgerules.Applier, opts ...SessionOption) *Session {
	s := &Session{
		tx:      tx,
		applier: applier,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	s.notify = NewNotificationHelper(s.source, s.runID)
	return s
}

func (s *Session) Tx() graph.Tx {
	return s.tx
}

func (s *Session) Applier() *edgerules.Applier {
	return s.applier
}

func (s *Session) Notifications() *NotificationHelper {
	return s.notify
}

func (s *Session) Source() string {
	return s.source
}

func (s *Session) Commit(ctx context.Context) error {
	return s.tx.Commit(ctx)
}

func (s *Session) Rollback(ctx context.Context) error {
	return s.tx.Rollback(ctx)
}

// TouchVertex stamps the modification time and source of truth on v. New
// vertices also get the creation stamp.
func (s *Session) TouchVertex(ctx context.Context, v *graph.Vertex, isNew bool) error {
	ts := s.now().UnixMilli()
	props := graph.Properties{
		LastModTSKey:            ts,
		LastModSourceOfTruthKey: s.source,
	}
	if isNew {
		props[CreatedTSKey] = ts
		props[SourceOfTruthKey] = s.source
	}
	for k, val := range props {
		if err := s.tx.SetProperty(ctx, v.ID, k, val); err != nil {
			return err
		}
		if v.Properties != nil {
			v.Properties[k] = val
		}
	}
	return nil
}

// AsString renders the properties of a vertex or edge as JSON for logs.
func (s *Session) AsString(item any) string {
	var props graph.Properties
	switch x := item.(type) {
	case *graph.Vertex:
		props = x.Properties
	case *graph.Edge:
		props = x.Properties.Clone()
		props["label"] = x.Label
	default:
		return ""
	}
	data, err := json.Marshal(props)
	if err != nil {
		return ""
	}
	return string(data)
}

// HasEdgeBetween reports whether a has an edge with label to b in direction
// dir (Out: a -> b, In: b -> a, Both: either).
func (s *Session) HasEdgeBetween(ctx context.Context, a, b *graph.Vertex, dir graph.Direction, label string) (bool, error) {
	filter := graph.EdgeFilter{VertexID: a.ID, Dir: dir}
	if label != "" {
		filter.Labels = []string{label}
	}
	edges, err := s.tx.Edges(ctx, filter)
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		if e.Other(a.ID) == b.ID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Session) CreateTreeEdge(ctx context.Context, a, b *graph.Vertex) (*graph.Edge, error) {
	return s.applier.AddTreeEdge(ctx, s.tx, a, b)
}

func (s *Session) CreateCousinEdge(ctx context.Context, a, b *graph.Vertex, label string) (*graph.Edge, error) {
	return s.applier.AddCousinEdge(ctx, s.tx, a, b, label)
}

// CreateCousinEdgeBestEffort returns a nil edge when no rule maps the pair.
func (s *Session) CreateCousinEdgeBestEffort(ctx context.Context, a, b *graph.Vertex, label string) (*graph.Edge, error) {
	return s.applier.AddCousinEdgeBestEffort(ctx, s.tx, a, b, label)
}
