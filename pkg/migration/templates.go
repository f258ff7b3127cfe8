package migration

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
)

// PropertyRename moves the value of OldField to NewField on every vertex of
// NodeTypes (all types when empty) and removes OldField. It succeeds when no
// vertex in scope still carries OldField.
type PropertyRename struct {
	Name         string
	OldField     string
	NewField     string
	NodeTypes    []string
	Indexed      bool
	Priority     int
	DangerRating int
}

// Unit composes the rename into a runnable unit.
func (r PropertyRename) Unit() *Unit {
	danger := r.DangerRating
	if danger == 0 {
		danger = 1
	}
	return NewUnit(r.Name).
		Priority(r.Priority).
		DangerRating(danger).
		NodeTypes(r.NodeTypes...).
		Schema(r.modifySchema).
		Operation(r.rename).
		Status(r.status).
		Build()
}

func (r PropertyRename) modifySchema(ctx context.Context, s *Session) error {
	if !r.Indexed {
		return nil
	}
	idx, ok := s.Tx().(graph.Indexer)
	if !ok {
		logger.Warn("[Migration][PropertyRename] Store does not support property indexes", "property", r.NewField)
		return nil
	}
	created, err := idx.EnsurePropertyIndex(ctx, r.NewField)
	if err != nil {
		return fmt.Errorf("index %s: %w", r.NewField, err)
	}
	if created {
		logger.Info("[Migration][PropertyRename] Added index", "property", r.NewField)
	} else {
		logger.Debug("[Migration][PropertyRename] Index already exists", "property", r.NewField)
	}
	return nil
}

func (r PropertyRename) rename(ctx context.Context, s *Session) error {
	vertices, err := s.Tx().Vertices(ctx, graph.VertexFilter{NodeTypes: r.NodeTypes, HasProperty: r.OldField})
	if err != nil {
		return err
	}
	for _, v := range vertices {
		value := v.Value(r.OldField)
		if err := s.Tx().RemoveProperty(ctx, v.ID, r.OldField); err != nil {
			return err
		}
		if err := s.Tx().SetProperty(ctx, v.ID, r.NewField, value); err != nil {
			return err
		}
		if err := s.TouchVertex(ctx, v, false); err != nil {
			return err
		}
	}
	logger.Info("[Migration][PropertyRename] Renamed property", "from", r.OldField, "to", r.NewField, "vertices", len(vertices))
	return nil
}

func (r PropertyRename) status(ctx context.Context, s *Session) (Status, error) {
	remaining, err := s.Tx().Vertices(ctx, graph.VertexFilter{NodeTypes: r.NodeTypes, HasProperty: r.OldField})
	if err != nil {
		return Failure, err
	}
	if len(remaining) == 0 {
		return Success, nil
	}
	return Failure, nil
}

// ValueBackfill sets default property values per node type. A value is
// written where the property is missing or the empty string, and on every
// vertex in scope when UpdateExisting is set.
type ValueBackfill struct {
	Name           string
	Values         map[string]graph.Properties
	UpdateExisting bool
	Priority       int
	DangerRating   int
}

func (b ValueBackfill) nodeTypes() []string {
	return slices.Sorted(maps.Keys(b.Values))
}

// Unit composes the backfill into a runnable unit.
func (b ValueBackfill) Unit() *Unit {
	return NewUnit(b.Name).
		Priority(b.Priority).
		DangerRating(b.DangerRating).
		NodeTypes(b.nodeTypes()...).
		Operation(b.backfill).
		Status(b.status).
		Build()
}

func (b ValueBackfill) needsUpdate(v *graph.Vertex, key string, want any) bool {
	got, ok := v.Properties[key]
	if !ok || got == "" {
		return true
	}
	return b.UpdateExisting && !graph.SameValue(got, want)
}

func (b ValueBackfill) backfill(ctx context.Context, s *Session) error {
	for _, nodeType := range b.nodeTypes() {
		defaults := b.Values[nodeType]
		vertices, err := s.Tx().Vertices(ctx, graph.VertexFilter{NodeTypes: []string{nodeType}})
		if err != nil {
			return err
		}
		updated := 0
		for _, v := range vertices {
			touched := false
			for _, key := range slices.Sorted(maps.Keys(defaults)) {
				if !b.needsUpdate(v, key, defaults[key]) {
					continue
				}
				if err := s.Tx().SetProperty(ctx, v.ID, key, defaults[key]); err != nil {
					return err
				}
				v.Properties[key] = defaults[key]
				touched = true
			}
			if !touched {
				continue
			}
			if err := s.TouchVertex(ctx, v, false); err != nil {
				return err
			}
			s.Notifications().AddEvent(ActionUpdate, v)
			updated++
		}
		logger.Info("[Migration][ValueBackfill] Updated vertices", "nodeType", nodeType, "updated", updated, "total", len(vertices))
	}
	return nil
}

func (b ValueBackfill) status(ctx context.Context, s *Session) (Status, error) {
	for _, nodeType := range b.nodeTypes() {
		vertices, err := s.Tx().Vertices(ctx, graph.VertexFilter{NodeTypes: []string{nodeType}})
		if err != nil {
			return Failure, err
		}
		for _, v := range vertices {
			for key, want := range b.Values[nodeType] {
				if b.needsUpdate(v, key, want) {
					return Failure, nil
				}
			}
		}
	}
	return Success, nil
}
