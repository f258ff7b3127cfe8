package migration

import (
	"context"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// MarkerNodeType tags the vertex that records which units have committed.
const MarkerNodeType = "migration-list-1707"

func findMarker(ctx context.Context, tx graph.Tx) (*graph.Vertex, error) {
	vertices, err := tx.Vertices(ctx, graph.VertexFilter{NodeTypes: []string{MarkerNodeType}})
	if err != nil {
		return nil, err
	}
	if len(vertices) == 0 {
		return nil, nil
	}
	return vertices[0], nil
}

// HasRun reports whether the unit name is recorded on the marker vertex.
func HasRun(ctx context.Context, tx graph.Tx, name string) (bool, error) {
	marker, err := findMarker(ctx, tx)
	if err != nil || marker == nil {
		return false, err
	}
	done, _ := marker.Value(name).(bool)
	return done, nil
}

// MarkRun records name on the marker vertex, creating it on first use. It
// must be called inside the unit's own transaction so the record commits
// together with the unit's changes.
func MarkRun(ctx context.Context, tx graph.Tx, name string) error {
	marker, err := findMarker(ctx, tx)
	if err != nil {
		return err
	}
	if marker == nil {
		marker, err = tx.AddVertex(ctx, MarkerNodeType, nil)
		if err != nil {
			return err
		}
	}
	return tx.SetProperty(ctx, marker.ID, name, true)
}
