package migrations

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/stretchr/testify/require"
)

func testApplier(t *testing.T) *edgerules.Applier {
	t.Helper()
	table, err := edgerules.LoadFile("testdata/rules.json")
	require.NoError(t, err)
	return edgerules.NewApplier(edgerules.NewResolver(table))
}

// builder adds fixture vertices and edges inside one committed transaction.
type builder struct {
	t   *testing.T
	ctx context.Context
	tx  graph.Tx
}

func build(t *testing.T, eng graph.Engine, fn func(b *builder)) {
	t.Helper()
	ctx := context.Background()
	tx, err := eng.Begin(ctx)
	require.NoError(t, err)
	fn(&builder{t: t, ctx: ctx, tx: tx})
	require.NoError(t, tx.Commit(ctx))
}

func (b *builder) v(nodeType string, props graph.Properties) *graph.Vertex {
	b.t.Helper()
	v, err := b.tx.AddVertex(b.ctx, nodeType, props)
	require.NoError(b.t, err)
	return v
}

func (b *builder) e(label string, out, in *graph.Vertex, props graph.Properties) *graph.Edge {
	b.t.Helper()
	e, err := b.tx.AddEdge(b.ctx, label, out.ID, in.ID, props)
	require.NoError(b.t, err)
	return e
}

func newSession(t *testing.T, eng graph.Engine, name string) *migration.Session {
	t.Helper()
	tx, err := eng.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return migration.NewSession(tx, testApplier(t), migration.WithSource(name))
}

func edgesOf(t *testing.T, s *migration.Session) []*graph.Edge {
	t.Helper()
	edges, err := s.Tx().Edges(context.Background(), graph.EdgeFilter{})
	require.NoError(t, err)
	return edges
}

func labels(edges []*graph.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.Label)
	}
	return out
}

var cousinProps = graph.Properties{graph.ContainsOtherV: graph.DirectionNone}
