package migrations

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrated(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"org.onap.relationships.inventory.LocatedIn", true},
		{"tosca.relationships.network.BindsTo", true},
		{"locatedIn", false},
		{"sourceLInterface", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Migrated(tt.label), tt.label)
	}
}

func TestEdgeRetag_Metadata(t *testing.T) {
	m := NewEdgeRetag()
	assert.Equal(t, "migrate-all-edges", m.Name())
	assert.Equal(t, 0, m.Priority())
	assert.Equal(t, 10, m.DangerRating())
	assert.Nil(t, m.AffectedNodeTypes())
}

func TestEdgeRetag_RetagsTreeAndCousinEdges(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	var ps, cx, pi, li, ll *graph.Vertex
	build(t, eng, func(b *builder) {
		ps = b.v("pserver", graph.Properties{"hostname": "ps1"})
		cx = b.v("complex", graph.Properties{"physical-location-id": "clli1"})
		pi = b.v("p-interface", graph.Properties{"interface-name": "ge-0/0/10"})
		li = b.v("l-interface", graph.Properties{"interface-name": "li1"})
		ll = b.v("logical-link", graph.Properties{"link-name": "ll1"})

		b.e("locatedIn", ps, cx, cousinProps)
		b.e("hasPinterface", ps, pi, graph.Properties{IsParentKey: true})
		b.e("sourceLInterface", li, ll, graph.Properties{IsParentKey: false})
	})

	s := newSession(t, eng, EdgeRetagName)
	m := NewEdgeRetag()
	require.NoError(t, m.Run(ctx, s))
	status, err := m.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, migration.Success, status)
	assert.Equal(t, 3, m.Retagged())
	assert.Empty(t, m.Tallies())

	edges := edgesOf(t, s)
	assert.ElementsMatch(t, []string{
		"org.onap.relationships.inventory.LocatedIn",
		"tosca.relationships.network.BindsTo",
		"org.onap.relationships.inventory.Source",
	}, labels(edges))

	for _, e := range edges {
		switch e.Label {
		case "org.onap.relationships.inventory.LocatedIn":
			assert.Equal(t, ps.ID, e.OutID)
			assert.Equal(t, cx.ID, e.InID)
			assert.Equal(t, graph.DirectionNone, e.Properties[graph.ContainsOtherV])
			assert.Equal(t, graph.DirectionIn, e.Properties[graph.PreventDelete])
		case "tosca.relationships.network.BindsTo":
			assert.Equal(t, pi.ID, e.OutID, "tree edge points from child to parent")
			assert.Equal(t, ps.ID, e.InID)
			assert.Equal(t, graph.DirectionIn, e.Properties[graph.ContainsOtherV])
			assert.NotContains(t, e.Properties, IsParentKey)
		case "org.onap.relationships.inventory.Source":
			assert.Equal(t, li.ID, e.OutID)
			assert.Equal(t, ll.ID, e.InID)
		}
	}
}

func TestEdgeRetag_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	build(t, eng, func(b *builder) {
		ps := b.v("pserver", nil)
		cx := b.v("complex", nil)
		b.e("locatedIn", ps, cx, cousinProps)
	})

	first := newSession(t, eng, EdgeRetagName)
	require.NoError(t, NewEdgeRetag().Run(ctx, first))
	require.NoError(t, first.Commit(ctx))

	second := newSession(t, eng, EdgeRetagName)
	before := edgesOf(t, second)
	m := NewEdgeRetag()
	require.NoError(t, m.Run(ctx, second))
	assert.Equal(t, 0, m.Retagged())
	assert.Equal(t, before, edgesOf(t, second))
}

func TestEdgeRetag_TalliesMultiplicityAndContinues(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	build(t, eng, func(b *builder) {
		for range 3 {
			ps := b.v("pserver", nil)
			b.e("locatedIn", ps, b.v("complex", nil), cousinProps)
			b.e("locatedIn", ps, b.v("complex", nil), cousinProps)
		}
		si := b.v("service-instance", nil)
		b.e("uses", si, b.v("configuration", nil), cousinProps)

		ps := b.v("pserver", nil)
		b.e("hasPinterface", ps, b.v("p-interface", nil), graph.Properties{IsParentKey: true})
	})

	s := newSession(t, eng, EdgeRetagName)
	m := NewEdgeRetag()
	require.NoError(t, m.Run(ctx, s))
	assert.Equal(t, map[string]int{
		"OUT:pserver COUSIN IN:complex":                1 * 3,
		"OUT:service-instance COUSIN IN:configuration": 1,
	}, m.Tallies())
	assert.Equal(t, 4, m.Retagged())

	status, err := m.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, migration.Success, status)

	left := 0
	for _, e := range edgesOf(t, s) {
		if !Migrated(e.Label) {
			left++
		}
	}
	assert.Equal(t, 4, left)
}

func TestEdgeRetag_MissingParentPropertyTreatedAsTree(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	build(t, eng, func(b *builder) {
		b.e("hasPinterface", b.v("pserver", nil), b.v("p-interface", nil), nil)
	})

	s := newSession(t, eng, EdgeRetagName)
	m := NewEdgeRetag()
	require.NoError(t, m.Run(ctx, s))
	assert.Equal(t, 1, m.missingParent)
	assert.Equal(t, []string{"tosca.relationships.network.BindsTo"}, labels(edgesOf(t, s)))
}

func TestEdgeRetag_UnmappedPairFailsUnit(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	build(t, eng, func(b *builder) {
		b.e("locatedIn", b.v("pserver", nil), b.v("complex", nil), cousinProps)
		b.e("runsOn", b.v("vnfc", nil), b.v("complex", nil), cousinProps)
	})

	s := newSession(t, eng, EdgeRetagName)
	err := NewEdgeRetag().Run(ctx, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, edgerules.ErrRuleNotFound)

	var nf *edgerules.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "vnfc", nf.From)
	assert.Equal(t, "complex", nf.To)
}
