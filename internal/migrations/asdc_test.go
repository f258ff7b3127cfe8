package migrations

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVNT(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "VNT-input.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadVNT(t *testing.T) {
	path := writeVNT(t, "\"entitlement-pool-uuid\"\t\"vendor-allowed-max-bandwidth (VNT)\"\n"+
		"\"pool-1\"\t\"20\"\n\npool-2\t30\n")
	rows, err := readVNT(path)
	require.NoError(t, err)
	assert.Equal(t, []vntRow{{poolUUID: "pool-1", vnt: "20"}, {poolUUID: "pool-2", vnt: "30"}}, rows)

	_, err = readVNT(writeVNT(t, "only-one-column\n"))
	assert.Error(t, err)

	_, err = readVNT(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestASDCToConfiguration(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	var matched, otherType, otherPool *graph.Vertex
	build(t, eng, func(b *builder) {
		chain := func(pool, vnfType string) *graph.Vertex {
			ent := b.v("entitlement", graph.Properties{"group-uuid": pool})
			vnf := b.v("generic-vnf", graph.Properties{"vnf-type": vnfType})
			si := b.v("service-instance", nil)
			cfg := b.v("configuration", graph.Properties{"configuration-id": pool + "-" + vnfType})
			b.e(belongsTo, ent, vnf, nil)
			b.e(composedOf, si, vnf, nil)
			b.e(uses, si, cfg, nil)
			return cfg
		}
		matched = chain("pool-1", "vHNF")
		otherType = chain("pool-1", "vRouter")
		otherPool = chain("pool-9", "vHNF")
	})

	m := NewASDCToConfiguration(writeVNT(t, "entitlement-pool-uuid\tvendor-allowed-max-bandwidth (VNT)\npool-1\t20\n"))
	assert.Equal(t, ASDCName, m.Name())
	assert.Equal(t, []string{"generic-vnf"}, m.AffectedNodeTypes())

	s := newSession(t, eng, ASDCName)
	require.NoError(t, m.Run(ctx, s))
	assert.Equal(t, 1, m.Modified())

	status, err := m.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, migration.Success, status)

	got, err := s.Tx().Vertex(ctx, matched.ID)
	require.NoError(t, err)
	assert.Equal(t, "20", got.Value(vntProperty))
	assert.Equal(t, ASDCName, got.Value(migration.LastModSourceOfTruthKey))

	for _, v := range []*graph.Vertex{otherType, otherPool} {
		got, err := s.Tx().Vertex(ctx, v.ID)
		require.NoError(t, err)
		assert.False(t, got.Has(vntProperty))
	}

	events := s.Notifications().Events()
	require.Len(t, events, 1)
	assert.Equal(t, migration.ActionUpdate, events[0].Action)
}

func TestASDCToConfiguration_MissingInputFails(t *testing.T) {
	s := newSession(t, graph.NewMemoryEngine(), ASDCName)
	err := NewASDCToConfiguration(filepath.Join(t.TempDir(), "none.txt")).Run(context.Background(), s)
	assert.Error(t, err)
}
