package migrations

import (
	"context"
	"testing"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wanChain struct {
	port  string
	speed graph.Properties
	link  graph.Properties
}

// addWanChain builds one DHV subscription down to a physical link behind the
// given pserver port and returns the link.
func addWanChain(b *builder, c wanChain) *graph.Vertex {
	sub := b.v("service-subscription", graph.Properties{"service-type": "DHV"})
	si := b.v("service-instance", graph.Properties{"service-type": "DHV"})
	ar := b.v("allotted-resource", graph.Properties{"id": "rsrc1"})
	vvigSub := b.v("service-subscription", graph.Properties{"service-type": "VVIG"})
	vvig := b.v("service-instance", graph.Properties{"service-type": "VVIG"})
	txc := b.v("tunnel-xconnect", c.speed)
	vnf := b.v("generic-vnf", graph.Properties{"vnf-id": "vnfId1"})
	vs := b.v("vserver", nil)
	ps := b.v("pserver", nil)
	pi := b.v("p-interface", graph.Properties{"interface-name": c.port})
	link := b.v("physical-link", c.link)

	b.e("org.onap.relationships.inventory.BelongsTo", si, sub, nil)
	b.e("org.onap.relationships.inventory.Uses", si, ar, nil)
	b.e("org.onap.relationships.inventory.BelongsTo", vvig, vvigSub, nil)
	b.e("org.onap.relationships.inventory.BelongsTo", ar, vvig, nil)
	b.e("org.onap.relationships.inventory.BelongsTo", txc, ar, nil)
	b.e("org.onap.relationships.inventory.ComposedOf", si, vnf, nil)
	b.e("tosca.relationships.HostedOn", vnf, vs, nil)
	b.e("tosca.relationships.HostedOn", vs, ps, nil)
	b.e("tosca.relationships.network.BindsTo", pi, ps, nil)
	b.e("tosca.relationships.network.LinksTo", pi, link, nil)
	return link
}

func speeds(up1, down1, up2, down2 string) graph.Properties {
	return graph.Properties{
		"bandwidth-up-wan1":   up1,
		"bandwidth-down-wan1": down1,
		"bandwidth-up-wan2":   up2,
		"bandwidth-down-wan2": down2,
	}
}

func linkProps(name, fill string) graph.Properties {
	return graph.Properties{
		"link-name": name,
		bwUpValue:   fill,
		bwUpUnits:   fill,
		bwDownValue: fill,
		bwDownUnits: fill,
	}
}

func TestSplitSpeed(t *testing.T) {
	tests := []struct {
		in        string
		value     string
		units     string
		wantSplit bool
	}{
		{"300 Mbps", "300", "Mbps", true},
		{"  1 Gbps ", "1", "Gbps", true},
		{"", "", "", false},
		{"300", "", "", false},
		{"300 Mbps extra", "", "", false},
	}
	for _, tt := range tests {
		value, units, ok := splitSpeed(tt.in)
		assert.Equal(t, tt.wantSplit, ok, tt.in)
		assert.Equal(t, tt.value, value, tt.in)
		assert.Equal(t, tt.units, units, tt.in)
	}
}

func TestSDWANSpeedChange(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	var wan1, wan2, wan1Empty, wan2Empty *graph.Vertex
	build(t, eng, func(b *builder) {
		wan1 = addWanChain(b, wanChain{
			port:  "ge-0/0/10",
			speed: speeds("300 Mbps", "400 Mbps", "500 Mbps", "600 Mbps"),
			link:  linkProps("pLinkWan1", "empty"),
		})
		wan2 = addWanChain(b, wanChain{
			port:  "ge-0/0/11",
			speed: speeds("300 Mbps", "400 Mbps", "500 Mbps", "600 Mbps"),
			link:  linkProps("pLinkWan3", "empty"),
		})
		wan1Empty = addWanChain(b, wanChain{
			port:  "ge-0/0/10",
			speed: speeds("", "", "500 Mbps", "600 Mbps"),
			link:  linkProps("pLinkWan5", ""),
		})
		wan2Empty = addWanChain(b, wanChain{
			port:  "ge-0/0/11",
			speed: speeds("300 Mbps", "400 Mbps", "", ""),
			link:  linkProps("pLinkWan7", ""),
		})
	})

	s := newSession(t, eng, SDWANName)
	unit := SDWANSpeedChange()
	require.NoError(t, unit.Run(ctx, s))
	status, err := unit.Status(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, migration.Success, status)

	get := func(v *graph.Vertex) *graph.Vertex {
		got, err := s.Tx().Vertex(ctx, v.ID)
		require.NoError(t, err)
		return got
	}

	link := get(wan1)
	assert.Equal(t, "300", link.Value(bwUpValue))
	assert.Equal(t, "Mbps", link.Value(bwUpUnits))
	assert.Equal(t, "400", link.Value(bwDownValue))
	assert.Equal(t, "Mbps", link.Value(bwDownUnits))
	assert.Equal(t, SDWANName, link.Value(migration.LastModSourceOfTruthKey))

	link = get(wan2)
	assert.Equal(t, "500", link.Value(bwUpValue))
	assert.Equal(t, "Mbps", link.Value(bwUpUnits))
	assert.Equal(t, "600", link.Value(bwDownValue))
	assert.Equal(t, "Mbps", link.Value(bwDownUnits))

	for _, v := range []*graph.Vertex{wan1Empty, wan2Empty} {
		link := get(v)
		for _, k := range []string{bwUpValue, bwUpUnits, bwDownValue, bwDownUnits} {
			assert.Equal(t, "", link.Value(k), "%s %s", link.Value("link-name"), k)
		}
		assert.False(t, link.Has(migration.LastModTSKey))
	}

	assert.Equal(t, 2, s.Notifications().Len())
}

func TestSDWANSpeedChange_IgnoresOtherServiceTypes(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	var link *graph.Vertex
	build(t, eng, func(b *builder) {
		link = addWanChain(b, wanChain{
			port:  "ge-0/0/10",
			speed: speeds("300 Mbps", "400 Mbps", "", ""),
			link:  linkProps("pLink", "empty"),
		})
		subs, err := b.tx.Vertices(b.ctx, graph.VertexFilter{
			NodeTypes:  []string{"service-subscription"},
			Properties: graph.Properties{"service-type": "DHV"},
		})
		require.NoError(t, err)
		for _, sub := range subs {
			require.NoError(t, b.tx.SetProperty(b.ctx, sub.ID, "service-type", "VVIG"))
		}
	})

	s := newSession(t, eng, SDWANName)
	require.NoError(t, SDWANSpeedChange().Run(ctx, s))
	got, err := s.Tx().Vertex(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "empty", got.Value(bwUpValue))
	assert.Zero(t, s.Notifications().Len())
}
