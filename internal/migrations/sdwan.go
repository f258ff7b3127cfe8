package migrations

import (
	"context"
	"strings"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"
)

const SDWANName = "SDWANSpeedChangeMigration"

const (
	bwUpValue    = "service-provider-bandwidth-up-value"
	bwUpUnits    = "service-provider-bandwidth-up-units"
	bwDownValue  = "service-provider-bandwidth-down-value"
	bwDownUnits  = "service-provider-bandwidth-down-units"
	dhvService   = "DHV"
	wan1PortName = "ge-0/0/10"
	wan2PortName = "ge-0/0/11"
)

// wanKeys maps a WAN port to the tunnel-xconnect properties holding its
// speeds.
var wanKeys = map[string][2]string{
	wan1PortName: {"bandwidth-up-wan1", "bandwidth-down-wan1"},
	wan2PortName: {"bandwidth-up-wan2", "bandwidth-down-wan2"},
}

// SDWANSpeedChange copies the WAN speeds of each DHV service's
// tunnel-xconnect onto the physical-links behind the matching pserver WAN
// port. Links whose source speeds are empty are left as they are.
func SDWANSpeedChange() *migration.Unit {
	return migration.NewUnit(SDWANName).
		Priority(10).
		DangerRating(1).
		NodeTypes("physical-link").
		Operation(changeSpeeds).
		Build()
}

// splitSpeed turns "300 Mbps" into "300" and "Mbps".
func splitSpeed(s string) (value, units string, ok bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return "", "", false
	}
	return fields[0], fields[1], true
}

func changeSpeeds(ctx context.Context, s *migration.Session) error {
	tx := s.Tx()
	subs, err := tx.Vertices(ctx, graph.VertexFilter{
		NodeTypes:  []string{"service-subscription"},
		Properties: graph.Properties{"service-type": dhvService},
	})
	if err != nil {
		return err
	}

	updated := 0
	for _, sub := range subs {
		instances, err := graph.NeighborsOfType(ctx, tx, sub, graph.Both, "service-instance")
		if err != nil {
			return err
		}
		for _, si := range instances {
			xconnects, err := tunnelXConnects(ctx, tx, si)
			if err != nil {
				return err
			}
			ports, err := wanPorts(ctx, tx, si)
			if err != nil {
				return err
			}
			for _, txc := range xconnects {
				for _, port := range ports {
					n, err := applySpeeds(ctx, s, txc, port)
					if err != nil {
						return err
					}
					updated += n
				}
			}
		}
	}
	logger.Info("[Migrations][SDWAN] Updated physical links", "count", updated)
	return nil
}

func tunnelXConnects(ctx context.Context, tx graph.Tx, si *graph.Vertex) ([]*graph.Vertex, error) {
	resources, err := graph.NeighborsOfType(ctx, tx, si, graph.Both, "allotted-resource")
	if err != nil {
		return nil, err
	}
	var out []*graph.Vertex
	for _, ar := range resources {
		txcs, err := graph.NeighborsOfType(ctx, tx, ar, graph.Both, "tunnel-xconnect")
		if err != nil {
			return nil, err
		}
		out = append(out, txcs...)
	}
	return out, nil
}

// wanPorts follows service-instance, generic-vnf, vserver and pserver to the
// p-interfaces named like a WAN port.
func wanPorts(ctx context.Context, tx graph.Tx, si *graph.Vertex) ([]*graph.Vertex, error) {
	frontier := []*graph.Vertex{si}
	for _, nodeType := range []string{"generic-vnf", "vserver", "pserver", "p-interface"} {
		var next []*graph.Vertex
		for _, v := range frontier {
			n, err := graph.NeighborsOfType(ctx, tx, v, graph.Both, nodeType)
			if err != nil {
				return nil, err
			}
			next = append(next, n...)
		}
		frontier = next
	}
	out := frontier[:0]
	for _, p := range frontier {
		name, _ := p.Properties.String("interface-name")
		if _, ok := wanKeys[name]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func applySpeeds(ctx context.Context, s *migration.Session, txc, port *graph.Vertex) (int, error) {
	name, _ := port.Properties.String("interface-name")
	keys := wanKeys[name]
	up, _ := txc.Properties.String(keys[0])
	down, _ := txc.Properties.String(keys[1])
	upValue, upUnits, okUp := splitSpeed(up)
	downValue, downUnits, okDown := splitSpeed(down)
	if !okUp || !okDown {
		logger.Debug("[Migrations][SDWAN] Tunnel xconnect has no speed for port", "tunnel-xconnect", txc.Value("id"), "port", name)
		return 0, nil
	}

	links, err := graph.NeighborsOfType(ctx, s.Tx(), port, graph.Both, "physical-link")
	if err != nil {
		return 0, err
	}
	values := graph.Properties{
		bwUpValue:   upValue,
		bwUpUnits:   upUnits,
		bwDownValue: downValue,
		bwDownUnits: downUnits,
	}
	for _, link := range links {
		for k, v := range values {
			if err := s.Tx().SetProperty(ctx, link.ID, k, v); err != nil {
				return 0, err
			}
			link.Properties[k] = v
		}
		if err := s.TouchVertex(ctx, link, false); err != nil {
			return 0, err
		}
		s.Notifications().AddEvent(migration.ActionUpdate, link)
		logger.Info("[Migrations][SDWAN] Updated physical link", "link-name", link.Value("link-name"), "port", name)
	}
	return len(links), nil
}
