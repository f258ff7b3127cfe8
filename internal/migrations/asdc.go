package migrations

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"
)

const (
	ASDCName = "MigrateDataFromASDCToConfiguration"

	belongsTo  = "org.onap.relationships.inventory.BelongsTo"
	composedOf = "org.onap.relationships.inventory.ComposedOf"
	uses       = "org.onap.relationships.inventory.Uses"

	vntProperty = "vendor-allowed-max-bandwidth"
)

// ASDCToConfiguration copies the vendor-allowed-max-bandwidth of each
// entitlement pool in a tab separated input file onto the configurations
// reached through entitlement, vHNF generic-vnf and service-instance.
type ASDCToConfiguration struct {
	input    string
	modified int
	written  map[string]string
}

func NewASDCToConfiguration(input string) *ASDCToConfiguration {
	return &ASDCToConfiguration{input: input, written: map[string]string{}}
}

func (m *ASDCToConfiguration) Name() string                { return ASDCName }
func (m *ASDCToConfiguration) Priority() int               { return 20 }
func (m *ASDCToConfiguration) DangerRating() int           { return 2 }
func (m *ASDCToConfiguration) AffectedNodeTypes() []string { return []string{"generic-vnf"} }

// Modified returns how many configurations were updated.
func (m *ASDCToConfiguration) Modified() int {
	return m.modified
}

type vntRow struct {
	poolUUID string
	vnt      string
}

func readVNT(path string) ([]vntRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []vntRow
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.ReplaceAll(sc.Text(), `"`, "")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 2 {
			return nil, fmt.Errorf("line %q: expected two tab separated columns", line)
		}
		if cols[0] == "entitlement-pool-uuid" || cols[1] == "vendor-allowed-max-bandwidth (VNT)" {
			continue
		}
		rows = append(rows, vntRow{poolUUID: cols[0], vnt: cols[1]})
	}
	return rows, sc.Err()
}

func (m *ASDCToConfiguration) Run(ctx context.Context, s *migration.Session) error {
	logger.Info("[Migrations][ASDC] Reading input file", "file", m.input)
	rows, err := readVNT(m.input)
	if err != nil {
		return fmt.Errorf("read %s: %w", m.input, err)
	}
	for _, row := range rows {
		configs, err := m.configurations(ctx, s.Tx(), row.poolUUID)
		if err != nil {
			return err
		}
		for _, c := range configs {
			if err := s.Tx().SetProperty(ctx, c.ID, vntProperty, row.vnt); err != nil {
				return err
			}
			c.Properties[vntProperty] = row.vnt
			if err := s.TouchVertex(ctx, c, false); err != nil {
				return err
			}
			s.Notifications().AddEvent(migration.ActionUpdate, c)
			m.written[c.ID] = row.vnt
			logger.Debug("[Migrations][ASDC] Updated configuration", "configuration-id", c.Value("configuration-id"), "vnt", row.vnt)
		}
		m.modified += len(configs)
		logger.Info("[Migrations][ASDC] Modified configuration nodes", "count", len(configs), "entitlement", row.poolUUID)
	}
	return nil
}

func (m *ASDCToConfiguration) configurations(ctx context.Context, tx graph.Tx, poolUUID string) ([]*graph.Vertex, error) {
	entitlements, err := tx.Vertices(ctx, graph.VertexFilter{
		NodeTypes:  []string{"entitlement"},
		Properties: graph.Properties{"group-uuid": poolUUID},
	})
	if err != nil {
		return nil, err
	}
	var out []*graph.Vertex
	for _, ent := range entitlements {
		vnfs, err := graph.Neighbors(ctx, tx, ent, graph.Out, belongsTo)
		if err != nil {
			return nil, err
		}
		for _, vnf := range vnfs {
			if vnf.NodeType != "generic-vnf" || vnf.Value("vnf-type") != "vHNF" {
				continue
			}
			instances, err := graph.Neighbors(ctx, tx, vnf, graph.In, composedOf)
			if err != nil {
				return nil, err
			}
			for _, si := range instances {
				if si.NodeType != "service-instance" {
					continue
				}
				configs, err := graph.Neighbors(ctx, tx, si, graph.Out, uses)
				if err != nil {
					return nil, err
				}
				for _, c := range configs {
					if c.NodeType == "configuration" {
						out = append(out, c)
					}
				}
			}
		}
	}
	return out, nil
}

// Status re-reads every configuration the run wrote.
func (m *ASDCToConfiguration) Status(ctx context.Context, s *migration.Session) (migration.Status, error) {
	for id, want := range m.written {
		v, err := s.Tx().Vertex(ctx, id)
		if err != nil {
			return migration.Failure, err
		}
		if got, _ := v.Properties.String(vntProperty); got != want {
			logger.Error("[Migrations][ASDC] Configuration not updated", "id", id, "want", want, "got", got)
			return migration.Failure, nil
		}
	}
	return migration.Success, nil
}
