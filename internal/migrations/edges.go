package migrations

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"
)

// EdgeRetagName is the migration name of the edge retag unit.
const EdgeRetagName = "migrate-all-edges"

// IsParentKey is the containment flag edges carried before contains-other-v.
const IsParentKey = "isParent"

// Migrated reports whether an edge label already carries a rule namespace.
func Migrated(label string) bool {
	return strings.Contains(label, "org.") || strings.Contains(label, "tosca.")
}

// EdgeRetag replaces every edge that still has a pre-namespace label with
// the edge its rule describes today. Ambiguous and multiplicity failures are
// tallied per node-type pair and leave the old edge in place. A pair without
// any rule fails the unit.
type EdgeRetag struct {
	tallies       map[string]int
	missingParent int
	retagged      int
}

func NewEdgeRetag() *EdgeRetag {
	return &EdgeRetag{tallies: map[string]int{}}
}

func (m *EdgeRetag) Name() string                { return EdgeRetagName }
func (m *EdgeRetag) Priority() int               { return 0 }
func (m *EdgeRetag) DangerRating() int           { return migration.ClampDanger(1000) }
func (m *EdgeRetag) AffectedNodeTypes() []string { return nil }

// Tallies returns the skipped edge count per "OUT:<type> <kind> IN:<type>".
func (m *EdgeRetag) Tallies() map[string]int {
	return maps.Clone(m.tallies)
}

// Retagged returns how many edges were replaced.
func (m *EdgeRetag) Retagged() int {
	return m.retagged
}

func (m *EdgeRetag) Run(ctx context.Context, s *migration.Session) error {
	tx := s.Tx()
	edges, err := tx.Edges(ctx, graph.EdgeFilter{})
	if err != nil {
		return err
	}

	for _, e := range edges {
		if Migrated(e.Label) {
			continue
		}
		out, in, err := graph.Endpoints(ctx, tx, e)
		if err != nil {
			logger.Error("[Migrations][EdgeRetag] Edge has a missing vertex", "edge", e.ID, "err", err)
			continue
		}

		typ := edgerules.Tree
		if v, ok := e.Properties.String(graph.ContainsOtherV); ok {
			if v == graph.DirectionNone {
				typ = edgerules.Cousin
			}
		} else if v, ok := e.Properties[IsParentKey].(bool); ok {
			if !v {
				typ = edgerules.Cousin
			}
		} else {
			m.missingParent++
			logger.Warn("[Migrations][EdgeRetag] Edge has no containment property", "edge", s.AsString(e))
		}

		_, err = s.Applier().Apply(ctx, tx, typ, out, in, e.Label)
		if err != nil {
			if edgerules.Tallyable(err) {
				key := fmt.Sprintf("OUT:%s %s IN:%s", out.NodeType, typ, in.NodeType)
				m.tallies[key]++
				logger.Warn("[Migrations][EdgeRetag] Edge multiplicity exception",
					"in", s.AsString(in), "edge", s.AsString(e), "out", s.AsString(out), "err", err)
				continue
			}
			if errors.Is(err, edgerules.ErrRuleNotFound) {
				return fmt.Errorf("edge %s: %w", e.ID, err)
			}
			return err
		}
		if err := tx.RemoveEdge(ctx, e.ID); err != nil {
			return err
		}
		m.retagged++
	}

	total := 0
	for _, n := range m.tallies {
		total += n
	}
	keys := slices.Sorted(maps.Keys(m.tallies))
	logger.Info("[Migrations][EdgeRetag] Edge missing parent property count", "count", m.missingParent)
	logger.Info("[Migrations][EdgeRetag] Edge multiplicity exception count", "count", total)
	for _, k := range keys {
		logger.Info("[Migrations][EdgeRetag] Edge multiplicity exception breakdown", "key", k, "count", m.tallies[k])
	}
	logger.Info("[Migrations][EdgeRetag] Retagged edges", "count", m.retagged)
	return nil
}

// Status checks that the only edges left without a namespace are the ones
// that were tallied.
func (m *EdgeRetag) Status(ctx context.Context, s *migration.Session) (migration.Status, error) {
	edges, err := s.Tx().Edges(ctx, graph.EdgeFilter{})
	if err != nil {
		return migration.Failure, err
	}
	left := 0
	for _, e := range edges {
		if !Migrated(e.Label) {
			left++
		}
	}
	tallied := 0
	for _, n := range m.tallies {
		tallied += n
	}
	if left > tallied {
		logger.Error("[Migrations][EdgeRetag] Edges left without a rule namespace", "left", left, "tallied", tallied)
		return migration.Failure, nil
	}
	return migration.Success, nil
}
