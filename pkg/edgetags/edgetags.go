// Package edgetags rewrites the canonical properties of existing edges from
// the rule table.
package edgetags

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
)

// Filter selects the edges to update: every edge, or edges whose two
// vertices have the two given node types in either direction.
type Filter struct {
	all   bool
	types []string
}

// ParseFilter accepts "all" (any case) or "typeA|typeB".
func ParseFilter(s string) (Filter, error) {
	if strings.EqualFold(s, "all") {
		return Filter{all: true}, nil
	}
	parts := strings.Split(s, "|")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Filter{}, fmt.Errorf("invalid edge filter %q, expected \"all\" or \"typeA|typeB\"", s)
	}
	return Filter{types: parts}, nil
}

func (f Filter) String() string {
	if f.all {
		return "all"
	}
	return strings.Join(f.types, "|")
}

// Match reports whether an edge between the two node types passes.
func (f Filter) Match(outType, inType string) bool {
	if f.all {
		return true
	}
	remaining := slices.Clone(f.types)
	for _, t := range []string{outType, inType} {
		if i := slices.Index(remaining, t); i >= 0 {
			remaining = slices.Delete(remaining, i, i+1)
		}
	}
	return len(remaining) == 0
}

// Result counts the edges of one pass.
type Result struct {
	Scanned int
	Updated int
}

// Updater applies rule properties to existing edges.
type Updater struct {
	engine graph.Engine
	table  *edgerules.Table
}

func NewUpdater(engine graph.Engine, table *edgerules.Table) *Updater {
	return &Updater{engine: engine, table: table}
}

// Run updates every edge passing filter in one transaction. An edge whose
// node types and label have no rule aborts the pass and nothing is
// committed.
func (u *Updater) Run(ctx context.Context, filter Filter) (Result, error) {
	var res Result

	tx, err := u.engine.Begin(ctx)
	if err != nil {
		return res, err
	}
	defer tx.Rollback(ctx)

	edges, err := tx.Edges(ctx, graph.EdgeFilter{})
	if err != nil {
		return res, err
	}

	for _, e := range edges {
		res.Scanned++
		out, in, err := graph.Endpoints(ctx, tx, e)
		if err != nil {
			return res, err
		}
		if !filter.Match(out.NodeType, in.NodeType) {
			logger.Debug("[EdgeTags][Run] Skipping edge", "edge", e.ID, "key", out.NodeType+"|"+in.NodeType+"|"+e.Label)
			continue
		}

		rules := u.table.RulesWithLabel(out.NodeType, in.NodeType, e.Label)
		rule, ok := rules[e.Label]
		if !ok {
			logger.Error("[EdgeTags][Run] Edge has no rule", "edge", e.ID, "out", out.ID, "in", in.ID)
			return res, &edgerules.NotFoundError{From: out.NodeType, To: in.NodeType, Label: e.Label}
		}
		if err := edgerules.ApplyProperties(ctx, tx, e, out.NodeType, in.NodeType, rule); err != nil {
			return res, fmt.Errorf("update edge %s: %w", e.ID, err)
		}
		res.Updated++
	}

	if err := tx.Commit(ctx); err != nil {
		return res, err
	}
	logger.Info("[EdgeTags][Run] Committed updates for listed edges", "filter", filter.String(), "scanned", res.Scanned, "updated", res.Updated)
	return res, nil
}
