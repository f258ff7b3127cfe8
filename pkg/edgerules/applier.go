package edgerules

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// Applier writes edges that follow the rules of one Resolver. Tree and
// cousin helpers both resolve through it so the table stays the single
// source of truth.
type Applier struct {
	resolver *Resolver
}

// NewApplier creates an Applier.
func NewApplier(resolver *Resolver) *Applier {
	return &Applier{resolver: resolver}
}

// Resolver returns the resolver the applier uses.
func (a *Applier) Resolver() *Resolver {
	return a.resolver
}

// ApplyRequired creates an edge between v1 and v2 following rule. The edge
// direction comes from the rule, not from argument order. It fails with
// NotFoundError when the rule does not cover the pair and with
// MultiplicityError when the edge would exceed the rule's multiplicity.
func (a *Applier) ApplyRequired(ctx context.Context, tx graph.Tx, rule Rule, v1, v2 *graph.Vertex) (*graph.Edge, error) {
	if !rule.Covers(v1.NodeType, v2.NodeType) {
		return nil, &NotFoundError{From: v1.NodeType, To: v2.NodeType, Label: rule.Label}
	}
	oriented := rule.Orient(v1.NodeType, v2.NodeType)
	out, in := v1, v2
	if oriented.Direction == graph.DirectionIn {
		out, in = v2, v1
		oriented = oriented.Flip()
	}
	if err := checkMultiplicity(ctx, tx, oriented, out, in); err != nil {
		return nil, err
	}
	return tx.AddEdge(ctx, oriented.Label, out.ID, in.ID, oriented.Properties())
}

// Apply resolves the rule of the given type for the pair, using hint to
// break ties, and creates the edge.
func (a *Applier) Apply(ctx context.Context, tx graph.Tx, typ EdgeType, v1, v2 *graph.Vertex, hint string) (*graph.Edge, error) {
	rule, err := a.resolver.ResolveFor(v1.NodeType, v2.NodeType, typ, hint)
	if err != nil {
		return nil, err
	}
	return a.ApplyRequired(ctx, tx, rule, v1, v2)
}

// ApplyBestEffort creates the edge when a rule resolves for the pair and
// label, and returns a nil edge without error when none does. Ambiguity and
// multiplicity failures are still returned.
func (a *Applier) ApplyBestEffort(ctx context.Context, tx graph.Tx, v1, v2 *graph.Vertex, label string) (*graph.Edge, error) {
	rule, err := a.resolver.Resolve(v1.NodeType, v2.NodeType, label)
	if errors.Is(err, ErrRuleNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.ApplyRequired(ctx, tx, rule, v1, v2)
}

// AddTreeEdge creates the parent/child edge between the two vertices.
func (a *Applier) AddTreeEdge(ctx context.Context, tx graph.Tx, v1, v2 *graph.Vertex) (*graph.Edge, error) {
	return a.Apply(ctx, tx, Tree, v1, v2, "")
}

// AddCousinEdge creates the peer edge between the two vertices. label may
// be empty or name the wanted relationship.
func (a *Applier) AddCousinEdge(ctx context.Context, tx graph.Tx, v1, v2 *graph.Vertex, label string) (*graph.Edge, error) {
	return a.Apply(ctx, tx, Cousin, v1, v2, label)
}

// AddCousinEdgeBestEffort is AddCousinEdge that skips unmapped pairs.
func (a *Applier) AddCousinEdgeBestEffort(ctx context.Context, tx graph.Tx, v1, v2 *graph.Vertex, label string) (*graph.Edge, error) {
	e, err := a.Apply(ctx, tx, Cousin, v1, v2, label)
	if errors.Is(err, ErrRuleNotFound) {
		return nil, nil
	}
	return e, err
}

// ApplyProperties overwrites the canonical properties of an existing edge
// with those of rule, oriented to the edge's out vertex type.
func ApplyProperties(ctx context.Context, tx graph.Tx, e *graph.Edge, outType, inType string, rule Rule) error {
	oriented := rule.Orient(outType, inType)
	for k, v := range oriented.Properties() {
		if err := tx.SetEdgeProperty(ctx, e.ID, k, v); err != nil {
			return err
		}
	}
	return nil
}

func checkMultiplicity(ctx context.Context, tx graph.Tx, rule Rule, out, in *graph.Vertex) error {
	checkIn := rule.Multiplicity == OneToOne || rule.Multiplicity == OneToMany
	checkOut := rule.Multiplicity == OneToOne || rule.Multiplicity == ManyToOne

	if checkIn {
		taken, err := hasLabeledNeighbor(ctx, tx, in, graph.In, rule.Label, out.NodeType)
		if err != nil {
			return err
		}
		if taken {
			return &MultiplicityError{Label: rule.Label, OutType: out.NodeType, InType: in.NodeType, Multiplicity: rule.Multiplicity, VertexID: in.ID}
		}
	}
	if checkOut {
		taken, err := hasLabeledNeighbor(ctx, tx, out, graph.Out, rule.Label, in.NodeType)
		if err != nil {
			return err
		}
		if taken {
			return &MultiplicityError{Label: rule.Label, OutType: out.NodeType, InType: in.NodeType, Multiplicity: rule.Multiplicity, VertexID: out.ID}
		}
	}
	return nil
}

func hasLabeledNeighbor(ctx context.Context, tx graph.Tx, v *graph.Vertex, dir graph.Direction, label, nodeType string) (bool, error) {
	edges, err := tx.Edges(ctx, graph.EdgeFilter{Labels: []string{label}, VertexID: v.ID, Dir: dir})
	if err != nil {
		return false, err
	}
	for _, e := range edges {
		other, err := tx.Vertex(ctx, e.Other(v.ID))
		if err != nil {
			return false, err
		}
		if other.NodeType == nodeType {
			return true, nil
		}
	}
	return false, nil
}
