// Package edgerules holds the authoritative mapping from node-type pairs and
// relationship labels to edge semantics, resolves the rule that applies to a
// pair of vertices and writes edges that follow it.
package edgerules

import (
	"fmt"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// EdgeType separates parent/child edges from peer edges.
type EdgeType string

const (
	Tree   EdgeType = "TREE"
	Cousin EdgeType = "COUSIN"
)

// Multiplicity limits how many edges of one label a vertex may carry
// towards vertices of the other type.
type Multiplicity string

const (
	OneToOne   Multiplicity = "ONE2ONE"
	OneToMany  Multiplicity = "ONE2MANY"
	ManyToOne  Multiplicity = "MANY2ONE"
	ManyToMany Multiplicity = "MANY2MANY"
)

func (m Multiplicity) valid() bool {
	switch m {
	case OneToOne, OneToMany, ManyToOne, ManyToMany:
		return true
	}
	return false
}

// Rule describes one relationship allowed between two node types. An edge
// following the rule points From -> To when Direction is OUT and To -> From
// when it is IN. ContainsOtherV, DeleteOtherV, SvcInfra and PreventDelete are
// expressed from the point of view of From.
type Rule struct {
	From         string
	To           string
	Label        string
	Direction    string
	Multiplicity Multiplicity

	ContainsOtherV string
	DeleteOtherV   string
	SvcInfra       string
	PreventDelete  string

	Default     bool
	Description string
}

// Type is COUSIN when neither side contains the other.
func (r Rule) Type() EdgeType {
	if r.ContainsOtherV == graph.DirectionNone {
		return Cousin
	}
	return Tree
}

// Key is the unordered pair key the table indexes by.
func (r Rule) Key() string {
	return pairKey(r.From, r.To)
}

// Flip returns the same rule seen from To.
func (r Rule) Flip() Rule {
	f := r
	f.From, f.To = r.To, r.From
	f.Direction = flipDirection(r.Direction)
	f.ContainsOtherV = flipDirection(r.ContainsOtherV)
	f.DeleteOtherV = flipDirection(r.DeleteOtherV)
	f.SvcInfra = flipDirection(r.SvcInfra)
	f.PreventDelete = flipDirection(r.PreventDelete)
	return f
}

// Orient returns the rule seen from fromType. The rule must cover the pair.
func (r Rule) Orient(fromType, toType string) Rule {
	if r.From == fromType && r.To == toType {
		return r
	}
	return r.Flip()
}

// Covers reports whether the rule applies to the unordered pair.
func (r Rule) Covers(a, b string) bool {
	return (r.From == a && r.To == b) || (r.From == b && r.To == a)
}

// Properties returns the canonical edge properties for an edge whose out
// vertex has type r.From. Description and other free-form fields are never
// written to edges.
func (r Rule) Properties() graph.Properties {
	return graph.Properties{
		graph.ContainsOtherV: r.ContainsOtherV,
		graph.DeleteOtherV:   r.DeleteOtherV,
		graph.SvcInfra:       r.SvcInfra,
		graph.PreventDelete:  r.PreventDelete,
	}
}

func (r Rule) String() string {
	return fmt.Sprintf("%s|%s|%s", r.From, r.To, r.Label)
}

func flipDirection(d string) string {
	switch d {
	case graph.DirectionIn:
		return graph.DirectionOut
	case graph.DirectionOut:
		return graph.DirectionIn
	}
	return d
}

func validDirection(d string) bool {
	switch d {
	case graph.DirectionIn, graph.DirectionOut, graph.DirectionNone:
		return true
	}
	return false
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
