package edgerules

import (
	"maps"
)

// LegacyLabels maps pre-namespace edge labels to the label that replaced
// them where the mapping is not derivable from the rule table alone.
var LegacyLabels = map[string]string{
	"sourceLInterface": "org.onap.relationships.inventory.Source",
	"targetLInterface": "org.onap.relationships.inventory.Destination",
}

// Resolver picks the single rule that applies to a node-type pair. The
// tie-break order for pairs with several labels lives only in pick.
type Resolver struct {
	table  *Table
	legacy map[string]string
}

type ResolverOption func(*Resolver)

// WithLegacyLabels replaces the default legacy label mapping.
func WithLegacyLabels(m map[string]string) ResolverOption {
	return func(r *Resolver) {
		r.legacy = maps.Clone(m)
	}
}

// NewResolver creates a Resolver over table.
func NewResolver(table *Table, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		table:  table,
		legacy: maps.Clone(LegacyLabels),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	return r
}

// Table returns the underlying rule table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Resolve returns the rule for the pair oriented from a. A non-empty label
// narrows the lookup: it must name a rule of the pair, directly or through
// a legacy alias, otherwise NotFoundError is returned. An empty label
// selects the pair's only rule or its default.
func (r *Resolver) Resolve(a, b, label string) (Rule, error) {
	candidates := r.table.candidates(a, b, "")
	if len(candidates) == 0 {
		return Rule{}, &NotFoundError{From: a, To: b, Label: label}
	}
	if label != "" {
		if rule, ok := r.byLabel(candidates, label); ok {
			return rule, nil
		}
		return Rule{}, &NotFoundError{From: a, To: b, Label: label}
	}
	return r.pick(a, b, "", candidates, "")
}

// ResolveFor returns the rule of the given edge type for the pair, oriented
// from a. hint is the label of an existing edge and only breaks ties.
func (r *Resolver) ResolveFor(a, b string, typ EdgeType, hint string) (Rule, error) {
	candidates := r.table.candidates(a, b, typ)
	if len(candidates) == 0 {
		return Rule{}, &NotFoundError{From: a, To: b, Label: hint}
	}
	return r.pick(a, b, typ, candidates, hint)
}

func (r *Resolver) byLabel(candidates []Rule, label string) (Rule, bool) {
	for _, c := range candidates {
		if c.Label == label {
			return c, true
		}
	}
	if alias, ok := r.legacy[label]; ok {
		for _, c := range candidates {
			if c.Label == alias {
				return c, true
			}
		}
	}
	return Rule{}, false
}

// pick applies the tie-break policy: the only candidate, then the hint's
// label, then its legacy alias, then the declared default.
func (r *Resolver) pick(a, b string, typ EdgeType, candidates []Rule, hint string) (Rule, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if hint != "" {
		if rule, ok := r.byLabel(candidates, hint); ok {
			return rule, nil
		}
	}
	for _, c := range candidates {
		if c.Default {
			return c, nil
		}
	}
	labels := make([]string, 0, len(candidates))
	for _, c := range candidates {
		labels = append(labels, c.Label)
	}
	return Rule{}, &AmbiguousError{From: a, To: b, Type: typ, Candidates: labels}
}
