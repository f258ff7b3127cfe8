package edgerules

import (
	"errors"
	"fmt"
	"sort"
)

// Table is an immutable set of edge rules indexed by unordered node-type
// pair. Build one with NewTable and share it; it needs no locking.
type Table struct {
	byPair map[string][]Rule
	count  int
}

// NewTable validates rules and indexes them. Every pair with more than one
// label must mark exactly one rule as default.
func NewTable(rules []Rule) (*Table, error) {
	t := &Table{byPair: make(map[string][]Rule)}
	var errs []error

	for i, r := range rules {
		r, err := normalize(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r, err))
			continue
		}
		key := r.Key()
		dup := false
		for _, existing := range t.byPair[key] {
			if existing.Label == r.Label {
				errs = append(errs, fmt.Errorf("rule %d (%s): duplicate label for pair %s", i, r, key))
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		t.byPair[key] = append(t.byPair[key], r)
		t.count++
	}

	keys := make([]string, 0, len(t.byPair))
	for key := range t.byPair {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		pair := t.byPair[key]
		if len(pair) < 2 {
			continue
		}
		defaults := 0
		for _, r := range pair {
			if r.Default {
				defaults++
			}
		}
		if defaults != 1 {
			errs = append(errs, fmt.Errorf("pair %s has %d labels and %d defaults, exactly one default is required", key, len(pair), defaults))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return t, nil
}

func normalize(r Rule) (Rule, error) {
	if r.From == "" || r.To == "" || r.Label == "" {
		return r, errors.New("from, to and label are required")
	}
	if r.Direction != "OUT" && r.Direction != "IN" {
		return r, fmt.Errorf("invalid direction %q", r.Direction)
	}
	if r.Multiplicity == "" {
		r.Multiplicity = ManyToMany
	}
	if !r.Multiplicity.valid() {
		return r, fmt.Errorf("invalid multiplicity %q", r.Multiplicity)
	}
	for _, p := range []*string{&r.ContainsOtherV, &r.DeleteOtherV, &r.SvcInfra, &r.PreventDelete} {
		if *p == "" {
			*p = "NONE"
		}
		if !validDirection(*p) {
			return r, fmt.Errorf("invalid direction value %q", *p)
		}
	}
	return r, nil
}

// Len returns the number of rules.
func (t *Table) Len() int {
	return t.count
}

// HasRule reports whether any rule exists for the unordered pair.
func (t *Table) HasRule(a, b string) bool {
	return len(t.byPair[pairKey(a, b)]) > 0
}

// Rules returns every rule for the pair keyed by label, oriented from a.
// The map is empty when there is none.
func (t *Table) Rules(a, b string) map[string]Rule {
	out := make(map[string]Rule)
	for _, r := range t.byPair[pairKey(a, b)] {
		out[r.Label] = r.Orient(a, b)
	}
	return out
}

// RulesWithLabel is Rules narrowed to one label.
func (t *Table) RulesWithLabel(a, b, label string) map[string]Rule {
	out := make(map[string]Rule)
	for _, r := range t.byPair[pairKey(a, b)] {
		if r.Label == label {
			out[r.Label] = r.Orient(a, b)
		}
	}
	return out
}

// candidates returns the rules for the pair in definition order, oriented
// from a and optionally restricted to one edge type.
func (t *Table) candidates(a, b string, typ EdgeType) []Rule {
	var out []Rule
	for _, r := range t.byPair[pairKey(a, b)] {
		if typ != "" && r.Type() != typ {
			continue
		}
		out = append(out, r.Orient(a, b))
	}
	return out
}

// All returns every rule in definition order per pair, pairs sorted.
func (t *Table) All() []Rule {
	keys := make([]string, 0, len(t.byPair))
	for key := range t.byPair {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Rule, 0, t.count)
	for _, key := range keys {
		out = append(out, t.byPair[key]...)
	}
	return out
}
