package migration

import (
	"errors"
	"slices"
)

// ErrUnitsNotFound is returned when requested unit names are not registered.
var ErrUnitsNotFound = errors.New("migration units not found")

// Entry is one known unit. Templates are never run themselves. New builds
// the unit; construction errors skip the unit for the current run.
type Entry struct {
	Name     string
	Enabled  bool
	Template bool
	New      func() (Migrator, error)
}

// Registry is the explicit list of units the orchestrator can discover.
type Registry struct {
	entries []Entry
}

func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{}
	for _, e := range entries {
		r.Register(e)
	}
	return r
}

// Register adds an entry, replacing an earlier one with the same name.
func (r *Registry) Register(e Entry) {
	if i := slices.IndexFunc(r.entries, func(x Entry) bool { return x.Name == e.Name }); i >= 0 {
		r.entries[i] = e
		return
	}
	r.entries = append(r.entries, e)
}

// Entries returns the runnable entries, templates excluded, in registration
// order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Template {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Lookup returns the entry with the given name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}
