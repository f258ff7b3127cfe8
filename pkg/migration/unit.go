package migration

import (
	"context"
	"slices"
)

// Hook is a step of a composed unit.
type Hook func(ctx context.Context, s *Session) error

// StatusHook derives a unit's status from the graph.
type StatusHook func(ctx context.Context, s *Session) (Status, error)

// Unit is a Migrator composed from hooks. Run always calls the schema hook
// before the operation hook; neither can be replaced by the other.
type Unit struct {
	name      string
	priority  int
	danger    int
	nodeTypes []string

	schema    Hook
	operation Hook
	status    StatusHook
}

// UnitBuilder assembles a Unit.
type UnitBuilder struct {
	u Unit
}

// NewUnit starts a builder for a unit with the given migration name.
func NewUnit(name string) *UnitBuilder {
	return &UnitBuilder{u: Unit{name: name}}
}

func (b *UnitBuilder) Priority(p int) *UnitBuilder {
	b.u.priority = p
	return b
}

func (b *UnitBuilder) DangerRating(d int) *UnitBuilder {
	b.u.danger = d
	return b
}

func (b *UnitBuilder) NodeTypes(types ...string) *UnitBuilder {
	b.u.nodeTypes = slices.Clone(types)
	return b
}

// Schema sets the hook that prepares the store, e.g. creates an index.
func (b *UnitBuilder) Schema(h Hook) *UnitBuilder {
	b.u.schema = h
	return b
}

// Operation sets the hook that mutates the graph.
func (b *UnitBuilder) Operation(h Hook) *UnitBuilder {
	b.u.operation = h
	return b
}

// Status sets the hook that re-derives the outcome. Without one the unit
// reports SUCCESS whenever Run returned no error.
func (b *UnitBuilder) Status(h StatusHook) *UnitBuilder {
	b.u.status = h
	return b
}

func (b *UnitBuilder) Build() *Unit {
	u := b.u
	return &u
}

func (u *Unit) Name() string                { return u.name }
func (u *Unit) Priority() int               { return u.priority }
func (u *Unit) DangerRating() int           { return ClampDanger(u.danger) }
func (u *Unit) AffectedNodeTypes() []string { return u.nodeTypes }

func (u *Unit) Run(ctx context.Context, s *Session) error {
	if u.schema != nil {
		if err := u.schema(ctx, s); err != nil {
			return err
		}
	}
	if u.operation != nil {
		return u.operation(ctx, s)
	}
	return nil
}

func (u *Unit) Status(ctx context.Context, s *Session) (Status, error) {
	if u.status == nil {
		return Success, nil
	}
	return u.status(ctx, s)
}
