package migration

import (
	"context"
)

// Migrator is one named, idempotent graph mutation routine.
type Migrator interface {
	// Name is the migration name written as source of truth on touched
	// vertices.
	Name() string
	// Priority orders units; lower runs first.
	Priority() int
	// DangerRating is an advisory risk score in [0, 10].
	DangerRating() int
	// AffectedNodeTypes scopes traversals; nil means every type.
	AffectedNodeTypes() []string
	// Run applies the mutation inside the session's transaction.
	Run(ctx context.Context, s *Session) error
	// Status re-derives the outcome from the graph after Run.
	Status(ctx context.Context, s *Session) (Status, error)
}
