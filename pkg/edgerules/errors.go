package edgerules

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRuleNotFound  = errors.New("no edge rule found")
	ErrAmbiguousRule = errors.New("ambiguous edge rule")
	ErrMultiplicity  = errors.New("edge multiplicity violated")
)

// NotFoundError reports an unmapped node-type pair or label.
type NotFoundError struct {
	From  string
	To    string
	Label string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no edge rule found for node types: %s|%s|%s", e.From, e.To, e.Label)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrRuleNotFound
}

// AmbiguousError reports several candidate rules with no way to pick one.
type AmbiguousError struct {
	From       string
	To         string
	Type       EdgeType
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous %s edge rule for node types %s|%s: candidates [%s]",
		e.Type, e.From, e.To, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Is(target error) bool {
	return target == ErrAmbiguousRule
}

// MultiplicityError reports an edge that would break its rule's multiplicity.
type MultiplicityError struct {
	Label        string
	OutType      string
	InType       string
	Multiplicity Multiplicity
	VertexID     string
}

func (e *MultiplicityError) Error() string {
	return fmt.Sprintf("edge %s from %s to %s violates multiplicity %s at vertex %s",
		e.Label, e.OutType, e.InType, e.Multiplicity, e.VertexID)
}

func (e *MultiplicityError) Is(target error) bool {
	return target == ErrMultiplicity
}

// Tallyable reports whether err is an ambiguity or multiplicity failure,
// which bulk rewrites count and skip instead of aborting on.
func Tallyable(err error) bool {
	return errors.Is(err, ErrAmbiguousRule) || errors.Is(err, ErrMultiplicity)
}
