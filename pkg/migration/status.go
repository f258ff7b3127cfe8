// Package migration runs named graph mutation units against a transactional
// graph, one transaction per unit, and records which units have committed.
package migration

// Status is the outcome a unit reports after Run, derived from the graph.
type Status int

const (
	Success Status = iota
	Failure
	CheckLogs
)

func (s Status) String() string {
	switch s {
	case Success:
		return "SUCCESS"
	case Failure:
		return "FAILURE"
	case CheckLogs:
		return "CHECK_LOGS"
	}
	return "UNKNOWN"
}

// Outcome is what the orchestrator did with a unit.
type Outcome string

const (
	Committed  Outcome = "committed"
	DryRun     Outcome = "dry_run"
	RolledBack Outcome = "rolled_back"
	Skipped    Outcome = "skipped"
	Errored    Outcome = "error"
)

// Result is the in-memory outcome of one unit in one orchestrator run.
type Result struct {
	Name    string
	Status  Status
	Outcome Outcome
	Message string
}

// ClampDanger keeps a danger rating within [0, 10].
func ClampDanger(d int) int {
	return min(max(d, 0), 10)
}
