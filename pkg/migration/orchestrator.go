package migration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	"github.com/google/uuid"
)

// LockKey is the lease held for the duration of a committing run.
const LockKey = "aai-migration"

// Snapshotter serializes the whole graph for a run phase ("pre", "post")
// and returns where it was written.
type Snapshotter interface {
	Snapshot(ctx context.Context, phase string) (string, error)
}

// Locker runs fn while holding an exclusive lease on key.
type Locker interface {
	WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// RunOptions select and control one orchestrator run.
type RunOptions struct {
	// Names restricts the run to these units. Unknown names fail the run.
	Names []string
	// Force runs units already recorded as committed.
	Force bool
	// Commit persists successful units; otherwise every unit is rolled back.
	Commit bool
}

// Report is the outcome of one run.
type Report struct {
	RunID     string
	Results   []Result
	Committed int
	Duration  time.Duration
}

// Orchestrator discovers, orders and runs the units of a Registry, each in
// its own transaction, strictly one after another.
type Orchestrator struct {
	engine    graph.Engine
	applier   *edgerules.Applier
	registry  *Registry
	snapshots Snapshotter
	publisher Publisher
	locker    Locker
	metrics   *Metrics
	out       io.Writer
	now       func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithSnapshotter(s Snapshotter) OrchestratorOption {
	return func(o *Orchestrator) {
		o.snapshots = s
	}
}

func WithPublisher(p Publisher) OrchestratorOption {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

func WithLocker(l Locker) OrchestratorOption {
	return func(o *Orchestrator) {
		o.locker = l
	}
}

func WithMetrics(m *Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithOutput redirects the operator summary, stdout by default.
func WithOutput(w io.Writer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.out = w
	}
}

func WithNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func NewOrchestrator(engine graph.Engine, applier *edgerules.Applier, registry *Registry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:   engine,
		applier:  applier,
		registry: registry,
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(o)
	}
	return o
}

// Run executes one pass over the registry. Only discovery and lock errors
// are returned; unit failures are reported in the Report.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	if !opts.Commit || o.locker == nil {
		return o.run(ctx, opts)
	}
	var report *Report
	err := o.locker.WithLease(ctx, LockKey, func(ctx context.Context) error {
		var err error
		report, err = o.run(ctx, opts)
		return err
	})
	return report, err
}

type planned struct {
	entry Entry
	unit  Migrator
}

func (o *Orchestrator) run(ctx context.Context, opts RunOptions) (*Report, error) {
	start := o.now()
	report := &Report{RunID: uuid.NewString()}

	o.print("---------- Looking for migration scripts to be executed. ----------")
	plan, results, err := o.discover(opts.Names)
	if err != nil {
		o.print("\tERROR: Failed to find migrations " + strings.Join(opts.Names, ", ") + ".")
		return nil, err
	}
	report.Results = results
	o.print(fmt.Sprintf("\tFound %d migration scripts.", len(plan)))
	logger.Info("[Migration][Run] Starting migration run", "run", report.RunID, "units", len(plan), "commit", opts.Commit, "force", opts.Force)

	o.snapshot(ctx, "pre")

	o.print("---------- Executing Migration Scripts ----------")
	var events []Event
	for _, p := range plan {
		res, queued := o.runUnit(ctx, p, opts, report.RunID)
		report.Results = append(report.Results, res)
		if res.Outcome == Committed {
			report.Committed++
			events = append(events, queued...)
		}
	}
	o.print("---------- Done ----------")

	o.snapshot(ctx, "post")
	o.notify(ctx, events)

	report.Duration = o.now().Sub(start)
	if o.metrics != nil {
		for _, r := range report.Results {
			o.metrics.observeUnit(r)
		}
		o.metrics.observeRun(report.Duration)
	}

	o.printSummary(report.Results)
	return report, nil
}

// discover builds the enabled units in execution order. Disabled units and
// units that fail to build come back as results.
func (o *Orchestrator) discover(names []string) ([]planned, []Result, error) {
	entries := o.registry.Entries()
	if len(names) > 0 {
		var missing []string
		for _, n := range names {
			if !slices.ContainsFunc(entries, func(e Entry) bool { return e.Name == n }) {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnitsNotFound, strings.Join(missing, ", "))
		}
		entries = slices.DeleteFunc(entries, func(e Entry) bool { return !slices.Contains(names, e.Name) })
	}

	var plan []planned
	var results []Result
	for _, e := range entries {
		if !e.Enabled {
			msg := "Skipping " + e.Name + " migration script because it has been disabled."
			o.print("\t" + msg)
			results = append(results, Result{Name: e.Name, Status: Success, Outcome: Skipped, Message: msg})
			continue
		}
		unit, err := construct(e)
		if err != nil {
			msg := fmt.Sprintf("EXCEPTION caught initalizing migration class %s: %v", e.Name, err)
			o.print("\t" + msg)
			logger.Error("[Migration][Discover] Failed to construct migration unit", "unit", e.Name, "err", err)
			results = append(results, Result{Name: e.Name, Status: Failure, Outcome: Errored, Message: msg})
			continue
		}
		plan = append(plan, planned{entry: e, unit: unit})
	}

	slices.SortStableFunc(plan, func(a, b planned) int {
		return cmp.Or(cmp.Compare(a.unit.Priority(), b.unit.Priority()), cmp.Compare(a.entry.Name, b.entry.Name))
	})
	return plan, results, nil
}

func construct(e Entry) (m Migrator, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if e.New == nil {
		return nil, errors.New("no constructor")
	}
	m, err = e.New()
	if err == nil && m == nil {
		err = errors.New("constructor returned no unit")
	}
	return m, err
}

func (o *Orchestrator) runUnit(ctx context.Context, p planned, opts RunOptions, runID string) (Result, []Event) {
	name := p.entry.Name
	res := Result{Name: name}

	tx, err := o.engine.Begin(ctx)
	if err != nil {
		res.Status, res.Outcome = Failure, Errored
		res.Message = fmt.Sprintf("Migration %s could not start a transaction: %v", name, err)
		o.print("\t" + res.Message)
		return res, nil
	}
	defer tx.Rollback(ctx)

	if !opts.Force {
		done, err := HasRun(ctx, tx, name)
		if err != nil {
			res.Status, res.Outcome = Failure, Errored
			res.Message = fmt.Sprintf("Migration %s could not read the migration marker: %v", name, err)
			o.print("\t" + res.Message)
			return res, nil
		}
		if done {
			res.Status, res.Outcome = Success, Skipped
			res.Message = "Migration " + name + " has already been run on this database and will not be executed again. Use -f to force execution"
			o.print(res.Message)
			return res, nil
		}
	}

	log := logger.With("run", runID, "unit", name)
	o.print("\tRunning " + name + " migration script.")
	log.Info("[Migration][Run] Running migration unit", "priority", p.unit.Priority(), "danger", p.unit.DangerRating())

	s := NewSession(tx, o.applier, WithSource(p.unit.Name()), WithRunID(runID), WithClock(o.now))
	status, err := execute(ctx, p.unit, s)
	if err != nil {
		log.Error("[Migration][Run] Migration unit failed", "err", err)
		status = Failure
	}
	res.Status = status

	switch status {
	case Failure:
		res.Outcome = RolledBack
		res.Message = "Migration " + name + " Failed. Rolling back."
	case CheckLogs:
		res.Outcome = RolledBack
		res.Message = "Migration " + name + " encountered an anomily, check logs. Rolling back."
	default:
		if !opts.Commit {
			res.Outcome = DryRun
			res.Message = "--commit not specified. Not committing changes for " + name + " to database."
			break
		}
		if err := MarkRun(ctx, tx, name); err != nil {
			res.Status, res.Outcome = Failure, RolledBack
			res.Message = fmt.Sprintf("Migration %s could not be recorded: %v. Rolling back.", name, err)
			break
		}
		if err := tx.Commit(ctx); err != nil {
			log.Error("[Migration][Run] Commit failed", "err", err)
			res.Status, res.Outcome = Failure, Errored
			res.Message = fmt.Sprintf("Migration %s failed to commit: %v", name, err)
			break
		}
		res.Outcome = Committed
		res.Message = "Migration " + name + " Succeeded. Changes Committed."
	}

	if res.Outcome != Committed {
		if err := tx.Rollback(ctx); err != nil {
			log.Warn("[Migration][Run] Rollback failed", "err", err)
		}
	}
	o.print("\t" + res.Message)
	if res.Outcome != Committed {
		return res, nil
	}
	return res, s.Notifications().Events()
}

// execute runs the unit and derives its status. A panic counts as failure.
func execute(ctx context.Context, m Migrator, s *Session) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status = Failure
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if err := m.Run(ctx, s); err != nil {
		return Failure, err
	}
	return m.Status(ctx, s)
}

func (o *Orchestrator) snapshot(ctx context.Context, phase string) {
	if o.snapshots == nil {
		return
	}
	path, err := o.snapshots.Snapshot(ctx, phase)
	if err != nil {
		o.print("ERROR: Could not write graph to " + phase + "Migration file.")
		logger.Error("[Migration][Snapshot] Snapshot failed", "phase", phase, "err", err)
		return
	}
	o.print(phase + " migration snapshot saved to " + path)
}

func (o *Orchestrator) notify(ctx context.Context, events []Event) {
	if o.publisher == nil || len(events) == 0 {
		return
	}
	if err := o.publisher.Publish(ctx, events); err != nil {
		o.print("\tcould not event")
		logger.Error("[Migration][Notify] Failed to publish events", "events", len(events), "err", err)
	}
}

func (o *Orchestrator) printSummary(results []Result) {
	o.print("---------------------------------")
	o.print("-------------Summary-------------")
	for _, r := range results {
		o.print(r.Message)
	}
	o.print("---------------------------------")
	o.print("---------------------------------")
}

func (o *Orchestrator) print(line string) {
	fmt.Fprintln(o.out, line)
}

// Listing describes one registered unit and whether it already ran here.
type Listing struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"enabled"`
	AlreadyRun   bool   `json:"alreadyRun"`
	Priority     int    `json:"priority"`
	DangerRating int    `json:"dangerRating"`
}

func (l Listing) String() string {
	enabled := "Disabled"
	if l.Enabled {
		enabled = "Enabled"
	}
	status := "Will be run on next execution"
	if l.AlreadyRun {
		status = "Already executed in this env"
	}
	return l.Name + " " + enabled + " [" + status + "]"
}

// List reports every registered unit in execution order. It reads through
// a transaction that is always rolled back.
func (o *Orchestrator) List(ctx context.Context) ([]Listing, error) {
	tx, err := o.engine.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var out []Listing
	for _, e := range o.registry.Entries() {
		l := Listing{Name: e.Name, Enabled: e.Enabled}
		if m, err := construct(e); err == nil {
			l.Priority = m.Priority()
			l.DangerRating = ClampDanger(m.DangerRating())
		} else {
			logger.Warn("[Migration][List] Failed to construct migration unit", "unit", e.Name, "err", err)
		}
		if l.AlreadyRun, err = HasRun(ctx, tx, e.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	slices.SortStableFunc(out, func(a, b Listing) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

// PrintList writes the listing in the operator format.
func (o *Orchestrator) PrintList(ctx context.Context) error {
	listings, err := o.List(ctx)
	if err != nil {
		return err
	}
	o.print("---------- List of all migrations ----------")
	for _, l := range listings {
		o.print(l.String())
	}
	o.print("---------- Done ----------")
	return nil
}
