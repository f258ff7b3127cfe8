package migration

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testApplier(t *testing.T) *edgerules.Applier {
	t.Helper()
	table, err := edgerules.NewTable([]edgerules.Rule{
		{From: "pserver", To: "complex", Label: "locatedIn", Direction: "OUT", Multiplicity: edgerules.ManyToOne},
	})
	require.NoError(t, err)
	return edgerules.NewApplier(edgerules.NewResolver(table))
}

// seed runs fn in a committed transaction and returns what it returns.
func seed(t *testing.T, eng graph.Engine, fn func(tx graph.Tx) map[string]string) map[string]string {
	t.Helper()
	ctx := context.Background()
	tx, err := eng.Begin(ctx)
	require.NoError(t, err)
	ids := fn(tx)
	require.NoError(t, tx.Commit(ctx))
	return ids
}

func read(t *testing.T, eng graph.Engine) graph.Tx {
	t.Helper()
	tx, err := eng.Begin(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Rollback(context.Background()) })
	return tx
}

// addVertexUnit creates one vertex of nodeType and reports status.
func addVertexUnit(name, nodeType string, priority int, status Status) Entry {
	return Entry{
		Name:    name,
		Enabled: true,
		New: func() (Migrator, error) {
			return NewUnit(name).
				Priority(priority).
				Operation(func(ctx context.Context, s *Session) error {
					v, err := s.Tx().AddVertex(ctx, nodeType, graph.Properties{"created-by": name})
					if err != nil {
						return err
					}
					if err := s.TouchVertex(ctx, v, true); err != nil {
						return err
					}
					s.Notifications().AddEvent(ActionCreate, v)
					return nil
				}).
				Status(func(ctx context.Context, s *Session) (Status, error) { return status, nil }).
				Build(), nil
		},
	}
}

func countType(t *testing.T, eng graph.Engine, nodeType string) int {
	t.Helper()
	vs, err := read(t, eng).Vertices(context.Background(), graph.VertexFilter{NodeTypes: []string{nodeType}})
	require.NoError(t, err)
	return len(vs)
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, events []Event) error {
	p.events = append(p.events, events...)
	return p.err
}

type recordingSnapshotter struct {
	phases []string
	err    error
}

func (s *recordingSnapshotter) Snapshot(ctx context.Context, phase string) (string, error) {
	s.phases = append(s.phases, phase)
	if s.err != nil {
		return "", s.err
	}
	return "/snapshots/" + phase + "Migration.202601010000.graphson", nil
}

type fakeLocker struct {
	keys []string
	err  error
}

func (l *fakeLocker) WithLease(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}

func newTestOrchestrator(t *testing.T, eng graph.Engine, reg *Registry, opts ...OrchestratorOption) (*Orchestrator, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	opts = append(opts, WithOutput(out))
	return NewOrchestrator(eng, testApplier(t), reg, opts...), out
}

func TestOrchestrator_CommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(addVertexUnit("AddPserver", "pserver", 0, Success))
	o, out := newTestOrchestrator(t, eng, reg)

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 1, countType(t, eng, "pserver"))
	assert.Contains(t, out.String(), "Migration AddPserver Succeeded. Changes Committed.")

	done, err := HasRun(ctx, read(t, eng), "AddPserver")
	require.NoError(t, err)
	assert.True(t, done)

	out.Reset()
	report, err = o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Committed)
	assert.Equal(t, 1, countType(t, eng, "pserver"))
	require.Len(t, report.Results, 1)
	assert.Equal(t, Skipped, report.Results[0].Outcome)
	assert.Contains(t, out.String(),
		"Migration AddPserver has already been run on this database and will not be executed again. Use -f to force execution")

	report, err = o.Run(ctx, RunOptions{Commit: true, Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 2, countType(t, eng, "pserver"))
}

func TestOrchestrator_FailedUnitRollsBack(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(
		addVertexUnit("Broken", "pnf", 0, Failure),
		addVertexUnit("Odd", "vnfc", 1, CheckLogs),
		addVertexUnit("Good", "pserver", 2, Success),
	)
	o, out := newTestOrchestrator(t, eng, reg)

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)

	assert.Equal(t, 0, countType(t, eng, "pnf"))
	assert.Equal(t, 0, countType(t, eng, "vnfc"))
	assert.Equal(t, 1, countType(t, eng, "pserver"))

	done, err := HasRun(ctx, read(t, eng), "Broken")
	require.NoError(t, err)
	assert.False(t, done)

	summary := out.String()
	assert.Contains(t, summary, "Migration Broken Failed. Rolling back.")
	assert.Contains(t, summary, "Migration Odd encountered an anomily, check logs. Rolling back.")
	assert.Contains(t, summary, "Migration Good Succeeded. Changes Committed.")
}

func TestOrchestrator_DryRunNeverCommits(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(addVertexUnit("AddPserver", "pserver", 0, Success))
	pub := &recordingPublisher{}
	locker := &fakeLocker{}
	o, out := newTestOrchestrator(t, eng, reg, WithPublisher(pub), WithLocker(locker))

	report, err := o.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Committed)
	assert.Equal(t, DryRun, report.Results[0].Outcome)
	assert.Equal(t, 0, countType(t, eng, "pserver"))
	assert.Empty(t, pub.events)
	assert.Empty(t, locker.keys)
	assert.Contains(t, out.String(), "--commit not specified. Not committing changes for AddPserver to database.")

	done, err := HasRun(ctx, read(t, eng), "AddPserver")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestOrchestrator_RunsInPriorityThenNameOrder(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	var order []string
	entry := func(name string, priority int) Entry {
		return Entry{Name: name, Enabled: true, New: func() (Migrator, error) {
			return NewUnit(name).Priority(priority).Operation(func(ctx context.Context, s *Session) error {
				order = append(order, name)
				return nil
			}).Build(), nil
		}}
	}
	reg := NewRegistry(entry("Zeta", 0), entry("Late", 5), entry("Alpha", 0), entry("Early", -1))
	o, _ := newTestOrchestrator(t, eng, reg)

	_, err := o.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Early", "Alpha", "Zeta", "Late"}, order)
}

func TestOrchestrator_NamedUnits(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(
		addVertexUnit("AddPserver", "pserver", 0, Success),
		addVertexUnit("AddPnf", "pnf", 0, Success),
	)
	o, _ := newTestOrchestrator(t, eng, reg)

	_, err := o.Run(ctx, RunOptions{Names: []string{"AddPnf", "Missing"}, Commit: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnitsNotFound))
	assert.Contains(t, err.Error(), "Missing")
	assert.Equal(t, 0, countType(t, eng, "pnf"))

	report, err := o.Run(ctx, RunOptions{Names: []string{"AddPnf"}, Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 1, countType(t, eng, "pnf"))
	assert.Equal(t, 0, countType(t, eng, "pserver"))
}

func TestOrchestrator_SkipsDisabledTemplatesAndBrokenUnits(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	disabled := addVertexUnit("Disabled", "pnf", 0, Success)
	disabled.Enabled = false
	template := addVertexUnit("Template", "vnfc", 0, Success)
	template.Template = true
	reg := NewRegistry(
		disabled,
		template,
		Entry{Name: "NoCtor", Enabled: true, New: func() (Migrator, error) { return nil, errors.New("missing dependency") }},
		Entry{Name: "Panics", Enabled: true, New: func() (Migrator, error) { panic("boom") }},
		Entry{Name: "PanicsInRun", Enabled: true, New: func() (Migrator, error) {
			return NewUnit("PanicsInRun").Operation(func(ctx context.Context, s *Session) error {
				_, _ = s.Tx().AddVertex(ctx, "complex", nil)
				panic("during run")
			}).Build(), nil
		}},
		addVertexUnit("Good", "pserver", 0, Success),
	)
	o, out := newTestOrchestrator(t, eng, reg)

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 0, countType(t, eng, "pnf"))
	assert.Equal(t, 0, countType(t, eng, "vnfc"))
	assert.Equal(t, 0, countType(t, eng, "complex"))
	assert.Equal(t, 1, countType(t, eng, "pserver"))

	byName := map[string]Result{}
	for _, r := range report.Results {
		byName[r.Name] = r
	}
	assert.NotContains(t, byName, "Template")
	assert.Equal(t, Skipped, byName["Disabled"].Outcome)
	assert.Equal(t, Errored, byName["NoCtor"].Outcome)
	assert.Equal(t, Errored, byName["Panics"].Outcome)
	assert.Equal(t, RolledBack, byName["PanicsInRun"].Outcome)
	assert.Equal(t, Failure, byName["PanicsInRun"].Status)
	assert.Contains(t, out.String(), "Skipping Disabled migration script because it has been disabled.")
}

func TestOrchestrator_SnapshotsAndNotifications(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(
		addVertexUnit("AddPserver", "pserver", 0, Success),
		addVertexUnit("Broken", "pnf", 1, Failure),
	)
	snaps := &recordingSnapshotter{}
	pub := &recordingPublisher{err: errors.New("broker down")}
	o, out := newTestOrchestrator(t, eng, reg, WithSnapshotter(snaps), WithPublisher(pub))

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, []string{"pre", "post"}, snaps.phases)

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, ActionCreate, ev.Action)
	assert.Equal(t, "pserver", ev.NodeType)
	assert.Equal(t, "AddPserver", ev.Source)
	assert.Equal(t, report.RunID, ev.TransactionID)

	// publish failure is reported but keeps the committed data
	assert.Contains(t, out.String(), "could not event")
	assert.Equal(t, 1, countType(t, eng, "pserver"))
}

func TestOrchestrator_SnapshotFailureDoesNotStopRun(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(addVertexUnit("AddPserver", "pserver", 0, Success))
	snaps := &recordingSnapshotter{err: errors.New("disk full")}
	o, out := newTestOrchestrator(t, eng, reg, WithSnapshotter(snaps))

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Contains(t, out.String(), "ERROR: Could not write graph to preMigration file.")
}

func TestOrchestrator_LockInCommitMode(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(addVertexUnit("AddPserver", "pserver", 0, Success))

	locker := &fakeLocker{}
	o, _ := newTestOrchestrator(t, eng, reg, WithLocker(locker))
	_, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Equal(t, []string{LockKey}, locker.keys)

	busy := errors.New("lease lock busy")
	o, _ = newTestOrchestrator(t, eng, reg, WithLocker(&fakeLocker{err: busy}))
	report, err := o.Run(ctx, RunOptions{Commit: true, Force: true})
	assert.ErrorIs(t, err, busy)
	assert.Nil(t, report)
	assert.Equal(t, 1, countType(t, eng, "pserver"))
}

func TestOrchestrator_Summary(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(addVertexUnit("AddPserver", "pserver", 0, Success))
	o, out := newTestOrchestrator(t, eng, reg)

	_, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	tail := lines[len(lines)-5:]
	assert.Equal(t, []string{
		"---------------------------------",
		"-------------Summary-------------",
		"Migration AddPserver Succeeded. Changes Committed.",
		"---------------------------------",
		"---------------------------------",
	}, tail)
}

func TestOrchestrator_List(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	disabled := addVertexUnit("Disabled", "pnf", 3, Success)
	disabled.Enabled = false
	reg := NewRegistry(
		addVertexUnit("AddPserver", "pserver", 1, Success),
		disabled,
		Entry{Name: "Risky", Enabled: true, New: func() (Migrator, error) {
			return NewUnit("risky").DangerRating(1000).Build(), nil
		}},
	)
	o, out := newTestOrchestrator(t, eng, reg)

	_, err := o.Run(ctx, RunOptions{Names: []string{"AddPserver"}, Commit: true})
	require.NoError(t, err)

	listings, err := o.List(ctx)
	require.NoError(t, err)
	require.Len(t, listings, 3)
	assert.Equal(t, "Risky", listings[0].Name)
	assert.Equal(t, 10, listings[0].DangerRating)

	out.Reset()
	require.NoError(t, o.PrintList(ctx))
	assert.Equal(t, strings.Join([]string{
		"---------- List of all migrations ----------",
		"Risky Enabled [Will be run on next execution]",
		"AddPserver Enabled [Already executed in this env]",
		"Disabled Disabled [Will be run on next execution]",
		"---------- Done ----------",
	}, "\n")+"\n", out.String())
}

func TestOrchestrator_Metrics(t *testing.T) {
	ctx := context.Background()
	eng := graph.NewMemoryEngine()
	reg := NewRegistry(
		addVertexUnit("AddPserver", "pserver", 0, Success),
		addVertexUnit("Broken", "pnf", 0, Failure),
	)
	m := NewMetrics()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	o, _ := newTestOrchestrator(t, eng, reg, WithMetrics(m), WithNow(clock))

	report, err := o.Run(ctx, RunOptions{Commit: true})
	require.NoError(t, err)
	assert.Positive(t, report.Duration)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Units.WithLabelValues("AddPserver", string(Committed))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Units.WithLabelValues("Broken", string(RolledBack))))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunSeconds))
}
