package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/OFFIS-RIT/aai-resources/internal/cli"
	"github.com/OFFIS-RIT/aai-resources/internal/config"
	"github.com/OFFIS-RIT/aai-resources/internal/migrations"
	"github.com/OFFIS-RIT/aai-resources/internal/queue"
	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	names      []string
	list       bool
	force      bool
	snapshot   string
	commit     bool
	asdcInput  string
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "migrate -c <config> [-m <name> [<name> ...]] [-l] [-f] [-d <snapshot>] [--commit]",
		Short: "Run the registered graph migrations",
		Long: `Runs every enabled migration that has not run on this graph yet, lowest
priority first, each in its own transaction. Without --commit every change
is rolled back.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				if !cmd.Flags().Changed("migrations") {
					return fmt.Errorf("unexpected arguments %v", args)
				}
				opts.names = append(opts.names, args...)
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "graph storage config file")
	f.StringSliceVarP(&opts.names, "migrations", "m", nil, "run only the named migrations")
	f.BoolVarP(&opts.list, "list", "l", false, "list all migrations and whether they already ran")
	f.BoolVarP(&opts.force, "force", "f", false, "run migrations even if they already ran")
	f.StringVarP(&opts.snapshot, "snapshot", "d", "", "load an in-memory graph from a snapshot file before running")
	f.BoolVar(&opts.commit, "commit", false, "commit the changes of successful migrations")
	f.StringVar(&opts.asdcInput, "asdc-input", util.GetEnvString("ASDC_INPUT", "VNT-input.txt"), "input file of "+migrations.ASDCName)
	return cmd
}

// useFixture points cfg at an in-memory graph loaded from path. Fixture runs
// take no lock and keep their snapshots local.
func useFixture(cfg *config.Config, path string) {
	cfg.StorageBackend = config.BackendInMemory
	cfg.InMemorySnapshot = path
	cfg.LockBackend = config.LockNone
	cfg.AWSBucket = ""
}

func run(ctx context.Context, out io.Writer, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.snapshot != "" {
		useFixture(cfg, opts.snapshot)
	}

	table, err := cfg.LoadRules()
	if err != nil {
		return err
	}
	backend, err := cfg.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	orchestratorOpts := []migration.OrchestratorOption{migration.WithOutput(out)}
	registry := migrations.Registry(migrations.Options{ASDCInput: opts.asdcInput})
	applier := edgerules.NewApplier(edgerules.NewResolver(table))

	if opts.list {
		return migration.NewOrchestrator(backend.Engine, applier, registry, orchestratorOpts...).PrintList(ctx)
	}

	locker, err := cfg.Locker(backend)
	if err != nil {
		return err
	}
	if locker != nil {
		orchestratorOpts = append(orchestratorOpts, migration.WithLocker(locker))
	}

	store, err := cli.SnapshotStore(ctx, cfg, backend)
	if err != nil {
		return err
	}
	orchestratorOpts = append(orchestratorOpts, migration.WithSnapshotter(store))

	if url := queue.URLFromEnv(); url != "" {
		publisher, closeFn, err := openPublisher(url)
		if err != nil {
			logger.Warn("[Migrate] Notifications disabled, could not reach RabbitMQ", "err", err)
		} else {
			defer closeFn()
			orchestratorOpts = append(orchestratorOpts, migration.WithPublisher(publisher))
		}
	}

	metrics := migration.NewMetrics()
	orchestratorOpts = append(orchestratorOpts, migration.WithMetrics(metrics))

	o := migration.NewOrchestrator(backend.Engine, applier, registry, orchestratorOpts...)
	report, err := o.Run(ctx, migration.RunOptions{
		Names:  opts.names,
		Force:  opts.force,
		Commit: opts.commit,
	})
	if err != nil {
		return err
	}
	logger.Info("[Migrate] Migration run finished", "run", report.RunID, "committed", report.Committed, "duration", report.Duration)

	if cfg.PushgatewayURL != "" {
		if err := metrics.Push(ctx, cfg.PushgatewayURL, "aai_migration"); err != nil {
			logger.Error("[Migrate] Failed to push metrics", "err", err)
		}
	}
	return nil
}

func openPublisher(url string) (*queue.TopicPublisher, func(), error) {
	conn, err := queue.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := queue.SetupTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return queue.NewTopicPublisher(ch), func() {
		ch.Close()
		conn.Close()
	}, nil
}

func main() {
	cli.InitLogger("migrate")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
