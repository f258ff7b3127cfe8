package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/cli"
	"github.com/OFFIS-RIT/aai-resources/internal/config"
	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/snapshot"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const (
	cmdTake   = "JUST_TAKE_SNAPSHOT"
	cmdClear  = "CLEAR_ENTIRE_DATABASE"
	cmdReload = "RELOAD_DATA"
	cmdList   = "LIST_REMOTE"
)

type options struct {
	configPath string
	commit     bool
	wait       time.Duration
}

func newCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "datasnapshot [-c <config>] [JUST_TAKE_SNAPSHOT | CLEAR_ENTIRE_DATABASE | RELOAD_DATA <file> | LIST_REMOTE]",
		Short: "Take, clear and reload whole-graph snapshots",
		Long: `Without a command a snapshot of the graph is written to the snapshot
directory, and uploaded when AWS_BUCKET is set. RELOAD_DATA accepts a path,
a file name inside the snapshot directory or an s3:// key.`,
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			command, file := cmdTake, ""
			if len(args) > 0 {
				command = args[0]
			}
			if len(args) > 1 {
				file = args[1]
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts, command, file)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "graph storage config file")
	f.BoolVar(&opts.commit, "commit", false, "commit clear and reload; otherwise they are rolled back")
	f.DurationVar(&opts.wait, "wait", util.GetEnvDuration("SNAPSHOT_CLEAR_WAIT", 5*time.Second), "grace period before the graph is cleared")
	return cmd
}

func run(ctx context.Context, out io.Writer, opts *options, command, file string) error {
	fmt.Fprintf(out, "Command = %s, oldSnapshotFileName = %s\n", command, file)
	switch command {
	case cmdTake, cmdClear, cmdReload, cmdList:
	default:
		return fmt.Errorf("Bad command passed to DataSnapshot: [%s]", command)
	}
	if command == cmdReload && file == "" {
		return fmt.Errorf("No oldSnapshotFileName passed to DataSnapshot when %s used.", cmdReload)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if command == cmdList {
		bucket, err := cfg.Bucket(ctx)
		if err != nil {
			return err
		}
		if bucket == nil {
			return fmt.Errorf("%s needs AWS_BUCKET", cmdList)
		}
		keys, err := bucket.List(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(out, snapshot.RemotePrefix+k)
		}
		return nil
	}

	backend, err := cfg.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()
	store, err := cli.SnapshotStore(ctx, cfg, backend)
	if err != nil {
		return err
	}

	switch command {
	case cmdTake:
		path, err := store.Take(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Snapshot written to "+path)

	case cmdClear:
		fmt.Fprintln(out, "\n>>> WARNING <<<< ")
		fmt.Fprintln(out, ">>> All data in this database will be removed at this point. <<<")
		fmt.Fprintf(out, ">>> Processing will begin in %s. <<<\n", opts.wait)
		fmt.Fprintln(out, ">>> WARNING <<<< ")
		if err := pause(ctx, opts.wait); err != nil {
			fmt.Fprintln(out, " DB Clearing has been aborted. ")
			return err
		}
		fmt.Fprintln(out, " Begin clearing out old data. ")
		n, err := store.Clear(ctx, opts.commit)
		if err != nil {
			return err
		}
		if !opts.commit {
			fmt.Fprintf(out, " --commit not specified. %d vertices would have been removed. \n", n)
			return nil
		}
		fmt.Fprintf(out, " Done clearing data. %d vertices removed. \n", n)

	case cmdReload:
		source, err := resolveSource(cfg.SnapshotDir, file)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "We will load data IN from the file = "+source)
		fmt.Fprintln(out, " Begin reloading data. ")
		st, err := store.Reload(ctx, source, opts.commit)
		if err != nil {
			return err
		}
		if !opts.commit {
			fmt.Fprintf(out, "--commit not specified. Rolled back %d vertices and %d edges.\n", st.Vertices, st.Edges)
			return nil
		}
		fmt.Fprintln(out, "Completed reloading data.")
		fmt.Fprintf(out, "A little after repopulating from an old snapshot, we see: %d vertices in the db.\n", st.Vertices)
	}
	return nil
}

// resolveSource checks a local snapshot file, looking inside dir when name
// is not a path to an existing file. Remote keys pass through.
func resolveSource(dir, name string) (string, error) {
	if strings.HasPrefix(name, snapshot.RemotePrefix) {
		return name, nil
	}
	path := name
	if _, err := os.Stat(path); err != nil && !filepath.IsAbs(name) {
		path = filepath.Join(dir, name)
	}
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return "", fmt.Errorf("oldSnapshotFile %s could not be found.", path)
	case info.Size() == 0:
		return "", fmt.Errorf("oldSnapshotFile %s had no data.", path)
	}
	return path, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func main() {
	cli.InitLogger("datasnapshot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		logger.Error("[DataSnapshot] Command failed", "err", err)
		os.Exit(1)
	}
}
