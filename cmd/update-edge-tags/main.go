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
	"github.com/OFFIS-RIT/aai-resources/pkg/edgetags"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

const usage = "usage:  update-edge-tags edgeRuleKey  (edgeRuleKey can be either, all, or a rule key like 'nodeTypeA|nodeTypeB')"

func newCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "update-edge-tags [-c <config>] <all|typeA|typeB>",
		Short: "Rewrite edge properties from the edge rules",
		Long: `Writes the contains-other-v, delete-other-v, SVC-INFRA and prevent-delete
properties of the matching edge rule onto every edge passing the filter. An
edge without a rule rolls back the whole pass.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%s", usage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Failures are reported, never turned into an exit status.
			if err := run(cmd.Context(), cmd.OutOrStdout(), configPath, args[0]); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err)
				logger.Error("[UpdateEdgeTags] Edge tag update failed", "filter", args[0], "err", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "graph storage config file")
	return cmd
}

func run(ctx context.Context, out io.Writer, configPath, key string) error {
	filter, err := edgetags.ParseFilter(key)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
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

	res, err := edgetags.NewUpdater(backend.Engine, table).Run(ctx, filter)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Updated %d of %d edges for %s\n", res.Updated, res.Scanned, filter)
	return nil
}

func main() {
	cli.InitLogger("update-edge-tags")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
