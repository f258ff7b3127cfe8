// Package cli holds the setup shared by the command line tools.
package cli

import (
	"context"

	"github.com/OFFIS-RIT/aai-resources/internal/config"
	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger/console"
	"github.com/OFFIS-RIT/aai-resources/pkg/snapshot"
)

// InitLogger loads .env and sends logs to stderr tagged with prefix.
// LOG_FORMAT=json selects JSON lines.
func InitLogger(prefix string) {
	util.LoadEnv()
	logger.Init(console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Prefix: prefix,
		JSON:   util.GetEnvString("LOG_FORMAT", "text") == "json",
	}))
}

// SnapshotStore returns the snapshot store of an opened backend, uploading
// to the configured bucket when there is one.
func SnapshotStore(ctx context.Context, cfg *config.Config, b *config.Backend) (*snapshot.Store, error) {
	bucket, err := cfg.Bucket(ctx)
	if err != nil {
		return nil, err
	}
	var opts []snapshot.StoreOption
	if bucket != nil {
		opts = append(opts, snapshot.WithRemote(bucket))
	}
	return snapshot.NewStore(b.Engine, cfg.SnapshotDir, opts...), nil
}
