// Package config reads the storage config file handed to the command line
// tools with -c, falling back to the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/database"
	"github.com/OFFIS-RIT/aai-resources/internal/storage"
	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	pgxgraph "github.com/OFFIS-RIT/aai-resources/pkg/graph/pgx"
	"github.com/OFFIS-RIT/aai-resources/pkg/leaselock"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/snapshot"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	BackendPostgres = "postgres"
	BackendInMemory = "inmemory"

	LockPostgres = "postgres"
	LockRedis    = "redis"
	LockNone     = "none"
)

type Config struct {
	StorageBackend   string
	DatabaseURL      string
	MigrationsDir    string
	AutoMigrate      bool
	InMemorySnapshot string
	SnapshotDir      string
	EdgeRulesFile    string
	LockBackend      string
	LockTTL          time.Duration
	RedisURL         string
	PushgatewayURL   string
	AWSBucket        string
	SnapshotPrefix   string
}

// Load reads path as a KEY=VALUE file. Keys the file leaves out are taken
// from the environment. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	values := map[string]string{}
	if path != "" {
		var err error
		values, err = godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	get := func(key, def string) string {
		if v, ok := values[key]; ok && v != "" {
			return v
		}
		return util.GetEnvString(key, def)
	}

	ttl, err := time.ParseDuration(get("LOCK_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TTL: %w", err)
	}

	c := &Config{
		StorageBackend:   strings.ToLower(get("STORAGE_BACKEND", BackendPostgres)),
		DatabaseURL:      get("DATABASE_URL", ""),
		MigrationsDir:    get("MIGRATIONS_DIR", "migrations"),
		AutoMigrate:      get("AUTO_MIGRATE", "true") == "true",
		InMemorySnapshot: get("INMEMORY_SNAPSHOT", ""),
		SnapshotDir:      get("SNAPSHOT_DIR", "snapshots"),
		EdgeRulesFile:    get("EDGE_RULES_FILE", "edgerules.json"),
		LockBackend:      strings.ToLower(get("LOCK_BACKEND", "")),
		LockTTL:          ttl,
		RedisURL:         get("REDIS_URL", ""),
		PushgatewayURL:   get("PROMETHEUS_PUSHGATEWAY_URL", ""),
		AWSBucket:        get("AWS_BUCKET", ""),
		SnapshotPrefix:   get("SNAPSHOT_PREFIX", "snapshots/"),
	}
	if c.LockBackend == "" {
		c.LockBackend = LockNone
		if c.StorageBackend == BackendPostgres {
			c.LockBackend = LockPostgres
		}
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the %s backend", BackendPostgres)
		}
	case BackendInMemory:
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	switch c.LockBackend {
	case LockPostgres:
		if c.StorageBackend != BackendPostgres {
			return fmt.Errorf("LOCK_BACKEND %s needs the %s storage backend", LockPostgres, BackendPostgres)
		}
	case LockRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s lock backend", LockRedis)
		}
	case LockNone:
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	return nil
}

// LoadRules reads the configured edge rule file.
func (c *Config) LoadRules() (*edgerules.Table, error) {
	return edgerules.LoadFile(c.EdgeRulesFile)
}

// Backend is an opened graph store. Pool is nil for the in-memory engine.
type Backend struct {
	Engine graph.Engine
	Pool   *pgxpool.Pool
}

func (b *Backend) Close() {
	b.Engine.Close()
}

// Open connects the configured graph store.
func (c *Config) Open(ctx context.Context) (*Backend, error) {
	if c.StorageBackend == BackendInMemory {
		eng := graph.NewMemoryEngine()
		if c.InMemorySnapshot != "" {
			st, err := snapshot.NewStore(eng, c.SnapshotDir).LoadFile(ctx, c.InMemorySnapshot)
			if err != nil {
				return nil, fmt.Errorf("load in-memory snapshot: %w", err)
			}
			logger.Info("[Config][Open] Loaded in-memory graph", "file", c.InMemorySnapshot, "vertices", st.Vertices, "edges", st.Edges)
		}
		return &Backend{Engine: eng}, nil
	}

	if c.AutoMigrate {
		if err := database.Migrate(c.DatabaseURL, c.MigrationsDir); err != nil {
			return nil, err
		}
	}
	pool, err := database.Connect(ctx, c.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Engine: pgxgraph.NewGraphEngine(pool, pgxgraph.WithCloser(pool.Close)),
		Pool:   pool,
	}, nil
}

// Locker returns the run lock for the configured lock backend, or nil when
// locking is off.
func (c *Config) Locker(b *Backend) (*leaselock.Locker, error) {
	opts := leaselock.Options{TTL: c.LockTTL, TokenPrefix: "migrate-"}
	switch c.LockBackend {
	case LockPostgres:
		if b.Pool == nil {
			return nil, fmt.Errorf("postgres lock needs a database pool")
		}
		return leaselock.New(b.Pool).Locker(opts), nil
	case LockRedis:
		redisOpts, err := redis.ParseURL(c.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return leaselock.NewRedis(redis.NewClient(redisOpts)).Locker(opts), nil
	}
	return nil, nil
}

// Bucket returns the S3 snapshot bucket, or nil when AWS_BUCKET is unset.
func (c *Config) Bucket(ctx context.Context) (*storage.SnapshotBucket, error) {
	if c.AWSBucket == "" {
		return nil, nil
	}
	client, err := storage.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewSnapshotBucket(client, c.AWSBucket, storage.WithPrefix(c.SnapshotPrefix)), nil
}
