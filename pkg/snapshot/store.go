package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
)

// RemotePrefix marks a snapshot source held in remote storage.
const RemotePrefix = "s3://"

// Remote keeps copies of snapshot files outside the snapshot directory.
type Remote interface {
	Upload(ctx context.Context, name string, body io.ReadSeeker) (string, error)
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Store takes, clears and reloads whole-graph snapshots of one engine.
type Store struct {
	engine graph.Engine
	dir    string
	remote Remote
	now    func() time.Time
}

type StoreOption func(*Store)

// WithRemote uploads every written snapshot and allows s3:// reload sources.
func WithRemote(r Remote) StoreOption {
	return func(s *Store) {
		s.remote = r
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

func NewStore(engine graph.Engine, dir string, opts ...StoreOption) *Store {
	s := &Store{
		engine: engine,
		dir:    dir,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Snapshot writes <phase>Migration.<timestamp>.graphson and returns its path.
func (s *Store) Snapshot(ctx context.Context, phase string) (string, error) {
	return s.write(ctx, MigrationFileName(phase, s.now()))
}

// Take writes dataSnapshot.graphSON.<timestamp> and returns its path.
func (s *Store) Take(ctx context.Context) (string, error) {
	return s.write(ctx, DataSnapshotFileName(s.now()))
}

func (s *Store) write(ctx context.Context, name string) (string, error) {
	vertices, edges, err := s.dump(ctx)
	if err != nil {
		return "", fmt.Errorf("read graph: %w", err)
	}

	var buf bytes.Buffer
	st, err := Encode(&buf, vertices, edges)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	logger.Info("[Snapshot][Write] Saved graph snapshot", "file", path, "vertices", st.Vertices, "edges", st.Edges)

	if s.remote != nil {
		key, err := s.remote.Upload(ctx, name, bytes.NewReader(buf.Bytes()))
		if err != nil {
			logger.Error("[Snapshot][Write] Failed to upload snapshot", "file", path, "err", err)
		} else {
			logger.Info("[Snapshot][Write] Uploaded snapshot", "key", key)
		}
	}
	return path, nil
}

func (s *Store) dump(ctx context.Context) ([]*graph.Vertex, []*graph.Edge, error) {
	if d, ok := s.engine.(Dumper); ok {
		return d.Dump(ctx)
	}
	tx, err := s.engine.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	vertices, err := tx.Vertices(ctx, graph.VertexFilter{})
	if err != nil {
		return nil, nil, err
	}
	edges, err := tx.Edges(ctx, graph.EdgeFilter{})
	if err != nil {
		return nil, nil, err
	}
	return vertices, edges, nil
}

// Clear removes every vertex and edge. Without commit the change is rolled
// back and only the count is reported.
func (s *Store) Clear(ctx context.Context, commit bool) (int, error) {
	tx, err := s.engine.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	vertices, err := tx.Vertices(ctx, graph.VertexFilter{})
	if err != nil {
		return 0, err
	}
	if err := graph.Clear(ctx, tx); err != nil {
		return 0, err
	}
	if !commit {
		return len(vertices), nil
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	logger.Info("[Snapshot][Clear] Cleared graph", "vertices", len(vertices))
	return len(vertices), nil
}

// Reload clears the graph and loads source, a local path or an s3:// key,
// in one transaction.
func (s *Store) Reload(ctx context.Context, source string, commit bool) (Stats, error) {
	r, err := s.open(ctx, source)
	if err != nil {
		return Stats{}, err
	}
	defer r.Close()

	tx, err := s.engine.Begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback(ctx)

	if err := graph.Clear(ctx, tx); err != nil {
		return Stats{}, err
	}
	st, err := Load(ctx, tx, r)
	if err != nil {
		return st, fmt.Errorf("%s: %w", source, err)
	}
	if !commit {
		return st, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return st, err
	}
	logger.Info("[Snapshot][Reload] Reloaded graph", "source", source, "vertices", st.Vertices, "edges", st.Edges)
	return st, nil
}

// LoadFile adds the content of a local snapshot to the graph and commits.
func (s *Store) LoadFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, err
	}
	defer f.Close()

	tx, err := s.engine.Begin(ctx)
	if err != nil {
		return Stats{}, err
	}
	defer tx.Rollback(ctx)

	st, err := Load(ctx, tx, f)
	if err != nil {
		return st, fmt.Errorf("%s: %w", path, err)
	}
	return st, tx.Commit(ctx)
}

func (s *Store) open(ctx context.Context, source string) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(source, RemotePrefix); ok {
		if s.remote == nil {
			return nil, fmt.Errorf("remote snapshot %s requested but no remote storage is configured", source)
		}
		return s.remote.Download(ctx, key)
	}
	return os.Open(source)
}
