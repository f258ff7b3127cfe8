// Package snapshot serializes a whole graph to a line-oriented JSON file and
// loads it back.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/OFFIS-RIT/aai-resources/pkg/graph"
)

// Record is one vertex with its outgoing edges, one per line.
type Record struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	Properties graph.Properties `json:"properties"`
	OutE       []EdgeRecord     `json:"outE,omitempty"`
}

// EdgeRecord is an outgoing edge of a Record.
type EdgeRecord struct {
	ID         string           `json:"id"`
	Label      string           `json:"label"`
	InV        string           `json:"inV"`
	Properties graph.Properties `json:"properties,omitempty"`
}

// Stats counts what a write or load handled.
type Stats struct {
	Vertices int
	Edges    int
}

// Dumper is implemented by engines that can read the whole graph faster
// than a transaction scan.
type Dumper interface {
	Dump(ctx context.Context) ([]*graph.Vertex, []*graph.Edge, error)
}

// MigrationFileName names the snapshot taken before or after a migration
// run, e.g. preMigration.202601011200.graphson.
func MigrationFileName(phase string, t time.Time) string {
	return phase + "Migration." + t.UTC().Format("200601021504") + ".graphson"
}

// DataSnapshotFileName names a snapshot taken on request.
func DataSnapshotFileName(t time.Time) string {
	return "dataSnapshot.graphSON." + t.UTC().Format("200601021504")
}

// Encode writes vertices and edges as records. Edges are attached to their
// out vertex.
func Encode(w io.Writer, vertices []*graph.Vertex, edges []*graph.Edge) (Stats, error) {
	var st Stats
	outE := make(map[string][]EdgeRecord, len(vertices))
	for _, e := range edges {
		outE[e.OutID] = append(outE[e.OutID], EdgeRecord{ID: e.ID, Label: e.Label, InV: e.InID, Properties: e.Properties})
	}

	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, v := range vertices {
		rec := Record{ID: v.ID, Label: v.NodeType, Properties: v.Properties, OutE: outE[v.ID]}
		if err := enc.Encode(rec); err != nil {
			return st, fmt.Errorf("encode vertex %s: %w", v.ID, err)
		}
		st.Vertices++
		st.Edges += len(rec.OutE)
	}
	return st, bw.Flush()
}

// Write serializes everything visible to tx.
func Write(ctx context.Context, tx graph.Tx, w io.Writer) (Stats, error) {
	vertices, err := tx.Vertices(ctx, graph.VertexFilter{})
	if err != nil {
		return Stats{}, err
	}
	edges, err := tx.Edges(ctx, graph.EdgeFilter{})
	if err != nil {
		return Stats{}, err
	}
	return Encode(w, vertices, edges)
}

// Decode reads records until EOF.
func Decode(r io.Reader) ([]Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []Record
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(out)+1, err)
		}
		if rec.Label == "" {
			return nil, fmt.Errorf("record %d (%s) has no label", len(out)+1, rec.ID)
		}
		rec.Properties = normalizeNumbers(rec.Properties)
		for i := range rec.OutE {
			rec.OutE[i].Properties = normalizeNumbers(rec.OutE[i].Properties)
		}
		out = append(out, rec)
	}
}

func normalizeNumbers(p graph.Properties) graph.Properties {
	for k, v := range p {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			p[k] = i
		} else if f, err := n.Float64(); err == nil {
			p[k] = f
		}
	}
	return p
}

// Load adds every record of r to tx. Vertices get fresh ids from the
// store; edges are rewired to them.
func Load(ctx context.Context, tx graph.Tx, r io.Reader) (Stats, error) {
	var st Stats
	records, err := Decode(r)
	if err != nil {
		return st, err
	}

	ids := make(map[string]string, len(records))
	for _, rec := range records {
		props := rec.Properties.Clone()
		delete(props, graph.NodeTypeKey)
		v, err := tx.AddVertex(ctx, rec.Label, props)
		if err != nil {
			return st, fmt.Errorf("load vertex %s: %w", rec.ID, err)
		}
		ids[rec.ID] = v.ID
		st.Vertices++
	}
	for _, rec := range records {
		for _, e := range rec.OutE {
			in, ok := ids[e.InV]
			if !ok {
				return st, fmt.Errorf("edge %s of vertex %s points to unknown vertex %s", e.ID, rec.ID, e.InV)
			}
			if _, err := tx.AddEdge(ctx, e.Label, ids[rec.ID], in, e.Properties); err != nil {
				return st, fmt.Errorf("load edge %s: %w", e.ID, err)
			}
			st.Edges++
		}
	}
	return st, nil
}
