// Package memdb is an in-memory implementation of store.DetectionStore and
// store.GraphStore for tests; the CLI (including `sumav build none`) always
// uses the postgres store. Adapted from the teacher's companion pack
// (fiddeb-otlp_cardinality_checker/internal/storage/memory): per-field
// mutexes guarding plain maps, sorted on read for deterministic iteration.
package memdb

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/store"
)

// ErrNotFound is declared but no Store method returns it: lookups that find
// nothing return (nil, nil), per spec.md §7.
var ErrNotFound = errors.New("not found")

// Store is an in-memory DetectionStore and GraphStore.
type Store struct {
	detMu      sync.RWMutex
	detections map[int64]*graph.Detection
	nextDetID  int64

	graphMu sync.RWMutex
	nodes   map[string]*graph.Node
	edges   map[[2]string]*graph.Edge
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		detections: make(map[int64]*graph.Detection),
		nodes:      make(map[string]*graph.Node),
		edges:      make(map[[2]string]*graph.Edge),
	}
}

// --- store.DetectionStore ---

func (s *Store) Count(ctx context.Context) (int64, error) {
	s.detMu.RLock()
	defer s.detMu.RUnlock()
	return int64(len(s.detections)), nil
}

func (s *Store) sortedDetectionIDs(maxID int64) []int64 {
	ids := make([]int64, 0, len(s.detections))
	for id := range s.detections {
		if maxID > 0 && id > maxID {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) Iterate(ctx context.Context, maxID int64) (store.DetectionIterator, error) {
	s.detMu.RLock()
	defer s.detMu.RUnlock()

	ids := s.sortedDetectionIDs(maxID)
	rows := make([]*graph.Detection, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, s.detections[id])
	}
	return &iterator{rows: rows}, nil
}

type iterator struct {
	rows []*graph.Detection
	i    int
}

func (it *iterator) Next(ctx context.Context) bool {
	if it.i >= len(it.rows) {
		return false
	}
	it.i++
	return true
}

func (it *iterator) Detection() *graph.Detection { return it.rows[it.i-1] }
func (it *iterator) Err() error                  { return nil }
func (it *iterator) Close() error                { return nil }

func (s *Store) TokensByHash(ctx context.Context, hash string) ([]string, error) {
	s.detMu.RLock()
	defer s.detMu.RUnlock()

	for _, d := range s.detections {
		if d.MD5 == hash || d.SHA256 == hash {
			return d.Tokens, nil
		}
	}
	return nil, nil
}

func (s *Store) Truncate(ctx context.Context) error {
	s.detMu.Lock()
	defer s.detMu.Unlock()
	s.detections = make(map[int64]*graph.Detection)
	s.nextDetID = 0
	return nil
}

func (s *Store) Insert(ctx context.Context, rows []*graph.Detection, batchSize int) error {
	s.detMu.Lock()
	defer s.detMu.Unlock()

	for _, d := range rows {
		row := *d
		s.nextDetID++
		row.ID = s.nextDetID
		s.detections[row.ID] = &row
	}
	return nil
}

func (s *Store) UpdatePredictedLabels(ctx context.Context, updates []store.LabelUpdate, batchSize int) error {
	s.detMu.Lock()
	defer s.detMu.Unlock()

	byMD5 := make(map[string]string, len(updates))
	for _, u := range updates {
		byMD5[u.MD5] = u.Label
	}
	for _, d := range s.detections {
		if label, ok := byMD5[d.MD5]; ok {
			d.PredictedLabel = label
		}
	}
	return nil
}

// --- store.GraphStore ---

func (s *Store) LoadNodes(ctx context.Context) ([]*graph.Node, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()

	out := make([]*graph.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *Store) Edge(ctx context.Context, tokenA, tokenB string) (*graph.Edge, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()

	lo, hi := graph.Key(tokenA, tokenB)
	e, ok := s.edges[[2]string{lo, hi}]
	if !ok {
		return nil, nil
	}
	return e, nil
}

func (s *Store) EdgesForToken(ctx context.Context, token string) ([]*graph.Edge, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()

	var out []*graph.Edge
	for _, e := range s.edges {
		if e.TokenA == token || e.TokenB == token {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) Size(ctx context.Context) (int64, int64, error) {
	s.graphMu.RLock()
	defer s.graphMu.RUnlock()
	return int64(len(s.nodes)), int64(len(s.edges)), nil
}

func (s *Store) BuildTransaction(ctx context.Context, fn func(ctx context.Context, w store.GraphWriter) error) error {
	s.graphMu.Lock()
	defer s.graphMu.Unlock()

	staged := &stagedWriter{nodes: make(map[string]*graph.Node), edges: make(map[[2]string]*graph.Edge)}
	if err := fn(ctx, staged); err != nil {
		return err
	}

	if staged.truncated {
		s.nodes = staged.nodes
		s.edges = staged.edges
	} else {
		for tok, n := range staged.nodes {
			s.nodes[tok] = n
		}
		for key, e := range staged.edges {
			s.edges[key] = e
		}
	}
	return nil
}

// stagedWriter buffers a build's writes so that BuildTransaction can apply
// them atomically (no reader ever observes a half-written graph), mirroring
// the isolation pgx.Tx gives the Postgres implementation.
type stagedWriter struct {
	truncated bool
	nodes     map[string]*graph.Node
	edges     map[[2]string]*graph.Edge
}

func (w *stagedWriter) Truncate(ctx context.Context) error {
	w.truncated = true
	w.nodes = make(map[string]*graph.Node)
	w.edges = make(map[[2]string]*graph.Edge)
	return nil
}

func (w *stagedWriter) InsertNodes(ctx context.Context, nodes []*graph.Node, batchSize int) error {
	for _, n := range nodes {
		w.nodes[n.Token] = n
	}
	return nil
}

func (w *stagedWriter) InsertEdges(ctx context.Context, edges []*graph.Edge, batchSize int) error {
	for _, e := range edges {
		w.edges[[2]string{e.TokenA, e.TokenB}] = e
	}
	return nil
}
