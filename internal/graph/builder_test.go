package graph

import (
	"context"
	"testing"

	"github.com/sumav/sumav/internal/store"
)

// fakeIterator walks a fixed slice of detections, optionally bounded by
// maxID, standing in for a store.DetectionIterator in tests.
type fakeIterator struct {
	rows []*Detection
	i    int
	max  int64
	cur  *Detection
}

func (it *fakeIterator) Next(ctx context.Context) bool {
	for it.i < len(it.rows) {
		d := it.rows[it.i]
		it.i++
		if it.max > 0 && d.ID > it.max {
			continue
		}
		it.cur = d
		return true
	}
	return false
}

func (it *fakeIterator) Detection() *Detection { return it.cur }
func (it *fakeIterator) Err() error             { return nil }
func (it *fakeIterator) Close() error           { return nil }

type fakeDetectionStore struct {
	rows []*Detection
}

func (s *fakeDetectionStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

func (s *fakeDetectionStore) Iterate(ctx context.Context, maxID int64) (store.DetectionIterator, error) {
	return &fakeIterator{rows: s.rows, max: maxID}, nil
}

func (s *fakeDetectionStore) TokensByHash(ctx context.Context, hash string) ([]string, error) {
	for _, d := range s.rows {
		if d.MD5 == hash || d.SHA256 == hash {
			return d.Tokens, nil
		}
	}
	return nil, nil
}

func (s *fakeDetectionStore) Truncate(ctx context.Context) error { s.rows = nil; return nil }

func (s *fakeDetectionStore) Insert(ctx context.Context, rows []*Detection, batchSize int) error {
	s.rows = append(s.rows, rows...)
	return nil
}

func (s *fakeDetectionStore) UpdatePredictedLabels(ctx context.Context, updates []store.LabelUpdate, batchSize int) error {
	for _, u := range updates {
		for _, d := range s.rows {
			if d.MD5 == u.MD5 {
				d.PredictedLabel = u.Label
			}
		}
	}
	return nil
}

// fakeGraphStore captures whatever the Builder writes via BuildTransaction,
// so tests can assert on the final in-memory graph without a database.
type fakeGraphStore struct {
	nodes []*Node
	edges []*Edge
}

func (g *fakeGraphStore) LoadNodes(ctx context.Context) ([]*Node, error) { return g.nodes, nil }

func (g *fakeGraphStore) Edge(ctx context.Context, tokenA, tokenB string) (*Edge, error) {
	lo, hi := Key(tokenA, tokenB)
	for _, e := range g.edges {
		if e.TokenA == lo && e.TokenB == hi {
			return e, nil
		}
	}
	return nil, nil
}

func (g *fakeGraphStore) EdgesForToken(ctx context.Context, token string) ([]*Edge, error) {
	var out []*Edge
	for _, e := range g.edges {
		if e.TokenA == token || e.TokenB == token {
			out = append(out, e)
		}
	}
	return out, nil
}

func (g *fakeGraphStore) Size(ctx context.Context) (int64, int64, error) {
	return int64(len(g.nodes)), int64(len(g.edges)), nil
}

func (g *fakeGraphStore) BuildTransaction(ctx context.Context, fn func(ctx context.Context, w store.GraphWriter) error) error {
	w := &fakeGraphWriter{store: g}
	return fn(ctx, w)
}

type fakeGraphWriter struct {
	store *fakeGraphStore
}

func (w *fakeGraphWriter) Truncate(ctx context.Context) error {
	w.store.nodes = nil
	w.store.edges = nil
	return nil
}

func (w *fakeGraphWriter) InsertNodes(ctx context.Context, nodes []*Node, batchSize int) error {
	w.store.nodes = append(w.store.nodes, nodes...)
	return nil
}

func (w *fakeGraphWriter) InsertEdges(ctx context.Context, edges []*Edge, batchSize int) error {
	w.store.edges = append(w.store.edges, edges...)
	return nil
}

func nodeByToken(nodes []*Node, token string) *Node {
	for _, n := range nodes {
		if n.Token == token {
			return n
		}
	}
	return nil
}

func TestBuilder_PruneRareNodes(t *testing.T) {
	b := NewBuilder(nil, nil, 0.9)

	nodes := map[string]*nodeRecord{
		// appears in many rows with repeats: survives.
		"trojan": {token: "trojan", tokenCount: 20, rowCount: 10},
		// appears exactly once per row it's in: pruned (token_count == row_count).
		"rare1": {token: "rare1", tokenCount: 1, rowCount: 1},
	}

	b.pruneRareNodes(nodes)

	if _, ok := nodes["trojan"]; !ok {
		t.Fatalf("expected trojan to survive pruning")
	}
	if _, ok := nodes["rare1"]; ok {
		t.Fatalf("expected rare1 to be pruned (token_count == row_count)")
	}
}

func TestBuilder_BuildProducesConditionalProbabilities(t *testing.T) {
	// Two detections share "trojan" and "agen"; a third only has "trojan".
	// Each token repeats within a detection so it survives the
	// token_count == row_count pruning rule. trojan: rowCount=3, agen:
	// rowCount=2, intersection=2.
	rows := []*Detection{
		{ID: 1, MD5: "h1", Tokens: []string{"trojan", "trojan", "agen", "agen"}, UniqueTokens: []string{"agen", "trojan"}},
		{ID: 2, MD5: "h2", Tokens: []string{"trojan", "trojan", "agen", "agen"}, UniqueTokens: []string{"agen", "trojan"}},
		{ID: 3, MD5: "h3", Tokens: []string{"trojan", "trojan"}, UniqueTokens: []string{"trojan"}},
	}

	ds := &fakeDetectionStore{rows: rows}
	gs := &fakeGraphStore{}
	b := NewBuilder(ds, gs, 0.9)

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	trojan := nodeByToken(gs.nodes, "trojan")
	agen := nodeByToken(gs.nodes, "agen")
	if trojan == nil || agen == nil {
		t.Fatalf("expected both trojan and agen nodes to survive, got %d nodes", len(gs.nodes))
	}
	if trojan.RowCount != 3 {
		t.Errorf("trojan.RowCount = %d, want 3", trojan.RowCount)
	}
	if agen.RowCount != 2 {
		t.Errorf("agen.RowCount = %d, want 2", agen.RowCount)
	}

	edge, err := gs.Edge(context.Background(), "trojan", "agen")
	if err != nil {
		t.Fatalf("Edge: %v", err)
	}
	if edge == nil {
		t.Fatalf("expected an edge between trojan and agen")
	}
	if edge.IntersectionRowCount != 2 {
		t.Errorf("IntersectionRowCount = %d, want 2", edge.IntersectionRowCount)
	}
	// p(agen|trojan) = 2/3, p(trojan|agen) = 2/2 = 1.0
	wantPAGivenTrojan := 2.0 / 3.0
	var pAgenGivenTrojan, pTrojanGivenAgen float64
	if edge.TokenA == "agen" {
		pAgenGivenTrojan = edge.PAGivenB
		pTrojanGivenAgen = edge.PBGivenA
	} else {
		pAgenGivenTrojan = edge.PBGivenA
		pTrojanGivenAgen = edge.PAGivenB
	}
	if diff := pAgenGivenTrojan - wantPAGivenTrojan; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("p(agen|trojan) = %v, want %v", pAgenGivenTrojan, wantPAGivenTrojan)
	}
	if pTrojanGivenAgen != 1.0 {
		t.Errorf("p(trojan|agen) = %v, want 1.0", pTrojanGivenAgen)
	}
}

func TestBuilder_BuildEmptyCorpus(t *testing.T) {
	ds := &fakeDetectionStore{}
	gs := &fakeGraphStore{}
	b := NewBuilder(ds, gs, 0.9)

	if err := b.Build(context.Background()); err != nil {
		t.Fatalf("Build on empty corpus: %v", err)
	}
	if len(gs.nodes) != 0 || len(gs.edges) != 0 {
		t.Fatalf("expected no nodes/edges to be written for an empty corpus")
	}
}

func TestBuilder_AliasVsParentDecision(t *testing.T) {
	b := NewBuilder(nil, nil, 0.9)

	nodes := map[string]*nodeRecord{
		"trojan":      {token: "trojan", tokenCount: 100},
		"trojandownl": {token: "trojandownl", tokenCount: 10},
		"generic":     {token: "generic", tokenCount: 10},
	}

	// "trojan" / "trojandownl" are similar strings: should alias, not parent.
	b.recordSubset(nodes, "trojandownl", "trojan")
	if nodes["trojan"].alias != "trojandownl" {
		t.Errorf("expected trojan aliased to trojandownl for similar strings, got alias=%q parents=%v",
			nodes["trojan"].alias, nodes["trojan"].parents)
	}

	// "generic" vs a dissimilar superset token should get a parent edge.
	b.recordSubset(nodes, "trojandownl", "generic")
	if len(nodes["generic"].parents) != 1 || nodes["generic"].parents[0] != "trojandownl" {
		t.Errorf("expected generic to get parent trojandownl, got parents=%v alias=%q",
			nodes["generic"].parents, nodes["generic"].alias)
	}
}

func TestBuilder_GraphSize(t *testing.T) {
	gs := &fakeGraphStore{
		nodes: []*Node{{Token: "a"}, {Token: "b"}},
		edges: []*Edge{{TokenA: "a", TokenB: "b"}},
	}
	b := NewBuilder(nil, gs, 0.9)

	n, e, err := b.GraphSize(context.Background())
	if err != nil {
		t.Fatalf("GraphSize: %v", err)
	}
	if n != 2 || e != 1 {
		t.Errorf("GraphSize = (%d, %d), want (2, 1)", n, e)
	}
}
