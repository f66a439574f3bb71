package graph

import (
	"context"
	"testing"
)

func newTestSearcher(t *testing.T, nodes []*Node, edges []*Edge, rows []*Detection) *Searcher {
	t.Helper()
	gs := &fakeGraphStore{nodes: nodes, edges: edges}
	ds := &fakeDetectionStore{rows: rows}
	s, err := NewSearcher(context.Background(), ds, gs, 0.9)
	if err != nil {
		t.Fatalf("NewSearcher: %v", err)
	}
	return s
}

func TestSearcher_GetRepresentativeToken_PrefersHigherScore(t *testing.T) {
	nodes := []*Node{
		{Token: "trojan", TokenCount: 1000, RowCount: 500, NumSubsets: 0},
		{Token: "agen", TokenCount: 10, RowCount: 10, NumSubsets: 0},
	}
	s := newTestSearcher(t, nodes, nil, nil)

	opts := DefaultSearchOptions()
	top, _, err := s.GetRepresentativeToken(context.Background(), []string{"trojan", "agen"}, "", opts)
	if err != nil {
		t.Fatalf("GetRepresentativeToken: %v", err)
	}
	if top != "trojan" {
		t.Errorf("top = %q, want trojan (higher I(t))", top)
	}
}

func TestSearcher_GetRepresentativeToken_TopN(t *testing.T) {
	nodes := []*Node{
		{Token: "trojan", TokenCount: 1000, RowCount: 500},
		{Token: "agen", TokenCount: 10, RowCount: 10},
		{Token: "generic", TokenCount: 5, RowCount: 5},
	}
	s := newTestSearcher(t, nodes, nil, nil)

	n := 2
	opts := DefaultSearchOptions()
	opts.TopN = &n
	_, scored, err := s.GetRepresentativeToken(context.Background(), []string{"trojan", "agen", "generic"}, "", opts)
	if err != nil {
		t.Fatalf("GetRepresentativeToken: %v", err)
	}
	if len(scored) != 2 {
		t.Fatalf("len(scored) = %d, want 2", len(scored))
	}
	if scored[0].Score < scored[1].Score {
		t.Errorf("expected descending score order, got %v", scored)
	}
}

func TestSearcher_GetRepresentativeToken_ReturnNoneLessThan(t *testing.T) {
	nodes := []*Node{{Token: "trojan", TokenCount: 1000, RowCount: 500}}
	s := newTestSearcher(t, nodes, nil, nil)

	opts := DefaultSearchOptions()
	opts.ReturnNoneLessThan = 2
	top, _, err := s.GetRepresentativeToken(context.Background(), []string{"trojan"}, "", opts)
	if err != nil {
		t.Fatalf("GetRepresentativeToken: %v", err)
	}
	if top != "" {
		t.Errorf("expected nil result when top token's multiplicity (1) <= return_none_less_than (2), got %q", top)
	}
}

func TestSearcher_GetRepresentativeToken_EmptyGraphErrors(t *testing.T) {
	s := newTestSearcher(t, nil, nil, nil)
	// No nodes at all means "graph does not exist" per spec.md §4.3.1.
	_, _, err := s.GetRepresentativeToken(context.Background(), []string{"trojan"}, "", DefaultSearchOptions())
	if err == nil {
		t.Fatalf("expected an error for an empty graph")
	}
}

func TestSearcher_GetRepresentativeToken_AllOutOfGraphWithoutFallback(t *testing.T) {
	nodes := []*Node{{Token: "trojan", TokenCount: 1000, RowCount: 500}}
	s := newTestSearcher(t, nodes, nil, nil)

	opts := DefaultSearchOptions()
	top, _, err := s.GetRepresentativeToken(context.Background(), []string{"unknowntoken"}, "", opts)
	if err != nil {
		t.Fatalf("GetRepresentativeToken: %v", err)
	}
	if top != "" {
		t.Errorf("expected no candidates when the only input token is out of graph and fallback disabled, got %q", top)
	}

	opts.AllowOutOfGraphFallback = true
	top, _, err = s.GetRepresentativeToken(context.Background(), []string{"unknowntoken"}, "", opts)
	if err != nil {
		t.Fatalf("GetRepresentativeToken with fallback: %v", err)
	}
	if top != "unknowntoken" {
		t.Errorf("expected fallback to surface the out-of-graph token, got %q", top)
	}
}

func TestSearcher_CompareTokens_Relations(t *testing.T) {
	// a ⊂ b: p(b|a) high (a's occurrence implies b's), p(a|b) low.
	nodes := []*Node{{Token: "a"}, {Token: "b"}}
	edges := []*Edge{
		{TokenA: "a", TokenB: "b", PBGivenA: 0.95, PAGivenB: 0.3, IntersectionRowCount: 10},
	}
	s := newTestSearcher(t, nodes, edges, nil)

	cmp, err := s.CompareTokens(context.Background(), "a", "b", false)
	if err != nil {
		t.Fatalf("CompareTokens: %v", err)
	}
	if cmp.Relation != RelationSubset {
		t.Errorf("relation = %v, want ⊂ (a subset of b)", cmp.Relation)
	}

	// Reversed argument order should report the mirror relation.
	cmp2, err := s.CompareTokens(context.Background(), "b", "a", false)
	if err != nil {
		t.Fatalf("CompareTokens reversed: %v", err)
	}
	if cmp2.Relation != RelationSuperset {
		t.Errorf("relation = %v, want ⊃ (b superset of a)", cmp2.Relation)
	}
}

func TestSearcher_CompareTokens_Equal(t *testing.T) {
	nodes := []*Node{{Token: "a"}, {Token: "b"}}
	edges := []*Edge{
		{TokenA: "a", TokenB: "b", PBGivenA: 0.95, PAGivenB: 0.95, IntersectionRowCount: 10},
	}
	s := newTestSearcher(t, nodes, edges, nil)

	cmp, err := s.CompareTokens(context.Background(), "a", "b", false)
	if err != nil {
		t.Fatalf("CompareTokens: %v", err)
	}
	if cmp.Relation != RelationEqual {
		t.Errorf("relation = %v, want =", cmp.Relation)
	}
}

func TestSearcher_CompareTokens_Disjoint(t *testing.T) {
	nodes := []*Node{{Token: "a"}, {Token: "b"}}
	edges := []*Edge{
		{TokenA: "a", TokenB: "b", PBGivenA: 0.02, PAGivenB: 0.01, IntersectionRowCount: 1},
	}
	s := newTestSearcher(t, nodes, edges, nil)

	cmp, err := s.CompareTokens(context.Background(), "a", "b", false)
	if err != nil {
		t.Fatalf("CompareTokens: %v", err)
	}
	if cmp.Relation != RelationDisjoint {
		t.Errorf("relation = %v, want !", cmp.Relation)
	}
}

func TestSearcher_CompareTokens_NoEdge(t *testing.T) {
	nodes := []*Node{{Token: "a"}, {Token: "b"}}
	s := newTestSearcher(t, nodes, nil, nil)

	cmp, err := s.CompareTokens(context.Background(), "a", "b", false)
	if err != nil {
		t.Fatalf("CompareTokens: %v", err)
	}
	if cmp != nil {
		t.Errorf("expected nil comparison when no edge exists, got %+v", cmp)
	}
}

func TestSearcher_GetRelatedTokens(t *testing.T) {
	nodes := []*Node{
		{Token: "a", TokenCount: 100},
		{Token: "b", TokenCount: 10},
		{Token: "c", TokenCount: 5},
	}
	edges := []*Edge{
		// a ⊃ b: b's occurrences imply a's (p(a|b) high), so from a's
		// perspective b is a subset.
		{TokenA: "a", TokenB: "b", PAGivenB: 0.97, PBGivenA: 0.2, IntersectionRowCount: 9},
		// a = c, a has the higher token_count so c is reported in equalsets.
		{TokenA: "a", TokenB: "c", PAGivenB: 0.95, PBGivenA: 0.95, IntersectionRowCount: 5},
	}
	s := newTestSearcher(t, nodes, edges, nil)

	related, err := s.GetRelatedTokens(context.Background(), "a")
	if err != nil {
		t.Fatalf("GetRelatedTokens: %v", err)
	}
	if len(related.Subsets) != 1 || related.Subsets[0] != "b" {
		t.Errorf("Subsets = %v, want [b]", related.Subsets)
	}
	if len(related.Equalsets) != 1 || related.Equalsets[0] != "c" {
		t.Errorf("Equalsets = %v, want [c]", related.Equalsets)
	}
	if len(related.Supersets) != 0 {
		t.Errorf("Supersets = %v, want empty", related.Supersets)
	}
}

func TestSearcher_UpdateSumavResults(t *testing.T) {
	rows := []*Detection{
		{ID: 1, MD5: "h1", SHA256: "s1", GroundTruth: "trojan"},
	}
	ds := &fakeDetectionStore{rows: rows}
	gs := &fakeGraphStore{}
	s, err := NewSearcher(context.Background(), ds, gs, 0.9)
	if err != nil {
		t.Fatalf("NewSearcher: %v", err)
	}

	results := []SumavResult{{MD5: "h1", PredictedLabel: "trojan"}}
	if err := s.UpdateSumavResults(context.Background(), results, 0); err != nil {
		t.Fatalf("UpdateSumavResults: %v", err)
	}
	if rows[0].PredictedLabel != "trojan" {
		t.Errorf("PredictedLabel = %q, want trojan", rows[0].PredictedLabel)
	}
}
