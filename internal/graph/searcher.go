package graph

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sumav/sumav/internal/store"
)

// uniqueSorted returns the sorted distinct values of tokens.
func uniqueSorted(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Relation is the symbol compare_tokens returns to describe how two tokens'
// conditional probabilities relate, per spec.md §4.3.2.
type Relation string

const (
	RelationEqual    Relation = "="
	RelationSubset   Relation = "⊂"
	RelationSuperset Relation = "⊃"
	RelationDisjoint Relation = "!"
	RelationPartial  Relation = "$"
)

// Comparison is the result of comparing two tokens' edge.
type Comparison struct {
	PTokenGivenOther float64 // p(token|other)
	POtherGivenToken float64 // p(other|token)
	IntersectionRowCount int64
	Relation         Relation
	RowCountToken    int64 // 0 if without-row-count lookup
	RowCountOther    int64
}

// RelatedTokens is the result of GetRelatedTokens.
type RelatedTokens struct {
	Supersets  []string
	Subsets    []string
	Equalsets  []string
	Info       map[string]Comparison
}

// ScoredToken pairs a candidate token with its representative-selection
// score, for the top_n != nil return form.
type ScoredToken struct {
	Token string
	Score float64
}

// SumavResult is one bulk-scored detection, as produced by GetSumavResults.
type SumavResult struct {
	SHA256         string
	MD5            string
	GroundTruth    string
	PredictedLabel string // empty if no representative token was chosen
}

// SearchOptions configures GetRepresentativeToken, per spec.md §4.3.1.
type SearchOptions struct {
	// TopN: nil means return the single best token; non-nil means return
	// up to *TopN (token, score) pairs in descending score order.
	TopN *int

	// WeightParam is w in W(t) = log_w c(t). Must be > 1 to contribute;
	// spec.md default is 4.1.
	WeightParam float64

	// GeneralParam is g in G(t) = num_subsets/|nodes| * g; default 225.0.
	GeneralParam float64

	// Alias, if true, remaps every input token through its alias before
	// scoring.
	Alias bool

	// ReturnNoneLessThan: if the top-ranked candidate's input multiplicity
	// is <= this value, return nothing (spec.md §9(c): checked only
	// against the top-ranked result, never across top-N).
	ReturnNoneLessThan int

	// AllowOutOfGraphFallback: when true, a token absent from the graph
	// may still win on its W-only score (spec.md §9(a) decision, default
	// false).
	AllowOutOfGraphFallback bool
}

// DefaultSearchOptions returns spec.md §4.3.1's documented defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		WeightParam:  4.1,
		GeneralParam: 225.0,
	}
}

// Searcher answers representative-token, relation, and per-sample graph
// queries against a built graph. It loads all nodes into memory at
// construction time (spec.md §4.3's "hot path" discipline) and queries
// edges on demand through the GraphStore.
type Searcher struct {
	detections store.DetectionStore
	graphStore store.GraphStore

	intersectionRatio float64

	nodes map[string]*Node
	alias map[string]string
}

// NewSearcher constructs a Searcher, loading every TokenNode from the
// graph store.
func NewSearcher(ctx context.Context, detections store.DetectionStore, graphStore store.GraphStore, intersectionRatio float64) (*Searcher, error) {
	nodeList, err := graphStore.LoadNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading token nodes: %w", err)
	}

	s := &Searcher{
		detections:        detections,
		graphStore:        graphStore,
		intersectionRatio: intersectionRatio,
		nodes:             make(map[string]*Node, len(nodeList)),
		alias:             make(map[string]string, len(nodeList)),
	}
	for _, n := range nodeList {
		s.nodes[n.Token] = n
		if n.Alias != "" {
			s.alias[n.Token] = n.Alias
		} else {
			s.alias[n.Token] = n.Token
		}
	}
	return s, nil
}

// Reload refreshes the in-memory node/alias maps from the graph store,
// used after a rebuild replaces the graph under a long-lived Searcher.
func (s *Searcher) Reload(ctx context.Context) error {
	nodeList, err := s.graphStore.LoadNodes(ctx)
	if err != nil {
		return fmt.Errorf("reloading token nodes: %w", err)
	}
	s.nodes = make(map[string]*Node, len(nodeList))
	s.alias = make(map[string]string, len(nodeList))
	for _, n := range nodeList {
		s.nodes[n.Token] = n
		if n.Alias != "" {
			s.alias[n.Token] = n.Alias
		} else {
			s.alias[n.Token] = n.Token
		}
	}
	return nil
}

// GetRepresentativeToken implements spec.md §4.3.1. Exactly one of
// av_labels-derived tokens, pre-tokenized tokens, or a hash to resolve must
// be supplied via the tokens/hash arguments; tokenize raw verdicts with the
// tokenizer package before calling if starting from av_labels.
func (s *Searcher) GetRepresentativeToken(ctx context.Context, tokens []string, hash string, opts SearchOptions) (string, []ScoredToken, error) {
	if len(s.nodes) == 0 {
		return "", nil, fmt.Errorf("graph has no nodes: build the graph first")
	}

	if tokens == nil {
		if hash == "" {
			return "", nil, fmt.Errorf("must supply tokens or a hash")
		}
		resolved, err := s.detections.TokensByHash(ctx, hash)
		if err != nil {
			return "", nil, fmt.Errorf("resolving hash %q: %w", hash, err)
		}
		if resolved == nil {
			return "", nil, nil
		}
		tokens = resolved
	}

	if opts.Alias {
		remapped := make([]string, len(tokens))
		for i, t := range tokens {
			if a, ok := s.alias[t]; ok {
				remapped[i] = a
			} else {
				remapped[i] = t
			}
		}
		tokens = remapped
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, t := range tokens {
		if _, seen := counts[t]; !seen {
			order = append(order, t)
		}
		counts[t]++
	}

	candidates := make([]string, 0, len(order))
	for _, t := range order {
		if _, inGraph := s.nodes[t]; inGraph {
			candidates = append(candidates, t)
		} else if opts.AllowOutOfGraphFallback {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return "", nil, nil
	}

	numNodes := float64(len(s.nodes))
	scores := make(map[string]float64, len(candidates))
	for _, t := range candidates {
		w := weightFunc(counts[t], opts.WeightParam)
		if n, ok := s.nodes[t]; ok {
			imp := importanceFunc(n.TokenCount, n.RowCount)
			gen := generalFunc(n.NumSubsets, numNodes, opts.GeneralParam)
			scores[t] = w + imp - gen
		} else {
			scores[t] = w
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return scores[candidates[i]] > scores[candidates[j]]
	})

	top := candidates[0]
	if counts[top] <= opts.ReturnNoneLessThan {
		return "", nil, nil
	}

	if opts.TopN == nil {
		return top, nil, nil
	}

	n := *opts.TopN
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]ScoredToken, n)
	for i := 0; i < n; i++ {
		out[i] = ScoredToken{Token: candidates[i], Score: scores[candidates[i]]}
	}
	return "", out, nil
}

func weightFunc(count int, w float64) float64 {
	if w > 1 {
		return math.Log(float64(count)) / math.Log(w)
	}
	return 0
}

func importanceFunc(tokenCount, rowCount int64) float64 {
	if rowCount == 0 {
		return 0
	}
	return float64(tokenCount) / float64(rowCount)
}

func generalFunc(numSubsets int64, numNodes, generalParam float64) float64 {
	if numNodes == 0 {
		return 0
	}
	return float64(numSubsets) / numNodes * generalParam
}

// CompareTokens implements spec.md §4.3.2: look up the canonical edge for
// (a,b) and derive its relation symbol. withRowCount additionally populates
// RowCountToken/RowCountOther from the node table.
func (s *Searcher) CompareTokens(ctx context.Context, a, b string, withRowCount bool) (*Comparison, error) {
	e, err := s.graphStore.Edge(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("looking up edge (%s, %s): %w", a, b, err)
	}
	if e == nil {
		return nil, nil
	}

	// PBGivenA/PAGivenB on the stored edge are keyed to the canonical
	// (TokenA<=TokenB) order; reorient them relative to the caller's
	// (a, b) argument order.
	var pAGivenB, pBGivenA float64
	if a == e.TokenA {
		pBGivenA = e.PBGivenA
		pAGivenB = e.PAGivenB
	} else {
		pBGivenA = e.PAGivenB
		pAGivenB = e.PBGivenA
	}

	c := &Comparison{
		PTokenGivenOther:     pAGivenB,
		POtherGivenToken:     pBGivenA,
		IntersectionRowCount: e.IntersectionRowCount,
		Relation:             s.relation(pAGivenB, pBGivenA),
	}

	if withRowCount {
		if na, ok := s.nodes[a]; ok {
			c.RowCountToken = na.RowCount
		}
		if nb, ok := s.nodes[b]; ok {
			c.RowCountOther = nb.RowCount
		}
	}

	return c, nil
}

// relation derives the relation symbol from two conditional probabilities,
// per spec.md §4.3.2: pa = p(a|b), pb = p(b|a). Branches primarily on pb
// (how fully a's occurrences are explained by b), matching
// original_source/sumav/graph/searcher.py's __relation exactly: pb > tau
// means a's occurrence implies b's, i.e. a ⊂ b.
func (s *Searcher) relation(pa, pb float64) Relation {
	tau := s.intersectionRatio

	if pb > tau {
		if pa > tau {
			return RelationEqual
		}
		return RelationSubset
	}
	if pb < 1-tau {
		if pa < 1-tau {
			return RelationDisjoint
		}
		if pa > tau {
			return RelationSuperset
		}
		return RelationPartial
	}
	if pa > tau {
		return RelationSuperset
	}
	return RelationPartial
}

// GetRelatedTokens implements spec.md §4.3.2's get_related_tokens: returns
// the disjoint superset/subset/equalset lists for token, plus a map of full
// comparison records keyed by "token_other".
func (s *Searcher) GetRelatedTokens(ctx context.Context, token string) (*RelatedTokens, error) {
	out := &RelatedTokens{Info: make(map[string]Comparison)}

	edges, err := s.graphStore.EdgesForToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("loading edges for %q: %w", token, err)
	}

	for _, e := range edges {
		other := e.TokenA
		if token == e.TokenA {
			other = e.TokenB
		}

		cmp, err := s.CompareTokens(ctx, token, other, true)
		if err != nil {
			return nil, err
		}
		if cmp == nil {
			continue
		}

		key := token + "_" + other
		switch cmp.Relation {
		case RelationSubset:
			out.Supersets = append(out.Supersets, other)
			out.Info[key] = *cmp
		case RelationSuperset:
			out.Subsets = append(out.Subsets, other)
			out.Info[key] = *cmp
		case RelationEqual:
			tokenNode, tokOK := s.nodes[token]
			otherNode, othOK := s.nodes[other]
			if tokOK && othOK && tokenNode.TokenCount > otherNode.TokenCount {
				out.Equalsets = append(out.Equalsets, other)
				out.Info[key] = *cmp
			}
		}
	}

	return out, nil
}

// GetGraph implements spec.md §4.3.3: per-sample graph extraction. It
// resolves the sample's distinct tokens, compares every ordered pair, and
// builds an adjacency map where superset tokens point at their subsets
// ("=" inserts both directions).
func (s *Searcher) GetGraph(ctx context.Context, hash string) (map[string][]string, error) {
	tokens, err := s.detections.TokensByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("resolving hash %q: %w", hash, err)
	}
	if tokens == nil {
		return nil, nil
	}

	unique := uniqueSorted(tokens)
	adj := make(map[string][]string)

	for i, a := range unique {
		for _, b := range unique[i+1:] {
			cmp, err := s.CompareTokens(ctx, a, b, false)
			if err != nil {
				return nil, err
			}
			if cmp == nil {
				continue
			}
			switch cmp.Relation {
			case RelationSuperset:
				adj[a] = append(adj[a], b)
			case RelationSubset:
				adj[b] = append(adj[b], a)
			case RelationEqual:
				adj[a] = append(adj[a], b)
				adj[b] = append(adj[b], a)
			}
		}
	}

	return adj, nil
}

// GetSumavResults implements spec.md §4.3.4's get_sumav_results: scores
// each given detection's tokens and reports its representative label
// alongside its identifying hashes and ground truth.
func (s *Searcher) GetSumavResults(ctx context.Context, rows []*Detection, opts SearchOptions) ([]SumavResult, error) {
	out := make([]SumavResult, 0, len(rows))
	for _, row := range rows {
		label, _, err := s.GetRepresentativeToken(ctx, row.Tokens, "", opts)
		if err != nil {
			return nil, fmt.Errorf("scoring detection %s: %w", row.MD5, err)
		}
		out = append(out, SumavResult{
			SHA256:         row.SHA256,
			MD5:            row.MD5,
			GroundTruth:    row.GroundTruth,
			PredictedLabel: label,
		})
	}
	return out, nil
}

// UpdateSumavResults implements spec.md §4.3.4's update_sumav_results: bulk
// writes predicted_label keyed by md5 in commit batches.
func (s *Searcher) UpdateSumavResults(ctx context.Context, results []SumavResult, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	updates := make([]store.LabelUpdate, 0, len(results))
	for _, r := range results {
		updates = append(updates, store.LabelUpdate{MD5: r.MD5, Label: r.PredictedLabel})
	}
	return s.detections.UpdatePredictedLabels(ctx, updates, batchSize)
}
