// Package graph implements the token co-occurrence graph: its data model,
// the two-pass Builder that constructs it from a detection corpus, and the
// Searcher that answers representative-token and token-relation queries
// against a built graph.
package graph

// Detection is one scanned-file record: its content hashes, the raw
// per-engine verdicts it was tokenized from, and (once built/scored) the
// derived token sequences and predicted label.
type Detection struct {
	ID              int64
	MD5             string
	SHA256          string
	SubmissionDate  int64 // unix seconds
	Detections      map[string]string // engine name -> verdict
	Tokens          []string          // ordered, multiplicity preserved
	UniqueTokens    []string          // sorted distinct
	GroundTruth     string            // cluster id, optional
	PredictedLabel  string            // optional, set by Searcher
}

// Node is a TokenNode: a single vocabulary entry in the built graph.
type Node struct {
	ID          int64
	Token       string
	Alias       string // empty means no alias
	Parents     []string
	TokenCount  int64 // total occurrences, counting multiplicity
	RowCount    int64 // number of detections containing it at least once
	TokenRatio  float64
	NumSubsets  int64
}

// Edge is a TokenEdge: the canonical (A<B) unordered pair between two
// tokens, with the conditional probabilities of co-occurrence.
type Edge struct {
	ID                  int64
	TokenA              string // lexicographically smaller
	TokenB              string // lexicographically larger
	PBGivenA            float64 // p(token2|token) in spec.md notation
	PAGivenB            float64 // p(token|token2)
	IntersectionRowCount int64
}

// Key returns the canonical pair for an unordered pair of tokens: the
// lexicographically smaller token first. Used as the in-memory map key
// during the build and for edge lookups at query time.
func Key(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}
