// Package store defines the storage interfaces the core token-graph engine
// depends on: the Detection Store (the corpus of scanned files and their
// tokens) and the Graph Store (the persisted token_node/token_edge tables).
// Concrete implementations live in store/postgres (used by the CLI) and
// store/memdb (in-memory, for tests).
package store

import (
	"context"

	"github.com/sumav/sumav/internal/graph"
)

// DetectionIterator streams Detection rows in ascending id order without
// requiring the whole corpus to fit in memory.
type DetectionIterator interface {
	Next(ctx context.Context) bool
	Detection() *graph.Detection
	Err() error
	Close() error
}

// LabelUpdate is one md5 -> predicted_label write, batched by
// UpdatePredictedLabels.
type LabelUpdate struct {
	MD5   string
	Label string
}

// DetectionStore exposes iteration, truncation, bulk-insert, and update over
// the corpus of scanned-file records.
type DetectionStore interface {
	// Count returns the total number of detection rows.
	Count(ctx context.Context) (int64, error)

	// Iterate streams detections in ascending id order. If maxID > 0, rows
	// with id > maxID are excluded, bounding a second pass to the snapshot
	// taken by a first pass (spec.md §4.2's two-pass build discipline).
	Iterate(ctx context.Context, maxID int64) (DetectionIterator, error)

	// TokensByHash resolves a content hash (md5 or sha256, whichever the
	// store recognizes by length) to the stored token sequence. Returns
	// (nil, nil) if no row matches — not-found is not an error (spec.md §7).
	TokensByHash(ctx context.Context, hash string) ([]string, error)

	// Truncate clears the detection table entirely.
	Truncate(ctx context.Context) error

	// Insert bulk-inserts detection rows (used by ingestion adaptors).
	Insert(ctx context.Context, rows []*graph.Detection, batchSize int) error

	// UpdatePredictedLabels writes predicted_label for a batch of rows
	// keyed by md5, committing every batchSize rows.
	UpdatePredictedLabels(ctx context.Context, updates []LabelUpdate, batchSize int) error
}

// GraphWriter is the subset of GraphStore used while building: truncate then
// drain-insert nodes and edges. It is the interface handed to the function
// passed to GraphStore.BuildTransaction so a build's writes are confined to
// one atomic transaction.
type GraphWriter interface {
	Truncate(ctx context.Context) error
	InsertNodes(ctx context.Context, nodes []*graph.Node, batchSize int) error
	InsertEdges(ctx context.Context, edges []*graph.Edge, batchSize int) error
}

// GraphStore exposes truncate/bulk-insert/load of nodes and edges, plus
// point lookups used by the Searcher at query time.
type GraphStore interface {
	// LoadNodes returns every persisted TokenNode, for the Searcher to build
	// its in-memory maps at construction time.
	LoadNodes(ctx context.Context) ([]*graph.Node, error)

	// Edge looks up the edge for a canonical (tokenA <= tokenB) pair.
	// Returns (nil, nil) if no such edge exists.
	Edge(ctx context.Context, tokenA, tokenB string) (*graph.Edge, error)

	// EdgesForToken returns every edge where the token participates as
	// either side of the canonical pair.
	EdgesForToken(ctx context.Context, token string) ([]*graph.Edge, error)

	// Size reports the current node/edge table counts (get_graph_size()
	// analog from original_source/sumav/graph/builder.py).
	Size(ctx context.Context) (nodeCount, edgeCount int64, err error)

	// BuildTransaction runs fn inside one atomic transaction: fn's writer
	// truncates and inserts nodes/edges, and the whole transaction commits
	// only if fn returns nil. A database error anywhere aborts the whole
	// build and leaves the previous graph intact (spec.md §4.2 Stage 4,
	// §7 Store-I/O failure semantics).
	BuildTransaction(ctx context.Context, fn func(ctx context.Context, w GraphWriter) error) error
}
