// Package postgres implements the Detection Store and Graph Store against
// PostgreSQL, adapted from the teacher's internal/db connection-pool and
// transactional-save patterns and generalized from a Bitcoin heuristics
// store to sumav's token-graph tables.
package postgres

import (
	"context"
	_ "embed"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumav/sumav/internal/config"
	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store is a pgx/v5-backed implementation of store.DetectionStore and
// store.GraphStore.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Connect opens a pgxpool connection using the given Postgres config.
func Connect(ctx context.Context, cfg config.Postgres, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?application_name=sumav",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	logger.Info("connected to sumav graph store", "host", cfg.Host, "database", cfg.Database)
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the token_node/token_edge/detection/ingestion_log
// tables if they do not already exist. Adapts
// original_source/sumav/dbconnector.py's __create_tables_if_not_exists,
// which only ran the script against an empty public schema; pgx's
// CREATE TABLE IF NOT EXISTS makes the check redundant so this simply runs
// schema.sql every time (spec.md §9 supplemented feature).
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// Pool exposes the underlying connection pool. dumpmanager does not use it;
// it opens its own pools from config.Postgres connection parameters.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// --- store.DetectionStore ---

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM detection`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting detections: %w", err)
	}
	return n, nil
}

func (s *Store) Iterate(ctx context.Context, maxID int64) (store.DetectionIterator, error) {
	var rows pgx.Rows
	var err error
	if maxID > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT id, encode(md5,'hex'), encode(sha256,'hex'), submission_date,
			       tokens, unique_tokens, ground_truth, sumav_label
			FROM detection WHERE id <= $1 ORDER BY id ASC`, maxID)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, encode(md5,'hex'), encode(sha256,'hex'), submission_date,
			       tokens, unique_tokens, ground_truth, sumav_label
			FROM detection ORDER BY id ASC`)
	}
	if err != nil {
		return nil, fmt.Errorf("streaming detections: %w", err)
	}
	return &detectionIterator{rows: rows}, nil
}

type detectionIterator struct {
	rows pgx.Rows
	cur  *graph.Detection
	err  error
}

func (it *detectionIterator) Next(ctx context.Context) bool {
	if !it.rows.Next() {
		return false
	}

	var d graph.Detection
	var predictedLabel *string
	var groundTruth *string
	err := it.rows.Scan(&d.ID, &d.MD5, &d.SHA256, &d.SubmissionDate,
		&d.Tokens, &d.UniqueTokens, &groundTruth, &predictedLabel)
	if err != nil {
		it.err = fmt.Errorf("scanning detection row: %w", err)
		return false
	}
	if groundTruth != nil {
		d.GroundTruth = *groundTruth
	}
	if predictedLabel != nil {
		d.PredictedLabel = *predictedLabel
	}
	it.cur = &d
	return true
}

func (it *detectionIterator) Detection() *graph.Detection { return it.cur }

func (it *detectionIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *detectionIterator) Close() error {
	it.rows.Close()
	return nil
}

func (s *Store) TokensByHash(ctx context.Context, hash string) ([]string, error) {
	var column string
	switch len(hash) {
	case 32:
		column = "md5"
	case 64:
		column = "sha256"
	default:
		return nil, fmt.Errorf("unrecognized hash length %d for %q", len(hash), hash)
	}

	var tokens []string
	query := fmt.Sprintf(`SELECT tokens FROM detection WHERE %s = decode($1, 'hex')`, column)
	err := s.pool.QueryRow(ctx, query, hash).Scan(&tokens)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving hash %q: %w", hash, err)
	}
	return tokens, nil
}

func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE detection`)
	if err != nil {
		return fmt.Errorf("truncating detection: %w", err)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, rows []*graph.Detection, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.insertBatch(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBatch(ctx context.Context, rows []*graph.Detection) error {
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"detection"},
		[]string{"md5", "sha256", "submission_date", "detections", "tokens", "unique_tokens", "ground_truth"},
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			d := rows[i]
			return []any{
				mustHexDecode(d.MD5),
				mustHexDecode(d.SHA256),
				d.SubmissionDate,
				d.Detections,
				d.Tokens,
				d.UniqueTokens,
				nullIfEmpty(d.GroundTruth),
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("bulk inserting detections: %w", err)
	}
	return nil
}

func (s *Store) UpdatePredictedLabels(ctx context.Context, updates []store.LabelUpdate, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 1000
	}

	for start := 0; start < len(updates); start += batchSize {
		end := start + batchSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := s.updateLabelBatch(ctx, updates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) updateLabelBatch(ctx context.Context, updates []store.LabelUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning label update transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, u := range updates {
		_, err := tx.Exec(ctx,
			`UPDATE detection SET sumav_label = $1 WHERE md5 = decode($2, 'hex')`,
			u.Label, u.MD5)
		if err != nil {
			return fmt.Errorf("updating predicted label for %s: %w", u.MD5, err)
		}
	}

	return tx.Commit(ctx)
}

// --- store.GraphStore ---

func (s *Store) LoadNodes(ctx context.Context) ([]*graph.Node, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token, alias, parents, token_count, row_count, token_ratio, num_subsets
		FROM token_node`)
	if err != nil {
		return nil, fmt.Errorf("loading token nodes: %w", err)
	}
	defer rows.Close()

	var out []*graph.Node
	for rows.Next() {
		var n graph.Node
		var alias *string
		if err := rows.Scan(&n.ID, &n.Token, &alias, &n.Parents, &n.TokenCount, &n.RowCount, &n.TokenRatio, &n.NumSubsets); err != nil {
			return nil, fmt.Errorf("scanning token node: %w", err)
		}
		if alias != nil {
			n.Alias = *alias
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) Edge(ctx context.Context, tokenA, tokenB string) (*graph.Edge, error) {
	lo, hi := graph.Key(tokenA, tokenB)

	var e graph.Edge
	err := s.pool.QueryRow(ctx, `
		SELECT id, token, token2, "p(b|a)", "p(a|b)", intersection_row_count
		FROM token_edge WHERE token = $1 AND token2 = $2`, lo, hi,
	).Scan(&e.ID, &e.TokenA, &e.TokenB, &e.PBGivenA, &e.PAGivenB, &e.IntersectionRowCount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up edge (%s, %s): %w", lo, hi, err)
	}
	return &e, nil
}

func (s *Store) EdgesForToken(ctx context.Context, token string) ([]*graph.Edge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, token, token2, "p(b|a)", "p(a|b)", intersection_row_count
		FROM token_edge WHERE token = $1 OR token2 = $1`, token)
	if err != nil {
		return nil, fmt.Errorf("loading edges for %q: %w", token, err)
	}
	defer rows.Close()

	var out []*graph.Edge
	for rows.Next() {
		var e graph.Edge
		if err := rows.Scan(&e.ID, &e.TokenA, &e.TokenB, &e.PBGivenA, &e.PAGivenB, &e.IntersectionRowCount); err != nil {
			return nil, fmt.Errorf("scanning token edge: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) Size(ctx context.Context) (nodeCount, edgeCount int64, err error) {
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM token_node`).Scan(&nodeCount)
	if err != nil {
		return 0, 0, fmt.Errorf("counting token nodes: %w", err)
	}
	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM token_edge`).Scan(&edgeCount)
	if err != nil {
		return 0, 0, fmt.Errorf("counting token edges: %w", err)
	}
	return nodeCount, edgeCount, nil
}

func (s *Store) BuildTransaction(ctx context.Context, fn func(ctx context.Context, w store.GraphWriter) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning build transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	w := &txGraphWriter{tx: tx}
	if err := fn(ctx, w); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing build transaction: %w", err)
	}
	return nil
}

// txGraphWriter is the store.GraphWriter handed to a Builder's persist
// stage: every write happens on one pgx.Tx so a failure at any point rolls
// back the whole build and leaves the previous graph intact (spec.md §4.2
// Stage 4, §7).
type txGraphWriter struct {
	tx pgx.Tx
}

func (w *txGraphWriter) Truncate(ctx context.Context) error {
	if _, err := w.tx.Exec(ctx, `TRUNCATE token_node, token_edge`); err != nil {
		return fmt.Errorf("truncating graph tables: %w", err)
	}
	return nil
}

func (w *txGraphWriter) InsertNodes(ctx context.Context, nodes []*graph.Node, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100_000
	}
	for start := 0; start < len(nodes); start += batchSize {
		end := start + batchSize
		if end > len(nodes) {
			end = len(nodes)
		}
		batch := nodes[start:end]
		_, err := w.tx.CopyFrom(ctx,
			pgx.Identifier{"token_node"},
			[]string{"id", "token", "alias", "parents", "token_count", "row_count", "token_ratio", "num_subsets"},
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				n := batch[i]
				return []any{n.ID, n.Token, nullIfEmpty(n.Alias), n.Parents, n.TokenCount, n.RowCount, n.TokenRatio, n.NumSubsets}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("bulk inserting token nodes: %w", err)
		}
	}
	return nil
}

func (w *txGraphWriter) InsertEdges(ctx context.Context, edges []*graph.Edge, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100_000
	}
	for start := 0; start < len(edges); start += batchSize {
		end := start + batchSize
		if end > len(edges) {
			end = len(edges)
		}
		batch := edges[start:end]
		_, err := w.tx.CopyFrom(ctx,
			pgx.Identifier{"token_edge"},
			[]string{"id", "token", "token2", "p(b|a)", "p(a|b)", "intersection_row_count"},
			pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
				e := batch[i]
				return []any{e.ID, e.TokenA, e.TokenB, e.PBGivenA, e.PAGivenB, e.IntersectionRowCount}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("bulk inserting token edges: %w", err)
		}
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func mustHexDecode(hexstr string) []byte {
	if hexstr == "" {
		return nil
	}
	b, err := hex.DecodeString(hexstr)
	if err != nil {
		return nil
	}
	return b
}
