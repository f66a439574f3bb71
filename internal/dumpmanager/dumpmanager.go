// Package dumpmanager dumps, restores, lists, and removes graph database
// instances by shelling out to the postgres client tools (pg_dump, createdb,
// pg_restore, dropdb), adapted from
// original_source/sumav/graph/manager.py's SumavGraphManager.
package dumpmanager

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sumav/sumav/internal/config"
)

var dumpedNamePtn = regexp.MustCompile(`\d{6}-\d{6}$`)

// Manager orchestrates pg_dump/createdb/pg_restore/dropdb against a
// Postgres server, mirroring manager.py's subprocess-based dump workflow.
type Manager struct {
	base   config.Postgres
	logger *slog.Logger
}

// New constructs a Manager over the given base connection parameters (the
// "local" database manager.py always falls back to when no remote is set).
func New(base config.Postgres, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{base: base, logger: logger}
}

// GetNewDumpedGraphName computes the dump database name
// "<base>_<YYMMDD-YYMMDD>" for sourceDatabase, where the date range is the
// min/max submission_date across its detection rows. Returns "" if the
// source database has no detection rows.
func (m *Manager) GetNewDumpedGraphName(ctx context.Context, sourceDatabase string) (string, error) {
	if dumpedNamePtn.MatchString(sourceDatabase) {
		return sourceDatabase, nil
	}

	cfg := m.base
	cfg.Database = sourceDatabase
	pool, err := pgxpool.New(ctx, connString(cfg))
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", sourceDatabase, err)
	}
	defer pool.Close()

	var min, max *int64
	err = pool.QueryRow(ctx, `SELECT min(submission_date), max(submission_date) FROM detection`).Scan(&min, &max)
	if err != nil {
		return "", fmt.Errorf("reading submission_date range: %w", err)
	}
	if min == nil || max == nil {
		return "", nil
	}

	return fmt.Sprintf("%s_%s-%s", sourceDatabase, formatYYMMDD(*min), formatYYMMDD(*max)), nil
}

func formatYYMMDD(unixSeconds int64) string {
	return time.Unix(unixSeconds, 0).UTC().Format("060102")
}

// DumpGraph dumps sourceDatabase (the token_* tables only, unless
// withDetection is set) into a newly created database named by
// GetNewDumpedGraphName, via pg_dump --format=c piped through pg_restore.
// Returns the destination database name.
func (m *Manager) DumpGraph(ctx context.Context, sourceDatabase string, withDetection bool) (string, error) {
	dstName, err := m.GetNewDumpedGraphName(ctx, sourceDatabase)
	if err != nil {
		return "", err
	}
	if dstName == "" {
		m.logger.Info("no detection rows in source database, nothing to dump", "source", sourceDatabase)
		return "", nil
	}

	srcCfg := m.base
	srcCfg.Database = sourceDatabase

	dumpArgs := []string{
		"--format=c",
		"--verbose",
		fmt.Sprintf("--dbname=%s", connURI(srcCfg)),
	}
	if !withDetection {
		dumpArgs = append(dumpArgs, "--table=token_*")
	}

	var dumpOut bytes.Buffer
	if err := m.run(ctx, &dumpOut, "pg_dump", dumpArgs...); err != nil {
		return "", fmt.Errorf("pg_dump: %w", err)
	}

	if err := m.run(ctx, nil, "createdb", dstName,
		fmt.Sprintf("--maintenance-db=%s", connURI(m.base)),
		"--template=template0"); err != nil {
		return "", fmt.Errorf("createdb %s: %w", dstName, err)
	}

	dstCfg := m.base
	dstCfg.Database = dstName
	restoreArgs := []string{
		"--no-owner",
		"--verbose",
		fmt.Sprintf("--dbname=%s", connURI(dstCfg)),
	}
	if err := m.runStdin(ctx, &dumpOut, "pg_restore", restoreArgs...); err != nil {
		return "", fmt.Errorf("pg_restore: %w", err)
	}

	m.logger.Info("dumped graph", "source", sourceDatabase, "destination", dstName)
	return dstName, nil
}

// PullDumpedGraph copies the named graph database from a remote server into
// a database of the same name on the local server, via pg_dump --format=c
// piped through pg_restore. Returns the local database name.
func (m *Manager) PullDumpedGraph(ctx context.Context, remote config.Postgres, graphName string) (string, error) {
	var dumpOut bytes.Buffer
	if err := m.run(ctx, &dumpOut, "pg_dump", "--format=c", "--verbose", fmt.Sprintf("--dbname=%s", connURI(withDatabase(remote, graphName)))); err != nil {
		return "", fmt.Errorf("pg_dump: %w", err)
	}
	if err := m.run(ctx, nil, "createdb", graphName, fmt.Sprintf("--maintenance-db=%s", connURI(m.base)), "--template=template0"); err != nil {
		return "", fmt.Errorf("createdb %s: %w", graphName, err)
	}
	if err := m.runStdin(ctx, &dumpOut, "pg_restore", "--no-owner", "--verbose", fmt.Sprintf("--dbname=%s", connURI(withDatabase(m.base, graphName)))); err != nil {
		return "", fmt.Errorf("pg_restore: %w", err)
	}
	m.logger.Info("pulled graph", "remote", remote.Host, "graph", graphName)
	return graphName, nil
}

// GetDumpedGraphNames lists every database on the server whose name starts
// with the configured base database name, sorted by trailing date
// descending, mirroring manager.py's get_sumav_graph_list.
func (m *Manager) GetDumpedGraphNames(ctx context.Context) ([]string, error) {
	pool, err := pgxpool.New(ctx, connString(withDatabase(m.base, "postgres")))
	if err != nil {
		return nil, fmt.Errorf("connecting to maintenance database: %w", err)
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT datname FROM pg_catalog.pg_database`)
	if err != nil {
		return nil, fmt.Errorf("listing databases: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning database name: %w", err)
		}
		if hasPrefix(name, m.base.Database) {
			names = append(names, name)
		}
	}

	sort.Slice(names, func(i, j int) bool {
		return suffix6(names[i]) > suffix6(names[j])
	})
	return names, rows.Err()
}

// RemoveGraph drops the named database (original_source/sumav's
// remove_sumav_graph, spec.md §9 supplemented feature).
func (m *Manager) RemoveGraph(ctx context.Context, graphName string) error {
	return m.run(ctx, nil, "dropdb",
		fmt.Sprintf("--maintenance-db=%s", connURI(withDatabase(m.base, "postgres"))),
		graphName)
}

func (m *Manager) run(ctx context.Context, stdout *bytes.Buffer, name string, args ...string) error {
	m.logger.Debug("shell", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	if stdout != nil {
		cmd.Stdout = stdout
	}
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderr.String())
	}
	return nil
}

func (m *Manager) runStdin(ctx context.Context, stdin *bytes.Buffer, name string, args ...string) error {
	m.logger.Debug("shell", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin.Bytes())
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w (stderr: %s)", name, err, stderr.String())
	}
	return nil
}

func connString(cfg config.Postgres) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
}

func connURI(cfg config.Postgres) string {
	return connString(cfg)
}

func withDatabase(cfg config.Postgres, database string) config.Postgres {
	cfg.Database = database
	return cfg
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func suffix6(s string) string {
	if len(s) < 6 {
		return s
	}
	return s[len(s)-6:]
}
