// Package cli implements sumav's command-line surface: build, run
// select|compare|similar, migrate, and serve. It is deliberately thin,
// translating flags into calls against internal/graph, internal/store, and
// internal/dumpmanager (spec.md §6's "external collaborator" framing),
// styled with lipgloss following the teacher pack's CLI blueprint.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sumav/sumav/internal/config"
	"github.com/sumav/sumav/internal/store/postgres"
)

// Execute builds and runs the root cobra command.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:   "sumav",
		Short: "Token-graph engine for AV-verdict family classification",
		Long: `sumav mines a corpus of scanned-file AV verdicts into a weighted token
co-occurrence graph, then uses that graph to assign a single representative
family label to new bags of AV verdicts.

Get started:
  sumav build none          Build the graph from whatever is already ingested
  sumav run select '[...]'  Get a representative token for a set of verdicts
  sumav serve               Start the read-only query API`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newBuildCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newServeCmd())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		return err
	}
	return nil
}

// openStore loads configuration and connects to the configured graph store,
// ensuring the schema exists.
func openStore(ctx context.Context) (*postgres.Store, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, fmt.Errorf("loading config: %w", err)
	}

	st, err := postgres.Connect(ctx, cfg.Postgres, slog.Default())
	if err != nil {
		return nil, config.Config{}, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		st.Close()
		return nil, config.Config{}, err
	}
	return st, cfg, nil
}
