package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/ingest"
)

func newBuildCmd() *cobra.Command {
	var preprocessOnly bool

	cmd := &cobra.Command{
		Use:   "build <source: vt|none> [path]",
		Short: "Ingest a corpus then rebuild the token graph",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sourceName := args[0]
			var path string
			if len(args) > 1 {
				path = args[1]
			}

			st, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			src, err := resolveSource(sourceName)
			if err != nil {
				return err
			}

			ingested, err := runIngest(ctx, st, src, path)
			if err != nil {
				return fmt.Errorf("ingesting from %s: %w", sourceName, err)
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("ingested %d rows from %s", ingested, sourceName)))

			if preprocessOnly {
				return nil
			}

			builder := graph.NewBuilder(st, st, cfg.IntersectionRatio)
			start := time.Now()
			if err := builder.Build(ctx); err != nil {
				return fmt.Errorf("build failed: %w", err)
			}

			nodes, edges, err := builder.GraphSize(ctx)
			if err != nil {
				return err
			}
			fmt.Println(successStyle.Render(fmt.Sprintf(
				"build complete in %s: %d nodes, %d edges", time.Since(start).Round(time.Millisecond), nodes, edges)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&preprocessOnly, "preprocess-only", false, "ingest only, skip the graph rebuild")
	return cmd
}

func resolveSource(name string) (ingest.Source, error) {
	switch name {
	case "none":
		return ingest.None{}, nil
	case "vt":
		return ingest.VT{}, nil
	default:
		return nil, fmt.Errorf("unknown source %q: expected vt or none", name)
	}
}

// runIngest drains src into the detection store in insert batches of 1000,
// matching spec.md §4.3.4's default commit batch size for bulk writes.
func runIngest(ctx context.Context, st interface {
	Insert(ctx context.Context, rows []*graph.Detection, batchSize int) error
}, src ingest.Source, path string) (int, error) {
	const batchSize = 1000
	batch := make([]*graph.Detection, 0, batchSize)
	total := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := st.Insert(ctx, batch, batchSize); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	err := src.Fetch(ctx, path, func(d *graph.Detection) error {
		batch = append(batch, d)
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return total, err
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
