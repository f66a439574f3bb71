package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumav/sumav/internal/api"
	"github.com/sumav/sumav/internal/graph"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only query API over the built graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			searcher, err := graph.NewSearcher(ctx, st, st, cfg.IntersectionRatio)
			if err != nil {
				return fmt.Errorf("loading graph: %w", err)
			}

			hub := api.NewHub()
			go hub.Run()

			router := api.SetupRouter(searcher, hub)
			fmt.Println(infoStyle.Render("listening on " + addr))
			return router.Run(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "address to listen on")
	return cmd
}
