package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumav/sumav/internal/graph"
	"github.com/sumav/sumav/internal/tokenizer"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Query the built graph: select, compare, similar",
	}
	cmd.AddCommand(newRunSelectCmd())
	cmd.AddCommand(newRunCompareCmd())
	cmd.AddCommand(newRunSimilarCmd())
	return cmd
}

// searchOptionsFlags holds the GetRepresentativeToken flag set registered by
// the select subcommand.
type searchOptionsFlags struct {
	topN                    int
	weightParam             float64
	generalParam            float64
	alias                   bool
	returnNoneLessThan      int
	allowOutOfGraphFallback bool
}

func (f *searchOptionsFlags) register(cmd *cobra.Command) {
	defaults := graph.DefaultSearchOptions()
	cmd.Flags().IntVar(&f.topN, "top-n", 0, "return up to N scored candidates instead of the single best (0 disables)")
	cmd.Flags().Float64Var(&f.weightParam, "weight-param", defaults.WeightParam, "base of the weight term's logarithm")
	cmd.Flags().Float64Var(&f.generalParam, "general-param", defaults.GeneralParam, "scale of the generality penalty term")
	cmd.Flags().BoolVar(&f.alias, "alias", false, "remap input tokens through their alias before scoring")
	cmd.Flags().IntVar(&f.returnNoneLessThan, "return-none-less-than", 0, "return nothing if the top candidate's input multiplicity is at or below this")
	cmd.Flags().BoolVar(&f.allowOutOfGraphFallback, "allow-out-of-graph-fallback", false, "let a token absent from the graph still win on its weight score alone")
}

func (f *searchOptionsFlags) toOptions() graph.SearchOptions {
	opts := graph.SearchOptions{
		WeightParam:             f.weightParam,
		GeneralParam:            f.generalParam,
		Alias:                   f.alias,
		ReturnNoneLessThan:      f.returnNoneLessThan,
		AllowOutOfGraphFallback: f.allowOutOfGraphFallback,
	}
	if f.topN > 0 {
		n := f.topN
		opts.TopN = &n
	}
	return opts
}

func newRunSelectCmd() *cobra.Command {
	var hash string
	var flags searchOptionsFlags

	cmd := &cobra.Command{
		Use:   "select ['[\"verdict a\", \"verdict b\", ...]']",
		Short: "Pick the representative token for a bag of AV verdicts or a known hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			searcher, err := graph.NewSearcher(ctx, st, st, cfg.IntersectionRatio)
			if err != nil {
				return err
			}

			var tokens []string
			if hash == "" {
				if len(args) != 1 {
					return fmt.Errorf("supply either a JSON array of verdicts or --hash")
				}
				var verdicts []string
				if err := json.Unmarshal([]byte(args[0]), &verdicts); err != nil {
					return fmt.Errorf("parsing verdict array: %w", err)
				}
				tokens = tokenizer.Tokens(verdicts)
			}

			opts := flags.toOptions()
			best, scored, err := searcher.GetRepresentativeToken(ctx, tokens, hash, opts)
			if err != nil {
				return err
			}
			printRepresentative(best, scored)
			return nil
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "resolve tokens from a previously ingested md5 or sha256 instead of passing verdicts")
	flags.register(cmd)
	return cmd
}

func printRepresentative(best string, scored []graph.ScoredToken) {
	if scored != nil {
		for _, s := range scored {
			fmt.Printf("%s  %s\n", scoreStyle.Render(fmt.Sprintf("%8.4f", s.Score)), s.Token)
		}
		return
	}
	if best == "" {
		fmt.Println(dimStyle.Render("(no representative token)"))
		return
	}
	fmt.Println(successStyle.Render(best))
}

func newRunCompareCmd() *cobra.Command {
	var withRowCount bool

	cmd := &cobra.Command{
		Use:   "compare <token-a> <token-b>",
		Short: "Classify the relation between two tokens (=, ⊂, ⊃, !, $)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			searcher, err := graph.NewSearcher(ctx, st, st, cfg.IntersectionRatio)
			if err != nil {
				return err
			}

			cmp, err := searcher.CompareTokens(ctx, args[0], args[1], withRowCount)
			if err != nil {
				return err
			}
			if cmp == nil {
				fmt.Println(dimStyle.Render("(no edge between these tokens)"))
				return nil
			}

			fmt.Printf("%s %s %s\n", infoStyle.Render(args[0]), successStyle.Render(string(cmp.Relation)), infoStyle.Render(args[1]))
			fmt.Printf("%s %.4f\n", labelStyle.Render("p(a|b)"), cmp.PTokenGivenOther)
			fmt.Printf("%s %.4f\n", labelStyle.Render("p(b|a)"), cmp.POtherGivenToken)
			if withRowCount {
				fmt.Printf("%s %d\n", labelStyle.Render("rows(a)"), cmp.RowCountToken)
				fmt.Printf("%s %d\n", labelStyle.Render("rows(b)"), cmp.RowCountOther)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withRowCount, "with-row-count", false, "also report each token's row count")
	return cmd
}

func newRunSimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <token>",
		Short: "List a token's supersets, subsets, and equalsets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, cfg, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()

			searcher, err := graph.NewSearcher(ctx, st, st, cfg.IntersectionRatio)
			if err != nil {
				return err
			}

			related, err := searcher.GetRelatedTokens(ctx, args[0])
			if err != nil {
				return err
			}

			printTokenList("supersets", related.Supersets)
			printTokenList("subsets", related.Subsets)
			printTokenList("equalsets", related.Equalsets)
			return nil
		},
	}
	return cmd
}

func printTokenList(label string, tokens []string) {
	fmt.Println(labelStyle.Render(label))
	if len(tokens) == 0 {
		fmt.Println(dimStyle.Render("  (none)"))
		return
	}
	for _, t := range tokens {
		fmt.Printf("  %s\n", t)
	}
}
