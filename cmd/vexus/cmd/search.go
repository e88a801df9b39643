package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vexus/internal/output"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		vector     string
		file       string
		k          int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the nearest vectors",
		Long: `Return the k nearest entries to the query, closest first.

Score is 1 - distance: 1.0 for an exact match, decreasing with distance.
It is not a probability and can be negative.

The query is given inline with --vector or as a file of packed
little-endian float32 values with --file.`,
		Example: `  vexus search --vector 1,0,0 -k 5
  vexus search --vector 1,0,0 --json
  vexus search --file query.f32`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				query []float32
				raw   []byte
				err   error
			)
			if file != "" {
				raw, err = readPacked(file)
			} else {
				query, err = parseVector(vector)
			}
			if err != nil {
				return err
			}

			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.close()

			var hits []hit
			if raw != nil {
				hits, err = s.searchPacked(cmd.Context(), raw, k)
			} else {
				hits, err = s.search(cmd.Context(), query, k)
			}
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(hits)
			}

			if len(hits) == 0 {
				output.New(cmd.OutOrStdout()).Status("", "No results")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if s.tags != nil {
				_, _ = fmt.Fprintln(tw, "TAG\tLABEL\tSCORE\tDISTANCE")
				for _, h := range hits {
					_, _ = fmt.Fprintf(tw, "%s\t%d\t%.4f\t%.4f\n", h.Tag, h.Label, h.Score, h.Distance)
				}
			} else {
				_, _ = fmt.Fprintln(tw, "LABEL\tSCORE\tDISTANCE")
				for _, h := range hits {
					_, _ = fmt.Fprintf(tw, "%d\t%.4f\t%.4f\n", h.Label, h.Score, h.Distance)
				}
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&vector, "vector", "", "Query vector components, comma separated")
	cmd.Flags().StringVar(&file, "file", "", "Read the query from a packed float32 file")
	cmd.Flags().IntVarP(&k, "limit", "k", 10, "Number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsOneRequired("vector", "file")
	cmd.MarkFlagsMutuallyExclusive("vector", "file")
	return cmd
}
