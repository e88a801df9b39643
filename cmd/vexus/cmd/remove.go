package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/output"
)

func newRemoveCmd(flags *globalFlags) *cobra.Command {
	var (
		tags      []string
		labelArgs []string
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove vectors by tag or label",
		Long:  `Remove vectors. Unknown tags and labels are ignored.`,
		Example: `  vexus remove --tag go --tag rust
  vexus --keyed id remove --label 42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tags) == 0 && len(labelArgs) == 0 {
				return verrors.ValidationError("pass --tag or --label", nil)
			}

			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			removed := 0
			if len(tags) > 0 {
				if err := s.requireTag("remove --tag"); err != nil {
					return err
				}
				for _, tag := range tags {
					found, err := s.tags.Contains(tag)
					if err != nil {
						return err
					}
					if found {
						removed++
					}
				}
				if err := s.tags.Remove(ctx, tags); err != nil {
					return err
				}
			} else {
				if err := s.requireID("remove --label"); err != nil {
					return err
				}
				labels, err := parseLabels(labelArgs)
				if err != nil {
					return err
				}
				for _, label := range labels {
					found, err := s.ids.Contains(label)
					if err != nil {
						return err
					}
					if found {
						removed++
					}
					if err := s.ids.Remove(ctx, label); err != nil {
						return err
					}
				}
			}

			if err := s.save(); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Removed %d vector(s)", removed)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to remove (repeatable)")
	cmd.Flags().StringSliceVar(&labelArgs, "label", nil, "Label to remove (repeatable or comma separated)")
	cmd.MarkFlagsMutuallyExclusive("tag", "label")
	return cmd
}

// getEntry is one row of get output.
type getEntry struct {
	Key    string    `json:"key"`
	Found  bool      `json:"found"`
	Vector []float32 `json:"vector"`
}

func newGetCmd(flags *globalFlags) *cobra.Command {
	var (
		tags       []string
		labelArgs  []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Print stored vectors",
		Long: `Print stored vectors in request order. Missing keys print an all-zero
vector marked as missing.`,
		Example: `  vexus get --tag go
  vexus --keyed id get --label 1,2,3 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tags) == 0 && len(labelArgs) == 0 {
				return verrors.ValidationError("pass --tag or --label", nil)
			}

			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.close()

			var entries []getEntry
			if len(tags) > 0 {
				if err := s.requireTag("get --tag"); err != nil {
					return err
				}
				vecs, err := s.tags.Get(tags)
				if err != nil {
					return err
				}
				for i, tag := range tags {
					found, err := s.tags.Contains(tag)
					if err != nil {
						return err
					}
					entries = append(entries, getEntry{Key: tag, Found: found, Vector: vecs[i]})
				}
			} else {
				if err := s.requireID("get --label"); err != nil {
					return err
				}
				labels, err := parseLabels(labelArgs)
				if err != nil {
					return err
				}
				vecs, err := s.ids.Get(labels)
				if err != nil {
					return err
				}
				for i, label := range labels {
					found, err := s.ids.Contains(label)
					if err != nil {
						return err
					}
					entries = append(entries, getEntry{Key: fmt.Sprint(label), Found: found, Vector: vecs[i]})
				}
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			out := output.New(cmd.OutOrStdout())
			for _, e := range entries {
				name := e.Key
				if !e.Found {
					name += " (missing)"
				}
				out.Vector(name, e.Vector)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to fetch (repeatable)")
	cmd.Flags().StringSliceVar(&labelArgs, "label", nil, "Label to fetch (repeatable or comma separated)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.MarkFlagsMutuallyExclusive("tag", "label")
	return cmd
}
