package cmd

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vexus/internal/output"
	"github.com/Aman-CERP/vexus/internal/store"
)

// statsOutput is the JSON output format for stats.
type statsOutput struct {
	store.Stats
	Keyed   string `json:"keyed"`
	Index   string `json:"index_path"`
	Mapping string `json:"mapping_path,omitempty"`
	Tags    int    `json:"tags,omitempty"`
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index size and shape",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.close()

			st, err := s.stats()
			if err != nil {
				return err
			}
			result := statsOutput{Stats: st, Keyed: s.cfg.Index.Keyed, Index: s.paths.Index}
			if s.tags != nil {
				result.Mapping = s.paths.Mapping
				result.Tags = len(s.tags.Tags())
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			out := output.New(cmd.OutOrStdout())
			out.Statusf("📊", "Index %s", filepath.Dir(result.Index))
			const width = 10
			out.Field("keyed", width, result.Keyed)
			out.Field("count", width, st.Count)
			out.Field("dimensions", width, st.Dimensions)
			out.Field("capacity", width, st.Capacity)
			out.Field("memory", width, output.FormatBytes(st.MemoryUsage))
			if s.tags != nil {
				out.Field("tags", width, result.Tags)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newSaveCmd(flags *globalFlags) *cobra.Command {
	var to string

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Rewrite the index artifacts, optionally to another directory",
		Long: `Load the index and write it back using temp-file-then-rename for each
artifact. With --to the artifacts are written to another directory, which
makes a consistent copy while other vexus processes may be saving.
--capacity reserves room in the rewritten index.`,
		Example: `  vexus save --to /backups/vexus-2026-10-18`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(flags, false)
			if err != nil {
				return err
			}
			defer s.close()

			paths := s.paths
			if to != "" {
				paths = store.Paths{
					Index:   filepath.Join(to, filepath.Base(s.paths.Index)),
					Mapping: filepath.Join(to, filepath.Base(s.paths.Mapping)),
				}
			}
			if err := s.saveTo(paths); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Saved %s", paths.Index)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Directory to write the artifacts to (default: data directory)")
	return cmd
}
