package cmd

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vexus/internal/config"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/output"
	"github.com/Aman-CERP/vexus/internal/store"
)

func newCreateCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty index",
		Long: `Create an empty index in the data directory and save it.

The dimension is fixed for the life of the index. Capacity is only the
initial reservation; the index grows by 1.5x as it fills.`,
		Example: `  vexus create --dimensions 768
  vexus create --dimensions 3 --keyed id --capacity 10000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			s := &session{dir: flags.dir, cfg: cfg, paths: cfg.Paths()}
			if s.paths.Exists() && !force {
				exists := verrors.ValidationError("an index already exists", nil).
					WithDetail("path", s.paths.Index).
					WithSuggestion("pass --force to replace it")
				if dims, err := store.ReadDimensions(s.paths.Index); err == nil && dims > 0 {
					exists = exists.WithDetail("dimensions", strconv.Itoa(dims))
				}
				return exists
			}

			if err := s.create(); err != nil {
				return err
			}
			defer s.close()

			if err := s.save(); err != nil {
				return err
			}
			if force {
				if err := pinConfig(flags.dir, cfg, true); err != nil {
					return err
				}
			}

			st, err := s.stats()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			out.Successf("Created %s-keyed index (dimensions %d, capacity %d)",
				cfg.Index.Keyed, st.Dimensions, st.Capacity)
			out.Status("", s.paths.Index)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Replace an existing index")
	return cmd
}

// pinConfig writes .vexus.yaml into dir, recording the variant and
// dimension so later commands open the index the same way. An existing
// file is only replaced when overwrite is set.
func pinConfig(dir string, cfg *config.Config, overwrite bool) error {
	path := filepath.Join(dir, ".vexus.yaml")
	if _, err := os.Stat(path); err == nil && !overwrite {
		return nil
	}
	pinned := *cfg
	pinned.Storage.DataDir = ""
	if err := pinned.WriteYAML(path); err != nil {
		return verrors.IOError("failed to write config", err).WithDetail("path", path)
	}
	return nil
}
