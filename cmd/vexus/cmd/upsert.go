package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/output"
)

func newUpsertCmd(flags *globalFlags) *cobra.Command {
	var (
		tags    []string
		vectors []string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or replace vectors by tag",
		Long: `Insert or replace one vector per tag in a tag-keyed index.

Vectors come either from repeated --vector flags, one per tag in order, or
from --file holding len(tags) packed little-endian float32 vectors.`,
		Example: `  vexus upsert --tag go --vector 1,0,0 --tag rust --vector 0,1,0
  vexus upsert --tag a --tag b --file vectors.bin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tags) == 0 {
				return verrors.ValidationError("at least one --tag is required", nil)
			}

			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.requireTag("upsert"); err != nil {
				return err
			}

			ctx := cmd.Context()
			if file != "" {
				raw, err := readPacked(file)
				if err != nil {
					return err
				}
				err = s.tags.UpsertBytes(ctx, tags, raw)
				if err != nil {
					return annotateBatch(err)
				}
			} else {
				if len(vectors) != len(tags) {
					return verrors.ValidationError(
						fmt.Sprintf("got %d tags but %d vectors", len(tags), len(vectors)), nil)
				}
				flat, err := parseVectors(vectors)
				if err != nil {
					return err
				}
				if err := s.tags.Upsert(ctx, tags, flat); err != nil {
					return annotateBatch(err)
				}
			}

			if err := s.save(); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Upserted %d vector(s)", len(tags))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Tag to upsert (repeatable)")
	cmd.Flags().StringArrayVar(&vectors, "vector", nil, "Vector components, comma separated (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "File of packed little-endian float32 vectors")
	cmd.MarkFlagsMutuallyExclusive("vector", "file")
	return cmd
}

func newAddCmd(flags *globalFlags) *cobra.Command {
	var (
		label  uint64
		vector string
	)

	cmd := &cobra.Command{
		Use:     "add",
		Short:   "Insert or replace one vector by label",
		Example: `  vexus --keyed id add --label 42 --vector 0.1,0.2,0.3`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vec, err := parseVector(vector)
			if err != nil {
				return err
			}

			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.requireID("add"); err != nil {
				return err
			}

			if err := s.ids.Upsert(cmd.Context(), label, vec); err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Added label %d", label)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&label, "label", 0, "Numeric label")
	cmd.Flags().StringVar(&vector, "vector", "", "Vector components, comma separated")
	_ = cmd.MarkFlagRequired("label")
	_ = cmd.MarkFlagRequired("vector")
	return cmd
}

func newAddBatchCmd(flags *globalFlags) *cobra.Command {
	var (
		labelArgs []string
		file      string
	)

	cmd := &cobra.Command{
		Use:   "add-batch",
		Short: "Insert a batch of vectors by label from a packed file",
		Long: `Insert len(labels) vectors read from a file of packed little-endian
float32 values. The file must hold exactly labels*dimensions floats; a
mismatch is rejected before anything is inserted.`,
		Example: `  vexus --keyed id add-batch --labels 10,11,12 --file batch.bin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			labels, err := parseLabels(labelArgs)
			if err != nil {
				return err
			}
			raw, err := readPacked(file)
			if err != nil {
				return err
			}

			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.requireID("add-batch"); err != nil {
				return err
			}

			if err := s.ids.AddBatchBytes(cmd.Context(), labels, raw); err != nil {
				return annotateBatch(err)
			}
			if err := s.save(); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Added %d vector(s)", len(labels))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&labelArgs, "labels", nil, "Comma-separated labels, in file order")
	cmd.Flags().StringVar(&file, "file", "", "File of packed little-endian float32 vectors")
	_ = cmd.MarkFlagRequired("labels")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
