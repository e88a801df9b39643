package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/output"
	"github.com/Aman-CERP/vexus/internal/recovery"
	"github.com/Aman-CERP/vexus/internal/ui"
)

// recoverPollInterval is how often --async refreshes progress.
const recoverPollInterval = 500 * time.Millisecond

func newRecoverCmd(flags *globalFlags) *cobra.Command {
	var (
		dbPath     string
		category   string
		filter     string
		async      bool
		plain      bool
		noColor    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Rebuild an id-keyed index from vectors in a SQLite database",
		Long: `Read (id, vector) rows from a SQLite database and insert each vector
under its row id. Rows whose blob is not dimensions*4 bytes are skipped and
counted. The index is saved only when recovery succeeds.

Categories:
  tags     SELECT id, vector FROM tags
  chunks   SELECT id, vector FROM chunks, limited to --filter diary if set

Any other --category is rejected here before the database is opened. The
library source itself treats an unknown category as zero rows.

With --async, progress is drawn as a live view on a terminal and as plain
lines otherwise; --plain forces the plain lines and --no-color (or NO_COLOR)
drops colour from the live view.`,
		Example: `  vexus --keyed id --dimensions 768 recover --db knowledge.db --category chunks
  vexus --keyed id recover --db knowledge.db --category chunks --filter work --async
  vexus --keyed id recover --db knowledge.db --async --plain`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat := recovery.Category(category)
			if cat != recovery.CategoryTags && cat != recovery.CategoryChunks {
				return verrors.ValidationError(fmt.Sprintf("unknown category %q", category), nil).
					WithSuggestion("use --category tags or --category chunks")
			}

			s, err := openSession(flags, true)
			if err != nil {
				return err
			}
			defer s.close()
			if err := s.requireID("recover"); err != nil {
				return err
			}

			ctx := cmd.Context()
			src, err := recovery.OpenSQLite(ctx, dbPath, s.cfg.Recovery.Driver)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			runner := recovery.NewRecoverRunner(s.ids, src,
				recovery.Request{Category: cat, Filter: filter},
				recovery.WithLogger(slog.Default()),
				recovery.WithBuffer(s.cfg.Recovery.BatchHint))
			runner.Start(ctx)

			if async && !jsonOutput {
				renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
					ui.WithTitle(fmt.Sprintf("vexus recover • %s", filepath.Base(dbPath))),
					ui.WithForcePlain(plain),
					ui.WithNoColor(noColor)))
				waitWithProgress(ctx, renderer, runner)
			}

			res, err := runner.Wait()
			if err != nil {
				return err
			}
			if err := s.save(); err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runner.Snapshot())
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("Recovered %d of %d row(s) into %s", res.Inserted, res.Scanned, s.paths.Index)
			if res.Skipped > 0 {
				out.Warningf("Skipped %d row(s) with a mismatched vector size", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database to read vectors from")
	cmd.Flags().StringVar(&category, "category", string(recovery.CategoryChunks), "Vector table: tags or chunks")
	cmd.Flags().StringVar(&filter, "filter", "", "Diary name to restrict chunks to")
	cmd.Flags().BoolVar(&async, "async", false, "Run in the background and show progress while waiting")
	cmd.Flags().BoolVar(&plain, "plain", false, "With --async, print plain progress lines even on a terminal")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "With --async, disable colour in the progress view")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the final run snapshot as JSON")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

// waitWithProgress renders the runner's progress until it finishes.
func waitWithProgress(ctx context.Context, r ui.Renderer, runner *recovery.Runner) {
	_ = r.Start(ctx)
	defer func() { _ = r.Stop() }()

	ticker := time.NewTicker(recoverPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runner.Done():
			res, err := runner.Wait()
			snap := runner.Snapshot()
			r.Complete(ui.CompletionStats{
				Scanned:  res.Scanned,
				Inserted: res.Inserted,
				Skipped:  res.Skipped,
				Duration: time.Duration(snap.ElapsedSeconds * float64(time.Second)),
				Err:      err,
			})
			return
		case <-ticker.C:
			snap := runner.Snapshot()
			r.UpdateProgress(ui.ProgressEvent{
				State:    string(snap.State),
				Scanned:  snap.Scanned,
				Inserted: snap.Inserted,
				Skipped:  snap.Skipped,
				Elapsed:  time.Duration(snap.ElapsedSeconds * float64(time.Second)),
			})
		}
	}
}
