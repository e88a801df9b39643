package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vexus/internal/config"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/preflight"
)

// doctorOutput is the JSON output format for doctor.
type doctorOutput struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(flags *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory and its artifacts",
		Long: `Check that the data directory is writable, has room for a save, and
that the saved index and mapping are readable and agree with each other.
Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var results []preflight.CheckResult

			cfg, err := loadConfig(flags)
			if err != nil {
				results = append(results, preflight.CheckResult{
					Name:     "config",
					Status:   preflight.StatusFail,
					Message:  err.Error(),
					Required: true,
				})
				cfg = config.NewConfig()
				cfg.Storage.DataDir = flags.dir
			} else {
				results = append(results, preflight.CheckResult{
					Name:     "config",
					Status:   preflight.StatusPass,
					Message:  cfg.Index.Keyed + "-keyed, metric " + cfg.Index.Metric,
					Required: true,
				})
			}

			checker := preflight.New(preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results = append(results, checker.RunAll(cmd.Context(), preflight.Target{
				DataDir:    cfg.Storage.DataDir,
				Paths:      cfg.Paths(),
				TagKeyed:   cfg.Index.Keyed == config.KeyedTag,
				Dimensions: cfg.Index.Dimensions,
			})...)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(doctorOutput{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}

			if checker.HasCriticalFailures(results) {
				return verrors.ValidationError("data directory check failed", nil).
					WithDetail("dir", cfg.Storage.DataDir)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for each check")
	return cmd
}
