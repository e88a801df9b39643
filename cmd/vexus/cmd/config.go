package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/vexus/configs"
	"github.com/Aman-CERP/vexus/internal/config"
	verrors "github.com/Aman-CERP/vexus/internal/errors"
	"github.com/Aman-CERP/vexus/internal/output"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the user configuration file and inspect the effective configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/vexus/config.yaml)
  3. Data directory config (.vexus.yaml)
  4. Environment variables (VEXUS_*)`,
		Example: `  # Create user config from template
  vexus config init

  # Show effective configuration for a data directory
  vexus --dir ./data config show

  # Print user config file path
  vexus config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(flags))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Create the user configuration file from a template at
~/.config/vexus/config.yaml (or $XDG_CONFIG_HOME/vexus/config.yaml).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			path := config.GetUserConfigPath()

			if config.UserConfigExists() && !force {
				out.Warning("User configuration already exists")
				out.Statusf("📁", "Location: %s", path)
				out.Status("💡", "Use --force to replace it with the template")
				return nil
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return verrors.IOError("failed to create config directory", err).WithDetail("path", path)
			}
			if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return verrors.IOError("failed to write config file", err).WithDetail("path", path)
			}

			out.Success("Created user configuration")
			out.Statusf("📁", "Location: %s", path)
			out.Status("", "Run 'vexus config show' to verify")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func newConfigShowCmd(flags *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the configuration after merging all sources, with flag overrides
applied. --source defaults shows only the built-in defaults.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cfg *config.Config
			switch source {
			case "merged":
				var err error
				if cfg, err = loadConfig(flags); err != nil {
					return err
				}
			case "defaults":
				cfg = config.NewConfig()
			default:
				return verrors.ValidationError(fmt.Sprintf("unknown source %q", source), nil).
					WithSuggestion("use --source merged or --source defaults")
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
