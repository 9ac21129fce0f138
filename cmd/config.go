package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/darkone23/langnet-web/internal/config"
)

var configFormat string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the settings the server would start with",
	Long: `Resolve flags, environment, .env file, config file and defaults the same
way serve does and print the result. Values that could not be parsed and
fell back to their default are reported on stderr.

Examples:
  langnet-web config show
  PORT=8080 langnet-web config show --format json
  langnet-web config show --config langnet.yml --port 9000`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "Output format (yaml, json)")
	addServerFlags(configShowCmd.Flags())
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings := config.Load()

	for _, d := range settings.Defaulted {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", d.Error())
	}

	out := cmd.OutOrStdout()
	switch configFormat {
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	default:
		return fmt.Errorf("unsupported format: %s (supported: yaml, json)", configFormat)
	}
}
