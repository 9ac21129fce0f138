// Package cmd provides the command-line interface for langnet-web.
//
// Settings come from, highest priority first:
//
//  1. command-line flags (--port, --templates-dir, ...)
//  2. environment variables (PORT, TEMPLATES_DIR, ...), optionally seeded
//     from a .env file that never overrides variables already set
//  3. a YAML file passed with --config
//  4. built-in defaults
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/darkone23/langnet-web/internal/config"
)

var (
	cfgFile string
	envFile string
)

// rootCmd serves when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "langnet-web",
	Short: "Web backend for the langnet frontend",
	Long: `langnet-web serves the built frontend, a small JSON API and HTMX
fragments rendered from mustache templates.

Examples:
  langnet-web                          # serve with settings from the environment
  langnet-web serve --port 8080        # serve on another port
  langnet-web serve --live-reload      # reload browsers when files change
  langnet-web config show --format json
  langnet-web version`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnvironment,
	RunE:              runServe,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "YAML config file")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment before reading settings")
	pf.StringP("log-level", "l", config.DefaultLogLevel, "Log level (debug, info, warn, error)")
	pf.String("log-format", config.DefaultLogFormat, "Log format (text, json)")

	addServerFlags(rootCmd.Flags())
}

// loadEnvironment prepares the global viper instance for config.Load.
func loadEnvironment(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load env file %s: %w", envFile, err)
	}

	v := viper.GetViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	return bindFlags(v, cmd.Flags())
}
