package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/darkone23/langnet-web/internal/config"
)

// flagKeys maps command-line flags to the viper keys they override.
var flagKeys = map[string]string{
	"host":          config.KeyHost,
	"port":          config.KeyPort,
	"frontend-dist": config.KeyFrontendDist,
	"templates-dir": config.KeyTemplatesDir,
	"db-path":       config.KeyDBPath,
	"live-reload":   config.KeyLiveReload,
	"minify-html":   config.KeyMinifyHTML,
	"log-level":     config.KeyLogLevel,
	"log-format":    config.KeyLogFormat,
}

// addServerFlags registers the flags shared by every command that builds
// Settings.
func addServerFlags(fs *pflag.FlagSet) {
	fs.String("host", config.DefaultHost, "Host to bind to")
	fs.IntP("port", "p", config.DefaultPort, "Port to serve on (0 picks a free port)")
	fs.String("frontend-dist", config.DefaultFrontendDist, "Built frontend directory")
	fs.String("templates-dir", config.DefaultTemplatesDir, "Directory holding the HTMX fragment templates")
	fs.String("db-path", config.DefaultDBPath(), "SQLite file used by the database demo")
	fs.Bool("live-reload", false, "Serve /ws and notify browsers when frontend files change")
	fs.Bool("minify-html", false, "Minify rendered HTML fragments")
}

// bindFlags binds every known flag present in fs. Only flags set on the
// command line override the environment and the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}
