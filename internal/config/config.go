// Package config provides configuration management for langnet-web using
// Viper for loading from environment variables, an optional YAML file and
// command-line flags.
//
// Every setting has a hard-coded default and Load never fails: a missing
// value takes the default silently, an unparsable one takes the default and
// is recorded in Settings.Defaulted. Path helpers only join strings; callers
// check for existence when they actually open a file.
package config

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
)

// Viper keys.
const (
	KeyHost         = "host"
	KeyPort         = "port"
	KeyFrontendDist = "frontend_dist"
	KeyTemplatesDir = "templates_dir"
	KeyDBPath       = "db_path"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyLiveReload   = "live_reload"
	KeyMinifyHTML   = "minify_html"
)

// Defaults applied when the environment leaves a setting unset.
const (
	DefaultHost         = "0.0.0.0"
	DefaultPort         = 43210
	DefaultFrontendDist = "../frontend/dist"
	DefaultTemplatesDir = "templates"
	DefaultDBFile       = "langnet-web.db"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

// envBindings maps viper keys to the environment variables that feed them.
var envBindings = map[string]string{
	KeyHost:         "HOST",
	KeyPort:         "PORT",
	KeyFrontendDist: "FRONTEND_DIST",
	KeyTemplatesDir: "TEMPLATES_DIR",
	KeyDBPath:       "DB_PATH",
	KeyLogLevel:     "LOG_LEVEL",
	KeyLogFormat:    "LOG_FORMAT",
	KeyLiveReload:   "LIVE_RELOAD",
	KeyMinifyHTML:   "MINIFY_HTML",
}

// Settings is the process-wide runtime configuration. It is built once at
// startup and treated as read-only afterwards.
type Settings struct {
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	FrontendDist string `yaml:"frontend_dist" json:"frontend_dist"`
	TemplatesDir string `yaml:"templates_dir" json:"templates_dir"`
	DBPath       string `yaml:"db_path" json:"db_path"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	LogFormat    string `yaml:"log_format" json:"log_format"`
	LiveReload   bool   `yaml:"live_reload" json:"live_reload"`
	MinifyHTML   bool   `yaml:"minify_html" json:"minify_html"`

	// Defaulted lists the settings whose configured value could not be
	// parsed and was replaced by the default.
	Defaulted []*apperrors.AppError `yaml:"-" json:"-"`
}

// DefaultDBPath is the database file used when DB_PATH is unset.
func DefaultDBPath() string {
	return filepath.Join(os.TempDir(), DefaultDBFile)
}

// Bind registers environment bindings and defaults on v.
func Bind(v *viper.Viper) {
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault(KeyHost, DefaultHost)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyFrontendDist, DefaultFrontendDist)
	v.SetDefault(KeyTemplatesDir, DefaultTemplatesDir)
	v.SetDefault(KeyDBPath, DefaultDBPath())
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyLogFormat, DefaultLogFormat)
	v.SetDefault(KeyLiveReload, false)
	v.SetDefault(KeyMinifyHTML, false)
}

// Load builds Settings from the global viper instance.
func Load() *Settings {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds Settings from v. It never fails.
func LoadFrom(v *viper.Viper) *Settings {
	Bind(v)

	s := &Settings{
		Host:         stringOr(v.GetString(KeyHost), DefaultHost),
		FrontendDist: stringOr(v.GetString(KeyFrontendDist), DefaultFrontendDist),
		TemplatesDir: stringOr(v.GetString(KeyTemplatesDir), DefaultTemplatesDir),
		DBPath:       stringOr(v.GetString(KeyDBPath), DefaultDBPath()),
		LogLevel:     strings.ToLower(stringOr(v.GetString(KeyLogLevel), DefaultLogLevel)),
		LogFormat:    strings.ToLower(stringOr(v.GetString(KeyLogFormat), DefaultLogFormat)),
		LiveReload:   v.GetBool(KeyLiveReload),
		MinifyHTML:   v.GetBool(KeyMinifyHTML),
	}

	rawPort := v.GetString(KeyPort)
	port, ok := parsePort(rawPort)
	if !ok {
		s.Defaulted = append(s.Defaulted, apperrors.NewConfigDefault(KeyPort, rawPort))
		port = DefaultPort
	}
	s.Port = port

	switch s.LogFormat {
	case "text", "json":
	default:
		s.Defaulted = append(s.Defaulted, apperrors.NewConfigDefault(KeyLogFormat, s.LogFormat))
		s.LogFormat = DefaultLogFormat
	}

	return s
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

func parsePort(raw string) (int, bool) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || port < 0 || port > 65535 {
		return 0, false
	}
	return port, true
}

func stringOr(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

// Addr is the host:port the server binds to.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// IndexFile is the built frontend entry page.
func (s *Settings) IndexFile() string {
	return filepath.Join(s.FrontendDist, "index.html")
}

// IconFile is the favicon shipped with the frontend build.
func (s *Settings) IconFile() string {
	return filepath.Join(s.FrontendDist, "vite.svg")
}

// AssetsDir is the directory mounted under /assets/.
func (s *Settings) AssetsDir() string {
	return filepath.Join(s.FrontendDist, "assets")
}

// TemplatePath resolves a template name to its file under TemplatesDir.
// Names without an extension get ".html".
func (s *Settings) TemplatePath(name string) string {
	if filepath.Ext(name) == "" {
		name += ".html"
	}
	return filepath.Join(s.TemplatesDir, name)
}
