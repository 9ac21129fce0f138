package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/darkone23/langnet-web/internal/config"
	"github.com/darkone23/langnet-web/internal/logging"
	"github.com/darkone23/langnet-web/internal/version"
	livereload "github.com/darkone23/langnet-web/internal/websocket"
)

var settingEnv = []string{
	"HOST", "PORT", "FRONTEND_DIST", "TEMPLATES_DIR", "DB_PATH",
	"LOG_LEVEL", "LOG_FORMAT", "LIVE_RELOAD", "MINIFY_HTML",
}

// clearSettingEnv blanks every variable config reads. Empty values count
// as unset.
func clearSettingEnv(t *testing.T) {
	t.Helper()
	for _, name := range settingEnv {
		t.Setenv(name, "")
	}
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	viper.Reset()
	resetFlags(rootCmd)
	t.Cleanup(viper.Reset)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func noEnvFile(t *testing.T) []string {
	return []string{"--env-file", filepath.Join(t.TempDir(), "missing.env")}
}

func TestVersionJSON(t *testing.T) {
	out, _, err := executeCommand(t, "version", "--format", "json")
	require.NoError(t, err)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, info.Platform)
	assert.NotEmpty(t, info.Version)
}

func TestVersionText(t *testing.T) {
	out, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Version: ")
	assert.Contains(t, out, "Go: "+runtime.Version())
}

func TestVersionUnknownFormat(t *testing.T) {
	_, _, err := executeCommand(t, "version", "--format", "xml")
	assert.ErrorContains(t, err, "unsupported format")
}

func showConfig(t *testing.T, args ...string) (*config.Settings, string) {
	t.Helper()
	out, stderr, err := executeCommand(t, append([]string{"config", "show"}, args...)...)
	require.NoError(t, err, stderr)

	var settings config.Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &settings))
	return &settings, stderr
}

func TestConfigShowDefaults(t *testing.T) {
	clearSettingEnv(t)

	got, stderr := showConfig(t, noEnvFile(t)...)

	assert.Equal(t, config.DefaultHost, got.Host)
	assert.Equal(t, config.DefaultPort, got.Port)
	assert.Equal(t, config.DefaultTemplatesDir, got.TemplatesDir)
	assert.Equal(t, config.DefaultDBPath(), got.DBPath)
	assert.False(t, got.LiveReload)
	assert.Empty(t, stderr)
}

func TestConfigShowPrecedence(t *testing.T) {
	clearSettingEnv(t)
	file := filepath.Join(t.TempDir(), "langnet.yml")
	require.NoError(t, os.WriteFile(file, []byte(
		"host: 10.0.0.1\nport: 9000\ntemplates_dir: from-file\nminify_html: true\n"), 0o644))
	t.Setenv("PORT", "9100")

	args := append(noEnvFile(t), "--config", file, "--templates-dir", "from-flag")
	got, _ := showConfig(t, args...)

	assert.Equal(t, "10.0.0.1", got.Host, "config file beats defaults")
	assert.Equal(t, 9100, got.Port, "environment beats config file")
	assert.Equal(t, "from-flag", got.TemplatesDir, "flag beats everything")
	assert.True(t, got.MinifyHTML)
}

func TestConfigShowDotEnv(t *testing.T) {
	clearSettingEnv(t)
	require.NoError(t, os.Unsetenv("PORT"))
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=9200\nLIVE_RELOAD=true\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("PORT") })

	got, _ := showConfig(t, "--env-file", envFile)

	assert.Equal(t, 9200, got.Port)
	assert.False(t, got.LiveReload, "set-but-empty variables are not overridden")
}

func TestConfigShowInvalidPortFallsBack(t *testing.T) {
	clearSettingEnv(t)
	t.Setenv("PORT", "not-a-port")

	got, stderr := showConfig(t, noEnvFile(t)...)

	assert.Equal(t, config.DefaultPort, got.Port)
	assert.Contains(t, stderr, "not-a-port")
}

func TestConfigShowJSON(t *testing.T) {
	clearSettingEnv(t)

	out, _, err := executeCommand(t, append(noEnvFile(t), "config", "show", "--format", "json", "--port", "0")...)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(0), got["port"])
	assert.NotContains(t, got, "Defaulted")
}

func TestConfigShowMissingConfigFile(t *testing.T) {
	clearSettingEnv(t)

	_, _, err := executeCommand(t, append(noEnvFile(t), "config", "show", "--config", filepath.Join(t.TempDir(), "nope.yml"))...)

	assert.ErrorContains(t, err, "read config file")
}

func TestServeLifecycle(t *testing.T) {
	dist := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dist, "index.html"), []byte("<p>home</p>"), 0o644))
	settings := &config.Settings{
		Host:         "127.0.0.1",
		Port:         0,
		FrontendDist: dist,
		TemplatesDir: filepath.Join("..", "templates"),
		DBPath:       filepath.Join(t.TempDir(), "demo.db"),
		LiveReload:   true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, settings, logging.Discard(), func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<p>home</p>", string(body))

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	cancel()

	readCtx, readCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer readCancel()
	_, _, err = conn.Read(readCtx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestServePortInUse(t *testing.T) {
	blocker, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer blocker.Close()

	settings := &config.Settings{
		Host:         "127.0.0.1",
		Port:         blocker.Addr().(*net.TCPAddr).Port,
		TemplatesDir: t.TempDir(),
		DBPath:       filepath.Join(t.TempDir(), "demo.db"),
	}

	err = serve(context.Background(), settings, logging.Discard(), nil)
	assert.Error(t, err)
}

func TestReloadWatcherCoversDistAndTemplates(t *testing.T) {
	dist := t.TempDir()
	templates := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(templates, "partials"), 0o755))
	settings := &config.Settings{FrontendDist: dist, TemplatesDir: templates}

	fw, err := newReloadWatcher(context.Background(), settings, logging.Discard(), livereload.NewManager(nil))
	require.NoError(t, err)
	defer fw.Close()

	list := fw.WatchList()
	assert.Contains(t, list, dist)
	assert.Contains(t, list, templates)
	assert.Contains(t, list, filepath.Join(templates, "partials"))
}

func TestReloadWatcherNeedsADirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	settings := &config.Settings{FrontendDist: missing, TemplatesDir: missing}

	_, err := newReloadWatcher(context.Background(), settings, logging.Discard(), livereload.NewManager(nil))

	assert.ErrorIs(t, err, errNothingToWatch)
}
