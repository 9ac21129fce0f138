package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/darkone23/langnet-web/internal/config"
	apphttp "github.com/darkone23/langnet-web/internal/http"
	"github.com/darkone23/langnet-web/internal/logging"
	"github.com/darkone23/langnet-web/internal/middleware"
	"github.com/darkone23/langnet-web/internal/renderer"
	"github.com/darkone23/langnet-web/internal/server"
	"github.com/darkone23/langnet-web/internal/version"
	"github.com/darkone23/langnet-web/internal/watcher"
	"github.com/darkone23/langnet-web/internal/websocket"
)

var errNothingToWatch = errors.New("no directory to watch")

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the HTTP server",
	Long: `Start the HTTP server on HOST:PORT and run until interrupted.

With --live-reload the frontend and template directories are watched and
connected browsers on /ws are told to reload when files change.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addServerFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings := config.Load()
	logger := newLogger(settings, cmd.ErrOrStderr())
	return serve(ctx, settings, logger, nil)
}

func newLogger(settings *config.Settings, out io.Writer) *logging.AppLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(settings.LogLevel),
		Format: settings.LogFormat,
		Output: out,
	})
}

// serve wires the server from settings and blocks until ctx is cancelled
// or the listener fails. ready, when set, receives the bound address once
// the socket is open.
func serve(ctx context.Context, settings *config.Settings, logger logging.Logger, ready func(addr string)) error {
	for _, d := range settings.Defaulted {
		logger.Debug(ctx, "setting defaulted", "error", d.Error())
	}

	templates := renderer.NewTemplateCache(renderer.WithLogger(logger))

	var (
		opts   []server.Option
		reload *websocket.Manager
	)
	if settings.LiveReload {
		reload = websocket.NewManager(logger)
		opts = append(opts, server.WithLiveReload(reload))
	}
	if settings.MinifyHTML {
		opts = append(opts, server.WithMinifiedHTML())
	}

	srv, err := server.New(settings, templates, logger, opts...)
	if err != nil {
		return err
	}
	router := apphttp.NewRouter(settings, srv, middleware.NewMiddlewareChain(logger))
	if err := router.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if reload != nil {
		defer func() { _ = reload.Shutdown(context.Background()) }()
		router.RegisterOnShutdown(func() { _ = reload.Shutdown(context.Background()) })

		fw, err := newReloadWatcher(gctx, settings, logger, reload)
		if err != nil {
			logger.Warn(ctx, err, "live reload watcher disabled")
		} else {
			g.Go(func() error { return fw.Run(gctx) })
		}
	}

	logger.Info(ctx, "server listening",
		"addr", router.Addr(),
		"version", version.Get().Short(),
		"live_reload", settings.LiveReload,
		"minify_html", settings.MinifyHTML,
	)
	if ready != nil {
		ready(router.Addr())
	}

	g.Go(func() error { return router.Start(gctx) })
	err = g.Wait()
	logger.Info(context.Background(), "server stopped")
	return err
}

// newReloadWatcher watches the frontend build and the template directory
// and broadcasts a reload for every debounced batch.
func newReloadWatcher(ctx context.Context, settings *config.Settings, logger logging.Logger, reload *websocket.Manager) (*watcher.FileWatcher, error) {
	fw, err := watcher.NewFileWatcher(watcher.DefaultDelay, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoHiddenFilter)

	watched := 0
	for _, dir := range []string{settings.FrontendDist, settings.TemplatesDir} {
		if err := fw.AddRecursive(dir); err != nil {
			logger.Warn(ctx, err, "not watching directory", "path", dir)
			continue
		}
		watched++
	}
	if watched == 0 {
		_ = fw.Close()
		return nil, errNothingToWatch
	}

	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		return reload.Reload(events[0].Path)
	})
	return fw, nil
}
