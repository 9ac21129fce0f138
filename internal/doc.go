// Package internal contains the implementation packages for langnet-web.
//
// # Package Organization
//
//   - config: Settings from flags, environment, .env and an optional YAML file
//   - errors: the AppError kinds shared by every layer and their HTTP mapping
//   - http: route table, server lifecycle and graceful shutdown
//   - logging: leveled structured logging over log/slog
//   - middleware: request ids, access log, panic recovery, traversal guard
//   - renderer: the mustache template cache behind the HTMX fragments
//   - server: request handlers for static files, the JSON API and fragments
//   - store: the SQLite demo tables
//   - version: build metadata
//   - views: HTML pages rendered outside the template cache
//   - watcher: debounced file watching for live reload
//   - websocket: the /ws live-reload hub
//
// # Inter-Package Communication
//
//   - cmd builds Settings once and injects them, the template cache and the
//     logger into server.New
//   - http dispatches to server through the Handlers interface, wrapped in
//     the middleware chain
//   - watcher batches file changes and hands them to websocket, which tells
//     connected browsers to reload
//
// Nothing in these packages holds mutable global state; the template cache
// and the websocket hub are the only shared structures and both are safe for
// concurrent use.
package internal
