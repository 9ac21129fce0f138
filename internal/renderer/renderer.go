// Package renderer provides the template cache used by the HTMX endpoints.
//
// Templates are logic-less mustache files: {{field}} substitutes an escaped
// value, {{{field}}} an unescaped one, {{#section}}...{{/section}} iterates
// or conditionally includes, and {{> name}} pulls in a partial. Missing
// fields render as empty strings.
//
// A template is read and parsed the first time it is requested and kept for
// the life of the process. Partials are read at the same time and inlined
// into the template source before the single parse, so rendering never
// touches the disk. Nothing is ever evicted or reloaded, and each key is
// parsed at most once even when many requests miss at the same time.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbroglie/mustache"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
	"github.com/darkone23/langnet-web/internal/logging"
)

// partialExtensions are tried in order when resolving {{> name}} against
// the directory of the including template.
var partialExtensions = []string{"", ".html", ".mustache"}

// partialTag matches {{> name}}. The first alternative is a tag alone on
// its line and also captures the indentation and the line break; the second
// is a tag inside other text.
var partialTag = regexp.MustCompile(`(?m)^([ \t]*)\{\{>\s*([^\s{}]+)\s*\}\}[ \t]*(?:\r?\n|\z)|\{\{>\s*([^\s{}]+)\s*\}\}`)

var nonEmptyLine = regexp.MustCompile(`(?m)^(.+)$`)

// resolver returns the source of the partial called name.
type resolver func(name string) (string, error)

// CachedTemplate is a parsed, ready-to-render template.
type CachedTemplate struct {
	Path     string
	Template *mustache.Template
	LoadedAt time.Time
}

// TemplateCache maps template file paths to parsed templates.
type TemplateCache struct {
	mutex    sync.RWMutex
	entries  map[string]*CachedTemplate
	group    singleflight.Group
	parses   atomic.Int64
	readFile func(string) ([]byte, error)
	logger   logging.Logger
}

// Option configures a TemplateCache.
type Option func(*TemplateCache)

// WithLogger sets the logger used for cache misses.
func WithLogger(logger logging.Logger) Option {
	return func(c *TemplateCache) {
		if logger != nil {
			c.logger = logger.WithComponent("renderer")
		}
	}
}

// WithReadFile replaces os.ReadFile.
func WithReadFile(fn func(string) ([]byte, error)) Option {
	return func(c *TemplateCache) {
		if fn != nil {
			c.readFile = fn
		}
	}
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache(opts ...Option) *TemplateCache {
	c := &TemplateCache{
		entries:  make(map[string]*CachedTemplate),
		readFile: os.ReadFile,
		logger:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrLoad returns the parsed template for path, reading and parsing it on
// the first call. Partials referenced by the template resolve against the
// template's own directory.
func (c *TemplateCache) GetOrLoad(path string) (*mustache.Template, error) {
	dir := filepath.Dir(path)
	entry, err := c.load(path, path, func(name string) (string, error) {
		for _, ext := range partialExtensions {
			src, err := c.read(filepath.Join(dir, name+ext))
			if err == nil {
				return string(src), nil
			}
			if !apperrors.IsNotFound(err) {
				return "", err
			}
		}
		return "", apperrors.NewNotFoundError(filepath.Join(dir, name), fs.ErrNotExist)
	})
	if err != nil {
		return nil, err
	}
	return entry.Template, nil
}

// Render resolves path through GetOrLoad and renders it against data.
func (c *TemplateCache) Render(path string, data interface{}) (string, error) {
	tmpl, err := c.GetOrLoad(path)
	if err != nil {
		return "", err
	}
	return render(path, tmpl, data)
}

// RenderWithPartials renders path with an explicit set of named partials.
// partials maps the name used in {{> name}} to a template file. The files
// are read when the combination is first parsed; the result is cached under
// the template path together with the partial set. A name the template uses
// that is not in partials is a NotFound error.
func (c *TemplateCache) RenderWithPartials(path string, partials map[string]string, data interface{}) (string, error) {
	if len(partials) == 0 {
		return c.Render(path, data)
	}

	entry, err := c.load(partialKey(path, partials), path, func(name string) (string, error) {
		file, ok := partials[name]
		if !ok {
			return "", apperrors.NewNotFoundError(name, fs.ErrNotExist)
		}
		src, err := c.read(file)
		if err != nil {
			return "", err
		}
		return string(src), nil
	})
	if err != nil {
		return "", err
	}
	return render(path, entry.Template, data)
}

// Len reports the number of cached templates.
func (c *TemplateCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Parses reports how many parses the cache has performed.
func (c *TemplateCache) Parses() int64 {
	return c.parses.Load()
}

// Keys returns the cached keys in sorted order.
func (c *TemplateCache) Keys() []string {
	c.mutex.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mutex.RUnlock()
	sort.Strings(keys)
	return keys
}

func (c *TemplateCache) lookup(key string) (*CachedTemplate, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// load implements get-or-load for key. The singleflight group keeps
// concurrent misses on one key down to a single execution, and the re-check
// inside the flight covers a caller that missed just before an earlier
// flight stored its result.
func (c *TemplateCache) load(key, path string, resolve resolver) (*CachedTemplate, error) {
	if entry, ok := c.lookup(key); ok {
		return entry, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if entry, ok := c.lookup(key); ok {
			return entry, nil
		}

		src, err := c.read(path)
		if err != nil {
			return nil, err
		}
		expanded, err := expandPartials(path, string(src), resolve, nil)
		if err != nil {
			return nil, err
		}

		c.parses.Add(1)
		tmpl, err := mustache.ParseStringPartials(expanded, &mustache.StaticProvider{})
		if err != nil {
			return nil, apperrors.NewParseError(path, parseLine(err), err)
		}

		entry := &CachedTemplate{Path: path, Template: tmpl, LoadedAt: time.Now()}
		c.mutex.Lock()
		c.entries[key] = entry
		c.mutex.Unlock()

		c.logger.Debug(context.Background(), "template loaded", "path", path, "key", key)
		return entry, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CachedTemplate), nil
}

func (c *TemplateCache) read(path string) ([]byte, error) {
	src, err := c.readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewNotFoundError(path, err)
		}
		return nil, apperrors.NewInternalError("read", "read template", err).WithLocation(path, 0, 0)
	}
	return src, nil
}

func render(path string, tmpl *mustache.Template, data interface{}) (string, error) {
	var (
		out string
		err error
	)
	if data == nil {
		out, err = tmpl.Render()
	} else {
		out, err = tmpl.Render(data)
	}
	if err != nil {
		return "", apperrors.NewRenderError(path, err)
	}
	return out, nil
}

func partialKey(path string, partials map[string]string) string {
	names := make([]string, 0, len(partials))
	for name := range partials {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(path)
	for _, name := range names {
		b.WriteString("|")
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(partials[name])
	}
	return b.String()
}

// expandPartials replaces every {{> name}} in src with the resolved partial,
// recursively. A standalone tag keeps its indentation on each non-empty line
// of the partial. stack holds the partials being expanded; meeting one of
// them again is a parse error.
func expandPartials(path, src string, resolve resolver, stack []string) (string, error) {
	matches := partialTag.FindAllStringSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(src[last:m[0]])
		last = m[1]

		var name, indent string
		if m[4] >= 0 {
			indent, name = src[m[2]:m[3]], src[m[4]:m[5]]
		} else {
			name = src[m[6]:m[7]]
		}
		if slices.Contains(stack, name) {
			return "", apperrors.NewParseError(path, 0, fmt.Errorf("partial %q includes itself", name))
		}

		body, err := resolve(name)
		if err != nil {
			return "", err
		}
		body, err = expandPartials(path, body, resolve, append(stack, name))
		if err != nil {
			return "", err
		}
		if indent != "" {
			body = nonEmptyLine.ReplaceAllString(body, indent+"$1")
		}
		b.WriteString(body)
	}
	b.WriteString(src[last:])
	return b.String(), nil
}

func parseLine(err error) int {
	var pe mustache.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}
