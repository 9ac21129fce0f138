package renderer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/darkone23/langnet-web/internal/errors"
)

func writeTemplate(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestGetOrLoadCachesByPath(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "hello.html", "<p>{{greeting}}</p>")
	cache := NewTemplateCache()

	first, err := cache.GetOrLoad(path)
	require.NoError(t, err)
	second, err := cache.GetOrLoad(path)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
	assert.Equal(t, int64(1), cache.Parses())
	assert.Equal(t, []string{path}, cache.Keys())
}

func TestGetOrLoadNeverReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "hello.html", "v1 {{x}}")
	cache := NewTemplateCache()

	out, err := cache.Render(path, map[string]string{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "v1 a", out)

	writeTemplate(t, dir, "hello.html", "v2 {{x}}")

	out, err = cache.Render(path, map[string]string{"x": "a"})
	require.NoError(t, err)
	assert.Equal(t, "v1 a", out, "cached template must not pick up file changes")
}

func TestGetOrLoadConcurrentFirstAccessParsesOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "slow.html", "{{name}}")

	var reads atomic.Int64
	cache := NewTemplateCache(WithReadFile(func(p string) ([]byte, error) {
		reads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return os.ReadFile(p)
	}))

	const workers = 64
	results := make([]*mustache.Template, workers)
	errs := make([]error, workers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = cache.GetOrLoad(path)
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int64(1), cache.Parses())
	assert.Equal(t, int64(1), reads.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestGetOrLoadNotFound(t *testing.T) {
	cache := NewTemplateCache()

	_, err := cache.GetOrLoad(filepath.Join(t.TempDir(), "missing.html"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, 0, cache.Len())
}

func TestGetOrLoadFailureIsNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.html")
	cache := NewTemplateCache()

	_, err := cache.GetOrLoad(path)
	require.Error(t, err)

	writeTemplate(t, dir, "late.html", "ok")
	out, err := cache.Render(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestGetOrLoadParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "broken.html", "<ul>\n{{#items}}<li>{{.}}</li>\n</ul>")
	cache := NewTemplateCache()

	_, err := cache.GetOrLoad(path)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParse))
	var ae *apperrors.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, path, ae.FilePath)
	assert.Equal(t, 0, cache.Len())
}

func TestParseLine(t *testing.T) {
	pe := mustache.ParseError{Line: 3, Code: mustache.ErrUnmatchedOpenTag}
	assert.Equal(t, 3, parseLine(pe))
	assert.Equal(t, 3, parseLine(fmt.Errorf("parse: %w", pe)))
	assert.Equal(t, 0, parseLine(errors.New("line 7: looks like a location")))
}

func TestGetOrLoadParseErrorCarriesLine(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "broken.html", "<p>\n</p>\n{{#open}}")
	cache := NewTemplateCache()

	_, err := cache.GetOrLoad(path)

	var ae *apperrors.AppError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 3, ae.Line)
}

func TestRenderSubstitutionAndSections(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "list.html",
		"<h2>{{title}}</h2><ul>{{#items}}<li>{{.}}</li>{{/items}}</ul>{{^items}}empty{{/items}}")
	cache := NewTemplateCache()

	out, err := cache.Render(path, map[string]interface{}{
		"title": "Fruit",
		"items": []string{"apple", "pear"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<h2>Fruit</h2><ul><li>apple</li><li>pear</li></ul>", out)

	out, err = cache.Render(path, map[string]interface{}{"title": "None"})
	require.NoError(t, err)
	assert.Equal(t, "<h2>None</h2><ul></ul>empty", out)
}

func TestRenderMissingFieldsAreEmpty(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "greet.html", "Hello, {{name}}!")
	cache := NewTemplateCache()

	out, err := cache.Render(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Hello, !", out)

	out, err = cache.Render(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, !", out)
}

func TestRenderEscapesHTML(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "esc.html", "{{name}}")
	cache := NewTemplateCache()

	out, err := cache.Render(path, map[string]string{"name": `<script>"x"</script>`})
	require.NoError(t, err)
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestRenderIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "idem.html", "{{#rows}}[{{id}}:{{name}}]{{/rows}}")
	cache := NewTemplateCache()
	data := map[string]interface{}{
		"rows": []map[string]interface{}{{"id": 1, "name": "a"}, {"id": 2, "name": "b"}},
	}

	first, err := cache.Render(path, data)
	require.NoError(t, err)
	second, err := cache.Render(path, data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "[1:a][2:b]", first)
}

func TestRenderResolvesPartialsFromTemplateDir(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "header.html", "<h1>{{title}}</h1>")
	path := writeTemplate(t, dir, "page.html", "{{> header}}<main>{{body}}</main>")
	cache := NewTemplateCache()

	out, err := cache.Render(path, map[string]string{"title": "T", "body": "B"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>T</h1><main>B</main>", out)
}

func TestRenderWithPartials(t *testing.T) {
	dir := t.TempDir()
	card := writeTemplate(t, dir, "partials/card.html", "<div class=\"card\">{{name}}</div>")
	path := writeTemplate(t, dir, "users.html", "{{#users}}{{> card}}{{/users}}")
	cache := NewTemplateCache()
	data := map[string]interface{}{
		"users": []map[string]string{{"name": "Alice"}, {"name": "Bob"}},
	}

	out, err := cache.RenderWithPartials(path, map[string]string{"card": card}, data)
	require.NoError(t, err)
	assert.Equal(t, `<div class="card">Alice</div><div class="card">Bob</div>`, out)

	_, err = cache.RenderWithPartials(path, map[string]string{"card": card}, data)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cache.Parses())
	assert.Equal(t, 1, cache.Len())
}

func TestRenderWithPartialsMissingPartial(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "users.html", "{{> card}}")
	cache := NewTemplateCache()

	_, err := cache.RenderWithPartials(path, map[string]string{"card": filepath.Join(dir, "nope.html")}, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRenderPartialsAreReadOnce(t *testing.T) {
	dir := t.TempDir()
	partial := writeTemplate(t, dir, "item.html", "<li>v1 {{name}}</li>")
	path := writeTemplate(t, dir, "list.html", "<ul>{{> item}}</ul>")
	cache := NewTemplateCache()
	data := map[string]string{"name": "a"}

	out, err := cache.Render(path, data)
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>v1 a</li></ul>", out)

	writeTemplate(t, dir, "item.html", "<li>v2 {{name}}</li>")
	out, err = cache.Render(path, data)
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>v1 a</li></ul>", out, "edited partial is not picked up")

	require.NoError(t, os.Remove(partial))
	out, err = cache.Render(path, data)
	require.NoError(t, err)
	assert.Equal(t, "<ul><li>v1 a</li></ul>", out, "deleted partial still renders")
	assert.Equal(t, int64(1), cache.Parses())
}

func TestRenderWithPartialsReadsOnce(t *testing.T) {
	dir := t.TempDir()
	card := writeTemplate(t, dir, "card.html", "[{{name}}]")
	path := writeTemplate(t, dir, "page.html", "{{> card}}")
	cache := NewTemplateCache()
	partials := map[string]string{"card": card}

	out, err := cache.RenderWithPartials(path, partials, map[string]string{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "[x]", out)

	require.NoError(t, os.Remove(card))
	out, err = cache.RenderWithPartials(path, partials, map[string]string{"name": "y"})
	require.NoError(t, err)
	assert.Equal(t, "[y]", out)
	assert.Equal(t, int64(1), cache.Parses())
}

func TestRenderMissingPartialIsNotFound(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "page.html", "<main>{{> absent}}</main>")
	cache := NewTemplateCache()

	_, err := cache.Render(path, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 0, cache.Len())
}

func TestRenderWithPartialsUnknownName(t *testing.T) {
	dir := t.TempDir()
	card := writeTemplate(t, dir, "card.html", "card")
	path := writeTemplate(t, dir, "page.html", "{{> other}}")
	cache := NewTemplateCache()

	_, err := cache.RenderWithPartials(path, map[string]string{"card": card}, nil)

	assert.True(t, apperrors.IsNotFound(err))
}

func TestRenderNestedPartials(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "name.mustache", "<b>{{name}}</b>")
	writeTemplate(t, dir, "row.html", "<tr>{{> name}}</tr>")
	path := writeTemplate(t, dir, "table.html", "<table>{{#rows}}{{> row}}{{/rows}}</table>")
	cache := NewTemplateCache()
	data := map[string]interface{}{
		"rows": []map[string]string{{"name": "a"}, {"name": "b"}},
	}

	out, err := cache.Render(path, data)
	require.NoError(t, err)
	assert.Equal(t, "<table><tr><b>a</b></tr><tr><b>b</b></tr></table>", out)
}

func TestRenderStandalonePartialIsIndented(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "lines.html", "one\ntwo\n")
	path := writeTemplate(t, dir, "page.html", "<pre>\n  {{> lines}}\n</pre>")
	cache := NewTemplateCache()

	out, err := cache.Render(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "<pre>\n  one\n  two\n</pre>", out)
}

func TestRenderRecursivePartialIsParseError(t *testing.T) {
	dir := t.TempDir()
	writeTemplate(t, dir, "a.html", "a{{> b}}")
	writeTemplate(t, dir, "b.html", "b{{> a}}")
	path := writeTemplate(t, dir, "page.html", "{{> a}}")
	cache := NewTemplateCache()

	_, err := cache.Render(path, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrParse))
	assert.ErrorContains(t, err, `"a"`)
}

func TestRenderWithoutPartialsFallsBackToRender(t *testing.T) {
	dir := t.TempDir()
	path := writeTemplate(t, dir, "plain.html", "{{x}}")
	cache := NewTemplateCache()

	out, err := cache.RenderWithPartials(path, nil, map[string]string{"x": "y"})
	require.NoError(t, err)
	assert.Equal(t, "y", out)
	assert.Equal(t, []string{path}, cache.Keys())
}

func TestPartialKeyIsOrderIndependent(t *testing.T) {
	a := partialKey("p", map[string]string{"a": "1", "b": "2"})
	b := partialKey("p", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, partialKey("p", map[string]string{"a": "1"}))
}
