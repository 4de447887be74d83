package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"layouts/default.html": &fstest.MapFile{
			Data: []byte(`<html><head><title>{{.Metadata.title}}</title></head><body>{{.Content}}</body></html>`),
		},
		"order-confirmation.html": &fstest.MapFile{
			Data: []byte(`<h1>Order {{.orderId}}</h1><p>Thanks, {{.name}}</p>`),
		},
		"welcome.md": &fstest.MapFile{
			Data: []byte(`---
title: Welcome aboard
---
Hello **{{.name}}**!

| Plan | Seats |
|------|-------|
| {{.plan}} | {{.seats}} |
`),
		},
		"raw.md": &fstest.MapFile{
			Data: []byte("Click <a href=\"{{.link}}\" onclick=\"steal()\">here</a><script>alert(1)</script>\n"),
		},
		"broken.md": &fstest.MapFile{
			Data: []byte("---\ntitle: [unclosed\n---\nbody\n"),
		},
		"badsyntax.html": &fstest.MapFile{
			Data: []byte(`<p>{{.name</p>`),
		},
	}
}

func TestRender_HTMLTemplate(t *testing.T) {
	t.Parallel()

	r := New(testFS(), Config{})

	out, err := r.Render(context.Background(), "order-confirmation", map[string]any{
		"orderId": 12345,
		"name":    "<Jane>",
	})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Order 12345</h1><p>Thanks, &lt;Jane&gt;</p>", out)
}

func TestRender_ExplicitExtension(t *testing.T) {
	t.Parallel()

	r := New(testFS(), Config{})

	out, err := r.Render(context.Background(), "order-confirmation.html", map[string]any{"orderId": 1, "name": "A"})
	require.NoError(t, err)
	assert.Contains(t, out, "Order 1")
}

func TestRender_MarkdownWithoutLayout(t *testing.T) {
	t.Parallel()

	r := New(testFS(), Config{})

	out, err := r.Render(context.Background(), "welcome", map[string]any{"name": "Alice", "plan": "Pro", "seats": 5})
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Alice</strong>")
	assert.Contains(t, out, "<table>")
	assert.Contains(t, out, "<td>Pro</td>")
	assert.NotContains(t, out, "<html>")
}

func TestRender_MarkdownWithLayout(t *testing.T) {
	t.Parallel()

	r := New(testFS(), Config{Layout: "default.html"})

	out, err := r.Render(context.Background(), "welcome", map[string]any{"name": "Alice", "plan": "Pro", "seats": 5})
	require.NoError(t, err)
	assert.Contains(t, out, "<title>Welcome aboard</title>")
	assert.Contains(t, out, "<body><p>Hello <strong>Alice</strong>!</p>")
}

func TestRender_Sanitize(t *testing.T) {
	t.Parallel()

	vars := map[string]any{"link": "https://example.com/verify"}

	plain, err := New(testFS(), Config{}).Render(context.Background(), "raw", vars)
	require.NoError(t, err)
	assert.NotContains(t, plain, "<script>")
	assert.NotContains(t, plain, `href="https://example.com/verify"`)

	sanitized, err := New(testFS(), Config{Sanitize: true}).Render(context.Background(), "raw", vars)
	require.NoError(t, err)
	assert.Contains(t, sanitized, `href="https://example.com/verify"`)
	assert.NotContains(t, sanitized, "onclick")
	assert.NotContains(t, sanitized, "<script>")
}

func TestRender_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		template string
		vars     map[string]any
		cfg      Config
		want     error
	}{
		{"missing template", "nope", map[string]any{"a": 1}, Config{}, ErrTemplateNotFound},
		{"path escape", "../secrets", map[string]any{"a": 1}, Config{}, ErrTemplateNotFound},
		{"empty name", "", map[string]any{"a": 1}, Config{}, ErrTemplateNotFound},
		{"bad frontmatter", "broken", map[string]any{"a": 1}, Config{}, ErrInvalidFrontmatter},
		{"bad syntax", "badsyntax", map[string]any{"name": "x"}, Config{}, ErrRenderFailed},
		{"missing variable", "order-confirmation", map[string]any{"orderId": 1}, Config{}, ErrRenderFailed},
		{"missing layout", "welcome", map[string]any{"name": "A", "plan": "P", "seats": 1}, Config{Layout: "gone.html"}, ErrLayoutNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := New(testFS(), tt.cfg).Render(context.Background(), tt.template, tt.vars)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRender_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testFS(), Config{}).Render(ctx, "welcome", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// countingFS wraps MapFS and counts ReadFile calls.
type countingFS struct {
	fstest.MapFS
	reads *atomic.Int32
}

func (c *countingFS) ReadFile(name string) ([]byte, error) {
	c.reads.Add(1)
	return c.MapFS.ReadFile(name)
}

func TestRender_CachesTemplates(t *testing.T) {
	t.Parallel()

	var reads atomic.Int32
	r := New(&countingFS{MapFS: testFS(), reads: &reads}, Config{Layout: "default.html"})

	vars := map[string]any{"name": "Alice", "plan": "Pro", "seats": 5}
	_, err := r.Render(context.Background(), "welcome.md", vars)
	require.NoError(t, err)
	first := reads.Load()
	// template + layout
	assert.Equal(t, int32(2), first)

	vars["name"] = "Bob"
	out, err := r.Render(context.Background(), "welcome.md", vars)
	require.NoError(t, err)
	assert.Contains(t, out, "<strong>Bob</strong>")
	assert.Equal(t, first, reads.Load())
}

func TestRender_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := New(testFS(), Config{Layout: "default.html"})

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := r.Render(context.Background(), "welcome", map[string]any{"name": id, "plan": "p", "seats": id})
			if err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent render failed: %v", err)
	}
}

func TestNewFromDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.html"), []byte(`<p>Hi {{.name}}</p>`), 0o600))

	r, err := NewFromDir(dir, Config{})
	require.NoError(t, err)

	out, err := r.Render(context.Background(), "hello", map[string]any{"name": "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hi Sam</p>", out)

	_, err = NewFromDir(filepath.Join(dir, "missing"), Config{})
	assert.Error(t, err)

	_, err = NewFromDir(filepath.Join(dir, "hello.html"), Config{})
	assert.Error(t, err)
}

func TestSplitFrontmatter(t *testing.T) {
	t.Parallel()

	meta, body, err := splitFrontmatter([]byte("---\ntitle: Hi\ncount: 2\n---\n# Body\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Hi", "count": 2}, meta)
	assert.Equal(t, "# Body\n", string(body))

	meta, body, err = splitFrontmatter([]byte("no frontmatter"))
	require.NoError(t, err)
	assert.Empty(t, meta)
	assert.Equal(t, "no frontmatter", string(body))

	meta, body, err = splitFrontmatter([]byte("---\r\n---\r\nwindows"))
	require.NoError(t, err)
	assert.Empty(t, meta)
	assert.Equal(t, "windows", string(body))

	meta, body, err = splitFrontmatter([]byte("---\ntitle: a---b\nrange: 1---3\n---\nbody --- text\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "a---b", "range": "1---3"}, meta)
	assert.Equal(t, "body --- text\n", string(body))

	_, _, err = splitFrontmatter([]byte("---\ntitle: a---b\n"))
	assert.True(t, errors.Is(err, ErrInvalidFrontmatter))

	_, _, err = splitFrontmatter([]byte("---\ntitle: x\n"))
	assert.True(t, errors.Is(err, ErrInvalidFrontmatter))

	_, _, err = splitFrontmatter([]byte("---"))
	assert.True(t, errors.Is(err, ErrInvalidFrontmatter))
}
