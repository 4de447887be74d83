// Package render turns named templates and variables into HTML email bodies.
//
// Templates live in an fs.FS. A name resolves to the first existing file of
// name, name.html and name.md in the template directory. HTML templates are
// executed with html/template. Markdown templates may start with a YAML
// frontmatter block; their body is executed with text/template, converted to
// HTML and optionally wrapped in a layout.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"
)

var (
	// ErrTemplateNotFound indicates the template file was not found.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrLayoutNotFound indicates the layout file was not found.
	ErrLayoutNotFound = errors.New("layout not found")

	// ErrRenderFailed indicates template rendering failed.
	ErrRenderFailed = errors.New("failed to render template")

	// ErrInvalidFrontmatter indicates invalid YAML frontmatter.
	ErrInvalidFrontmatter = errors.New("invalid frontmatter")
)

// Config configures a Renderer.
type Config struct {
	// TemplateDir is the directory of templates inside the filesystem. Default: "."
	TemplateDir string
	// LayoutDir is the directory of layouts. Default: "layouts"
	LayoutDir string
	// Layout is the layout file markdown templates are wrapped in. Empty
	// means no layout.
	Layout string
	// Sanitize runs markdown output through an HTML sanitiser, which also
	// lets markdown templates contain raw HTML.
	Sanitize bool
}

// Renderer renders templates from a filesystem. Parsed templates are cached,
// so a Renderer is meant to be long-lived; it is safe for concurrent use.
type Renderer struct {
	fs     fs.FS
	cfg    Config
	md     goldmark.Markdown
	policy *bluemonday.Policy

	mu        sync.RWMutex
	templates map[string]*cachedTemplate
	layouts   map[string]*htmltemplate.Template
}

// cachedTemplate holds parsed template data for reuse. Exactly one of html
// and markdown is set.
type cachedTemplate struct {
	html     *htmltemplate.Template
	markdown *texttemplate.Template
	metadata map[string]any
}

// New creates a Renderer over filesystem.
func New(filesystem fs.FS, cfg Config) *Renderer {
	if cfg.TemplateDir == "" {
		cfg.TemplateDir = "."
	}
	if cfg.LayoutDir == "" {
		cfg.LayoutDir = "layouts"
	}

	opts := []goldmark.Option{goldmark.WithExtensions(extension.GFM)}
	var policy *bluemonday.Policy
	if cfg.Sanitize {
		opts = append(opts, goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()))
		policy = bluemonday.UGCPolicy()
	}

	return &Renderer{
		fs:        filesystem,
		cfg:       cfg,
		md:        goldmark.New(opts...),
		policy:    policy,
		templates: make(map[string]*cachedTemplate),
		layouts:   make(map[string]*htmltemplate.Template),
	}
}

// NewFromDir creates a Renderer reading templates from dir on disk.
func NewFromDir(dir string, cfg Config) (*Renderer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory: %s is not a directory", dir)
	}
	return New(os.DirFS(dir), cfg), nil
}

// Render executes the named template with vars and returns HTML.
// Variables referenced by the template must be present in vars.
func (r *Renderer) Render(ctx context.Context, name string, vars map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl, err := r.template(name)
	if err != nil {
		return "", err
	}

	if tmpl.html != nil {
		var out bytes.Buffer
		if err := tmpl.html.Execute(&out, vars); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
		}
		return out.String(), nil
	}

	var processed bytes.Buffer
	if err := tmpl.markdown.Execute(&processed, vars); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
	}

	var content bytes.Buffer
	if err := r.md.Convert(processed.Bytes(), &content); err != nil {
		return "", fmt.Errorf("%w: %s: failed to convert markdown: %v", ErrRenderFailed, name, err)
	}

	html := content.String()
	if r.policy != nil {
		html = r.policy.Sanitize(html)
	}

	if r.cfg.Layout == "" {
		return html, nil
	}

	layout, err := r.layout(r.cfg.Layout)
	if err != nil {
		return "", err
	}

	var out bytes.Buffer
	err = layout.Execute(&out, map[string]any{
		"Content":  htmltemplate.HTML(html), //nolint:gosec // produced by goldmark
		"Metadata": tmpl.metadata,
		"Vars":     vars,
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to execute layout: %v", ErrRenderFailed, err)
	}
	return out.String(), nil
}

// template returns a cached template or parses and caches it.
func (r *Renderer) template(name string) (*cachedTemplate, error) {
	r.mu.RLock()
	cached, ok := r.templates[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cached, ok := r.templates[name]; ok {
		return cached, nil
	}

	file, content, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	cached = &cachedTemplate{}
	if strings.HasSuffix(file, ".html") {
		cached.html, err = htmltemplate.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
		}
	} else {
		meta, body, err := splitFrontmatter(content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		cached.metadata = meta
		cached.markdown, err = texttemplate.New(name).Option("missingkey=error").Parse(string(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
		}
	}

	r.templates[name] = cached
	return cached, nil
}

// resolve finds the file for a template name.
func (r *Renderer) resolve(name string) (string, []byte, error) {
	if name == "" || !fs.ValidPath(name) {
		return "", nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}

	for _, candidate := range []string{name, name + ".html", name + ".md"} {
		file := path.Join(r.cfg.TemplateDir, candidate)
		content, err := fs.ReadFile(r.fs, file)
		if err == nil {
			return file, content, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
}

// layout returns a cached layout template or parses and caches it.
func (r *Renderer) layout(name string) (*htmltemplate.Template, error) {
	r.mu.RLock()
	cached, ok := r.layouts[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.layouts[name]; ok {
		return cached, nil
	}

	content, err := fs.ReadFile(r.fs, path.Join(r.cfg.LayoutDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, name, err)
	}

	tmpl, err := htmltemplate.New(name).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse layout: %v", ErrRenderFailed, err)
	}

	r.layouts[name] = tmpl
	return tmpl, nil
}
