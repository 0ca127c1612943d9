package prompt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"text/template"
)

// Template is a disk-backed prompt template. Every template gets the market
// formatting functions from MarketFuncs; callers can layer extras on top.
type Template struct {
	path  string
	extra template.FuncMap

	mu     sync.RWMutex
	tmpl   *template.Template
	digest string
}

// Option customises template construction.
type Option func(*Template)

// WithFuncs adds functions on top of the built-in market set. Names that
// collide with built-ins win.
func WithFuncs(funcs template.FuncMap) Option {
	return func(t *Template) {
		if t.extra == nil {
			t.extra = template.FuncMap{}
		}
		for name, fn := range funcs {
			t.extra[name] = fn
		}
	}
}

// NewTemplate parses the template at path. Missing template keys are
// parse-time errors per missingkey=error.
func NewTemplate(path string, opts ...Option) (*Template, error) {
	if path == "" {
		return nil, fmt.Errorf("prompt template path is empty")
	}
	t := &Template{path: path}
	for _, opt := range opts {
		opt(t)
	}
	if err := t.reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the template with data.
func (t *Template) Render(data any) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.tmpl == nil {
		return "", fmt.Errorf("prompt template %q not parsed", t.path)
	}

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template %q: %w", t.path, err)
	}
	return buf.String(), nil
}

// Reload reparses the template from disk, picking up edits without a restart.
func (t *Template) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reload()
}

func (t *Template) reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read prompt template %q: %w", t.path, err)
	}

	funcs := MarketFuncs()
	for name, fn := range t.extra {
		funcs[name] = fn
	}
	tmpl := template.New(filepath.Base(t.path)).Option("missingkey=error").Funcs(funcs)
	if _, err := tmpl.Parse(string(data)); err != nil {
		return fmt.Errorf("parse prompt template %q: %w", t.path, err)
	}

	sum := sha256.Sum256(data)
	t.digest = hex.EncodeToString(sum[:])
	t.tmpl = tmpl
	return nil
}

// Digest returns the sha256 hex of the last loaded template content, so
// operators can tell which prompt revision produced an answer.
func (t *Template) Digest() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.digest
}
