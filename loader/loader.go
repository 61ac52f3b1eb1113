// Package loader extracts plain text from source files so documents in
// common office formats can enter the suggestion pipeline.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file formats no loader handles.
var ErrUnsupportedFormat = errors.New("loader: unsupported format")

// Document is the text extracted from one source file.
type Document struct {
	Text   string
	Format string
	Title  string
}

// Loader extracts text for a specific set of formats.
type Loader interface {
	Load(ctx context.Context, path string) (*Document, error)
	SupportedFormats() []string
}

// Registry dispatches files to loaders by format.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the built-in loaders registered.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range []Loader{&TextLoader{}, &PDFLoader{}, &XLSXLoader{}} {
		for _, f := range l.SupportedFormats() {
			r.loaders[f] = l
		}
	}
	return r
}

// Get returns the loader registered for a format.
func (r *Registry) Get(format string) (Loader, error) {
	l, ok := r.loaders[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return l, nil
}

// Register adds or replaces the loader for a format.
func (r *Registry) Register(format string, l Loader) {
	r.loaders[format] = l
}

// Formats returns the registered formats.
func (r *Registry) Formats() []string {
	formats := make([]string, 0, len(r.loaders))
	for f := range r.loaders {
		formats = append(formats, f)
	}
	return formats
}

// Load extracts text from a file, dispatching on its extension.
func (r *Registry) Load(ctx context.Context, path string) (*Document, error) {
	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	l, err := r.Get(format)
	if err != nil {
		return nil, err
	}
	doc, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if doc.Format == "" {
		doc.Format = format
	}
	if doc.Title == "" {
		doc.Title = filepath.Base(path)
	}
	return doc, nil
}
