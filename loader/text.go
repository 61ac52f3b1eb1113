package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// TextLoader handles plain text and markdown files.
type TextLoader struct{}

func (l *TextLoader) SupportedFormats() []string { return []string{"txt", "md"} }

func (l *TextLoader) Load(ctx context.Context, path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return &Document{
		Text:  string(data),
		Title: filepath.Base(path),
	}, nil
}
