package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXLoader extracts sheet contents from spreadsheets as row text.
type XLSXLoader struct{}

func (l *XLSXLoader) SupportedFormats() []string { return []string{"xlsx"} }

func (l *XLSXLoader) Load(ctx context.Context, path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var sheets []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}

		var content strings.Builder
		content.WriteString(sheet + "\n")
		for _, row := range rows {
			content.WriteString(strings.Join(row, " | ") + "\n")
		}
		sheets = append(sheets, content.String())
	}

	if len(sheets) == 0 {
		return nil, fmt.Errorf("no data found in workbook %s", filepath.Base(path))
	}

	return &Document{
		Text:  strings.Join(sheets, "\n"),
		Title: filepath.Base(path),
	}, nil
}
