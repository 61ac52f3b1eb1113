package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

func TestRegistryBuiltInLoaders(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"txt", "md", "pdf", "xlsx"} {
		t.Run(format, func(t *testing.T) {
			l, err := reg.Get(format)
			if err != nil {
				t.Fatalf("Get(%q): %v", format, err)
			}
			found := false
			for _, f := range l.SupportedFormats() {
				if f == format {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("loader for %q does not list it in SupportedFormats(): %v",
					format, l.SupportedFormats())
			}
		})
	}
}

func TestRegistryUnknownFormat(t *testing.T) {
	reg := NewRegistry()

	for _, format := range []string{"docx", "pptx", "csv", ""} {
		if _, err := reg.Get(format); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Get(%q) = %v, want ErrUnsupportedFormat", format, err)
		}
	}

	_, err := reg.Load(context.Background(), "/tmp/besluit.docx")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Load(.docx) = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	reg := NewRegistry()
	reg.Register("csv", &TextLoader{})

	if _, err := reg.Get("csv"); err != nil {
		t.Fatalf("Get(csv) after Register: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Text
// ---------------------------------------------------------------------------

func TestLoadTextFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "besluit.txt")
	content := "De gemeente Almere verleent de vergunning."
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	doc, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Text != content {
		t.Errorf("text = %q, want %q", doc.Text, content)
	}
	if doc.Format != "txt" {
		t.Errorf("format = %q, want txt", doc.Format)
	}
	if doc.Title != "besluit.txt" {
		t.Errorf("title = %q, want besluit.txt", doc.Title)
	}
}

func TestLoadMarkdownFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notitie.md")
	if err := os.WriteFile(path, []byte("# Duurzaamheid\n\nBeleid voor 2026."), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	doc, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Format != "md" {
		t.Errorf("format = %q, want md", doc.Format)
	}
	if !strings.Contains(doc.Text, "Duurzaamheid") {
		t.Errorf("text missing heading: %q", doc.Text)
	}
}

func TestLoadTextFileMissing(t *testing.T) {
	_, err := NewRegistry().Load(context.Background(), filepath.Join(t.TempDir(), "weg.txt"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

// ---------------------------------------------------------------------------
// XLSX
// ---------------------------------------------------------------------------

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "register.xlsx")
	f := excelize.NewFile()
	if err := f.SetCellValue("Sheet1", "A1", "Zaaknummer"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Onderwerp"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "A2", "Z-2026-000123"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B2", "Vergunning windpark"); err != nil {
		t.Fatalf("set cell: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	f.Close()

	doc, err := NewRegistry().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Format != "xlsx" {
		t.Errorf("format = %q, want xlsx", doc.Format)
	}
	for _, want := range []string{"Zaaknummer", "Z-2026-000123", "Vergunning windpark"} {
		if !strings.Contains(doc.Text, want) {
			t.Errorf("text missing %q:\n%s", want, doc.Text)
		}
	}
}

func TestLoadXLSXEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leeg.xlsx")
	f := excelize.NewFile()
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("saving workbook: %v", err)
	}
	f.Close()

	if _, err := NewRegistry().Load(context.Background(), path); err == nil {
		t.Fatal("expected error for workbook without data")
	}
}
