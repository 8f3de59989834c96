package local

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/legal-lens/internal/core/domain"
)

func TestExtractPlainText(t *testing.T) {
	out, err := NewExtractor().Extract(context.Background(), []byte("  hello contract \n"), "text/plain", "a.txt")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if out.Text != "hello contract" || out.PageCount != 1 {
		t.Fatalf("unexpected extraction: %+v", out)
	}
}

func TestExtractRejectsBinaryText(t *testing.T) {
	_, err := NewExtractor().Extract(context.Background(), []byte{0xff, 0xfe, 0x00}, "application/octet-stream", "blob.bin")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestExtractSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetCellValue("Sheet1", "A1", "Party"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	if err := f.SetCellValue("Sheet1", "B1", "Acme Corp"); err != nil {
		t.Fatalf("SetCellValue() error = %v", err)
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, err := NewExtractor().Extract(context.Background(), buf.Bytes(), "", "terms.xlsx")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(out.Text, "Party\tAcme Corp") {
		t.Fatalf("unexpected text: %q", out.Text)
	}
}

func TestCountPagesNonPDF(t *testing.T) {
	n, err := NewExtractor().CountPages([]byte("x"), "text/plain", "a.txt")
	if err != nil || n != 1 {
		t.Fatalf("CountPages() = %d, %v", n, err)
	}
}

func TestCountPagesRejectsMalformedPDF(t *testing.T) {
	_, err := NewExtractor().CountPages([]byte("not a pdf"), "application/pdf", "a.pdf")
	if err == nil {
		t.Fatalf("expected error for malformed pdf")
	}
}
