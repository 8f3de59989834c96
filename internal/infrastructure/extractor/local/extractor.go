package local

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/legal-lens/internal/core/domain"
	"github.com/kirillkom/legal-lens/internal/core/ports"
)

type kind int

const (
	kindText kind = iota
	kindPDF
	kindSpreadsheet
)

// Extractor pulls text out of uploads in-process: the PDF text layer,
// spreadsheet cells, or UTF-8 text.
type Extractor struct{}

var _ ports.TextExtractor = (*Extractor)(nil)

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, data []byte, mimeType, fileName string) (domain.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}

	switch detect(mimeType, fileName) {
	case kindPDF:
		return extractPDF(ctx, data)
	case kindSpreadsheet:
		text, err := extractSpreadsheet(data)
		if err != nil {
			return domain.Extraction{}, err
		}
		return domain.Extraction{Text: text, PageCount: 1}, nil
	default:
		if !utf8.Valid(data) {
			return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "extract", fmt.Errorf("unsupported binary format: %s", fileName))
		}
		return domain.Extraction{Text: strings.TrimSpace(string(data)), PageCount: 1}, nil
	}
}

// CountPages reads only the PDF page tree. Other formats count as one page.
func (e *Extractor) CountPages(data []byte, mimeType, fileName string) (int, error) {
	if detect(mimeType, fileName) != kindPDF {
		return 1, nil
	}
	reader, err := openPDF(data)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}

func detect(mimeType, fileName string) kind {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case mimeType == "application/pdf" || ext == ".pdf":
		return kindPDF
	case strings.Contains(mimeType, "spreadsheetml") || ext == ".xlsx":
		return kindSpreadsheet
	default:
		return kindText
	}
}

func openPDF(data []byte) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "open pdf", fmt.Errorf("malformed pdf: %v", r))
		}
	}()
	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open pdf", err)
	}
	return reader, nil
}

func extractPDF(ctx context.Context, data []byte) (out domain.Extraction, err error) {
	reader, err := openPDF(data)
	if err != nil {
		return domain.Extraction{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf text: %v", r)
		}
	}()

	pages := reader.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return domain.Extraction{}, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(strings.TrimSpace(text))
	}
	return domain.Extraction{Text: strings.TrimSpace(sb.String()), PageCount: pages}, nil
}

func extractSpreadsheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "open spreadsheet", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
