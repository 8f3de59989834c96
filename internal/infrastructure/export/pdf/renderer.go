package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/legal-lens/internal/core/ports"
)

const (
	DefaultDisclaimer = "AI-generated summary; not legal advice."

	bodyFontSize = 11
	lineHeight   = 5.5
)

var headingSizes = map[atom.Atom]float64{
	atom.H1: 16,
	atom.H2: 14,
	atom.H3: 13,
	atom.H4: 12,
	atom.H5: 11,
	atom.H6: 11,
}

// Renderer converts markdown summaries into a single PDF document.
type Renderer struct {
	markdown   goldmark.Markdown
	disclaimer string
}

var _ ports.PDFRenderer = (*Renderer)(nil)

func NewRenderer(disclaimer string) *Renderer {
	if strings.TrimSpace(disclaimer) == "" {
		disclaimer = DefaultDisclaimer
	}
	return &Renderer{
		markdown:   goldmark.New(),
		disclaimer: disclaimer,
	}
}

func (r *Renderer) RenderSummary(title, markdown string) ([]byte, error) {
	var htmlBuf bytes.Buffer
	if err := r.markdown.Convert([]byte(markdown), &htmlBuf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	root, err := html.Parse(&htmlBuf)
	if err != nil {
		return nil, fmt.Errorf("parse summary html: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 20, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()

	w := &writer{pdf: doc, tr: doc.UnicodeTranslatorFromDescriptor("")}

	doc.SetFont("Helvetica", "B", 18)
	doc.MultiCell(0, 9, w.tr(title), "", "L", false)
	doc.SetFont("Helvetica", "I", 9)
	doc.SetTextColor(110, 110, 110)
	doc.MultiCell(0, 5, w.tr(r.disclaimer), "", "L", false)
	doc.SetTextColor(0, 0, 0)
	doc.Ln(4)

	w.setStyle()
	w.walk(root)

	if err := doc.Error(); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	var out bytes.Buffer
	if err := doc.Output(&out); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return out.Bytes(), nil
}

type writer struct {
	pdf *fpdf.Fpdf
	tr  func(string) string

	bold      int
	italic    int
	fontSize  float64
	listDepth int
	ordered   []int
	lineDirty bool
}

func (w *writer) setStyle() {
	style := ""
	if w.bold > 0 {
		style += "B"
	}
	if w.italic > 0 {
		style += "I"
	}
	size := w.fontSize
	if size == 0 {
		size = bodyFontSize
	}
	w.pdf.SetFont("Helvetica", style, size)
}

func (w *writer) newline(gap float64) {
	if w.lineDirty {
		w.pdf.Ln(lineHeight)
		w.lineDirty = false
	}
	if gap > 0 {
		w.pdf.Ln(gap)
	}
}

func (w *writer) text(s string) {
	if s == "" {
		return
	}
	w.pdf.Write(lineHeight, w.tr(s))
	w.lineDirty = true
}

func (w *writer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		text := strings.ReplaceAll(n.Data, "\n", " ")
		if !w.lineDirty {
			text = strings.TrimLeft(text, " ")
		}
		w.text(text)
		return
	case html.ElementNode:
	default:
		w.children(n)
		return
	}

	switch n.DataAtom {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		w.newline(2)
		w.bold++
		w.fontSize = headingSizes[n.DataAtom]
		w.setStyle()
		w.children(n)
		w.bold--
		w.fontSize = 0
		w.setStyle()
		w.newline(1)
	case atom.P:
		w.newline(0)
		w.children(n)
		w.newline(2)
	case atom.Ul, atom.Ol:
		w.newline(0)
		w.listDepth++
		if n.DataAtom == atom.Ol {
			w.ordered = append(w.ordered, 0)
		} else {
			w.ordered = append(w.ordered, -1)
		}
		w.children(n)
		w.ordered = w.ordered[:len(w.ordered)-1]
		w.listDepth--
		w.newline(1)
	case atom.Li:
		w.newline(0)
		w.pdf.SetX(w.pdf.GetX() + float64(w.listDepth-1)*6)
		marker := "• "
		if last := len(w.ordered) - 1; last >= 0 && w.ordered[last] >= 0 {
			w.ordered[last]++
			marker = fmt.Sprintf("%d. ", w.ordered[last])
		}
		w.text(marker)
		w.children(n)
		w.newline(0)
	case atom.Strong, atom.B:
		w.bold++
		w.setStyle()
		w.children(n)
		w.bold--
		w.setStyle()
	case atom.Em, atom.I:
		w.italic++
		w.setStyle()
		w.children(n)
		w.italic--
		w.setStyle()
	case atom.Br:
		w.pdf.Ln(lineHeight)
		w.lineDirty = false
	case atom.Hr:
		w.newline(2)
		x, y := w.pdf.GetXY()
		pageWidth, _ := w.pdf.GetPageSize()
		_, _, right, _ := w.pdf.GetMargins()
		w.pdf.Line(x, y, pageWidth-right, y)
		w.pdf.Ln(3)
	default:
		w.children(n)
	}
}

func (w *writer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}
