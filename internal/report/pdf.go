package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ankitem/briefly/internal/research"
)

var (
	// ErrUnavailable means no PDF drawing capability was injected. This is a
	// recoverable, user-facing condition, not fatal to the application.
	ErrUnavailable = errors.New("pdf renderer is not available")
	// ErrRender wraps any failure during document layout or save.
	ErrRender = errors.New("pdf rendering failed")
)

// Document is the drawing surface the exporter renders into. *fpdf.Fpdf
// satisfies it; tests substitute a recording double.
type Document interface {
	AddPage()
	SetAutoPageBreak(auto bool, margin float64)
	SetFont(family, style string, size float64)
	SetTextColor(r, g, b int)
	SplitText(txt string, w float64) []string
	CellFormat(w, h float64, txtStr, borderStr string, ln int, alignStr string, fill bool, link int, linkStr string)
	SetXY(x, y float64)
	GetPageSize() (width, height float64)
	Error() error
	OutputFileAndClose(name string) error
}

// NewFpdfDocument returns an A4 portrait document backed by go-pdf/fpdf.
func NewFpdfDocument() Document {
	return fpdf.New("P", "mm", "A4", "")
}

// Layout constants, in millimeters on A4.
const (
	pageMargin  = 18.0
	lineHeight  = 7.0
	headingLine = 9.0
	sectionGap  = 6.0
	entryGap    = 3.0
	headingSize = 18.0
	sectionSize = 14.0
	bodySize    = 12.0
	sourceSize  = 11.0
)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// Exporter lays research results out as paginated PDF documents.
type Exporter struct {
	newDocument func() Document
	outDir      string
}

// NewExporter builds an Exporter writing into outDir. A nil factory is
// allowed and makes every Export fail with ErrUnavailable.
func NewExporter(newDocument func() Document, outDir string) *Exporter {
	if outDir == "" {
		outDir = "."
	}
	return &Exporter{newDocument: newDocument, outDir: outDir}
}

// Filename derives the output file name from the topic, replacing whitespace
// runs with underscores.
func Filename(topic string) string {
	name := whitespaceRuns.ReplaceAllString(strings.TrimSpace(topic), "_")
	if name == "" {
		name = "research"
	}
	return name + ".pdf"
}

// Export renders the result into a new document and saves it. It returns the
// path of the written file.
func (e *Exporter) Export(result *research.Result) (string, error) {
	if e == nil || e.newDocument == nil {
		return "", ErrUnavailable
	}
	doc := e.newDocument()
	if doc == nil {
		return "", ErrUnavailable
	}

	// Pagination is driven by the vertical cursor below, never by the
	// library's own page-break logic.
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	pageWidth, pageHeight := doc.GetPageSize()
	contentWidth := pageWidth - 2*pageMargin
	bottom := pageHeight - pageMargin
	y := pageMargin

	// Topic heading, centered.
	doc.SetFont("Helvetica", "B", headingSize)
	doc.SetTextColor(17, 24, 39)
	for _, line := range doc.SplitText(result.Topic, contentWidth) {
		doc.SetXY(pageMargin, y)
		doc.CellFormat(contentWidth, headingLine, line, "", 0, "C", false, 0, "")
		y += headingLine
	}
	y += sectionGap

	// Summary body.
	doc.SetFont("Helvetica", "", bodySize)
	doc.SetTextColor(31, 41, 55)
	for _, line := range doc.SplitText(result.Summary, contentWidth) {
		if y+lineHeight > bottom {
			doc.AddPage()
			y = pageMargin
		}
		doc.SetXY(pageMargin, y)
		doc.CellFormat(contentWidth, lineHeight, line, "", 0, "L", false, 0, "")
		y += lineHeight
	}
	y += sectionGap

	if len(result.Sources) > 0 {
		// Break before the heading if it would not fit together with at
		// least the first line of an entry.
		if y+lineHeight+sectionGap+lineHeight > bottom {
			doc.AddPage()
			y = pageMargin
		}
		doc.SetFont("Helvetica", "B", sectionSize)
		doc.SetTextColor(17, 24, 39)
		doc.SetXY(pageMargin, y)
		doc.CellFormat(contentWidth, lineHeight, "Sources", "", 0, "L", false, 0, "")
		y += lineHeight + entryGap

		for _, source := range result.Sources {
			doc.SetFont("Helvetica", "", sourceSize)
			titleLines := doc.SplitText(source.Title, contentWidth)
			// Entry height is estimated before anything is written; committed
			// text never moves to a later page.
			needed := float64(len(titleLines))*lineHeight + lineHeight + entryGap
			if y+needed > bottom {
				doc.AddPage()
				y = pageMargin
			}
			doc.SetTextColor(31, 41, 55)
			for _, line := range titleLines {
				doc.SetXY(pageMargin, y)
				doc.CellFormat(contentWidth, lineHeight, line, "", 0, "L", false, 0, "")
				y += lineHeight
			}
			doc.SetTextColor(29, 78, 216)
			doc.SetXY(pageMargin, y)
			doc.CellFormat(contentWidth, lineHeight, source.URI, "", 0, "L", false, 0, source.URI)
			y += lineHeight + entryGap
		}
	}

	if err := doc.Error(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	path := filepath.Join(e.outDir, Filename(result.Topic))
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRender, err)
	}
	return path, nil
}
