package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ankitem/briefly/internal/research"
)

// fakeDocument records drawing calls so layout decisions can be asserted
// without rasterizing anything.
type fakeDocument struct {
	pages     int
	cells     []string
	savedPath string
	saveErr   error
	drawErr   error
}

func (d *fakeDocument) AddPage()                                   { d.pages++ }
func (d *fakeDocument) SetAutoPageBreak(auto bool, m float64)      {}
func (d *fakeDocument) SetFont(family, style string, size float64) {}
func (d *fakeDocument) SetTextColor(r, g, b int)                   {}
func (d *fakeDocument) SetXY(x, y float64)                         {}
func (d *fakeDocument) GetPageSize() (float64, float64)            { return 210, 297 }
func (d *fakeDocument) Error() error                               { return d.drawErr }

func (d *fakeDocument) SplitText(txt string, w float64) []string {
	// Fixed 60-char wrap keeps line counts deterministic for the tests.
	var lines []string
	for len(txt) > 60 {
		lines = append(lines, txt[:60])
		txt = txt[60:]
	}
	return append(lines, txt)
}

func (d *fakeDocument) CellFormat(w, h float64, txt, border string, ln int, align string, fill bool, link int, linkStr string) {
	d.cells = append(d.cells, txt)
}

func (d *fakeDocument) OutputFileAndClose(name string) error {
	d.savedPath = name
	return d.saveErr
}

func (d *fakeDocument) contains(txt string) bool {
	for _, cell := range d.cells {
		if cell == txt {
			return true
		}
	}
	return false
}

func exportWithFake(t *testing.T, result *research.Result) *fakeDocument {
	t.Helper()
	doc := &fakeDocument{}
	exporter := NewExporter(func() Document { return doc }, t.TempDir())
	_, err := exporter.Export(result)
	require.NoError(t, err)
	return doc
}

func TestExportWithoutCapability(t *testing.T) {
	exporter := NewExporter(nil, ".")
	path, err := exporter.Export(&research.Result{Topic: "t", Summary: "s"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Empty(t, path)
}

func TestExportOmitsSourcesSectionWhenEmpty(t *testing.T) {
	doc := exportWithFake(t, &research.Result{Topic: "Tidal Energy", Summary: "Short summary."})
	require.Equal(t, 1, doc.pages)
	require.False(t, doc.contains("Sources"), "empty source list must not render a Sources section")
}

func TestExportRendersSourcesInOrder(t *testing.T) {
	result := &research.Result{
		Topic:   "Tidal Energy",
		Summary: "Short summary.",
		Sources: []research.Source{
			{Title: "First", URI: "https://example.com/1"},
			{Title: "Second", URI: "https://example.com/2"},
		},
	}
	doc := exportWithFake(t, result)
	require.True(t, doc.contains("Sources"))

	var order []string
	for _, cell := range doc.cells {
		if strings.HasPrefix(cell, "https://example.com/") {
			order = append(order, cell)
		}
	}
	require.Equal(t, []string{"https://example.com/1", "https://example.com/2"}, order)
}

func TestExportPaginatesLongSourceList(t *testing.T) {
	result := &research.Result{Topic: "Dense Topic", Summary: "Summary."}
	for i := 0; i < 40; i++ {
		result.Sources = append(result.Sources, research.Source{
			Title: fmt.Sprintf("Source number %d", i),
			URI:   fmt.Sprintf("https://example.com/%d", i),
		})
	}
	doc := exportWithFake(t, result)
	require.Greater(t, doc.pages, 1, "40 sources cannot fit a single A4 page")

	seen := map[string]int{}
	for _, cell := range doc.cells {
		if strings.HasPrefix(cell, "Source number ") {
			seen[cell]++
		}
	}
	require.Len(t, seen, 40)
	for title, count := range seen {
		require.Equalf(t, 1, count, "source %q rendered %d times", title, count)
	}
}

func TestExportWrapsDrawErrors(t *testing.T) {
	doc := &fakeDocument{drawErr: fmt.Errorf("font missing")}
	exporter := NewExporter(func() Document { return doc }, t.TempDir())
	_, err := exporter.Export(&research.Result{Topic: "t", Summary: "s"})
	require.ErrorIs(t, err, ErrRender)
	require.Empty(t, doc.savedPath, "a failed document must not be saved")
}

func TestFilenameReplacesWhitespace(t *testing.T) {
	require.Equal(t, "large_language_models.pdf", Filename("  large language\tmodels "))
	require.Equal(t, "research.pdf", Filename("   "))
}

func TestExportWritesRealPDF(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(NewFpdfDocument, dir)
	result := &research.Result{
		Topic:   "Grid Storage",
		Summary: strings.Repeat("Flow batteries store energy in liquid electrolytes. ", 20),
		Sources: []research.Source{{Title: "DOE report", URI: "https://example.com/doe"}},
	}
	path, err := exporter.Export(result)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Grid_Storage.pdf"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
