package layout

import (
	"strings"

	"github.com/structify/rfpchunk/internal/document"
)

// Extract converts a layout result into the pipeline's inputs: the
// document's plain text (table/figure spans filtered out) plus table and
// image references with stable 1-based indexes.
func Extract(r *Result) (string, []document.TableRef, []document.ImageRef) {
	text := r.PlainText()

	tables := make([]document.TableRef, 0, len(r.Tables))
	for i := range r.Tables {
		t := &r.Tables[i]
		grid := t.Grid()
		tables = append(tables, document.TableRef{
			Content:     GridText(grid),
			Grid:        grid,
			PageNumber:  t.PageNumber,
			Index:       i + 1,
			RowCount:    t.RowCount,
			ColumnCount: t.ColumnCount,
		})
	}

	images := make([]document.ImageRef, 0, len(r.Figures))
	for i := range r.Figures {
		f := &r.Figures[i]
		images = append(images, document.ImageRef{
			Content:    r.FigureText(f),
			PageNumber: f.PageNumber,
			Index:      i + 1,
		})
	}

	return text, tables, images
}

// GridText renders a cell grid as readable plain text, one row per line
// with cells joined by " | ".
func GridText(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	lines := make([]string, 0, len(grid))
	for _, row := range grid {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}
