// Package layout defines the value object produced by the external
// document-layout engine and the helpers that recover plain text, table
// grids, and figure text from it. The engine itself (OCR, PDF/DOCX
// parsing) is not implemented here.
package layout

import (
	"sort"
	"strings"
)

// Span is a character range inside the document's full content.
type Span struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

// Paragraph is one layout paragraph with its role tag and source spans.
type Paragraph struct {
	Content    string `json:"content"`
	Role       string `json:"role,omitempty"`
	PageNumber int    `json:"page_number"`
	Spans      []Span `json:"spans,omitempty"`
}

// Cell is a single table cell addressed by row and column.
type Cell struct {
	RowIndex    int    `json:"row_index"`
	ColumnIndex int    `json:"column_index"`
	Content     string `json:"content"`
}

// Table is a detected table with its cell list and source spans.
type Table struct {
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
	Cells       []Cell `json:"cells"`
	PageNumber  int    `json:"page_number"`
	Spans       []Span `json:"spans,omitempty"`
}

// Figure is a detected figure. Its text content, if any, is recovered
// from the document content via Spans; ID keys the rendered-image fetch
// on the layout collaborator.
type Figure struct {
	ID         string `json:"id,omitempty"`
	PageNumber int    `json:"page_number"`
	Spans      []Span `json:"spans,omitempty"`
}

// Result is the layout engine's output for one document.
type Result struct {
	Content    string      `json:"content"`
	Paragraphs []Paragraph `json:"paragraphs"`
	Tables     []Table     `json:"tables"`
	Figures    []Figure    `json:"figures"`
	ModelID    string      `json:"model_id,omitempty"`
	ResultID   string      `json:"result_id,omitempty"`
}

// Grid materializes the table's cells into a row-major grid. Missing
// cells become empty strings; out-of-range cells are dropped.
func (t *Table) Grid() [][]string {
	if t.RowCount <= 0 || t.ColumnCount <= 0 {
		return nil
	}
	grid := make([][]string, t.RowCount)
	for i := range grid {
		grid[i] = make([]string, t.ColumnCount)
	}
	for _, c := range t.Cells {
		if c.RowIndex < 0 || c.RowIndex >= t.RowCount || c.ColumnIndex < 0 || c.ColumnIndex >= t.ColumnCount {
			continue
		}
		grid[c.RowIndex][c.ColumnIndex] = c.Content
	}
	return grid
}

// SpanIndex records character ranges claimed by tables and figures so
// paragraph text extraction never duplicates tabular or figure content.
type SpanIndex struct {
	spans []Span // sorted by offset, non-overlapping after normalization
}

// NewSpanIndex builds the excluded-offset index from a layout result.
func NewSpanIndex(r *Result) *SpanIndex {
	var all []Span
	for _, t := range r.Tables {
		all = append(all, t.Spans...)
	}
	for _, f := range r.Figures {
		all = append(all, f.Spans...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Offset < all[j].Offset })

	// Coalesce overlapping or adjacent ranges.
	var merged []Span
	for _, s := range all {
		if s.Length <= 0 {
			continue
		}
		if n := len(merged); n > 0 && s.Offset <= merged[n-1].Offset+merged[n-1].Length {
			end := max(merged[n-1].Offset+merged[n-1].Length, s.Offset+s.Length)
			merged[n-1].Length = end - merged[n-1].Offset
			continue
		}
		merged = append(merged, s)
	}
	return &SpanIndex{spans: merged}
}

// Excludes reports whether any part of the given span falls inside an
// excluded range.
func (x *SpanIndex) Excludes(s Span) bool {
	if s.Length <= 0 {
		return false
	}
	i := sort.Search(len(x.spans), func(i int) bool {
		return x.spans[i].Offset+x.spans[i].Length > s.Offset
	})
	return i < len(x.spans) && x.spans[i].Offset < s.Offset+s.Length
}

// ExcludesParagraph reports whether any of the paragraph's spans overlap
// an excluded range.
func (x *SpanIndex) ExcludesParagraph(p *Paragraph) bool {
	for _, s := range p.Spans {
		if x.Excludes(s) {
			return true
		}
	}
	return false
}

// PlainText joins the paragraphs that do not overlap table or figure
// spans, separated by blank lines.
func (r *Result) PlainText() string {
	idx := NewSpanIndex(r)
	var parts []string
	for i := range r.Paragraphs {
		p := &r.Paragraphs[i]
		if idx.ExcludesParagraph(p) {
			continue
		}
		if content := strings.TrimSpace(p.Content); content != "" {
			parts = append(parts, content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// FigureText recovers a figure's text from the document content via its
// spans. Spans falling outside the content are skipped.
func (r *Result) FigureText(f *Figure) string {
	var parts []string
	for _, s := range f.Spans {
		if s.Offset < 0 || s.Length <= 0 || s.Offset+s.Length > len(r.Content) {
			continue
		}
		if piece := strings.TrimSpace(r.Content[s.Offset : s.Offset+s.Length]); piece != "" {
			parts = append(parts, piece)
		}
	}
	return strings.Join(parts, " ")
}
