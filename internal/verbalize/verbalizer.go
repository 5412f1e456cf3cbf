// Package verbalize turns tables and figures into searchable prose so
// their information survives text-only retrieval. Every path has a
// deterministic basic rendering; the collaborator only ever upgrades it.
package verbalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/llm"
)

const (
	// enhancedMinRatio rejects a collaborator table description shorter
	// than this share of the basic one.
	enhancedMinRatio = 0.8

	maxListedColumns = 6
	maxSampleRows    = 3
	maxSampleCols    = 4
	maxNumericSums   = 3

	// Bounds on the grid sample sent with the enhancement prompt.
	samplePromptRows = 5
	samplePromptCols = 5

	shortImageText = 50
	minImageDesc   = 20
)

// Verbalizer renders multimodal artifacts as prose.
type Verbalizer struct {
	llm   llm.Completer
	retry llm.RetryPolicy
	log   *slog.Logger
}

func NewVerbalizer(completer llm.Completer, log *slog.Logger) *Verbalizer {
	return &Verbalizer{
		llm:   completer,
		retry: llm.DefaultRetryPolicy(),
		log:   log,
	}
}

// Table renders a table as prose. Tables with more than two rows and
// columns get a collaborator attempt; the result is kept only when it
// is at least as informative as the basic rendering.
func (v *Verbalizer) Table(ctx context.Context, t *document.TableRef) string {
	basic := basicTableDescription(t)
	if len(t.Grid) <= 2 || gridColumns(t.Grid) <= 2 {
		return basic
	}

	enhanced, err := v.enhancedTable(ctx, t)
	if err != nil {
		v.log.Warn("table verbalization fell back to basic", "table", t.Index, "error", err)
		return basic
	}
	if float64(len(enhanced)) < float64(len(basic))*enhancedMinRatio {
		return basic
	}
	return enhanced
}

// Image renders a figure as prose using its recovered text.
func (v *Verbalizer) Image(ctx context.Context, img *document.ImageRef) string {
	text := strings.TrimSpace(img.Content)
	if text == "" {
		return "[FIGURE]: Image with no extractable text content"
	}
	if len(text) < shortImageText {
		return fmt.Sprintf("[FIGURE]: %s", text)
	}

	enhanced, err := v.enhancedImage(ctx, text)
	if err != nil || len(strings.TrimSpace(enhanced)) <= minImageDesc {
		if err != nil {
			v.log.Warn("figure verbalization fell back to basic", "figure", img.Index, "error", err)
		}
		return fmt.Sprintf("[FIGURE]: %s", text)
	}
	return fmt.Sprintf("[FIGURE]: %s", strings.TrimSpace(enhanced))
}

// EnhanceSection appends verbalizations of the section's artifacts to
// its text, ordered by page number then extraction index, separated by
// blank lines. The original text is never modified.
func (v *Verbalizer) EnhanceSection(ctx context.Context, text string, s *document.Section) string {
	type artifact struct {
		page, index int
		render      func() string
	}

	var artifacts []artifact
	for i := range s.Tables {
		t := &s.Tables[i]
		artifacts = append(artifacts, artifact{
			page: t.PageNumber, index: t.Index,
			render: func() string { return v.Table(ctx, t) },
		})
	}
	for i := range s.Images {
		img := &s.Images[i]
		artifacts = append(artifacts, artifact{
			page: img.PageNumber, index: img.Index,
			render: func() string { return v.Image(ctx, img) },
		})
	}
	if len(artifacts) == 0 {
		return text
	}

	sort.SliceStable(artifacts, func(i, j int) bool {
		if artifacts[i].page != artifacts[j].page {
			return artifacts[i].page < artifacts[j].page
		}
		return artifacts[i].index < artifacts[j].index
	})

	parts := []string{strings.TrimRight(text, "\n")}
	for _, a := range artifacts {
		parts = append(parts, a.render())
	}
	return strings.Join(parts, "\n\n")
}

// basicTableDescription is the deterministic rendering: shape, column
// names, small-table samples, and numeric column sums.
func basicTableDescription(t *document.TableRef) string {
	if len(t.Grid) == 0 {
		return "[TABLE]: Empty table"
	}

	rows := len(t.Grid)
	cols := gridColumns(t.Grid)

	var b strings.Builder
	fmt.Fprintf(&b, "[TABLE]: Table with %d rows and %d columns", rows, cols)

	header := t.Grid[0]
	if cols <= maxListedColumns && len(header) > 0 {
		fmt.Fprintf(&b, ". Columns: %s", strings.Join(header, ", "))
	}

	if rows <= maxSampleRows && cols <= maxSampleCols {
		b.WriteString(". Data:")
		for _, row := range t.Grid[1:] {
			fmt.Fprintf(&b, " [%s]", strings.Join(row, ", "))
		}
	}

	for _, cs := range numericColumnSums(t.Grid) {
		fmt.Fprintf(&b, ". Total %s: %s", cs.name, formatSum(cs.sum))
	}
	return b.String()
}

func gridColumns(grid [][]string) int {
	cols := 0
	for _, row := range grid {
		if len(row) > cols {
			cols = len(row)
		}
	}
	return cols
}

type columnSum struct {
	name string
	sum  float64
}

// numericColumnSums sums up to maxNumericSums columns whose data cells
// all parse as numbers, in column order. All-zero columns are skipped.
func numericColumnSums(grid [][]string) []columnSum {
	if len(grid) < 2 {
		return nil
	}
	header := grid[0]
	var sums []columnSum
	for col := 0; col < len(header) && len(sums) < maxNumericSums; col++ {
		sum := 0.0
		numeric := true
		seen := 0
		for _, row := range grid[1:] {
			if col >= len(row) {
				continue
			}
			cell := cleanNumeric(row[col])
			if cell == "" {
				continue
			}
			val, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				numeric = false
				break
			}
			sum += val
			seen++
		}
		if numeric && seen > 0 && sum != 0 {
			sums = append(sums, columnSum{name: header[col], sum: sum})
		}
	}
	return sums
}

// tableSampleForLLM renders a bounded sample of the grid for the
// enhancement prompt: the header plus the first sample rows, and for
// wide tables only the first column, up to three numeric columns, and
// the last column.
func tableSampleForLLM(grid [][]string) string {
	if len(grid) == 0 {
		return ""
	}
	cols := sampleColumns(grid)
	rows := grid
	if len(rows) > samplePromptRows+1 {
		rows = rows[:samplePromptRows+1]
	}

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(cols))
		for _, c := range cols {
			if c < len(row) {
				cells = append(cells, strings.TrimSpace(row[c]))
			} else {
				cells = append(cells, "")
			}
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}

func sampleColumns(grid [][]string) []int {
	total := gridColumns(grid)
	if total <= maxListedColumns {
		cols := make([]int, total)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}

	cols := []int{0}
	for c := 1; c < total && len(cols) < 1+maxNumericSums; c++ {
		if isNumericColumn(grid, c) {
			cols = append(cols, c)
		}
	}
	if last := total - 1; len(cols) < samplePromptCols && cols[len(cols)-1] != last {
		cols = append(cols, last)
	}
	return cols
}

func isNumericColumn(grid [][]string, col int) bool {
	seen := 0
	for _, row := range grid[1:] {
		if col >= len(row) {
			continue
		}
		cell := cleanNumeric(row[col])
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err != nil {
			return false
		}
		seen++
	}
	return seen > 0
}

func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "%", "")
	return s
}

func formatSum(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

const tableSystemMessage = `You convert RFP tables into clear searchable prose.
Describe what the table contains, notable values, and totals.
Start your answer with "[TABLE]: " and write plain sentences, no markdown.`

func (v *Verbalizer) enhancedTable(ctx context.Context, t *document.TableRef) (string, error) {
	prompt := fmt.Sprintf("Convert this table into a prose description:\n\nTable structure: %d rows, %d columns\n\nSample data:\n%s",
		len(t.Grid), gridColumns(t.Grid), tableSampleForLLM(t.Grid))
	resp, err := llm.Retry(ctx, v.retry, func(ctx context.Context) (string, error) {
		return v.llm.Complete(ctx, prompt, tableSystemMessage)
	})
	if err != nil {
		return "", err
	}
	resp = strings.TrimSpace(resp)
	if !strings.HasPrefix(resp, "[TABLE]:") {
		resp = "[TABLE]: " + resp
	}
	return resp, nil
}

const imageSystemMessage = `You describe figures from RFP documents using the text extracted from them.
Summarize what the figure shows in one or two sentences of plain prose.`

func (v *Verbalizer) enhancedImage(ctx context.Context, extractedText string) (string, error) {
	prompt := fmt.Sprintf("Describe the figure this text was extracted from:\n\n%s", extractedText)
	return llm.Retry(ctx, v.retry, func(ctx context.Context) (string, error) {
		return v.llm.Complete(ctx, prompt, imageSystemMessage)
	})
}
