package chunking

import (
	"strings"

	"github.com/structify/rfpchunk/internal/document"
)

// SectionReport summarizes how well a section's chunks cover its text
// and respect the size bounds.
type SectionReport struct {
	SectionTitle  string  `json:"section_title"`
	ChunkCount    int     `json:"chunk_count"`
	UnderMin      int     `json:"under_min"`
	OverMax       int     `json:"over_max"`
	CoveragePct   float64 `json:"coverage_pct"`
	TotalTokens   int     `json:"total_tokens"`
	AverageTokens float64 `json:"average_tokens"`
}

// ValidateSectionChunks reports size-bound violations and the share of
// the section's non-whitespace characters that survived into chunks.
// Coverage can exceed 100 when verbalized artifacts were appended.
func ValidateSectionChunks(sectionText string, chunks []document.Chunk, limits Limits) SectionReport {
	report := SectionReport{ChunkCount: len(chunks)}
	if len(chunks) > 0 {
		report.SectionTitle = chunks[0].SectionTitle
	}

	chunkChars := 0
	for _, c := range chunks {
		report.TotalTokens += c.TokenCount
		chunkChars += len(strings.Join(strings.Fields(c.Content), ""))
		if c.TokenCount < limits.MinTokens {
			report.UnderMin++
		}
		if c.TokenCount > limits.MaxTokens {
			report.OverMax++
		}
	}
	if len(chunks) > 0 {
		report.AverageTokens = float64(report.TotalTokens) / float64(len(chunks))
	}

	sectionChars := len(strings.Join(strings.Fields(sectionText), ""))
	if sectionChars > 0 {
		report.CoveragePct = float64(chunkChars) / float64(sectionChars) * 100
	}
	return report
}
