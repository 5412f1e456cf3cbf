package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/llm"
	"github.com/structify/rfpchunk/internal/mapping"
	"github.com/structify/rfpchunk/internal/metadata"
	"github.com/structify/rfpchunk/internal/structure"
	"github.com/structify/rfpchunk/internal/verbalize"
)

const fallbackOverlapChars = 100

// Result is the pipeline's output for one document.
type Result struct {
	Chunks            []document.Chunk `json:"chunks"`
	Summary           metadata.Summary `json:"summary"`
	OptimizationStats Stats            `json:"optimization_stats"`
	MappingStats      mapping.Stats    `json:"mapping_stats"`
	SectionReports    []SectionReport  `json:"section_reports,omitempty"`
	AnalysisMethod    string           `json:"analysis_method"`
	SectionCount      int              `json:"section_count"`
	FallbackUsed      bool             `json:"fallback_used"`
	ElapsedMs         int64            `json:"elapsed_ms"`
}

// Pipeline runs the full structure-aware chunking flow for a document.
// Every stage degrades rather than aborts: the pipeline always returns
// a chunk set for non-empty input.
type Pipeline struct {
	analyzer   *structure.Analyzer
	mapper     *mapping.Mapper
	verbalizer *verbalize.Verbalizer
	chunker    *SectionChunker
	generator  *metadata.Generator
	optimizer  *Optimizer
	limits     Limits
	log        *slog.Logger
}

// NewPipeline wires all stages around one collaborator client.
func NewPipeline(completer llm.Completer, limits Limits, charsPerPage int, log *slog.Logger) *Pipeline {
	if limits.MaxTokens <= 0 {
		limits = DefaultLimits()
	}
	return &Pipeline{
		analyzer:   structure.NewAnalyzer(completer, structure.DefaultConfig(), log),
		mapper:     mapping.NewMapper(completer, mapping.Config{CharsPerPage: charsPerPage}, log),
		verbalizer: verbalize.NewVerbalizer(completer, log),
		chunker:    NewSectionChunker(limits),
		generator:  metadata.NewGenerator(completer, metadata.Config{CharsPerPage: charsPerPage}, log),
		optimizer:  NewOptimizer(limits),
		limits:     limits,
		log:        log,
	}
}

// Process chunks one document.
func (p *Pipeline) Process(ctx context.Context, rawText string, tables []document.TableRef, images []document.ImageRef, meta *document.Metadata) (*Result, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("document %s has no text content", meta.DocumentID)
	}
	start := time.Now()

	st, err := p.analyzer.Analyze(ctx, rawText)
	if err == nil {
		err = structure.Validate(st)
	}
	if err != nil {
		p.log.Error("structure analysis unusable, falling back to paragraph chunking",
			"document_id", meta.DocumentID, "error", err)
		return p.fallbackResult(rawText, meta, start), nil
	}

	mapped := p.mapper.Map(ctx, st.Sections, tables, images)

	var chunks []document.Chunk
	var reports []SectionReport
	for i := range mapped.Sections {
		s := &mapped.Sections[i]
		text := sectionText(rawText, s)
		if strings.TrimSpace(text) == "" {
			continue
		}
		text = p.verbalizer.EnhanceSection(ctx, text, s)

		sectionChunks := p.chunker.Chunk(text, s)
		p.generator.Enrich(ctx, sectionChunks, s, meta)
		reports = append(reports, ValidateSectionChunks(text, sectionChunks, p.limits))
		chunks = append(chunks, sectionChunks...)
	}

	optimized, optStats := p.optimizer.Optimize(chunks)

	if err := metadata.Validate(optimized); err != nil {
		p.log.Error("chunk validation failed, falling back to paragraph chunking",
			"document_id", meta.DocumentID, "error", err)
		return p.fallbackResult(rawText, meta, start), nil
	}

	res := &Result{
		Chunks:            optimized,
		Summary:           metadata.Summarize(optimized),
		OptimizationStats: optStats,
		MappingStats:      mapped.Stats,
		SectionReports:    reports,
		AnalysisMethod:    st.AnalysisMethod,
		SectionCount:      len(mapped.Sections),
		ElapsedMs:         time.Since(start).Milliseconds(),
	}
	p.log.Info("document chunked",
		"document_id", meta.DocumentID,
		"sections", res.SectionCount,
		"chunks", len(res.Chunks),
		"method", res.AnalysisMethod,
		"elapsed_ms", res.ElapsedMs)
	return res, nil
}

func sectionText(rawText string, s *document.Section) string {
	start, end := s.StartChar, s.EndChar
	if start < 0 {
		start = 0
	}
	if end > len(rawText) {
		end = len(rawText)
	}
	if start >= end {
		return ""
	}
	return rawText[start:end]
}

// fallbackResult produces overlap-windowed paragraph chunks when the
// structured path cannot. It never consults the collaborator and
// preserves at least the raw text itself.
func (p *Pipeline) fallbackResult(rawText string, meta *document.Metadata, start time.Time) *Result {
	chunks := FallbackChunks(rawText, meta, p.limits)
	return &Result{
		Chunks:         chunks,
		Summary:        metadata.Summarize(chunks),
		AnalysisMethod: "fallback_paragraph",
		SectionCount:   len(chunks),
		FallbackUsed:   true,
		ElapsedMs:      time.Since(start).Milliseconds(),
	}
}

// FallbackChunks windows the raw text into target-sized paragraph
// groups with a fixed character overlap between neighbors. All chunks
// are typed general with zeroed multimodal fields.
func FallbackChunks(rawText string, meta *document.Metadata, limits Limits) []document.Chunk {
	paragraphs := splitParagraphs(rawText)

	var pieces []string
	var current strings.Builder
	for _, para := range paragraphs {
		if current.Len() > 0 &&
			document.EstimateTokens(current.String())+document.EstimateTokens(para) > limits.TargetTokens {
			pieces = append(pieces, current.String())
			tail := overlapTail(current.String(), fallbackOverlapChars)
			current.Reset()
			current.WriteString(tail)
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	if strings.TrimSpace(current.String()) != "" {
		pieces = append(pieces, current.String())
	}

	chunks := make([]document.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		title := fmt.Sprintf("Document Section %d", i+1)
		content := strings.TrimSpace(piece)
		chunks = append(chunks, document.Chunk{
			ChunkID:          metadata.ChunkID(meta.DocumentID, title, i+1),
			Content:          content,
			SectionType:      document.SectionGeneral,
			SectionTitle:     title,
			SectionHierarchy: "0",
			PageNumber:       1,
			ChunkNumber:      i + 1,
			TotalInSection:   len(pieces),
			TokenCount:       document.EstimateTokens(content),
			CharCount:        len(content),
			DomainCategory:   "general",
			ServiceCategory:  "general",
			Confidence:       "low",
			ContentType:      document.ContentText,
			DocumentID:       meta.DocumentID,
			DocumentTitle:    meta.DocumentTitle,
			ClientName:       meta.ClientName,
			VendorName:       meta.VendorName,
			ProjectSite:      meta.ProjectSite,
			SubmissionDate:   meta.SubmissionDate,
			ProjectValue:     meta.ProjectValue,
		})
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		paragraphs = []string{text}
	}
	return paragraphs
}

// overlapTail returns the last n characters of text, cut forward to a
// word boundary so the overlap never starts mid-word.
func overlapTail(text string, n int) string {
	if len(text) <= n {
		return text
	}
	tail := text[len(text)-n:]
	if idx := strings.IndexAny(tail, " \n\t"); idx >= 0 {
		tail = tail[idx+1:]
	}
	return strings.TrimSpace(tail)
}
