package chunking

import (
	"fmt"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
)

// SectionChunker splits one section's enhanced text into chunks.
type SectionChunker struct {
	limits Limits
}

func NewSectionChunker(limits Limits) *SectionChunker {
	if limits.MaxTokens <= 0 {
		limits = DefaultLimits()
	}
	return &SectionChunker{limits: limits}
}

// Chunk splits text according to the section type's strategy. The
// section stays whole when it fits the strategy target or its type
// forbids splitting; otherwise segments between boundaries are
// accumulated greedily up to the target. Chunk numbers are 1-based
// within the section.
func (sc *SectionChunker) Chunk(text string, s *document.Section) []document.Chunk {
	strategy := StrategyFor(s.Type)

	if document.EstimateTokens(text) <= strategy.TargetTokens || !strategy.AllowSplit {
		return []document.Chunk{sc.newChunk(text, s, 1, 1)}
	}

	pieces := splitByBoundaries(text, strategy.TargetTokens)
	chunks := make([]document.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, sc.newChunk(piece, s, i+1, len(pieces)))
	}
	return chunks
}

// splitByBoundaries greedily accumulates boundary-delimited segments
// until adding the next one would exceed targetTokens.
func splitByBoundaries(text string, targetTokens int) []string {
	boundaries := FindBoundaries(text)
	if len(boundaries) == 0 {
		return []string{text}
	}

	segments := make([]string, 0, len(boundaries)+1)
	prev := 0
	for _, b := range boundaries {
		segments = append(segments, text[prev:b])
		prev = b
	}
	segments = append(segments, text[prev:])

	var pieces []string
	var current strings.Builder
	currentTokens := 0
	for _, seg := range segments {
		segTokens := document.EstimateTokens(seg)
		if currentTokens > 0 && currentTokens+segTokens > targetTokens {
			pieces = append(pieces, current.String())
			current.Reset()
			currentTokens = 0
		}
		current.WriteString(seg)
		currentTokens += segTokens
	}
	if current.Len() > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

func (sc *SectionChunker) newChunk(content string, s *document.Section, number, total int) document.Chunk {
	trimmed := strings.TrimSpace(content)
	return document.Chunk{
		ChunkID:        fmt.Sprintf("%s_chunk_%02d", sanitizeTitle(s.Title), number),
		Content:        trimmed,
		SectionType:    s.Type,
		SectionTitle:   s.Title,
		ChunkNumber:    number,
		TotalInSection: total,
		TokenCount:     document.EstimateTokens(trimmed),
		CharCount:      len(trimmed),

		HasTableContent: s.HasTables(),
		HasImageContent: s.HasImages(),
		TableCount:      len(s.Tables),
		ImageCount:      len(s.Images),
		ContentType:     document.DeriveContentType(s.HasTables(), s.HasImages()),
	}
}

func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if len(s) > 30 {
		s = s[:30]
	}
	if s == "" {
		s = "section"
	}
	return s
}
