package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/structify/rfpchunk/internal/document"
)

const (
	// orphanHeaderMax is the most trailing content a stranded heading
	// may carry before the heading and that content are stripped.
	orphanHeaderMax = 50

	// Quality floors: chunks below any of these carry no retrievable
	// information and are dropped.
	minQualityChars   = 50
	minQualityWords   = 10
	minSentenceLength = 10
)

// SizeStats describes the token-size distribution of a chunk set.
type SizeStats struct {
	MinTokens int     `json:"min_tokens"`
	MaxTokens int     `json:"max_tokens"`
	AvgTokens float64 `json:"avg_tokens"`
}

// Stats compares the chunk set before and after optimization.
type Stats struct {
	ChunksBefore int       `json:"chunks_before"`
	ChunksAfter  int       `json:"chunks_after"`
	Merged       int       `json:"merged"`
	Split        int       `json:"split"`
	Dropped      int       `json:"dropped"`
	SizeBefore   SizeStats `json:"size_before"`
	SizeAfter    SizeStats `json:"size_after"`
}

// Optimizer normalizes a chunk set: repaired boundaries, sizes balanced
// toward the limits, quality floors enforced, and the whole list
// renumbered sequentially.
type Optimizer struct {
	limits Limits
}

func NewOptimizer(limits Limits) *Optimizer {
	if limits.MaxTokens <= 0 {
		limits = DefaultLimits()
	}
	return &Optimizer{limits: limits}
}

// Optimize rewrites the chunk set in document order, returning the new set
// and the run's statistics. Chunks are replaced wholesale; token and
// char counts are always recomputed from content.
func (o *Optimizer) Optimize(chunks []document.Chunk) ([]document.Chunk, Stats) {
	stats := Stats{ChunksBefore: len(chunks), SizeBefore: sizeStats(chunks)}

	chunks = o.repairBoundaries(chunks)
	chunks = o.mergeSmall(chunks, &stats)
	chunks = o.splitLarge(chunks, &stats)
	chunks = o.enforceQuality(chunks, &stats)
	chunks = renumber(chunks)

	stats.ChunksAfter = len(chunks)
	stats.SizeAfter = sizeStats(chunks)
	return chunks, stats
}

// repairBoundaries strips orphan trailing headers, trims dangling
// sentence fragments, and collapses runaway whitespace.
func (o *Optimizer) repairBoundaries(chunks []document.Chunk) []document.Chunk {
	for i := range chunks {
		content := chunks[i].Content
		content = removeOrphanedHeaders(content)
		content = trimDanglingFragment(content)
		content = collapseWhitespace(content)
		chunks[i] = replaceContent(chunks[i], content)
	}
	return chunks
}

// removeOrphanedHeaders drops a heading stranded in the last two lines
// when less than orphanHeaderMax characters of content follow it. The
// content that belongs to the heading lives in the next chunk already.
func removeOrphanedHeaders(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	tail := lines[len(lines)-2:]
	for i, line := range tail {
		if !isLikelyHeader(strings.TrimSpace(line)) {
			continue
		}
		rest := strings.TrimSpace(strings.Join(tail[i+1:], "\n"))
		if len(rest) < orphanHeaderMax {
			return strings.Join(lines[:len(lines)-(len(tail)-i)], "\n")
		}
	}
	return content
}

var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.\d*\.?\s+[A-Z]`),
	regexp.MustCompile(`^[A-Z][A-Z\s]{5,}$`),
	regexp.MustCompile(`^[A-Z][^.!?]*:$`),
	regexp.MustCompile(`^\([a-z]\)\s*[A-Z]`),
}

// isLikelyHeader reports whether a line reads as a section heading:
// known numbering/caps/colon patterns, or a short unterminated line in
// mostly title case.
func isLikelyHeader(line string) bool {
	if line == "" {
		return false
	}
	for _, re := range headerPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	if len(line) <= 5 || len(line) >= 80 {
		return false
	}
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") || strings.HasSuffix(line, ";") {
		return false
	}
	words := strings.Fields(line)
	if len(words) == 0 || !startsUpper(words[0]) {
		return false
	}
	caps := 0
	for _, w := range words {
		if startsUpper(w) {
			caps++
		}
	}
	return float64(caps)/float64(len(words)) > 0.6
}

func startsUpper(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// trimDanglingFragment removes an unterminated trailing fragment when a
// complete sentence precedes it; otherwise it closes the text with a
// period so the chunk reads as finished prose.
func trimDanglingFragment(content string) string {
	trimmed := strings.TrimRight(content, " \n\t")
	if trimmed == "" {
		return trimmed
	}
	last := trimmed[len(trimmed)-1]
	if last == '.' || last == '!' || last == '?' || last == ':' {
		return trimmed
	}
	if idx := strings.LastIndexAny(trimmed, ".!?"); idx > 0 {
		return trimmed[:idx+1]
	}
	return trimmed + "."
}

var (
	blankLineRuns  = regexp.MustCompile(`\n\s*\n\s*\n+`)
	horizontalRuns = regexp.MustCompile(`[ \t]+`)
)

func collapseWhitespace(content string) string {
	content = blankLineRuns.ReplaceAllString(content, "\n\n")
	return horizontalRuns.ReplaceAllString(content, " ")
}

// mergeSmall merges an under-minimum chunk with its next neighbor when
// the combined size stays within the maximum, then moves past the pair.
func (o *Optimizer) mergeSmall(chunks []document.Chunk, stats *Stats) []document.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}
	var out []document.Chunk
	i := 0
	for i < len(chunks) {
		current := chunks[i]
		if current.TokenCount < o.limits.MinTokens && i+1 < len(chunks) &&
			current.TokenCount+chunks[i+1].TokenCount <= o.limits.MaxTokens {
			out = append(out, mergeChunks(current, chunks[i+1]))
			stats.Merged++
			i += 2
			continue
		}
		out = append(out, current)
		i++
	}
	return out
}

// mergeChunks keeps the first chunk's identity and combines the
// multimodal fields.
func mergeChunks(a, b document.Chunk) document.Chunk {
	merged := replaceContent(a, a.Content+"\n\n"+b.Content)
	merged.HasTableContent = a.HasTableContent || b.HasTableContent
	merged.HasImageContent = a.HasImageContent || b.HasImageContent
	merged.TableCount = a.TableCount + b.TableCount
	merged.ImageCount = a.ImageCount + b.ImageCount
	merged.ContentType = document.DeriveContentType(merged.HasTableContent, merged.HasImageContent)
	return merged
}

// splitLarge splits any chunk over the maximum at the boundaries
// FindBoundaries reports, accumulating pieces toward the target.
func (o *Optimizer) splitLarge(chunks []document.Chunk, stats *Stats) []document.Chunk {
	var out []document.Chunk
	for _, c := range chunks {
		if c.TokenCount <= o.limits.MaxTokens {
			out = append(out, c)
			continue
		}
		pieces := splitByBoundaries(c.Content, o.limits.TargetTokens)
		if len(pieces) == 1 {
			out = append(out, c)
			continue
		}
		stats.Split++
		for n, piece := range pieces {
			part := replaceContent(c, piece)
			part.ChunkID = fmt.Sprintf("%s_split_%d", c.ChunkID, n+1)
			out = append(out, part)
		}
	}
	return out
}

// enforceQuality drops chunks that carry no retrievable information.
func (o *Optimizer) enforceQuality(chunks []document.Chunk, stats *Stats) []document.Chunk {
	var out []document.Chunk
	for _, c := range chunks {
		if !meetsQualityFloor(c.Content) {
			stats.Dropped++
			continue
		}
		out = append(out, c)
	}
	return out
}

func meetsQualityFloor(content string) bool {
	if len(content) < minQualityChars {
		return false
	}
	if len(strings.Fields(content)) < minQualityWords {
		return false
	}
	for _, s := range strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if len(strings.TrimSpace(s)) > minSentenceLength {
			return true
		}
	}
	return false
}

// renumber assigns chunk numbers sequentially across the whole list and
// rebuilds each id from the prefix before the final "_chunk_" marker,
// so split markers and stale numbers disappear and every id is unique.
// Section totals are recounted per section title.
func renumber(chunks []document.Chunk) []document.Chunk {
	totals := make(map[string]int)
	for _, c := range chunks {
		totals[c.SectionTitle]++
	}

	for i := range chunks {
		c := &chunks[i]
		c.ChunkNumber = i + 1
		c.TotalInSection = totals[c.SectionTitle]
		c.ChunkID = fmt.Sprintf("%s_chunk_%02d", idPrefix(c.ChunkID), c.ChunkNumber)
	}
	return chunks
}

func idPrefix(id string) string {
	if idx := strings.LastIndex(id, "_chunk_"); idx > 0 {
		return id[:idx]
	}
	return id
}

func sizeStats(chunks []document.Chunk) SizeStats {
	if len(chunks) == 0 {
		return SizeStats{}
	}
	s := SizeStats{MinTokens: chunks[0].TokenCount, MaxTokens: chunks[0].TokenCount}
	total := 0
	for _, c := range chunks {
		total += c.TokenCount
		s.MinTokens = min(s.MinTokens, c.TokenCount)
		s.MaxTokens = max(s.MaxTokens, c.TokenCount)
	}
	s.AvgTokens = float64(total) / float64(len(chunks))
	return s
}

func replaceContent(c document.Chunk, content string) document.Chunk {
	content = strings.TrimSpace(content)
	c.Content = content
	c.TokenCount = document.EstimateTokens(content)
	c.CharCount = len(content)
	return c
}
