package chunking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structify/rfpchunk/internal/document"
)

func sentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "The contractor shall complete requirement number %d per the schedule. ", i)
	}
	return strings.TrimSpace(b.String())
}

func chunkOf(section, content string, number int) document.Chunk {
	content = strings.TrimSpace(content)
	return document.Chunk{
		ChunkID:      fmt.Sprintf("%s_chunk_%02d", section, number),
		Content:      content,
		SectionTitle: section,
		SectionType:  document.SectionGeneral,
		ChunkNumber:  number,
		TokenCount:   document.EstimateTokens(content),
		CharCount:    len(content),
	}
}

func TestOptimize_MergesSmallChunkWithNeighbor(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("scope", sentences(5), 1), // under min, pairs with the next
		chunkOf("scope", sentences(5), 2),
		chunkOf("scope", sentences(20), 3),
	}

	out, stats := o.Optimize(chunks)
	require.Len(t, out, 2)
	assert.Equal(t, 1, stats.Merged)
	assert.Equal(t, 1, out[0].ChunkNumber)
	assert.Equal(t, 2, out[1].ChunkNumber)
}

func TestOptimize_MergesAcrossSections(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("scope", sentences(8), 1),
		chunkOf("pricing", sentences(8), 1),
	}

	out, stats := o.Optimize(chunks)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.Merged)
	// The merged chunk keeps the first chunk's section identity.
	assert.Equal(t, "scope", out[0].SectionTitle)
	assert.Contains(t, out[0].Content, "requirement number 7")
}

func TestOptimize_NumbersChunksSequentiallyAcrossSections(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("intro", sentences(30), 1),
		chunkOf("scope", sentences(30), 1),
		chunkOf("scope", sentences(30), 2),
	}

	out, _ := o.Optimize(chunks)
	require.Len(t, out, 3)
	for i, c := range out {
		assert.Equal(t, i+1, c.ChunkNumber)
		assert.True(t, strings.HasSuffix(c.ChunkID, fmt.Sprintf("_chunk_%02d", i+1)), c.ChunkID)
	}
	assert.Equal(t, 1, out[0].TotalInSection)
	assert.Equal(t, 2, out[1].TotalInSection)
	assert.Equal(t, 2, out[2].TotalInSection)
}

func TestOptimize_SplitsOversizedChunk(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{chunkOf("reqs", sentences(200), 1)} // ~2600 tokens

	out, stats := o.Optimize(chunks)
	require.Greater(t, len(out), 1)
	assert.Equal(t, 1, stats.Split)
	for _, c := range out {
		assert.LessOrEqual(t, c.TokenCount, 1500)
		assert.NotContains(t, c.ChunkID, "_split_")
	}
}

func TestOptimize_SplitsAtParagraphBoundaries(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	paragraphs := make([]string, 5)
	for i := range paragraphs {
		paragraphs[i] = sentences(40) // ~530 tokens each
	}
	chunks := []document.Chunk{chunkOf("reqs", strings.Join(paragraphs, "\n\n"), 1)}

	out, stats := o.Optimize(chunks)
	require.Len(t, out, 5)
	assert.Equal(t, 1, stats.Split)
	for _, c := range out {
		assert.NotContains(t, c.Content, "\n\n")
	}
}

func TestOptimize_DropsLowQualityChunks(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("b", sentences(30), 1),
		chunkOf("a", "Too short.", 1),
	}

	out, stats := o.Optimize(chunks)
	require.Len(t, out, 1)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, "b", out[0].SectionTitle)
}

func TestOptimize_SecondPassIsNoOp(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("scope", sentences(5), 1),
		chunkOf("scope", sentences(25), 2),
		chunkOf("reqs", sentences(180), 1),
		chunkOf("pricing", sentences(40), 1),
	}

	once, _ := o.Optimize(chunks)
	copied := append([]document.Chunk{}, once...)
	twice, stats2 := o.Optimize(copied)

	assert.Equal(t, 0, stats2.Merged)
	assert.Equal(t, 0, stats2.Split)
	assert.Equal(t, 0, stats2.Dropped)
	assert.Equal(t, once, twice)
}

func TestOptimize_RenumbersAndRegeneratesIDs(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("doc1_scope", sentences(30), 7), // stale numbering
		chunkOf("doc1_scope", sentences(30), 9),
	}

	out, _ := o.Optimize(chunks)
	require.Len(t, out, 2)
	assert.Equal(t, "doc1_scope_chunk_01", out[0].ChunkID)
	assert.Equal(t, "doc1_scope_chunk_02", out[1].ChunkID)
	assert.Equal(t, 1, out[0].ChunkNumber)
	assert.Equal(t, 2, out[1].ChunkNumber)
	assert.Equal(t, 2, out[0].TotalInSection)
}

func TestOptimize_CountsAlwaysMatchContent(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("scope", sentences(5), 1),
		chunkOf("scope", sentences(25), 2),
		chunkOf("reqs", sentences(200), 1),
	}

	out, _ := o.Optimize(chunks)
	for _, c := range out {
		assert.Equal(t, document.EstimateTokens(c.Content), c.TokenCount)
		assert.Equal(t, len(c.Content), c.CharCount)
	}
}

func TestOptimize_ReportsSizeDistributions(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("a", sentences(30), 1), // 400 tokens
		chunkOf("b", sentences(60), 1), // 800 tokens
	}

	_, stats := o.Optimize(chunks)
	assert.Equal(t, 400, stats.SizeBefore.MinTokens)
	assert.Equal(t, 800, stats.SizeBefore.MaxTokens)
	assert.InDelta(t, 600, stats.SizeBefore.AvgTokens, 1)
	assert.Equal(t, stats.SizeBefore, stats.SizeAfter)
}

func TestOptimize_StripsOrphanHeaderFromFinalChunk(t *testing.T) {
	o := NewOptimizer(DefaultLimits())
	chunks := []document.Chunk{
		chunkOf("scope", sentences(30)+"\n4.2 Payment Terms", 1),
	}

	out, _ := o.Optimize(chunks)
	require.Len(t, out, 1)
	assert.NotContains(t, out[0].Content, "4.2 Payment Terms")
}

func TestRemoveOrphanedHeaders(t *testing.T) {
	assert.Equal(t, "Body sentence one.",
		removeOrphanedHeaders("Body sentence one.\n2.3 Next Topic"))
	assert.Equal(t, "Body sentence one.",
		removeOrphanedHeaders("Body sentence one.\nDeliverables:\ntiny"))

	kept := "Body.\nDeliverables:\n" + sentences(2)
	assert.Equal(t, kept, removeOrphanedHeaders(kept))

	assert.Equal(t, "Only one line", removeOrphanedHeaders("Only one line"))
}

func TestIsLikelyHeader(t *testing.T) {
	assert.True(t, isLikelyHeader("2.3 Next Topic"))
	assert.True(t, isLikelyHeader("TECHNICAL REQUIREMENTS"))
	assert.True(t, isLikelyHeader("Deliverables:"))
	assert.True(t, isLikelyHeader("(a) Submittal Schedule"))
	assert.True(t, isLikelyHeader("Project Delivery Approach"))

	assert.False(t, isLikelyHeader(""))
	assert.False(t, isLikelyHeader("This trailing line is a full sentence with a period."))
	assert.False(t, isLikelyHeader("the contractor shall provide"))
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", collapseWhitespace("a\t\tb  c"))
	assert.Equal(t, "x\n\ny", collapseWhitespace("x\n\n\n\ny"))
}

func TestTrimDanglingFragment(t *testing.T) {
	assert.Equal(t, "Complete sentence.", trimDanglingFragment("Complete sentence."))
	assert.Equal(t, "Complete sentence.", trimDanglingFragment("Complete sentence. dangling frag"))
	assert.Equal(t, "No terminal punctuation at all.", trimDanglingFragment("No terminal punctuation at all"))
	assert.Equal(t, "", trimDanglingFragment("   "))
}

func TestMeetsQualityFloor(t *testing.T) {
	assert.True(t, meetsQualityFloor(sentences(3)))
	assert.False(t, meetsQualityFloor("short"))
	assert.False(t, meetsQualityFloor(strings.Repeat("ab cd. ef gh. ij kl. ", 3))) // no sentence over 10 chars
}
