package chunking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/structify/rfpchunk/internal/document"
)

func TestValidateSectionChunks_FullCoverage(t *testing.T) {
	text := sentences(40)
	chunks := []document.Chunk{chunkOf("scope", text, 1)}

	report := ValidateSectionChunks(text, chunks, DefaultLimits())
	assert.Equal(t, "scope", report.SectionTitle)
	assert.Equal(t, 1, report.ChunkCount)
	assert.Equal(t, 0, report.UnderMin)
	assert.Equal(t, 0, report.OverMax)
	assert.InDelta(t, 100.0, report.CoveragePct, 0.5)
}

func TestValidateSectionChunks_FlagsSizeViolations(t *testing.T) {
	report := ValidateSectionChunks(sentences(40), []document.Chunk{
		chunkOf("s", sentences(5), 1),   // under min
		chunkOf("s", sentences(150), 2), // over max
	}, DefaultLimits())

	assert.Equal(t, 1, report.UnderMin)
	assert.Equal(t, 1, report.OverMax)
	assert.Greater(t, report.AverageTokens, 0.0)
}

func TestValidateSectionChunks_Empty(t *testing.T) {
	report := ValidateSectionChunks("some text", nil, DefaultLimits())
	assert.Equal(t, 0, report.ChunkCount)
	assert.Equal(t, 0.0, report.CoveragePct)
	assert.Equal(t, 0.0, report.AverageTokens)
}
