package structure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/structify/rfpchunk/internal/document"
)

// fakeCompleter scripts collaborator behavior per call.
type fakeCompleter struct {
	pingErr     error
	jsonReplies []string
	jsonErr     error
	jsonCalls   int
	textReply   string
	textErr     error
}

func (f *fakeCompleter) Complete(context.Context, string, string) (string, error) {
	return f.textReply, f.textErr
}

func (f *fakeCompleter) CompleteJSON(context.Context, string, string) (json.RawMessage, error) {
	if f.jsonErr != nil {
		return nil, f.jsonErr
	}
	if f.jsonCalls >= len(f.jsonReplies) {
		return nil, errors.New("no scripted reply")
	}
	reply := f.jsonReplies[f.jsonCalls]
	f.jsonCalls++
	return json.RawMessage(reply), nil
}

func (f *fakeCompleter) Ping(context.Context) error { return f.pingErr }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleDocument() string {
	var b strings.Builder
	b.WriteString("1.0 INTRODUCTION\n\n")
	b.WriteString(strings.Repeat("This project covers roadway improvements. ", 10))
	b.WriteString("\n\n2.0 SCOPE OF WORK\n\n")
	b.WriteString(strings.Repeat("The contractor shall perform grading and paving work. ", 10))
	b.WriteString("\n\n3.0 PRICING\n\n")
	b.WriteString(strings.Repeat("Unit prices shall include labor and materials cost. ", 10))
	return b.String()
}

func TestAnalyze_UsesCollaboratorSections(t *testing.T) {
	text := sampleDocument()
	reply := fmt.Sprintf(`{"sections":[
		{"title":"1.0 INTRODUCTION","hierarchy_level":1,"start_char":0,"end_char":%d,"content_preview":"intro"},
		{"title":"2.0 SCOPE OF WORK","hierarchy_level":1,"start_char":%d,"end_char":%d,"content_preview":"scope"}
	]}`, len(text)/2, len(text)/2, len(text))

	fake := &fakeCompleter{jsonReplies: []string{reply}, textReply: "introduction"}
	a := NewAnalyzer(fake, DefaultConfig(), testLogger())

	got, err := a.Analyze(context.Background(), text)
	require.NoError(t, err)
	assert.Equal(t, "llm", got.AnalysisMethod)
	require.Len(t, got.Sections, 2)
	assert.Equal(t, "1.0 INTRODUCTION", got.Sections[0].Title)
	assert.Equal(t, document.SectionIntroduction, got.Sections[0].Type)
	require.NoError(t, Validate(got))
}

func TestAnalyze_FallsBackWhenUnreachable(t *testing.T) {
	fake := &fakeCompleter{pingErr: errors.New("connection refused")}
	a := NewAnalyzer(fake, DefaultConfig(), testLogger())

	got, err := a.Analyze(context.Background(), sampleDocument())
	require.NoError(t, err)
	assert.Equal(t, "fallback_regex", got.AnalysisMethod)
	assert.NotEmpty(t, got.Sections)
	require.NoError(t, Validate(got))
}

func TestAnalyze_WindowFailureDegradesToSyntheticSection(t *testing.T) {
	fake := &fakeCompleter{jsonErr: errors.New("boom"), textReply: "general"}
	a := NewAnalyzer(fake, DefaultConfig(), testLogger())

	got, err := a.Analyze(context.Background(), sampleDocument())
	require.NoError(t, err)
	require.Len(t, got.Sections, 1)
	assert.Equal(t, "Complete Document", got.Sections[0].Title)
	assert.Equal(t, 0, got.Sections[0].StartChar)
	assert.Equal(t, len(sampleDocument()), got.Sections[0].EndChar)
}

func TestAnalyze_EmptyTextFails(t *testing.T) {
	a := NewAnalyzer(&fakeCompleter{}, DefaultConfig(), testLogger())
	_, err := a.Analyze(context.Background(), "   \n  ")
	assert.Error(t, err)
}

func TestSplitWindows_RespectsTokenBound(t *testing.T) {
	para := strings.Repeat("word ", 100) // ~133 tokens each
	text := strings.Repeat(para+"\n\n", 40)

	windows := splitWindows(text, 1000)
	require.Greater(t, len(windows), 1)

	var rebuilt strings.Builder
	for _, w := range windows {
		assert.LessOrEqual(t, document.EstimateTokens(w.text), 1000+200)
		assert.Equal(t, w.text, text[w.offset:w.offset+len(w.text)])
		rebuilt.WriteString(w.text)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestRemoveDuplicates_FirstSeenWins(t *testing.T) {
	sections := []document.Section{
		{Title: "A", StartChar: 0, EndChar: 100},
		{Title: "B", StartChar: 10, EndChar: 90},  // 100% of own length inside A
		{Title: "C", StartChar: 95, EndChar: 200}, // only 5/105 overlap
	}
	kept := removeDuplicates(sections)
	require.Len(t, kept, 2)
	assert.Equal(t, "A", kept[0].Title)
	assert.Equal(t, "C", kept[1].Title)
}

func TestEnsureCoverage_FillsGaps(t *testing.T) {
	text := strings.Repeat("x", 1000)
	sections := []document.Section{
		{Title: "Mid", StartChar: 400, EndChar: 600, Type: document.SectionGeneral},
	}
	complete := ensureCoverage(sections, text, 100)
	require.Len(t, complete, 3)
	assert.Equal(t, "Content Section 1", complete[0].Title)
	assert.Equal(t, 0, complete[0].StartChar)
	assert.Equal(t, 400, complete[0].EndChar)
	assert.Equal(t, "Final Content Section", complete[2].Title)
	assert.Equal(t, 600, complete[2].StartChar)
	assert.Equal(t, 1000, complete[2].EndChar)
}

func TestEnsureCoverage_SkipsShortGaps(t *testing.T) {
	text := strings.Repeat("x", 250)
	sections := []document.Section{
		{Title: "A", StartChar: 0, EndChar: 200, Type: document.SectionGeneral},
	}
	complete := ensureCoverage(sections, text, 100)
	require.Len(t, complete, 1) // 50-char tail is below the minimum
}

func TestFallbackAnalyze_FindsNumberedHeadings(t *testing.T) {
	a := NewAnalyzer(&fakeCompleter{}, DefaultConfig(), testLogger())
	got := a.fallbackAnalyze(sampleDocument())

	assert.Equal(t, "fallback_regex", got.AnalysisMethod)
	titles := make([]string, 0, len(got.Sections))
	for _, s := range got.Sections {
		titles = append(titles, s.Title)
	}
	assert.Contains(t, titles, "1.0 INTRODUCTION")
	assert.Contains(t, titles, "2.0 SCOPE OF WORK")
	assert.Contains(t, titles, "3.0 PRICING")

	for _, s := range got.Sections {
		switch s.Title {
		case "2.0 SCOPE OF WORK":
			assert.Equal(t, document.SectionScopeOfWork, s.Type)
		case "3.0 PRICING":
			assert.Equal(t, document.SectionPricing, s.Type)
		}
	}
}

func TestHierarchyFromTitle(t *testing.T) {
	assert.Equal(t, 1, hierarchyFromTitle("INTRODUCTION"))
	assert.Equal(t, 1, hierarchyFromTitle("1 Overview"))
	assert.Equal(t, 2, hierarchyFromTitle("2.1 Detail"))
	assert.Equal(t, 3, hierarchyFromTitle("2.1.1 More Detail"))
	assert.Equal(t, 3, hierarchyFromTitle("2.1.1.4 Too Deep"))
}

func TestValidate_RejectsMajorOverlap(t *testing.T) {
	s := &Structure{Sections: []document.Section{
		{Title: "A", Type: document.SectionGeneral, StartChar: 0, EndChar: 100},
		{Title: "B", Type: document.SectionGeneral, StartChar: 40, EndChar: 140},
	}}
	assert.Error(t, Validate(s)) // 60-char overlap, shorter is 100

	ok := &Structure{Sections: []document.Section{
		{Title: "A", Type: document.SectionGeneral, StartChar: 0, EndChar: 100},
		{Title: "B", Type: document.SectionGeneral, StartChar: 80, EndChar: 180},
	}}
	assert.NoError(t, Validate(ok)) // 20-char overlap is tolerated
}

func TestValidate_RequiresFields(t *testing.T) {
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&Structure{}))
	assert.Error(t, Validate(&Structure{Sections: []document.Section{{Title: "", Type: "x", StartChar: 0, EndChar: 1}}}))
	assert.Error(t, Validate(&Structure{Sections: []document.Section{{Title: "t", Type: "", StartChar: 0, EndChar: 1}}}))
	assert.Error(t, Validate(&Structure{Sections: []document.Section{{Title: "t", Type: "x", StartChar: 5, EndChar: 5}}}))
}
