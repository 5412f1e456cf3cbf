// Package structure reconstructs a document's section hierarchy from its
// flat text, using the completion collaborator with a regex fallback.
package structure

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/llm"
)

const (
	// duplicateOverlapRatio drops a later section once it overlaps an
	// earlier one by more than this share of its own length.
	duplicateOverlapRatio = 0.7
	// validationOverlapRatio is the stricter bound checked by Validate.
	validationOverlapRatio = 0.5

	previewLength = 100
)

// Config bounds structure analysis.
type Config struct {
	WindowTokens     int // max estimated tokens per analysis window
	MinSectionLength int // minimum chars for a synthetic gap section
	ContentWindow    int // chars of section content sent for classification
}

// DefaultConfig returns the analysis defaults.
func DefaultConfig() Config {
	return Config{
		WindowTokens:     3000,
		MinSectionLength: 100,
		ContentWindow:    500,
	}
}

// Structure is the analyzer's result: sections covering the raw text,
// plus the method that produced them.
type Structure struct {
	Sections       []document.Section `json:"sections"`
	AnalysisMethod string             `json:"analysis_method"`
}

// Analyzer infers document structure.
type Analyzer struct {
	llm   llm.Completer
	retry llm.RetryPolicy
	cfg   Config
	log   *slog.Logger
}

// NewAnalyzer wires an analyzer with its collaborator dependency.
func NewAnalyzer(completer llm.Completer, cfg Config, log *slog.Logger) *Analyzer {
	if cfg.WindowTokens <= 0 {
		cfg = DefaultConfig()
	}
	return &Analyzer{
		llm:   completer,
		retry: llm.DefaultRetryPolicy(),
		cfg:   cfg,
		log:   log,
	}
}

// Analyze infers the section structure of rawText. Collaborator failures
// for individual windows are non-fatal; if the collaborator is unreachable
// outright, the regex fallback produces the structure instead.
func (a *Analyzer) Analyze(ctx context.Context, rawText string) (*Structure, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("structure analysis requires non-empty text")
	}

	if err := a.llm.Ping(ctx); err != nil {
		a.log.Warn("collaborator unreachable, using regex fallback", "error", err)
		return a.fallbackAnalyze(rawText), nil
	}

	var all []document.Section
	for _, w := range splitWindows(rawText, a.cfg.WindowTokens) {
		sections, err := a.analyzeWindow(ctx, w.text)
		if err != nil {
			a.log.Warn("window analysis failed", "offset", w.offset, "error", err)
			continue
		}
		for i := range sections {
			sections[i].StartChar += w.offset
			sections[i].EndChar += w.offset
		}
		all = append(all, sections...)
	}

	sections := removeDuplicates(sortByStart(all))
	sections = ensureCoverage(sections, rawText, a.cfg.MinSectionLength)
	a.classifySections(ctx, sections, rawText)

	return &Structure{Sections: sections, AnalysisMethod: "llm"}, nil
}

type window struct {
	text   string
	offset int
}

// splitWindows partitions text into windows of at most maxTokens
// estimated tokens, preferring paragraph boundaries. Offsets let
// window-relative section positions be rebased to document-absolute ones.
func splitWindows(text string, maxTokens int) []window {
	if document.EstimateTokens(text) <= maxTokens {
		return []window{{text: text}}
	}

	var windows []window
	start := 0
	pos := 0
	for pos < len(text) {
		next := strings.Index(text[pos:], "\n\n")
		var end int
		if next < 0 {
			end = len(text)
		} else {
			end = pos + next + 2
		}
		if document.EstimateTokens(text[start:end]) > maxTokens && pos > start {
			windows = append(windows, window{text: text[start:pos], offset: start})
			start = pos
		}
		pos = end
	}
	if start < len(text) {
		windows = append(windows, window{text: text[start:], offset: start})
	}
	return windows
}

const boundarySystemMessage = `You are a document structure analyzer specializing in RFP documents.
Analyze the given text and identify all document sections with their hierarchy.

Return a JSON object with this exact structure:
{
  "sections": [
    {
      "title": "1.0 INTRODUCTION",
      "hierarchy_level": 1,
      "start_char": 0,
      "end_char": 500,
      "content_preview": "First 100 characters of section content..."
    }
  ]
}

Rules:
1. Identify section titles (numbered like 1.0, 1.1, 2.1.1 or descriptive headings)
2. Determine hierarchy level (1 = main section, 2 = subsection, 3 = sub-subsection)
3. Provide character positions relative to the given text
4. Include a brief content preview
5. Focus on actual document structure, not formatting artifacts`

type proposedSection struct {
	Title          string `json:"title"`
	HierarchyLevel int    `json:"hierarchy_level"`
	StartChar      int    `json:"start_char"`
	EndChar        int    `json:"end_char"`
	ContentPreview string `json:"content_preview"`
}

func (a *Analyzer) analyzeWindow(ctx context.Context, text string) ([]document.Section, error) {
	prompt := fmt.Sprintf("Analyze this RFP document text and identify all sections:\n\n%s\n\nReturn the section structure as specified JSON format.", text)

	raw, err := llm.Retry(ctx, a.retry, func(ctx context.Context) (json.RawMessage, error) {
		return a.llm.CompleteJSON(ctx, prompt, boundarySystemMessage)
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Sections []proposedSection `json:"sections"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrMalformedResponse, err)
	}

	sections := make([]document.Section, 0, len(payload.Sections))
	for _, p := range payload.Sections {
		if p.StartChar < 0 || p.EndChar <= p.StartChar || p.EndChar > len(text) {
			continue
		}
		level := p.HierarchyLevel
		if level < 1 || level > 3 {
			level = 1
		}
		sections = append(sections, document.Section{
			Title:          strings.TrimSpace(p.Title),
			HierarchyLevel: level,
			StartChar:      p.StartChar,
			EndChar:        p.EndChar,
			ContentPreview: p.ContentPreview,
		})
	}
	return sections, nil
}

func sortByStart(sections []document.Section) []document.Section {
	sort.SliceStable(sections, func(i, j int) bool {
		return sections[i].StartChar < sections[j].StartChar
	})
	return sections
}

// removeDuplicates drops a section once it overlaps an already-kept one
// by more than duplicateOverlapRatio of its own length; first seen wins.
func removeDuplicates(sections []document.Section) []document.Section {
	var kept []document.Section
	for _, s := range sections {
		duplicate := false
		for i := range kept {
			overlap := s.Overlap(&kept[i])
			if length := s.Length(); length > 0 && float64(overlap)/float64(length) > duplicateOverlapRatio {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, s)
		}
	}
	return kept
}

// ensureCoverage materializes any gap longer than minLength as a
// synthetic "general" section so sections collectively cover the text.
func ensureCoverage(sections []document.Section, fullText string, minLength int) []document.Section {
	if len(sections) == 0 {
		return []document.Section{{
			Title:          "Complete Document",
			HierarchyLevel: 1,
			StartChar:      0,
			EndChar:        len(fullText),
			Type:           document.SectionGeneral,
			ContentPreview: preview(fullText),
		}}
	}

	sortByStart(sections)

	var complete []document.Section
	lastEnd := 0
	for _, s := range sections {
		if s.StartChar > lastEnd {
			gap := fullText[lastEnd:s.StartChar]
			if len(strings.TrimSpace(gap)) > minLength {
				complete = append(complete, document.Section{
					Title:          fmt.Sprintf("Content Section %d", len(complete)+1),
					HierarchyLevel: 1,
					StartChar:      lastEnd,
					EndChar:        s.StartChar,
					Type:           document.SectionGeneral,
					ContentPreview: preview(strings.TrimSpace(gap)),
				})
			}
		}
		complete = append(complete, s)
		lastEnd = max(lastEnd, s.EndChar)
	}

	if lastEnd < len(fullText) {
		tail := fullText[lastEnd:]
		if len(strings.TrimSpace(tail)) > minLength {
			complete = append(complete, document.Section{
				Title:          "Final Content Section",
				HierarchyLevel: 1,
				StartChar:      lastEnd,
				EndChar:        len(fullText),
				Type:           document.SectionGeneral,
				ContentPreview: preview(strings.TrimSpace(tail)),
			})
		}
	}
	return complete
}

func preview(text string) string {
	if len(text) > previewLength {
		return text[:previewLength] + "..."
	}
	return text
}

const classifySystemMessage = `You are an expert at classifying RFP document sections.
Analyze the section title and content to determine the most appropriate section type.

Choose from these section types:
- introduction: Project overview, background, objectives
- scope_of_work: Detailed work description, deliverables, tasks
- technical_requirements: Technical specifications, standards, requirements
- pricing: Cost information, pricing structure, payment terms
- assumptions: Project assumptions, conditions
- exclusions: Items excluded from scope, limitations
- qualifications: Vendor qualifications, experience requirements
- timeline: Schedule, milestones, duration
- evaluation: Selection criteria, evaluation process
- contact_information: Contact details, submission instructions
- terms_conditions: Legal terms, contract conditions
- general: Any other content that doesn't fit above categories

Return only the section type (one word).`

// classifySections assigns a section type to every section, defaulting
// to "general" on any collaborator failure or out-of-enum reply.
func (a *Analyzer) classifySections(ctx context.Context, sections []document.Section, fullText string) {
	for i := range sections {
		s := &sections[i]
		if s.Type != "" {
			continue // synthetic gap sections are already typed
		}
		content := sliceText(fullText, s.StartChar, s.EndChar)
		if len(content) > a.cfg.ContentWindow {
			content = content[:a.cfg.ContentWindow]
		}
		s.Type = a.classifyOne(ctx, s.Title, content)
	}
}

func (a *Analyzer) classifyOne(ctx context.Context, title, contentPreview string) document.SectionType {
	prompt := fmt.Sprintf("Section Title: %s\n\nContent Preview: %s\n\nWhat section type is this?", title, contentPreview)

	resp, err := llm.Retry(ctx, a.retry, func(ctx context.Context) (string, error) {
		return a.llm.Complete(ctx, prompt, classifySystemMessage)
	})
	if err != nil {
		a.log.Warn("section classification failed", "title", title, "error", err)
		return document.SectionGeneral
	}
	return document.ParseSectionType(strings.ToLower(strings.TrimSpace(resp)))
}

func sliceText(text string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(text) {
		end = len(text)
	}
	if start >= end {
		return ""
	}
	return text[start:end]
}

// Validate asserts the structural invariants: every section carries the
// required fields and no two sections overlap by more than half of the
// shorter one's length.
func Validate(s *Structure) error {
	if s == nil || len(s.Sections) == 0 {
		return fmt.Errorf("structure has no sections")
	}
	for i := range s.Sections {
		sec := &s.Sections[i]
		if sec.Title == "" {
			return fmt.Errorf("section %d has no title", i)
		}
		if sec.Type == "" {
			return fmt.Errorf("section %q has no type", sec.Title)
		}
		if sec.EndChar <= sec.StartChar {
			return fmt.Errorf("section %q has empty span [%d,%d)", sec.Title, sec.StartChar, sec.EndChar)
		}
	}
	for i := range s.Sections {
		for j := i + 1; j < len(s.Sections); j++ {
			a, b := &s.Sections[i], &s.Sections[j]
			overlap := a.Overlap(b)
			if overlap == 0 {
				continue
			}
			shorter := min(a.Length(), b.Length())
			if float64(overlap) > float64(shorter)*validationOverlapRatio {
				return fmt.Errorf("sections %q and %q overlap by %d chars", a.Title, b.Title, overlap)
			}
		}
	}
	return nil
}
