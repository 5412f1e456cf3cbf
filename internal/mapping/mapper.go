// Package mapping assigns extracted tables and figures to the document
// sections they belong to, combining page proximity, keyword signals,
// and a collaborator check for ambiguous cases.
package mapping

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/llm"
)

const (
	// charsPerPage is the heuristic translating character offsets into
	// page estimates when true page geometry is unavailable.
	defaultCharsPerPage = 3000

	pageTolerance = 1

	// minContentForLLM gates the collaborator relevance check; shorter
	// artifacts qualify on keywords alone.
	minContentForLLM = 100
	excerptLimit     = 300

	keywordBonus = 0.5
)

// Config bounds the mapping heuristics.
type Config struct {
	CharsPerPage int
}

func DefaultConfig() Config {
	return Config{CharsPerPage: defaultCharsPerPage}
}

// Stats summarizes one mapping run.
type Stats struct {
	TablesMapped   int `json:"tables_mapped"`
	TablesUnmapped int `json:"tables_unmapped"`
	ImagesMapped   int `json:"images_mapped"`
	ImagesUnmapped int `json:"images_unmapped"`
}

// Result carries the enriched sections plus whatever could not be placed.
type Result struct {
	Sections       []document.Section  `json:"sections"`
	UnmappedTables []document.TableRef `json:"unmapped_tables,omitempty"`
	UnmappedImages []document.ImageRef `json:"unmapped_images,omitempty"`
	Stats          Stats               `json:"stats"`
}

// Mapper places tables and figures into sections.
type Mapper struct {
	llm   llm.Completer
	retry llm.RetryPolicy
	cfg   Config
	log   *slog.Logger
}

func NewMapper(completer llm.Completer, cfg Config, log *slog.Logger) *Mapper {
	if cfg.CharsPerPage <= 0 {
		cfg = DefaultConfig()
	}
	return &Mapper{
		llm:   completer,
		retry: llm.DefaultRetryPolicy(),
		cfg:   cfg,
		log:   log,
	}
}

// Map assigns every table and figure to at most one section. An
// artifact is a candidate for a section only when its page falls
// inside the section's estimated range (with tolerance) and it is
// contextually relevant there; artifacts with no candidate section are
// reported unmapped. Conflicts between candidates resolve to the
// highest proximity score plus keyword bonus, earliest section on
// ties.
func (m *Mapper) Map(ctx context.Context, sections []document.Section, tables []document.TableRef, images []document.ImageRef) *Result {
	res := &Result{Sections: sections}

	for _, t := range tables {
		best := m.bestSection(ctx, res.Sections, t.PageNumber, t.Content)
		if best < 0 {
			res.UnmappedTables = append(res.UnmappedTables, t)
			res.Stats.TablesUnmapped++
			continue
		}
		res.Sections[best].Tables = append(res.Sections[best].Tables, t)
		res.Stats.TablesMapped++
	}

	for _, img := range images {
		best := m.bestSection(ctx, res.Sections, img.PageNumber, img.Content)
		if best < 0 {
			res.UnmappedImages = append(res.UnmappedImages, img)
			res.Stats.ImagesUnmapped++
			continue
		}
		res.Sections[best].Images = append(res.Sections[best].Images, img)
		res.Stats.ImagesMapped++
	}

	m.log.Info("content mapping complete",
		"tables_mapped", res.Stats.TablesMapped,
		"tables_unmapped", res.Stats.TablesUnmapped,
		"images_mapped", res.Stats.ImagesMapped,
		"images_unmapped", res.Stats.ImagesUnmapped)
	return res
}

// bestSection collects the candidate sections that pass both the page
// and relevance gates, then resolves conflicts by proximity score plus
// keyword bonus. Returns -1 when no section qualifies; ties keep the
// earliest section.
func (m *Mapper) bestSection(ctx context.Context, sections []document.Section, page int, content string) int {
	var candidates []int
	for i := range sections {
		if !m.pageInRange(&sections[i], page) {
			continue
		}
		if !m.relevant(ctx, &sections[i], content) {
			continue
		}
		candidates = append(candidates, i)
	}
	switch len(candidates) {
	case 0:
		return -1
	case 1:
		return candidates[0]
	}

	best := candidates[0]
	bestScore := 0.0
	for _, i := range candidates {
		score := m.proximityScore(&sections[i], page)
		if m.keywordMatch(&sections[i], content) {
			score += keywordBonus
		}
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return best
}

// relevant gates the mapping: a keyword overlap qualifies directly,
// and substantial content gets a collaborator check. A failed
// collaborator call means not relevant.
func (m *Mapper) relevant(ctx context.Context, s *document.Section, content string) bool {
	if m.keywordMatch(s, content) {
		return true
	}
	if len(content) > minContentForLLM {
		return m.llmRelevant(ctx, s, content)
	}
	return false
}

func (m *Mapper) pageRange(s *document.Section) (int, int) {
	startPage := s.StartChar/m.cfg.CharsPerPage + 1
	endPage := s.EndChar/m.cfg.CharsPerPage + 1
	if endPage < startPage {
		endPage = startPage
	}
	return startPage, endPage
}

func (m *Mapper) pageInRange(s *document.Section, page int) bool {
	startPage, endPage := m.pageRange(s)
	return page >= startPage-pageTolerance && page <= endPage+pageTolerance
}

// proximityScore is 1.0 when the artifact's page falls inside the
// section's estimated page range, decaying by 0.2 per page of
// distance outside it.
func (m *Mapper) proximityScore(s *document.Section, page int) float64 {
	startPage, endPage := m.pageRange(s)
	if page >= startPage && page <= endPage {
		return 1.0
	}
	var distance int
	if page < startPage {
		distance = startPage - page
	} else {
		distance = page - endPage
	}
	score := 1.0 - 0.2*float64(distance)
	if score < 0 {
		return 0
	}
	return score
}

// categoryKeywords link artifact vocabulary to the sections most likely
// to reference that vocabulary.
var categoryKeywords = map[string][]string{
	"electrical": {"electrical", "voltage", "circuit", "panel", "conduit", "wiring"},
	"civil":      {"civil", "grading", "excavation", "concrete", "pavement", "drainage"},
	"pricing":    {"price", "cost", "total", "rate", "fee", "amount", "$"},
	"technical":  {"specification", "standard", "requirement", "dimension", "capacity"},
	"scope":      {"scope", "work", "task", "deliverable", "phase"},
	"schedule":   {"schedule", "date", "milestone", "duration", "week", "month"},
}

func (m *Mapper) keywordMatch(s *document.Section, content string) bool {
	haystack := strings.ToLower(s.Title + " " + string(s.Type))
	needle := strings.ToLower(content)
	for _, words := range categoryKeywords {
		sectionHit, contentHit := false, false
		for _, w := range words {
			if strings.Contains(haystack, w) {
				sectionHit = true
			}
			if strings.Contains(needle, w) {
				contentHit = true
			}
		}
		if sectionHit && contentHit {
			return true
		}
	}
	return false
}

const relevanceSystemMessage = `You decide whether extracted document content belongs to a given RFP section.
Answer with exactly one word: YES or NO.`

func (m *Mapper) llmRelevant(ctx context.Context, s *document.Section, content string) bool {
	excerpt := content
	if len(excerpt) > excerptLimit {
		excerpt = excerpt[:excerptLimit]
	}
	prompt := fmt.Sprintf("Section: %s\nSection preview: %s\n\nContent:\n%s\n\nDoes this content belong to this section?",
		s.Title, s.ContentPreview, excerpt)

	resp, err := llm.Retry(ctx, m.retry, func(ctx context.Context) (string, error) {
		return m.llm.Complete(ctx, prompt, relevanceSystemMessage)
	})
	if err != nil {
		m.log.Warn("relevance check failed", "section", s.Title, "error", err)
		return false
	}
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(resp)), "YES")
}
