package structure

import (
	"regexp"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
)

// headerPatterns match common RFP heading styles in priority order.
var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(\d+(?:\.\d+)*\.?)\s+([A-Z][^\n]{2,80})$`),           // 1.0 INTRODUCTION / 2.1.1 Detail
	regexp.MustCompile(`(?m)^\s*([A-Z][A-Z\s\d&/,\-]{4,60})\s*$`),                    // ALL CAPS HEADING
	regexp.MustCompile(`(?m)^\s*((?:[IVX]+)\.)\s+([A-Z][^\n]{2,80})$`),               // IV. Roman numeral
	regexp.MustCompile(`(?m)^\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,5}):\s*$`),          // Title Case Colon:
	regexp.MustCompile(`(?m)^\s*([A-Z][a-z]+(?:\s+(?:[A-Z][a-z]+|of|and|the)){1,5})\s*$`), // Title Case Heading
}

type headerCandidate struct {
	title string
	start int
	level int
}

// fallbackAnalyze derives sections from heading regexes when the
// collaborator is unavailable. Each candidate's section runs to the
// next candidate's start, so the result still covers the text.
func (a *Analyzer) fallbackAnalyze(rawText string) *Structure {
	candidates := findHeaderCandidates(rawText)

	var sections []document.Section
	for i, c := range candidates {
		end := len(rawText)
		if i+1 < len(candidates) {
			end = candidates[i+1].start
		}
		if end-c.start < a.cfg.MinSectionLength {
			continue
		}
		content := rawText[c.start:end]
		sections = append(sections, document.Section{
			Title:          c.title,
			HierarchyLevel: c.level,
			StartChar:      c.start,
			EndChar:        end,
			Type:           classifyByKeywords(c.title, content),
			ContentPreview: preview(strings.TrimSpace(content)),
		})
	}

	sections = ensureCoverage(sections, rawText, a.cfg.MinSectionLength)
	return &Structure{Sections: sections, AnalysisMethod: "fallback_regex"}
}

func findHeaderCandidates(text string) []headerCandidate {
	seen := make(map[int]bool)
	var candidates []headerCandidate
	for _, re := range headerPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			start := m[0]
			for start < len(text) && (text[start] == ' ' || text[start] == '\n' || text[start] == '\t') {
				start++
			}
			if seen[start] {
				continue
			}
			seen[start] = true
			title := strings.TrimSpace(text[m[0]:m[1]])
			candidates = append(candidates, headerCandidate{
				title: title,
				start: start,
				level: hierarchyFromTitle(title),
			})
		}
	}
	sortCandidates(candidates)
	return candidates
}

func sortCandidates(candidates []headerCandidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].start < candidates[j-1].start; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}

var numberedTitleRe = regexp.MustCompile(`^(\d+(?:\.\d+)*)`)

func hierarchyFromTitle(title string) int {
	m := numberedTitleRe.FindString(title)
	if m == "" {
		return 1
	}
	level := strings.Count(m, ".") + 1
	if level > 3 {
		level = 3
	}
	return level
}

// sectionKeywords drive keyword classification for fallback sections.
var sectionKeywords = []struct {
	typ   document.SectionType
	words []string
}{
	{document.SectionIntroduction, []string{"introduction", "overview", "background", "purpose"}},
	{document.SectionScopeOfWork, []string{"scope", "work", "deliverable", "task", "services"}},
	{document.SectionTechnicalReqs, []string{"technical", "specification", "requirement", "standard"}},
	{document.SectionPricing, []string{"pricing", "price", "cost", "payment", "fee", "budget"}},
	{document.SectionAssumptions, []string{"assumption"}},
	{document.SectionExclusions, []string{"exclusion", "excluded", "limitation"}},
	{document.SectionQualifications, []string{"qualification", "experience", "capability"}},
	{document.SectionTimeline, []string{"timeline", "schedule", "milestone", "duration"}},
	{document.SectionEvaluation, []string{"evaluation", "criteria", "selection", "award"}},
	{document.SectionContactInfo, []string{"contact", "submission", "submit", "inquiries"}},
	{document.SectionTermsConds, []string{"terms", "conditions", "legal", "contract", "liability"}},
}

func classifyByKeywords(title, content string) document.SectionType {
	haystack := strings.ToLower(title)
	lowered := strings.ToLower(content)
	if len(lowered) > 200 {
		lowered = lowered[:200]
	}
	haystack += " " + lowered

	for _, entry := range sectionKeywords {
		for _, w := range entry.words {
			if strings.Contains(haystack, w) {
				return entry.typ
			}
		}
	}
	return document.SectionGeneral
}
