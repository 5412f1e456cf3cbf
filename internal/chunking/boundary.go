// Package chunking splits section text into retrieval-sized chunks and
// optimizes the resulting set for size and boundary quality.
package chunking

import (
	"regexp"
	"sort"
)

// semanticBoundaryPatterns mark positions where a split preserves
// meaning: subsection numbering, enumerations, bullets, and discourse
// transitions. Matches are taken at the start of the newline run.
var semanticBoundaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\n\s*\d+\.\d+\.?\s+[A-Z]`),
	regexp.MustCompile(`\n\s*[a-z]\)\s+[A-Z]`),
	regexp.MustCompile(`\n\s*[A-Z]\.\s+[A-Z]`),
	regexp.MustCompile(`\n\s*[-•*]\s+\S`),
	regexp.MustCompile(`\n\s*(?:Additionally|However|Furthermore|Moreover|In summary|In conclusion|Phase \d+)[,\s]`),
}

var (
	paragraphBoundaryRe = regexp.MustCompile(`\n\s*\n`)
	sentenceBoundaryRe  = regexp.MustCompile(`[.!?]\s+`)
)

// FindBoundaries returns sorted unique split offsets into text, most
// meaningful first: semantic markers, then paragraph breaks, then
// sentence ends. Offsets exclude position 0 and len(text).
func FindBoundaries(text string) []int {
	if b := semanticBoundaries(text); len(b) > 0 {
		return b
	}
	if b := matchEnds(paragraphBoundaryRe, text); len(b) > 0 {
		return b
	}
	return matchEnds(sentenceBoundaryRe, text)
}

func semanticBoundaries(text string) []int {
	seen := make(map[int]bool)
	var offsets []int
	for _, re := range semanticBoundaryPatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			pos := m[0] + 1 // split after the newline
			if pos <= 0 || pos >= len(text) || seen[pos] {
				continue
			}
			seen[pos] = true
			offsets = append(offsets, pos)
		}
	}
	sort.Ints(offsets)
	return offsets
}

func matchEnds(re *regexp.Regexp, text string) []int {
	var offsets []int
	for _, m := range re.FindAllStringIndex(text, -1) {
		if m[1] > 0 && m[1] < len(text) {
			offsets = append(offsets, m[1])
		}
	}
	return offsets
}
