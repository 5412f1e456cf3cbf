// Package metadata enriches chunks with identities, classifications,
// and document context so each chunk is self-describing at retrieval.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/structify/rfpchunk/internal/document"
	"github.com/structify/rfpchunk/internal/llm"
)

const (
	maxIDLength   = 100
	maxSlugLength = 30

	// classifyPreviewLimit bounds the chunk content sent to the
	// classification collaborator.
	classifyPreviewLimit = 800

	defaultCharsPerPage = 3000
)

// Config bounds metadata generation.
type Config struct {
	CharsPerPage int
}

func DefaultConfig() Config {
	return Config{CharsPerPage: defaultCharsPerPage}
}

// Generator assigns chunk ids, hierarchy, pages, classifications, and
// document fields.
type Generator struct {
	llm   llm.Completer
	retry llm.RetryPolicy
	cfg   Config
	log   *slog.Logger
}

func NewGenerator(completer llm.Completer, cfg Config, log *slog.Logger) *Generator {
	if cfg.CharsPerPage <= 0 {
		cfg = DefaultConfig()
	}
	return &Generator{
		llm:   completer,
		retry: llm.DefaultRetryPolicy(),
		cfg:   cfg,
		log:   log,
	}
}

// Enrich fills in every metadata field of the section's chunks. Each
// chunk is classified from its own content; a failed collaborator call
// degrades that chunk to keyword classification with low confidence.
func (g *Generator) Enrich(ctx context.Context, chunks []document.Chunk, s *document.Section, meta *document.Metadata) {
	hierarchy := HierarchyFromTitle(s.Title)
	startPage, endPage := g.pageRange(s)

	for i := range chunks {
		c := &chunks[i]
		domain, service, confidence := g.classify(ctx, s, c.Content)
		c.ChunkID = ChunkID(meta.DocumentID, s.Title, c.ChunkNumber)
		c.SectionHierarchy = hierarchy
		c.PageNumber = interpolatePage(startPage, endPage, c.ChunkNumber, len(chunks))
		c.DomainCategory = domain
		c.ServiceCategory = service
		c.Confidence = confidence

		c.DocumentID = meta.DocumentID
		c.DocumentTitle = meta.DocumentTitle
		c.ClientName = meta.ClientName
		c.VendorName = meta.VendorName
		c.ProjectSite = meta.ProjectSite
		c.SubmissionDate = meta.SubmissionDate
		c.ProjectValue = meta.ProjectValue
	}
}

var idCharRe = regexp.MustCompile(`[^A-Za-z0-9_\-=]`)

// ChunkID builds a stable, filesystem-safe chunk identity from the
// document id, a section slug, and the chunk's sequence number.
func ChunkID(documentID, sectionTitle string, number int) string {
	doc := idCharRe.ReplaceAllString(documentID, "_")
	slug := Slug(sectionTitle)
	id := fmt.Sprintf("%s_%s_chunk_%02d", doc, slug, number)
	if len(id) > maxIDLength {
		id = id[:maxIDLength]
	}
	return id
}

// Slug lowercases a section title into an id-safe fragment of at most
// maxSlugLength characters.
func Slug(title string) string {
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
	if len(s) > maxSlugLength {
		s = strings.Trim(s[:maxSlugLength], "_")
	}
	if s == "" {
		s = "section"
	}
	return s
}

var hierarchyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(\d+\.\d+\.\d+)`),
	regexp.MustCompile(`^(\d+\.\d+)`),
	regexp.MustCompile(`^(\d+)\.`),
	regexp.MustCompile(`^(\d+)`),
}

// HierarchyFromTitle extracts the numbering prefix of a section title,
// or "0" for unnumbered sections.
func HierarchyFromTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, re := range hierarchyPatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			return m[1]
		}
	}
	return "0"
}

func (g *Generator) pageRange(s *document.Section) (int, int) {
	start := s.StartChar/g.cfg.CharsPerPage + 1
	end := s.EndChar/g.cfg.CharsPerPage + 1
	if end < start {
		end = start
	}
	return start, end
}

// interpolatePage spreads a section's chunks evenly across its
// estimated page range.
func interpolatePage(startPage, endPage, number, total int) int {
	if total <= 1 || endPage <= startPage {
		return startPage
	}
	offset := float64(number-1) / float64(total-1) * float64(endPage-startPage)
	return startPage + int(offset+0.5)
}

const classifySystemMessage = `You classify RFP document sections for retrieval.

Domain categories: engineering, environmental, financial, legal, technical, administrative, general
Service categories: design, construction_support, consulting, maintenance, analysis, general

Return a JSON object:
{"domain_category": "...", "service_category": "...", "confidence": "high|medium|low"}`

type classification struct {
	DomainCategory  string `json:"domain_category"`
	ServiceCategory string `json:"service_category"`
	Confidence      string `json:"confidence"`
}

func (g *Generator) classify(ctx context.Context, s *document.Section, content string) (domain, service, confidence string) {
	preview := content
	if len(preview) > classifyPreviewLimit {
		preview = preview[:classifyPreviewLimit]
	}
	prompt := fmt.Sprintf("Section Title: %s\nSection Type: %s\n\nContent: %s\n\nClassify this content.",
		s.Title, s.Type, preview)

	raw, err := llm.Retry(ctx, g.retry, func(ctx context.Context) (json.RawMessage, error) {
		return g.llm.CompleteJSON(ctx, prompt, classifySystemMessage)
	})
	if err == nil {
		var c classification
		if jsonErr := json.Unmarshal(raw, &c); jsonErr == nil &&
			document.ValidDomain(c.DomainCategory) && document.ValidService(c.ServiceCategory) {
			if c.Confidence != "high" && c.Confidence != "medium" && c.Confidence != "low" {
				c.Confidence = "medium"
			}
			return c.DomainCategory, c.ServiceCategory, c.Confidence
		}
		err = fmt.Errorf("%w: out-of-enum classification", llm.ErrMalformedResponse)
	}

	g.log.Warn("classification degraded to keywords", "section", s.Title, "error", err)
	domain, service = classifyByKeywords(s, content)
	return domain, service, "low"
}

var domainKeywords = []struct {
	category string
	words    []string
}{
	{"engineering", []string{"design", "structural", "grading", "drainage", "construction"}},
	{"environmental", []string{"environmental", "permit", "wetland", "mitigation"}},
	{"financial", []string{"price", "cost", "payment", "budget", "fee"}},
	{"legal", []string{"terms", "liability", "indemnif", "contract", "insurance"}},
	{"technical", []string{"specification", "standard", "requirement", "technical"}},
	{"administrative", []string{"submission", "schedule", "contact", "instructions"}},
}

var serviceKeywords = []struct {
	category string
	words    []string
}{
	{"design", []string{"design", "drawing", "plan", "engineering"}},
	{"construction_support", []string{"construction", "inspection", "oversight"}},
	{"consulting", []string{"consult", "advis", "study", "assessment"}},
	{"maintenance", []string{"maintenance", "repair", "upkeep"}},
	{"analysis", []string{"analysis", "evaluation", "testing", "modeling"}},
}

func classifyByKeywords(s *document.Section, content string) (string, string) {
	haystack := strings.ToLower(s.Title + " " + content)

	domain := "general"
	for _, entry := range domainKeywords {
		if containsAny(haystack, entry.words) {
			domain = entry.category
			break
		}
	}
	service := "general"
	for _, entry := range serviceKeywords {
		if containsAny(haystack, entry.words) {
			service = entry.category
			break
		}
	}
	return domain, service
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

// Summary aggregates the final chunk set for reporting.
type Summary struct {
	TotalChunks      int            `json:"total_chunks"`
	TotalTokens      int            `json:"total_tokens"`
	AvgTokens        float64        `json:"avg_tokens"`
	SectionTypes     map[string]int `json:"section_types"`
	DomainCategories map[string]int `json:"domain_categories"`
	ContentTypes     map[string]int `json:"content_types"`
}

// Summarize builds distribution counts over the final chunk set.
func Summarize(chunks []document.Chunk) Summary {
	s := Summary{
		SectionTypes:     make(map[string]int),
		DomainCategories: make(map[string]int),
		ContentTypes:     make(map[string]int),
	}
	for _, c := range chunks {
		s.TotalChunks++
		s.TotalTokens += c.TokenCount
		s.SectionTypes[string(c.SectionType)]++
		s.DomainCategories[c.DomainCategory]++
		s.ContentTypes[string(c.ContentType)]++
	}
	if s.TotalChunks > 0 {
		s.AvgTokens = float64(s.TotalTokens) / float64(s.TotalChunks)
	}
	return s
}

// Validate rejects chunks missing identity or classification fields.
func Validate(chunks []document.Chunk) error {
	seen := make(map[string]bool, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.ChunkID == "" {
			return fmt.Errorf("chunk %d has no id", i)
		}
		if seen[c.ChunkID] {
			return fmt.Errorf("duplicate chunk id %q", c.ChunkID)
		}
		seen[c.ChunkID] = true
		if c.Content == "" {
			return fmt.Errorf("chunk %s has no content", c.ChunkID)
		}
		if !document.ValidDomain(c.DomainCategory) {
			return fmt.Errorf("chunk %s has invalid domain %q", c.ChunkID, c.DomainCategory)
		}
		if !document.ValidService(c.ServiceCategory) {
			return fmt.Errorf("chunk %s has invalid service %q", c.ChunkID, c.ServiceCategory)
		}
	}
	return nil
}
