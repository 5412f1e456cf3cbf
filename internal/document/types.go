// Package document holds the value types shared across the chunking
// pipeline: sections, multimodal references, chunks, and the per-document
// metadata attached to every chunk.
package document

// SectionType is the inferred semantic role of a document section.
type SectionType string

const (
	SectionIntroduction   SectionType = "introduction"
	SectionScopeOfWork    SectionType = "scope_of_work"
	SectionTechnicalReqs  SectionType = "technical_requirements"
	SectionPricing        SectionType = "pricing"
	SectionAssumptions    SectionType = "assumptions"
	SectionExclusions     SectionType = "exclusions"
	SectionQualifications SectionType = "qualifications"
	SectionTimeline       SectionType = "timeline"
	SectionEvaluation     SectionType = "evaluation"
	SectionContactInfo    SectionType = "contact_information"
	SectionTermsConds     SectionType = "terms_conditions"
	SectionGeneral        SectionType = "general"
)

var validSectionTypes = map[SectionType]bool{
	SectionIntroduction:   true,
	SectionScopeOfWork:    true,
	SectionTechnicalReqs:  true,
	SectionPricing:        true,
	SectionAssumptions:    true,
	SectionExclusions:     true,
	SectionQualifications: true,
	SectionTimeline:       true,
	SectionEvaluation:     true,
	SectionContactInfo:    true,
	SectionTermsConds:     true,
	SectionGeneral:        true,
}

// ParseSectionType maps a raw classifier response onto the fixed
// enumeration, defaulting to SectionGeneral for anything out of enum.
func ParseSectionType(s string) SectionType {
	t := SectionType(s)
	if validSectionTypes[t] {
		return t
	}
	return SectionGeneral
}

// Domain and service categories used for chunk classification.
var (
	DomainCategories = []string{
		"engineering", "environmental", "financial", "legal",
		"technical", "administrative", "general",
	}
	ServiceCategories = []string{
		"design", "construction_support", "consulting",
		"maintenance", "analysis", "general",
	}
)

// ValidDomain reports whether d is a known domain category.
func ValidDomain(d string) bool {
	for _, v := range DomainCategories {
		if v == d {
			return true
		}
	}
	return false
}

// ValidService reports whether s is a known service category.
func ValidService(s string) bool {
	for _, v := range ServiceCategories {
		if v == s {
			return true
		}
	}
	return false
}

// ContentType describes the mix of content inside a chunk.
type ContentType string

const (
	ContentText       ContentType = "text"
	ContentTable      ContentType = "text_with_table"
	ContentImage      ContentType = "text_with_image"
	ContentMultimodal ContentType = "text_with_multimodal"
)

// DeriveContentType is the single source of truth for the mapping from
// multimodal flags to content type. Callers must never recompute this.
func DeriveContentType(hasTable, hasImage bool) ContentType {
	switch {
	case hasTable && hasImage:
		return ContentMultimodal
	case hasTable:
		return ContentTable
	case hasImage:
		return ContentImage
	default:
		return ContentText
	}
}

// TableRef is a table attached to a section. Grid holds the cell grid with
// the header in row 0; Content is the same table rendered as plain text.
type TableRef struct {
	Content      string     `json:"content"`
	Grid         [][]string `json:"grid,omitempty"`
	PageNumber   int        `json:"page_number"`
	Index        int        `json:"table_index"`
	RowCount     int        `json:"row_count"`
	ColumnCount  int        `json:"column_count"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
}

// ImageRef is a figure attached to a section. Content is the text
// recovered from the figure's spans, which may be empty.
type ImageRef struct {
	Content      string `json:"content"`
	PageNumber   int    `json:"page_number"`
	Index        int    `json:"figure_index"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
}

// Section is a contiguous titled span of document text. StartChar and
// EndChar are half-open offsets into the document's raw text.
type Section struct {
	Title          string      `json:"title"`
	HierarchyLevel int         `json:"hierarchy_level"`
	StartChar      int         `json:"start_char"`
	EndChar        int         `json:"end_char"`
	Type           SectionType `json:"section_type"`
	ContentPreview string      `json:"content_preview"`
	Tables         []TableRef  `json:"tables,omitempty"`
	Images         []ImageRef  `json:"images,omitempty"`
}

// Length returns the section's span length in characters.
func (s *Section) Length() int {
	n := s.EndChar - s.StartChar
	if n < 0 {
		return 0
	}
	return n
}

// Overlap returns the number of characters shared by two sections.
func (s *Section) Overlap(o *Section) int {
	start := max(s.StartChar, o.StartChar)
	end := min(s.EndChar, o.EndChar)
	if end <= start {
		return 0
	}
	return end - start
}

// HasTables reports whether any tables were mapped to the section.
func (s *Section) HasTables() bool { return len(s.Tables) > 0 }

// HasImages reports whether any figures were mapped to the section.
func (s *Section) HasImages() bool { return len(s.Images) > 0 }

// Metadata is the per-document metadata extracted once per document and
// copied onto every chunk. It is read-only from the pipeline's view.
type Metadata struct {
	DocumentID     string `json:"document_id"`
	DocumentTitle  string `json:"document_title"`
	ClientName     string `json:"client_name"`
	VendorName     string `json:"vendor_name"`
	ProjectSite    string `json:"project_site"`
	SubmissionDate string `json:"submission_date"`
	ProjectValue   string `json:"project_value"`
}

// Chunk is a bounded unit of verbalized text plus retrieval metadata.
// TokenCount and CharCount are always recomputed from Content; chunks are
// replaced wholesale on merge/split, never mutated field by field.
type Chunk struct {
	ChunkID          string      `json:"chunk_id"`
	Content          string      `json:"content"`
	SectionType      SectionType `json:"section_type"`
	SectionTitle     string      `json:"section_title"`
	SectionHierarchy string      `json:"section_hierarchy"`
	PageNumber       int         `json:"page_number"`
	ChunkNumber      int         `json:"chunk_number"`
	TotalInSection   int         `json:"total_chunks_in_section"`
	TokenCount       int         `json:"token_count"`
	CharCount        int         `json:"char_count"`

	DomainCategory  string      `json:"domain_category"`
	ServiceCategory string      `json:"service_category"`
	Confidence      string      `json:"classification_confidence"`
	ContentType     ContentType `json:"content_type"`

	HasTableContent bool `json:"has_table_content"`
	HasImageContent bool `json:"has_image_content"`
	TableCount      int  `json:"table_count"`
	ImageCount      int  `json:"image_count"`

	DocumentID     string `json:"document_id"`
	DocumentTitle  string `json:"document_title"`
	ClientName     string `json:"client_name"`
	VendorName     string `json:"vendor_name"`
	ProjectSite    string `json:"project_site"`
	SubmissionDate string `json:"submission_date"`
	ProjectValue   string `json:"project_value"`
}
