package chunking

import "github.com/structify/rfpchunk/internal/document"

// Limits are the global chunk size bounds in estimated tokens.
type Limits struct {
	MinTokens    int
	TargetTokens int
	MaxTokens    int
}

// DefaultLimits returns the retrieval-tuned size bounds.
func DefaultLimits() Limits {
	return Limits{MinTokens: 200, TargetTokens: 1000, MaxTokens: 1500}
}

// Strategy controls how one section type is chunked.
type Strategy struct {
	TargetTokens int
	AllowSplit   bool
}

// strategies tune chunking per section type. Narrative sections stay
// whole; enumerable sections split at semantic boundaries.
var strategies = map[document.SectionType]Strategy{
	document.SectionIntroduction:  {TargetTokens: 800, AllowSplit: false},
	document.SectionScopeOfWork:   {TargetTokens: 1200, AllowSplit: true},
	document.SectionTechnicalReqs: {TargetTokens: 1000, AllowSplit: true},
	document.SectionPricing:       {TargetTokens: 800, AllowSplit: true},
	document.SectionAssumptions:   {TargetTokens: 600, AllowSplit: false},
	document.SectionExclusions:    {TargetTokens: 600, AllowSplit: false},
	document.SectionGeneral:       {TargetTokens: 1000, AllowSplit: true},
}

// StrategyFor returns the chunking strategy for a section type,
// defaulting to the general strategy.
func StrategyFor(t document.SectionType) Strategy {
	if s, ok := strategies[t]; ok {
		return s
	}
	return strategies[document.SectionGeneral]
}
