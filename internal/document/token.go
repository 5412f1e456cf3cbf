package document

import "strings"

// EstimateTokens approximates the LLM token count of text from its word
// count at a fixed ~0.75 words-per-token ratio. Every sizing decision in
// the pipeline uses this estimator so chunk budgets stay consistent; it is
// not an exact tokenizer.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	return int(float64(words)/0.75 + 0.5)
}
