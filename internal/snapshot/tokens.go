package snapshot

// Token estimation combines several weak signals into one usable estimate.
// No tokenizer is consulted: transcripts are large and hooks must be fast,
// and a consistent over-estimate is safer than an exact count.

const (
	// CharsPerToken is the assumed character-to-token ratio.
	CharsPerToken = 2.5

	// SystemOverheadTokens accounts for system prompt, tool schemas, and
	// harness scaffolding that never appears in the transcript.
	SystemOverheadTokens = 15_000

	// EffectiveCapacityTokens is the usable context window.
	EffectiveCapacityTokens = 185_000

	// SaveThresholdRatio triggers a proactive save once estimated usage
	// crosses this fraction of capacity.
	SaveThresholdRatio = 0.75

	// Signal weights. File size dominates: it is the only signal that sees
	// untruncated content.
	weightFileSize = 0.50
	weightMessages = 0.25
	weightContent  = 0.25

	// avgCharsPerMessage calibrates the message-count signal.
	avgCharsPerMessage = 700
)

// EstimateTokens produces a weighted token estimate from the transcript file
// size, the parsed message count, and the total parsed content characters.
func EstimateTokens(fileSize int64, messageCount, contentChars int) int {
	fromSize := float64(fileSize) / CharsPerToken
	fromMessages := float64(messageCount) * avgCharsPerMessage / CharsPerToken
	fromContent := float64(contentChars) / CharsPerToken

	estimate := weightFileSize*fromSize + weightMessages*fromMessages + weightContent*fromContent
	return int(estimate) + SystemOverheadTokens
}

// EstimateTokensFromSize estimates from file size alone, for callers that
// have not parsed the transcript yet.
func EstimateTokensFromSize(fileSize int64) int {
	return int(float64(fileSize)/CharsPerToken) + SystemOverheadTokens
}

// OverThreshold reports whether the estimate crosses the proactive-save line.
func OverThreshold(estimatedTokens int) bool {
	return float64(estimatedTokens) >= SaveThresholdRatio*EffectiveCapacityTokens
}

// UsageRatio returns estimated usage as a fraction of effective capacity.
func UsageRatio(estimatedTokens int) float64 {
	return float64(estimatedTokens) / EffectiveCapacityTokens
}
