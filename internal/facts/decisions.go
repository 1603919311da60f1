package facts

import (
	"regexp"
	"strings"

	"github.com/boshu2/contextkeeper/internal/types"
)

// Decision extraction works in quality tiers. Explicit markers beat inferred
// choice language, which beats rationale, which beats forward-looking intent.
// Slots fill highest tier first so noisy sessions keep their best evidence.

// explicitMarker matches marked decision comments in assistant text.
var explicitMarker = regexp.MustCompile(`<!--\s*DECISION:\s*(.+?)\s*-->`)

// choicePatterns signal an actual choice between alternatives.
var choicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:chose|picked|selected|opted for|decided on|going with|decided to use|settled on)\b`),
	regexp.MustCompile(`(?i)\b(?:instead of|rather than|over the alternative)\b`),
}

// rationalePatterns signal reasoning behind an action.
var rationalePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bbecause\b`),
	regexp.MustCompile(`(?i)^rationale:`),
	regexp.MustCompile(`(?i)\bthe reason\b`),
}

// intentPatterns signal a stated future action.
var intentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:i'll|i will|i'm going to|next,? i)\b`),
	regexp.MustCompile(`(?i)^(?:next step|todo):`),
}

// boldLead matches a line opening with bold text, a common decision format.
var boldLead = regexp.MustCompile(`^\*\*[^*]+\*\*`)

// extractDecisions scans assistant messages for decision statements and
// returns at most MaxDecisions entries, higher tiers first, transcript order
// within a tier.
func extractDecisions(messages []types.TranscriptMessage) []types.Decision {
	byTier := map[string][]types.Decision{}

	for _, msg := range messages {
		if msg.Role != "assistant" || msg.Content == "" {
			continue
		}

		for _, m := range explicitMarker.FindAllStringSubmatch(msg.Content, -1) {
			byTier[types.TierExplicit] = append(byTier[types.TierExplicit], types.Decision{
				Tier:         types.TierExplicit,
				Text:         strings.TrimSpace(m[1]),
				MessageIndex: msg.MessageIndex,
			})
		}

		for _, line := range strings.Split(msg.Content, "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- "))
			if len(line) < 15 || len(line) > 300 {
				continue
			}
			tier := classifyDecisionLine(line)
			if tier == "" {
				continue
			}
			byTier[tier] = append(byTier[tier], types.Decision{
				Tier:         tier,
				Text:         line,
				MessageIndex: msg.MessageIndex,
			})
		}
	}

	return fillDecisionSlots(byTier)
}

// classifyDecisionLine returns the tier for a single line, or "" if the line
// carries no decision signal.
func classifyDecisionLine(line string) string {
	for _, p := range choicePatterns {
		if p.MatchString(line) {
			return types.TierDecision
		}
	}
	if boldLead.MatchString(line) && strings.Contains(strings.ToLower(line), "decision") {
		return types.TierDecision
	}
	for _, p := range rationalePatterns {
		if p.MatchString(line) {
			return types.TierRationale
		}
	}
	for _, p := range intentPatterns {
		if p.MatchString(line) {
			return types.TierIntent
		}
	}
	return ""
}

// fillDecisionSlots packs tiers into the slot budget, deduplicating by text.
func fillDecisionSlots(byTier map[string][]types.Decision) []types.Decision {
	var out []types.Decision
	seen := make(map[string]bool)
	intentUsed := 0

	for _, tier := range []string{types.TierExplicit, types.TierDecision, types.TierRationale, types.TierIntent} {
		for _, d := range byTier[tier] {
			if len(out) >= MaxDecisions {
				return out
			}
			key := strings.ToLower(d.Text)
			if seen[key] {
				continue
			}
			if tier == types.TierIntent {
				if intentUsed >= MaxIntentDecisions {
					break
				}
				intentUsed++
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	return out
}
