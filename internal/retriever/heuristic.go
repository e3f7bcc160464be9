package retriever

import "strings"

// HeuristicConfig holds the adaptive-mode escalation thresholds. They are
// configuration rather than constants; defaults are documented on each field.
type HeuristicConfig struct {
	// LongQueryWords is the word count above which a query counts as long.
	// Default 12.
	LongQueryWords int

	// MinConfidence is the top fast-mode similarity below which the result
	// is considered weak and escalation is forced. Default 0.35.
	MinConfidence float64

	// DeepThreshold and TopicThreshold partition the complexity score:
	// below DeepThreshold fast is kept, below TopicThreshold deep runs,
	// otherwise topic runs. Defaults 0.3 and 0.7.
	DeepThreshold  float64
	TopicThreshold float64
}

// DefaultHeuristic returns the documented default thresholds.
func DefaultHeuristic() HeuristicConfig {
	return HeuristicConfig{
		LongQueryWords: 12,
		MinConfidence:  0.35,
		DeepThreshold:  0.3,
		TopicThreshold: 0.7,
	}
}

var (
	comparativeMarkers = []string{"compare", " vs ", "versus", "difference between", "better than"}
	analysisMarkers    = []string{"why ", "how ", "explain", "reason", "analyze", "analyse"}
	synthesisMarkers   = []string{"summarize", "summarise", "overview", "overall", "in general"}
)

// complexityScore estimates query complexity in [0, 1]. Long queries,
// multiple questions, and comparative/analytical/synthetic phrasing all push
// the score up.
func (h HeuristicConfig) complexityScore(query string) float64 {
	lower := " " + strings.ToLower(query) + " "
	score := 0.0

	if len(strings.Fields(query)) > h.LongQueryWords {
		score += 0.2
	}
	if strings.Count(query, "?") > 1 {
		score += 0.3
	}
	if containsAny(lower, comparativeMarkers) {
		score += 0.2
	}
	if containsAny(lower, analysisMarkers) {
		score += 0.2
	}
	if containsAny(lower, synthesisMarkers) {
		score += 0.3
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}

// pick decides which mode should actually serve the query, given the fast
// pass's top similarity (0 when fast returned nothing).
func (h HeuristicConfig) pick(query string, topSimilarity float64) Mode {
	score := h.complexityScore(query)

	if score >= h.TopicThreshold {
		return ModeTopic
	}
	if score >= h.DeepThreshold {
		return ModeDeep
	}
	if topSimilarity < h.MinConfidence {
		// Fast found nothing convincing; widen the net.
		return ModeDeep
	}
	return ModeFast
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}
