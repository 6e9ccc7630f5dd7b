package evaluation

import (
	"math"
	"strings"
)

// ScoreResponse rates how well one generated agent action advances the
// agent's stated goals, on a 0..1 scale. The score is a weighted combination
// of goal coverage, specificity and engagement; it is deterministic so the
// same response always scores the same.
func ScoreResponse(goals, response string) float64 {
	if strings.TrimSpace(response) == "" {
		return 0.0
	}

	coverage := calculateGoalCoverage(goals, response)
	specificity := calculateSpecificity(response)
	engagement := calculateEngagement(response)

	return (coverage * 0.6) + (specificity * 0.2) + (engagement * 0.2)
}

// calculateGoalCoverage measures the fraction of goal terms the response
// touches on
func calculateGoalCoverage(goals, response string) float64 {
	terms := strings.Fields(strings.ToLower(goals))
	if len(terms) == 0 {
		return 0.0
	}

	lower := strings.ToLower(response)
	covered := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			covered++
		}
	}
	return float64(covered) / float64(len(terms))
}

// calculateSpecificity rewards substantive responses over one-liners, capped
// so verbosity alone cannot dominate the score
func calculateSpecificity(response string) float64 {
	words := len(strings.Fields(response))
	return math.Min(float64(words)/20.0, 1.0)
}

// engagementTerms are the action verbs the behavior vocabulary is built from
var engagementTerms = []string{
	"analyze", "study", "collaborate", "work", "optimize", "improve", "learn",
}

// calculateEngagement checks whether the response commits to a concrete
// action rather than restating the situation
func calculateEngagement(response string) float64 {
	lower := strings.ToLower(response)
	for _, term := range engagementTerms {
		if strings.Contains(lower, term) {
			return 1.0
		}
	}
	return 0.0
}
