package simulation

import "strings"

// BehaviorPattern is the category an agent acts under for one tick
type BehaviorPattern string

const (
	BehaviorAnalyze     BehaviorPattern = "ANALYZE"
	BehaviorCollaborate BehaviorPattern = "COLLABORATE"
	BehaviorOptimize    BehaviorPattern = "OPTIMIZE"
	BehaviorLearn       BehaviorPattern = "LEARN"
)

// ClassifyBehavior maps an agent's free-text goals to a behavior pattern.
// Matching is case-insensitive; the first matching rule wins, so goals
// containing both "analyze" and "collaborate" classify as ANALYZE.
func ClassifyBehavior(goals string) BehaviorPattern {
	g := strings.ToLower(goals)
	switch {
	case strings.Contains(g, "analyze") || strings.Contains(g, "study"):
		return BehaviorAnalyze
	case strings.Contains(g, "collaborate") || strings.Contains(g, "work"):
		return BehaviorCollaborate
	case strings.Contains(g, "optimize") || strings.Contains(g, "improve"):
		return BehaviorOptimize
	default:
		return BehaviorLearn
	}
}

// Interacts reports whether two agents are considered interacting this tick,
// based on their goal texts: true when either mentions "collaborate" or when
// any whitespace-delimited word of one text appears inside the other.
// The shared-word fallback is deliberately broad; common stopwords are enough
// to trigger an interaction. The rule is symmetric.
func Interacts(goalsA, goalsB string) bool {
	a := strings.ToLower(goalsA)
	b := strings.ToLower(goalsB)

	if strings.Contains(a, "collaborate") || strings.Contains(b, "collaborate") {
		return true
	}
	return sharesWord(a, b) || sharesWord(b, a)
}

// sharesWord reports whether any word of a is a substring of b
func sharesWord(a, b string) bool {
	for _, word := range strings.Fields(a) {
		if strings.Contains(b, word) {
			return true
		}
	}
	return false
}
