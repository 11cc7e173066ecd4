package classify

import "strings"

// Level is the complexity bucket of a safety query. It picks the target
// answer length the synthesizer is briefed with.
type Level string

const (
	LevelSimple  Level = "simple"
	LevelMedium  Level = "medium"
	LevelComplex Level = "complex"
)

// Assessment is the result of complexity scoring. Reasoning records which
// signals fired and exists for observability only.
type Assessment struct {
	Level     Level
	TargetMin int
	TargetMax int
	Reasoning string
}

// Keyword families for the additive score. These signal families are stable
// across deployments; the thresholds and target ranges are configuration.
var (
	procedureWords = []string{"steps", "procedure", "process", "how to"}
	emergencyWords = []string{"emergency", "accident", "injury", "occurs", "if"}
	multiWords     = []string{"and", "also", "plus", "as well as"}
	allWords       = []string{"all", "every", "complete", "full list"}
	listWords      = []string{"ppe", "equipment", "tools", "requirements", "need", "required"}
	yesNoOpeners   = []string{"can i", "should i", "is it", "do i", "may i", "am i"}
)

// ComplexityScorer scores queries into simple/medium/complex.
type ComplexityScorer struct {
	mediumThreshold  int
	complexThreshold int
	simpleTarget     [2]int
	mediumTarget     [2]int
	complexTarget    [2]int
}

// NewComplexityScorer creates a scorer with the given thresholds and target
// character-length ranges per level.
func NewComplexityScorer(mediumThreshold, complexThreshold int, simpleTarget, mediumTarget, complexTarget [2]int) *ComplexityScorer {
	return &ComplexityScorer{
		mediumThreshold:  mediumThreshold,
		complexThreshold: complexThreshold,
		simpleTarget:     simpleTarget,
		mediumTarget:     mediumTarget,
		complexTarget:    complexTarget,
	}
}

// Assess scores a query additively over keyword families and maps the score
// to a level and target length range.
func (s *ComplexityScorer) Assess(query string) Assessment {
	lower := strings.ToLower(query)
	wordCount := len(strings.Fields(query))

	score := 0
	var reasons []string

	if containsAny(lower, procedureWords) {
		score += 3
		reasons = append(reasons, "procedure/steps requested")
	}
	if containsAny(lower, emergencyWords) {
		score += 2
		reasons = append(reasons, "emergency scenario")
	}
	if containsAny(lower, multiWords) {
		score += 2
		reasons = append(reasons, "multiple topics")
	}
	if containsAny(lower, allWords) {
		score += 2
		reasons = append(reasons, "comprehensive answer requested")
	}
	if containsAny(lower, listWords) {
		score += 2
		reasons = append(reasons, "list of items requested")
	}
	if wordCount > 12 {
		score++
		reasons = append(reasons, "detailed question")
	}
	if score == 0 && hasAnyPrefix(lower, yesNoOpeners) {
		score = -1
		reasons = append(reasons, "simple yes/no question")
	}

	reasoning := "straightforward query"
	if len(reasons) > 0 {
		reasoning = strings.Join(reasons, ", ")
	}

	switch {
	case score >= s.complexThreshold:
		return Assessment{Level: LevelComplex, TargetMin: s.complexTarget[0], TargetMax: s.complexTarget[1], Reasoning: reasoning}
	case score >= s.mediumThreshold:
		return Assessment{Level: LevelMedium, TargetMin: s.mediumTarget[0], TargetMax: s.mediumTarget[1], Reasoning: reasoning}
	default:
		return Assessment{Level: LevelSimple, TargetMin: s.simpleTarget[0], TargetMax: s.simpleTarget[1], Reasoning: reasoning}
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
