package classify

import "strings"

// Intent is the routing decision for an inbound message.
type Intent string

const (
	// IntentCached means the message matches a canned-response key exactly.
	IntentCached Intent = "cached"
	// IntentGeneral means greeting/small-talk/capability chatter.
	IntentGeneral Intent = "general"
	// IntentSafety means the message goes through the retrieval pipeline.
	IntentSafety Intent = "safety"
)

// Follow-up override bounds: a short question sent shortly after a safety
// exchange is treated as a follow-up even when it looks general.
const followUpMaxLength = 120

// IntentClassifier routes messages by keyword tables. The tables are data
// (injected from config), not control flow.
type IntentClassifier struct {
	canned          map[string][]string
	safetyKeywords  []string
	generalKeywords []string
}

// NewIntentClassifier creates a classifier from the canned-response table
// and the safety/general keyword lists.
func NewIntentClassifier(canned map[string][]string, safetyKeywords, generalKeywords []string) *IntentClassifier {
	return &IntentClassifier{
		canned:          canned,
		safetyKeywords:  safetyKeywords,
		generalKeywords: generalKeywords,
	}
}

// Classify returns the intent for a message. Precedence: exact canned match,
// safety keyword, general keyword, short message, default safety.
func (c *IntentClassifier) Classify(message string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(message))

	if _, ok := c.canned[normalized]; ok {
		return IntentCached
	}

	for _, keyword := range c.safetyKeywords {
		if strings.Contains(normalized, keyword) {
			return IntentSafety
		}
	}

	for _, keyword := range c.generalKeywords {
		if strings.Contains(normalized, keyword) {
			return IntentGeneral
		}
	}

	if len(strings.Fields(normalized)) <= 3 {
		return IntentGeneral
	}

	return IntentSafety
}

// CannedVariants returns the reply variants for a canned key, or nil.
func (c *IntentClassifier) CannedVariants(message string) []string {
	return c.canned[strings.ToLower(strings.TrimSpace(message))]
}

// IsCannedKey reports whether the message, lowercased and with trailing
// question marks stripped, is itself a canned-response key. Used so intro
// questions like "what can you do?" are never re-routed to the safety path.
func (c *IntentClassifier) IsCannedKey(message string) bool {
	normalized := strings.TrimSpace(strings.TrimRight(strings.ToLower(strings.TrimSpace(message)), "?"))
	_, ok := c.canned[normalized]
	return ok
}

// IsFollowUp reports whether a general-classified message should be
// re-routed to the safety path: there is a recent safety exchange, the
// message contains a question mark, it is short, and it is not itself a
// canned key.
func (c *IntentClassifier) IsFollowUp(message string, hasRecentSafetyExchange bool) bool {
	if !hasRecentSafetyExchange {
		return false
	}
	if !strings.Contains(message, "?") {
		return false
	}
	if len(strings.TrimSpace(message)) > followUpMaxLength {
		return false
	}
	return !c.IsCannedKey(message)
}
