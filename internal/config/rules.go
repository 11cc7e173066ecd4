package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// TopicGateRule forces a not-in-documents answer when a query mentions any
// trigger keyword but none of the retrieved source titles contain any of the
// required hints. An empty rule set disables the gate.
type TopicGateRule struct {
	TriggerKeywords     []string `toml:"trigger_keywords"`
	RequiredSourceHints []string `toml:"required_source_hints"`
}

/// Rules holds the behavioral policy of the pipeline: thresholds, target
// lengths, keyword tables, and canned responses. Policy lives here as data
// rather than in control flow so it can be tuned without code changes.
type Rules struct {
	MaxOutboundLength          int     `toml:"max_outbound_length"`
	RAGNumResults              int     `toml:"rag_num_results"`
	ChunkSize                  int     `toml:"chunk_size"`
	ChunkOverlap               int     `toml:"chunk_overlap"`
	RelevanceDistanceThreshold float64 `toml:"relevance_distance_threshold"`
	ContextWindowMinutes       int     `toml:"context_window_minutes"`

	NotInDocumentsMessage string `toml:"not_in_documents_message"`

	ComplexityMediumThreshold  int    `toml:"complexity_medium_threshold"`
	ComplexityComplexThreshold int    `toml:"complexity_complex_threshold"`
	ComplexitySimpleTarget     [2]int `toml:"complexity_simple_target"`
	ComplexityMediumTarget     [2]int `toml:"complexity_medium_target"`
	ComplexityComplexTarget    [2]int `toml:"complexity_complex_target"`

	ImageTriggerPhrases       []string `toml:"image_trigger_phrases"`
	ImageDescriptionMaxLength int      `toml:"image_description_max_length"`
	ImageDescriptionFallback  string   `toml:"image_description_fallback"`
	ImageCaptionFallback      string   `toml:"image_caption_fallback"`

	GeneralResponseMaxChars int    `toml:"general_response_max_chars"`
	GeneralFallbackMessage  string `toml:"general_fallback_message"`

	InboundMessageMaxLength int `toml:"inbound_message_max_length"`
	RateLimitWindowSeconds  int `toml:"rate_limit_window_seconds"`
	RateLimitMaxRequests    int `toml:"rate_limit_max_requests"`

	InjectionPatterns []string            `toml:"injection_patterns"`
	SafetyKeywords    []string            `toml:"safety_keywords"`
	CannedResponses   map[string][]string `toml:"canned_responses"`
	TopicGateRules    []TopicGateRule     `toml:"topic_gate_rules"`
}

// GeneralKeywords returns the keyword list used to route a message to the
// general path: the canned-response keys plus a few capability phrases.
func (r *Rules) GeneralKeywords() []string {
	keywords := make([]string, 0, len(r.CannedResponses)+6)
	for key := range r.CannedResponses {
		keywords = append(keywords, key)
	}
	keywords = append(keywords,
		"help", "start", "well done", "good job",
		"what can you help", "how can you help",
	)
	return keywords
}

// DefaultRules returns the built-in policy. A rules file overrides fields it
// sets; everything else keeps these values.
func DefaultRules() *Rules {
	return &Rules{
		MaxOutboundLength:          1400,
		RAGNumResults:              5,
		ChunkSize:                  500,
		ChunkOverlap:               50,
		RelevanceDistanceThreshold: 0.45,
		ContextWindowMinutes:       10,

		NotInDocumentsMessage: "This isn't in our safety documents. Please contact your HSE officer or check company communications.",

		ComplexityMediumThreshold:  2,
		ComplexityComplexThreshold: 5,
		ComplexitySimpleTarget:     [2]int{400, 600},
		ComplexityMediumTarget:     [2]int{700, 900},
		ComplexityComplexTarget:    [2]int{1000, 1250},

		ImageTriggerPhrases: []string{
			"show me", "draw", "picture", "visual", "illustrate",
			"image of", "image for", "figure of", "photo",
		},
		ImageDescriptionMaxLength: 120,
		ImageDescriptionFallback:  "workplace safety equipment and procedures",
		ImageCaptionFallback:      "Safety image (see image above).",

		GeneralResponseMaxChars: 200,
		GeneralFallbackMessage:  "SafeGuardAI here. Ask me any workplace safety question.",

		InboundMessageMaxLength: 500,
		RateLimitWindowSeconds:  3600,
		RateLimitMaxRequests:    20,

		InjectionPatterns: []string{
			"ignore previous instructions",
			"ignore all instructions",
			"disregard your instructions",
			"you are now",
			"new instructions:",
			"system prompt:",
			"forget everything",
		},
		SafetyKeywords: []string{
			"safety", "hazard", "procedure", "steps", "required", "emergency",
			"equipment", "inspection", "permit", "compliance", "regulation",
			"ppe", "gloves", "voltage", "electrical", "lockout", "tagout", "loto",
			"confined space", "arc flash", "injury", "testing", "rescue",
			"atmospheric", "boundary", "document", "policy", "control",
		},
		CannedResponses: map[string][]string{
			"hello": {
				"Hello. I'm here to help with workplace safety questions. What would you like to know?",
				"Hello. I'm your workplace safety assistant. What safety or compliance question can I help with?",
				"Hello. Ask me any safety or compliance question from your company documents.",
			},
			"hi": {
				"Hi. How can I help you with workplace safety today?",
				"Hi. I can answer safety procedures and compliance questions. What do you need?",
				"Hi. What safety topic can I help you with?",
			},
			"hey": {
				"Hello. What safety question can I help you with?",
				"Hi. I'm here for safety and compliance questions. How can I assist?",
			},
			"good morning": {
				"Good morning. Stay safe today. What safety question can I help with?",
				"Good morning. How can I assist you with workplace safety this morning?",
			},
			"good afternoon": {
				"Good afternoon. What safety question can I help with?",
				"Good afternoon. I'm here for safety and compliance. What do you need?",
			},
			"good evening": {
				"Good evening. What safety question can I help with?",
				"Good evening. Ask me anything about workplace safety from your documents.",
			},
			"how are you": {
				"I'm here to help with safety questions. What do you need today?",
				"Ready to assist with safety and compliance. What can I help you with?",
			},
			"what can you do": {
				"I use your company safety documents to answer questions on procedures, PPE, hazard controls, and compliance. What would you like to know?",
				"I answer safety and compliance questions from your uploaded docs — procedures, PPE, lockout/tagout, confined space, electrical safety. What do you need?",
			},
			"what do you do": {
				"I use your company safety documents to answer questions on procedures, PPE, hazard controls, and compliance. What would you like to know?",
				"I answer safety and compliance questions from your uploaded docs — procedures, PPE, lockout/tagout, confined space, electrical safety. What do you need?",
			},
			"who are you": {
				"I'm SafeGuardAI, your workplace safety assistant. I answer questions using your company's safety documents. How can I help you?",
				"SafeGuardAI — I use your company documents to answer safety and compliance questions. What can I help with?",
			},
			"what kind of things can you help with": {
				"Anything in our safety docs. Ask about a specific task — for example electrical work, PPE, or confined space — and I'll give you the details.",
				"Go ahead and ask. If it's in our procedures or PPE guides, I'll pull the answer.",
			},
			"ready to ask": {
				"Go ahead. Ask about a procedure, PPE, or any safety topic and I'll pull the details.",
				"Yes. What do you need to know?",
			},
			"can i ask you a specific question": {
				"Yes. Go ahead — ask about a procedure, PPE, or any safety topic and I'll pull the details.",
				"Of course. What do you need to know?",
			},
			"thank you": {
				"You're welcome. Contact me again whenever you have another safety question.",
				"You're welcome. Stay safe, and ask anytime you need guidance.",
				"You're welcome. I'm here whenever you have more questions.",
			},
			"thanks": {
				"You're welcome. Anything else you need, just ask.",
				"You're welcome. Stay safe. I'm here if you have further questions.",
				"You're welcome. Let me know if you need anything else.",
			},
			"thank you so much": {
				"You're welcome. Stay safe, and reach out whenever you need assistance.",
				"You're welcome. Take care, and ask again anytime.",
			},
			"appreciate it": {
				"You're welcome. Stay safe. I'm here if you need anything else.",
				"You're welcome. Let me know if another question comes up.",
			},
			"great": {
				"Good to hear. If you have another safety question, just ask.",
				"Understood. Stay safe, and I'm here if you need more help.",
			},
			"awesome": {
				"Good to hear. Stay safe. I'm here for any follow-up questions.",
				"Understood. If you need anything else, ask anytime.",
			},
			"perfect": {
				"Understood. Stay safe. I'm here if you need anything else.",
				"Good to hear. Let me know if you have further questions.",
			},
			"ok": {
				"Understood. Let me know if you need anything else.",
				"Understood. I'm here if you have more questions.",
			},
			"okay": {
				"Understood. Anything else I can help with?",
				"Understood. Stay safe. Ask again whenever you need.",
			},
			"got it": {
				"Understood. Stay safe. I'm here if you need more.",
				"Understood. Let me know if you have another question.",
			},
			"that's all i needed, thanks": {
				"You're welcome. Stay safe, and ask anytime you need guidance.",
				"Glad I could help. Come back whenever you have another question.",
			},
			"thanks, that was helpful": {
				"You're welcome. Stay safe. I'm here if you need anything else.",
				"Glad it helped. Ask again whenever you need.",
			},
			"understood": {
				"Understood. Stay safe. I'm here if you need more details.",
				"Understood. Stay safe. I'm here for follow-up questions.",
			},
			"bye": {
				"Stay safe. Come back anytime you have a safety question.",
				"Take care. I'm here whenever you need safety guidance.",
			},
			"that's all for now, bye": {
				"Stay safe. Come back anytime you have a safety question.",
				"Take care. I'm here whenever you need safety guidance.",
			},
			"take care": {
				"You too. Stay safe, and ask again whenever you need.",
				"Take care. I'm here whenever you need safety guidance.",
			},
			"goodbye": {
				"Goodbye. Stay safe on the job.",
				"Goodbye. Take care, and ask again anytime.",
			},
			"good night": {
				"Good night. Stay safe.",
				"Good night. Rest well. I'm here when you need me.",
			},
		},
		TopicGateRules: nil,
	}
}

// LoadRules returns the default rules overridden by the TOML file at path,
// when path is non-empty and the file exists.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return rules, nil
		}
		return nil, fmt.Errorf("failed to stat rules file: %w", err)
	}
	if _, err := toml.DecodeFile(path, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if err := rules.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	return rules, nil
}

func (r *Rules) validate() error {
	if r.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be greater than 0")
	}
	if r.ChunkOverlap < 0 || r.ChunkOverlap >= r.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size)")
	}
	if r.RAGNumResults <= 0 {
		return fmt.Errorf("rag_num_results must be greater than 0")
	}
	if r.MaxOutboundLength <= 0 {
		return fmt.Errorf("max_outbound_length must be greater than 0")
	}
	if r.NotInDocumentsMessage == "" {
		return fmt.Errorf("not_in_documents_message must not be empty")
	}
	return nil
}
