// Package services holds the application layer: credential resolution,
// retrieval, chat orchestration, indexing and reindexing. Services depend on
// repos and providers through interfaces and carry no transport concerns.
package services

import "strings"

// Canonical security and fallback answers. These exact strings are also used
// as markers: a reply equal to one of them carries zero reliability.
const (
	RefusalMessage = "I cannot disclose system or internal instructions. " +
		"I can help with project content or answer your business question instead."
	SanitizedAnswerMessage = "I cannot disclose system or internal instructions. " +
		"Please ask a question related to your project content."
	NoContextMessage  = "I could not find relevant context to answer your message."
	LLMFailureMessage = "I found relevant context but could not generate an answer right now. " +
		"Please try again in a few seconds."
)

// exfiltrationPatterns flag user messages that try to pull out hidden
// instructions. Matching is lowercase substring, deliberately blunt: a false
// positive costs one refusal, a false negative leaks the prompt.
var exfiltrationPatterns = []string{
	"prompt system",
	"system prompt",
	"instructions internes",
	"internal instructions",
	"affiche le prompt",
	"show the prompt",
	"reveal the prompt",
	"ignore previous instructions",
	"developer prompt",
	"admin prompt",
}

// leakMarkers flag model output that is quoting the hidden instructions back.
var leakMarkers = []string{
	"instructions système plateforme raggae",
	"system prompt",
	"internal instructions",
	"developer prompt",
	"admin prompt",
}

// SecurityPolicy is a static, deterministic gate enforced outside the LLM
// prompt. It runs before any embedding or completion call.
type SecurityPolicy struct{}

func NewSecurityPolicy() *SecurityPolicy { return &SecurityPolicy{} }

// IsDisallowedUserMessage reports whether the message matches a known
// instruction-exfiltration pattern.
func (p *SecurityPolicy) IsDisallowedUserMessage(message string) bool {
	normalized := strings.ToLower(message)
	for _, pattern := range exfiltrationPatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	return false
}

// SanitizeModelAnswer replaces an answer that leaks internal instructions
// with the canonical sanitized message; clean answers pass through unchanged.
func (p *SecurityPolicy) SanitizeModelAnswer(answer string) string {
	normalized := strings.ToLower(answer)
	for _, marker := range leakMarkers {
		if strings.Contains(normalized, marker) {
			return SanitizedAnswerMessage
		}
	}
	return answer
}

// isCanonicalFallback reports whether an answer is one of the fixed refusal
// or fallback strings, which always carry zero reliability.
func isCanonicalFallback(answer string) bool {
	switch answer {
	case RefusalMessage, SanitizedAnswerMessage, NoContextMessage, LLMFailureMessage:
		return true
	}
	return false
}
