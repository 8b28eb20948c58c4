// Package intent classifies visitor messages with keyword heuristics. The
// labels feed message metadata and the contact-capture flow; they are
// advisory and never block a reply.
package intent

import (
	"strings"

	"github.com/zentiam/assistd/internal/knowledge"
)

// Intent labels, ordered by funnel depth.
const (
	Exploring       = "exploring"
	SpecificProblem = "specific_problem"
	ReadyToConvert  = "ready_to_convert"
)

// Sentiment labels.
const (
	Satisfied  = "satisfied"
	Neutral    = "neutral"
	Frustrated = "frustrated"
)

var convertSignals = []string{
	"pricing", "price", "cost", "quote", "buy", "purchase", "sign up",
	"get started", "start", "demo", "call", "meeting", "talk to", "contact",
	"hire", "book",
}

var problemSignals = []string{
	"problem", "issue", "help with", "struggling", "error", "broken",
	"not working", "how do i", "how can i", "need to", "trying to",
	"integrate", "migrate", "automate",
}

var frustratedSignals = []string{
	"frustrated", "annoying", "useless", "terrible", "waste", "not helpful",
	"doesn't work", "does not work", "wrong", "bad answer", "stupid",
	"still waiting", "again",
}

var satisfiedSignals = []string{
	"thanks", "thank you", "great", "perfect", "awesome", "helpful",
	"exactly", "appreciate", "love it",
}

// Detect returns the intent label for one message. Conversion signals outrank
// problem signals; everything else is exploring.
func Detect(message string) string {
	m := " " + knowledge.NormalizeQuestion(message) + " "
	if containsAny(m, convertSignals) {
		return ReadyToConvert
	}
	if containsAny(m, problemSignals) {
		return SpecificProblem
	}
	return Exploring
}

// Sentiment returns the sentiment label for one message. Frustration outranks
// satisfaction so a mixed message still flags for follow-up.
func Sentiment(message string) string {
	m := " " + knowledge.NormalizeQuestion(message) + " "
	if containsAny(m, frustratedSignals) {
		return Frustrated
	}
	if containsAny(m, satisfiedSignals) {
		return Satisfied
	}
	return Neutral
}

// containsAny does whole-word matching: both sides are normalized, so
// signals with punctuation ("doesn't work") compare cleanly.
func containsAny(normalized string, signals []string) bool {
	for _, s := range signals {
		if strings.Contains(normalized, " "+knowledge.NormalizeQuestion(s)+" ") {
			return true
		}
	}
	return false
}
