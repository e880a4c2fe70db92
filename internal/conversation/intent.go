package conversation

import (
	"strings"
	"time"
)

// Intent is the router's verdict on one utterance.
type Intent int

const (
	// IntentAnswerSlot means the utterance looks like a direct value for
	// the slot the current state is collecting.
	IntentAnswerSlot Intent = iota
	// IntentAskKnowledgeBase means the utterance is a question unrelated
	// to the booking flow and should go to the knowledge collaborator.
	IntentAskKnowledgeBase
	// IntentCancel aborts the booking flow from any state.
	IntentCancel
	// IntentConfirmYes / IntentConfirmNo answer the confirmation read-back.
	IntentConfirmYes
	IntentConfirmNo
	// IntentGoBack returns to the previous flow state.
	IntentGoBack
	// IntentBook opens the booking flow from idle.
	IntentBook
)

func (i Intent) String() string {
	switch i {
	case IntentAnswerSlot:
		return "answer_slot"
	case IntentAskKnowledgeBase:
		return "ask_knowledge_base"
	case IntentCancel:
		return "cancel"
	case IntentConfirmYes:
		return "confirm_yes"
	case IntentConfirmNo:
		return "confirm_no"
	case IntentGoBack:
		return "go_back"
	case IntentBook:
		return "book"
	}
	return "unknown"
}

var cancelWords = []string{
	"cancel", "abort", "quit", "exit", "nevermind",
	"abbrechen", "stopp", "stop", "aufhören", "aufhoeren", "beenden",
}

var goBackPhrases = []string{
	"go back", "step back", "previous step", "zurück", "zurueck", "nochmal",
}

var yesWords = []string{
	"yes", "ja", "correct", "korrekt", "right", "stimmt", "genau",
	"confirm", "bestätigen", "bestaetigen", "yep", "yup", "sure", "ok", "okay",
}

var noWords = []string{
	"no", "nein", "wrong", "falsch", "incorrect", "nope",
}

var bookWords = []string{
	"book", "appointment", "reserve", "schedule", "booking",
	"buchen", "termin", "anmelden", "reservieren",
}

var questionWords = []string{
	"what", "when", "where", "who", "how", "why", "which",
	"do", "does", "can", "could", "is", "are", "was",
	"wann", "wie", "warum", "wer", "wo", "welche", "welcher",
	"kann", "können", "koennen", "ist", "sind", "gibt", "haben", "hat",
}

// Router decides whether an utterance advances the booking flow or should
// be answered by the knowledge base. Precedence is fixed: cancellation,
// go-back, confirmation (only while a confirmation is pending), then a
// lightweight shape check for the expected slot, then knowledge base. The
// precedence keeps a clinic-hours question from being swallowed as a slot
// value and a spoken date from being sent to the knowledge base.
type Router struct {
	catalog *ServiceCatalog
	now     func() time.Time
}

// NewRouter builds a router over the clinic's service catalog.
func NewRouter(catalog *ServiceCatalog, now func() time.Time) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{catalog: catalog, now: now}
}

// Route classifies the utterance given the current state.
func (r *Router) Route(text string, state State) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return IntentAskKnowledgeBase
	}

	if matchesAnyWord(lower, cancelWords) {
		return IntentCancel
	}
	if containsAny(lower, goBackPhrases...) || (containsWord(lower, "back") && !questionLike(lower)) {
		return IntentGoBack
	}

	if state == StateConfirmBooking {
		if matchesAnyWord(lower, yesWords) {
			return IntentConfirmYes
		}
		if matchesAnyWord(lower, noWords) {
			return IntentConfirmNo
		}
	}

	if state == StateIdle || state == StateBookingDone {
		if matchesAnyWord(lower, bookWords) || r.catalog.Match(lower) != "" {
			return IntentBook
		}
		return IntentAskKnowledgeBase
	}

	if r.looksLikeSlotValue(lower, state) {
		return IntentAnswerSlot
	}
	if questionLike(lower) {
		return IntentAskKnowledgeBase
	}
	// Not question-shaped: let the slot validator produce a concrete
	// rejection and reprompt instead of guessing.
	return IntentAnswerSlot
}

// looksLikeSlotValue is the lightweight shape check per collect state.
func (r *Router) looksLikeSlotValue(lower string, state State) bool {
	switch state {
	case StateCollectService:
		return r.catalog.Match(lower) != ""
	case StateCollectDate:
		_, err := ParseDate(lower, r.now())
		return err == nil
	case StateCollectSlot:
		return clockRe.MatchString(lower) || hasWordHour(lower)
	case StateCollectName:
		return !questionLike(lower)
	case StateCollectEmail:
		return strings.Contains(lower, "@") || strings.Contains(lower, " at ")
	case StateCollectPhone:
		return len(digitsRe.FindAllString(lower, -1)) >= 4
	}
	return false
}

func hasWordHour(lower string) bool {
	for word := range wordHours {
		if containsWord(lower, word) {
			return true
		}
	}
	return false
}

func questionLike(lower string) bool {
	if strings.HasSuffix(strings.TrimSpace(lower), "?") {
		return true
	}
	tokens := wordSplitRe.Split(lower, -1)
	if len(tokens) > 0 && tokens[0] != "" {
		for _, q := range questionWords {
			if tokens[0] == q {
				return true
			}
		}
	}
	return false
}

func matchesAnyWord(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(w, " ") {
			if strings.Contains(lower, w) {
				return true
			}
			continue
		}
		if containsWord(lower, w) {
			return true
		}
	}
	return false
}
