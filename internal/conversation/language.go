package conversation

import "strings"

// Supported language codes.
const (
	LangEnglish = "en"
	LangGerman  = "de"
)

// languageMarkers holds small per-language marker-word lists. A language
// wins when at least languageThreshold of its markers appear as whole
// tokens in the utterance; otherwise the session keeps its current
// language. English is the baseline and needs no marker list.
var languageMarkers = map[string][]string{
	LangGerman: {
		"ich", "bitte", "danke", "möchte", "mochte", "termin",
		"buchen", "hallo", "ja", "nein", "wie", "können", "konnen",
		"wann", "welche", "einen", "eine", "der", "die", "das",
		"für", "fur", "und", "oder", "mit", "von", "auf", "ist",
		"guten", "morgen", "tag", "abend", "uhr", "kein", "nicht",
	},
}

const languageThreshold = 2

// DetectLanguage scores the utterance against the marker lists and returns
// the detected language code, or the provided current language when no
// list reaches the threshold. A heuristic, not a classifier: staying on the
// wrong language is acceptable, flipping on a single stray word is not.
func DetectLanguage(text, current string) string {
	if current == "" {
		current = LangEnglish
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return current
	}

	best := current
	bestScore := 0
	for lang, markers := range languageMarkers {
		score := 0
		for _, marker := range markers {
			if _, ok := tokens[marker]; ok {
				score++
			}
		}
		if score >= languageThreshold && score > bestScore {
			best = lang
			bestScore = score
		}
	}

	// An English utterance pulls a German session back only with the same
	// confidence requirement.
	if best == current && current != LangEnglish {
		englishScore := 0
		for _, marker := range englishMarkers {
			if _, ok := tokens[marker]; ok {
				englishScore++
			}
		}
		if englishScore >= languageThreshold && englishScore > bestScore {
			return LangEnglish
		}
	}
	return best
}

var englishMarkers = []string{
	"i", "the", "please", "thanks", "would", "like", "want",
	"book", "appointment", "hello", "yes", "no", "how", "can",
	"when", "which", "what", "for", "and", "with", "is", "my",
}

func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', '.', '!', '?', ';', ':', '"', '\'':
			return true
		}
		return false
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
