package conversation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Validation errors. Each maps to a specific reprompt; none of them ever
// terminates a session.
var (
	ErrValueNotRecognized = errors.New("conversation: value not recognized")
	ErrDateInPast         = errors.New("conversation: date is in the past")
	ErrClinicClosed       = errors.New("conversation: clinic closed on that day")
	ErrTimeAmbiguous      = errors.New("conversation: time matches multiple offered slots")
)

// ServiceCatalog maps free-form service mentions to the clinic's canonical
// service list.
type ServiceCatalog struct {
	services []string
	aliases  map[string]string
}

// builtinAliases maps spoken/typed variants, English and German, to
// canonical service names. Only aliases whose canonical service is
// configured are active.
var builtinAliases = map[string]string{
	"physio":             "physiotherapy",
	"physiotherapy":      "physiotherapy",
	"physical therapy":   "physiotherapy",
	"physiotherapie":     "physiotherapy",
	"krankengymnastik":   "physiotherapy",
	"massage":            "massage",
	"osteo":              "osteopathy",
	"osteopathy":         "osteopathy",
	"osteopathie":        "osteopathy",
	"mental coaching":    "mental coaching",
	"mental training":    "mental coaching",
	"mentaltraining":     "mental coaching",
	"coaching":           "mental coaching",
	"ergo":               "ergotherapy",
	"ergotherapy":        "ergotherapy",
	"ergotherapie":       "ergotherapy",
	"occupational":       "ergotherapy",
	"acupuncture":        "acupuncture",
	"akupunktur":         "acupuncture",
	"nutrition":          "nutrition counseling",
	"dietitian":          "nutrition counseling",
	"ernährung":          "nutrition counseling",
	"ernaehrung":         "nutrition counseling",
	"ernährungsberatung": "nutrition counseling",
}

// NewServiceCatalog builds a catalog for the configured service list.
func NewServiceCatalog(services []string) *ServiceCatalog {
	canonical := make(map[string]struct{}, len(services))
	normalized := make([]string, 0, len(services))
	for _, s := range services {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		canonical[s] = struct{}{}
		normalized = append(normalized, s)
	}

	aliases := make(map[string]string)
	for alias, target := range builtinAliases {
		if _, ok := canonical[target]; ok {
			aliases[alias] = target
		}
	}
	// Every canonical name matches itself even without a builtin alias.
	for s := range canonical {
		aliases[s] = s
	}

	return &ServiceCatalog{services: normalized, aliases: aliases}
}

// Services returns the canonical service list.
func (c *ServiceCatalog) Services() []string {
	return c.services
}

// Match extracts a canonical service from free-form text, or "".
// Longer aliases are checked first so "mental coaching" wins over "massage"
// ordering quirks and multi-word aliases beat their substrings.
func (c *ServiceCatalog) Match(text string) string {
	lower := strings.ToLower(text)
	best := ""
	bestLen := 0
	for alias, canonical := range c.aliases {
		if len(alias) > bestLen && strings.Contains(lower, alias) {
			best = canonical
			bestLen = len(alias)
		}
	}
	return best
}

// ValidateService returns the canonical service for the utterance.
func (c *ServiceCatalog) ValidateService(text string) (string, error) {
	if svc := c.Match(text); svc != "" {
		return svc, nil
	}
	return "", ErrValueNotRecognized
}

var (
	isoDateRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	europeanDateRe = regexp.MustCompile(`\b(\d{1,2})[.\-/](\d{1,2})[.\-/](\d{4})\b`)
	shortDateRe    = regexp.MustCompile(`\b(\d{1,2})[.\-/](\d{1,2})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"januar": time.January, "februar": time.February, "märz": time.March,
	"maerz": time.March, "mai": time.May, "juni": time.June, "juli": time.July,
	"oktober": time.October, "dezember": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
	"sunday": time.Sunday,
	"montag": time.Monday, "dienstag": time.Tuesday, "mittwoch": time.Wednesday,
	"donnerstag": time.Thursday, "freitag": time.Friday, "samstag": time.Saturday,
	"sonntag": time.Sunday,
}

// ParseDate extracts a calendar date from free-form text. It understands
// relative phrases (today, tomorrow, next week, weekday names), ISO and
// European numeric formats, and written month names in English and German.
// Returns the date normalized as YYYY-MM-DD.
func ParseDate(text string, now time.Time) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if containsAny(lower, "today", "heute", "jetzt") {
		return today.Format("2006-01-02"), nil
	}
	if containsAny(lower, "day after tomorrow", "übermorgen", "uebermorgen") {
		return today.AddDate(0, 0, 2).Format("2006-01-02"), nil
	}
	if containsAny(lower, "tomorrow", "morgen") {
		return today.AddDate(0, 0, 1).Format("2006-01-02"), nil
	}
	if containsAny(lower, "next week", "nächste woche", "naechste woche") {
		return today.AddDate(0, 0, 7).Format("2006-01-02"), nil
	}

	// Weekday names resolve to the next occurrence of that weekday; "next
	// tuesday" and a bare "tuesday" both mean the upcoming one.
	for name, weekday := range weekdayNames {
		if !containsWord(lower, name) {
			continue
		}
		days := int(weekday-today.Weekday()+7) % 7
		if days == 0 {
			days = 7
		}
		return today.AddDate(0, 0, days).Format("2006-01-02"), nil
	}

	if m := isoDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[1], m[2], m[3])
	}
	if m := europeanDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(m[3], m[2], m[1])
	}

	// Written month names: "march 15", "15 march", "15. märz".
	for name, month := range monthNames {
		re := regexp.MustCompile(fmt.Sprintf(`\b(\d{1,2})\s*\.?\s*%s\b|\b%s\s+(\d{1,2})\b`, name, name))
		if m := re.FindStringSubmatch(lower); m != nil {
			day := m[1]
			if day == "" {
				day = m[2]
			}
			return normalizeDate(fmt.Sprintf("%d", yearFor(month, day, today)), fmt.Sprintf("%02d", int(month)), day)
		}
	}

	// Day and month without year ("15.03") assume the current year.
	if m := shortDateRe.FindStringSubmatch(text); m != nil {
		return normalizeDate(fmt.Sprintf("%d", today.Year()), m[2], m[1])
	}

	return "", ErrValueNotRecognized
}

// yearFor picks this year unless the month/day already passed, in which
// case the date rolls into next year.
func yearFor(month time.Month, day string, today time.Time) int {
	d := 1
	fmt.Sscanf(day, "%d", &d)
	candidate := time.Date(today.Year(), month, d, 0, 0, 0, 0, today.Location())
	if candidate.Before(today) {
		return today.Year() + 1
	}
	return today.Year()
}

func normalizeDate(year, month, day string) (string, error) {
	raw := fmt.Sprintf("%04d-%02d-%02d", atoiSafe(year), atoiSafe(month), atoiSafe(day))
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return "", ErrValueNotRecognized
	}
	return parsed.Format("2006-01-02"), nil
}

// ValidateDate parses the utterance as a date and checks clinic rules: not
// in the past and not on a closed weekday.
func ValidateDate(text string, now time.Time, closedWeekdays map[time.Weekday]bool) (string, error) {
	dateStr, err := ParseDate(text, now)
	if err != nil {
		return "", err
	}
	parsed, err := time.ParseInLocation("2006-01-02", dateStr, now.Location())
	if err != nil {
		return "", ErrValueNotRecognized
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if parsed.Before(today) {
		return "", ErrDateInPast
	}
	if closedWeekdays[parsed.Weekday()] {
		return "", ErrClinicClosed
	}
	return dateStr, nil
}

// ClosedWeekdaySet translates configured weekday names ("sunday") into a
// lookup set.
func ClosedWeekdaySet(names []string) map[time.Weekday]bool {
	lookup := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	set := make(map[time.Weekday]bool, len(names))
	for _, n := range names {
		if wd, ok := lookup[strings.ToLower(strings.TrimSpace(n))]; ok {
			set[wd] = true
		}
	}
	return set
}

var clockRe = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|uhr)?\b`)

var wordHours = map[string]int{
	"nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"one": 13, "two": 14, "three": 15, "four": 16, "five": 17,
	"neun": 9, "zehn": 10, "elf": 11, "zwölf": 12, "zwoelf": 12,
	"dreizehn": 13, "vierzehn": 14, "fünfzehn": 15, "fuenfzehn": 15,
	"sechzehn": 16, "siebzehn": 17,
}

var affirmativeWords = []string{
	"yes", "ja", "ok", "okay", "sure", "fine", "good", "that", "passt", "gerne",
}

// MatchTime resolves a spoken time against the offered slot list. Exact
// HH:MM matches are authoritative. An hour-level mention ("3", "3pm",
// "fifteen") is accepted only when exactly one offered slot starts in that
// hour; more than one is ambiguous and returns ErrTimeAmbiguous. When only
// a single slot is on offer, a bare affirmative accepts it.
func MatchTime(text string, offered []string) (string, error) {
	if len(offered) == 0 {
		return "", ErrValueNotRecognized
	}
	lower := strings.ToLower(text)

	if m := clockRe.FindStringSubmatch(lower); m != nil {
		hour := atoiSafe(m[1])
		minute := m[2]
		if m[3] == "pm" && hour < 12 {
			hour += 12
		}
		if m[3] == "am" && hour == 12 {
			hour = 0
		}
		if minute != "" {
			candidates := []string{fmt.Sprintf("%02d:%s", hour, minute)}
			if m[3] == "" && hour < 12 {
				// "3:30" with no marker may mean the afternoon slot.
				candidates = append(candidates, fmt.Sprintf("%02d:%s", hour+12, minute))
			}
			for _, candidate := range candidates {
				for _, slot := range offered {
					if slot == candidate {
						return slot, nil
					}
				}
			}
			// Explicit minutes that match no offered slot are a miss;
			// never substitute a nearby time.
			return "", ErrValueNotRecognized
		}
		if slot, err := matchHour(hour, offered); err != nil || slot != "" {
			return slot, err
		}
		// A morning hour spoken without am/pm may mean the afternoon
		// slot ("3" for 15:00) when no morning slot exists.
		if m[3] == "" && hour < 12 {
			if slot, err := matchHour(hour+12, offered); err != nil || slot != "" {
				return slot, err
			}
		}
	}

	for word, hour := range wordHours {
		if containsWord(lower, word) {
			if slot, err := matchHour(hour, offered); err != nil || slot != "" {
				return slot, err
			}
		}
	}

	if len(offered) == 1 {
		for _, w := range affirmativeWords {
			if containsWord(lower, w) {
				return offered[0], nil
			}
		}
	}

	return "", ErrValueNotRecognized
}

// matchHour returns the single offered slot starting in the given hour,
// "" when none does, or ErrTimeAmbiguous for multiple.
func matchHour(hour int, offered []string) (string, error) {
	prefix := fmt.Sprintf("%02d:", hour)
	found := ""
	for _, slot := range offered {
		if strings.HasPrefix(slot, prefix) {
			if found != "" {
				return "", ErrTimeAmbiguous
			}
			found = slot
		}
	}
	return found, nil
}

var digitsRe = regexp.MustCompile(`\d`)

// ValidateName accepts any non-empty, not purely numeric utterance and
// normalizes it to title case.
func ValidateName(text string) (string, error) {
	name := strings.TrimSpace(text)
	if len(name) < 2 {
		return "", ErrValueNotRecognized
	}
	if len(digitsRe.FindAllString(name, -1)) == len(strings.ReplaceAll(name, " ", "")) {
		return "", ErrValueNotRecognized
	}
	return titleCase(name), nil
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		if len(runes) > 0 {
			runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

var emailRe = regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)

// ValidateEmail extracts a standard-grammar email address from the
// utterance. Spoken separators ("at", "dot") are normalized first so STT
// output like "jane at example dot com" validates.
func ValidateEmail(text string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.ReplaceAll(normalized, " at ", "@")
	normalized = strings.ReplaceAll(normalized, " dot ", ".")
	normalized = strings.ReplaceAll(normalized, " punkt ", ".")

	// Match with word boundaries intact so surrounding words stay out of
	// the address.
	if m := emailRe.FindString(normalized); m != "" {
		return m, nil
	}
	// STT may split the address itself ("jane @ example . com"); collapse
	// spaces and retry.
	if m := emailRe.FindString(strings.ReplaceAll(normalized, " ", "")); m != "" {
		return m, nil
	}
	return "", ErrValueNotRecognized
}

var phoneCharRe = regexp.MustCompile(`^[\d+\s\-()]+$`)

const minPhoneDigits = 9

// ValidatePhone keeps only digits and a leading +, requiring at least
// minPhoneDigits digits. The raw utterance may contain only digits,
// plus, spaces, hyphens, and parentheses.
func ValidatePhone(text string) (string, error) {
	raw := strings.TrimSpace(text)
	if raw == "" || !phoneCharRe.MatchString(raw) {
		return "", ErrValueNotRecognized
	}
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	phone := b.String()
	digits := len(phone)
	if strings.HasPrefix(phone, "+") {
		digits--
	}
	if digits < minPhoneDigits {
		return "", ErrValueNotRecognized
	}
	return phone, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func containsAny(text string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

var wordSplitRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

func containsWord(text, word string) bool {
	for _, tok := range wordSplitRe.Split(text, -1) {
		if tok == word {
			return true
		}
	}
	return false
}
