package conversation

import "strings"

// responses holds every agent utterance, keyed by message id and language.
// Keeping all copy in one table mirrors how the clinic reviews wording and
// keeps the engine free of literals. Placeholder syntax is {name}.
var responses = map[string]map[string]string{
	"welcome": {
		"en": "Welcome to {clinic}! I can answer questions about our clinic or help you book an appointment. How can I help you today?",
		"de": "Willkommen bei {clinic}! Ich kann Ihnen Fragen über unsere Klinik beantworten oder Ihnen helfen, einen Termin zu buchen. Wie kann ich Ihnen heute helfen?",
	},
	"ask_service": {
		"en": "Which service would you like to book? We offer {services}.",
		"de": "Welchen Service möchten Sie buchen? Wir bieten {services} an.",
	},
	"service_not_found": {
		"en": "I didn't catch that service. Please choose one of: {services}.",
		"de": "Den Service habe ich nicht verstanden. Bitte wählen Sie aus: {services}.",
	},
	"service_not_found_retry": {
		"en": "Sorry, I still didn't recognize a service. You could say for example \"massage\" or \"physiotherapy\". We offer {services}.",
		"de": "Entschuldigung, ich habe immer noch keinen Service erkannt. Sie können zum Beispiel \"Massage\" oder \"Physiotherapie\" sagen. Wir bieten {services} an.",
	},
	"service_confirmed": {
		"en": "Great, {service}! What date would you like? You can say tomorrow, next Tuesday, or a specific date like March 15th.",
		"de": "Sehr gut, {service}! Für welches Datum möchten Sie buchen? Sie können zum Beispiel morgen, nächsten Dienstag oder ein konkretes Datum sagen.",
	},
	"ask_date": {
		"en": "What date would you like the appointment?",
		"de": "Für welches Datum möchten Sie den Termin?",
	},
	"date_not_found": {
		"en": "I didn't catch the date. Please say something like tomorrow, next Tuesday, or a date like March 15th.",
		"de": "Das Datum habe ich nicht verstanden. Bitte sagen Sie zum Beispiel morgen, nächsten Dienstag oder den 15. März.",
	},
	"date_not_found_retry": {
		"en": "Sorry, I still couldn't understand the date. Examples that work: \"tomorrow\", \"next Tuesday\", \"2025-03-15\", or \"15.03\".",
		"de": "Entschuldigung, das Datum habe ich wieder nicht verstanden. Beispiele: \"morgen\", \"nächsten Dienstag\", \"15.03\" oder \"2025-03-15\".",
	},
	"date_past": {
		"en": "That date is already in the past. Please choose an upcoming date.",
		"de": "Dieses Datum liegt bereits in der Vergangenheit. Bitte wählen Sie ein kommendes Datum.",
	},
	"date_closed": {
		"en": "The clinic is closed on that day. Please choose another date.",
		"de": "An diesem Tag ist die Klinik geschlossen. Bitte wählen Sie ein anderes Datum.",
	},
	"no_slots": {
		"en": "Sorry, there are no available slots for {service} on {date}. Would you like to try a different date?",
		"de": "Es tut mir leid, für {service} am {date} sind keine Termine verfügbar. Möchten Sie ein anderes Datum versuchen?",
	},
	"available_slots": {
		"en": "On {date} we have these available times for {service}: {times}. Which time works for you?",
		"de": "Am {date} sind folgende Zeiten für {service} verfügbar: {times}. Welche Zeit passt Ihnen?",
	},
	"time_not_found": {
		"en": "That time is not available. Please choose from: {times}.",
		"de": "Diese Zeit ist nicht verfügbar. Bitte wählen Sie aus: {times}.",
	},
	"time_ambiguous": {
		"en": "I found more than one slot around that time: {times}. Which one exactly would you like?",
		"de": "Um diese Zeit gibt es mehrere Termine: {times}. Welchen genau möchten Sie?",
	},
	"ask_name": {
		"en": "Perfect! What is your full name?",
		"de": "Perfekt! Wie ist Ihr vollständiger Name?",
	},
	"name_invalid": {
		"en": "I didn't catch your name. Could you tell me your full name, please?",
		"de": "Den Namen habe ich nicht verstanden. Wie ist bitte Ihr vollständiger Name?",
	},
	"ask_email": {
		"en": "Thanks, {name}! What email address should we use for the confirmation?",
		"de": "Danke, {name}! An welche E-Mail-Adresse dürfen wir die Bestätigung schicken?",
	},
	"email_invalid": {
		"en": "That doesn't look like a valid email address. Could you repeat it?",
		"de": "Das scheint keine gültige E-Mail-Adresse zu sein. Können Sie sie wiederholen?",
	},
	"email_invalid_retry": {
		"en": "Sorry, I still couldn't read that as an email address. An example of the format I need: jane@example.com.",
		"de": "Entschuldigung, das konnte ich wieder nicht als E-Mail-Adresse lesen. Ein Beispiel für das Format: jane@example.com.",
	},
	"ask_phone": {
		"en": "And your phone number?",
		"de": "Und Ihre Telefonnummer?",
	},
	"phone_invalid": {
		"en": "Please provide a complete phone number, for example plus 41 79 123 45 67.",
		"de": "Bitte nennen Sie eine vollständige Telefonnummer, zum Beispiel plus 41 79 123 45 67.",
	},
	"phone_invalid_retry": {
		"en": "Sorry, that still doesn't look like a complete number. I need at least nine digits, for example +41 79 123 45 67.",
		"de": "Entschuldigung, das sieht noch nicht nach einer vollständigen Nummer aus. Ich brauche mindestens neun Ziffern, zum Beispiel +41 79 123 45 67.",
	},
	"confirm_booking": {
		"en": "Let me confirm your appointment:\n{summary}\nShall I confirm this booking? Please say yes or no.",
		"de": "Ich bestätige Ihren Termin:\n{summary}\nSoll ich diesen Termin buchen? Bitte sagen Sie ja oder nein.",
	},
	"booking_success": {
		"en": "Your appointment is confirmed! Your booking number is {booking_id}. Is there anything else I can help you with?",
		"de": "Ihr Termin ist bestätigt! Ihre Buchungsnummer ist {booking_id}. Kann ich Ihnen noch bei etwas helfen?",
	},
	"booking_failed": {
		"en": "I'm sorry, there was a technical problem saving your appointment. Please try again in a moment or call us directly at the clinic.",
		"de": "Es tut mir leid, es gab ein technisches Problem beim Speichern Ihres Termins. Bitte versuchen Sie es gleich noch einmal oder rufen Sie uns direkt an.",
	},
	"slot_taken": {
		"en": "I'm sorry, that time was just taken by someone else. Still available on {date}: {times}. Which time would you like instead?",
		"de": "Es tut mir leid, diese Zeit wurde gerade anderweitig vergeben. Am {date} sind noch frei: {times}. Welche Zeit möchten Sie stattdessen?",
	},
	"slot_taken_no_alternatives": {
		"en": "I'm sorry, that time was just taken and there are no other free times on {date}. Would you like to try a different date?",
		"de": "Es tut mir leid, diese Zeit wurde gerade vergeben und am {date} sind keine weiteren Zeiten frei. Möchten Sie ein anderes Datum versuchen?",
	},
	"cancelled": {
		"en": "Booking cancelled. How else can I help you?",
		"de": "Buchung abgebrochen. Wie kann ich Ihnen sonst helfen?",
	},
	"went_back": {
		"en": "No problem, let's go back.",
		"de": "Kein Problem, wir gehen einen Schritt zurück.",
	},
	"at_beginning": {
		"en": "We are already at the beginning. How can I help you?",
		"de": "Wir sind bereits am Anfang. Wie kann ich Ihnen helfen?",
	},
	"confirm_yes_no": {
		"en": "Please say yes to confirm or no to cancel.",
		"de": "Bitte sagen Sie ja zum Bestätigen oder nein zum Abbrechen.",
	},
	"fallback": {
		"en": "I'm not sure I understood. Could you rephrase that?",
		"de": "Ich bin mir nicht sicher, ob ich das verstanden habe. Könnten Sie das umformulieren?",
	},
	"faq_resume_booking": {
		"en": "I hope that answered your question! Now, back to your booking:",
		"de": "Ich hoffe, das hat Ihre Frage beantwortet! Jetzt zurück zu Ihrer Buchung:",
	},
	"kb_unavailable": {
		"en": "I'm sorry, I couldn't retrieve that information right now. Please try again in a moment.",
		"de": "Es tut mir leid, ich konnte diese Information gerade nicht abrufen. Bitte versuchen Sie es gleich noch einmal.",
	},
	"done_followup": {
		"en": "Your booking is already confirmed. I'm happy to answer questions; for another appointment please start a new conversation.",
		"de": "Ihre Buchung ist bereits bestätigt. Fragen beantworte ich gerne; für einen weiteren Termin starten Sie bitte ein neues Gespräch.",
	},
}

// R returns the response for key in the given language, falling back to
// English, applying {placeholder} substitutions from args.
func R(key, lang string, args map[string]string) string {
	byLang, ok := responses[key]
	if !ok {
		return key
	}
	template, ok := byLang[lang]
	if !ok || template == "" {
		template = byLang["en"]
	}
	if len(args) == 0 {
		return template
	}
	pairs := make([]string, 0, len(args)*2)
	for k, v := range args {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
