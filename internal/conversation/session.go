package conversation

import (
	"fmt"
	"sync"
	"time"
)

// State identifies where the booking conversation currently is.
type State string

const (
	StateIdle           State = "idle"
	StateCollectService State = "collect_service"
	StateCollectDate    State = "collect_date"
	StateCollectSlot    State = "collect_slot"
	StateCollectName    State = "collect_name"
	StateCollectEmail   State = "collect_email"
	StateCollectPhone   State = "collect_phone"
	StateConfirmBooking State = "confirm_booking"
	StateBookingDone    State = "booking_done"
)

// bookingFlow is the fixed forward order of the booking states. Every
// transition inside the flow moves along this slice; anything else goes
// through cancel, go-back, or the fallback path.
var bookingFlow = []State{
	StateCollectService,
	StateCollectDate,
	StateCollectSlot,
	StateCollectName,
	StateCollectEmail,
	StateCollectPhone,
	StateConfirmBooking,
	StateBookingDone,
}

var flowIndex = func() map[State]int {
	m := make(map[State]int, len(bookingFlow))
	for i, s := range bookingFlow {
		m[s] = i
	}
	return m
}()

// StepIndex maps a state to the linear progress step shown by the client:
// collect_service=0 through collect_phone=5, confirm=6, done=7. States
// outside the flow (idle, unknown) return -1.
func StepIndex(s State) int {
	if i, ok := flowIndex[s]; ok {
		return i
	}
	return -1
}

// nextState returns the state after s in the booking flow.
func nextState(s State) State {
	i, ok := flowIndex[s]
	if !ok || i+1 >= len(bookingFlow) {
		return StateBookingDone
	}
	return bookingFlow[i+1]
}

// HistoryEntry is one (role, text) pair of the conversation transcript.
// History is append-only and never re-parsed by the engine.
type HistoryEntry struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

// Session holds everything the engine knows about one booking conversation.
// A Session is owned by the Registry and mutated only while its turn lock
// is held, so one inbound message at a time touches it.
type Session struct {
	ID       string
	Language string
	State    State

	Service string
	Date    string // normalized YYYY-MM-DD
	Time    string // normalized HH:MM
	Name    string
	Email   string
	Phone   string

	// AvailableTimes caches the availability lookup for the chosen
	// date+service while the session sits in collect_slot.
	AvailableTimes []string

	// Retries counts consecutive validation failures per collect state.
	// It only changes reprompt wording; it never terminates the flow.
	Retries map[State]int

	History []HistoryEntry

	BookingID string

	CreatedAt    time.Time
	LastActivity time.Time

	stateHistory []State

	turnMu sync.Mutex
}

func newSession(id, language string, now time.Time) *Session {
	return &Session{
		ID:           id,
		Language:     language,
		State:        StateIdle,
		Retries:      make(map[State]int),
		CreatedAt:    now,
		LastActivity: now,
	}
}

// transitionTo moves to a new state, pushing the old one so "go back" works.
func (s *Session) transitionTo(next State) {
	s.stateHistory = append(s.stateHistory, s.State)
	s.State = next
}

// goBack pops the previous state and clears any slot values collected at or
// after it, keeping the forward-only slot invariant within each flow segment.
// Returns false when there is nothing to go back to.
func (s *Session) goBack() bool {
	if len(s.stateHistory) == 0 {
		return false
	}
	prev := s.stateHistory[len(s.stateHistory)-1]
	s.stateHistory = s.stateHistory[:len(s.stateHistory)-1]
	s.State = prev
	s.clearSlotsFrom(prev)
	return true
}

// clearSlotsFrom wipes the slot collected by the given state and everything
// after it in the flow order.
func (s *Session) clearSlotsFrom(state State) {
	from, ok := flowIndex[state]
	if !ok {
		return
	}
	for _, st := range bookingFlow[from:] {
		switch st {
		case StateCollectService:
			s.Service = ""
		case StateCollectDate:
			s.Date = ""
			s.AvailableTimes = nil
		case StateCollectSlot:
			s.Time = ""
		case StateCollectName:
			s.Name = ""
		case StateCollectEmail:
			s.Email = ""
		case StateCollectPhone:
			s.Phone = ""
		}
	}
}

// resetBooking clears all collected data and returns the session to idle.
// Called on cancel, on a negative confirmation, and after a rejected commit
// that cannot be recovered.
func (s *Session) resetBooking() {
	s.Service = ""
	s.Date = ""
	s.Time = ""
	s.Name = ""
	s.Email = ""
	s.Phone = ""
	s.AvailableTimes = nil
	s.Retries = make(map[State]int)
	s.stateHistory = nil
	s.State = StateIdle
}

// pendingConfirmation reports whether the session awaits a yes/no answer.
func (s *Session) pendingConfirmation() bool {
	return s.State == StateConfirmBooking
}

// summary renders the collected booking fields for the confirmation
// read-back, in the session's language.
func (s *Session) summary() string {
	if s.Language == "de" {
		return fmt.Sprintf(
			"Name: %s\nService: %s\nDatum: %s um %s Uhr\nE-Mail: %s\nTelefon: %s",
			s.Name, s.Service, s.Date, s.Time, s.Email, s.Phone,
		)
	}
	return fmt.Sprintf(
		"Name: %s\nService: %s\nDate: %s at %s\nEmail: %s\nPhone: %s",
		s.Name, s.Service, s.Date, s.Time, s.Email, s.Phone,
	)
}

func (s *Session) appendHistory(role, text string) {
	s.History = append(s.History, HistoryEntry{Role: role, Text: text})
}
