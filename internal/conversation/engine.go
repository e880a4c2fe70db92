package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/functiomed/voice-agent/pkg/logging"
)

// ErrSlotTaken is surfaced by the reservation collaborator when the
// requested slot was committed by someone else first.
var ErrSlotTaken = errors.New("conversation: slot already taken")

// AvailabilityProvider returns the open slot start times ("HH:MM",
// ascending) for a service on a date. Empty means fully booked.
type AvailabilityProvider interface {
	QueryAvailability(ctx context.Context, service, date string) ([]string, error)
}

// BookingRequest carries the fully collected slots into the commit.
type BookingRequest struct {
	SessionID string
	Service   string
	Date      string
	Time      string
	Name      string
	Email     string
	Phone     string
}

// ReservationStore atomically persists a confirmed booking. It returns
// ErrSlotTaken (possibly wrapped) when the slot was lost to a concurrent
// booking.
type ReservationStore interface {
	Reserve(ctx context.Context, req BookingRequest) (string, error)
}

// KnowledgeBase answers clinic questions unrelated to the booking flow.
type KnowledgeBase interface {
	Answer(ctx context.Context, question, language string) (string, error)
}

// Notifier is told about confirmed bookings. Failures are logged, never
// surfaced to the patient.
type Notifier interface {
	BookingConfirmed(ctx context.Context, bookingID string, req BookingRequest) error
}

// Reply is what one processed turn sends back over the data channel.
type Reply struct {
	SessionID string
	Text      string
	State     State
	Language  string
}

// Engine drives the per-session booking state machine. All collaborator
// calls happen while holding only that session's turn lock, so slow
// lookups stall one conversation, never the process.
type Engine struct {
	registry     *Registry
	router       *Router
	catalog      *ServiceCatalog
	availability AvailabilityProvider
	reservations ReservationStore
	knowledge    KnowledgeBase
	notifier     Notifier
	transcript   *TranscriptStore
	metrics      *Metrics
	logger       *logging.Logger

	clinicName     string
	closedWeekdays map[time.Weekday]bool
	maxSlotsShown  int
	now            func() time.Time
}

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Registry     *Registry
	Catalog      *ServiceCatalog
	Availability AvailabilityProvider
	Reservations ReservationStore
	Knowledge    KnowledgeBase
	Notifier     Notifier
	Transcript   *TranscriptStore
	Metrics      *Metrics
	Logger       *logging.Logger

	ClinicName     string
	ClosedWeekdays []string
	Now            func() time.Time
}

// NewEngine builds the booking engine.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Registry == nil {
		panic("conversation: registry cannot be nil")
	}
	if cfg.Catalog == nil {
		panic("conversation: service catalog cannot be nil")
	}
	if cfg.Availability == nil || cfg.Reservations == nil {
		panic("conversation: availability and reservation collaborators are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	clinicName := cfg.ClinicName
	if clinicName == "" {
		clinicName = "our clinic"
	}
	return &Engine{
		registry:       cfg.Registry,
		router:         NewRouter(cfg.Catalog, now),
		catalog:        cfg.Catalog,
		availability:   cfg.Availability,
		reservations:   cfg.Reservations,
		knowledge:      cfg.Knowledge,
		notifier:       cfg.Notifier,
		transcript:     cfg.Transcript,
		metrics:        cfg.Metrics,
		logger:         logger,
		clinicName:     clinicName,
		closedWeekdays: ClosedWeekdaySet(cfg.ClosedWeekdays),
		maxSlotsShown:  5,
		now:            now,
	}
}

// lockSession fetches the session and acquires its turn lock, retrying
// when the sweeper evicted the entry between fetch and lock. The locked
// session it returns is always the one registered for the id.
func (e *Engine) lockSession(sessionID string) *Session {
	for {
		sess := e.registry.GetOrCreate(sessionID)
		sess.turnMu.Lock()
		if e.registry.Get(sessionID) == sess {
			return sess
		}
		sess.turnMu.Unlock()
	}
}

// StartSession creates (or resumes) the session and returns the welcome
// turn pushed to the client before any user input.
func (e *Engine) StartSession(ctx context.Context, sessionID string) Reply {
	sess := e.lockSession(sessionID)
	defer sess.turnMu.Unlock()
	sess.LastActivity = e.now()

	text := R("welcome", sess.Language, map[string]string{"clinic": e.clinicName})
	sess.appendHistory("assistant", text)
	e.persistTranscript(ctx, sess, "assistant", text)
	return Reply{SessionID: sessionID, Text: text, State: sess.State, Language: sess.Language}
}

// HandleTurn processes one inbound utterance for the session and returns
// the outbound reply. Turns for the same session are strictly serialized;
// different sessions proceed in parallel.
func (e *Engine) HandleTurn(ctx context.Context, sessionID, text string) (Reply, error) {
	started := e.now()
	sess := e.lockSession(sessionID)
	defer sess.turnMu.Unlock()

	sess.LastActivity = e.now()
	text = strings.TrimSpace(text)

	sess.Language = DetectLanguage(text, sess.Language)

	intent := e.router.Route(text, sess.State)
	e.logger.Debug("conversation turn",
		"session_id", sessionID,
		"state", string(sess.State),
		"intent", intent.String(),
	)

	sess.appendHistory("user", text)
	e.persistTranscript(ctx, sess, "user", text)

	reply := e.dispatch(ctx, sess, text, intent)

	sess.appendHistory("assistant", reply)
	e.persistTranscript(ctx, sess, "assistant", reply)
	e.metrics.ObserveTurn(sess.State, intent, e.now().Sub(started).Seconds())

	return Reply{SessionID: sessionID, Text: reply, State: sess.State, Language: sess.Language}, nil
}

// dispatch applies one classified utterance to the state machine and
// returns the response text. The session's state is final when it returns.
func (e *Engine) dispatch(ctx context.Context, sess *Session, text string, intent Intent) string {
	lang := sess.Language

	switch intent {
	case IntentCancel:
		sess.resetBooking()
		return R("cancelled", lang, nil)
	case IntentGoBack:
		if sess.goBack() {
			return R("went_back", lang, nil) + " " + e.promptFor(sess)
		}
		return R("at_beginning", lang, nil)
	}

	switch sess.State {
	case StateIdle:
		return e.handleIdle(ctx, sess, text, intent)
	case StateBookingDone:
		// A new booking request starts the flow over; anything else is Q&A.
		if intent == IntentBook {
			sess.resetBooking()
			return e.handleIdle(ctx, sess, text, intent)
		}
		if answer, ok := e.answerQuestion(ctx, sess, text); ok {
			return answer
		}
		return R("done_followup", lang, nil)
	case StateCollectService:
		return e.handleCollectService(ctx, sess, text, intent)
	case StateCollectDate:
		return e.handleCollectDate(ctx, sess, text, intent)
	case StateCollectSlot:
		return e.handleCollectSlot(ctx, sess, text, intent)
	case StateCollectName:
		return e.handleCollectName(ctx, sess, text, intent)
	case StateCollectEmail:
		return e.handleCollectEmail(ctx, sess, text, intent)
	case StateCollectPhone:
		return e.handleCollectPhone(ctx, sess, text, intent)
	case StateConfirmBooking:
		return e.handleConfirm(ctx, sess, text, intent)
	}

	return R("fallback", lang, nil)
}

func (e *Engine) handleIdle(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentBook {
		// A service named in the opening utterance skips the service
		// question entirely.
		if svc := e.catalog.Match(text); svc != "" {
			sess.transitionTo(StateCollectService)
			sess.Service = svc
			sess.transitionTo(StateCollectDate)
			return R("service_confirmed", sess.Language, map[string]string{"service": svc})
		}
		sess.transitionTo(StateCollectService)
		return e.askService(sess, "ask_service")
	}
	if answer, ok := e.answerQuestion(ctx, sess, text); ok {
		return answer
	}
	return R("fallback", sess.Language, nil)
}

func (e *Engine) handleCollectService(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	svc, err := e.catalog.ValidateService(text)
	if err != nil {
		return e.rejectSlot(sess, "service_not_found", "service_not_found_retry", nil)
	}
	sess.Service = svc
	sess.Retries[StateCollectService] = 0
	sess.transitionTo(StateCollectDate)
	return R("service_confirmed", sess.Language, map[string]string{"service": svc})
}

func (e *Engine) handleCollectDate(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	lang := sess.Language

	date, err := ValidateDate(text, e.now(), e.closedWeekdays)
	switch {
	case errors.Is(err, ErrDateInPast):
		return e.rejectSlot(sess, "date_past", "date_past", nil)
	case errors.Is(err, ErrClinicClosed):
		return e.rejectSlot(sess, "date_closed", "date_closed", nil)
	case err != nil:
		return e.rejectSlot(sess, "date_not_found", "date_not_found_retry", nil)
	}

	times, qerr := e.availability.QueryAvailability(ctx, sess.Service, date)
	if qerr != nil {
		e.logger.Error("availability lookup failed", "error", qerr, "session_id", sess.ID)
		return R("kb_unavailable", lang, nil)
	}
	if len(times) == 0 {
		// Date itself was fine; the day is fully booked. Stay here and
		// ask for another date.
		return R("no_slots", lang, map[string]string{"service": sess.Service, "date": date})
	}

	sess.Date = date
	sess.AvailableTimes = times
	sess.Retries[StateCollectDate] = 0
	sess.transitionTo(StateCollectSlot)
	return R("available_slots", lang, map[string]string{
		"date":    date,
		"service": sess.Service,
		"times":   e.formatTimes(times),
	})
}

func (e *Engine) handleCollectSlot(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	times := map[string]string{"times": e.formatTimes(sess.AvailableTimes)}

	chosen, err := MatchTime(text, sess.AvailableTimes)
	switch {
	case errors.Is(err, ErrTimeAmbiguous):
		return e.rejectSlot(sess, "time_ambiguous", "time_ambiguous", times)
	case err != nil, chosen == "":
		return e.rejectSlot(sess, "time_not_found", "time_not_found", times)
	}

	sess.Time = chosen
	sess.Retries[StateCollectSlot] = 0

	// After a lost slot race the contact details are already collected;
	// picking a new time goes straight back to the read-back.
	if sess.Name != "" && sess.Email != "" && sess.Phone != "" {
		sess.State = StateConfirmBooking
		return R("confirm_booking", sess.Language, map[string]string{"summary": sess.summary()})
	}

	sess.transitionTo(StateCollectName)
	return R("ask_name", sess.Language, nil)
}

func (e *Engine) handleCollectName(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	name, err := ValidateName(text)
	if err != nil {
		return e.rejectSlot(sess, "name_invalid", "name_invalid", nil)
	}
	sess.Name = name
	sess.Retries[StateCollectName] = 0
	sess.transitionTo(StateCollectEmail)
	return R("ask_email", sess.Language, map[string]string{"name": name})
}

func (e *Engine) handleCollectEmail(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	email, err := ValidateEmail(text)
	if err != nil {
		return e.rejectSlot(sess, "email_invalid", "email_invalid_retry", nil)
	}
	sess.Email = email
	sess.Retries[StateCollectEmail] = 0
	sess.transitionTo(StateCollectPhone)
	return R("ask_phone", sess.Language, nil)
}

func (e *Engine) handleCollectPhone(ctx context.Context, sess *Session, text string, intent Intent) string {
	if intent == IntentAskKnowledgeBase {
		return e.answerAndResume(ctx, sess, text)
	}
	phone, err := ValidatePhone(text)
	if err != nil {
		return e.rejectSlot(sess, "phone_invalid", "phone_invalid_retry", nil)
	}
	sess.Phone = phone
	sess.Retries[StateCollectPhone] = 0
	sess.transitionTo(StateConfirmBooking)
	return R("confirm_booking", sess.Language, map[string]string{"summary": sess.summary()})
}

func (e *Engine) handleConfirm(ctx context.Context, sess *Session, text string, intent Intent) string {
	lang := sess.Language

	switch intent {
	case IntentConfirmYes:
		return e.commit(ctx, sess)
	case IntentConfirmNo:
		sess.resetBooking()
		return R("cancelled", lang, nil)
	case IntentAskKnowledgeBase:
		return e.answerAndResume(ctx, sess, text)
	}
	return R("confirm_yes_no", lang, nil)
}

// commit invokes the reservation collaborator. A lost race returns the
// machine to collect_slot with fresh availability and every other slot
// intact; a store failure leaves the state untouched so the user can
// simply confirm again.
func (e *Engine) commit(ctx context.Context, sess *Session) string {
	lang := sess.Language
	req := BookingRequest{
		SessionID: sess.ID,
		Service:   sess.Service,
		Date:      sess.Date,
		Time:      sess.Time,
		Name:      sess.Name,
		Email:     sess.Email,
		Phone:     sess.Phone,
	}

	bookingID, err := e.reservations.Reserve(ctx, req)
	if errors.Is(err, ErrSlotTaken) {
		e.metrics.ObserveBooking("conflict")
		e.logger.Info("slot lost to concurrent booking",
			"session_id", sess.ID, "service", req.Service, "date", req.Date, "time", req.Time)

		times, qerr := e.availability.QueryAvailability(ctx, sess.Service, sess.Date)
		if qerr != nil || len(times) == 0 {
			sess.Time = ""
			sess.AvailableTimes = nil
			sess.State = StateCollectDate
			return R("slot_taken_no_alternatives", lang, map[string]string{"date": sess.Date})
		}
		sess.Time = ""
		sess.AvailableTimes = times
		sess.State = StateCollectSlot
		return R("slot_taken", lang, map[string]string{
			"date":  sess.Date,
			"times": e.formatTimes(times),
		})
	}
	if err != nil {
		e.metrics.ObserveBooking("error")
		e.logger.Error("reservation commit failed", "error", err, "session_id", sess.ID)
		return R("booking_failed", lang, nil)
	}

	e.metrics.ObserveBooking("committed")
	sess.BookingID = bookingID
	sess.transitionTo(StateBookingDone)
	e.logger.Info("booking committed",
		"session_id", sess.ID, "booking_id", bookingID,
		"service", req.Service, "date", req.Date, "time", req.Time)

	if e.notifier != nil {
		go func() {
			nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if nerr := e.notifier.BookingConfirmed(nctx, bookingID, req); nerr != nil {
				e.logger.Error("booking confirmation notification failed",
					"error", nerr, "booking_id", bookingID)
			}
		}()
	}

	return R("booking_success", lang, map[string]string{"booking_id": bookingID})
}

// rejectSlot keeps the state, bumps the retry counter, and escalates the
// reprompt wording after repeated failures.
func (e *Engine) rejectSlot(sess *Session, key, retryKey string, extra map[string]string) string {
	sess.Retries[sess.State]++
	e.metrics.ObserveValidationFailure(sess.State)

	args := map[string]string{"services": e.formatServices()}
	for k, v := range extra {
		args[k] = v
	}
	if sess.Retries[sess.State] >= 2 {
		return R(retryKey, sess.Language, args)
	}
	return R(key, sess.Language, args)
}

// answerQuestion consults the knowledge base. The boolean is false only
// when no knowledge collaborator is wired.
func (e *Engine) answerQuestion(ctx context.Context, sess *Session, question string) (string, bool) {
	if e.knowledge == nil {
		return "", false
	}
	e.metrics.ObserveFallback()
	answer, err := e.knowledge.Answer(ctx, question, sess.Language)
	if err != nil {
		e.logger.Error("knowledge base answer failed", "error", err, "session_id", sess.ID)
		return R("kb_unavailable", sess.Language, nil), true
	}
	return answer, true
}

// answerAndResume answers a mid-flow question and re-asks the current
// slot's prompt. The booking state is left exactly where it was.
func (e *Engine) answerAndResume(ctx context.Context, sess *Session, question string) string {
	answer, ok := e.answerQuestion(ctx, sess, question)
	if !ok {
		return e.promptFor(sess)
	}
	return answer + "\n\n" + R("faq_resume_booking", sess.Language, nil) + " " + e.promptFor(sess)
}

// promptFor re-asks the question for the session's current state, used
// after fallback answers and go-back.
func (e *Engine) promptFor(sess *Session) string {
	lang := sess.Language
	switch sess.State {
	case StateCollectService:
		return e.askService(sess, "ask_service")
	case StateCollectDate:
		return R("ask_date", lang, nil)
	case StateCollectSlot:
		if len(sess.AvailableTimes) > 0 {
			return R("available_slots", lang, map[string]string{
				"date":    sess.Date,
				"service": sess.Service,
				"times":   e.formatTimes(sess.AvailableTimes),
			})
		}
		return R("ask_date", lang, nil)
	case StateCollectName:
		return R("ask_name", lang, nil)
	case StateCollectEmail:
		return R("ask_email", lang, map[string]string{"name": sess.Name})
	case StateCollectPhone:
		return R("ask_phone", lang, nil)
	case StateConfirmBooking:
		return R("confirm_booking", lang, map[string]string{"summary": sess.summary()})
	}
	return R("welcome", lang, map[string]string{"clinic": e.clinicName})
}

func (e *Engine) askService(sess *Session, key string) string {
	return R(key, sess.Language, map[string]string{"services": e.formatServices()})
}

func (e *Engine) formatServices() string {
	return strings.Join(e.catalog.Services(), ", ")
}

func (e *Engine) formatTimes(times []string) string {
	if len(times) > e.maxSlotsShown {
		times = times[:e.maxSlotsShown]
	}
	return strings.Join(times, ", ")
}

func (e *Engine) persistTranscript(ctx context.Context, sess *Session, role, text string) {
	if e.transcript == nil {
		return
	}
	err := e.transcript.Append(ctx, sess.ID, TranscriptMessage{
		Role:      role,
		Text:      text,
		State:     string(sess.State),
		Timestamp: e.now().UTC(),
	})
	if err != nil {
		e.logger.Debug("transcript append failed", "error", err, "session_id", sess.ID)
	}
}
