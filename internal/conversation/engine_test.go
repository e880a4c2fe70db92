package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAvailability struct {
	mu    sync.Mutex
	times []string
	err   error
	calls int
}

func (f *fakeAvailability) QueryAvailability(_ context.Context, _, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.times, f.err
}

func (f *fakeAvailability) set(times []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.times = times
}

type fakeReservations struct {
	mu       sync.Mutex
	id       string
	errOnce  error
	requests []BookingRequest
}

func (f *fakeReservations) Reserve(_ context.Context, req BookingRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.errOnce != nil {
		err := f.errOnce
		f.errOnce = nil
		return "", err
	}
	return f.id, nil
}

func (f *fakeReservations) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeKnowledge struct {
	answer string
	err    error
	asked  []string
}

func (f *fakeKnowledge) Answer(_ context.Context, question, _ string) (string, error) {
	f.asked = append(f.asked, question)
	return f.answer, f.err
}

type engineFixture struct {
	engine       *Engine
	availability *fakeAvailability
	reservations *fakeReservations
	knowledge    *fakeKnowledge
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	availability := &fakeAvailability{times: []string{"09:00", "10:00", "13:00", "14:00", "15:00"}}
	reservations := &fakeReservations{id: "42"}
	knowledge := &fakeKnowledge{answer: "We open at nine."}

	engine := NewEngine(EngineConfig{
		Registry:       NewRegistry("en", nil),
		Catalog:        testCatalog(),
		Availability:   availability,
		Reservations:   reservations,
		Knowledge:      knowledge,
		ClinicName:     "Functiomed",
		ClosedWeekdays: []string{"sunday"},
		Now:            func() time.Time { return refNow },
	})
	return &engineFixture{
		engine:       engine,
		availability: availability,
		reservations: reservations,
		knowledge:    knowledge,
	}
}

func (f *engineFixture) turn(t *testing.T, sessionID, text string) Reply {
	t.Helper()
	reply, err := f.engine.HandleTurn(context.Background(), sessionID, text)
	require.NoError(t, err)
	return reply
}

func TestEngineFullBookingWalk(t *testing.T) {
	f := newEngineFixture(t)

	welcome := f.engine.StartSession(context.Background(), "room-1")
	assert.Equal(t, StateIdle, welcome.State)
	assert.Contains(t, welcome.Text, "Functiomed")

	r := f.turn(t, "room-1", "I'd like to book a massage")
	assert.Equal(t, StateCollectDate, r.State)
	assert.Contains(t, r.Text, "massage")

	r = f.turn(t, "room-1", "tuesday")
	assert.Equal(t, StateCollectSlot, r.State)
	assert.Contains(t, r.Text, "2026-03-03")
	assert.Contains(t, r.Text, "09:00")

	r = f.turn(t, "room-1", "3pm")
	assert.Equal(t, StateCollectName, r.State)

	r = f.turn(t, "room-1", "jane doe")
	assert.Equal(t, StateCollectEmail, r.State)
	assert.Contains(t, r.Text, "Jane Doe")

	r = f.turn(t, "room-1", "jane at example dot com")
	assert.Equal(t, StateCollectPhone, r.State)

	r = f.turn(t, "room-1", "+1 555 123 4567")
	assert.Equal(t, StateConfirmBooking, r.State)
	assert.Contains(t, r.Text, "Jane Doe")
	assert.Contains(t, r.Text, "15:00")

	r = f.turn(t, "room-1", "yes")
	assert.Equal(t, StateBookingDone, r.State)
	assert.Contains(t, r.Text, "42")

	require.Equal(t, 1, f.reservations.count())
	req := f.reservations.requests[0]
	assert.Equal(t, "massage", req.Service)
	assert.Equal(t, "2026-03-03", req.Date)
	assert.Equal(t, "15:00", req.Time)
	assert.Equal(t, "Jane Doe", req.Name)
	assert.Equal(t, "jane@example.com", req.Email)
	assert.Equal(t, "+15551234567", req.Phone)
	assert.Equal(t, "room-1", req.SessionID)
}

func TestEngineServiceNamedInOpeningUtteranceSkipsServiceQuestion(t *testing.T) {
	f := newEngineFixture(t)

	r := f.turn(t, "room-1", "book physio please")
	assert.Equal(t, StateCollectDate, r.State)

	sess := f.engine.registry.Get("room-1")
	require.NotNil(t, sess)
	assert.Equal(t, "physiotherapy", sess.Service)
}

func TestEngineCancelResetsEverything(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	r := f.turn(t, "room-1", "cancel")
	assert.Equal(t, StateIdle, r.State)

	sess := f.engine.registry.Get("room-1")
	assert.Empty(t, sess.Service)
	assert.Empty(t, sess.Date)
	assert.Zero(t, f.reservations.count())
}

func TestEngineQuestionMidFlowKeepsState(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	r := f.turn(t, "room-1", "how long does a massage take?")

	assert.Equal(t, StateCollectDate, r.State, "question must not advance the flow")
	assert.Contains(t, r.Text, "We open at nine.")
	require.Len(t, f.knowledge.asked, 1)

	// The flow resumes exactly where it was.
	r = f.turn(t, "room-1", "tomorrow")
	assert.Equal(t, StateCollectSlot, r.State)
}

func TestEngineKnowledgeBaseFailureDoesNotBreakFlow(t *testing.T) {
	f := newEngineFixture(t)
	f.knowledge.err = errors.New("llm timeout")

	f.turn(t, "room-1", "book a massage")
	r := f.turn(t, "room-1", "do you have parking?")
	assert.Equal(t, StateCollectDate, r.State)
	assert.Contains(t, r.Text, R("kb_unavailable", "en", nil))
}

func TestEngineInvalidEmailRetriesEscalate(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "9am")
	f.turn(t, "room-1", "jane doe")

	r := f.turn(t, "room-1", "not an email")
	assert.Equal(t, StateCollectEmail, r.State)

	r2 := f.turn(t, "room-1", "still not an email")
	assert.Equal(t, StateCollectEmail, r2.State)
	assert.NotEqual(t, r.Text, r2.Text, "second failure escalates the reprompt")

	r3 := f.turn(t, "room-1", "nope nope")
	assert.Equal(t, StateCollectEmail, r3.State)
	assert.Equal(t, r2.Text, r3.Text)

	assert.Zero(t, f.reservations.count(), "nothing may be committed while a slot is invalid")
}

func TestEngineAmbiguousTimeReprompts(t *testing.T) {
	f := newEngineFixture(t)
	f.availability.set([]string{"14:00", "14:30"})

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")

	r := f.turn(t, "room-1", "2pm")
	assert.Equal(t, StateCollectSlot, r.State)
	assert.Contains(t, r.Text, "14:00")
	assert.Contains(t, r.Text, "14:30")

	r = f.turn(t, "room-1", "14:30")
	assert.Equal(t, StateCollectName, r.State)
}

func TestEngineFullyBookedDateStaysInCollectDate(t *testing.T) {
	f := newEngineFixture(t)
	f.availability.set(nil)

	f.turn(t, "room-1", "book a massage")
	r := f.turn(t, "room-1", "tomorrow")

	assert.Equal(t, StateCollectDate, r.State)
	sess := f.engine.registry.Get("room-1")
	assert.Empty(t, sess.Date, "a fully booked date is not kept")
}

func TestEngineSlotTakenRecovery(t *testing.T) {
	f := newEngineFixture(t)
	f.reservations.errOnce = ErrSlotTaken

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "3pm")
	f.turn(t, "room-1", "jane doe")
	f.turn(t, "room-1", "jane@example.com")
	f.turn(t, "room-1", "+1 555 123 4567")

	// The 15:00 slot is gone by confirmation time; fresh availability no
	// longer includes it.
	f.availability.set([]string{"09:00", "10:00"})

	r := f.turn(t, "room-1", "yes")
	assert.Equal(t, StateCollectSlot, r.State)
	assert.Contains(t, r.Text, "09:00")

	sess := f.engine.registry.Get("room-1")
	assert.Empty(t, sess.Time)
	assert.Equal(t, "Jane Doe", sess.Name, "contact details survive the lost race")
	assert.Equal(t, "jane@example.com", sess.Email)

	// Picking a new time goes straight back to the read-back, then commits.
	r = f.turn(t, "room-1", "9am")
	assert.Equal(t, StateConfirmBooking, r.State)

	r = f.turn(t, "room-1", "yes")
	assert.Equal(t, StateBookingDone, r.State)

	require.Equal(t, 2, f.reservations.count())
	assert.Equal(t, "09:00", f.reservations.requests[1].Time)
}

func TestEngineSlotTakenNoAlternativesReturnsToDate(t *testing.T) {
	f := newEngineFixture(t)
	f.reservations.errOnce = ErrSlotTaken

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "9am")
	f.turn(t, "room-1", "jane doe")
	f.turn(t, "room-1", "jane@example.com")
	f.turn(t, "room-1", "+1 555 123 4567")

	f.availability.set(nil)

	r := f.turn(t, "room-1", "yes")
	assert.Equal(t, StateCollectDate, r.State)

	sess := f.engine.registry.Get("room-1")
	assert.Empty(t, sess.Time)
	assert.Nil(t, sess.AvailableTimes)
}

func TestEngineReservationFailureKeepsConfirmation(t *testing.T) {
	f := newEngineFixture(t)
	f.reservations.errOnce = errors.New("db down")

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "9am")
	f.turn(t, "room-1", "jane doe")
	f.turn(t, "room-1", "jane@example.com")
	f.turn(t, "room-1", "+1 555 123 4567")

	r := f.turn(t, "room-1", "yes")
	assert.Equal(t, StateConfirmBooking, r.State, "a transient failure keeps the confirmation pending")

	// Confirming again succeeds.
	r = f.turn(t, "room-1", "yes")
	assert.Equal(t, StateBookingDone, r.State)
}

func TestEngineConfirmationRejectsNonAnswers(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "9am")
	f.turn(t, "room-1", "jane doe")
	f.turn(t, "room-1", "jane@example.com")
	f.turn(t, "room-1", "+1 555 123 4567")

	r := f.turn(t, "room-1", "hmm maybe")
	assert.Equal(t, StateConfirmBooking, r.State)
	assert.Equal(t, R("confirm_yes_no", "en", nil), r.Text)

	r = f.turn(t, "room-1", "no")
	assert.Equal(t, StateIdle, r.State)
	assert.Zero(t, f.reservations.count())
}

func TestEngineGoBack(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	r := f.turn(t, "room-1", "go back")

	assert.Equal(t, StateCollectDate, r.State)
	sess := f.engine.registry.Get("room-1")
	assert.Empty(t, sess.Date)
	assert.Equal(t, "massage", sess.Service)
}

func TestEngineGermanConversation(t *testing.T) {
	f := newEngineFixture(t)

	r := f.turn(t, "room-1", "Ich möchte bitte eine Massage buchen")
	assert.Equal(t, "de", r.Language)
	assert.Equal(t, StateCollectDate, r.State)
	assert.Equal(t, R("service_confirmed", "de", map[string]string{"service": "massage"}), r.Text)

	r = f.turn(t, "room-1", "morgen")
	assert.Equal(t, "de", r.Language)
	assert.Equal(t, StateCollectSlot, r.State)
}

func TestEngineBookingDoneOffersNewBooking(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-1", "tomorrow")
	f.turn(t, "room-1", "9am")
	f.turn(t, "room-1", "jane doe")
	f.turn(t, "room-1", "jane@example.com")
	f.turn(t, "room-1", "+1 555 123 4567")
	r := f.turn(t, "room-1", "yes")
	require.Equal(t, StateBookingDone, r.State)

	// Plain chatter after the booking goes to the knowledge base.
	r = f.turn(t, "room-1", "great, thanks!")
	assert.Equal(t, StateBookingDone, r.State)

	// A fresh booking request restarts the flow.
	r = f.turn(t, "room-1", "I want to book physio")
	assert.Equal(t, StateCollectDate, r.State)
	sess := f.engine.registry.Get("room-1")
	assert.Equal(t, "physiotherapy", sess.Service)
}

func TestEngineSessionsAreIndependent(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	f.turn(t, "room-2", "book physio")

	s1 := f.engine.registry.Get("room-1")
	s2 := f.engine.registry.Get("room-2")
	assert.Equal(t, "massage", s1.Service)
	assert.Equal(t, "physiotherapy", s2.Service)
}

func TestEngineHistoryRecordsBothSides(t *testing.T) {
	f := newEngineFixture(t)

	f.turn(t, "room-1", "book a massage")
	sess := f.engine.registry.Get("room-1")
	require.Len(t, sess.History, 2)
	assert.Equal(t, "user", sess.History[0].Role)
	assert.Equal(t, "assistant", sess.History[1].Role)
}

func TestSweepNeverOrphansActiveTurn(t *testing.T) {
	f := newEngineFixture(t)
	reg := f.engine.registry

	const id = "room-race"
	for i := 0; i < 200; i++ {
		sess := reg.GetOrCreate(id)
		sess.LastActivity = refNow.Add(-time.Hour)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			reg.Sweep(refNow)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.engine.HandleTurn(context.Background(), id, "hello")
		}()
		wg.Wait()

		// Whatever the interleaving, the session the turn mutated must be
		// the registered one, fresh enough to survive the next sweep.
		got := reg.Get(id)
		require.NotNil(t, got, "turn left no registered session behind")
		got.turnMu.Lock()
		idle := refNow.Sub(got.LastActivity)
		got.turnMu.Unlock()
		assert.LessOrEqual(t, idle, time.Duration(0))
	}
}
