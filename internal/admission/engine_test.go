package admission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/queue"
)

// spyStore records calls so tests can assert the store was or was not hit.
type spyStore struct {
	mu        sync.Mutex
	events    []attendance.Event
	insertErr error
	findErr   error
	findCalls int
	inserts   int
}

func (s *spyStore) InsertEvent(_ context.Context, evt attendance.Event) (attendance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return attendance.Event{}, s.insertErr
	}
	if evt.ID == "" {
		evt.ID = "evt-1"
	}
	evt.CreatedAt = evt.OccurredAt
	s.events = append(s.events, evt)
	return evt, nil
}

func (s *spyStore) FindEvent(_ context.Context, classID, subjectID string, date time.Time) (*attendance.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if s.findErr != nil {
		return nil, s.findErr
	}
	y, m, d := date.Date()
	for i := range s.events {
		evt := s.events[i]
		ey, em, ed := evt.OccurredAt.Date()
		if evt.ClassID == classID && evt.SubjectID == subjectID && ey == y && em == m && ed == d {
			return &evt, nil
		}
	}
	return nil, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// spyQueue records published pending-sync messages.
type spyQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
}

func (q *spyQueue) Publish(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return nil
}

func (q *spyQueue) Consume(context.Context) (<-chan queue.Message, error) { return nil, nil }

func (q *spyQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

var testClass = attendance.Class{
	ID:         "class-1",
	CourseCode: "CS101",
	CourseName: "Intro to CS",
	Section:    "A",
	Room:       "R204",
	Schedule:   "MWF 09:00 AM - 11:00 AM",
	LecturerID: "lect-1",
}

var testRecorder = Recorder{ID: "lect-1", Name: "Dr. Smith"}

// 2026-01-07 is a Wednesday; 10:00 AM is inside the MWF window.
var wednesday10 = time.Date(2026, 1, 7, 10, 0, 0, 0, time.Local)

func newTestEngine(store *spyStore, clock Clock, pending queue.Queue) *Engine {
	return NewEngine(store, NewMemoryTracker(), clock, pending, zap.NewNop())
}

func TestAdmitEndToEnd(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	res := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != Admitted {
		t.Fatalf("outcome = %s (%s), want admitted", res.Outcome, res.Message)
	}
	if res.Event == nil || res.Event.SubjectID != "2022-1234" {
		t.Fatalf("event = %+v", res.Event)
	}
	if res.Event.CourseCode != "CS101" || res.Event.RecorderName != "Dr. Smith" {
		t.Errorf("event not stamped with class/recorder: %+v", res.Event)
	}
	if res.Event.Status != attendance.StatusPresent {
		t.Errorf("status = %q", res.Event.Status)
	}
	if res.Event.IdempotencyKey == "" {
		t.Error("idempotency key missing")
	}
	if len(store.events) != 1 {
		t.Errorf("persisted %d events, want 1", len(store.events))
	}
}

func TestAdmitSecondScanIsDuplicate(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	first := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if first.Outcome != Admitted {
		t.Fatalf("first scan: %s", first.Outcome)
	}

	second := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if second.Outcome != RejectedDuplicate {
		t.Fatalf("second scan = %s, want duplicate", second.Outcome)
	}
	if !second.PriorAt.Equal(wednesday10) {
		t.Errorf("prior time = %v, want %v", second.PriorAt, wednesday10)
	}
	if len(store.events) != 1 {
		t.Errorf("persisted %d events, want exactly 1", len(store.events))
	}
}

func TestAdmitOutOfWindowShortCircuits(t *testing.T) {
	store := &spyStore{}
	// Tuesday is not an MWF day.
	tuesday := time.Date(2026, 1, 6, 10, 0, 0, 0, time.Local)
	eng := newTestEngine(store, fixedClock{tuesday}, nil)

	res := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != RejectedOutOfWindow {
		t.Fatalf("outcome = %s, want out_of_window", res.Outcome)
	}
	if res.Schedule != testClass.Schedule {
		t.Errorf("result must carry the schedule text, got %q", res.Schedule)
	}
	if res.Now.IsZero() {
		t.Error("result must carry the evaluation time")
	}
	if store.findCalls != 0 || store.inserts != 0 {
		t.Errorf("store touched on out-of-window rejection: finds=%d inserts=%d", store.findCalls, store.inserts)
	}
}

func TestAdmitInvalidPayload(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	for _, raw := range []string{"STU001;Jane Doe;jane@x.com", `{"studentId":"STU001"}`, "garbage"} {
		res := eng.Admit(context.Background(), testClass, testRecorder, raw)
		if res.Outcome != RejectedInvalidPayload {
			t.Errorf("Admit(%q) = %s, want invalid_payload", raw, res.Outcome)
		}
		if res.Message == "" {
			t.Error("rejection must explain the expected grammar")
		}
	}
	if store.inserts != 0 {
		t.Errorf("store inserts = %d, want 0", store.inserts)
	}
}

func TestAdmitEmptyScheduleNeverInSession(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	cls := testClass
	cls.Schedule = ""
	res := eng.Admit(context.Background(), cls, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != RejectedOutOfWindow {
		t.Errorf("empty schedule outcome = %s, want out_of_window", res.Outcome)
	}

	cls.Schedule = "complete nonsense"
	res = eng.Admit(context.Background(), cls, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != RejectedOutOfWindow {
		t.Errorf("malformed schedule outcome = %s, want out_of_window", res.Outcome)
	}
}

func TestAdmitDuplicateViaStoreMirror(t *testing.T) {
	// Another device already persisted this subject today; the fresh
	// engine's tracker is empty but the store lookup must still catch it.
	earlier := wednesday10.Add(-30 * time.Minute)
	store := &spyStore{events: []attendance.Event{{
		ID:         "evt-0",
		SubjectID:  "2022-1234",
		ClassID:    testClass.ID,
		CourseCode: testClass.CourseCode,
		OccurredAt: earlier,
	}}}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	res := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != RejectedDuplicate {
		t.Fatalf("outcome = %s, want duplicate", res.Outcome)
	}
	if !res.PriorAt.Equal(earlier) {
		t.Errorf("prior time = %v, want %v", res.PriorAt, earlier)
	}
	if store.inserts != 0 {
		t.Errorf("inserts = %d, want 0", store.inserts)
	}
}

func TestAdmitPersistenceFailure(t *testing.T) {
	store := &spyStore{insertErr: errors.New("connection refused")}
	pending := &spyQueue{}
	eng := newTestEngine(store, fixedClock{wednesday10}, pending)

	res := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if res.Outcome != RejectedPersistenceFailed {
		t.Fatalf("outcome = %s, want persistence_failed", res.Outcome)
	}
	if res.Event == nil {
		t.Fatal("local event copy missing from result")
	}
	if res.Err == nil {
		t.Error("store error missing from result")
	}
	if pending.count() != 1 {
		t.Errorf("pending queue got %d messages, want 1", pending.count())
	}

	// The identity is recorded locally: a rescan is a duplicate, not a
	// second insert attempt.
	store.insertErr = nil
	second := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
	if second.Outcome != RejectedDuplicate {
		t.Errorf("rescan outcome = %s, want duplicate", second.Outcome)
	}
	if store.inserts != 1 {
		t.Errorf("inserts = %d, want 1 (no retry on rescan)", store.inserts)
	}
}

func TestAdmitIdentityPreDecodedPath(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	res := eng.AdmitIdentity(context.Background(), testClass, testRecorder, "STU001", "Jane", "jane@x.com")
	if res.Outcome != Admitted {
		t.Fatalf("outcome = %s", res.Outcome)
	}

	res = eng.AdmitIdentity(context.Background(), testClass, testRecorder, "", "Jane", "jane@x.com")
	if res.Outcome != RejectedInvalidPayload {
		t.Errorf("missing subject outcome = %s, want invalid_payload", res.Outcome)
	}
}

func TestAdmitConcurrentSameSubject(t *testing.T) {
	store := &spyStore{}
	eng := newTestEngine(store, fixedClock{wednesday10}, nil)

	const n = 8
	var wg sync.WaitGroup
	outcomes := make([]Outcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := eng.Admit(context.Background(), testClass, testRecorder, "2022-1234|Jane Doe|jane@doe.edu")
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, o := range outcomes {
		if o == Admitted {
			admitted++
		}
	}
	if admitted != 1 {
		t.Errorf("admitted %d times, want exactly 1", admitted)
	}
	if len(store.events) != 1 {
		t.Errorf("persisted %d events, want 1", len(store.events))
	}
}
