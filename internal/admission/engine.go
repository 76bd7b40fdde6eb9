package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"classattend/internal/attendance"
	"classattend/internal/qrcode"
	"classattend/internal/queue"
	"classattend/internal/schedule"
)

// Outcome tags the result of an admission attempt.
type Outcome string

const (
	Admitted                  Outcome = "admitted"
	RejectedOutOfWindow       Outcome = "out_of_window"
	RejectedInvalidPayload    Outcome = "invalid_payload"
	RejectedDuplicate         Outcome = "duplicate"
	RejectedPersistenceFailed Outcome = "persistence_failed"
)

// Result is the tagged outcome handed back to the caller. Message is always
// operator-readable; every rejection says specifically what to do next.
type Result struct {
	Outcome  Outcome
	Message  string
	Event    *attendance.Event // Admitted and RejectedPersistenceFailed
	Schedule string            // RejectedOutOfWindow
	Now      time.Time         // RejectedOutOfWindow
	PriorAt  time.Time         // RejectedDuplicate, zero when unknown
	Err      error             // RejectedPersistenceFailed
}

// RecordStore is the external system of record for attendance events.
type RecordStore interface {
	InsertEvent(ctx context.Context, evt attendance.Event) (attendance.Event, error)
	FindEvent(ctx context.Context, classID, subjectID string, date time.Time) (*attendance.Event, error)
}

// Clock is injected so schedule evaluation is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Recorder identifies the lecturer operating the scanner.
type Recorder struct {
	ID   string
	Name string
}

// Engine runs the scan admission decision: schedule window, payload grammar,
// duplicate detection, then persistence. It owns the duplicate tracker; no
// one else mutates it.
type Engine struct {
	store   RecordStore
	tracker Tracker
	clock   Clock
	pending queue.Queue // pending-sync channel, may be nil
	log     *zap.Logger

	mu       sync.Mutex
	sessions map[SessionKey]*sync.Mutex
}

// NewEngine wires an engine. pending may be nil when no sync worker runs.
func NewEngine(store RecordStore, tracker Tracker, clock Clock, pending queue.Queue, log *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    store,
		tracker:  tracker,
		clock:    clock,
		pending:  pending,
		log:      log,
		sessions: make(map[SessionKey]*sync.Mutex),
	}
}

// Admit decides one raw scanned payload for a class meeting.
func (e *Engine) Admit(ctx context.Context, class attendance.Class, rec Recorder, rawPayload string) Result {
	now := e.clock.Now()
	if res, ok := e.checkWindow(class, now); !ok {
		return res
	}

	identity, err := qrcode.Parse(rawPayload)
	if err != nil {
		return e.rejectPayload(err)
	}
	return e.admit(ctx, class, rec, identity, now)
}

// AdmitIdentity decides a pre-decoded identity, the alternate scan-source
// path. Postconditions match Admit.
func (e *Engine) AdmitIdentity(ctx context.Context, class attendance.Class, rec Recorder, subjectID, displayName, contact string) Result {
	now := e.clock.Now()
	if res, ok := e.checkWindow(class, now); !ok {
		return res
	}

	identity, err := qrcode.FromFields(subjectID, displayName, contact)
	if err != nil {
		return e.rejectPayload(err)
	}
	return e.admit(ctx, class, rec, identity, now)
}

// checkWindow evaluates the class schedule at now. A missing or fully
// malformed schedule degrades to "never in session" rather than failing the
// scanning loop.
func (e *Engine) checkWindow(class attendance.Class, now time.Time) (Result, bool) {
	rules, skipped := schedule.Parse(class.Schedule)
	for _, s := range skipped {
		e.log.Warn("unparseable schedule segment dropped",
			zap.String("class_id", class.ID),
			zap.String("segment", s.Segment),
			zap.String("reason", s.Reason))
	}
	if schedule.InSessionAt(rules, now) {
		return Result{}, true
	}
	return Result{
		Outcome:  RejectedOutOfWindow,
		Schedule: class.Schedule,
		Now:      now,
		Message: fmt.Sprintf("scanner is only available during scheduled class time (now %s, schedule %q)",
			now.Format("Monday 3:04 PM"), class.Schedule),
	}, false
}

func (e *Engine) rejectPayload(err error) Result {
	return Result{
		Outcome: RejectedInvalidPayload,
		Err:     err,
		Message: fmt.Sprintf("%v; expected format: %s", err, qrcode.Grammar),
	}
}

func (e *Engine) admit(ctx context.Context, class attendance.Class, rec Recorder, identity qrcode.Identity, now time.Time) Result {
	key := NewSessionKey(class.ID, now)

	// Serialize per session so overlapping scans of the same identity
	// cannot both pass the duplicate check.
	lock := e.sessionLock(key)
	lock.Lock()
	defer lock.Unlock()

	if at, seen, err := e.tracker.Seen(ctx, key, identity.SubjectID); err != nil {
		e.log.Warn("duplicate tracker lookup failed, falling back to store",
			zap.String("session", key.String()), zap.Error(err))
	} else if seen {
		return e.rejectDuplicate(at)
	}

	// The store is the fallback source of truth: another device may have
	// recorded this subject already today.
	if prior, err := e.store.FindEvent(ctx, class.ID, identity.SubjectID, now); err != nil {
		e.log.Warn("store duplicate lookup failed",
			zap.String("session", key.String()), zap.Error(err))
	} else if prior != nil {
		if terr := e.tracker.Mark(ctx, key, identity.SubjectID, prior.OccurredAt); terr != nil {
			e.log.Warn("tracker mark failed", zap.Error(terr))
		}
		return e.rejectDuplicate(prior.OccurredAt)
	}

	evt := attendance.Event{
		SubjectID:      identity.SubjectID,
		DisplayName:    identity.DisplayName,
		Contact:        identity.Contact,
		ClassID:        class.ID,
		CourseCode:     class.CourseCode,
		CourseName:     class.CourseName,
		Section:        class.Section,
		Room:           class.Room,
		ScheduleText:   class.Schedule,
		RecorderID:     rec.ID,
		RecorderName:   rec.Name,
		OccurredAt:     now,
		Status:         attendance.StatusPresent,
		IdempotencyKey: attendance.IdempotencyKey(identity.SubjectID, class.CourseCode, now),
	}

	saved, err := e.store.InsertEvent(ctx, evt)
	if err != nil {
		// Keep the local record so the same badge is not admitted twice
		// in this session, and hand the event to the sync worker.
		if terr := e.tracker.Mark(ctx, key, identity.SubjectID, now); terr != nil {
			e.log.Warn("tracker mark failed after persistence failure", zap.Error(terr))
		}
		e.enqueuePending(ctx, evt)
		e.log.Error("attendance persistence failed",
			zap.String("session", key.String()),
			zap.String("subject_id", identity.SubjectID),
			zap.Error(err))
		return Result{
			Outcome: RejectedPersistenceFailed,
			Event:   &evt,
			Err:     err,
			Message: fmt.Sprintf("attendance for %s recorded locally only; server sync pending: %v", identity.SubjectID, err),
		}
	}

	if terr := e.tracker.Mark(ctx, key, identity.SubjectID, saved.OccurredAt); terr != nil {
		e.log.Warn("tracker mark failed after admit", zap.Error(terr))
	}
	e.log.Info("attendance admitted",
		zap.String("session", key.String()),
		zap.String("subject_id", saved.SubjectID),
		zap.String("recorder_id", rec.ID))
	return Result{
		Outcome: Admitted,
		Event:   &saved,
		Message: fmt.Sprintf("attendance recorded for %s (%s) at %s", saved.DisplayName, saved.SubjectID, saved.OccurredAt.Format("3:04 PM")),
	}
}

func (e *Engine) rejectDuplicate(priorAt time.Time) Result {
	msg := "attendance already recorded for this student today"
	if !priorAt.IsZero() {
		msg = fmt.Sprintf("attendance already recorded at %s", priorAt.Format("3:04 PM"))
	}
	return Result{Outcome: RejectedDuplicate, PriorAt: priorAt, Message: msg}
}

func (e *Engine) enqueuePending(ctx context.Context, evt attendance.Event) {
	if e.pending == nil {
		return
	}
	body, err := json.Marshal(evt)
	if err != nil {
		e.log.Error("pending event marshal failed", zap.Error(err))
		return
	}
	if err := e.pending.Publish(ctx, queue.Message{Type: queue.TypeAttendance, Body: body}); err != nil {
		e.log.Error("pending event publish failed", zap.Error(err))
	}
}

func (e *Engine) sessionLock(key SessionKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.sessions[key]
	if !ok {
		lock = &sync.Mutex{}
		e.sessions[key] = lock
	}
	return lock
}
