package attendance

import (
	"fmt"
	"time"
)

// Attendance statuses accepted by the store.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
	StatusExcused = "excused"
)

// ValidStatus reports whether s is one of the accepted statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Event is one recorded attendance admission. The store is the system of
// record; the scanner only ever creates these.
type Event struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	DisplayName    string    `json:"display_name"`
	Contact        string    `json:"contact"`
	ClassID        string    `json:"class_id"`
	CourseCode     string    `json:"course_code"`
	CourseName     string    `json:"course_name"`
	Section        string    `json:"section"`
	Room           string    `json:"room"`
	ScheduleText   string    `json:"schedule_text"`
	RecorderID     string    `json:"recorder_id"`
	RecorderName   string    `json:"recorder_name"`
	OccurredAt     time.Time `json:"occurred_at"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

// IdempotencyKey derives the at-least-once persistence key for an admission.
func IdempotencyKey(subjectID, courseCode string, occurredAt time.Time) string {
	return fmt.Sprintf("%s_%s_%d", subjectID, courseCode, occurredAt.UnixMilli())
}

// Class is one scheduled class a lecturer can take attendance for.
type Class struct {
	ID         string    `json:"id"`
	CourseCode string    `json:"course_code"`
	CourseName string    `json:"course_name"`
	Section    string    `json:"section"`
	Room       string    `json:"room"`
	Schedule   string    `json:"schedule"`
	LecturerID string    `json:"lecturer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Student is a registered student whose badge QR encodes its identity fields.
type Student struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Lecturer is a scanner operator account.
type Lecturer struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
