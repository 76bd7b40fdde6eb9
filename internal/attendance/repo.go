package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertEvent writes a new attendance event.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}
	if evt.Status == "" {
		evt.Status = StatusPresent
	}
	if evt.IdempotencyKey == "" {
		evt.IdempotencyKey = IdempotencyKey(evt.SubjectID, evt.CourseCode, evt.OccurredAt)
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_events
			(id, subject_id, display_name, contact, class_id, course_code, course_name,
			 section, room, schedule_text, recorder_id, recorder_name, occurred_at, status, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING created_at
	`, evt.ID, evt.SubjectID, evt.DisplayName, evt.Contact, evt.ClassID, evt.CourseCode, evt.CourseName,
		evt.Section, evt.Room, evt.ScheduleText, evt.RecorderID, evt.RecorderName, evt.OccurredAt, evt.Status, evt.IdempotencyKey)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// FindEvent returns the event for a subject in a class on a calendar date,
// or nil when none exists.
func (r *Repository) FindEvent(ctx context.Context, classID, subjectID string, date time.Time) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, subject_id, display_name, contact, class_id, course_code, course_name,
		       section, room, schedule_text, recorder_id, recorder_name, occurred_at, status, idempotency_key, created_at
		FROM attendance_events
		WHERE class_id = $1 AND subject_id = $2 AND occurred_at::date = $3::date
		ORDER BY occurred_at ASC
		LIMIT 1
	`, classID, subjectID, date)
	evt, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// ListEvents returns events with basic filters, newest first.
func (r *Repository) ListEvents(ctx context.Context, classID, subjectID string, limit, offset int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, subject_id, display_name, contact, class_id, course_code, course_name,
		section, room, schedule_text, recorder_id, recorder_name, occurred_at, status, idempotency_key, created_at
		FROM attendance_events`
	args := []any{}
	clauses := []string{}
	if classID != "" {
		clauses = append(clauses, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	if subjectID != "" {
		clauses = append(clauses, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, subjectID)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var evt Event
	err := row.Scan(&evt.ID, &evt.SubjectID, &evt.DisplayName, &evt.Contact, &evt.ClassID,
		&evt.CourseCode, &evt.CourseName, &evt.Section, &evt.Room, &evt.ScheduleText,
		&evt.RecorderID, &evt.RecorderName, &evt.OccurredAt, &evt.Status, &evt.IdempotencyKey, &evt.CreatedAt)
	return evt, err
}

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}

// CreateClass inserts a class.
func (r *Repository) CreateClass(ctx context.Context, c Class) (Class, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO classes (id, course_code, course_name, section, room, schedule, lecturer_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, c.ID, c.CourseCode, c.CourseName, c.Section, c.Room, c.Schedule, c.LecturerID)
	if err := row.Scan(&c.CreatedAt); err != nil {
		return Class{}, err
	}
	return c, nil
}

// GetClass returns a class by id, or nil when absent.
func (r *Repository) GetClass(ctx context.Context, id string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_code, course_name, section, room, schedule, lecturer_id, created_at
		FROM classes WHERE id = $1
	`, id)
	var c Class
	if err := row.Scan(&c.ID, &c.CourseCode, &c.CourseName, &c.Section, &c.Room, &c.Schedule, &c.LecturerID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListClasses returns classes, optionally filtered by lecturer.
func (r *Repository) ListClasses(ctx context.Context, lecturerID string) ([]Class, error) {
	query := `SELECT id, course_code, course_name, section, room, schedule, lecturer_id, created_at FROM classes`
	args := []any{}
	if lecturerID != "" {
		query += " WHERE lecturer_id = $1"
		args = append(args, lecturerID)
	}
	query += " ORDER BY course_code, section"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.CourseCode, &c.CourseName, &c.Section, &c.Room, &c.Schedule, &c.LecturerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// UpdateClass overwrites the mutable fields of a class.
func (r *Repository) UpdateClass(ctx context.Context, c Class) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes
		SET course_code = $2, course_name = $3, section = $4, room = $5, schedule = $6, lecturer_id = $7
		WHERE id = $1
	`, c.ID, c.CourseCode, c.CourseName, c.Section, c.Room, c.Schedule, c.LecturerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return err
}

// DeleteClass removes a class.
func (r *Repository) DeleteClass(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	return err
}

// UpsertStudent creates or updates a student keyed by student number.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) (Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (id, student_id, name, email)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (student_id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email
		RETURNING id, created_at
	`, s.ID, s.StudentID, s.Name, s.Email)
	if err := row.Scan(&s.ID, &s.CreatedAt); err != nil {
		return Student{}, err
	}
	return s, nil
}

// GetStudent returns a student by student number, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, studentID string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, name, email, created_at FROM students WHERE student_id = $1
	`, studentID)
	var s Student
	if err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Email, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListStudents returns all students ordered by student number.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, name, email, created_at FROM students ORDER BY student_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.StudentID, &s.Name, &s.Email, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// DeleteStudent removes a student by student number.
func (r *Repository) DeleteStudent(ctx context.Context, studentID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE student_id = $1`, studentID)
	return err
}

// GetLecturerByUsername returns a lecturer account, or nil when absent.
func (r *Repository) GetLecturerByUsername(ctx context.Context, username string) (*Lecturer, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, name, password_hash, created_at FROM lecturers WHERE username = $1
	`, username)
	var l Lecturer
	if err := row.Scan(&l.ID, &l.Username, &l.Name, &l.PasswordHash, &l.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// UpsertLecturer creates or updates a lecturer account.
func (r *Repository) UpsertLecturer(ctx context.Context, l Lecturer) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lecturers (id, username, name, password_hash)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (username) DO UPDATE SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash
	`, l.ID, l.Username, l.Name, l.PasswordHash)
	return err
}
