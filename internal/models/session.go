package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionType distinguishes trial sessions from regular ones
type SessionType string

const (
	SessionTypeDemo    SessionType = "demo"
	SessionTypeRegular SessionType = "regular"
)

// SessionStatus represents the lifecycle state of a one-off session.
// completed and cancelled are terminal.
type SessionStatus string

const (
	SessionStatusProposed  SessionStatus = "proposed"
	SessionStatusScheduled SessionStatus = "scheduled"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// ParticipantResponse records one student's answer to a proposed commitment.
// Each (entity, student) pair holds exactly one response row, so
// pending/accepted/rejected are mutually exclusive by construction.
type ParticipantResponse string

const (
	ResponsePending  ParticipantResponse = "pending"
	ResponseAccepted ParticipantResponse = "accepted"
	ResponseRejected ParticipantResponse = "rejected"
)

// Session is one concrete, dated session occurrence. It may be created
// directly or materialized from a routine slot.
type Session struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	RoutineID *uint `gorm:"index" json:"routine_id,omitempty"` // set when materialized from a routine slot
	TeacherID uint  `gorm:"index" json:"teacher_id"`
	CourseID  uint  `json:"course_id"`

	CourseTitle     string        `gorm:"type:varchar(255)" json:"course_title"`
	Type            SessionType   `gorm:"type:varchar(20);default:'regular'" json:"type"`
	Date            time.Time     `json:"date"`
	DurationMinutes int           `json:"duration_minutes"`
	Status          SessionStatus `gorm:"type:varchar(20);default:'proposed'" json:"status"`
	Timezone        string        `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`

	// Relationships
	Participants []SessionParticipant `gorm:"foreignKey:SessionID" json:"participants,omitempty"`
}

// SessionParticipant links a student to a session together with their response
type SessionParticipant struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SessionID uint                `gorm:"uniqueIndex:idx_session_participant,priority:1" json:"session_id"`
	StudentID uint                `gorm:"uniqueIndex:idx_session_participant,priority:2" json:"student_id"`
	Response  ParticipantResponse `gorm:"type:varchar(20);default:'pending'" json:"response"`
}

// IsTerminal reports whether the session reached a final state
func (s *Session) IsTerminal() bool {
	return s.Status == SessionStatusCompleted || s.Status == SessionStatusCancelled
}

// Participant returns the participant row for a student, or nil
func (s *Session) Participant(studentID uint) *SessionParticipant {
	for i := range s.Participants {
		if s.Participants[i].StudentID == studentID {
			return &s.Participants[i]
		}
	}
	return nil
}

// CanView reports whether a user may read the session: its teacher or one of
// its participants.
func (s *Session) CanView(userID uint) bool {
	return s.TeacherID == userID || s.Participant(userID) != nil
}

// RemoveParticipant drops a student from the participant set, reporting
// whether they were in it. Agreement must be re-evaluated afterwards: the
// removed student may have been the last one still pending.
func (s *Session) RemoveParticipant(studentID uint) bool {
	for i := range s.Participants {
		if s.Participants[i].StudentID == studentID {
			s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// RecordResponse applies one student's accept/reject. It returns whether the
// call changed anything: repeating the same response is a no-op so client
// retries stay harmless. Flipping a response after it was given is refused.
func (s *Session) RecordResponse(studentID uint, accept bool) (changed bool, err error) {
	if s.IsTerminal() {
		return false, NewStateError("session %d is %s", s.ID, s.Status)
	}
	p := s.Participant(studentID)
	if p == nil {
		return false, NewNotFoundError("session participant", studentID)
	}
	want := ResponseAccepted
	if !accept {
		want = ResponseRejected
	}
	if p.Response == want {
		return false, nil
	}
	if p.Response != ResponsePending {
		return false, NewStateError("student %d already responded %s", studentID, p.Response)
	}
	p.Response = want
	return true, nil
}

// AllAccepted reports whether every required participant has accepted
func (s *Session) AllAccepted() bool {
	for _, p := range s.Participants {
		if p.Response != ResponseAccepted {
			return false
		}
	}
	return len(s.Participants) > 0
}

// WeeklyTimeIn derives the session's weekly time in the given timezone for
// conflict checks against weekly commitments
func (s *Session) WeeklyTimeIn(tz string) (WeeklyTime, error) {
	return WeeklyTimeOf(s.Date, tz)
}
