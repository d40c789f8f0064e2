package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/teambition/rrule-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorlink_app_echo/internal/models"
)

// SessionService owns one-off dated sessions. Conflict checks run at commit
// time (create and final accept), not only when a time was first proposed, so
// two concurrent bookings cannot both land on the same weekly time.
type SessionService struct {
	db       *gorm.DB
	routines *RoutineService
	notifier *Notifier
}

func NewSessionService(db *gorm.DB, routines *RoutineService, notifier *Notifier) *SessionService {
	return &SessionService{db: db, routines: routines, notifier: notifier}
}

// CreateSessionInput carries everything needed to book a one-off session
type CreateSessionInput struct {
	TeacherID        uint               `json:"teacher_id"`
	StudentIDs       []uint             `json:"student_ids" validate:"required,min=1"`
	CourseID         uint               `json:"course_id" validate:"required"`
	CourseTitle      string             `json:"course_title"`
	Type             models.SessionType `json:"type" validate:"required,oneof=demo regular"`
	Date             time.Time          `json:"date" validate:"required"`
	DurationMinutes  int                `json:"duration_minutes" validate:"gt=0"`
	Timezone         string             `json:"timezone"`
	RequireAgreement bool               `json:"require_agreement"`
	RoutineID        *uint              `json:"routine_id,omitempty"`
}

// Create books a session. With RequireAgreement it starts 'proposed' and needs
// every student's accept; otherwise it is 'scheduled' immediately.
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*models.Session, error) {
	if in.Type != models.SessionTypeDemo && in.Type != models.SessionTypeRegular {
		return nil, models.NewValidationError("unknown session type %q", in.Type)
	}
	if in.Date.IsZero() {
		return nil, models.NewValidationError("session date is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, models.NewValidationError("session duration must be positive, got %d", in.DurationMinutes)
	}
	students := dedupeIDs(in.StudentIDs)
	if len(students) == 0 {
		return nil, models.NewValidationError("at least one student is required")
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}

	var excludeRoutine uint
	if in.RoutineID != nil {
		// a materialized session's own routine slot is not a conflict with itself
		excludeRoutine = *in.RoutineID
	}

	var session models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkStudentsFree(tx, students, in.Date, tz, excludeRoutine); err != nil {
			return err
		}

		status := models.SessionStatusScheduled
		response := models.ResponseAccepted
		if in.RequireAgreement {
			status = models.SessionStatusProposed
			response = models.ResponsePending
		}

		session = models.Session{
			RoutineID:       in.RoutineID,
			TeacherID:       in.TeacherID,
			CourseID:        in.CourseID,
			CourseTitle:     in.CourseTitle,
			Type:            in.Type,
			Date:            in.Date.UTC(),
			DurationMinutes: in.DurationMinutes,
			Status:          status,
			Timezone:        tz,
		}
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		for _, studentID := range students {
			p := models.SessionParticipant{SessionID: session.ID, StudentID: studentID, Response: response}
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("failed to add participant %d: %w", studentID, err)
			}
			session.Participants = append(session.Participants, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, models.EventSessionCreated, "session", session.ID, session,
		append(students, session.TeacherID))
	return &session, nil
}

// Get loads one session with its participants
func (s *SessionService) Get(ctx context.Context, sessionID uint) (*models.Session, error) {
	return s.load(s.db.WithContext(ctx), sessionID, false)
}

func (s *SessionService) load(tx *gorm.DB, sessionID uint, forUpdate bool) (*models.Session, error) {
	q := tx.Preload("Participants")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var session models.Session
	if err := q.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("session", sessionID)
		}
		return nil, err
	}
	return &session, nil
}

// Respond records a student's accept/reject on a proposed session. When the
// last required accept lands, the weekly conflict check runs once more; if
// the time was taken concurrently the call fails with a conflict error and
// nothing is written.
func (s *SessionService) Respond(ctx context.Context, sessionID, studentID uint, accept bool) (*models.Session, error) {
	var session *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.load(tx, sessionID, true)
		if err != nil {
			return err
		}

		changed, err := session.RecordResponse(studentID, accept)
		if err != nil {
			return err
		}
		if !changed {
			return nil // retry-safe no-op
		}

		if accept {
			if err := s.finalizeIfAgreed(tx, session); err != nil {
				return err
			}
		}

		if err := tx.Omit(clause.Associations).Save(session).Error; err != nil {
			return err
		}
		return tx.Save(session.Participant(studentID)).Error
	})
	if err != nil {
		return nil, err
	}

	var recipients []uint
	for _, p := range session.Participants {
		recipients = append(recipients, p.StudentID)
	}
	s.notifier.Notify(ctx, models.EventSessionUpdated, "session", session.ID, session,
		append(recipients, session.TeacherID))
	return session, nil
}

// finalizeIfAgreed flips a proposed session to scheduled once every remaining
// participant has accepted. Commit-time re-validation closes the race window
// between proposal and the agreement completing, whichever event completes it
// (the last accept, or the last holdout leaving).
func (s *SessionService) finalizeIfAgreed(tx *gorm.DB, session *models.Session) error {
	if session.Status != models.SessionStatusProposed || !session.AllAccepted() {
		return nil
	}
	var students []uint
	for _, p := range session.Participants {
		students = append(students, p.StudentID)
	}
	var excludeRoutine uint
	if session.RoutineID != nil {
		excludeRoutine = *session.RoutineID
	}
	if err := s.checkStudentsFree(tx, students, session.Date, session.Timezone, excludeRoutine); err != nil {
		return err
	}
	session.Status = models.SessionStatusScheduled
	return nil
}

// Cancel ends a session. The teacher cancels outright. A student cancels
// outright only when they are the sole participant; otherwise they just leave
// the participant set and the session survives for the others.
func (s *SessionService) Cancel(ctx context.Context, sessionID, actorID uint) (*models.Session, error) {
	var session *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.load(tx, sessionID, true)
		if err != nil {
			return err
		}
		if session.IsTerminal() {
			if session.Status == models.SessionStatusCancelled {
				return nil // retry-safe
			}
			return models.NewStateError("session %d is %s", session.ID, session.Status)
		}

		if actorID == session.TeacherID {
			session.Status = models.SessionStatusCancelled
			return tx.Save(session).Error
		}

		p := session.Participant(actorID)
		if p == nil {
			return models.NewAuthorizationError("user %d is not part of session %d", actorID, session.ID)
		}
		if len(session.Participants) == 1 {
			session.Status = models.SessionStatusCancelled
			return tx.Save(session).Error
		}
		// leave the participant set, session continues for the rest
		if err := tx.Delete(p).Error; err != nil {
			return err
		}
		session.RemoveParticipant(actorID)
		// the leaver may have been the last holdout; without this the
		// remaining accepts could never complete the agreement, since their
		// retries are no-ops
		if err := s.finalizeIfAgreed(tx, session); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(session).Error
	})
	if err != nil {
		return nil, err
	}

	var recipients []uint
	for _, p := range session.Participants {
		recipients = append(recipients, p.StudentID)
	}
	s.notifier.Notify(ctx, models.EventSessionUpdated, "session", session.ID, session,
		append(recipients, session.TeacherID, actorID))
	return session, nil
}

// Complete marks a scheduled session as held. Teacher-only and terminal.
func (s *SessionService) Complete(ctx context.Context, sessionID, actorID uint) (*models.Session, error) {
	var session *models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		session, err = s.load(tx, sessionID, true)
		if err != nil {
			return err
		}
		if session.TeacherID != actorID {
			return models.NewAuthorizationError("only the session's teacher may complete it")
		}
		if session.Status == models.SessionStatusCompleted {
			return nil // retry-safe
		}
		if session.Status != models.SessionStatusScheduled {
			return models.NewStateError("cannot complete a %s session", session.Status)
		}
		session.Status = models.SessionStatusCompleted
		return tx.Save(session).Error
	})
	if err != nil {
		return nil, err
	}

	var recipients []uint
	for _, p := range session.Participants {
		recipients = append(recipients, p.StudentID)
	}
	s.notifier.Notify(ctx, models.EventSessionUpdated, "session", session.ID, session,
		append(recipients, session.TeacherID))
	return session, nil
}

// ListForUser returns sessions the user teaches or attends
func (s *SessionService) ListForUser(ctx context.Context, userID uint) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).Preload("Participants").
		Where("teacher_id = ?", userID).
		Or("id IN (?)", s.db.Model(&models.SessionParticipant{}).Select("session_id").Where("student_id = ?", userID)).
		Order("date asc").
		Find(&sessions).Error
	return sessions, err
}

// MaterializeWeek turns every active routine slot into a concrete scheduled
// session for the coming week. Runs from the worker. Conflicts are re-checked
// at materialization time, not just at routine creation: a student whose
// weekly time was taken since then is left out of the materialized session.
func (s *SessionService) MaterializeWeek(ctx context.Context, now time.Time) (int, error) {
	var routines []models.Routine
	err := s.db.WithContext(ctx).
		Preload("Members").Preload("Slots").Preload("Slots.Assignments").
		Where("status = ?", models.RoutineStatusActive).
		Find(&routines).Error
	if err != nil {
		return 0, fmt.Errorf("failed to load routines: %w", err)
	}

	created := 0
	for _, routine := range routines {
		loc, err := time.LoadLocation(routine.Timezone)
		if err != nil {
			log.Printf("materialize: routine %d has invalid timezone %q, skipping", routine.ID, routine.Timezone)
			continue
		}
		for _, slot := range routine.Slots {
			occurrence, err := nextSlotOccurrence(slot, now, loc)
			if err != nil {
				log.Printf("materialize: slot %d: %v", slot.ID, err)
				continue
			}

			var exists int64
			s.db.Model(&models.Session{}).
				Where("routine_id = ? AND date = ?", routine.ID, occurrence.UTC()).
				Count(&exists)
			if exists > 0 {
				continue
			}

			var students []uint
			for _, a := range slot.Assignments {
				students = append(students, a.StudentID)
			}
			if len(students) == 0 {
				continue
			}

			routineID := routine.ID
			_, err = s.Create(ctx, CreateSessionInput{
				TeacherID:       routine.TeacherID,
				StudentIDs:      students,
				CourseID:        routine.CourseID,
				CourseTitle:     routine.CourseTitle,
				Type:            models.SessionTypeRegular,
				Date:            occurrence,
				DurationMinutes: slot.DurationMinutes,
				Timezone:        routine.Timezone,
				RoutineID:       &routineID,
			})
			if err != nil {
				// routine slots are already weekly commitments, so the only
				// conflicts here come from outside bookings
				log.Printf("materialize: routine %d slot %d: %v", routine.ID, slot.ID, err)
				continue
			}
			created++
		}
	}
	return created, nil
}

// nextSlotOccurrence finds the first concrete date of a weekly slot strictly
// after now, in the routine's timezone
func nextSlotOccurrence(slot models.RoutineSlot, now time.Time, loc *time.Location) (time.Time, error) {
	start, err := time.ParseInLocation("15:04", slot.TimeHHMM, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot time %q", slot.TimeHHMM)
	}
	local := now.In(loc)
	dtstart := time.Date(local.Year(), local.Month(), local.Day(), start.Hour(), start.Minute(), 0, 0, loc)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{weekdayToRRule(slot.Weekday)},
		Dtstart:   dtstart.AddDate(0, 0, -7),
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("rrule build failed: %w", err)
	}
	next := rule.After(now, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no next occurrence for slot on weekday %d", slot.Weekday)
	}
	return next, nil
}

// weekdayToRRule maps time.Weekday numbering (0=Sunday) to rrule weekdays
func weekdayToRRule(weekday int) rrule.Weekday {
	switch weekday {
	case 0:
		return rrule.SU
	case 1:
		return rrule.MO
	case 2:
		return rrule.TU
	case 3:
		return rrule.WE
	case 4:
		return rrule.TH
	case 5:
		return rrule.FR
	default:
		return rrule.SA
	}
}

// checkStudentsFree verifies that none of the students has a weekly
// commitment at the session's derived weekly time, each in their own timezone
func (s *SessionService) checkStudentsFree(tx *gorm.DB, studentIDs []uint, date time.Time, fallbackTZ string, excludeRoutineID uint) error {
	for _, studentID := range studentIDs {
		tz := fallbackTZ
		var student models.User
		if err := tx.Session(&gorm.Session{NewDB: true}).First(&student, studentID).Error; err == nil && student.Timezone != "" {
			tz = student.Timezone
		}

		weekly, err := models.WeeklyTimeOf(date, tz)
		if err != nil {
			return err
		}
		commitments, err := s.routines.weeklyCommitments(tx, studentID, excludeRoutineID)
		if err != nil {
			return err
		}
		if res := models.CheckWeeklyConflict(weekly, commitments); res.Conflict {
			return models.NewConflictError(
				fmt.Sprintf("student %d already has a weekly commitment at %s on weekday %d", studentID, weekly.TimeHHMM, weekly.Weekday),
				res.With)
		}
	}
	return nil
}
