package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorlink_app_echo/internal/models"
)

// ProposalService manages teacher-initiated change proposals and their
// per-student consensus. Responses on the same proposal serialize through a
// row lock so concurrent accepts never lose an update.
type ProposalService struct {
	db       *gorm.DB
	routines *RoutineService
	sessions *SessionService
	notifier *Notifier

	// partialWeekly applies weekly add/update per accepting student
	// (fragmenting the routine); false makes those all-or-nothing.
	// Slot removal always requires unanimity regardless.
	partialWeekly bool
}

func NewProposalService(db *gorm.DB, routines *RoutineService, sessions *SessionService, notifier *Notifier, partialWeekly bool) *ProposalService {
	return &ProposalService{db: db, routines: routines, sessions: sessions, notifier: notifier, partialWeekly: partialWeekly}
}

// CreateOneoffInput proposes a single dated session to routine students
type CreateOneoffInput struct {
	ActorID         uint      `json:"-"`
	RoutineID       uint      `json:"routine_id" validate:"required"`
	StudentIDs      []uint    `json:"student_ids" validate:"required,min=1"`
	ProposedDate    time.Time `json:"proposed_date" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gt=0"`
	Note            string    `json:"note"`
}

// CreateOneoff opens a one-off proposal targeting the given students
func (s *ProposalService) CreateOneoff(ctx context.Context, in CreateOneoffInput) (*models.ChangeProposal, error) {
	if in.ProposedDate.IsZero() {
		return nil, models.NewValidationError("proposed date is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, models.NewValidationError("duration must be positive, got %d", in.DurationMinutes)
	}

	proposal := models.ChangeProposal{
		RoutineID:       in.RoutineID,
		ChangeType:      models.ChangeTypeOneoff,
		ProposedDate:    &in.ProposedDate,
		DurationMinutes: in.DurationMinutes,
		Note:            in.Note,
		Status:          models.ProposalStatusPending,
	}
	return s.create(ctx, &proposal, in.ActorID, in.StudentIDs)
}

// CreateWeeklyInput proposes a weekly slot modification
type CreateWeeklyInput struct {
	ActorID      uint              `json:"-"`
	RoutineID    uint              `json:"routine_id" validate:"required"`
	StudentIDs   []uint            `json:"student_ids" validate:"required,min=1"`
	Op           models.SlotOp     `json:"op" validate:"required,oneof=add update remove"`
	NewSlot      *models.SlotInput `json:"new_slot,omitempty"`
	TargetSlotID *uint             `json:"target_slot_id,omitempty"`
	Note         string            `json:"note"`
}

// CreateWeekly opens a weekly change proposal. 'add' needs a full new-slot
// triple not already in the routine; 'update' and 'remove' need an existing
// target slot.
func (s *ProposalService) CreateWeekly(ctx context.Context, in CreateWeeklyInput) (*models.ChangeProposal, error) {
	routine, err := s.routines.Get(ctx, in.RoutineID)
	if err != nil {
		return nil, err
	}

	proposal := models.ChangeProposal{
		RoutineID:  in.RoutineID,
		ChangeType: models.ChangeTypeWeekly,
		Op:         in.Op,
		Note:       in.Note,
		Status:     models.ProposalStatusPending,
	}

	switch in.Op {
	case models.SlotOpAdd, models.SlotOpUpdate:
		if in.NewSlot == nil {
			return nil, models.NewValidationError("%s requires the new slot fields", in.Op)
		}
		if err := models.ValidateSlots([]models.SlotInput{*in.NewSlot}); err != nil {
			return nil, err
		}
		if routine.HasSlot(in.NewSlot.Key()) {
			return nil, models.NewValidationError("slot %s on weekday %d already exists in routine %d",
				in.NewSlot.TimeHHMM, in.NewSlot.Weekday, routine.ID)
		}
		proposal.NewWeekday = &in.NewSlot.Weekday
		proposal.NewTimeHHMM = &in.NewSlot.TimeHHMM
		proposal.NewDurationMinutes = &in.NewSlot.DurationMinutes
	case models.SlotOpRemove:
	default:
		return nil, models.NewValidationError("unknown weekly op %q", in.Op)
	}

	if in.Op == models.SlotOpUpdate || in.Op == models.SlotOpRemove {
		if in.TargetSlotID == nil {
			return nil, models.NewValidationError("%s requires a target slot", in.Op)
		}
		if routine.FindSlot(*in.TargetSlotID) == nil {
			return nil, models.NewNotFoundError("routine slot", *in.TargetSlotID)
		}
		proposal.TargetSlotID = in.TargetSlotID
	}

	return s.create(ctx, &proposal, in.ActorID, in.StudentIDs)
}

func (s *ProposalService) create(ctx context.Context, proposal *models.ChangeProposal, actorID uint, studentIDs []uint) (*models.ChangeProposal, error) {
	routine, err := s.routines.Get(ctx, proposal.RoutineID)
	if err != nil {
		return nil, err
	}
	if routine.TeacherID != actorID {
		return nil, models.NewAuthorizationError("only the routine's teacher may propose changes")
	}

	targets := dedupeIDs(studentIDs)
	if len(targets) == 0 {
		return nil, models.NewValidationError("at least one target student is required")
	}
	for _, studentID := range targets {
		if !routine.HasStudent(studentID) {
			return nil, models.NewValidationError("student %d is not a member of routine %d", studentID, routine.ID)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(proposal).Error; err != nil {
			return fmt.Errorf("failed to create proposal: %w", err)
		}
		for _, studentID := range targets {
			r := models.ProposalResponse{ProposalID: proposal.ID, StudentID: studentID, Response: models.ResponsePending}
			if err := tx.Create(&r).Error; err != nil {
				return fmt.Errorf("failed to add proposal target %d: %w", studentID, err)
			}
			proposal.Responses = append(proposal.Responses, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Notify(ctx, models.EventProposalCreated, "proposal", proposal.ID, proposal,
		append(targets, routine.TeacherID))
	return proposal, nil
}

// GetForUser returns the proposal only to the routine's teacher or one of the
// targeted students.
func (s *ProposalService) GetForUser(ctx context.Context, proposalID, userID uint) (*models.ChangeProposal, error) {
	proposal, err := s.load(s.db.WithContext(ctx), proposalID, false)
	if err != nil {
		return nil, err
	}
	if proposal.Response(userID) != nil {
		return proposal, nil
	}
	var routine models.Routine
	if err := s.db.WithContext(ctx).Select("id", "teacher_id").First(&routine, proposal.RoutineID).Error; err != nil {
		return nil, err
	}
	if routine.TeacherID != userID {
		return nil, models.NewAuthorizationError("only the routine's teacher or targeted students may view this proposal")
	}
	return proposal, nil
}

func (s *ProposalService) load(tx *gorm.DB, proposalID uint, forUpdate bool) (*models.ChangeProposal, error) {
	q := tx.Preload("Responses")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var proposal models.ChangeProposal
	if err := q.First(&proposal, proposalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("proposal", proposalID)
		}
		return nil, err
	}
	return &proposal, nil
}

// Respond records one student's answer. Repeating the same answer is a no-op
// success. The response that empties the pending set triggers application in
// the same transaction: slot removal needs unanimity, add/update apply per
// accepting student (unless configured all-or-nothing), one-off proposals
// become a scheduled session for whoever accepted.
func (s *ProposalService) Respond(ctx context.Context, proposalID, studentID uint, accept bool) (*models.ChangeProposal, error) {
	var proposal *models.ChangeProposal
	var routine *models.Routine

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		proposal, err = s.load(tx, proposalID, true)
		if err != nil {
			return err
		}

		changed, err := proposal.RecordResponse(studentID, accept)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := tx.Save(proposal.Response(studentID)).Error; err != nil {
			return err
		}

		outcome := proposal.Outcome(s.partialWeekly)
		if !outcome.Terminal {
			return nil
		}

		routine, err = s.routines.load(tx, proposal.RoutineID, true)
		if err != nil {
			return err
		}
		if outcome.Status == models.ProposalStatusApplied {
			if err := s.apply(tx, proposal, routine, outcome.ApplyTo); err != nil {
				return err
			}
		}
		proposal.Status = outcome.Status
		return tx.Omit(clause.Associations).Save(proposal).Error
	})
	if err != nil {
		return nil, err
	}

	recipients := []uint{studentID}
	for _, r := range proposal.Responses {
		recipients = append(recipients, r.StudentID)
	}
	if routine != nil {
		recipients = append(recipients, routine.TeacherID)
		s.routines.invalidateGroup(ctx, routine.TeacherID, routine.CourseID)
	}
	s.notifier.Notify(ctx, models.EventProposalUpdated, "proposal", proposal.ID, proposal, recipients)
	return proposal, nil
}

// apply mutates the routine (or books the one-off session) for the students
// the outcome selected. Runs on the respond transaction: a conflict rolls the
// triggering response back too, leaving the proposal still pending.
func (s *ProposalService) apply(tx *gorm.DB, proposal *models.ChangeProposal, routine *models.Routine, applyTo []uint) error {
	switch proposal.ChangeType {
	case models.ChangeTypeOneoff:
		return s.applyOneoff(tx, proposal, routine, applyTo)
	case models.ChangeTypeWeekly:
		return s.applyWeekly(tx, proposal, routine, applyTo)
	}
	return models.NewStateError("proposal %d has unknown change type %q", proposal.ID, proposal.ChangeType)
}

func (s *ProposalService) applyOneoff(tx *gorm.DB, proposal *models.ChangeProposal, routine *models.Routine, applyTo []uint) error {
	if err := s.sessions.checkStudentsFree(tx, applyTo, *proposal.ProposedDate, routine.Timezone, routine.ID); err != nil {
		return err
	}
	session := models.Session{
		RoutineID:       &routine.ID,
		TeacherID:       routine.TeacherID,
		CourseID:        routine.CourseID,
		CourseTitle:     routine.CourseTitle,
		Type:            models.SessionTypeRegular,
		Date:            proposal.ProposedDate.UTC(),
		DurationMinutes: proposal.DurationMinutes,
		Status:          models.SessionStatusScheduled,
		Timezone:        routine.Timezone,
	}
	if err := tx.Create(&session).Error; err != nil {
		return fmt.Errorf("failed to create one-off session: %w", err)
	}
	for _, studentID := range applyTo {
		p := models.SessionParticipant{SessionID: session.ID, StudentID: studentID, Response: models.ResponseAccepted}
		if err := tx.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to add participant %d: %w", studentID, err)
		}
	}
	return nil
}

func (s *ProposalService) applyWeekly(tx *gorm.DB, proposal *models.ChangeProposal, routine *models.Routine, applyTo []uint) error {
	switch proposal.Op {
	case models.SlotOpRemove:
		// unanimity already established by the outcome; drop the slot for everyone
		slot := routine.FindSlot(*proposal.TargetSlotID)
		if slot == nil {
			return models.NewNotFoundError("routine slot", *proposal.TargetSlotID)
		}
		if err := tx.Where("slot_id = ?", slot.ID).Delete(&models.SlotAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(slot).Error

	case models.SlotOpAdd:
		newSlot, err := s.ensureSlot(tx, proposal, routine)
		if err != nil {
			return err
		}
		return s.assignStudents(tx, routine, newSlot, applyTo)

	case models.SlotOpUpdate:
		target := routine.FindSlot(*proposal.TargetSlotID)
		if target == nil {
			return models.NewNotFoundError("routine slot", *proposal.TargetSlotID)
		}
		newSlot, err := s.ensureSlot(tx, proposal, routine)
		if err != nil {
			return err
		}
		// accepting students move to the new slot; the rest keep the old one
		for _, studentID := range applyTo {
			if err := tx.Where("slot_id = ? AND student_id = ?", target.ID, studentID).
				Delete(&models.SlotAssignment{}).Error; err != nil {
				return err
			}
		}
		if err := s.assignStudents(tx, routine, newSlot, applyTo); err != nil {
			return err
		}
		// an emptied slot carries no commitment and is dropped
		var remaining int64
		if err := tx.Model(&models.SlotAssignment{}).Where("slot_id = ?", target.ID).Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.Delete(target).Error
		}
		return nil
	}
	return models.NewStateError("proposal %d has unknown op %q", proposal.ID, proposal.Op)
}

// ensureSlot creates the proposed slot row unless an identical triple already
// exists on the routine
func (s *ProposalService) ensureSlot(tx *gorm.DB, proposal *models.ChangeProposal, routine *models.Routine) (*models.RoutineSlot, error) {
	key, err := proposal.NewSlotKey()
	if err != nil {
		return nil, err
	}
	for i := range routine.Slots {
		if routine.Slots[i].Key() == key {
			return &routine.Slots[i], nil
		}
	}
	slot := models.RoutineSlot{
		RoutineID:       routine.ID,
		Weekday:         key.Weekday,
		TimeHHMM:        key.TimeHHMM,
		DurationMinutes: key.DurationMinutes,
	}
	if err := tx.Create(&slot).Error; err != nil {
		return nil, fmt.Errorf("failed to create slot: %w", err)
	}
	routine.Slots = append(routine.Slots, slot)
	return &routine.Slots[len(routine.Slots)-1], nil
}

// assignStudents attaches students to a slot after checking each one's other
// weekly commitments at commit time
func (s *ProposalService) assignStudents(tx *gorm.DB, routine *models.Routine, slot *models.RoutineSlot, studentIDs []uint) error {
	candidate := models.WeeklyTime{Weekday: slot.Weekday, TimeHHMM: slot.TimeHHMM}
	for _, studentID := range studentIDs {
		commitments, err := s.routines.weeklyCommitments(tx, studentID, routine.ID)
		if err != nil {
			return err
		}
		if res := models.CheckWeeklyConflict(candidate, commitments); res.Conflict {
			return models.NewConflictError(
				fmt.Sprintf("student %d already has a commitment on weekday %d at %s", studentID, slot.Weekday, slot.TimeHHMM),
				res.With)
		}
		var existing int64
		if err := tx.Model(&models.SlotAssignment{}).
			Where("slot_id = ? AND student_id = ?", slot.ID, studentID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			continue
		}
		if err := tx.Create(&models.SlotAssignment{SlotID: slot.ID, StudentID: studentID}).Error; err != nil {
			return fmt.Errorf("failed to assign student %d: %w", studentID, err)
		}
	}
	return nil
}

// ListForRoutine returns the routine's proposals, newest first
func (s *ProposalService) ListForRoutine(ctx context.Context, routineID uint) ([]models.ChangeProposal, error) {
	var proposals []models.ChangeProposal
	err := s.db.WithContext(ctx).Preload("Responses").
		Where("routine_id = ?", routineID).
		Order("created_at desc").
		Find(&proposals).Error
	return proposals, err
}

// ExpireStale voids pending proposals that have gathered dust. Sweep-driven
// from the worker; idempotent.
func (s *ProposalService) ExpireStale(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	cutoff := now.Add(-olderThan)
	res := s.db.WithContext(ctx).Model(&models.ChangeProposal{}).
		Where("status = ? AND created_at < ?", models.ProposalStatusPending, cutoff).
		Update("status", models.ProposalStatusExpired)
	return res.RowsAffected, res.Error
}
