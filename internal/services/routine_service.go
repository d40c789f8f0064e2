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

// RoutineService owns recurring weekly commitments. All mutations on a
// routine group run inside one transaction so client-driven read-modify-write
// races cannot lose updates.
type RoutineService struct {
	db       *gorm.DB
	cache    *RedisCache
	notifier *Notifier
}

func NewRoutineService(db *gorm.DB, cache *RedisCache, notifier *Notifier) *RoutineService {
	return &RoutineService{db: db, cache: cache, notifier: notifier}
}

// CreateRoutineInput carries everything needed to open a routine
type CreateRoutineInput struct {
	TeacherID          uint               `json:"teacher_id"`
	CourseID           uint               `json:"course_id" validate:"required"`
	CourseTitle        string             `json:"course_title" validate:"required"`
	StudentIDs         []uint             `json:"student_ids" validate:"required,min=1"`
	Slots              []models.SlotInput `json:"slots" validate:"required,min=1,dive"`
	Timezone           string             `json:"timezone"`
	RequiresAcceptance bool               `json:"requires_acceptance"`
}

// Create opens a routine with the given slot set and students. Every slot is
// checked against each student's existing weekly commitments before anything
// is written; a hit aborts the whole creation.
func (s *RoutineService) Create(ctx context.Context, in CreateRoutineInput) (*models.Routine, error) {
	if err := models.ValidateSlots(in.Slots); err != nil {
		return nil, err
	}
	if len(in.StudentIDs) == 0 {
		return nil, models.NewValidationError("at least one student is required")
	}
	tz := in.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, models.NewValidationError("invalid timezone %q", tz)
	}

	students := dedupeIDs(in.StudentIDs)

	var routine models.Routine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, studentID := range students {
			commitments, err := s.weeklyCommitments(tx, studentID, 0)
			if err != nil {
				return err
			}
			for _, slot := range in.Slots {
				res := models.CheckWeeklyConflict(models.WeeklyTime{Weekday: slot.Weekday, TimeHHMM: slot.TimeHHMM}, commitments)
				if res.Conflict {
					return models.NewConflictError(
						fmt.Sprintf("student %d already has a commitment on weekday %d at %s", studentID, slot.Weekday, slot.TimeHHMM),
						res.With)
				}
			}
		}

		memberStatus := models.RoutineMemberActive
		if in.RequiresAcceptance {
			memberStatus = models.RoutineMemberPending
		}

		routine = models.Routine{
			TeacherID:          in.TeacherID,
			CourseID:           in.CourseID,
			CourseTitle:        in.CourseTitle,
			Timezone:           tz,
			Status:             models.RoutineStatusActive,
			RequiresAcceptance: in.RequiresAcceptance,
		}
		if err := tx.Create(&routine).Error; err != nil {
			return fmt.Errorf("failed to create routine: %w", err)
		}

		for _, studentID := range students {
			member := models.RoutineMember{RoutineID: routine.ID, StudentID: studentID, Status: memberStatus}
			if err := tx.Create(&member).Error; err != nil {
				return fmt.Errorf("failed to add member %d: %w", studentID, err)
			}
			routine.Members = append(routine.Members, member)
		}

		for _, slotIn := range in.Slots {
			slot := models.RoutineSlot{
				RoutineID:       routine.ID,
				Weekday:         slotIn.Weekday,
				TimeHHMM:        slotIn.TimeHHMM,
				DurationMinutes: slotIn.DurationMinutes,
			}
			if err := tx.Create(&slot).Error; err != nil {
				return fmt.Errorf("failed to create slot: %w", err)
			}
			for _, studentID := range students {
				a := models.SlotAssignment{SlotID: slot.ID, StudentID: studentID}
				if err := tx.Create(&a).Error; err != nil {
					return fmt.Errorf("failed to assign slot: %w", err)
				}
				slot.Assignments = append(slot.Assignments, a)
			}
			routine.Slots = append(routine.Slots, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateGroup(ctx, routine.TeacherID, routine.CourseID)
	s.notifier.Notify(ctx, models.EventRoutineCreated, "routine", routine.ID, routine,
		append(routine.StudentIDs(), routine.TeacherID))
	return &routine, nil
}

// Get loads one routine with members, slots and assignments
func (s *RoutineService) Get(ctx context.Context, routineID uint) (*models.Routine, error) {
	return s.load(s.db.WithContext(ctx), routineID, false)
}

func (s *RoutineService) load(tx *gorm.DB, routineID uint, forUpdate bool) (*models.Routine, error) {
	q := tx.Preload("Members").Preload("Slots").Preload("Slots.Assignments")
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var routine models.Routine
	if err := q.First(&routine, routineID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("routine", routineID)
		}
		return nil, err
	}
	return &routine, nil
}

// Respond records a student's answer to initial membership: accept activates
// the membership, reject removes the student from the routine entirely.
// Accepting an already-active membership is a no-op success.
func (s *RoutineService) Respond(ctx context.Context, routineID, studentID uint, accept bool) (*models.Routine, error) {
	var routine *models.Routine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		routine, err = s.load(tx, routineID, true)
		if err != nil {
			return err
		}

		var member *models.RoutineMember
		for i := range routine.Members {
			if routine.Members[i].StudentID == studentID {
				member = &routine.Members[i]
				break
			}
		}
		if member == nil {
			return models.NewNotFoundError("routine member", studentID)
		}

		if accept {
			if member.Status == models.RoutineMemberActive {
				return nil // retry-safe
			}
			member.Status = models.RoutineMemberActive
			return tx.Save(member).Error
		}

		// opt-out: drop membership and every slot assignment of the student
		if err := tx.Where("student_id = ? AND slot_id IN (?)",
			studentID,
			tx.Model(&models.RoutineSlot{}).Select("id").Where("routine_id = ?", routineID),
		).Delete(&models.SlotAssignment{}).Error; err != nil {
			return fmt.Errorf("failed to drop slot assignments: %w", err)
		}
		if err := tx.Delete(member).Error; err != nil {
			return fmt.Errorf("failed to remove member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateGroup(ctx, routine.TeacherID, routine.CourseID)
	s.notifier.Notify(ctx, models.EventRoutineUpdated, "routine", routine.ID, routine,
		append(routine.StudentIDs(), routine.TeacherID, studentID))
	return s.Get(ctx, routineID)
}

// SetStatus pauses or resumes a routine. Only the owning teacher may do this;
// repeating the current status is a no-op success.
func (s *RoutineService) SetStatus(ctx context.Context, routineID, actorID uint, status models.RoutineStatus) (*models.Routine, error) {
	if status != models.RoutineStatusActive && status != models.RoutineStatusPaused {
		return nil, models.NewValidationError("unknown routine status %q", status)
	}

	var routine *models.Routine
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		routine, err = s.load(tx, routineID, true)
		if err != nil {
			return err
		}
		if routine.TeacherID != actorID {
			return models.NewAuthorizationError("only the routine's teacher may change its status")
		}
		if routine.Status == status {
			return nil
		}
		routine.Status = status
		return tx.Save(routine).Error
	})
	if err != nil {
		return nil, err
	}

	s.invalidateGroup(ctx, routine.TeacherID, routine.CourseID)
	s.notifier.Notify(ctx, models.EventRoutineUpdated, "routine", routine.ID, routine,
		append(routine.StudentIDs(), routine.TeacherID))
	return routine, nil
}

// Group returns the logical projection over every routine the teacher runs
// for the course: union of students, deduplicated slots, aggregate status.
// The projection is cached briefly since dashboards poll it.
func (s *RoutineService) Group(ctx context.Context, teacherID, courseID uint) (models.RoutineGroup, error) {
	fetch := func() (models.RoutineGroup, error) {
		var routines []models.Routine
		err := s.db.WithContext(ctx).
			Preload("Members").Preload("Slots").Preload("Slots.Assignments").
			Where("teacher_id = ? AND course_id = ?", teacherID, courseID).
			Find(&routines).Error
		if err != nil {
			return models.RoutineGroup{}, err
		}
		if len(routines) == 0 {
			return models.RoutineGroup{}, models.NewNotFoundError("routine group", fmt.Sprintf("%d/%d", teacherID, courseID))
		}
		return models.ProjectGroup(routines), nil
	}

	if s.cache == nil {
		return fetch()
	}
	return GetOrSet(s.cache, ctx, groupCacheKey(teacherID, courseID), 15*time.Second, fetch)
}

// ListForStudent returns every routine a student belongs to
func (s *RoutineService) ListForStudent(ctx context.Context, studentID uint) ([]models.Routine, error) {
	var routines []models.Routine
	err := s.db.WithContext(ctx).
		Preload("Members").Preload("Slots").Preload("Slots.Assignments").
		Where("id IN (?)", s.db.Model(&models.RoutineMember{}).Select("routine_id").Where("student_id = ?", studentID)).
		Find(&routines).Error
	return routines, err
}

// WeeklyCommitments collects the student's current weekly commitments across
// every active routine, as detector input
func (s *RoutineService) WeeklyCommitments(ctx context.Context, studentID uint) ([]models.WeeklyCommitment, error) {
	return s.weeklyCommitments(s.db.WithContext(ctx), studentID, 0)
}

// weeklyCommitments runs on the caller's transaction so commit-time conflict
// checks see a consistent snapshot. excludeRoutineID skips one routine, used
// when a slot inside that routine is being moved.
func (s *RoutineService) weeklyCommitments(tx *gorm.DB, studentID uint, excludeRoutineID uint) ([]models.WeeklyCommitment, error) {
	var routines []models.Routine
	q := tx.Preload("Slots").Preload("Slots.Assignments").
		Where("status = ?", models.RoutineStatusActive).
		Where("id IN (?)", tx.Session(&gorm.Session{NewDB: true}).Model(&models.RoutineMember{}).Select("routine_id").Where("student_id = ?", studentID))
	if excludeRoutineID != 0 {
		q = q.Where("id <> ?", excludeRoutineID)
	}
	if err := q.Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}

	var out []models.WeeklyCommitment
	for _, r := range routines {
		out = append(out, r.WeeklyCommitmentsFor(studentID)...)
	}
	return out, nil
}

func (s *RoutineService) invalidateGroup(ctx context.Context, teacherID, courseID uint) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, groupCacheKey(teacherID, courseID))
	}
}

func groupCacheKey(teacherID, courseID uint) string {
	return fmt.Sprintf("routine_group:%d:%d", teacherID, courseID)
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
