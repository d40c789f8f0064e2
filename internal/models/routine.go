package models

import (
	"fmt"
	"sort"
	"time"
)

// RoutineStatus represents the lifecycle state of a routine
type RoutineStatus string

const (
	RoutineStatusActive RoutineStatus = "active"
	RoutineStatusPaused RoutineStatus = "paused"
)

// RoutineMemberStatus tracks whether a student has accepted initial membership
type RoutineMemberStatus string

const (
	RoutineMemberPending RoutineMemberStatus = "pending"
	RoutineMemberActive  RoutineMemberStatus = "active"
)

// Routine is a recurring weekly commitment between a teacher and a set of
// students for one course. Routines are never hard-deleted; they are paused,
// or mutated through applied change proposals.
type Routine struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TeacherID   uint   `gorm:"index:idx_routines_teacher_course,priority:1" json:"teacher_id"`
	CourseID    uint   `gorm:"index:idx_routines_teacher_course,priority:2" json:"course_id"`
	CourseTitle string `gorm:"type:varchar(255)" json:"course_title"`
	Timezone    string `gorm:"type:varchar(64);default:'UTC'" json:"timezone"`

	Status             RoutineStatus `gorm:"type:varchar(20);default:'active'" json:"status"`
	RequiresAcceptance bool          `gorm:"default:false" json:"requires_acceptance"`

	// Relationships
	Members []RoutineMember `gorm:"foreignKey:RoutineID" json:"members,omitempty"`
	Slots   []RoutineSlot   `gorm:"foreignKey:RoutineID" json:"slots,omitempty"`
}

// RoutineMember links a student to a routine. A pending row means the student
// has not yet accepted membership; rejecting deletes the row (opt-out).
type RoutineMember struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RoutineID uint                `gorm:"uniqueIndex:idx_routine_member,priority:1" json:"routine_id"`
	StudentID uint                `gorm:"uniqueIndex:idx_routine_member,priority:2" json:"student_id"`
	Status    RoutineMemberStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
}

// RoutineSlot is one recurring time unit within a routine. Which students a
// slot applies to is tracked per slot, so partially accepted weekly changes
// can leave different students on different slots of the same routine.
type RoutineSlot struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RoutineID       uint   `gorm:"index" json:"routine_id"`
	Weekday         int    `json:"weekday"` // 0 (Sunday) .. 6 (Saturday)
	TimeHHMM        string `gorm:"type:varchar(5)" json:"time_hhmm"`
	DurationMinutes int    `json:"duration_minutes"`

	Assignments []SlotAssignment `gorm:"foreignKey:SlotID" json:"assignments,omitempty"`
}

// SlotAssignment attaches one student to one slot
type SlotAssignment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	SlotID    uint `gorm:"uniqueIndex:idx_slot_assignment,priority:1" json:"slot_id"`
	StudentID uint `gorm:"uniqueIndex:idx_slot_assignment,priority:2" json:"student_id"`
}

// SlotInput is a slot triple supplied by a client before it is persisted
type SlotInput struct {
	Weekday         int    `json:"weekday" validate:"min=0,max=6"`
	TimeHHMM        string `json:"time_hhmm" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0"`
}

// Key folds a slot triple into a comparable value for dedup checks
func (s SlotInput) Key() SlotKey {
	return SlotKey{Weekday: s.Weekday, TimeHHMM: s.TimeHHMM, DurationMinutes: s.DurationMinutes}
}

// SlotKey is the identity of a slot within a routine
type SlotKey struct {
	Weekday         int
	TimeHHMM        string
	DurationMinutes int
}

// Key returns the identity triple of a persisted slot
func (s RoutineSlot) Key() SlotKey {
	return SlotKey{Weekday: s.Weekday, TimeHHMM: s.TimeHHMM, DurationMinutes: s.DurationMinutes}
}

// ValidHHMM reports whether v is a well-formed 24h "HH:MM" time
func ValidHHMM(v string) bool {
	if len(v) != 5 {
		return false
	}
	_, err := time.Parse("15:04", v)
	return err == nil
}

// ValidateSlots checks a routine's candidate slot set: it must be non-empty,
// every triple well-formed, and no two slots may share (weekday, time, duration).
func ValidateSlots(slots []SlotInput) error {
	if len(slots) == 0 {
		return NewValidationError("at least one slot is required")
	}
	seen := make(map[SlotKey]bool, len(slots))
	for _, s := range slots {
		if s.Weekday < 0 || s.Weekday > 6 {
			return NewValidationError("weekday must be 0..6, got %d", s.Weekday)
		}
		if !ValidHHMM(s.TimeHHMM) {
			return NewValidationError("invalid slot time %q, want HH:MM", s.TimeHHMM)
		}
		if s.DurationMinutes <= 0 {
			return NewValidationError("slot duration must be positive, got %d", s.DurationMinutes)
		}
		k := s.Key()
		if seen[k] {
			return NewValidationError("duplicate slot %s on weekday %d", s.TimeHHMM, s.Weekday)
		}
		seen[k] = true
	}
	return nil
}

// HasSlot reports whether the routine already contains the given triple
func (r *Routine) HasSlot(k SlotKey) bool {
	for _, s := range r.Slots {
		if s.Key() == k {
			return true
		}
	}
	return false
}

// FindSlot returns the slot with the given id, or nil
func (r *Routine) FindSlot(slotID uint) *RoutineSlot {
	for i := range r.Slots {
		if r.Slots[i].ID == slotID {
			return &r.Slots[i]
		}
	}
	return nil
}

// PendingStudentIDs lists students that have not yet accepted membership
func (r *Routine) PendingStudentIDs() []uint {
	var ids []uint
	for _, m := range r.Members {
		if m.Status == RoutineMemberPending {
			ids = append(ids, m.StudentID)
		}
	}
	return ids
}

// StudentIDs lists every member student regardless of acceptance state
func (r *Routine) StudentIDs() []uint {
	ids := make([]uint, 0, len(r.Members))
	for _, m := range r.Members {
		ids = append(ids, m.StudentID)
	}
	return ids
}

// HasStudent reports whether the student is a member of the routine
func (r *Routine) HasStudent(studentID uint) bool {
	for _, m := range r.Members {
		if m.StudentID == studentID {
			return true
		}
	}
	return false
}

// CanView reports whether a user may read the routine: its teacher or any
// member, pending invitees included.
func (r *Routine) CanView(userID uint) bool {
	return r.TeacherID == userID || r.HasStudent(userID)
}

// AdmitStudent decides whether a student can be attached to the routine.
// Admission is idempotent: an existing member reports alreadyMember and
// nothing else needs to happen. Otherwise every slot of the routine must
// clear the student's other weekly commitments; a single clash refuses the
// whole admission with a ConflictError naming the colliding courses.
func (r *Routine) AdmitStudent(studentID uint, commitments []WeeklyCommitment) (alreadyMember bool, err error) {
	if r.HasStudent(studentID) {
		return true, nil
	}
	for _, slot := range r.Slots {
		candidate := WeeklyTime{Weekday: slot.Weekday, TimeHHMM: slot.TimeHHMM}
		if res := CheckWeeklyConflict(candidate, commitments); res.Conflict {
			return false, NewConflictError(
				fmt.Sprintf("student %d already has a commitment on weekday %d at %s", studentID, slot.Weekday, slot.TimeHHMM),
				res.With)
		}
	}
	return false, nil
}

// SlotsFor returns the slots that currently apply to one student
func (r *Routine) SlotsFor(studentID uint) []RoutineSlot {
	var out []RoutineSlot
	for _, s := range r.Slots {
		for _, a := range s.Assignments {
			if a.StudentID == studentID {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// WeeklyCommitmentsFor converts a student's slots into detector commitments
func (r *Routine) WeeklyCommitmentsFor(studentID uint) []WeeklyCommitment {
	var out []WeeklyCommitment
	for _, s := range r.SlotsFor(studentID) {
		out = append(out, WeeklyCommitment{
			WeeklyTime:  WeeklyTime{Weekday: s.Weekday, TimeHHMM: s.TimeHHMM},
			CourseTitle: r.CourseTitle,
		})
	}
	return out
}

// RoutineGroup is the logical projection over all routines sharing a
// (teacher, course) pair. Other components operate on this projection,
// never on a single member routine in isolation.
type RoutineGroup struct {
	TeacherID   uint          `json:"teacher_id"`
	CourseID    uint          `json:"course_id"`
	CourseTitle string        `json:"course_title"`
	Status      RoutineStatus `json:"status"`
	StudentIDs  []uint        `json:"student_ids"`
	Slots       []RoutineSlot `json:"slots"`
	RoutineIDs  []uint        `json:"routine_ids"`
}

// ProjectGroup folds routines sharing a (teacher, course) pair into one group:
// union of students, deduplicated union of slots, and aggregate status that is
// active while any member routine is active.
func ProjectGroup(routines []Routine) RoutineGroup {
	g := RoutineGroup{Status: RoutineStatusPaused}
	if len(routines) == 0 {
		return g
	}
	g.TeacherID = routines[0].TeacherID
	g.CourseID = routines[0].CourseID
	g.CourseTitle = routines[0].CourseTitle

	seenStudent := make(map[uint]bool)
	seenSlot := make(map[SlotKey]bool)
	for _, r := range routines {
		g.RoutineIDs = append(g.RoutineIDs, r.ID)
		if r.Status == RoutineStatusActive {
			g.Status = RoutineStatusActive
		}
		for _, m := range r.Members {
			if !seenStudent[m.StudentID] {
				seenStudent[m.StudentID] = true
				g.StudentIDs = append(g.StudentIDs, m.StudentID)
			}
		}
		for _, s := range r.Slots {
			if k := s.Key(); !seenSlot[k] {
				seenSlot[k] = true
				g.Slots = append(g.Slots, s)
			}
		}
	}
	sort.Slice(g.StudentIDs, func(i, j int) bool { return g.StudentIDs[i] < g.StudentIDs[j] })
	return g
}
