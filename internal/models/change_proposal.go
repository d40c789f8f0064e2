package models

import (
	"time"

	"gorm.io/gorm"
)

// ChangeType says whether a proposal reschedules a one-off occurrence or
// modifies the weekly routine itself
type ChangeType string

const (
	ChangeTypeOneoff ChangeType = "oneoff"
	ChangeTypeWeekly ChangeType = "weekly"
)

// SlotOp is the weekly modification kind
type SlotOp string

const (
	SlotOpAdd    SlotOp = "add"
	SlotOpUpdate SlotOp = "update"
	SlotOpRemove SlotOp = "remove"
)

// ProposalStatus represents the proposal state machine:
// pending -> applied | rejected | expired. Terminal states are immutable.
type ProposalStatus string

const (
	ProposalStatusPending  ProposalStatus = "pending"
	ProposalStatusApplied  ProposalStatus = "applied"
	ProposalStatusRejected ProposalStatus = "rejected"
	ProposalStatusExpired  ProposalStatus = "expired"
)

// ChangeProposal is a teacher-initiated request to modify a routine or
// schedule a one-off occurrence, requiring consent from the targeted students.
type ChangeProposal struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	RoutineID  uint       `gorm:"index" json:"routine_id"`
	ChangeType ChangeType `gorm:"type:varchar(20)" json:"change_type"`
	Op         SlotOp     `gorm:"type:varchar(20)" json:"op,omitempty"` // weekly only

	// weekly update/remove: the slot being changed
	TargetSlotID *uint `json:"target_slot_id,omitempty"`
	// weekly add/update: the new slot triple
	NewWeekday         *int    `json:"new_weekday,omitempty"`
	NewTimeHHMM        *string `gorm:"type:varchar(5)" json:"new_time_hhmm,omitempty"`
	NewDurationMinutes *int    `json:"new_duration_minutes,omitempty"`

	// oneoff: the proposed occurrence
	ProposedDate    *time.Time `json:"proposed_date,omitempty"`
	DurationMinutes int        `json:"duration_minutes,omitempty"`

	Note   string         `gorm:"type:text" json:"note"`
	Status ProposalStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`

	// Relationships
	Responses []ProposalResponse `gorm:"foreignKey:ProposalID" json:"responses,omitempty"`
}

// ProposalResponse holds one targeted student's answer. One row per
// (proposal, student): a student is pending, accepted or rejected, never two
// of those at once.
type ProposalResponse struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProposalID uint                `gorm:"uniqueIndex:idx_proposal_response,priority:1" json:"proposal_id"`
	StudentID  uint                `gorm:"uniqueIndex:idx_proposal_response,priority:2" json:"student_id"`
	Response   ParticipantResponse `gorm:"type:varchar(20);default:'pending'" json:"response"`
}

// IsTerminal reports whether the proposal reached a final state
func (p *ChangeProposal) IsTerminal() bool {
	return p.Status != ProposalStatusPending
}

// Response returns the response row for a student, or nil
func (p *ChangeProposal) Response(studentID uint) *ProposalResponse {
	for i := range p.Responses {
		if p.Responses[i].StudentID == studentID {
			return &p.Responses[i]
		}
	}
	return nil
}

// RecordResponse applies one student's accept/reject. Repeating the same
// answer is a no-op success; changing a given answer is refused.
func (p *ChangeProposal) RecordResponse(studentID uint, accept bool) (changed bool, err error) {
	if p.IsTerminal() {
		return false, NewStateError("proposal %d is %s", p.ID, p.Status)
	}
	r := p.Response(studentID)
	if r == nil {
		return false, NewNotFoundError("proposal target", studentID)
	}
	want := ResponseAccepted
	if !accept {
		want = ResponseRejected
	}
	if r.Response == want {
		return false, nil
	}
	if r.Response != ResponsePending {
		return false, NewStateError("student %d already responded %s", studentID, r.Response)
	}
	r.Response = want
	return true, nil
}

// PendingCount returns how many targeted students have not answered yet
func (p *ChangeProposal) PendingCount() int {
	n := 0
	for _, r := range p.Responses {
		if r.Response == ResponsePending {
			n++
		}
	}
	return n
}

// AcceptedStudentIDs lists students that accepted the proposal
func (p *ChangeProposal) AcceptedStudentIDs() []uint {
	var ids []uint
	for _, r := range p.Responses {
		if r.Response == ResponseAccepted {
			ids = append(ids, r.StudentID)
		}
	}
	return ids
}

// RejectedStudentIDs lists students that rejected the proposal
func (p *ChangeProposal) RejectedStudentIDs() []uint {
	var ids []uint
	for _, r := range p.Responses {
		if r.Response == ResponseRejected {
			ids = append(ids, r.StudentID)
		}
	}
	return ids
}

// NewSlotKey returns the proposed slot triple for weekly add/update proposals
func (p *ChangeProposal) NewSlotKey() (SlotKey, error) {
	if p.NewWeekday == nil || p.NewTimeHHMM == nil || p.NewDurationMinutes == nil {
		return SlotKey{}, NewValidationError("proposal %d has incomplete slot fields", p.ID)
	}
	return SlotKey{
		Weekday:         *p.NewWeekday,
		TimeHHMM:        *p.NewTimeHHMM,
		DurationMinutes: *p.NewDurationMinutes,
	}, nil
}

// ProposalOutcome is the decision taken once every targeted student answered
type ProposalOutcome struct {
	Terminal bool
	Status   ProposalStatus
	// ApplyTo lists the students the change is applied for. Empty when the
	// proposal was voided.
	ApplyTo []uint
}

// Outcome decides the terminal state once no pending responses remain.
//
// Removal of a slot requires unanimous acceptance: a single rejection voids
// the removal for every student. Add and update apply per accepting student
// only, so a routine can legitimately fragment into divergent per-student slot
// assignments; this partial-application behavior is intentional and can be
// switched off via partialWeekly, which makes add/update all-or-nothing too.
func (p *ChangeProposal) Outcome(partialWeekly bool) ProposalOutcome {
	if p.PendingCount() > 0 {
		return ProposalOutcome{}
	}
	accepted := p.AcceptedStudentIDs()
	rejected := p.RejectedStudentIDs()

	unanimousOnly := p.ChangeType == ChangeTypeWeekly && (p.Op == SlotOpRemove || !partialWeekly)
	if unanimousOnly {
		if len(rejected) > 0 {
			return ProposalOutcome{Terminal: true, Status: ProposalStatusRejected}
		}
		return ProposalOutcome{Terminal: true, Status: ProposalStatusApplied, ApplyTo: accepted}
	}

	// oneoff and partial weekly add/update: apply for whoever accepted
	if len(accepted) == 0 {
		return ProposalOutcome{Terminal: true, Status: ProposalStatusRejected}
	}
	return ProposalOutcome{Terminal: true, Status: ProposalStatusApplied, ApplyTo: accepted}
}
