package models

import "testing"

func newWeeklyProposal(op SlotOp, students ...uint) *ChangeProposal {
	p := &ChangeProposal{
		ID:         1,
		RoutineID:  10,
		ChangeType: ChangeTypeWeekly,
		Op:         op,
		Status:     ProposalStatusPending,
	}
	for _, id := range students {
		p.Responses = append(p.Responses, ProposalResponse{ProposalID: 1, StudentID: id, Response: ResponsePending})
	}
	return p
}

// checkPartition verifies the structural consensus invariant: every targeted
// student is in exactly one of pending/accepted/rejected, and nobody else is.
func checkPartition(t *testing.T, p *ChangeProposal, targets []uint) {
	t.Helper()
	total := p.PendingCount() + len(p.AcceptedStudentIDs()) + len(p.RejectedStudentIDs())
	if total != len(targets) {
		t.Fatalf("partition size %d; want %d", total, len(targets))
	}
	seen := make(map[uint]int)
	for _, id := range p.AcceptedStudentIDs() {
		seen[id]++
	}
	for _, id := range p.RejectedStudentIDs() {
		seen[id]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("student %d present in more than one bucket", id)
		}
		found := false
		for _, want := range targets {
			if want == id {
				found = true
			}
		}
		if !found {
			t.Fatalf("student %d answered but was never targeted", id)
		}
	}
}

func TestRecordResponseIdempotent(t *testing.T) {
	p := newWeeklyProposal(SlotOpAdd, 1, 2)

	changed, err := p.RecordResponse(1, true)
	if err != nil || !changed {
		t.Fatalf("first accept: changed=%v err=%v", changed, err)
	}
	changed, err = p.RecordResponse(1, true)
	if err != nil || changed {
		t.Fatalf("repeated accept must be a no-op: changed=%v err=%v", changed, err)
	}
	if _, err := p.RecordResponse(1, false); KindOf(err) != ErrKindState {
		t.Errorf("flipping a response: got %v; want state error", err)
	}
	if _, err := p.RecordResponse(99, true); KindOf(err) != ErrKindNotFound {
		t.Errorf("unknown student: got %v; want not found", err)
	}
	checkPartition(t, p, []uint{1, 2})
}

func TestRecordResponseOnTerminalProposal(t *testing.T) {
	p := newWeeklyProposal(SlotOpAdd, 1)
	p.Status = ProposalStatusApplied
	if _, err := p.RecordResponse(1, true); KindOf(err) != ErrKindState {
		t.Errorf("got %v; want state error", err)
	}
}

func TestOutcomeRemoveNeedsUnanimity(t *testing.T) {
	// slot shared by students 1 and 2; 1 accepts, 2 rejects
	p := newWeeklyProposal(SlotOpRemove, 1, 2)
	p.RecordResponse(1, true)

	if out := p.Outcome(true); out.Terminal {
		t.Fatal("proposal must stay pending while responses are outstanding")
	}

	p.RecordResponse(2, false)
	out := p.Outcome(true)
	if !out.Terminal || out.Status != ProposalStatusRejected {
		t.Fatalf("single rejection must void the removal for everyone, got %+v", out)
	}
	if len(out.ApplyTo) != 0 {
		t.Errorf("voided removal must apply to nobody, got %v", out.ApplyTo)
	}
}

func TestOutcomeRemoveUnanimousApplies(t *testing.T) {
	p := newWeeklyProposal(SlotOpRemove, 1, 2)
	p.RecordResponse(1, true)
	p.RecordResponse(2, true)

	out := p.Outcome(true)
	if !out.Terminal || out.Status != ProposalStatusApplied {
		t.Fatalf("unanimous removal must apply, got %+v", out)
	}
}

func TestOutcomeUpdateAppliesPerAcceptingStudent(t *testing.T) {
	// 1 accepts and moves to the new slot, 2 rejects and stays on the old one
	p := newWeeklyProposal(SlotOpUpdate, 1, 2)
	p.RecordResponse(1, true)
	p.RecordResponse(2, false)

	out := p.Outcome(true)
	if !out.Terminal || out.Status != ProposalStatusApplied {
		t.Fatalf("partial update must still apply, got %+v", out)
	}
	if len(out.ApplyTo) != 1 || out.ApplyTo[0] != 1 {
		t.Errorf("update must apply only to accepting students, got %v", out.ApplyTo)
	}
}

func TestOutcomeUpdateAllOrNothingToggle(t *testing.T) {
	p := newWeeklyProposal(SlotOpUpdate, 1, 2)
	p.RecordResponse(1, true)
	p.RecordResponse(2, false)

	out := p.Outcome(false)
	if !out.Terminal || out.Status != ProposalStatusRejected {
		t.Fatalf("all-or-nothing mode must void a partially accepted update, got %+v", out)
	}
}

func TestOutcomeNobodyAccepted(t *testing.T) {
	p := newWeeklyProposal(SlotOpAdd, 1, 2)
	p.RecordResponse(1, false)
	p.RecordResponse(2, false)

	out := p.Outcome(true)
	if !out.Terminal || out.Status != ProposalStatusRejected {
		t.Fatalf("got %+v; want rejected", out)
	}
}

func TestOutcomeOneoff(t *testing.T) {
	p := &ChangeProposal{
		ID:         2,
		ChangeType: ChangeTypeOneoff,
		Status:     ProposalStatusPending,
		Responses: []ProposalResponse{
			{ProposalID: 2, StudentID: 1, Response: ResponsePending},
			{ProposalID: 2, StudentID: 2, Response: ResponsePending},
		},
	}
	p.RecordResponse(1, true)
	p.RecordResponse(2, false)

	out := p.Outcome(true)
	if !out.Terminal || out.Status != ProposalStatusApplied {
		t.Fatalf("oneoff with one accept must apply, got %+v", out)
	}
	if len(out.ApplyTo) != 1 || out.ApplyTo[0] != 1 {
		t.Errorf("oneoff applies per accepting student, got %v", out.ApplyTo)
	}
}

func TestNewSlotKeyRequiresFullTriple(t *testing.T) {
	p := newWeeklyProposal(SlotOpAdd, 1)
	if _, err := p.NewSlotKey(); KindOf(err) != ErrKindValidation {
		t.Errorf("incomplete triple: got %v; want validation error", err)
	}

	wd, hhmm, dur := 1, "18:00", 60
	p.NewWeekday, p.NewTimeHHMM, p.NewDurationMinutes = &wd, &hhmm, &dur
	k, err := p.NewSlotKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k != (SlotKey{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60}) {
		t.Errorf("got %+v", k)
	}
}
