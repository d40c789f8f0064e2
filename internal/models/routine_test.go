package models

import (
	"errors"
	"testing"
)

func TestValidateSlots(t *testing.T) {
	tests := []struct {
		name    string
		slots   []SlotInput
		wantErr bool
	}{
		{
			name:    "empty set",
			slots:   nil,
			wantErr: true,
		},
		{
			name: "valid pair",
			slots: []SlotInput{
				{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
				{Weekday: 4, TimeHHMM: "18:00", DurationMinutes: 60},
			},
		},
		{
			name: "duplicate triple",
			slots: []SlotInput{
				{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
				{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
			},
			wantErr: true,
		},
		{
			name: "same time different duration is allowed",
			slots: []SlotInput{
				{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
				{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 90},
			},
		},
		{
			name:    "malformed time",
			slots:   []SlotInput{{Weekday: 1, TimeHHMM: "6pm", DurationMinutes: 60}},
			wantErr: true,
		},
		{
			name:    "weekday out of range",
			slots:   []SlotInput{{Weekday: 7, TimeHHMM: "18:00", DurationMinutes: 60}},
			wantErr: true,
		},
		{
			name:    "non-positive duration",
			slots:   []SlotInput{{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSlots(tt.slots)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSlots() error = %v; wantErr %v", err, tt.wantErr)
			}
			if err != nil && KindOf(err) != ErrKindValidation {
				t.Errorf("error kind = %v; want validation", KindOf(err))
			}
		})
	}
}

func TestProjectGroup(t *testing.T) {
	routines := []Routine{
		{
			ID: 1, TeacherID: 9, CourseID: 5, CourseTitle: "Physics HSC",
			Status: RoutineStatusPaused,
			Members: []RoutineMember{
				{RoutineID: 1, StudentID: 100, Status: RoutineMemberActive},
				{RoutineID: 1, StudentID: 101, Status: RoutineMemberActive},
			},
			Slots: []RoutineSlot{
				{ID: 1, RoutineID: 1, Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
			},
		},
		{
			ID: 2, TeacherID: 9, CourseID: 5, CourseTitle: "Physics HSC",
			Status: RoutineStatusActive,
			Members: []RoutineMember{
				{RoutineID: 2, StudentID: 101, Status: RoutineMemberActive}, // overlaps with routine 1
				{RoutineID: 2, StudentID: 102, Status: RoutineMemberPending},
			},
			Slots: []RoutineSlot{
				{ID: 2, RoutineID: 2, Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60}, // duplicate triple
				{ID: 3, RoutineID: 2, Weekday: 4, TimeHHMM: "20:00", DurationMinutes: 90},
			},
		},
	}

	g := ProjectGroup(routines)

	if g.TeacherID != 9 || g.CourseID != 5 {
		t.Fatalf("group identity wrong: %+v", g)
	}
	if g.Status != RoutineStatusActive {
		t.Errorf("status = %s; any active member routine makes the group active", g.Status)
	}
	if len(g.StudentIDs) != 3 {
		t.Errorf("student union = %v; want 3 distinct students", g.StudentIDs)
	}
	if len(g.Slots) != 2 {
		t.Errorf("slot union = %d slots; duplicates must collapse", len(g.Slots))
	}
}

func TestProjectGroupRoundTripsSlotSet(t *testing.T) {
	// a routine projected alone yields exactly its slot set, order aside
	in := []SlotInput{
		{Weekday: 4, TimeHHMM: "20:00", DurationMinutes: 90},
		{Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
	}
	r := Routine{ID: 1, TeacherID: 1, CourseID: 1, Status: RoutineStatusActive}
	for i, s := range in {
		r.Slots = append(r.Slots, RoutineSlot{
			ID: uint(i + 1), RoutineID: 1,
			Weekday: s.Weekday, TimeHHMM: s.TimeHHMM, DurationMinutes: s.DurationMinutes,
		})
	}

	g := ProjectGroup([]Routine{r})
	if len(g.Slots) != len(in) {
		t.Fatalf("got %d slots; want %d", len(g.Slots), len(in))
	}
	want := make(map[SlotKey]bool)
	for _, s := range in {
		want[s.Key()] = true
	}
	for _, s := range g.Slots {
		if !want[s.Key()] {
			t.Errorf("unexpected slot %+v", s.Key())
		}
	}
}

func TestRoutineCanView(t *testing.T) {
	r := Routine{
		ID: 1, TeacherID: 9,
		Members: []RoutineMember{
			{RoutineID: 1, StudentID: 100, Status: RoutineMemberActive},
			{RoutineID: 1, StudentID: 101, Status: RoutineMemberPending},
		},
	}
	if !r.CanView(9) {
		t.Error("teacher must be able to view their routine")
	}
	if !r.CanView(100) || !r.CanView(101) {
		t.Error("members, pending invitees included, must be able to view the routine")
	}
	if r.CanView(42) {
		t.Error("an outsider must not see the routine")
	}
}

func TestAdmitStudent(t *testing.T) {
	r := Routine{
		ID: 1, TeacherID: 9, CourseID: 5, CourseTitle: "Physics HSC",
		Members: []RoutineMember{{RoutineID: 1, StudentID: 100, Status: RoutineMemberActive}},
		Slots: []RoutineSlot{
			{ID: 1, RoutineID: 1, Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
			{ID: 2, RoutineID: 1, Weekday: 4, TimeHHMM: "20:00", DurationMinutes: 90},
		},
	}

	// a free student is admitted
	already, err := r.AdmitStudent(101, []WeeklyCommitment{
		{WeeklyTime: WeeklyTime{Weekday: 2, TimeHHMM: "18:00"}, CourseTitle: "Math SSC"},
	})
	if err != nil || already {
		t.Fatalf("free student: already=%v err=%v", already, err)
	}

	// paying again after enrollment changes nothing
	already, err = r.AdmitStudent(100, nil)
	if err != nil || !already {
		t.Fatalf("existing member: already=%v err=%v", already, err)
	}
}

func TestAdmitStudentRefusesOnConflict(t *testing.T) {
	r := Routine{
		ID: 1, CourseTitle: "Physics HSC",
		Slots: []RoutineSlot{
			{ID: 1, RoutineID: 1, Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60},
		},
	}

	// a single clashing slot refuses the whole admission
	_, err := r.AdmitStudent(101, []WeeklyCommitment{
		{WeeklyTime: WeeklyTime{Weekday: 1, TimeHHMM: "18:00"}, CourseTitle: "Chemistry HSC"},
	})
	if KindOf(err) != ErrKindConflict {
		t.Fatalf("got %v; want conflict", err)
	}
	var de *DomainError
	if !errors.As(err, &de) || len(de.ConflictsWith) != 1 || de.ConflictsWith[0] != "Chemistry HSC" {
		t.Errorf("conflict must name the colliding course, got %+v", de)
	}
}

func TestSlotsForFollowsAssignments(t *testing.T) {
	r := Routine{
		ID: 1,
		Slots: []RoutineSlot{
			{ID: 1, Weekday: 1, TimeHHMM: "18:00", DurationMinutes: 60,
				Assignments: []SlotAssignment{{SlotID: 1, StudentID: 100}, {SlotID: 1, StudentID: 101}}},
			{ID: 2, Weekday: 2, TimeHHMM: "19:00", DurationMinutes: 60,
				Assignments: []SlotAssignment{{SlotID: 2, StudentID: 100}}},
		},
	}

	if got := r.SlotsFor(100); len(got) != 2 {
		t.Errorf("student 100: %d slots; want 2", len(got))
	}
	if got := r.SlotsFor(101); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("student 101 must only see slot 1, got %v", got)
	}
	if got := r.SlotsFor(999); got != nil {
		t.Errorf("unknown student must see no slots, got %v", got)
	}
}
