package models

import (
	"testing"
	"time"
)

func TestCheckWeeklyConflict(t *testing.T) {
	commitments := []WeeklyCommitment{
		{WeeklyTime: WeeklyTime{Weekday: 1, TimeHHMM: "18:00"}, CourseTitle: "Physics HSC"},
		{WeeklyTime: WeeklyTime{Weekday: 3, TimeHHMM: "20:30"}, CourseTitle: "Chemistry HSC"},
	}

	tests := []struct {
		name      string
		candidate WeeklyTime
		conflict  bool
		with      []string
	}{
		{
			name:      "same weekday and time conflicts regardless of duration",
			candidate: WeeklyTime{Weekday: 1, TimeHHMM: "18:00"},
			conflict:  true,
			with:      []string{"Physics HSC"},
		},
		{
			name:      "same time on another weekday is fine",
			candidate: WeeklyTime{Weekday: 2, TimeHHMM: "18:00"},
			conflict:  false,
		},
		{
			name:      "same weekday at another time is fine",
			candidate: WeeklyTime{Weekday: 1, TimeHHMM: "18:30"},
			conflict:  false,
		},
		{
			name:      "second commitment matches too",
			candidate: WeeklyTime{Weekday: 3, TimeHHMM: "20:30"},
			conflict:  true,
			with:      []string{"Chemistry HSC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := CheckWeeklyConflict(tt.candidate, commitments)
			if res.Conflict != tt.conflict {
				t.Errorf("conflict = %v; want %v", res.Conflict, tt.conflict)
			}
			if len(res.With) != len(tt.with) {
				t.Fatalf("with = %v; want %v", res.With, tt.with)
			}
			for i := range tt.with {
				if res.With[i] != tt.with[i] {
					t.Errorf("with[%d] = %q; want %q", i, res.With[i], tt.with[i])
				}
			}
		})
	}
}

func TestCheckWeeklyConflictReportsEveryCourse(t *testing.T) {
	commitments := []WeeklyCommitment{
		{WeeklyTime: WeeklyTime{Weekday: 5, TimeHHMM: "17:00"}, CourseTitle: "Math SSC"},
		{WeeklyTime: WeeklyTime{Weekday: 5, TimeHHMM: "17:00"}, CourseTitle: "English SSC"},
	}
	res := CheckWeeklyConflict(WeeklyTime{Weekday: 5, TimeHHMM: "17:00"}, commitments)
	if !res.Conflict || len(res.With) != 2 {
		t.Fatalf("want conflict with both courses, got %+v", res)
	}
}

func TestWeeklyTimeOf(t *testing.T) {
	// 2026-01-05 12:00 UTC is Monday 18:00 in Dhaka (UTC+6)
	at := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	got, err := WeeklyTimeOf(at, "Asia/Dhaka")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Weekday != 1 || got.TimeHHMM != "18:00" {
		t.Errorf("got %+v; want weekday 1 at 18:00", got)
	}

	// 2026-01-05 23:00 UTC rolls over to Tuesday in Dhaka
	got, err = WeeklyTimeOf(time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC), "Asia/Dhaka")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Weekday != 2 || got.TimeHHMM != "05:00" {
		t.Errorf("got %+v; want weekday 2 at 05:00", got)
	}

	if _, err := WeeklyTimeOf(at, "Not/AZone"); err == nil {
		t.Error("want validation error for unknown timezone")
	}
}
