package models

import "time"

// WeeklyTime identifies one recurring weekly start time.
// Weekday follows time.Weekday numbering (0 = Sunday).
type WeeklyTime struct {
	Weekday  int    `json:"weekday"`
	TimeHHMM string `json:"time_hhmm"` // 24h "15:04"
}

// WeeklyCommitment is an existing recurring commitment of a student,
// tagged with the course it belongs to for conflict reporting.
type WeeklyCommitment struct {
	WeeklyTime
	CourseTitle string `json:"course_title"`
}

// ConflictResult reports whether a candidate time collides with existing
// commitments and which courses it collides with.
type ConflictResult struct {
	Conflict bool     `json:"conflict"`
	With     []string `json:"with,omitempty"`
}

// CheckWeeklyConflict checks a candidate weekly time against a student's
// existing weekly commitments. Two commitments conflict when they share the
// exact (weekday, start time) pair; duration and course are ignored. Interval
// overlap is deliberately not considered.
func CheckWeeklyConflict(candidate WeeklyTime, commitments []WeeklyCommitment) ConflictResult {
	res := ConflictResult{}
	for _, c := range commitments {
		if c.Weekday == candidate.Weekday && c.TimeHHMM == candidate.TimeHHMM {
			res.Conflict = true
			res.With = append(res.With, c.CourseTitle)
		}
	}
	return res
}

// WeeklyTimeOf derives the weekly (weekday, HH:MM) of a concrete timestamp in
// the given IANA timezone. One-off sessions are checked against weekly
// commitments only, not against other one-off bookings; that is a known
// limitation of the detector.
func WeeklyTimeOf(at time.Time, tz string) (WeeklyTime, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return WeeklyTime{}, NewValidationError("invalid timezone %q", tz)
	}
	local := at.In(loc)
	return WeeklyTime{
		Weekday:  int(local.Weekday()),
		TimeHHMM: local.Format("15:04"),
	}, nil
}
