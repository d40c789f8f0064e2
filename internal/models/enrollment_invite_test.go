package models

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

func TestInviteCanView(t *testing.T) {
	inv := EnrollmentInvite{TeacherID: 9, StudentID: 100}
	if !inv.CanView(9) || !inv.CanView(100) {
		t.Error("issuing teacher and invited student must be able to view the invite")
	}
	if inv.CanView(42) {
		t.Error("an outsider must not see the invite")
	}
}

func TestUpfrontDue(t *testing.T) {
	tests := []struct {
		name      string
		feeTk     int
		advanceTk *int
		want      int
	}{
		{name: "no advance takes 15 percent", feeTk: 3000, want: 450},
		{name: "advance overrides percentage", feeTk: 3000, advanceTk: intPtr(1000), want: 1000},
		{name: "zero advance falls back to percentage", feeTk: 3000, advanceTk: intPtr(0), want: 450},
		{name: "percentage rounds up", feeTk: 1001, want: 151}, // 150.15 -> 151
		{name: "small fee still positive", feeTk: 1, want: 1},  // 0.15 -> 1
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UpfrontDue(tt.feeTk, tt.advanceTk); got != tt.want {
				t.Errorf("UpfrontDue(%d, %v) = %d; want %d", tt.feeTk, tt.advanceTk, got, tt.want)
			}
		})
	}
}

func TestValidateInviteFee(t *testing.T) {
	if err := ValidateInviteFee(3000, nil); err != nil {
		t.Errorf("valid fee rejected: %v", err)
	}
	if err := ValidateInviteFee(0, nil); KindOf(err) != ErrKindValidation {
		t.Errorf("zero fee: got %v; want validation error", err)
	}
	if err := ValidateInviteFee(-500, nil); KindOf(err) != ErrKindValidation {
		t.Errorf("negative fee: got %v; want validation error", err)
	}
	if err := ValidateInviteFee(3000, intPtr(5000)); KindOf(err) != ErrKindValidation {
		t.Errorf("advance above fee: got %v; want validation error", err)
	}
}

func TestApplyPayment(t *testing.T) {
	inv := EnrollmentInvite{
		ID:           7,
		CourseFeeTk:  3000,
		UpfrontDueTk: 450,
		Status:       InviteStatusPending,
	}

	covered, err := inv.ApplyPayment(200, time.Now())
	if err != nil || covered {
		t.Fatalf("partial payment: covered=%v err=%v", covered, err)
	}
	if inv.PaymentStatus != InvitePaymentPartial || inv.PaidTk != 200 {
		t.Errorf("after partial: %+v", inv)
	}

	covered, err = inv.ApplyPayment(250, time.Now())
	if err != nil || !covered {
		t.Fatalf("covering payment: covered=%v err=%v", covered, err)
	}
	if inv.PaymentStatus != InvitePaymentPaid || inv.PaidTk != 450 {
		t.Errorf("after full: %+v", inv)
	}
}

func TestApplyPaymentReplayIsNoop(t *testing.T) {
	inv := EnrollmentInvite{
		UpfrontDueTk:  450,
		PaidTk:        450,
		Status:        InviteStatusAccepted,
		PaymentStatus: InvitePaymentPaid,
	}
	covered, err := inv.ApplyPayment(450, time.Now())
	if err != nil || covered {
		t.Fatalf("replayed confirmation must be a no-op, got covered=%v err=%v", covered, err)
	}
	if inv.PaidTk != 450 {
		t.Errorf("replay mutated PaidTk to %d", inv.PaidTk)
	}
}

func TestApplyPaymentAfterExpiry(t *testing.T) {
	deadline := time.Now().Add(-time.Hour)
	inv := EnrollmentInvite{
		UpfrontDueTk: 450,
		Status:       InviteStatusPending,
		ExpiresAt:    &deadline,
	}
	// deadline passed but the sweep has not flipped the status yet
	if _, err := inv.ApplyPayment(450, time.Now()); KindOf(err) != ErrKindExpired {
		t.Errorf("late payment: got %v; want expired error", err)
	}
	if inv.PaidTk != 0 {
		t.Errorf("late payment mutated PaidTk to %d", inv.PaidTk)
	}
}

func TestApplyPaymentDeclined(t *testing.T) {
	inv := EnrollmentInvite{UpfrontDueTk: 450, Status: InviteStatusDeclined}
	if _, err := inv.ApplyPayment(450, time.Now()); KindOf(err) != ErrKindState {
		t.Errorf("payment on declined invite: got %v; want state error", err)
	}
}
