package models

import (
	"time"

	"gorm.io/gorm"
)

// InviteStatus represents the invite state machine:
// pending -> accepted | declined | expired. Terminal states are immutable.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusDeclined InviteStatus = "declined"
	InviteStatusExpired  InviteStatus = "expired"
)

// InvitePaymentStatus tracks the upfront payment progress
type InvitePaymentStatus string

const (
	InvitePaymentPending InvitePaymentStatus = "pending"
	InvitePaymentPartial InvitePaymentStatus = "partial"
	InvitePaymentPaid    InvitePaymentStatus = "paid"
)

// EnrollmentInvite is a payment-gated offer for a student to join a routine.
// Fee amounts are whole taka. The upfront due is the teacher's advance when
// one was set, otherwise 15% of the course fee rounded up.
type EnrollmentInvite struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// PublicToken is the shareable identifier used on the payment page,
	// so numeric ids are not exposed pre-auth
	PublicToken string `gorm:"type:varchar(64);uniqueIndex" json:"public_token"`

	TeacherID uint `gorm:"index" json:"teacher_id"`
	StudentID uint `gorm:"index" json:"student_id"`
	RoutineID uint `gorm:"index" json:"routine_id"`

	CourseTitle  string `gorm:"type:varchar(255)" json:"course_title"`
	CourseFeeTk  int    `json:"course_fee_tk"`
	AdvanceTk    *int   `json:"advance_tk,omitempty"`
	UpfrontDueTk int    `json:"upfront_due_tk"`
	PaidTk       int    `json:"paid_tk"`

	Status        InviteStatus        `gorm:"type:varchar(20);default:'pending'" json:"status"`
	PaymentStatus InvitePaymentStatus `gorm:"type:varchar(20);default:'pending'" json:"payment_status"`

	Note      string     `gorm:"type:text" json:"note"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CanView reports whether a user may read the invite: the issuing teacher or
// the invited student. Everyone else goes through the public token page.
func (i *EnrollmentInvite) CanView(userID uint) bool {
	return i.TeacherID == userID || i.StudentID == userID
}

// UpfrontDue computes the amount that must be paid before enrollment takes
// effect: the advance when positive, otherwise ceil(15% of the course fee).
// Integer math only; fee amounts never carry fractions of a taka.
func UpfrontDue(courseFeeTk int, advanceTk *int) int {
	if advanceTk != nil && *advanceTk > 0 {
		return *advanceTk
	}
	return (courseFeeTk*15 + 99) / 100
}

// ValidateInviteFee enforces 0 < upfrontDue <= courseFee
func ValidateInviteFee(courseFeeTk int, advanceTk *int) error {
	if courseFeeTk <= 0 {
		return NewValidationError("course fee must be positive, got %d", courseFeeTk)
	}
	due := UpfrontDue(courseFeeTk, advanceTk)
	if due <= 0 || due > courseFeeTk {
		return NewValidationError("upfront due %d out of range (course fee %d)", due, courseFeeTk)
	}
	return nil
}

// IsTerminal reports whether the invite reached a final state
func (i *EnrollmentInvite) IsTerminal() bool {
	return i.Status != InviteStatusPending
}

// ExpiredAt reports whether the invite is past its deadline at the given time.
// Expiry is cooperative: a sweep flips the status, but a late payment must be
// refused even before the sweep has run.
func (i *EnrollmentInvite) ExpiredAt(now time.Time) bool {
	if i.Status == InviteStatusExpired {
		return true
	}
	return i.Status == InviteStatusPending && i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}

// ApplyPayment accumulates a captured amount and recomputes the payment
// status. It returns whether the upfront due is now fully covered, meaning
// the invite should be accepted and the student attached to the routine.
func (i *EnrollmentInvite) ApplyPayment(amountTk int, now time.Time) (covered bool, err error) {
	if i.ExpiredAt(now) {
		return false, NewExpiredError("invite %d expired, payment refused", i.ID)
	}
	switch i.Status {
	case InviteStatusDeclined:
		return false, NewStateError("invite %d was declined", i.ID)
	case InviteStatusAccepted:
		// already settled; replayed confirmations are a no-op
		return false, nil
	}
	if amountTk <= 0 {
		return false, NewValidationError("payment amount must be positive, got %d", amountTk)
	}
	i.PaidTk += amountTk
	if i.PaidTk >= i.UpfrontDueTk {
		i.PaymentStatus = InvitePaymentPaid
		return true, nil
	}
	i.PaymentStatus = InvitePaymentPartial
	return false, nil
}
