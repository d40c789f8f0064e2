package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tutorlink_app_echo/internal/models"
)

// InviteService runs the payment-gated enrollment flow: a teacher invites a
// student into a routine, the student pays the upfront due, and the payment
// that covers it atomically turns into routine membership.
type InviteService struct {
	db       *gorm.DB
	routines *RoutineService
	notifier *Notifier
}

func NewInviteService(db *gorm.DB, routines *RoutineService, notifier *Notifier) *InviteService {
	return &InviteService{db: db, routines: routines, notifier: notifier}
}

// CreateInviteInput carries a new enrollment invite. AdvanceTk overrides the
// default 15% upfront when set.
type CreateInviteInput struct {
	ActorID   uint       `json:"-"`
	RoutineID uint       `json:"routine_id" validate:"required"`
	StudentID uint       `json:"student_id" validate:"required"`
	FeeTk     int        `json:"fee_tk" validate:"gt=0"`
	AdvanceTk *int       `json:"advance_tk,omitempty"`
	Note      string     `json:"note"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Create issues an invite for a student to join the actor's routine
func (s *InviteService) Create(ctx context.Context, in CreateInviteInput) (*models.EnrollmentInvite, error) {
	if err := models.ValidateInviteFee(in.FeeTk, in.AdvanceTk); err != nil {
		return nil, err
	}
	routine, err := s.routines.Get(ctx, in.RoutineID)
	if err != nil {
		return nil, err
	}
	if routine.TeacherID != in.ActorID {
		return nil, models.NewAuthorizationError("only the routine's teacher may invite students")
	}
	if routine.HasStudent(in.StudentID) {
		return nil, models.NewStateError("student %d is already a member of routine %d", in.StudentID, in.RoutineID)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(time.Now()) {
		return nil, models.NewValidationError("expiry must be in the future")
	}

	invite := models.EnrollmentInvite{
		PublicToken:  uuid.New().String(),
		TeacherID:    routine.TeacherID,
		StudentID:    in.StudentID,
		RoutineID:    in.RoutineID,
		CourseTitle:  routine.CourseTitle,
		CourseFeeTk:  in.FeeTk,
		AdvanceTk:    in.AdvanceTk,
		UpfrontDueTk: models.UpfrontDue(in.FeeTk, in.AdvanceTk),
		Status:       models.InviteStatusPending,
		Note:         in.Note,
		ExpiresAt:    in.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&invite).Error; err != nil {
		return nil, fmt.Errorf("failed to create invite: %w", err)
	}

	s.notifier.Notify(ctx, models.EventInviteCreated, "invite", invite.ID, &invite,
		[]uint{invite.TeacherID, invite.StudentID})
	return &invite, nil
}

// Get loads an invite by id
func (s *InviteService) Get(ctx context.Context, inviteID uint) (*models.EnrollmentInvite, error) {
	return s.load(s.db.WithContext(ctx), inviteID, false)
}

// GetByToken resolves the shareable token used on the payment page
func (s *InviteService) GetByToken(ctx context.Context, token string) (*models.EnrollmentInvite, error) {
	var invite models.EnrollmentInvite
	err := s.db.WithContext(ctx).Where("public_token = ?", token).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("invite", token)
	}
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

func (s *InviteService) load(tx *gorm.DB, inviteID uint, forUpdate bool) (*models.EnrollmentInvite, error) {
	q := tx
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var invite models.EnrollmentInvite
	if err := q.First(&invite, inviteID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("invite", inviteID)
		}
		return nil, err
	}
	return &invite, nil
}

// Decline marks the invite declined by the student. Declining twice is a
// no-op success; declining a settled or expired invite is refused.
func (s *InviteService) Decline(ctx context.Context, inviteID, actorID uint) (*models.EnrollmentInvite, error) {
	var invite *models.EnrollmentInvite
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invite, err = s.load(tx, inviteID, true)
		if err != nil {
			return err
		}
		if invite.StudentID != actorID {
			return models.NewAuthorizationError("only the invited student may decline")
		}
		switch {
		case invite.Status == models.InviteStatusDeclined:
			return nil
		case invite.ExpiredAt(time.Now()):
			return models.NewExpiredError("invite %d expired", invite.ID)
		case invite.Status == models.InviteStatusAccepted:
			return models.NewStateError("invite %d is already settled", invite.ID)
		}
		invite.Status = models.InviteStatusDeclined
		return tx.Save(invite).Error
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, models.EventInviteUpdated, "invite", invite.ID, invite,
		[]uint{invite.TeacherID, invite.StudentID})
	return invite, nil
}

// MarkPaid records a captured payment against the invite. The payment that
// covers the upfront due commits payment, invite acceptance and routine
// membership in one transaction, guarded by a fresh conflict check against
// the student's other weekly commitments. Replaying a settled order id is a
// no-op success; a payment against an expired invite is refused without
// mutating anything.
func (s *InviteService) MarkPaid(ctx context.Context, inviteID uint, amountTk int, orderID string) (*models.EnrollmentInvite, error) {
	var invite *models.EnrollmentInvite
	var routine *models.Routine

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invite, err = s.load(tx, inviteID, true)
		if err != nil {
			return err
		}

		if orderID != "" {
			// a settled payment session means this confirmation was already
			// processed; gateways redeliver webhooks
			var settled int64
			if err := tx.Model(&models.PaymentSession{}).
				Where("order_id = ? AND is_active = ?", orderID, false).
				Count(&settled).Error; err != nil {
				return err
			}
			if settled > 0 {
				return nil
			}
		}

		covered, err := invite.ApplyPayment(amountTk, time.Now())
		if err != nil {
			return err
		}

		if covered {
			invite.Status = models.InviteStatusAccepted
			routine, err = s.routines.load(tx, invite.RoutineID, true)
			if err != nil {
				return err
			}
			if err := s.enroll(tx, invite, routine); err != nil {
				return err
			}
		}
		if err := tx.Save(invite).Error; err != nil {
			return err
		}

		if orderID != "" {
			if err := tx.Model(&models.PaymentSession{}).
				Where("order_id = ?", orderID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if routine != nil {
		s.routines.invalidateGroup(ctx, routine.TeacherID, routine.CourseID)
	}
	s.notifier.Notify(ctx, models.EventInviteUpdated, "invite", invite.ID, invite,
		[]uint{invite.TeacherID, invite.StudentID})
	return invite, nil
}

// enroll attaches the paying student to the routine and all of its slots.
// The conflict check runs here, at commit time, not when the invite was sent:
// the student's calendar may have changed while the invite sat open.
func (s *InviteService) enroll(tx *gorm.DB, invite *models.EnrollmentInvite, routine *models.Routine) error {
	commitments, err := s.routines.weeklyCommitments(tx, invite.StudentID, routine.ID)
	if err != nil {
		return err
	}
	alreadyMember, err := routine.AdmitStudent(invite.StudentID, commitments)
	if err != nil {
		return err
	}
	if alreadyMember {
		return nil
	}

	member := models.RoutineMember{
		RoutineID: routine.ID,
		StudentID: invite.StudentID,
		Status:    models.RoutineMemberActive,
	}
	if err := tx.Create(&member).Error; err != nil {
		return fmt.Errorf("failed to enroll student %d: %w", invite.StudentID, err)
	}
	for _, slot := range routine.Slots {
		a := models.SlotAssignment{SlotID: slot.ID, StudentID: invite.StudentID}
		if err := tx.Create(&a).Error; err != nil {
			return fmt.Errorf("failed to assign slot %d: %w", slot.ID, err)
		}
	}
	return nil
}

// ListForUser returns invites where the user is teacher or student
func (s *InviteService) ListForUser(ctx context.Context, userID uint) ([]models.EnrollmentInvite, error) {
	var invites []models.EnrollmentInvite
	err := s.db.WithContext(ctx).
		Where("teacher_id = ? OR student_id = ?", userID, userID).
		Order("created_at desc").
		Find(&invites).Error
	return invites, err
}

// SweepExpired flips pending invites whose deadline has passed. Driven from
// the worker; the engine also refuses late payments on its own, so a delayed
// sweep never admits one.
func (s *InviteService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.EnrollmentInvite{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.InviteStatusPending, now).
		Update("status", models.InviteStatusExpired)
	return res.RowsAffected, res.Error
}
