package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
)

// PaymentService bridges enrollment invites to the payment gateway. It owns
// checkout session bookkeeping; settlement itself lands through
// InviteService.MarkPaid when the gateway confirms.
type PaymentService struct {
	db             *gorm.DB
	midtransClient *MidtransService
}

func NewPaymentService(db *gorm.DB, midtransClient *MidtransService) *PaymentService {
	return &PaymentService{
		db:             db,
		midtransClient: midtransClient,
	}
}

// CheckActiveSession returns the invite's active checkout session, or nil
func (s *PaymentService) CheckActiveSession(ctx context.Context, inviteID uint) (*models.PaymentSession, error) {
	var existing models.PaymentSession
	err := s.db.WithContext(ctx).
		Where("invite_id = ? AND is_active = ?", inviteID, true).
		Order("created_at desc").First(&existing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &existing, nil
}

// InitiateCheckoutResult holds the result of an initiation attempt
type InitiateCheckoutResult struct {
	Token       string
	RedirectURL string
	OrderID     string
	AmountTk    int
	IsExisting  bool
}

// InitiateCheckout starts or resumes a gateway checkout for the invite's
// remaining upfront due. An open pending checkout is reused unless forceNew
// cancels it first.
func (s *PaymentService) InitiateCheckout(ctx context.Context, invite *models.EnrollmentInvite, payer *models.User, forceNew bool, callbackURL string) (*InitiateCheckoutResult, error) {
	if invite.ExpiredAt(time.Now()) {
		return nil, models.NewExpiredError("invite %d expired, checkout refused", invite.ID)
	}
	if invite.Status != models.InviteStatusPending {
		return nil, models.NewStateError("invite %d is %s, nothing to pay", invite.ID, invite.Status)
	}
	remaining := invite.UpfrontDueTk - invite.PaidTk
	if remaining <= 0 {
		return nil, models.NewStateError("invite %d upfront due already covered", invite.ID)
	}

	existing, err := s.CheckActiveSession(ctx, invite.ID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		statusResp, err := s.midtransClient.CheckTransaction(existing.OrderID)
		if err == nil {
			switch statusResp.TransactionStatus {
			case "settlement", "capture":
				// settled at the gateway; the webhook will (or did) mark it paid
				return nil, models.NewStateError("payment for invite %d already made", invite.ID)
			case "deny", "expire", "cancel", "failure":
				existing.IsActive = false
				s.db.WithContext(ctx).Save(existing)
			default: // pending at the gateway
				if forceNew {
					if err := s.midtransClient.CancelTransaction(existing.OrderID); err != nil {
						return nil, err
					}
					existing.IsActive = false
					s.db.WithContext(ctx).Save(existing)
				} else {
					var midtransResp snap.Response
					if err := json.Unmarshal(existing.ResponseMetadata, &midtransResp); err == nil {
						return &InitiateCheckoutResult{
							Token:       midtransResp.Token,
							RedirectURL: midtransResp.RedirectURL,
							OrderID:     existing.OrderID,
							AmountTk:    existing.AmountTk,
							IsExisting:  true,
						}, nil
					}
					existing.IsActive = false
					s.db.WithContext(ctx).Save(existing)
				}
			}
		} else {
			// status check failed, treat the local session as broken
			existing.IsActive = false
			s.db.WithContext(ctx).Save(existing)
		}
	}

	orderID := fmt.Sprintf("invite-%d-%d", invite.ID, time.Now().Unix())

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: int64(remaining),
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: payer.Name,
			Email: payer.Email,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    fmt.Sprintf("invite-%d", invite.ID),
				Name:  fmt.Sprintf("Enrollment for %s", invite.CourseTitle),
				Price: int64(remaining),
				Qty:   1,
			},
		},
		Callbacks: &snap.Callbacks{
			Finish: callbackURL,
		},
	}

	resp, err := s.midtransClient.CreateTransaction(orderID, int64(remaining), req)
	if err != nil {
		return nil, err
	}

	reqBytes, _ := json.Marshal(req)
	respBytes, _ := json.Marshal(resp)

	session := models.PaymentSession{
		InviteID:         invite.ID,
		StudentID:        invite.StudentID,
		AmountTk:         remaining,
		PaymentGateway:   models.PaymentGatewayMidtrans,
		OrderID:          orderID,
		IsActive:         true,
		RequestMetadata:  reqBytes,
		ResponseMetadata: respBytes,
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}

	return &InitiateCheckoutResult{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		OrderID:     orderID,
		AmountTk:    remaining,
		IsExisting:  false,
	}, nil
}

// SessionByOrderID resolves a checkout session from a gateway order id
func (s *PaymentService) SessionByOrderID(ctx context.Context, orderID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("payment session", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// RecordCallback archives a raw gateway notification for audit
func (s *PaymentService) RecordCallback(ctx context.Context, orderID string, payload json.RawMessage) error {
	history := models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayMidtrans,
		OrderID:        orderID,
		Metadata:       payload,
	}
	return s.db.WithContext(ctx).Create(&history).Error
}
