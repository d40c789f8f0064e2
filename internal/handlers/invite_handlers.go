package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
	"tutorlink_app_echo/internal/services"
)

type InviteHandler struct {
	db             *gorm.DB
	invites        *services.InviteService
	payments       *services.PaymentService
	midtransClient *services.MidtransService
	cache          *services.RedisCache
}

func NewInviteHandler(db *gorm.DB, invites *services.InviteService, payments *services.PaymentService, midtransClient *services.MidtransService, cache *services.RedisCache) *InviteHandler {
	if midtransClient == nil {
		// Initialize Midtrans if not provided (fallback)
		midtransClient = services.NewMidtransService()
	}
	return &InviteHandler{db: db, invites: invites, payments: payments, midtransClient: midtransClient, cache: cache}
}

// CreateInvite issues an enrollment invite for a routine
func (h *InviteHandler) CreateInvite(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}

	var in services.CreateInviteInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.ActorID = user.ID

	invite, err := h.invites.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, invite)
}

// GetInvite returns one invite by id. Only the issuing teacher and the
// invited student get to read it.
func (h *InviteHandler) GetInvite(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	invite, err := h.invites.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !invite.CanView(user.ID) {
		return models.NewAuthorizationError("only the invite's teacher or student may view it")
	}
	return c.JSON(http.StatusOK, invite)
}

// DeclineInvite records the student's refusal
func (h *InviteHandler) DeclineInvite(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	invite, err := h.invites.Decline(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, invite)
}

// ListMyInvites returns invites where the caller is teacher or student
func (h *InviteHandler) ListMyInvites(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	invites, err := h.invites.ListForUser(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, invites)
}

// ShowPublicInvite resolves the shareable token for the payment page.
// Unauthenticated; numeric ids stay internal.
func (h *InviteHandler) ShowPublicInvite(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return models.NewValidationError("invite token is required")
	}
	invite, err := h.invites.GetByToken(c.Request().Context(), token)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"course_title":   invite.CourseTitle,
		"course_fee_tk":  invite.CourseFeeTk,
		"upfront_due_tk": invite.UpfrontDueTk,
		"paid_tk":        invite.PaidTk,
		"status":         invite.Status,
		"payment_status": invite.PaymentStatus,
		"expires_at":     invite.ExpiresAt,
	})
}

// InitiateCheckout starts or resumes a gateway checkout for the invite
func (h *InviteHandler) InitiateCheckout(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return models.NewValidationError("invite token is required")
	}
	invite, err := h.invites.GetByToken(c.Request().Context(), token)
	if err != nil {
		return err
	}

	var payer models.User
	if err := h.db.WithContext(c.Request().Context()).First(&payer, invite.StudentID).Error; err != nil {
		return models.NewNotFoundError("user", invite.StudentID)
	}

	forceNew := c.QueryParam("force_new") == "true"
	callbackURL := getEnv("APP_URL", "http://localhost:8080") + "/p/invites/" + token

	result, err := h.payments.InitiateCheckout(c.Request().Context(), invite, &payer, forceNew, callbackURL)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"token":        result.Token,
		"redirect_url": result.RedirectURL,
		"order_id":     result.OrderID,
		"amount_tk":    result.AmountTk,
		"is_existing":  result.IsExisting,
	})
}

// midtransNotification is the subset of the gateway webhook payload we act on
type midtransNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
}

// MidtransWebhook handles gateway payment notifications. The raw payload is
// archived first, the signature checked, and only a settled transaction is
// forwarded to MarkPaid. Redelivered notifications replay as no-ops there.
func (h *InviteHandler) MidtransWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}

	var notif midtransNotification
	if err := json.Unmarshal(body, &notif); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed notification")
	}
	if notif.OrderID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing order_id")
	}

	if err := h.payments.RecordCallback(c.Request().Context(), notif.OrderID, body); err != nil {
		log.Printf("webhook: failed to archive callback for %s: %v", notif.OrderID, err)
	}

	if !h.midtransClient.VerifySignature(notif.OrderID, notif.StatusCode, notif.GrossAmount, notif.SignatureKey) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid signature")
	}

	settled := notif.TransactionStatus == "settlement" ||
		(notif.TransactionStatus == "capture" && notif.FraudStatus != "challenge")
	if !settled {
		// pending/deny/expire/cancel: acknowledged, nothing to commit
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	// Midtrans redelivers aggressively; a short SETNX lease keeps concurrent
	// deliveries of the same order from racing into MarkPaid. The database
	// replay check stays authoritative, so a missing cache only costs the
	// fast path.
	if h.cache != nil {
		lockKey := "webhook:order:" + notif.OrderID
		acquired, err := h.cache.SetNX(c.Request().Context(), lockKey, "processing", 2*time.Minute)
		if err == nil && !acquired {
			return c.JSON(http.StatusOK, map[string]string{"status": "in_flight"})
		}
		defer func() {
			_ = h.cache.Delete(context.Background(), lockKey)
		}()
	}

	session, err := h.payments.SessionByOrderID(c.Request().Context(), notif.OrderID)
	if err != nil {
		return err
	}

	invite, err := h.invites.MarkPaid(c.Request().Context(), session.InviteID, session.AmountTk, notif.OrderID)
	if err != nil {
		// an expired invite keeps the money out; the gateway gets a 2xx so it
		// stops redelivering, the archived callback keeps the audit trail
		if models.KindOf(err) == models.ErrKindExpired {
			log.Printf("webhook: late payment refused for invite via order %s", notif.OrderID)
			return c.JSON(http.StatusOK, map[string]string{"status": "refused_expired"})
		}
		return err
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"invite_status":  invite.Status,
		"payment_status": invite.PaymentStatus,
	})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
