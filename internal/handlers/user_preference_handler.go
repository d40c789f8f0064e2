package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
)

type UserPreferenceHandler struct {
	DB *gorm.DB
}

func NewUserPreferenceHandler(db *gorm.DB) *UserPreferenceHandler {
	return &UserPreferenceHandler{DB: db}
}

// GetUserPreference returns the user's notification preference, defaulting to
// email when none is stored yet
func (h *UserPreferenceHandler) GetUserPreference(c echo.Context) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var pref models.UserNotifPreference
	err = h.DB.WithContext(c.Request().Context()).Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			pref = models.UserNotifPreference{
				UserID:             userID,
				Channel:            models.NotificationChannelEmail,
				WhatsappTargetType: models.WhatsappTargetTypePersonal,
			}
		} else {
			return echo.NewHTTPError(http.StatusInternalServerError, "Error fetching preference")
		}
	}

	return c.JSON(http.StatusOK, pref)
}

type preferenceRequest struct {
	Channel            models.NotificationChannel `json:"channel" validate:"required,oneof=email whatsapp none"`
	WhatsappTargetType string                     `json:"whatsapp_target_type" validate:"omitempty,oneof=personal group"`
	WhatsappGroupID    string                     `json:"whatsapp_group_id"`
}

// UpdateUserPreference upserts the user's notification preference
func (h *UserPreferenceHandler) UpdateUserPreference(c echo.Context) error {
	userID, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	var req preferenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	var pref models.UserNotifPreference
	err = h.DB.WithContext(c.Request().Context()).Where("user_id = ?", userID).First(&pref).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			pref = models.UserNotifPreference{UserID: userID}
		} else {
			return echo.NewHTTPError(http.StatusInternalServerError, "Database error")
		}
	}

	pref.Channel = req.Channel
	if req.WhatsappTargetType != "" {
		pref.WhatsappTargetType = req.WhatsappTargetType
	}
	pref.WhatsappGroupID = req.WhatsappGroupID

	if err := h.DB.WithContext(c.Request().Context()).Save(&pref).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to save preference")
	}

	return c.JSON(http.StatusOK, pref)
}
