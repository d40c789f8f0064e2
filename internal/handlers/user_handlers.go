package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
)

type UserHandler struct {
	db *gorm.DB
}

func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{db: db}
}

// Me returns the caller's own profile
func (h *UserHandler) Me(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ListUsers returns all users
func (h *UserHandler) ListUsers(c echo.Context) error {
	var users []models.User
	if err := h.db.WithContext(c.Request().Context()).Find(&users).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to fetch users")
	}
	return c.JSON(http.StatusOK, users)
}

// GetUser returns one user by id
func (h *UserHandler) GetUser(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var user models.User
	if err := h.db.WithContext(c.Request().Context()).First(&user, id).Error; err != nil {
		return models.NewNotFoundError("user", id)
	}
	return c.JSON(http.StatusOK, user)
}

type userRequest struct {
	Name     string          `json:"name" validate:"required"`
	Email    string          `json:"email" validate:"required,email"`
	Phone    string          `json:"phone"`
	UserType models.UserType `json:"user_type" validate:"omitempty,oneof=teacher student"`
	Timezone string          `json:"timezone"`
}

// StoreUser handles the creation of a new user
func (h *UserHandler) StoreUser(c echo.Context) error {
	var req userRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user := models.User{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		UserType: req.UserType,
		Timezone: req.Timezone,
	}
	if user.UserType == "" {
		user.UserType = models.UserTypeStudent
	}

	if err := h.db.WithContext(c.Request().Context()).Create(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create user")
	}
	return c.JSON(http.StatusCreated, user)
}

// UpdateUser handles updating an existing user
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var user models.User
	if err := h.db.WithContext(c.Request().Context()).First(&user, id).Error; err != nil {
		return models.NewNotFoundError("user", id)
	}

	var req userRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	user.Name = req.Name
	user.Email = req.Email
	user.Phone = req.Phone
	if req.UserType != "" {
		user.UserType = req.UserType
	}
	if req.Timezone != "" {
		user.Timezone = req.Timezone
	}

	if err := h.db.WithContext(c.Request().Context()).Save(&user).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to update user")
	}
	return c.JSON(http.StatusOK, user)
}

// DeleteUser handles deleting a user
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	if err := h.db.WithContext(c.Request().Context()).Delete(&models.User{}, id).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete user")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "deleted"})
}
