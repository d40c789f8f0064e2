package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"tutorlink_app_echo/internal/middleware"
	"tutorlink_app_echo/internal/models"
)

// CurrentUser returns the authenticated user placed on the context by the
// auth middleware
func CurrentUser(c echo.Context) (*models.User, error) {
	user, ok := c.Get(middleware.ContextUserKey).(*models.User)
	if !ok || user == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}

// bindAndValidate decodes the JSON body and runs struct validation
func bindAndValidate(c echo.Context, out interface{}) error {
	if err := c.Bind(out); err != nil {
		return models.NewValidationError("malformed request body")
	}
	if err := c.Validate(out); err != nil {
		return err
	}
	return nil
}

// paramUint parses a numeric path parameter
func paramUint(c echo.Context, name string) (uint, error) {
	raw := c.Param(name)
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, models.NewValidationError("invalid %s %q", name, raw)
	}
	return uint(v), nil
}

// respondRequest is the shared accept/reject body for consensus endpoints
type respondRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}
