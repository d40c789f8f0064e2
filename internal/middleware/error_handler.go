package middleware

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"tutorlink_app_echo/internal/models"
)

// CustomErrorHandler maps domain errors onto JSON responses. Every engine
// error carries a kind; transport concerns stay out of the services.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var de *models.DomainError
	if errors.As(err, &de) {
		body := map[string]interface{}{
			"error": de.Message,
			"kind":  de.Kind,
		}
		if len(de.ConflictsWith) > 0 {
			body["conflicts_with"] = de.ConflictsWith
		}
		if jsonErr := c.JSON(statusForKind(de.Kind), body); jsonErr != nil {
			c.Logger().Error(jsonErr)
		}
		return
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		fields := make([]string, 0, len(ve))
		for _, fe := range ve {
			fields = append(fields, fe.Field())
		}
		if jsonErr := c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error":  "validation failed",
			"kind":   models.ErrKindValidation,
			"fields": fields,
		}); jsonErr != nil {
			c.Logger().Error(jsonErr)
		}
		return
	}

	code := http.StatusInternalServerError
	message := "Something went wrong. Please try again later."
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok && msg != "" {
			message = msg
		}
	}

	c.Logger().Error(err)

	if jsonErr := c.JSON(code, map[string]string{"error": message}); jsonErr != nil {
		c.Logger().Error(jsonErr)
	}
}

func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindValidation:
		return http.StatusBadRequest
	case models.ErrKindAuthorization:
		return http.StatusForbidden
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindConflict:
		return http.StatusConflict
	case models.ErrKindState:
		return http.StatusUnprocessableEntity
	case models.ErrKindExpired:
		return http.StatusGone
	}
	return http.StatusInternalServerError
}
