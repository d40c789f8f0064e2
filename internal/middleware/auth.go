package middleware

import (
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"tutorlink_app_echo/internal/models"
)

// ContextUserKey is where the resolved local user lives on the echo context
const ContextUserKey = "currentUser"

// RequireAuth verifies a Firebase credential (Bearer ID token or session
// cookie) and resolves it to a local User row, creating the profile on first
// sight. Downstream handlers read the user via handlers.
func RequireAuth(authClient *auth.Client, db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "auth not configured")
			}

			token, err := verifyCredential(c, authClient)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing credentials")
			}

			user, err := resolveUser(c, db, token)
			if err != nil {
				return err
			}

			c.Set(ContextUserKey, user)
			return next(c)
		}
	}
}

func verifyCredential(c echo.Context, authClient *auth.Client) (*auth.Token, error) {
	ctx := c.Request().Context()

	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return authClient.VerifyIDToken(ctx, strings.TrimPrefix(authHeader, "Bearer "))
	}

	cookie, err := c.Cookie("session")
	if err != nil || cookie.Value == "" {
		return nil, echo.ErrUnauthorized
	}
	return authClient.VerifySessionCookie(ctx, cookie.Value)
}

// resolveUser loads the profile for a Firebase UID, creating it on first login
func resolveUser(c echo.Context, db *gorm.DB, token *auth.Token) (*models.User, error) {
	var user models.User
	err := db.WithContext(c.Request().Context()).
		Where("firebase_uid = ?", token.UID).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	user = models.User{
		FirebaseUID: token.UID,
		UserType:    models.UserTypeStudent,
	}
	if email, ok := token.Claims["email"].(string); ok {
		user.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		user.Name = name
	}
	if err := db.WithContext(c.Request().Context()).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
