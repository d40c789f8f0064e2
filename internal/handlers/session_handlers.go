package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tutorlink_app_echo/internal/models"
	"tutorlink_app_echo/internal/services"
)

type SessionHandler struct {
	sessions *services.SessionService
}

func NewSessionHandler(sessions *services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSession books a one-off session (demo or regular)
func (h *SessionHandler) CreateSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	if !user.IsTeacher() {
		return models.NewAuthorizationError("only teachers may book sessions")
	}

	var in services.CreateSessionInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.TeacherID = user.ID

	session, err := h.sessions.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

// GetSession returns one session with participants. Only its teacher and
// its participants get to read it.
func (h *SessionHandler) GetSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	session, err := h.sessions.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !session.CanView(user.ID) {
		return models.NewAuthorizationError("only the session's teacher or participants may view it")
	}
	return c.JSON(http.StatusOK, session)
}

// RespondSession records a participant's accept or reject
func (h *SessionHandler) RespondSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req respondRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	session, err := h.sessions.Respond(c.Request().Context(), id, user.ID, *req.Accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// CancelSession cancels for the teacher, or withdraws one student
func (h *SessionHandler) CancelSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	session, err := h.sessions.Cancel(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// CompleteSession marks a scheduled session done
func (h *SessionHandler) CompleteSession(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}

	session, err := h.sessions.Complete(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// ListMySessions returns the caller's sessions, teacher or participant
func (h *SessionHandler) ListMySessions(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	sessions, err := h.sessions.ListForUser(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sessions)
}
