package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tutorlink_app_echo/internal/models"
	"tutorlink_app_echo/internal/services"
)

type RoutineHandler struct {
	routines *services.RoutineService
}

func NewRoutineHandler(routines *services.RoutineService) *RoutineHandler {
	return &RoutineHandler{routines: routines}
}

// CreateRoutine opens a routine with its weekly slot set
func (h *RoutineHandler) CreateRoutine(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	if !user.IsTeacher() {
		return models.NewAuthorizationError("only teachers may create routines")
	}

	var in services.CreateRoutineInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.TeacherID = user.ID

	routine, err := h.routines.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, routine)
}

// GetRoutine returns one routine with members and slots. Only its teacher
// and its members get to read it.
func (h *RoutineHandler) GetRoutine(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	routine, err := h.routines.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	if !routine.CanView(user.ID) {
		return models.NewAuthorizationError("only the routine's teacher or members may view it")
	}
	return c.JSON(http.StatusOK, routine)
}

// RespondRoutine records the student's accept or reject of membership
func (h *RoutineHandler) RespondRoutine(c echo.Context) error {
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

	routine, err := h.routines.Respond(c.Request().Context(), id, user.ID, *req.Accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, routine)
}

type setStatusRequest struct {
	Status models.RoutineStatus `json:"status" validate:"required,oneof=active paused"`
}

// SetRoutineStatus pauses or resumes a routine
func (h *RoutineHandler) SetRoutineStatus(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	var req setStatusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	routine, err := h.routines.SetStatus(c.Request().Context(), id, user.ID, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, routine)
}

// GetGroup returns the projected routine group for a teacher+course pair
func (h *RoutineHandler) GetGroup(c echo.Context) error {
	teacherID, err := paramUint(c, "teacher_id")
	if err != nil {
		return err
	}
	courseID, err := paramUint(c, "course_id")
	if err != nil {
		return err
	}

	group, err := h.routines.Group(c.Request().Context(), teacherID, courseID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, group)
}

// ListMyRoutines returns the routines the caller belongs to
func (h *RoutineHandler) ListMyRoutines(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	routines, err := h.routines.ListForStudent(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, routines)
}

// GetMyCommitments returns the caller's weekly commitments across routines
func (h *RoutineHandler) GetMyCommitments(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	commitments, err := h.routines.WeeklyCommitments(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, commitments)
}
