package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"tutorlink_app_echo/internal/services"
)

type ProposalHandler struct {
	proposals *services.ProposalService
}

func NewProposalHandler(proposals *services.ProposalService) *ProposalHandler {
	return &ProposalHandler{proposals: proposals}
}

// CreateOneoffProposal proposes a single dated session to routine students
func (h *ProposalHandler) CreateOneoffProposal(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}

	var in services.CreateOneoffInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.ActorID = user.ID

	proposal, err := h.proposals.CreateOneoff(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, proposal)
}

// CreateWeeklyProposal proposes a weekly slot add, update or remove
func (h *ProposalHandler) CreateWeeklyProposal(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}

	var in services.CreateWeeklyInput
	if err := bindAndValidate(c, &in); err != nil {
		return err
	}
	in.ActorID = user.ID

	proposal, err := h.proposals.CreateWeekly(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, proposal)
}

// GetProposal returns one proposal with its responses. Only the routine's
// teacher and the targeted students get to read it.
func (h *ProposalHandler) GetProposal(c echo.Context) error {
	user, err := CurrentUser(c)
	if err != nil {
		return err
	}
	id, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	proposal, err := h.proposals.GetForUser(c.Request().Context(), id, user.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, proposal)
}

// RespondProposal records a student's accept or reject
func (h *ProposalHandler) RespondProposal(c echo.Context) error {
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

	proposal, err := h.proposals.Respond(c.Request().Context(), id, user.ID, *req.Accept)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, proposal)
}

// ListRoutineProposals returns a routine's proposals, newest first
func (h *ProposalHandler) ListRoutineProposals(c echo.Context) error {
	routineID, err := paramUint(c, "id")
	if err != nil {
		return err
	}
	proposals, err := h.proposals.ListForRoutine(c.Request().Context(), routineID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, proposals)
}
