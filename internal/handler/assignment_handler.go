package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/logbook-api/internal/service"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
	"github.com/noah-isme/logbook-api/pkg/response"
)

// AssignmentHandler wires HTTP endpoints to the assignment service. All
// routes sit behind the admin role gate.
type AssignmentHandler struct {
	service *service.AssignmentService
}

// NewAssignmentHandler creates a new handler.
func NewAssignmentHandler(svc *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{service: svc}
}

// List godoc
// @Summary List role assignments
// @Description Lists assignments for a school year, optionally for one staff member
// @Tags Assignments
// @Produce json
// @Param school_year query int true "School year"
// @Param staff_user_id query string false "Staff user id"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /assignments [get]
func (h *AssignmentHandler) List(c *gin.Context) {
	year, err := queryInt(c, "school_year")
	if err != nil || year == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "school_year is required"))
		return
	}

	if staff := c.Query("staff_user_id"); staff != "" {
		assignments, err := h.service.ListByStaff(c.Request.Context(), staff, *year)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, assignments, nil)
		return
	}

	assignments, err := h.service.ListByYear(c.Request.Context(), *year)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// Create godoc
// @Summary Create a role assignment
// @Description Grants a staff member a scoped role for a school year
// @Tags Assignments
// @Accept json
// @Produce json
// @Param payload body service.CreateRoleAssignmentRequest true "Assignment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assignments [post]
func (h *AssignmentHandler) Create(c *gin.Context) {
	var req service.CreateRoleAssignmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid assignment payload"))
		return
	}
	assignment, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Delete godoc
// @Summary Delete a role assignment
// @Tags Assignments
// @Produce json
// @Param id path string true "Assignment id"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assignments/{id} [delete]
func (h *AssignmentHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
