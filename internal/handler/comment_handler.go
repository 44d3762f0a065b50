package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/logbook-api/internal/service"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
	"github.com/noah-isme/logbook-api/pkg/response"
)

// CommentHandler wires HTTP endpoints to the comment service.
type CommentHandler struct {
	service *service.CommentService
}

// NewCommentHandler creates a new handler.
func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{service: svc}
}

// ListByRecord godoc
// @Summary List record comments
// @Tags Comments
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/{id}/comments [get]
func (h *CommentHandler) ListByRecord(c *gin.Context) {
	comments, err := h.service.ListByRecord(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, comments, nil)
}

// Create godoc
// @Summary Add a comment
// @Tags Comments
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body service.CreateCommentRequest true "Comment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/{id}/comments [post]
func (h *CommentHandler) Create(c *gin.Context) {
	var req service.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid comment payload"))
		return
	}
	comment, err := h.service.Create(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}
