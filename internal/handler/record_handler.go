package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/logbook-api/internal/models"
	"github.com/noah-isme/logbook-api/internal/service"
	appErrors "github.com/noah-isme/logbook-api/pkg/errors"
	"github.com/noah-isme/logbook-api/pkg/response"
)

// RecordHandler wires HTTP endpoints to the record edit workflow.
type RecordHandler struct {
	service        *service.RecordService
	exportsEnabled bool
}

// NewRecordHandler creates a new handler.
func NewRecordHandler(svc *service.RecordService, exportsEnabled bool) *RecordHandler {
	return &RecordHandler{service: svc, exportsEnabled: exportsEnabled}
}

func scopeFromQuery(c *gin.Context) (models.AccessScope, error) {
	scope := models.AccessScope{}

	year, err := queryInt(c, "school_year")
	if err != nil {
		return scope, appErrors.Clone(appErrors.ErrValidation, "school_year must be an integer")
	}
	if year == nil {
		return scope, appErrors.Clone(appErrors.ErrValidation, "school_year is required")
	}
	scope.SchoolYear = *year

	if scope.Semester, err = queryInt(c, "semester"); err != nil {
		return scope, appErrors.Clone(appErrors.ErrValidation, "semester must be an integer")
	}
	if scope.Grade, err = queryInt(c, "grade"); err != nil {
		return scope, appErrors.Clone(appErrors.ErrValidation, "grade must be an integer")
	}
	if scope.ClassSection, err = queryInt(c, "class_section"); err != nil {
		return scope, appErrors.Clone(appErrors.ErrValidation, "class_section must be an integer")
	}
	scope.SubjectID = queryString(c, "subject_id")
	scope.StudentUserID = queryString(c, "student_user_id")
	if raw := c.Query("kind"); raw != "" {
		kind := models.RecordKind(raw)
		switch kind {
		case models.RecordKindSubject, models.RecordKindBehavior, models.RecordKindCareer:
			scope.Kind = &kind
		default:
			return scope, appErrors.Clone(appErrors.ErrValidation, "kind must be subject, behavior or career")
		}
	}
	return scope, nil
}

// List godoc
// @Summary List records
// @Description Lists records visible to the caller within the school year
// @Tags Records
// @Produce json
// @Param school_year query int true "School year"
// @Param semester query int false "Semester"
// @Param grade query int false "Grade"
// @Param class_section query int false "Class section"
// @Param subject_id query string false "Subject id"
// @Param kind query string false "Record kind"
// @Param student_user_id query string false "Student user id"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /records [get]
func (h *RecordHandler) List(c *gin.Context) {
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records, err := h.service.List(c.Request.Context(), claimsFromContext(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Get godoc
// @Summary Get a record
// @Description Returns one record with its current lock state
// @Tags Records
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	detail, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Create a record
// @Description Creates a record and its initial version entry
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body service.CreateRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	var req service.CreateRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}
	record, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Lock godoc
// @Summary Acquire the edit lock
// @Description Acquires or refreshes the edit lock on a record
// @Tags Locks
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /records/{id}/lock [post]
func (h *RecordHandler) Lock(c *gin.Context) {
	status, err := h.service.Lock(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Unlock godoc
// @Summary Release the edit lock
// @Description Releases the caller's edit lock without submitting
// @Tags Locks
// @Produce json
// @Param id path string true "Record id"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{id}/lock [delete]
func (h *RecordHandler) Unlock(c *gin.Context) {
	if err := h.service.Unlock(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ExtendLock godoc
// @Summary Extend the edit lock
// @Description Resets the TTL of the caller's edit lock
// @Tags Locks
// @Produce json
// @Param id path string true "Record id"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /records/{id}/lock/extend [post]
func (h *RecordHandler) ExtendLock(c *gin.Context) {
	if err := h.service.ExtendLock(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// LockStatus godoc
// @Summary Inspect the edit lock
// @Description Reports the lock state without mutating it
// @Tags Locks
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id}/lock [get]
func (h *RecordHandler) LockStatus(c *gin.Context) {
	status, err := h.service.LockStatus(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// SubmitEdit godoc
// @Summary Submit edited content
// @Description Persists new content and a version entry, then releases the lock
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body service.SubmitEditRequest true "Edit payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /records/{id}/content [put]
func (h *RecordHandler) SubmitEdit(c *gin.Context) {
	var req service.SubmitEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit payload"))
		return
	}
	record, err := h.service.SubmitEdit(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// ListVersions godoc
// @Summary List record versions
// @Description Returns the edit history of a record, newest first
// @Tags Records
// @Produce json
// @Param id path string true "Record id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /records/{id}/versions [get]
func (h *RecordHandler) ListVersions(c *gin.Context) {
	versions, err := h.service.ListVersions(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// SetStudentEditable godoc
// @Summary Toggle student self-edit
// @Description Allows or forbids the student to edit their own record
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record id"
// @Param payload body object true "Editable flag"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/{id}/permissions [put]
func (h *RecordHandler) SetStudentEditable(c *gin.Context) {
	var payload struct {
		IsEditableByStudent bool `json:"is_editable_by_student"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.service.SetStudentEditable(c.Request.Context(), claimsFromContext(c), c.Param("id"), payload.IsEditableByStudent); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Export godoc
// @Summary Export records
// @Description Exports the caller's visible records as CSV or PDF
// @Tags Records
// @Produce octet-stream
// @Param school_year query int true "School year"
// @Param format query string true "csv or pdf"
// @Success 200 {file} byte
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /records/export [get]
func (h *RecordHandler) Export(c *gin.Context) {
	if !h.exportsEnabled {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "exports are disabled"))
		return
	}
	scope, err := scopeFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := c.DefaultQuery("format", "csv")
	payload, contentType, err := h.service.Export(c.Request.Context(), claimsFromContext(c), scope, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("records_%d_%s.%s", scope.SchoolYear, time.Now().UTC().Format("20060102"), format)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
