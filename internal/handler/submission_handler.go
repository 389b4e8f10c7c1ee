package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

type submissionService interface {
	Create(ctx context.Context, in dto.CreateSubmissionUpload, actor service.Actor) (*dto.SubmissionResponse, error)
	CreateFromStorage(ctx context.Context, in dto.CreateSubmissionFromStorageRequest, actor service.Actor) (*dto.SubmissionResponse, error)
	Get(ctx context.Context, id string, actor service.Actor) (*models.Submission, error)
	List(ctx context.Context, q dto.SubmissionListQuery, actor service.Actor) ([]models.Submission, *models.Pagination, error)
	Validations(ctx context.Context, id string, actor service.Actor) (*dto.SubmissionValidationsResponse, error)
	AuditTrail(ctx context.Context, id string, limit int) ([]models.AuditLog, error)
}

type lifecycleService interface {
	Complete(ctx context.Context, id string, actor service.Actor) (*models.Submission, error)
	Fail(ctx context.Context, id string, req dto.FailSubmissionRequest, actor service.Actor) (*models.Submission, error)
	Retry(ctx context.Context, req dto.RetrySubmissionsRequest, actor service.Actor) (*dto.RetrySubmissionsResponse, error)
	SoftDelete(ctx context.Context, id string, actor service.Actor) (*models.Submission, error)
	Purge(ctx context.Context, id string, actor service.Actor) (*dto.PurgeResponse, error)
}

// SubmissionHandler exposes intake and lifecycle endpoints.
type SubmissionHandler struct {
	submissions    submissionService
	lifecycle      lifecycleService
	maxUploadBytes int64
}

// NewSubmissionHandler builds the handler. maxUploadBytes caps the whole
// multipart body.
func NewSubmissionHandler(submissions submissionService, lifecycle lifecycleService, maxUploadBytes int64) *SubmissionHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 25 << 20
	}
	return &SubmissionHandler{submissions: submissions, lifecycle: lifecycle, maxUploadBytes: maxUploadBytes}
}

// Create godoc
// @Summary Create submission from uploads
// @Description Multipart intake with one doctor image and one or more voice samples
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param doctor_name formData string true "Doctor name"
// @Param doctor_phone formData string true "Doctor phone"
// @Param mr_code formData string true "MR code"
// @Param mr_name formData string true "MR name"
// @Param selected_languages formData string true "Comma separated language codes"
// @Param image formData file true "Doctor image"
// @Param audio formData file true "Voice sample"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	var upload dto.CreateSubmissionUpload
	if err := c.ShouldBind(&upload.SubmissionFields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission form"))
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "multipart form required"))
		return
	}
	images := form.File["image"]
	if len(images) != 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "exactly one image file is required"))
		return
	}
	if upload.Image, err = readUpload(images[0]); err != nil {
		response.Error(c, err)
		return
	}
	for _, fh := range form.File["audio"] {
		file, err := readUpload(fh)
		if err != nil {
			response.Error(c, err)
			return
		}
		upload.Audio = append(upload.Audio, file)
	}

	res, err := h.submissions.Create(c.Request.Context(), upload, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// CreateFromStorage godoc
// @Summary Create submission from stored objects
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.CreateSubmissionFromStorageRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /submissions/gcs [post]
func (h *SubmissionHandler) CreateFromStorage(c *gin.Context) {
	var req dto.CreateSubmissionFromStorageRequest
	if !bindJSON(c, &req, "invalid submission payload") {
		return
	}
	res, err := h.submissions.CreateFromStorage(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param qc_status query string false "QC status"
// @Param mr_code query string false "MR code"
// @Param search query string false "Doctor name or phone"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	var q dto.SubmissionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	items, page, err := h.submissions.List(c.Request.Context(), q, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// Get godoc
// @Summary Get submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	sub, err := h.submissions.Get(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Validations godoc
// @Summary List intake file checks
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/validations [get]
func (h *SubmissionHandler) Validations(c *gin.Context) {
	checks, err := h.submissions.Validations(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, checks, nil)
}

// AuditTrail godoc
// @Summary Submission audit trail
// @Tags Admin
// @Produce json
// @Param id path string true "Submission ID"
// @Param limit query int false "Maximum entries, newest first"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/submissions/{id}/audit [get]
func (h *SubmissionHandler) AuditTrail(c *gin.Context) {
	var q dto.AuditTrailQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	logs, err := h.submissions.AuditTrail(c.Request.Context(), c.Param("id"), q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// Complete godoc
// @Summary Mark an approved submission completed
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/complete [post]
func (h *SubmissionHandler) Complete(c *gin.Context) {
	sub, err := h.lifecycle.Complete(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Fail godoc
// @Summary Mark a submission failed
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.FailSubmissionRequest true "Failure reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/fail [post]
func (h *SubmissionHandler) Fail(c *gin.Context) {
	var req dto.FailSubmissionRequest
	if !bindJSON(c, &req, "invalid fail payload") {
		return
	}
	sub, err := h.lifecycle.Fail(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Retry godoc
// @Summary Retry failed submissions
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.RetrySubmissionsRequest true "Submission IDs"
// @Success 200 {object} response.Envelope
// @Router /submissions/retry [post]
func (h *SubmissionHandler) Retry(c *gin.Context) {
	var req dto.RetrySubmissionsRequest
	if !bindJSON(c, &req, "invalid retry payload") {
		return
	}
	res, err := h.lifecycle.Retry(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Soft delete a submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Delete(c *gin.Context) {
	sub, err := h.lifecycle.SoftDelete(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// Purge godoc
// @Summary Hard delete a submission and its stored objects
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /admin/submissions/{id} [delete]
func (h *SubmissionHandler) Purge(c *gin.Context) {
	res, err := h.lifecycle.Purge(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func readUpload(fh *multipart.FileHeader) (dto.UploadedFile, error) {
	f, err := fh.Open()
	if err != nil {
		return dto.UploadedFile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload "+fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return dto.UploadedFile{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload "+fh.Filename)
	}
	return dto.UploadedFile{Filename: fh.Filename, Data: data}, nil
}
