package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

type qcService interface {
	StartReview(ctx context.Context, id string, req dto.QCActionRequest, actor service.Actor) (*dto.QCResponse, error)
	Approve(ctx context.Context, id string, req dto.QCActionRequest, actor service.Actor) (*dto.QCResponse, error)
	Reject(ctx context.Context, id string, req dto.QCActionRequest, actor service.Actor) (*dto.QCResponse, error)
	RequestChanges(ctx context.Context, id string, req dto.QCActionRequest, actor service.Actor) (*dto.QCResponse, error)
	Queue(ctx context.Context, page, pageSize int) ([]models.Submission, *models.Pagination, error)
	History(ctx context.Context, id string) ([]models.QCHistory, error)
}

type qcAction func(ctx context.Context, id string, req dto.QCActionRequest, actor service.Actor) (*dto.QCResponse, error)

// QCHandler exposes the review gate.
type QCHandler struct {
	service qcService
}

// NewQCHandler builds the handler.
func NewQCHandler(svc qcService) *QCHandler {
	return &QCHandler{service: svc}
}

// StartReview godoc
// @Summary Take the review lease
// @Tags QC
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.QCActionRequest true "Reviewer"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /qc/start-review/{id} [post]
func (h *QCHandler) StartReview(c *gin.Context) { h.run(c, h.service.StartReview) }

// Approve godoc
// @Summary Approve a submission
// @Tags QC
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.QCActionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /qc/approve/{id} [post]
func (h *QCHandler) Approve(c *gin.Context) { h.run(c, h.service.Approve) }

// Reject godoc
// @Summary Reject a submission
// @Tags QC
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.QCActionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /qc/reject/{id} [post]
func (h *QCHandler) Reject(c *gin.Context) { h.run(c, h.service.Reject) }

// RequestChanges godoc
// @Summary Send a submission back for changes
// @Tags QC
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.QCActionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /qc/request-changes/{id} [post]
func (h *QCHandler) RequestChanges(c *gin.Context) { h.run(c, h.service.RequestChanges) }

func (h *QCHandler) run(c *gin.Context, action qcAction) {
	var req dto.QCActionRequest
	if !bindJSON(c, &req, "invalid qc payload") {
		return
	}
	res, err := action(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Queue godoc
// @Summary Submissions waiting for review
// @Tags QC
// @Produce json
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /qc/queue [get]
func (h *QCHandler) Queue(c *gin.Context) {
	items, page, err := h.service.Queue(c.Request.Context(), queryInt(c, "page"), queryInt(c, "page_size"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, page)
}

// History godoc
// @Summary QC ledger of a submission
// @Tags QC
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /qc/history/{id} [get]
func (h *QCHandler) History(c *gin.Context) {
	items, err := h.service.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
