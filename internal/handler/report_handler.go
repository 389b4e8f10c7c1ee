package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/middleware"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

type reportService interface {
	LanguageRows(ctx context.Context, q dto.LanguageReportQuery, actor service.Actor) ([]models.LanguageReportRow, error)
	Export(ctx context.Context, q dto.LanguageReportQuery, actor service.Actor) (*dto.ExportFile, error)
	Summary(ctx context.Context) (*models.DashboardSummary, error)
	SyncWorkbook(ctx context.Context) (*dto.SyncResult, error)
}

// ReportHandler exposes the reporting projection.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Languages godoc
// @Summary Per-language report
// @Description One row per submission and selected language. format=csv|pdf|xlsx downloads a file.
// @Tags Reports
// @Produce json
// @Param format query string false "json, csv, pdf or xlsx"
// @Param status query string false "Comma separated statuses"
// @Param mr_code query string false "MR code"
// @Param from query string false "YYYY-MM-DD"
// @Param to query string false "YYYY-MM-DD"
// @Success 200 {object} response.Envelope
// @Router /reports/languages [get]
func (h *ReportHandler) Languages(c *gin.Context) {
	var q dto.LanguageReportQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	actor := actorFromContext(c)
	if format := strings.ToLower(strings.TrimSpace(q.Format)); format == "" || format == "json" {
		rows, err := h.service.LanguageRows(c.Request.Context(), q, actor)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, rows, nil, map[string]interface{}{"count": len(rows)})
		return
	}
	file, err := h.service.Export(c.Request.Context(), q, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Body)
}

// Summary godoc
// @Summary Dashboard counts
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/summary [get]
func (h *ReportHandler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.MarkCacheHit(c, summary.FromCache)
	response.JSON(c, http.StatusOK, summary, nil, middleware.Meta(c))
}

// Sync godoc
// @Summary Rebuild the submissions workbook now
// @Tags Reports
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /reports/sync [post]
func (h *ReportHandler) Sync(c *gin.Context) {
	res, err := h.service.SyncWorkbook(c.Request.Context())
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "workbook sync failed"))
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
