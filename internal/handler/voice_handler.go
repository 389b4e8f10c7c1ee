package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

type voiceService interface {
	Process(ctx context.Context, submissionID string, actor service.Actor) (*dto.ProcessVoiceResponse, error)
	Release(ctx context.Context, submissionID string, actor service.Actor) (*dto.ReleaseVoiceResponse, error)
}

// VoiceHandler triggers voice cloning and provider cleanup.
type VoiceHandler struct {
	service voiceService
}

// NewVoiceHandler builds the handler.
func NewVoiceHandler(svc voiceService) *VoiceHandler {
	return &VoiceHandler{service: svc}
}

// Process godoc
// @Summary Clone the doctor's voice and generate per-language audio
// @Tags Voice
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /voice/process/{id} [post]
func (h *VoiceHandler) Process(c *gin.Context) {
	res, err := h.service.Process(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Release godoc
// @Summary Delete the provider-side voice
// @Tags Voice
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /voice/release/{id} [post]
func (h *VoiceHandler) Release(c *gin.Context) {
	res, err := h.service.Release(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
