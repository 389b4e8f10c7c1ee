package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

type consentService interface {
	Send(ctx context.Context, submissionID string, actor service.Actor) (*dto.SendConsentResponse, error)
	Verify(ctx context.Context, submissionID string, req dto.VerifyConsentRequest, actor service.Actor) (*dto.VerifyConsentResponse, error)
	Status(ctx context.Context, submissionID string) (*dto.ConsentStatusResponse, error)
}

// ConsentHandler exposes the doctor consent OTP flow.
type ConsentHandler struct {
	service consentService
}

// NewConsentHandler builds the handler.
func NewConsentHandler(svc consentService) *ConsentHandler {
	return &ConsentHandler{service: svc}
}

// Send godoc
// @Summary Send or resend the consent code
// @Tags Consent
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /consent/{id}/send [post]
func (h *ConsentHandler) Send(c *gin.Context) {
	res, err := h.service.Send(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Verify godoc
// @Summary Verify the consent code
// @Tags Consent
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.VerifyConsentRequest true "Code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /consent/{id}/verify [post]
func (h *ConsentHandler) Verify(c *gin.Context) {
	var req dto.VerifyConsentRequest
	if !bindJSON(c, &req, "invalid consent payload") {
		return
	}
	res, err := h.service.Verify(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Status godoc
// @Summary Consent status
// @Tags Consent
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /consent/{id} [get]
func (h *ConsentHandler) Status(c *gin.Context) {
	res, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}
