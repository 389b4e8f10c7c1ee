package handler

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
)

type trackerService interface {
	RegisterAudio(ctx context.Context, submissionID, languageCode string, req dto.RegisterMediaRequest, actor service.Actor) (*dto.RegisterAudioResponse, error)
	RegisterVideo(ctx context.Context, submissionID, languageCode string, req dto.RegisterMediaRequest, actor service.Actor) (*dto.RegisterVideoResponse, error)
	Languages(ctx context.Context, submissionID string, actor service.Actor) (*dto.LanguagesResponse, error)
}

// TokenResolver maps a signed download token to an object key.
type TokenResolver interface {
	ResolveToken(token string) (string, error)
}

type objectReader interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

const sniffBytes = 512

// MediaHandler records per-language media results and serves signed
// downloads from local storage.
type MediaHandler struct {
	tracker  trackerService
	objects  objectReader
	resolver TokenResolver
}

// NewMediaHandler builds the handler. resolver may be nil when the object
// store serves its own URLs.
func NewMediaHandler(tracker trackerService, objects objectReader, resolver TokenResolver) *MediaHandler {
	return &MediaHandler{tracker: tracker, objects: objects, resolver: resolver}
}

// RegisterAudio godoc
// @Summary Register generated audio for a language
// @Tags Media
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param lang path string true "Language code"
// @Param payload body dto.RegisterMediaRequest true "Audio result"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/audio/{lang} [post]
func (h *MediaHandler) RegisterAudio(c *gin.Context) {
	var req dto.RegisterMediaRequest
	if !bindJSON(c, &req, "invalid audio payload") {
		return
	}
	res, err := h.tracker.RegisterAudio(c.Request.Context(), c.Param("id"), c.Param("lang"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// RegisterVideo godoc
// @Summary Register a rendered video for a language
// @Description Moves the submission to pending_qc once every selected language has a completed video
// @Tags Media
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param lang path string true "Language code"
// @Param payload body dto.RegisterMediaRequest true "Video result"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id}/video/{lang} [post]
func (h *MediaHandler) RegisterVideo(c *gin.Context) {
	var req dto.RegisterMediaRequest
	if !bindJSON(c, &req, "invalid video payload") {
		return
	}
	res, err := h.tracker.RegisterVideo(c.Request.Context(), c.Param("id"), c.Param("lang"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Languages godoc
// @Summary Per-language progress
// @Tags Media
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/languages [get]
func (h *MediaHandler) Languages(c *gin.Context) {
	res, err := h.tracker.Languages(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Download godoc
// @Summary Download a stored object with a signed token
// @Tags Media
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /media/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	if h.resolver == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "signed downloads are disabled"))
		return
	}
	key, err := h.resolver.ResolveToken(c.Query("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, http.StatusUnauthorized, "invalid or expired download token"))
		return
	}
	body, err := h.objects.Get(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "object not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read object"))
		return
	}
	defer body.Close()

	reader := bufio.NewReaderSize(body, sniffBytes)
	head, _ := reader.Peek(sniffBytes)
	contentType := mimetype.Detect(head).String()
	c.DataFromReader(http.StatusOK, -1, contentType, reader, map[string]string{
		"Content-Disposition": `inline; filename="` + path.Base(key) + `"`,
	})
}
