package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
)

type mediaStore interface {
	UpsertAudio(ctx context.Context, audio *models.GeneratedAudio) error
	RegisterVideo(ctx context.Context, video *models.GeneratedVideo, guard func(sub *models.Submission) error) (*repository.VideoRegistration, error)
	ListAudio(ctx context.Context, submissionID string) ([]models.GeneratedAudio, error)
	ListVideos(ctx context.Context, submissionID string) ([]models.GeneratedVideo, error)
}

// TrackerService records per-language media results and serves the
// per-language progress view.
type TrackerService struct {
	submissions submissionReader
	media       mediaStore
	objects     storage.ObjectStore
	validator   *validator.Validate
	sideEffects *SideEffects
	audit       auditWriter
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
}

// TrackerServiceOption configures the service.
type TrackerServiceOption func(*TrackerService)

// WithTrackerSideEffects enables sync requests after registration.
func WithTrackerSideEffects(side *SideEffects) TrackerServiceOption {
	return func(s *TrackerService) { s.sideEffects = side }
}

// WithTrackerAudit records video registrations.
func WithTrackerAudit(audit auditWriter) TrackerServiceOption {
	return func(s *TrackerService) { s.audit = audit }
}

// WithTrackerMetrics counts media upserts.
func WithTrackerMetrics(metrics *MetricsService) TrackerServiceOption {
	return func(s *TrackerService) { s.metrics = metrics }
}

// WithTrackerCache caches the languages view.
func WithTrackerCache(cache *CacheService) TrackerServiceOption {
	return func(s *TrackerService) { s.cache = cache }
}

// WithTrackerLogger overrides the logger.
func WithTrackerLogger(logger *zap.Logger) TrackerServiceOption {
	return func(s *TrackerService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTrackerService constructs the service. objects may be nil, in which case
// public URLs are only taken from requests.
func NewTrackerService(submissions submissionReader, media mediaStore, objects storage.ObjectStore, opts ...TrackerServiceOption) *TrackerService {
	svc := &TrackerService{
		submissions: submissions,
		media:       media,
		objects:     objects,
		validator:   validator.New(),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// RegisterVideo upserts the video row for one language and recomputes the
// aggregate status in the same transaction.
func (s *TrackerService) RegisterVideo(ctx context.Context, submissionID, languageCode string, req dto.RegisterMediaRequest, actor Actor) (*dto.RegisterVideoResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid video payload")
	}
	if err := checkResult(req); err != nil {
		return nil, err
	}
	lang := strings.ToLower(strings.TrimSpace(languageCode))

	video := &models.GeneratedVideo{SubmissionID: submissionID, LanguageCode: lang, DurationSeconds: req.DurationSeconds}
	s.fillResult(req, &video.Status, &video.StoragePath, &video.PublicURL, &video.ErrorMessage)

	reg, err := s.media.RegisterVideo(ctx, video, func(sub *models.Submission) error {
		return s.guard(sub, lang, actor)
	})
	if err != nil {
		return nil, translateError(err, "failed to register video")
	}

	s.metrics.IncMediaUpsert("video", string(video.Status))
	s.cache.InvalidateSubmission(ctx, submissionID)
	s.sideEffects.RequestSync("video_registered", submissionID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionVideoRegister, submissionID, map[string]interface{}{
		"language_code": lang,
		"status":        video.Status,
		"aggregate":     reg.Submission.Status,
	})
	if reg.Derivation.Changed {
		s.logger.Info("submission ready for qc",
			zap.String("submission_id", submissionID),
			zap.Bool("qc_reset", reg.Derivation.ResetQC))
	}

	return &dto.RegisterVideoResponse{
		SubmissionID:      submissionID,
		LanguageCode:      lang,
		Video:             reg.Video,
		Status:            reg.Submission.Status,
		QCStatus:          reg.Submission.QCStatus,
		AllVideosComplete: reg.Derivation.AllComplete(),
		CompletedVideos:   reg.Derivation.Completed,
		TotalLanguages:    reg.Derivation.Total,
	}, nil
}

// RegisterAudio upserts the audio row for one language. Audio never moves the
// aggregate status.
func (s *TrackerService) RegisterAudio(ctx context.Context, submissionID, languageCode string, req dto.RegisterMediaRequest, actor Actor) (*dto.RegisterAudioResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid audio payload")
	}
	if err := checkResult(req); err != nil {
		return nil, err
	}
	lang := strings.ToLower(strings.TrimSpace(languageCode))

	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	if err := s.guard(sub, lang, actor); err != nil {
		return nil, translateError(err, "failed to register audio")
	}

	audio := &models.GeneratedAudio{SubmissionID: submissionID, LanguageCode: lang, DurationSeconds: req.DurationSeconds}
	s.fillResult(req, &audio.Status, &audio.StoragePath, &audio.PublicURL, &audio.ErrorMessage)
	if err := s.media.UpsertAudio(ctx, audio); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register audio")
	}

	s.metrics.IncMediaUpsert("audio", string(audio.Status))
	s.cache.InvalidateSubmission(ctx, submissionID)
	return &dto.RegisterAudioResponse{SubmissionID: submissionID, LanguageCode: lang, Audio: audio}, nil
}

// Languages returns per-language progress in selection order.
func (s *TrackerService) Languages(ctx context.Context, submissionID string, actor Actor) (*dto.LanguagesResponse, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	if !canSee(actor, sub) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}

	key := cacheKeyLanguages + submissionID
	var cached dto.LanguagesResponse
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	audios, err := s.media.ListAudio(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audio")
	}
	videos, err := s.media.ListVideos(ctx, submissionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load videos")
	}

	states, summary := workflow.Summarize(sub, audios, videos)
	resp := &dto.LanguagesResponse{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		QCStatus:     sub.QCStatus,
		Languages:    states,
		Summary:      summary,
	}
	s.cache.Set(ctx, key, resp, 0)
	return resp, nil
}

func (s *TrackerService) guard(sub *models.Submission, lang string, actor Actor) error {
	if !canSee(actor, sub) {
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	if sub.Status == models.StatusDeleted {
		return &workflow.TransitionError{From: string(sub.Status), Event: "register_media"}
	}
	if !sub.HasLanguage(lang) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrNotFound, "language is not selected for this submission"),
			map[string]interface{}{"language_code": lang, "selected_languages": []string(sub.SelectedLanguages)},
		)
	}
	return nil
}

// checkResult rejects bodies that carry neither a path nor a status, and
// completed results without a stored object.
func checkResult(req dto.RegisterMediaRequest) error {
	gcsPath := strings.TrimSpace(req.GCSPath)
	status := strings.TrimSpace(req.Status)
	if gcsPath == "" && status == "" {
		return appErrors.Clone(appErrors.ErrValidation, "gcsPath or status is required")
	}
	if gcsPath == "" && status == string(models.MediaCompleted) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "gcsPath is required for completed media"),
			map[string]interface{}{"status": status},
		)
	}
	return nil
}

func (s *TrackerService) fillResult(req dto.RegisterMediaRequest, status *models.MediaStatus, storagePath, publicURL, errMsg **string) {
	gcsPath := strings.TrimSpace(req.GCSPath)
	switch {
	case req.Status != "":
		*status = models.MediaStatus(req.Status)
	case gcsPath != "":
		*status = models.MediaCompleted
	default:
		*status = models.MediaFailed
	}
	*storagePath = strPtr(gcsPath)
	url := strings.TrimSpace(req.PublicURL)
	if url == "" && gcsPath != "" && s.objects != nil {
		url = s.objects.PublicURL(gcsPath)
	}
	*publicURL = strPtr(url)
	msg := strings.TrimSpace(req.ErrorMessage)
	if msg == "" && *status == models.MediaFailed && gcsPath == "" {
		msg = "no media path provided"
	}
	*errMsg = strPtr(msg)
}
