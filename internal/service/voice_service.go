package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/media"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
	"github.com/noah-isme/doctor-voice-api/pkg/voiceclone"
)

type voiceProvider interface {
	CreateVoice(ctx context.Context, in voiceclone.CreateVoiceRequest) (*voiceclone.Voice, error)
	SpeechToSpeech(ctx context.Context, voiceID string, source io.Reader, filename string) ([]byte, error)
	DeleteVoice(ctx context.Context, voiceID string) error
}

type voiceSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	Mutate(ctx context.Context, id string, fn func(sub *models.Submission) error) (*models.Submission, error)
	ListReleaseCandidates(ctx context.Context, limit int) ([]models.Submission, error)
}

type audioUpserter interface {
	UpsertAudio(ctx context.Context, audio *models.GeneratedAudio) error
}

// VoiceConfig tunes voice processing.
type VoiceConfig struct {
	MasterAudioKey   string
	ReleaseCooldown  time.Duration
	RemoveBackground bool
	SweepBatch       int
}

// VoiceService drives cloning, per-language speech generation and clone release.
type VoiceService struct {
	store       voiceSubmissionStore
	audio       audioUpserter
	provider    voiceProvider
	objects     storage.ObjectStore
	cfg         VoiceConfig
	sideEffects *SideEffects
	audit       auditWriter
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
}

// VoiceServiceOption configures the service.
type VoiceServiceOption func(*VoiceService)

// WithVoiceSideEffects enables sync requests after processing.
func WithVoiceSideEffects(side *SideEffects) VoiceServiceOption {
	return func(s *VoiceService) { s.sideEffects = side }
}

// WithVoiceAudit records clone and release events.
func WithVoiceAudit(audit auditWriter) VoiceServiceOption {
	return func(s *VoiceService) { s.audit = audit }
}

// WithVoiceMetrics counts provider outcomes.
func WithVoiceMetrics(metrics *MetricsService) VoiceServiceOption {
	return func(s *VoiceService) { s.metrics = metrics }
}

// WithVoiceCache invalidates cached views.
func WithVoiceCache(cache *CacheService) VoiceServiceOption {
	return func(s *VoiceService) { s.cache = cache }
}

// WithVoiceLogger overrides the logger.
func WithVoiceLogger(logger *zap.Logger) VoiceServiceOption {
	return func(s *VoiceService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVoiceClock overrides the clock.
func WithVoiceClock(now func() time.Time) VoiceServiceOption {
	return func(s *VoiceService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewVoiceService constructs the service.
func NewVoiceService(store voiceSubmissionStore, audio audioUpserter, provider voiceProvider, objects storage.ObjectStore, cfg VoiceConfig, opts ...VoiceServiceOption) *VoiceService {
	if cfg.MasterAudioKey == "" {
		cfg.MasterAudioKey = "master/{lang}.mp3"
	}
	if cfg.SweepBatch <= 0 {
		cfg.SweepBatch = 50
	}
	svc := &VoiceService{
		store:    store,
		audio:    audio,
		provider: provider,
		objects:  objects,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Process clones the doctor's voice if needed and generates speech for every
// selected language. A language failure is recorded on its audio row and does
// not fail the request.
func (s *VoiceService) Process(ctx context.Context, submissionID string, actor Actor) (*dto.ProcessVoiceResponse, error) {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	if !canSee(actor, sub) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	if sub.ConsentStatus != models.ConsentVerified {
		return nil, appErrors.Clone(appErrors.ErrConsentRequired, "")
	}

	var prior models.SubmissionStatus
	sub, err = s.store.Mutate(ctx, submissionID, func(locked *models.Submission) error {
		prior = locked.Status
		if locked.ConsentStatus != models.ConsentVerified {
			return appErrors.Clone(appErrors.ErrConsentRequired, "")
		}
		next, err := workflow.Apply(locked, workflow.EventProcessingStarted)
		if err != nil {
			return err
		}
		locked.Status = next
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to start processing")
	}

	if sub.VoiceCloneStatus != models.VoiceCloneCompleted || sub.VoiceID == nil {
		if sub, err = s.clone(ctx, sub, prior, actor); err != nil {
			return nil, err
		}
	}

	resp := &dto.ProcessVoiceResponse{
		SubmissionID:     sub.ID,
		Status:           sub.Status,
		VoiceCloneStatus: sub.VoiceCloneStatus,
		VoiceID:          sub.VoiceID,
		Results:          make([]dto.LanguageResult, 0, len(sub.SelectedLanguages)),
	}
	for _, lang := range sub.SelectedLanguages {
		result := s.generate(ctx, sub, lang)
		if result.Status == models.MediaCompleted {
			resp.Completed++
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, result)
	}

	s.cache.InvalidateSubmission(ctx, sub.ID)
	s.sideEffects.RequestSync("voice_processed", sub.ID)
	return resp, nil
}

// clone creates the provider voice. On failure the submission status goes
// back to prior so a failed attempt leaves the workflow where it was.
func (s *VoiceService) clone(ctx context.Context, sub *models.Submission, prior models.SubmissionStatus, actor Actor) (*models.Submission, error) {
	samples := make([]voiceclone.Sample, 0, len(sub.AudioPaths))
	for _, key := range sub.AudioPaths {
		data, err := s.readObject(ctx, key)
		if err != nil {
			s.restoreStatus(ctx, sub.ID, prior)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load voice sample")
		}
		samples = append(samples, voiceclone.Sample{Filename: path.Base(key), Data: data})
	}

	voice, cloneErr := s.provider.CreateVoice(ctx, voiceclone.CreateVoiceRequest{
		Name:                  fmt.Sprintf("%s (%s)", sub.DoctorName, shortID(sub.ID)),
		Description:           "Doctor voice clone for " + sub.DoctorName,
		Labels:                map[string]string{"submission_id": sub.ID, "mr_code": sub.MRCode},
		Samples:               samples,
		RemoveBackgroundNoise: s.cfg.RemoveBackground,
	})

	now := s.now()
	updated, err := s.store.Mutate(ctx, sub.ID, func(locked *models.Submission) error {
		if cloneErr != nil {
			msg := cloneErr.Error()
			locked.VoiceCloneStatus = models.VoiceCloneFailed
			locked.VoiceCloneError = &msg
			if locked.Status == models.StatusProcessing && prior != "" {
				locked.Status = prior
			}
			return nil
		}
		locked.VoiceCloneStatus = models.VoiceCloneCompleted
		locked.VoiceID = &voice.VoiceID
		locked.VoiceCloneError = nil
		locked.VoiceClonedAt = &now
		locked.VoiceReleasedAt = nil
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to record voice clone")
	}

	if cloneErr != nil {
		s.metrics.IncVoiceClone("failed")
		s.logger.Warn("voice clone failed", zap.String("submission_id", sub.ID), zap.Error(cloneErr))
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionVoiceClone, sub.ID, map[string]interface{}{"result": "failed", "error": cloneErr.Error()})
		s.cache.InvalidateSubmission(ctx, sub.ID)
		upstream := appErrors.Wrap(cloneErr, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "voice clone provider failed")
		return nil, appErrors.WithDetails(upstream, map[string]interface{}{
			"voice_clone_status": updated.VoiceCloneStatus,
			"status":             updated.Status,
		})
	}

	s.metrics.IncVoiceClone("completed")
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionVoiceClone, sub.ID, map[string]interface{}{"result": "completed", "voice_id": voice.VoiceID})
	return updated, nil
}

func (s *VoiceService) restoreStatus(ctx context.Context, id string, prior models.SubmissionStatus) {
	if prior == "" || prior == models.StatusProcessing {
		return
	}
	_, err := s.store.Mutate(ctx, id, func(locked *models.Submission) error {
		if locked.Status == models.StatusProcessing {
			locked.Status = prior
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("failed to restore status after clone error", zap.String("submission_id", id), zap.Error(err))
	}
}

func (s *VoiceService) generate(ctx context.Context, sub *models.Submission, lang string) dto.LanguageResult {
	row := &models.GeneratedAudio{SubmissionID: sub.ID, LanguageCode: lang, Status: models.MediaProcessing}
	if err := s.audio.UpsertAudio(ctx, row); err != nil {
		s.logger.Warn("failed to mark audio processing", zap.String("submission_id", sub.ID), zap.String("language", lang), zap.Error(err))
	}

	key := path.Join(submissionPrefix(sub), "audio", lang+".mp3")
	out, err := s.synthesize(ctx, *sub.VoiceID, lang)
	var obj storage.Object
	if err == nil {
		obj, err = s.objects.Put(ctx, key, bytes.NewReader(out), int64(len(out)), "audio/mpeg")
	}

	row = &models.GeneratedAudio{SubmissionID: sub.ID, LanguageCode: lang}
	if err != nil {
		msg := err.Error()
		row.Status = models.MediaFailed
		row.ErrorMessage = &msg
	} else {
		row.Status = models.MediaCompleted
		row.StoragePath = &obj.Key
		row.PublicURL = strPtr(obj.URL)
		if seconds, derr := media.MP3Duration(bytes.NewReader(out)); derr == nil && seconds > 0 {
			row.DurationSeconds = &seconds
		}
	}
	if uerr := s.audio.UpsertAudio(ctx, row); uerr != nil {
		s.logger.Error("failed to record audio result", zap.String("submission_id", sub.ID), zap.String("language", lang), zap.Error(uerr))
		msg := uerr.Error()
		row.Status = models.MediaFailed
		row.ErrorMessage = &msg
	}
	s.metrics.IncMediaUpsert("audio", string(row.Status))

	return dto.LanguageResult{
		LanguageCode:    lang,
		Status:          row.Status,
		AudioURL:        row.PublicURL,
		StoragePath:     row.StoragePath,
		DurationSeconds: row.DurationSeconds,
		Error:           row.ErrorMessage,
	}
}

func (s *VoiceService) synthesize(ctx context.Context, voiceID, lang string) ([]byte, error) {
	masterKey := strings.ReplaceAll(s.cfg.MasterAudioKey, "{lang}", lang)
	master, err := s.readObject(ctx, masterKey)
	if err != nil {
		return nil, fmt.Errorf("load master audio %s: %w", masterKey, err)
	}
	out, err := s.provider.SpeechToSpeech(ctx, voiceID, bytes.NewReader(master), path.Base(masterKey))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("speech to speech returned no audio")
	}
	return out, nil
}

// Release deletes the provider voice once the submission has settled and the
// cooldown has passed.
func (s *VoiceService) Release(ctx context.Context, submissionID string, actor Actor) (*dto.ReleaseVoiceResponse, error) {
	sub, err := s.store.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	if sub.VoiceCloneStatus != models.VoiceCloneCompleted || sub.VoiceID == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "submission has no active voice clone")
	}
	if !workflow.ReleaseEligible(sub, s.now(), s.cfg.ReleaseCooldown) {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrPreconditionFailed, "voice clone is not yet eligible for release"),
			map[string]interface{}{"status": sub.Status, "cooldown": s.cfg.ReleaseCooldown.String()},
		)
	}
	return s.release(ctx, sub, actor)
}

// SweepReleases releases every eligible clone in one batch.
func (s *VoiceService) SweepReleases(ctx context.Context) (*dto.ReleaseSweepResult, error) {
	candidates, err := s.store.ListReleaseCandidates(ctx, s.cfg.SweepBatch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list release candidates")
	}
	result := &dto.ReleaseSweepResult{Scanned: len(candidates), Released: []string{}, Failed: []string{}}
	now := s.now()
	for i := range candidates {
		sub := &candidates[i]
		if !workflow.ReleaseEligible(sub, now, s.cfg.ReleaseCooldown) {
			continue
		}
		if _, err := s.release(ctx, sub, SystemActor); err != nil {
			s.logger.Warn("voice release failed", zap.String("submission_id", sub.ID), zap.Error(err))
			result.Failed = append(result.Failed, sub.ID)
			continue
		}
		result.Released = append(result.Released, sub.ID)
	}
	if len(result.Released) > 0 || len(result.Failed) > 0 {
		s.logger.Info("voice release sweep finished", zap.Int("released", len(result.Released)), zap.Int("failed", len(result.Failed)))
	}
	return result, nil
}

func (s *VoiceService) release(ctx context.Context, sub *models.Submission, actor Actor) (*dto.ReleaseVoiceResponse, error) {
	voiceID := *sub.VoiceID
	if err := s.provider.DeleteVoice(ctx, voiceID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstream.Code, appErrors.ErrUpstream.Status, "failed to delete provider voice")
	}
	now := s.now()
	updated, err := s.store.Mutate(ctx, sub.ID, func(locked *models.Submission) error {
		if locked.VoiceCloneStatus != models.VoiceCloneCompleted || locked.VoiceID == nil || *locked.VoiceID != voiceID {
			return appErrors.Clone(appErrors.ErrConflict, "voice clone changed during release")
		}
		locked.VoiceCloneStatus = models.VoiceCloneDeleted
		locked.VoiceReleasedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to record voice release")
	}
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionVoiceRelease, sub.ID, map[string]interface{}{"voice_id": voiceID})
	s.cache.InvalidateSubmission(ctx, sub.ID)
	return &dto.ReleaseVoiceResponse{
		SubmissionID:     updated.ID,
		VoiceCloneStatus: updated.VoiceCloneStatus,
		ReleasedAt:       updated.VoiceReleasedAt,
	}, nil
}

func (s *VoiceService) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
