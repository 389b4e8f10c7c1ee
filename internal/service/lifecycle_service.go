package service

import (
	"context"
	"database/sql"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
)

type lifecycleStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	Mutate(ctx context.Context, id string, fn func(sub *models.Submission) error) (*models.Submission, error)
	HardDelete(ctx context.Context, id string) error
}

type mediaLister interface {
	ListAudio(ctx context.Context, submissionID string) ([]models.GeneratedAudio, error)
	ListVideos(ctx context.Context, submissionID string) ([]models.GeneratedVideo, error)
}

// LifecycleService applies the explicit admin transitions of a submission.
type LifecycleService struct {
	store       lifecycleStore
	media       mediaLister
	objects     storage.ObjectStore
	validator   *validator.Validate
	sideEffects *SideEffects
	audit       auditWriter
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
}

// LifecycleServiceOption configures the service.
type LifecycleServiceOption func(*LifecycleService)

// WithLifecycleSideEffects enables sync requests after transitions.
func WithLifecycleSideEffects(side *SideEffects) LifecycleServiceOption {
	return func(s *LifecycleService) { s.sideEffects = side }
}

// WithLifecycleAudit records transitions.
func WithLifecycleAudit(audit auditWriter) LifecycleServiceOption {
	return func(s *LifecycleService) { s.audit = audit }
}

// WithLifecycleCache invalidates cached views.
func WithLifecycleCache(cache *CacheService) LifecycleServiceOption {
	return func(s *LifecycleService) { s.cache = cache }
}

// WithLifecycleLogger overrides the logger.
func WithLifecycleLogger(logger *zap.Logger) LifecycleServiceOption {
	return func(s *LifecycleService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLifecycleClock overrides the clock.
func WithLifecycleClock(now func() time.Time) LifecycleServiceOption {
	return func(s *LifecycleService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewLifecycleService constructs the service.
func NewLifecycleService(store lifecycleStore, media mediaLister, objects storage.ObjectStore, opts ...LifecycleServiceOption) *LifecycleService {
	svc := &LifecycleService{
		store:     store,
		media:     media,
		objects:   objects,
		validator: validator.New(),
		logger:    zap.NewNop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Complete moves an approved submission to completed.
func (s *LifecycleService) Complete(ctx context.Context, id string, actor Actor) (*models.Submission, error) {
	now := s.now()
	sub, err := s.store.Mutate(ctx, id, func(locked *models.Submission) error {
		next, err := workflow.Apply(locked, workflow.EventComplete)
		if err != nil {
			return err
		}
		locked.Status = next
		locked.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to complete submission")
	}
	s.after(ctx, sub.ID, "submission_completed", actor, models.AuditActionSubmissionDone, nil)
	return sub, nil
}

// Fail marks a non-terminal submission failed with a reason.
func (s *LifecycleService) Fail(ctx context.Context, id string, req dto.FailSubmissionRequest, actor Actor) (*models.Submission, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reason is required")
	}
	now := s.now()
	sub, err := s.store.Mutate(ctx, id, func(locked *models.Submission) error {
		next, err := workflow.Apply(locked, workflow.EventFail)
		if err != nil {
			return err
		}
		locked.Status = next
		locked.FailureReason = &req.Reason
		locked.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to fail submission")
	}
	s.after(ctx, sub.ID, "submission_failed", actor, models.AuditActionSubmissionFail, map[string]interface{}{"reason": req.Reason})
	return sub, nil
}

// Retry moves every failed submission in ids back to its pre-processing
// stage. Other ids are reported as skipped and never fail the batch.
func (s *LifecycleService) Retry(ctx context.Context, req dto.RetrySubmissionsRequest, actor Actor) (*dto.RetrySubmissionsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "ids must be a non-empty list of submission ids")
	}
	resp := &dto.RetrySubmissionsResponse{Retried: []dto.RetriedSubmission{}, Skipped: []dto.SkippedSubmission{}}
	seen := make(map[string]bool, len(req.IDs))
	for _, id := range req.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		sub, err := s.store.Mutate(ctx, id, func(locked *models.Submission) error {
			next, err := workflow.Apply(locked, workflow.EventRetry)
			if err != nil {
				return err
			}
			locked.Status = next
			locked.FailureReason = nil
			locked.CompletedAt = nil
			return nil
		})
		if err != nil {
			resp.Skipped = append(resp.Skipped, dto.SkippedSubmission{ID: id, Reason: skipReason(err)})
			if !isExpectedSkip(err) {
				s.logger.Warn("retry failed", zap.String("submission_id", id), zap.Error(err))
			}
			continue
		}
		resp.Retried = append(resp.Retried, dto.RetriedSubmission{ID: sub.ID, Status: sub.Status})
		s.after(ctx, sub.ID, "submission_retried", actor, models.AuditActionSubmissionRetry, map[string]interface{}{"status": sub.Status})
	}
	return resp, nil
}

// SoftDelete marks a submission deleted. Rows and objects are kept.
func (s *LifecycleService) SoftDelete(ctx context.Context, id string, actor Actor) (*models.Submission, error) {
	now := s.now()
	sub, err := s.store.Mutate(ctx, id, func(locked *models.Submission) error {
		next, err := workflow.Apply(locked, workflow.EventDelete)
		if err != nil {
			return err
		}
		locked.Status = next
		locked.DeletedAt = &now
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to delete submission")
	}
	s.after(ctx, sub.ID, "submission_deleted", actor, models.AuditActionSubmissionDelete, map[string]interface{}{"mode": "soft"})
	return sub, nil
}

// Purge hard deletes a submission with its child rows, then removes stored
// objects best-effort.
func (s *LifecycleService) Purge(ctx context.Context, id string, actor Actor) (*dto.PurgeResponse, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	keys := s.objectKeys(ctx, sub)

	if err := s.store.HardDelete(ctx, id); err != nil {
		return nil, translateError(err, "failed to purge submission")
	}

	resp := &dto.PurgeResponse{SubmissionID: id}
	if s.objects != nil {
		for _, key := range keys {
			if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
				s.logger.Warn("failed to remove object", zap.String("submission_id", id), zap.String("key", key), zap.Error(err))
				resp.ObjectsFailed = append(resp.ObjectsFailed, key)
				continue
			}
			resp.ObjectsRemoved++
		}
	}
	s.after(ctx, id, "submission_purged", actor, models.AuditActionSubmissionPurge, map[string]interface{}{
		"objects_removed": resp.ObjectsRemoved,
		"objects_failed":  len(resp.ObjectsFailed),
	})
	return resp, nil
}

// objectKeys lists the stored objects owned by the submission. Paths outside
// its storage folder, such as editor-registered videos or referenced GCS
// uploads, are left in place.
func (s *LifecycleService) objectKeys(ctx context.Context, sub *models.Submission) []string {
	prefix := submissionPrefix(sub) + "/"
	seen := map[string]bool{}
	var keys []string
	add := func(key *string) {
		if key == nil || *key == "" || seen[*key] {
			return
		}
		seen[*key] = true
		if !strings.HasPrefix(path.Clean(*key), prefix) {
			s.logger.Debug("keeping object outside submission folder",
				zap.String("submission_id", sub.ID), zap.String("key", *key))
			return
		}
		keys = append(keys, *key)
	}
	add(&sub.ImagePath)
	for i := range sub.AudioPaths {
		add(&sub.AudioPaths[i])
	}
	if s.media == nil {
		return keys
	}
	if audios, err := s.media.ListAudio(ctx, sub.ID); err == nil {
		for _, a := range audios {
			add(a.StoragePath)
		}
	} else {
		s.logger.Warn("failed to list audio for purge", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	if videos, err := s.media.ListVideos(ctx, sub.ID); err == nil {
		for _, v := range videos {
			add(v.StoragePath)
		}
	} else {
		s.logger.Warn("failed to list videos for purge", zap.String("submission_id", sub.ID), zap.Error(err))
	}
	return keys
}

func (s *LifecycleService) after(ctx context.Context, id, reason string, actor Actor, action string, details map[string]interface{}) {
	s.cache.InvalidateSubmission(ctx, id)
	s.sideEffects.RequestSync(reason, id)
	recordAudit(ctx, s.audit, s.logger, actor, action, id, details)
}

func skipReason(err error) string {
	var transition *workflow.TransitionError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "not found"
	case errors.As(err, &transition):
		return "status is " + transition.From
	default:
		return "retry failed"
	}
}

func isExpectedSkip(err error) bool {
	var transition *workflow.TransitionError
	return errors.Is(err, sql.ErrNoRows) || errors.As(err, &transition)
}
