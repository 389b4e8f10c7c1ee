package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/messaging"
)

type qcStore interface {
	Transition(ctx context.Context, id string, entry models.QCHistory, planner repository.QCPlanner) (*models.Submission, *models.QCHistory, error)
	History(ctx context.Context, submissionID string) ([]models.QCHistory, error)
}

type submissionLister interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
}

// QCService runs the review gate.
type QCService struct {
	store       qcStore
	submissions submissionLister
	lease       time.Duration
	validator   *validator.Validate
	sideEffects *SideEffects
	audit       auditWriter
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
}

// QCServiceOption configures the service.
type QCServiceOption func(*QCService)

// WithQCSideEffects enables sync and MR notifications on decisions.
func WithQCSideEffects(side *SideEffects) QCServiceOption {
	return func(s *QCService) { s.sideEffects = side }
}

// WithQCAudit records decisions.
func WithQCAudit(audit auditWriter) QCServiceOption {
	return func(s *QCService) { s.audit = audit }
}

// WithQCMetrics counts transitions.
func WithQCMetrics(metrics *MetricsService) QCServiceOption {
	return func(s *QCService) { s.metrics = metrics }
}

// WithQCCache invalidates cached views.
func WithQCCache(cache *CacheService) QCServiceOption {
	return func(s *QCService) { s.cache = cache }
}

// WithQCLogger overrides the logger.
func WithQCLogger(logger *zap.Logger) QCServiceOption {
	return func(s *QCService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQCClock overrides the clock.
func WithQCClock(now func() time.Time) QCServiceOption {
	return func(s *QCService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewQCService constructs the service.
func NewQCService(store qcStore, submissions submissionLister, lease time.Duration, opts ...QCServiceOption) *QCService {
	if lease <= 0 {
		lease = 30 * time.Minute
	}
	svc := &QCService{
		store:       store,
		submissions: submissions,
		lease:       lease,
		validator:   validator.New(),
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// StartReview takes or renews the review lease.
func (s *QCService) StartReview(ctx context.Context, id string, req dto.QCActionRequest, actor Actor) (*dto.QCResponse, error) {
	return s.transition(ctx, id, models.QCActionStartReview, req, actor)
}

// Approve passes the submission.
func (s *QCService) Approve(ctx context.Context, id string, req dto.QCActionRequest, actor Actor) (*dto.QCResponse, error) {
	return s.transition(ctx, id, models.QCActionApprove, req, actor)
}

// Reject fails the review.
func (s *QCService) Reject(ctx context.Context, id string, req dto.QCActionRequest, actor Actor) (*dto.QCResponse, error) {
	return s.transition(ctx, id, models.QCActionReject, req, actor)
}

// RequestChanges sends the submission back for rework.
func (s *QCService) RequestChanges(ctx context.Context, id string, req dto.QCActionRequest, actor Actor) (*dto.QCResponse, error) {
	return s.transition(ctx, id, models.QCActionRequestChanges, req, actor)
}

func (s *QCService) transition(ctx context.Context, id string, action models.QCAction, req dto.QCActionRequest, actor Actor) (*dto.QCResponse, error) {
	req.ReviewerName = strings.TrimSpace(req.ReviewerName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "reviewer_name is required")
	}

	entry := models.QCHistory{
		Reviewer: req.ReviewerName,
		Notes:    strPtr(strings.TrimSpace(req.Notes)),
		Reasons:  req.Reasons,
	}
	now := s.now()
	sub, history, err := s.store.Transition(ctx, id, entry, func(locked *models.Submission) (workflow.QCPlan, error) {
		return workflow.PlanQC(locked, action, req.ReviewerName, now, s.lease)
	})
	if err != nil {
		return nil, translateError(err, "failed to apply qc action")
	}

	s.metrics.IncQCTransition(string(action))
	s.cache.InvalidateSubmission(ctx, sub.ID)
	if action != models.QCActionStartReview {
		recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionQCDecision, sub.ID, map[string]interface{}{
			"action":          action,
			"reviewer":        req.ReviewerName,
			"previous_status": history.PreviousStatus,
			"new_status":      history.NewStatus,
		})
		s.sideEffects.RequestSync("qc_"+string(action), sub.ID)
		s.notifyMR(sub, action, req)
	}

	return &dto.QCResponse{
		SubmissionID:     sub.ID,
		Status:           sub.Status,
		QCStatus:         sub.QCStatus,
		QCReviewer:       sub.QCReviewer,
		QCLeaseExpiresAt: sub.QCLeaseExpiresAt,
		QCReviewedAt:     sub.QCReviewedAt,
		History:          history,
	}, nil
}

func (s *QCService) notifyMR(sub *models.Submission, action models.QCAction, req dto.QCActionRequest) {
	if sub.MRPhone == nil {
		return
	}
	var outcome string
	switch action {
	case models.QCActionApprove:
		outcome = "was approved"
	case models.QCActionReject:
		outcome = "was rejected"
	default:
		outcome = "needs changes"
	}
	body := fmt.Sprintf("Submission for Dr. %s %s by QC.", sub.DoctorName, outcome)
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		body += " Notes: " + notes
	}
	s.sideEffects.Notify(messaging.Message{
		To:       *sub.MRPhone,
		Body:     body,
		Template: "qc_" + string(action),
		Metadata: map[string]string{"submission_id": sub.ID, "qc_status": string(sub.QCStatus)},
	})
}

// Queue lists submissions waiting for review, oldest first.
func (s *QCService) Queue(ctx context.Context, page, pageSize int) ([]models.Submission, *models.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filter := models.SubmissionFilter{
		Status:    []models.SubmissionStatus{models.StatusPendingQC},
		Page:      page,
		PageSize:  pageSize,
		SortOrder: "ASC",
	}
	items, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list qc queue")
	}
	return items, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// History returns the QC ledger of a submission.
func (s *QCService) History(ctx context.Context, id string) ([]models.QCHistory, error) {
	if _, err := s.submissions.GetByID(ctx, id); err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	items, err := s.store.History(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load qc history")
	}
	if items == nil {
		items = []models.QCHistory{}
	}
	return items, nil
}
