package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/messaging"
)

type consentStore interface {
	Issue(ctx context.Context, otp *models.ConsentOTP, guard func(sub *models.Submission) error) error
	Get(ctx context.Context, submissionID string) (*models.ConsentOTP, error)
	Verify(ctx context.Context, submissionID string, check func(sub *models.Submission, otp *models.ConsentOTP) error) (*models.Submission, *models.ConsentOTP, error)
}

type submissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
}

// ConsentConfig tunes OTP issuance.
type ConsentConfig struct {
	OTPLength       int
	TTL             time.Duration
	MaxAttempts     int
	MessageTemplate string
	HashCost        int
}

// ConsentService issues and verifies consent codes.
type ConsentService struct {
	store       consentStore
	submissions submissionReader
	cfg         ConsentConfig
	validator   *validator.Validate
	sideEffects *SideEffects
	audit       auditWriter
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	generate    func(length int) (string, error)
}

// ConsentServiceOption configures the service.
type ConsentServiceOption func(*ConsentService)

// WithConsentSideEffects routes OTP messages and sync requests.
func WithConsentSideEffects(side *SideEffects) ConsentServiceOption {
	return func(s *ConsentService) { s.sideEffects = side }
}

// WithConsentAudit records consent events.
func WithConsentAudit(audit auditWriter) ConsentServiceOption {
	return func(s *ConsentService) { s.audit = audit }
}

// WithConsentMetrics counts verification outcomes.
func WithConsentMetrics(metrics *MetricsService) ConsentServiceOption {
	return func(s *ConsentService) { s.metrics = metrics }
}

// WithConsentCache invalidates cached views after verification.
func WithConsentCache(cache *CacheService) ConsentServiceOption {
	return func(s *ConsentService) { s.cache = cache }
}

// WithConsentLogger overrides the logger.
func WithConsentLogger(logger *zap.Logger) ConsentServiceOption {
	return func(s *ConsentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConsentClock overrides the clock.
func WithConsentClock(now func() time.Time) ConsentServiceOption {
	return func(s *ConsentService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithConsentCodeGenerator overrides code generation.
func WithConsentCodeGenerator(gen func(length int) (string, error)) ConsentServiceOption {
	return func(s *ConsentService) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// NewConsentService constructs the service.
func NewConsentService(store consentStore, submissions submissionReader, cfg ConsentConfig, opts ...ConsentServiceOption) *ConsentService {
	if cfg.OTPLength <= 0 {
		cfg.OTPLength = 6
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	if cfg.MessageTemplate == "" {
		cfg.MessageTemplate = "Your consent code is %s. It expires in %d minutes."
	}
	svc := &ConsentService{
		store:       store,
		submissions: submissions,
		cfg:         cfg,
		validator:   validator.New(),
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
		generate:    numericCode,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Send issues a new code generation and queues it for delivery to the doctor.
func (s *ConsentService) Send(ctx context.Context, submissionID string, actor Actor) (*dto.SendConsentResponse, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}

	code, err := s.generate(s.cfg.OTPLength)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate consent code")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.HashCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash consent code")
	}

	otp := &models.ConsentOTP{
		SubmissionID: sub.ID,
		CodeHash:     string(hash),
		MaxAttempts:  s.cfg.MaxAttempts,
		SentTo:       sub.DoctorPhone,
		ExpiresAt:    s.now().Add(s.cfg.TTL),
	}
	err = s.store.Issue(ctx, otp, func(locked *models.Submission) error {
		if locked.Status == models.StatusDeleted {
			return &workflow.TransitionError{From: string(locked.Status), Event: "consent_send"}
		}
		if locked.ConsentStatus == models.ConsentVerified {
			return appErrors.Clone(appErrors.ErrConflict, "consent already verified")
		}
		return nil
	})
	if err != nil {
		return nil, translateError(err, "failed to issue consent code")
	}

	s.sideEffects.Notify(messaging.Message{
		To:       sub.DoctorPhone,
		Body:     fmt.Sprintf(s.cfg.MessageTemplate, code, int(s.cfg.TTL.Minutes())),
		Template: "consent_otp",
		Metadata: map[string]string{"submission_id": sub.ID},
	})
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionConsentSend, sub.ID, map[string]interface{}{"generation": otp.Generation})

	return &dto.SendConsentResponse{
		SubmissionID: sub.ID,
		Generation:   otp.Generation,
		SentTo:       maskPhone(sub.DoctorPhone),
		ExpiresAt:    otp.ExpiresAt,
	}, nil
}

// Verify checks code against the current generation. Wrong codes consume an
// attempt; expired codes do not.
func (s *ConsentService) Verify(ctx context.Context, submissionID string, req dto.VerifyConsentRequest, actor Actor) (*dto.VerifyConsentResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid consent code payload")
	}
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		return nil, translateError(err, "failed to load submission")
	}

	now := s.now()
	sub, otp, err := s.store.Verify(ctx, submissionID, func(sub *models.Submission, otp *models.ConsentOTP) error {
		return checkConsentCode(sub, otp, req.Code, now)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "no consent code has been issued")
		}
		s.metrics.IncConsentVerification(consentResultLabel(err))
		return nil, translateError(err, "failed to verify consent code")
	}

	s.metrics.IncConsentVerification("verified")
	s.cache.InvalidateSubmission(ctx, sub.ID)
	s.sideEffects.RequestSync("consent_verified", sub.ID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionConsentVerify, sub.ID, map[string]interface{}{
		"generation": otp.Generation,
		"attempts":   otp.Attempts,
	})

	return &dto.VerifyConsentResponse{
		SubmissionID:      sub.ID,
		Verified:          true,
		ConsentStatus:     sub.ConsentStatus,
		Status:            sub.Status,
		ConsentVerifiedAt: sub.ConsentVerifiedAt,
		AttemptsRemaining: otp.Remaining(),
	}, nil
}

// Status reports consent progress for a submission.
func (s *ConsentService) Status(ctx context.Context, submissionID string) (*dto.ConsentStatusResponse, error) {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	resp := &dto.ConsentStatusResponse{
		SubmissionID:      sub.ID,
		ConsentStatus:     sub.ConsentStatus,
		ConsentVerifiedAt: sub.ConsentVerifiedAt,
		Status:            sub.Status,
	}
	otp, err := s.store.Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return resp, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consent code")
	}
	status := otp.Status
	expires := otp.ExpiresAt
	resp.OTPStatus = &status
	resp.Generation = otp.Generation
	resp.AttemptsUsed = otp.Attempts
	resp.AttemptsRemaining = otp.Remaining()
	resp.ExpiresAt = &expires
	return resp, nil
}

// checkConsentCode mutates sub and otp according to the outcome of one
// verification attempt.
func checkConsentCode(sub *models.Submission, otp *models.ConsentOTP, code string, now time.Time) error {
	if sub.Status == models.StatusDeleted {
		return &workflow.TransitionError{From: string(sub.Status), Event: string(workflow.EventConsentVerified)}
	}
	if sub.ConsentStatus == models.ConsentVerified || otp.Status == models.OTPVerified {
		return appErrors.Clone(appErrors.ErrConflict, "consent already verified")
	}
	if otp.Status == models.OTPFailed || otp.Attempts >= otp.MaxAttempts {
		otp.Status = models.OTPFailed
		return exhaustedError()
	}
	if !now.Before(otp.ExpiresAt) {
		return appErrors.Clone(appErrors.ErrOTPExpired, "consent code expired, request a new one")
	}
	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		otp.Attempts++
		if otp.Attempts >= otp.MaxAttempts {
			otp.Status = models.OTPFailed
			return exhaustedError()
		}
		return appErrors.WithDetails(appErrors.Clone(appErrors.ErrOTPInvalid, "incorrect consent code"),
			map[string]interface{}{"attempts_remaining": otp.Remaining()})
	}

	otp.Status = models.OTPVerified
	otp.VerifiedAt = &now
	sub.ConsentStatus = models.ConsentVerified
	sub.ConsentVerifiedAt = &now
	if next, err := workflow.Apply(sub, workflow.EventConsentVerified); err == nil {
		sub.Status = next
	}
	return nil
}

func exhaustedError() error {
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrOTPExhausted, ""), map[string]interface{}{"attempts_remaining": 0})
}

func consentResultLabel(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrOTPExpired):
		return "expired"
	case errors.Is(err, appErrors.ErrOTPExhausted):
		return "exhausted"
	case errors.Is(err, appErrors.ErrOTPInvalid):
		return "invalid"
	default:
		return "error"
	}
}

func numericCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
