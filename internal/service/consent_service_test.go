package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/messaging"
)

type consentFixture struct {
	store *memStore
	queue *memQueue
	audit *memAudit
	svc   *ConsentService
	now   time.Time
	sub   *models.Submission
}

func newConsentFixture(t *testing.T) *consentFixture {
	t.Helper()
	f := &consentFixture{
		store: newMemStore(),
		queue: &memQueue{},
		audit: &memAudit{},
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.sub = f.store.put(models.Submission{
		DoctorName:        "Dr. Rao",
		DoctorPhone:       "+919876543210",
		MRCode:            "MR-1",
		SelectedLanguages: []string{"en", "hi"},
		Status:            models.StatusPendingConsent,
	})
	f.svc = NewConsentService(f.store, f.store, ConsentConfig{
		OTPLength:   6,
		TTL:         10 * time.Minute,
		MaxAttempts: 3,
		HashCost:    bcrypt.MinCost,
	},
		WithConsentSideEffects(NewSideEffects(f.queue, nil, nil)),
		WithConsentAudit(f.audit),
		WithConsentClock(func() time.Time { return f.now }),
		WithConsentCodeGenerator(func(int) (string, error) { return "123456", nil }),
	)
	return f
}

func (f *consentFixture) send(t *testing.T) *dto.SendConsentResponse {
	t.Helper()
	resp, err := f.svc.Send(context.Background(), f.sub.ID, SystemActor)
	require.NoError(t, err)
	return resp
}

func (f *consentFixture) verify(code string) (*dto.VerifyConsentResponse, error) {
	return f.svc.Verify(context.Background(), f.sub.ID, dto.VerifyConsentRequest{Code: code}, SystemActor)
}

func TestConsentSendIssuesNewGeneration(t *testing.T) {
	f := newConsentFixture(t)

	first := f.send(t)
	second := f.send(t)

	assert.Equal(t, 1, first.Generation)
	assert.Equal(t, 2, second.Generation)
	assert.Equal(t, "*********3210", second.SentTo)

	notes := f.queue.ofType(JobNotify)
	require.Len(t, notes, 2)
	msg := notes[0].Payload.(messaging.Message)
	assert.Equal(t, "+919876543210", msg.To)
	assert.Contains(t, msg.Body, "123456")
	assert.Equal(t, []string{models.AuditActionConsentSend, models.AuditActionConsentSend}, f.audit.actions())
}

func TestConsentVerifySuccessMovesSubmission(t *testing.T) {
	f := newConsentFixture(t)
	f.send(t)

	resp, err := f.verify("123456")
	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.Equal(t, models.ConsentVerified, resp.ConsentStatus)
	assert.Equal(t, models.StatusConsentVerified, resp.Status)
	require.NotNil(t, resp.ConsentVerifiedAt)
	assert.Equal(t, f.now, *resp.ConsentVerifiedAt)

	stored := f.store.snapshot(f.sub.ID)
	assert.Equal(t, models.ConsentVerified, stored.ConsentStatus)
	assert.Len(t, f.queue.ofType(JobSheetSync), 1)
	assert.Contains(t, f.audit.actions(), models.AuditActionConsentVerify)
}

func TestConsentVerifyWrongCodeConsumesAttempts(t *testing.T) {
	f := newConsentFixture(t)
	f.send(t)

	_, err := f.verify("000000")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrOTPInvalid.Code, appErr.Code)
	assert.Equal(t, 2, appErr.Details["attempts_remaining"])

	_, err = f.verify("000001")
	require.Error(t, err)
	_, err = f.verify("000002")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOTPExhausted.Code, appErrors.FromError(err).Code)

	// The right code no longer helps once attempts are spent.
	_, err = f.verify("123456")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOTPExhausted.Code, appErrors.FromError(err).Code)

	otp, err := f.store.Get(context.Background(), f.sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, otp.Attempts)
	assert.Equal(t, models.OTPFailed, otp.Status)
	assert.Equal(t, models.ConsentPending, f.store.snapshot(f.sub.ID).ConsentStatus)
}

func TestConsentResendResetsAttempts(t *testing.T) {
	f := newConsentFixture(t)
	f.send(t)
	for _, code := range []string{"000000", "000001", "000002"} {
		_, err := f.verify(code)
		require.Error(t, err)
	}

	resent := f.send(t)
	assert.Equal(t, 2, resent.Generation)

	resp, err := f.verify("123456")
	require.NoError(t, err)
	assert.True(t, resp.Verified)
}

func TestConsentExpiredCodeDoesNotConsumeAttempt(t *testing.T) {
	f := newConsentFixture(t)
	f.send(t)
	f.now = f.now.Add(11 * time.Minute)

	_, err := f.verify("123456")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrOTPExpired.Code, appErrors.FromError(err).Code)

	otp, err := f.store.Get(context.Background(), f.sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, otp.Attempts)
	assert.Equal(t, models.OTPActive, otp.Status)
}

func TestConsentVerifyWithoutIssuedCode(t *testing.T) {
	f := newConsentFixture(t)

	_, err := f.verify("123456")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestConsentSendRejectsVerifiedSubmission(t *testing.T) {
	f := newConsentFixture(t)
	f.send(t)
	_, err := f.verify("123456")
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), f.sub.ID, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.verify("123456")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestConsentStatus(t *testing.T) {
	f := newConsentFixture(t)

	status, err := f.svc.Status(context.Background(), f.sub.ID)
	require.NoError(t, err)
	assert.Nil(t, status.OTPStatus)

	f.send(t)
	_, _ = f.verify("999999")

	status, err = f.svc.Status(context.Background(), f.sub.ID)
	require.NoError(t, err)
	require.NotNil(t, status.OTPStatus)
	assert.Equal(t, models.OTPActive, *status.OTPStatus)
	assert.Equal(t, 1, status.AttemptsUsed)
	assert.Equal(t, 2, status.AttemptsRemaining)
}

func TestConsentUnknownSubmission(t *testing.T) {
	f := newConsentFixture(t)

	_, err := f.svc.Send(context.Background(), "missing", SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
