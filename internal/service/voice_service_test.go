package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

type voiceFixture struct {
	store    *memStore
	objects  *memObjects
	provider *fakeVoiceProvider
	audit    *memAudit
	queue    *memQueue
	svc      *VoiceService
	now      time.Time
}

func newVoiceFixture(t *testing.T) *voiceFixture {
	t.Helper()
	f := &voiceFixture{
		store:    newMemStore(),
		objects:  newMemObjects(),
		provider: &fakeVoiceProvider{},
		audit:    &memAudit{},
		queue:    &memQueue{},
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.objects.objects["master/en.mp3"] = []byte("master-en")
	f.objects.objects["master/hi.mp3"] = []byte("master-hi")
	f.objects.objects["samples/1.mp3"] = []byte("sample-1")
	f.svc = NewVoiceService(f.store, f.store, f.provider, f.objects, VoiceConfig{ReleaseCooldown: time.Hour},
		WithVoiceAudit(f.audit),
		WithVoiceSideEffects(NewSideEffects(f.queue, nil, nil)),
		WithVoiceClock(func() time.Time { return f.now }),
	)
	return f
}

func (f *voiceFixture) consented(langs ...string) *models.Submission {
	return f.store.put(models.Submission{
		DoctorName:        "Dr. Rao",
		MRCode:            "MR-1",
		AudioPaths:        []string{"samples/1.mp3"},
		SelectedLanguages: langs,
		Status:            models.StatusConsentVerified,
		ConsentStatus:     models.ConsentVerified,
	})
}

func TestVoiceProcessRequiresConsent(t *testing.T) {
	f := newVoiceFixture(t)
	sub := f.store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusPendingConsent})

	_, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConsentRequired.Code, appErrors.FromError(err).Code)
	assert.Empty(t, f.provider.created)
	assert.Equal(t, models.StatusPendingConsent, f.store.snapshot(sub.ID).Status)
}

func TestVoiceProcessClonesAndGeneratesEveryLanguage(t *testing.T) {
	f := newVoiceFixture(t)
	sub := f.consented("en", "hi")

	resp, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, resp.Status)
	assert.Equal(t, models.VoiceCloneCompleted, resp.VoiceCloneStatus)
	require.NotNil(t, resp.VoiceID)
	assert.Equal(t, "voice-1", *resp.VoiceID)
	assert.Equal(t, 2, resp.Completed)
	assert.Equal(t, 0, resp.Failed)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "en", resp.Results[0].LanguageCode)
	assert.Equal(t, "hi", resp.Results[1].LanguageCode)

	require.Len(t, f.provider.created, 1)
	require.Len(t, f.provider.created[0].Samples, 1)
	assert.Equal(t, []byte("sample-1"), f.provider.created[0].Samples[0].Data)
	assert.Equal(t, []string{"en.mp3", "hi.mp3"}, f.provider.converted)

	audios, _ := f.store.ListAudio(context.Background(), sub.ID)
	require.Len(t, audios, 2)
	for _, a := range audios {
		assert.Equal(t, models.MediaCompleted, a.Status)
		require.NotNil(t, a.StoragePath)
		_, stored := f.objects.objects[*a.StoragePath]
		assert.True(t, stored)
	}

	stored := f.store.snapshot(sub.ID)
	assert.Equal(t, models.StatusProcessing, stored.Status)
	require.NotNil(t, stored.VoiceClonedAt)
	assert.Len(t, f.queue.ofType(JobSheetSync), 1)
	assert.Contains(t, f.audit.actions(), models.AuditActionVoiceClone)
}

func TestVoiceProcessReusesExistingClone(t *testing.T) {
	f := newVoiceFixture(t)
	sub := f.consented("en")

	_, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)
	_, err = f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)

	assert.Len(t, f.provider.created, 1)
	assert.Len(t, f.provider.converted, 2)
	audios, _ := f.store.ListAudio(context.Background(), sub.ID)
	assert.Len(t, audios, 1)
}

func TestVoiceProcessLanguageFailureIsRecorded(t *testing.T) {
	f := newVoiceFixture(t)
	f.provider.speechErr = map[string]error{"hi.mp3": errBoom}
	sub := f.consented("en", "hi")

	resp, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Completed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, models.MediaFailed, resp.Results[1].Status)
	require.NotNil(t, resp.Results[1].Error)
	assert.Contains(t, *resp.Results[1].Error, "boom")
}

func TestVoiceProcessMissingMasterFailsLanguage(t *testing.T) {
	f := newVoiceFixture(t)
	sub := f.consented("ta")

	resp, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Failed)
	assert.Contains(t, *resp.Results[0].Error, "master/ta.mp3")
}

func TestVoiceProcessCloneFailureIsPersisted(t *testing.T) {
	f := newVoiceFixture(t)
	f.provider.createErr = errBoom
	sub := f.consented("en")

	_, err := f.svc.Process(context.Background(), sub.ID, SystemActor)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErr.Code)
	assert.Equal(t, models.VoiceCloneFailed, appErr.Details["voice_clone_status"])

	stored := f.store.snapshot(sub.ID)
	assert.Equal(t, models.VoiceCloneFailed, stored.VoiceCloneStatus)
	assert.Equal(t, sub.Status, stored.Status)
	assert.Equal(t, sub.Status, appErr.Details["status"])
	require.NotNil(t, stored.VoiceCloneError)
	assert.Empty(t, f.provider.converted)
}

func TestVoiceReleaseHonoursCooldown(t *testing.T) {
	f := newVoiceFixture(t)
	voiceID := "voice-9"
	completed := f.now.Add(-30 * time.Minute)
	sub := f.store.put(models.Submission{
		Status:           models.StatusCompleted,
		VoiceCloneStatus: models.VoiceCloneCompleted,
		VoiceID:          &voiceID,
		CompletedAt:      &completed,
	})

	_, err := f.svc.Release(context.Background(), sub.ID, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)

	f.now = f.now.Add(time.Hour)
	resp, err := f.svc.Release(context.Background(), sub.ID, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.VoiceCloneDeleted, resp.VoiceCloneStatus)
	assert.Equal(t, []string{"voice-9"}, f.provider.deleted)

	_, err = f.svc.Release(context.Background(), sub.ID, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestVoiceReleaseProviderErrorKeepsClone(t *testing.T) {
	f := newVoiceFixture(t)
	f.provider.deleteErr = errBoom
	voiceID := "voice-9"
	sub := f.store.put(models.Submission{
		Status:           models.StatusFailed,
		VoiceCloneStatus: models.VoiceCloneCompleted,
		VoiceID:          &voiceID,
		UpdatedAt:        f.now.Add(-2 * time.Hour),
	})

	_, err := f.svc.Release(context.Background(), sub.ID, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstream.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VoiceCloneCompleted, f.store.snapshot(sub.ID).VoiceCloneStatus)
}

func TestVoiceSweepReleasesEligibleOnly(t *testing.T) {
	f := newVoiceFixture(t)
	old := f.now.Add(-2 * time.Hour)
	recent := f.now.Add(-10 * time.Minute)
	v1, v2 := "v1", "v2"
	eligible := f.store.put(models.Submission{Status: models.StatusCompleted, VoiceCloneStatus: models.VoiceCloneCompleted, VoiceID: &v1, CompletedAt: &old})
	f.store.put(models.Submission{Status: models.StatusCompleted, VoiceCloneStatus: models.VoiceCloneCompleted, VoiceID: &v2, CompletedAt: &recent})

	result, err := f.svc.SweepReleases(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, []string{eligible.ID}, result.Released)
	assert.Empty(t, result.Failed)
	assert.Equal(t, []string{"v1"}, f.provider.deleted)
}
