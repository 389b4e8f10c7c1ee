package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

func newTrackerFixture() (*memStore, *memQueue, *memAudit, *TrackerService) {
	store := newMemStore()
	queue := &memQueue{}
	audit := &memAudit{}
	svc := NewTrackerService(store, store, newMemObjects(),
		WithTrackerSideEffects(NewSideEffects(queue, nil, nil)),
		WithTrackerAudit(audit),
	)
	return store, queue, audit, svc
}

func TestTrackerVideosDriveSubmissionToQC(t *testing.T) {
	store, queue, audit, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en", "hi"}, Status: models.StatusProcessing, ConsentStatus: models.ConsentVerified})
	ctx := context.Background()

	first, err := svc.RegisterVideo(ctx, sub.ID, "en", dto.RegisterMediaRequest{GCSPath: "videos/en.mp4"}, SystemActor)
	require.NoError(t, err)
	assert.False(t, first.AllVideosComplete)
	assert.Equal(t, 1, first.CompletedVideos)
	assert.Equal(t, 2, first.TotalLanguages)
	assert.Equal(t, models.StatusProcessing, first.Status)
	require.NotNil(t, first.Video.PublicURL)
	assert.Equal(t, "https://cdn.test/videos/en.mp4", *first.Video.PublicURL)

	second, err := svc.RegisterVideo(ctx, sub.ID, "HI", dto.RegisterMediaRequest{GCSPath: "videos/hi.mp4", PublicURL: "https://cdn.example/hi.mp4"}, SystemActor)
	require.NoError(t, err)
	assert.True(t, second.AllVideosComplete)
	assert.Equal(t, 2, second.CompletedVideos)
	assert.Equal(t, models.StatusPendingQC, second.Status)
	assert.Equal(t, models.QCPending, second.QCStatus)
	assert.Equal(t, "https://cdn.example/hi.mp4", *second.Video.PublicURL)

	// Registering the same language again updates the row in place.
	again, err := svc.RegisterVideo(ctx, sub.ID, "hi", dto.RegisterMediaRequest{GCSPath: "videos/hi-v2.mp4"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingQC, again.Status)
	videos, _ := store.ListVideos(ctx, sub.ID)
	assert.Len(t, videos, 2)
	assert.Empty(t, store.history[sub.ID])

	assert.Len(t, queue.ofType(JobSheetSync), 3)
	assert.Len(t, audit.actions(), 3)
}

func TestTrackerFailedVideoWithoutPath(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusProcessing})

	resp, err := svc.RegisterVideo(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{Status: "failed", ErrorMessage: "render crashed"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.MediaFailed, resp.Video.Status)
	assert.Equal(t, "render crashed", *resp.Video.ErrorMessage)
	assert.False(t, resp.AllVideosComplete)
	assert.Equal(t, models.StatusProcessing, resp.Status)
}

func TestTrackerRejectsResultWithoutPath(t *testing.T) {
	cases := map[string]dto.RegisterMediaRequest{
		"empty body":         {},
		"message only":       {ErrorMessage: "render crashed"},
		"completed, no path": {Status: "completed"},
		"blank path":         {GCSPath: "   ", Status: "completed"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			store, queue, audit, svc := newTrackerFixture()
			sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusProcessing})
			ctx := context.Background()

			_, err := svc.RegisterVideo(ctx, sub.ID, "en", req, SystemActor)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

			_, err = svc.RegisterAudio(ctx, sub.ID, "en", req, SystemActor)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

			videos, _ := store.ListVideos(ctx, sub.ID)
			audios, _ := store.ListAudio(ctx, sub.ID)
			assert.Empty(t, videos)
			assert.Empty(t, audios)
			assert.Equal(t, models.StatusProcessing, store.snapshot(sub.ID).Status)
			assert.Empty(t, queue.ofType(JobSheetSync))
			assert.Empty(t, audit.actions())
		})
	}
}

func TestTrackerRejectsUnselectedLanguage(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusProcessing})

	_, err := svc.RegisterVideo(context.Background(), sub.ID, "ta", dto.RegisterMediaRequest{GCSPath: "videos/ta.mp4"}, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	videos, _ := store.ListVideos(context.Background(), sub.ID)
	assert.Empty(t, videos)
}

func TestTrackerRejectsDeletedSubmission(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusDeleted})

	_, err := svc.RegisterVideo(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{GCSPath: "videos/en.mp4"}, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestTrackerResubmissionAfterRejectResetsQC(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	reviewer := "Meera"
	sub := store.put(models.Submission{
		SelectedLanguages: []string{"en"},
		Status:            models.StatusQCRejected,
		QCStatus:          models.QCRejected,
		QCReviewer:        &reviewer,
	})

	resp, err := svc.RegisterVideo(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{GCSPath: "videos/en-v2.mp4"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingQC, resp.Status)
	assert.Equal(t, models.QCPending, resp.QCStatus)

	history := store.history[sub.ID]
	require.Len(t, history, 1)
	assert.Equal(t, models.QCActionResubmitted, history[0].Action)
	assert.Equal(t, models.QCRejected, history[0].PreviousStatus)
	assert.Nil(t, store.snapshot(sub.ID).QCReviewer)
}

func TestTrackerApprovedSubmissionIsFrozen(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusQCApproved, QCStatus: models.QCApproved})

	resp, err := svc.RegisterVideo(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{GCSPath: "videos/en.mp4"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusQCApproved, resp.Status)
	assert.True(t, resp.AllVideosComplete)
}

func TestTrackerAudioDoesNotMoveAggregate(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"en"}, Status: models.StatusProcessing})

	resp, err := svc.RegisterAudio(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{GCSPath: "audio/en.mp3"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, models.MediaCompleted, resp.Audio.Status)
	assert.Equal(t, models.StatusProcessing, store.snapshot(sub.ID).Status)

	_, err = svc.RegisterAudio(context.Background(), sub.ID, "en", dto.RegisterMediaRequest{Status: "bogus"}, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTrackerLanguagesSummary(t *testing.T) {
	store, _, _, svc := newTrackerFixture()
	sub := store.put(models.Submission{SelectedLanguages: []string{"hi", "en"}, Status: models.StatusProcessing})
	ctx := context.Background()
	_, err := svc.RegisterAudio(ctx, sub.ID, "hi", dto.RegisterMediaRequest{GCSPath: "audio/hi.mp3"}, SystemActor)
	require.NoError(t, err)
	_, err = svc.RegisterVideo(ctx, sub.ID, "hi", dto.RegisterMediaRequest{GCSPath: "videos/hi.mp4"}, SystemActor)
	require.NoError(t, err)

	resp, err := svc.Languages(ctx, sub.ID, SystemActor)
	require.NoError(t, err)
	require.Len(t, resp.Languages, 2)
	assert.Equal(t, "hi", resp.Languages[0].LanguageCode)
	assert.True(t, resp.Languages[0].AudioComplete)
	assert.True(t, resp.Languages[0].ReadyForQC)
	assert.Equal(t, "en", resp.Languages[1].LanguageCode)
	assert.False(t, resp.Languages[1].VideoComplete)
	assert.Equal(t, 2, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.ReadyForQC)
	assert.False(t, resp.Summary.AllComplete)
}
