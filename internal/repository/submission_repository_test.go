package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

var submissionRowColumns = []string{
	"id", "doctor_name", "doctor_phone", "doctor_email", "doctor_specialty", "doctor_city",
	"mr_code", "mr_name", "mr_phone", "created_by", "image_path", "audio_paths", "selected_languages",
	"status", "consent_status", "consent_verified_at", "voice_clone_status", "voice_id", "voice_clone_error",
	"voice_cloned_at", "voice_released_at", "qc_status", "qc_reviewer", "qc_lease_expires_at", "qc_reviewed_at",
	"qc_notes", "failure_reason", "created_at", "updated_at", "completed_at", "deleted_at",
}

type submissionRow struct {
	id       string
	langs    string
	status   models.SubmissionStatus
	qc       models.QCStatus
	consent  models.ConsentStatus
	voice    models.VoiceCloneStatus
	voiceID  interface{}
	reviewer interface{}
	lease    interface{}
}

func submissionRows(rows ...submissionRow) *sqlmock.Rows {
	now := time.Now()
	out := sqlmock.NewRows(submissionRowColumns)
	for _, r := range rows {
		consent := r.consent
		if consent == "" {
			consent = models.ConsentPending
		}
		voice := r.voice
		if voice == "" {
			voice = models.VoiceClonePending
		}
		out.AddRow(
			r.id, "Dr. Rao", "+919800000000", nil, nil, nil,
			"MR-7", "Field Rep", nil, nil, "submissions/dr-rao/image.jpg", "{submissions/dr-rao/audio/0.mp3}", r.langs,
			string(r.status), string(consent), nil, string(voice), r.voiceID, nil,
			nil, nil, string(r.qc), r.reviewer, r.lease, nil,
			nil, nil, now, now, nil, nil,
		)
	}
	return out
}

func TestSubmissionCreateWritesPlaceholdersAndValidations(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	sub := &models.Submission{
		DoctorName:        "Dr. Rao",
		DoctorPhone:       "+919800000000",
		MRCode:            "MR-7",
		MRName:            "Field Rep",
		ImagePath:         "submissions/dr-rao/image.jpg",
		AudioPaths:        []string{"submissions/dr-rao/audio/0.mp3"},
		SelectedLanguages: []string{"en", "hi"},
		Status:            models.StatusPendingConsent,
		ConsentStatus:     models.ConsentPending,
		VoiceCloneStatus:  models.VoiceClonePending,
		QCStatus:          models.QCPending,
	}
	validations := []ValidationRecord{
		{Kind: models.ValidationImage, Validation: models.FileValidation{StoragePath: sub.ImagePath, MIMEType: "image/jpeg", Valid: true}},
		{Kind: models.ValidationAudio, Validation: models.FileValidation{StoragePath: sub.AudioPaths[0], MIMEType: "audio/mpeg", Valid: true}},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO submissions").WillReturnResult(sqlmock.NewResult(1, 1))
	for _, lang := range sub.SelectedLanguages {
		mock.ExpectExec("INSERT INTO generated_audio").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), lang, models.MediaPending, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO generated_videos").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), lang, models.MediaPending, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectExec("INSERT INTO image_validations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO audio_validations").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), sub, validations))
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, sub.ID, validations[0].Validation.SubmissionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionCreateRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO submissions").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Submission{SelectedLanguages: []string{"en"}}, nil)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionGetByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE status IN ($1) AND mr_code = $2 ORDER BY created_at ASC LIMIT 10 OFFSET 10")).
		WithArgs(models.StatusPendingQC, "MR-7").
		WillReturnRows(submissionRows(submissionRow{id: "s1", langs: "{en,hi}", status: models.StatusPendingQC, qc: models.QCPending}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM submissions WHERE status IN ($1) AND mr_code = $2")).
		WithArgs(models.StatusPendingQC, "MR-7").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	subs, total, err := repo.List(context.Background(), models.SubmissionFilter{
		Status:    []models.SubmissionStatus{models.StatusPendingQC},
		MRCode:    "MR-7",
		Page:      2,
		PageSize:  10,
		SortOrder: "asc",
	})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, []string{"en", "hi"}, []string(subs[0].SelectedLanguages))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionMutateSavesLockedRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM submissions WHERE id = $1 FOR UPDATE")).
		WithArgs("s1").
		WillReturnRows(submissionRows(submissionRow{id: "s1", langs: "{en}", status: models.StatusQCApproved, qc: models.QCApproved}))
	mock.ExpectExec("UPDATE submissions SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	sub, err := repo.Mutate(context.Background(), "s1", func(sub *models.Submission) error {
		sub.Status = models.StatusCompleted
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, sub.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionMutateRollsBackWhenCallbackFails(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(submissionRows(submissionRow{id: "s1", langs: "{en}", status: models.StatusDeleted, qc: models.QCPending}))
	mock.ExpectRollback()

	rejected := errors.New("not allowed")
	_, err := repo.Mutate(context.Background(), "s1", func(*models.Submission) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubmissionHardDelete(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = $1")).
		WithArgs("s1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM submissions WHERE id = $1")).
		WithArgs("gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.HardDelete(context.Background(), "s1"))
	assert.ErrorIs(t, repo.HardDelete(context.Background(), "gone"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
