package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
)

const (
	audioColumns = `id, submission_id, language_code, status, error_message, storage_path, public_url, duration_seconds, created_at, updated_at`
	videoColumns = `id, submission_id, language_code, audio_id, status, error_message, storage_path, public_url, duration_seconds, created_at, updated_at`

	systemReviewer = "system"
)

// VideoRegistration is the committed outcome of RegisterVideo.
type VideoRegistration struct {
	Submission *models.Submission
	Video      *models.GeneratedVideo
	Derivation workflow.Derivation
}

// MediaRepository manages per-language generated audio and video rows.
type MediaRepository struct {
	db *sqlx.DB
}

// NewMediaRepository constructs the repository.
func NewMediaRepository(db *sqlx.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// UpsertAudio replaces the audio row for (submission, language).
func (r *MediaRepository) UpsertAudio(ctx context.Context, audio *models.GeneratedAudio) error {
	if audio.ID == "" {
		audio.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	audio.CreatedAt = now
	audio.UpdatedAt = now

	const query = `INSERT INTO generated_audio (id, submission_id, language_code, status, error_message, storage_path, public_url, duration_seconds, created_at, updated_at)
VALUES (:id, :submission_id, :language_code, :status, :error_message, :storage_path, :public_url, :duration_seconds, :created_at, :updated_at)
ON CONFLICT (submission_id, language_code) DO UPDATE SET
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	storage_path = EXCLUDED.storage_path,
	public_url = EXCLUDED.public_url,
	duration_seconds = EXCLUDED.duration_seconds,
	updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, audio); err != nil {
		return fmt.Errorf("upsert audio: %w", err)
	}
	return nil
}

// RegisterVideo locks the submission, runs guard, upserts the video row and
// recomputes the aggregate status from the committed videos. When the
// derivation resets a rejected QC, a resubmitted history entry is appended.
func (r *MediaRepository) RegisterVideo(ctx context.Context, video *models.GeneratedVideo, guard func(sub *models.Submission) error) (*VideoRegistration, error) {
	var out *VideoRegistration
	err := database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		sub, err := lockSubmission(ctx, tx, video.SubmissionID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(sub); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		if video.ID == "" {
			video.ID = uuid.NewString()
		}
		video.UpdatedAt = now
		if video.CreatedAt.IsZero() {
			video.CreatedAt = now
		}
		if video.AudioID == nil {
			var audioID string
			err := tx.GetContext(ctx, &audioID, `SELECT id FROM generated_audio WHERE submission_id = $1 AND language_code = $2`, video.SubmissionID, video.LanguageCode)
			switch {
			case err == nil:
				video.AudioID = &audioID
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("lookup audio for video: %w", err)
			}
		}

		const upsert = `INSERT INTO generated_videos (id, submission_id, language_code, audio_id, status, error_message, storage_path, public_url, duration_seconds, created_at, updated_at)
VALUES (:id, :submission_id, :language_code, :audio_id, :status, :error_message, :storage_path, :public_url, :duration_seconds, :created_at, :updated_at)
ON CONFLICT (submission_id, language_code) DO UPDATE SET
	audio_id = EXCLUDED.audio_id,
	status = EXCLUDED.status,
	error_message = EXCLUDED.error_message,
	storage_path = EXCLUDED.storage_path,
	public_url = EXCLUDED.public_url,
	duration_seconds = EXCLUDED.duration_seconds,
	updated_at = EXCLUDED.updated_at`
		if _, err := tx.NamedExecContext(ctx, upsert, video); err != nil {
			return fmt.Errorf("upsert video: %w", err)
		}

		var videos []models.GeneratedVideo
		if err := tx.SelectContext(ctx, &videos, `SELECT `+videoColumns+` FROM generated_videos WHERE submission_id = $1`, sub.ID); err != nil {
			return fmt.Errorf("list videos: %w", err)
		}

		derivation := workflow.DeriveAggregateStatus(sub, videos)
		if derivation.Changed {
			previousQC := sub.QCStatus
			sub.Status = derivation.Status
			if derivation.ResetQC {
				sub.QCStatus = models.QCPending
				sub.QCReviewer = nil
				sub.QCLeaseExpiresAt = nil
				entry := &models.QCHistory{
					SubmissionID:   sub.ID,
					Action:         models.QCActionResubmitted,
					PreviousStatus: previousQC,
					NewStatus:      models.QCPending,
					Reviewer:       systemReviewer,
				}
				if err := insertQCHistory(ctx, tx, entry); err != nil {
					return err
				}
			}
			if err := saveSubmission(ctx, tx, sub); err != nil {
				return err
			}
		}

		out = &VideoRegistration{Submission: sub, Video: video, Derivation: derivation}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListAudio returns every audio row of a submission.
func (r *MediaRepository) ListAudio(ctx context.Context, submissionID string) ([]models.GeneratedAudio, error) {
	query := `SELECT ` + audioColumns + ` FROM generated_audio WHERE submission_id = $1 ORDER BY language_code ASC`
	var items []models.GeneratedAudio
	if err := r.db.SelectContext(ctx, &items, query, submissionID); err != nil {
		return nil, fmt.Errorf("list audio: %w", err)
	}
	return items, nil
}

// ListVideos returns every video row of a submission.
func (r *MediaRepository) ListVideos(ctx context.Context, submissionID string) ([]models.GeneratedVideo, error) {
	query := `SELECT ` + videoColumns + ` FROM generated_videos WHERE submission_id = $1 ORDER BY language_code ASC`
	var items []models.GeneratedVideo
	if err := r.db.SelectContext(ctx, &items, query, submissionID); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return items, nil
}

// ListValidations returns the intake file checks of a submission.
func (r *MediaRepository) ListValidations(ctx context.Context, submissionID string, kind models.ValidationKind) ([]models.FileValidation, error) {
	table := "audio_validations"
	if kind == models.ValidationImage {
		table = "image_validations"
	}
	query := fmt.Sprintf(`SELECT id, submission_id, storage_path, mime_type, size_bytes, duration_seconds, valid, issues, created_at
FROM %s WHERE submission_id = $1 ORDER BY created_at ASC`, table)
	var items []models.FileValidation
	if err := r.db.SelectContext(ctx, &items, query, submissionID); err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return items, nil
}
