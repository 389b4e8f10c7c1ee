package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
)

const submissionColumns = `id, doctor_name, doctor_phone, doctor_email, doctor_specialty, doctor_city,
	mr_code, mr_name, mr_phone, created_by, image_path, audio_paths, selected_languages,
	status, consent_status, consent_verified_at, voice_clone_status, voice_id, voice_clone_error,
	voice_cloned_at, voice_released_at, qc_status, qc_reviewer, qc_lease_expires_at, qc_reviewed_at,
	qc_notes, failure_reason, created_at, updated_at, completed_at, deleted_at`

// ValidationRecord pairs a file validation with the table it belongs to.
type ValidationRecord struct {
	Kind       models.ValidationKind
	Validation models.FileValidation
}

// SubmissionRepository persists submissions and their intake artefacts.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts the submission, a pending audio and video placeholder per
// selected language, and the file validations in one transaction.
func (r *SubmissionRepository) Create(ctx context.Context, sub *models.Submission, validations []ValidationRecord) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	return database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insertSubmission = `INSERT INTO submissions (id, doctor_name, doctor_phone, doctor_email, doctor_specialty, doctor_city,
	mr_code, mr_name, mr_phone, created_by, image_path, audio_paths, selected_languages,
	status, consent_status, voice_clone_status, qc_status, created_at, updated_at)
VALUES (:id, :doctor_name, :doctor_phone, :doctor_email, :doctor_specialty, :doctor_city,
	:mr_code, :mr_name, :mr_phone, :created_by, :image_path, :audio_paths, :selected_languages,
	:status, :consent_status, :voice_clone_status, :qc_status, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insertSubmission, sub); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}

		const insertAudio = `INSERT INTO generated_audio (id, submission_id, language_code, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (submission_id, language_code) DO NOTHING`
		const insertVideo = `INSERT INTO generated_videos (id, submission_id, language_code, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5) ON CONFLICT (submission_id, language_code) DO NOTHING`
		for _, lang := range sub.SelectedLanguages {
			if _, err := tx.ExecContext(ctx, insertAudio, uuid.NewString(), sub.ID, lang, models.MediaPending, now); err != nil {
				return fmt.Errorf("insert audio placeholder: %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertVideo, uuid.NewString(), sub.ID, lang, models.MediaPending, now); err != nil {
				return fmt.Errorf("insert video placeholder: %w", err)
			}
		}

		for i := range validations {
			v := &validations[i].Validation
			if v.ID == "" {
				v.ID = uuid.NewString()
			}
			v.SubmissionID = sub.ID
			v.CreatedAt = now
			table := "audio_validations"
			if validations[i].Kind == models.ValidationImage {
				table = "image_validations"
			}
			query := fmt.Sprintf(`INSERT INTO %s (id, submission_id, storage_path, mime_type, size_bytes, duration_seconds, valid, issues, created_at)
VALUES (:id, :submission_id, :storage_path, :mime_type, :size_bytes, :duration_seconds, :valid, :issues, :created_at)`, table)
			if _, err := tx.NamedExecContext(ctx, query, v); err != nil {
				return fmt.Errorf("insert %s: %w", table, err)
			}
		}
		return nil
	})
}

// GetByID returns a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var sub models.Submission
	if err := r.db.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return &sub, nil
}

// List returns submissions matching the filter with the total count.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	} else {
		conditions = append(conditions, "status <> 'deleted'")
	}
	if filter.QCStatus != "" {
		args = append(args, filter.QCStatus)
		conditions = append(conditions, fmt.Sprintf("qc_status = $%d", len(args)))
	}
	if filter.MRCode != "" {
		args = append(args, filter.MRCode)
		conditions = append(conditions, fmt.Sprintf("mr_code = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(doctor_name) LIKE $%d OR doctor_phone LIKE $%d)", len(args), len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM submissions%s ORDER BY created_at %s LIMIT %d OFFSET %d", submissionColumns, where, sortOrder, pageSize, offset)
	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM submissions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return subs, total, nil
}

// normalizePage clamps list paging to page >= 1 and 1..100 rows.
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// ListReleaseCandidates returns settled submissions still holding a provider
// voice, oldest first.
func (r *SubmissionRepository) ListReleaseCandidates(ctx context.Context, limit int) ([]models.Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + submissionColumns + ` FROM submissions
WHERE status IN ('completed', 'failed') AND voice_clone_status = 'completed' AND voice_id IS NOT NULL
ORDER BY updated_at ASC LIMIT $1`
	var subs []models.Submission
	if err := r.db.SelectContext(ctx, &subs, query, limit); err != nil {
		return nil, fmt.Errorf("list release candidates: %w", err)
	}
	return subs, nil
}

// Mutate locks the submission row, lets fn change it, and saves the result.
// Returning an error from fn rolls the transaction back.
func (r *SubmissionRepository) Mutate(ctx context.Context, id string, fn func(sub *models.Submission) error) (*models.Submission, error) {
	var out *models.Submission
	err := database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		sub, err := lockSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(sub); err != nil {
			return err
		}
		if err := saveSubmission(ctx, tx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HardDelete removes the submission; child rows cascade.
func (r *SubmissionRepository) HardDelete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func lockSubmission(ctx context.Context, tx *sqlx.Tx, id string) (*models.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 FOR UPDATE`
	var sub models.Submission
	if err := tx.GetContext(ctx, &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}
	return &sub, nil
}

func saveSubmission(ctx context.Context, tx *sqlx.Tx, sub *models.Submission) error {
	sub.UpdatedAt = time.Now().UTC()
	const query = `UPDATE submissions SET
	status = :status,
	consent_status = :consent_status,
	consent_verified_at = :consent_verified_at,
	voice_clone_status = :voice_clone_status,
	voice_id = :voice_id,
	voice_clone_error = :voice_clone_error,
	voice_cloned_at = :voice_cloned_at,
	voice_released_at = :voice_released_at,
	qc_status = :qc_status,
	qc_reviewer = :qc_reviewer,
	qc_lease_expires_at = :qc_lease_expires_at,
	qc_reviewed_at = :qc_reviewed_at,
	qc_notes = :qc_notes,
	failure_reason = :failure_reason,
	updated_at = :updated_at,
	completed_at = :completed_at,
	deleted_at = :deleted_at
WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}
