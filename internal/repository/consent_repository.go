package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
)

const otpColumns = `submission_id, code_hash, generation, attempts, max_attempts, status, sent_to, expires_at, verified_at, created_at, updated_at`

// ConsentRepository stores consent OTP generations.
type ConsentRepository struct {
	db *sqlx.DB
}

// NewConsentRepository constructs the repository.
func NewConsentRepository(db *sqlx.DB) *ConsentRepository {
	return &ConsentRepository{db: db}
}

// Issue replaces the current code of a submission with a new generation.
// guard runs against the locked submission before anything is written.
func (r *ConsentRepository) Issue(ctx context.Context, otp *models.ConsentOTP, guard func(sub *models.Submission) error) error {
	return database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		sub, err := lockSubmission(ctx, tx, otp.SubmissionID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(sub); err != nil {
				return err
			}
		}
		now := time.Now().UTC()
		otp.Attempts = 0
		otp.Status = models.OTPActive
		otp.VerifiedAt = nil
		otp.CreatedAt = now
		otp.UpdatedAt = now

		const query = `INSERT INTO consent_otps (submission_id, code_hash, generation, attempts, max_attempts, status, sent_to, expires_at, created_at, updated_at)
VALUES ($1, $2, 1, 0, $3, $4, $5, $6, $7, $7)
ON CONFLICT (submission_id) DO UPDATE SET
	code_hash = EXCLUDED.code_hash,
	generation = consent_otps.generation + 1,
	attempts = 0,
	max_attempts = EXCLUDED.max_attempts,
	status = EXCLUDED.status,
	sent_to = EXCLUDED.sent_to,
	expires_at = EXCLUDED.expires_at,
	verified_at = NULL,
	updated_at = EXCLUDED.updated_at
RETURNING generation`
		if err := tx.GetContext(ctx, &otp.Generation, query, otp.SubmissionID, otp.CodeHash, otp.MaxAttempts, otp.Status, otp.SentTo, otp.ExpiresAt, now); err != nil {
			return fmt.Errorf("upsert consent otp: %w", err)
		}
		return nil
	})
}

// Get returns the current code of a submission.
func (r *ConsentRepository) Get(ctx context.Context, submissionID string) (*models.ConsentOTP, error) {
	query := `SELECT ` + otpColumns + ` FROM consent_otps WHERE submission_id = $1`
	var otp models.ConsentOTP
	if err := r.db.GetContext(ctx, &otp, query, submissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get consent otp: %w", err)
	}
	return &otp, nil
}

// Verify locks the submission and its code, then hands both to check. Changes
// check makes to either value are committed even when check returns an error,
// so failed attempts are counted; that error is returned after commit.
func (r *ConsentRepository) Verify(ctx context.Context, submissionID string, check func(sub *models.Submission, otp *models.ConsentOTP) error) (*models.Submission, *models.ConsentOTP, error) {
	var (
		outSub   *models.Submission
		outOTP   *models.ConsentOTP
		checkErr error
	)
	err := database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		sub, err := lockSubmission(ctx, tx, submissionID)
		if err != nil {
			return err
		}
		var otp models.ConsentOTP
		if err := tx.GetContext(ctx, &otp, `SELECT `+otpColumns+` FROM consent_otps WHERE submission_id = $1 FOR UPDATE`, submissionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return err
			}
			return fmt.Errorf("lock consent otp: %w", err)
		}

		checkErr = check(sub, &otp)

		otp.UpdatedAt = time.Now().UTC()
		const update = `UPDATE consent_otps SET attempts = :attempts, status = :status, verified_at = :verified_at, updated_at = :updated_at
WHERE submission_id = :submission_id`
		if _, err := tx.NamedExecContext(ctx, update, &otp); err != nil {
			return fmt.Errorf("update consent otp: %w", err)
		}
		if err := saveSubmission(ctx, tx, sub); err != nil {
			return err
		}
		outSub = sub
		outOTP = &otp
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outSub, outOTP, checkErr
}
