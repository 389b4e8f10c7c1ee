package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
)

// QCPlanner computes the transition for the locked submission.
type QCPlanner func(sub *models.Submission) (workflow.QCPlan, error)

// QCRepository persists QC gate transitions and the history ledger.
type QCRepository struct {
	db *sqlx.DB
}

// NewQCRepository constructs the repository.
func NewQCRepository(db *sqlx.DB) *QCRepository {
	return &QCRepository{db: db}
}

// Transition applies one QC action atomically: the submission row is locked,
// planner decides the new state, and exactly one history row is appended.
// entry supplies reviewer, notes and reasons.
func (r *QCRepository) Transition(ctx context.Context, id string, entry models.QCHistory, planner QCPlanner) (*models.Submission, *models.QCHistory, error) {
	var (
		outSub   *models.Submission
		outEntry *models.QCHistory
	)
	err := database.WithSerializableTx(ctx, r.db, func(tx *sqlx.Tx) error {
		sub, err := lockSubmission(ctx, tx, id)
		if err != nil {
			return err
		}
		plan, err := planner(sub)
		if err != nil {
			return err
		}
		workflow.ApplyQC(sub, plan)
		if plan.Action != models.QCActionStartReview {
			sub.QCNotes = entry.Notes
		}
		if err := saveSubmission(ctx, tx, sub); err != nil {
			return err
		}

		history := entry
		history.SubmissionID = sub.ID
		history.Action = plan.Action
		history.PreviousStatus = plan.PreviousQC
		history.NewStatus = plan.NewQC
		if err := insertQCHistory(ctx, tx, &history); err != nil {
			return err
		}
		outSub = sub
		outEntry = &history
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outSub, outEntry, nil
}

// History returns the QC ledger of a submission in insertion order.
func (r *QCRepository) History(ctx context.Context, submissionID string) ([]models.QCHistory, error) {
	const query = `SELECT id, submission_id, action, previous_status, new_status, reviewer, notes, reasons, created_at
FROM qc_history WHERE submission_id = $1 ORDER BY created_at ASC, id ASC`
	var items []models.QCHistory
	if err := r.db.SelectContext(ctx, &items, query, submissionID); err != nil {
		return nil, fmt.Errorf("list qc history: %w", err)
	}
	return items, nil
}

func insertQCHistory(ctx context.Context, tx *sqlx.Tx, entry *models.QCHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Reasons == nil {
		entry.Reasons = []string{}
	}
	const query = `INSERT INTO qc_history (id, submission_id, action, previous_status, new_status, reviewer, notes, reasons, created_at)
VALUES (:id, :submission_id, :action, :previous_status, :new_status, :reviewer, :notes, :reasons, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert qc history: %w", err)
	}
	return nil
}
