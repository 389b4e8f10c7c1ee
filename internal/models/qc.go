package models

import (
	"time"

	"github.com/lib/pq"
)

// QCAction names a QC gate transition.
type QCAction string

const (
	QCActionStartReview    QCAction = "start_review"
	QCActionApprove        QCAction = "approve"
	QCActionReject         QCAction = "reject"
	QCActionRequestChanges QCAction = "request_changes"
	QCActionResubmitted    QCAction = "resubmitted"
)

// QCHistory is one append-only entry of the QC ledger.
type QCHistory struct {
	ID             string         `db:"id" json:"id"`
	SubmissionID   string         `db:"submission_id" json:"submission_id"`
	Action         QCAction       `db:"action" json:"action"`
	PreviousStatus QCStatus       `db:"previous_status" json:"previous_status"`
	NewStatus      QCStatus       `db:"new_status" json:"new_status"`
	Reviewer       string         `db:"reviewer" json:"reviewer"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	Reasons        pq.StringArray `db:"reasons" json:"reasons"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
