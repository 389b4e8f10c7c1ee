package workflow

import (
	"time"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// QCPlan is the set of column changes for one QC transition.
type QCPlan struct {
	Action         models.QCAction
	PreviousQC     models.QCStatus
	NewQC          models.QCStatus
	NewStatus      models.SubmissionStatus
	Reviewer       *string
	LeaseExpiresAt *time.Time
	ReviewedAt     *time.Time
}

// PlanQC validates action against the current QC state and computes the
// resulting fields. Completed, failed and deleted submissions are closed to QC. Review leases let a different reviewer take over once
// the holder's lease has lapsed.
func PlanQC(sub *models.Submission, action models.QCAction, reviewer string, now time.Time, lease time.Duration) (QCPlan, error) {
	switch sub.Status {
	case models.StatusCompleted, models.StatusFailed, models.StatusDeleted:
		return QCPlan{}, &TransitionError{From: string(sub.Status), Event: string(action)}
	}
	plan := QCPlan{Action: action, PreviousQC: sub.QCStatus, NewStatus: sub.Status}

	switch action {
	case models.QCActionStartReview:
		switch sub.QCStatus {
		case models.QCPending:
		case models.QCInReview:
			if holder := deref(sub.QCReviewer); holder != "" && holder != reviewer && leaseActive(sub.QCLeaseExpiresAt, now) {
				return QCPlan{}, &LockHeldError{Holder: holder, ExpiresAt: sub.QCLeaseExpiresAt}
			}
		default:
			return QCPlan{}, &TransitionError{From: string(sub.QCStatus), Event: string(action)}
		}
		expires := now.Add(lease)
		plan.NewQC = models.QCInReview
		plan.Reviewer = &reviewer
		plan.LeaseExpiresAt = &expires
	case models.QCActionApprove:
		plan.NewQC = models.QCApproved
		plan.NewStatus = models.StatusQCApproved
		plan.Reviewer = &reviewer
		plan.ReviewedAt = &now
	case models.QCActionReject:
		plan.NewQC = models.QCRejected
		plan.NewStatus = models.StatusQCRejected
		plan.Reviewer = &reviewer
		plan.ReviewedAt = &now
	case models.QCActionRequestChanges:
		plan.NewQC = models.QCPending
		plan.NewStatus = models.StatusPendingChanges
		plan.ReviewedAt = &now
	default:
		return QCPlan{}, &TransitionError{From: string(sub.QCStatus), Event: string(action)}
	}
	return plan, nil
}

// ApplyQC copies plan onto sub.
func ApplyQC(sub *models.Submission, plan QCPlan) {
	sub.QCStatus = plan.NewQC
	sub.Status = plan.NewStatus
	sub.QCReviewer = plan.Reviewer
	sub.QCLeaseExpiresAt = plan.LeaseExpiresAt
	if plan.ReviewedAt != nil {
		sub.QCReviewedAt = plan.ReviewedAt
	}
}

func leaseActive(expires *time.Time, now time.Time) bool {
	return expires == nil || now.Before(*expires)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
