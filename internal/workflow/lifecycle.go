package workflow

import (
	"time"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// Event is an explicit lifecycle operation on a submission.
type Event string

const (
	EventConsentVerified   Event = "consent_verified"
	EventProcessingStarted Event = "processing_started"
	EventComplete          Event = "complete"
	EventFail              Event = "fail"
	EventRetry             Event = "retry"
	EventDelete            Event = "delete"
)

type rule struct {
	from map[models.SubmissionStatus]models.SubmissionStatus
	// resolve overrides from for events whose target depends on other fields.
	resolve func(sub *models.Submission) (models.SubmissionStatus, bool)
}

var rules = map[Event]rule{
	EventConsentVerified: {from: map[models.SubmissionStatus]models.SubmissionStatus{
		models.StatusPendingConsent: models.StatusConsentVerified,
	}},
	EventProcessingStarted: {from: map[models.SubmissionStatus]models.SubmissionStatus{
		models.StatusConsentVerified: models.StatusProcessing,
		models.StatusProcessing:      models.StatusProcessing,
		models.StatusPendingChanges:  models.StatusProcessing,
		models.StatusQCRejected:      models.StatusProcessing,
		models.StatusPendingQC:       models.StatusPendingQC,
	}},
	EventComplete: {from: map[models.SubmissionStatus]models.SubmissionStatus{
		models.StatusQCApproved: models.StatusCompleted,
	}},
	EventFail: {resolve: func(sub *models.Submission) (models.SubmissionStatus, bool) {
		switch sub.Status {
		case models.StatusQCApproved, models.StatusCompleted, models.StatusFailed, models.StatusDeleted:
			return "", false
		}
		return models.StatusFailed, true
	}},
	EventRetry: {resolve: func(sub *models.Submission) (models.SubmissionStatus, bool) {
		if sub.Status != models.StatusFailed {
			return "", false
		}
		if sub.ConsentStatus == models.ConsentVerified {
			return models.StatusConsentVerified, true
		}
		return models.StatusPendingConsent, true
	}},
	EventDelete: {resolve: func(sub *models.Submission) (models.SubmissionStatus, bool) {
		if sub.Status == models.StatusDeleted {
			return "", false
		}
		return models.StatusDeleted, true
	}},
}

// Apply returns the status the submission moves to for event.
func Apply(sub *models.Submission, event Event) (models.SubmissionStatus, error) {
	r, ok := rules[event]
	if !ok {
		return "", &TransitionError{From: string(sub.Status), Event: string(event)}
	}
	if r.resolve != nil {
		if to, ok := r.resolve(sub); ok {
			return to, nil
		}
		return "", &TransitionError{From: string(sub.Status), Event: string(event)}
	}
	to, ok := r.from[sub.Status]
	if !ok {
		return "", &TransitionError{From: string(sub.Status), Event: string(event)}
	}
	return to, nil
}

// CanTransition reports whether event is allowed for sub.
func CanTransition(sub *models.Submission, event Event) bool {
	_, err := Apply(sub, event)
	return err == nil
}

// ReleaseEligible reports whether the provider voice may be deleted: the
// submission has settled as completed or failed and has been idle for at
// least cooldown.
func ReleaseEligible(sub *models.Submission, now time.Time, cooldown time.Duration) bool {
	if sub.VoiceCloneStatus != models.VoiceCloneCompleted || sub.VoiceID == nil || *sub.VoiceID == "" {
		return false
	}
	if sub.Status != models.StatusCompleted && sub.Status != models.StatusFailed {
		return false
	}
	settled := sub.UpdatedAt
	if sub.CompletedAt != nil {
		settled = *sub.CompletedAt
	}
	return now.Sub(settled) >= cooldown
}
