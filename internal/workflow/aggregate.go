package workflow

import "github.com/noah-isme/doctor-voice-api/internal/models"

// Statuses that per-language events may never move a submission out of.
var frozen = map[models.SubmissionStatus]bool{
	models.StatusQCApproved: true,
	models.StatusCompleted:  true,
	models.StatusFailed:     true,
	models.StatusDeleted:    true,
}

// Derivation is the outcome of DeriveAggregateStatus.
type Derivation struct {
	Status    models.SubmissionStatus
	Changed   bool
	ResetQC   bool
	Completed int
	Total     int
}

// AllComplete reports whether every selected language has a completed video.
func (d Derivation) AllComplete() bool {
	return d.Total > 0 && d.Completed >= d.Total
}

// CompletedVideoLanguages counts distinct selected languages that have a
// completed video row.
func CompletedVideoLanguages(selected []string, videos []models.GeneratedVideo) int {
	wanted := make(map[string]bool, len(selected))
	for _, lang := range selected {
		wanted[lang] = true
	}
	seen := make(map[string]bool, len(videos))
	for _, v := range videos {
		if v.Status == models.MediaCompleted && wanted[v.LanguageCode] {
			seen[v.LanguageCode] = true
		}
	}
	return len(seen)
}

// DeriveAggregateStatus recomputes the submission status from committed video
// rows. Readiness for QC counts videos only; audio outcomes are ignored.
// Submissions already in pending_qc or a frozen status are left untouched, so
// repeated calls are idempotent.
func DeriveAggregateStatus(sub *models.Submission, videos []models.GeneratedVideo) Derivation {
	d := Derivation{
		Status:    sub.Status,
		Completed: CompletedVideoLanguages(sub.SelectedLanguages, videos),
		Total:     len(sub.SelectedLanguages),
	}
	if frozen[sub.Status] || sub.Status == models.StatusPendingQC {
		return d
	}
	if !d.AllComplete() {
		return d
	}
	d.Status = models.StatusPendingQC
	d.Changed = true
	d.ResetQC = sub.QCStatus == models.QCRejected
	return d
}

// IsFrozen reports whether status ignores per-language events.
func IsFrozen(status models.SubmissionStatus) bool {
	return frozen[status]
}
