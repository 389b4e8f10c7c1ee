package models

import (
	"time"

	"github.com/lib/pq"
)

// MediaStatus is the lifecycle of a per-language audio or video row.
type MediaStatus string

const (
	MediaPending    MediaStatus = "pending"
	MediaProcessing MediaStatus = "processing"
	MediaCompleted  MediaStatus = "completed"
	MediaFailed     MediaStatus = "failed"
)

// Valid reports whether s is a known media status.
func (s MediaStatus) Valid() bool {
	switch s {
	case MediaPending, MediaProcessing, MediaCompleted, MediaFailed:
		return true
	}
	return false
}

// GeneratedAudio is the current speech output for one (submission, language).
type GeneratedAudio struct {
	ID              string      `db:"id" json:"id"`
	SubmissionID    string      `db:"submission_id" json:"submission_id"`
	LanguageCode    string      `db:"language_code" json:"language_code"`
	Status          MediaStatus `db:"status" json:"status"`
	ErrorMessage    *string     `db:"error_message" json:"error_message,omitempty"`
	StoragePath     *string     `db:"storage_path" json:"storage_path,omitempty"`
	PublicURL       *string     `db:"public_url" json:"public_url,omitempty"`
	DurationSeconds *float64    `db:"duration_seconds" json:"duration_seconds,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// GeneratedVideo is the current video output for one (submission, language).
// AudioID points at the audio row used to produce it, if known.
type GeneratedVideo struct {
	ID              string      `db:"id" json:"id"`
	SubmissionID    string      `db:"submission_id" json:"submission_id"`
	LanguageCode    string      `db:"language_code" json:"language_code"`
	AudioID         *string     `db:"audio_id" json:"audio_id,omitempty"`
	Status          MediaStatus `db:"status" json:"status"`
	ErrorMessage    *string     `db:"error_message" json:"error_message,omitempty"`
	StoragePath     *string     `db:"storage_path" json:"storage_path,omitempty"`
	PublicURL       *string     `db:"public_url" json:"public_url,omitempty"`
	DurationSeconds *float64    `db:"duration_seconds" json:"duration_seconds,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// FileValidation records the inspection of one uploaded image or audio file.
type FileValidation struct {
	ID              string         `db:"id" json:"id"`
	SubmissionID    string         `db:"submission_id" json:"submission_id"`
	StoragePath     string         `db:"storage_path" json:"storage_path"`
	MIMEType        string         `db:"mime_type" json:"mime_type"`
	SizeBytes       int64          `db:"size_bytes" json:"size_bytes"`
	DurationSeconds *float64       `db:"duration_seconds" json:"duration_seconds,omitempty"`
	Valid           bool           `db:"valid" json:"valid"`
	Issues          pq.StringArray `db:"issues" json:"issues"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
}

// ValidationKind selects the validation table.
type ValidationKind string

const (
	ValidationImage ValidationKind = "image"
	ValidationAudio ValidationKind = "audio"
)
