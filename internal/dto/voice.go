package dto

import (
	"time"

	"github.com/noah-isme/doctor-voice-api/internal/models"
)

// LanguageResult is the outcome of speech generation for one language.
type LanguageResult struct {
	LanguageCode    string             `json:"language_code"`
	Status          models.MediaStatus `json:"status"`
	AudioURL        *string            `json:"audio_url,omitempty"`
	StoragePath     *string            `json:"storage_path,omitempty"`
	DurationSeconds *float64           `json:"duration_seconds,omitempty"`
	Error           *string            `json:"error,omitempty"`
}

// ProcessVoiceResponse is returned by voice processing.
type ProcessVoiceResponse struct {
	SubmissionID     string                  `json:"submission_id"`
	Status           models.SubmissionStatus `json:"status"`
	VoiceCloneStatus models.VoiceCloneStatus `json:"voice_clone_status"`
	VoiceID          *string                 `json:"voice_id,omitempty"`
	Results          []LanguageResult        `json:"results"`
	Completed        int                     `json:"completed"`
	Failed           int                     `json:"failed"`
}

// ReleaseVoiceResponse is returned after a provider voice is deleted.
type ReleaseVoiceResponse struct {
	SubmissionID     string                  `json:"submission_id"`
	VoiceCloneStatus models.VoiceCloneStatus `json:"voice_clone_status"`
	ReleasedAt       *time.Time              `json:"released_at,omitempty"`
}

// ReleaseSweepResult summarises one cleanup pass.
type ReleaseSweepResult struct {
	Scanned  int      `json:"scanned"`
	Released []string `json:"released"`
	Failed   []string `json:"failed"`
}
