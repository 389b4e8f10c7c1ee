package workflow

import "github.com/noah-isme/doctor-voice-api/internal/models"

// LanguageState is the per-language progress line.
type LanguageState struct {
	LanguageCode  string                 `json:"language_code"`
	LanguageName  string                 `json:"language_name"`
	AudioStatus   models.MediaStatus     `json:"audio_status"`
	VideoStatus   models.MediaStatus     `json:"video_status"`
	AudioComplete bool                   `json:"audio_complete"`
	VideoComplete bool                   `json:"video_complete"`
	ReadyForQC    bool                   `json:"ready_for_qc"`
	AudioError    *string                `json:"audio_error,omitempty"`
	VideoError    *string                `json:"video_error,omitempty"`
	Audio         *models.GeneratedAudio `json:"audio,omitempty"`
	Video         *models.GeneratedVideo `json:"video,omitempty"`
}

// LanguageSummary aggregates LanguageState lines.
type LanguageSummary struct {
	Total          int  `json:"total"`
	AudioCompleted int  `json:"audio_completed"`
	VideoCompleted int  `json:"video_completed"`
	ReadyForQC     int  `json:"ready_for_qc"`
	Failed         int  `json:"failed"`
	AllComplete    bool `json:"all_complete"`
}

// Summarize lines up audio and video rows against the selected languages in
// selection order. Missing rows read as pending.
func Summarize(sub *models.Submission, audios []models.GeneratedAudio, videos []models.GeneratedVideo) ([]LanguageState, LanguageSummary) {
	audioBy := make(map[string]*models.GeneratedAudio, len(audios))
	for i := range audios {
		audioBy[audios[i].LanguageCode] = &audios[i]
	}
	videoBy := make(map[string]*models.GeneratedVideo, len(videos))
	for i := range videos {
		videoBy[videos[i].LanguageCode] = &videos[i]
	}

	states := make([]LanguageState, 0, len(sub.SelectedLanguages))
	summary := LanguageSummary{Total: len(sub.SelectedLanguages)}
	for _, code := range sub.SelectedLanguages {
		lang, _ := models.LookupLanguage(code)
		st := LanguageState{
			LanguageCode: code,
			LanguageName: lang.Name,
			AudioStatus:  models.MediaPending,
			VideoStatus:  models.MediaPending,
		}
		if a := audioBy[code]; a != nil {
			st.Audio = a
			st.AudioStatus = a.Status
			st.AudioError = a.ErrorMessage
		}
		if v := videoBy[code]; v != nil {
			st.Video = v
			st.VideoStatus = v.Status
			st.VideoError = v.ErrorMessage
		}
		st.AudioComplete = st.AudioStatus == models.MediaCompleted
		st.VideoComplete = st.VideoStatus == models.MediaCompleted
		st.ReadyForQC = st.VideoComplete

		if st.AudioComplete {
			summary.AudioCompleted++
		}
		if st.VideoComplete {
			summary.VideoCompleted++
		}
		if st.ReadyForQC {
			summary.ReadyForQC++
		}
		if st.AudioStatus == models.MediaFailed || st.VideoStatus == models.MediaFailed {
			summary.Failed++
		}
		states = append(states, st)
	}
	summary.AllComplete = summary.Total > 0 && summary.ReadyForQC == summary.Total
	return states, summary
}
