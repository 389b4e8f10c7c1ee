package dto

import "github.com/noah-isme/doctor-voice-api/internal/models"

// SubmissionFields are the doctor and MR details captured at intake.
type SubmissionFields struct {
	DoctorName        string   `json:"doctor_name" form:"doctor_name" validate:"required,min=2,max=120"`
	DoctorPhone       string   `json:"doctor_phone" form:"doctor_phone" validate:"required,min=8,max=20"`
	DoctorEmail       string   `json:"doctor_email" form:"doctor_email" validate:"omitempty,email"`
	DoctorSpecialty   string   `json:"doctor_specialty" form:"doctor_specialty" validate:"omitempty,max=120"`
	DoctorCity        string   `json:"doctor_city" form:"doctor_city" validate:"omitempty,max=120"`
	MRCode            string   `json:"mr_code" form:"mr_code" validate:"required,max=32"`
	MRName            string   `json:"mr_name" form:"mr_name" validate:"required,max=120"`
	MRPhone           string   `json:"mr_phone" form:"mr_phone" validate:"omitempty,min=8,max=20"`
	SelectedLanguages []string `json:"selected_languages" form:"selected_languages" validate:"required,min=1"`
}

// UploadedFile is one multipart file read into memory.
type UploadedFile struct {
	Filename string
	Data     []byte
}

// CreateSubmissionUpload is the multipart intake payload.
type CreateSubmissionUpload struct {
	SubmissionFields
	Image UploadedFile
	Audio []UploadedFile
}

// CreateSubmissionFromStorageRequest registers files already in the object store.
type CreateSubmissionFromStorageRequest struct {
	SubmissionFields
	ImagePath  string   `json:"image_path" validate:"required"`
	AudioPaths []string `json:"audio_paths" validate:"required,min=1,dive,required"`
}

// SubmissionResponse is returned after intake.
type SubmissionResponse struct {
	Submission  *models.Submission      `json:"submission"`
	Validations []models.FileValidation `json:"validations"`
	Consent     *SendConsentResponse    `json:"consent,omitempty"`
}

// SubmissionValidationsResponse lists intake checks per file kind.
type SubmissionValidationsResponse struct {
	SubmissionID string                  `json:"submission_id"`
	Images       []models.FileValidation `json:"images"`
	Audio        []models.FileValidation `json:"audio"`
}

// AuditTrailQuery bounds the audit listing.
type AuditTrailQuery struct {
	Limit int `form:"limit"`
}

// SubmissionListQuery maps list query parameters.
type SubmissionListQuery struct {
	Status    string `form:"status"`
	QCStatus  string `form:"qc_status"`
	MRCode    string `form:"mr_code"`
	Search    string `form:"search"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	SortOrder string `form:"sort_order"`
}
