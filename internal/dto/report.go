package dto

// LanguageReportQuery filters the per-language report.
type LanguageReportQuery struct {
	Format string `form:"format"`
	Status string `form:"status"`
	MRCode string `form:"mr_code"`
	From   string `form:"from"`
	To     string `form:"to"`
}

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// SyncResult describes one workbook rebuild.
type SyncResult struct {
	Key       string `json:"key"`
	URL       string `json:"url"`
	Rows      int    `json:"rows"`
	SizeBytes int    `json:"size_bytes"`
}
