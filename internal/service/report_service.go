package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/export"
	"github.com/noah-isme/doctor-voice-api/pkg/jobs"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
)

type reportStore interface {
	LanguageRows(ctx context.Context, filter repository.ReportFilter) ([]models.LanguageReportRow, error)
	CountByStatus(ctx context.Context, column string) ([]models.StatusCount, error)
	CountVideosByStatus(ctx context.Context) ([]models.StatusCount, error)
}

// ReportServiceConfig governs the summary cache and the workbook sync.
type ReportServiceConfig struct {
	SummaryTTL   time.Duration
	SyncEnabled  bool
	WorkbookKey  string
	WorkbookName string
}

// ReportService serves the per-language reporting projection: exports, the
// dashboard summary and the workbook sync.
type ReportService struct {
	repo    reportStore
	objects storage.ObjectStore
	cache   *CacheService
	logger  *zap.Logger
	cfg     ReportServiceConfig
	now     func() time.Time
}

// languageReportHeaders is the column order of exports and the workbook.
var languageReportHeaders = []string{
	"Submission ID", "Doctor", "Doctor Phone", "MR Code", "MR Name", "Language",
	"Status", "Consent", "Voice Clone", "QC", "Audio Status", "Audio URL",
	"Video Status", "Video URL", "Created At", "Updated At", "QC Reviewed At",
}

// NewReportService constructs the report service.
func NewReportService(repo reportStore, objects storage.ObjectStore, cache *CacheService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkbookKey == "" {
		cfg.WorkbookKey = "reports/submissions.xlsx"
	}
	if cfg.WorkbookName == "" {
		cfg.WorkbookName = "Submissions"
	}
	return &ReportService{
		repo:    repo,
		objects: objects,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LanguageRows returns the projection filtered by q.
func (s *ReportService) LanguageRows(ctx context.Context, q dto.LanguageReportQuery, actor Actor) ([]models.LanguageReportRow, error) {
	filter, err := reportFilter(q, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.LanguageRows(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load language report")
	}
	if rows == nil {
		rows = []models.LanguageReportRow{}
	}
	return rows, nil
}

// Export renders the projection as csv, pdf or xlsx.
func (s *ReportService) Export(ctx context.Context, q dto.LanguageReportQuery, actor Actor) (*dto.ExportFile, error) {
	renderer, err := export.ForFormat(strings.ToLower(q.Format))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be json, csv, pdf or xlsx")
	}
	rows, err := s.LanguageRows(ctx, q, actor)
	if err != nil {
		return nil, err
	}
	body, err := renderer.Render(languageDataset(s.cfg.WorkbookName, rows))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return &dto.ExportFile{
		Filename:    fmt.Sprintf("language-report-%s.%s", s.now().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Body:        body,
	}, nil
}

// Summary returns submission counts, served from cache when possible.
func (s *ReportService) Summary(ctx context.Context) (*models.DashboardSummary, error) {
	var cached models.DashboardSummary
	if s.cache.Get(ctx, cacheKeyDashboard, &cached) {
		cached.FromCache = true
		return &cached, nil
	}

	summary := &models.DashboardSummary{
		ByStatus:      map[string]int{},
		ByQCStatus:    map[string]int{},
		ByVoiceStatus: map[string]int{},
		GeneratedAt:   s.now(),
	}
	groups := []struct {
		column string
		into   map[string]int
	}{
		{"status", summary.ByStatus},
		{"qc_status", summary.ByQCStatus},
		{"voice_clone_status", summary.ByVoiceStatus},
	}
	for _, g := range groups {
		counts, err := s.repo.CountByStatus(ctx, g.column)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count submissions")
		}
		for _, c := range counts {
			g.into[c.Status] = c.Count
		}
	}
	for _, count := range summary.ByStatus {
		summary.Total += count
	}
	summary.PendingQC = summary.ByStatus[string(models.StatusPendingQC)]

	videos, err := s.repo.CountVideosByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count videos")
	}
	for _, c := range videos {
		switch models.MediaStatus(c.Status) {
		case models.MediaCompleted:
			summary.VideosCompleted = c.Count
		case models.MediaFailed:
			summary.VideosFailed = c.Count
		}
	}

	s.cache.Set(ctx, cacheKeyDashboard, summary, s.cfg.SummaryTTL)
	return summary, nil
}

// SyncWorkbook rebuilds the full workbook and writes it to storage.
func (s *ReportService) SyncWorkbook(ctx context.Context) (*dto.SyncResult, error) {
	rows, err := s.repo.LanguageRows(ctx, repository.ReportFilter{})
	if err != nil {
		return nil, fmt.Errorf("load report rows: %w", err)
	}
	body, err := export.NewXLSXExporter().Render(languageDataset(s.cfg.WorkbookName, rows))
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	obj, err := s.objects.Put(ctx, s.cfg.WorkbookKey, bytes.NewReader(body), int64(len(body)), export.NewXLSXExporter().ContentType())
	if err != nil {
		return nil, fmt.Errorf("store workbook: %w", err)
	}
	return &dto.SyncResult{Key: obj.Key, URL: obj.URL, Rows: len(rows), SizeBytes: len(body)}, nil
}

// SyncHandler handles sheet_sync jobs. When sync is disabled jobs are
// acknowledged without work.
func (s *ReportService) SyncHandler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		if !s.cfg.SyncEnabled || s.objects == nil {
			return nil
		}
		req, _ := job.Payload.(SyncRequest)
		result, err := s.SyncWorkbook(ctx)
		if err != nil {
			return err
		}
		s.logger.Debug("workbook synced",
			zap.String("reason", req.Reason),
			zap.String("submission_id", req.SubmissionID),
			zap.Int("rows", result.Rows))
		return nil
	}
}

func reportFilter(q dto.LanguageReportQuery, actor Actor) (repository.ReportFilter, error) {
	filter := repository.ReportFilter{MRCode: strings.TrimSpace(q.MRCode)}
	for _, st := range strings.Split(q.Status, ",") {
		if st = strings.TrimSpace(st); st != "" {
			filter.Status = append(filter.Status, models.SubmissionStatus(st))
		}
	}
	if actor.Role == models.RoleMR && actor.MRCode != nil {
		filter.MRCode = *actor.MRCode
	}
	var err error
	if filter.From, err = parseReportDate(q.From, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = parseReportDate(q.To, "to"); err != nil {
		return filter, err
	}
	if filter.To != nil {
		end := filter.To.Add(24 * time.Hour)
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return filter, appErrors.Clone(appErrors.ErrValidation, "from must be before to")
	}
	return filter, nil
}

func parseReportDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, field+" must be YYYY-MM-DD")
	}
	return &t, nil
}

func languageDataset(title string, rows []models.LanguageReportRow) export.Dataset {
	data := export.Dataset{Title: title, Headers: languageReportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, r := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"Submission ID":  r.SubmissionID,
			"Doctor":         r.DoctorName,
			"Doctor Phone":   r.DoctorPhone,
			"MR Code":        r.MRCode,
			"MR Name":        r.MRName,
			"Language":       r.LanguageCode,
			"Status":         r.SubmissionStatus,
			"Consent":        r.ConsentStatus,
			"Voice Clone":    r.VoiceCloneStatus,
			"QC":             r.QCStatus,
			"Audio Status":   orDefault(r.AudioStatus, string(models.MediaPending)),
			"Audio URL":      orDefault(r.AudioURL, ""),
			"Video Status":   orDefault(r.VideoStatus, string(models.MediaPending)),
			"Video URL":      orDefault(r.VideoURL, ""),
			"Created At":     r.CreatedAt.UTC().Format(time.RFC3339),
			"Updated At":     r.UpdatedAt.UTC().Format(time.RFC3339),
			"QC Reviewed At": formatOptionalTime(r.QCReviewedAt),
		})
	}
	return data
}

func orDefault(v *string, fallback string) string {
	if v == nil || *v == "" {
		return fallback
	}
	return *v
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
