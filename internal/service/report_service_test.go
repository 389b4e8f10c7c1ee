package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/jobs"
)

type stubReportStore struct {
	rows       []models.LanguageReportRow
	counts     map[string][]models.StatusCount
	videos     []models.StatusCount
	filters    []repository.ReportFilter
	countCalls int
}

func (s *stubReportStore) LanguageRows(ctx context.Context, filter repository.ReportFilter) ([]models.LanguageReportRow, error) {
	s.filters = append(s.filters, filter)
	return s.rows, nil
}

func (s *stubReportStore) CountByStatus(ctx context.Context, column string) ([]models.StatusCount, error) {
	s.countCalls++
	return s.counts[column], nil
}

func (s *stubReportStore) CountVideosByStatus(ctx context.Context) ([]models.StatusCount, error) {
	return s.videos, nil
}

type memCacheRepo struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]time.Duration
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{items: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memCacheRepo) Invalidate(ctx context.Context, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, pattern)
	return nil
}

func sampleReportRows() []models.LanguageReportRow {
	created := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	audio := "completed"
	url := "https://cdn.test/submissions/1/audio/en.mp3"
	return []models.LanguageReportRow{
		{SubmissionID: "s-1", DoctorName: "Rao", DoctorPhone: "+919800000001", MRCode: "MR01", MRName: "Asha", LanguageCode: "en",
			SubmissionStatus: "processing", ConsentStatus: "verified", VoiceCloneStatus: "completed", QCStatus: "pending",
			AudioStatus: &audio, AudioURL: &url, CreatedAt: created, UpdatedAt: created},
		{SubmissionID: "s-1", DoctorName: "Rao", DoctorPhone: "+919800000001", MRCode: "MR01", MRName: "Asha", LanguageCode: "hi",
			SubmissionStatus: "processing", ConsentStatus: "verified", VoiceCloneStatus: "completed", QCStatus: "pending",
			CreatedAt: created, UpdatedAt: created},
	}
}

func TestReportLanguageRowsFilter(t *testing.T) {
	store := &stubReportStore{}
	svc := NewReportService(store, nil, nil, nil, ReportServiceConfig{})

	rows, err := svc.LanguageRows(context.Background(), dto.LanguageReportQuery{Status: "pending_qc, qc_approved", From: "2026-02-01", To: "2026-02-28", MRCode: "MR09"}, SystemActor)
	require.NoError(t, err)
	assert.NotNil(t, rows)

	require.Len(t, store.filters, 1)
	filter := store.filters[0]
	assert.Equal(t, []models.SubmissionStatus{models.StatusPendingQC, models.StatusQCApproved}, filter.Status)
	assert.Equal(t, "MR09", filter.MRCode)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *filter.From)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), *filter.To)
}

func TestReportLanguageRowsScopesMR(t *testing.T) {
	store := &stubReportStore{}
	svc := NewReportService(store, nil, nil, nil, ReportServiceConfig{})
	code := "MR01"

	_, err := svc.LanguageRows(context.Background(), dto.LanguageReportQuery{MRCode: "MR09"}, Actor{Role: models.RoleMR, MRCode: &code})
	require.NoError(t, err)
	assert.Equal(t, "MR01", store.filters[0].MRCode)
}

func TestReportLanguageRowsRejectsBadDates(t *testing.T) {
	svc := NewReportService(&stubReportStore{}, nil, nil, nil, ReportServiceConfig{})

	_, err := svc.LanguageRows(context.Background(), dto.LanguageReportQuery{From: "01/02/2026"}, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.LanguageRows(context.Background(), dto.LanguageReportQuery{From: "2026-03-05", To: "2026-03-01"}, SystemActor)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from must be before to")
}

func TestReportExportFormats(t *testing.T) {
	store := &stubReportStore{rows: sampleReportRows()}
	svc := NewReportService(store, nil, nil, nil, ReportServiceConfig{})
	svc.now = fixedClock(time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC))

	csvFile, err := svc.Export(context.Background(), dto.LanguageReportQuery{Format: "CSV"}, SystemActor)
	require.NoError(t, err)
	assert.Equal(t, "language-report-20260301-093000.csv", csvFile.Filename)
	assert.Equal(t, "text/csv", csvFile.ContentType)
	lines := strings.Split(strings.TrimSpace(string(csvFile.Body)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Submission ID,Doctor"))
	assert.Contains(t, lines[2], ",hi,")
	assert.Contains(t, lines[2], "pending")

	xlsx, err := svc.Export(context.Background(), dto.LanguageReportQuery{Format: "xlsx"}, SystemActor)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(xlsx.Filename, ".xlsx"))
	assert.NotEmpty(t, xlsx.Body)

	pdf, err := svc.Export(context.Background(), dto.LanguageReportQuery{Format: "pdf"}, SystemActor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(pdf.Body), "%PDF"))

	_, err = svc.Export(context.Background(), dto.LanguageReportQuery{Format: "docx"}, SystemActor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportSummaryIsCached(t *testing.T) {
	store := &stubReportStore{
		counts: map[string][]models.StatusCount{
			"status":             {{Status: "pending_qc", Count: 3}, {Status: "completed", Count: 2}},
			"qc_status":          {{Status: "pending", Count: 3}, {Status: "approved", Count: 2}},
			"voice_clone_status": {{Status: "completed", Count: 5}},
		},
		videos: []models.StatusCount{{Status: "completed", Count: 8}, {Status: "failed", Count: 1}},
	}
	cacheRepo := newMemCacheRepo()
	cache := NewCacheService(cacheRepo, nil, time.Minute, nil, true)
	svc := NewReportService(store, nil, cache, nil, ReportServiceConfig{SummaryTTL: 30 * time.Second})

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 3, summary.PendingQC)
	assert.Equal(t, 8, summary.VideosCompleted)
	assert.Equal(t, 1, summary.VideosFailed)
	assert.Equal(t, 5, summary.ByVoiceStatus["completed"])
	assert.Equal(t, 30*time.Second, cacheRepo.ttls[cacheKeyDashboard])

	again, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, again.Total)
	assert.True(t, again.FromCache)
	assert.False(t, summary.FromCache)
	assert.Equal(t, 3, store.countCalls)

	cache.InvalidateSubmission(context.Background(), "s-1")
	_, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, store.countCalls)
}

func TestReportSyncHandler(t *testing.T) {
	store := &stubReportStore{rows: sampleReportRows()}
	objects := newMemObjects()
	job := jobs.Job{ID: "j-1", Type: JobSheetSync, Payload: SyncRequest{Reason: "qc_approve", SubmissionID: "s-1"}}

	disabled := NewReportService(store, objects, nil, nil, ReportServiceConfig{})
	require.NoError(t, disabled.SyncHandler()(context.Background(), job))
	assert.Empty(t, objects.objects)

	enabled := NewReportService(store, objects, nil, nil, ReportServiceConfig{SyncEnabled: true})
	require.NoError(t, enabled.SyncHandler()(context.Background(), job))
	assert.NotEmpty(t, objects.objects["reports/submissions.xlsx"])

	objects.putErr = errBoom
	assert.Error(t, enabled.SyncHandler()(context.Background(), job))
}
