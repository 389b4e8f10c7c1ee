package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/dto"
	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/media"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
)

type submissionStore interface {
	Create(ctx context.Context, sub *models.Submission, validations []repository.ValidationRecord) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error)
}

type validationReader interface {
	ListValidations(ctx context.Context, submissionID string, kind models.ValidationKind) ([]models.FileValidation, error)
}

type auditReader interface {
	ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]models.AuditLog, error)
}

type consentSender interface {
	Send(ctx context.Context, submissionID string, actor Actor) (*dto.SendConsentResponse, error)
}

// SubmissionConfig bounds intake payloads.
type SubmissionConfig struct {
	MaxLanguages      int
	MaxAudioFiles     int
	MaxUploadBytes    int64
	ImageMIMEs        []string
	AudioMIMEs        []string
	SendConsentOnSave bool
}

// SubmissionService accepts new submissions and serves submission reads.
type SubmissionService struct {
	store       submissionStore
	objects     storage.ObjectStore
	cfg         SubmissionConfig
	validator   *validator.Validate
	consent     consentSender
	sideEffects *SideEffects
	audit       auditWriter
	history     auditReader
	checks      validationReader
	metrics     *MetricsService
	cache       *CacheService
	logger      *zap.Logger
	inspect     func(data []byte, rules media.Rules) media.Report
}

// SubmissionServiceOption configures the service.
type SubmissionServiceOption func(*SubmissionService)

// WithSubmissionConsent sends the first consent code right after intake.
func WithSubmissionConsent(consent consentSender) SubmissionServiceOption {
	return func(s *SubmissionService) { s.consent = consent }
}

// WithSubmissionSideEffects enables sync requests after intake.
func WithSubmissionSideEffects(side *SideEffects) SubmissionServiceOption {
	return func(s *SubmissionService) { s.sideEffects = side }
}

// WithSubmissionAudit records intake events.
func WithSubmissionAudit(audit auditWriter) SubmissionServiceOption {
	return func(s *SubmissionService) { s.audit = audit }
}

// WithSubmissionHistory exposes the audit trail of a submission.
func WithSubmissionHistory(history auditReader) SubmissionServiceOption {
	return func(s *SubmissionService) { s.history = history }
}

// WithSubmissionValidations exposes stored intake checks.
func WithSubmissionValidations(checks validationReader) SubmissionServiceOption {
	return func(s *SubmissionService) { s.checks = checks }
}

// WithSubmissionMetrics counts accepted submissions.
func WithSubmissionMetrics(metrics *MetricsService) SubmissionServiceOption {
	return func(s *SubmissionService) { s.metrics = metrics }
}

// WithSubmissionCache invalidates cached summaries.
func WithSubmissionCache(cache *CacheService) SubmissionServiceOption {
	return func(s *SubmissionService) { s.cache = cache }
}

// WithSubmissionLogger overrides the logger.
func WithSubmissionLogger(logger *zap.Logger) SubmissionServiceOption {
	return func(s *SubmissionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSubmissionInspector overrides file inspection.
func WithSubmissionInspector(inspect func(data []byte, rules media.Rules) media.Report) SubmissionServiceOption {
	return func(s *SubmissionService) {
		if inspect != nil {
			s.inspect = inspect
		}
	}
}

// NewSubmissionService constructs the service.
func NewSubmissionService(store submissionStore, objects storage.ObjectStore, cfg SubmissionConfig, opts ...SubmissionServiceOption) *SubmissionService {
	if cfg.MaxLanguages <= 0 {
		cfg.MaxLanguages = 10
	}
	if cfg.MaxAudioFiles <= 0 {
		cfg.MaxAudioFiles = 5
	}
	svc := &SubmissionService{
		store:     store,
		objects:   objects,
		cfg:       cfg,
		validator: validator.New(),
		logger:    zap.NewNop(),
		inspect:   media.Inspect,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

type inspectedFile struct {
	kind     models.ValidationKind
	key      string
	data     []byte
	report   media.Report
	uploaded bool
}

// Create validates and stores uploaded files, then persists the submission.
func (s *SubmissionService) Create(ctx context.Context, in dto.CreateSubmissionUpload, actor Actor) (*dto.SubmissionResponse, error) {
	sub, err := s.prepare(in.SubmissionFields, actor)
	if err != nil {
		return nil, err
	}
	if len(in.Image.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "image file is required")
	}
	if len(in.Audio) == 0 || len(in.Audio) > s.cfg.MaxAudioFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("between 1 and %d audio files are required", s.cfg.MaxAudioFiles))
	}

	prefix := submissionPrefix(sub)
	files := make([]*inspectedFile, 0, len(in.Audio)+1)
	files = append(files, s.inspectFile(models.ValidationImage, in.Image.Data, func(ext string) string {
		return path.Join(prefix, "image"+ext)
	}))
	for i, audio := range in.Audio {
		idx := i
		files = append(files, s.inspectFile(models.ValidationAudio, audio.Data, func(ext string) string {
			return path.Join(prefix, "samples", fmt.Sprintf("%d%s", idx+1, ext))
		}))
	}
	if err := rejectInvalid(files, uploadNames(in)); err != nil {
		return nil, err
	}

	for _, f := range files {
		if _, err := s.objects.Put(ctx, f.key, bytes.NewReader(f.data), int64(len(f.data)), f.report.MIME); err != nil {
			s.removeUploaded(ctx, files)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store uploaded file")
		}
		f.uploaded = true
	}

	resp, err := s.persist(ctx, sub, files, actor)
	if err != nil {
		s.removeUploaded(ctx, files)
		return nil, err
	}
	return resp, nil
}

// CreateFromStorage registers a submission whose files were uploaded to the
// object store beforehand. Each referenced object is fetched and inspected.
func (s *SubmissionService) CreateFromStorage(ctx context.Context, in dto.CreateSubmissionFromStorageRequest, actor Actor) (*dto.SubmissionResponse, error) {
	if err := s.validator.Struct(in); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	sub, err := s.prepare(in.SubmissionFields, actor)
	if err != nil {
		return nil, err
	}
	if len(in.AudioPaths) > s.cfg.MaxAudioFiles {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d audio files are allowed", s.cfg.MaxAudioFiles))
	}

	refs := append([]string{in.ImagePath}, in.AudioPaths...)
	files := make([]*inspectedFile, 0, len(refs))
	for i, ref := range refs {
		kind := models.ValidationAudio
		if i == 0 {
			kind = models.ValidationImage
		}
		f, err := s.inspectStored(ctx, kind, ref)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	if err := rejectInvalid(files, refs); err != nil {
		return nil, err
	}
	return s.persist(ctx, sub, files, actor)
}

// Get returns one submission. MRs only see their own.
func (s *SubmissionService) Get(ctx context.Context, id string, actor Actor) (*models.Submission, error) {
	sub, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	if !canSee(actor, sub) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return sub, nil
}

// Validations returns the image and audio checks recorded at intake.
func (s *SubmissionService) Validations(ctx context.Context, id string, actor Actor) (*dto.SubmissionValidationsResponse, error) {
	if s.checks == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "validation history is not available")
	}
	if _, err := s.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	out := &dto.SubmissionValidationsResponse{SubmissionID: id}
	var err error
	if out.Images, err = s.checks.ListValidations(ctx, id, models.ValidationImage); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load image checks")
	}
	if out.Audio, err = s.checks.ListValidations(ctx, id, models.ValidationAudio); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audio checks")
	}
	if out.Images == nil {
		out.Images = []models.FileValidation{}
	}
	if out.Audio == nil {
		out.Audio = []models.FileValidation{}
	}
	return out, nil
}

// AuditTrail returns the newest audit entries of a submission, deleted ones included.
func (s *SubmissionService) AuditTrail(ctx context.Context, id string, limit int) ([]models.AuditLog, error) {
	if s.history == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "audit trail is not available")
	}
	if _, err := s.store.GetByID(ctx, id); err != nil {
		return nil, translateError(err, "failed to load submission")
	}
	logs, err := s.history.ListByEntity(ctx, entitySubmission, id, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit trail")
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}
	return logs, nil
}

// List returns a page of submissions. MRs are scoped to their own code.
func (s *SubmissionService) List(ctx context.Context, q dto.SubmissionListQuery, actor Actor) ([]models.Submission, *models.Pagination, error) {
	filter := models.SubmissionFilter{
		QCStatus:  q.QCStatus,
		MRCode:    q.MRCode,
		Search:    q.Search,
		Page:      q.Page,
		PageSize:  q.PageSize,
		SortOrder: q.SortOrder,
	}
	for _, st := range strings.Split(q.Status, ",") {
		if st = strings.TrimSpace(st); st != "" {
			filter.Status = append(filter.Status, models.SubmissionStatus(st))
		}
	}
	if actor.Role == models.RoleMR && actor.MRCode != nil {
		filter.MRCode = *actor.MRCode
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	subs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return subs, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *SubmissionService) prepare(fields dto.SubmissionFields, actor Actor) (*models.Submission, error) {
	if err := s.validator.Struct(fields); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	langs, err := NormalizeLanguages(fields.SelectedLanguages, s.cfg.MaxLanguages)
	if err != nil {
		return nil, err
	}
	return &models.Submission{
		ID:                uuid.NewString(),
		DoctorName:        strings.TrimSpace(fields.DoctorName),
		DoctorPhone:       strings.TrimSpace(fields.DoctorPhone),
		DoctorEmail:       strPtr(strings.TrimSpace(fields.DoctorEmail)),
		DoctorSpecialty:   strPtr(strings.TrimSpace(fields.DoctorSpecialty)),
		DoctorCity:        strPtr(strings.TrimSpace(fields.DoctorCity)),
		MRCode:            strings.TrimSpace(fields.MRCode),
		MRName:            strings.TrimSpace(fields.MRName),
		MRPhone:           strPtr(strings.TrimSpace(fields.MRPhone)),
		CreatedBy:         actor.idPtr(),
		SelectedLanguages: langs,
		Status:            models.StatusPendingConsent,
		ConsentStatus:     models.ConsentPending,
		VoiceCloneStatus:  models.VoiceClonePending,
		QCStatus:          models.QCPending,
	}, nil
}

func (s *SubmissionService) persist(ctx context.Context, sub *models.Submission, files []*inspectedFile, actor Actor) (*dto.SubmissionResponse, error) {
	records := make([]repository.ValidationRecord, 0, len(files))
	for _, f := range files {
		if f.kind == models.ValidationImage {
			sub.ImagePath = f.key
		} else {
			sub.AudioPaths = append(sub.AudioPaths, f.key)
		}
		records = append(records, repository.ValidationRecord{
			Kind: f.kind,
			Validation: models.FileValidation{
				StoragePath:     f.key,
				MIMEType:        f.report.MIME,
				SizeBytes:       f.report.SizeBytes,
				DurationSeconds: f.report.DurationSeconds,
				Valid:           f.report.Valid,
				Issues:          append([]string{}, f.report.Issues...),
			},
		})
	}

	if err := s.store.Create(ctx, sub, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}

	s.metrics.IncSubmissionsCreated()
	s.cache.InvalidateSubmission(ctx, sub.ID)
	s.sideEffects.RequestSync("submission_created", sub.ID)
	recordAudit(ctx, s.audit, s.logger, actor, models.AuditActionSubmissionCreate, sub.ID, map[string]interface{}{
		"languages": []string(sub.SelectedLanguages),
		"mr_code":   sub.MRCode,
	})

	resp := &dto.SubmissionResponse{Submission: sub}
	for _, r := range records {
		resp.Validations = append(resp.Validations, r.Validation)
	}
	if s.cfg.SendConsentOnSave && s.consent != nil {
		sent, err := s.consent.Send(ctx, sub.ID, actor)
		if err != nil {
			s.logger.Warn("failed to send consent code after intake", zap.String("submission_id", sub.ID), zap.Error(err))
		} else {
			resp.Consent = sent
		}
	}
	return resp, nil
}

func (s *SubmissionService) inspectFile(kind models.ValidationKind, data []byte, keyFor func(ext string) string) *inspectedFile {
	rules := media.Rules{AllowedMIMEs: s.cfg.AudioMIMEs, MaxBytes: s.cfg.MaxUploadBytes}
	if kind == models.ValidationImage {
		rules.AllowedMIMEs = s.cfg.ImageMIMEs
	}
	report := s.inspect(data, rules)
	return &inspectedFile{kind: kind, key: keyFor(report.Extension), data: data, report: report}
}

func (s *SubmissionService) inspectStored(ctx context.Context, kind models.ValidationKind, ref string) (*inspectedFile, error) {
	key, err := storage.CleanKey(ref)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid storage path %q", ref))
	}
	exists, err := s.objects.Exists(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check stored file")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("stored file %q not found", key))
	}
	rc, err := s.objects.Get(ctx, key)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stored file")
	}
	defer rc.Close()

	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read stored file")
	}
	f := s.inspectFile(kind, data, func(string) string { return key })
	f.data = nil
	return f, nil
}

func (s *SubmissionService) removeUploaded(ctx context.Context, files []*inspectedFile) {
	for _, f := range files {
		if !f.uploaded {
			continue
		}
		if err := s.objects.Delete(ctx, f.key); err != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("key", f.key), zap.Error(err))
		}
	}
}

func rejectInvalid(files []*inspectedFile, names []string) error {
	problems := make(map[string]interface{})
	for i, f := range files {
		if f.report.Valid {
			continue
		}
		name := f.key
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		problems[name] = f.report.Issues
	}
	if len(problems) == 0 {
		return nil
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "uploaded files failed validation"), map[string]interface{}{"files": problems})
}

func uploadNames(in dto.CreateSubmissionUpload) []string {
	names := []string{in.Image.Filename}
	for _, a := range in.Audio {
		names = append(names, a.Filename)
	}
	return names
}

// submissionPrefix is the storage folder of a submission.
func submissionPrefix(sub *models.Submission) string {
	return path.Join("submissions", slug.Make(sub.DoctorName)+"-"+sub.ID)
}

func canSee(actor Actor, sub *models.Submission) bool {
	if actor.Role != models.RoleMR || actor.MRCode == nil {
		return true
	}
	return *actor.MRCode == sub.MRCode
}
