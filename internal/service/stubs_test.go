package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/repository"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	"github.com/noah-isme/doctor-voice-api/pkg/jobs"
	"github.com/noah-isme/doctor-voice-api/pkg/storage"
	"github.com/noah-isme/doctor-voice-api/pkg/voiceclone"
)

// memStore keeps submissions and their child rows in memory. Callbacks run
// against copies that are only committed when they succeed, like the
// transactional repositories.
type memStore struct {
	mu          sync.Mutex
	order       []string
	subs        map[string]*models.Submission
	audios      map[string]map[string]models.GeneratedAudio
	videos      map[string]map[string]models.GeneratedVideo
	history     map[string][]models.QCHistory
	otps        map[string]*models.ConsentOTP
	validations map[string][]repository.ValidationRecord
	createErr   error
}

func newMemStore() *memStore {
	return &memStore{
		subs:        map[string]*models.Submission{},
		audios:      map[string]map[string]models.GeneratedAudio{},
		videos:      map[string]map[string]models.GeneratedVideo{},
		history:     map[string][]models.QCHistory{},
		otps:        map[string]*models.ConsentOTP{},
		validations: map[string][]repository.ValidationRecord{},
	}
}

func (m *memStore) put(sub models.Submission) *models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.QCStatus == "" {
		sub.QCStatus = models.QCPending
	}
	if sub.ConsentStatus == "" {
		sub.ConsentStatus = models.ConsentPending
	}
	if sub.VoiceCloneStatus == "" {
		sub.VoiceCloneStatus = models.VoiceClonePending
	}
	if _, ok := m.subs[sub.ID]; !ok {
		m.order = append(m.order, sub.ID)
	}
	m.subs[sub.ID] = &sub
	out := sub
	return &out
}

func (m *memStore) snapshot(id string) models.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.subs[id]
}

func (m *memStore) Create(ctx context.Context, sub *models.Submission, validations []repository.ValidationRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.put(*sub)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations[sub.ID] = validations
	for _, lang := range sub.SelectedLanguages {
		m.setAudio(models.GeneratedAudio{ID: uuid.NewString(), SubmissionID: sub.ID, LanguageCode: lang, Status: models.MediaPending})
		m.setVideo(models.GeneratedVideo{ID: uuid.NewString(), SubmissionID: sub.ID, LanguageCode: lang, Status: models.MediaPending})
	}
	return nil
}

func (m *memStore) ListValidations(ctx context.Context, submissionID string, kind models.ValidationKind) ([]models.FileValidation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.FileValidation
	for _, rec := range m.validations[submissionID] {
		if rec.Kind == kind {
			out = append(out, rec.Validation)
		}
	}
	return out, nil
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *sub
	return &out, nil
}

func (m *memStore) List(ctx context.Context, filter models.SubmissionFilter) ([]models.Submission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Submission
	for _, id := range m.order {
		sub, ok := m.subs[id]
		if !ok {
			continue
		}
		if len(filter.Status) > 0 && !containsStatus(filter.Status, sub.Status) {
			continue
		}
		if len(filter.Status) == 0 && sub.Status == models.StatusDeleted {
			continue
		}
		if filter.MRCode != "" && sub.MRCode != filter.MRCode {
			continue
		}
		out = append(out, *sub)
	}
	return out, len(out), nil
}

func containsStatus(list []models.SubmissionStatus, status models.SubmissionStatus) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

func (m *memStore) ListReleaseCandidates(ctx context.Context, limit int) ([]models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Submission
	for _, id := range m.order {
		sub, ok := m.subs[id]
		if !ok || sub.VoiceCloneStatus != models.VoiceCloneCompleted {
			continue
		}
		if sub.Status != models.StatusCompleted && sub.Status != models.StatusFailed {
			continue
		}
		out = append(out, *sub)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Mutate(ctx context.Context, id string, fn func(sub *models.Submission) error) (*models.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	working := *current
	if err := fn(&working); err != nil {
		return nil, err
	}
	m.subs[id] = &working
	out := working
	return &out, nil
}

func (m *memStore) HardDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.subs, id)
	delete(m.audios, id)
	delete(m.videos, id)
	delete(m.history, id)
	delete(m.otps, id)
	return nil
}

func (m *memStore) setAudio(a models.GeneratedAudio) {
	if m.audios[a.SubmissionID] == nil {
		m.audios[a.SubmissionID] = map[string]models.GeneratedAudio{}
	}
	m.audios[a.SubmissionID][a.LanguageCode] = a
}

func (m *memStore) setVideo(v models.GeneratedVideo) {
	if m.videos[v.SubmissionID] == nil {
		m.videos[v.SubmissionID] = map[string]models.GeneratedVideo{}
	}
	m.videos[v.SubmissionID][v.LanguageCode] = v
}

func (m *memStore) UpsertAudio(ctx context.Context, audio *models.GeneratedAudio) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.audios[audio.SubmissionID][audio.LanguageCode]; ok {
		audio.ID = existing.ID
	} else if audio.ID == "" {
		audio.ID = uuid.NewString()
	}
	m.setAudio(*audio)
	return nil
}

func (m *memStore) RegisterVideo(ctx context.Context, video *models.GeneratedVideo, guard func(sub *models.Submission) error) (*repository.VideoRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[video.SubmissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	sub := *current
	if guard != nil {
		if err := guard(&sub); err != nil {
			return nil, err
		}
	}
	if existing, ok := m.videos[sub.ID][video.LanguageCode]; ok {
		video.ID = existing.ID
	} else if video.ID == "" {
		video.ID = uuid.NewString()
	}
	if video.AudioID == nil {
		if a, ok := m.audios[sub.ID][video.LanguageCode]; ok {
			id := a.ID
			video.AudioID = &id
		}
	}
	m.setVideo(*video)

	var videos []models.GeneratedVideo
	for _, v := range m.videos[sub.ID] {
		videos = append(videos, v)
	}
	d := workflow.DeriveAggregateStatus(&sub, videos)
	if d.Changed {
		previous := sub.QCStatus
		sub.Status = d.Status
		if d.ResetQC {
			sub.QCStatus = models.QCPending
			sub.QCReviewer = nil
			sub.QCLeaseExpiresAt = nil
			m.history[sub.ID] = append(m.history[sub.ID], models.QCHistory{
				ID: uuid.NewString(), SubmissionID: sub.ID, Action: models.QCActionResubmitted,
				PreviousStatus: previous, NewStatus: models.QCPending, Reviewer: "system",
			})
		}
		m.subs[sub.ID] = &sub
	}
	out := sub
	return &repository.VideoRegistration{Submission: &out, Video: video, Derivation: d}, nil
}

func (m *memStore) ListAudio(ctx context.Context, submissionID string) ([]models.GeneratedAudio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GeneratedAudio
	for _, a := range m.audios[submissionID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LanguageCode < out[j].LanguageCode })
	return out, nil
}

func (m *memStore) ListVideos(ctx context.Context, submissionID string) ([]models.GeneratedVideo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.GeneratedVideo
	for _, v := range m.videos[submissionID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LanguageCode < out[j].LanguageCode })
	return out, nil
}

func (m *memStore) Transition(ctx context.Context, id string, entry models.QCHistory, planner repository.QCPlanner) (*models.Submission, *models.QCHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[id]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	sub := *current
	plan, err := planner(&sub)
	if err != nil {
		return nil, nil, err
	}
	workflow.ApplyQC(&sub, plan)
	if plan.Action != models.QCActionStartReview {
		sub.QCNotes = entry.Notes
	}
	entry.ID = uuid.NewString()
	entry.SubmissionID = id
	entry.Action = plan.Action
	entry.PreviousStatus = plan.PreviousQC
	entry.NewStatus = plan.NewQC
	if entry.Reasons == nil {
		entry.Reasons = []string{}
	}
	m.subs[id] = &sub
	m.history[id] = append(m.history[id], entry)
	outSub := sub
	return &outSub, &entry, nil
}

func (m *memStore) History(ctx context.Context, submissionID string) ([]models.QCHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.QCHistory(nil), m.history[submissionID]...), nil
}

func (m *memStore) Issue(ctx context.Context, otp *models.ConsentOTP, guard func(sub *models.Submission) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[otp.SubmissionID]
	if !ok {
		return sql.ErrNoRows
	}
	sub := *current
	if guard != nil {
		if err := guard(&sub); err != nil {
			return err
		}
	}
	generation := 1
	if prev, ok := m.otps[otp.SubmissionID]; ok {
		generation = prev.Generation + 1
	}
	otp.Generation = generation
	otp.Attempts = 0
	otp.Status = models.OTPActive
	otp.VerifiedAt = nil
	stored := *otp
	m.otps[otp.SubmissionID] = &stored
	return nil
}

func (m *memStore) Get(ctx context.Context, submissionID string) (*models.ConsentOTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.otps[submissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *otp
	return &out, nil
}

func (m *memStore) Verify(ctx context.Context, submissionID string, check func(sub *models.Submission, otp *models.ConsentOTP) error) (*models.Submission, *models.ConsentOTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.subs[submissionID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	storedOTP, ok := m.otps[submissionID]
	if !ok {
		return nil, nil, sql.ErrNoRows
	}
	sub := *current
	otp := *storedOTP
	checkErr := check(&sub, &otp)
	m.subs[submissionID] = &sub
	m.otps[submissionID] = &otp
	outSub, outOTP := sub, otp
	return &outSub, &outOTP, checkErr
}

type memAudit struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	err     error
}

func (a *memAudit) Create(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, log)
	return nil
}

func (a *memAudit) ListByEntity(ctx context.Context, entity, entityID string, limit int) ([]models.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditLog
	for i := len(a.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if e := a.entries[i]; e.Entity == entity && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (a *memAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type memQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *memQueue) TryEnqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) ofType(jobType string) []jobs.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Job
	for _, j := range q.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	deleted []string
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string][]byte{}}
}

func (o *memObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (storage.Object, error) {
	if o.putErr != nil {
		return storage.Object{}, o.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.Object{}, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return storage.Object{Key: key, URL: o.PublicURL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (o *memObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *memObjects) Exists(ctx context.Context, key string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok, nil
}

func (o *memObjects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(o.objects, key)
	o.deleted = append(o.deleted, key)
	return nil
}

func (o *memObjects) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

type fakeVoiceProvider struct {
	mu        sync.Mutex
	createErr error
	speechErr map[string]error
	deleteErr error
	created   []voiceclone.CreateVoiceRequest
	converted []string
	deleted   []string
	output    []byte
}

func (p *fakeVoiceProvider) CreateVoice(ctx context.Context, in voiceclone.CreateVoiceRequest) (*voiceclone.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, in)
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &voiceclone.Voice{VoiceID: "voice-1"}, nil
}

func (p *fakeVoiceProvider) SpeechToSpeech(ctx context.Context, voiceID string, source io.Reader, filename string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.converted = append(p.converted, filename)
	if err := p.speechErr[filename]; err != nil {
		return nil, err
	}
	if p.output != nil {
		return p.output, nil
	}
	return []byte("generated-audio"), nil
}

func (p *fakeVoiceProvider) DeleteVoice(ctx context.Context, voiceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleteErr != nil {
		return p.deleteErr
	}
	p.deleted = append(p.deleted, voiceID)
	return nil
}

var errBoom = errors.New("boom")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
