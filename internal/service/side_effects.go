package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/pkg/jobs"
	"github.com/noah-isme/doctor-voice-api/pkg/messaging"
)

// Job types handled by the background queue.
const (
	JobSheetSync = "sheet_sync"
	JobNotify    = "notify"
)

// SyncRequest is the payload of a sheet_sync job.
type SyncRequest struct {
	Reason       string
	SubmissionID string
}

type jobEnqueuer interface {
	TryEnqueue(job jobs.Job) error
}

// SideEffects hands fire-and-forget work to the job queue. Nothing it does
// can fail the calling request; a nil receiver drops everything.
type SideEffects struct {
	queue   jobEnqueuer
	metrics *MetricsService
	logger  *zap.Logger
}

// NewSideEffects constructs the dispatcher.
func NewSideEffects(queue jobEnqueuer, metrics *MetricsService, logger *zap.Logger) *SideEffects {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SideEffects{queue: queue, metrics: metrics, logger: logger}
}

// RequestSync schedules a spreadsheet rebuild.
func (s *SideEffects) RequestSync(reason, submissionID string) {
	s.enqueue(JobSheetSync, SyncRequest{Reason: reason, SubmissionID: submissionID})
}

// Notify schedules an outbound message.
func (s *SideEffects) Notify(msg messaging.Message) {
	if msg.To == "" {
		return
	}
	s.enqueue(JobNotify, msg)
}

func (s *SideEffects) enqueue(jobType string, payload interface{}) {
	if s == nil || s.queue == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: jobType, Payload: payload}
	if err := s.queue.TryEnqueue(job); err != nil {
		s.metrics.IncSideEffectFailure(jobType)
		s.logger.Warn("side effect dropped", zap.String("type", jobType), zap.Error(err))
	}
}

// NotifyHandler delivers notify jobs through sender.
func NotifyHandler(sender messaging.Sender, metrics *MetricsService) jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		msg, ok := job.Payload.(messaging.Message)
		if !ok {
			return fmt.Errorf("notify job %s: unexpected payload %T", job.ID, job.Payload)
		}
		if err := sender.Send(ctx, msg); err != nil {
			metrics.IncSideEffectFailure(JobNotify)
			return err
		}
		return nil
	}
}
