package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	"github.com/noah-isme/doctor-voice-api/pkg/database"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

const (
	entitySubmission = "submission"
	entityUser       = "user"
)

// Actor identifies who triggered an operation.
type Actor struct {
	ID     string
	Name   string
	Role   models.UserRole
	MRCode *string
	IP     string
}

// SystemActor is used for scheduled and background work.
var SystemActor = Actor{Name: "system"}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) label() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return SystemActor.Name
}

type auditWriter interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// recordAudit writes a submission audit row and only logs on failure.
func recordAudit(ctx context.Context, w auditWriter, logger *zap.Logger, actor Actor, action, entityID string, details interface{}) {
	recordEntityAudit(ctx, w, logger, actor, action, entitySubmission, entityID, details)
}

func recordEntityAudit(ctx context.Context, w auditWriter, logger *zap.Logger, actor Actor, action, entity, entityID string, details interface{}) {
	if w == nil {
		return
	}
	entry := &models.AuditLog{
		ActorID:   actor.idPtr(),
		Actor:     actor.label(),
		Action:    action,
		Entity:    entity,
		IPAddress: actor.IP,
	}
	if entityID != "" {
		entry.EntityID = &entityID
	}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = raw
		}
	}
	if err := w.Create(ctx, entry); err != nil {
		logger.Warn("failed to write audit log", zap.String("action", action), zap.String("entity_id", entityID), zap.Error(err))
	}
}

// translateError maps repository and workflow errors onto API errors.
func translateError(err error, internalMsg string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	var held *workflow.LockHeldError
	if errors.As(err, &held) {
		details := map[string]interface{}{"holder": held.Holder}
		if held.ExpiresAt != nil {
			details["lease_expires_at"] = held.ExpiresAt.UTC()
		}
		locked := appErrors.Clone(appErrors.ErrReviewLocked, fmt.Sprintf("submission is under review by %s", held.Holder))
		return appErrors.WithDetails(locked, details)
	}
	var transition *workflow.TransitionError
	if errors.As(err, &transition) {
		invalid := appErrors.Clone(appErrors.ErrInvalidTransition, transition.Error())
		return appErrors.WithDetails(invalid, map[string]interface{}{"from": transition.From, "event": transition.Event})
	}
	if database.IsSerializationFailure(err) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "submission was updated concurrently, retry the request")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internalMsg)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
