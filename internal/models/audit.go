package models

import (
	"encoding/json"
	"time"
)

// Audit actions recorded against submissions and operator accounts.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionLogout           = "LOGOUT"
	AuditActionTokenRefresh     = "TOKEN_REFRESH"
	AuditActionSubmissionCreate = "SUBMISSION_CREATE"
	AuditActionConsentSend      = "CONSENT_SEND"
	AuditActionConsentVerify    = "CONSENT_VERIFY"
	AuditActionVoiceClone       = "VOICE_CLONE"
	AuditActionVoiceRelease     = "VOICE_RELEASE"
	AuditActionVideoRegister    = "VIDEO_REGISTER"
	AuditActionQCDecision       = "QC_DECISION"
	AuditActionSubmissionFail   = "SUBMISSION_FAIL"
	AuditActionSubmissionRetry  = "SUBMISSION_RETRY"
	AuditActionSubmissionDone   = "SUBMISSION_COMPLETE"
	AuditActionSubmissionDelete = "SUBMISSION_DELETE"
	AuditActionSubmissionPurge  = "SUBMISSION_PURGE"
	AuditActionUserCreate       = "USER_CREATE"
	AuditActionUserUpdate       = "USER_UPDATE"
	AuditActionUserDeactivate   = "USER_DEACTIVATE"
)

// AuditLog is one row of the audit_log table.
type AuditLog struct {
	ID        string          `db:"id" json:"id"`
	ActorID   *string         `db:"actor_id" json:"actor_id,omitempty"`
	Actor     string          `db:"actor" json:"actor"`
	Action    string          `db:"action" json:"action"`
	Entity    string          `db:"entity" json:"entity"`
	EntityID  *string         `db:"entity_id" json:"entity_id,omitempty"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress string          `db:"ip_address" json:"ip_address"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
