package repository

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/doctor-voice-api/internal/models"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

func TestAuditCreateFillsDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_log")).WillReturnResult(sqlmock.NewResult(1, 1))

	entityID := "s1"
	entry := &models.AuditLog{Actor: "system", Action: models.AuditActionVoiceRelease, Entity: "submission", EntityID: &entityID, Details: json.RawMessage(`{"voice_id":"v1"}`)}
	require.NoError(t, repo.Create(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "dv", nil)
	assert.False(t, repo.Enabled())

	var dest map[string]int
	assert.ErrorIs(t, repo.Get(context.Background(), "dashboard", &dest), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "dashboard", map[string]int{"a": 1}, 0))
	assert.NoError(t, repo.Invalidate(context.Background(), "*"))
	assert.NoError(t, repo.Close())
}
