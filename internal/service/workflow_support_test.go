package service

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/doctor-voice-api/internal/workflow"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
)

func TestTranslateError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"missing row", sql.ErrNoRows, appErrors.ErrNotFound.Code, http.StatusNotFound},
		{"closed submission", &workflow.TransitionError{From: "completed", Event: "approve"}, appErrors.ErrInvalidTransition.Code, appErrors.ErrInvalidTransition.Status},
		{"held review", &workflow.LockHeldError{Holder: "Arjun"}, appErrors.ErrReviewLocked.Code, http.StatusConflict},
		{"serialization failure", fmt.Errorf("commit transaction: %w", &pq.Error{Code: "40001"}), appErrors.ErrConflict.Code, http.StatusConflict},
		{"other failure", errors.New("connection reset"), appErrors.ErrInternal.Code, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := appErrors.FromError(translateError(tc.err, "failed"))
			assert.Equal(t, tc.code, got.Code)
			assert.Equal(t, tc.status, got.Status)
		})
	}
	assert.Nil(t, translateError(nil, "failed"))
}
