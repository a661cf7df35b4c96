package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/protagolabs/agentcore/pkg/repo"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", repo.NewValidationError("title", "is required"), http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("creating job: %w", repo.NewValidationError("cron", "bad")), http.StatusBadRequest},
		{"not found", repo.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("loading agent: %w", repo.ErrNotFound), http.StatusNotFound},
		{"already exists", repo.ErrAlreadyExists, http.StatusConflict},
		{"not authorized", repo.ErrNotAuthorized, http.StatusForbidden},
		{"not claimable", repo.ErrNotClaimable, http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.Equal(t, tt.wantStatus, he.Code)
		})
	}
}

func TestMapServiceErrorHidesInternals(t *testing.T) {
	he := mapServiceError(errors.New("pq: connection refused"))
	assert.Equal(t, "internal server error", he.Message)
}
