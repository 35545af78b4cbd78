package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/entrhq/regpilot/pkg/automation"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: otp required", automation.ErrValidation), http.StatusBadRequest, "validation_error"},
		{automation.ErrForbidden, http.StatusForbidden, "forbidden"},
		{automation.ErrNotFound, http.StatusNotFound, "not_found"},
		{automation.ErrNoBusinessProfile, http.StatusNotFound, "no_business_profile"},
		{automation.ErrNoOTPPending, http.StatusConflict, "no_otp_pending"},
		{fmt.Errorf("%w: already running", automation.ErrConcurrency), http.StatusConflict, "concurrency_conflict"},
		{automation.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{fmt.Errorf("%w: no browser", automation.ErrCapacity), http.StatusServiceUnavailable, "capacity_exhausted"},
		{automation.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		status, code := statusFor(tt.err)
		if status != tt.status || code != tt.code {
			t.Errorf("statusFor(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
		}
	}
}
