package handlers

import (
	"errors"
	"net/http"

	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// errorMapping orders sentinels most specific first; ErrShuttingDown wraps
// ErrCapacity and must be matched before it.
var errorMapping = []struct {
	err    error
	status int
	code   string
}{
	{automation.ErrValidation, http.StatusBadRequest, "validation_error"},
	{automation.ErrForbidden, http.StatusForbidden, "forbidden"},
	{automation.ErrNoBusinessProfile, http.StatusNotFound, "no_business_profile"},
	{automation.ErrNotFound, http.StatusNotFound, "not_found"},
	{automation.ErrNoOTPPending, http.StatusConflict, "no_otp_pending"},
	{automation.ErrConcurrency, http.StatusConflict, "concurrency_conflict"},
	{automation.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{automation.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down"},
	{automation.ErrCapacity, http.StatusServiceUnavailable, "capacity_exhausted"},
}

// statusFor maps an orchestrator error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	for _, m := range errorMapping {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondError writes the mapped error. Internal errors are reported
// generically and attached to the context for the request log.
func respondError(c *gin.Context, err error, internalMsg string) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = internalMsg
	}
	c.JSON(status, ErrorResponse{Error: msg, Code: code})
}
