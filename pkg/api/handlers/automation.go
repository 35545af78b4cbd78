package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/entrhq/regpilot/pkg/api/middleware"
	"github.com/entrhq/regpilot/pkg/automation"
	"github.com/gin-gonic/gin"
)

// AutomationHandler serves the automation session endpoints.
type AutomationHandler struct {
	orch *automation.Orchestrator
}

// NewAutomationHandler creates a handler backed by orch.
func NewAutomationHandler(orch *automation.Orchestrator) *AutomationHandler {
	return &AutomationHandler{orch: orch}
}

// CreateSessionRequest represents the request to start an automation session
type CreateSessionRequest struct {
	LicenseKind string `json:"licenseKind"`
}

// CreateSessionResponse is returned when a session starts.
type CreateSessionResponse struct {
	Success           bool   `json:"success"`
	SessionID         string `json:"sessionId"`
	Status            string `json:"status"`
	EstimatedDuration string `json:"estimatedDuration"`
	Message           string `json:"message"`
}

// SessionResponse is the full status view of one session.
type SessionResponse struct {
	SessionID    string                    `json:"sessionId"`
	LicenseKind  string                    `json:"licenseKind"`
	State        string                    `json:"state"`
	StepLog      []automation.StepLogEntry `json:"stepLog"`
	PendingInput *automation.PendingInput  `json:"pendingInput,omitempty"`
	StartedAt    time.Time                 `json:"startedAt"`
	FinishedAt   *time.Time                `json:"finishedAt,omitempty"`
	ElapsedMs    int64                     `json:"elapsedMs"`
}

// SubmitOTPRequest carries the code typed by the owner.
type SubmitOTPRequest struct {
	OTP string `json:"otp"`
}

// CreateSession handles POST /v1/automation/sessions
func (h *AutomationHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation_error"})
		return
	}
	kind, err := automation.ParseLicenseKind(req.LicenseKind)
	if err != nil {
		respondError(c, err, "")
		return
	}
	h.start(c, kind)
}

// CreateFor returns a handler starting a session of a fixed kind, for the
// /gst and /msme routes.
func (h *AutomationHandler) CreateFor(kind automation.LicenseKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.start(c, kind)
	}
}

func (h *AutomationHandler) start(c *gin.Context, kind automation.LicenseKind) {
	userID, _ := middleware.GetUserID(c)

	res, err := h.orch.Create(c.Request.Context(), userID, kind)
	if err != nil {
		respondError(c, err, "failed to start automation")
		return
	}

	c.JSON(http.StatusOK, CreateSessionResponse{
		Success:           true,
		SessionID:         res.SessionID,
		Status:            string(res.Status),
		EstimatedDuration: res.EstimatedDuration,
		Message:           res.Message,
	})
}

// GetSession handles GET /v1/automation/sessions/:id
func (h *AutomationHandler) GetSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	snap, err := h.orch.Status(userID, c.Param("id"))
	if err != nil {
		respondError(c, err, "failed to get session status")
		return
	}

	c.JSON(http.StatusOK, SessionResponse{
		SessionID:    snap.SessionID,
		LicenseKind:  string(snap.LicenseKind),
		State:        string(snap.State),
		StepLog:      snap.StepLog,
		PendingInput: snap.PendingInput,
		StartedAt:    snap.StartedAt,
		FinishedAt:   snap.FinishedAt,
		ElapsedMs:    snap.Elapsed.Milliseconds(),
	})
}

// SubmitOTP handles POST /v1/automation/sessions/:id/otp
func (h *AutomationHandler) SubmitOTP(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	var req SubmitOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body", Code: "validation_error"})
		return
	}

	state, err := h.orch.SubmitOTP(c.Request.Context(), userID, c.Param("id"), req.OTP)
	if err != nil {
		respondError(c, err, "failed to submit OTP")
		return
	}

	c.JSON(http.StatusOK, gin.H{"accepted": true, "status": string(state)})
}

// CancelSession handles DELETE /v1/automation/sessions/:id
func (h *AutomationHandler) CancelSession(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id := c.Param("id")

	if err := h.orch.Cancel(c.Request.Context(), userID, id); err != nil {
		respondError(c, err, "failed to cancel session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Automation session %s cancelled", id)})
}

// ListSessions handles GET /v1/automation/sessions
func (h *AutomationHandler) ListSessions(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)

	sessions := h.orch.List(userID)
	if sessions == nil {
		sessions = []automation.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
