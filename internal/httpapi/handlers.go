package httpapi

import (
	"errors"
	"net/http"
	"time"

	"crm-softphone/internal/agent"
	"crm-softphone/internal/audit"
	"crm-softphone/internal/auth"
	"crm-softphone/internal/dispositions"
	"crm-softphone/internal/leads"
	"crm-softphone/internal/records"
	"crm-softphone/internal/session"
	"crm-softphone/internal/signaling"
	"crm-softphone/internal/wrapup"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Hub          *agent.Hub
	Dispositions *dispositions.Service
	Records      records.Sink
	Directory    leads.Directory

	// Audit is optional; call-control actions are logged best-effort.
	Audit *audit.Service
}

func (h Handlers) logCommand(c *gin.Context, workspaceID, agentID, command, sessionID string) {
	if h.Audit == nil {
		return
	}
	role, _ := auth.Role(c.Request.Context())
	// Best-effort: audit failures never fail the command itself.
	_ = h.Audit.LogCallCommand(c.Request.Context(), workspaceID, agentID, role, c.ClientIP(), command, sessionID)
}

// identity pulls the caller's workspace and user from request context. The
// softphone is per-user: the authenticated user id is the agent id.
func identity(c *gin.Context) (workspaceID, agentID string, ok bool) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return "", "", false
	}
	agentID, err = auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", "", false
	}
	return workspaceID, agentID, true
}

func (h Handlers) coordinator(c *gin.Context) (*agent.Coordinator, bool) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return nil, false
	}
	return h.Hub.Get(workspaceID, agentID), true
}

// --- Registration ---

type registerRequest struct {
	URI      string `json:"uri"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h Handlers) Register(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	coord := h.Hub.Get(workspaceID, agentID)
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := coord.Register(c.Request.Context(), signaling.Credentials{
		URI:      req.URI,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	h.logCommand(c, workspaceID, agentID, "register", "")
	c.JSON(http.StatusAccepted, gin.H{"status": "registering"})
}

func (h Handlers) Unregister(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	coord := h.Hub.Get(workspaceID, agentID)
	if err := coord.Unregister(c.Request.Context()); err != nil {
		abortWithMapped(c, err)
		return
	}
	h.logCommand(c, workspaceID, agentID, "unregister", "")
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

// --- Call control ---

// dialRequest supports raw numbers and click-to-call by lead id. When both
// are set the explicit number wins.
type dialRequest struct {
	Number string `json:"number"`
	LeadID string `json:"lead_id"`
}

func (h Handlers) Dial(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	coord := h.Hub.Get(workspaceID, agentID)
	var req dialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	number := req.Number
	if number == "" && req.LeadID != "" && h.Directory != nil {
		lead, err := h.Directory.Get(c.Request.Context(), workspaceID, req.LeadID)
		if err != nil {
			if errors.Is(err, leads.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "lead not found"})
				return
			}
			abortWithMapped(c, err)
			return
		}
		number = firstNonEmpty(lead.Phone, lead.MobilePhone, lead.WorkPhone)
		if number == "" {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "lead has no phone number"})
			return
		}
	}
	if number == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "number or lead_id required"})
		return
	}
	sessionID, err := coord.Dial(c.Request.Context(), number)
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	h.logCommand(c, workspaceID, agentID, "dial", sessionID)
	c.JSON(http.StatusCreated, gin.H{"session_id": sessionID})
}

func (h Handlers) Accept(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.Accept(c.Request.Context()); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "accepting"})
}

func (h Handlers) Reject(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	if err := coord.Reject(c.Request.Context()); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

func (h Handlers) Hangup(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	coord := h.Hub.Get(workspaceID, agentID)
	if err := coord.Hangup(c.Request.Context()); err != nil {
		abortWithMapped(c, err)
		return
	}
	h.logCommand(c, workspaceID, agentID, "hangup", "")
	c.JSON(http.StatusOK, gin.H{"status": "terminating"})
}

type muteRequest struct {
	Muted bool `json:"muted"`
}

func (h Handlers) Mute(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var req muteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := coord.Mute(c.Request.Context(), req.Muted); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": req.Muted})
}

type holdRequest struct {
	Hold bool `json:"hold"`
}

func (h Handlers) Hold(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := coord.Hold(c.Request.Context(), req.Hold); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"on_hold": req.Hold})
}

type digitRequest struct {
	Digit string `json:"digit"`
}

func (h Handlers) SendDigit(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var req digitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	runes := []rune(req.Digit)
	if len(runes) != 1 || !isDTMF(runes[0]) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "digit must be one of 0-9, *, #"})
		return
	}
	if err := coord.SendDigit(c.Request.Context(), runes[0]); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func isDTMF(r rune) bool {
	return (r >= '0' && r <= '9') || r == '*' || r == '#'
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// --- Wrap-up ---

type wrapUpRequest struct {
	DispositionID    string     `json:"disposition_id"`
	Notes            string     `json:"notes"`
	ScheduleFollowUp bool       `json:"schedule_follow_up"`
	FollowUpDate     *time.Time `json:"follow_up_date"`
}

func (h Handlers) SubmitWrapUp(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	coord := h.Hub.Get(workspaceID, agentID)
	var req wrapUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err := coord.SubmitWrapUp(c.Request.Context(), wrapup.Submission{
		DispositionID:    req.DispositionID,
		Notes:            req.Notes,
		ScheduleFollowUp: req.ScheduleFollowUp,
		FollowUpDate:     req.FollowUpDate,
	})
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	if h.Audit != nil {
		role, _ := auth.Role(c.Request.Context())
		_ = h.Audit.LogWrapUp(c.Request.Context(), workspaceID, agentID, role, c.ClientIP(), "", req.DispositionID)
	}
	c.JSON(http.StatusOK, gin.H{"status": "wrapped_up"})
}

// --- Availability and state ---

type availabilityRequest struct {
	Availability string `json:"availability"`
}

func (h Handlers) SetAvailability(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	av := agent.Availability(req.Availability)
	switch av {
	case agent.AvailabilityOffline, agent.AvailabilityAvailable, agent.AvailabilityAway:
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "availability must be one of offline, available, away"})
		return
	}
	if err := coord.SetAvailability(c.Request.Context(), av); err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"availability": req.Availability})
}

func (h Handlers) State(c *gin.Context) {
	coord, ok := h.coordinator(c)
	if !ok {
		return
	}
	snap, err := coord.State(c.Request.Context())
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshotJSON(snap))
}

func snapshotJSON(snap agent.Snapshot) gin.H {
	out := gin.H{
		"registration_state": string(snap.Registration),
		"availability":       string(snap.Availability),
	}
	if snap.WrapUpSessionID != "" {
		out["wrap_up_session_id"] = snap.WrapUpSessionID
	}
	if s := snap.Session; s != nil {
		sess := gin.H{
			"id":                 s.ID,
			"direction":          string(s.Direction),
			"counterpart_number": s.CounterpartNumber,
			"state":              s.State().String(),
			"muted":              s.Muted(),
			"on_hold":            s.OnHold(),
			"created_at":         s.CreatedAt,
		}
		if s.StartedAt != nil {
			sess["started_at"] = s.StartedAt
		}
		if s.EndedAt != nil {
			sess["ended_at"] = s.EndedAt
		}
		if s.Related != nil {
			sess["related_entity"] = s.Related
		}
		out["session"] = sess
	}
	return out
}

// --- Reference data and history ---

func (h Handlers) ListDispositions(c *gin.Context) {
	workspaceID, _, ok := identity(c)
	if !ok {
		return
	}
	rows, err := h.Dispositions.List(c.Request.Context(), workspaceID)
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispositions": rows})
}

func (h Handlers) ListRecentCalls(c *gin.Context) {
	workspaceID, agentID, ok := identity(c)
	if !ok {
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositive(v); err == nil {
			limit = n
		}
	}
	rows, err := h.Records.ListRecent(c.Request.Context(), workspaceID, agentID, limit)
	if err != nil {
		abortWithMapped(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

func parsePositive(v string) (int, error) {
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0, errors.New("not a number")
		}
		n = n*10 + int(r-'0')
		if n > 200 {
			return 200, nil
		}
	}
	if n <= 0 {
		return 0, errors.New("not positive")
	}
	return n, nil
}

// --- Error mapping ---

// abortWithMapped translates domain errors to HTTP statuses. Wrap-up
// validation errors carry per-field messages so the console can highlight the
// offending inputs.
func abortWithMapped(c *gin.Context, err error) {
	var ve *wrapup.ValidationError
	if errors.As(err, &ve) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "validation failed",
			"fields": ve.Fields,
		})
		return
	}
	var ise *session.InvalidStateError
	if errors.As(err, &ise) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": ise.Error()})
		return
	}

	switch {
	case errors.Is(err, agent.ErrAlreadyOnCall),
		errors.Is(err, agent.ErrNotRegistered),
		errors.Is(err, agent.ErrNoActiveCall),
		errors.Is(err, agent.ErrWrapUpPending),
		errors.Is(err, agent.ErrNoWrapUpPending):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, agent.ErrWorkspaceCapReached):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, signaling.ErrMissingURI), errors.Is(err, signaling.ErrMissingUsername):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, agent.ErrCoordinatorClosed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, dispositions.ErrNotFound), errors.Is(err, records.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, dispositions.ErrInvalidArgument), errors.Is(err, records.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
