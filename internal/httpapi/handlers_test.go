package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm-softphone/internal/agent"
	"crm-softphone/internal/auth"
	"crm-softphone/internal/dispositions"
	"crm-softphone/internal/leads"
	"crm-softphone/internal/records"
	"crm-softphone/internal/signaling"
	"crm-softphone/internal/wrapup"

	"github.com/gin-gonic/gin"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := records.NewMemoryRepo()
	writer := records.NewWriter(repo, slog.Default(), records.WriterConfig{BaseDelay: time.Millisecond})
	t.Cleanup(writer.Close)

	dispRepo := dispositions.NewMemoryRepo(
		dispositions.Disposition{ID: "answered", WorkspaceID: "w1", Name: "Answered"},
	)
	dispService := dispositions.NewService(dispRepo)
	directory := leads.NewMemoryDirectory(
		leads.Lead{ID: "l1", WorkspaceID: "w1", Name: "Known Lead", Phone: "+15550001111"},
	)
	enforcer := wrapup.NewEnforcer(dispService, writer, directory, slog.Default())

	hub := agent.NewHub(agent.Config{MandatoryWrapUp: true},
		func(workspaceID, agentID string) signaling.Adapter { return signaling.NewLoopback() },
		repo, writer, directory, enforcer, agent.NopNotifier{}, nil, slog.Default())
	t.Cleanup(hub.Close)

	h := Handlers{Hub: hub, Dispositions: dispService, Records: repo, Directory: directory}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", "w1", "agent")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})
	r.POST("/softphone/register", h.Register)
	r.POST("/softphone/dial", h.Dial)
	r.POST("/softphone/digit", h.SendDigit)
	r.POST("/softphone/wrapup", h.SubmitWrapUp)
	r.PUT("/softphone/availability", h.SetAvailability)
	r.GET("/softphone/state", h.State)
	r.GET("/dispositions", h.ListDispositions)
	r.GET("/calls/recent", h.ListRecentCalls)
	return r
}

func do(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	r.ServeHTTP(w, req)
	return w
}

func waitRegistered(t *testing.T, r *gin.Engine) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w := do(r, http.MethodGet, "/softphone/state", "")
		if w.Code != 200 {
			t.Fatalf("state failed: %d %s", w.Code, w.Body.String())
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad state json: %v", err)
		}
		if resp["registration_state"] == "registered" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("registration never completed")
}

func TestDial_RequiresRegistration(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/softphone/dial", `{"number":"+15551234567"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRegisterAndDial(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/softphone/register", `{"uri":"sip:w1.example.com","username":"u1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	waitRegistered(t, r)

	w = do(r, http.MethodPost, "/softphone/dial", `{"number":"+15551234567"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["session_id"] == "" {
		t.Fatalf("expected session_id in response")
	}

	// A second dial conflicts with the active call.
	w = do(r, http.MethodPost, "/softphone/dial", `{"number":"+15559990000"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second dial, got %d", w.Code)
	}

	// State shows the ringing session.
	w = do(r, http.MethodGet, "/softphone/state", "")
	var state map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &state)
	sess, ok := state["session"].(map[string]any)
	if !ok || sess["state"] != "ringing" {
		t.Fatalf("expected ringing session in state, got %s", w.Body.String())
	}
}

func TestDial_ClickToCallByLeadID(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/softphone/register", `{"uri":"sip:w1.example.com","username":"u1"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	waitRegistered(t, r)

	w = do(r, http.MethodPost, "/softphone/dial", `{"lead_id":"l1"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Unknown lead id.
	w = do(r, http.MethodPost, "/softphone/dial", `{"lead_id":"nope"}`)
	if w.Code != http.StatusNotFound && w.Code != http.StatusConflict {
		// 409 if the first call is still active; 404 once it is not. Either
		// way the request must not start a call for a bogus lead.
		t.Fatalf("expected 404 or 409, got %d", w.Code)
	}
}

func TestRegister_RejectsMissingURI(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/softphone/register", `{"username":"u1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSendDigit_ValidatesInput(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/softphone/digit", `{"digit":"12"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for multi-char digit, got %d", w.Code)
	}
	w = do(r, http.MethodPost, "/softphone/digit", `{"digit":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-DTMF digit, got %d", w.Code)
	}
}

func TestWrapUp_NothingPending(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPost, "/softphone/wrapup", `{"disposition_id":"answered"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSetAvailability_ValidatesValue(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodPut, "/softphone/availability", `{"availability":"busy"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, http.MethodPut, "/softphone/availability", `{"availability":"available"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListDispositions(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/dispositions", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Dispositions []dispositions.Disposition `json:"dispositions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(resp.Dispositions) != 1 || resp.Dispositions[0].ID != "answered" {
		t.Fatalf("unexpected dispositions: %+v", resp.Dispositions)
	}
}

func TestListRecentCalls(t *testing.T) {
	r := newTestRouter(t)
	w := do(r, http.MethodGet, "/calls/recent?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}
