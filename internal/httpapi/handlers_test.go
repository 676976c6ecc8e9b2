package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/plandash/plandash/internal/plan"
)

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	agentDir := t.TempDir()
	planDir := t.TempDir()
	queue := "## core\n- [A] first task\n- [B] second task [deps: A]\n"
	log := `{"ts":"2026-03-01T10:00:00Z","task":"A","status":"DONE","agent":"runner-1"}` + "\n"
	if err := os.WriteFile(plan.QueuePath(planDir), []byte(queue), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(plan.LogPath(planDir), []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}

	app := NewApp(ServerOptions{AgentDir: agentDir, PlanDir: planDir, Addr: "127.0.0.1:0"})
	srv := httptest.NewServer(app.Server.Handler)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = app.Watcher.Close() })
	return app, srv
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func TestHandleHealth(t *testing.T) {
	_, srv := newTestApp(t)
	var out struct {
		OK             bool `json:"ok"`
		PlanConfigured bool `json:"planConfigured"`
	}
	getJSON(t, srv.URL+"/health", &out)
	if !out.OK || !out.PlanConfigured {
		t.Errorf("health: got %+v", out)
	}
}

func TestHandleState(t *testing.T) {
	_, srv := newTestApp(t)
	var out struct {
		Configured bool `json:"configured"`
		Tasks      []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"tasks"`
		Summary struct {
			Done  int `json:"done"`
			Ready int `json:"ready"`
		} `json:"summary"`
		Errors []string `json:"errors"`
	}
	getJSON(t, srv.URL+"/state", &out)
	if !out.Configured || len(out.Tasks) != 2 {
		t.Fatalf("state: got %+v", out)
	}
	if out.Tasks[0].Status != "DONE" || out.Tasks[1].Status != "READY" {
		t.Errorf("statuses: got %+v", out.Tasks)
	}
	if out.Summary.Done != 1 || out.Summary.Ready != 1 {
		t.Errorf("summary: got %+v", out.Summary)
	}
	if out.Errors == nil {
		t.Error("errors must serialize as [], not null")
	}
}

func TestHandleOverride(t *testing.T) {
	app, srv := newTestApp(t)
	sub := app.Hub.Subscribe()
	defer app.Hub.Unsubscribe(sub)

	body := strings.NewReader(`{"taskId":"B","status":"BLOCKED","reason":"waiting on review"}`)
	resp, err := http.Post(srv.URL+"/state/override", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("override: status %d", resp.StatusCode)
	}

	snap, _ := app.Plans.Snapshot()
	if got := snap.Tasks[1].Status; got != plan.StatusBlocked {
		t.Errorf("status after override: got %s", got)
	}
	select {
	case msg := <-sub:
		if !strings.Contains(string(msg), `"type":"plan"`) {
			t.Errorf("broadcast: got %s", msg)
		}
	default:
		t.Error("override did not broadcast a plan notification")
	}
}

func TestHandleOverride_invalidStatus(t *testing.T) {
	_, srv := newTestApp(t)
	body := strings.NewReader(`{"taskId":"B","status":"IN_PROGRESS"}`)
	resp, err := http.Post(srv.URL+"/state/override", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHandleSessions_daysValidation(t *testing.T) {
	_, srv := newTestApp(t)
	resp, err := http.Get(srv.URL + "/sessions?days=banana")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHandleSessions_listAndDismiss(t *testing.T) {
	app, srv := newTestApp(t)
	todos := filepath.Join(app.Sessions.AgentDir(), "todos")
	if err := os.MkdirAll(todos, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `[{"content":"one","status":"pending"},{"content":"two","status":"completed"}]`
	if err := os.WriteFile(filepath.Join(todos, "ab12-agent-ab12.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Sessions []struct {
			ID    string `json:"id"`
			Tasks []struct {
				ID string `json:"id"`
			} `json:"tasks"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	getJSON(t, srv.URL+"/sessions", &out)
	if out.Total != 1 || len(out.Sessions[0].Tasks) != 2 {
		t.Fatalf("sessions: got %+v", out)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/sessions/ab12/tasks/1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dismiss: status %d", resp.StatusCode)
	}

	getJSON(t, srv.URL+"/sessions", &out)
	if len(out.Sessions[0].Tasks) != 1 || out.Sessions[0].Tasks[0].ID != "2" {
		t.Errorf("after dismiss: got %+v", out.Sessions[0].Tasks)
	}
}

func TestHandleSessions_defaultRecencyWindow(t *testing.T) {
	app, srv := newTestApp(t)
	todos := filepath.Join(app.Sessions.AgentDir(), "todos")
	if err := os.MkdirAll(todos, 0o755); err != nil {
		t.Fatal(err)
	}
	content := `[{"content":"one","status":"pending"}]`
	if err := os.WriteFile(filepath.Join(todos, "aa11-agent-aa11.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	oldPath := filepath.Join(todos, "bb22-agent-bb22.json")
	if err := os.WriteFile(oldPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Sessions []struct {
			ID string `json:"id"`
		} `json:"sessions"`
		Total int `json:"total"`
	}
	getJSON(t, srv.URL+"/sessions", &out)
	if out.Total != 2 || len(out.Sessions) != 1 || out.Sessions[0].ID != "aa11" {
		t.Fatalf("default window should drop the 10-day-old session: got %+v", out)
	}

	getJSON(t, srv.URL+"/sessions?days=0", &out)
	if len(out.Sessions) != 2 {
		t.Errorf("days=0 should disable the window: got %+v", out)
	}
}

func TestHandleSessionContext(t *testing.T) {
	app, srv := newTestApp(t)
	projDir := filepath.Join(app.Sessions.AgentDir(), "projects", "proj-a")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	transcript := strings.Join([]string{
		`{"role":"user","content":"fix the queue parser"}`,
		`{"role":"assistant","content":[{"type":"text","text":"Looking at it now."},{"type":"tool_use","name":"Edit"}]}`,
		`{"role":"tool","name":"Edit","content":"ok"}`,
		`{"role":"user","content":"and add a test"}`,
	}, "\n")
	if err := os.WriteFile(filepath.Join(projDir, "sess1.jsonl"), []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}

	var out struct {
		SessionID  string         `json:"sessionId"`
		Lines      int            `json:"lines"`
		LastPrompt string         `json:"lastPrompt"`
		LastReply  string         `json:"lastReply"`
		ToolCalls  map[string]int `json:"toolCalls"`
	}
	resp := getJSON(t, srv.URL+"/sessions/sess1/context", &out)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("context: status %d", resp.StatusCode)
	}
	if out.SessionID != "sess1" || out.Lines != 4 {
		t.Fatalf("context: got %+v", out)
	}
	if out.LastPrompt != "and add a test" || out.LastReply != "Looking at it now." {
		t.Errorf("prompt/reply: got %+v", out)
	}
	if out.ToolCalls["Edit"] != 2 {
		t.Errorf("tool calls: got %+v", out.ToolCalls)
	}

	resp = getJSON(t, srv.URL+"/sessions/unknown/context", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session: status %d, want 404", resp.StatusCode)
	}
}

func TestHandleSessionContext_readsOnlyTail(t *testing.T) {
	app, srv := newTestApp(t)
	projDir := filepath.Join(app.Sessions.AgentDir(), "projects")
	if err := os.MkdirAll(projDir, 0o755); err != nil {
		t.Fatal(err)
	}
	var lines []string
	for i := 0; i < 150; i++ {
		lines = append(lines, `{"role":"tool","name":"Ancient","content":"x"}`)
	}
	for i := 0; i < 500; i++ {
		lines = append(lines, `{"role":"user","content":"recent work"}`)
	}
	path := filepath.Join(projDir, "sess9.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}

	var out struct {
		Lines      int            `json:"lines"`
		LastPrompt string         `json:"lastPrompt"`
		ToolCalls  map[string]int `json:"toolCalls"`
	}
	getJSON(t, srv.URL+"/sessions/sess9/context", &out)
	if out.Lines != 500 {
		t.Errorf("lines: got %d, want 500", out.Lines)
	}
	if out.ToolCalls["Ancient"] != 0 {
		t.Errorf("entries beyond the tail window should be ignored: %+v", out.ToolCalls)
	}
	if out.LastPrompt != "recent work" {
		t.Errorf("last prompt: got %q", out.LastPrompt)
	}
}

func TestHandleInsights_methodNotAllowed(t *testing.T) {
	_, srv := newTestApp(t)
	for _, path := range []string{"/insights/plan", "/insights/live"} {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: status %d, want 405", path, resp.StatusCode)
		}
	}
}

func TestHandleSessionByID_notFound(t *testing.T) {
	_, srv := newTestApp(t)
	resp, err := http.Get(srv.URL + "/sessions/nope")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHandleHook_ingestAndHistory(t *testing.T) {
	app, srv := newTestApp(t)
	sub := app.Hub.Subscribe()
	defer app.Hub.Unsubscribe(sub)

	resp, err := http.Post(srv.URL+"/hook", "application/json",
		strings.NewReader(`{"event":"PostToolUse","tool":"Edit","custom":42}`))
	if err != nil {
		t.Fatal(err)
	}
	var ack struct {
		OK         bool   `json:"ok"`
		ID         string `json:"id"`
		ReceivedAt string `json:"receivedAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted || !ack.OK || ack.ID == "" || ack.ReceivedAt == "" {
		t.Fatalf("ack: status %d, %+v", resp.StatusCode, ack)
	}

	select {
	case msg := <-sub:
		if !strings.Contains(string(msg), `"tool":"Edit"`) {
			t.Errorf("hook broadcast: got %s", msg)
		}
	default:
		t.Error("hook event not broadcast")
	}

	var history struct {
		Events []struct {
			Event string `json:"event"`
			Tool  string `json:"tool"`
		} `json:"events"`
		AutoCommit     *bool `json:"autoCommit"`
		HooksInstalled *bool `json:"hooksInstalled"`
	}
	getJSON(t, srv.URL+"/hook/events", &history)
	if len(history.Events) != 1 || history.Events[0].Tool != "Edit" {
		t.Errorf("history: got %+v", history.Events)
	}
	if history.AutoCommit == nil || history.HooksInstalled == nil {
		t.Error("history must include autoCommit and hooksInstalled flags")
	}
}

func TestHandleHook_malformedBodyStillAccepted(t *testing.T) {
	_, srv := newTestApp(t)
	resp, err := http.Post(srv.URL+"/hook", "application/json", strings.NewReader(`{broken`))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status: got %d, want 202 (ingestion cannot fail)", resp.StatusCode)
	}
}

func TestHandleInsights(t *testing.T) {
	_, srv := newTestApp(t)
	var planIns struct {
		Summary struct {
			CompletedTasks int `json:"completedTasks"`
		} `json:"summary"`
	}
	getJSON(t, srv.URL+"/insights/plan", &planIns)
	if planIns.Summary.CompletedTasks != 1 {
		t.Errorf("plan insights: got %+v", planIns)
	}

	resp := getJSON(t, srv.URL+"/insights/live", &struct{}{})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("live insights: status %d", resp.StatusCode)
	}
}

func TestHandleDebugTiming(t *testing.T) {
	_, srv := newTestApp(t)
	// Generate some traffic first.
	for i := 0; i < 3; i++ {
		resp, err := http.Get(srv.URL + "/health")
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
	}
	var out struct {
		Routes []RouteTiming `json:"routes"`
	}
	getJSON(t, srv.URL+"/debug/timing", &out)
	found := false
	for _, rt := range out.Routes {
		if rt.Route == "GET /health" && rt.Count == 3 {
			found = true
		}
	}
	if !found {
		t.Errorf("timing report: got %+v", out.Routes)
	}
}

func TestAPIKeyMiddleware(t *testing.T) {
	agentDir := t.TempDir()
	app := NewApp(ServerOptions{AgentDir: agentDir, Addr: "127.0.0.1:0", APIKey: "sekrit"})
	srv := httptest.NewServer(app.Server.Handler)
	defer srv.Close()
	defer func() { _ = app.Watcher.Close() }()

	// /health is exempt.
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health without key: status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/state")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("state without key: status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/state", nil)
	req.Header.Set("X-API-Key", "sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("state with key: status %d", resp.StatusCode)
	}
}

func TestRouteRoot(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"/":                 "/",
		"/state":            "/state",
		"/sessions/abc":     "/sessions/*",
		"/sessions/abc/ctx": "/sessions/*",
		"/insights/plan":    "/insights/*",
	}
	for in, want := range cases {
		if got := routeRoot(in); got != want {
			t.Errorf("routeRoot(%q): got %q, want %q", in, got, want)
		}
	}
}
