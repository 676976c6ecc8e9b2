package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fastOptions keeps the debounce and stability windows short enough for
// tests while leaving room for slow CI filesystems.
func fastOptions(agentDir, planDir string) Options {
	return Options{
		AgentDir:   agentDir,
		PlanDir:    planDir,
		Quiescence: 50 * time.Millisecond,
		Stability:  20 * time.Millisecond,
	}
}

func waitEvent(t *testing.T, w *Watcher, timeout time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev, true
	case <-time.After(timeout):
		return Event{}, false
	}
}

func TestNew_missingRootsIsNoOp(t *testing.T) {
	t.Parallel()

	w := New(Options{AgentDir: filepath.Join(t.TempDir(), "nope")})
	defer w.Close()

	if w.fs != nil {
		t.Fatal("expected no fsnotify watcher when no roots exist")
	}
	if _, ok := waitEvent(t, w, 150*time.Millisecond); ok {
		t.Fatal("no-op watcher emitted an event")
	}
}

func TestWatcher_planFileChange(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	planDir := t.TempDir()
	w := New(fastOptions(agentDir, planDir))
	defer w.Close()

	if err := os.WriteFile(filepath.Join(planDir, "queue.md"), []byte("- [a] task\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := waitEvent(t, w, 3*time.Second)
	if !ok {
		t.Fatal("no event for queue.md write")
	}
	if ev.Type != TypePlan {
		t.Fatalf("type = %q, want %q", ev.Type, TypePlan)
	}
	if ev.Timestamp.IsZero() {
		t.Fatal("event timestamp not set")
	}
}

func TestWatcher_executionLogChange(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	planDir := t.TempDir()
	w := New(fastOptions(agentDir, planDir))
	defer w.Close()

	if err := os.WriteFile(filepath.Join(planDir, "execution.log"), []byte(`{"task":"a","status":"DONE","ts":"2026-01-01T00:00:00Z"}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := waitEvent(t, w, 3*time.Second)
	if !ok {
		t.Fatal("no event for execution.log write")
	}
	if ev.Type != TypePlan {
		t.Fatalf("type = %q, want %q", ev.Type, TypePlan)
	}
}

func TestWatcher_sessionFileChange(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	todosDir := filepath.Join(agentDir, "todos")
	if err := os.MkdirAll(todosDir, 0o755); err != nil {
		t.Fatal(err)
	}
	w := New(fastOptions(agentDir, ""))
	defer w.Close()

	if err := os.WriteFile(filepath.Join(todosDir, "abc-agent-s.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := waitEvent(t, w, 3*time.Second)
	if !ok {
		t.Fatal("no event for todo file write")
	}
	if ev.Type != TypeSessions {
		t.Fatalf("type = %q, want %q", ev.Type, TypeSessions)
	}
}

func TestWatcher_coalescesBurst(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	todosDir := filepath.Join(agentDir, "todos")
	if err := os.MkdirAll(todosDir, 0o755); err != nil {
		t.Fatal(err)
	}
	opts := fastOptions(agentDir, "")
	opts.Quiescence = 250 * time.Millisecond
	w := New(opts)
	defer w.Close()

	for i := 0; i < 3; i++ {
		name := filepath.Join(todosDir, "s"+string(rune('a'+i))+"-agent-x.json")
		if err := os.WriteFile(name, []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, ok := waitEvent(t, w, 3*time.Second); !ok {
		t.Fatal("no event for burst of writes")
	}
	if ev, ok := waitEvent(t, w, 400*time.Millisecond); ok {
		t.Fatalf("burst produced a second event: %+v", ev)
	}
}

func TestWatcher_mixedBurstBroadensToSessions(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	todosDir := filepath.Join(agentDir, "todos")
	if err := os.MkdirAll(todosDir, 0o755); err != nil {
		t.Fatal(err)
	}
	planDir := t.TempDir()
	opts := fastOptions(agentDir, planDir)
	opts.Quiescence = 300 * time.Millisecond
	w := New(opts)
	defer w.Close()

	if err := os.WriteFile(filepath.Join(planDir, "queue.md"), []byte("- [a] t\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(todosDir, "abc-agent-s.json"), []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	ev, ok := waitEvent(t, w, 3*time.Second)
	if !ok {
		t.Fatal("no event for mixed burst")
	}
	if ev.Type != TypeSessions {
		t.Fatalf("coalesced type = %q, want %q", ev.Type, TypeSessions)
	}
}

func TestWatcher_ignoresDerivedPlanFiles(t *testing.T) {
	t.Parallel()

	agentDir := t.TempDir()
	planDir := t.TempDir()
	w := New(fastOptions(agentDir, planDir))
	defer w.Close()

	if err := os.WriteFile(filepath.Join(planDir, "compact-state.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ev, ok := waitEvent(t, w, 500*time.Millisecond); ok {
		t.Fatalf("compact-state.json write produced an event: %+v", ev)
	}
}

func TestWatcher_closeIsIdempotent(t *testing.T) {
	t.Parallel()

	w := New(fastOptions(t.TempDir(), ""))
	if err := w.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	w := &Watcher{opts: Options{AgentDir: "/a", PlanDir: "/p"}}
	cases := map[string]string{
		"/p/queue.md":           TypePlan,
		"/p/execution.log":      TypePlan,
		"/p/compact-state.json": "",
		"/p/AGENTS.md":          "",
		"/a/todos/x.json":       TypeSessions,
		"/a/tasks/1/meta.json":  TypeSessions,
	}
	for path, want := range cases {
		if got := w.classify(path); got != want {
			t.Errorf("classify(%q) = %q, want %q", path, got, want)
		}
	}
}
