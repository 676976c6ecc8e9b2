// Package watch observes the agent data directory and plan files and turns
// raw filesystem activity into coarse, debounced change notifications.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/plandash/plandash/internal/plan"
)

// Event classifications. A change under the plan directory is "plan";
// everything else is "sessions". When both arrive inside one debounce window
// the coalesced event is "sessions" — the broader invalidation.
const (
	TypeSessions = "sessions"
	TypePlan     = "plan"
)

// Event is one coalesced change notification.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configures the watcher roots and timing windows.
type Options struct {
	AgentDir string
	PlanDir  string // optional

	// Quiescence is the debounce window: raw events within it collapse into
	// one notification. Zero means the 100ms default.
	Quiescence time.Duration
	// Stability is the write-in-progress guard: a changed file does not count
	// until its size has held still this long. Zero means the 100ms default.
	Stability time.Duration
}

// Watcher emits Events on a channel. A watcher whose roots do not exist at
// start-up is a valid permanent no-op; a fresh install has nothing to watch.
type Watcher struct {
	fs     *fsnotify.Watcher
	opts   Options
	events chan Event
	done   chan struct{}
}

// New starts a watcher. Setup failures never propagate as errors — the
// caller gets a watcher that simply never emits, degrading the dashboard to
// manual refresh.
func New(opts Options) *Watcher {
	if opts.Quiescence <= 0 {
		opts.Quiescence = 100 * time.Millisecond
	}
	if opts.Stability <= 0 {
		opts.Stability = 100 * time.Millisecond
	}
	w := &Watcher{
		opts:   opts,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	roots := w.collectRoots()
	if len(roots) == 0 {
		return w
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("filesystem watcher unavailable", "err", err)
		return w
	}
	w.fs = fs
	for _, root := range roots {
		if err := fs.Add(root); err != nil {
			slog.Warn("watch path failed", "path", root, "err", err)
		}
	}
	go w.run()
	return w
}

// Events is the notification channel. It is never closed; callers stop via
// their own lifecycle and Close.
func (w *Watcher) Events() <-chan Event { return w.events }

// Close stops watching. Safe on a no-op watcher.
func (w *Watcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

// collectRoots returns the directories to watch: the tasks/todos dirs and
// their session subdirectories one level deep, the agent dir itself (to catch
// late creation of tasks/ and todos/), and the plan dir.
func (w *Watcher) collectRoots() []string {
	var roots []string
	tasksDir := filepath.Join(w.opts.AgentDir, "tasks")
	todosDir := filepath.Join(w.opts.AgentDir, "todos")

	for _, dir := range []string{tasksDir, todosDir} {
		if dirExists(dir) {
			roots = append(roots, dir)
		}
	}
	if dirExists(tasksDir) {
		if entries, err := os.ReadDir(tasksDir); err == nil {
			for _, e := range entries {
				if e.IsDir() {
					roots = append(roots, filepath.Join(tasksDir, e.Name()))
				}
			}
		}
	}
	if dirExists(w.opts.AgentDir) {
		roots = append(roots, w.opts.AgentDir)
	}
	if w.opts.PlanDir != "" && dirExists(w.opts.PlanDir) {
		roots = append(roots, w.opts.PlanDir)
	}
	return roots
}

type pendingFile struct {
	size    int64
	since   time.Time
	evtType string
}

func (w *Watcher) run() {
	var (
		pending     = map[string]*pendingFile{} // write-stability tracking
		pendingType string                      // debounce accumulator
		debounce    = time.NewTimer(0)
		stability   = time.NewTicker(w.opts.Stability / 2)
	)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()
	defer stability.Stop()

	accumulate := func(t string) {
		if pendingType != "" && pendingType != t {
			pendingType = TypeSessions
		} else {
			pendingType = t
		}
		if !debounce.Stop() {
			select {
			case <-debounce.C:
			default:
			}
		}
		debounce.Reset(w.opts.Quiescence)
	}

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.maybeTrackNewDir(ev)
			t := w.classify(ev.Name)
			if t == "" {
				continue
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, ev.Name)
				accumulate(t)
				continue
			}
			// Writes and creates wait out the stability window: the external
			// writer is not transactional and may leave intermediate states.
			size := int64(-1)
			if info, err := os.Stat(ev.Name); err == nil {
				if info.IsDir() {
					accumulate(t)
					continue
				}
				size = info.Size()
			}
			pending[ev.Name] = &pendingFile{size: size, since: time.Now(), evtType: t}

		case <-stability.C:
			now := time.Now()
			for path, pf := range pending {
				info, err := os.Stat(path)
				size := int64(-1)
				if err == nil {
					size = info.Size()
				}
				if size != pf.size {
					pf.size = size
					pf.since = now
					continue
				}
				if now.Sub(pf.since) >= w.opts.Stability {
					delete(pending, path)
					accumulate(pf.evtType)
				}
			}

		case <-debounce.C:
			if pendingType != "" {
				select {
				case w.events <- Event{Type: pendingType, Timestamp: time.Now().UTC()}:
				default:
					slog.Warn("watch event dropped, subscriber too slow")
				}
				pendingType = ""
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "err", err)
		}
	}
}

// classify maps a changed path to an event type, or "" to ignore it.
func (w *Watcher) classify(path string) string {
	if w.opts.PlanDir != "" && filepath.Dir(path) == filepath.Clean(w.opts.PlanDir) {
		// Only the queue and log drive plan invalidation; compact-state and
		// context snapshots written by the hook pipeline do not loop back.
		switch filepath.Base(path) {
		case plan.QueueFile, plan.LogFile:
			return TypePlan
		}
		return ""
	}
	return TypeSessions
}

// maybeTrackNewDir begins watching tasks/todos directories (and session
// subdirectories) created after start-up, without a restart.
func (w *Watcher) maybeTrackNewDir(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == 0 {
		return
	}
	if !dirExists(ev.Name) {
		return
	}
	tasksDir := filepath.Join(w.opts.AgentDir, "tasks")
	todosDir := filepath.Join(w.opts.AgentDir, "todos")
	if ev.Name == tasksDir || ev.Name == todosDir || filepath.Dir(ev.Name) == tasksDir {
		if err := w.fs.Add(ev.Name); err != nil {
			slog.Warn("watch new dir failed", "path", ev.Name, "err", err)
		}
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
