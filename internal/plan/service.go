package plan

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/plandash/plandash/internal/otel"
)

// Service owns the memoized plan snapshot. Reads are served from the memo
// until Invalidate is called (by the filesystem watcher); the next read after
// an invalidation performs exactly one re-derivation. Safe for concurrent use:
// readers during a recomputation block and then observe the same result.
type Service struct {
	planDir string

	mu   sync.Mutex
	memo *derivation
}

// derivation is one complete read-parse-derive pass over the plan files.
type derivation struct {
	snapshot Snapshot
	events   []Event
	errors   []string
}

// NewService returns a Service for the given plan directory. planDir may be
// empty ("no plan configured"), in which case Snapshot returns empty results.
func NewService(planDir string) *Service {
	return &Service{planDir: planDir}
}

// Dir returns the configured plan directory ("" when none).
func (s *Service) Dir() string { return s.planDir }

// Configured reports whether a plan directory is set and its queue file exists.
func (s *Service) Configured() bool {
	if s.planDir == "" {
		return false
	}
	_, err := os.Stat(QueuePath(s.planDir))
	return err == nil
}

// Invalidate clears the memo. The next Snapshot call re-derives.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.memo = nil
	s.mu.Unlock()
}

// Snapshot returns the current derived snapshot plus any queue errors,
// recomputing only if the memo was invalidated. Missing files read as empty
// per the absence-is-not-failure policy.
func (s *Service) Snapshot() (Snapshot, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memo == nil {
		s.memo = s.derive()
	}
	return s.memo.snapshot, s.memo.errors
}

// Events returns the parsed event log backing the current snapshot, for the
// insights rollup and per-task timelines. Shares the memo with Snapshot.
func (s *Service) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memo == nil {
		s.memo = s.derive()
	}
	return s.memo.events
}

func (s *Service) derive() *derivation {
	start := time.Now()
	defer func() { otel.RecordRecompute(context.Background(), time.Since(start)) }()

	var queueText, logText string
	if s.planDir != "" {
		if b, err := os.ReadFile(QueuePath(s.planDir)); err == nil {
			queueText = string(b)
		}
		if b, err := os.ReadFile(LogPath(s.planDir)); err == nil {
			logText = string(b)
		}
	}
	q := ParseQueue(queueText)
	l := ParseLog(logText)
	return &derivation{
		snapshot: ComputeSnapshot(q.Tasks, l.Events),
		events:   l.Events,
		errors:   q.Errors,
	}
}

// OverrideStatus marks a task DONE or BLOCKED by appending a synthetic event
// to the execution log and invalidating the memo. The log stays the single
// source of truth; derived snapshots are never mutated in place.
func (s *Service) OverrideStatus(taskID, status, reason string) error {
	if s.planDir == "" {
		return fmt.Errorf("no plan configured")
	}
	if status != EventDone && status != EventBlocked {
		return fmt.Errorf("status must be %s or %s", EventDone, EventBlocked)
	}
	snap, _ := s.Snapshot()
	found := false
	for _, t := range snap.Tasks {
		if t.ID == taskID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unknown task %q", taskID)
	}

	ev := Event{
		TaskID:    taskID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Agent:     "dashboard",
		Reason:    reason,
	}
	line, err := MarshalEvent(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(LogPath(s.planDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append execution log: %w", err)
	}
	s.Invalidate()
	return nil
}
