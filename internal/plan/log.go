package plan

import (
	"bufio"
	"encoding/json"
	"strings"
)

// LogResult is the outcome of parsing an execution log.
type LogResult struct {
	Events  []Event
	Skipped int // malformed lines, dropped per the recover-locally policy
}

// ParseLog parses execution.log text: one JSON event object per line.
// Malformed lines and events with an unrecognized status are skipped, never
// fatal — the log is written by an external process and may contain a torn
// final line mid-write. LogIndex preserves append order for tie-breaking.
func ParseLog(text string) LogResult {
	var res LogResult
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			res.Skipped++
			continue
		}
		if ev.TaskID == "" || !validEventStatus(ev.Status) {
			res.Skipped++
			continue
		}
		ev.LogIndex = len(res.Events)
		res.Events = append(res.Events, ev)
	}
	return res
}

func validEventStatus(s string) bool {
	switch s {
	case EventDone, EventFailed, EventBlocked, EventInProgress:
		return true
	}
	return false
}

// MarshalEvent renders an event as one log line (no trailing newline).
// Used for appending synthetic status-override events.
func MarshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}
