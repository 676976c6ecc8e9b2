package session

import (
	"sort"
	"time"
)

// Insights is the aggregate rollup over the live session list.
type Insights struct {
	Summary struct {
		TotalSessions   int `json:"totalSessions"`
		ActiveSessions  int `json:"activeSessions"`
		TotalTasks      int `json:"totalTasks"`
		CompletedTasks  int `json:"completedTasks"`
		InProgressTasks int `json:"inProgressTasks"`
		PendingTasks    int `json:"pendingTasks"`
	} `json:"summary"`
	Timeline    []TimelinePoint `json:"timeline"`
	TokenUsage  TokenTotals     `json:"tokenUsage"`
	TopSessions []TopSession    `json:"topSessions"`
}

// TimelinePoint is one cumulative day of completed tasks.
type TimelinePoint struct {
	Date      string `json:"date"`
	Completed int    `json:"completed"`
}

// TokenTotals sums token usage across all sessions that report it.
type TokenTotals struct {
	Total         int64 `json:"total"`
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheCreation int64 `json:"cacheCreation"`
	CacheRead     int64 `json:"cacheRead"`
}

// TopSession ranks sessions by task count.
type TopSession struct {
	ID             string `json:"id"`
	TaskCount      int    `json:"taskCount"`
	CompletedCount int    `json:"completedCount"`
	LastActivity   string `json:"lastActivity"`
}

// ComputeInsights builds the live rollup. Pure arithmetic over already-read
// sessions.
func ComputeInsights(sessions []Session) Insights {
	var ins Insights
	ins.Summary.TotalSessions = len(sessions)

	days := map[string]int{}
	for _, s := range sessions {
		active := false
		for _, t := range s.Tasks {
			ins.Summary.TotalTasks++
			switch t.Status {
			case StatusCompleted:
				ins.Summary.CompletedTasks++
			case StatusInProgress:
				ins.Summary.InProgressTasks++
				active = true
			case StatusPending:
				ins.Summary.PendingTasks++
			}
		}
		if active {
			ins.Summary.ActiveSessions++
		}
		if s.TokenUsage != nil {
			ins.TokenUsage.Input += s.TokenUsage.InputTokens
			ins.TokenUsage.Output += s.TokenUsage.OutputTokens
			ins.TokenUsage.CacheCreation += s.TokenUsage.CacheCreationTokens
			ins.TokenUsage.CacheRead += s.TokenUsage.CacheReadTokens
		}
		days[s.UpdatedAt.UTC().Format("2006-01-02")] += completedCount(s)
	}
	ins.TokenUsage.Total = ins.TokenUsage.Input + ins.TokenUsage.Output +
		ins.TokenUsage.CacheCreation + ins.TokenUsage.CacheRead

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	cumulative := 0
	for _, day := range keys {
		cumulative += days[day]
		ins.Timeline = append(ins.Timeline, TimelinePoint{Date: day, Completed: cumulative})
	}

	top := make([]TopSession, 0, len(sessions))
	for _, s := range sessions {
		top = append(top, TopSession{
			ID:             s.ID,
			TaskCount:      len(s.Tasks),
			CompletedCount: completedCount(s),
			LastActivity:   s.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	sort.SliceStable(top, func(i, j int) bool { return top[i].TaskCount > top[j].TaskCount })
	if len(top) > 5 {
		top = top[:5]
	}
	ins.TopSessions = top
	return ins
}

func completedCount(s Session) int {
	n := 0
	for _, t := range s.Tasks {
		if t.Status == StatusCompleted {
			n++
		}
	}
	return n
}
