package plan

import (
	"math"
	"sort"
	"time"
)

// TimelinePoint is one cumulative day on the completion timeline.
type TimelinePoint struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Total     int    `json:"total"`
}

// Velocity summarizes completion throughput over the event history.
type Velocity struct {
	TasksPerHour   float64 `json:"tasksPerHour"`
	TasksPerDay    float64 `json:"tasksPerDay"`
	AvgTaskMinutes float64 `json:"avgTaskMinutes"` // mean gap between consecutive completions
}

// Bottleneck is a task ranked by how many other tasks depend on it.
type Bottleneck struct {
	TaskID      string `json:"taskId"`
	BlocksCount int    `json:"blocksCount"`
	Description string `json:"description"`
}

// Insights is the aggregate-statistics rollup over one derived snapshot.
type Insights struct {
	Summary struct {
		TotalTasks     int     `json:"totalTasks"`
		CompletedTasks int     `json:"completedTasks"`
		FailedTasks    int     `json:"failedTasks"`
		BlockedTasks   int     `json:"blockedTasks"`
		SuccessRate    float64 `json:"successRate"`
		CompletionRate float64 `json:"completionRate"`
	} `json:"summary"`
	Timeline    []TimelinePoint      `json:"timeline"`
	SliceStats  map[string]SliceStat `json:"sliceStats"`
	Velocity    Velocity             `json:"velocity"`
	Bottlenecks []Bottleneck         `json:"bottlenecks"`
}

// ComputeInsights builds the plan insights rollup. Pure arithmetic over an
// already-derived snapshot and its event log.
func ComputeInsights(snap Snapshot, events []Event) Insights {
	var ins Insights
	ins.Summary.TotalTasks = snap.Summary.Total
	ins.Summary.CompletedTasks = snap.Summary.Done
	ins.Summary.FailedTasks = snap.Summary.Failed
	ins.Summary.BlockedTasks = snap.Summary.Blocked
	ins.Summary.SuccessRate = snap.Summary.SuccessRate
	if snap.Summary.Total > 0 {
		ins.Summary.CompletionRate = float64(snap.Summary.Done) / float64(snap.Summary.Total)
	}
	ins.Timeline = computeTimeline(events)
	ins.SliceStats = snap.Slices
	ins.Velocity = computeVelocity(events)
	ins.Bottlenecks = computeBottlenecks(snap.Tasks)
	return ins
}

func computeTimeline(events []Event) []TimelinePoint {
	if len(events) == 0 {
		return nil
	}
	type counts struct{ completed, failed int }
	days := map[string]*counts{}
	for _, ev := range events {
		day := ev.Timestamp.UTC().Format("2006-01-02")
		c := days[day]
		if c == nil {
			c = &counts{}
			days[day] = c
		}
		switch ev.Status {
		case EventDone:
			c.completed++
		case EventFailed:
			c.failed++
		}
	}
	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var completed, failed int
	points := make([]TimelinePoint, 0, len(keys))
	for _, day := range keys {
		completed += days[day].completed
		failed += days[day].failed
		points = append(points, TimelinePoint{
			Date:      day,
			Completed: completed,
			Failed:    failed,
			Total:     completed + failed,
		})
	}
	return points
}

func computeVelocity(events []Event) Velocity {
	var times []time.Time
	for _, ev := range events {
		if ev.Status == EventDone {
			times = append(times, ev.Timestamp)
		}
	}
	if len(times) == 0 {
		return Velocity{}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var v Velocity
	span := times[len(times)-1].Sub(times[0]).Hours()
	if span > 0 {
		v.TasksPerHour = round2(float64(len(times)) / span)
		v.TasksPerDay = round2(v.TasksPerHour * 24)
	}
	if len(times) > 1 {
		var total time.Duration
		for i := 1; i < len(times); i++ {
			total += times[i].Sub(times[i-1])
		}
		v.AvgTaskMinutes = math.Round(total.Minutes() / float64(len(times)-1))
	}
	return v
}

func computeBottlenecks(tasks []ComputedTask) []Bottleneck {
	blocks := map[string]int{}
	desc := map[string]string{}
	for _, t := range tasks {
		desc[t.ID] = t.Description
		for _, dep := range t.DependsOn {
			blocks[dep]++
		}
	}
	var out []Bottleneck
	for id, n := range blocks {
		d := desc[id]
		if d == "" {
			d = "unknown task"
		}
		out = append(out, Bottleneck{TaskID: id, BlocksCount: n, Description: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlocksCount != out[j].BlocksCount {
			return out[i].BlocksCount > out[j].BlocksCount
		}
		return out[i].TaskID < out[j].TaskID
	})
	if len(out) > 5 {
		out = out[:5]
	}
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
