package plan

import (
	"bufio"
	"fmt"
	"regexp"
	"strings"
)

// QueueResult is the outcome of parsing a queue file: the tasks that parsed
// cleanly plus a list of errors for everything that did not. A non-empty error
// list never aborts the parse; the UI distinguishes "no data" from "broken
// data" using it.
type QueueResult struct {
	Tasks  []Task
	Errors []string
}

// Task lines look like:
//
//	- [S1-T1] (core) Wire up the config loader [deps: S1-T0]
//
// with an optional indented "accept:" continuation on the following line.
// "## <name>" headings assign the slice for the tasks below them.
var taskLineRe = regexp.MustCompile(`^- \[([^\]\s]+)\]\s*(?:\(([^)]*)\))?\s*(.*?)\s*(?:\[deps:\s*([^\]]*)\])?\s*$`)

// ParseQueue parses queue.md text into tasks. Duplicate ids, dangling
// dependency references, and dependency cycles are recorded as errors;
// cyclic tasks stay in the result so the engine can mark them BLOCKED.
func ParseQueue(text string) QueueResult {
	var res QueueResult
	var slice string
	var last *Task
	seen := map[string]bool{}

	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "## "):
			slice = strings.TrimSpace(strings.TrimPrefix(trimmed, "## "))
			last = nil
		case strings.HasPrefix(trimmed, "- ["):
			m := taskLineRe.FindStringSubmatch(trimmed)
			if m == nil {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: malformed task entry", lineNo))
				last = nil
				continue
			}
			id := m[1]
			if seen[id] {
				res.Errors = append(res.Errors, fmt.Sprintf("line %d: duplicate task id %q", lineNo, id))
				last = nil
				continue
			}
			seen[id] = true
			t := Task{
				ID:          id,
				Area:        strings.TrimSpace(m[2]),
				Description: strings.TrimSpace(m[3]),
				Slice:       slice,
				DependsOn:   splitDeps(m[4]),
			}
			res.Tasks = append(res.Tasks, t)
			last = &res.Tasks[len(res.Tasks)-1]
		case strings.HasPrefix(trimmed, "accept:"):
			if last != nil {
				last.AcceptanceCriteria = strings.TrimSpace(strings.TrimPrefix(trimmed, "accept:"))
			}
		}
	}

	res.Errors = append(res.Errors, validateGraph(res.Tasks)...)
	return res
}

func splitDeps(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	deps := make([]string, 0, len(parts))
	dup := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || dup[p] {
			continue
		}
		dup[p] = true
		deps = append(deps, p)
	}
	return deps
}

// validateGraph reports dangling dependency references and dependency cycles.
func validateGraph(tasks []Task) []string {
	var errs []string
	byID := make(map[string]*Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = &tasks[i]
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				errs = append(errs, fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep))
			}
		}
	}
	for _, id := range cyclicTaskIDs(tasks) {
		errs = append(errs, fmt.Sprintf("task %q is part of a dependency cycle", id))
	}
	return errs
}

// cyclicTaskIDs returns ids of tasks that can never resolve because their
// dependency chain loops back on itself. Iteratively peels tasks whose deps
// are all resolvable; what remains is cyclic (or downstream of a cycle that
// itself loops — only true cycle members are reported).
func cyclicTaskIDs(tasks []Task) []string {
	byID := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))
	inCycle := map[string]bool{}

	var visit func(id string, stack []string)
	visit = func(id string, stack []string) {
		color[id] = gray
		for _, dep := range byID[id] {
			if _, ok := byID[dep]; !ok {
				continue // dangling; reported separately
			}
			switch color[dep] {
			case white:
				visit(dep, append(stack, id))
			case gray:
				// Found a back edge: everything from dep to id on the stack is cyclic.
				inCycle[dep] = true
				inCycle[id] = true
				if dep != id {
					for i := len(stack) - 1; i >= 0; i-- {
						if stack[i] == dep {
							break
						}
						inCycle[stack[i]] = true
					}
				}
			}
		}
		color[id] = black
	}
	for _, t := range tasks {
		if color[t.ID] == white {
			visit(t.ID, nil)
		}
	}

	// Stable order: queue order.
	var ids []string
	for _, t := range tasks {
		if inCycle[t.ID] {
			ids = append(ids, t.ID)
		}
	}
	return ids
}
