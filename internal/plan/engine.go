package plan

const cycleReason = "dependency cycle"

// ComputeSnapshot derives a Snapshot from the full task set and event log.
// Pure and total: any well-typed input produces a valid Snapshot, including
// an empty task set or a log full of unknown task ids.
//
// Status rules, in priority order, per task:
//
//	latest event DONE        -> DONE (terminal, independent of dependencies)
//	latest event FAILED      -> FAILED
//	latest event BLOCKED     -> BLOCKED
//	latest event IN_PROGRESS -> IN_PROGRESS
//	no event                 -> READY if every dependency resolved DONE, else BLOCKED
//
// The latest event is the one with the greatest timestamp; identical
// timestamps resolve to the later log line (append order wins).
func ComputeSnapshot(tasks []Task, events []Event) Snapshot {
	byTask := make(map[string][]Event)
	for _, ev := range events {
		byTask[ev.TaskID] = append(byTask[ev.TaskID], ev)
	}

	last := make(map[string]*Event, len(tasks))
	for i := range events {
		ev := &events[i]
		cur, ok := last[ev.TaskID]
		if !ok || ev.Timestamp.After(cur.Timestamp) ||
			(ev.Timestamp.Equal(cur.Timestamp) && ev.LogIndex > cur.LogIndex) {
			last[ev.TaskID] = ev
		}
	}

	inCycle := map[string]bool{}
	for _, id := range cyclicTaskIDs(tasks) {
		inCycle[id] = true
	}

	byID := make(map[string]int, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = i
	}

	// Resolve statuses in dependency order. Cyclic tasks are pinned BLOCKED up
	// front, which also terminates recursion through their edges.
	status := make([]string, len(tasks))
	reason := make([]string, len(tasks))
	var resolve func(i int) string
	resolve = func(i int) string {
		if status[i] != "" {
			return status[i]
		}
		t := tasks[i]
		if inCycle[t.ID] {
			status[i] = StatusBlocked
			reason[i] = cycleReason
			return status[i]
		}
		if ev, ok := last[t.ID]; ok {
			switch ev.Status {
			case EventDone:
				status[i] = StatusDone
			case EventFailed:
				status[i] = StatusFailed
			case EventBlocked:
				status[i] = StatusBlocked
			case EventInProgress:
				status[i] = StatusInProgress
			}
			reason[i] = ev.Reason
			return status[i]
		}
		// No event: READY iff every dependency exists and resolved DONE.
		st := StatusReady
		for _, dep := range t.DependsOn {
			j, ok := byID[dep]
			if !ok || resolve(j) != StatusDone {
				st = StatusBlocked
				break
			}
		}
		status[i] = st
		return st
	}
	for i := range tasks {
		resolve(i)
	}

	snap := Snapshot{
		Tasks:        make([]ComputedTask, len(tasks)),
		Slices:       make(map[string]SliceStat),
		EventsByTask: byTask,
	}
	for i, t := range tasks {
		ct := ComputedTask{Task: t, Status: status[i], StatusReason: reason[i]}
		if ev, ok := last[t.ID]; ok {
			evCopy := *ev
			ct.LastEvent = &evCopy
		}
		snap.Tasks[i] = ct

		snap.Summary.Total++
		switch status[i] {
		case StatusDone:
			snap.Summary.Done++
		case StatusFailed:
			snap.Summary.Failed++
		case StatusBlocked:
			snap.Summary.Blocked++
		case StatusReady:
			snap.Summary.Ready++
		case StatusInProgress:
			snap.Summary.InProgress++
		}

		s := snap.Slices[t.Slice]
		s.Name = t.Slice
		s.Total++
		switch status[i] {
		case StatusDone:
			s.Done++
		case StatusFailed:
			s.Failed++
		case StatusBlocked:
			s.Blocked++
		}
		snap.Slices[t.Slice] = s
	}

	if terminal := snap.Summary.Done + snap.Summary.Failed; terminal > 0 {
		snap.Summary.SuccessRate = float64(snap.Summary.Done) / float64(terminal)
	}
	for name, s := range snap.Slices {
		if s.Total > 0 {
			s.Progress = float64(s.Done) / float64(s.Total) * 100
		}
		snap.Slices[name] = s
	}
	return snap
}
