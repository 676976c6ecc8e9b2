package hooks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/plandash/plandash/internal/git"
	"github.com/plandash/plandash/internal/plan"
)

// captureContext writes a small markdown snapshot of working state into the
// plan directory's context/ subdirectory. Commit-tied snapshots are named by
// short SHA so the filename survives timestamp drift; otherwise the capture
// time is used.
func (s *Service) captureContext(ctx context.Context, workDir string, commitMade bool) StepResult {
	res := StepResult{Step: "context-snapshot", OK: true}
	if s.plans.Dir() == "" {
		res.Skipped = true
		return res
	}

	now := time.Now().UTC()
	name := "context-" + now.Format("20060102-150405") + ".md"

	var b strings.Builder
	fmt.Fprintf(&b, "# Context snapshot\n\nCaptured: %s\n", now.Format(time.RFC3339))
	if workDir != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", workDir)
	}

	if workDir != "" && git.IsRepo(ctx, workDir) {
		if branch := git.Branch(ctx, workDir); branch != "" {
			fmt.Fprintf(&b, "Branch: %s\n", branch)
		}
		if sha, err := git.HeadSHA(ctx, workDir); err == nil && sha != "" {
			fmt.Fprintf(&b, "Commit: %s\n", sha)
			if commitMade && len(sha) >= 8 {
				name = "context-" + sha[:8] + ".md"
			}
		}
		if dirty := git.DirtyFiles(ctx, workDir); dirty > 0 {
			fmt.Fprintf(&b, "Uncommitted files: %d\n", dirty)
		}
	}

	if s.plans.Configured() {
		snap, _ := s.plans.Snapshot()
		fmt.Fprintf(&b, "\n## Plan\n\nTotal %d, done %d, failed %d, blocked %d, ready %d, in progress %d\n",
			snap.Summary.Total, snap.Summary.Done, snap.Summary.Failed,
			snap.Summary.Blocked, snap.Summary.Ready, snap.Summary.InProgress)
		var inProgress []string
		for _, t := range snap.Tasks {
			if t.Status == plan.StatusInProgress {
				inProgress = append(inProgress, t.ID)
			}
		}
		if len(inProgress) > 0 {
			fmt.Fprintf(&b, "In progress: %s\n", strings.Join(inProgress, ", "))
		}
	}

	dir := plan.ContextDir(s.plans.Dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.OK = false
		res.Detail = err.Error()
		return res
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
		res.OK = false
		res.Detail = err.Error()
	}
	return res
}
