package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/plan"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify runtime dependencies and data directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentDir := config.MustAgentDirFrom(cmd.Context())
			planDir, _ := config.PlanDirFrom(cmd.Context())

			var problems []string

			// git is required for the pre-compaction auto-commit step.
			if _, err := exec.LookPath("git"); err != nil {
				problems = append(problems, "missing dependency: git (not found on PATH)")
			}

			if st, err := os.Stat(agentDir); err != nil || !st.IsDir() {
				problems = append(problems, fmt.Sprintf("agent dir %s does not exist; live sessions will be empty", agentDir))
			}

			if planDir == "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no plan dir configured (no ./.plandash); plan views will be empty")
			} else if _, err := os.Stat(plan.QueuePath(planDir)); err != nil {
				problems = append(problems, fmt.Sprintf("plan dir %s has no %s", planDir, plan.QueueFile))
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	return cmd
}
