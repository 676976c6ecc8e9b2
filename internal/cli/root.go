// Package cli defines the plandash command tree.
package cli

import (
	"os"

	"github.com/plandash/plandash/internal/config"
	"github.com/spf13/cobra"
)

func NewRootCmd(version string) *cobra.Command {
	var (
		agentDirOverride string
		planDirOverride  string
	)

	cmd := &cobra.Command{
		Use:          "plandash",
		Short:        "Plandash — live dashboard over an agent's task plan and sessions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			agentDir, err := config.ResolveAgentDir(agentDirOverride)
			if err != nil {
				return err
			}
			ctx := config.WithAgentDir(cmd.Context(), agentDir)
			ctx = config.WithPlanDir(ctx, config.ResolvePlanDir(planDirOverride))
			cmd.SetContext(ctx)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&agentDirOverride, "agent-dir", "", "Override agent data directory (default: ~/.agent, env: PLANDASH_AGENT_DIR)")
	cmd.PersistentFlags().StringVar(&planDirOverride, "plan-dir", "", "Override plan directory (default: ./.plandash when present, env: PLANDASH_PLAN_DIR)")

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())

	// Hidden internal subcommand used by `plandash start` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}
