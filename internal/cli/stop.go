package cli

import (
	"fmt"

	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/daemon"
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running plandash server",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentDir := config.MustAgentDirFrom(cmd.Context())

			// Snapshot the pid before stopping so the message can name it.
			st, err := daemon.Status(cmd.Context(), agentDir)
			if err != nil {
				return err
			}

			stopped, err := daemon.Stop(cmd.Context(), agentDir)
			if err != nil {
				return err
			}
			if !stopped {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "plandash is not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stopped (pid %d)\n", st.PID)
			return nil
		},
	}
}
