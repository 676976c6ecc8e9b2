package cli

import (
	"encoding/json"
	"fmt"

	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/daemon"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show plandash server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := daemon.Status(cmd.Context(), config.MustAgentDirFrom(cmd.Context()))
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "plandash is not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "plandash running (pid %d) on http://%s\n", st.PID, st.Addr)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}
