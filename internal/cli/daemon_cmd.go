package cli

import (
	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/daemon"
	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	var (
		port       int
		dev        bool
		apiKey     string
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Internal: run server process",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			agentDir := config.MustAgentDirFrom(cmd.Context())
			planDir, _ := config.PlanDirFrom(cmd.Context())
			return daemon.StartForeground(cmd.Context(), daemon.StartOptions{
				AgentDir:   agentDir,
				PlanDir:    planDir,
				Port:       port,
				Dev:        dev,
				APIKey:     apiKey,
				EnableOtel: enableOtel,
			})
		},
	}

	cmd.Flags().IntVar(&port, "port", daemon.DefaultPort, "Port for the dashboard")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable dev mode")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require this API key on requests")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics")

	return cmd
}
