package cli

import (
	"fmt"
	"net/url"
	"os/exec"
	"runtime"

	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/daemon"
	"github.com/spf13/cobra"
)

func newStartCmd() *cobra.Command {
	var (
		port       int
		foreground bool
		dev        bool
		apiKey     string
		enableOtel bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the plandash server",
		RunE: func(cmd *cobra.Command, args []string) error {
			agentDir := config.MustAgentDirFrom(cmd.Context())
			planDir, _ := config.PlanDirFrom(cmd.Context())

			// The settings file supplies the port when the flag is not given,
			// so the printed URL matches what the daemon binds.
			if !cmd.Flags().Changed("port") {
				if s, err := config.LoadSettings(agentDir); err == nil && s != nil && s.Port > 0 {
					port = s.Port
				}
			}

			opts := daemon.StartOptions{
				AgentDir:   agentDir,
				PlanDir:    planDir,
				Port:       port,
				Dev:        dev,
				APIKey:     apiKey,
				EnableOtel: enableOtel,
			}

			ui := (&url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", port)}).String()

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting plandash in foreground on %s\n", ui)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "plandash started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Dashboard: %s\n", ui)

			// Best-effort open browser (Linux: xdg-open, macOS: open, Windows: start).
			_ = openBrowser(ui)
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", daemon.DefaultPort, "Port for the dashboard")
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable dev mode (CORS for a separate frontend dev server)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require this API key on requests (env: PLANDASH_API_KEY)")
	cmd.Flags().BoolVar(&enableOtel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter)")

	return cmd
}

func openBrowser(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", u).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", u).Start()
	default:
		// Linux and others
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return err
		}
		return exec.Command("xdg-open", u).Start()
	}
}
