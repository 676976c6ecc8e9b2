// Package daemon hosts the dashboard server as a long-lived process with
// pid/addr bookkeeping and a singleton lock.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/plandash/plandash/internal/config"
	"github.com/plandash/plandash/internal/httpapi"
	"github.com/plandash/plandash/internal/otel"
)

// DefaultPort is the dashboard's default listen port.
const DefaultPort = 3274

func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.AgentDir == "" {
		return errors.New("agent dir is required")
	}
	settings, err := config.LoadSettings(opts.AgentDir)
	if err != nil {
		slog.Warn("settings file unreadable, ignoring", "err", err)
	}
	if settings == nil {
		settings = &config.Settings{}
	}
	if opts.Port == 0 {
		opts.Port = settings.Port
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	host := settings.Host
	if host == "" {
		host = "127.0.0.1"
	}

	if err := os.MkdirAll(runDir(opts.AgentDir), 0o755); err != nil {
		return err
	}

	// Singleton lock, released on exit.
	lock, err := acquireLock(lockPath(opts.AgentDir))
	if err != nil {
		return err
	}
	defer lock.release()

	// Write PID + addr files.
	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.AgentDir), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addr := net.JoinHostPort(host, strconv.Itoa(opts.Port))
	_ = os.WriteFile(addrPath(opts.AgentDir), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.AgentDir))
		_ = os.Remove(addrPath(opts.AgentDir))
	}()

	// Early port check for clearer error.
	if err := checkPortAvailable(opts.Port); err != nil {
		return err
	}

	srvOpts := httpapi.ServerOptions{
		AgentDir: opts.AgentDir,
		PlanDir:  opts.PlanDir,
		Addr:     addr,
		Dev:      opts.Dev,
		APIKey:   opts.APIKey,
	}
	if srvOpts.APIKey == "" {
		srvOpts.APIKey = os.Getenv("PLANDASH_API_KEY")
	}
	if srvOpts.APIKey == "" {
		srvOpts.APIKey = settings.APIKey
	}
	if settings.StaleHours > 0 {
		srvOpts.StaleAfter = time.Duration(settings.StaleHours) * time.Hour
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "plandash")
		if err != nil {
			slog.Warn("otel init failed, using plain metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
		}
	}
	app := httpapi.NewApp(srvOpts)
	if opts.EnableOtel {
		_ = otel.InitMetricsWithTaskCount(ctx, app.TaskCounts)
	}

	slog.Info("daemon starting", "addr", addr, "agent_dir", opts.AgentDir, "plan_dir", opts.PlanDir)
	errCh := make(chan error, 1)
	go func() {
		// Watcher runs alongside the HTTP server and publishes SSE events.
		go app.RunWatcher(ctx)
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// StartBackground re-executes the current binary as a detached "daemon"
// subcommand and waits briefly for it to come up.
func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(runDir(opts.AgentDir), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.AgentDir); st.Running {
		return 0, fmt.Errorf("plandash already running (pid %d)", st.PID)
	}

	logFile := filepath.Join(runDir(opts.AgentDir), "plandash.log")
	stderr, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	args := []string{
		"daemon",
		"--agent-dir", opts.AgentDir,
		"--port", strconv.Itoa(opts.Port),
	}
	if opts.PlanDir != "" {
		args = append(args, "--plan-dir", opts.PlanDir)
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.EnableOtel {
		args = append(args, "--otel")
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for pid file to appear or process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.AgentDir); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Fallback to started pid even if status isn't ready yet.
	return cmd.Process.Pid, nil
}

func Stop(ctx context.Context, agentDir string) (bool, error) {
	st, err := Status(ctx, agentDir)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		// On unix FindProcess always succeeds; keep this for completeness.
		return false, errors.New("plandash is not running")
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, agentDir); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

func Status(ctx context.Context, agentDir string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(agentDir))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pidStr := strings.TrimSpace(string(pb))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	// kill(pid, 0) checks existence/permission on unix.
	if err := syscall.Kill(pid, 0); err != nil {
		_ = os.Remove(pidPath(agentDir))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(agentDir)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
