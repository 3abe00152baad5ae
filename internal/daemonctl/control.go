package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gamevault/internal/api"
)

const pollInterval = 200 * time.Millisecond

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State  StartState
	Status api.DaemonStatus
}

// Launch starts a detached gamevaultd process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	var args []string
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// DaemonExecutable finds gamevaultd next to the running CLI binary, falling
// back to PATH.
func DaemonExecutable(cliPath string) (string, error) {
	if cliPath != "" {
		candidate := filepath.Join(filepath.Dir(cliPath), "gamevaultd")
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	path, err := exec.LookPath("gamevaultd")
	if err != nil {
		return "", fmt.Errorf("locate gamevaultd: %w", err)
	}
	return path, nil
}

// WaitForAPI polls the status endpoint until the daemon reports running.
func WaitForAPI(ctx context.Context, client *api.Client, timeout time.Duration) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := client.Status(ctx)
		if err == nil && status.Running {
			return status, nil
		}
		if err == nil {
			err = errors.New("daemon not running yet")
		}
		lastErr = err
		if err := sleep(ctx, pollInterval); err != nil {
			return api.DaemonStatus{}, err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return api.DaemonStatus{}, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless the API already answers.
func EnsureStarted(ctx context.Context, client *api.Client, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	status, err := client.Status(ctx)
	if err == nil && status.Running {
		return StartResult{State: StartStateAlreadyRunning, Status: status}, nil
	}
	if err != nil && !errors.Is(err, api.ErrAPIUnavailable) {
		return StartResult{}, err
	}
	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err = WaitForAPI(ctx, client, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, Status: status}, nil
}

// Stop signals the daemon process reported by the API and waits for the API
// to go away. It returns false when no daemon was running.
func Stop(ctx context.Context, client *api.Client, timeout time.Duration) (bool, error) {
	running, pid, err := ProcessInfo(ctx, client)
	if err != nil {
		return false, err
	}
	if !running {
		return false, nil
	}
	if pid <= 0 {
		return false, errors.New("daemon did not report a pid")
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return false, fmt.Errorf("signal daemon %d: %w", pid, err)
	}
	return true, WaitForShutdown(ctx, client, timeout)
}

// WaitForShutdown waits for the API to disappear or report not-running.
func WaitForShutdown(ctx context.Context, client *api.Client, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := client.Status(ctx)
		if errors.Is(err, api.ErrAPIUnavailable) {
			return nil
		}
		if err == nil && !status.Running {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("daemon still running")
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for shutdown")
	}
	return fmt.Errorf("daemon did not stop: %w", lastErr)
}

// ProcessInfo returns whether the daemon API is reachable and the daemon
// PID when available.
func ProcessInfo(ctx context.Context, client *api.Client) (bool, int, error) {
	status, err := client.Status(ctx)
	if err != nil {
		if errors.Is(err, api.ErrAPIUnavailable) {
			return false, 0, nil
		}
		return false, 0, err
	}
	return status.Running, status.PID, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
