package daemon

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"firestige.xyz/fastdrop/internal/log"
)

// writePIDFile writes the current process ID to path. An empty path is a
// no-op.
func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", path, err)
	}
	log.GetLogger().WithFields(map[string]interface{}{"path": path, "pid": pid}).Debug("PID file written")
	return nil
}

func removePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove PID file %s: %w", path, err)
	}
	return nil
}

// ReadPIDFile returns the process ID recorded in path.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed PID file %s", path)
	}
	return pid, nil
}

// SignalReload asks the agent recorded in pidFile to reload its rules.
func SignalReload(pidFile string) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("agent not running: %w", err)
	}
	return syscall.Kill(pid, syscall.SIGHUP)
}

// StopAgent sends SIGTERM to the agent recorded in pidFile and waits up to
// timeout for it to exit.
func StopAgent(pidFile string, timeout time.Duration) error {
	pid, err := ReadPIDFile(pidFile)
	if err != nil {
		return fmt.Errorf("agent not running: %w", err)
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		// Signal 0 only checks that the process still exists.
		if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("agent %d did not exit within %s", pid, timeout)
}
