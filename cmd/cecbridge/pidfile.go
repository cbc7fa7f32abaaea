package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

func getDefaultPidFile() string {
	systemPidFile := "/var/run/cecbridge.pid"
	if dir := filepath.Dir(systemPidFile); isWritableDir(dir) {
		return systemPidFile
	}
	return "./cecbridge.pid"
}

func isWritableDir(dir string) bool {
	if stat, err := os.Stat(dir); err == nil && stat.IsDir() {
		testFile := filepath.Join(dir, ".cecbridge_write_test")
		if f, err := os.Create(testFile); err == nil {
			f.Close()
			os.Remove(testFile)
			return true
		}
	}
	return false
}

// createPidFile claims the single-instance lock at pidFile. target
// identifies the amplifier this instance is bridging ("ip:port") so a
// conflicting second instance can report which target is already taken,
// not just that some cecbridge process is running.
func createPidFile(pidFile, target string) error {
	if err := checkExistingPid(pidFile, target); err != nil {
		return err
	}

	if dir := filepath.Dir(pidFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create PID file directory: %v", err)
		}
	}

	content := fmt.Sprintf("%d\n%s\n", os.Getpid(), target)
	if err := os.WriteFile(pidFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %v", err)
	}
	return nil
}

// checkExistingPid rejects claiming pidFile if it names a still-running
// process, reporting the target that process was started against
// ("unknown target" if its target line is missing). A stale file (process
// no longer running, or an unreadable PID line) is silently reclaimed.
func checkExistingPid(pidFile, wantTarget string) error {
	data, err := os.ReadFile(pidFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read existing PID file: %v", err)
	}

	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		os.Remove(pidFile)
		return nil
	}

	if isProcessRunning(pid) {
		existingTarget := "unknown target"
		if len(lines) > 1 && strings.TrimSpace(lines[1]) != "" {
			existingTarget = strings.TrimSpace(lines[1])
		}
		if existingTarget == wantTarget {
			return fmt.Errorf("cecbridge is already running with PID %d against %s", pid, existingTarget)
		}
		return fmt.Errorf("cecbridge is already running with PID %d against %s (wanted %s; stop it first or use a different --pidfile)", pid, existingTarget, wantTarget)
	}

	os.Remove(pidFile)
	return nil
}

func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func removePidFile(pidFile string) {
	if pidFile == "" {
		return
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: failed to remove PID file %s: %v\n", pidFile, err)
	}
}
