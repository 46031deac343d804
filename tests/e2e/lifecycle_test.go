package e2e

import (
	"strings"
	"testing"
	"time"
)

// Stopping one process leaves an unrelated process running.
func TestLifecycle_StopSpecificProcess(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	f := NewFixture(t)
	f.WriteManifest(`
services:
  app1:
    command: sleep 60
    auto_start: true
  app2:
    command: sleep 60
    auto_start: true
`)
	f.Start()

	for _, name := range []string{"app1", "app2"} {
		if err := f.WaitForRunning(name, 5*time.Second); err != nil {
			t.Fatalf("%s did not start: %v", name, err)
		}
	}

	stdout, _, err := f.Run("stop", "app1")
	if err != nil {
		t.Fatalf("stop failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "Stopped app1") {
		t.Errorf("expected stop confirmation for app1, got: %s", stdout)
	}

	p, err := f.Find("app2")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !p.Running() {
		t.Errorf("expected app2 to still be running")
	}
}

// The daemon keeps serving after every registered process has been stopped.
func TestLifecycle_DaemonStaysRunningAfterStop(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	f := NewFixture(t)
	f.WriteManifest(`
services:
  app:
    command: sleep 60
    auto_start: true
`)
	f.Start()

	if err := f.WaitForRunning("app", 5*time.Second); err != nil {
		t.Fatalf("app did not start: %v", err)
	}
	if _, _, err := f.Run("stop", "app"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if _, err := f.Ps(); err != nil {
		t.Fatalf("daemon stopped responding after stopping its only process: %v", err)
	}
}

// Restart with clear-logs discards the buffered backlog.
func TestLifecycle_RestartClearLogs(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	f := NewFixture(t)
	f.WriteManifest(`
services:
  app:
    command: sh -c 'echo first; sleep 60'
    auto_start: true
`)
	f.Start()

	if err := f.WaitForRunning("app", 5*time.Second); err != nil {
		t.Fatalf("app did not start: %v", err)
	}

	stdout, _, err := f.Run("restart", "-clear-logs", "app")
	if err != nil {
		t.Fatalf("restart failed: %v\n%s", err, stdout)
	}
	if !strings.Contains(stdout, "Restarted app") {
		t.Errorf("expected restart confirmation, got: %s", stdout)
	}

	if err := f.WaitForRunning("app", 5*time.Second); err != nil {
		t.Fatalf("app did not come back up: %v", err)
	}

	logs, _, err := f.Run("logs", "-n", "10", "app")
	if err != nil {
		t.Fatalf("logs failed: %v", err)
	}
	if strings.Count(logs, "first") != 1 {
		t.Errorf("expected exactly one 'first' line after clearing logs on restart, got:\n%s", logs)
	}
}

// Removing a still-running process is rejected; removing a stopped one
// succeeds and it disappears from `ps`.
func TestLifecycle_DeleteRequiresStopped(t *testing.T) {
	skipIfShort(t)
	t.Parallel()

	f := NewFixture(t)
	f.WriteManifest(`
services:
  app:
    command: sleep 60
    restart: never
    auto_start: true
`)
	f.Start()

	if err := f.WaitForRunning("app", 5*time.Second); err != nil {
		t.Fatalf("app did not start: %v", err)
	}
	if _, _, err := f.Run("rm", "app"); err == nil {
		t.Fatalf("expected rm of a running process to fail")
	}

	if _, _, err := f.Run("stop", "app"); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := f.WaitForExited("app", 5*time.Second); err != nil {
		t.Fatalf("app did not exit: %v", err)
	}

	if _, _, err := f.Run("rm", "app"); err != nil {
		t.Fatalf("rm after stop should succeed: %v", err)
	}
	if _, err := f.Find("app"); err == nil {
		t.Errorf("expected app to be gone from ps after rm")
	}
}
