// Package supervisor implements the per-process pipeline: it spawns and
// owns one child process, drains its two output streams into a bounded
// ring buffer with continuation-line semantics, serves tail queries, and
// fans out live records to a dynamic set of subscribers.
package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ryym/procfleet/internal/apierr"
	"github.com/ryym/procfleet/internal/assembler"
	"github.com/ryym/procfleet/internal/logrecord"
	"github.com/ryym/procfleet/internal/ringbuffer"
	"github.com/ryym/procfleet/internal/subscriber"
)

// NamePattern is the validation pattern for process names.
var NamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

const gracefulTimeout = 10 * time.Second

// Supervisor owns one child process and everything needed to capture,
// retain, and fan out its output.
type Supervisor struct {
	Name       string
	Command    []string
	WorkingDir string
	Env        map[string]string

	mu   sync.Mutex // serializes buffer/subscriber mutation against drain workers
	buf  *ringbuffer.Buffer
	subs *subscriber.Set

	cmd        *exec.Cmd
	stdin      io.WriteCloser
	pid        int
	returncode *int
	done       chan struct{}

	manualStop    bool
	restartPolicy RestartPolicy
	failures      int
	startedAt     time.Time
}

// New creates a Supervisor for command, not yet started.
func New(name string, command []string) *Supervisor {
	return &Supervisor{
		Name:    name,
		Command: command,
		buf:     ringbuffer.New(ringbuffer.DefaultCapacity),
		subs:    subscriber.NewSet(),
	}
}

// SetRestartPolicy configures the automatic-restart policy applied after an
// unexpected (non-manual) exit. Safe to call at any time.
func (s *Supervisor) SetRestartPolicy(p RestartPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.restartPolicy = p
}

// Descriptor is the externally visible snapshot of a supervisor's identity
// and lifecycle state.
type Descriptor struct {
	Name       string   `json:"name"`
	Command    []string `json:"command"`
	PID        *int     `json:"pid"`
	ReturnCode *int     `json:"returncode"`
}

// Descriptor returns a point-in-time snapshot safe to serialize.
func (s *Supervisor) Descriptor() Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := Descriptor{
		Name:    s.Name,
		Command: append([]string(nil), s.Command...),
	}
	if s.pid != 0 {
		pid := s.pid
		d.PID = &pid
	}
	if s.returncode != nil {
		rc := *s.returncode
		d.ReturnCode = &rc
	}
	return d
}

// IsRunning reports whether a child is currently alive under this
// supervisor.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running()
}

// running must be called with s.mu held.
func (s *Supervisor) running() bool {
	return s.cmd != nil && s.returncode == nil
}

// CanDelete reports whether the registry is allowed to remove this
// supervisor: the child must have exited. A supervisor that was never
// started has no return code and cannot be deleted.
func (s *Supervisor) CanDelete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.returncode != nil
}

// Start spawns the child process and begins draining its output streams.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	if s.running() {
		s.mu.Unlock()
		return apierr.Conflictf("process %q already started", s.Name)
	}
	s.mu.Unlock()

	if len(s.Command) == 0 {
		return apierr.Validationf("process %q has no command", s.Name)
	}

	cmd := exec.Command(s.Command[0], s.Command[1:]...)
	if s.WorkingDir != "" {
		cmd.Dir = s.WorkingDir
	}
	cmd.Env = os.Environ()
	for k, v := range s.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	cmd.Stdout = &lineWriter{s: s, kind: logrecord.Stdout}
	cmd.Stderr = &lineWriter{s: s, kind: logrecord.Stderr}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("procfleet: open stdin pipe for %q: %w", s.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("procfleet: spawn %q: %w", s.Name, err)
	}

	done := make(chan struct{})

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.pid = cmd.Process.Pid
	s.returncode = nil
	s.done = done
	s.manualStop = false
	s.startedAt = time.Now()
	policy := s.restartPolicy
	s.mu.Unlock()

	go s.awaitExit(cmd, done)

	if policy != RestartNever {
		go s.monitorRestart(done)
	}

	log.Info().Str("process", s.Name).Int("pid", s.pid).Msg("process started")
	return nil
}

// lineWriter is attached directly as a child's cmd.Stdout/cmd.Stderr, so it
// receives whatever-sized chunks the OS delivers — not whole lines. A
// partial trailing line must be visible the instant it arrives and extended
// in place as more output lands on it, so chunks are fed to the assembler
// as-is rather than buffered until a newline shows up.
type lineWriter struct {
	s    *Supervisor
	kind logrecord.Kind
}

func (w *lineWriter) Write(p []byte) (int, error) {
	clean := strings.ToValidUTF8(string(p), "�")
	w.s.mu.Lock()
	appended := assembler.Feed(w.s.buf, w.kind, clean)
	for _, rec := range appended {
		w.s.subs.Broadcast(rec)
	}
	w.s.mu.Unlock()
	return len(p), nil
}

// awaitExit waits for the child to exit (cmd.Wait also waits for the
// internal goroutines copying into each lineWriter to finish, so no
// buffered output is lost to a premature reap) and records its return code.
func (s *Supervisor) awaitExit(cmd *exec.Cmd, done chan struct{}) {
	_ = cmd.Wait()

	rc := 0
	if cmd.ProcessState != nil {
		rc = cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	s.returncode = &rc
	s.mu.Unlock()

	close(done)
	log.Info().Str("process", s.Name).Int("returncode", rc).Msg("process exited")
}

// Write sends line, terminated with a newline, to the child's stdin.
func (s *Supervisor) Write(line string) error {
	s.mu.Lock()
	running := s.running()
	stdin := s.stdin
	s.mu.Unlock()

	if !running || stdin == nil {
		return apierr.Conflictf("process %q is not running", s.Name)
	}

	_, err := io.WriteString(stdin, line+"\n")
	return err
}

// Tail returns up to n of the most recent buffered records.
func (s *Supervisor) Tail(n int, includeStderr bool) ([]logrecord.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Tail(n, includeStderr)
}

// Subscribe registers a new live subscriber, replaying the last n records
// to it (atomically with respect to concurrent appends) before returning.
func (s *Supervisor) Subscribe(n int) (*subscriber.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	backlog, err := s.buf.Tail(n, true)
	if err != nil {
		return nil, err
	}
	sub := s.subs.Add(subscriber.DefaultCapacity)
	subscriber.Replay(sub, backlog)
	return sub, nil
}

// Unsubscribe removes sub from the live fan-out set. Idempotent.
func (s *Supervisor) Unsubscribe(sub *subscriber.Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs.Remove(sub)
}

// Stop terminates the child (gracefully unless kill is set, escalating to
// a forced kill if it does not exit within gracefulTimeout) and waits for
// it to exit. A no-op if the child is absent or already exited.
func (s *Supervisor) Stop(kill bool) error {
	s.mu.Lock()
	if !s.running() {
		s.mu.Unlock()
		return nil
	}
	s.manualStop = true
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if kill {
		signalGroup(cmd, syscall.SIGKILL)
		<-done
	} else {
		signalGroup(cmd, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(gracefulTimeout):
			signalGroup(cmd, syscall.SIGKILL)
			<-done
		}
	}

	s.mu.Lock()
	s.subs.RemoveAll()
	s.mu.Unlock()

	return nil
}

// Restart stops the child (see Stop), optionally clears the log buffer,
// then starts a new child. It does not return until the new start has
// succeeded or failed.
func (s *Supervisor) Restart(killExisting, clearLogs bool) error {
	if err := s.Stop(killExisting); err != nil {
		return err
	}
	if clearLogs {
		s.mu.Lock()
		s.buf.Clear()
		s.mu.Unlock()
	}
	return s.Start()
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	if pgid, err := syscall.Getpgid(cmd.Process.Pid); err == nil {
		_ = syscall.Kill(-pgid, sig)
		return
	}
	_ = cmd.Process.Signal(sig)
}
