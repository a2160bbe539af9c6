// Package supervisor owns the lifecycle of the external PDF processing
// engine: build, spawn, health check, and shutdown. Exactly one engine
// process exists at a time; the rest of the system only sees a read-only
// handle (BaseURL, State).
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

type State string

const (
	StateNotStarted     State = "not_started"
	StateBuilding       State = "building"
	StateStarting       State = "starting"
	StateHealthChecking State = "health_checking"
	StateRunning        State = "running"
	StateFailed         State = "failed"
	StateStopped        State = "stopped"
)

const (
	healthInterval = 500 * time.Millisecond
	healthAttempts = 10
	healthTimeout  = 2 * time.Second
	stopTimeout    = 5 * time.Second
)

type Options struct {
	Dir       string // engine working directory
	Binary    string // binary name, relative to Dir
	Port      int    // localhost port the engine listens on
	BuildCmd  string // e.g. "make build"; empty or SkipBuild disables the build step
	SkipBuild bool
}

type Supervisor struct {
	opts Options

	mu      sync.Mutex
	state   State
	started bool
	cmd     *exec.Cmd
	exited  chan struct{}
}

func New(opts Options) *Supervisor {
	return &Supervisor{
		opts:   opts,
		state:  StateNotStarted,
		exited: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// BaseURL is the engine's HTTP address. Valid once State is StateRunning.
func (s *Supervisor) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.opts.Port)
}

// Start builds, spawns, and health-checks the engine. It runs at most once
// per Supervisor; a second call is an error. A failed boot leaves the
// supervisor in StateFailed and returns an error, but the caller is expected
// to keep serving: the proxy reports engine unavailability per request.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	if !s.opts.SkipBuild && s.opts.BuildCmd != "" {
		s.setState(StateBuilding)
		if err := s.build(ctx); err != nil {
			// Non-fatal: a previously built binary may still be present.
			log.Printf("WARNING: engine build failed, trying existing binary: %v", err)
		}
	}

	s.setState(StateStarting)
	if err := s.spawn(); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("spawn engine: %w", err)
	}

	s.setState(StateHealthChecking)
	if err := s.awaitHealthy(ctx); err != nil {
		s.setState(StateFailed)
		return fmt.Errorf("engine health check: %w", err)
	}

	s.setState(StateRunning)
	log.Printf("Engine running at %s", s.BaseURL())
	return nil
}

func (s *Supervisor) build(ctx context.Context) error {
	fields := strings.Fields(s.opts.BuildCmd)
	if len(fields) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = s.opts.Dir
	cmd.Env = engineEnv(s.opts)
	cmd.Stdout = logWriter("engine build")
	cmd.Stderr = logWriter("engine build")

	log.Printf("Building engine: %s (dir=%s)", s.opts.BuildCmd, s.opts.Dir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %q: %w", s.opts.BuildCmd, err)
	}
	return nil
}

func (s *Supervisor) spawn() error {
	binPath := filepath.Join(s.opts.Dir, s.opts.Binary)
	cmd := exec.Command(binPath)
	cmd.Dir = s.opts.Dir
	cmd.Env = engineEnv(s.opts)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binPath, err)
	}

	// Forward engine output to our logs for the lifetime of the process.
	go forwardOutput("engine", stdout)
	go forwardOutput("engine", stderr)

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go s.monitor(cmd)

	log.Printf("Engine started (pid=%d, dir=%s)", cmd.Process.Pid, s.opts.Dir)
	return nil
}

// monitor records an unexpected exit. No automatic restart; the proxy's
// per-request error handling covers the gap until the next deploy.
func (s *Supervisor) monitor(cmd *exec.Cmd) {
	err := cmd.Wait()
	close(s.exited)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		log.Printf("WARNING: engine exited unexpectedly: %v", err)
		s.state = StateStopped
	}
}

func (s *Supervisor) awaitHealthy(ctx context.Context) error {
	client := &http.Client{Timeout: healthTimeout}
	healthURL := s.BaseURL() + "/health"

	for attempt := 1; attempt <= healthAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.exited:
			return fmt.Errorf("engine exited during health check")
		case <-time.After(healthInterval):
		}

		resp, err := client.Get(healthURL)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
	}

	return fmt.Errorf("engine not healthy after %d attempts", healthAttempts)
}

// Stop signals the engine to terminate and waits briefly before killing it.
// Safe to call regardless of state; exits with no child are a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cmd := s.cmd
	if s.state == StateRunning || s.state == StateHealthChecking {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	log.Printf("Stopping engine (pid=%d)", cmd.Process.Pid)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return
	}

	select {
	case <-s.exited:
	case <-time.After(stopTimeout):
		log.Printf("WARNING: engine did not exit in %s, killing", stopTimeout)
		cmd.Process.Kill()
	}
}

func engineEnv(opts Options) []string {
	env := os.Environ()
	env = append(env, fmt.Sprintf("PORT=%d", opts.Port))
	env = append(env, fmt.Sprintf("PATH=%s%c%s", os.Getenv("PATH"), os.PathListSeparator, opts.Dir))
	return env
}

func forwardOutput(prefix string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		log.Printf("%s: %s", prefix, scanner.Text())
	}
}

// logWriter adapts log.Printf into an io.Writer for build output.
type logWriter string

func (lw logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		log.Printf("%s: %s", string(lw), line)
	}
	return len(p), nil
}
