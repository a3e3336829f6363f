package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status represents the current state of a managed process.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusFailed  Status = "failed"
)

// maxStderrLine bounds a single logged stderr line.
const maxStderrLine = 64 * 1024

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("process: already started")

// Config holds configuration for the decoder subprocess.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the path to the executable.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager runs one decoder process from Start until it exits or is stopped.
type Manager struct {
	config Config
	logger Logger

	mu            sync.RWMutex
	cmd           *exec.Cmd
	stdout        *os.File
	status        Status
	exitErr       error
	startTime     time.Time
	stopRequested bool

	// done is closed once the process has been reaped.
	done chan struct{}
}

// NewManager creates a new process manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.Name == "" {
		cfg.Name = "decoder"
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}

	return &Manager{
		config: cfg,
		logger: noopLogger{},
		status: StatusStopped,
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Start launches the decoder. Its stdout is available from Stdout until the
// process exits.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cmd != nil {
		return ErrAlreadyStarted
	}

	m.logger.Info("starting process",
		"name", m.config.Name,
		"binary", m.config.Binary,
		"args", m.config.Args,
	)

	cmd := exec.Command(m.config.Binary, m.config.Args...) //nolint:gosec // binary comes from operator config

	// A process group lets Stop reach helpers the decoder forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if m.config.Env != nil {
		cmd.Env = append(os.Environ(), m.config.Env...)
	}
	if m.config.WorkDir != "" {
		cmd.Dir = m.config.WorkDir
	}

	// stdout is a plain pipe rather than StdoutPipe: cmd.Wait must not close it
	// while the source is still reading buffered messages.
	stdout, stdoutW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdout.Close()  //nolint:errcheck // setup failed
		stdoutW.Close() //nolint:errcheck // setup failed
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	err = cmd.Start()
	stdoutW.Close() //nolint:errcheck // the child holds its own copy
	if err != nil {
		stdout.Close() //nolint:errcheck // never read
		m.status = StatusFailed
		m.exitErr = err
		return fmt.Errorf("starting %s: %w", m.config.Name, err)
	}

	m.cmd = cmd
	m.stdout = stdout
	m.status = StatusRunning
	m.startTime = time.Now()

	m.logger.Info("process started",
		"name", m.config.Name,
		"pid", cmd.Process.Pid,
	)

	stderrDone := make(chan struct{})
	go func() {
		defer close(stderrDone)
		m.captureStderr(stderr)
	}()
	go m.wait(cmd, stderrDone)

	return nil
}

// Stdout returns the decoder's standard output. It is nil before Start and
// reports io.EOF once the decoder has closed it.
func (m *Manager) Stdout() io.Reader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stdout == nil {
		return nil
	}
	return m.stdout
}

// captureStderr logs each stderr line of the decoder.
func (m *Manager) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 4096), maxStderrLine)
	for scanner.Scan() {
		m.logger.Warn("process output",
			"name", m.config.Name,
			"stream", "stderr",
			"output", scanner.Text(),
		)
	}
	if err := scanner.Err(); err != nil {
		m.logger.Debug("stderr stream closed", "name", m.config.Name, "error", err)
	}
}

// wait reaps the process once its stderr has been drained.
func (m *Manager) wait(cmd *exec.Cmd, stderrDone <-chan struct{}) {
	<-stderrDone
	err := cmd.Wait()

	m.mu.Lock()
	stopRequested := m.stopRequested
	m.exitErr = err
	uptime := time.Since(m.startTime).Round(time.Millisecond)
	switch {
	case stopRequested:
		m.status = StatusStopped
	case err != nil:
		m.status = StatusFailed
	default:
		m.status = StatusExited
	}
	m.mu.Unlock()

	switch {
	case stopRequested:
		m.logger.Info("process stopped as requested", "name", m.config.Name, "uptime", uptime)
	case err != nil:
		m.logger.Error("process exited unexpectedly", "name", m.config.Name, "uptime", uptime, "error", err)
	default:
		m.logger.Warn("process exited", "name", m.config.Name, "uptime", uptime)
	}
	close(m.done)
}

// Wait blocks until the process has exited and returns ExitError.
// It returns ctx.Err() if ctx is done first.
func (m *Manager) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.ExitError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop gracefully stops the decoder and closes its stdout.
// It sends SIGTERM to the process group, then SIGKILL after GracefulTimeout.
func (m *Manager) Stop() error {
	defer m.closeStdout()

	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.stopRequested = true
	pid := m.cmd.Process.Pid
	m.mu.Unlock()

	m.logger.Info("stopping process", "name", m.config.Name, "pid", pid)

	// Negative PID signals the whole group created via Setpgid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		m.logger.Warn("failed to send SIGTERM to process group", "name", m.config.Name, "error", err)
	}

	select {
	case <-m.done:
		return nil
	case <-time.After(m.config.GracefulTimeout):
		m.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", m.config.Name,
			"timeout", m.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", m.config.Name, err)
	}

	<-m.done
	m.logger.Info("process killed", "name", m.config.Name)
	return nil
}

func (m *Manager) closeStdout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stdout != nil {
		m.stdout.Close() //nolint:errcheck // reader side only
		m.stdout = nil
	}
}

// Status returns the current status of the managed process.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ExitError returns why the process ended, or nil while it runs or after a
// clean exit.
func (m *Manager) ExitError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.exitErr
}
