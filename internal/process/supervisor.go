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

	"github.com/cenkalti/backoff/v5"
)

// Status represents the current state of a supervised process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// maxOutputLine caps a single captured stdout/stderr line.
const maxOutputLine = 16 * 1024

// Config holds configuration for a supervised daemon.
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
	WorkDir string

	// RestartOnFailure enables automatic restart when the process exits unexpectedly.
	RestartOnFailure bool

	// RestartDelay is the first restart delay. Later delays double up to
	// MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last before the restart
	// delay falls back to RestartDelay.
	StableThreshold time.Duration

	// MaxRestartAttempts limits consecutive restart attempts. 0 means unlimited.
	MaxRestartAttempts int

	// PermanentExitCodes are exit codes that a restart cannot fix, such
	// as a rejected configuration file.
	PermanentExitCodes []int

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// HealthCheckFunc is called every HealthCheckInterval while running.
	// After MaxHealthFailures consecutive failures the process is killed.
	HealthCheckFunc     func(ctx context.Context) error
	HealthCheckInterval time.Duration
	MaxHealthFailures   int

	// OnStart is called with the PID each time the process starts.
	OnStart func(pid int)

	// OnStop is called when the process stops. err is nil for a requested stop.
	OnStop func(err error)

	// OnRestart is called before each restart attempt.
	OnRestart func(attempt int, delay time.Duration)
}

// DefaultConfig returns a Config with sensible defaults for a system daemon.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:                name,
		Binary:              binary,
		Args:                args,
		RestartOnFailure:    true,
		RestartDelay:        time.Second,
		MaxRestartDelay:     time.Minute,
		StableThreshold:     2 * time.Minute,
		MaxRestartAttempts:  10,
		GracefulTimeout:     5 * time.Second,
		HealthCheckInterval: 30 * time.Second,
		MaxHealthFailures:   3,
	}
}

// Logger defines the logging interface for the supervisor.
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

// Supervisor runs one daemon, restarts it with exponential backoff when
// it dies, and kills it when its health check keeps failing.
type Supervisor struct {
	config  Config
	logger  Logger
	backoff *backoff.ExponentialBackOff

	mu            sync.RWMutex
	cmd           *exec.Cmd
	output        *sync.WaitGroup // readers of cmd's stdout and stderr
	status        Status
	restartCount  int
	lastError     error
	startTime     time.Time
	stopRequested bool
	done          chan struct{}
}

// NewSupervisor creates a supervisor. Zero durations take the defaults.
func NewSupervisor(cfg Config) *Supervisor {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold == 0 {
		cfg.StableThreshold = def.StableThreshold
	}
	if cfg.GracefulTimeout == 0 {
		cfg.GracefulTimeout = def.GracefulTimeout
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = def.HealthCheckInterval
	}
	if cfg.MaxHealthFailures == 0 {
		cfg.MaxHealthFailures = def.MaxHealthFailures
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.RestartDelay
	b.MaxInterval = cfg.MaxRestartDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	return &Supervisor{
		config:  cfg,
		logger:  noopLogger{},
		backoff: b,
		status:  StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the process and begins supervising it. The process is
// killed when ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.config.Name)
	}
	s.status = StatusStarting
	s.stopRequested = false
	s.restartCount = 0
	s.lastError = nil
	s.done = make(chan struct{})
	s.backoff.Reset()
	s.mu.Unlock()

	if err := s.spawn(ctx); err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastError = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx)

	return nil
}

// spawn starts one instance of the process.
func (s *Supervisor) spawn(ctx context.Context) error {
	s.logger.Info("starting process",
		"name", s.config.Name,
		"binary", s.config.Binary,
		"args", s.config.Args,
	)

	cmd := exec.CommandContext(ctx, s.config.Binary, s.config.Args...) //nolint:gosec // binary comes from operator configuration

	// Own process group so Stop can signal any children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if s.config.Env != nil {
		cmd.Env = append(os.Environ(), s.config.Env...)
	}
	if s.config.WorkDir != "" {
		cmd.Dir = s.config.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.config.Name, err)
	}

	output := &sync.WaitGroup{}
	output.Add(2)
	go s.captureOutput("stdout", stdout, output)
	go s.captureOutput("stderr", stderr, output)

	s.mu.Lock()
	s.cmd = cmd
	s.output = output
	s.status = StatusRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	s.logger.Info("process started",
		"name", s.config.Name,
		"pid", cmd.Process.Pid,
	)

	if s.config.OnStart != nil {
		s.config.OnStart(cmd.Process.Pid)
	}

	return nil
}

// captureOutput logs the stream line by line until EOF.
func (s *Supervisor) captureOutput(stream string, r io.Reader, done *sync.WaitGroup) {
	defer done.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxOutputLine)
	for scanner.Scan() {
		s.logger.Debug("process output",
			"name", s.config.Name,
			"stream", stream,
			"line", scanner.Text(),
		)
	}
}

// wait blocks until the process exits or fails its health check.
//
// cmd.Wait closes the output pipes, so it runs only after both readers
// have reached EOF; otherwise the last lines could be lost.
func (s *Supervisor) wait(ctx context.Context, cmd *exec.Cmd, output *sync.WaitGroup) error {
	exitCh := make(chan error, 1)
	go func() {
		output.Wait()
		exitCh <- cmd.Wait()
	}()

	if s.config.HealthCheckFunc == nil {
		return <-exitCh
	}

	ticker := time.NewTicker(s.config.HealthCheckInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case err := <-exitCh:
			return err

		case <-ctx.Done():
			// CommandContext kills the process; collect the exit.
			<-exitCh
			return ctx.Err()

		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := s.config.HealthCheckFunc(checkCtx)
			cancel()

			if err == nil {
				if failures > 0 {
					s.logger.Info("health check recovered",
						"name", s.config.Name,
						"previous_failures", failures,
					)
				}
				failures = 0
				continue
			}

			failures++
			s.logger.Warn("health check failed",
				"name", s.config.Name,
				"error", err,
				"consecutive_failures", failures,
			)
			if failures < s.config.MaxHealthFailures {
				continue
			}

			s.logger.Error("health check failed repeatedly, killing process",
				"name", s.config.Name,
				"failures", failures,
			)
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-exitCh
			return fmt.Errorf("%w: %d consecutive failures: %w", ErrHealthCheck, failures, err)
		}
	}
}

// supervise waits on the process and restarts it until stopped.
func (s *Supervisor) supervise(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		close(s.done)
		s.mu.Unlock()
	}()

	for {
		s.mu.RLock()
		cmd, output := s.cmd, s.output
		started := s.startTime
		s.mu.RUnlock()

		err := s.wait(ctx, cmd, output)

		s.mu.Lock()
		stopRequested := s.stopRequested
		if stopRequested || ctx.Err() != nil {
			s.status = StatusStopped
			s.mu.Unlock()
			s.logger.Info("process stopped", "name", s.config.Name)
			if s.config.OnStop != nil {
				s.config.OnStop(nil)
			}
			return
		}

		err = classifyExit(s.config.Name, err, s.config.PermanentExitCodes)
		s.lastError = err
		s.status = StatusFailed
		s.mu.Unlock()

		s.logger.Warn("process exited unexpectedly",
			"name", s.config.Name,
			"error", err,
		)
		if s.config.OnStop != nil {
			s.config.OnStop(err)
		}

		if !s.config.RestartOnFailure {
			return
		}
		if !IsRecoverable(err) {
			s.logger.Error("process failed permanently, not restarting",
				"name", s.config.Name,
				"error", err,
			)
			return
		}

		if time.Since(started) >= s.config.StableThreshold {
			s.backoff.Reset()
			s.mu.Lock()
			s.restartCount = 0
			s.mu.Unlock()
		}

		s.mu.Lock()
		s.restartCount++
		attempt := s.restartCount
		if s.config.MaxRestartAttempts > 0 && attempt > s.config.MaxRestartAttempts {
			s.lastError = fmt.Errorf("%w: %d attempts: %w", ErrRestartsExhausted, attempt-1, err)
			s.mu.Unlock()
			s.logger.Error("max restart attempts reached",
				"name", s.config.Name,
				"attempts", attempt-1,
			)
			return
		}
		s.mu.Unlock()

		delay := s.backoff.NextBackOff()
		s.logger.Info("restarting process",
			"name", s.config.Name,
			"attempt", attempt,
			"delay", delay,
		)
		if s.config.OnRestart != nil {
			s.config.OnRestart(attempt, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setStopped()
			return
		case <-timer.C:
		}

		s.mu.RLock()
		stopRequested = s.stopRequested
		s.mu.RUnlock()
		if stopRequested {
			s.setStopped()
			return
		}

		if err := s.spawn(ctx); err != nil {
			s.logger.Error("failed to restart process",
				"name", s.config.Name,
				"error", err,
			)
			s.mu.Lock()
			s.lastError = err
			s.status = StatusFailed
			s.mu.Unlock()
			return
		}
	}
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()
}

// Stop sends SIGTERM to the process group and waits up to
// GracefulTimeout before sending SIGKILL. It returns once the
// supervisor has exited.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	done := s.done
	if done == nil {
		s.mu.Unlock()
		return nil
	}
	s.stopRequested = true
	cmd := s.cmd
	running := s.status == StatusRunning
	s.mu.Unlock()

	if !running || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	s.logger.Info("stopping process", "name", s.config.Name, "pid", pid)

	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("failed to send SIGTERM to process group", "name", s.config.Name, "error", err)
	}

	timer := time.NewTimer(s.config.GracefulTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		s.logger.Warn("graceful shutdown timeout, sending SIGKILL",
			"name", s.config.Name,
			"timeout", s.config.GracefulTimeout,
		)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing process group %s: %w", s.config.Name, err)
	}

	<-done
	return nil
}

// Done is closed when supervision ends, whether stopped or given up.
// It is nil before the first Start.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// Status returns the current status of the process.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsRunning returns true if the process is currently running.
func (s *Supervisor) IsRunning() bool {
	return s.Status() == StatusRunning
}

// LastError returns the error that last ended a run.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// RestartCount returns the number of restarts since the last stable run.
func (s *Supervisor) RestartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restartCount
}

// PID returns the process ID, or 0 if not running.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// Stats is a point-in-time view of the supervised process.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns current statistics for the process.
func (s *Supervisor) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Name:         s.config.Name,
		Status:       s.status,
		RestartCount: s.restartCount,
	}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		stats.PID = s.cmd.Process.Pid
		stats.Uptime = time.Since(s.startTime)
	}
	if s.lastError != nil {
		stats.LastError = s.lastError.Error()
	}
	return stats
}
