// Package subject owns the lifecycle of one subject server process bound to
// one materialized configuration: start under a grace period, capture output,
// stop gracefully with a forced fallback. The subject itself is a black box.
package subject

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
)

// State tracks the supervisor lifecycle. Failed is absorbing: a subject that
// never reached Running is not stopped, it is abandoned.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Stopped
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

const (
	DefaultStartupGrace  = 3 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// LaunchError reports a subject that could not start: binary missing, bind
// failure, or early exit during the startup grace period. It is fatal for
// its variant/provider pair only.
type LaunchError struct {
	Bin string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching subject %s: %v", e.Bin, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Options configures one supervised subject process.
type Options struct {
	Bin           string
	ConfigPath    string
	LogPath       string
	StartupGrace  time.Duration
	ShutdownGrace time.Duration
}

// Subject is a running subject server. Exactly one goroutine drives it;
// State is safe to read from others.
type Subject struct {
	opts    Options
	cmd     *exec.Cmd
	logFile *os.File
	waitCh  chan error

	mu    sync.Mutex
	state State
}

// Start launches the subject's serve mode bound to the given configuration
// and waits out the startup grace period. The subject is assumed ready once
// the grace elapses; there is no health probe beyond noticing an early exit.
// Stdout and stderr go to the configured log file for post-hoc debugging.
func Start(ctx context.Context, opts Options) (*Subject, error) {
	if opts.StartupGrace <= 0 {
		opts.StartupGrace = DefaultStartupGrace
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}

	if err := os.MkdirAll(filepath.Dir(opts.LogPath), 0o755); err != nil {
		return nil, &LaunchError{Bin: opts.Bin, Err: fmt.Errorf("creating log dir: %w", err)}
	}
	logFile, err := os.Create(opts.LogPath)
	if err != nil {
		return nil, &LaunchError{Bin: opts.Bin, Err: fmt.Errorf("creating log file: %w", err)}
	}

	cmd := exec.CommandContext(ctx, opts.Bin, "serve", "--config", opts.ConfigPath)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	s := &Subject{opts: opts, cmd: cmd, logFile: logFile, state: Starting}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		s.setState(Failed)
		return nil, &LaunchError{Bin: opts.Bin, Err: err}
	}

	s.waitCh = make(chan error, 1)
	go func() { s.waitCh <- cmd.Wait() }()

	select {
	case waitErr := <-s.waitCh:
		logFile.Close()
		s.setState(Failed)
		if waitErr == nil {
			waitErr = errors.New("exited cleanly")
		}
		return nil, &LaunchError{Bin: opts.Bin, Err: fmt.Errorf("exited during startup grace: %w", waitErr)}
	case <-ctx.Done():
		cmd.Process.Kill()
		<-s.waitCh
		logFile.Close()
		s.setState(Failed)
		return nil, &LaunchError{Bin: opts.Bin, Err: ctx.Err()}
	case <-time.After(opts.StartupGrace):
		s.setState(Running)
	}
	return s, nil
}

// Stop terminates the subject: SIGTERM, a bounded wait, then SIGKILL. It
// never reports failure to the caller; shutdown is best-effort cleanup that
// must run on every exit path, so a hung scenario can never leak a process.
func (s *Subject) Stop() {
	s.mu.Lock()
	if s.state == Stopped || s.state == Failed {
		s.mu.Unlock()
		return
	}
	s.state = Stopping
	s.mu.Unlock()

	if err := s.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.WithError(err).Debug("subject: SIGTERM failed, process likely gone")
	}
	select {
	case <-s.waitCh:
	case <-time.After(s.opts.ShutdownGrace):
		log.Warnf("subject %s did not exit within %s, killing", s.opts.Bin, s.opts.ShutdownGrace)
		s.cmd.Process.Kill()
		<-s.waitCh
	}
	s.logFile.Close()
	s.setState(Stopped)
}

// State reports the current lifecycle state.
func (s *Subject) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subject) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
