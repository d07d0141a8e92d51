// Copyright 2026 The Kiro Switch Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hj01857655/Kiro-auto-reg-extension/lib/broadcast"
	"github.com/hj01857655/Kiro-auto-reg-extension/lib/clock"
)

// DefaultGracePeriod is how long Stop waits after asking the worker to
// terminate before killing it.
const DefaultGracePeriod = 2 * time.Second

// readChunkSize is the pipe read size for stdout and stderr.
const readChunkSize = 32 * 1024

// Spec describes the process to launch.
type Spec struct {
	Command          string
	Args             []string
	WorkingDirectory string

	// Env is appended to the daemon's own environment.
	Env []string
}

// Config holds the Supervisor's collaborators.
type Config struct {
	Clock       clock.Clock
	Logger      *slog.Logger
	GracePeriod time.Duration

	// Events receives lifecycle events. Nil creates a private
	// broadcaster, reachable through Supervisor.Events.
	Events *broadcast.Broadcaster[Event]
}

// Supervisor owns the lifecycle of one external worker process.
type Supervisor struct {
	clock       clock.Clock
	logger      *slog.Logger
	gracePeriod time.Duration
	events      *broadcast.Broadcaster[Event]

	// startMu serializes Start so replacing a worker is atomic with
	// respect to other Start calls.
	startMu sync.Mutex

	mu         sync.Mutex
	state      State
	current    *run
	last       *run
	generation uint64
}

// run is one spawned worker process.
type run struct {
	generation uint64
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	pid        int
	startedAt  time.Time

	// done closes after the process is reaped and its close event has
	// been published.
	done chan struct{}

	// settled closes once the run's lifecycle is over: after done when
	// the process exited on its own, after the stopped event when a Stop
	// owns the run.
	settled chan struct{}
}

// NewSupervisor returns an idle Supervisor.
func NewSupervisor(config Config) *Supervisor {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Events == nil {
		config.Events = broadcast.New[Event](broadcast.Options{
			Name:   "worker",
			Logger: config.Logger,
		})
	}
	return &Supervisor{
		clock:       config.Clock,
		logger:      config.Logger,
		gracePeriod: config.GracePeriod,
		events:      config.Events,
		state:       StateIdle,
	}
}

// Events returns the lifecycle event broadcaster.
func (s *Supervisor) Events() *broadcast.Broadcaster[Event] {
	return s.events
}

// Start launches a worker for spec and returns its PID. An existing
// worker is stopped and reaped first. If the process cannot be spawned
// an error event is published, the Supervisor stays Idle, and the
// error is returned. ctx bounds only the wait for a previous worker to
// exit.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (int, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := s.retirePrevious(ctx); err != nil {
		return 0, err
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = append(os.Environ(), spec.Env...)
	configureProcessTree(cmd)

	stdin, stdout, stderr, err := attachPipes(cmd)
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		err = fmt.Errorf("starting worker %s: %w", spec.Command, err)
		s.logger.Error("worker spawn failed", "command", spec.Command, "error", err)
		s.publish(Event{Type: EventError, Error: err.Error()})
		return 0, err
	}

	s.mu.Lock()
	s.generation++
	current := &run{
		generation: s.generation,
		cmd:        cmd,
		stdin:      stdin,
		pid:        cmd.Process.Pid,
		startedAt:  s.clock.Now(),
		done:       make(chan struct{}),
		settled:    make(chan struct{}),
	}
	s.current = current
	s.last = current
	s.state = StateRunning
	s.mu.Unlock()

	s.logger.Info("worker started",
		"command", spec.Command,
		"pid", current.pid,
		"run", current.generation,
	)
	s.publish(Event{Type: EventStart, Run: current.generation, PID: current.pid})

	var readers sync.WaitGroup
	readers.Add(2)
	go s.pump(current, stdout, EventStdout, &readers)
	go s.pump(current, stderr, EventStderr, &readers)
	go s.reap(current, &readers)

	return current.pid, nil
}

// retirePrevious stops the current worker, if any, and waits until the
// most recent run has settled so its events never interleave with the
// next run's start. When another caller's Stop owns the run, this waits
// for that Stop to finish its Idle transition too.
func (s *Supervisor) retirePrevious(ctx context.Context) error {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if last == nil {
		return nil
	}
	s.Stop()
	select {
	case <-last.settled:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for previous worker to exit: %w", ctx.Err())
	}
}

func attachPipes(cmd *exec.Cmd) (io.WriteCloser, io.ReadCloser, io.ReadCloser, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	return stdin, stdout, stderr, nil
}

// pump publishes every chunk read from pipe until EOF.
func (s *Supervisor) pump(current *run, pipe io.Reader, eventType EventType, readers *sync.WaitGroup) {
	defer readers.Done()
	buffer := make([]byte, readChunkSize)
	for {
		n, err := pipe.Read(buffer)
		if n > 0 {
			s.publish(Event{Type: eventType, Run: current.generation, Data: string(buffer[:n])})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Debug("worker pipe read failed",
					"stream", eventType,
					"run", current.generation,
					"error", err,
				)
			}
			return
		}
	}
}

// reap waits for both output pipes to drain, then for the process, and
// publishes close. exec.Cmd requires all pipe reads to finish before
// Wait.
func (s *Supervisor) reap(current *run, readers *sync.WaitGroup) {
	readers.Wait()
	waitErr := current.cmd.Wait()

	exitCode := -1
	if current.cmd.ProcessState != nil {
		exitCode = current.cmd.ProcessState.ExitCode()
	}

	s.mu.Lock()
	// Stop owns the Stopping → Idle transition and settles the run.
	stopOwned := s.state == StateStopping
	if s.current == current {
		s.current = nil
		if !stopOwned {
			s.state = StateIdle
		}
	}
	s.mu.Unlock()

	level := slog.LevelInfo
	if exitCode != 0 {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "worker exited",
		"pid", current.pid,
		"run", current.generation,
		"exit_code", exitCode,
		"wait_error", waitErr,
	)
	s.publish(Event{Type: EventClose, Run: current.generation, ExitCode: exitCode})
	close(current.done)
	if !stopOwned {
		close(current.settled)
	}
}

// Stop terminates the worker and waits for it to be reaped. Returns
// false when there is nothing to stop or another Stop is already in
// progress. The Supervisor is Idle when a true-returning Stop returns.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	current := s.current
	if current == nil || s.state == StateStopping || s.state == StateIdle {
		s.mu.Unlock()
		return false
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.Info("stopping worker", "pid", current.pid, "run", current.generation)
	s.publish(Event{Type: EventStopping, Run: current.generation, PID: current.pid})

	if err := terminateProcessTree(current.cmd.Process); err != nil {
		s.reportTerminationError(current, "terminate", err)
	}

	select {
	case <-current.done:
	case <-s.clock.After(s.gracePeriod):
		s.logger.Warn("worker did not exit within grace period, killing",
			"pid", current.pid,
			"grace_period", s.gracePeriod,
		)
		if err := killProcessTree(current.cmd.Process); err != nil {
			s.reportTerminationError(current, "kill", err)
		}
		<-current.done
	}

	s.mu.Lock()
	if s.state == StateStopping && s.current == nil {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.publish(Event{Type: EventStopped, Run: current.generation})
	close(current.settled)
	return true
}

func (s *Supervisor) reportTerminationError(current *run, operation string, err error) {
	s.logger.Warn("worker termination failed",
		"operation", operation,
		"pid", current.pid,
		"error", err,
	)
	s.publish(Event{
		Type:  EventError,
		Run:   current.generation,
		Error: fmt.Sprintf("%s worker %d: %v", operation, current.pid, err),
	})
}

// Pause marks a running worker paused. The process is not suspended.
func (s *Supervisor) Pause() bool {
	return s.transition(StateRunning, StatePaused, EventPaused)
}

// Resume marks a paused worker running again.
func (s *Supervisor) Resume() bool {
	return s.transition(StatePaused, StateRunning, EventResumed)
}

// TogglePause flips between Running and Paused and returns the new
// state. ok is false when the worker is neither.
func (s *Supervisor) TogglePause() (state State, ok bool) {
	if s.Pause() {
		return StatePaused, true
	}
	if s.Resume() {
		return StateRunning, true
	}
	return s.State(), false
}

func (s *Supervisor) transition(from, to State, eventType EventType) bool {
	s.mu.Lock()
	if s.state != from || s.current == nil {
		s.mu.Unlock()
		return false
	}
	s.state = to
	generation := s.current.generation
	s.mu.Unlock()

	s.publish(Event{Type: eventType, Run: generation})
	return true
}

// Write sends data to the worker's stdin. Returns false when no worker
// is accepting input or the write fails.
func (s *Supervisor) Write(data []byte) bool {
	s.mu.Lock()
	current := s.current
	accepting := current != nil && s.state != StateStopping
	s.mu.Unlock()
	if !accepting {
		return false
	}

	if _, err := current.stdin.Write(data); err != nil {
		s.logger.Debug("worker stdin write failed", "pid", current.pid, "error", err)
		s.publish(Event{Type: EventError, Run: current.generation, Error: fmt.Sprintf("writing to worker stdin: %v", err)})
		return false
	}
	return true
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the current worker's process ID, or 0 when none exists.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return 0
	}
	return s.current.pid
}

// IsRunning reports whether a worker process exists (Running or Paused).
func (s *Supervisor) IsRunning() bool {
	state := s.State()
	return state == StateRunning || state == StatePaused
}

// Status returns the state together with the current run's details.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := Status{State: s.state}
	if s.current != nil {
		status.PID = s.current.pid
		status.Run = s.current.generation
		status.StartedAt = s.current.startedAt
	}
	return status
}

func (s *Supervisor) publish(event Event) {
	event.Timestamp = s.clock.Now()
	s.events.Publish(event)
}
