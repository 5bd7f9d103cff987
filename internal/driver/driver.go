// Package driver runs commands inside the configured BitBake build
// environment. The environment script is sourced before every command and an
// optional wrapper (for example a `docker run` prefix) is prepended.
package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after a cancelled
// command was killed.
const waitDelay = 500 * time.Millisecond

// ErrKilled is returned by Run when the invocation was aborted through Kill.
var ErrKilled = errors.New("driver: command killed")

// Result is the outcome of a command that ran to completion.
type Result struct {
	Status int
	Stdout []byte
	Stderr []byte
}

// Runner executes a shell command against the build environment.
type Runner interface {
	Run(ctx context.Context, command string) (*Result, error)
}

// Settings describes how to reach the build environment.
type Settings struct {
	WorkingDirectory string
	BuildFolder      string
	EnvScript        string
	CommandWrapper   string
	Shell            string
}

// Shell is the Runner backed by os/exec.
type Shell struct {
	settings Settings

	mu      sync.Mutex
	nextID  int
	running map[int]context.CancelCauseFunc
}

// NewShell returns a Shell runner for the given settings.
func NewShell(settings Settings) *Shell {
	if settings.Shell == "" {
		settings.Shell = "bash"
	}
	return &Shell{
		settings: settings,
		running:  make(map[int]context.CancelCauseFunc),
	}
}

// Script returns the shell script executed for command: the environment
// script is sourced first when one is configured.
func (s *Shell) Script(command string) string {
	if s.settings.EnvScript == "" {
		return command
	}
	build := s.settings.BuildFolder
	if build == "" {
		build = "build"
	}
	return fmt.Sprintf(". %s %s > /dev/null && %s",
		Quote(s.settings.EnvScript), Quote(build), command)
}

// Argv returns the full argument vector, wrapper included.
func (s *Shell) Argv(command string) []string {
	argv := strings.Fields(s.settings.CommandWrapper)
	return append(argv, s.settings.Shell, "-c", s.Script(command))
}

// Run executes command and waits for it. A non-zero exit status is reported in
// Result.Status, not as an error; errors are reserved for commands that could
// not be started, were cancelled, or were killed.
func (s *Shell) Run(ctx context.Context, command string) (*Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	id := s.track(cancel)
	defer s.untrack(id)

	argv := s.Argv(command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.settings.WorkingDirectory
	setProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if cause := context.Cause(ctx); cause != nil {
		if errors.Is(cause, ErrKilled) {
			return nil, ErrKilled
		}
		return nil, fmt.Errorf("driver: run %q: %w", command, cause)
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.Status = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("driver: run %q: %w", command, err)
	}
	return res, nil
}

// Kill aborts every in-flight invocation together with the processes it
// started. Callers blocked in Run receive ErrKilled.
func (s *Shell) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.running {
		cancel(ErrKilled)
	}
}

func (s *Shell) track(cancel context.CancelCauseFunc) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.running[s.nextID] = cancel
	return s.nextID
}

func (s *Shell) untrack(id int) {
	s.mu.Lock()
	cancel := s.running[id]
	delete(s.running, id)
	s.mu.Unlock()
	if cancel != nil {
		cancel(nil)
	}
}

// Quote returns s quoted for a POSIX shell when it contains special characters.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '+' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
