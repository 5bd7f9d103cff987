// Package drivertest provides a scripted driver.Runner for tests.
package drivertest

import (
	"context"
	"sync"

	"github.com/jward/bbls/internal/driver"
)

// Fake answers commands from a table of canned results. Commands without an
// entry exit with status 127.
type Fake struct {
	// Hook, when set, runs before the table lookup. Returning a nil result and
	// nil error falls through to the table.
	Hook func(ctx context.Context, command string) (*driver.Result, error)

	mu        sync.Mutex
	responses map[string]*driver.Result
	calls     []string
}

func New() *Fake {
	return &Fake{responses: make(map[string]*driver.Result)}
}

// On registers the result for an exact command string.
func (f *Fake) On(command string, status int, stdout string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = &driver.Result{Status: status, Stdout: []byte(stdout)}
	return f
}

// Fail registers a non-zero exit with the given stderr.
func (f *Fake) Fail(command string, status int, stderr string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[command] = &driver.Result{Status: status, Stderr: []byte(stderr)}
	return f
}

func (f *Fake) Run(ctx context.Context, command string) (*driver.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, command)
	hook := f.Hook
	f.mu.Unlock()

	if hook != nil {
		res, err := hook(ctx, command)
		if res != nil || err != nil {
			return res, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.responses[command]; ok {
		cp := *res
		return &cp, nil
	}
	return &driver.Result{Status: 127, Stderr: []byte(command + ": command not found")}, nil
}

// Calls returns every command received so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how many times command was run.
func (f *Fake) Count(command string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == command {
			n++
		}
	}
	return n
}
