// Package executortest provides a scriptable executor.Executor for tests.
package executortest

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"splitmix/executor"
)

type Call struct {
	Name string
	Args []string
}

// RunFunc scripts one tool invocation. Lines passed to emit reach the
// caller's LineFunc in order.
type RunFunc func(ctx context.Context, call Call, emit func(line string)) error

// Fake records invocations and delegates behavior to Script.
type Fake struct {
	Script  RunFunc
	Missing map[string]bool

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) LookPath(name string) (string, error) {
	if f.Missing[name] {
		return "", fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
	}
	return name, nil
}

func (f *Fake) Run(ctx context.Context, name string, args []string, onLine executor.LineFunc) (string, error) {
	call := Call{Name: name, Args: append([]string(nil), args...)}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	tail := &executor.Tail{Max: 40}
	if f.Script == nil {
		return "", nil
	}
	err := f.Script(ctx, call, func(line string) {
		tail.Add(line)
		if onLine != nil {
			onLine(line)
		}
	})
	return tail.String(), err
}

func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Arg returns the value following flag in args, or "".
func (c Call) Arg(flag string) string {
	for i := 0; i < len(c.Args)-1; i++ {
		if c.Args[i] == flag {
			return c.Args[i+1]
		}
	}
	return ""
}

func (c Call) Has(flag string) bool {
	for _, a := range c.Args {
		if a == flag {
			return true
		}
	}
	return false
}

// Last returns the final argument, which is the output or input path for most tools.
func (c Call) Last() string {
	if len(c.Args) == 0 {
		return ""
	}
	return c.Args[len(c.Args)-1]
}
