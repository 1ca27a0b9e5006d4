// Package executor runs external tools and streams their output line by line.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// tailLines bounds how much tool output is kept for error reports.
	tailLines = 40
	// waitDelay caps how long a killed tool's children may hold the output pipe open.
	waitDelay = 2 * time.Second
)

// LineFunc receives each non-empty output line as it is produced.
type LineFunc func(line string)

// Executor runs a tool to completion. Implementations must honor ctx by
// terminating the process.
type Executor interface {
	LookPath(name string) (string, error)
	Run(ctx context.Context, name string, args []string, onLine LineFunc) (output string, err error)
}

// Binary executes real processes via os/exec.
type Binary struct {
	Logger *log.Logger
}

func (b Binary) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// Run merges stdout and stderr, splitting on both \n and \r so that
// carriage-return progress bars arrive as separate lines.
func (b Binary) Run(ctx context.Context, name string, args []string, onLine LineFunc) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = waitDelay
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if b.Logger != nil {
		b.Logger.Debug("exec", "cmd", name, "args", strings.Join(args, " "))
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start %s: %w", name, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		pw.Close()
	}()

	tail := &Tail{Max: tailLines}
	scanner := bufio.NewScanner(pr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.Add(line)
		if onLine != nil {
			onLine(line)
		}
	}
	// Keep the writer side unblocked if the scanner gave up early.
	_, _ = io.Copy(io.Discard, pr)

	err := <-waitErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		return tail.String(), ctxErr
	}
	if err != nil {
		return tail.String(), fmt.Errorf("%s: %w", name, err)
	}
	return tail.String(), nil
}

// ScanLines is a bufio.SplitFunc that treats \r, \n and \r\n as terminators.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Tail keeps the last Max lines written to it.
type Tail struct {
	Max   int
	lines []string
}

func (t *Tail) Add(line string) {
	t.lines = append(t.lines, line)
	if t.Max > 0 && len(t.lines) > t.Max {
		t.lines = t.lines[len(t.lines)-t.Max:]
	}
}

func (t *Tail) Last() string {
	if len(t.lines) == 0 {
		return ""
	}
	return t.lines[len(t.lines)-1]
}

func (t *Tail) String() string { return strings.Join(t.lines, "\n") }

// LastLine returns the final line of a tool's output, for error messages.
func LastLine(output string) string {
	output = strings.TrimSpace(output)
	if i := strings.LastIndexByte(output, '\n'); i >= 0 {
		return output[i+1:]
	}
	return output
}
