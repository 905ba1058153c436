// Package tuitest drives a compiled TUI binary inside a pseudo terminal and
// captures what it painted, so tests can assert on rendered screens without a
// real terminal attached.
package tuitest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/creack/pty"
)

const (
	defaultCols    = 100
	defaultRows    = 32
	defaultTimeout = 5 * time.Second
)

// Keystrokes commonly scripted against the program.
var (
	KeyEnter = []byte{'\r'}
	KeyTab   = []byte{'\t'}
	KeyCtrlC = []byte{3}
	KeyEsc   = []byte{27}
)

// Step is one scripted interaction: wait Delay, then write Input to the PTY.
type Step struct {
	Delay time.Duration
	Input []byte
}

// Session describes a single scripted program run.
type Session struct {
	Command []string
	Dir     string
	Env     []string
	Cols    int
	Rows    int
	Script  []Step
	Timeout time.Duration
}

// Run spawns the command in a PTY, replays the script, and returns the
// captured output. An exit caused by the scripted Ctrl+C is not an error.
func Run(ctx context.Context, s Session) (*Capture, error) {
	if len(s.Command) == 0 {
		return nil, errors.New("tuitest: command is required")
	}
	cols, rows := s.Cols, s.Rows
	if cols <= 0 {
		cols = defaultCols
	}
	if rows <= 0 {
		rows = defaultRows
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.Command[0], s.Command[1:]...)
	cmd.Dir = s.Dir
	cmd.Env = sessionEnv(s.Env)

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("tuitest: start program: %w", err)
	}
	defer func() { _ = ptmx.Close() }()

	var output bytes.Buffer
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		buf := make([]byte, 4096)
		for {
			n, readErr := ptmx.Read(buf)
			if n > 0 {
				chunk := buf[:n]
				answerTerminalQueries(ptmx, chunk)
				output.Write(chunk)
			}
			if readErr != nil {
				return
			}
		}
	}()

	for _, step := range s.Script {
		if step.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("tuitest: script interrupted: %w", ctx.Err())
			case <-time.After(step.Delay):
			}
		}
		if len(step.Input) > 0 {
			if _, err := ptmx.Write(step.Input); err != nil {
				return nil, fmt.Errorf("tuitest: write input: %w", err)
			}
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	select {
	case err := <-waitErr:
		if err != nil && !interruptedByScript(err) {
			return nil, fmt.Errorf("tuitest: program exited with error: %w", err)
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("tuitest: timeout waiting for exit: %w", ctx.Err())
	}

	_ = ptmx.Close()
	<-drained
	return &Capture{Raw: output.Bytes()}, nil
}

func interruptedByScript(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
		return true
	}
	return strings.Contains(err.Error(), "signal: interrupt")
}

func sessionEnv(extra []string) []string {
	env := append(os.Environ(), extra...)
	for _, entry := range env {
		if strings.HasPrefix(entry, "TERM=") {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}

// answerTerminalQueries replies to the cursor-position and color probes some
// terminal libraries emit on startup; without a reply they stall.
func answerTerminalQueries(w io.Writer, chunk []byte) {
	if bytes.Contains(chunk, []byte("\x1b[6n")) {
		_, _ = w.Write([]byte("\x1b[1;1R"))
	}
	for _, probe := range []string{"\x1b]10;?", "\x1b]11;?"} {
		if bytes.Contains(chunk, []byte(probe)) {
			_, _ = w.Write([]byte(probe[:len(probe)-1] + "rgb:aaaa/aaaa/aaaa\x07"))
		}
	}
}

// Capture holds everything the program wrote to the terminal.
type Capture struct {
	Raw []byte
}

var (
	clearPattern = regexp.MustCompile(`\x1b\[[0-9;]*J`)
	csiPattern   = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	oscPattern   = regexp.MustCompile(`\x1b\][^\x07]*(\x07|\x1b\\)`)
)

// FinalScreen returns the last full repaint with ANSI control sequences
// stripped and trailing blank space trimmed. The second value is false when
// nothing was rendered.
func (c *Capture) FinalScreen() (string, bool) {
	cleaned := strings.ReplaceAll(string(c.Raw), "\r", "")
	var last string
	for _, segment := range clearPattern.Split(cleaned, -1) {
		plain := stripControl(segment)
		if strings.TrimSpace(plain) != "" {
			last = plain
		}
	}
	if last == "" {
		return "", false
	}
	return trimScreen(last), true
}

func stripControl(s string) string {
	s = oscPattern.ReplaceAllString(s, "")
	s = csiPattern.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "\x1b[H")
	return strings.Trim(s, "\x00")
}

func trimScreen(s string) string {
	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
