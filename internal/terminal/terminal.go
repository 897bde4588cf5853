// Package terminal implements the terminal controller (spec.md §4.1): raw
// mode switching, a cooperative background ESC-key monitor used to cancel
// long-running operations, and safe restoration of terminal state on exit.
package terminal

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/term"
)

// escTimeout is the window within which a byte following a lone 0x1B is
// treated as part of an escape sequence (arrow/function keys) rather than
// a standalone ESC cancellation request.
const escTimeout = 50 * time.Millisecond

// Controller mediates raw/cooked-mode switching and ESC-key cancellation.
// Callers query IsEscPressed at quiescent points (between streamed chunks,
// between tool calls) rather than being pushed an event, matching the
// cooperative cancellation model of §5.
type Controller struct {
	fd       int
	origState *term.State

	mu         sync.Mutex
	promptMode bool // true while a foreground reader (line input) owns stdin

	escMu      sync.Mutex
	escPressed bool
	escAt      time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	noop bool // true in non-TTY / TEST_MODE environments
}

// New creates a Controller over os.Stdin. In non-interactive environments
// (TEST_MODE set, redirected stdin) it becomes a no-op that always reports
// "not pressed" and never touches terminal state, per §4.1.
func New() *Controller {
	c := &Controller{stopCh: make(chan struct{})}

	if os.Getenv("TEST_MODE") != "" {
		c.noop = true
		return c
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		c.noop = true
		return c
	}
	c.fd = fd

	state, err := term.GetState(fd)
	if err != nil {
		c.noop = true
		return c
	}
	c.origState = state
	return c
}

// Start launches the background ESC-key monitor. It runs whenever the
// controller is not in prompt mode. Safe to call once; a second call is a
// no-op.
func (c *Controller) Start() {
	if c.noop || c.doneCh != nil {
		return
	}
	c.doneCh = make(chan struct{})
	go c.monitor()
}

// Stop halts the background monitor and restores the original terminal
// attributes unconditionally, as on process termination.
func (c *Controller) Stop() {
	if c.noop {
		return
	}
	if c.doneCh != nil {
		close(c.stopCh)
		<-c.doneCh
	}
	c.cleanup()
}

// EnterPromptMode restores the original terminal attributes captured at
// startup, so normal line editing (readline, $EDITOR) works. The
// background ESC monitor backs off while in this mode.
func (c *Controller) EnterPromptMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptMode = true
	if c.noop || c.origState == nil {
		return
	}
	term.Restore(c.fd, c.origState)
}

// ExitPromptMode switches the terminal to cbreak mode (VMIN=0, VTIME=0) so
// the background monitor can poll for a lone ESC without blocking or
// echoing input.
func (c *Controller) ExitPromptMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promptMode = false
	if c.noop {
		return
	}
	term.MakeRaw(c.fd)
}

func (c *Controller) inPromptMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.promptMode
}

// IsEscPressed reports whether a lone ESC keypress has been observed since
// the last ResetEscState call.
func (c *Controller) IsEscPressed() bool {
	c.escMu.Lock()
	defer c.escMu.Unlock()
	return c.escPressed
}

// ResetEscState clears the ESC-pressed flag.
func (c *Controller) ResetEscState() {
	c.escMu.Lock()
	defer c.escMu.Unlock()
	c.escPressed = false
}

func (c *Controller) setEscPressed() {
	c.escMu.Lock()
	defer c.escMu.Unlock()
	c.escPressed = true
	c.escAt = time.Now()
}

// EscPressedAt returns the monotonic timestamp of the most recent ESC
// detection, for diagnostics.
func (c *Controller) EscPressedAt() time.Time {
	c.escMu.Lock()
	defer c.escMu.Unlock()
	return c.escAt
}

// Cleanup restores the original terminal attributes. Safe to call multiple
// times and from a crash handler.
func (c *Controller) Cleanup() {
	c.cleanup()
}

func (c *Controller) cleanup() {
	if c.noop || c.origState == nil {
		return
	}
	term.Restore(c.fd, c.origState)
}

// monitor polls stdin in short bursts, detecting a lone ESC byte (0x1B not
// followed within escTimeout by further bytes) while not in prompt mode.
// Escape sequences (ESC + '[' or 'O' + final byte) are consumed and
// discarded so arrow/function keys never trigger cancellation.
func (c *Controller) monitor() {
	defer close(c.doneCh)

	buf := make([]byte, 1)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if c.inPromptMode() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		n, err := os.Stdin.Read(buf)
		if err != nil {
			if err == io.EOF {
				time.Sleep(20 * time.Millisecond)
				continue
			}
			time.Sleep(20 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		if buf[0] != 0x1B {
			continue
		}

		// Saw ESC. Give a short window for a following byte that would
		// make this an escape sequence (arrow/function key) instead of a
		// standalone cancellation request.
		next := make([]byte, 1)
		deadline := time.Now().Add(escTimeout)
		got := false
		for time.Now().Before(deadline) {
			nn, _ := os.Stdin.Read(next)
			if nn > 0 {
				got = true
				break
			}
			time.Sleep(2 * time.Millisecond)
		}
		if !got {
			c.setEscPressed()
			continue
		}
		if next[0] == '[' || next[0] == 'O' {
			c.consumeEscapeSequence()
			continue
		}
		// Unrecognized byte after ESC; treat the ESC itself as pressed and
		// drop the extra byte.
		c.setEscPressed()
	}
}

// consumeEscapeSequence reads and discards bytes until a final byte (in
// the 0x40-0x7E range) ends a CSI/SS3 sequence.
func (c *Controller) consumeEscapeSequence() {
	b := make([]byte, 1)
	for i := 0; i < 16; i++ {
		n, err := os.Stdin.Read(b)
		if err != nil || n == 0 {
			return
		}
		if b[0] >= 0x40 && b[0] <= 0x7E {
			return
		}
	}
}

// SaneReset runs `stty sane` as an emergency terminal-state reset,
// available as a user-invokable escape hatch when the terminal is left in
// a bad state.
func SaneReset() {
	if os.Getenv("TEST_MODE") != "" {
		return
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}
	cmd := exec.Command("stty", "sane")
	cmd.Stdin = os.Stdin
	cmd.Run()
}

// StripEscapeSequences removes ANSI escape sequences from s, used when
// logging/echoing raw terminal input for diagnostics.
func StripEscapeSequences(s string) string {
	var out bytes.Buffer
	i := 0
	for i < len(s) {
		if s[i] == 0x1B && i+1 < len(s) && (s[i+1] == '[' || s[i+1] == 'O') {
			j := i + 2
			for j < len(s) && !(s[j] >= 0x40 && s[j] <= 0x7E) {
				j++
			}
			i = j + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String()
}
