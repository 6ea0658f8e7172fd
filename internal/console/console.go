// Package console is the headless front end: it prints progress and session
// events to a writer and maps key presses to controller operations.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"hotmic/internal/domain"
	xlog "hotmic/internal/log"
)

// ErrQuit is returned by Run when the user asks to exit.
var ErrQuit = errors.New("quit requested")

// Sink prints progress and session events.
type Sink struct {
	mu  sync.Mutex
	out io.Writer
}

func NewSink(out io.Writer) *Sink {
	return &Sink{out: out}
}

func (s *Sink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.out, format, args...)
}

func (s *Sink) ReportLevel(level int) {
	s.printf("Progress: %d\n", level)
}

func (s *Sink) ReportBusy(busy bool) {
	if busy {
		s.printf("Working...\n")
		return
	}
	s.printf("Ready\n")
}

func (s *Sink) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	if msg := sessionReasonMessage(reason); msg != "" {
		s.printf("State: %s - %s\n", state, msg)
		return
	}
	s.printf("State: %s\n", state)
}

func (s *Sink) SessionError(code domain.ErrorCode, detail string) {
	s.printf("Error [%s] %s: %s\n", code, errorMessage(code, detail), detail)
}

func (s *Sink) ProcessingFinished() {
	s.printf("Done\n")
}

// Controls is the subset of the session controller the console drives.
type Controls interface {
	Toggle(ctx context.Context) error
	TogglePlayback(ctx context.Context) error
	Dispatch(ctx context.Context, action domain.ControlAction) error
	ExpectSpeech(ctx context.Context)
}

// Console reads one command per line.
type Console struct {
	in       io.Reader
	sink     *Sink
	controls Controls
	logger   zerolog.Logger
}

func New(in io.Reader, sink *Sink, controls Controls) *Console {
	return &Console{in: in, sink: sink, controls: controls, logger: xlog.WithComponent("console")}
}

const help = `Press Enter to start or stop listening
Press p to play or pause
Press n for next, b for previous, s to pause
Press e to simulate an expect-speech directive
Press q to quit
`

// Run handles input until ctx is done, input ends or the user quits.
func (c *Console) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.sink.printf("%s", help)

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			if err := c.handle(ctx, strings.TrimSpace(strings.ToLower(line))); err != nil {
				if errors.Is(err, ErrQuit) {
					return err
				}
				c.logger.Warn().Err(err).Str("event", "console.command_failed").Str("input", line).Msg("command failed")
			}
		}
	}
}

func (c *Console) handle(ctx context.Context, key string) error {
	switch key {
	case "":
		return c.controls.Toggle(ctx)
	case "p":
		return c.controls.TogglePlayback(ctx)
	case "n":
		return c.controls.Dispatch(ctx, domain.ActionNext)
	case "b":
		return c.controls.Dispatch(ctx, domain.ActionPrevious)
	case "s":
		return c.controls.Dispatch(ctx, domain.ActionPause)
	case "e":
		c.controls.ExpectSpeech(ctx)
		return nil
	case "q":
		return ErrQuit
	default:
		if action, err := domain.ParseControlAction(key); err == nil {
			return c.controls.Dispatch(ctx, action)
		}
		c.sink.printf("Unknown command %q\n%s", key, help)
		return nil
	}
}
