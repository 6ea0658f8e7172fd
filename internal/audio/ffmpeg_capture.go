package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xlog "hotmic/internal/log"
	"hotmic/internal/ports"
)

const (
	defaultStartupGrace = 250 * time.Millisecond
	defaultStopTimeout  = 1200 * time.Millisecond
	defaultChunkSize    = 3200
	minChunkSize        = 256
)

// FFMPEGCapture captures microphone PCM with ffmpeg and reports one level per
// chunk read.
type FFMPEGCapture struct {
	command      string
	startupGrace time.Duration
	stopTimeout  time.Duration
	logger       zerolog.Logger
}

func NewFFMPEGCapture(command string) *FFMPEGCapture {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFMPEGCapture{
		command:      command,
		startupGrace: defaultStartupGrace,
		stopTimeout:  defaultStopTimeout,
		logger:       xlog.WithComponent("audio"),
	}
}

func normalizeAudioConfig(cfg ports.AudioConfig) ports.AudioConfig {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.ChunkSize < minChunkSize {
		cfg.ChunkSize = defaultChunkSize
	}
	return cfg
}

func ffmpegArgs(cfg ports.AudioConfig) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}
}

// Start launches ffmpeg and begins reporting levels. onDone runs once when the
// capture ends, and only for captures that started successfully.
func (c *FFMPEGCapture) Start(ctx context.Context, cfg ports.AudioConfig, onLevel ports.LevelFunc, onDone ports.CompletionFunc) (ports.CaptureHandle, error) {
	cfg = normalizeAudioConfig(cfg)

	cmd := exec.CommandContext(ctx, c.command, ffmpegArgs(cfg)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	s := &ffmpegSession{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		exited:  make(chan struct{}),
		logger:  c.logger,
		timeout: c.stopTimeout,
	}
	go func() {
		s.waitErr = cmd.Wait()
		close(s.exited)
	}()

	select {
	case <-s.exited:
		if s.waitErr != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", s.waitErr, stringsTrimSpaceSafe(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-ctx.Done():
		_ = s.Stop()
		return nil, ctx.Err()
	case <-time.After(c.startupGrace):
	}

	c.logger.Debug().
		Str("event", "capture.started").
		Str("format", cfg.InputFormat).
		Str("device", cfg.InputDevice).
		Int("sample_rate", cfg.SampleRate).
		Msg("ffmpeg capture running")

	go s.pump(ctx, cfg.ChunkSize, onLevel, onDone)
	return s, nil
}

type ffmpegSession struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	exited  chan struct{}
	waitErr error

	logger  zerolog.Logger
	timeout time.Duration

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// pump reads fixed size chunks and turns each into a level. When the stream
// ends it reports a zero level, waits for the process and completes.
func (s *ffmpegSession) pump(ctx context.Context, chunkSize int, onLevel ports.LevelFunc, onDone ports.CompletionFunc) {
	meter := &LevelMeter{}
	buf := make([]byte, chunkSize)

	var readErr error
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 && onLevel != nil {
			onLevel(meter.Measure(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				readErr = err
			}
			break
		}
	}
	if onLevel != nil {
		onLevel(0)
	}

	<-s.exited
	err := s.completionErr(ctx, readErr)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", "capture.failed").Msg("ffmpeg capture ended unexpectedly")
	} else {
		s.logger.Debug().Str("event", "capture.ended").Msg("ffmpeg capture ended")
	}
	if onDone != nil {
		onDone(err)
	}
}

func (s *ffmpegSession) completionErr(ctx context.Context, readErr error) error {
	if s.stopping.Load() || ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return fmt.Errorf("audio capture read failed: %w", readErr)
	}
	if s.waitErr != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", s.waitErr, stringsTrimSpaceSafe(s.stderr.String()))
	}
	return nil
}

// Stop interrupts ffmpeg, killing it if it does not exit in time. Safe to call
// more than once and from the completion callback.
func (s *ffmpegSession) Stop() error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}

		select {
		case <-s.exited:
		case <-time.After(s.timeout):
			if s.process != nil {
				_ = s.process.Kill()
			}
			<-s.exited
		}
		s.stopErr = normalizeStopErr(s.waitErr)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, stringsTrimSpaceSafe(s.stderr.String()))
		}
	})

	return s.stopErr
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func stringsTrimSpaceSafe(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
