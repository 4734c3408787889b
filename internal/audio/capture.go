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
	"strings"
	"sync"
	"time"
)

// Capture failure taxonomy. None of these are retried automatically.
var (
	ErrCaptureUnsupported = errors.New("audio capture is not available on this system")
	ErrPermissionDenied   = errors.New("audio capture permission was denied")
	ErrDeviceUnavailable  = errors.New("audio capture device is unavailable")
)

// TrackConfig describes one capture invocation.
type TrackConfig struct {
	InputFormat string
	Device      string
	SampleRate  int
	Channels    int
	Filters     string
}

// Track is one live PCM capture. Done is closed when the underlying process
// exits, whether or not Stop was called.
type Track interface {
	io.Reader
	Stop() error
	Done() <-chan struct{}
	Err() error
}

// TrackStarter creates capture tracks.
type TrackStarter interface {
	Start(ctx context.Context, cfg TrackConfig) (Track, error)
}

// FFmpegStarter captures PCM audio through an ffmpeg subprocess.
type FFmpegStarter struct {
	command string
}

func NewFFmpegStarter(command string) *FFmpegStarter {
	if command == "" {
		command = "ffmpeg"
	}
	return &FFmpegStarter{command: command}
}

func (c *FFmpegStarter) Start(ctx context.Context, cfg TrackConfig) (Track, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.Device == "" {
		cfg.Device = "default"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.Device,
	}
	if cfg.Filters != "" {
		args = append(args, "-af", cfg.Filters)
	}
	args = append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	)

	cmd := exec.CommandContext(ctx, c.command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q not found", ErrCaptureUnsupported, c.command)
		}
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	track := &ffmpegTrack{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		exited:  make(chan struct{}),
	}
	go func() {
		track.exitErr = normalizeExitErr(cmd.Wait())
		close(track.exited)
	}()

	select {
	case <-track.exited:
		return nil, classifyStartError(track.exitErr, stderr.String())
	case <-time.After(250 * time.Millisecond):
	}

	return track, nil
}

type ffmpegTrack struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	exited  chan struct{}
	exitErr error

	stopOnce sync.Once
	stopErr  error
}

func (t *ffmpegTrack) Read(p []byte) (int, error) {
	return t.stdout.Read(p)
}

func (t *ffmpegTrack) Done() <-chan struct{} {
	return t.exited
}

// Err reports why the process exited. Valid once Done is closed.
func (t *ffmpegTrack) Err() error {
	select {
	case <-t.exited:
		return t.exitErr
	default:
		return nil
	}
}

func (t *ffmpegTrack) Stop() error {
	t.stopOnce.Do(func() {
		if t.process != nil {
			_ = t.process.Signal(os.Interrupt)
		}

		select {
		case <-t.exited:
		case <-time.After(1200 * time.Millisecond):
			if t.process != nil {
				_ = t.process.Kill()
			}
			<-t.exited
		}
		t.stopErr = t.exitErr

		if closeErr := t.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if t.stopErr == nil {
				t.stopErr = closeErr
			}
		}
	})

	return t.stopErr
}

func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// interrupt-driven shutdown is a clean stop
		if exitErr.ExitCode() == -1 || exitErr.ExitCode() == 255 {
			return nil
		}
	}
	return err
}

func classifyStartError(exitErr error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	lowered := strings.ToLower(detail)

	switch {
	case strings.Contains(lowered, "permission denied"),
		strings.Contains(lowered, "operation not permitted"),
		strings.Contains(lowered, "access denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, detail)
	case strings.Contains(lowered, "no such"),
		strings.Contains(lowered, "not found"),
		strings.Contains(lowered, "does not exist"),
		strings.Contains(lowered, "cannot open"):
		return fmt.Errorf("%w: %s", ErrDeviceUnavailable, detail)
	}

	if exitErr != nil {
		if detail != "" {
			return fmt.Errorf("capture exited before producing audio: %w: %s", exitErr, detail)
		}
		return fmt.Errorf("capture exited before producing audio: %w", exitErr)
	}
	if detail != "" {
		return fmt.Errorf("capture exited before producing audio: %s", detail)
	}
	return errors.New("capture exited before producing audio")
}
