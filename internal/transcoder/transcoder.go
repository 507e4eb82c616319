package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"plex-thumbnails/internal/logging"
	"plex-thumbnails/internal/metrics"
	"plex-thumbnails/internal/workers"

	"golang.org/x/sync/semaphore"
)

const (
	// DefaultTimeout bounds a single frame extraction.
	DefaultTimeout = 10 * time.Second

	// DefaultWidth is the width frames are scaled to. Height keeps the aspect ratio.
	DefaultWidth = 240

	// maxAutoWorkers caps the CPU-derived ffmpeg concurrency.
	maxAutoWorkers = 4

	probeTimeout = 5 * time.Second
)

// ErrExtractFailed is matched by every ExtractError.
var ErrExtractFailed = errors.New("frame extraction failed")

// ExtractError reports an ffmpeg run that exited non-zero, timed out, or
// produced no output.
type ExtractError struct {
	Input    string
	OffsetMs int64
	Timeout  bool
	Stderr   string
	Err      error
}

func (e *ExtractError) Error() string {
	reason := "failed"
	if e.Timeout {
		reason = "timed out"
	}
	msg := fmt.Sprintf("ffmpeg %s extracting frame at %dms from %s", reason, e.OffsetMs, e.Input)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += " - " + e.Stderr
	}
	return msg
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrExtractFailed) match any ExtractError.
func (e *ExtractError) Is(target error) bool {
	return target == ErrExtractFailed
}

// Config controls how frames are extracted.
type Config struct {
	FFmpegPath string
	Width      int
	Timeout    time.Duration

	// Workers is the number of ffmpeg processes allowed to run at once.
	// Zero derives it from the available CPUs.
	Workers int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		FFmpegPath: "ffmpeg",
		Width:      DefaultWidth,
		Timeout:    DefaultTimeout,
		Workers:    workers.ForCPU(maxAutoWorkers, 0),
	}
}

// Extractor runs ffmpeg to pull single frames out of media files.
type Extractor struct {
	config    Config
	slots     *semaphore.Weighted
	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// New creates a new Extractor. Zero fields in config take their defaults.
func New(config Config) *Extractor {
	defaults := DefaultConfig()
	if config.FFmpegPath == "" {
		config.FFmpegPath = defaults.FFmpegPath
	}
	if config.Width <= 0 {
		config.Width = defaults.Width
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	config.Workers = workers.ForCPU(maxAutoWorkers, config.Workers)

	return &Extractor{
		config:    config,
		slots:     semaphore.NewWeighted(int64(config.Workers)),
		processes: make(map[string]*exec.Cmd),
	}
}

// Config returns the effective configuration.
func (x *Extractor) Config() Config {
	return x.config
}

// Args returns the ffmpeg arguments used to write the frame at offsetMs of
// input to output: fast input seek, one frame, fixed width, overwrite.
func (x *Extractor) Args(input string, offsetMs int64, output string) []string {
	return []string{
		"-loglevel", "error",
		"-ss", strconv.FormatInt(offsetMs, 10) + "ms",
		"-i", input,
		"-vf", fmt.Sprintf("scale=%d:-2", x.config.Width),
		"-vframes", "1",
		"-y",
		output,
	}
}

// ExtractFrame writes the frame at offsetMs of input to output as a JPEG.
//
// ffmpeg writes to a temporary file next to output, which is renamed into place
// only when the run succeeds and produced data. On any failure the temporary
// file is removed, so output is either complete or absent.
//
// At most Config.Workers extractions run at once. Waiting for a slot is bounded
// by ctx only; the timeout starts when ffmpeg does.
func (x *Extractor) ExtractFrame(ctx context.Context, input string, offsetMs int64, output string) error {
	if err := x.slots.Acquire(ctx, 1); err != nil {
		return &ExtractError{
			Input:    input,
			OffsetMs: offsetMs,
			Timeout:  errors.Is(err, context.DeadlineExceeded),
			Err:      fmt.Errorf("waiting for an ffmpeg slot: %w", err),
		}
	}
	defer x.slots.Release(1)

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("failed to create frame directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), ".frame-*.jpg")
	if err != nil {
		return fmt.Errorf("failed to create temp frame file: %w", err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		logging.Warn("failed to close temp frame file %s: %v", tmpPath, err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove partial frame %s: %v", tmpPath, err)
		}
	}()

	if err := x.run(ctx, input, offsetMs, tmpPath); err != nil {
		return err
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		return &ExtractError{Input: input, OffsetMs: offsetMs, Err: errors.New("ffmpeg produced no output")}
	}

	if err := os.Rename(tmpPath, output); err != nil {
		return fmt.Errorf("failed to move frame into place: %w", err)
	}
	committed = true
	return nil
}

func (x *Extractor) run(ctx context.Context, input string, offsetMs int64, output string) error {
	ctx, cancel := context.WithTimeout(ctx, x.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, x.config.FFmpegPath, x.Args(input, offsetMs, output)...)
	// Don't wait on orphaned children holding stderr once ffmpeg is killed
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	metrics.ExtractionsInProgress.Inc()
	defer metrics.ExtractionsInProgress.Dec()

	logging.Debug("ffmpeg: extracting %dms from %s", offsetMs, input)
	start := time.Now()

	err := cmd.Start()
	if err == nil {
		// Track the process so Cleanup can kill it
		x.processMu.Lock()
		x.processes[output] = cmd
		x.processMu.Unlock()

		err = cmd.Wait()

		x.processMu.Lock()
		delete(x.processes, output)
		x.processMu.Unlock()
	}
	metrics.ExtractionDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ExtractionsTotal.WithLabelValues("success").Inc()
		return nil
	}

	extractErr := &ExtractError{
		Input:    input,
		OffsetMs: offsetMs,
		Stderr:   strings.TrimSpace(stderr.String()),
		Err:      err,
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		extractErr.Timeout = true
		extractErr.Err = fmt.Errorf("no result after %v: %w", x.config.Timeout, context.DeadlineExceeded)
		metrics.ExtractionsTotal.WithLabelValues("timeout").Inc()
	} else {
		metrics.ExtractionsTotal.WithLabelValues("error").Inc()
	}

	logging.Warn("%v", extractErr)
	return extractErr
}

// Running returns the number of ffmpeg processes currently tracked.
func (x *Extractor) Running() int {
	x.processMu.Lock()
	defer x.processMu.Unlock()
	return len(x.processes)
}

// Cleanup kills all running ffmpeg processes.
func (x *Extractor) Cleanup() {
	x.processMu.Lock()
	defer x.processMu.Unlock()

	for path, cmd := range x.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process writing %s", path)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process for %s: %v", path, err)
			}
		}
	}
}

// Probe checks that ffmpegPath resolves to a runnable ffmpeg and returns the
// first line of its version banner.
func Probe(ctx context.Context, ffmpegPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", ffmpegPath, err)
	}
	logging.Debug("  FFmpeg path: %s", path)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get ffmpeg version: %w", err)
	}

	version, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(version), nil
}
