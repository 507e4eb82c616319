package memory

import (
	"math"
	"os"
	"runtime/debug"
	"strconv"

	"plex-thumbnails/internal/logging"
)

// DefaultRatio is the share of the container limit given to the Go heap. The
// rest is left for ffmpeg children and goroutine stacks.
const DefaultRatio = 0.85

// Result describes the Go memory limit after Configure.
type Result struct {
	Configured bool

	// Source is "GOMEMLIMIT", "memory_limit" or "none".
	Source string

	ContainerLimit int64
	GoMemLimit     int64
	Ratio          float64
}

// Configure sets the Go memory limit to ratio of containerLimit bytes. An
// explicit GOMEMLIMIT in the environment always wins, and a containerLimit of
// zero leaves the runtime default alone. Ratios outside (0, 1] use DefaultRatio.
//
// Call it early, before the thumbnail caches fill.
func Configure(containerLimit int64, ratio float64) Result {
	if env := os.Getenv("GOMEMLIMIT"); env != "" {
		result := Result{Source: "GOMEMLIMIT"}
		if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
			result.Configured = true
			result.GoMemLimit = limit
		}
		logging.Info("GOMEMLIMIT set via environment: %s", env)
		return result
	}

	if containerLimit <= 0 {
		logging.Debug("No memory limit configured, GOMEMLIMIT left at the runtime default")
		return Result{Source: "none"}
	}

	if ratio <= 0 || ratio > 1 {
		if ratio != 0 {
			logging.Warn("Memory ratio %.2f out of range (0.0-1.0), using default %.2f", ratio, DefaultRatio)
		}
		ratio = DefaultRatio
	}

	goMemLimit := int64(float64(containerLimit) * ratio)
	debug.SetMemoryLimit(goMemLimit)

	logging.Info("Configured GOMEMLIMIT: %s (%.1f%% of %s container limit)",
		formatBytes(goMemLimit),
		ratio*100,
		formatBytes(containerLimit),
	)

	return Result{
		Configured:     true,
		Source:         "memory_limit",
		ContainerLimit: containerLimit,
		GoMemLimit:     goMemLimit,
		Ratio:          ratio,
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return strconv.FormatInt(b, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(b)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "iB"
}
