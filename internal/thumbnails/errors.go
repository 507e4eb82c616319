package thumbnails

import (
	"context"
	"errors"

	"plex-thumbnails/internal/bif"
	"plex-thumbnails/internal/transcoder"
)

// ErrNotAvailable means the item has no thumbnail source. Callers should treat
// it as "no thumbnail" rather than a fault.
var ErrNotAvailable = errors.New("thumbnails not available")

// Outcome labels for metrics and logs.
const (
	statusSuccess      = "success"
	statusNotAvailable = "not_available"
	statusCorrupt      = "corrupt"
	statusFFmpegError  = "ffmpeg_error"
	statusCanceled     = "canceled"
	statusError        = "error"
)

// status classifies err into one of the outcome labels.
func status(err error) string {
	switch {
	case err == nil:
		return statusSuccess
	case errors.Is(err, ErrNotAvailable):
		return statusNotAvailable
	case errors.Is(err, bif.ErrCorruptIndex):
		return statusCorrupt
	case errors.Is(err, transcoder.ErrExtractFailed):
		return statusFFmpegError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return statusCanceled
	default:
		return statusError
	}
}
