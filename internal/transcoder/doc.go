// Package transcoder extracts single preview frames from media files using FFmpeg.
//
// It supports:
//   - Fast (keyframe) seeking to a millisecond offset
//   - Scaling the frame to a fixed width
//   - A hard wall-clock timeout per extraction
//   - Tracking and killing running ffmpeg processes on shutdown
//
// FFmpeg must be installed and available in the system PATH, or configured
// with an explicit path. [Probe] reports whether it can be run.
package transcoder
