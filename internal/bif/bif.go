package bif

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"plex-thumbnails/internal/logging"
)

const (
	// HeaderSize is the fixed size of the BIF header, which is also where the
	// index table begins.
	HeaderSize = 64

	// RecordSize is the size of one index table record.
	RecordSize = 8

	frameCountOffset = 12
)

// Magic is the signature every BIF file starts with.
var Magic = []byte{0x89, 0x42, 0x49, 0x46, 0x0D, 0x0A, 0x1A, 0x0A}

// ErrCorruptIndex is matched by every CorruptIndexError.
var ErrCorruptIndex = errors.New("corrupt preview index")

// CorruptIndexError reports a BIF file that does not follow the format.
type CorruptIndexError struct {
	Reason string
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt preview index: %s", e.Reason)
}

// Is lets errors.Is(err, ErrCorruptIndex) match any CorruptIndexError.
func (e *CorruptIndexError) Is(target error) bool {
	return target == ErrCorruptIndex
}

func corrupt(format string, args ...interface{}) error {
	return &CorruptIndexError{Reason: fmt.Sprintf(format, args...)}
}

// Frame is the location of a single preview image inside a BIF file.
type Frame struct {
	Index int
	Start int
	End   int

	// Interval is the number of seconds between frames. It is discovered on the
	// first parse of a file so callers can cache it.
	Interval int
}

// Len returns the size of the frame in bytes.
func (f Frame) Len() int {
	return f.End - f.Start
}

// Bytes returns the frame's slice of data. The slice aliases data.
func (f Frame) Bytes(data []byte) []byte {
	return data[f.Start:f.End]
}

// FrameCount returns the number of frames declared in the header.
func FrameCount(data []byte) (int, error) {
	if err := validateHeader(data); err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(data[frameCountOffset:])), nil
}

// Interval reads the spacing between frames from the second index record.
// A single-frame file has an interval of zero.
func Interval(data []byte) (int, error) {
	count, err := FrameCount(data)
	if err != nil {
		return 0, err
	}
	if err := validateTable(data, count); err != nil {
		return 0, err
	}
	return interval(data, count), nil
}

// FrameIndex maps a timestamp to a frame index for a file with the given
// interval and frame count, clamping to the valid range.
func FrameIndex(timestampSeconds, interval, count int) int {
	if count <= 0 {
		return 0
	}
	if timestampSeconds < 0 || interval <= 0 {
		return 0
	}

	index := timestampSeconds / interval
	if index >= count {
		logging.Debug("bif: timestamp %ds is past the last frame (%d frames every %ds), using the last frame",
			timestampSeconds, count, interval)
		return count - 1
	}
	return index
}

// Parse locates the frame covering timestampSeconds. knownInterval is the
// interval from a previous parse of the same file, or zero if unknown.
func Parse(data []byte, timestampSeconds, knownInterval int) (Frame, error) {
	count, err := FrameCount(data)
	if err != nil {
		return Frame{}, err
	}
	if err := validateTable(data, count); err != nil {
		return Frame{}, err
	}

	step := knownInterval
	if step <= 0 {
		step = interval(data, count)
	}

	index := FrameIndex(timestampSeconds, step, count)
	start := offsetOf(data, index)
	end := len(data)
	if index < count-1 {
		end = offsetOf(data, index+1)
	}

	if start < HeaderSize || start > len(data) {
		return Frame{}, corrupt("frame %d starts at %d, outside of a %d byte file", index, start, len(data))
	}
	if end < start || end > len(data) {
		return Frame{}, corrupt("frame %d ends at %d before its start %d or past the end of the file", index, end, start)
	}

	return Frame{Index: index, Start: start, End: end, Interval: step}, nil
}

func validateHeader(data []byte) error {
	if len(data) < HeaderSize {
		return corrupt("file is %d bytes, shorter than the %d byte header", len(data), HeaderSize)
	}
	if !bytes.Equal(data[:len(Magic)], Magic) {
		return corrupt("bad magic number % x", data[:len(Magic)])
	}
	return nil
}

func validateTable(data []byte, count int) error {
	if count < 1 {
		return corrupt("index declares no frames")
	}
	if HeaderSize+count*RecordSize > len(data) {
		return corrupt("index table of %d records does not fit in %d bytes", count, len(data))
	}
	if ts := timestampOf(data, 0); ts != 0 {
		return corrupt("first index record has timestamp %d, expected 0", ts)
	}
	return nil
}

func interval(data []byte, count int) int {
	if count < 2 {
		return 0
	}
	return timestampOf(data, 1)
}

func timestampOf(data []byte, index int) int {
	return int(binary.LittleEndian.Uint32(data[HeaderSize+index*RecordSize:]))
}

func offsetOf(data []byte, index int) int {
	return int(binary.LittleEndian.Uint32(data[HeaderSize+index*RecordSize+4:]))
}
