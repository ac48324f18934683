package container

import "errors"

var (
	// ErrMalformed is returned when a box cannot be framed or decoded.
	ErrMalformed = errors.New("container: malformed input")

	// ErrTruncated is returned when the input ends inside a box that must be read whole.
	ErrTruncated = errors.New("container: truncated input")

	// ErrNoMetadata is returned when all bytes were delivered without a moov box.
	ErrNoMetadata = errors.New("container: no moov box found")

	// ErrNoVideoTrack is returned when moov carries no video track.
	ErrNoVideoTrack = errors.New("container: no video track found")

	// ErrOutOfOrder is returned when a chunk starts after the offset the parser needs.
	ErrOutOfOrder = errors.New("container: chunk does not continue the stream")

	// ErrFinished is returned when bytes are appended after the last chunk.
	ErrFinished = errors.New("container: parser already finished")
)
