package tts

import "errors"

// Reader errors
var (
	// ErrNoDocument is returned when reading starts before sections are loaded
	ErrNoDocument = errors.New("no document loaded")

	// ErrSectionOutOfRange is returned for a section index outside the document
	ErrSectionOutOfRange = errors.New("section index out of range")

	// ErrReaderClosed is returned by operations on a closed reader
	ErrReaderClosed = errors.New("reader is closed")

	// ErrRateOutOfRange is returned when a rate adjustment is outside -1..1
	ErrRateOutOfRange = errors.New("rate must be between -1.0 and 1.0")
)
