// Package ttypes contains shared types and interfaces for the read-aloud pipeline.
// This package is used to break import cycles between synth, cache, scheduler,
// playback and audio packages.
package ttypes

import (
	"context"
	"time"
	"unicode/utf8"
)

// TextUnit is one paragraph or line of source content.
type TextUnit struct {
	// Index is the unit's position in the section queue
	Index int

	// Text is the unit content, never modified after loading
	Text string
}

// Len returns the unit length in characters.
func (u TextUnit) Len() int {
	return utf8.RuneCountInString(u.Text)
}

// Section is a document subdivision whose units are queued for reading.
type Section struct {
	// ID identifies the section to the host (chapter id, heading slug)
	ID string

	// Title is informational only
	Title string

	// Units are the ordered text units of the section
	Units []TextUnit

	// PageStarts holds section-relative character offsets where pages begin.
	// Empty when the host does not paginate.
	PageStarts []int

	// BaseChars is the section-relative character count at unit 0
	BaseChars int
}

// NewSection builds a section from raw lines, assigning unit indexes.
func NewSection(id, title string, lines []string) Section {
	units := make([]TextUnit, len(lines))
	for i, l := range lines {
		units[i] = TextUnit{Index: i, Text: l}
	}
	return Section{ID: id, Title: title, Units: units}
}

// UnitStart returns the section-relative character count at the start of
// unit i. Each unit accounts for its length plus one separator.
func (s Section) UnitStart(i int) int {
	n := s.BaseChars
	for j := 0; j < i && j < len(s.Units); j++ {
		n += s.Units[j].Len() + 1
	}
	return n
}

// Chars returns the total character count of the section.
func (s Section) Chars() int {
	return s.UnitStart(len(s.Units)) - s.BaseChars
}

// Chunk is a contiguous run of units synthesized and played as one item.
type Chunk struct {
	// Fingerprint identifies the chunk audio in the cache
	Fingerprint string

	// Section is the ID of the section the chunk was cut from
	Section string

	// Text is the concatenated source text of the chunk
	Text string

	// Length is the chunk length in characters
	Length int

	// Order is the production order within a run
	Order int

	// FirstUnit and LastUnit are inclusive unit indexes
	FirstUnit int
	LastUnit  int

	// StartOffset is the in-unit offset the chunk starts at
	StartOffset int

	// Silent is set when a placeholder replaced failed synthesis
	Silent bool

	// Cached is set when the audio was already present
	Cached bool
}

// Contains reports whether unit i belongs to the chunk.
func (c Chunk) Contains(i int) bool {
	return i >= c.FirstUnit && i <= c.LastUnit
}

// SynthesisRequest carries everything needed for one synthesis session.
type SynthesisRequest struct {
	Credential  string
	Text        string
	Voice       string
	RateAdjust  float64
	PitchAdjust float64
	Format      string
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	// Synthesize runs one session and returns the drained audio.
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// AudioStore is the cache surface used by schedulers and players.
type AudioStore interface {
	Get(fingerprint string) ([]byte, bool)
	Put(fingerprint string, audio []byte)
	Has(fingerprint string) bool
	EvictBefore(fingerprint string) int
	Clear()
}

// TransientStore is implemented by stores that can hold audio for the
// running process only. Silent placeholders go there so a passing backend
// failure is not persisted.
type TransientStore interface {
	PutTransient(fingerprint string, audio []byte)
}

// MediaSource resolves a media URI to audio bytes.
type MediaSource interface {
	Open(uri string) ([]byte, error)
}

// Progress is a snapshot of reading progress.
type Progress struct {
	Section   string
	Unit      int
	Offset    int
	CharsRead int
	Chunk     string
	Position  time.Duration
	Duration  time.Duration
}
