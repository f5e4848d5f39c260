package playback

import (
	"sync"

	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Cursor is the reading position within a section. Every mutation goes
// through a guarded operation so that each chunk boundary is crossed once,
// whichever signal reports it first.
type Cursor struct {
	mu      sync.Mutex
	section ttypes.Section
	unit    int
	offset  int

	// highest page index announced for this section
	announced int
	ended     bool

	signals ttypes.SignalSink
	metrics *metrics.Metrics
}

// NewCursor creates a cursor emitting to signals.
func NewCursor(signals ttypes.SignalSink, m *metrics.Metrics) *Cursor {
	return &Cursor{signals: signals, metrics: m}
}

// Load positions the cursor in a new section.
func (c *Cursor) Load(section ttypes.Section, unit, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.section = section
	c.unit = max(0, min(unit, len(section.Units)))
	c.offset = max(0, offset)
	c.ended = false
	c.announced = pageAt(section.PageStarts, c.charsLocked())
	c.publishLocked()
}

// Section returns the loaded section.
func (c *Cursor) Section() ttypes.Section {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.section
}

// Position returns the unit index and in-unit offset.
func (c *Cursor) Position() (unit, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unit, c.offset
}

// CharsRead returns the section-relative characters read.
func (c *Cursor) CharsRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.charsLocked()
}

// AtEnd reports whether the cursor has passed the last unit.
func (c *Cursor) AtEnd() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unit >= len(c.section.Units)
}

// CrossBoundary moves past the end of chunk. It is a no-op when the chunk
// belongs to another section or the cursor is already beyond it.
func (c *Cursor) CrossBoundary(chunk ttypes.Chunk) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.Section != c.section.ID || c.unit > chunk.LastUnit {
		return false
	}

	c.unit = chunk.LastUnit + 1
	c.offset = 0
	c.advancedLocked()
	return true
}

// Nudge moves to an inner unit boundary of chunk. It only moves forward and
// never crosses the chunk's end.
func (c *Cursor) Nudge(chunk ttypes.Chunk, boundary int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.Section != c.section.ID {
		return false
	}
	if c.unit < chunk.FirstUnit || c.unit >= boundary || boundary > chunk.LastUnit {
		return false
	}

	c.unit = boundary
	c.offset = 0
	c.advancedLocked()
	return true
}

// Rewind moves the cursor back to the start of a chunk, used when the
// section is reloaded. Pages already announced are not announced again.
func (c *Cursor) Rewind(unit, offset int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unit = max(0, min(unit, len(c.section.Units)))
	c.offset = max(0, offset)
	c.ended = c.unit >= len(c.section.Units)
	c.publishLocked()
}

// ReportChars announces the page containing section-relative character n
// if it has not been announced yet.
func (c *Cursor) ReportChars(n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reportLocked(n)
}

// ReportProgress announces pages for the i-th character of chunk, as heard
// by the player. Chunks of other sections are ignored.
func (c *Cursor) ReportProgress(chunk ttypes.Chunk, i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.Section != c.section.ID {
		return false
	}
	return c.reportLocked(c.section.UnitStart(chunk.FirstUnit) + chunk.StartOffset + i)
}

func (c *Cursor) reportLocked(n int) bool {
	page := pageAt(c.section.PageStarts, n)
	if page <= c.announced {
		return false
	}

	c.announced = page
	c.emit(ttypes.Signal{Kind: ttypes.SignalPageAdvance, Section: c.section.ID, Chars: n, Page: page})
	return true
}

func (c *Cursor) advancedLocked() {
	c.publishLocked()
	c.reportLocked(c.charsLocked())

	if !c.ended && c.unit >= len(c.section.Units) {
		c.ended = true
		c.emit(ttypes.Signal{Kind: ttypes.SignalSectionEnd, Section: c.section.ID, Chars: c.charsLocked()})
	}
}

func (c *Cursor) publishLocked() {
	chars := c.charsLocked()
	c.metrics.SetCharsRead(chars)
	c.emit(ttypes.Signal{Kind: ttypes.SignalPosition, Section: c.section.ID, Chars: chars})
}

func (c *Cursor) charsLocked() int {
	return c.section.UnitStart(c.unit) + c.offset
}

func (c *Cursor) emit(sig ttypes.Signal) {
	if c.signals != nil {
		c.signals.Emit(sig)
	}
}

// pageAt returns the index of the page containing character n.
func pageAt(starts []int, n int) int {
	page := 0
	for i, s := range starts {
		if s > n {
			break
		}
		page = i
	}
	return page
}
