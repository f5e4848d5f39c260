package scheduler

import (
	"strings"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Chunker accumulates units into chunks. The first unit may be entered at
// an in-unit offset, used when resuming mid-paragraph.
type Chunker struct {
	units  []ttypes.TextUnit
	next   int
	end    int
	offset int
	order  int
}

// NewChunker walks units[from:end]. end is clamped to len(units).
func NewChunker(units []ttypes.TextUnit, from, offset, end int) *Chunker {
	if end > len(units) || end < 0 {
		end = len(units)
	}
	if from < 0 {
		from = 0
	}
	if offset < 0 {
		offset = 0
	}
	return &Chunker{units: units, next: from, end: end, offset: offset}
}

// Done reports whether every unit has been consumed.
func (c *Chunker) Done() bool {
	return c.next >= c.end
}

// Next returns the next chunk. Units are appended until the accumulated
// length reaches target or the last unit is taken, so the final chunk
// absorbs any remainder regardless of its size.
func (c *Chunker) Next(target int) (ttypes.Chunk, bool) {
	if c.Done() {
		return ttypes.Chunk{}, false
	}

	chunk := ttypes.Chunk{
		Order:     c.order,
		FirstUnit: c.next,
	}

	var sb strings.Builder
	for c.next < c.end {
		text := c.units[c.next].Text
		if c.next == chunk.FirstUnit && c.offset > 0 {
			text = sliceRunes(text, c.offset)
			chunk.StartOffset = c.offset
			c.offset = 0
		}

		sb.WriteString(text)
		chunk.Length += runeLen(text)
		chunk.LastUnit = c.next
		c.next++

		if chunk.Length >= target {
			break
		}
	}

	chunk.Text = sb.String()
	c.order++
	return chunk, true
}

// unitLen returns the length of units[i] as played in chunk, which is
// shorter for the first unit when the chunk starts at an offset.
func unitLen(chunk ttypes.Chunk, units []ttypes.TextUnit, i int) int {
	n := units[i].Len()
	if i == chunk.FirstUnit {
		n -= chunk.StartOffset
	}
	return max(n, 0)
}

func sliceRunes(s string, from int) string {
	r := []rune(s)
	if from >= len(r) {
		return ""
	}
	return string(r[from:])
}

func runeLen(s string) int {
	return len([]rune(s))
}
