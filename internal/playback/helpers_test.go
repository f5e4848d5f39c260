package playback

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// recordingSink keeps every signal it receives.
type recordingSink struct {
	mu      sync.Mutex
	signals []ttypes.Signal
}

func (s *recordingSink) Emit(sig ttypes.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, sig)
}

func (s *recordingSink) count(kind ttypes.SignalKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sig := range s.signals {
		if sig.Kind == kind {
			n++
		}
	}
	return n
}

func (s *recordingSink) pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pages []int
	for _, sig := range s.signals {
		if sig.Kind == ttypes.SignalPageAdvance {
			pages = append(pages, sig.Page)
		}
	}
	return pages
}

// tenChars builds a section of n units of ten characters each. Unit i
// starts at character 11*i.
func tenChars(id string, n int, pageStarts ...int) ttypes.Section {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = strings.Repeat(string(rune('a'+i)), 10)
	}
	s := ttypes.NewSection(id, id, lines)
	s.PageStarts = pageStarts
	return s
}

func chunkOf(s ttypes.Section, fp string, first, last int) ttypes.Chunk {
	var text strings.Builder
	for i := first; i <= last; i++ {
		text.WriteString(s.Units[i].Text)
	}
	return ttypes.Chunk{
		Fingerprint: fp,
		Section:     s.ID,
		Text:        text.String(),
		Length:      (last - first + 1) * 10,
		FirstUnit:   first,
		LastUnit:    last,
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
