package playback

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/aloud/internal/audio"
	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

type rig struct {
	coord  *Coordinator
	player *audio.MockPlayer
	cursor *Cursor
	sink   *recordingSink
	store  *cache.AudioCache
}

func newRig(t *testing.T, section ttypes.Section, mock audio.MockConfig) *rig {
	t.Helper()

	store := cache.NewAudioCache()
	for i := range section.Units {
		store.Put(fmt.Sprintf("c%d", i), []byte(fmt.Sprintf("audio-%d", i)))
	}

	sink := &recordingSink{}
	player := audio.NewMockPlayer(store, mock, audio.MockCallbacks{})
	cursor := NewCursor(sink, nil)
	cursor.Load(section, 0, 0)

	coord := NewCoordinator(player, cursor, sink, Config{
		MaxErrors:        5,
		ReloadDelay:      0,
		ProgressInterval: time.Millisecond,
	}, nil, nil)
	coord.Start(context.Background())

	t.Cleanup(func() {
		coord.Close()
		player.Close()
	})

	return &rig{coord: coord, player: player, cursor: cursor, sink: sink, store: store}
}

func (r *rig) unit() int {
	unit, _ := r.cursor.Position()
	return unit
}

func (r *rig) waitPlaying(t *testing.T) {
	t.Helper()
	if !r.player.WaitForState(ttypes.PlayerPlaying, 2*time.Second) {
		t.Fatalf("player never started, state %s", r.player.State())
	}
}

func TestCoordinator_NudgeThenTransition(t *testing.T) {
	s := tenChars("s", 4)
	r := newRig(t, s, audio.MockConfig{Manual: true})

	a, b := chunkOf(s, "c0", 0, 1), chunkOf(s, "c2", 2, 3)
	r.coord.Enqueue(a)
	r.coord.Enqueue(b)
	r.waitPlaying(t)

	if got := r.coord.Current(); got != "c0" {
		t.Errorf("expected current c0, got %q", got)
	}

	r.coord.Nudge(a, 1)
	if r.unit() != 1 {
		t.Fatalf("nudge should move to unit 1, got %d", r.unit())
	}

	r.player.Complete()
	eventually(t, "crossing into the second chunk", func() bool { return r.unit() == 2 })

	r.coord.Nudge(a, 1)
	if r.unit() != 2 {
		t.Errorf("late nudge moved the cursor to %d", r.unit())
	}
}

func TestCoordinator_TransitionThenNudge(t *testing.T) {
	s := tenChars("s", 4)
	r := newRig(t, s, audio.MockConfig{Manual: true})

	a, b := chunkOf(s, "c0", 0, 1), chunkOf(s, "c2", 2, 3)
	r.coord.Enqueue(a)
	r.coord.Enqueue(b)
	r.waitPlaying(t)

	r.player.Complete()
	eventually(t, "crossing into the second chunk", func() bool { return r.unit() == 2 })
	eventually(t, "second chunk current", func() bool { return r.coord.Current() == "c2" })

	r.coord.Nudge(a, 1)
	if r.unit() != 2 {
		t.Errorf("stale nudge moved the cursor to %d", r.unit())
	}

	r.coord.Nudge(b, 3)
	if r.unit() != 3 {
		t.Errorf("nudge inside the playing chunk should reach unit 3, got %d", r.unit())
	}
}

func TestCoordinator_EndedCrossesOnce(t *testing.T) {
	s := tenChars("s", 2)
	r := newRig(t, s, audio.MockConfig{Manual: true})

	a := chunkOf(s, "c0", 0, 1)
	r.coord.Enqueue(a)
	r.waitPlaying(t)

	r.player.Complete()
	eventually(t, "end of section", func() bool { return r.sink.count(ttypes.SignalSectionEnd) == 1 })
	eventually(t, "playlist cleared", func() bool { return r.player.Len() == 0 })

	r.coord.Nudge(a, 1)
	if r.unit() != 2 {
		t.Errorf("expected cursor at 2, got %d", r.unit())
	}
	if n := r.sink.count(ttypes.SignalSectionEnd); n != 1 {
		t.Errorf("expected one section end, got %d", n)
	}
	if r.coord.Current() != "" {
		t.Errorf("expected no current chunk, got %q", r.coord.Current())
	}
}

func TestCoordinator_ErrorWithoutNextSkipsChunk(t *testing.T) {
	s := tenChars("s", 4)
	r := newRig(t, s, audio.MockConfig{Manual: true})
	r.player.FailLoads(1)

	r.coord.Enqueue(chunkOf(s, "c0", 0, 1))
	eventually(t, "failed chunk crossed", func() bool { return r.unit() == 2 })

	if n := r.coord.Errors(); n != 1 {
		t.Errorf("expected 1 error, got %d", n)
	}

	r.coord.Enqueue(chunkOf(s, "c2", 2, 3))
	r.waitPlaying(t)

	r.player.Complete()
	eventually(t, "section end", func() bool { return r.sink.count(ttypes.SignalSectionEnd) == 1 })
	if n := r.coord.Errors(); n != 0 {
		t.Errorf("completed item should reset the error count, got %d", n)
	}
}

func TestCoordinator_ReloadOnceThenFatal(t *testing.T) {
	s := tenChars("s", 6)
	r := newRig(t, s, audio.MockConfig{Manual: true})

	enqueueAll := func() {
		for i := range s.Units {
			r.coord.Enqueue(chunkOf(s, fmt.Sprintf("c%d", i), i, i))
		}
	}

	var reloads atomic.Int32
	r.coord.SetReloader(func() {
		reloads.Add(1)
		r.coord.ClearQueue()
		enqueueAll()
	})

	enqueueAll()
	r.waitPlaying(t)

	// c1..c5 fail: five errors
	r.player.FailLoads(100)
	r.player.Complete()

	eventually(t, "fatal stop", func() bool { return r.sink.count(ttypes.SignalFatal) == 1 })

	if n := reloads.Load(); n != 1 {
		t.Errorf("expected exactly one reload, got %d", n)
	}
	if n := r.coord.Reloads(); n != 1 {
		t.Errorf("expected coordinator to count one reload, got %d", n)
	}
	if !r.coord.Paused() {
		t.Error("fatal stop should pause playback")
	}

	r.sink.mu.Lock()
	var fatal error
	for _, sig := range r.sink.signals {
		if sig.Kind == ttypes.SignalFatal {
			fatal = sig.Err
		}
	}
	r.sink.mu.Unlock()

	if !ttypes.HasCode(fatal, ttypes.CodeFatal) || !errors.Is(fatal, ttypes.ErrRetriesExhausted) {
		t.Errorf("unexpected fatal error: %v", fatal)
	}

	// no further retries
	time.Sleep(20 * time.Millisecond)
	if n := r.sink.count(ttypes.SignalFatal); n != 1 {
		t.Errorf("expected a single fatal signal, got %d", n)
	}
}

func TestCoordinator_PauseResume(t *testing.T) {
	s := tenChars("s", 2)
	r := newRig(t, s, audio.MockConfig{Manual: true})

	r.coord.Enqueue(chunkOf(s, "c0", 0, 1))
	r.waitPlaying(t)

	r.coord.Pause()
	if !r.player.WaitForState(ttypes.PlayerReady, time.Second) {
		t.Fatalf("expected ready after pause, got %s", r.player.State())
	}

	r.coord.Resume()
	r.waitPlaying(t)
	if r.coord.Paused() {
		t.Error("resume should clear the paused flag")
	}
}

func TestCoordinator_PageSyncAnnouncesOnce(t *testing.T) {
	// page 1 begins inside unit 1
	s := tenChars("s", 3, 0, 15)
	r := newRig(t, s, audio.MockConfig{ItemDuration: 40 * time.Millisecond})

	r.coord.Enqueue(chunkOf(s, "c0", 0, 2))

	eventually(t, "section end", func() bool { return r.sink.count(ttypes.SignalSectionEnd) == 1 })

	if got := r.sink.pages(); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected page 1 announced once, got %v", got)
	}
}
