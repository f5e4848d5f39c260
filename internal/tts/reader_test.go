package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/aloud/internal/audio"
	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// fakeSynth returns "audio:<text>" and records every request.
type fakeSynth struct {
	mu       sync.Mutex
	requests []ttypes.SynthesisRequest

	fail func(req ttypes.SynthesisRequest) error

	// hold, when it returns a channel, delays the reply until the channel
	// closes or the request is cancelled
	hold func(req ttypes.SynthesisRequest) <-chan struct{}
}

func (f *fakeSynth) Synthesize(ctx context.Context, req ttypes.SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.hold != nil {
		if gate := f.hold(req); gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
			}
			return []byte("late:" + req.Text), nil
		}
	}

	if f.fail != nil {
		if err := f.fail(req); err != nil {
			return nil, err
		}
	}
	return []byte("audio:" + req.Text), nil
}

func (f *fakeSynth) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// callsBy counts requests whose text contains s made with voice.
func (f *fakeSynth) callsBy(s, voice string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.Contains(r.Text, s) && r.Voice == voice {
			n++
		}
	}
	return n
}

// callsWith counts requests whose text contains s.
func (f *fakeSynth) callsWith(s string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.Contains(r.Text, s) {
			n++
		}
	}
	return n
}

func (f *fakeSynth) last() ttypes.SynthesisRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// switchCredential can be filled in while a test runs.
type switchCredential struct {
	value atomic.Value
}

func (s *switchCredential) set(v string) { s.value.Store(v) }

func (s *switchCredential) Credential() string {
	v, _ := s.value.Load().(string)
	return v
}

type signalLog struct {
	mu      sync.Mutex
	signals []ttypes.Signal
}

func (l *signalLog) Emit(sig ttypes.Signal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.signals = append(l.signals, sig)
}

func (l *signalLog) count(kind ttypes.SignalKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.signals {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

type readerRig struct {
	reader  *Reader
	synth   *fakeSynth
	player  *audio.MockPlayer
	store   *cache.AudioCache
	signals *signalLog
	cred    *switchCredential
}

func newReaderRig(t *testing.T, mock audio.MockConfig, modify func(*Config)) *readerRig {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Chunk.CharDuration = time.Millisecond
	cfg.Silence = 10 * time.Millisecond
	cfg.Playback.ReloadDelay = 0
	if modify != nil {
		modify(&cfg)
	}

	store := cache.NewAudioCache()
	rig := &readerRig{
		synth:   &fakeSynth{},
		player:  audio.NewMockPlayer(store, mock, audio.MockCallbacks{}),
		store:   store,
		signals: &signalLog{},
		cred:    &switchCredential{},
	}
	rig.cred.set("sessionid=1")

	r, err := NewReader(cfg, Deps{
		Synthesizer: rig.synth,
		Store:       store,
		Player:      rig.player,
		Credential:  rig.cred,
		Signals:     rig.signals,
	})
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	rig.reader = r

	t.Cleanup(func() {
		r.Close()
		rig.player.Close()
	})
	return rig
}

// block builds a section of units made of ten copies of one ideograph.
func block(id string, chars ...rune) ttypes.Section {
	lines := make([]string, len(chars))
	for i, c := range chars {
		lines[i] = strings.Repeat(string(c), 10)
	}
	return ttypes.NewSection(id, id, lines)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestReader_StartWithoutDocument(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)

	if err := rig.reader.Start(context.Background(), 0, 0, 0); !errors.Is(err, ErrNoDocument) {
		t.Errorf("expected ErrNoDocument, got %v", err)
	}

	rig.reader.Load([]ttypes.Section{block("a", '甲')})
	if err := rig.reader.Start(context.Background(), 3, 0, 0); !errors.Is(err, ErrSectionOutOfRange) {
		t.Errorf("expected ErrSectionOutOfRange, got %v", err)
	}
}

func TestReader_MissingCredentialPausesBeforeSynthesis(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)
	rig.cred.set("")
	rig.reader.Load([]ttypes.Section{block("a", '甲', '乙')})

	err := rig.reader.Start(context.Background(), 0, 0, 0)
	if !errors.Is(err, ttypes.ErrMissingCredential) || !ttypes.HasCode(err, ttypes.CodePrecondition) {
		t.Fatalf("expected a missing credential precondition error, got %v", err)
	}
	if n := rig.synth.calls(); n != 0 {
		t.Errorf("expected no synthesis, got %d calls", n)
	}
	if n := rig.signals.count(ttypes.SignalPauseMissingCredential); n != 1 {
		t.Errorf("expected one pause signal, got %d", n)
	}
	if !rig.reader.Waiting() {
		t.Error("reader should be waiting for a credential")
	}

	rig.cred.set("sessionid=2")
	if err := rig.reader.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	eventually(t, "playback after the credential arrives", func() bool {
		return rig.player.State() == ttypes.PlayerPlaying
	})
	if rig.synth.last().Credential != "sessionid=2" {
		t.Errorf("expected the new credential, got %q", rig.synth.last().Credential)
	}
}

func TestReader_AbortOnRejectedCredential(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)
	rig.synth.fail = func(ttypes.SynthesisRequest) error {
		return ttypes.NewError(ttypes.CodePrecondition, "credential required", ttypes.ErrMissingCredential)
	}
	rig.reader.Load([]ttypes.Section{block("a", '甲')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	eventually(t, "the reader to wait for a credential", rig.reader.Waiting)
	if n := rig.signals.count(ttypes.SignalPauseMissingCredential); n != 1 {
		t.Errorf("expected one pause signal, got %d", n)
	}
	if !rig.reader.Paused() {
		t.Error("playback should be paused")
	}
}

func TestReader_ReadsThroughDocument(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{ItemDuration: 50 * time.Millisecond}, nil)
	rig.reader.Load([]ttypes.Section{
		block("one", '甲', '乙', '丙'),
		block("two", '丁', '戊'),
	})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-rig.reader.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("document never finished, progress %+v", rig.reader.Progress())
	}

	if n := rig.signals.count(ttypes.SignalSectionEnd); n != 2 {
		t.Errorf("expected two section ends, got %d", n)
	}
	if idx := rig.reader.SectionIndex(); idx != 1 {
		t.Errorf("expected to finish on section 1, got %d", idx)
	}

	// prefetched during section one, then a cache hit for the main run
	if n := rig.synth.callsWith("丁"); n != 1 {
		t.Errorf("expected section two to be synthesized once, got %d", n)
	}
}

func TestReader_NoPrefetchWhenDisabled(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, func(c *Config) { c.Prefetch = false })
	rig.reader.Load([]ttypes.Section{block("one", '甲'), block("two", '丁')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "playback", func() bool { return rig.player.State() == ttypes.PlayerPlaying })

	time.Sleep(30 * time.Millisecond)
	if n := rig.synth.callsWith("丁"); n != 0 {
		t.Errorf("expected no prefetch, got %d calls", n)
	}
}

func TestReader_SetRateRestarts(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)
	rig.reader.Load([]ttypes.Section{block("a", '甲', '乙')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "first synthesis", func() bool { return rig.synth.calls() >= 1 })

	if err := rig.reader.SetRate(0.5); err != nil {
		t.Fatalf("SetRate failed: %v", err)
	}
	eventually(t, "synthesis at the new rate", func() bool {
		return rig.synth.calls() >= 2 && rig.synth.last().RateAdjust == 0.5
	})

	if err := rig.reader.SetRate(2); !errors.Is(err, ErrRateOutOfRange) {
		t.Errorf("expected ErrRateOutOfRange, got %v", err)
	}
	if got := rig.reader.Rate().Get(); got != 0.5 {
		t.Errorf("rate = %v, want 0.5", got)
	}
}

func TestReader_SeekWhilePausedAppliesOnResume(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, func(c *Config) {
		c.Chunk.Floor = 5
		c.Chunk.Step = 0
		c.Chunk.Ceiling = 5
	})
	rig.reader.Load([]ttypes.Section{block("a", '甲', '乙', '丙', '丁')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "playback", func() bool { return rig.player.State() == ttypes.PlayerPlaying })

	rig.reader.Pause()
	if err := rig.reader.Seek(0, 2); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if p := rig.reader.Progress(); p.Unit != 2 {
		t.Errorf("cursor unit = %d, want 2", p.Unit)
	}
	if rig.player.State() == ttypes.PlayerPlaying {
		t.Error("Seek while paused should not start playback")
	}

	if err := rig.reader.Resume(); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	eventually(t, "playback from the new position", func() bool {
		chunk, ok := rig.reader.coord.CurrentChunk()
		return ok && chunk.FirstUnit == 2 && rig.player.State() == ttypes.PlayerPlaying
	})
}

func TestReader_SetVoiceClearsCache(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)
	rig.reader.Load([]ttypes.Section{block("a", '甲')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "first synthesis", func() bool { return rig.synth.calls() == 1 })

	if err := rig.reader.SetVoice("qingche"); err != nil {
		t.Fatalf("SetVoice failed: %v", err)
	}
	eventually(t, "synthesis with the new voice", func() bool {
		return rig.synth.calls() == 2 && rig.synth.last().Voice == "qingche"
	})
}

func TestReader_SetVoiceDiscardsPendingPrefetch(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)

	held := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	rig.synth.hold = func(req ttypes.SynthesisRequest) <-chan struct{} {
		if strings.Contains(req.Text, "乙") && req.Voice == DefaultConfig().Voice {
			once.Do(func() { close(held) })
			return gate
		}
		return nil
	}
	rig.reader.Load([]ttypes.Section{block("a", '甲'), block("b", '乙')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	select {
	case <-held:
	case <-time.After(3 * time.Second):
		t.Fatal("prefetch of the next section never started")
	}

	if err := rig.reader.SetVoice("qingche"); err != nil {
		t.Fatalf("SetVoice failed: %v", err)
	}
	close(gate)

	eventually(t, "the next section prefetched with the new voice", func() bool {
		return rig.synth.callsBy("乙", "qingche") == 1
	})
	rig.reader.prefetch.Wait()

	for _, key := range rig.store.Keys() {
		if data, _ := rig.store.Get(key); strings.HasPrefix(string(data), "late:") {
			t.Errorf("audio from the old voice was cached: %q", data)
		}
	}
}

func TestReader_ReloadRewindsToFailingChunk(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, func(c *Config) {
		c.Chunk.Floor = 10
		c.Chunk.Step = 0
		c.Chunk.Ceiling = 10
	})
	rig.reader.Load([]ttypes.Section{block("a", '甲', '乙', '丙', '丁', '戊', '己', '庚', '辛', '壬', '癸')})

	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	eventually(t, "every chunk queued", func() bool {
		return rig.player.Len() == 10 && rig.player.State() == ttypes.PlayerPlaying
	})

	// 乙 through 己 fail to load; the fifth failure reloads at 己
	rig.player.FailLoads(5)
	if !rig.player.Complete() {
		t.Fatal("first chunk was not playing")
	}

	eventually(t, "the failing chunk synthesized again", func() bool {
		return rig.synth.callsWith("己") == 2
	})
	eventually(t, "playback resumed at the failing chunk", func() bool {
		chunk, ok := rig.reader.coord.CurrentChunk()
		return ok && chunk.FirstUnit == 5 && rig.player.State() == ttypes.PlayerPlaying
	})

	if n := rig.reader.coord.Reloads(); n != 1 {
		t.Errorf("expected one reload, got %d", n)
	}
	if p := rig.reader.Progress(); p.Unit != 5 || p.Offset != 0 {
		t.Errorf("cursor at unit %d offset %d, want unit 5 offset 0", p.Unit, p.Offset)
	}
	if n := rig.synth.callsWith("甲"); n != 1 {
		t.Errorf("chunks before the failure should not be synthesized again, got %d calls", n)
	}
	if n := rig.signals.count(ttypes.SignalFatal); n != 0 {
		t.Errorf("expected no fatal signal, got %d", n)
	}
}

func TestReader_CloseIsIdempotent(t *testing.T) {
	rig := newReaderRig(t, audio.MockConfig{Manual: true}, nil)
	rig.reader.Load([]ttypes.Section{block("a", '甲')})
	if err := rig.reader.Start(context.Background(), 0, 0, 0); err != nil {
		t.Fatal(err)
	}

	rig.reader.Close()
	rig.reader.Close()

	if err := rig.reader.Start(context.Background(), 0, 0, 0); !errors.Is(err, ErrReaderClosed) {
		t.Errorf("expected ErrReaderClosed, got %v", err)
	}
}
