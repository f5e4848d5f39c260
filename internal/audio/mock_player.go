package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// ErrSimulatedLoad is returned by scripted load failures.
var ErrSimulatedLoad = errors.New("simulated load error")

// MockConfig controls simulated playback.
type MockConfig struct {
	// ItemDuration fixes every item's duration. When zero the duration is
	// derived from the byte count at BytesPerSecond.
	ItemDuration   time.Duration
	BytesPerSecond int

	// Manual items never finish on their own; call Complete.
	Manual bool
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnLoad  func(audio []byte)
	OnStart func()
	OnPause func()
	OnHalt  func()
}

// MockPlayer is a Playlist over a simulated output. It produces the same
// event sequence as a real player without making sound.
type MockPlayer struct {
	*Playlist
	out *mockOutput
}

// NewMockPlayer creates a mock player reading items from source.
func NewMockPlayer(source ttypes.MediaSource, cfg MockConfig, callbacks MockCallbacks) *MockPlayer {
	if cfg.BytesPerSecond <= 0 {
		// 44.1kHz 16-bit mono
		cfg.BytesPerSecond = 88200
	}
	out := &mockOutput{config: cfg, callbacks: callbacks}
	return &MockPlayer{
		Playlist: NewPlaylist(source, out, nil),
		out:      out,
	}
}

// Complete finishes the running item as if it had played to the end.
// It reports whether an item was running.
func (mp *MockPlayer) Complete() bool {
	return mp.out.complete()
}

// FailLoads makes the next n loads fail.
func (mp *MockPlayer) FailLoads(n int) {
	mp.out.failures.Store(int64(n))
}

// LoadedAudio returns a copy of the loaded item's bytes.
func (mp *MockPlayer) LoadedAudio() []byte {
	mp.out.mu.Lock()
	defer mp.out.mu.Unlock()

	if mp.out.loaded == nil {
		return nil
	}
	data := make([]byte, len(mp.out.loaded))
	copy(data, mp.out.loaded)
	return data
}

// WaitForState polls until the player reaches state or timeout elapses.
func (mp *MockPlayer) WaitForState(state ttypes.PlayerState, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if mp.State() == state {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return mp.State() == state
}

// GetMetrics returns call counters for testing.
func (mp *MockPlayer) GetMetrics() MockPlayerMetrics {
	return MockPlayerMetrics{
		LoadCount:  mp.out.loads.Load(),
		StartCount: mp.out.starts.Load(),
		PauseCount: mp.out.pauses.Load(),
		HaltCount:  mp.out.halts.Load(),
	}
}

// MockPlayerMetrics contains playback metrics for testing.
type MockPlayerMetrics struct {
	LoadCount  int64
	StartCount int64
	PauseCount int64
	HaltCount  int64
}

// mockOutput simulates rendering with a timer.
type mockOutput struct {
	config    MockConfig
	callbacks MockCallbacks

	mu        sync.Mutex
	loaded    []byte
	duration  time.Duration
	elapsed   time.Duration
	startedAt time.Time
	running   bool
	timer     *time.Timer
	finished  func()

	failures atomic.Int64

	loads  atomic.Int64
	starts atomic.Int64
	pauses atomic.Int64
	halts  atomic.Int64
}

func (o *mockOutput) Load(data []byte) (time.Duration, error) {
	o.loads.Add(1)
	if o.failures.Add(-1) >= 0 {
		return 0, ErrSimulatedLoad
	}
	o.failures.Store(0)

	if len(data) == 0 {
		return 0, errors.New("audio data is empty")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.stopLocked()
	o.loaded = make([]byte, len(data))
	copy(o.loaded, data)
	o.elapsed = 0

	o.duration = o.config.ItemDuration
	if o.duration == 0 {
		o.duration = time.Duration(len(data)) * time.Second / time.Duration(o.config.BytesPerSecond)
	}

	if o.callbacks.OnLoad != nil {
		o.callbacks.OnLoad(data)
	}
	return o.duration, nil
}

func (o *mockOutput) Start(finished func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running || o.loaded == nil {
		return
	}
	o.starts.Add(1)
	o.running = true
	o.finished = finished
	o.startedAt = time.Now()

	if !o.config.Manual {
		o.timer = time.AfterFunc(max(o.duration-o.elapsed, 0), func() { o.complete() })
	}
	if o.callbacks.OnStart != nil {
		o.callbacks.OnStart()
	}
}

func (o *mockOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	o.pauses.Add(1)
	o.elapsed += time.Since(o.startedAt)
	o.stopLocked()

	if o.callbacks.OnPause != nil {
		o.callbacks.OnPause()
	}
}

func (o *mockOutput) Halt() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.halts.Add(1)
	o.stopLocked()
	o.loaded = nil
	o.elapsed = 0

	if o.callbacks.OnHalt != nil {
		o.callbacks.OnHalt()
	}
}

func (o *mockOutput) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	pos := o.elapsed
	if o.running {
		pos += time.Since(o.startedAt)
	}
	return min(pos, o.duration)
}

func (o *mockOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	return nil
}

// complete ends the running item. finished is called without the lock
// held since it re-enters the playlist.
func (o *mockOutput) complete() bool {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return false
	}
	o.stopLocked()
	o.elapsed = o.duration
	finished := o.finished
	o.mu.Unlock()

	if finished != nil {
		finished()
	}
	return true
}

func (o *mockOutput) stopLocked() {
	o.running = false
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}

// Ensure MockPlayer implements the Player interface
var _ ttypes.Player = (*MockPlayer)(nil)
