package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// PlayerConfig contains configuration for the audio output.
type PlayerConfig struct {
	SampleRate int // must match the synthesized PCM
	Channels   int // 1 = mono, 2 = stereo
	BitDepth   int // 16 bits per sample
	BufferSize int // output buffer in bytes
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 24000, // backend PCM rate
		Channels:   1,
		BitDepth:   16,
		BufferSize: 4096,
	}
}

var supportedRates = map[int]bool{
	8000: true, 16000: true, 22050: true, 24000: true, 44100: true, 48000: true,
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	if !supportedRates[config.SampleRate] {
		return fmt.Errorf("unsupported sample rate %d Hz", config.SampleRate)
	}

	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}

	if config.BitDepth != 16 {
		return fmt.Errorf("bit depth must be 16, got %d", config.BitDepth)
	}

	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	return nil
}

// OtoPlayer plays a chunk playlist on the system audio device.
type OtoPlayer struct {
	*Playlist
	out *otoOutput
}

// NewOtoPlayer opens the audio device. Only one oto context may exist per
// process.
func NewOtoPlayer(source ttypes.MediaSource, config PlayerConfig, logger *log.Logger) (*OtoPlayer, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(config.BufferSize) * time.Second / time.Duration(config.SampleRate*config.Channels*2),
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	out := &otoOutput{context: ctx, config: config}
	out.SetVolume(1.0)

	return &OtoPlayer{
		Playlist: NewPlaylist(source, out, logger),
		out:      out,
	}, nil
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (p *OtoPlayer) SetVolume(volume float64) error {
	return p.out.SetVolume(volume)
}

// otoOutput renders s16le PCM through an oto player.
type otoOutput struct {
	context *oto.Context
	config  PlayerConfig

	mu     sync.Mutex
	player *oto.Player

	// keeps decoded audio alive while oto reads it
	activeStream *AudioStream

	// Timing and position tracking
	startTime  time.Time
	pausedAt   time.Duration
	totalPause time.Duration
	paused     bool

	watchStop chan struct{}

	volume atomic.Uint64 // float64 bits
}

// AudioStream holds decoded audio for the lifetime of playback.
type AudioStream struct {
	data     []byte
	reader   io.ReadSeeker
	duration time.Duration

	closeOnce sync.Once
}

func (o *otoOutput) Load(data []byte) (time.Duration, error) {
	pcm, err := DecodePCM(data, o.config.SampleRate, o.config.Channels)
	if err != nil {
		return 0, err
	}

	// own the bytes; the cache may replace its copy during playback
	owned := make([]byte, len(pcm))
	copy(owned, pcm)

	stream := &AudioStream{
		data:     owned,
		reader:   bytes.NewReader(owned),
		duration: pcmDuration(len(owned), o.config.SampleRate, o.config.Channels),
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.haltLocked()
	o.activeStream = stream
	return stream.duration, nil
}

func (o *otoOutput) Start(finished func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.activeStream == nil {
		return
	}

	if o.player != nil {
		if !o.paused {
			return
		}
		o.player.Play()
		o.totalPause += time.Since(o.startTime.Add(o.pausedAt + o.totalPause))
		o.paused = false
		return
	}

	player := o.context.NewPlayer(o.activeStream.reader)
	player.SetVolume(o.getVolume())
	player.Play()

	o.player = player
	o.startTime = time.Now()
	o.pausedAt = 0
	o.totalPause = 0
	o.paused = false

	stop := make(chan struct{})
	o.watchStop = stop
	go o.watch(player, stop, finished)
}

// watch polls for the end of the item. finished is called without the
// lock held since it re-enters the playlist.
func (o *otoOutput) watch(player *oto.Player, stop <-chan struct{}, finished func()) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.mu.Lock()
			current := o.player == player
			done := current && !o.paused && !player.IsPlaying() && player.BufferedSize() == 0
			o.mu.Unlock()

			if !current {
				return
			}
			if done {
				finished()
				return
			}
		}
	}
}

func (o *otoOutput) Pause() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil || o.paused {
		return
	}
	o.player.Pause()
	o.pausedAt = o.positionLocked()
	o.paused = true
}

func (o *otoOutput) Halt() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.haltLocked()
}

func (o *otoOutput) haltLocked() {
	if o.watchStop != nil {
		close(o.watchStop)
		o.watchStop = nil
	}

	if o.player != nil {
		o.player.Pause()
		o.player.Close()
		o.player = nil
	}

	if o.activeStream != nil {
		o.activeStream.Close()
		o.activeStream = nil
	}

	o.pausedAt = 0
	o.totalPause = 0
	o.paused = false
}

func (o *otoOutput) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.positionLocked()
}

func (o *otoOutput) positionLocked() time.Duration {
	if o.player == nil || o.activeStream == nil {
		return 0
	}
	if o.paused {
		return o.pausedAt
	}
	return min(time.Since(o.startTime)-o.totalPause, o.activeStream.duration)
}

// SetVolume sets the playback volume (0.0 to 1.0).
func (o *otoOutput) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	o.volume.Store(math.Float64bits(volume))

	o.mu.Lock()
	if o.player != nil {
		o.player.SetVolume(volume)
	}
	o.mu.Unlock()

	return nil
}

func (o *otoOutput) getVolume() float64 {
	return math.Float64frombits(o.volume.Load())
}

func (o *otoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.haltLocked()
	// oto v3 contexts cannot be closed; suspending releases the device
	if o.context != nil {
		if err := o.context.Suspend(); err != nil {
			return fmt.Errorf("failed to suspend audio context: %w", err)
		}
		o.context = nil
	}
	return nil
}

// Close drops the stream's data so it can be collected.
func (s *AudioStream) Close() {
	s.closeOnce.Do(func() {
		s.data = nil
		s.reader = nil
	})
}

// Duration returns the stream duration.
func (s *AudioStream) Duration() time.Duration {
	return s.duration
}

// Ensure OtoPlayer implements the Player interface
var _ ttypes.Player = (*OtoPlayer)(nil)
