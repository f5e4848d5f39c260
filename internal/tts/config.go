package tts

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/aloud/internal/audio"
	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/playback"
	"github.com/dgnsrekt/aloud/internal/scheduler"
	"github.com/dgnsrekt/aloud/internal/synth"
)

// Config contains all read-aloud configuration options.
type Config struct {
	// Voice and prosody
	Voice  string  `yaml:"voice" env:"ALOUD_VOICE" envDefault:"taozi"`
	Rate   float64 `yaml:"rate" env:"ALOUD_RATE" envDefault:"0"`
	Pitch  float64 `yaml:"pitch" env:"ALOUD_PITCH" envDefault:"0"`
	Format string  `yaml:"format" env:"ALOUD_FORMAT" envDefault:"pcm"`

	// Credential is the backend session cookie. CredentialFile takes
	// precedence and is watched for changes.
	Credential     string `yaml:"-" env:"ALOUD_CREDENTIAL"`
	CredentialFile string `yaml:"credential_file" env:"ALOUD_CREDENTIAL_FILE"`

	// Prefetch the next section's first page near the end of a section
	Prefetch bool `yaml:"prefetch" env:"ALOUD_PREFETCH" envDefault:"true"`

	// Silence is the length of the placeholder for failed chunks
	Silence time.Duration `yaml:"silence" env:"ALOUD_SILENCE" envDefault:"300ms"`

	Audio    AudioConfig    `yaml:"audio"`
	Chunk    ChunkConfig    `yaml:"chunk"`
	Synth    SynthConfig    `yaml:"synth"`
	Cache    CacheConfig    `yaml:"cache"`
	Playback PlaybackConfig `yaml:"playback"`
	Signals  SignalsConfig  `yaml:"signals"`
}

// AudioConfig describes the output device format.
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate" env:"ALOUD_AUDIO_SAMPLE_RATE" envDefault:"24000"`
	Channels   int     `yaml:"channels" env:"ALOUD_AUDIO_CHANNELS" envDefault:"1"`
	Volume     float64 `yaml:"volume" env:"ALOUD_AUDIO_VOLUME" envDefault:"1.0"`
}

// ChunkConfig contains chunk sizing and pacing settings.
type ChunkConfig struct {
	Floor            int           `yaml:"floor" env:"ALOUD_CHUNK_FLOOR" envDefault:"301"`
	Step             int           `yaml:"step" env:"ALOUD_CHUNK_STEP" envDefault:"200"`
	Ceiling          int           `yaml:"ceiling" env:"ALOUD_CHUNK_CEILING" envDefault:"700"`
	CharDuration     time.Duration `yaml:"char_duration" env:"ALOUD_CHUNK_CHAR_DURATION" envDefault:"200ms"`
	PrefetchFraction float64       `yaml:"prefetch_fraction" env:"ALOUD_CHUNK_PREFETCH_FRACTION" envDefault:"0.25"`
	LookaheadChars   int           `yaml:"lookahead_chars" env:"ALOUD_CHUNK_LOOKAHEAD_CHARS" envDefault:"1000"`
	PrefetchShrink   bool          `yaml:"prefetch_shrink" env:"ALOUD_CHUNK_PREFETCH_SHRINK" envDefault:"true"`
	SkipPattern      string        `yaml:"skip_pattern" env:"ALOUD_CHUNK_SKIP_PATTERN" envDefault:"^[\\s\\p{C}\\p{P}\\p{Z}\\p{S}]+$"`
}

// SynthConfig contains synthesis backend settings.
type SynthConfig struct {
	Endpoint          string        `yaml:"endpoint" env:"ALOUD_SYNTH_ENDPOINT" envDefault:"wss://ws-samantha.doubao.com/samantha/audio/tts"`
	Timeout           time.Duration `yaml:"timeout" env:"ALOUD_SYNTH_TIMEOUT" envDefault:"60s"`
	BufferSize        int           `yaml:"buffer_size" env:"ALOUD_SYNTH_BUFFER_SIZE" envDefault:"8192"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"ALOUD_SYNTH_REQUESTS_PER_MINUTE" envDefault:"0"`
}

// CacheConfig contains the optional disk cache settings.
type CacheConfig struct {
	Dir             string        `yaml:"dir" env:"ALOUD_CACHE_DIR"`
	MaxSize         int64         `yaml:"max_size" env:"ALOUD_CACHE_MAX_SIZE" envDefault:"536870912"`
	Compression     int           `yaml:"compression" env:"ALOUD_CACHE_COMPRESSION" envDefault:"3"`
	TTL             time.Duration `yaml:"ttl" env:"ALOUD_CACHE_TTL" envDefault:"168h"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"ALOUD_CACHE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// PlaybackConfig contains error recovery settings.
type PlaybackConfig struct {
	MaxErrors   int           `yaml:"max_errors" env:"ALOUD_PLAYBACK_MAX_ERRORS" envDefault:"5"`
	ReloadDelay time.Duration `yaml:"reload_delay" env:"ALOUD_PLAYBACK_RELOAD_DELAY" envDefault:"2s"`
}

// SignalsConfig selects where upward signals are published.
type SignalsConfig struct {
	NATSURL string `yaml:"nats_url" env:"ALOUD_SIGNALS_NATS_URL"`
	Subject string `yaml:"subject" env:"ALOUD_SIGNALS_SUBJECT" envDefault:"aloud"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	sched := scheduler.DefaultConfig()
	client := synth.DefaultConfig()
	store := cache.DefaultConfig()
	coord := playback.DefaultConfig()
	out := audio.DefaultPlayerConfig()

	return Config{
		Voice:    synth.DefaultVoice,
		Format:   "pcm",
		Prefetch: true,
		Silence:  300 * time.Millisecond,
		Audio: AudioConfig{
			SampleRate: out.SampleRate,
			Channels:   out.Channels,
			Volume:     1.0,
		},
		Chunk: ChunkConfig{
			Floor:            sched.Floor,
			Step:             sched.Step,
			Ceiling:          sched.Ceiling,
			CharDuration:     sched.CharDuration,
			PrefetchFraction: sched.PrefetchFraction,
			LookaheadChars:   sched.LookaheadChars,
			PrefetchShrink:   sched.PrefetchShrink,
			SkipPattern:      sched.SkipPattern,
		},
		Synth: SynthConfig{
			Endpoint:   client.Endpoint,
			Timeout:    client.Timeout,
			BufferSize: client.BufferSize,
		},
		Cache: CacheConfig{
			MaxSize:         store.DiskCapacity,
			Compression:     store.CompressionLevel,
			TTL:             store.TTL,
			CleanupInterval: store.CleanupInterval,
		},
		Playback: PlaybackConfig{
			MaxErrors:   coord.MaxErrors,
			ReloadDelay: coord.ReloadDelay,
		},
		Signals: SignalsConfig{Subject: "aloud"},
	}
}

// ConfigFromEnv returns the defaults overridden by ALOUD_* variables.
func ConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromViper layers the config file and bound flags over the
// environment.
func LoadConfigFromViper() (Config, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("rate") {
		cfg.Rate = viper.GetFloat64("rate")
	}
	if viper.IsSet("pitch") {
		cfg.Pitch = viper.GetFloat64("pitch")
	}
	if viper.IsSet("format") {
		cfg.Format = viper.GetString("format")
	}
	if viper.IsSet("credential_file") {
		cfg.CredentialFile = viper.GetString("credential_file")
	}
	if viper.IsSet("prefetch") {
		cfg.Prefetch = viper.GetBool("prefetch")
	}
	if viper.IsSet("silence") {
		cfg.Silence = viper.GetDuration("silence")
	}

	// Audio settings
	if viper.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = viper.GetInt("audio.sample_rate")
	}
	if viper.IsSet("audio.channels") {
		cfg.Audio.Channels = viper.GetInt("audio.channels")
	}
	if viper.IsSet("audio.volume") {
		cfg.Audio.Volume = viper.GetFloat64("audio.volume")
	}

	// Chunk settings
	if viper.IsSet("chunk.floor") {
		cfg.Chunk.Floor = viper.GetInt("chunk.floor")
	}
	if viper.IsSet("chunk.step") {
		cfg.Chunk.Step = viper.GetInt("chunk.step")
	}
	if viper.IsSet("chunk.ceiling") {
		cfg.Chunk.Ceiling = viper.GetInt("chunk.ceiling")
	}
	if viper.IsSet("chunk.char_duration") {
		cfg.Chunk.CharDuration = viper.GetDuration("chunk.char_duration")
	}
	if viper.IsSet("chunk.prefetch_fraction") {
		cfg.Chunk.PrefetchFraction = viper.GetFloat64("chunk.prefetch_fraction")
	}
	if viper.IsSet("chunk.lookahead_chars") {
		cfg.Chunk.LookaheadChars = viper.GetInt("chunk.lookahead_chars")
	}
	if viper.IsSet("chunk.prefetch_shrink") {
		cfg.Chunk.PrefetchShrink = viper.GetBool("chunk.prefetch_shrink")
	}
	if viper.IsSet("chunk.skip_pattern") {
		cfg.Chunk.SkipPattern = viper.GetString("chunk.skip_pattern")
	}

	// Synthesis settings
	if viper.IsSet("synth.endpoint") {
		cfg.Synth.Endpoint = viper.GetString("synth.endpoint")
	}
	if viper.IsSet("synth.timeout") {
		cfg.Synth.Timeout = viper.GetDuration("synth.timeout")
	}
	if viper.IsSet("synth.buffer_size") {
		cfg.Synth.BufferSize = viper.GetInt("synth.buffer_size")
	}
	if viper.IsSet("synth.requests_per_minute") {
		cfg.Synth.RequestsPerMinute = viper.GetInt("synth.requests_per_minute")
	}

	// Cache settings
	if viper.IsSet("cache.dir") {
		cfg.Cache.Dir = viper.GetString("cache.dir")
	}
	if viper.IsSet("cache.max_size") {
		cfg.Cache.MaxSize = viper.GetInt64("cache.max_size")
	}
	if viper.IsSet("cache.compression") {
		cfg.Cache.Compression = viper.GetInt("cache.compression")
	}
	if viper.IsSet("cache.ttl") {
		cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	}
	if viper.IsSet("cache.cleanup_interval") {
		cfg.Cache.CleanupInterval = viper.GetDuration("cache.cleanup_interval")
	}

	// Playback settings
	if viper.IsSet("playback.max_errors") {
		cfg.Playback.MaxErrors = viper.GetInt("playback.max_errors")
	}
	if viper.IsSet("playback.reload_delay") {
		cfg.Playback.ReloadDelay = viper.GetDuration("playback.reload_delay")
	}

	// Signal settings
	if viper.IsSet("signals.nats_url") {
		cfg.Signals.NATSURL = viper.GetString("signals.nats_url")
	}
	if viper.IsSet("signals.subject") {
		cfg.Signals.Subject = viper.GetString("signals.subject")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// SetDefaults registers the defaults with viper so the effective
// configuration can be printed.
func SetDefaults() {
	d := DefaultConfig()

	viper.SetDefault("voice", d.Voice)
	viper.SetDefault("rate", d.Rate)
	viper.SetDefault("pitch", d.Pitch)
	viper.SetDefault("format", d.Format)
	viper.SetDefault("prefetch", d.Prefetch)
	viper.SetDefault("silence", d.Silence.String())

	viper.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	viper.SetDefault("audio.channels", d.Audio.Channels)
	viper.SetDefault("audio.volume", d.Audio.Volume)

	viper.SetDefault("chunk.floor", d.Chunk.Floor)
	viper.SetDefault("chunk.step", d.Chunk.Step)
	viper.SetDefault("chunk.ceiling", d.Chunk.Ceiling)
	viper.SetDefault("chunk.char_duration", d.Chunk.CharDuration.String())
	viper.SetDefault("chunk.prefetch_fraction", d.Chunk.PrefetchFraction)
	viper.SetDefault("chunk.lookahead_chars", d.Chunk.LookaheadChars)
	viper.SetDefault("chunk.prefetch_shrink", d.Chunk.PrefetchShrink)
	viper.SetDefault("chunk.skip_pattern", d.Chunk.SkipPattern)

	viper.SetDefault("synth.endpoint", d.Synth.Endpoint)
	viper.SetDefault("synth.timeout", d.Synth.Timeout.String())
	viper.SetDefault("synth.buffer_size", d.Synth.BufferSize)
	viper.SetDefault("synth.requests_per_minute", d.Synth.RequestsPerMinute)

	viper.SetDefault("cache.max_size", d.Cache.MaxSize)
	viper.SetDefault("cache.compression", d.Cache.Compression)
	viper.SetDefault("cache.ttl", d.Cache.TTL.String())
	viper.SetDefault("cache.cleanup_interval", d.Cache.CleanupInterval.String())

	viper.SetDefault("playback.max_errors", d.Playback.MaxErrors)
	viper.SetDefault("playback.reload_delay", d.Playback.ReloadDelay.String())

	viper.SetDefault("signals.subject", d.Signals.Subject)
}

// SchedulerConfig converts the chunk settings. silence is the placeholder
// audio for failed chunks.
func (c Config) SchedulerConfig(silence []byte) scheduler.Config {
	return scheduler.Config{
		Floor:            c.Chunk.Floor,
		Step:             c.Chunk.Step,
		Ceiling:          c.Chunk.Ceiling,
		CharDuration:     c.Chunk.CharDuration,
		PrefetchFraction: c.Chunk.PrefetchFraction,
		LookaheadChars:   c.Chunk.LookaheadChars,
		PrefetchShrink:   c.Chunk.PrefetchShrink,
		SkipPattern:      c.Chunk.SkipPattern,
		Silence:          silence,
	}
}

// SynthClientConfig converts the backend settings.
func (c Config) SynthClientConfig() synth.Config {
	return synth.Config{
		Endpoint:          c.Synth.Endpoint,
		Timeout:           c.Synth.Timeout,
		BufferSize:        c.Synth.BufferSize,
		RequestsPerMinute: c.Synth.RequestsPerMinute,
	}
}

// CacheStoreConfig converts the cache settings. An empty Dir keeps the
// cache in memory only.
func (c Config) CacheStoreConfig() cache.Config {
	return cache.Config{
		DiskPath:         c.Cache.Dir,
		DiskCapacity:     c.Cache.MaxSize,
		CompressionLevel: c.Cache.Compression,
		TTL:              c.Cache.TTL,
		CleanupInterval:  c.Cache.CleanupInterval,
	}
}

// CoordinatorConfig converts the recovery settings.
func (c Config) CoordinatorConfig() playback.Config {
	return playback.Config{
		MaxErrors:   c.Playback.MaxErrors,
		ReloadDelay: c.Playback.ReloadDelay,
	}
}

// PlayerConfig converts the output format.
func (c Config) PlayerConfig() audio.PlayerConfig {
	cfg := audio.DefaultPlayerConfig()
	cfg.SampleRate = c.Audio.SampleRate
	cfg.Channels = c.Audio.Channels
	return cfg
}
