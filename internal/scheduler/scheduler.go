package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// DefaultSkipPattern matches text made only of whitespace, punctuation,
// symbols and control characters.
const DefaultSkipPattern = `^[\s\p{C}\p{P}\p{Z}\p{S}]+$`

// Config contains scheduling parameters.
type Config struct {
	// Chunk size target in characters
	Floor   int
	Step    int
	Ceiling int

	// CharDuration is the estimated playback time of one character
	CharDuration time.Duration

	// PrefetchFraction of the last chunk's delay elapses before the
	// next-section prefetch is triggered
	PrefetchFraction float64

	// LookaheadChars bounds the prefetch window when a section has no pages
	LookaheadChars int

	// PrefetchShrink lowers the prefetch target to a short first chunk
	PrefetchShrink bool

	// SkipPattern removes unreadable text before synthesis
	SkipPattern string

	// Silence is stored in place of audio that could not be synthesized
	Silence []byte
}

// DefaultConfig returns the default scheduling parameters.
func DefaultConfig() Config {
	return Config{
		Floor:            301,
		Step:             200,
		Ceiling:          700,
		CharDuration:     200 * time.Millisecond,
		PrefetchFraction: 0.25,
		LookaheadChars:   1000,
		PrefetchShrink:   true,
		SkipPattern:      DefaultSkipPattern,
	}
}

func (c Config) skipRegexp() (*regexp.Regexp, error) {
	if c.SkipPattern == "" {
		return nil, nil
	}
	re, err := regexp.Compile(c.SkipPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid skip pattern: %w", err)
	}
	return re, nil
}

// Sink receives chunks from the main run. The playback coordinator
// implements it.
type Sink interface {
	// Enqueue appends a ready chunk to the player queue.
	Enqueue(chunk ttypes.Chunk)

	// ClearQueue drops every queued item.
	ClearQueue()

	// Current returns the fingerprint loaded in the player, if any.
	Current() string

	// Nudge moves the cursor to an intra-chunk unit boundary.
	Nudge(chunk ttypes.Chunk, boundary int)
}

// RunOptions carry the synthesis settings of one run.
type RunOptions struct {
	Credential string
	Voice      string
	Rate       float64
	Pitch      float64
	Format     string

	// OnLastChunk is called once, a fraction of the way through the
	// estimated playback of the run's last chunk.
	OnLastChunk func()

	// OnAbort is called when the run stops on an error other than
	// cancellation.
	OnAbort func(err error)
}

// rateKey is the rate component of chunk fingerprints.
func (o RunOptions) rateKey() int {
	return int(o.Rate * 100)
}

// ChunkScheduler produces chunks for the section being read and hands them
// to the sink in order.
type ChunkScheduler struct {
	config   Config
	resolver *resolver
	sink     Sink
	target   *SizeTarget

	lock  runLock
	state atomic.Int32

	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewChunkScheduler creates the main scheduler.
func NewChunkScheduler(cfg Config, s ttypes.Synthesizer, store ttypes.AudioStore, sink Sink, m *metrics.Metrics, logger *log.Logger) (*ChunkScheduler, error) {
	if s == nil || store == nil || sink == nil {
		return nil, fmt.Errorf("synthesizer, store and sink are required")
	}
	skip, err := cfg.skipRegexp()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	return &ChunkScheduler{
		config: cfg,
		resolver: &resolver{
			kind:    "main",
			synth:   s,
			store:   store,
			skip:    skip,
			silence: cfg.Silence,
			logger:  logger,
			metrics: m,
		},
		sink:    sink,
		target:  NewSizeTarget(cfg.Floor, cfg.Step, cfg.Ceiling),
		logger:  logger,
		metrics: m,
	}, nil
}

// Target returns the adaptive chunk size target.
func (s *ChunkScheduler) Target() *SizeTarget {
	return s.target
}

// State returns the phase of the active run.
func (s *ChunkScheduler) State() State {
	return State(s.state.Load())
}

// Start cancels any active run, evicts cache entries played before the
// current item, clears the player queue and begins a run at units[from],
// offset characters in.
func (s *ChunkScheduler) Start(ctx context.Context, section ttypes.Section, from, offset int, opts RunOptions) {
	runCtx, release := s.lock.begin(ctx)

	if cur := s.sink.Current(); cur != "" {
		if n := s.resolver.store.EvictBefore(cur); n > 0 {
			s.logger.Debug("evicted played audio", "count", n)
		}
	}
	s.sink.ClearQueue()
	s.metrics.ObserveRun("main")

	go func() {
		defer release()
		s.run(runCtx, section, from, offset, opts)
	}()
}

// Stop cancels the active run and waits for it to exit.
func (s *ChunkScheduler) Stop() {
	s.lock.stop()
}

// Wait blocks until the active run finishes.
func (s *ChunkScheduler) Wait() {
	s.lock.wait()
}

func (s *ChunkScheduler) run(ctx context.Context, section ttypes.Section, from, offset int, opts RunOptions) {
	var timers sync.WaitGroup
	defer func() {
		timers.Wait()
		s.state.Store(int32(StateIdle))
	}()

	chunker := NewChunker(section.Units, from, offset, len(section.Units))
	s.logger.Debug("main run started", "section", section.ID, "from", from, "offset", offset, "target", s.target.Value())

	for ctx.Err() == nil {
		s.state.Store(int32(StateAccumulating))
		chunk, ok := chunker.Next(s.target.Value())
		if !ok {
			return
		}
		chunk.Section = section.ID

		s.state.Store(int32(StateAwaitingSynthesis))
		started := time.Now()
		synthesized, err := s.resolver.resolve(ctx, &chunk, opts)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("main run aborted", "section", section.ID, "err", err)
				if opts.OnAbort != nil {
					opts.OnAbort(err)
				}
			}
			return
		}
		if synthesized {
			s.target.Grow()
		}

		s.state.Store(int32(StateDelivering))
		s.sink.Enqueue(chunk)
		s.metrics.ObserveChunk("main", chunk.Length, chunk.Silent)

		var delay time.Duration
		if !chunk.Cached {
			delay = max(time.Duration(chunk.Length)*s.config.CharDuration-time.Since(started), 0)
		}

		s.scheduleNudges(ctx, &timers, section, chunk)

		if chunker.Done() && opts.OnLastChunk != nil {
			after := time.Duration(float64(delay) * s.config.PrefetchFraction)
			s.logger.Debug("last chunk delivered", "section", section.ID, "prefetch_in", after)
			timers.Add(1)
			go func() {
				defer timers.Done()
				if sleep(ctx, after) {
					opts.OnLastChunk()
				}
			}()
		}

		if !sleep(ctx, delay) {
			return
		}
	}
}

// scheduleNudges walks the chunk's units at the estimated reading pace and
// nudges the cursor at each inner boundary.
func (s *ChunkScheduler) scheduleNudges(ctx context.Context, timers *sync.WaitGroup, section ttypes.Section, chunk ttypes.Chunk) {
	if chunk.FirstUnit == chunk.LastUnit {
		return
	}

	timers.Add(1)
	go func() {
		defer timers.Done()
		for i := chunk.FirstUnit; i < chunk.LastUnit; i++ {
			if !sleep(ctx, time.Duration(unitLen(chunk, section.Units, i))*s.config.CharDuration) {
				return
			}
			s.sink.Nudge(chunk, i+1)
		}
	}()
}

// sleep waits for d and reports whether ctx is still live.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
