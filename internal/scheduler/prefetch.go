package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// PrefetchScheduler synthesizes the first chunk of the next section into
// the cache ahead of need. It never talks to the player; the main scheduler
// finds its work as cache hits.
type PrefetchScheduler struct {
	config   Config
	resolver *resolver
	target   *SizeTarget

	lock  runLock
	state atomic.Int32

	// target left behind for the section last prefetched
	handoffMu      sync.Mutex
	handoffSection string
	handoffTarget  int

	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewPrefetchScheduler creates a prefetch scheduler writing into store.
func NewPrefetchScheduler(cfg Config, s ttypes.Synthesizer, store ttypes.AudioStore, m *metrics.Metrics, logger *log.Logger) (*PrefetchScheduler, error) {
	if s == nil || store == nil {
		return nil, fmt.Errorf("synthesizer and store are required")
	}
	skip, err := cfg.skipRegexp()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}

	return &PrefetchScheduler{
		config: cfg,
		resolver: &resolver{
			kind:    "prefetch",
			synth:   s,
			store:   store,
			skip:    skip,
			silence: cfg.Silence,
			logger:  logger,
			metrics: m,
		},
		target:  NewSizeTarget(cfg.Floor, cfg.Step, cfg.Ceiling),
		logger:  logger,
		metrics: m,
	}, nil
}

// State returns the phase of the active run.
func (p *PrefetchScheduler) State() State {
	return State(p.state.Load())
}

// Start cancels any active prefetch and begins one for section, with the
// size target seeded from the main scheduler.
func (p *PrefetchScheduler) Start(ctx context.Context, section ttypes.Section, seed int, opts RunOptions) {
	runCtx, release := p.lock.begin(ctx)
	p.metrics.ObserveRun("prefetch")

	go func() {
		defer release()
		p.run(runCtx, section, seed, opts)
	}()
}

// Stop cancels the active prefetch and waits for it to exit.
func (p *PrefetchScheduler) Stop() {
	p.lock.stop()
}

// Wait blocks until the active prefetch finishes.
func (p *PrefetchScheduler) Wait() {
	p.lock.wait()
}

// HandoffTarget returns the target the prefetch settled on for sectionID.
// Starting the main run of that section at unit 0 with this target
// reproduces the prefetched chunk.
func (p *PrefetchScheduler) HandoffTarget(sectionID string) (int, bool) {
	p.handoffMu.Lock()
	defer p.handoffMu.Unlock()

	if p.handoffSection == "" || p.handoffSection != sectionID {
		return 0, false
	}
	return p.handoffTarget, true
}

func (p *PrefetchScheduler) run(ctx context.Context, section ttypes.Section, seed int, opts RunOptions) {
	defer p.state.Store(int32(StateIdle))

	p.state.Store(int32(StateAccumulating))
	p.target.Set(seed)

	end := LookaheadEnd(section, p.config.LookaheadChars)
	chunk, ok := NewChunker(section.Units, 0, 0, end).Next(p.target.Value())
	if !ok {
		return
	}
	chunk.Section = section.ID

	if p.config.PrefetchShrink && chunk.Length < p.target.Value() {
		p.target.Set(chunk.Length)
	}

	p.handoffMu.Lock()
	p.handoffSection, p.handoffTarget = section.ID, p.target.Value()
	p.handoffMu.Unlock()

	p.state.Store(int32(StateAwaitingSynthesis))
	if _, err := p.resolver.resolve(ctx, &chunk, opts); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("prefetch aborted", "section", section.ID, "err", err)
		}
		return
	}

	p.metrics.ObserveChunk("prefetch", chunk.Length, chunk.Silent)
	p.logger.Debug("prefetch complete", "section", section.ID, "units", chunk.LastUnit+1,
		"length", chunk.Length, "cached", chunk.Cached, "fingerprint", chunk.Fingerprint)
}

// LookaheadEnd returns the exclusive unit bound of the prefetch window:
// the units that start before the second page, or before chars
// characters when the section has no pages. At least one unit is
// included.
func LookaheadEnd(section ttypes.Section, chars int) int {
	limit := chars
	if len(section.PageStarts) > 1 {
		limit = section.PageStarts[1]
	}

	pos := section.BaseChars
	for i, u := range section.Units {
		if i > 0 && pos >= limit {
			return i
		}
		pos += u.Len() + 1
	}
	return len(section.Units)
}
