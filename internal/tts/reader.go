package tts

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/audio"
	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/playback"
	"github.com/dgnsrekt/aloud/internal/scheduler"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Deps are the collaborators of a Reader. Synthesizer, Store, Player and
// Credential are required.
type Deps struct {
	Synthesizer ttypes.Synthesizer
	Store       ttypes.AudioStore
	Player      ttypes.Player
	Credential  CredentialProvider

	// Signals receives upward signals; may be nil
	Signals ttypes.SignalSink

	Metrics *metrics.Metrics
	Logger  *log.Logger
}

// Reader reads a document aloud section by section. It wires the chunk
// and prefetch schedulers to a playback coordinator and follows the
// cursor from one section to the next.
type Reader struct {
	config     Config
	store      ttypes.AudioStore
	player     ttypes.Player
	credential CredentialProvider
	signals    ttypes.SignalSink

	rate     *RateController
	cursor   *playback.Cursor
	coord    *playback.Coordinator
	main     *scheduler.ChunkScheduler
	prefetch *scheduler.PrefetchScheduler

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sections []ttypes.Section
	index    int
	voice    string
	pitch    float64
	started  bool
	waiting  bool // paused for a credential
	moved    bool // cursor moved while paused
	closed   bool

	done     chan struct{}
	doneOnce *sync.Once

	logger *log.Logger
}

// NewReader creates a reader. Nothing runs until Start.
func NewReader(cfg Config, deps Deps) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if deps.Synthesizer == nil || deps.Store == nil || deps.Player == nil || deps.Credential == nil {
		return nil, fmt.Errorf("synthesizer, store, player and credential are required")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}

	silence, err := audio.Silence(cfg.Format, cfg.Silence, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("unable to build silent placeholder: %w", err)
	}

	rate, err := NewRateController(cfg.Rate)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		config:     cfg,
		store:      deps.Store,
		player:     deps.Player,
		credential: deps.Credential,
		signals:    deps.Signals,
		rate:       rate,
		voice:      cfg.Voice,
		pitch:      cfg.Pitch,
		done:       make(chan struct{}),
		doneOnce:   &sync.Once{},
		logger:     deps.Logger,
	}

	sink := &readerSignals{reader: r}
	r.cursor = playback.NewCursor(sink, deps.Metrics)
	r.coord = playback.NewCoordinator(deps.Player, r.cursor, sink, cfg.CoordinatorConfig(), deps.Metrics, deps.Logger)
	r.coord.SetReloader(r.reload)

	schedCfg := cfg.SchedulerConfig(silence)
	if r.main, err = scheduler.NewChunkScheduler(schedCfg, deps.Synthesizer, deps.Store, r.coord, deps.Metrics, deps.Logger); err != nil {
		return nil, err
	}
	if r.prefetch, err = scheduler.NewPrefetchScheduler(schedCfg, deps.Synthesizer, deps.Store, deps.Metrics, deps.Logger); err != nil {
		return nil, err
	}

	return r, nil
}

// Load replaces the document. Any reading in progress stops.
func (r *Reader) Load(sections []ttypes.Section) {
	r.main.Stop()
	r.prefetch.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.coord.ClearQueue()
	r.sections = sections
	r.index = 0
	r.done = make(chan struct{})
	r.doneOnce = &sync.Once{}
}

// Start reads from unit and offset of section. Without a credential it
// signals the pause and returns a precondition error before any synthesis.
func (r *Reader) Start(ctx context.Context, section, unit, offset int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrReaderClosed
	}
	if len(r.sections) == 0 {
		return ErrNoDocument
	}
	if section < 0 || section >= len(r.sections) {
		return fmt.Errorf("%w: %d", ErrSectionOutOfRange, section)
	}

	if !r.started {
		r.ctx, r.cancel = context.WithCancel(ctx)
		r.coord.Start(r.ctx)
		r.started = true
	}

	r.index = section
	r.cursor.Load(r.sections[section], unit, offset)
	return r.restartLocked()
}

// restartLocked begins a main run at the cursor.
func (r *Reader) restartLocked() error {
	cred := r.credential.Credential()
	if cred == "" {
		r.waiting = true
		r.coord.Pause()
		err := ttypes.NewError(ttypes.CodePrecondition, "credential required", ttypes.ErrMissingCredential)
		r.emit(ttypes.Signal{Kind: ttypes.SignalPauseMissingCredential, Section: r.cursor.Section().ID, Chars: r.cursor.CharsRead(), Err: err})
		return err
	}

	r.waiting = false
	r.moved = false
	r.coord.Resume()

	section := r.sections[r.index]
	unit, offset := r.cursor.Position()
	if unit == 0 && offset == 0 {
		if t, ok := r.prefetch.HandoffTarget(section.ID); ok {
			r.main.Target().Set(t)
		}
	}

	r.logger.Debug("starting main run", "section", section.ID, "unit", unit, "offset", offset, "target", r.main.Target().Value())
	r.main.Start(r.ctx, section, unit, offset, r.runOptionsLocked(cred, r.index))
	return nil
}

func (r *Reader) runOptionsLocked(cred string, index int) scheduler.RunOptions {
	return scheduler.RunOptions{
		Credential: cred,
		Voice:      r.voice,
		Rate:       r.rate.Get(),
		Pitch:      r.pitch,
		Format:     r.config.Format,
		// both callbacks run while the run still holds its lock
		OnLastChunk: func() { go r.prefetchAfter(index) },
		OnAbort:     func(err error) { go r.abort(err) },
	}
}

// prefetchAfter warms the cache with the first page of the section after
// index.
func (r *Reader) prefetchAfter(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.config.Prefetch || index != r.index || index+1 >= len(r.sections) {
		return
	}

	next := r.sections[index+1]
	opts := r.runOptionsLocked(r.credential.Credential(), index+1)
	opts.OnLastChunk, opts.OnAbort = nil, nil

	r.logger.Debug("prefetching next section", "section", next.ID)
	r.prefetch.Start(r.ctx, next, r.main.Target().Value(), opts)
}

func (r *Reader) abort(err error) {
	if !ttypes.HasCode(err, ttypes.CodePrecondition) {
		r.logger.Error("reading stopped", "err", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.waiting = true
	r.coord.Pause()
	r.emit(ttypes.Signal{Kind: ttypes.SignalPauseMissingCredential, Section: r.cursor.Section().ID, Chars: r.cursor.CharsRead(), Err: err})
}

// Pause holds playback. Synthesis already scheduled carries on.
func (r *Reader) Pause() {
	r.coord.Pause()
}

// Resume continues after Pause. Reading restarts at the cursor when it
// was waiting for a credential or the cursor was moved meanwhile.
func (r *Reader) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrReaderClosed
	}
	if !r.started {
		return ErrNoDocument
	}
	if r.waiting || r.moved {
		return r.restartLocked()
	}
	r.coord.Resume()
	return nil
}

// Seek moves the cursor to unit of section. While paused the move takes
// effect on Resume.
func (r *Reader) Seek(section, unit int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if section < 0 || section >= len(r.sections) {
		return fmt.Errorf("%w: %d", ErrSectionOutOfRange, section)
	}
	if !r.started {
		return ErrNoDocument
	}

	r.index = section
	r.cursor.Load(r.sections[section], unit, 0)
	if r.coord.Paused() {
		r.moved = true
		return nil
	}
	return r.restartLocked()
}

// Stop cancels synthesis and drops queued audio. The cursor stays where
// it is.
func (r *Reader) Stop() {
	r.main.Stop()
	r.prefetch.Stop()
	r.coord.ClearQueue()
}

// SetRate changes the speech rate and restarts reading at the cursor.
func (r *Reader) SetRate(rate float64) error {
	if err := r.rate.Set(rate); err != nil {
		return err
	}
	return r.rateChanged()
}

// Faster steps the rate up.
func (r *Reader) Faster() error {
	r.rate.Faster()
	return r.rateChanged()
}

// Slower steps the rate down.
func (r *Reader) Slower() error {
	r.rate.Slower()
	return r.rateChanged()
}

// Rate returns the rate controller.
func (r *Reader) Rate() *RateController {
	return r.rate
}

func (r *Reader) rateChanged() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.main.Target().Reset()
	if !r.started || r.waiting {
		return nil
	}
	return r.restartLocked()
}

// SetVoice changes the voice. Cached audio is dropped since fingerprints
// do not cover the voice.
func (r *Reader) SetVoice(voice string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.voice = voice
	r.clearStoreLocked()
	r.main.Target().Reset()
	if !r.started || r.waiting {
		return nil
	}
	return r.restartLocked()
}

// reload is run by the coordinator after repeated playback errors. The
// cursor goes back to the start of the failing chunk.
func (r *Reader) reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || !r.started {
		return
	}

	r.logger.Warn("reloading section after playback errors", "section", r.cursor.Section().ID)
	r.clearStoreLocked()
	if chunk, ok := r.coord.CurrentChunk(); ok && chunk.Section == r.cursor.Section().ID {
		r.cursor.Rewind(chunk.FirstUnit, chunk.StartOffset)
	}
	r.main.Target().Reset()

	if err := r.restartLocked(); err != nil {
		r.logger.Warn("reload deferred", "err", err)
	}
}

// clearStoreLocked stops both runs, then empties the store. Runs never
// take r.mu.
func (r *Reader) clearStoreLocked() {
	r.main.Stop()
	r.prefetch.Stop()
	r.store.Clear()
}

// advance moves to the section after id once its last unit was read.
func (r *Reader) advance(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(r.sections) == 0 || r.sections[r.index].ID != id {
		return
	}

	if r.index+1 >= len(r.sections) {
		r.logger.Debug("document finished", "section", id)
		r.doneOnce.Do(func() { close(r.done) })
		return
	}

	r.index++
	r.cursor.Load(r.sections[r.index], 0, 0)
	if err := r.restartLocked(); err != nil {
		r.logger.Warn("unable to continue with next section", "err", err)
	}
}

// Done is closed when the last section has been read.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// SectionIndex returns the index of the section being read.
func (r *Reader) SectionIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index
}

// Waiting reports whether reading is paused for a credential.
func (r *Reader) Waiting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waiting
}

// Progress returns a snapshot of reading progress.
func (r *Reader) Progress() ttypes.Progress {
	return r.coord.Progress()
}

// Paused reports whether playback is held.
func (r *Reader) Paused() bool {
	return r.coord.Paused()
}

// Close stops reading. The player is left to its owner.
func (r *Reader) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancel := r.cancel
	r.mu.Unlock()

	r.main.Stop()
	r.prefetch.Stop()
	if cancel != nil {
		cancel()
	}
	r.coord.Close()
	r.player.Stop()
}

func (r *Reader) emit(sig ttypes.Signal) {
	if r.signals != nil {
		r.signals.Emit(sig)
	}
}

// readerSignals forwards signals to the host and moves to the next
// section when one ends.
type readerSignals struct {
	reader *Reader
}

func (s *readerSignals) Emit(sig ttypes.Signal) {
	s.reader.emit(sig)
	if sig.Kind == ttypes.SignalSectionEnd {
		go s.reader.advance(sig.Section)
	}
}
