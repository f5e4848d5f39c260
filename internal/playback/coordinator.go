package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/cache"
	"github.com/dgnsrekt/aloud/internal/metrics"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Config controls error recovery and progress reporting.
type Config struct {
	// MaxErrors is the number of playback errors that triggers a reload,
	// or a fatal stop once a reload has happened.
	MaxErrors int

	// ReloadDelay is the wait before the reloader runs.
	ReloadDelay time.Duration

	// ProgressInterval is the shortest tick of the page-sync job.
	ProgressInterval time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxErrors:        5,
		ReloadDelay:      2 * time.Second,
		ProgressInterval: 10 * time.Millisecond,
	}
}

// Coordinator owns a player. Chunks enqueued by the scheduler become
// playlist items; player events move the cursor and drive error recovery.
// Events are handled one at a time on the loop started by Start.
type Coordinator struct {
	config  Config
	player  ttypes.Player
	cursor  *Cursor
	signals ttypes.SignalSink

	mu       sync.Mutex
	chunks   map[string]ttypes.Chunk // item id -> chunk
	seq      int
	current  string // item id
	paused   bool
	errors   int
	reloaded bool
	fatal    bool
	reloads  int

	reloader    func()
	reloadTimer *time.Timer

	progressCancel context.CancelFunc

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger  *log.Logger
	metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator for player. Signals raised by the
// coordinator itself go to signals; the cursor carries its own sink.
func NewCoordinator(player ttypes.Player, cursor *Cursor, signals ttypes.SignalSink, cfg Config, m *metrics.Metrics, logger *log.Logger) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = def.MaxErrors
	}
	if cfg.ReloadDelay < 0 {
		cfg.ReloadDelay = 0
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = def.ProgressInterval
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Coordinator{
		config:  cfg,
		player:  player,
		cursor:  cursor,
		signals: signals,
		chunks:  make(map[string]ttypes.Chunk),
		logger:  logger,
		metrics: m,
	}
}

// SetReloader sets the function run after the error threshold is first
// reached.
func (c *Coordinator) SetReloader(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloader = fn
}

// Start runs the event loop until ctx ends or Close is called.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop(ctx)
	}()
}

// Close stops the loop and any pending timers. The player is not closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
		c.reloadTimer = nil
	}
	c.stopProgressLocked()
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Coordinator) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.player.Events():
			if !ok {
				return
			}
			c.handle(ctx, ev)
		}
	}
}

// Enqueue appends chunk to the playlist and starts loading when the
// player is waiting for work.
func (c *Coordinator) Enqueue(chunk ttypes.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	id := fmt.Sprintf("%s/%d", chunk.Fingerprint, c.seq)
	c.chunks[id] = chunk

	c.player.Add(ttypes.MediaItem{ID: id, URI: cache.MediaURI(chunk.Fingerprint)})
	if c.current == "" {
		c.current = c.player.CurrentID()
	}

	switch c.player.State() {
	case ttypes.PlayerIdle, ttypes.PlayerEnded:
		c.player.Prepare()
	}
}

// ClearQueue drops every pending item.
func (c *Coordinator) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
}

func (c *Coordinator) clearLocked() {
	c.stopProgressLocked()
	c.player.Clear()
	c.chunks = make(map[string]ttypes.Chunk)
	c.current = ""
}

// Current returns the fingerprint of the loaded chunk, or "".
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk, ok := c.chunks[c.player.CurrentID()]; ok {
		return chunk.Fingerprint
	}
	return ""
}

// CurrentChunk returns the chunk being played.
func (c *Coordinator) CurrentChunk() (ttypes.Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	chunk, ok := c.chunks[c.current]
	return chunk, ok
}

// Nudge moves the cursor to an inner unit boundary of chunk. Nudges are
// dropped while playback is paused.
func (c *Coordinator) Nudge(chunk ttypes.Chunk, boundary int) {
	if c.Paused() {
		return
	}
	c.cursor.Nudge(chunk, boundary)
}

// Pause holds playback until Resume.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = true
	c.stopProgressLocked()
	c.player.Pause()
}

// Resume continues playback after Pause. A player left idle is prepared
// again.
func (c *Coordinator) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = false
	c.fatal = false
	c.player.Play()
	if c.player.State() == ttypes.PlayerIdle {
		c.player.Prepare()
	}
}

// Paused reports whether playback is held by Pause or a fatal stop.
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Errors returns the current playback error count.
func (c *Coordinator) Errors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Reloads returns the number of reloads triggered by errors.
func (c *Coordinator) Reloads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reloads
}

// Progress returns a snapshot of reading progress.
func (c *Coordinator) Progress() ttypes.Progress {
	unit, offset := c.cursor.Position()

	c.mu.Lock()
	chunk := c.chunks[c.current]
	c.mu.Unlock()

	return ttypes.Progress{
		Section:   c.cursor.Section().ID,
		Unit:      unit,
		Offset:    offset,
		CharsRead: c.cursor.CharsRead(),
		Chunk:     chunk.Fingerprint,
		Position:  c.player.Position(),
		Duration:  c.player.Duration(),
	}
}

func (c *Coordinator) handle(ctx context.Context, ev ttypes.PlayerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case ttypes.EventState:
		c.handleState(ctx, ev)
	case ttypes.EventTransition:
		c.handleTransition(ev)
	case ttypes.EventError:
		c.handleError(ev)
	}
}

func (c *Coordinator) handleState(ctx context.Context, ev ttypes.PlayerEvent) {
	switch ev.State {
	case ttypes.PlayerReady:
		if !c.paused && c.player.State() == ttypes.PlayerReady {
			c.player.Play()
		}

	case ttypes.PlayerPlaying:
		if c.player.State() == ttypes.PlayerPlaying && c.player.CurrentID() == ev.MediaID {
			c.startProgressLocked(ctx, ev.MediaID)
		}

	case ttypes.PlayerEnded:
		// An item appended meanwhile has already been prepared.
		if c.player.State() != ttypes.PlayerEnded || c.player.CurrentID() != ev.MediaID {
			return
		}
		c.errors = 0
		c.reloaded = false

		if c.player.HasNext() {
			c.player.Prepare()
			return
		}

		chunk, ok := c.chunks[ev.MediaID]
		c.player.Stop()
		c.clearLocked()
		if ok {
			c.cursor.CrossBoundary(chunk)
		}

	case ttypes.PlayerIdle, ttypes.PlayerError:
		c.stopProgressLocked()
	}
}

func (c *Coordinator) handleTransition(ev ttypes.PlayerEvent) {
	previous, ok := c.chunks[c.current]
	if _, known := c.chunks[ev.MediaID]; !known {
		return
	}
	c.current = ev.MediaID
	c.stopProgressLocked()

	switch ev.Reason {
	case ttypes.TransitionAuto:
		c.errors = 0
		c.reloaded = false
		if ok {
			c.cursor.CrossBoundary(previous)
		}
	case ttypes.TransitionSeek:
		if ok {
			c.cursor.CrossBoundary(previous)
		}
	case ttypes.TransitionPlaylistChanged:
	}
}

func (c *Coordinator) handleError(ev ttypes.PlayerEvent) {
	chunk, ok := c.chunks[ev.MediaID]
	if !ok || c.fatal {
		return
	}

	c.errors++
	c.metrics.ObservePlaybackError()
	c.logger.Warn("playback error", "item", ev.MediaID, "errors", c.errors, "err", ev.Err)

	if c.errors >= c.config.MaxErrors {
		if !c.reloaded {
			c.reloaded = true
			c.errors = 0
			c.scheduleReloadLocked()
			return
		}

		c.fatal = true
		c.paused = true
		c.player.Pause()
		c.metrics.ObserveFatal()
		c.logger.Error("playback stopped after reload", "item", ev.MediaID)
		c.emit(ttypes.Signal{
			Kind:    ttypes.SignalFatal,
			Section: chunk.Section,
			Chars:   c.cursor.CharsRead(),
			Err:     ttypes.NewError(ttypes.CodeFatal, "playback retries exhausted", ttypes.ErrRetriesExhausted),
		})
		return
	}

	if c.player.HasNext() {
		c.player.SkipToNext()
		c.player.Prepare()
		return
	}

	c.clearLocked()
	c.cursor.CrossBoundary(chunk)
}

func (c *Coordinator) scheduleReloadLocked() {
	c.reloads++
	c.metrics.ObserveReload()
	c.logger.Info("reloading section", "delay", c.config.ReloadDelay)

	reload := c.reloader
	if c.reloadTimer != nil {
		c.reloadTimer.Stop()
	}
	c.reloadTimer = time.AfterFunc(c.config.ReloadDelay, func() {
		if reload != nil {
			reload()
		}
	})
}

// startProgressLocked walks the playing chunk one character at a time,
// spreading its characters evenly over the item duration.
func (c *Coordinator) startProgressLocked(parent context.Context, id string) {
	c.stopProgressLocked()

	chunk, ok := c.chunks[id]
	duration := c.player.Duration()
	if !ok || chunk.Length <= 0 || duration <= 0 {
		return
	}

	perChar := duration / time.Duration(chunk.Length)
	if perChar <= 0 {
		perChar = time.Nanosecond
	}
	tick := max(perChar, c.config.ProgressInterval)

	ctx, cancel := context.WithCancel(parent)
	c.progressCancel = cancel

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()

		for {
			i := min(int(c.player.Position()/perChar), chunk.Length-1)
			c.cursor.ReportProgress(chunk, i)
			if i >= chunk.Length-1 {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (c *Coordinator) stopProgressLocked() {
	if c.progressCancel != nil {
		c.progressCancel()
		c.progressCancel = nil
	}
}

func (c *Coordinator) emit(sig ttypes.Signal) {
	if c.signals != nil {
		c.signals.Emit(sig)
	}
}
