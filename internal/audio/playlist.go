package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// ErrPlayerClosed is returned by operations on a closed player.
var ErrPlayerClosed = errors.New("player is closed")

// Output renders one decoded item at a time for a Playlist.
type Output interface {
	// Load decodes data as the next item and returns its duration.
	Load(data []byte) (time.Duration, error)

	// Start begins or resumes the loaded item. finished is called once
	// when the item plays to its end.
	Start(finished func())

	Pause()

	// Halt stops rendering and drops the loaded item.
	Halt()

	// Position returns the elapsed time of the loaded item.
	Position() time.Duration

	Close() error
}

// Playlist is an ordered list of media items played one after another.
// Audio is read through the MediaSource by URI when an item is loaded.
// It implements ttypes.Player.
type Playlist struct {
	source ttypes.MediaSource
	out    Output

	mu            sync.Mutex
	items         []ttypes.MediaItem
	index         int
	state         ttypes.PlayerState
	playWhenReady bool
	duration      time.Duration
	closed        bool

	// generation invalidates completion callbacks of replaced items
	generation uint64

	events *eventPump
	logger *log.Logger
}

// NewPlaylist creates an empty playlist rendering through out.
func NewPlaylist(source ttypes.MediaSource, out Output, logger *log.Logger) *Playlist {
	if logger == nil {
		logger = log.Default()
	}
	return &Playlist{
		source: source,
		out:    out,
		index:  -1,
		state:  ttypes.PlayerIdle,
		events: newEventPump(),
		logger: logger,
	}
}

// Add appends an item. The first item of an empty playlist becomes current
// with a playlist-changed transition.
func (p *Playlist) Add(item ttypes.MediaItem) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.items = append(p.items, item)
	if p.index < 0 {
		p.index = 0
		p.transitionLocked(ttypes.TransitionPlaylistChanged)
	}
}

// Clear drops every item and returns to idle.
func (p *Playlist) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.haltLocked()
	p.items = nil
	p.index = -1
	p.setStateLocked(ttypes.PlayerIdle)
}

// Prepare loads the current item when the player is idle or failed. An
// ended player moves on to an item appended after the end, if any.
func (p *Playlist) Prepare() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.index < 0 || p.index >= len(p.items) {
		return
	}

	switch p.state {
	case ttypes.PlayerIdle, ttypes.PlayerError:
	case ttypes.PlayerEnded:
		if p.index+1 >= len(p.items) {
			return
		}
		p.index++
		p.transitionLocked(ttypes.TransitionAuto)
	default:
		return
	}
	p.loadLocked()
}

// Play starts playback as soon as the current item is ready.
func (p *Playlist) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playWhenReady = true
	if p.state == ttypes.PlayerReady {
		p.startLocked()
	}
}

// Pause holds playback; the item stays loaded.
func (p *Playlist) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playWhenReady = false
	if p.state == ttypes.PlayerPlaying {
		p.out.Pause()
		p.setStateLocked(ttypes.PlayerReady)
	}
}

// Stop halts playback and keeps the items.
func (p *Playlist) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.haltLocked()
	p.setStateLocked(ttypes.PlayerIdle)
}

// HasNext reports whether an item follows the current one.
func (p *Playlist) HasNext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index >= 0 && p.index+1 < len(p.items)
}

// SkipToNext moves to the following item. A loaded player loads it at
// once; an idle or failed player waits for Prepare.
func (p *Playlist) SkipToNext() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index < 0 || p.index+1 >= len(p.items) {
		return
	}

	idle := p.state == ttypes.PlayerIdle || p.state == ttypes.PlayerError
	p.haltLocked()
	p.index++
	p.transitionLocked(ttypes.TransitionSeek)

	if idle {
		p.setStateLocked(ttypes.PlayerIdle)
		return
	}
	p.loadLocked()
}

// State returns the player state.
func (p *Playlist) State() ttypes.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// CurrentID returns the id of the current item, or "".
func (p *Playlist) CurrentID() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index < 0 || p.index >= len(p.items) {
		return ""
	}
	return p.items[p.index].ID
}

// Position returns the elapsed time of the current item.
func (p *Playlist) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case ttypes.PlayerPlaying, ttypes.PlayerReady:
		return p.out.Position()
	case ttypes.PlayerEnded:
		return p.duration
	default:
		return 0
	}
}

// Duration returns the duration of the current item, 0 if unknown.
func (p *Playlist) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duration
}

// Events delivers player events in order.
func (p *Playlist) Events() <-chan ttypes.PlayerEvent {
	return p.events.out
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Close releases the output and stops event delivery.
func (p *Playlist) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.haltLocked()
	p.mu.Unlock()

	p.events.close()
	return p.out.Close()
}

func (p *Playlist) loadLocked() {
	item := p.items[p.index]
	p.generation++
	p.duration = 0
	p.setStateLocked(ttypes.PlayerBuffering)

	data, err := p.source.Open(item.URI)
	if err == nil {
		p.duration, err = p.out.Load(data)
	}
	if err != nil {
		p.logger.Debug("failed to load item", "id", item.ID, "err", err)
		p.setStateLocked(ttypes.PlayerError)
		p.events.push(ttypes.PlayerEvent{
			Kind:    ttypes.EventError,
			MediaID: item.ID,
			Err:     ttypes.NewError(ttypes.CodePlayback, fmt.Sprintf("load %s", item.ID), err),
		})
		return
	}

	p.setStateLocked(ttypes.PlayerReady)
	if p.playWhenReady {
		p.startLocked()
	}
}

func (p *Playlist) startLocked() {
	gen := p.generation
	p.out.Start(func() { p.finished(gen) })
	p.setStateLocked(ttypes.PlayerPlaying)
}

// finished runs when the output reaches the end of an item.
func (p *Playlist) finished(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.generation || p.state != ttypes.PlayerPlaying {
		return
	}

	if p.index+1 < len(p.items) {
		p.out.Halt()
		p.index++
		p.transitionLocked(ttypes.TransitionAuto)
		p.loadLocked()
		return
	}

	p.out.Halt()
	p.generation++
	p.setStateLocked(ttypes.PlayerEnded)
}

func (p *Playlist) haltLocked() {
	p.generation++
	p.duration = 0
	p.out.Halt()
}

func (p *Playlist) transitionLocked(reason ttypes.TransitionReason) {
	p.events.push(ttypes.PlayerEvent{
		Kind:    ttypes.EventTransition,
		MediaID: p.items[p.index].ID,
		Reason:  reason,
	})
}

func (p *Playlist) setStateLocked(s ttypes.PlayerState) {
	if p.state == s {
		return
	}
	p.state = s

	ev := ttypes.PlayerEvent{Kind: ttypes.EventState, State: s}
	if p.index >= 0 && p.index < len(p.items) {
		ev.MediaID = p.items[p.index].ID
	}
	p.events.push(ev)
}
