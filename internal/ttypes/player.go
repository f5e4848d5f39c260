package ttypes

import "time"

// PlayerState is the lifecycle state reported by a player.
type PlayerState int

const (
	PlayerIdle PlayerState = iota
	PlayerBuffering
	PlayerReady
	PlayerPlaying
	PlayerEnded
	PlayerError
)

// String returns the string representation of the state
func (s PlayerState) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerBuffering:
		return "buffering"
	case PlayerReady:
		return "ready"
	case PlayerPlaying:
		return "playing"
	case PlayerEnded:
		return "ended"
	case PlayerError:
		return "error"
	default:
		return "unknown"
	}
}

// TransitionReason explains why the current item changed.
type TransitionReason int

const (
	// TransitionAuto is a natural move to the next item after completion
	TransitionAuto TransitionReason = iota

	// TransitionSeek is an explicit skip, used after playback errors
	TransitionSeek

	// TransitionPlaylistChanged is the first item after the playlist changed
	TransitionPlaylistChanged
)

func (r TransitionReason) String() string {
	switch r {
	case TransitionAuto:
		return "auto"
	case TransitionSeek:
		return "seek"
	case TransitionPlaylistChanged:
		return "playlist_changed"
	default:
		return "unknown"
	}
}

// EventKind tags a PlayerEvent.
type EventKind int

const (
	EventState EventKind = iota
	EventTransition
	EventError
)

// PlayerEvent is a tagged message emitted by players.
// State is set for EventState, Reason for EventTransition and Err for
// EventError. MediaID names the item the event concerns.
type PlayerEvent struct {
	Kind    EventKind
	State   PlayerState
	MediaID string
	Reason  TransitionReason
	Err     error
}

// MediaItem addresses one playable chunk.
type MediaItem struct {
	ID  string
	URI string
}

// Player renders an ordered list of media items.
type Player interface {
	// Add appends an item to the playlist.
	Add(item MediaItem)

	// Clear drops all items and returns to idle.
	Clear()

	// Prepare loads the current item, moving towards ready.
	Prepare()

	Play()
	Pause()
	Stop()

	// HasNext reports whether an item follows the current one.
	HasNext() bool

	// SkipToNext moves to the following item with TransitionSeek.
	SkipToNext()

	State() PlayerState

	// CurrentID returns the id of the loaded item, or "".
	CurrentID() string

	// Position and Duration describe the loaded item; Duration is 0 when unknown.
	Position() time.Duration
	Duration() time.Duration

	// Events delivers player events in order.
	Events() <-chan PlayerEvent

	Close() error
}

// SignalKind identifies an upward signal to the host application.
type SignalKind int

const (
	// SignalPosition carries the section-relative characters read
	SignalPosition SignalKind = iota

	// SignalPageAdvance asks the host to turn the page
	SignalPageAdvance

	// SignalPauseMissingCredential reports that reading paused for a credential
	SignalPauseMissingCredential

	// SignalFatal reports playback stopped after exhausted retries
	SignalFatal

	// SignalSectionEnd reports the cursor moved past the last unit
	SignalSectionEnd
)

func (k SignalKind) String() string {
	switch k {
	case SignalPosition:
		return "position"
	case SignalPageAdvance:
		return "page_advance"
	case SignalPauseMissingCredential:
		return "pause_missing_credential"
	case SignalFatal:
		return "fatal"
	case SignalSectionEnd:
		return "section_end"
	default:
		return "unknown"
	}
}

// Signal is a message for the host application.
type Signal struct {
	Kind    SignalKind
	Section string
	Chars   int
	Page    int
	Err     error
}

// SignalSink receives upward signals. Implementations must not block.
type SignalSink interface {
	Emit(sig Signal)
}
