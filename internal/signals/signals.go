package signals

import (
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Log writes signals to a logger. Position updates are logged at debug
// level.
type Log struct {
	logger *log.Logger
}

// NewLog creates a log sink.
func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger}
}

// Emit implements ttypes.SignalSink.
func (l *Log) Emit(sig ttypes.Signal) {
	kv := []interface{}{"section", sig.Section, "chars", sig.Chars}
	switch sig.Kind {
	case ttypes.SignalPosition:
		l.logger.Debug("position", kv...)
	case ttypes.SignalPageAdvance:
		l.logger.Info("page advance", append(kv, "page", sig.Page)...)
	case ttypes.SignalSectionEnd:
		l.logger.Info("section end", kv...)
	case ttypes.SignalPauseMissingCredential:
		l.logger.Warn("paused, credential required", append(kv, "err", sig.Err)...)
	case ttypes.SignalFatal:
		l.logger.Error("playback stopped", append(kv, "err", sig.Err)...)
	}
}

// Chan forwards signals to a buffered channel. Signals are dropped when
// the buffer is full.
type Chan struct {
	ch      chan ttypes.Signal
	dropped atomic.Int64
}

// NewChan creates a channel sink with room for size signals.
func NewChan(size int) *Chan {
	return &Chan{ch: make(chan ttypes.Signal, size)}
}

// Emit implements ttypes.SignalSink.
func (c *Chan) Emit(sig ttypes.Signal) {
	select {
	case c.ch <- sig:
	default:
		c.dropped.Add(1)
	}
}

// C returns the receive side.
func (c *Chan) C() <-chan ttypes.Signal {
	return c.ch
}

// Dropped returns how many signals did not fit.
func (c *Chan) Dropped() int64 {
	return c.dropped.Load()
}

// Fanout emits every signal to each sink in order.
type Fanout []ttypes.SignalSink

// Emit implements ttypes.SignalSink.
func (f Fanout) Emit(sig ttypes.Signal) {
	for _, s := range f {
		if s != nil {
			s.Emit(sig)
		}
	}
}

// Filter passes on signals whose kind is in Kinds.
type Filter struct {
	Sink  ttypes.SignalSink
	Kinds []ttypes.SignalKind
}

// Emit implements ttypes.SignalSink.
func (f Filter) Emit(sig ttypes.Signal) {
	for _, k := range f.Kinds {
		if k == sig.Kind {
			f.Sink.Emit(sig)
			return
		}
	}
}
