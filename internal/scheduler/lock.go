package scheduler

import (
	"context"
	"sync"
)

// runLock makes runs of one kind exclusive. Beginning a run cancels the
// active one and waits until it has released.
type runLock struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// begin stops the active run and registers a new one. The returned release
// must be called when the new run exits.
func (l *runLock) begin(parent context.Context) (context.Context, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()

	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	l.cancel, l.done = cancel, done

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			cancel()
			close(done)
		})
	}
}

// stop cancels the active run and waits for it to release.
func (l *runLock) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *runLock) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel, l.done = nil, nil
}

// wait blocks until the active run, if any, exits on its own.
func (l *runLock) wait() {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	if done != nil {
		<-done
	}
}
