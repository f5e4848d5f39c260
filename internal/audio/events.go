package audio

import (
	"sync"

	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// eventPump delivers events in order without ever blocking the emitter.
type eventPump struct {
	mu      sync.Mutex
	pending []ttypes.PlayerEvent
	wake    chan struct{}
	out     chan ttypes.PlayerEvent
	done    chan struct{}
	once    sync.Once
}

func newEventPump() *eventPump {
	p := &eventPump{
		wake: make(chan struct{}, 1),
		out:  make(chan ttypes.PlayerEvent),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *eventPump) push(ev ttypes.PlayerEvent) {
	p.mu.Lock()
	p.pending = append(p.pending, ev)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *eventPump) run() {
	defer close(p.out)

	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			select {
			case <-p.wake:
				continue
			case <-p.done:
				return
			}
		}
		ev := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		select {
		case p.out <- ev:
		case <-p.done:
			return
		}
	}
}

func (p *eventPump) close() {
	p.once.Do(func() { close(p.done) })
}
