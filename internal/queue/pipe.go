package queue

import (
	"errors"
	"io"
	"sync"
	"time"
)

var (
	// ErrPipeClosed is returned to writers once the reader side is closed
	ErrPipeClosed = errors.New("pipe is closed")

	// ErrWriteAfterClose is returned when writing after CloseWithError
	ErrWriteAfterClose = errors.New("write after close")
)

// DefaultCapacity is the default pipe buffer size in bytes.
const DefaultCapacity = 8192

// Pipe is a bounded in-memory byte pipe with backpressure.
// Writers block while the buffer is full, readers block while it is empty.
// The write side is closed with CloseWithError; readers drain what is left
// and then observe the close error (io.EOF for a clean close).
type Pipe struct {
	buf      []byte
	capacity int

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// State
	writeClosed bool
	readClosed  bool
	err         error
	stats       Stats
}

// Stats tracks pipe throughput
type Stats struct {
	BytesWritten int64
	BytesRead    int64
	Writes       int64
	Stalls       int64 // writes that had to wait for space
	PeakSize     int
	FirstWrite   time.Time
	LastWrite    time.Time
}

// NewPipe creates a pipe buffering at most capacity bytes.
func NewPipe(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pipe{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	return p
}

// Write appends b, blocking for space as needed. Frames larger than the
// capacity are written in pieces.
func (p *Pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stats.FirstWrite.IsZero() {
		p.stats.FirstWrite = time.Now()
	}
	p.stats.Writes++

	written := 0
	stalled := false
	for written < len(b) {
		for len(p.buf) >= p.capacity && !p.readClosed && !p.writeClosed {
			if !stalled {
				p.stats.Stalls++
				stalled = true
			}
			p.notFull.Wait()
		}
		if p.readClosed {
			return written, ErrPipeClosed
		}
		if p.writeClosed {
			return written, ErrWriteAfterClose
		}

		n := min(p.capacity-len(p.buf), len(b)-written)
		p.buf = append(p.buf, b[written:written+n]...)
		written += n

		if len(p.buf) > p.stats.PeakSize {
			p.stats.PeakSize = len(p.buf)
		}
		p.notEmpty.Signal()
	}

	p.stats.BytesWritten += int64(written)
	p.stats.LastWrite = time.Now()
	return written, nil
}

// Read reads buffered bytes, blocking until data arrives or the write side
// closes.
func (p *Pipe) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && !p.writeClosed && !p.readClosed {
		p.notEmpty.Wait()
	}

	if p.readClosed {
		return 0, ErrPipeClosed
	}
	if len(p.buf) == 0 {
		return 0, p.err
	}

	n := copy(b, p.buf)
	p.buf = p.buf[:copy(p.buf, p.buf[n:])]
	p.stats.BytesRead += int64(n)
	p.notFull.Broadcast()

	return n, nil
}

// CloseWithError closes the write side. Readers see err after draining the
// buffer; a nil err is reported as io.EOF. Only the first close counts.
func (p *Pipe) CloseWithError(err error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeClosed {
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	p.writeClosed = true
	p.err = err
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	return nil
}

// Close closes the read side, discarding buffered data and releasing any
// blocked writer.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.readClosed = true
	p.buf = p.buf[:0]
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	return nil
}

// Len returns the number of buffered bytes.
func (p *Pipe) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Err returns the write-side close error, or nil while open.
func (p *Pipe) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetStats returns a copy of the pipe statistics.
func (p *Pipe) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
