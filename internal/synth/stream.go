package synth

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"github.com/dgnsrekt/aloud/internal/queue"
	"github.com/dgnsrekt/aloud/internal/ttypes"
)

// Stream is the audio of one session. It is returned before any data has
// arrived; Read blocks until bytes are available or the session ends.
type Stream struct {
	pipe   *queue.Pipe
	cancel context.CancelFunc
	done   chan struct{}

	err   error
	bytes atomic.Int64
}

func newStream(capacity int, cancel context.CancelFunc) *Stream {
	return &Stream{
		pipe:   queue.NewPipe(capacity),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Read implements io.Reader. After the last byte it returns io.EOF for a
// clean session end, or the session error otherwise.
func (s *Stream) Read(p []byte) (int, error) {
	return s.pipe.Read(p)
}

// Close abandons the stream and tears the session down.
func (s *Stream) Close() error {
	s.cancel()
	return s.pipe.Close()
}

// Done is closed when the session has finished.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the session error once Done is closed.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Len returns the number of audio bytes received so far.
func (s *Stream) Len() int64 {
	return s.bytes.Load()
}

func (s *Stream) write(b []byte) error {
	n, err := s.pipe.Write(b)
	s.bytes.Add(int64(n))
	return err
}

func (s *Stream) finish(err error) {
	s.err = err
	s.pipe.CloseWithError(err)
	s.cancel()
	close(s.done)
}

// ReadAll drains a stream. A session that ends cleanly without audio is
// reported as an empty-audio error.
func ReadAll(s *Stream) ([]byte, error) {
	data, err := io.ReadAll(s)
	if err != nil {
		return data, err
	}
	if len(data) == 0 {
		return nil, ttypes.NewError(ttypes.CodeEmptyAudio, "session ended without audio", ttypes.ErrEmptyAudio)
	}
	return data, nil
}

// errorCode maps a session error to a metric label.
func errorCode(err error) string {
	var e *ttypes.Error
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "UNKNOWN"
}
