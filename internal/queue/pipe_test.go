package queue

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestPipe_BasicOperations(t *testing.T) {
	p := NewPipe(16)

	if n := p.Len(); n != 0 {
		t.Errorf("Expected empty pipe, got %d bytes", n)
	}

	if _, err := p.Write([]byte("hello ")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := p.Write([]byte("world")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := p.CloseWithError(nil); err != nil {
		t.Fatalf("CloseWithError failed: %v", err)
	}

	data, err := io.ReadAll(p)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "hello world" {
		t.Errorf("Expected %q, got %q", "hello world", data)
	}

	stats := p.GetStats()
	if stats.BytesWritten != 11 || stats.BytesRead != 11 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestPipe_Backpressure(t *testing.T) {
	p := NewPipe(4)

	done := make(chan error, 1)
	go func() {
		_, err := p.Write([]byte("0123456789"))
		done <- err
	}()

	// The writer cannot finish until the reader makes room
	select {
	case <-done:
		t.Fatal("Write should block while the pipe is full")
	case <-time.After(50 * time.Millisecond):
	}

	if n := p.Len(); n != 4 {
		t.Errorf("Expected 4 buffered bytes, got %d", n)
	}

	var out bytes.Buffer
	buf := make([]byte, 3)
	for out.Len() < 10 {
		n, err := p.Read(buf)
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		out.Write(buf[:n])
	}

	if err := <-done; err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if out.String() != "0123456789" {
		t.Errorf("Expected bytes in order, got %q", out.String())
	}
	if p.GetStats().Stalls == 0 {
		t.Error("Expected at least one stalled write")
	}
}

func TestPipe_CloseWithError(t *testing.T) {
	p := NewPipe(16)
	boom := errors.New("boom")

	if _, err := p.Write([]byte("partial")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	p.CloseWithError(boom)
	// Second close is ignored
	p.CloseWithError(nil)

	data, err := io.ReadAll(p)
	if !errors.Is(err, boom) {
		t.Errorf("Expected boom after drain, got %v", err)
	}
	if string(data) != "partial" {
		t.Errorf("Expected buffered data before error, got %q", data)
	}

	if _, err := p.Write([]byte("more")); !errors.Is(err, ErrWriteAfterClose) {
		t.Errorf("Expected ErrWriteAfterClose, got %v", err)
	}
}

func TestPipe_ReaderCloseReleasesWriter(t *testing.T) {
	p := NewPipe(2)

	done := make(chan error, 1)
	go func() {
		_, err := p.Write([]byte("abcdef"))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrPipeClosed) {
			t.Errorf("Expected ErrPipeClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Writer was not released by Close")
	}
}

func TestPipe_ReadBlocksUntilData(t *testing.T) {
	p := NewPipe(8)

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := p.Read(buf)
		got <- string(buf[:n])
	}()

	select {
	case <-got:
		t.Fatal("Read returned before any data")
	case <-time.After(30 * time.Millisecond):
	}

	p.Write([]byte("ok"))

	select {
	case s := <-got:
		if s != "ok" {
			t.Errorf("Expected %q, got %q", "ok", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up")
	}
}
