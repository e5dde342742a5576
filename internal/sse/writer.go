package sse

import (
	"errors"
	"net/http"
)

var (
	// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
	ErrStreamingUnsupported = errors.New("streaming not supported")
	// ErrClosed is returned for writes after Close.
	ErrClosed = errors.New("sse: stream closed")
	// ErrTerminated is returned for events after a terminal event.
	ErrTerminated = errors.New("sse: stream already terminated")
)

// Writer is an SSE response scoped to one request. Every event is flushed as
// soon as it is written; raw passthrough chunks are flushed by the caller.
type Writer struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	closed     bool
	terminated bool
	written    int64
}

// NewWriter sets the streaming headers and commits the response. Nothing is
// written when w cannot flush.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	h.Del("Content-Length")

	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}, nil
}

// WriteEvent encodes and flushes ev. At most one terminal event is accepted.
func (s *Writer) WriteEvent(ev Event) error {
	if s.closed {
		return ErrClosed
	}
	if s.terminated {
		return ErrTerminated
	}

	data, err := Encode(ev.Name, ev.Data)
	if err != nil {
		return err
	}

	if ev.Terminal {
		s.terminated = true
	}

	if _, err := s.Write(data); err != nil {
		return err
	}
	s.Flush()
	return nil
}

// Write passes p through unchanged.
func (s *Writer) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return n, err
}

// Flush pushes buffered bytes to the client.
func (s *Writer) Flush() {
	if !s.closed {
		s.flusher.Flush()
	}
}

// Close flushes and rejects further writes. It is safe to call more than once.
func (s *Writer) Close() error {
	if s.closed {
		return nil
	}
	s.flusher.Flush()
	s.closed = true
	return nil
}

// Terminated reports whether a terminal event has been written.
func (s *Writer) Terminated() bool {
	return s.terminated
}

// Written returns the number of body bytes written.
func (s *Writer) Written() int64 {
	return s.written
}
