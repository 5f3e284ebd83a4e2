// Package sse writes Server-Sent Events streams.
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/starford/monteerly/internal/checksum"
)

// ErrStreamingUnsupported is returned when the ResponseWriter cannot flush.
var ErrStreamingUnsupported = errors.New("sse: streaming unsupported")

// Event is one SSE message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Stream writes events to one client. It is not safe for concurrent use;
// the handler goroutine owns it.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	// last payload checksum per event type, for SendChanged.
	last map[string]string
}

// Open writes the SSE response headers and returns a Stream.
func Open(w http.ResponseWriter) (*Stream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, flusher: flusher, last: make(map[string]string)}, nil
}

// Send writes ev unconditionally.
func (s *Stream) Send(ev Event) error {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("sse: marshal %s: %w", ev.Type, err)
	}
	return s.write(ev.Type, payload)
}

// SendChanged writes ev only if its payload differs from the last payload
// sent with the same type. It reports whether anything was written.
func (s *Stream) SendChanged(ev Event) (bool, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return false, fmt.Errorf("sse: marshal %s: %w", ev.Type, err)
	}
	sum := checksum.Sum(payload)
	if s.last[ev.Type] == sum {
		return false, nil
	}
	if err := s.write(ev.Type, payload); err != nil {
		return false, err
	}
	s.last[ev.Type] = sum
	return true, nil
}

// Ping writes a comment line so idle proxies keep the connection open.
func (s *Stream) Ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Stream) write(eventType string, payload []byte) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
