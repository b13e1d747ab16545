package stream

import (
	"bytes"
	"errors"
	"net/http"
	"sync"
	"time"
)

var heartbeatFrame = []byte(":heartbeat\n\n")

// SSESink writes text/event-stream frames to an HTTP response.
type SSESink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	rc      *http.ResponseController
	timeout time.Duration
	closed  bool
	done    chan struct{}
}

// NewSSESink prepares w for streaming and returns a sink bound to it. No
// frame is written until the first Send or Heartbeat.
func NewSSESink(w http.ResponseWriter, writeTimeout time.Duration) *SSESink {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	// disable proxy buffering (nginx, Cloudflare)
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s := &SSESink{
		w:       w,
		rc:      http.NewResponseController(w),
		timeout: writeTimeout,
		done:    make(chan struct{}),
	}
	_ = s.rc.Flush()
	return s
}

// Send writes data as one event. Multi-line data is split into several
// data: fields as the event-stream format requires.
func (s *SSESink) Send(data []byte) error {
	var frame bytes.Buffer
	frame.Grow(len(data) + 16)
	for _, line := range bytes.Split(data, []byte("\n")) {
		frame.WriteString("data: ")
		frame.Write(bytes.TrimSuffix(line, []byte("\r")))
		frame.WriteByte('\n')
	}
	frame.WriteByte('\n')
	return s.write(frame.Bytes())
}

// Heartbeat writes a comment line.
func (s *SSESink) Heartbeat() error {
	return s.write(heartbeatFrame)
}

func (s *SSESink) write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.timeout > 0 {
		if err := s.rc.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			s.closeLocked()
			return err
		}
	}
	if _, err := s.w.Write(frame); err != nil {
		s.closeLocked()
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.closeLocked()
		return err
	}
	return nil
}

// Close marks the sink unusable. The response itself is finished when the
// handler returns.
func (s *SSESink) Close() {
	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()
}

func (s *SSESink) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

// Done is closed after Close or the first failed write.
func (s *SSESink) Done() <-chan struct{} {
	return s.done
}
