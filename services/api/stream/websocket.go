package stream

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pongWait       = 90 * time.Second
	maxMessageSize = 512
)

// WSSink writes events as websocket text frames. Keep-alives are ping
// control frames.
type WSSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	timeout time.Duration
	closed  bool
	done    chan struct{}
}

// NewWSSink wraps an upgraded connection.
func NewWSSink(conn *websocket.Conn, writeTimeout time.Duration) *WSSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WSSink{conn: conn, timeout: writeTimeout, done: make(chan struct{})}
}

func (s *WSSink) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.closeLocked()
		return err
	}
	return nil
}

func (s *WSSink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.timeout)); err != nil {
		s.closeLocked()
		return err
	}
	return nil
}

// ReadPump consumes client frames until the peer goes away, then closes the
// sink. Viewers never send data; reading is only how closure is observed.
func (s *WSSink) ReadPump() {
	defer s.Close()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (s *WSSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
	s.closeLocked()
}

func (s *WSSink) closeLocked() {
	if !s.closed {
		s.closed = true
		_ = s.conn.Close()
		close(s.done)
	}
}

func (s *WSSink) Done() <-chan struct{} {
	return s.done
}
