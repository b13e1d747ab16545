package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mtzview/supervisorio/services/api/stream"
)

// handleStream holds an event-stream response open and registers it as a
// live viewer until either side goes away.
// GET /api/clp/stream
func (s *Server) handleStream(c *gin.Context) {
	sink := stream.NewSSESink(c.Writer, s.cfg.StreamWriteTTL)
	s.watch(c, sink)
}

// handleWebSocket is the websocket variant of the live stream.
// GET /api/clp/ws
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the request
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	sink := stream.NewWSSink(conn, s.cfg.StreamWriteTTL)
	go sink.ReadPump()
	s.watch(c, sink)
}

func (s *Server) watch(c *gin.Context, sink stream.Sink) {
	h, err := s.deps.Registry.Subscribe(sink)
	if err != nil {
		s.logger.Debug("viewer dropped while seeding", zap.Error(err))
		return
	}
	defer s.deps.Registry.Unsubscribe(h)

	select {
	case <-c.Request.Context().Done():
	case <-sink.Done():
	}
}
