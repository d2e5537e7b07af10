package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/domusnext/eval/internal/logging"
)

// Options tunes websocket keepalive.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// Server upgrades feed requests and pumps hub messages to clients.
type Server struct {
	hub      *Hub
	opts     Options
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewServer creates a new feed server.
func NewServer(h *Hub, opts Options, logger *zap.Logger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.ReadTimeout <= opts.PingInterval {
		opts.ReadTimeout = 2 * opts.PingInterval
	}
	return &Server{
		hub:    h,
		opts:   opts,
		logger: logging.OrNop(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket subscribes the caller to the events of one version.
// GET /evaluations/versions/:versionId/feed
func (s *Server) HandleWebSocket(c echo.Context) error {
	versionID := c.Param("versionId")
	if versionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Missing versionId"})
	}

	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket", zap.Error(err))
		return nil
	}

	conn := s.hub.NewConnection(ws, versionID)
	if !s.hub.Register(conn) {
		ws.Close()
		return nil
	}

	ws.SetReadLimit(4096)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump drains client frames so pongs and close frames are processed.
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Debug("feed websocket error", zap.Error(err))
			}
			return
		}
	}
}

// writePump writes messages to the websocket connection.
func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Debug("failed to write feed message", zap.Error(err))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
