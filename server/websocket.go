package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketPath is where the WebSocket transport is mounted.
const WebSocketPath = "/ws"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsTransport carries one frame per WebSocket text message.
type wsTransport struct {
	conn         *websocket.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration
}

func (t *wsTransport) ReadFrame() (string, error) {
	for {
		if t.idleTimeout > 0 {
			t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
		}
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		return string(data), nil
	}
}

func (t *wsTransport) WriteFrame(frame string) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(strings.TrimSuffix(frame, "\n")))
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

// WebSocketHandler upgrades requests and serves each one as a chat client.
func (s *Server) WebSocketHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WebSocketPath, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		conn.SetReadLimit(MaxFrameBytes)

		s.handleConnection(&wsTransport{
			conn:         conn,
			idleTimeout:  s.config.IdleTimeout,
			writeTimeout: s.config.WriteTimeout,
		})
	})
	return mux
}

// ListenAndServeWebSocket serves the WebSocket transport on
// config.WebSocketAddr until Shutdown.
func (s *Server) ListenAndServeWebSocket() error {
	listener, err := net.Listen("tcp", s.config.WebSocketAddr)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Handler:           s.WebSocketHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.httpSrv = httpSrv
	s.mu.Unlock()

	s.logger.Info("websocket transport listening", "addr", listener.Addr().String(), "path", WebSocketPath)
	if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func isWebSocketClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived)
}
