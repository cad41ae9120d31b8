package inject

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint is token-authenticated; the Origin header proves
	// nothing for non-browser clients anyway.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ListenAndServeWS serves the WebSocket injection endpoint. Browsers
// cannot open raw TCP sockets, so they authenticate with the shared key
// as a token query parameter instead of the handshake; run it on
// localhost or a trusted network. The http.Server is built in New, so
// CloseWS is safe concurrently with startup.
func (s *Server) ListenAndServeWS() error {
	s.logger.Info("websocket injection listener started", "addr", s.config.WsAddr)

	err := s.wsSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// WSHandler returns the HTTP handler serving the injection endpoint.
func (s *Server) WSHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/type", s.handleWS)
	return mux
}

// CloseWS stops the WebSocket listener.
func (s *Server) CloseWS() error {
	return s.wsSrv.Close()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Password)) != 1 {
		s.logger.Warn("websocket injection auth failed", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("websocket injection client connected", "remote", r.RemoteAddr)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket injection read error", "remote", r.RemoteAddr, "error", err)
			}
			s.logger.Info("websocket injection client disconnected", "remote", r.RemoteAddr)
			return
		}
		if len(data) == 0 {
			continue
		}
		if err := s.push(data); err != nil {
			s.logger.Error("injection sink closed", "error", err)
			return
		}
	}
}
