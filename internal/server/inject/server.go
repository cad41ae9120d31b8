// Package inject accepts remote keystrokes and feeds them to the
// session loop. Received bytes go into a pipe the session polls
// alongside stdin, so remote input runs through the exact same
// press/release state machine as local typing and can at worst type.
package inject

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/xaiki/uhid-keyboard/internal/server/inject/auth"
)

// ServerConfig holds the injection listener flags, embedded into the
// run command under the inject. prefix.
type ServerConfig struct {
	Addr   string `help:"Authenticated TCP injection listen address; empty disables" default:"" env:"UHIDKBD_INJECT_ADDR"`
	WsAddr string `help:"WebSocket injection listen address for browser clients; empty disables" default:"" env:"UHIDKBD_INJECT_WS_ADDR"`

	Password string `kong:"-"`
}

// Server accepts remote clients and copies their keystroke bytes into
// the sink.
type Server struct {
	config *ServerConfig
	logger *slog.Logger
	key    []byte

	sink   io.Writer
	sinkMu sync.Mutex

	ln        net.Listener
	wsSrv     *http.Server
	ready     chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once
}

// New builds a Server writing injected bytes to sink. The configured
// password is stretched once up front.
func New(config ServerConfig, sink io.Writer, logger *slog.Logger) (*Server, error) {
	key, err := auth.DeriveKey(config.Password)
	if err != nil {
		return nil, fmt.Errorf("derive injection key: %w", err)
	}
	s := &Server{
		config: &config,
		logger: logger,
		key:    key,
		sink:   sink,
		ready:  make(chan struct{}),
	}
	s.wsSrv = &http.Server{Addr: config.WsAddr, Handler: s.WSHandler()}
	return s, nil
}

// Ready is closed once the TCP listener is accepting.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound TCP listener address, for tests binding to
// port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Listen binds the TCP listener. Callers bind before spawning Serve on
// a goroutine, so Close and Addr never observe a half-started listener.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("inject listen %s: %w", s.config.Addr, err)
	}
	s.ln = ln
	s.readyOnce.Do(func() { close(s.ready) })
	s.logger.Info("injection listener started", "addr", ln.Addr().String())
	return nil
}

// Serve accepts authenticated TCP clients until Close.
func (s *Server) Serve() error {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

// ListenAndServe binds the TCP listener and serves on the calling
// goroutine.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Close stops the TCP listener. In-flight connections drain on their
// own read errors.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.ln != nil {
			err = s.ln.Close()
		}
	})
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr().String()

	clientNonce, serverNonce, err := auth.Handshake(conn, s.key, false)
	if err != nil {
		s.logger.Warn("injection handshake failed", "remote", remote, "error", err)
		return
	}

	sealed, err := auth.WrapConn(conn, auth.DeriveSessionKey(s.key, serverNonce, clientNonce), false)
	if err != nil {
		s.logger.Error("failed to wrap injection connection", "remote", remote, "error", err)
		return
	}
	s.logger.Info("injection client connected", "remote", remote)

	buf := make([]byte, 128)
	for {
		n, err := sealed.Read(buf)
		if n > 0 {
			if werr := s.push(buf[:n]); werr != nil {
				s.logger.Error("injection sink closed", "error", werr)
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Warn("injection client read error", "remote", remote, "error", err)
			}
			s.logger.Info("injection client disconnected", "remote", remote)
			return
		}
	}
}

// push serializes sink writes; TCP and WebSocket clients share one
// pipe.
func (s *Server) push(b []byte) error {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	_, err := s.sink.Write(b)
	return err
}
