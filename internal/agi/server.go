package agi

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CallHandler serves an incoming call. StartCall is invoked exactly once per
// session, after the variable handshake completes; when it returns (with or
// without error) the session is finished and Asterisk resumes the dialplan.
type CallHandler interface {
	StartCall(s *Session) error
}

// HandlerFunc adapts a function to CallHandler.
type HandlerFunc func(*Session) error

func (f HandlerFunc) StartCall(s *Session) error {
	return f(s)
}

// Server is the FastAGI server: it accepts connections from the PBX and
// dispatches each one to the configured CallHandler.
type Server struct {
	addr    string
	handler CallHandler
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	active   map[string]*Session // live sessions by id
}

// NewServer creates a server listening on addr (host:port).
func NewServer(addr string, handler CallHandler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  zap.New(zapcore.NewNopCore()),
		active:  make(map[string]*Session),
	}
}

// SetLogger installs the server logger; it propagates to every session.
func (s *Server) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Start opens the listener and runs the accept loop in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("FastAGI server listening", zap.String("addr", s.addr))

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go s.handleConnection(conn)
		}
	}()
	return nil
}

// Addr returns the real listener address; useful when listening on port 0.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Stop closes the listener. In-flight sessions run to completion.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// handleConnection drives one inbound AGI connection start to finish.
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered", zap.Any("panic", r))
		}
	}()

	session := NewSession(conn)
	session.ID = uuid.NewString()
	session.SetLogger(s.logger)

	if err := session.readEnv(); err != nil {
		s.logger.Error("failed to read environment", zap.Error(err))
		return
	}

	s.register(session)
	defer s.unregister(session)

	s.logger.Info("new session",
		zap.String("session_id", session.ID),
		zap.String("channel", session.Env["agi_channel"]),
		zap.String("callerid", session.Env["agi_callerid"]))

	// the handler runs on its own goroutine; this one keeps reading replies
	go s.dispatch(session)
	session.readReplies()
}

// dispatch invokes the handler and finishes the session when it returns.
func (s *Server) dispatch(session *Session) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered in handler", zap.Any("panic", r))
		}
		session.Finish()
	}()

	if err := s.handler.StartCall(session); err != nil {
		s.logger.Error("handler returned error",
			zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	s.logger.Info("session completed", zap.String("session_id", session.ID))
}

func (s *Server) register(session *Session) {
	s.mu.Lock()
	s.active[session.ID] = session
	s.mu.Unlock()
}

func (s *Server) unregister(session *Session) {
	s.mu.Lock()
	delete(s.active, session.ID)
	s.mu.Unlock()
}

// ActiveSessions returns the number of live sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
