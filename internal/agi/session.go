package agi

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Session is one FastAGI session: the inbound connection Asterisk opens per
// call. Its lifecycle is ReadingEnv (agi_* variables) → Ready (commands) →
// Closed.
//
// Replies are matched to sends in strict FIFO order; callers may pipeline
// by issuing several Sends and resolving the Pendings afterwards.
type Session struct {
	// ID identifies the session, assigned by the server
	ID string

	// Env holds the agi_* handshake variables, keys lowercased
	Env map[string]string

	// URL is the parsed agi_request, available once the session is Ready
	URL RequestURL

	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	logger *zap.Logger

	mu      sync.Mutex
	pending []*Pending
	closed  bool
}

// Pending is an in-flight command: it settles exactly once when the matching
// reply line arrives, or when the connection is lost.
type Pending struct {
	name string
	ch   chan outcome

	once sync.Once
	res  outcome
}

type outcome struct {
	cmd Command
	err error
}

func (p *Pending) settle(cmd Command, err error) {
	select {
	case p.ch <- outcome{cmd: cmd, err: err}:
	default:
	}
}

// Wait blocks until the command's reply arrives or the connection is lost.
// It may be called more than once; the result is cached.
func (p *Pending) Wait() (Command, error) {
	p.once.Do(func() {
		p.res = <-p.ch
	})
	return p.res.cmd, p.res.err
}

// NewSession creates a session over the given connection. The transport is
// usually a net.Conn but any ReadWriteCloser works (tests).
func NewSession(conn io.ReadWriteCloser) *Session {
	return &Session{
		Env:    make(map[string]string),
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		logger: zap.New(zapcore.NewNopCore()),
	}
}

// SetLogger installs a logger for protocol tracing.
func (s *Session) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// readEnv consumes the "key: value" handshake lines up to the blank line
// and leaves the agi_request URL parsed.
func (s *Session) readEnv() error {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			break
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			s.logger.Error("invalid environment line", zap.String("line", line))
			continue
		}
		s.Env[strings.ToLower(key)] = strings.TrimRight(value, " \t")
	}
	s.URL = ParseRequestURL(s.Env["agi_request"])
	return nil
}

// readReplies runs the reply loop until the connection closes. Every inbound
// line settles the head of the FIFO queue.
func (s *Session) readReplies() {
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			break
		}
		s.dispatchReply(strings.TrimRight(line, "\r\n"))
	}
	s.terminate()
}

func (s *Session) dispatchReply(line string) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		// orphan reply: discarded, not fatal
		s.logger.Error("line received without pending command", zap.String("line", line))
		return
	}
	p := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	if len(line) >= len(resultPrefix) && strings.EqualFold(line[:len(resultPrefix)], resultPrefix) {
		cmd, err := parseReply(p.name, line[len(resultPrefix):])
		p.settle(cmd, err)
		return
	}

	// a status line other than 200: <code> <text>
	codeStr, text, _ := strings.Cut(line, " ")
	errCode, err := strconv.Atoi(codeStr)
	if err != nil {
		// keep the historical fallback
		errCode = 500
	}
	p.settle(Command{Endpos: -1}, &CommandError{Code: errCode, Text: text})
}

// Send formats and writes a command, queueing it on the pending FIFO. It
// never blocks past the transport write; the reply is collected through
// Pending.Wait.
func (s *Session) Send(name string, args string) *Pending {
	line := name
	if args != "" {
		line = name + " " + args
	}

	p := &Pending{name: name, ch: make(chan outcome, 1)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.settle(Command{Endpos: -1}, ErrConnectionTerminated)
		return p
	}
	s.pending = append(s.pending, p)
	s.logger.Debug("send command", zap.String("line", line))
	_, err := s.writer.WriteString(line + "\n")
	if err == nil {
		err = s.writer.Flush()
	}
	if err != nil {
		// the write failed: the session is dying, settle right away
		s.pending = s.pending[:len(s.pending)-1]
		s.mu.Unlock()
		p.settle(Command{Endpos: -1}, ErrConnectionTerminated)
		return p
	}
	s.mu.Unlock()
	return p
}

// RawCommand sends the line as-is through the same FIFO machinery and waits
// for the reply. Escape hatch for commands outside the catalogue.
func (s *Session) RawCommand(line string) (Command, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")
	return s.Send(strings.ToUpper(name), args).Wait()
}

// terminate rejects every pending command and marks the session closed.
func (s *Session) terminate() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	rest := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, p := range rest {
		p.settle(Command{Endpos: -1}, ErrConnectionTerminated)
	}
}

// Finish closes the transport. Asterisk interprets the EOF as normal
// termination of the AGI script.
func (s *Session) Finish() error {
	s.terminate()
	return s.conn.Close()
}

// Wait sleeps for the given duration. Nothing is transmitted to the server.
func (s *Session) Wait(d time.Duration) {
	time.Sleep(d)
}
