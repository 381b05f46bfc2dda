package ami

import (
	"bufio"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fastami/internal/config"
)

// ErrConnectionTerminated is delivered to every pending action when the
// manager connection is lost.
var ErrConnectionTerminated = errors.New("AMI connection terminated")

// bannerPrefix starts the first line the manager emits on connect.
const bannerPrefix = "Asterisk Call Manager"

type clientState int

const (
	stateAwaitBanner clientState = iota
	stateStreaming
	stateClosed
)

// Client is the AMI client. Outbound actions are serialized: the next one is
// transmitted once the previous response has settled, so FIFO correlation is
// always valid; the per-connection ActionID is used as the preferred
// correlation when the response carries it.
type Client struct {
	cfg    *config.AMIConfig
	logger *zap.Logger

	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer

	mu          sync.Mutex
	state       clientState
	pending     []*PendingResponse
	subscribers []chan Message
	seq         int
	host        string

	// in-flight block parse state; touched only by the reader goroutine
	inflight      Message
	inflightEvent bool
}

// PendingResponse is an in-flight action: it settles exactly once with the
// manager's response, or with ErrConnectionTerminated.
type PendingResponse struct {
	action *Action
	id     string
	sent   bool
	ch     chan responseOutcome

	once sync.Once
	res  responseOutcome
}

type responseOutcome struct {
	msg Message
	err error
}

func (p *PendingResponse) settle(msg Message, err error) {
	select {
	case p.ch <- responseOutcome{msg: msg, err: err}:
	default:
	}
}

// Wait blocks until the action settles. Reentrant: the result is cached.
func (p *PendingResponse) Wait() (Message, error) {
	p.once.Do(func() {
		p.res = <-p.ch
	})
	return p.res.msg, p.res.err
}

// NewClient creates an unconnected AMI client.
func NewClient(cfg *config.AMIConfig) *Client {
	host, err := os.Hostname()
	if err != nil {
		host = "fastami"
	}
	return &Client{
		cfg:    cfg,
		logger: zap.New(zapcore.NewNopCore()),
		host:   host,
	}
}

// SetLogger installs a logger for client tracing.
func (c *Client) SetLogger(l *zap.Logger) {
	if l != nil {
		c.logger = l
	}
}

// Connect opens the TCP connection and authenticates. The Login is enqueued
// before dialing, so it is the queue head when the banner arrives.
func (c *Client) Connect() error {
	login := c.Send(Login(c.cfg.Username, c.cfg.Secret, c.cfg.Events))

	addr := c.cfg.Address()
	c.logger.Info("connecting to AMI", zap.String("addr", addr))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		c.terminate()
		return errors.Wrapf(err, "failed to connect to %s", addr)
	}
	c.start(conn)

	if _, err := login.Wait(); err != nil {
		conn.Close()
		return err
	}
	c.logger.Info("AMI connected")
	return nil
}

// start binds the client to an already-open transport and runs the reader.
func (c *Client) start(conn io.ReadWriteCloser) {
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.writer = bufio.NewWriter(conn)
	go c.readLoop()
}

// Send enqueues an action. The actual transmission happens when the action
// reaches the queue head (and the banner has been received); the response is
// collected through PendingResponse.Wait.
func (c *Client) Send(a *Action) *PendingResponse {
	p := &PendingResponse{
		action: a,
		ch:     make(chan responseOutcome, 1),
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		p.settle(nil, ErrConnectionTerminated)
		return p
	}
	c.seq++
	p.id = c.host + "-" + strconv.Itoa(c.seq)
	c.pending = append(c.pending, p)
	if c.state == stateStreaming && len(c.pending) == 1 {
		c.transmitLocked(p)
	}
	c.mu.Unlock()
	return p
}

// transmitLocked writes the action to the wire. Called with c.mu held.
func (c *Client) transmitLocked(p *PendingResponse) {
	p.sent = true
	c.logger.Debug("send action",
		zap.String("action", p.action.Name), zap.String("action_id", p.id))
	_, err := c.writer.WriteString(p.action.render(p.id))
	if err == nil {
		err = c.writer.Flush()
	}
	if err != nil {
		c.logger.Error("failed to transmit action",
			zap.String("action", p.action.Name), zap.Error(err))
		// the reader will see the close and settle every pending action
		c.conn.Close()
	}
}

// readLoop consumes CR-LF lines (bare LF tolerated) until the connection
// drops.
func (c *Client) readLoop() {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			break
		}
		c.handleLine(strings.TrimRight(line, "\r\n"))
	}
	c.terminate()
}

func (c *Client) handleLine(line string) {
	c.mu.Lock()
	if c.state == stateAwaitBanner {
		if !strings.HasPrefix(line, bannerPrefix) {
			c.mu.Unlock()
			return
		}
		c.state = stateStreaming
		c.logger.Info("banner received", zap.String("banner", line))
		if len(c.pending) > 0 {
			c.transmitLocked(c.pending[0])
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if strings.TrimSpace(line) == "" {
		c.finalizeMessage()
		return
	}

	key, value, ok := strings.Cut(line, ":")
	if !ok {
		c.logger.Error("unreadable line", zap.String("line", line))
		return
	}
	value = strings.TrimLeft(value, " ")

	if c.inflight == nil {
		// the first key decides the block kind
		c.inflight = Message{}
		c.inflightEvent = strings.EqualFold(key, "Event")
	}
	c.inflight.set(key, value)
}

// finalizeMessage closes the in-flight block: events go to the subscriber
// queues, responses settle the pending action.
func (c *Client) finalizeMessage() {
	msg, isEvent := c.inflight, c.inflightEvent
	c.inflight, c.inflightEvent = nil, false
	if msg == nil {
		return
	}
	if isEvent {
		c.publish(msg)
		return
	}
	c.settleResponse(msg)
}

func (c *Client) settleResponse(msg Message) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		c.logger.Error("response without pending action", zap.String("message", msg.String()))
		return
	}

	// correlate by ActionID when present; FIFO as the fallback
	idx := 0
	if aid := msg.Get("ActionID"); aid != "" {
		for i, p := range c.pending {
			if p.id == aid {
				idx = i
				break
			}
		}
	}
	p := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)

	// with this response settled, transmit the next queued action
	if c.state == stateStreaming && len(c.pending) > 0 && !c.pending[0].sent {
		c.transmitLocked(c.pending[0])
	}
	c.mu.Unlock()

	p.settle(msg, p.action.classify(msg))
}

func (c *Client) publish(msg Message) {
	c.mu.Lock()
	subs := make([]chan Message, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- msg:
		default:
			// subscriber buffer full, drop the event for it
		}
	}
}

// Subscribe returns a channel receiving every AMI event. One consumer per
// channel; multiple consumers need separate subscriptions.
func (c *Client) Subscribe() <-chan Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Message, 2000)
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// terminate settles everything pending as connection terminated and closes
// the event channels.
func (c *Client) terminate() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	rest := c.pending
	c.pending = nil
	subs := c.subscribers
	c.subscribers = nil
	c.mu.Unlock()

	for _, p := range rest {
		p.settle(nil, ErrConnectionTerminated)
	}
	for _, sub := range subs {
		close(sub)
	}
	c.logger.Info("AMI connection terminated")
}

// Connected reports whether the client is still streaming.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateStreaming
}

// Close closes the manager connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	c.terminate()
	return nil
}

// Ping is the keepalive; the manager answers Pong.
func (c *Client) Ping() (Message, error) {
	return c.Send(Ping()).Wait()
}

// AbsoluteTimeout asks to hang up the channel after timeout seconds.
func (c *Client) AbsoluteTimeout(channel string, timeout int) (Message, error) {
	return c.Send(AbsoluteTimeout(channel, timeout)).Wait()
}

// ChangeMonitor changes a channel's recording filename.
func (c *Client) ChangeMonitor(channel, file string) (Message, error) {
	return c.Send(ChangeMonitor(channel, file)).Wait()
}

// Originate places an outbound call.
func (c *Client) Originate(p OriginateParams) (Message, error) {
	c.logger.Info("originating call", zap.String("channel", p.Channel))
	return c.Send(Originate(p)).Wait()
}

// Hangup hangs up a specific channel.
func (c *Client) Hangup(channel, cause string) (Message, error) {
	return c.Send(Hangup(channel, cause)).Wait()
}
